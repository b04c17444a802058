package api

import (
	"database/sql"
	"net/http"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	documentsHandler := &DocumentsHandler{DB: db}
	requestsHandler := &RequestsHandler{DB: db}
	loansHandler := &LoansHandler{DB: db}
	settingsHandler := &SettingsHandler{DB: db}

	authMW := AuthMiddleware(jwtSecret, db)
	admin := func(h http.HandlerFunc) http.Handler { return authMW(RequireAdmin(h)) }
	member := func(h http.HandlerFunc) http.Handler { return authMW(h) }

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Session management.
	mux.Handle("POST /api/auth/logout", member(authHandler.Logout))
	mux.Handle("PUT /api/auth/password", member(authHandler.ChangePassword))

	// Catalog: read for everyone signed in, mutation for administrators.
	mux.Handle("GET /api/documents", member(documentsHandler.List))
	mux.Handle("POST /api/documents", admin(documentsHandler.Create))
	mux.Handle("GET /api/documents/{id}", member(documentsHandler.Get))
	mux.Handle("PUT /api/documents/{id}", admin(documentsHandler.Update))
	mux.Handle("DELETE /api/documents/{id}", admin(documentsHandler.Delete))
	mux.Handle("PUT /api/documents/{id}/quantity", admin(documentsHandler.SetQuantity))
	mux.Handle("PUT /api/documents/{id}/cover", admin(documentsHandler.UploadCover))
	mux.Handle("GET /api/documents/{id}/cover", member(documentsHandler.GetCover))

	// Borrow requests: members file, cancel and relaunch their own;
	// administrators see the queue and decide.
	mux.Handle("POST /api/requests", member(requestsHandler.Create))
	mux.Handle("GET /api/requests", admin(requestsHandler.List))
	mux.Handle("GET /api/requests/mine", member(requestsHandler.ListMine))
	mux.Handle("POST /api/requests/{id}/decision", admin(requestsHandler.Decide))
	mux.Handle("POST /api/requests/{id}/cancel", member(requestsHandler.Cancel))
	mux.Handle("POST /api/requests/{id}/relaunch", member(requestsHandler.Relaunch))

	// Loans: lending and returning happen at the desk, so administrators
	// only; members see their own history.
	mux.Handle("POST /api/loans", admin(loansHandler.Create))
	mux.Handle("POST /api/loans/return", admin(loansHandler.Return))
	mux.Handle("GET /api/loans", admin(loansHandler.List))
	mux.Handle("GET /api/loans/mine", member(loansHandler.ListMine))
	mux.Handle("GET /api/loans/{id}/penalty", member(loansHandler.Penalty))

	// Accounts (admin only).
	mux.Handle("GET /api/users", admin(usersHandler.List))
	mux.Handle("POST /api/users", admin(usersHandler.Create))
	mux.Handle("GET /api/users/{id}", admin(usersHandler.Get))
	mux.Handle("PUT /api/users/{id}", admin(usersHandler.Update))
	mux.Handle("PUT /api/users/{id}/password", admin(usersHandler.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", admin(usersHandler.Delete))
	mux.Handle("GET /api/users/{id}/loans", admin(usersHandler.ListLoans))

	// Settings and audit (admin only).
	mux.Handle("GET /api/settings/fees", admin(settingsHandler.GetFeePolicy))
	mux.Handle("PUT /api/settings/fees", admin(settingsHandler.UpdateFeePolicy))
	mux.Handle("GET /api/audit", admin(settingsHandler.ListAudit))

	return mux
}

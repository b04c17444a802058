package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/lmercier/libris/internal/covers"
	"github.com/lmercier/libris/internal/model"
	"github.com/lmercier/libris/internal/store"
)

// DocumentsHandler handles catalog endpoints.
type DocumentsHandler struct {
	DB *sql.DB
}

type documentRequest struct {
	Kind       string           `json:"kind" validate:"required,oneof=book magazine newspaper media"`
	Title      string           `json:"title" validate:"required"`
	Attributes model.Attributes `json:"attributes"`
	Total      int              `json:"total_quantity" validate:"omitempty,min=1"`
}

func (req *documentRequest) toModel() *model.Document {
	return &model.Document{
		Kind:       req.Kind,
		Title:      req.Title,
		Attributes: req.Attributes,
		Total:      req.Total,
	}
}

// List handles GET /api/documents. Query parameters filter the catalog:
// title, kind, author, publisher, date_from, date_to.
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := store.SearchCriteria{
		Title:     q.Get("title"),
		Kind:      q.Get("kind"),
		Author:    q.Get("author"),
		Publisher: q.Get("publisher"),
		DateFrom:  q.Get("date_from"),
		DateTo:    q.Get("date_to"),
	}

	var docs []model.Document
	var err error
	if criteria == (store.SearchCriteria{}) {
		docs, err = store.ListDocuments(r.Context(), h.DB)
	} else {
		docs, err = store.SearchDocuments(r.Context(), h.DB, criteria)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	jsonResponse(w, http.StatusOK, docs)
}

// Create handles POST /api/documents.
func (h *DocumentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	doc, err := store.CreateDocument(r.Context(), h.DB, req.toModel())
	if err != nil {
		writeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	store.RecordAction(r.Context(), h.DB, "document.create", claims.UserID,
		fmt.Sprintf("%s %q (id=%d)", doc.Kind, doc.Title, doc.ID))
	slog.Info("document created", "user", claims.Username, "kind", doc.Kind, "title", doc.Title)
	jsonResponse(w, http.StatusCreated, doc)
}

// Get handles GET /api/documents/{id}.
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := store.GetDocument(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, doc)
}

// Update handles PUT /api/documents/{id}.
func (h *DocumentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	var req documentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	doc, err := store.UpdateDocument(r.Context(), h.DB, id, req.toModel())
	if err != nil {
		writeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	store.RecordAction(r.Context(), h.DB, "document.update", claims.UserID,
		fmt.Sprintf("%s %q (id=%d)", doc.Kind, doc.Title, doc.ID))
	jsonResponse(w, http.StatusOK, doc)
}

// Delete handles DELETE /api/documents/{id}.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := store.DeleteDocument(r.Context(), h.DB, id); err != nil {
		writeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	store.RecordAction(r.Context(), h.DB, "document.delete", claims.UserID,
		fmt.Sprintf("id=%d", id))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "document deleted"})
}

type quantityRequest struct {
	Total int `json:"total_quantity" validate:"required,min=1"`
}

// SetQuantity handles PUT /api/documents/{id}/quantity.
func (h *DocumentsHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := store.SetTotalQuantity(r.Context(), h.DB, id, req.Total); err != nil {
		writeError(w, err)
		return
	}

	doc, err := store.GetDocument(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	store.RecordAction(r.Context(), h.DB, "document.quantity", claims.UserID,
		fmt.Sprintf("id=%d total=%d", id, req.Total))
	jsonResponse(w, http.StatusOK, doc)
}

// UploadCover handles PUT /api/documents/{id}/cover.
func (h *DocumentsHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, covers.MaxUploadBytes)
	if err := r.ParseMultipartForm(covers.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("cover")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "cover file required")
		return
	}
	defer file.Close()

	cover, err := covers.Normalize(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetDocumentCover(r.Context(), h.DB, id, cover.Data, cover.MIME); err != nil {
		writeError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "cover uploaded"})
}

// GetCover handles GET /api/documents/{id}/cover.
func (h *DocumentsHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	data, mime, err := store.GetDocumentCover(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no cover")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

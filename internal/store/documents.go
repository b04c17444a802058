package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lmercier/libris/internal/liberr"
	"github.com/lmercier/libris/internal/model"
)

const documentColumns = `id, kind, title, attributes, total_quantity, available_quantity, cover_mime, created_at, updated_at`

// CreateDocument adds a document to the catalog with available = total.
// Fails with DuplicateTitle if a document of the same kind and title
// (case-insensitively) already exists.
func CreateDocument(ctx context.Context, db *sql.DB, doc *model.Document) (*model.Document, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if doc.Total < 1 {
		doc.Total = 1
	}

	attrs, err := doc.EncodeAttributes()
	if err != nil {
		return nil, err
	}

	var existing int64
	err = db.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE kind = ? AND LOWER(title) = LOWER(?)`,
		doc.Kind, doc.Title,
	).Scan(&existing)
	if err == nil {
		return nil, liberr.New(liberr.CodeDuplicateTitle,
			"a %s titled %q already exists", doc.Kind, doc.Title).WithID(existing)
	}
	if err != sql.ErrNoRows {
		return nil, liberr.Storage("checking for duplicate title", err)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO documents (kind, title, attributes, total_quantity, available_quantity)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.Kind, doc.Title, attrs, doc.Total, doc.Total,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, liberr.New(liberr.CodeDuplicateTitle,
				"a %s titled %q already exists", doc.Kind, doc.Title)
		}
		return nil, liberr.Storage("creating document", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting document id: %w", err)
	}

	return GetDocument(ctx, db, id)
}

// GetDocument returns a catalog entry by ID.
func GetDocument(ctx context.Context, db *sql.DB, id int64) (*model.Document, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, liberr.NotFound("document", id)
	}
	if err != nil {
		return nil, liberr.Storage("getting document", err)
	}
	return doc, nil
}

// ListDocuments returns the whole catalog ordered by title.
func ListDocuments(ctx context.Context, db *sql.DB) ([]model.Document, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY title`,
	)
	if err != nil {
		return nil, liberr.Storage("listing documents", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// SearchCriteria filters catalog searches. Zero-valued fields are not
// filtered; substring matches are case-insensitive.
type SearchCriteria struct {
	Title     string
	Kind      string
	Author    string
	Publisher string
	DateFrom  string // YYYY-MM-DD, inclusive
	DateTo    string // YYYY-MM-DD, inclusive
}

// SearchDocuments returns catalog entries matching the criteria. Author,
// publisher and publication date live in the attributes blob and are
// filtered with json_extract, the same way the catalog was originally
// queried.
func SearchDocuments(ctx context.Context, db *sql.DB, c SearchCriteria) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	var args []any

	if c.Title != "" {
		query += ` AND LOWER(title) LIKE LOWER(?)`
		args = append(args, "%"+c.Title+"%")
	}
	if c.Kind != "" {
		query += ` AND kind = LOWER(?)`
		args = append(args, c.Kind)
	}
	if c.Author != "" {
		query += ` AND LOWER(json_extract(attributes, '$.author')) LIKE LOWER(?)`
		args = append(args, "%"+c.Author+"%")
	}
	if c.Publisher != "" {
		query += ` AND LOWER(json_extract(attributes, '$.publisher')) LIKE LOWER(?)`
		args = append(args, "%"+c.Publisher+"%")
	}
	if c.DateFrom != "" {
		query += ` AND json_extract(attributes, '$.published_at') >= ?`
		args = append(args, c.DateFrom)
	}
	if c.DateTo != "" {
		query += ` AND json_extract(attributes, '$.published_at') <= ?`
		args = append(args, c.DateTo)
	}

	query += ` ORDER BY title`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, liberr.Storage("searching documents", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// UpdateDocument replaces a document's mutable fields. The kind is immutable;
// passing a different kind is a caller error.
func UpdateDocument(ctx context.Context, db *sql.DB, id int64, doc *model.Document) (*model.Document, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	current, err := GetDocument(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if current.Kind != doc.Kind {
		return nil, liberr.Validation("document kind is immutable (is %s, got %s)", current.Kind, doc.Kind).WithID(id)
	}

	attrs, err := doc.EncodeAttributes()
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(ctx,
		`UPDATE documents SET title = ?, attributes = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		doc.Title, attrs, id,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, liberr.New(liberr.CodeDuplicateTitle,
				"a %s titled %q already exists", doc.Kind, doc.Title)
		}
		return nil, liberr.Storage("updating document", err)
	}

	return GetDocument(ctx, db, id)
}

// DeleteDocument removes a document from the catalog. Fails with
// HasActiveLoans while any open loan references it.
func DeleteDocument(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return liberr.Storage("beginning transaction", err)
	}
	defer tx.Rollback()

	var open int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE document_id = ? AND return_date IS NULL`, id,
	).Scan(&open)
	if err != nil {
		return liberr.Storage("counting open loans", err)
	}
	if open > 0 {
		return liberr.New(liberr.CodeHasActiveLoans,
			"document has %d active loan(s)", open).WithID(id)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return liberr.Storage("deleting document", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return liberr.NotFound("document", id)
	}

	if err := tx.Commit(); err != nil {
		return liberr.Storage("committing document deletion", err)
	}
	return nil
}

// SetTotalQuantity resizes a document's inventory. The new total must cover
// all open loans; availability is recomputed as total minus open loans.
func SetTotalQuantity(ctx context.Context, db *sql.DB, id int64, total int) error {
	if total < 1 {
		return liberr.Validation("total quantity must be at least 1")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return liberr.Storage("beginning transaction", err)
	}
	defer tx.Rollback()

	var open int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE document_id = ? AND return_date IS NULL`, id,
	).Scan(&open)
	if err != nil {
		return liberr.Storage("counting open loans", err)
	}
	if total < open {
		return liberr.New(liberr.CodeInvalidAvailability,
			"total %d is below the %d open loan(s)", total, open).WithID(id)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE documents SET total_quantity = ?, available_quantity = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		total, total-open, id,
	)
	if err != nil {
		return liberr.Storage("updating quantity", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return liberr.NotFound("document", id)
	}

	if err := tx.Commit(); err != nil {
		return liberr.Storage("committing quantity change", err)
	}
	return nil
}

// SetDocumentCover stores a document's cover image.
func SetDocumentCover(ctx context.Context, db *sql.DB, id int64, cover []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE documents SET cover = ?, cover_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		cover, mime, id,
	)
	if err != nil {
		return liberr.Storage("setting document cover", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return liberr.NotFound("document", id)
	}
	return nil
}

// GetDocumentCover returns a document's cover image and MIME type. Both are
// empty when no cover has been uploaded.
func GetDocumentCover(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var cover []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT cover, cover_mime FROM documents WHERE id = ?`, id,
	).Scan(&cover, &mime)
	if err == sql.ErrNoRows {
		return nil, "", liberr.NotFound("document", id)
	}
	if err != nil {
		return nil, "", liberr.Storage("getting document cover", err)
	}
	return cover, mime.String, nil
}

// adjustAvailability applies a guarded availability change inside a loan or
// request transaction. The WHERE clause keeps the counter within
// [0, total_quantity]; zero rows affected means the adjustment would have
// left that range.
func adjustAvailability(ctx context.Context, tx *sql.Tx, docID int64, delta int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE documents
		 SET available_quantity = available_quantity + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?
		   AND available_quantity + ? >= 0
		   AND available_quantity + ? <= total_quantity`,
		delta, docID, delta, delta,
	)
	if err != nil {
		return liberr.Storage("adjusting availability", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return liberr.Storage("adjusting availability", err)
	}
	if n == 0 {
		// Zero rows either means the guard refused the change or the
		// document does not exist at all; tell those apart so the caller
		// gets the right failure.
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, docID).Scan(&exists)
		if err == sql.ErrNoRows {
			return liberr.NotFound("document", docID)
		}
		if err != nil {
			return liberr.Storage("adjusting availability", err)
		}
		if delta < 0 {
			return liberr.New(liberr.CodeUnavailable, "document is not available").WithID(docID)
		}
		return liberr.New(liberr.CodeInvalidAvailability,
			"availability would exceed total quantity").WithID(docID)
	}
	return nil
}

func scanDocument(row *sql.Row) (*model.Document, error) {
	doc := &model.Document{}
	var attrs string
	var coverMime sql.NullString
	err := row.Scan(&doc.ID, &doc.Kind, &doc.Title, &attrs, &doc.Total, &doc.Available,
		&coverMime, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.CoverMime = coverMime.String
	if err := doc.DecodeAttributes(attrs); err != nil {
		return nil, err
	}
	return doc, nil
}

func scanDocuments(rows *sql.Rows) ([]model.Document, error) {
	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		var attrs string
		var coverMime sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Kind, &doc.Title, &attrs, &doc.Total, &doc.Available,
			&coverMime, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc.CoverMime = coverMime.String
		if err := doc.DecodeAttributes(attrs); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

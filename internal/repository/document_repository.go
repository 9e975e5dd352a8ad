package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
)

const documentColumns = "id, application_id, document_type, original_name, stored_name, file_path, size_bytes, mime_type, uploaded_at"

// DocumentRepository persists metadata for uploaded documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create stores metadata for a file already written to disk. A second document of the
// same type for one application violates the unique key and yields ErrDuplicate.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO application_documents
	(application_id, document_type, original_name, stored_name, file_path, size_bytes, mime_type, uploaded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		doc.ApplicationID, doc.DocumentType, doc.OriginalName, doc.StoredName, doc.FilePath, doc.SizeBytes, doc.MimeType, doc.UploadedAt,
	).Scan(&doc.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create document: %w", ErrDuplicate)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// ListByApplication returns an application's documents in upload order.
func (r *DocumentRepository) ListByApplication(ctx context.Context, applicationID int64) ([]models.Document, error) {
	docs := make([]models.Document, 0)
	query := "SELECT " + documentColumns + " FROM application_documents WHERE application_id = $1 ORDER BY uploaded_at, id"
	if err := r.db.SelectContext(ctx, &docs, query, applicationID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// FindByStoredName returns the metadata row for a generated file name or sql.ErrNoRows.
func (r *DocumentRepository) FindByStoredName(ctx context.Context, storedName string) (*models.Document, error) {
	var doc models.Document
	query := "SELECT " + documentColumns + " FROM application_documents WHERE stored_name = $1"
	if err := r.db.GetContext(ctx, &doc, query, storedName); err != nil {
		return nil, err
	}
	return &doc, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/victor297/student-clearance/internal/models"
)

const documentColumns = `id, request_id, student_id, department, storage_key, file_url, file_name, original_name, file_size, mime_type, created_at`

// DocumentRepository persists uploaded document metadata.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateBatch inserts documents in one transaction.
func (r *DocumentRepository) CreateBatch(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document tx: %w", err)
	}
	if err := insertDocuments(ctx, tx, docs); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document tx: %w", err)
	}
	return nil
}

func insertDocuments(ctx context.Context, ext sqlx.ExtContext, docs []models.Document) error {
	const query = `INSERT INTO documents (id, request_id, student_id, department, storage_key, file_url, file_name, original_name, file_size, mime_type, created_at)
	VALUES (:id, :request_id, :student_id, :department, :storage_key, :file_url, :file_name, :original_name, :file_size, :mime_type, :created_at)`
	now := time.Now().UTC()
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		if docs[i].CreatedAt.IsZero() {
			docs[i].CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, ext, query, docs[i]); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}
	return nil
}

// GetByID fetches a document by identifier.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// List returns documents for a request or a department, newest first.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	args := make([]interface{}, 0, 2)
	if filter.RequestID != "" {
		args = append(args, filter.RequestID)
		query += fmt.Sprintf(" AND request_id = $%d", len(args))
	}
	if filter.Department != nil {
		args = append(args, *filter.Department)
		query += fmt.Sprintf(" AND department = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

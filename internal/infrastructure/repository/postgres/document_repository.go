package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/finsight-io/finsight/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, fingerprint, filename, language, status, summary, error_message, created_at, completed_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		doc.ID, doc.Fingerprint, doc.Filename, doc.Language, string(doc.Status),
		doc.Summary, doc.Error, doc.CreatedAt, doc.CompletedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, fingerprint, filename, language, status, summary, error_message, created_at, completed_at
FROM documents
WHERE id = $1
`, id)
	return scanDocument(row, id)
}

// GetReadyByFingerprint supports resubmission dedup: only fully extracted
// documents count as duplicates.
func (r *DocumentRepository) GetReadyByFingerprint(ctx context.Context, fingerprint string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, fingerprint, filename, language, status, summary, error_message, created_at, completed_at
FROM documents
WHERE fingerprint = $1 AND status = $2
ORDER BY created_at DESC
LIMIT 1
`, fingerprint, string(domain.StatusReady))
	return scanDocument(row, fingerprint)
}

func scanDocument(row *sql.Row, key string) (*domain.Document, error) {
	var doc domain.Document
	var status string
	err := row.Scan(
		&doc.ID, &doc.Fingerprint, &doc.Filename, &doc.Language, &status,
		&doc.Summary, &doc.Error, &doc.CreatedAt, &doc.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document",
				fmt.Errorf("document %s", key))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	var completedAt any
	if status == domain.StatusReady || status == domain.StatusFailed {
		completedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, completed_at = COALESCE($4, completed_at), updated_at = $5
WHERE id = $1
`, id, string(status), errMessage, completedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireDocumentRow(res, id)
}

func (r *DocumentRepository) SaveLanguage(ctx context.Context, id, language string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents SET language = $2, updated_at = $3 WHERE id = $1
`, id, language, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save document language: %w", err)
	}
	return requireDocumentRow(res, id)
}

func (r *DocumentRepository) SaveSummary(ctx context.Context, id, summary string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents SET summary = $2, updated_at = $3 WHERE id = $1
`, id, summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save document summary: %w", err)
	}
	return requireDocumentRow(res, id)
}

// SavePages replaces any prior extraction output for the document.
func (r *DocumentRepository) SavePages(ctx context.Context, documentID string, pages []domain.Page) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pages tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	for _, page := range pages {
		tokensJSON, err := json.Marshal(page.Tokens)
		if err != nil {
			return fmt.Errorf("marshal page tokens: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO pages (document_id, number, text, tokens, engine, confidence, low_confidence, width, height)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
			documentID, page.Number, page.Text, tokensJSON, string(page.Engine),
			page.Confidence, page.LowConfidence, page.Width, page.Height,
		)
		if err != nil {
			return fmt.Errorf("insert page %d: %w", page.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pages tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListPages(ctx context.Context, documentID string) ([]domain.Page, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT number, text, tokens, engine, confidence, low_confidence, width, height
FROM pages
WHERE document_id = $1
ORDER BY number
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.Page
	for rows.Next() {
		var page domain.Page
		var tokensRaw []byte
		var engine string
		err := rows.Scan(&page.Number, &page.Text, &tokensRaw, &engine,
			&page.Confidence, &page.LowConfidence, &page.Width, &page.Height)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		if err := json.Unmarshal(tokensRaw, &page.Tokens); err != nil {
			return nil, fmt.Errorf("unmarshal page tokens: %w", err)
		}
		page.DocumentID = documentID
		page.Engine = domain.ExtractionEngine(engine)
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func requireDocumentRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document",
			fmt.Errorf("document %s", id))
	}
	return nil
}

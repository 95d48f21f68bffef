package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/finsight-io/finsight/internal/core/domain"
)

type TableRepository struct {
	db *sql.DB
}

func NewTableRepository(db *sql.DB) *TableRepository {
	return &TableRepository{db: db}
}

// SaveTables replaces the document's reconstructed tables. Position keeps
// the reconstruction order stable across reads.
func (r *TableRepository) SaveTables(ctx context.Context, documentID string, tables []domain.ExtractedTable) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tables tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extracted_tables WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clear tables: %w", err)
	}
	for i, table := range tables {
		headerJSON, err := json.Marshal(table.Header)
		if err != nil {
			return fmt.Errorf("marshal table header: %w", err)
		}
		rowsJSON, err := json.Marshal(table.Rows)
		if err != nil {
			return fmt.Errorf("marshal table rows: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO extracted_tables (id, document_id, position, page_number, header, rows, confidence, table_type)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
			table.ID, documentID, i, table.PageNumber, headerJSON, rowsJSON,
			table.Confidence, string(table.Type),
		)
		if err != nil {
			return fmt.Errorf("insert table: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tables tx: %w", err)
	}
	return nil
}

func (r *TableRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.ExtractedTable, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, page_number, header, rows, confidence, table_type
FROM extracted_tables
WHERE document_id = $1
ORDER BY position
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []domain.ExtractedTable
	for rows.Next() {
		table, err := scanTable(rows.Scan)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (r *TableRepository) GetByID(ctx context.Context, tableID string) (*domain.ExtractedTable, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, page_number, header, rows, confidence, table_type
FROM extracted_tables
WHERE id = $1
`, tableID)

	table, err := scanTable(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get table",
				fmt.Errorf("table %s", tableID))
		}
		return nil, err
	}
	return table, nil
}

func scanTable(scan func(dest ...any) error) (*domain.ExtractedTable, error) {
	var table domain.ExtractedTable
	var headerRaw, rowsRaw []byte
	var tableType string
	err := scan(&table.ID, &table.DocumentID, &table.PageNumber, &headerRaw, &rowsRaw,
		&table.Confidence, &tableType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan table: %w", err)
	}
	if err := json.Unmarshal(headerRaw, &table.Header); err != nil {
		return nil, fmt.Errorf("unmarshal table header: %w", err)
	}
	if err := json.Unmarshal(rowsRaw, &table.Rows); err != nil {
		return nil, fmt.Errorf("unmarshal table rows: %w", err)
	}
	table.Type = domain.TableType(tableType)
	return &table, nil
}

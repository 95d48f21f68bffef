package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/finsight-io/finsight/internal/core/domain"
)

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) SaveItems(ctx context.Context, documentID string, items []domain.FinancialItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin items tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM financial_items WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	for _, item := range items {
		_, err = tx.ExecContext(ctx, `
INSERT INTO financial_items (id, document_id, table_id, item_type, label, raw_value, numeric_value, currency, page_number, confidence)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
			item.ID, documentID, item.TableID, string(item.Type), item.Label,
			item.RawValue, item.NumericValue, item.Currency, item.PageNumber, item.Confidence,
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit items tx: %w", err)
	}
	return nil
}

func (r *ItemRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.FinancialItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, table_id, item_type, label, raw_value, numeric_value, currency, page_number, confidence
FROM financial_items
WHERE document_id = $1
ORDER BY page_number, id
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []domain.FinancialItem
	for rows.Next() {
		var item domain.FinancialItem
		var itemType string
		var numeric sql.NullFloat64
		err := rows.Scan(&item.ID, &item.TableID, &itemType, &item.Label,
			&item.RawValue, &numeric, &item.Currency, &item.PageNumber, &item.Confidence)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if numeric.Valid {
			value := numeric.Float64
			item.NumericValue = &value
		}
		item.DocumentID = documentID
		item.Type = domain.ItemType(itemType)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

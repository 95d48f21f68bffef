package domain

type ItemType string

const (
	ItemRevenue            ItemType = "revenue"
	ItemNetIncome          ItemType = "net_income"
	ItemTotalAssets        ItemType = "total_assets"
	ItemCurrentAssets      ItemType = "current_assets"
	ItemTotalLiabilities   ItemType = "total_liabilities"
	ItemCurrentLiabilities ItemType = "current_liabilities"
	ItemEquity             ItemType = "equity"
	ItemCurrencyAmount     ItemType = "currency_amount"
	ItemPeriodDate         ItemType = "period_date"
)

type FinancialItem struct {
	ID         string   `json:"id"`
	DocumentID string   `json:"document_id"`
	TableID    string   `json:"table_id,omitempty"`
	Type       ItemType `json:"type"`
	Label      string   `json:"label,omitempty"`
	RawValue   string   `json:"raw_value"`
	// NumericValue stays nil unless RawValue matched the numeric grammar
	// for the detected locale.
	NumericValue *float64 `json:"numeric_value,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	PageNumber   int      `json:"page_number"`
	Confidence   float64  `json:"confidence"`
}

// TableMetrics is the computeMetrics output. A nil entry in ColumnTotals
// means the column did not reach the summable fraction and its total is
// unavailable, not zero.
type TableMetrics struct {
	TableID      string             `json:"table_id"`
	RowCount     int                `json:"row_count"`
	ColumnCount  int                `json:"column_count"`
	ColumnTotals []*float64         `json:"column_totals"`
	Ratios       map[string]float64 `json:"ratios,omitempty"`
}

package domain

import "fmt"

type TableType string

const (
	TableBalanceSheet    TableType = "balance_sheet"
	TableIncomeStatement TableType = "income_statement"
	TableGeneric         TableType = "generic"
)

type ExtractedTable struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	PageNumber int       `json:"page_number"`
	Header     []string  `json:"header,omitempty"`
	Rows       [][]string `json:"rows"`
	Confidence float64   `json:"confidence"`
	Type       TableType `json:"type"`
}

// ColumnCount is the header width when a header exists, otherwise the width
// of the widest row.
func (t *ExtractedTable) ColumnCount() int {
	if len(t.Header) > 0 {
		return len(t.Header)
	}
	max := 0
	for _, row := range t.Rows {
		if len(row) > max {
			max = len(row)
		}
	}
	return max
}

// ValidateShape enforces the structural invariant: with a non-empty header,
// every data row carries exactly len(header) cells.
func (t *ExtractedTable) ValidateShape() error {
	if len(t.Header) == 0 {
		return nil
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			return WrapError(ErrReconstruction, "validate table shape",
				fmt.Errorf("row %d has %d cells, header has %d", i, len(row), len(t.Header)))
		}
	}
	return nil
}

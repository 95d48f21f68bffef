package finance

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/finsight-io/finsight/internal/core/domain"
)

// Extractor derives financial items from reconstructed tables and, for
// currency amounts and period dates, from raw page text.
type Extractor struct {
	lexicon *Lexicon
}

func NewExtractor(lexicon *Lexicon) *Extractor {
	return &Extractor{lexicon: lexicon}
}

var (
	// ₪1,200.50 / 1,200 NIS / $240
	amountPattern = regexp.MustCompile(
		`(?:[₪$€£]\s?-?\d[\d,]*(?:\.\d+)?)|(?:-?\d[\d,]*(?:\.\d+)?\s?(?:₪|\$|€|£|NIS|ILS|USD|EUR|GBP)\b)`)
	// 31.12.2023 / 31/12/2023
	dottedDatePattern = regexp.MustCompile(`\b\d{1,2}[./]\d{1,2}[./]\d{2,4}\b`)
	// December 31, 2023
	monthDatePattern = regexp.MustCompile(
		`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`)
	// Q1 2024
	quarterPattern = regexp.MustCompile(`\bQ[1-4]\s?\d{4}\b`)
)

func (e *Extractor) Extract(doc *domain.Document, tables []domain.ExtractedTable) []domain.FinancialItem {
	var items []domain.FinancialItem
	for i := range tables {
		items = append(items, e.fromTable(doc.ID, &tables[i])...)
	}
	for i := range doc.Pages {
		items = append(items, e.fromText(doc.ID, &doc.Pages[i])...)
	}
	return items
}

// fromTable matches the label column against the lexicon and takes the
// first cell in the row that parses as an amount. A matched row whose
// cells all fail numeric parsing is still emitted, with a nil numeric
// value, so the line item stays visible.
func (e *Extractor) fromTable(documentID string, table *domain.ExtractedTable) []domain.FinancialItem {
	var items []domain.FinancialItem
	for _, row := range table.Rows {
		if len(row) < 2 {
			continue
		}
		kind, ok := e.lexicon.MatchItem(row[0])
		if !ok {
			continue
		}

		item := domain.FinancialItem{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			TableID:    table.ID,
			Type:       kind,
			Label:      row[0],
			RawValue:   row[1],
			PageNumber: table.PageNumber,
			Confidence: table.Confidence,
		}
		for _, cell := range row[1:] {
			amount, parsed := ParseAmount(cell)
			if !parsed {
				continue
			}
			value := amount.Value
			item.RawValue = cell
			item.NumericValue = &value
			item.Currency = amount.Currency
			break
		}
		items = append(items, item)
	}
	return items
}

func (e *Extractor) fromText(documentID string, page *domain.Page) []domain.FinancialItem {
	var items []domain.FinancialItem

	for _, match := range amountPattern.FindAllString(page.Text, -1) {
		amount, ok := ParseAmount(match)
		if !ok {
			continue
		}
		value := amount.Value
		items = append(items, domain.FinancialItem{
			ID:           uuid.NewString(),
			DocumentID:   documentID,
			Type:         domain.ItemCurrencyAmount,
			RawValue:     match,
			NumericValue: &value,
			Currency:     amount.Currency,
			PageNumber:   page.Number,
			Confidence:   page.Confidence,
		})
	}

	for _, pattern := range []*regexp.Regexp{dottedDatePattern, monthDatePattern, quarterPattern} {
		for _, match := range pattern.FindAllString(page.Text, -1) {
			items = append(items, domain.FinancialItem{
				ID:         uuid.NewString(),
				DocumentID: documentID,
				Type:       domain.ItemPeriodDate,
				RawValue:   match,
				PageNumber: page.Number,
				Confidence: page.Confidence,
			})
		}
	}
	return items
}

package finance

import (
	"github.com/finsight-io/finsight/internal/core/domain"
)

// Calculator computes per-table column totals and ratio metrics. A column
// total exists only when enough of its populated cells parse as amounts;
// ratios exist only when every operand row is present in the table.
type Calculator struct {
	lexicon          *Lexicon
	summableFraction float64
}

func NewCalculator(lexicon *Lexicon, summableFraction float64) *Calculator {
	if summableFraction <= 0 || summableFraction > 1 {
		summableFraction = 0.6
	}
	return &Calculator{lexicon: lexicon, summableFraction: summableFraction}
}

func (c *Calculator) Compute(table *domain.ExtractedTable) domain.TableMetrics {
	columns := table.ColumnCount()
	metrics := domain.TableMetrics{
		TableID:      table.ID,
		RowCount:     len(table.Rows),
		ColumnCount:  columns,
		ColumnTotals: make([]*float64, columns),
	}

	for col := 0; col < columns; col++ {
		populated, parsed := 0, 0
		sum := 0.0
		for _, row := range table.Rows {
			if col >= len(row) || row[col] == "" {
				continue
			}
			populated++
			if amount, ok := ParseAmount(row[col]); ok {
				parsed++
				sum += amount.Value
			}
		}
		if populated > 0 && float64(parsed) >= c.summableFraction*float64(populated) {
			total := sum
			metrics.ColumnTotals[col] = &total
		}
	}

	metrics.Ratios = c.ratios(table)
	return metrics
}

// ratios reads the first amount of each lexicon-matched row and derives
// the standard ratios whose operands are all present.
func (c *Calculator) ratios(table *domain.ExtractedTable) map[string]float64 {
	values := make(map[domain.ItemType]float64)
	for _, row := range table.Rows {
		if len(row) < 2 {
			continue
		}
		kind, ok := c.lexicon.MatchItem(row[0])
		if !ok {
			continue
		}
		if _, seen := values[kind]; seen {
			continue
		}
		for _, cell := range row[1:] {
			if amount, parsed := ParseAmount(cell); parsed {
				values[kind] = amount.Value
				break
			}
		}
	}

	ratios := make(map[string]float64)
	if assets, ok := values[domain.ItemCurrentAssets]; ok {
		if liabilities, ok := values[domain.ItemCurrentLiabilities]; ok && liabilities != 0 {
			ratios["current_ratio"] = assets / liabilities
		}
	}
	if liabilities, ok := values[domain.ItemTotalLiabilities]; ok {
		if equity, ok := values[domain.ItemEquity]; ok && equity != 0 {
			ratios["debt_to_equity"] = liabilities / equity
		}
	}
	if income, ok := values[domain.ItemNetIncome]; ok {
		if revenue, ok := values[domain.ItemRevenue]; ok && revenue != 0 {
			ratios["net_margin"] = income / revenue
		}
	}
	if len(ratios) == 0 {
		return nil
	}
	return ratios
}

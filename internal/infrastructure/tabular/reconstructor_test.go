package tabular

import (
	"strings"
	"testing"

	"github.com/finsight-io/finsight/internal/core/domain"
)

func token(text string, x0, y0, x1, y1 float64) domain.Token {
	return domain.Token{
		Text:       text,
		Box:        domain.BoundingBox{X0: x0, Y0: y0, X1: x1, Y1: y1},
		Confidence: 1,
	}
}

// threeColumnPage lays out a header row and data rows on a 600x800 page.
func threeColumnPage(number int, header []string, rows [][]string) domain.Page {
	page := domain.Page{DocumentID: "doc-1", Number: number, Width: 600, Height: 800}
	columns := []struct{ x0, x1 float64 }{{50, 180}, {250, 330}, {400, 480}}
	y := 100.0
	emit := func(cells []string) {
		for i, cell := range cells {
			if cell == "" {
				continue
			}
			page.Tokens = append(page.Tokens,
				token(cell, columns[i].x0, y, columns[i].x1, y+12))
		}
		y += 24
	}
	if header != nil {
		emit(header)
	}
	for _, row := range rows {
		emit(row)
	}
	return page
}

func TestReconstructHeaderAndRows(t *testing.T) {
	page := threeColumnPage(1,
		[]string{"Item", "Q1", "Q2"},
		[][]string{
			{"Revenue", "1,200", "1,350"},
			{"Net income", "240", "255"},
			{"Equity", "3,100", "3,180"},
		},
	)

	r := New(0.006, 0.015)
	tables, warnings := r.Reconstruct([]domain.Page{page})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	got := tables[0]
	if got.DocumentID != "doc-1" || got.PageNumber != 1 {
		t.Fatalf("unexpected provenance: %+v", got)
	}
	if len(got.Header) != 3 || got.Header[0] != "Item" || got.Header[2] != "Q2" {
		t.Fatalf("unexpected header: %v", got.Header)
	}
	if len(got.Rows) != 3 {
		t.Fatalf("expected 3 data rows, got %d", len(got.Rows))
	}
	if got.Rows[1][0] != "Net income" || got.Rows[1][1] != "240" {
		t.Fatalf("unexpected row: %v", got.Rows[1])
	}
	if got.Confidence != 1 {
		t.Fatalf("expected confidence 1 for fully clean rows, got %v", got.Confidence)
	}
}

func TestReconstructWithoutHeaderUsesPositionalColumns(t *testing.T) {
	page := threeColumnPage(1, nil, [][]string{
		{"102", "1,200", "1,350"},
		{"118", "240", "255"},
	})

	tables, _ := New(0.006, 0.015).Reconstruct([]domain.Page{page})
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	if len(tables[0].Header) != 0 {
		t.Fatalf("expected no header, got %v", tables[0].Header)
	}
	if tables[0].ColumnCount() != 3 {
		t.Fatalf("expected 3 columns, got %d", tables[0].ColumnCount())
	}
}

func TestReconstructMissingCellLowersConfidence(t *testing.T) {
	page := threeColumnPage(1,
		[]string{"Item", "Q1", "Q2"},
		[][]string{
			{"Revenue", "1,200", "1,350"},
			{"Net income", "240", ""}, // sparse row keeps its slot
			{"Equity", "3,100", "3,180"},
		},
	)

	tables, _ := New(0.006, 0.015).Reconstruct([]domain.Page{page})
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	got := tables[0]
	if got.Rows[1][2] != "" {
		t.Fatalf("expected empty cell preserved, got %q", got.Rows[1][2])
	}
	want := 2.0 / 3.0
	if got.Confidence < want-0.001 || got.Confidence > want+0.001 {
		t.Fatalf("expected confidence %v, got %v", want, got.Confidence)
	}
}

func TestReconstructMergesContinuationAcrossPages(t *testing.T) {
	first := threeColumnPage(1,
		[]string{"Item", "Q1", "Q2"},
		[][]string{
			{"Revenue", "1,200", "1,350"},
			{"Net income", "240", "255"},
		},
	)
	second := threeColumnPage(2,
		[]string{"Item", "Q1", "Q2"}, // repeated header on the next page
		[][]string{
			{"Total assets", "9,400", "9,700"},
			{"Equity", "3,100", "3,180"},
		},
	)

	tables, _ := New(0.006, 0.015).Reconstruct([]domain.Page{first, second})
	if len(tables) != 1 {
		t.Fatalf("expected continuation merge into 1 table, got %d", len(tables))
	}
	got := tables[0]
	if got.PageNumber != 1 {
		t.Fatalf("merged table should keep the first page, got %d", got.PageNumber)
	}
	if len(got.Rows) != 4 {
		t.Fatalf("expected 4 merged rows, got %d: %v", len(got.Rows), got.Rows)
	}
	if got.Rows[3][0] != "Equity" {
		t.Fatalf("unexpected last row: %v", got.Rows[3])
	}
}

func TestContinuationDropsRepeatedHeaderCleanCredit(t *testing.T) {
	first := threeColumnPage(1,
		[]string{"Item", "Q1", "Q2"},
		[][]string{
			{"Revenue", "1,200", "1,350"},
			{"Net income", "240", "255"},
		},
	)
	// Text-heavy continuation: the repeated header stays a data row because
	// the majority vote fails, so the merge must drop both the row and its
	// clean credit.
	second := threeColumnPage(2,
		[]string{"Item", "Q1", "Q2"},
		[][]string{
			{"Notes", "see note", "n/a"},
			{"Basis", "unaudited", "n/a"},
		},
	)

	tables, _ := New(0.006, 0.015).Reconstruct([]domain.Page{first, second})
	if len(tables) != 1 {
		t.Fatalf("expected continuation merge into 1 table, got %d", len(tables))
	}
	got := tables[0]
	if len(got.Rows) != 4 {
		t.Fatalf("expected 4 merged rows, got %d: %v", len(got.Rows), got.Rows)
	}
	if got.Confidence > 1 {
		t.Fatalf("confidence must never exceed 1, got %v", got.Confidence)
	}
	if got.Confidence != 1 {
		t.Fatalf("expected confidence 1 for fully clean merged rows, got %v", got.Confidence)
	}
}

func TestReconstructKeepsDistinctTablesSeparate(t *testing.T) {
	first := threeColumnPage(1,
		[]string{"Item", "Q1", "Q2"},
		[][]string{{"Revenue", "1,200", "1,350"}, {"Net income", "240", "255"}},
	)
	// Different column geometry on the next page: not a continuation.
	second := domain.Page{DocumentID: "doc-1", Number: 2, Width: 600, Height: 800}
	y := 100.0
	for _, row := range [][]string{
		{"Assets", "9,400"},
		{"Liabilities", "6,300"},
	} {
		second.Tokens = append(second.Tokens,
			token(row[0], 40, y, 200, y+12),
			token(row[1], 460, y, 560, y+12))
		y += 24
	}

	tables, _ := New(0.006, 0.015).Reconstruct([]domain.Page{first, second})
	if len(tables) != 2 {
		t.Fatalf("expected 2 separate tables, got %d", len(tables))
	}
	if tables[1].ColumnCount() != 2 {
		t.Fatalf("expected 2 columns on page 2, got %d", tables[1].ColumnCount())
	}
}

func TestReconstructIgnoresProse(t *testing.T) {
	page := domain.Page{DocumentID: "doc-1", Number: 1, Width: 600, Height: 800}
	words := strings.Fields("management discussion of results for the period then ended")
	x, y := 50.0, 120.0
	for _, w := range words {
		// Word gaps below the column-gap tolerance merge into a single span.
		page.Tokens = append(page.Tokens, token(w, x, y, x+60, y+12))
		x += 68
		if x > 480 {
			x = 50
			y += 24
		}
	}

	tables, warnings := New(0.006, 0.015).Reconstruct([]domain.Page{page})
	if len(tables) != 0 {
		t.Fatalf("expected no tables from prose, got %d", len(tables))
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

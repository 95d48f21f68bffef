package tabular

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/finsight-io/finsight/internal/core/domain"
)

// Reconstructor rebuilds tables from positional tokens: rows by vertical
// proximity, columns from the merged union of token x-ranges, header by a
// non-numeric-over-numeric majority vote, and cross-page continuation by
// column-signature match. Geometry only; no engine-specific logic.
type Reconstructor struct {
	rowTolerance float64 // fraction of page height
	columnGap    float64 // fraction of page width
}

// continuation tables must agree on column centers within this fraction of
// the page width.
const signatureTolerance = 0.05

const minTableRows = 2

func New(rowTolerance, columnGap float64) *Reconstructor {
	if rowTolerance <= 0 {
		rowTolerance = 0.006
	}
	if columnGap <= 0 {
		columnGap = 0.015
	}
	return &Reconstructor{rowTolerance: rowTolerance, columnGap: columnGap}
}

// Reconstruct emits tables in page order. Returned warnings describe
// tables dropped for invariant violations; they never fail the caller.
func (r *Reconstructor) Reconstruct(pages []domain.Page) ([]domain.ExtractedTable, []string) {
	var candidates []candidate
	for _, page := range pages {
		candidates = append(candidates, r.reconstructPage(page)...)
	}
	candidates = mergeContinuations(candidates)

	var tables []domain.ExtractedTable
	var warnings []string
	for _, c := range candidates {
		table := c.finish()
		if err := table.ValidateShape(); err != nil {
			warnings = append(warnings,
				fmt.Sprintf("page %d: table dropped: %v", table.PageNumber, err))
			continue
		}
		tables = append(tables, table)
	}
	return tables, warnings
}

type span struct {
	x0, x1 float64
}

func (s span) center() float64 { return (s.x0 + s.x1) / 2 }

type candidate struct {
	documentID string
	pageNumber int
	lastPage   int
	header     []string
	rows       [][]string
	cleanFlags []bool
	clean      int
	signature  []span // column spans normalized by page width
}

func (c *candidate) finish() domain.ExtractedTable {
	confidence := 0.0
	if len(c.rows) > 0 {
		confidence = float64(c.clean) / float64(len(c.rows))
	}
	return domain.ExtractedTable{
		ID:         uuid.NewString(),
		DocumentID: c.documentID,
		PageNumber: c.pageNumber,
		Header:     c.header,
		Rows:       c.rows,
		Confidence: confidence,
		Type:       domain.TableGeneric,
	}
}

func (r *Reconstructor) reconstructPage(page domain.Page) []candidate {
	if len(page.Tokens) == 0 {
		return nil
	}
	width, height := pageExtent(page)
	if width <= 0 || height <= 0 {
		return nil
	}

	rows := clusterRows(page.Tokens, r.rowTolerance*height)

	multi := make([][]domain.Token, 0, len(rows))
	for _, row := range rows {
		if len(row) >= 2 {
			multi = append(multi, row)
		}
	}
	if len(multi) < minTableRows {
		return nil
	}

	columns := mergeColumnSpans(multi, r.columnGap*width)
	if len(columns) < 2 {
		return nil
	}

	type gridRow struct {
		cells     []string
		populated int
		clean     bool
	}
	grid := make([]gridRow, 0, len(rows))
	for _, row := range rows {
		cells, populated, exact := assignCells(row, columns)
		grid = append(grid, gridRow{
			cells:     cells,
			populated: populated,
			clean:     exact && populated == len(columns),
		})
	}

	// Consecutive rows with at least two populated columns form one table.
	var out []candidate
	run := candidate{documentID: page.DocumentID, pageNumber: page.Number, lastPage: page.Number}
	flush := func() {
		if len(run.rows) >= minTableRows {
			run.signature = normalizeSpans(columns, width)
			run.header, run.rows, run.clean = extractHeader(run.rows, run.cleanFlags)
			if len(run.rows) > 0 {
				out = append(out, run)
			}
		}
		run = candidate{documentID: page.DocumentID, pageNumber: page.Number, lastPage: page.Number}
	}
	for _, g := range grid {
		if g.populated < 2 {
			flush()
			continue
		}
		run.rows = append(run.rows, g.cells)
		run.cleanFlags = append(run.cleanFlags, g.clean)
	}
	flush()
	return out
}

func pageExtent(page domain.Page) (width, height float64) {
	width, height = page.Width, page.Height
	for _, t := range page.Tokens {
		if t.Box.X1 > width {
			width = t.Box.X1
		}
		if t.Box.Y1 > height {
			height = t.Box.Y1
		}
	}
	return width, height
}

// clusterRows groups tokens whose vertical centers sit within tolerance of
// the running row mean, top of page first.
func clusterRows(tokens []domain.Token, tolerance float64) [][]domain.Token {
	if tolerance <= 0 {
		tolerance = 1
	}
	sorted := make([]domain.Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Box.CenterY() != sorted[j].Box.CenterY() {
			return sorted[i].Box.CenterY() < sorted[j].Box.CenterY()
		}
		return sorted[i].Box.X0 < sorted[j].Box.X0
	})

	var rows [][]domain.Token
	var current []domain.Token
	var meanY float64
	for _, t := range sorted {
		cy := t.Box.CenterY()
		if current == nil || cy-meanY > tolerance {
			if current != nil {
				rows = append(rows, current)
			}
			current = []domain.Token{t}
			meanY = cy
			continue
		}
		meanY = (meanY*float64(len(current)) + cy) / float64(len(current)+1)
		current = append(current, t)
	}
	if current != nil {
		rows = append(rows, current)
	}

	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].Box.X0 < row[j].Box.X0 })
	}
	return rows
}

// mergeColumnSpans unions token x-ranges across candidate rows; ranges
// closer than gap merge into one column.
func mergeColumnSpans(rows [][]domain.Token, gap float64) []span {
	var spans []span
	for _, row := range rows {
		for _, t := range row {
			spans = append(spans, span{x0: t.Box.X0, x1: t.Box.X1})
		}
	}
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].x0 < spans[j].x0 })

	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.x0 <= last.x1+gap {
			if s.x1 > last.x1 {
				last.x1 = s.x1
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// assignCells places each token into the column it overlaps; tokens in no
// column fall back to the nearest center and mark the row dirty.
func assignCells(row []domain.Token, columns []span) (cells []string, populated int, exact bool) {
	cells = make([]string, len(columns))
	exact = true
	for _, t := range row {
		idx, overlapped := bestColumn(t.Box, columns)
		if !overlapped {
			exact = false
		}
		if cells[idx] != "" {
			cells[idx] += " "
		}
		cells[idx] += t.Text
	}
	for _, c := range cells {
		if c != "" {
			populated++
		}
	}
	return cells, populated, exact
}

func bestColumn(box domain.BoundingBox, columns []span) (int, bool) {
	bestIdx, bestOverlap := 0, 0.0
	for i, col := range columns {
		lo := box.X0
		if col.x0 > lo {
			lo = col.x0
		}
		hi := box.X1
		if col.x1 < hi {
			hi = col.x1
		}
		if hi-lo > bestOverlap {
			bestOverlap = hi - lo
			bestIdx = i
		}
	}
	if bestOverlap > 0 {
		return bestIdx, true
	}

	center := (box.X0 + box.X1) / 2
	bestDist := -1.0
	for i, col := range columns {
		d := center - col.center()
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}
	return bestIdx, false
}

func normalizeSpans(columns []span, width float64) []span {
	out := make([]span, len(columns))
	for i, c := range columns {
		out[i] = span{x0: c.x0 / width, x1: c.x1 / width}
	}
	return out
}

// extractHeader applies the majority vote: the first row is a header only
// if most of its cells are non-numeric while most subsequent cells are
// numeric.
func extractHeader(rows [][]string, cleanFlags []bool) (header []string, data [][]string, clean int) {
	data = rows
	for i, f := range cleanFlags {
		if i < len(rows) && f {
			clean++
		}
	}
	if len(rows) < 2 {
		return nil, data, clean
	}

	first := rows[0]
	firstPopulated, firstNonNumeric := 0, 0
	for _, cell := range first {
		if cell == "" {
			continue
		}
		firstPopulated++
		if !looksNumeric(cell) {
			firstNonNumeric++
		}
	}
	if firstPopulated == 0 || firstNonNumeric*2 <= firstPopulated {
		return nil, data, clean
	}

	restPopulated, restNumeric := 0, 0
	for _, row := range rows[1:] {
		for _, cell := range row {
			if cell == "" {
				continue
			}
			restPopulated++
			if looksNumeric(cell) {
				restNumeric++
			}
		}
	}
	if restPopulated == 0 || restNumeric*2 <= restPopulated {
		return nil, data, clean
	}

	if len(cleanFlags) > 0 && cleanFlags[0] {
		clean--
	}
	return first, rows[1:], clean
}

// looksNumeric is a loose test for header voting only; the numeric grammar
// in the finance package is authoritative for parsing.
func looksNumeric(cell string) bool {
	digits, letters := 0, 0
	for _, r := range cell {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= 0x05D0 && r <= 0x05EA):
			letters++
		}
	}
	return digits > 0 && digits > letters
}

// mergeContinuations joins a table with the first table of the following
// page when their column signatures agree within tolerance.
func mergeContinuations(candidates []candidate) []candidate {
	if len(candidates) < 2 {
		return candidates
	}
	out := make([]candidate, 0, len(candidates))
	out = append(out, candidates[0])
	for _, next := range candidates[1:] {
		last := &out[len(out)-1]
		if isContinuation(last, &next) {
			rows, clean := next.rows, next.clean
			if len(next.header) == 0 && len(rows) > 0 && equalCells(rows[0], last.header) {
				// Repeated header after the page break; drop its row and
				// its clean credit.
				if len(next.cleanFlags) > 0 && next.cleanFlags[0] {
					clean--
				}
				rows = rows[1:]
			}
			last.rows = append(last.rows, rows...)
			last.clean += clean
			last.lastPage = next.lastPage
			continue
		}
		out = append(out, next)
	}
	return out
}

func isContinuation(prev, next *candidate) bool {
	if next.pageNumber != prev.lastPage+1 {
		return false
	}
	if prev.documentID != next.documentID {
		return false
	}
	if len(prev.signature) != len(next.signature) {
		return false
	}
	if len(next.header) > 0 && !equalCells(next.header, prev.header) {
		return false
	}
	for i := range prev.signature {
		d := prev.signature[i].center() - next.signature[i].center()
		if d < 0 {
			d = -d
		}
		if d > signatureTolerance {
			return false
		}
	}
	return true
}

func equalCells(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(strings.TrimSpace(a[i]), strings.TrimSpace(b[i])) {
			return false
		}
	}
	return true
}

package native

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/finsight-io/finsight/internal/core/domain"
)

// Extractor reads the embedded PDF text layer. It is the first engine in
// the fallback order: exact when a text layer exists, empty-handed when
// the document is a pure scan.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) Name() domain.ExtractionEngine { return domain.EngineNativeText }

func (e *Extractor) Extract(ctx context.Context, raw []byte, _ string) ([]domain.Page, error) {
	if !bytes.HasPrefix(raw, []byte("%PDF")) {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "native extract",
			fmt.Errorf("no PDF header"))
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "native extract", err)
	}

	pages := make([]domain.Page, 0, reader.NumPage())
	for num := 1; num <= reader.NumPage(); num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := reader.Page(num)
		page := domain.Page{Number: num, Engine: domain.EngineNativeText}
		if !p.V.IsNull() {
			page.Tokens = assembleTokens(p.Content().Text)
			page.Text = renderText(page.Tokens)
			page.Width, page.Height = extent(page.Tokens)
		}
		page.Confidence = domain.PageConfidence(page.Tokens)
		pages = append(pages, page)
	}
	return pages, nil
}

// assembleTokens merges per-run text fragments into word tokens and flips
// the PDF bottom-left origin to the top-left origin the rest of the
// pipeline expects. Fragments on one baseline closer than a third of the
// font size belong to the same word.
func assembleTokens(frags []pdf.Text) []domain.Token {
	kept := make([]pdf.Text, 0, len(frags))
	maxY := 0.0
	for _, f := range frags {
		if strings.TrimSpace(f.S) == "" {
			continue
		}
		kept = append(kept, f)
		if f.Y > maxY {
			maxY = f.Y
		}
	}
	if len(kept) == 0 {
		return nil
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Y != kept[j].Y {
			return kept[i].Y > kept[j].Y // top of page first
		}
		return kept[i].X < kept[j].X
	})

	tokens := make([]domain.Token, 0, len(kept)/2+1)
	var cur *domain.Token
	var curEndX, curY float64
	for _, f := range kept {
		gapLimit := f.FontSize / 3
		if gapLimit <= 0 {
			gapLimit = 1
		}
		sameWord := cur != nil && f.Y == curY && f.X-curEndX <= gapLimit && f.X >= curEndX-gapLimit

		if sameWord {
			cur.Text += f.S
			cur.Box.X1 = f.X + f.W
			curEndX = f.X + f.W
			continue
		}
		if cur != nil {
			tokens = append(tokens, *cur)
		}
		top := maxY - f.Y
		cur = &domain.Token{
			Text: f.S,
			Box: domain.BoundingBox{
				X0: f.X,
				Y0: top,
				X1: f.X + f.W,
				Y1: top + f.FontSize,
			},
			FontSize:   f.FontSize,
			Confidence: 1,
		}
		curEndX = f.X + f.W
		curY = f.Y
	}
	if cur != nil {
		tokens = append(tokens, *cur)
	}
	return tokens
}

// renderText joins tokens into plain text, one line per baseline, tokens
// left to right. Token order from assembleTokens is already top-down.
func renderText(tokens []domain.Token) string {
	if len(tokens) == 0 {
		return ""
	}
	var b strings.Builder
	lastY := tokens[0].Box.Y0
	for i, t := range tokens {
		if i > 0 {
			if t.Box.Y0 != lastY {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(t.Text)
		lastY = t.Box.Y0
	}
	return b.String()
}

func extent(tokens []domain.Token) (width, height float64) {
	for _, t := range tokens {
		if t.Box.X1 > width {
			width = t.Box.X1
		}
		if t.Box.Y1 > height {
			height = t.Box.Y1
		}
	}
	return width, height
}

package vision

import (
	"testing"

	"github.com/finsight-io/finsight/internal/core/domain"
)

func TestPageFromTranscriptKeepsAlignment(t *testing.T) {
	text := "Item      Q1    Q2\nRevenue  1200  1300"
	page := pageFromTranscript(3, text)

	if page.Number != 3 {
		t.Fatalf("expected page number 3, got %d", page.Number)
	}
	if page.Engine != domain.EngineRemoteVision {
		t.Fatalf("unexpected engine %s", page.Engine)
	}
	if len(page.Tokens) != 6 {
		t.Fatalf("expected 6 tokens, got %d", len(page.Tokens))
	}

	// Q1 on line 0 and 1200 on line 1 should overlap horizontally.
	var q1, v1200 domain.Token
	for _, tok := range page.Tokens {
		switch tok.Text {
		case "Q1":
			q1 = tok
		case "1200":
			v1200 = tok
		}
	}
	if q1.Text == "" || v1200.Text == "" {
		t.Fatalf("missing expected tokens in %+v", page.Tokens)
	}
	if v1200.Box.X1 < q1.Box.X0-1 || v1200.Box.X0 > q1.Box.X1+1 {
		t.Fatalf("column alignment lost: Q1 %+v vs 1200 %+v", q1.Box, v1200.Box)
	}
	if q1.Box.Y0 == v1200.Box.Y0 {
		t.Fatalf("tokens on different lines should have different rows")
	}
}

func TestPageFromTranscriptEmpty(t *testing.T) {
	page := pageFromTranscript(1, "")
	if len(page.Tokens) != 0 {
		t.Fatalf("expected no tokens, got %d", len(page.Tokens))
	}
	if page.Confidence != 0 {
		t.Fatalf("expected zero confidence for empty transcript, got %f", page.Confidence)
	}
}

func TestSplitKeepOffsets(t *testing.T) {
	fields := splitKeepOffsets("  total   1,200 ")
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].text != "total" || fields[0].start != 2 {
		t.Fatalf("unexpected first field %+v", fields[0])
	}
	if fields[1].text != "1,200" || fields[1].start != 10 {
		t.Fatalf("unexpected second field %+v", fields[1])
	}
}

package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusExtracting DocumentStatus = "extracting"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// ExtractionEngine identifies which engine produced a page, in fallback order.
type ExtractionEngine string

const (
	EngineNativeText   ExtractionEngine = "native"
	EngineLocalOCR     ExtractionEngine = "local_ocr"
	EngineRemoteVision ExtractionEngine = "remote_vision"
)

type Document struct {
	ID          string         `json:"id"`
	Fingerprint string         `json:"fingerprint"`
	Filename    string         `json:"filename"`
	Language    string         `json:"language"`
	Status      DocumentStatus `json:"status"`
	Summary     string         `json:"summary,omitempty"`
	Error       string         `json:"error,omitempty"`
	Pages       []Page         `json:"pages,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// BoundingBox is in page coordinates, origin top-left, units as emitted by
// the producing engine. Only relative geometry matters downstream.
type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func (b BoundingBox) Width() float64  { return b.X1 - b.X0 }
func (b BoundingBox) Height() float64 { return b.Y1 - b.Y0 }

func (b BoundingBox) CenterY() float64 { return (b.Y0 + b.Y1) / 2 }

type Token struct {
	Text       string      `json:"text"`
	Box        BoundingBox `json:"box"`
	FontSize   float64     `json:"font_size,omitempty"`
	Confidence float64     `json:"confidence"`
}

type Page struct {
	DocumentID    string           `json:"document_id,omitempty"`
	Number        int              `json:"number"`
	Text          string           `json:"text"`
	Tokens        []Token          `json:"tokens,omitempty"`
	Engine        ExtractionEngine `json:"engine"`
	Confidence    float64          `json:"confidence"`
	LowConfidence bool             `json:"low_confidence,omitempty"`
	Width         float64          `json:"width,omitempty"`
	Height        float64          `json:"height,omitempty"`
}

// PageConfidence is the token-confidence average; a page with no tokens has
// zero confidence and relies on fallback engines.
func PageConfidence(tokens []Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += t.Confidence
	}
	return sum / float64(len(tokens))
}

package raster

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"

	"github.com/finsight-io/finsight/internal/core/domain"
)

// PageImage is one rasterized page ready for an OCR or vision engine.
type PageImage struct {
	Number int
	PNG    []byte
	Width  int
	Height int
}

// Renderer rasterizes document pages through MuPDF. It accepts PDFs and
// plain raster images (a scanned JPEG submits as a one-page document).
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

func (r *Renderer) Render(raw []byte) ([]PageImage, error) {
	doc, err := fitz.NewFromMemory(raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "rasterize", err)
	}
	defer doc.Close()

	out := make([]PageImage, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("rasterize page %d: %w", i+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}

		bounds := img.Bounds()
		out = append(out, PageImage{
			Number: i + 1,
			PNG:    buf.Bytes(),
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "rasterize",
			fmt.Errorf("document has no pages"))
	}
	return out, nil
}

package ocrhttp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/finsight-io/finsight/internal/core/domain"
	"github.com/finsight-io/finsight/internal/infrastructure/extraction/raster"
	"github.com/finsight-io/finsight/internal/infrastructure/resilience"
)

// Extractor is the local OCR engine: it rasterizes pages and sends them to
// a tesseract-style sidecar speaking a small JSON recognize API.
type Extractor struct {
	baseURL    string
	httpClient *http.Client
	renderer   *raster.Renderer
	executor   *resilience.Executor
}

func New(baseURL string, renderer *raster.Renderer, executor *resilience.Executor) *Extractor {
	return &Extractor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 90 * time.Second},
		renderer:   renderer,
		executor:   executor,
	}
}

func (e *Extractor) Name() domain.ExtractionEngine { return domain.EngineLocalOCR }

type recognizeRequest struct {
	ImagePNG string `json:"image_png"`
	Language string `json:"language,omitempty"`
}

type recognizedWord struct {
	Text       string  `json:"text"`
	X0         float64 `json:"x0"`
	Y0         float64 `json:"y0"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	Confidence float64 `json:"confidence"`
}

type recognizeResponse struct {
	Words  []recognizedWord `json:"words"`
	Width  float64          `json:"width"`
	Height float64          `json:"height"`
}

func (e *Extractor) Extract(ctx context.Context, raw []byte, language string) ([]domain.Page, error) {
	images, err := e.renderer.Render(raw)
	if err != nil {
		return nil, err
	}

	pages := make([]domain.Page, 0, len(images))
	for _, img := range images {
		page, err := e.recognizePage(ctx, img, language)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (e *Extractor) recognizePage(ctx context.Context, img raster.PageImage, language string) (domain.Page, error) {
	var resp recognizeResponse
	call := func(callCtx context.Context) error {
		return e.postJSON(callCtx, "/recognize", recognizeRequest{
			ImagePNG: base64.StdEncoding.EncodeToString(img.PNG),
			Language: language,
		}, &resp)
	}

	var err error
	if e.executor != nil {
		err = e.executor.Execute(ctx, "ocr.recognize", call, classifyTransportError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.Page{}, wrapUnavailable("ocr recognize", err)
	}

	page := domain.Page{
		Number: img.Number,
		Engine: domain.EngineLocalOCR,
		Width:  resp.Width,
		Height: resp.Height,
	}
	if page.Width == 0 {
		page.Width = float64(img.Width)
	}
	if page.Height == 0 {
		page.Height = float64(img.Height)
	}

	for _, w := range resp.Words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		page.Tokens = append(page.Tokens, domain.Token{
			Text:       text,
			Box:        domain.BoundingBox{X0: w.X0, Y0: w.Y0, X1: w.X1, Y1: w.Y1},
			Confidence: w.Confidence,
		})
	}
	page.Text = joinWords(page.Tokens)
	page.Confidence = domain.PageConfidence(page.Tokens)
	return page, nil
}

// joinWords renders OCR words top-down; words whose vertical centers are
// within half a word height share a line.
func joinWords(tokens []domain.Token) string {
	if len(tokens) == 0 {
		return ""
	}
	var b strings.Builder
	prev := tokens[0]
	b.WriteString(prev.Text)
	for _, t := range tokens[1:] {
		lineTol := prev.Box.Height() / 2
		if lineTol <= 0 {
			lineTol = 1
		}
		if t.Box.CenterY()-prev.Box.CenterY() > lineTol {
			b.WriteByte('\n')
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
		prev = t
	}
	return b.String()
}

func (e *Extractor) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal recognize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ocr recognize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  "recognize",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(detail)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode recognize response: %w", err)
	}
	return nil
}

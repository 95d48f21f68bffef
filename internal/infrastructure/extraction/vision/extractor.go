package vision

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/finsight-io/finsight/internal/core/domain"
	"github.com/finsight-io/finsight/internal/infrastructure/extraction/raster"
	"github.com/finsight-io/finsight/internal/infrastructure/resilience"
)

const transcribePrompt = `Transcribe every word on this scanned page as plain text.
Preserve the reading order and keep column alignment with spaces so tabular
regions stay visually aligned. Output the text only, no commentary.`

// Extractor is the remote-vision fallback: it sends rasterized pages to a
// Gemini model on Vertex AI and synthesizes positional tokens from the
// alignment-preserving transcription. Geometry is degraded to character
// offsets, which is enough for column clustering over aligned output.
type Extractor struct {
	model    *genai.GenerativeModel
	client   *genai.Client
	renderer *raster.Renderer
	executor *resilience.Executor
}

func New(ctx context.Context, projectID, region, modelName string, renderer *raster.Renderer, executor *resilience.Executor) (*Extractor, error) {
	if projectID == "" {
		return nil, fmt.Errorf("vision: project id is required")
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("vertex client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	return &Extractor{model: model, client: client, renderer: renderer, executor: executor}, nil
}

func (e *Extractor) Close() error { return e.client.Close() }

func (e *Extractor) Name() domain.ExtractionEngine { return domain.EngineRemoteVision }

// remote vision has no per-word confidence; pages carry a flat score above
// the default acceptance threshold so the last fallback is never rejected
// for confidence alone.
const visionTokenConfidence = 0.85

func (e *Extractor) Extract(ctx context.Context, raw []byte, language string) ([]domain.Page, error) {
	images, err := e.renderer.Render(raw)
	if err != nil {
		return nil, err
	}

	pages := make([]domain.Page, 0, len(images))
	for _, img := range images {
		text, err := e.transcribe(ctx, img.PNG, language)
		if err != nil {
			return nil, err
		}
		page := pageFromTranscript(img.Number, text)
		pages = append(pages, page)
	}
	return pages, nil
}

func (e *Extractor) transcribe(ctx context.Context, pngBytes []byte, language string) (string, error) {
	prompt := transcribePrompt
	if language != "" {
		prompt += "\nThe document language is " + language + "."
	}

	var text string
	call := func(callCtx context.Context) error {
		resp, err := e.model.GenerateContent(callCtx, genai.ImageData("png", pngBytes), genai.Text(prompt))
		if err != nil {
			return fmt.Errorf("vertex generate: %w", err)
		}
		text = firstText(resp)
		return nil
	}

	var err error
	if e.executor != nil {
		err = e.executor.Execute(ctx, "vision.transcribe", call, classifyVertexError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapUnavailable("vision transcribe", err)
	}
	return text, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// pageFromTranscript turns one transcribed page into tokens. Each line is a
// row at y = line index; a word's x range is its rune offset span, which
// preserves the column alignment the prompt asked for.
func pageFromTranscript(number int, text string) domain.Page {
	page := domain.Page{
		Number: number,
		Text:   text,
		Engine: domain.EngineRemoteVision,
	}

	lines := strings.Split(text, "\n")
	maxWidth := 0
	for row, line := range lines {
		col := 0
		for _, field := range splitKeepOffsets(line) {
			page.Tokens = append(page.Tokens, domain.Token{
				Text: field.text,
				Box: domain.BoundingBox{
					X0: float64(field.start),
					Y0: float64(row),
					X1: float64(field.start + field.width),
					Y1: float64(row + 1),
				},
				Confidence: visionTokenConfidence,
			})
			col = field.start + field.width
		}
		if col > maxWidth {
			maxWidth = col
		}
	}
	page.Width = float64(maxWidth)
	page.Height = float64(len(lines))
	page.Confidence = domain.PageConfidence(page.Tokens)
	return page
}

type offsetField struct {
	text  string
	start int
	width int
}

func splitKeepOffsets(line string) []offsetField {
	var out []offsetField
	runes := []rune(line)
	i := 0
	for i < len(runes) {
		for i < len(runes) && runes[i] == ' ' {
			i++
		}
		start := i
		for i < len(runes) && runes[i] != ' ' {
			i++
		}
		if i > start {
			out = append(out, offsetField{
				text:  string(runes[start:i]),
				start: start,
				width: i - start,
			})
		}
	}
	return out
}

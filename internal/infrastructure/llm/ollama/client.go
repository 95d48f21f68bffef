// Package ollama implements the language-provider port against a local
// Ollama server. All calls go through /api/generate; classification asks
// for strict JSON, summaries and answers for plain text.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/finsight-io/finsight/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Classify picks one of labels for the text. The model's answer is
// normalized against the label set; anything else is an error so callers
// can fall back to their own heuristics.
func (c *Client) Classify(ctx context.Context, text string, labels []string) (string, float64, error) {
	if len(labels) == 0 {
		return "", 0, fmt.Errorf("classify: no labels")
	}

	raw, err := c.generate(ctx, "classify", buildClassifyPrompt(text, labels), true)
	if err != nil {
		return "", 0, err
	}

	var result struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &result); err != nil {
		return "", 0, fmt.Errorf("parse classify json: %w", err)
	}

	got := strings.ToLower(strings.TrimSpace(result.Label))
	for _, label := range labels {
		if got == strings.ToLower(label) {
			if result.Confidence < 0 || result.Confidence > 1 {
				result.Confidence = 0
			}
			return label, result.Confidence, nil
		}
	}
	return "", 0, fmt.Errorf("classify: label %q not in label set", result.Label)
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	return c.generate(ctx, "summarize", buildSummaryPrompt(text), false)
}

func (c *Client) Answer(ctx context.Context, contextText, question string) (string, error) {
	return c.generate(ctx, "answer", buildAnswerPrompt(contextText, question), false)
}

func (c *Client) generate(ctx context.Context, operation, prompt string, jsonMode bool) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	if jsonMode {
		reqBody["format"] = "json"
	}

	var response struct {
		Response string `json:"response"`
	}
	err := c.executor.Execute(ctx, "ollama_"+operation, func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", reqBody, &response, operation)
	}, classifyOllamaError)
	if err != nil {
		return "", wrapUnavailableIfNeeded(operation, err)
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

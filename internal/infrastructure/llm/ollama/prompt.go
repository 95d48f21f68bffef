package ollama

import (
	"fmt"
	"strings"
)

const maxPromptText = 4000

func clip(text string) string {
	if len(text) > maxPromptText {
		return text[:maxPromptText]
	}
	return text
}

func buildClassifyPrompt(text string, labels []string) string {
	return fmt.Sprintf(`You are a financial document classifier.
Pick exactly one label from: %s.
Return strict JSON object with keys: label (string), confidence (number from 0 to 1).
No markdown, no extra keys.

Text:
%s`, strings.Join(labels, ", "), clip(text))
}

func buildSummaryPrompt(text string) string {
	return `Summarize the following financial document in 2-3 sentences.
Answer in the document's own language. Mention the reporting period and the
headline figures if present. Plain text only.

Document:
` + clip(text)
}

func buildAnswerPrompt(contextText, question string) string {
	return fmt.Sprintf(`Answer the user's question using only the context below.
If the context does not contain the answer, say so directly.
Answer in the language of the question.

Question:
%s

Context:
%s
`, question, contextText)
}

package domain

import "time"

type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionExpired SessionState = "idle-expired"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Reference names a piece of session content that grounded an answer.
type Reference struct {
	DocumentID string `json:"document_id"`
	TableID    string `json:"table_id,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

type Message struct {
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	References []Reference `json:"references,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ChatSession owns an immutable, ordered document attachment list. Order is
// meaningful: attachment recency contributes to retrieval scoring, and
// exact score ties follow attachment order, then page order.
type ChatSession struct {
	ID          string       `json:"id"`
	DocumentIDs []string     `json:"document_ids"`
	Language    string       `json:"language,omitempty"`
	State       SessionState `json:"state"`
	Messages    []Message    `json:"messages"`
	CreatedAt   time.Time    `json:"created_at"`
	LastActive  time.Time    `json:"last_active"`
}

// Passage is a retrievable unit of session content: a page-text chunk or a
// rendered table.
type Passage struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	TableID    string  `json:"table_id,omitempty"`
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Score      float64 `json:"score,omitempty"`
}

type Answer struct {
	Text       string      `json:"answer"`
	References []Reference `json:"references"`
}

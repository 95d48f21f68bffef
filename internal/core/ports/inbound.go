package ports

import (
	"context"

	"github.com/finsight-io/finsight/internal/core/domain"
)

// SubmitReceipt is the handle returned by document submission.
type SubmitReceipt struct {
	DocumentID   string `json:"document_id"`
	JobID        string `json:"job_id"`
	Deduplicated bool   `json:"deduplicated"`
}

// DocumentIngestor is the inbound contract for document submission.
type DocumentIngestor interface {
	Submit(ctx context.Context, raw []byte, filename, languageHint string) (*SubmitReceipt, error)
}

// JobReader exposes job progress and cancellation.
type JobReader interface {
	Status(ctx context.Context, jobID string) (*domain.ProcessingJob, error)
	Cancel(ctx context.Context, jobID string) error
}

// DocumentReader is the read model over finished documents.
type DocumentReader interface {
	Document(ctx context.Context, id string) (*domain.Document, error)
	Tables(ctx context.Context, documentID string) ([]domain.ExtractedTable, error)
	Items(ctx context.Context, documentID string) ([]domain.FinancialItem, error)
}

// MetricsService computes aggregate metrics for one table.
type MetricsService interface {
	TableMetrics(ctx context.Context, tableID string) (*domain.TableMetrics, error)
}

// ChatService is the conversational retrieval surface.
type ChatService interface {
	CreateSession(ctx context.Context, documentIDs []string, language string) (*domain.ChatSession, error)
	Ask(ctx context.Context, sessionID, question string) (*domain.Answer, error)
	History(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// JobProcessor is the inbound contract for asynchronous pipeline execution.
type JobProcessor interface {
	RunJob(ctx context.Context, jobID string) error
}

package ports

import (
	"context"
	"io"

	"github.com/finsight-io/finsight/internal/core/domain"
)

// DocumentRepository persists document state and extracted pages.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetReadyByFingerprint(ctx context.Context, fingerprint string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveLanguage(ctx context.Context, id, language string) error
	SaveSummary(ctx context.Context, id, summary string) error
	SavePages(ctx context.Context, documentID string, pages []domain.Page) error
	ListPages(ctx context.Context, documentID string) ([]domain.Page, error)
}

// JobRepository persists pipeline jobs. Only the stage currently owning a
// job writes to it; readers observe committed rows only.
type JobRepository interface {
	Create(ctx context.Context, job *domain.ProcessingJob) error
	GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error)
	GetByDocumentID(ctx context.Context, documentID string) (*domain.ProcessingJob, error)
	UpdateProgress(ctx context.Context, id string, stage domain.PipelineStage, state domain.JobState, errMessage string) error
	AppendAttempt(ctx context.Context, id string, attempt domain.StageAttempt) error
	RequestCancel(ctx context.Context, id string) error
}

// TableRepository persists reconstructed tables.
type TableRepository interface {
	SaveTables(ctx context.Context, documentID string, tables []domain.ExtractedTable) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.ExtractedTable, error)
	GetByID(ctx context.Context, tableID string) (*domain.ExtractedTable, error)
}

// ItemRepository persists extracted financial items.
type ItemRepository interface {
	SaveItems(ctx context.Context, documentID string, items []domain.FinancialItem) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.FinancialItem, error)
}

// ObjectStorage stores raw document bytes, keyed by content fingerprint.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// JobQueue dispatches job ids from the API to pipeline workers.
type JobQueue interface {
	PublishJob(ctx context.Context, jobID string) error
	SubscribeJobs(ctx context.Context, handler func(context.Context, string) error) error
}

// PageExtractor is one extraction engine variant. The pipeline tries
// variants in a fixed fallback order until one clears the confidence
// threshold.
type PageExtractor interface {
	Name() domain.ExtractionEngine
	Extract(ctx context.Context, raw []byte, language string) ([]domain.Page, error)
}

// TableReconstructor rebuilds tables from positional tokens. Returned
// warnings describe tables dropped for invariant violations.
type TableReconstructor interface {
	Reconstruct(pages []domain.Page) ([]domain.ExtractedTable, []string)
}

// EntityExtractor derives financial items from text and table cells.
type EntityExtractor interface {
	Extract(doc *domain.Document, tables []domain.ExtractedTable) []domain.FinancialItem
}

// MetricsCalculator computes per-table aggregate metrics.
type MetricsCalculator interface {
	Compute(table *domain.ExtractedTable) domain.TableMetrics
}

// Chunker splits page text into retrievable passages.
type Chunker interface {
	Split(text string) []string
}

// LanguageProvider is the external language-capability collaborator. All
// providers are interchangeable; callers must tolerate unavailability.
type LanguageProvider interface {
	Classify(ctx context.Context, text string, labels []string) (string, float64, error)
	Summarize(ctx context.Context, text string) (string, error)
	Answer(ctx context.Context, contextText, question string) (string, error)
}

// SessionStore owns chat sessions for their lifetime, including idle
// expiry. Search only ever sees content attached to the named session.
type SessionStore interface {
	Create(ctx context.Context, session *domain.ChatSession, passages []domain.Passage) error
	Get(ctx context.Context, id string) (*domain.ChatSession, error)
	Search(ctx context.Context, id, query string, limit int) ([]domain.Passage, error)
	AppendMessages(ctx context.Context, id string, messages ...domain.Message) error
}

package usecase

import (
	"context"
	"fmt"

	"github.com/finsight-io/finsight/internal/core/domain"
	"github.com/finsight-io/finsight/internal/core/ports"
)

// ReadUseCase is the read model over documents, tables and items. Tables
// and items exist only once extraction finished, so those reads require a
// ready document.
type ReadUseCase struct {
	docs   ports.DocumentRepository
	tables ports.TableRepository
	items  ports.ItemRepository
}

func NewReadUseCase(docs ports.DocumentRepository, tables ports.TableRepository, items ports.ItemRepository) *ReadUseCase {
	return &ReadUseCase{docs: docs, tables: tables, items: items}
}

// Document reads a finished document with its pages. In-flight documents
// are not readable; failed ones are, so their preserved partials stay
// inspectable.
func (uc *ReadUseCase) Document(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := uc.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == domain.StatusPending || doc.Status == domain.StatusExtracting {
		return nil, domain.WrapError(domain.ErrDocumentNotReady, "read document",
			fmt.Errorf("document %s status is %s", id, doc.Status))
	}
	pages, err := uc.docs.ListPages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	doc.Pages = pages
	return doc, nil
}

func (uc *ReadUseCase) Tables(ctx context.Context, documentID string) ([]domain.ExtractedTable, error) {
	if err := uc.requireReady(ctx, documentID); err != nil {
		return nil, err
	}
	return uc.tables.ListByDocument(ctx, documentID)
}

func (uc *ReadUseCase) Items(ctx context.Context, documentID string) ([]domain.FinancialItem, error) {
	if err := uc.requireReady(ctx, documentID); err != nil {
		return nil, err
	}
	return uc.items.ListByDocument(ctx, documentID)
}

func (uc *ReadUseCase) requireReady(ctx context.Context, documentID string) error {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status != domain.StatusReady {
		return domain.WrapError(domain.ErrDocumentNotReady, "read document",
			fmt.Errorf("document %s status is %s", documentID, doc.Status))
	}
	return nil
}

// JobUseCase exposes job progress and cancellation.
type JobUseCase struct {
	jobs ports.JobRepository
}

func NewJobUseCase(jobs ports.JobRepository) *JobUseCase {
	return &JobUseCase{jobs: jobs}
}

func (uc *JobUseCase) Status(ctx context.Context, jobID string) (*domain.ProcessingJob, error) {
	return uc.jobs.GetByID(ctx, jobID)
}

// Cancel flags a running job; terminal jobs reject the request.
func (uc *JobUseCase) Cancel(ctx context.Context, jobID string) error {
	job, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return domain.WrapError(domain.ErrInvalidInput, "cancel job",
			fmt.Errorf("job %s already %s", jobID, job.State))
	}
	return uc.jobs.RequestCancel(ctx, jobID)
}

// MetricsUseCase computes aggregates for one reconstructed table.
type MetricsUseCase struct {
	tables     ports.TableRepository
	calculator ports.MetricsCalculator
}

func NewMetricsUseCase(tables ports.TableRepository, calculator ports.MetricsCalculator) *MetricsUseCase {
	return &MetricsUseCase{tables: tables, calculator: calculator}
}

func (uc *MetricsUseCase) TableMetrics(ctx context.Context, tableID string) (*domain.TableMetrics, error) {
	table, err := uc.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	metrics := uc.calculator.Compute(table)
	return &metrics, nil
}

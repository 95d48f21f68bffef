package usecase

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finsight-io/finsight/internal/core/domain"
	"github.com/finsight-io/finsight/internal/core/ports"
)

func pipelineFixture(t *testing.T, extractors []*fakeExtractor, provider *fakeProvider) (*PipelineUseCase, *fakeDocRepo, *fakeJobRepo, *fakeTableRepo, *fakeItemRepo) {
	t.Helper()
	docs := newFakeDocRepo()
	jobs := newFakeJobRepo()
	tables := newFakeTableRepo()
	items := newFakeItemRepo()
	storage := newFakeStorage()

	docID, jobID := "doc-1", "job-1"
	_ = storage.Save(context.Background(), "fp-1", bytes.NewReader(pdfBytes("stored")))
	_ = docs.Create(context.Background(), &domain.Document{
		ID: docID, Fingerprint: "fp-1", Filename: "report.pdf", Status: domain.StatusPending,
	})
	_ = jobs.Create(context.Background(), &domain.ProcessingJob{
		ID: jobID, DocumentID: docID, Stage: domain.StageTextExtraction, State: domain.JobPending,
	})

	var pageExtractors []ports.PageExtractor
	for _, e := range extractors {
		pageExtractors = append(pageExtractors, e)
	}
	var languageProvider ports.LanguageProvider
	if provider != nil {
		languageProvider = provider
	}

	uc := NewPipelineUseCase(
		docs, jobs, tables, items, storage,
		pageExtractors,
		&fakeReconstructor{tables: []domain.ExtractedTable{{
			ID: "tbl-1", PageNumber: 1,
			Header: []string{"Item", "2023"},
			Rows:   [][]string{{"Revenue", "1,200"}},
		}}},
		&fakeEntities{items: []domain.FinancialItem{{ID: "item-1", Type: domain.ItemRevenue}}},
		&fakeTagger{tag: domain.TableIncomeStatement},
		languageProvider,
		nil,
		PipelineConfig{StageRetries: 1, StageTimeout: time.Second, PageConfidenceMin: 0.5},
		nil,
	)
	return uc, docs, jobs, tables, items
}

func TestRunJobHappyPath(t *testing.T) {
	native := &fakeExtractor{
		name: domain.EngineNativeText,
		pages: []domain.Page{{
			Number: 1, Text: "Revenue 1,200", Engine: domain.EngineNativeText, Confidence: 1.0,
		}},
	}
	uc, docs, jobs, tables, items := pipelineFixture(t, []*fakeExtractor{native}, nil)

	if err := uc.RunJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("RunJob() error = %v", err)
	}

	doc, _ := docs.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusReady {
		t.Fatalf("expected ready document, got %s (%s)", doc.Status, doc.Error)
	}
	if doc.Language != "en" {
		t.Fatalf("expected detected language en, got %q", doc.Language)
	}

	job, _ := jobs.GetByID(context.Background(), "job-1")
	if job.State != domain.JobReady {
		t.Fatalf("expected ready job, got %s", job.State)
	}
	if len(job.Attempts) == 0 || job.Attempts[0].Engine != domain.EngineNativeText {
		t.Fatalf("missing extraction attempt record: %+v", job.Attempts)
	}

	saved, _ := tables.ListByDocument(context.Background(), "doc-1")
	if len(saved) != 1 || saved[0].Type != domain.TableIncomeStatement {
		t.Fatalf("unexpected tables: %+v", saved)
	}
	savedItems, _ := items.ListByDocument(context.Background(), "doc-1")
	if len(savedItems) != 1 {
		t.Fatalf("unexpected items: %+v", savedItems)
	}
}

func TestRunJobFallsBackToOCR(t *testing.T) {
	native := &fakeExtractor{name: domain.EngineNativeText, err: errors.New("no text layer")}
	ocr := &fakeExtractor{
		name: domain.EngineLocalOCR,
		pages: []domain.Page{{
			Number: 1, Text: "scanned revenue", Engine: domain.EngineLocalOCR, Confidence: 0.8,
		}},
	}
	uc, docs, jobs, _, _ := pipelineFixture(t, []*fakeExtractor{native, ocr}, nil)

	if err := uc.RunJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("RunJob() error = %v", err)
	}
	if native.calls == 0 || ocr.calls == 0 {
		t.Fatalf("expected both engines tried, got native=%d ocr=%d", native.calls, ocr.calls)
	}

	doc, _ := docs.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusReady {
		t.Fatalf("expected ready, got %s", doc.Status)
	}

	job, _ := jobs.GetByID(context.Background(), "job-1")
	var sawNativeFailure bool
	for _, a := range job.Attempts {
		if a.Engine == domain.EngineNativeText && a.Error != "" {
			sawNativeFailure = true
		}
	}
	if !sawNativeFailure {
		t.Fatalf("native failure not recorded: %+v", job.Attempts)
	}
}

func TestRunJobKeepsBestLowConfidenceResult(t *testing.T) {
	ocr := &fakeExtractor{
		name: domain.EngineLocalOCR,
		pages: []domain.Page{{
			Number: 1, Text: "blurry text", Engine: domain.EngineLocalOCR, Confidence: 0.3,
		}},
	}
	uc, docs, _, _, _ := pipelineFixture(t, []*fakeExtractor{ocr}, nil)

	if err := uc.RunJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("RunJob() error = %v", err)
	}

	doc, _ := docs.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusReady {
		t.Fatalf("below-floor pages must still complete, got %s", doc.Status)
	}
	pages, _ := docs.ListPages(context.Background(), "doc-1")
	if len(pages) != 1 || !pages[0].LowConfidence {
		t.Fatalf("expected flagged low-confidence page, got %+v", pages)
	}
}

func TestRunJobFailsWhenAllEnginesFail(t *testing.T) {
	native := &fakeExtractor{name: domain.EngineNativeText, err: errors.New("broken xref")}
	uc, docs, jobs, _, _ := pipelineFixture(t, []*fakeExtractor{native}, nil)

	err := uc.RunJob(context.Background(), "job-1")
	if err == nil {
		t.Fatal("expected pipeline failure")
	}

	doc, _ := docs.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusFailed || doc.Error == "" {
		t.Fatalf("expected failed document with error, got %+v", doc)
	}
	job, _ := jobs.GetByID(context.Background(), "job-1")
	if job.State != domain.JobFailed {
		t.Fatalf("expected failed job, got %s", job.State)
	}
	// Retry budget: initial attempt plus one retry, one engine each.
	if native.calls != 2 {
		t.Fatalf("expected 2 engine calls, got %d", native.calls)
	}
}

func TestRunJobHonorsCancellationBetweenStages(t *testing.T) {
	native := &fakeExtractor{
		name: domain.EngineNativeText,
		pages: []domain.Page{{
			Number: 1, Text: "text", Engine: domain.EngineNativeText, Confidence: 1.0,
		}},
	}
	uc, docs, jobs, _, _ := pipelineFixture(t, []*fakeExtractor{native}, nil)

	// Flag cancellation before the job starts; the first between-stage check
	// must stop the run.
	_ = jobs.RequestCancel(context.Background(), "job-1")

	if err := uc.RunJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("RunJob() error = %v", err)
	}
	job, _ := jobs.GetByID(context.Background(), "job-1")
	if job.State != domain.JobCancelled {
		t.Fatalf("expected cancelled job, got %s", job.State)
	}
	doc, _ := docs.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusFailed {
		t.Fatalf("expected failed document after cancel, got %s", doc.Status)
	}
	if native.calls != 0 {
		t.Fatalf("no stage should run after cancel, got %d calls", native.calls)
	}
}

func TestRunJobIsIdempotentForTerminalJobs(t *testing.T) {
	native := &fakeExtractor{name: domain.EngineNativeText}
	uc, _, jobs, _, _ := pipelineFixture(t, []*fakeExtractor{native}, nil)

	_ = jobs.UpdateProgress(context.Background(), "job-1", domain.StageEntityExtraction, domain.JobReady, "")
	if err := uc.RunJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("redelivery of finished job must be a no-op: %v", err)
	}
	if native.calls != 0 {
		t.Fatalf("terminal job must not re-run, got %d calls", native.calls)
	}
}

func TestRunJobSavesProviderSummary(t *testing.T) {
	native := &fakeExtractor{
		name: domain.EngineNativeText,
		pages: []domain.Page{{
			Number: 1, Text: "Revenue 1,200", Engine: domain.EngineNativeText, Confidence: 1.0,
		}},
	}
	provider := &fakeProvider{classifyLabel: "income_statement", summary: "Q3 revenue grew."}
	uc, docs, _, _, _ := pipelineFixture(t, []*fakeExtractor{native}, provider)

	if err := uc.RunJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("RunJob() error = %v", err)
	}
	doc, _ := docs.GetByID(context.Background(), "doc-1")
	if doc.Summary != "Q3 revenue grew." {
		t.Fatalf("expected provider summary saved, got %q", doc.Summary)
	}
}

func TestRunJobToleratesProviderOutage(t *testing.T) {
	native := &fakeExtractor{
		name: domain.EngineNativeText,
		pages: []domain.Page{{
			Number: 1, Text: "Revenue 1,200", Engine: domain.EngineNativeText, Confidence: 1.0,
		}},
	}
	provider := &fakeProvider{
		classifyErr:  domain.ErrProviderUnavailable,
		summarizeErr: domain.ErrProviderUnavailable,
	}
	uc, docs, _, tables, _ := pipelineFixture(t, []*fakeExtractor{native}, provider)

	if err := uc.RunJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("provider outage must not fail the job: %v", err)
	}
	doc, _ := docs.GetByID(context.Background(), "doc-1")
	if doc.Status != domain.StatusReady || doc.Summary != "" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	// Lexicon tagger fallback still typed the table.
	saved, _ := tables.ListByDocument(context.Background(), "doc-1")
	if len(saved) != 1 || saved[0].Type != domain.TableIncomeStatement {
		t.Fatalf("expected tagger fallback, got %+v", saved)
	}
}

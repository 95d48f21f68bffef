package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/finsight-io/finsight/internal/core/domain"
	"github.com/finsight-io/finsight/internal/core/ports"
)

// TableTagger assigns a table type without an external provider. It is the
// fallback when classification is unavailable.
type TableTagger interface {
	TagTable(table *domain.ExtractedTable) domain.TableType
}

// PipelineObserver receives stage lifecycle events for metrics. All
// methods must be non-blocking.
type PipelineObserver interface {
	StageStarted(stage domain.PipelineStage)
	StageFinished(stage domain.PipelineStage, duration time.Duration, err error)
	EngineFallback(from, to domain.ExtractionEngine)
}

type noopObserver struct{}

func (noopObserver) StageStarted(domain.PipelineStage)                        {}
func (noopObserver) StageFinished(domain.PipelineStage, time.Duration, error) {}
func (noopObserver) EngineFallback(domain.ExtractionEngine, domain.ExtractionEngine) {
}

// PipelineConfig bounds stage execution.
type PipelineConfig struct {
	StageRetries      int
	StageTimeout      time.Duration
	PageConfidenceMin float64
}

func (c PipelineConfig) normalize() PipelineConfig {
	if c.StageRetries < 0 {
		c.StageRetries = 0
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 2 * time.Minute
	}
	if c.PageConfidenceMin <= 0 || c.PageConfidenceMin > 1 {
		c.PageConfidenceMin = 0.5
	}
	return c
}

// PipelineUseCase runs a processing job through its stages: text
// extraction with engine fallback, table reconstruction, then entity
// extraction. Cancellation is honored between stages.
type PipelineUseCase struct {
	docs          ports.DocumentRepository
	jobs          ports.JobRepository
	tables        ports.TableRepository
	items         ports.ItemRepository
	storage       ports.ObjectStorage
	extractors    []ports.PageExtractor
	reconstructor ports.TableReconstructor
	entities      ports.EntityExtractor
	tagger        TableTagger
	provider      ports.LanguageProvider // nil when no provider is configured
	observer      PipelineObserver
	cfg           PipelineConfig
	logger        *slog.Logger
}

func NewPipelineUseCase(
	docs ports.DocumentRepository,
	jobs ports.JobRepository,
	tables ports.TableRepository,
	items ports.ItemRepository,
	storage ports.ObjectStorage,
	extractors []ports.PageExtractor,
	reconstructor ports.TableReconstructor,
	entities ports.EntityExtractor,
	tagger TableTagger,
	provider ports.LanguageProvider,
	observer PipelineObserver,
	cfg PipelineConfig,
	logger *slog.Logger,
) *PipelineUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineUseCase{
		docs:          docs,
		jobs:          jobs,
		tables:        tables,
		items:         items,
		storage:       storage,
		extractors:    extractors,
		reconstructor: reconstructor,
		entities:      entities,
		tagger:        tagger,
		provider:      provider,
		observer:      observer,
		cfg:           cfg.normalize(),
		logger:        logger,
	}
}

func (uc *PipelineUseCase) RunJob(ctx context.Context, jobID string) error {
	job, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	// Queue redelivery of a finished job is a no-op.
	if job.State.Terminal() {
		return nil
	}

	doc, err := uc.docs.GetByID(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	if err := uc.docs.UpdateStatus(ctx, doc.ID, domain.StatusExtracting, ""); err != nil {
		return fmt.Errorf("set status=extracting: %w", err)
	}

	state := &pipelineState{doc: doc}
	for _, stage := range domain.Stages() {
		cancelled, err := uc.cancelRequested(ctx, job.ID)
		if err != nil {
			return err
		}
		if cancelled {
			return uc.markCancelled(ctx, job.ID, doc.ID, stage)
		}

		if err := uc.jobs.UpdateProgress(ctx, job.ID, stage, domain.JobRunning, ""); err != nil {
			return fmt.Errorf("set stage=%s: %w", stage, err)
		}
		if err := uc.runStage(ctx, job.ID, stage, state); err != nil {
			return uc.markFailed(ctx, job.ID, doc.ID, stage, err)
		}
	}

	uc.supplementSummary(ctx, doc.ID, state)

	if err := uc.docs.UpdateStatus(ctx, doc.ID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	if err := uc.jobs.UpdateProgress(ctx, job.ID, domain.StageEntityExtraction, domain.JobReady, ""); err != nil {
		return fmt.Errorf("set state=ready: %w", err)
	}
	return nil
}

type pipelineState struct {
	doc    *domain.Document
	pages  []domain.Page
	tables []domain.ExtractedTable
}

// runStage retries a stage up to the configured budget, recording every
// attempt on the job.
func (uc *PipelineUseCase) runStage(ctx context.Context, jobID string, stage domain.PipelineStage, state *pipelineState) error {
	started := time.Now()
	uc.observer.StageStarted(stage)

	var lastErr error
	for attempt := 1; attempt <= uc.cfg.StageRetries+1; attempt++ {
		stageCtx, cancel := context.WithTimeout(ctx, uc.cfg.StageTimeout)
		err := uc.executeStage(stageCtx, jobID, stage, attempt, state)
		cancel()
		if err == nil {
			uc.observer.StageFinished(stage, time.Since(started), nil)
			return nil
		}
		lastErr = err
		uc.logger.Warn("stage_attempt_failed",
			"job_id", jobID, "stage", string(stage), "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			break
		}
	}

	uc.observer.StageFinished(stage, time.Since(started), lastErr)
	return fmt.Errorf("stage %s: %w", stage, lastErr)
}

func (uc *PipelineUseCase) executeStage(ctx context.Context, jobID string, stage domain.PipelineStage, attempt int, state *pipelineState) error {
	switch stage {
	case domain.StageTextExtraction:
		return uc.extractPages(ctx, jobID, attempt, state)
	case domain.StageTableReconstruction:
		return uc.reconstructTables(ctx, jobID, attempt, state)
	case domain.StageEntityExtraction:
		return uc.extractEntities(ctx, jobID, attempt, state)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// extractPages walks the engine fallback chain. An engine succeeds when it
// yields text at or above the confidence floor; when every engine falls
// short, the best below-floor result is kept with its pages flagged.
func (uc *PipelineUseCase) extractPages(ctx context.Context, jobID string, attempt int, state *pipelineState) error {
	reader, err := uc.storage.Open(ctx, state.doc.Fingerprint)
	if err != nil {
		return fmt.Errorf("open stored document: %w", err)
	}
	raw, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		return fmt.Errorf("read stored document: %w", err)
	}

	var best []domain.Page
	bestConfidence := -1.0
	var prevEngine domain.ExtractionEngine

	for _, engine := range uc.extractors {
		if prevEngine != "" {
			uc.observer.EngineFallback(prevEngine, engine.Name())
		}
		prevEngine = engine.Name()

		record := domain.StageAttempt{
			Stage:     domain.StageTextExtraction,
			Attempt:   attempt,
			Engine:    engine.Name(),
			StartedAt: time.Now().UTC(),
		}

		pages, err := engine.Extract(ctx, raw, state.doc.Language)
		if err != nil {
			record.Error = err.Error()
			uc.appendAttempt(ctx, jobID, record)
			if ctx.Err() != nil {
				return err
			}
			continue
		}

		confidence := meanConfidence(pages)
		if !hasText(pages) {
			record.Error = "no usable text"
			uc.appendAttempt(ctx, jobID, record)
			continue
		}
		if confidence < uc.cfg.PageConfidenceMin {
			record.Warning = fmt.Sprintf("mean confidence %.2f below floor %.2f",
				confidence, uc.cfg.PageConfidenceMin)
			uc.appendAttempt(ctx, jobID, record)
			if confidence > bestConfidence {
				best, bestConfidence = pages, confidence
			}
			continue
		}

		uc.appendAttempt(ctx, jobID, record)
		return uc.persistPages(ctx, state, pages)
	}

	if best != nil {
		return uc.persistPages(ctx, state, best)
	}
	return domain.WrapError(domain.ErrLowConfidence, "extract pages",
		fmt.Errorf("no engine produced usable text"))
}

func (uc *PipelineUseCase) persistPages(ctx context.Context, state *pipelineState, pages []domain.Page) error {
	for i := range pages {
		pages[i].DocumentID = state.doc.ID
		pages[i].LowConfidence = pages[i].Confidence < uc.cfg.PageConfidenceMin
	}

	language := state.doc.Language
	if language == "" {
		language = detectLanguage(pages)
		if err := uc.docs.SaveLanguage(ctx, state.doc.ID, language); err != nil {
			return fmt.Errorf("save language: %w", err)
		}
	}
	state.doc.Language = language

	if err := uc.docs.SavePages(ctx, state.doc.ID, pages); err != nil {
		return fmt.Errorf("save pages: %w", err)
	}
	state.pages = pages
	state.doc.Pages = pages
	return nil
}

// reconstructTables never fails the job on dropped tables: a document
// without tables is still answerable from page text.
func (uc *PipelineUseCase) reconstructTables(ctx context.Context, jobID string, attempt int, state *pipelineState) error {
	record := domain.StageAttempt{
		Stage:     domain.StageTableReconstruction,
		Attempt:   attempt,
		StartedAt: time.Now().UTC(),
	}

	tables, warnings := uc.reconstructor.Reconstruct(state.pages)
	if len(warnings) > 0 {
		record.Warning = strings.Join(warnings, "; ")
	}
	for i := range tables {
		tables[i].DocumentID = state.doc.ID
		tables[i].Type = uc.tagTable(ctx, &tables[i])
	}

	uc.appendAttempt(ctx, jobID, record)
	if err := uc.tables.SaveTables(ctx, state.doc.ID, tables); err != nil {
		return fmt.Errorf("save tables: %w", err)
	}
	state.tables = tables
	return nil
}

// tagTable prefers the provider's classification; any provider trouble
// falls back to the lexicon.
func (uc *PipelineUseCase) tagTable(ctx context.Context, table *domain.ExtractedTable) domain.TableType {
	if uc.provider != nil {
		labels := []string{
			string(domain.TableBalanceSheet),
			string(domain.TableIncomeStatement),
			string(domain.TableGeneric),
		}
		if label, _, err := uc.provider.Classify(ctx, renderTableSample(table), labels); err == nil {
			return domain.TableType(label)
		}
	}
	if uc.tagger != nil {
		return uc.tagger.TagTable(table)
	}
	return domain.TableGeneric
}

func (uc *PipelineUseCase) extractEntities(ctx context.Context, jobID string, attempt int, state *pipelineState) error {
	record := domain.StageAttempt{
		Stage:     domain.StageEntityExtraction,
		Attempt:   attempt,
		StartedAt: time.Now().UTC(),
	}

	items := uc.entities.Extract(state.doc, state.tables)
	uc.appendAttempt(ctx, jobID, record)

	if err := uc.items.SaveItems(ctx, state.doc.ID, items); err != nil {
		return fmt.Errorf("save items: %w", err)
	}
	return nil
}

// supplementSummary is best-effort: a missing provider or a failed call
// never blocks document readiness.
func (uc *PipelineUseCase) supplementSummary(ctx context.Context, documentID string, state *pipelineState) {
	if uc.provider == nil || len(state.pages) == 0 {
		return
	}
	var text strings.Builder
	for _, page := range state.pages {
		if text.Len() > 4000 {
			break
		}
		text.WriteString(page.Text)
		text.WriteByte('\n')
	}

	summary, err := uc.provider.Summarize(ctx, text.String())
	if err != nil {
		uc.logger.Warn("summary_skipped", "document_id", documentID, "error", err)
		return
	}
	if err := uc.docs.SaveSummary(ctx, documentID, summary); err != nil {
		uc.logger.Warn("summary_not_saved", "document_id", documentID, "error", err)
	}
}

func (uc *PipelineUseCase) cancelRequested(ctx context.Context, jobID string) (bool, error) {
	job, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("refresh job: %w", err)
	}
	return job.CancelRequested, nil
}

func (uc *PipelineUseCase) markCancelled(ctx context.Context, jobID, documentID string, stage domain.PipelineStage) error {
	if err := uc.jobs.UpdateProgress(ctx, jobID, stage, domain.JobCancelled, "cancelled before "+string(stage)); err != nil {
		return fmt.Errorf("set state=cancelled: %w", err)
	}
	if err := uc.docs.UpdateStatus(ctx, documentID, domain.StatusFailed, "processing cancelled"); err != nil {
		return fmt.Errorf("set status=failed: %w", err)
	}
	return nil
}

func (uc *PipelineUseCase) markFailed(ctx context.Context, jobID, documentID string, stage domain.PipelineStage, cause error) error {
	if err := uc.jobs.UpdateProgress(ctx, jobID, stage, domain.JobFailed, cause.Error()); err != nil {
		return fmt.Errorf("%w; set state=failed: %v", cause, err)
	}
	if err := uc.docs.UpdateStatus(ctx, documentID, domain.StatusFailed, cause.Error()); err != nil {
		return fmt.Errorf("%w; set status=failed: %v", cause, err)
	}
	return cause
}

func (uc *PipelineUseCase) appendAttempt(ctx context.Context, jobID string, attempt domain.StageAttempt) {
	if err := uc.jobs.AppendAttempt(ctx, jobID, attempt); err != nil {
		uc.logger.Warn("attempt_not_recorded", "job_id", jobID, "error", err)
	}
}

func meanConfidence(pages []domain.Page) float64 {
	if len(pages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pages {
		sum += p.Confidence
	}
	return sum / float64(len(pages))
}

func hasText(pages []domain.Page) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

// detectLanguage is a script heuristic: enough Hebrew letters make the
// document Hebrew, otherwise English.
func detectLanguage(pages []domain.Page) string {
	hebrew, letters := 0, 0
	for _, page := range pages {
		for _, r := range page.Text {
			if !unicode.IsLetter(r) {
				continue
			}
			letters++
			if r >= 0x05D0 && r <= 0x05EA {
				hebrew++
			}
		}
	}
	if letters > 0 && float64(hebrew)/float64(letters) > 0.3 {
		return "he"
	}
	return "en"
}

func renderTableSample(table *domain.ExtractedTable) string {
	var b strings.Builder
	b.WriteString(strings.Join(table.Header, " | "))
	limit := len(table.Rows)
	if limit > 5 {
		limit = 5
	}
	for _, row := range table.Rows[:limit] {
		b.WriteByte('\n')
		b.WriteString(strings.Join(row, " | "))
	}
	return b.String()
}

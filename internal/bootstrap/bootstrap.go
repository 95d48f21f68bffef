package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finsight-io/finsight/internal/config"
	"github.com/finsight-io/finsight/internal/core/domain"
	"github.com/finsight-io/finsight/internal/core/ports"
	"github.com/finsight-io/finsight/internal/core/usecase"
	"github.com/finsight-io/finsight/internal/infrastructure/chunking"
	"github.com/finsight-io/finsight/internal/infrastructure/export"
	"github.com/finsight-io/finsight/internal/infrastructure/extraction/native"
	"github.com/finsight-io/finsight/internal/infrastructure/extraction/ocrhttp"
	"github.com/finsight-io/finsight/internal/infrastructure/extraction/raster"
	"github.com/finsight-io/finsight/internal/infrastructure/extraction/vision"
	"github.com/finsight-io/finsight/internal/infrastructure/finance"
	"github.com/finsight-io/finsight/internal/infrastructure/llm/ollama"
	"github.com/finsight-io/finsight/internal/infrastructure/queue/nats"
	"github.com/finsight-io/finsight/internal/infrastructure/repository/postgres"
	"github.com/finsight-io/finsight/internal/infrastructure/resilience"
	"github.com/finsight-io/finsight/internal/infrastructure/session"
	"github.com/finsight-io/finsight/internal/infrastructure/storage/localfs"
	"github.com/finsight-io/finsight/internal/infrastructure/tabular"
)

// App wires configuration, infrastructure and use cases for both binaries.
// The API serves the inbound ports; the worker drives PipelineUC off the
// job queue.
type App struct {
	Config config.Config

	Queue    *nats.Queue
	Sessions *session.Store

	IngestUC   ports.DocumentIngestor
	PipelineUC ports.JobProcessor
	JobUC      ports.JobReader
	ReadUC     ports.DocumentReader
	MetricsUC  ports.MetricsService
	ChatUC     ports.ChatService

	ExportWorkbook func(tables []domain.ExtractedTable) ([]byte, error)

	closeFn func()
}

// New assembles the application. The observer receives pipeline stage
// events; pass nil when no instrumentation is wanted.
func New(ctx context.Context, cfg config.Config, observer usecase.PipelineObserver, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	docs := postgres.NewDocumentRepository(db)
	jobs := postgres.NewJobRepository(db)
	tables := postgres.NewTableRepository(db)
	items := postgres.NewItemRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init job queue: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	renderer := raster.New()

	extractors := []ports.PageExtractor{native.New()}
	if cfg.OCRServiceURL != "" {
		extractors = append(extractors, ocrhttp.New(cfg.OCRServiceURL, renderer, executor))
	}
	if cfg.VertexProjectID != "" {
		visionExtractor, err := vision.New(ctx, cfg.VertexProjectID, cfg.VertexRegion, cfg.VertexModel, renderer, executor)
		if err != nil {
			return nil, fmt.Errorf("init vision extractor: %w", err)
		}
		extractors = append(extractors, visionExtractor)
	}

	lexicon, err := finance.LoadLexicon()
	if err != nil {
		return nil, fmt.Errorf("load financial lexicon: %w", err)
	}
	entities := finance.NewExtractor(lexicon)
	calculator := finance.NewCalculator(lexicon, cfg.SummableFraction)
	reconstructor := tabular.New(cfg.RowClusterTolerance, cfg.ColumnGapTolerance)

	var provider ports.LanguageProvider
	if cfg.OllamaURL != "" {
		provider = ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, executor)
	}

	sessions := session.NewStore(cfg.SessionIdleTimeout)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	pipelineUC := usecase.NewPipelineUseCase(
		docs, jobs, tables, items, storage,
		extractors, reconstructor, entities, lexicon, provider, observer,
		usecase.PipelineConfig{
			StageRetries:      cfg.StageRetries,
			StageTimeout:      cfg.StageTimeout,
			PageConfidenceMin: cfg.PageConfidenceMin,
		},
		logger,
	)
	chatUC := usecase.NewChatUseCase(docs, tables, sessions, chunker, provider, usecase.ChatConfig{
		TopK:            cfg.SessionTopK,
		ContextMaxChars: cfg.ContextMaxChars,
	})

	parseCell := func(raw string) (float64, bool) {
		amount, ok := finance.ParseAmount(raw)
		return amount.Value, ok
	}

	return &App{
		Config: cfg,

		Queue:    queue,
		Sessions: sessions,

		IngestUC:   usecase.NewIngestUseCase(docs, jobs, storage, queue),
		PipelineUC: pipelineUC,
		JobUC:      usecase.NewJobUseCase(jobs),
		ReadUC:     usecase.NewReadUseCase(docs, tables, items),
		MetricsUC:  usecase.NewMetricsUseCase(tables, calculator),
		ChatUC:     chatUC,

		ExportWorkbook: func(extracted []domain.ExtractedTable) ([]byte, error) {
			return export.Workbook(extracted, parseCell)
		},

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finsight-io/finsight/internal/core/domain"
	"github.com/finsight-io/finsight/internal/core/ports"
)

// Accepted input formats: PDF plus the raster formats MuPDF rasterizes. A
// scanned image submits as a one-page document.
var formatMagic = [][]byte{
	[]byte("%PDF-"),
	{0x89, 'P', 'N', 'G'},
	{0xFF, 0xD8, 0xFF},       // JPEG
	{'I', 'I', 0x2A, 0x00},   // TIFF little-endian
	{'M', 'M', 0x00, 0x2A},   // TIFF big-endian
}

func supportedFormat(raw []byte) bool {
	for _, magic := range formatMagic {
		if bytes.HasPrefix(raw, magic) {
			return true
		}
	}
	return false
}

// IngestUseCase accepts raw documents, deduplicates by content
// fingerprint, and enqueues a processing job for new content.
type IngestUseCase struct {
	docs    ports.DocumentRepository
	jobs    ports.JobRepository
	storage ports.ObjectStorage
	queue   ports.JobQueue
}

func NewIngestUseCase(
	docs ports.DocumentRepository,
	jobs ports.JobRepository,
	storage ports.ObjectStorage,
	queue ports.JobQueue,
) *IngestUseCase {
	return &IngestUseCase{docs: docs, jobs: jobs, storage: storage, queue: queue}
}

func (uc *IngestUseCase) Submit(ctx context.Context, raw []byte, filename, languageHint string) (*ports.SubmitReceipt, error) {
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit document",
			fmt.Errorf("empty document body"))
	}
	if !supportedFormat(raw) {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "submit document",
			fmt.Errorf("%s is neither a pdf nor a supported image", filename))
	}

	sum := sha256.Sum256(raw)
	fingerprint := hex.EncodeToString(sum[:])

	// Resubmitting already-extracted content returns the existing document
	// without running the pipeline again.
	if existing, err := uc.docs.GetReadyByFingerprint(ctx, fingerprint); err == nil {
		receipt := &ports.SubmitReceipt{DocumentID: existing.ID, Deduplicated: true}
		if job, jerr := uc.jobs.GetByDocumentID(ctx, existing.ID); jerr == nil {
			receipt.JobID = job.ID
		}
		return receipt, nil
	} else if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}

	if err := uc.storage.Save(ctx, fingerprint, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		Filename:    filename,
		Language:    languageHint,
		Status:      domain.StatusPending,
		CreatedAt:   now,
	}
	if err := uc.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	job := &domain.ProcessingJob{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Stage:      domain.StageTextExtraction,
		State:      domain.JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := uc.queue.PublishJob(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("publish job: %w", err)
	}

	return &ports.SubmitReceipt{DocumentID: doc.ID, JobID: job.ID}, nil
}

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/finsight-io/finsight/internal/core/domain"
)

func newJobRepoWithMock(t *testing.T) (*JobRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &JobRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestJobGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newJobRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, document_id, stage").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobGetByIDRestoresAttempts(t *testing.T) {
	repo, mock, done := newJobRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	attempts := `[{"stage":"text_extraction","attempt":1,"engine":"native","started_at":"2026-01-05T10:00:00Z","error":"no text layer"}]`
	rows := sqlmock.NewRows([]string{
		"id", "document_id", "stage", "state", "attempts", "cancel_requested", "error_message", "created_at", "updated_at",
	}).AddRow("job-1", "doc-1", "text_extraction", "running", []byte(attempts), false, "", now, now)

	mock.ExpectQuery("SELECT id, document_id, stage").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(job.Attempts) != 1 || job.Attempts[0].Engine != domain.EngineNativeText {
		t.Fatalf("unexpected attempts: %+v", job.Attempts)
	}
	if job.Attempts[0].Error != "no text layer" {
		t.Fatalf("unexpected attempt error: %+v", job.Attempts[0])
	}
}

func TestRequestCancelRejectsTerminalJob(t *testing.T) {
	repo, mock, done := newJobRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", sqlmock.AnyArg(), string(domain.JobPending), string(domain.JobRunning)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RequestCancel(context.Background(), "job-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for terminal job, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendAttemptAppendsJSONB(t *testing.T) {
	repo, mock, done := newJobRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendAttempt(context.Background(), "job-1", domain.StageAttempt{
		Stage:   domain.StageTextExtraction,
		Attempt: 2,
		Engine:  domain.EngineLocalOCR,
	})
	if err != nil {
		t.Fatalf("AppendAttempt() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

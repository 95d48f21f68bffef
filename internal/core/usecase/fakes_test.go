package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/finsight-io/finsight/internal/core/domain"
	"github.com/finsight-io/finsight/internal/core/ports"
)

type fakeDocRepo struct {
	mu    sync.Mutex
	docs  map[string]*domain.Document
	pages map[string][]domain.Page

	readyByFingerprint map[string]*domain.Document
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{
		docs:               make(map[string]*domain.Document),
		pages:              make(map[string][]domain.Page),
		readyByFingerprint: make(map[string]*domain.Document),
	}
}

func (f *fakeDocRepo) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *doc
	f.docs[doc.ID] = &copied
	return nil
}

func (f *fakeDocRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("document %s", id))
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocRepo) GetReadyByFingerprint(_ context.Context, fingerprint string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.readyByFingerprint[fingerprint]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("fingerprint %s", fingerprint))
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocRepo) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document", fmt.Errorf("document %s", id))
	}
	doc.Status = status
	doc.Error = errMessage
	return nil
}

func (f *fakeDocRepo) SaveLanguage(_ context.Context, id, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok {
		doc.Language = language
	}
	return nil
}

func (f *fakeDocRepo) SaveSummary(_ context.Context, id, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok {
		doc.Summary = summary
	}
	return nil
}

func (f *fakeDocRepo) SavePages(_ context.Context, documentID string, pages []domain.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[documentID] = append([]domain.Page(nil), pages...)
	return nil
}

func (f *fakeDocRepo) ListPages(_ context.Context, documentID string) ([]domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Page(nil), f.pages[documentID]...), nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.ProcessingJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*domain.ProcessingJob)}
}

func (f *fakeJobRepo) Create(_ context.Context, job *domain.ProcessingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobRepo) GetByID(_ context.Context, id string) (*domain.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "get job", fmt.Errorf("job %s", id))
	}
	copied := *job
	copied.Attempts = append([]domain.StageAttempt(nil), job.Attempts...)
	return &copied, nil
}

func (f *fakeJobRepo) GetByDocumentID(_ context.Context, documentID string) (*domain.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.DocumentID == documentID {
			copied := *job
			return &copied, nil
		}
	}
	return nil, domain.WrapError(domain.ErrJobNotFound, "get job", fmt.Errorf("document %s", documentID))
}

func (f *fakeJobRepo) UpdateProgress(_ context.Context, id string, stage domain.PipelineStage, state domain.JobState, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "update job", fmt.Errorf("job %s", id))
	}
	job.Stage = stage
	job.State = state
	job.Error = errMessage
	return nil
}

func (f *fakeJobRepo) AppendAttempt(_ context.Context, id string, attempt domain.StageAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "update job", fmt.Errorf("job %s", id))
	}
	job.Attempts = append(job.Attempts, attempt)
	return nil
}

func (f *fakeJobRepo) RequestCancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "update job", fmt.Errorf("job %s", id))
	}
	if job.State.Terminal() {
		return domain.WrapError(domain.ErrInvalidInput, "request job cancel", fmt.Errorf("job %s terminal", id))
	}
	job.CancelRequested = true
	return nil
}

type fakeTableRepo struct {
	mu     sync.Mutex
	tables map[string][]domain.ExtractedTable
}

func newFakeTableRepo() *fakeTableRepo {
	return &fakeTableRepo{tables: make(map[string][]domain.ExtractedTable)}
}

func (f *fakeTableRepo) SaveTables(_ context.Context, documentID string, tables []domain.ExtractedTable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[documentID] = append([]domain.ExtractedTable(nil), tables...)
	return nil
}

func (f *fakeTableRepo) ListByDocument(_ context.Context, documentID string) ([]domain.ExtractedTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ExtractedTable(nil), f.tables[documentID]...), nil
}

func (f *fakeTableRepo) GetByID(_ context.Context, tableID string) (*domain.ExtractedTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tables := range f.tables {
		for i := range tables {
			if tables[i].ID == tableID {
				copied := tables[i]
				return &copied, nil
			}
		}
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "get table", fmt.Errorf("table %s", tableID))
}

type fakeItemRepo struct {
	mu    sync.Mutex
	items map[string][]domain.FinancialItem
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[string][]domain.FinancialItem)}
}

func (f *fakeItemRepo) SaveItems(_ context.Context, documentID string, items []domain.FinancialItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[documentID] = append([]domain.FinancialItem(nil), items...)
	return nil
}

func (f *fakeItemRepo) ListByDocument(_ context.Context, documentID string) ([]domain.FinancialItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.FinancialItem(nil), f.items[documentID]...), nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return nil
}

func (f *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published []string
}

func (f *fakeQueue) PublishJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, jobID)
	return nil
}

func (f *fakeQueue) SubscribeJobs(context.Context, func(context.Context, string) error) error {
	return nil
}

type fakeExtractor struct {
	name  domain.ExtractionEngine
	pages []domain.Page
	err   error
	calls int
}

func (f *fakeExtractor) Name() domain.ExtractionEngine { return f.name }

func (f *fakeExtractor) Extract(context.Context, []byte, string) ([]domain.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Page(nil), f.pages...), nil
}

type fakeReconstructor struct {
	tables   []domain.ExtractedTable
	warnings []string
}

func (f *fakeReconstructor) Reconstruct([]domain.Page) ([]domain.ExtractedTable, []string) {
	return append([]domain.ExtractedTable(nil), f.tables...), f.warnings
}

type fakeEntities struct {
	items []domain.FinancialItem
}

func (f *fakeEntities) Extract(*domain.Document, []domain.ExtractedTable) []domain.FinancialItem {
	return append([]domain.FinancialItem(nil), f.items...)
}

type fakeTagger struct {
	tag domain.TableType
}

func (f *fakeTagger) TagTable(*domain.ExtractedTable) domain.TableType {
	if f.tag == "" {
		return domain.TableGeneric
	}
	return f.tag
}

type fakeProvider struct {
	classifyLabel string
	classifyErr   error
	summary       string
	summarizeErr  error
	answer        string
	answerErr     error

	lastContext  string
	lastQuestion string
}

func (f *fakeProvider) Classify(_ context.Context, _ string, labels []string) (string, float64, error) {
	if f.classifyErr != nil {
		return "", 0, f.classifyErr
	}
	if f.classifyLabel != "" {
		return f.classifyLabel, 0.9, nil
	}
	return labels[len(labels)-1], 0.5, nil
}

func (f *fakeProvider) Summarize(context.Context, string) (string, error) {
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	return f.summary, nil
}

func (f *fakeProvider) Answer(_ context.Context, contextText, question string) (string, error) {
	f.lastContext = contextText
	f.lastQuestion = question
	if f.answerErr != nil {
		return "", f.answerErr
	}
	return f.answer, nil
}

type fakeSessionStore struct {
	mu        sync.Mutex
	sessions  map[string]*domain.ChatSession
	passages  map[string][]domain.Passage
	searchHit map[string][]domain.Passage
	expired   map[string]bool
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions:  make(map[string]*domain.ChatSession),
		passages:  make(map[string][]domain.Passage),
		searchHit: make(map[string][]domain.Passage),
		expired:   make(map[string]bool),
	}
}

func (f *fakeSessionStore) Create(_ context.Context, session *domain.ChatSession, passages []domain.Passage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *session
	f.sessions[session.ID] = &copied
	f.passages[session.ID] = append([]domain.Passage(nil), passages...)
	return nil
}

func (f *fakeSessionStore) Get(_ context.Context, id string) (*domain.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired[id] {
		return nil, domain.WrapError(domain.ErrSessionExpired, "get session", fmt.Errorf("session %s", id))
	}
	session, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("session %s", id))
	}
	copied := *session
	copied.Messages = append([]domain.Message(nil), session.Messages...)
	return &copied, nil
}

func (f *fakeSessionStore) Search(_ context.Context, id, _ string, limit int) ([]domain.Passage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired[id] {
		return nil, domain.WrapError(domain.ErrSessionExpired, "search session", fmt.Errorf("session %s", id))
	}
	hits := f.searchHit[id]
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return append([]domain.Passage(nil), hits...), nil
}

func (f *fakeSessionStore) AppendMessages(_ context.Context, id string, messages ...domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "append session messages", fmt.Errorf("session %s", id))
	}
	session.Messages = append(session.Messages, messages...)
	return nil
}

type fakeChunker struct{}

func (fakeChunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return []string{text}
}

var _ ports.DocumentRepository = (*fakeDocRepo)(nil)
var _ ports.JobRepository = (*fakeJobRepo)(nil)
var _ ports.TableRepository = (*fakeTableRepo)(nil)
var _ ports.ItemRepository = (*fakeItemRepo)(nil)
var _ ports.ObjectStorage = (*fakeStorage)(nil)
var _ ports.JobQueue = (*fakeQueue)(nil)
var _ ports.PageExtractor = (*fakeExtractor)(nil)
var _ ports.TableReconstructor = (*fakeReconstructor)(nil)
var _ ports.EntityExtractor = (*fakeEntities)(nil)
var _ ports.LanguageProvider = (*fakeProvider)(nil)
var _ ports.SessionStore = (*fakeSessionStore)(nil)
var _ ports.Chunker = (fakeChunker{})

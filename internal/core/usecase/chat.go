package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsight-io/finsight/internal/core/domain"
	"github.com/finsight-io/finsight/internal/core/ports"
)

// ChatConfig bounds retrieval and context assembly.
type ChatConfig struct {
	TopK            int
	ContextMaxChars int
}

func (c ChatConfig) normalize() ChatConfig {
	if c.TopK <= 0 {
		c.TopK = 6
	}
	if c.ContextMaxChars <= 0 {
		c.ContextMaxChars = 6000
	}
	return c
}

// ChatUseCase answers questions strictly from the session's attached
// documents. Asks within one session are serialized; different sessions
// proceed in parallel.
type ChatUseCase struct {
	docs     ports.DocumentRepository
	tables   ports.TableRepository
	store    ports.SessionStore
	chunker  ports.Chunker
	provider ports.LanguageProvider // nil when no provider is configured
	cfg      ChatConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewChatUseCase(
	docs ports.DocumentRepository,
	tables ports.TableRepository,
	store ports.SessionStore,
	chunker ports.Chunker,
	provider ports.LanguageProvider,
	cfg ChatConfig,
) *ChatUseCase {
	return &ChatUseCase{
		docs:     docs,
		tables:   tables,
		store:    store,
		chunker:  chunker,
		provider: provider,
		cfg:      cfg.normalize(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// CreateSession snapshots the attached documents into session-scoped
// passages. Every document must be fully extracted.
func (uc *ChatUseCase) CreateSession(ctx context.Context, documentIDs []string, language string) (*domain.ChatSession, error) {
	if len(documentIDs) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create session",
			fmt.Errorf("at least one document id is required"))
	}

	var passages []domain.Passage
	for _, id := range documentIDs {
		doc, err := uc.docs.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc.Status != domain.StatusReady {
			return nil, domain.WrapError(domain.ErrDocumentNotReady, "create session",
				fmt.Errorf("document %s status is %s", id, doc.Status))
		}
		if language == "" {
			language = doc.Language
		}

		pages, err := uc.docs.ListPages(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
		for _, page := range pages {
			for _, chunk := range uc.chunker.Split(page.Text) {
				passages = append(passages, domain.Passage{
					ID:         uuid.NewString(),
					DocumentID: id,
					PageNumber: page.Number,
					Text:       chunk,
				})
			}
		}

		tables, err := uc.tables.ListByDocument(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		for i := range tables {
			passages = append(passages, domain.Passage{
				ID:         uuid.NewString(),
				DocumentID: id,
				TableID:    tables[i].ID,
				PageNumber: tables[i].PageNumber,
				Text:       renderTablePassage(&tables[i]),
			})
		}
	}

	session := &domain.ChatSession{
		ID:          uuid.NewString(),
		DocumentIDs: documentIDs,
		Language:    language,
		State:       domain.SessionActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := uc.store.Create(ctx, session, passages); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (uc *ChatUseCase) Ask(ctx context.Context, sessionID, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask",
			fmt.Errorf("empty question"))
	}

	lock := uc.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	passages, err := uc.store.Search(ctx, sessionID, question, uc.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("search session: %w", err)
	}

	answer := uc.answerFrom(ctx, session, question, passages)

	now := time.Now().UTC()
	err = uc.store.AppendMessages(ctx, sessionID,
		domain.Message{Role: domain.RoleUser, Content: question, CreatedAt: now},
		domain.Message{Role: domain.RoleAssistant, Content: answer.Text, References: answer.References, CreatedAt: now},
	)
	if err != nil {
		return nil, fmt.Errorf("append messages: %w", err)
	}
	return answer, nil
}

// answerFrom enforces the grounding boundary: no session content means a
// refusal, and a provider outage degrades to quoting the best passage.
func (uc *ChatUseCase) answerFrom(ctx context.Context, session *domain.ChatSession, question string, passages []domain.Passage) *domain.Answer {
	if len(passages) == 0 {
		return &domain.Answer{Text: noAnswerText(session.Language)}
	}

	contextText, used := buildContext(passages, uc.cfg.ContextMaxChars)
	references := referencesFor(used)

	if uc.provider != nil {
		if text, err := uc.provider.Answer(ctx, contextText, question); err == nil {
			return &domain.Answer{Text: text, References: references}
		}
	}

	// Extractive fallback keeps answers grounded when the provider is down.
	top := used[0]
	return &domain.Answer{
		Text:       extractiveText(session.Language, top.Text),
		References: references[:1],
	}
}

func (uc *ChatUseCase) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Messages, nil
}

func (uc *ChatUseCase) sessionLock(sessionID string) *sync.Mutex {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	lock, ok := uc.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		uc.locks[sessionID] = lock
	}
	return lock
}

// buildContext packs the highest-scored passages into a bounded prompt
// context, keeping provenance markers per block.
func buildContext(passages []domain.Passage, maxChars int) (string, []domain.Passage) {
	var b strings.Builder
	var used []domain.Passage
	for i, p := range passages {
		block := fmt.Sprintf("[%d] doc=%s page=%d\n%s\n\n", i+1, p.DocumentID, p.PageNumber, p.Text)
		if b.Len() > 0 && b.Len()+len(block) > maxChars {
			break
		}
		b.WriteString(block)
		used = append(used, p)
	}
	return b.String(), used
}

func referencesFor(passages []domain.Passage) []domain.Reference {
	var refs []domain.Reference
	seen := make(map[domain.Reference]struct{})
	for _, p := range passages {
		ref := domain.Reference{DocumentID: p.DocumentID, TableID: p.TableID, PageNumber: p.PageNumber}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

func noAnswerText(language string) string {
	if language == "he" {
		return "לא נמצא מידע רלוונטי במסמכים המצורפים."
	}
	return "No relevant information was found in the attached documents."
}

func extractiveText(language, passage string) string {
	passage = strings.TrimSpace(passage)
	if runes := []rune(passage); len(runes) > 600 {
		passage = string(runes[:600])
	}
	if language == "he" {
		return "מתוך המסמכים המצורפים: " + passage
	}
	return "From the attached documents: " + passage
}

func renderTablePassage(table *domain.ExtractedTable) string {
	var b strings.Builder
	if len(table.Header) > 0 {
		b.WriteString(strings.Join(table.Header, " | "))
		b.WriteByte('\n')
	}
	for _, row := range table.Rows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

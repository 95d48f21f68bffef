// Package session keeps chat sessions in process memory. Each session owns
// a private mem-only bleve index over the passages attached at creation
// time, so retrieval can never cross a session boundary.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/finsight-io/finsight/internal/core/domain"
)

type entry struct {
	session  domain.ChatSession
	passages map[string]domain.Passage
	docOrder map[string]int // document id -> attachment position
	index    bleve.Index
	expired  bool
}

type Store struct {
	mu          sync.Mutex
	sessions    map[string]*entry
	idleTimeout time.Duration
	now         func() time.Time
}

func NewStore(idleTimeout time.Duration) *Store {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Store{
		sessions:    make(map[string]*entry),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Run sweeps idle sessions until ctx is done. Expiry is also enforced
// lazily on access, so the sweep only bounds memory held by dead sessions.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.sessions {
		s.expireIfIdle(e)
	}
}

func (s *Store) Create(_ context.Context, session *domain.ChatSession, passages []domain.Passage) error {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "create session index", err)
	}

	e := &entry{
		session:  *session,
		passages: make(map[string]domain.Passage, len(passages)),
		docOrder: make(map[string]int, len(session.DocumentIDs)),
		index:    index,
	}
	for i, id := range session.DocumentIDs {
		e.docOrder[id] = i
	}
	for _, p := range passages {
		e.passages[p.ID] = p
		if err := index.Index(p.ID, map[string]any{"text": p.Text}); err != nil {
			_ = index.Close()
			return domain.WrapError(domain.ErrInvalidInput, "index session passage", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		_ = index.Close()
		return domain.WrapError(domain.ErrInvalidInput, "create session",
			fmt.Errorf("session %s already exists", session.ID))
	}
	e.session.LastActive = s.now()
	s.sessions[session.ID] = e
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(id, "get session")
	if err != nil {
		return nil, err
	}
	e.session.LastActive = s.now()
	copied := e.session
	copied.Messages = append([]domain.Message(nil), e.session.Messages...)
	return &copied, nil
}

// Search blends full-text score with plain token overlap, with a small
// bonus for passages from later-attached documents. Ties resolve by
// attachment order, then page order.
func (s *Store) Search(_ context.Context, id, query string, limit int) ([]domain.Passage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(id, "search session")
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	textScores := make(map[string]float64)
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), limit*4, 0, false)
	if res, serr := e.index.Search(req); serr == nil {
		var max float64
		for _, hit := range res.Hits {
			if hit.Score > max {
				max = hit.Score
			}
		}
		for _, hit := range res.Hits {
			if max > 0 {
				textScores[hit.ID] = hit.Score / max
			}
		}
	}

	queryTokens := tokenize(query)
	type scored struct {
		passage domain.Passage
		score   float64
	}
	var candidates []scored
	docCount := len(e.docOrder)
	for pid, p := range e.passages {
		overlap := tokenOverlap(queryTokens, tokenize(p.Text))
		score := 0.7*textScores[pid] + 0.25*overlap
		if docCount > 1 {
			score += 0.05 * float64(e.docOrder[p.DocumentID]) / float64(docCount-1)
		}
		if score <= 0 {
			continue
		}
		p.Score = score
		candidates = append(candidates, scored{passage: p, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		// Recency already contributes to the score; ties follow the
		// attachment order, then page order.
		ao, bo := e.docOrder[a.passage.DocumentID], e.docOrder[b.passage.DocumentID]
		if ao != bo {
			return ao < bo
		}
		return a.passage.PageNumber < b.passage.PageNumber
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]domain.Passage, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.passage)
	}
	e.session.LastActive = s.now()
	return out, nil
}

func (s *Store) AppendMessages(_ context.Context, id string, messages ...domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(id, "append session messages")
	if err != nil {
		return err
	}
	e.session.Messages = append(e.session.Messages, messages...)
	e.session.LastActive = s.now()
	return nil
}

// live enforces idle expiry before handing out an entry. Expired sessions
// stay as tombstones so callers see an expiry, not an unknown id.
func (s *Store) live(id, op string) (*entry, error) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, op,
			fmt.Errorf("session %s", id))
	}
	s.expireIfIdle(e)
	if e.expired {
		return nil, domain.WrapError(domain.ErrSessionExpired, op,
			fmt.Errorf("session %s idle past %s", id, s.idleTimeout))
	}
	return e, nil
}

func (s *Store) expireIfIdle(e *entry) {
	if e.expired {
		return
	}
	if s.now().Sub(e.session.LastActive) < s.idleTimeout {
		return
	}
	e.expired = true
	e.session.State = domain.SessionExpired
	e.passages = nil
	if e.index != nil {
		_ = e.index.Close()
		e.index = nil
	}
}

func tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?()\"'")
		if len(f) > 1 {
			out[f] = struct{}{}
		}
	}
	return out
}

func tokenOverlap(query, text map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if _, ok := text[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

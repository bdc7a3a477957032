package biz

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/support-bridge/internal/model"
	"github.com/kart-io/support-bridge/internal/supportbridge/store"
	"github.com/kart-io/support-bridge/pkg/llm"
)

// memStore is an in-memory SectionStore for pipeline tests.
type memStore struct {
	mu       sync.Mutex
	articles map[int64]*model.Article
	sections map[string]model.Section
	nextID   uint
}

func newMemStore() *memStore {
	return &memStore{
		articles: make(map[int64]*model.Article),
		sections: make(map[string]model.Section),
	}
}

func (s *memStore) UpsertArticle(_ context.Context, article *model.Article) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.articles[article.ID]
	if ok && existing.UpdatedAt >= article.UpdatedAt {
		return false, nil
	}
	cp := *article
	s.articles[article.ID] = &cp
	return true, nil
}

func (s *memStore) GetArticle(_ context.Context, id int64) (*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.articles[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) SectionsByArticle(_ context.Context, articleID int64) ([]model.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Section
	for _, sec := range s.sections {
		if sec.ArticleID == articleID {
			out = append(out, sec)
		}
	}
	return out, nil
}

func (s *memStore) SectionsByChecksums(_ context.Context, checksums []string) ([]model.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Section
	for _, c := range checksums {
		if sec, ok := s.sections[c]; ok {
			out = append(out, sec)
		}
	}
	return out, nil
}

func (s *memStore) CreateSections(_ context.Context, sections []model.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range sections {
		if _, ok := s.sections[sec.Checksum]; ok {
			return fmt.Errorf("duplicate checksum %s", sec.Checksum)
		}
		s.nextID++
		sec.ID = s.nextID
		s.sections[sec.Checksum] = sec
	}
	return nil
}

func (s *memStore) DeleteSections(_ context.Context, checksums []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range checksums {
		delete(s.sections, c)
	}
	return nil
}

func (s *memStore) AllChecksums(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sections))
	for c := range s.sections {
		out = append(out, c)
	}
	return out, nil
}

func (s *memStore) CountSections(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.sections)), nil
}

func (s *memStore) Transaction(_ context.Context, fn func(tx store.SectionStore) error) error {
	return fn(s)
}

var _ store.SectionStore = (*memStore)(nil)

// memIndex is an in-memory VectorIndex. Query returns the scripted ranking
// when set, otherwise every key in insertion order.
type memIndex struct {
	mu      sync.Mutex
	entries map[string]store.VectorEntry
	order   []string
	ranking []string
}

func newMemIndex() *memIndex {
	return &memIndex{entries: make(map[string]store.VectorEntry)}
}

func (m *memIndex) Ensure(context.Context) error { return nil }

func (m *memIndex) Upsert(_ context.Context, entries []store.VectorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if _, ok := m.entries[e.Checksum]; !ok {
			m.order = append(m.order, e.Checksum)
		}
		m.entries[e.Checksum] = e
	}
	return nil
}

func (m *memIndex) Query(_ context.Context, _ []float32, topK int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ranked := m.ranking
	if ranked == nil {
		for _, c := range m.order {
			if _, ok := m.entries[c]; ok {
				ranked = append(ranked, c)
			}
		}
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return append([]string(nil), ranked...), nil
}

func (m *memIndex) HasKeys(_ context.Context, checksums []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(checksums))
	for _, c := range checksums {
		_, ok := m.entries[c]
		out[c] = ok
	}
	return out, nil
}

func (m *memIndex) Delete(_ context.Context, checksums []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range checksums {
		delete(m.entries, c)
	}
	return nil
}

func (m *memIndex) ListKeys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.order {
		if _, ok := m.entries[c]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memIndex) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries)), nil
}

var _ store.VectorIndex = (*memIndex)(nil)

// stubEmbedder returns a deterministic vector per text and counts calls.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.fail
	e.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *stubEmbedder) Name() string { return "stub" }

var _ llm.EmbeddingProvider = (*stubEmbedder)(nil)

// chatTurn is one scripted chat provider response.
type chatTurn struct {
	reply *llm.Message
	err   error
}

// stubChat replays scripted turns and records every request it sees.
type stubChat struct {
	mu       sync.Mutex
	turns    []chatTurn
	requests [][]llm.Message
	model    string
}

func (c *stubChat) ChatComplete(_ context.Context, messages []llm.Message, _ []llm.Function) (*llm.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, append([]llm.Message(nil), messages...))
	if len(c.turns) == 0 {
		return &llm.Message{Role: llm.RoleAssistant, Content: "ok"}, nil
	}
	turn := c.turns[0]
	c.turns = c.turns[1:]
	if turn.err != nil {
		return nil, turn.err
	}
	return turn.reply, nil
}

func (c *stubChat) Model() string {
	if c.model != "" {
		return c.model
	}
	return "gpt-4"
}

func (c *stubChat) Name() string { return "stub" }

var _ llm.ChatProvider = (*stubChat)(nil)

func assistant(content string) *llm.Message {
	return &llm.Message{Role: llm.RoleAssistant, Content: content}
}

// sentMessage records one outgoing reply.
type sentMessage struct {
	Body   string
	AsNote bool
}

// stubClient records platform calls and serves a scripted conversation.
type stubClient struct {
	mu            sync.Mutex
	articles      []model.ArticleInput
	conversations map[string]*model.Conversation
	sent          []sentMessage
	closed        []string
	unassigned    []string
	assignedHuman []string
	getErr        error
}

func newStubClient() *stubClient {
	return &stubClient{conversations: make(map[string]*model.Conversation)}
}

func (c *stubClient) ListArticles(context.Context) ([]model.ArticleInput, error) {
	return c.articles, nil
}

func (c *stubClient) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	conv, ok := c.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s not found", id)
	}
	cp := *conv
	return &cp, nil
}

func (c *stubClient) Reply(_ context.Context, _ string, body string, asNote bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{Body: body, AsNote: asNote})
	return nil
}

func (c *stubClient) CloseConversation(_ context.Context, convID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, convID)
	return nil
}

func (c *stubClient) Unassign(_ context.Context, convID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unassigned = append(c.unassigned, convID)
	return nil
}

func (c *stubClient) AssignToHuman(_ context.Context, convID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assignedHuman = append(c.assignedHuman, convID)
	return nil
}

var _ SupportClient = (*stubClient)(nil)

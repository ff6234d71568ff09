package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/adapter"
	"stellium-ask/internal/domain/ports/repository"
)

// ---- Fakes ----

type memConvRepo struct {
	mu           sync.Mutex
	saved        map[string]*model.Conversation
	messages     map[string][]model.Message
	history      []model.Message
	historyErr   error
	historyCalls int
}

var _ repository.ConversationRepository = (*memConvRepo)(nil)

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{
		saved:    map[string]*model.Conversation{},
		messages: map[string][]model.Message{},
	}
}

func (m *memConvRepo) Save(ctx context.Context, qx any, conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conv
	m.saved[conv.ID] = &cp
	return nil
}

func (m *memConvRepo) SaveMessage(ctx context.Context, qx any, convID string, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[convID] = append(m.messages[convID], *msg)
	return nil
}

func (m *memConvRepo) DeleteMessage(ctx context.Context, qx any, convID, msgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[convID]
	for i, mm := range msgs {
		if mm.ID == msgID {
			m.messages[convID] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memConvRepo) FindBySubject(ctx context.Context, qx any, userID string, ct model.ContentType, contentID string) (*model.Conversation, error) {
	return nil, domain.ErrNotFound
}

func (m *memConvRepo) History(ctx context.Context, qx any, ct model.ContentType, contentID string, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls++
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history, nil
}

func (m *memConvRepo) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	return 0, nil
}

func (m *memConvRepo) savedMessages(convID string) []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Message, len(m.messages[convID]))
	copy(out, m.messages[convID])
	return out
}

type fakeInsight struct {
	mu       sync.Mutex
	askFn    func(ctx context.Context, req adapter.AskRequest) (string, error)
	askCalls int
	lastReq  adapter.AskRequest
	history  []model.Message
}

var _ adapter.InsightService = (*fakeInsight)(nil)

func (f *fakeInsight) Ask(ctx context.Context, req adapter.AskRequest) (string, error) {
	f.mu.Lock()
	f.askCalls++
	f.lastReq = req
	fn := f.askFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return "the stars say yes", nil
}

func (f *fakeInsight) History(ctx context.Context, ct model.ContentType, contentID string, limit int) ([]model.Message, error) {
	if f.history == nil {
		return nil, domain.ErrNotFound
	}
	return f.history, nil
}

func (f *fakeInsight) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.askCalls
}

func (f *fakeInsight) last() adapter.AskRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

type memLedger struct {
	mu       sync.Mutex
	balances map[string]int
}

var _ repository.CreditLedger = (*memLedger)(nil)

func newMemLedger(userID string, credits int) *memLedger {
	return &memLedger{balances: map[string]int{userID: credits}}
}

func (m *memLedger) Balance(ctx context.Context, qx any, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return bal, nil
}

func (m *memLedger) Deduct(ctx context.Context, qx any, userID string, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if bal < amount {
		return 0, domain.ErrInsufficientCredits
	}
	m.balances[userID] = bal - amount
	return bal - amount, nil
}

func (m *memLedger) Refund(ctx context.Context, qx any, userID string, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += amount
	return m.balances[userID], nil
}

func (m *memLedger) Grant(ctx context.Context, qx any, userID string, amount int) (int, error) {
	return m.Refund(ctx, qx, userID, amount)
}

type fakeCharts struct {
	chart    *model.BirthChart
	items    []model.RelationshipItem
	transits []model.TransitWindow
}

var _ repository.ChartRepository = (*fakeCharts)(nil)

func (f *fakeCharts) BirthChart(ctx context.Context, qx any, contentID string) (*model.BirthChart, error) {
	if f.chart == nil {
		return nil, domain.ErrNotFound
	}
	return f.chart, nil
}

func (f *fakeCharts) RelationshipItems(ctx context.Context, qx any, contentID string) ([]model.RelationshipItem, error) {
	if f.items == nil {
		return nil, domain.ErrNotFound
	}
	return f.items, nil
}

func (f *fakeCharts) Transits(ctx context.Context, qx any, contentID string) ([]model.TransitWindow, error) {
	if f.transits == nil {
		return nil, domain.ErrNotFound
	}
	return f.transits, nil
}

type nopMetrics struct{}

var _ Metrics = nopMetrics{}

func (nopMetrics) Ask(string, string) {}
func (nopMetrics) PaywallBlock(string) {}
func (nopMetrics) SelectionReject() {}
func (nopMetrics) HistoryLoad(string) {}
func (nopMetrics) UpstreamLatency(string, time.Duration) {}
func (nopMetrics) ElementsExtracted(int) {}

type fakeTexts struct{}

func (fakeTexts) T(key string, args ...interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf(key+":%v", args)
	}
	return key
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]model.User
}

var _ repository.UserRepository = (*memUsers)(nil)

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]model.User)}
}

func (m *memUsers) Save(ctx context.Context, qx any, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) FindByID(ctx context.Context, qx any, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := u
	return &cp, nil
}

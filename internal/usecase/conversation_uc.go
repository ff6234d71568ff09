package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/adapter"
	"stellium-ask/internal/domain/ports/repository"
)

// CostPerMessage is the flat credit price of one send.
const CostPerMessage = 1

const historyLimit = 50

// Compile-time check
var _ ConversationUseCase = (*conversationUC)(nil)

// SelectionView is what the caller renders after a selection operation: the
// current selection and any standing rejection message.
type SelectionView struct {
	Selected []model.ContextElement `json:"selected"`
	Message  string                 `json:"message,omitempty"`
	Full     bool                   `json:"full"`
}

// Texts resolves user-facing strings (satisfied by the i18n translator).
type Texts interface {
	T(key string, args ...interface{}) string
}

// ConversationUseCase orchestrates the ask flow: it owns conversation state,
// the bounded selection, the credit gate and the optimistic send protocol.
type ConversationUseCase interface {
	// Open returns the conversation for (userID, contentType, contentID),
	// creating it if needed and loading history exactly once per content id.
	Open(ctx context.Context, userID string, ct model.ContentType, contentID string) (*model.Conversation, error)
	Get(ctx context.Context, convID string) (*model.Conversation, error)
	SetPeriod(ctx context.Context, convID string, p model.Period) error

	ToggleSelection(ctx context.Context, convID, key string) (SelectionView, error)
	RemoveSelection(ctx context.Context, convID, key string) (SelectionView, error)
	ClearSelection(ctx context.Context, convID string) (SelectionView, error)

	// Send runs the full state machine for one turn and returns the
	// assistant message on success. Failures roll back the optimistic user
	// message; paywall conditions are reported as domain.ErrPaywall.
	Send(ctx context.Context, convID, freeText string) (*model.Message, error)

	// Close discards the in-memory conversation. An in-flight send resolving
	// afterwards is dropped; persisted history is untouched.
	Close(ctx context.Context, convID string) error
}

type convEntry struct {
	mu   sync.Mutex
	conv *model.Conversation
}

type conversationUC struct {
	repo     repository.ConversationRepository
	insight  adapter.InsightService
	credits  EntitlementsUseCase
	elements ContextUseCase
	texts    Texts
	met      Metrics
	log      *zerolog.Logger

	mu        sync.Mutex
	byID      map[string]*convEntry
	bySubject map[string]*convEntry

	now func() time.Time
}

func NewConversationUseCase(
	repo repository.ConversationRepository,
	insight adapter.InsightService,
	credits EntitlementsUseCase,
	elements ContextUseCase,
	texts Texts,
	met Metrics,
	logger *zerolog.Logger,
) *conversationUC {
	l := logger.With().Str("component", "ConversationUC").Logger()
	return &conversationUC{
		repo:      repo,
		insight:   insight,
		credits:   credits,
		elements:  elements,
		texts:     texts,
		met:       met,
		log:       &l,
		byID:      map[string]*convEntry{},
		bySubject: map[string]*convEntry{},
		now:       time.Now,
	}
}

func subjectKey(userID string, ct model.ContentType, contentID string) string {
	return userID + "|" + string(ct) + "|" + contentID
}

func (uc *conversationUC) Open(ctx context.Context, userID string, ct model.ContentType, contentID string) (*model.Conversation, error) {
	if !ct.Valid() {
		return nil, domain.ErrUnsupportedContentType
	}
	if contentID == "" {
		return nil, domain.ErrMissingSubject
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", domain.ErrInvalidArgument)
	}

	entry := uc.entryForSubject(ctx, userID, ct, contentID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	uc.loadHistoryOnce(ctx, entry.conv)
	return snapshot(entry.conv), nil
}

// entryForSubject finds or creates the owning entry for a subject.
func (uc *conversationUC) entryForSubject(ctx context.Context, userID string, ct model.ContentType, contentID string) *convEntry {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	sk := subjectKey(userID, ct, contentID)
	if e, ok := uc.bySubject[sk]; ok {
		return e
	}

	conv, err := uc.repo.FindBySubject(ctx, nil, userID, ct, contentID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			uc.log.Warn().Err(err).Msg("conversation lookup failed; starting fresh")
		}
		conv = model.NewConversation(uuid.NewString(), userID, ct, contentID)
		if err := uc.repo.Save(ctx, nil, conv); err != nil {
			uc.log.Warn().Err(err).Msg("conversation save failed; continuing in memory")
		}
	}
	e := &convEntry{conv: conv}
	uc.byID[conv.ID] = e
	uc.bySubject[sk] = e
	return e
}

// loadHistoryOnce seeds the message log from stored history, at most once per
// content id, and never over an in-progress conversation. Failures are logged
// and swallowed; an empty history leaves the welcome state.
func (uc *conversationUC) loadHistoryOnce(ctx context.Context, conv *model.Conversation) {
	if conv.HistoryLoadedFor == conv.ContentID {
		return
	}
	conv.HistoryLoadedFor = conv.ContentID

	msgs, err := uc.repo.History(ctx, nil, conv.ContentType, conv.ContentID, historyLimit)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		uc.log.Warn().Err(err).Str("content_id", conv.ContentID).Msg("history load failed")
		return
	}
	if len(msgs) == 0 && uc.insight != nil {
		msgs, err = uc.insight.History(ctx, conv.ContentType, conv.ContentID, historyLimit)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			uc.log.Warn().Err(err).Str("content_id", conv.ContentID).Msg("upstream history load failed")
			return
		}
	}
	if len(msgs) == 0 {
		return
	}
	if len(conv.Messages) > 0 {
		// user got ahead of the history fetch; keep what they see
		return
	}
	for i := range msgs {
		if msgs[i].ID == "" {
			msgs[i].ID = fmt.Sprintf("%s-%d", conv.ContentID, i)
		}
	}
	conv.Messages = msgs
	uc.met.HistoryLoad(string(conv.ContentType))
}

func (uc *conversationUC) entry(convID string) (*convEntry, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	e, ok := uc.byID[convID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (uc *conversationUC) Get(ctx context.Context, convID string) (*model.Conversation, error) {
	e, err := uc.entry(convID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.conv), nil
}

func (uc *conversationUC) SetPeriod(ctx context.Context, convID string, p model.Period) error {
	switch p {
	case model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly:
	default:
		return fmt.Errorf("%w: period %q", domain.ErrInvalidArgument, p)
	}
	e, err := uc.entry(convID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conv.Period = p
	return nil
}

func (uc *conversationUC) ToggleSelection(ctx context.Context, convID, key string) (SelectionView, error) {
	e, err := uc.entry(convID)
	if err != nil {
		return SelectionView{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	conv := e.conv

	el, found := uc.findCandidate(ctx, conv, key)
	if !found {
		// removal by key still works when the candidate list moved on
		if conv.Selection.Has(key) {
			conv.Selection.Remove(key)
			conv.SelectionErr = ""
			return uc.selectionView(conv), nil
		}
		return SelectionView{}, fmt.Errorf("%w: element %q", domain.ErrNotFound, key)
	}

	if _, err := conv.Selection.Toggle(el); err != nil {
		if errors.Is(err, domain.ErrSelectionLimit) {
			conv.SelectionErr = uc.texts.T("selection.limit", model.MaxSelections)
			uc.met.SelectionReject()
			return uc.selectionView(conv), err
		}
		return SelectionView{}, err
	}
	conv.SelectionErr = ""
	return uc.selectionView(conv), nil
}

func (uc *conversationUC) RemoveSelection(ctx context.Context, convID, key string) (SelectionView, error) {
	e, err := uc.entry(convID)
	if err != nil {
		return SelectionView{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conv.Selection.Remove(key)
	e.conv.SelectionErr = ""
	return uc.selectionView(e.conv), nil
}

func (uc *conversationUC) ClearSelection(ctx context.Context, convID string) (SelectionView, error) {
	e, err := uc.entry(convID)
	if err != nil {
		return SelectionView{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conv.Selection.Clear()
	e.conv.SelectionErr = ""
	return uc.selectionView(e.conv), nil
}

// Close drops the conversation from the registry. The generation bump in
// Reset makes any in-flight send resolve as stale instead of landing in a
// conversation nobody holds anymore.
func (uc *conversationUC) Close(ctx context.Context, convID string) error {
	uc.mu.Lock()
	e, ok := uc.byID[convID]
	if !ok {
		uc.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(uc.byID, convID)
	delete(uc.bySubject, subjectKey(e.conv.UserID, e.conv.ContentType, e.conv.ContentID))
	uc.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := uc.repo.Save(ctx, nil, e.conv); err != nil {
		uc.log.Warn().Err(err).Msg("persist conversation on close")
	}
	e.conv.Reset(e.conv.ContentType, e.conv.ContentID)
	return nil
}

// EvictIdle drops entries untouched for longer than olderThan, persisting
// them first. Entries with a send in flight are spared this round; everyone
// else is reset so a late-resolving send is discarded. Returns the number
// evicted.
func (uc *conversationUC) EvictIdle(ctx context.Context, olderThan time.Duration) int {
	cutoff := uc.now().Add(-olderThan)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	n := 0
	for id, e := range uc.byID {
		e.mu.Lock()
		conv := e.conv
		if conv.Sending || conv.UpdatedAt.After(cutoff) {
			e.mu.Unlock()
			continue
		}
		delete(uc.byID, id)
		delete(uc.bySubject, subjectKey(conv.UserID, conv.ContentType, conv.ContentID))
		if err := uc.repo.Save(ctx, nil, conv); err != nil {
			uc.log.Warn().Err(err).Str("conversation_id", id).Msg("persist conversation on evict")
		}
		conv.Reset(conv.ContentType, conv.ContentID)
		e.mu.Unlock()
		n++
	}
	return n
}

func (uc *conversationUC) selectionView(conv *model.Conversation) SelectionView {
	return SelectionView{
		Selected: conv.Selection.Elements(),
		Message:  conv.SelectionErr,
		Full:     conv.Selection.Full(),
	}
}

// findCandidate re-derives the current candidate list and resolves key in it.
func (uc *conversationUC) findCandidate(ctx context.Context, conv *model.Conversation, key string) (model.ContextElement, bool) {
	els, _, err := uc.elements.Elements(ctx, conv.ContentType, conv.ContentID, ContextQuery{Period: conv.Period})
	if err != nil {
		uc.log.Warn().Err(err).Str("content_id", conv.ContentID).Msg("candidate derivation failed")
		return model.ContextElement{}, false
	}
	for _, el := range els {
		if el.Key == key {
			return el, true
		}
	}
	return model.ContextElement{}, false
}

func (uc *conversationUC) Send(ctx context.Context, convID, freeText string) (*model.Message, error) {
	e, err := uc.entry(convID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	conv := e.conv
	text := strings.TrimSpace(freeText)

	if text == "" && conv.Selection.Len() == 0 {
		e.mu.Unlock()
		return nil, domain.ErrEmptySend
	}
	if conv.Sending {
		e.mu.Unlock()
		return nil, domain.ErrSendInFlight
	}
	if !conv.ContentType.Valid() {
		e.mu.Unlock()
		return nil, domain.ErrUnsupportedContentType
	}
	if conv.ContentID == "" {
		e.mu.Unlock()
		return nil, domain.ErrMissingSubject
	}

	// Credit gate before anything leaves the process: an unaffordable send
	// never appends a message and never reaches the upstream.
	ok, err := uc.credits.CanAfford(ctx, conv.UserID, CostPerMessage)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if !ok {
		e.mu.Unlock()
		uc.met.PaywallBlock(string(conv.ContentType))
		return nil, domain.ErrPaywall
	}
	if _, err := uc.credits.Deduct(ctx, conv.UserID, CostPerMessage); err != nil {
		e.mu.Unlock()
		if errors.Is(err, domain.ErrInsufficientCredits) {
			uc.met.PaywallBlock(string(conv.ContentType))
			return nil, domain.ErrPaywall
		}
		return nil, err
	}

	// Optimistic append
	content := text
	if content == "" {
		content = model.PlaceholderContent
	}
	userMsg := model.Message{
		ID:               newMessageID(uc.now()),
		Role:             model.RoleUser,
		Content:          content,
		SelectedElements: conv.Selection.Elements(),
		Timestamp:        uc.now(),
	}
	conv.Append(userMsg)
	conv.LastError = ""
	conv.Sending = true
	gen := conv.Generation
	req := adapter.AskRequest{
		ContentType: conv.ContentType,
		ContentID:   conv.ContentID,
		Text:        text,
		Elements:    userMsg.SelectedElements,
		Period:      conv.Period,
	}
	e.mu.Unlock()

	// Persist the user message before the upstream call so a crash mid-send
	// loses at most the reply; a failed send deletes it again.
	if err := uc.repo.SaveMessage(ctx, nil, conv.ID, &userMsg); err != nil {
		uc.log.Warn().Err(err).Msg("persist user message")
	}

	start := uc.now()
	reply, askErr := uc.insight.Ask(ctx, req)
	uc.met.UpstreamLatency(string(req.ContentType), uc.now().Sub(start))

	e.mu.Lock()
	defer e.mu.Unlock()

	if conv.Generation != gen {
		// The conversation was closed or repointed while the call was in
		// flight; the log this send belonged to is gone. Drop the reply,
		// remove the persisted half and give the credit back.
		if err := uc.repo.DeleteMessage(ctx, nil, conv.ID, userMsg.ID); err != nil {
			uc.log.Warn().Err(err).Msg("remove stale user message")
		}
		if _, err := uc.credits.Refund(ctx, conv.UserID, CostPerMessage); err != nil {
			uc.log.Error().Err(err).Str("user_id", conv.UserID).Msg("refund after stale send")
		}
		uc.met.Ask(string(req.ContentType), "stale")
		return nil, domain.ErrStaleSend
	}
	conv.Sending = false

	if askErr != nil {
		conv.RemoveMessage(userMsg.ID)
		if err := uc.repo.DeleteMessage(ctx, nil, conv.ID, userMsg.ID); err != nil {
			uc.log.Warn().Err(err).Msg("remove rolled back user message")
		}
		conv.LastError = askErr.Error()
		if _, err := uc.credits.Refund(ctx, conv.UserID, CostPerMessage); err != nil {
			uc.log.Error().Err(err).Str("user_id", conv.UserID).Msg("refund after failed send")
		}
		uc.met.Ask(string(req.ContentType), "error")
		if isQuotaRejection(askErr) {
			uc.met.PaywallBlock(string(req.ContentType))
			return nil, fmt.Errorf("%w: %s", domain.ErrPaywall, askErr.Error())
		}
		return nil, askErr
	}

	assistant := model.Message{
		ID:        newMessageID(uc.now()),
		Role:      model.RoleAssistant,
		Content:   reply,
		Timestamp: uc.now(),
	}
	conv.Append(assistant)
	conv.Selection.Clear()
	conv.SelectionErr = ""

	// Persist the reply; in-memory state is authoritative for the open
	// conversation, so storage failures only cost durability.
	if err := uc.repo.SaveMessage(ctx, nil, conv.ID, &assistant); err != nil {
		uc.log.Warn().Err(err).Msg("persist assistant message")
	}
	if err := uc.repo.Save(ctx, nil, conv); err != nil {
		uc.log.Warn().Err(err).Msg("persist conversation")
	}

	uc.met.Ask(string(req.ContentType), "ok")
	return &assistant, nil
}

// isQuotaRejection matches the upstream failure signatures that should raise
// the paywall instead of a plain error: HTTP 403 or a message carrying "403".
func isQuotaRejection(err error) bool {
	var se *adapter.StatusError
	if errors.As(err, &se) && se.IsQuotaRejection() {
		return true
	}
	return strings.Contains(err.Error(), "403")
}

func newMessageID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// snapshot copies the conversation for rendering outside the entry lock.
func snapshot(c *model.Conversation) *model.Conversation {
	cp := *c
	cp.Messages = make([]model.Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}

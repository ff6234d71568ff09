package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/astro"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/adapter"
	"stellium-ask/internal/infra/i18n"
	"stellium-ask/internal/usecase"
)

type fakeConvs struct {
	conv *model.Conversation

	sendReply *model.Message
	sendErr   error
	sendText  string

	toggleView usecase.SelectionView
	toggleErr  error
	toggled    []string
	cleared    int
	closed     []string
}

var _ usecase.ConversationUseCase = (*fakeConvs)(nil)

func (f *fakeConvs) Open(_ context.Context, userID string, ct model.ContentType, contentID string) (*model.Conversation, error) {
	if f.conv == nil {
		f.conv = &model.Conversation{
			ID:          "conv-1",
			UserID:      userID,
			ContentType: ct,
			ContentID:   contentID,
			Period:      model.PeriodDaily,
		}
	}
	return f.conv, nil
}

func (f *fakeConvs) Get(context.Context, string) (*model.Conversation, error) {
	if f.conv == nil {
		return nil, domain.ErrNotFound
	}
	return f.conv, nil
}

func (f *fakeConvs) SetPeriod(_ context.Context, _ string, p model.Period) error {
	f.conv.Period = p
	return nil
}

func (f *fakeConvs) ToggleSelection(_ context.Context, _ string, key string) (usecase.SelectionView, error) {
	f.toggled = append(f.toggled, key)
	return f.toggleView, f.toggleErr
}

func (f *fakeConvs) RemoveSelection(context.Context, string, string) (usecase.SelectionView, error) {
	return usecase.SelectionView{}, nil
}

func (f *fakeConvs) ClearSelection(context.Context, string) (usecase.SelectionView, error) {
	f.cleared++
	return usecase.SelectionView{}, nil
}

func (f *fakeConvs) Send(_ context.Context, _ string, text string) (*model.Message, error) {
	f.sendText = text
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.conv.Messages = append(f.conv.Messages,
		model.Message{ID: "m1", Role: model.RoleUser, Content: text},
		*f.sendReply,
	)
	return f.sendReply, nil
}

func (f *fakeConvs) Close(_ context.Context, convID string) error {
	if f.conv == nil {
		return domain.ErrNotFound
	}
	f.closed = append(f.closed, convID)
	f.conv = nil
	return nil
}

type fakeElements struct {
	els    []model.ContextElement
	tokens int
	err    error
}

var _ usecase.ContextUseCase = (*fakeElements)(nil)

func (f *fakeElements) Elements(context.Context, model.ContentType, string, usecase.ContextQuery) ([]model.ContextElement, int, error) {
	return f.els, f.tokens, f.err
}

type fakeCredits struct {
	balance int
	err     error
}

var _ usecase.EntitlementsUseCase = (*fakeCredits)(nil)

func (f *fakeCredits) Balance(context.Context, string) (int, error) { return f.balance, f.err }
func (f *fakeCredits) CanAfford(context.Context, string, int) (bool, error) {
	return f.balance > 0, nil
}
func (f *fakeCredits) Deduct(context.Context, string, int) (int, error) { return f.balance, nil }
func (f *fakeCredits) Refund(context.Context, string, int) (int, error) { return f.balance, nil }

type fakeAccount struct {
	user *model.User
}

var _ usecase.AccountUseCase = (*fakeAccount)(nil)

func (f *fakeAccount) Profile(context.Context, string) (*model.User, error) {
	if f.user == nil {
		return nil, domain.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeAccount) SetPrivacy(_ context.Context, _ string, allowStorage, encrypt bool) (*model.User, error) {
	if f.user == nil {
		return nil, domain.ErrNotFound
	}
	f.user.AllowMessageStorage = allowStorage
	f.user.DataEncrypted = encrypt
	return f.user, nil
}

type harness struct {
	convs    *fakeConvs
	elements *fakeElements
	credits  *fakeCredits
	account  *fakeAccount
	texts    usecase.Texts
	handler  http.Handler
	token    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zerolog.Nop()
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour)
	h := &harness{
		convs:    &fakeConvs{sendReply: &model.Message{ID: "m2", Role: model.RoleAssistant, Content: "the stars concur"}},
		elements: &fakeElements{tokens: 42},
		credits:  &fakeCredits{balance: 7},
		account:  &fakeAccount{user: &model.User{ID: "u1", Credits: 7, AllowMessageStorage: true}},
	}
	texts, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		t.Fatalf("i18n: %v", err)
	}
	h.texts = texts
	srv := NewServer(h.convs, h.elements, h.credits, h.account, texts, auth, nil, 0, 0, &log)
	h.handler = srv.Router()
	tok, err := auth.Mint("u1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	h.token = tok
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/credits", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestCredits(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/credits", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["credits"] != 7 {
		t.Errorf("credits = %d", body["credits"])
	}
}

func TestProfileAndPrivacy(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/me", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var prof struct {
		ID                  string `json:"id"`
		Credits             int    `json:"credits"`
		AllowMessageStorage bool   `json:"allowMessageStorage"`
		DataEncrypted       bool   `json:"dataEncrypted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &prof); err != nil {
		t.Fatal(err)
	}
	if prof.ID != "u1" || !prof.AllowMessageStorage || prof.DataEncrypted {
		t.Errorf("profile = %+v", prof)
	}

	rec = h.do(t, http.MethodPut, "/api/v1/me/privacy", `{"allowMessageStorage":false,"dataEncrypted":true}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("privacy status = %d: %s", rec.Code, rec.Body.String())
	}
	if h.account.user.AllowMessageStorage || !h.account.user.DataEncrypted {
		t.Errorf("user = %+v", h.account.user)
	}
}

func TestProfileUnknownUser(t *testing.T) {
	h := newHarness(t)
	h.account.user = nil
	rec := h.do(t, http.MethodGet, "/api/v1/me", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestElements(t *testing.T) {
	h := newHarness(t)
	h.elements.els = []model.ContextElement{{Key: "Pp-SuAr01", Label: "Sun in Aries"}}
	rec := h.do(t, http.MethodGet, "/api/v1/ask/birthchart/c1/elements?category=positions", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Elements   []model.ContextElement `json:"elements"`
		Tokens     int                    `json:"tokenEstimate"`
		Categories []astro.Category       `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Elements) != 1 || body.Tokens != 42 {
		t.Errorf("body = %+v", body)
	}
	if len(body.Categories) == 0 {
		t.Errorf("categories missing")
	}
}

func TestElementsRejectsBadSubject(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/ask/tarot/c1/elements", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestElementsRejectsBadPeriod(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/ask/horoscope/c1/elements?period=hourly", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSendHappyPath(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/ask/birthchart/c1/messages", `{"text":"what about my sun?"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Reply        model.Message `json:"reply"`
		Conversation struct {
			ConversationID string          `json:"conversationId"`
			Messages       []model.Message `json:"messages"`
		} `json:"conversation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Reply.Content != "the stars concur" {
		t.Errorf("reply = %q", body.Reply.Content)
	}
	if body.Conversation.ConversationID != "conv-1" || len(body.Conversation.Messages) != 2 {
		t.Errorf("conversation = %+v", body.Conversation)
	}
	if h.convs.sendText != "what about my sun?" {
		t.Errorf("forwarded text = %q", h.convs.sendText)
	}
}

func TestSendReplacesSelection(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/ask/birthchart/c1/messages",
		`{"text":"explain","selectedKeys":["Pp-SuAr01","A-Su01TrMo05"]}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if h.convs.cleared != 1 {
		t.Errorf("cleared = %d, want 1", h.convs.cleared)
	}
	if len(h.convs.toggled) != 2 || h.convs.toggled[0] != "Pp-SuAr01" {
		t.Errorf("toggled = %v", h.convs.toggled)
	}
}

func TestSendPaywall(t *testing.T) {
	h := newHarness(t)
	h.convs.sendErr = domain.ErrPaywall
	rec := h.do(t, http.MethodPost, "/api/v1/ask/birthchart/c1/messages", `{"text":"q"}`, true)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Code != "paywall" || body.Error != h.texts.T("paywall.prompt") {
		t.Errorf("body = %+v", body)
	}
}

func TestCloseConversation(t *testing.T) {
	h := newHarness(t)
	// opening first pins the conversation id the close should target
	if rec := h.do(t, http.MethodGet, "/api/v1/ask/birthchart/c1/history", "", true); rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	rec := h.do(t, http.MethodDelete, "/api/v1/ask/birthchart/c1", "", true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(h.convs.closed) != 1 || h.convs.closed[0] != "conv-1" {
		t.Errorf("closed = %v", h.convs.closed)
	}
}

func TestHistoryCarriesWelcomeWhenEmpty(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/ask/birthchart/c1/history", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Messages []model.Message `json:"messages"`
		Welcome  string          `json:"welcome"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Welcome != h.texts.T("history.welcome") {
		t.Errorf("welcome = %q", body.Welcome)
	}

	h.convs.conv.Messages = []model.Message{{ID: "a", Role: model.RoleUser, Content: "hi"}}
	rec = h.do(t, http.MethodGet, "/api/v1/ask/birthchart/c1/history", "", true)
	body.Welcome = ""
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Welcome != "" {
		t.Errorf("welcome with history = %q", body.Welcome)
	}
}

func TestSendInFlightConflict(t *testing.T) {
	h := newHarness(t)
	h.convs.sendErr = domain.ErrSendInFlight
	rec := h.do(t, http.MethodPost, "/api/v1/ask/birthchart/c1/messages", `{"text":"q"}`, true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSendEmptyText(t *testing.T) {
	h := newHarness(t)
	h.convs.sendErr = domain.ErrEmptySend
	rec := h.do(t, http.MethodPost, "/api/v1/ask/birthchart/c1/messages", `{"text":""}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSendUpstreamFailure(t *testing.T) {
	h := newHarness(t)
	h.convs.sendErr = &adapter.StatusError{Code: 500, Msg: "upstream down"}
	rec := h.do(t, http.MethodPost, "/api/v1/ask/birthchart/c1/messages", `{"text":"q"}`, true)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestToggleSelectionLimitStillReturnsView(t *testing.T) {
	h := newHarness(t)
	h.convs.toggleView = usecase.SelectionView{Message: "you can pick at most 3", Full: true}
	h.convs.toggleErr = domain.ErrSelectionLimit
	rec := h.do(t, http.MethodPost, "/api/v1/ask/birthchart/c1/selection/Pp-MaCp10", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var view usecase.SelectionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if !view.Full || view.Message == "" {
		t.Errorf("view = %+v", view)
	}
}

func TestToggleUnknownKey(t *testing.T) {
	h := newHarness(t)
	h.convs.toggleErr = domain.ErrNotFound
	rec := h.do(t, http.MethodPost, "/api/v1/ask/birthchart/c1/selection/nope", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSetPeriod(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPut, "/api/v1/ask/horoscope/h1/period", `{"period":"weekly"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if h.convs.conv.Period != model.PeriodWeekly {
		t.Errorf("period = %s", h.convs.conv.Period)
	}

	rec = h.do(t, http.MethodPut, "/api/v1/ask/horoscope/h1/period", `{"period":"hourly"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad period status = %d", rec.Code)
	}
}

func TestHistoryLimit(t *testing.T) {
	h := newHarness(t)
	h.convs.conv = &model.Conversation{
		ID: "conv-1", ContentType: model.ContentBirthChart, ContentID: "c1", Period: model.PeriodDaily,
		Messages: []model.Message{
			{ID: "a", Role: model.RoleUser, Content: "1"},
			{ID: "b", Role: model.RoleAssistant, Content: "2"},
			{ID: "c", Role: model.RoleUser, Content: "3"},
		},
	}
	rec := h.do(t, http.MethodGet, "/api/v1/ask/birthchart/c1/history?limit=2", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Messages []model.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Messages) != 2 || body.Messages[0].ID != "b" {
		t.Errorf("messages = %+v", body.Messages)
	}
}

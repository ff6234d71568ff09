package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/astro"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/adapter"
	"stellium-ask/internal/infra/logging"
	redisinfra "stellium-ask/internal/infra/redis"
	"stellium-ask/internal/usecase"
)

// Server exposes the ask flow over HTTP: element listing, history, selection
// operations and the send endpoint.
type Server struct {
	convs    usecase.ConversationUseCase
	elements usecase.ContextUseCase
	credits  usecase.EntitlementsUseCase
	account  usecase.AccountUseCase
	texts    usecase.Texts
	auth     *AuthManager

	limiter    *redisinfra.RateLimiter // nil disables rate limiting
	rateLimit  int
	rateWindow time.Duration

	log *zerolog.Logger
}

func NewServer(
	convs usecase.ConversationUseCase,
	elements usecase.ContextUseCase,
	credits usecase.EntitlementsUseCase,
	account usecase.AccountUseCase,
	texts usecase.Texts,
	auth *AuthManager,
	limiter *redisinfra.RateLimiter,
	rateLimit int,
	window time.Duration,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		convs:      convs,
		elements:   elements,
		credits:    credits,
		account:    account,
		texts:      texts,
		auth:       auth,
		limiter:    limiter,
		rateLimit:  rateLimit,
		rateWindow: window,
		log:        &l,
	}
}

// Router builds the chi router with all routes attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.RequireUser)

		r.Get("/credits", s.handleBalance)
		r.Get("/me", s.handleProfile)
		r.Put("/me/privacy", s.handlePrivacy)

		r.Route("/ask/{contentType}/{contentID}", func(r chi.Router) {
			r.Get("/elements", s.handleElements)
			r.Get("/history", s.handleHistory)
			r.Delete("/", s.handleClose)
			r.Post("/messages", s.handleSend)
			r.Put("/period", s.handlePeriod)

			r.Post("/selection/{key}", s.handleToggleSelection)
			r.Delete("/selection/{key}", s.handleRemoveSelection)
			r.Delete("/selection", s.handleClearSelection)
		})
	})

	return r
}

func (s *Server) subject(r *http.Request) (model.ContentType, string, error) {
	ct := model.ContentType(chi.URLParam(r, "contentType"))
	if !ct.Valid() {
		return "", "", domain.ErrUnsupportedContentType
	}
	contentID := chi.URLParam(r, "contentID")
	if contentID == "" {
		return "", "", domain.ErrMissingSubject
	}
	return ct, contentID, nil
}

// ===== element listing =====

type elementsResponse struct {
	Elements   []model.ContextElement `json:"elements"`
	TokenCount int                    `json:"tokenEstimate"`
	Categories []astro.Category       `json:"categories"`
}

func (s *Server) handleElements(w http.ResponseWriter, r *http.Request) {
	ct, contentID, err := s.subject(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	q := usecase.ContextQuery{
		Category: astro.Category(r.URL.Query().Get("category")),
		Search:   r.URL.Query().Get("q"),
		Period:   model.Period(r.URL.Query().Get("period")),
	}
	if q.Category == "" {
		q.Category = astro.CategoryAll
	}
	if q.Period == "" {
		q.Period = model.PeriodDaily
	}
	if !q.Period.Valid() {
		s.writeErr(w, r, domain.ErrInvalidArgument)
		return
	}

	els, tokens, err := s.elements.Elements(r.Context(), ct, contentID, q)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, elementsResponse{
		Elements:   els,
		TokenCount: tokens,
		Categories: astro.CategoriesFor(ct),
	})
}

// ===== conversation =====

type conversationResponse struct {
	ConversationID string                `json:"conversationId"`
	ContentType    model.ContentType     `json:"contentType"`
	ContentID      string                `json:"contentId"`
	Period         model.Period          `json:"period"`
	Messages       []model.Message       `json:"messages"`
	Selection      usecase.SelectionView `json:"selection"`
	LastError      string                `json:"lastError,omitempty"`
	Welcome        string                `json:"welcome,omitempty"`
}

func (s *Server) conversationJSON(conv *model.Conversation) conversationResponse {
	welcome := ""
	if len(conv.Messages) == 0 {
		welcome = s.texts.T("history.welcome")
	}
	return conversationResponse{
		ConversationID: conv.ID,
		ContentType:    conv.ContentType,
		ContentID:      conv.ContentID,
		Period:         conv.Period,
		Messages:       conv.Messages,
		Selection: usecase.SelectionView{
			Selected: conv.Selection.Elements(),
			Message:  conv.SelectionErr,
			Full:     conv.Selection.Full(),
		},
		LastError: conv.LastError,
		Welcome:   welcome,
	}
}

func (s *Server) open(r *http.Request) (*model.Conversation, error) {
	ct, contentID, err := s.subject(r)
	if err != nil {
		return nil, err
	}
	userID := logging.UserID(r.Context())
	ctx := logging.WithContentID(r.Context(), contentID)
	return s.convs.Open(ctx, userID, ct, contentID)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	conv, err := s.open(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	resp := s.conversationJSON(conv)
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < len(resp.Messages) {
			resp.Messages = resp.Messages[len(resp.Messages)-n:]
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type periodRequest struct {
	Period model.Period `json:"period"`
}

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	conv, err := s.open(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var body periodRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.Period.Valid() {
		s.writeErr(w, r, domain.ErrInvalidArgument)
		return
	}
	if err := s.convs.SetPeriod(r.Context(), conv.ID, body.Period); err != nil {
		s.writeErr(w, r, err)
		return
	}
	conv, err = s.convs.Get(r.Context(), conv.ID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.conversationJSON(conv))
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	conv, err := s.open(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.convs.Close(r.Context(), conv.ID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ===== selection =====

func (s *Server) handleToggleSelection(w http.ResponseWriter, r *http.Request) {
	conv, err := s.open(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	view, err := s.convs.ToggleSelection(r.Context(), conv.ID, chi.URLParam(r, "key"))
	if err != nil && !errors.Is(err, domain.ErrSelectionLimit) {
		s.writeErr(w, r, err)
		return
	}
	// a capacity rejection still returns the view with its standing message
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRemoveSelection(w http.ResponseWriter, r *http.Request) {
	conv, err := s.open(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	view, err := s.convs.RemoveSelection(r.Context(), conv.ID, chi.URLParam(r, "key"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	conv, err := s.open(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	view, err := s.convs.ClearSelection(r.Context(), conv.ID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// ===== send =====

type sendRequest struct {
	Text string `json:"text"`
	// SelectedKeys, when present, replaces the server-held selection before
	// the send. Unknown keys are rejected.
	SelectedKeys *[]string    `json:"selectedKeys,omitempty"`
	Period       model.Period `json:"period,omitempty"`
}

type sendResponse struct {
	Reply        model.Message        `json:"reply"`
	Conversation conversationResponse `json:"conversation"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	conv, err := s.open(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErr(w, r, domain.ErrInvalidArgument)
		return
	}
	ctx := logging.WithConversationID(r.Context(), conv.ID)

	if body.Period != "" {
		if !body.Period.Valid() {
			s.writeErr(w, r, domain.ErrInvalidArgument)
			return
		}
		if err := s.convs.SetPeriod(ctx, conv.ID, body.Period); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}

	if body.SelectedKeys != nil {
		if _, err := s.convs.ClearSelection(ctx, conv.ID); err != nil {
			s.writeErr(w, r, err)
			return
		}
		for _, key := range *body.SelectedKeys {
			if _, err := s.convs.ToggleSelection(ctx, conv.ID, key); err != nil {
				s.writeErr(w, r, err)
				return
			}
		}
	}

	userID := logging.UserID(ctx)
	if s.limiter != nil && s.rateLimit > 0 {
		ok, lerr := s.limiter.Allow(ctx, redisinfra.UserActionKey(userID, "send"), s.rateLimit, s.rateWindow)
		if lerr != nil {
			// a degraded limiter never blocks traffic
			s.log.Warn().Err(lerr).Msg("rate limiter unavailable")
		} else if !ok {
			s.writeErr(w, r, domain.ErrRateLimited)
			return
		}
	}

	reply, err := s.convs.Send(ctx, conv.ID, body.Text)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	conv, err = s.convs.Get(ctx, conv.ID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sendResponse{
		Reply:        *reply,
		Conversation: s.conversationJSON(conv),
	})
}

// ===== credits =====

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := logging.UserID(r.Context())
	bal, err := s.credits.Balance(r.Context(), userID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"credits": bal})
}

// ===== account =====

type profileResponse struct {
	ID                  string `json:"id"`
	Credits             int    `json:"credits"`
	AllowMessageStorage bool   `json:"allowMessageStorage"`
	DataEncrypted       bool   `json:"dataEncrypted"`
}

func profileJSON(u *model.User) profileResponse {
	return profileResponse{
		ID:                  u.ID,
		Credits:             u.Credits,
		AllowMessageStorage: u.AllowMessageStorage,
		DataEncrypted:       u.DataEncrypted,
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, err := s.account.Profile(r.Context(), logging.UserID(r.Context()))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profileJSON(u))
}

type privacyRequest struct {
	AllowMessageStorage bool `json:"allowMessageStorage"`
	DataEncrypted       bool `json:"dataEncrypted"`
}

func (s *Server) handlePrivacy(w http.ResponseWriter, r *http.Request) {
	var body privacyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErr(w, r, domain.ErrInvalidArgument)
		return
	}
	u, err := s.account.SetPrivacy(r.Context(), logging.UserID(r.Context()), body.AllowMessageStorage, body.DataEncrypted)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profileJSON(u))
}

// ===== plumbing =====

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// clientMessage maps an error onto the translated string the caller shows the
// user; errors without a translation pass through verbatim.
func (s *Server) clientMessage(err error, status int, code string) string {
	switch {
	case code == "paywall":
		return s.texts.T("paywall.prompt")
	case errors.Is(err, domain.ErrEmptySend):
		return s.texts.T("send.empty")
	case errors.Is(err, domain.ErrSendInFlight):
		return s.texts.T("send.in_flight")
	case errors.Is(err, domain.ErrMissingSubject):
		return s.texts.T("send.missing_subject")
	case errors.Is(err, domain.ErrUnsupportedContentType):
		return s.texts.T("send.unsupported")
	case status == http.StatusInternalServerError:
		return s.texts.T("send.failed")
	}
	return err.Error()
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := ""

	var se *adapter.StatusError
	switch {
	case errors.Is(err, domain.ErrPaywall), errors.Is(err, domain.ErrInsufficientCredits):
		status = http.StatusPaymentRequired
		code = "paywall"
	case errors.Is(err, domain.ErrSendInFlight):
		status = http.StatusConflict
		code = "in_flight"
	case errors.Is(err, domain.ErrStaleSend):
		status = http.StatusConflict
		code = "stale"
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
		code = "rate_limited"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrEmptySend),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnsupportedContentType),
		errors.Is(err, domain.ErrMissingSubject),
		errors.Is(err, domain.ErrSelectionLimit):
		status = http.StatusBadRequest
	case errors.As(err, &se):
		status = http.StatusBadGateway
		code = "upstream"
	}

	if status == http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
	}

	s.writeJSON(w, status, errorResponse{Error: s.clientMessage(err, status, code), Code: code})
}

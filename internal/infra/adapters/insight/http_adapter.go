package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.InsightService = (*HTTPAdapter)(nil)

// HTTPAdapter talks to the legacy interpretation backend. The backend never
// settled on one response schema, so extraction walks an ordered list of
// known field paths and takes the first non-empty string; this tolerance is
// deliberate and should not be "cleaned up" while that backend is alive.
type HTTPAdapter struct {
	base   string
	apiKey string
	client *http.Client
}

func NewHTTPAdapter(baseURL, apiKey string, timeout time.Duration) (*HTTPAdapter, error) {
	if baseURL == "" {
		return nil, errors.New("insight base url empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAdapter{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// routes per content type; each has its own chat and history endpoint.
func (a *HTTPAdapter) askPath(ct model.ContentType, contentID string) (string, error) {
	switch ct {
	case model.ContentBirthChart:
		return a.base + "/charts/" + contentID + "/chat", nil
	case model.ContentRelationship:
		return a.base + "/relationships/" + contentID + "/chat", nil
	case model.ContentHoroscope:
		return a.base + "/horoscopes/" + contentID + "/chat", nil
	}
	return "", domain.ErrUnsupportedContentType
}

func (a *HTTPAdapter) historyPath(ct model.ContentType, contentID string) (string, error) {
	p, err := a.askPath(ct, contentID)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(p, "/chat") + "/chat-history", nil
}

// buildBody constructs the per-content-type request. The birth chart flow
// sends the text under both "message" and "query" because the backend has
// answered to either name at different times. Relationship payloads go under
// an unadorned "selected" array, horoscope payloads under "selectedTransits"
// with the active period always present.
func buildBody(req adapter.AskRequest) map[string]any {
	payloads := make([]any, 0, len(req.Elements))
	for _, el := range req.Elements {
		payloads = append(payloads, el.Payload)
	}

	body := map[string]any{}
	switch req.ContentType {
	case model.ContentBirthChart:
		if req.Text != "" {
			body["message"] = req.Text
			body["query"] = req.Text
		}
		if len(payloads) > 0 {
			body["selectedAspects"] = payloads
		}
	case model.ContentRelationship:
		if req.Text != "" {
			body["message"] = req.Text
		}
		if len(payloads) > 0 {
			body["selected"] = payloads
		}
	case model.ContentHoroscope:
		if req.Text != "" {
			body["message"] = req.Text
		}
		if len(payloads) > 0 {
			body["selectedTransits"] = payloads
		}
		period := req.Period
		if period == "" {
			period = model.PeriodDaily
		}
		body["period"] = string(period)
	}
	return body
}

// responsePaths is the ordered list of places a usable reply has been seen.
var responsePaths = [][]string{
	{"response"},
	{"answer"},
	{"horoscope", "text"},
	{"horoscope", "interpretation"},
	{"payload", "text"},
	{"payload", "interpretation"},
}

// extractReply walks responsePaths and returns the first non-empty string.
func extractReply(doc map[string]any) string {
	for _, path := range responsePaths {
		var cur any = doc
		for _, seg := range path {
			m, ok := cur.(map[string]any)
			if !ok {
				cur = nil
				break
			}
			cur = m[seg]
		}
		if s, ok := cur.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func (a *HTTPAdapter) Ask(ctx context.Context, req adapter.AskRequest) (string, error) {
	url, err := a.askPath(req.ContentType, req.ContentID)
	if err != nil {
		return "", err
	}

	b, err := json.Marshal(buildBody(req))
	if err != nil {
		return "", fmt.Errorf("encode ask body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", &adapter.StatusError{Code: resp.StatusCode, Msg: fmt.Sprintf("insight http %d", resp.StatusCode)}
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode ask response: %w", err)
	}
	if reply := extractReply(doc); reply != "" {
		return reply, nil
	}
	if e, ok := doc["error"].(string); ok && e != "" {
		return "", errors.New(e)
	}
	return "", errors.New("no usable text in response")
}

// historyEnvelope tolerates both shapes the backend returns: a bare array of
// turns or an object wrapping it under "chatHistory".
type historyEnvelope struct {
	ChatHistory []historyTurn `json:"chatHistory"`
}

type historyTurn struct {
	ID        string                 `json:"id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Selected  []model.ContextElement `json:"selectedElements"`
	Timestamp string                 `json:"timestamp"`
}

func (a *HTTPAdapter) History(ctx context.Context, ct model.ContentType, contentID string, limit int) ([]model.Message, error) {
	url, err := a.historyPath(ct, contentID)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, limit)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, &adapter.StatusError{Code: resp.StatusCode, Msg: fmt.Sprintf("insight history http %d", resp.StatusCode)}
	}

	raw := json.RawMessage{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	var turns []historyTurn
	if err := json.Unmarshal(raw, &turns); err != nil {
		var env historyEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("history shape: %w", err)
		}
		turns = env.ChatHistory
	}

	out := make([]model.Message, 0, len(turns))
	for i, t := range turns {
		id := t.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", contentID, i)
		}
		ts, err := time.Parse(time.RFC3339, t.Timestamp)
		if err != nil {
			ts = time.Time{}
		}
		out = append(out, model.Message{
			ID:               id,
			Role:             t.Role,
			Content:          t.Content,
			SelectedElements: t.Selected,
			Timestamp:        ts,
		})
	}
	return out, nil
}

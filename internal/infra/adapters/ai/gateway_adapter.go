package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stellium-ask/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*GatewayAdapter)(nil)

// GatewayAdapter implements adapter.AIServiceAdapter against an
// OpenAI-compatible gateway. Chat completions path is the same as
// OpenAI: /chat/completions.
// Authorization: Bearer <GATEWAY_API_KEY>
type GatewayAdapter struct {
	apiKey string
	base   string
	model  string
	client *http.Client
}

func NewGatewayAdapter(apiKey, model, base string) (*GatewayAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gateway api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if base == "" {
		return nil, errors.New("gateway base url empty")
	}
	return &GatewayAdapter{
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (g *GatewayAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{g.model}, nil
}

func (g *GatewayAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	if model == "" {
		model = g.model
	}
	return adapter.ModelInfo{
		Name:        model,
		Description: "OpenAI-compatible gateway model",
		Supports:    []string{"text"},
	}, nil
}

func (g *GatewayAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	if model == "" {
		model = g.model
	}
	return approxTokens(model, messages)
}

func (g *GatewayAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	if model == "" {
		model = g.model
	}
	// Build the request using the shared adapter.Message with JSON tags
	reqBody := struct {
		Model    string            `json:"model"`
		Messages []adapter.Message `json:"messages"`
	}{Model: model, Messages: messages}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, g.base+"/chat/completions", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway http %d", resp.StatusCode)
	}
	var payload struct {
		Choices []struct {
			Message adapter.Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("no choice content")
}

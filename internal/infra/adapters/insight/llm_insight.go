package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/adapter"
)

var _ adapter.InsightService = (*LLMInsight)(nil)

const systemPrompt = "You are an experienced astrologer. Answer the user's question " +
	"using only the chart context provided. Be specific about the listed placements, " +
	"aspects and transits; do not invent positions that are not given. Keep the tone " +
	"warm and grounded, and keep answers under four paragraphs."

// LLMInsight serves interpretation requests directly from a chat model when no
// legacy backend is configured. It keeps no server-side log, so History always
// reports not found and the caller falls back to its own storage.
type LLMInsight struct {
	ai    adapter.AIServiceAdapter
	model string
}

func NewLLMInsight(ai adapter.AIServiceAdapter, model string) *LLMInsight {
	return &LLMInsight{ai: ai, model: model}
}

func (l *LLMInsight) Ask(ctx context.Context, req adapter.AskRequest) (string, error) {
	msgs := []adapter.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(req)},
	}
	reply, err := l.ai.Chat(ctx, l.model, msgs)
	if err != nil {
		return "", fmt.Errorf("llm insight: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("llm insight: empty reply")
	}
	return reply, nil
}

func (l *LLMInsight) History(ctx context.Context, ct model.ContentType, contentID string, limit int) ([]model.Message, error) {
	return nil, domain.ErrNotFound
}

func buildPrompt(req adapter.AskRequest) string {
	var b strings.Builder

	switch req.ContentType {
	case model.ContentBirthChart:
		b.WriteString("Context: a natal birth chart reading.\n")
	case model.ContentRelationship:
		b.WriteString("Context: a relationship compatibility reading.\n")
	case model.ContentHoroscope:
		fmt.Fprintf(&b, "Context: a %s horoscope reading.\n", req.Period)
	}

	if len(req.Elements) > 0 {
		b.WriteString("The reader selected these chart factors:\n")
		for _, el := range req.Elements {
			b.WriteString("- ")
			b.WriteString(el.Label)
			if el.Description != "" {
				b.WriteString(": ")
				b.WriteString(el.Description)
			}
			if el.Payload != nil {
				if raw, err := json.Marshal(el.Payload); err == nil {
					b.WriteString(" ")
					b.Write(raw)
				}
			}
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nQuestion: ")
	if strings.TrimSpace(req.Text) == "" {
		b.WriteString("Interpret the selected factors together.")
	} else {
		b.WriteString(req.Text)
	}
	return b.String()
}

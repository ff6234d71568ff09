package adapter

import (
	"context"

	"stellium-ask/internal/domain/model"
)

// AskRequest carries one conversation turn to the interpretation upstream.
// Elements is the selection snapshot; Period only matters for horoscope asks.
type AskRequest struct {
	ContentType model.ContentType
	ContentID   string
	Text        string
	Elements    []model.ContextElement
	Period      model.Period
}

// InsightService is the port for the interpretation upstream: the legacy
// astrology backend or a direct LLM provider. Ask returns only the assistant
// text; History pulls prior turns when the upstream keeps its own log (a
// provider without one returns ErrNotFound).
type InsightService interface {
	Ask(ctx context.Context, req AskRequest) (string, error)
	History(ctx context.Context, ct model.ContentType, contentID string, limit int) ([]model.Message, error)
}

// StatusError carries the upstream HTTP status so callers can distinguish
// quota/authorization rejections from plain failures.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string { return e.Msg }

// IsQuotaRejection reports whether the upstream refused the call for
// authorization or quota reasons (HTTP 403 shaped).
func (e *StatusError) IsQuotaRejection() bool { return e.Code == 403 }

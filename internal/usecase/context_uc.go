package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/astro"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/repository"
)

// Compile-time check
var _ ContextUseCase = (*contextUC)(nil)

// ContextQuery narrows the candidate element list: time window first (horoscope
// only), then category, then free-text search.
type ContextQuery struct {
	Category astro.Category
	Search   string
	Period   model.Period
}

// ContextUseCase derives the selectable candidate list for a subject.
type ContextUseCase interface {
	// Elements returns the filtered candidates plus a best-effort token
	// estimate for the full candidate context.
	Elements(ctx context.Context, ct model.ContentType, contentID string, q ContextQuery) ([]model.ContextElement, int, error)
}

type contextUC struct {
	charts   repository.ChartRepository
	tokModel string
	met      Metrics
	log      *zerolog.Logger
	now      func() time.Time
}

func NewContextUseCase(charts repository.ChartRepository, tokenizerModel string, met Metrics, logger *zerolog.Logger) *contextUC {
	if tokenizerModel == "" {
		tokenizerModel = "gpt-4o-mini"
	}
	l := logger.With().Str("component", "ContextUC").Logger()
	return &contextUC{charts: charts, tokModel: tokenizerModel, met: met, log: &l, now: time.Now}
}

func (uc *contextUC) Elements(ctx context.Context, ct model.ContentType, contentID string, q ContextQuery) ([]model.ContextElement, int, error) {
	if !ct.Valid() {
		return nil, 0, domain.ErrUnsupportedContentType
	}
	if contentID == "" {
		return nil, 0, domain.ErrMissingSubject
	}
	if !astro.ValidCategory(ct, q.Category) {
		return nil, 0, fmt.Errorf("%w: category %q", domain.ErrInvalidArgument, q.Category)
	}

	var els []model.ContextElement
	switch ct {
	case model.ContentBirthChart:
		chart, err := uc.charts.BirthChart(ctx, nil, contentID)
		if err != nil {
			return nil, 0, err
		}
		els = append(astro.PositionElements(chart.Positions), astro.AspectElements(chart.Aspects, chart.Positions)...)
	case model.ContentRelationship:
		items, err := uc.charts.RelationshipItems(ctx, nil, contentID)
		if err != nil {
			return nil, 0, err
		}
		els = astro.OrderRelationship(astro.RelationshipElements(items))
	case model.ContentHoroscope:
		transits, err := uc.charts.Transits(ctx, nil, contentID)
		if err != nil {
			return nil, 0, err
		}
		period := q.Period
		if period == "" {
			period = model.PeriodDaily
		}
		els = astro.TransitElements(astro.FilterTransitsByPeriod(transits, period, uc.now()))
	}

	els = astro.FilterBySearch(astro.FilterByCategory(els, q.Category), q.Search)
	uc.met.ElementsExtracted(len(els))
	return els, uc.estimateTokens(els), nil
}

// estimateTokens prices the candidate context if all of it were attached.
// Best-effort: tokenizer failures degrade to 0 rather than failing the list.
func (uc *contextUC) estimateTokens(els []model.ContextElement) int {
	if len(els) == 0 {
		return 0
	}
	enc, err := tiktoken.EncodingForModel(uc.tokModel)
	if err != nil {
		uc.log.Debug().Err(err).Str("model", uc.tokModel).Msg("tokenizer unavailable")
		return 0
	}
	var b strings.Builder
	for _, el := range els {
		b.WriteString(el.Label)
		b.WriteByte('\n')
		if el.Payload != nil {
			if raw, err := json.Marshal(el.Payload); err == nil {
				b.Write(raw)
				b.WriteByte('\n')
			}
		}
	}
	return len(enc.Encode(b.String(), nil, nil))
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/repository"
)

var _ repository.ChartRepository = (*ChartRepo)(nil)

// ChartRepo reads the raw astrological documents elements are derived from.
// Charts are stored as JSONB documents keyed by content id; this service
// only reads them (the computation pipeline that writes them is a separate
// system).
type ChartRepo struct {
	pool *pgxpool.Pool
}

func NewChartRepo(pool *pgxpool.Pool) *ChartRepo {
	return &ChartRepo{pool: pool}
}

func (r *ChartRepo) BirthChart(ctx context.Context, qx any, contentID string) (*model.BirthChart, error) {
	const q = `SELECT positions, aspects FROM birth_charts WHERE content_id = $1;`
	var positions, aspects []byte
	err := pick(r.pool, qx).QueryRow(ctx, q, contentID).Scan(&positions, &aspects)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("birth chart: %w", err)
	}
	chart := model.BirthChart{ID: contentID}
	if err := json.Unmarshal(positions, &chart.Positions); err != nil {
		return nil, fmt.Errorf("birth chart positions: %w", err)
	}
	if len(aspects) > 0 {
		if err := json.Unmarshal(aspects, &chart.Aspects); err != nil {
			return nil, fmt.Errorf("birth chart aspects: %w", err)
		}
	}
	return &chart, nil
}

func (r *ChartRepo) RelationshipItems(ctx context.Context, qx any, contentID string) ([]model.RelationshipItem, error) {
	const q = `SELECT items FROM relationship_factors WHERE content_id = $1;`
	var doc []byte
	err := pick(r.pool, qx).QueryRow(ctx, q, contentID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("relationship items: %w", err)
	}
	var items []model.RelationshipItem
	if err := json.Unmarshal(doc, &items); err != nil {
		return nil, fmt.Errorf("relationship items decode: %w", err)
	}
	return items, nil
}

func (r *ChartRepo) Transits(ctx context.Context, qx any, contentID string) ([]model.TransitWindow, error) {
	const q = `SELECT windows FROM transit_windows WHERE content_id = $1;`
	var doc []byte
	err := pick(r.pool, qx).QueryRow(ctx, q, contentID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("transits: %w", err)
	}
	var windows []model.TransitWindow
	if err := json.Unmarshal(doc, &windows); err != nil {
		return nil, fmt.Errorf("transits decode: %w", err)
	}
	return windows, nil
}

package repository

import (
	"context"

	"stellium-ask/internal/domain/model"
)

// ChartRepository supplies the raw astrological data elements are derived
// from, keyed by the subject's content id.
type ChartRepository interface {
	BirthChart(ctx context.Context, qx any, contentID string) (*model.BirthChart, error)
	RelationshipItems(ctx context.Context, qx any, contentID string) ([]model.RelationshipItem, error)
	Transits(ctx context.Context, qx any, contentID string) ([]model.TransitWindow, error)
}

//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/model"
)

func seedDoc(t *testing.T, q, contentID string, doc any) {
	t.Helper()
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := testPool.Exec(context.Background(), q, contentID, b); err != nil {
		t.Fatalf("seed doc: %v", err)
	}
}

func TestChartRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewChartRepo(testPool)
	ctx := context.Background()

	t.Run("birth chart document", func(t *testing.T) {
		cleanup(t)
		positions := []model.PlanetPosition{
			{Name: "Sun", Sign: "Aries", House: 1, Degree: 15.2},
			{Name: "Mercury", Sign: "Pisces", House: 12, Degree: 27.5, Retrograde: true},
		}
		seedDoc(t, `INSERT INTO birth_charts (content_id, positions) VALUES ($1,$2);`, "chart-1", positions)

		chart, err := repo.BirthChart(ctx, nil, "chart-1")
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(chart.Positions) != 2 || !chart.Positions[1].Retrograde {
			t.Errorf("chart = %+v", chart)
		}
		if len(chart.Aspects) != 0 {
			t.Errorf("aspects should be empty, got %+v", chart.Aspects)
		}
	})

	t.Run("relationship items", func(t *testing.T) {
		cleanup(t)
		items := []model.RelationshipItem{
			{Code: "syn-1", Source: "synastry", Label: "Sun conjunct Moon"},
			{Source: "placement", Label: "Mars in the 10th"},
		}
		seedDoc(t, `INSERT INTO relationship_factors (content_id, items) VALUES ($1,$2);`, "rel-1", items)

		got, err := repo.RelationshipItems(ctx, nil, "rel-1")
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(got) != 2 || got[0].Code != "syn-1" {
			t.Errorf("items = %+v", got)
		}
	})

	t.Run("unknown documents", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.BirthChart(ctx, nil, "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("birth chart err = %v", err)
		}
		if _, err := repo.Transits(ctx, nil, "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("transits err = %v", err)
		}
	})
}

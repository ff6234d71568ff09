package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"stellium-ask/internal/config"
	"stellium-ask/internal/domain/model"
	pg "stellium-ask/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if err := pg.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}
	fmt.Println("schema ensured")

	// Demo user with a starting balance. Idempotent.
	if _, err := pool.Exec(ctx, `
INSERT INTO users (id, credits) VALUES ('demo-user', 50)
ON CONFLICT (id) DO NOTHING;`); err != nil {
		log.Fatalf("seed user: %v", err)
	}

	positions := []model.PlanetPosition{
		{Name: "Sun", Sign: "Aries", House: 1, Degree: 15.2},
		{Name: "Moon", Sign: "Cancer", House: 4, Degree: 3.8},
		{Name: "Mercury", Sign: "Pisces", House: 12, Degree: 27.5, Retrograde: true},
		{Name: "Venus", Sign: "Taurus", House: 2, Degree: 9.1},
		{Name: "Mars", Sign: "Capricorn", House: 10, Degree: 21.0},
	}
	aspects := []model.Aspect{
		{Planet1: "Sun", Planet2: "Moon", Type: "square", Orb: 2.3},
		{Planet1: "Venus", Planet2: "Mars", Type: "trine", Orb: 0.8},
	}
	if err := upsertDoc(ctx, pool, `
INSERT INTO birth_charts (content_id, positions, aspects) VALUES ($1,$2,$3)
ON CONFLICT (content_id) DO UPDATE SET positions = EXCLUDED.positions, aspects = EXCLUDED.aspects;`,
		"demo-chart", positions, aspects); err != nil {
		log.Fatalf("seed birth chart: %v", err)
	}

	relItems := []model.RelationshipItem{
		{Code: "syn-sun-moon", Source: "synastry", Label: "Sun conjunct Moon", Description: "A natural emotional rapport."},
		{Code: "comp-venus", Source: "composite", Label: "Composite Venus in 7th", Description: "Partnership is the point."},
		{Source: "placement", Label: "Their Mars in your 10th", Description: "They push your ambitions."},
	}
	if err := upsertDoc(ctx, pool, `
INSERT INTO relationship_factors (content_id, items) VALUES ($1,$2)
ON CONFLICT (content_id) DO UPDATE SET items = EXCLUDED.items;`,
		"demo-relationship", relItems, nil); err != nil {
		log.Fatalf("seed relationship: %v", err)
	}

	now := time.Now()
	windows := []model.TransitWindow{
		{
			Kind:             "transit-to-natal",
			TransitingPlanet: "Mars", Aspect: "square", TargetPlanet: "Venus",
			Start: now.AddDate(0, 0, -2), End: now.AddDate(0, 0, 5),
		},
		{
			Kind:             "transit-to-natal",
			TransitingPlanet: "Jupiter", Aspect: "trine", TargetPlanet: "Sun",
			Start: now.AddDate(0, 0, 1), End: now.AddDate(0, 1, 0),
		},
		{
			Kind:             "transit-to-transit",
			TransitingPlanet: "Mercury", Aspect: "conjunction", TargetPlanet: "Saturn",
			Start: now.AddDate(0, 0, 10), End: now.AddDate(0, 0, 14),
		},
	}
	if err := upsertDoc(ctx, pool, `
INSERT INTO transit_windows (content_id, windows) VALUES ($1,$2)
ON CONFLICT (content_id) DO UPDATE SET windows = EXCLUDED.windows;`,
		"demo-horoscope", windows, nil); err != nil {
		log.Fatalf("seed transits: %v", err)
	}

	fmt.Println("seeded demo-user, demo-chart, demo-relationship, demo-horoscope")
}

func upsertDoc(ctx context.Context, pool *pgxpool.Pool, q, contentID string, doc, extra any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if extra != nil {
		eb, err := json.Marshal(extra)
		if err != nil {
			return err
		}
		_, err = pool.Exec(ctx, q, contentID, b, eb)
		return err
	}
	_, err = pool.Exec(ctx, q, contentID, b)
	return err
}

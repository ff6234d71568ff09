package model

import "time"

// ContentType identifies the kind of subject a conversation is about.
type ContentType string

const (
	ContentBirthChart   ContentType = "birthchart"
	ContentRelationship ContentType = "relationship"
	ContentHoroscope    ContentType = "horoscope"
)

func (c ContentType) Valid() bool {
	switch c {
	case ContentBirthChart, ContentRelationship, ContentHoroscope:
		return true
	}
	return false
}

// Period is the active horoscope window used to bound selectable transits.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// PlanetPosition is one placed body in a birth chart.
type PlanetPosition struct {
	Name       string  `json:"name"`
	Sign       string  `json:"sign"`
	House      int     `json:"house"`
	Degree     float64 `json:"degree"`
	Retrograde bool    `json:"retrograde"`
}

// Aspect is an angular relation between two placed bodies.
type Aspect struct {
	Planet1 string  `json:"planet1"`
	Planet2 string  `json:"planet2"`
	Type    string  `json:"type"` // conjunction, trine, square, ...
	Orb     float64 `json:"orb"`
}

// BirthChart bundles the raw chart data elements are derived from.
type BirthChart struct {
	ID        string           `json:"id"`
	Positions []PlanetPosition `json:"positions"`
	Aspects   []Aspect         `json:"aspects"`
}

// RelationshipItem is one pre-scored factor of a relationship analysis.
// Source is one of "synastry", "composite" or "placement".
type RelationshipItem struct {
	ID          string  `json:"id,omitempty"`
	Code        string  `json:"code,omitempty"`
	Source      string  `json:"source,omitempty"`
	Label       string  `json:"label,omitempty"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// TransitWindow is one transit event with its active interval.
type TransitWindow struct {
	Kind             string    `json:"kind"` // transit-to-natal | transit-to-transit
	TransitingPlanet string    `json:"transitingPlanet"`
	Aspect           string    `json:"aspect"`
	TargetPlanet     string    `json:"targetPlanet"`
	TransitingSign   string    `json:"transitingSign,omitempty"`
	TargetSign       string    `json:"targetSign,omitempty"`
	TransitingHouse  int       `json:"transitingHouse,omitempty"`
	TargetHouse      int       `json:"targetHouse,omitempty"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Exact            time.Time `json:"exact,omitempty"`
	MoonPhase        string    `json:"moonPhase,omitempty"`
}

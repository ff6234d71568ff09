package astro

import (
	"fmt"
	"strings"
	"time"

	"stellium-ask/internal/domain/model"
)

// Bodies that never become selectable context on their own.
var nonSubstantive = map[string]bool{
	"South Node":      true,
	"Part of Fortune": true,
}

// PositionPayload is the transmit-ready subset of a placed body.
type PositionPayload struct {
	Planet     string  `json:"planet"`
	Sign       string  `json:"sign,omitempty"`
	House      int     `json:"house,omitempty"`
	Degree     float64 `json:"degree,omitempty"`
	Retrograde bool    `json:"retrograde,omitempty"`
}

// AspectPayload is the transmit-ready subset of an aspect, with both
// participants resolved against the current planet list.
type AspectPayload struct {
	Planet1      string  `json:"planet1"`
	Planet2      string  `json:"planet2"`
	AspectType   string  `json:"aspectType"`
	Orb          float64 `json:"orb,omitempty"`
	Planet1Sign  string  `json:"planet1Sign,omitempty"`
	Planet2Sign  string  `json:"planet2Sign,omitempty"`
	Planet1House int     `json:"planet1House,omitempty"`
	Planet2House int     `json:"planet2House,omitempty"`
}

// TransitPayload preserves the window fields the backend interprets against.
type TransitPayload struct {
	Kind             string `json:"kind"`
	TransitingPlanet string `json:"transitingPlanet"`
	Aspect           string `json:"aspect,omitempty"`
	TargetPlanet     string `json:"targetPlanet,omitempty"`
	TransitingSign   string `json:"transitingSign,omitempty"`
	TargetSign       string `json:"targetSign,omitempty"`
	TransitingHouse  int    `json:"transitingHouse,omitempty"`
	TargetHouse      int    `json:"targetHouse,omitempty"`
	Start            string `json:"start,omitempty"`
	End              string `json:"end,omitempty"`
	Exact            string `json:"exact,omitempty"`
	MoonPhase        string `json:"moonPhase,omitempty"`
}

// RelationshipPayload mirrors one pre-scored relationship factor.
type RelationshipPayload struct {
	ID          string  `json:"id,omitempty"`
	Code        string  `json:"code,omitempty"`
	Source      string  `json:"source,omitempty"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// PositionElements derives selectable elements from chart positions,
// skipping non-substantive bodies.
func PositionElements(positions []model.PlanetPosition) []model.ContextElement {
	out := make([]model.ContextElement, 0, len(positions))
	for _, p := range positions {
		if nonSubstantive[p.Name] {
			continue
		}
		label := p.Name
		if p.Sign != "" {
			label = p.Name + " in " + p.Sign
		}
		desc := label
		if hp := HousePhrase(p.House); hp != "" {
			desc += " in " + hp
		}
		if p.Retrograde {
			desc += " (retrograde)"
		}
		out = append(out, model.ContextElement{
			Group:       model.ContentBirthChart,
			Kind:        model.KindPosition,
			Key:         PositionCode(p.Name, p.Sign, p.House),
			Label:       label,
			Description: desc,
			Payload: PositionPayload{
				Planet:     p.Name,
				Sign:       p.Sign,
				House:      p.House,
				Degree:     p.Degree,
				Retrograde: p.Retrograde,
			},
		})
	}
	return uniqueKeys(out)
}

// AspectElements derives selectable elements from chart aspects. An aspect
// whose participants cannot both be resolved against the current planet list
// is dropped without error.
func AspectElements(aspects []model.Aspect, positions []model.PlanetPosition) []model.ContextElement {
	byName := make(map[string]model.PlanetPosition, len(positions))
	for _, p := range positions {
		byName[p.Name] = p
	}
	out := make([]model.ContextElement, 0, len(aspects))
	for _, a := range aspects {
		p1, ok1 := byName[a.Planet1]
		p2, ok2 := byName[a.Planet2]
		if !ok1 || !ok2 {
			continue
		}
		label := strings.TrimSpace(a.Planet1 + " " + strings.ToLower(a.Type) + " " + a.Planet2)
		desc := describeAspectEnd(p1) + " " + strings.ToLower(a.Type) + " " + describeAspectEnd(p2)
		out = append(out, model.ContextElement{
			Group:       model.ContentBirthChart,
			Kind:        model.KindAspect,
			Key:         AspectPairCode(a.Planet1, p1.House, a.Type, a.Planet2, p2.House),
			Label:       label,
			Description: desc,
			Payload: AspectPayload{
				Planet1:      a.Planet1,
				Planet2:      a.Planet2,
				AspectType:   a.Type,
				Orb:          a.Orb,
				Planet1Sign:  p1.Sign,
				Planet2Sign:  p2.Sign,
				Planet1House: p1.House,
				Planet2House: p2.House,
			},
		})
	}
	return uniqueKeys(out)
}

func describeAspectEnd(p model.PlanetPosition) string {
	s := p.Name
	if hp := HousePhrase(p.House); hp != "" {
		s += " in " + hp
	}
	return s
}

// RelationshipElements maps pre-scored relationship factors. The key falls
// back through code, id, source and the literal "rel", then always takes the
// array index so colliding upstream ids still yield unique keys.
func RelationshipElements(items []model.RelationshipItem) []model.ContextElement {
	out := make([]model.ContextElement, 0, len(items))
	for i, it := range items {
		base := it.Code
		if base == "" {
			base = it.ID
		}
		if base == "" {
			base = it.Source
		}
		if base == "" {
			base = "rel"
		}
		label := it.Label
		if label == "" {
			label = it.Description
		}
		out = append(out, model.ContextElement{
			Group:       model.ContentRelationship,
			Kind:        model.KindRelationshipItem,
			Key:         fmt.Sprintf("%s-%d", base, i),
			Label:       label,
			Description: it.Description,
			Section:     it.Source,
			Payload: RelationshipPayload{
				ID:          it.ID,
				Code:        it.Code,
				Source:      it.Source,
				Description: it.Description,
				Score:       it.Score,
			},
		})
	}
	return uniqueKeys(out)
}

// TransitElements maps transit windows. The label joins transiting planet,
// aspect and target, skipping blanks.
func TransitElements(transits []model.TransitWindow) []model.ContextElement {
	out := make([]model.ContextElement, 0, len(transits))
	for _, t := range transits {
		parts := make([]string, 0, 3)
		for _, p := range []string{t.TransitingPlanet, strings.ToLower(t.Aspect), t.TargetPlanet} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		label := strings.Join(parts, " ")
		start := ""
		if !t.Start.IsZero() {
			start = t.Start.Format("20060102")
		}
		out = append(out, model.ContextElement{
			Group:       model.ContentHoroscope,
			Kind:        model.KindTransit,
			Key:         TransitCode(t.TransitingPlanet, t.Aspect, t.TargetPlanet, start),
			Label:       label,
			Description: describeTransit(t, label),
			Section:     t.Kind,
			Payload: TransitPayload{
				Kind:             t.Kind,
				TransitingPlanet: t.TransitingPlanet,
				Aspect:           t.Aspect,
				TargetPlanet:     t.TargetPlanet,
				TransitingSign:   t.TransitingSign,
				TargetSign:       t.TargetSign,
				TransitingHouse:  t.TransitingHouse,
				TargetHouse:      t.TargetHouse,
				Start:            rfc3339OrEmpty(t.Start),
				End:              rfc3339OrEmpty(t.End),
				Exact:            rfc3339OrEmpty(t.Exact),
				MoonPhase:        t.MoonPhase,
			},
		})
	}
	return uniqueKeys(out)
}

func describeTransit(t model.TransitWindow, label string) string {
	desc := label
	if t.TransitingSign != "" {
		desc += " in " + t.TransitingSign
	}
	if !t.Start.IsZero() && !t.End.IsZero() {
		desc += fmt.Sprintf(" (%s - %s)", t.Start.Format("Jan 2"), t.End.Format("Jan 2"))
	}
	return desc
}

func rfc3339OrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// uniqueKeys suffixes repeated keys with a running counter so one candidate
// list never carries duplicates, even for garbled input.
func uniqueKeys(els []model.ContextElement) []model.ContextElement {
	seen := make(map[string]int, len(els))
	for i := range els {
		k := els[i].Key
		if n, dup := seen[k]; dup {
			seen[k] = n + 1
			els[i].Key = fmt.Sprintf("%s-%d", k, n+1)
			continue
		}
		seen[k] = 1
	}
	return els
}

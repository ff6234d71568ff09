package astro

import (
	"sort"
	"strings"
	"time"

	"stellium-ask/internal/domain/model"
)

// Category narrows a candidate list within one content type. "all" is always
// the identity.
type Category string

const (
	CategoryAll Category = "all"

	CategoryPositions Category = "positions"
	CategoryAspects   Category = "aspects"

	CategorySynastry   Category = "synastry"
	CategoryComposite  Category = "composite"
	CategoryPlacements Category = "placements"

	CategoryTransitToNatal   Category = "transit-to-natal"
	CategoryTransitToTransit Category = "transit-to-transit"
)

// CategoriesFor returns the fixed category vocabulary of a content type.
func CategoriesFor(ct model.ContentType) []Category {
	switch ct {
	case model.ContentBirthChart:
		return []Category{CategoryAll, CategoryPositions, CategoryAspects}
	case model.ContentRelationship:
		return []Category{CategoryAll, CategorySynastry, CategoryComposite, CategoryPlacements}
	case model.ContentHoroscope:
		return []Category{CategoryAll, CategoryTransitToNatal, CategoryTransitToTransit}
	}
	return nil
}

// ValidCategory reports whether c belongs to ct's vocabulary. An empty
// category is treated as "all".
func ValidCategory(ct model.ContentType, c Category) bool {
	if c == "" || c == CategoryAll {
		return true
	}
	for _, v := range CategoriesFor(ct) {
		if v == c {
			return true
		}
	}
	return false
}

// FilterByCategory keeps the elements matching the category. The result is a
// pure partition of the input; "all" (or empty) returns it unchanged.
func FilterByCategory(els []model.ContextElement, c Category) []model.ContextElement {
	if c == "" || c == CategoryAll {
		return els
	}
	out := make([]model.ContextElement, 0, len(els))
	for _, el := range els {
		if matchesCategory(el, c) {
			out = append(out, el)
		}
	}
	return out
}

func matchesCategory(el model.ContextElement, c Category) bool {
	switch c {
	case CategoryPositions:
		return el.Kind == model.KindPosition
	case CategoryAspects:
		return el.Kind == model.KindAspect
	case CategorySynastry:
		return el.Section == "synastry"
	case CategoryComposite:
		return el.Section == "composite"
	case CategoryPlacements:
		return el.Section == "placement"
	case CategoryTransitToNatal:
		return el.Section == "transit-to-natal"
	case CategoryTransitToTransit:
		return el.Section == "transit-to-transit"
	}
	return false
}

// FilterBySearch keeps elements whose label contains the query,
// case-insensitively, falling back to the description when the label is
// blank. A blank or whitespace-only query returns the input unchanged.
func FilterBySearch(els []model.ContextElement, query string) []model.ContextElement {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return els
	}
	out := make([]model.ContextElement, 0, len(els))
	for _, el := range els {
		hay := el.Label
		if hay == "" {
			hay = el.Description
		}
		if strings.Contains(strings.ToLower(hay), q) {
			out = append(out, el)
		}
	}
	return out
}

// relationship section order for stable UI grouping; selectability is
// unaffected.
var relationshipOrder = map[string]int{
	"synastry":  0,
	"composite": 1,
	"placement": 2,
}

// OrderRelationship sorts relationship elements into the fixed section order
// (synastry, composite, placements), keeping the original order within each
// section.
func OrderRelationship(els []model.ContextElement) []model.ContextElement {
	out := make([]model.ContextElement, len(els))
	copy(out, els)
	sort.SliceStable(out, func(i, j int) bool {
		oi, ok := relationshipOrder[out[i].Section]
		if !ok {
			oi = len(relationshipOrder)
		}
		oj, ok := relationshipOrder[out[j].Section]
		if !ok {
			oj = len(relationshipOrder)
		}
		return oi < oj
	})
	return out
}

// PeriodBounds computes the local-date boundaries of the active period.
// Daily spans midnight through 23:59:59.999 of the same day. Weekly runs
// Monday 00:00 through Sunday 23:59:59.999, with Monday computed as
// today - weekday + (weekday==Sunday ? -6 : 1). Monthly spans the first of
// the month through the last day at 23:59:59.999.
func PeriodBounds(p model.Period, now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	loc := now.Location()
	switch p {
	case model.PeriodWeekly:
		wd := int(now.Weekday())
		delta := 1 - wd
		if wd == 0 {
			delta = -6
		}
		start := time.Date(y, m, d+delta, 0, 0, 0, 0, loc)
		end := time.Date(y, m, d+delta+6, 23, 59, 59, 999e6, loc)
		return start, end
	case model.PeriodMonthly:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		end := time.Date(y, m+1, 1, 0, 0, 0, 0, loc).Add(-time.Millisecond)
		return start, end
	default: // daily
		start := time.Date(y, m, d, 0, 0, 0, 0, loc)
		end := time.Date(y, m, d, 23, 59, 59, 999e6, loc)
		return start, end
	}
}

// Overlaps is the inclusive interval test: a transit [ts,te] is in a period
// [ps,pe] iff ts <= pe and te >= ps. Boundary-touching windows count.
func Overlaps(ts, te, ps, pe time.Time) bool {
	return !ts.After(pe) && !te.Before(ps)
}

// FilterTransitsByPeriod keeps transits overlapping the active period. It is
// applied to the raw windows before element derivation and category
// filtering.
func FilterTransitsByPeriod(transits []model.TransitWindow, p model.Period, now time.Time) []model.TransitWindow {
	ps, pe := PeriodBounds(p, now)
	out := make([]model.TransitWindow, 0, len(transits))
	for _, t := range transits {
		if Overlaps(t.Start, t.End, ps, pe) {
			out = append(out, t)
		}
	}
	return out
}

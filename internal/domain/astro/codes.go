// Package astro holds the pure data-shaping core: symbolic code formatting,
// context element derivation and the filter/search stages. Nothing in here
// performs I/O or returns an error; malformed records degrade to fallback
// output instead.
package astro

import (
	"fmt"
	"strings"
)

var planetCodes = map[string]string{
	"Sun":             "Su",
	"Moon":            "Mo",
	"Mercury":         "Me",
	"Venus":           "Ve",
	"Mars":            "Ma",
	"Jupiter":         "Ju",
	"Saturn":          "Sa",
	"Uranus":          "Ur",
	"Neptune":         "Ne",
	"Pluto":           "Pl",
	"Ascendant":       "As",
	"Midheaven":       "Mc",
	"Chiron":          "Ch",
	"North Node":      "Nn",
	"South Node":      "Sn",
	"Part of Fortune": "Pf",
}

var signCodes = map[string]string{
	"Aries":       "Ar",
	"Taurus":      "Ta",
	"Gemini":      "Ge",
	"Cancer":      "Ca",
	"Leo":         "Le",
	"Virgo":       "Vi",
	"Libra":       "Li",
	"Scorpio":     "Sc",
	"Sagittarius": "Sg",
	"Capricorn":   "Cp",
	"Aquarius":    "Aq",
	"Pisces":      "Pi",
}

var aspectCodes = map[string]string{
	"conjunction":    "Co",
	"opposition":     "Op",
	"trine":          "Tr",
	"square":         "Sq",
	"sextile":        "Sx",
	"quincunx":       "Qu",
	"semisextile":    "Ss",
	"sesquiquadrate": "Se",
}

// abbrev looks a name up in the given table, falling back to the first two
// characters of the name when the lookup misses.
func abbrev(table map[string]string, name string) string {
	if c, ok := table[name]; ok {
		return c
	}
	r := []rune(name)
	if len(r) >= 2 {
		return string(r[:2])
	}
	if len(r) == 1 {
		return name
	}
	return "??"
}

func PlanetCode(name string) string { return abbrev(planetCodes, name) }

func SignCode(name string) string { return abbrev(signCodes, name) }

func AspectCode(name string) string { return abbrev(aspectCodes, strings.ToLower(name)) }

// HouseCode zero-pads a house number to two digits; out-of-range houses
// render as "00".
func HouseCode(house int) string {
	if house < 1 || house > 12 {
		return "00"
	}
	return fmt.Sprintf("%02d", house)
}

// PositionCode builds the compact code for a placed body,
// e.g. "Pp-SuAr01" for Sun in Aries, house 1.
func PositionCode(planet, sign string, house int) string {
	return "Pp-" + PlanetCode(planet) + SignCode(sign) + HouseCode(house)
}

// AspectPairCode builds the compact code for an aspect between two placed
// bodies, carrying both houses so the code stays unique across pairs,
// e.g. "A-Su01TrMo05".
func AspectPairCode(p1 string, h1 int, aspect, p2 string, h2 int) string {
	return "A-" + PlanetCode(p1) + HouseCode(h1) + AspectCode(aspect) + PlanetCode(p2) + HouseCode(h2)
}

// TransitCode builds the compact code for a transit window,
// e.g. "T-MaSqVe-20240315". startDate is yyyymmdd or "na" when unknown.
func TransitCode(transiting, aspect, target, startDate string) string {
	if startDate == "" {
		startDate = "na"
	}
	return "T-" + PlanetCode(transiting) + AspectCode(aspect) + PlanetCode(target) + "-" + startDate
}

// Ordinal renders n with its English ordinal suffix: 1st, 2nd, 3rd, 11th,
// 21st. The tens digit 1 (11-13) always takes "th".
func Ordinal(n int) string {
	suffix := "th"
	if n%100/10 != 1 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// HousePhrase renders "the 1st house" for known houses, "" otherwise.
func HousePhrase(house int) string {
	if house < 1 || house > 12 {
		return ""
	}
	return "the " + Ordinal(house) + " house"
}

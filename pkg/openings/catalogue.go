// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package openings provides the static opening catalogue mapping opening
// names, synonyms, and ECO codes to canonical slugs and ECO ranges.
//
// The catalogue is immutable after process start. Lookups are used by the
// intent analyzer (free text to filters) and the ingestion controller
// (ECO tag to slug).
package openings

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Entry is a single opening family in the catalogue.
type Entry struct {
	// Slug is the canonical snake-case identifier, e.g. "kings_indian_defense".
	Slug string

	// Name is the display name, e.g. "King's Indian Defense".
	Name string

	// Synonyms are lowercase, punctuation-free phrases matched against
	// normalized question text. The display name need not be repeated;
	// it is normalized and matched automatically.
	Synonyms []string

	// ECOLo and ECOHi bound the inclusive ECO range, e.g. "E60".."E99".
	ECOLo, ECOHi string
}

// ECORange renders the entry's range in the canonical "E60-E99" form.
func (e Entry) ECORange() string { return e.ECOLo + "-" + e.ECOHi }

// span is the width of the ECO range, used to pick the most specific
// entry containing a code. Three-character ECO codes order correctly as
// strings, so the span is a plain letter/digit arithmetic.
func (e Entry) span() int {
	return int(e.ECOHi[0]-e.ECOLo[0])*100 +
		int(e.ECOHi[1]-'0')*10 + int(e.ECOHi[2]-'0') -
		int(e.ECOLo[1]-'0')*10 - int(e.ECOLo[2]-'0')
}

// Filter is one (slug, ECO range) disjunct produced from question text.
type Filter struct {
	Slug     string
	ECORange string
}

// catalogue is the static table. Synonyms deliberately include the
// shortest unambiguous phrasings players actually type; the matcher is
// whole-word, so "kings indian" will not fire on "kings indian attack"
// entries and vice versa.
var catalogue = []Entry{
	{Slug: "sicilian_defense", Name: "Sicilian Defense", Synonyms: []string{"sicilian"}, ECOLo: "B20", ECOHi: "B99"},
	{Slug: "sicilian_najdorf", Name: "Sicilian Najdorf", Synonyms: []string{"najdorf"}, ECOLo: "B90", ECOHi: "B99"},
	{Slug: "sicilian_dragon", Name: "Sicilian Dragon", Synonyms: []string{"dragon"}, ECOLo: "B70", ECOHi: "B79"},
	{Slug: "french_defense", Name: "French Defense", Synonyms: []string{"french"}, ECOLo: "C00", ECOHi: "C19"},
	{Slug: "caro_kann_defense", Name: "Caro-Kann Defense", Synonyms: []string{"caro kann", "caro"}, ECOLo: "B10", ECOHi: "B19"},
	{Slug: "scandinavian_defense", Name: "Scandinavian Defense", Synonyms: []string{"scandinavian", "center counter"}, ECOLo: "B01", ECOHi: "B01"},
	{Slug: "pirc_defense", Name: "Pirc Defense", Synonyms: []string{"pirc"}, ECOLo: "B07", ECOHi: "B09"},
	{Slug: "alekhine_defense", Name: "Alekhine Defense", Synonyms: []string{"alekhine", "alekhines defense"}, ECOLo: "B02", ECOHi: "B05"},
	{Slug: "italian_game", Name: "Italian Game", Synonyms: []string{"italian", "giuoco piano"}, ECOLo: "C50", ECOHi: "C54"},
	{Slug: "ruy_lopez", Name: "Ruy Lopez", Synonyms: []string{"ruy lopez", "spanish opening", "spanish game"}, ECOLo: "C60", ECOHi: "C99"},
	{Slug: "berlin_defense", Name: "Berlin Defense", Synonyms: []string{"berlin"}, ECOLo: "C65", ECOHi: "C67"},
	{Slug: "scotch_game", Name: "Scotch Game", Synonyms: []string{"scotch"}, ECOLo: "C44", ECOHi: "C45"},
	{Slug: "petrov_defense", Name: "Petrov Defense", Synonyms: []string{"petrov", "petroff", "russian defense"}, ECOLo: "C42", ECOHi: "C43"},
	{Slug: "vienna_game", Name: "Vienna Game", Synonyms: []string{"vienna"}, ECOLo: "C25", ECOHi: "C29"},
	{Slug: "kings_gambit", Name: "King's Gambit", Synonyms: []string{"kings gambit"}, ECOLo: "C30", ECOHi: "C39"},
	{Slug: "queens_gambit_declined", Name: "Queen's Gambit Declined", Synonyms: []string{"queens gambit declined", "qgd"}, ECOLo: "D30", ECOHi: "D69"},
	{Slug: "queens_gambit_accepted", Name: "Queen's Gambit Accepted", Synonyms: []string{"queens gambit accepted", "qga"}, ECOLo: "D20", ECOHi: "D29"},
	{Slug: "slav_defense", Name: "Slav Defense", Synonyms: []string{"slav"}, ECOLo: "D10", ECOHi: "D19"},
	{Slug: "semi_slav_defense", Name: "Semi-Slav Defense", Synonyms: []string{"semi slav"}, ECOLo: "D43", ECOHi: "D49"},
	{Slug: "nimzo_indian_defense", Name: "Nimzo-Indian Defense", Synonyms: []string{"nimzo indian", "nimzo"}, ECOLo: "E20", ECOHi: "E59"},
	{Slug: "queens_indian_defense", Name: "Queen's Indian Defense", Synonyms: []string{"queens indian"}, ECOLo: "E12", ECOHi: "E19"},
	{Slug: "kings_indian_defense", Name: "King's Indian Defense", Synonyms: []string{"kings indian", "kid"}, ECOLo: "E60", ECOHi: "E99"},
	{Slug: "kings_indian_attack", Name: "King's Indian Attack", Synonyms: []string{"kings indian attack", "kia"}, ECOLo: "A07", ECOHi: "A08"},
	{Slug: "grunfeld_defense", Name: "Grünfeld Defense", Synonyms: []string{"grunfeld", "gruenfeld"}, ECOLo: "D70", ECOHi: "D99"},
	{Slug: "benoni_defense", Name: "Benoni Defense", Synonyms: []string{"benoni", "modern benoni"}, ECOLo: "A56", ECOHi: "A79"},
	{Slug: "benko_gambit", Name: "Benko Gambit", Synonyms: []string{"benko", "volga gambit"}, ECOLo: "A57", ECOHi: "A59"},
	{Slug: "dutch_defense", Name: "Dutch Defense", Synonyms: []string{"dutch"}, ECOLo: "A80", ECOHi: "A99"},
	{Slug: "english_opening", Name: "English Opening", Synonyms: []string{"english"}, ECOLo: "A10", ECOHi: "A39"},
	{Slug: "reti_opening", Name: "Réti Opening", Synonyms: []string{"reti"}, ECOLo: "A04", ECOHi: "A09"},
	{Slug: "catalan_opening", Name: "Catalan Opening", Synonyms: []string{"catalan"}, ECOLo: "E00", ECOHi: "E09"},
	{Slug: "london_system", Name: "London System", Synonyms: []string{"london"}, ECOLo: "D02", ECOHi: "D02"},
	{Slug: "trompowsky_attack", Name: "Trompowsky Attack", Synonyms: []string{"trompowsky"}, ECOLo: "A45", ECOHi: "A45"},
}

// matchers is derived from the catalogue at init: every normalized
// synonym (plus the normalized display name) keyed to its entry, longest
// synonyms first so specific phrases win their prefix families.
var matchers []synonymMatcher

type synonymMatcher struct {
	phrase string
	entry  *Entry
}

func init() {
	for i := range catalogue {
		e := &catalogue[i]
		seen := map[string]bool{}
		for _, syn := range append([]string{e.Name}, e.Synonyms...) {
			p := Normalize(syn)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			matchers = append(matchers, synonymMatcher{phrase: p, entry: e})
		}
	}
	sort.SliceStable(matchers, func(i, j int) bool {
		return len(matchers[i].phrase) > len(matchers[j].phrase)
	})
}

// Normalize lowercases, applies Unicode NFKC, strips punctuation, and
// collapses whitespace. It is the shared normal form for catalogue
// synonyms and question text.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range text {
		switch {
		case r == '\'' || r == '’':
			// Apostrophes vanish: "King's" matches "kings".
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			space = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// SlugForECO returns the most specific catalogue slug whose ECO range
// contains the given code, or "" when no entry contains it. Specificity
// is the narrowest containing range, so "B92" resolves to the Najdorf
// rather than the whole Sicilian complex.
func SlugForECO(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 || code[0] < 'A' || code[0] > 'E' {
		return ""
	}
	best := ""
	bestSpan := -1
	for i := range catalogue {
		e := &catalogue[i]
		if code < e.ECOLo || code > e.ECOHi {
			continue
		}
		if bestSpan == -1 || e.span() < bestSpan {
			best = e.Slug
			bestSpan = e.span()
		}
	}
	return best
}

// NameForSlug returns the display name for a catalogue slug, or "".
func NameForSlug(slug string) string {
	for i := range catalogue {
		if catalogue[i].Slug == slug {
			return catalogue[i].Name
		}
	}
	return ""
}

// HasSlug reports whether slug is present in the catalogue.
func HasSlug(slug string) bool { return NameForSlug(slug) != "" }

// Phrases returns every normalized matcher phrase, longest first. The
// intent analyzer uses it to scrub matched opening names out of the
// keyword residue.
func Phrases() []string {
	out := make([]string, len(matchers))
	for i, m := range matchers {
		out[i] = m.phrase
	}
	return out
}

// FiltersForText returns the (slug, ECO range) pairs whose synonym list
// has a whole-word match against the normalized text. Multiple matches
// yield multiple filters; callers treat them as a disjunction.
//
// A matched phrase is consumed so that "kings indian attack" does not
// additionally fire the "kings indian" synonym of the defense.
func FiltersForText(text string) []Filter {
	normalized := " " + Normalize(text) + " "

	var filters []Filter
	seen := map[string]bool{}
	for _, m := range matchers {
		needle := " " + m.phrase + " "
		if !strings.Contains(normalized, needle) {
			continue
		}
		normalized = strings.ReplaceAll(normalized, needle, " ")
		if seen[m.entry.Slug] {
			continue
		}
		seen[m.entry.Slug] = true
		filters = append(filters, Filter{Slug: m.entry.Slug, ECORange: m.entry.ECORange()})
	}
	return filters
}

// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package intent turns a natural-language chess question into a
// structured query plan. Analysis is deterministic and makes no
// external calls: the same question always yields the same plan.
package intent

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/chessmate/chessmate/pkg/openings"
)

// Limit bounds applied after extraction.
const (
	MinLimit     = 1
	MaxLimit     = 50
	DefaultLimit = 5
)

// Filter is one structured predicate extracted from the question.
// Field is one of "opening", "eco_range", "phase", "theme".
type Filter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// RatingFilter holds rating constraints. Zero means unset.
type RatingFilter struct {
	WhiteMin       int `json:"white_min,omitempty"`
	BlackMin       int `json:"black_min,omitempty"`
	MaxRatingDelta int `json:"max_rating_delta,omitempty"`
}

// Empty reports whether no rating constraint was extracted.
func (r RatingFilter) Empty() bool {
	return r.WhiteMin == 0 && r.BlackMin == 0 && r.MaxRatingDelta == 0
}

// Plan is the pure-data result of Analyse.
type Plan struct {
	CleanedText string       `json:"cleaned_text"`
	Limit       int          `json:"limit"`
	Filters     []Filter     `json:"filters"`
	Rating      RatingFilter `json:"rating"`
	Keywords    []string     `json:"keywords"`
}

// Fingerprint is a stable digest of the plan's semantic content, used as
// a cache-key component by the agent evaluator.
func (p Plan) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%+v|%+v|%v", p.Limit, p.Filters, p.Rating, p.Keywords)
	return strconv.FormatUint(h.Sum64(), 16)
}

// English numerals accepted where a count is expected.
var numerals = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19, "twenty": 20,
}

const numeralAlt = "one|two|three|four|five|six|seven|eight|nine|ten|" +
	"eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty"

var (
	limitRe = regexp.MustCompile(
		`\b(?:find|show|top|give)(?:\s+(?:me|us|the))*\s+(\d+|` + numeralAlt + `)\b`)

	withinRe = regexp.MustCompile(`\bwithin\s+(\d+)\s+(?:points|elo)\b`)
	deltaRe  = regexp.MustCompile(`\b(\d+)\s+(?:points|elo)\s+(?:lower|higher)\b`)

	whiteMinRe = regexp.MustCompile(`\bwhite\s+(?:(?:is|at|over|above|rated)\s+)*(\d{3,4})\b`)
	blackMinRe = regexp.MustCompile(`\bblack\s+(?:(?:is|at|over|above|rated)\s+)*(\d{3,4})\b`)
	bothMinRe  = regexp.MustCompile(`\bboth\s+(?:(?:are|is|at|over|above|rated)\s+)*(\d{3,4})\b`)
)

// vocabulary maps phase/theme phrases to their filter field and value.
var vocabulary = []struct {
	phrase string
	field  string
	value  string
}{
	{"middlegame", "phase", "middlegame"},
	{"endgame", "phase", "endgame"},
	{"opening phase", "phase", "opening"},
	{"sacrifice", "theme", "sacrifice"},
	{"king attack", "theme", "king_attack"},
	{"kingside attack", "theme", "king_attack"},
	{"queenside majority", "theme", "queenside_majority"},
	{"pawn storm", "theme", "pawn_storm"},
	{"zugzwang", "theme", "zugzwang"},
	{"fortress", "theme", "fortress"},
	{"exchange sacrifice", "theme", "exchange_sacrifice"},
}

// stopwords dropped from the keyword residue.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "at": true, "between": true,
	"both": true, "by": true, "find": true, "for": true, "from": true,
	"games": true, "game": true, "give": true, "higher": true, "in": true,
	"is": true, "lower": true, "me": true, "of": true, "or": true,
	"over": true, "played": true, "points": true, "elo": true,
	"rated": true, "rating": true, "results": true, "show": true,
	"the": true, "to": true, "top": true, "us": true, "versus": true,
	"vs": true, "where": true, "with": true, "within": true,
	"white": true, "black": true, "above": true, "are": true,
	"that": true, "was": true, "were": true, "won": true, "win": true,
}

// Analyse parses a question into a Plan. Extraction is positional:
// matched constructs are consumed so later passes never re-read them
// ("black within 100 points" is a delta, never a black minimum).
func Analyse(text string) Plan {
	cleaned := openings.Normalize(text)
	remaining := " " + cleaned + " "

	plan := Plan{CleanedText: cleaned, Limit: DefaultLimit}

	// Limit.
	if m := limitRe.FindStringSubmatch(remaining); m != nil {
		plan.Limit = clampLimit(parseCount(m[1]))
		remaining = strings.Replace(remaining, m[0], " ", 1)
	}

	// Opening filters. The catalogue matcher is whole-word; scrub every
	// catalogue phrase afterwards so opening names do not pollute the
	// residue.
	for _, f := range openings.FiltersForText(remaining) {
		plan.Filters = append(plan.Filters,
			Filter{Field: "opening", Value: f.Slug},
			Filter{Field: "eco_range", Value: f.ECORange},
		)
	}
	for _, phrase := range openings.Phrases() {
		needle := " " + phrase + " "
		for strings.Contains(remaining, needle) {
			remaining = strings.Replace(remaining, needle, " ", 1)
		}
	}

	// Rating deltas before minimums: "black within 100 points" binds to
	// the delta, not to a black minimum.
	if m := withinRe.FindStringSubmatch(remaining); m != nil {
		plan.Rating.MaxRatingDelta, _ = strconv.Atoi(m[1])
		remaining = strings.Replace(remaining, m[0], " ", 1)
	} else if m := deltaRe.FindStringSubmatch(remaining); m != nil {
		plan.Rating.MaxRatingDelta, _ = strconv.Atoi(m[1])
		remaining = strings.Replace(remaining, m[0], " ", 1)
	}

	if m := bothMinRe.FindStringSubmatch(remaining); m != nil {
		n, _ := strconv.Atoi(m[1])
		plan.Rating.WhiteMin, plan.Rating.BlackMin = n, n
		remaining = strings.Replace(remaining, m[0], " ", 1)
	}
	if m := whiteMinRe.FindStringSubmatch(remaining); m != nil {
		plan.Rating.WhiteMin, _ = strconv.Atoi(m[1])
		remaining = strings.Replace(remaining, m[0], " ", 1)
	}
	if m := blackMinRe.FindStringSubmatch(remaining); m != nil {
		plan.Rating.BlackMin, _ = strconv.Atoi(m[1])
		remaining = strings.Replace(remaining, m[0], " ", 1)
	}

	// Phase and theme vocabulary, longest phrases first. Two phrases can
	// map to one value ("king attack", "kingside attack"); dedupe.
	seenVocab := map[string]bool{}
	for _, v := range vocabularyByLength() {
		needle := " " + v.phrase + " "
		if !strings.Contains(remaining, needle) {
			continue
		}
		remaining = strings.ReplaceAll(remaining, needle, " ")
		if seenVocab[v.field+"="+v.value] {
			continue
		}
		seenVocab[v.field+"="+v.value] = true
		plan.Filters = append(plan.Filters, Filter{Field: v.field, Value: v.value})
	}

	// Keyword residue: remaining tokens minus stopwords and bare
	// numbers, deduplicated, original order.
	seen := map[string]bool{}
	for _, tok := range strings.Fields(remaining) {
		if stopwords[tok] || seen[tok] || isNumber(tok) {
			continue
		}
		seen[tok] = true
		plan.Keywords = append(plan.Keywords, tok)
	}

	return plan
}

func vocabularyByLength() []struct {
	phrase string
	field  string
	value  string
} {
	v := make([]struct {
		phrase string
		field  string
		value  string
	}, len(vocabulary))
	copy(v, vocabulary)
	sort.SliceStable(v, func(i, j int) bool { return len(v[i].phrase) > len(v[j].phrase) })
	return v
}

func parseCount(tok string) int {
	if n, ok := numerals[tok]; ok {
		return n
	}
	n, _ := strconv.Atoi(tok)
	return n
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n < MinLimit {
		return MinLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

func isNumber(tok string) bool {
	_, err := strconv.Atoi(tok)
	return err == nil
}

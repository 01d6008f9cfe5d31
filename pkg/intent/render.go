// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package intent

import (
	"strconv"
	"strings"

	"github.com/chessmate/chessmate/pkg/openings"
)

// Render produces a canonical English question for a plan, such that
// Analyse(Render(p)) preserves p's filters, rating constraints, and
// limit. It is the inverse direction of Analyse for plans Analyse can
// produce; keyword residue survives verbatim at the tail.
func Render(p Plan) string {
	parts := []string{"find", strconv.Itoa(clampLimit(p.Limit))}

	for _, f := range p.Filters {
		if f.Field == "opening" {
			parts = append(parts, openings.Normalize(openings.NameForSlug(f.Value)))
		}
	}
	parts = append(parts, "games")

	for _, f := range p.Filters {
		if f.Field == "phase" || f.Field == "theme" {
			parts = append(parts, vocabularyPhrase(f.Field, f.Value))
		}
	}

	switch {
	case p.Rating.WhiteMin > 0 && p.Rating.WhiteMin == p.Rating.BlackMin:
		parts = append(parts, "both over", strconv.Itoa(p.Rating.WhiteMin))
	default:
		if p.Rating.WhiteMin > 0 {
			parts = append(parts, "white over", strconv.Itoa(p.Rating.WhiteMin))
		}
		if p.Rating.BlackMin > 0 {
			parts = append(parts, "black over", strconv.Itoa(p.Rating.BlackMin))
		}
	}
	if p.Rating.MaxRatingDelta > 0 {
		parts = append(parts, "within", strconv.Itoa(p.Rating.MaxRatingDelta), "points")
	}

	parts = append(parts, p.Keywords...)
	return strings.Join(parts, " ")
}

// vocabularyPhrase maps a filter value back to its canonical phrase.
func vocabularyPhrase(field, value string) string {
	for _, v := range vocabulary {
		if v.field == field && v.value == value {
			return v.phrase
		}
	}
	return strings.ReplaceAll(value, "_", " ")
}

package lirads

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ArterialPattern is the arterial phase enhancement pattern recognised in
// free text.
type ArterialPattern int

const (
	ArterialNone ArterialPattern = iota
	ArterialAPHE
	ArterialRim
)

func (p ArterialPattern) String() string {
	switch p {
	case ArterialAPHE:
		return "aphe"
	case ArterialRim:
		return "rim"
	default:
		return "none"
	}
}

const rimPrefix = "rim"

// apheKeywords are matched as substrings of the folded text. Turkish and
// English report vocabulary.
var apheKeywords = []string{
	"hiperenhansman",
	"hyperenhancement",
	"hyperenhancing",
	"aphe",
}

// ClassifyArterialText maps a free-text arterial enhancement description to
// a pattern. Text starting with "rim" is rim APHE and never classic APHE.
func ClassifyArterialText(text string) ArterialPattern {
	text = strings.TrimSpace(text)
	if text == "" {
		return ArterialNone
	}

	// Folding alone turns "Rİm" into "ri̇m"; Turkish lowering alone turns
	// "RIM" into "rım". Either form may carry the prefix.
	folded := cases.Fold().String(text)
	lowered := cases.Lower(language.Turkish).String(text)
	if strings.HasPrefix(folded, rimPrefix) || strings.HasPrefix(lowered, rimPrefix) {
		return ArterialRim
	}

	for _, kw := range apheKeywords {
		if strings.Contains(folded, kw) || strings.Contains(lowered, kw) {
			return ArterialAPHE
		}
	}
	return ArterialNone
}

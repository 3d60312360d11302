// Package language brackets the pipeline with language handling: pure
// script-based detection on the way in, LLM translation of result fields on
// the way out.
package language

import (
	"unicode"
)

// English is the default when no Indic script dominates the input.
const English = "en"

// scriptEntry maps a Unicode script block to an ISO 639-1 language code.
// Detection picks the block with the highest character fraction above the
// threshold; the table order breaks exact ties.
type scriptEntry struct {
	table *unicode.RangeTable
	code  string
}

var scripts = []scriptEntry{
	{unicode.Devanagari, "hi"},
	{unicode.Tamil, "ta"},
	{unicode.Bengali, "bn"},
	{unicode.Telugu, "te"},
	{unicode.Gujarati, "gu"},
	{unicode.Kannada, "kn"},
	{unicode.Malayalam, "ml"},
	{unicode.Gurmukhi, "pa"},
	{unicode.Oriya, "or"},
	{unicode.Arabic, "ur"},
}

// scriptThreshold is the minimum fraction of characters that must fall in a
// script block for its language to win over English.
const scriptThreshold = 0.3

// Detect returns the ISO 639-1 code of the dominant script in text, or "en"
// when no supported script crosses the threshold. Pure and deterministic; no
// model call.
func Detect(text string) string {
	counts := make([]int, len(scripts))
	total := 0

	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		for i, s := range scripts {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}

	if total == 0 {
		return English
	}

	best := -1
	bestFraction := scriptThreshold
	for i, n := range counts {
		fraction := float64(n) / float64(total)
		if fraction > bestFraction {
			best = i
			bestFraction = fraction
		}
	}
	if best < 0 {
		return English
	}
	return scripts[best].code
}

// languageNames maps supported codes to the names used in translation
// prompts.
var languageNames = map[string]string{
	"hi": "Hindi",
	"ta": "Tamil",
	"bn": "Bengali",
	"te": "Telugu",
	"gu": "Gujarati",
	"kn": "Kannada",
	"ml": "Malayalam",
	"mr": "Marathi",
	"pa": "Punjabi",
	"or": "Odia",
	"as": "Assamese",
	"ur": "Urdu",
	"en": "English",
}

// Name returns the human-readable name for a language code, or the code
// itself when unknown.
func Name(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

// Supported reports whether translation targets the given code.
func Supported(code string) bool {
	_, ok := languageNames[code]
	return ok
}

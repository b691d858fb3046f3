// Package voice extracts status intents, measurements and comments from
// dictated transcripts. Results are suggestions; nothing is applied without
// the technician confirming.
package voice

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fieldscan/fieldscan/internal/checklist"
)

// Indicator is a status word polarity
type Indicator string

const (
	Positive Indicator = "positive"
	Negative Indicator = "negative"
)

// Action is the suggested status change
type Action string

const (
	ActionNone          Action = ""
	ActionMarkOK        Action = "mark_ok"
	ActionMarkDeviation Action = "mark_deviation"
)

// Status maps the action to a checkpoint status
func (a Action) Status() (checklist.Status, bool) {
	switch a {
	case ActionMarkOK:
		return checklist.StatusOK, true
	case ActionMarkDeviation:
		return checklist.StatusDeviation, true
	}
	return "", false
}

var (
	defaultPositive = []string{"ok", "okay", "approved", "godkjent", "fine", "good", "bra"}
	defaultNegative = []string{
		"deviation", "avvik", "broken", "defect", "defekt", "leak", "lekkasje",
		"fault", "feil", "damaged", "skadet", "error",
	}
	defaultEquipment = []string{
		"pump", "pumpe", "fan", "vifte", "valve", "ventil", "damper", "spjeld",
		"sensor", "føler", "filter", "motor", "bearing", "lager", "belt", "reim",
		"pressure", "trykk", "temperature", "temperatur",
	}

	measurementPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// Analysis is the result for one transcript
type Analysis struct {
	Keywords        []string    `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Indicators      []Indicator `json:"indicators,omitempty" yaml:"indicators,omitempty"`
	Measurements    []float64   `json:"measurements,omitempty" yaml:"measurements,omitempty"`
	Comment         string      `json:"comment,omitempty" yaml:"comment,omitempty"`
	SuggestedAction Action      `json:"suggested_action,omitempty" yaml:"suggested_action,omitempty"`
}

// HasMeasurement reports whether at least one number was found
func (a Analysis) HasMeasurement() bool {
	return len(a.Measurements) > 0
}

// Apply returns r updated with the suggestion. Call only after the user has
// confirmed it.
func (a Analysis) Apply(r checklist.Result, measurement bool) checklist.Result {
	if st, ok := a.SuggestedAction.Status(); ok {
		r.Status = st
	}
	if measurement && a.HasMeasurement() {
		r.Value = strconv.FormatFloat(a.Measurements[0], 'f', -1, 64)
	}
	if a.Comment != "" {
		r.Comment = a.Comment
	}
	return r
}

// Extractor classifies transcript tokens by fixed vocabularies. Safe for
// concurrent use.
type Extractor struct {
	positive  map[string]struct{}
	negative  map[string]struct{}
	equipment map[string]struct{}
}

// NewExtractor returns an extractor with the built-in vocabularies
func NewExtractor() *Extractor {
	return &Extractor{
		positive:  toSet(defaultPositive),
		negative:  toSet(defaultNegative),
		equipment: toSet(defaultEquipment),
	}
}

// Analyze tokenizes transcript and resolves the suggested action. A negative
// indicator outranks any positive one.
func (e *Extractor) Analyze(transcript string) Analysis {
	var a Analysis
	text := strings.TrimSpace(transcript)
	if text == "" {
		return a
	}
	a.Comment = text

	lower := cases.Lower(language.Und).String(text)
	var hasPositive, hasNegative bool
	for _, tok := range tokenize(lower) {
		switch {
		case member(e.negative, tok):
			a.Indicators = append(a.Indicators, Negative)
			hasNegative = true
		case member(e.positive, tok):
			a.Indicators = append(a.Indicators, Positive)
			hasPositive = true
		case member(e.equipment, tok):
			a.Keywords = append(a.Keywords, tok)
		}
	}

	for _, raw := range measurementPattern.FindAllString(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err == nil {
			a.Measurements = append(a.Measurements, v)
		}
	}

	switch {
	case hasNegative:
		a.SuggestedAction = ActionMarkDeviation
	case hasPositive:
		a.SuggestedAction = ActionMarkOK
	}
	return a
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func member(set map[string]struct{}, tok string) bool {
	_, ok := set[tok]
	return ok
}

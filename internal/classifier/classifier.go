// Package classifier turns recognized text and vision labels into equipment
// matches and aggregates matches across recognition passes.
package classifier

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fieldscan/fieldscan/internal/equipment"
	"github.com/fieldscan/fieldscan/internal/logger"
)

// Tier identifies which strategy produced a match
type Tier string

const (
	TierTag     Tier = "tag"
	TierLookup  Tier = "lookup"
	TierKeyword Tier = "keyword"
	TierVision  Tier = "vision"
)

// Fixed per-tier confidences
const (
	ConfidenceTag     = 0.9
	ConfidenceLookup  = 0.85
	ConfidenceKeyword = 0.7
)

// DefaultVocabulary lists the equipment nouns scanned for by the keyword
// tier, in priority order. Entries need only resolve through the table's
// partial matching.
var DefaultVocabulary = []string{
	"pump", "pumpe",
	"fan", "vifte",
	"valve", "ventil",
	"damper", "spjeld",
	"trykk", "pressure",
	"temp", "føler", "sensor",
	"filter",
	"motor",
	"veksler", "exchanger",
	"compressor", "kompressor",
}

// MatchRecorder receives one call per successful classification
type MatchRecorder interface {
	RecordMatch(tier string)
}

// Classifier is stateless after construction and safe for concurrent use
type Classifier struct {
	table      *equipment.Table
	vocabulary []string
	recorder   MatchRecorder
	log        logger.Logger
}

// Option configures a Classifier
type Option func(*Classifier)

// WithVocabulary replaces the keyword vocabulary
func WithVocabulary(words []string) Option {
	return func(c *Classifier) {
		c.vocabulary = words
	}
}

// WithRecorder sets the match recorder
func WithRecorder(r MatchRecorder) Option {
	return func(c *Classifier) {
		c.recorder = r
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Classifier) {
		c.log = l
	}
}

// New returns a classifier over table. A nil table uses the default table.
func New(table *equipment.Table, opts ...Option) *Classifier {
	if table == nil {
		table = equipment.DefaultTable()
	}
	c := &Classifier{table: table, vocabulary: DefaultVocabulary}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Global().Module("classifier")
	}
	lower := cases.Lower(language.Und)
	words := make([]string, 0, len(c.vocabulary))
	for _, w := range c.vocabulary {
		if w = strings.TrimSpace(lower.String(w)); w != "" {
			words = append(words, w)
		}
	}
	c.vocabulary = words
	return c
}

// Table returns the code table in use
func (c *Classifier) Table() *equipment.Table {
	return c.table
}

// Classify resolves one recognized text candidate. No match is not an error.
func (c *Classifier) Classify(text string) (equipment.Match, bool) {
	m, _, ok := c.ClassifyWithTier(text)
	return m, ok
}

// ClassifyWithTier is Classify that also reports which tier matched.
// Tiers are tried in order: structured tag, direct lookup, keyword scan.
func (c *Classifier) ClassifyWithTier(text string) (equipment.Match, Tier, bool) {
	if strings.TrimSpace(text) == "" {
		return equipment.Match{}, "", false
	}

	if tag, ok := c.table.ParseTagCode(strings.ToUpper(text)); ok {
		return c.found(equipment.NewMatch(tag.Definition, ConfidenceTag), TierTag, text)
	}

	if m, ok := c.table.Lookup(text); ok {
		m.Confidence = ConfidenceLookup
		return c.found(m, TierLookup, text)
	}

	if word, ok := c.firstKeyword(text); ok {
		if m, ok := c.table.Lookup(word); ok {
			m.Confidence = ConfidenceKeyword
			return c.found(m, TierKeyword, text)
		}
	}

	return equipment.Match{}, "", false
}

// ClassifyLabel resolves an image-classification label. The match carries
// the model's confidence.
func (c *Classifier) ClassifyLabel(label string, confidence float64) (equipment.Match, bool) {
	m, ok := c.table.Lookup(label)
	if !ok {
		return equipment.Match{}, false
	}
	m.Confidence = clamp(confidence)
	m, _, ok = c.found(m, TierVision, label)
	return m, ok
}

func (c *Classifier) firstKeyword(text string) (string, bool) {
	lowered := cases.Lower(language.Und).String(text)
	for _, w := range c.vocabulary {
		if strings.Contains(lowered, w) {
			return w, true
		}
	}
	return "", false
}

func (c *Classifier) found(m equipment.Match, tier Tier, text string) (equipment.Match, Tier, bool) {
	if c.recorder != nil {
		c.recorder.RecordMatch(string(tier))
	}
	c.log.Trace("equipment classified",
		logger.String("text", text),
		logger.String("code", m.Code),
		logger.String("tier", string(tier)),
		logger.Float64("confidence", m.Confidence))
	return m, tier, true
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

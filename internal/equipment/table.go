package equipment

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

type tableKey struct {
	key  string
	code string
}

// Table is an ordered label-to-code mapping. Lookups are read-only and safe
// for concurrent use.
type Table struct {
	keys  []tableKey
	codes map[string]Definition
	order []string
}

// Builder assembles a Table. Keys are matched in the order they are added.
type Builder struct {
	t *Table
}

// NewBuilder returns an empty table builder
func NewBuilder() *Builder {
	return &Builder{t: &Table{codes: make(map[string]Definition)}}
}

// Code registers def and the synonyms that resolve to it
func (b *Builder) Code(def Definition, synonyms ...string) *Builder {
	if _, ok := b.t.codes[def.Code]; !ok {
		b.t.order = append(b.t.order, def.Code)
	}
	b.t.codes[def.Code] = def
	for _, s := range synonyms {
		b.Synonym(s, def.Code)
	}
	return b
}

// Synonym adds another key for an already registered code
func (b *Builder) Synonym(label, code string) *Builder {
	if key := Normalize(label); key != "" {
		b.t.keys = append(b.t.keys, tableKey{key: key, code: code})
	}
	return b
}

// Build returns the finished table
func (b *Builder) Build() *Table {
	return b.t
}

var (
	defPump          = Definition{Code: "PU", Name: "Pump", Category: CategoryPump}
	defFan           = Definition{Code: "VI", Name: "Fan", Category: CategoryFan}
	defValve         = Definition{Code: "SV", Name: "Valve", Category: CategoryValve}
	defDamper        = Definition{Code: "SP", Name: "Damper", Category: CategoryDamper}
	defPressure      = Definition{Code: "RP", Name: "Pressure sensor", Category: CategorySensor}
	defTemperature   = Definition{Code: "RT", Name: "Temperature sensor", Category: CategorySensor}
	defFilter        = Definition{Code: "FI", Name: "Filter", Category: CategoryFilter}
	defMotor         = Definition{Code: "MO", Name: "Motor", Category: CategoryMotor}
	defHeatExchanger = Definition{Code: "VX", Name: "Heat exchanger", Category: CategoryHeatExchanger}
	defCompressor    = Definition{Code: "KM", Name: "Compressor", Category: CategoryCompressor}
)

// DefaultTable is the built-in code table. Specific sensor keys precede the
// generic "sensor" and "føler" keys so partial matches prefer them.
func DefaultTable() *Table {
	return NewBuilder().
		Code(defPump, "pump", "pumpe", "circulation_pump", "sirkulasjonspumpe").
		Code(defFan, "fan", "vifte", "ventilator").
		Code(defValve, "valve", "ventil").
		Code(defDamper, "damper", "spjeld").
		Code(defPressure, "pressure_sensor", "trykkføler", "trykktransmitter").
		Code(defTemperature, "temperature_sensor", "temperaturføler", "føler", "sensor").
		Code(defFilter, "filter").
		Code(defMotor, "motor").
		Code(defHeatExchanger, "heat_exchanger", "varmeveksler").
		Code(defCompressor, "compressor", "kompressor").
		Build()
}

// Normalize lowercases label, trims it and joins words with underscores
func Normalize(label string) string {
	s := norm.NFC.String(strings.TrimSpace(label))
	s = cases.Lower(language.Und).String(s)
	return strings.Join(strings.Fields(s), "_")
}

// Lookup resolves a free-text label. An exact key wins; otherwise the first
// key (in table order) that contains, or is contained in, the normalized
// label. The returned match has zero confidence; callers assign it.
func (t *Table) Lookup(label string) (Match, bool) {
	key := Normalize(label)
	if key == "" {
		return Match{}, false
	}

	for _, k := range t.keys {
		if k.key == key {
			return NewMatch(t.codes[k.code], 0), true
		}
	}
	for _, k := range t.keys {
		if strings.Contains(key, k.key) || strings.Contains(k.key, key) {
			return NewMatch(t.codes[k.code], 0), true
		}
	}
	return Match{}, false
}

// ByCode resolves a component code against the table's code field
func (t *Table) ByCode(code string) (Definition, bool) {
	def, ok := t.codes[strings.ToUpper(strings.TrimSpace(code))]
	return def, ok
}

// Definitions returns every registered code in registration order
func (t *Table) Definitions() []Definition {
	defs := make([]Definition, 0, len(t.order))
	for _, code := range t.order {
		defs = append(defs, t.codes[code])
	}
	return defs
}

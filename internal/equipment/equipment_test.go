package equipment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "circulation_pump", Normalize("  Circulation   Pump "))
	assert.Equal(t, "temperaturføler", Normalize("TEMPERATURFØLER"))
	assert.Empty(t, Normalize("   "))
}

func TestLookup(t *testing.T) {
	t.Parallel()
	table := DefaultTable()

	tests := []struct {
		name  string
		label string
		code  string
		found bool
	}{
		{"exact", "pump", "PU", true},
		{"exact with spaces", "Circulation Pump", "PU", true},
		{"norwegian", "Vifte", "VI", true},
		{"label contains key", "old_pump_unit", "PU", true},
		{"key contains label", "trykk", "RP", true},
		{"specific sensor before generic", "pressure sensor 2", "RP", true},
		{"generic sensor", "room sensor", "RT", true},
		{"miss", "door handle", "", false},
		{"empty", "", "", false},
		{"whitespace", "   ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, ok := table.Lookup(tt.label)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.code, m.Code)
				assert.Zero(t, m.Confidence)
			}
		})
	}
}

func TestLookup_FirstMatchInInsertionOrder(t *testing.T) {
	t.Parallel()

	a := Definition{Code: "AA", Name: "A", Category: CategoryOther}
	b := Definition{Code: "BB", Name: "B", Category: CategoryOther}
	table := NewBuilder().Code(a, "alpha").Code(b, "beta").Build()

	m, ok := table.Lookup("beta alpha")
	require.True(t, ok)
	assert.Equal(t, "AA", m.Code)
}

func TestParseTagCode(t *testing.T) {
	t.Parallel()
	table := DefaultTable()

	tests := []struct {
		text     string
		code     string
		known    bool
		system   string
		sub      string
		instance string
		ok       bool
	}{
		{"=360.01-PU001", "PU", true, "360", "01", "001", true},
		{"360-VI002", "VI", true, "360", "", "002", true},
		{"Tag: =320.02rt004 on wall", "RT", true, "320", "02", "004", true},
		{"433JV", "JV", false, "433", "", "", true},
		{"random text", "", false, "", "", "", false},
		{"1234-PU001", "", false, "", "", "", false},
		{"360-PUMP", "", false, "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			tag, ok := table.ParseTagCode(tt.text)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.code, tag.Definition.Code)
			assert.Equal(t, tt.known, tag.Known)
			assert.Equal(t, tt.system, tag.System)
			assert.Equal(t, tt.sub, tag.SubSystem)
			assert.Equal(t, tt.instance, tag.Instance)
			if !tt.known {
				assert.Equal(t, CategoryOther, tag.Definition.Category)
				assert.NotEmpty(t, tag.Definition.Name)
			}
		})
	}
}

func TestTagString(t *testing.T) {
	t.Parallel()
	tag, ok := DefaultTable().ParseTagCode("=360.01-PU001")
	require.True(t, ok)
	assert.Equal(t, "=360.01-PU001", tag.String())
}

func TestByCodeAndDefinitions(t *testing.T) {
	t.Parallel()
	table := DefaultTable()

	def, ok := table.ByCode("vx")
	require.True(t, ok)
	assert.Equal(t, CategoryHeatExchanger, def.Category)

	defs := table.Definitions()
	require.NotEmpty(t, defs)
	assert.Equal(t, "PU", defs[0].Code)
}

func TestBoundingBox(t *testing.T) {
	t.Parallel()
	assert.True(t, BoundingBox{X: 0.1, Y: 0.2, Width: 0.5, Height: 0.5}.Valid())
	assert.False(t, BoundingBox{X: 0.8, Y: 0, Width: 0.5, Height: 0.1}.Valid())

	m := NewMatch(defPump, 0.9).WithRegion(BoundingBox{X: 0, Y: 0, Width: 1, Height: 1})
	require.NotNil(t, m.SourceRegion)
	assert.Equal(t, 0.9, m.Confidence)
}

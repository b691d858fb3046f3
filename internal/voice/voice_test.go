package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/checklist"
)

func TestAnalyze_SuggestedAction(t *testing.T) {
	t.Parallel()
	e := NewExtractor()

	tests := []struct {
		transcript string
		want       Action
	}{
		{"ok but there's a deviation", ActionMarkDeviation},
		{"Godkjent", ActionMarkOK},
		{"pump looks fine", ActionMarkOK},
		{"lekkasje ved pakning, ellers bra", ActionMarkDeviation},
		{"checked the filter", ActionNone},
		{"", ActionNone},
		{"looking good", ActionMarkOK},
		{"not broken", ActionMarkDeviation},
	}

	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, e.Analyze(tt.transcript).SuggestedAction)
		})
	}
}

func TestAnalyze_Measurements(t *testing.T) {
	t.Parallel()
	e := NewExtractor()

	a := e.Analyze("Trykk 2,5 bar, temperatur 21.4 og 60 grader")
	assert.Equal(t, []float64{2.5, 21.4, 60}, a.Measurements)
	assert.Equal(t, []string{"trykk", "temperatur"}, a.Keywords)
	assert.Empty(t, a.Indicators)
	assert.Equal(t, ActionNone, a.SuggestedAction)
}

func TestAnalyze_CommentIsTrimmedTranscript(t *testing.T) {
	t.Parallel()
	a := NewExtractor().Analyze("  belt is worn, replace next visit \n")
	assert.Equal(t, "belt is worn, replace next visit", a.Comment)
	assert.Equal(t, []string{"belt"}, a.Keywords)
}

func TestAnalysis_Apply(t *testing.T) {
	t.Parallel()
	e := NewExtractor()
	base := checklist.Result{CheckpointID: 4, Status: checklist.StatusNotAssessed}

	got := e.Analyze("ok, 3,2 bar").Apply(base, true)
	assert.Equal(t, checklist.StatusOK, got.Status)
	assert.Equal(t, "3.2", got.Value)
	assert.Equal(t, "ok, 3,2 bar", got.Comment)

	got = e.Analyze("avvik 12").Apply(base, false)
	assert.Equal(t, checklist.StatusDeviation, got.Status)
	assert.Empty(t, got.Value)

	got = e.Analyze("").Apply(base, true)
	require.Equal(t, base, got)
}

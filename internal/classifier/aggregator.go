package classifier

import (
	"slices"
	"strings"
	"sync"

	"github.com/fieldscan/fieldscan/internal/equipment"
)

// Merge deduplicates matches by code, keeping the highest confidence per
// code. Output is sorted by descending confidence, then code.
func Merge(sets ...[]equipment.Match) []equipment.Match {
	best := make(map[string]equipment.Match)
	for _, set := range sets {
		for _, m := range set {
			if prev, ok := best[m.Code]; !ok || m.Confidence > prev.Confidence {
				best[m.Code] = m
			}
		}
	}
	return sorted(best)
}

// Aggregator holds the current detection set
type Aggregator struct {
	mu      sync.RWMutex
	current map[string]equipment.Match
}

// NewAggregator returns an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{current: make(map[string]equipment.Match)}
}

// Replace discards the current set and installs the merged sets. Used for
// live frames.
func (a *Aggregator) Replace(sets ...[]equipment.Match) []equipment.Match {
	merged := Merge(sets...)
	next := make(map[string]equipment.Match, len(merged))
	for _, m := range merged {
		next[m.Code] = m
	}

	a.mu.Lock()
	a.current = next
	a.mu.Unlock()
	return merged
}

// Accumulate merges matches into the current set
func (a *Aggregator) Accumulate(matches ...equipment.Match) []equipment.Match {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range matches {
		if prev, ok := a.current[m.Code]; !ok || m.Confidence > prev.Confidence {
			a.current[m.Code] = m
		}
	}
	return sorted(a.current)
}

// Current returns a snapshot of the detection set
func (a *Aggregator) Current() []equipment.Match {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sorted(a.current)
}

// Best returns the highest-confidence match
func (a *Aggregator) Best() (equipment.Match, bool) {
	cur := a.Current()
	if len(cur) == 0 {
		return equipment.Match{}, false
	}
	return cur[0], true
}

// Reset clears the detection set
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.current = make(map[string]equipment.Match)
	a.mu.Unlock()
}

func sorted(byCode map[string]equipment.Match) []equipment.Match {
	out := make([]equipment.Match, 0, len(byCode))
	for _, m := range byCode {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b equipment.Match) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return strings.Compare(a.Code, b.Code)
	})
	return out
}

package parking

import (
	"testing"

	"github.com/parkpool-dev/parkpool/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestWeightOf(t *testing.T) {
	t.Parallel()

	base := 10

	assert.Equal(t, 10, weightOf(base, model.Driver{}))
	assert.Equal(t, 15, weightOf(base, model.Driver{Karma: 5}))
	assert.Equal(t, 18, weightOf(base, model.Driver{Karma: 5, ExtraWeight: 3}))
	assert.Equal(t, 1, weightOf(base, model.Driver{Karma: -10}), "weight never drops below one")
	assert.Equal(t, 1, weightOf(base, model.Driver{Karma: -100}))
}

func TestPickWeighted_Proportional(t *testing.T) {
	t.Parallel()

	state := newFakeState()
	clock := newTestClock(_tuesdayMorning)
	engine, _ := newTestEngine(state, clock)

	// Weights 1 : 9, so the heavy candidate should win about 90% of the
	// time. The rand source is seeded, so the outcome is stable.
	candidates := []candidate{
		{driver: model.Driver{ID: 1, Karma: -100}},
		{driver: model.Driver{ID: 2, Karma: -1}},
	}

	const rounds = 10_000
	wins := make(map[model.ID]int)
	for range rounds {
		winner := candidates[engine.pickWeighted(10, candidates)]
		wins[winner.driver.ID]++
	}

	heavyShare := float64(wins[2]) / rounds
	assert.InDelta(t, 0.9, heavyShare, 0.03)
	assert.Positive(t, wins[1], "even the lightest candidate wins sometimes")
}

func TestPickWeighted_SingleCandidate(t *testing.T) {
	t.Parallel()

	state := newFakeState()
	clock := newTestClock(_tuesdayMorning)
	engine, _ := newTestEngine(state, clock)

	candidates := []candidate{{driver: model.Driver{ID: 7}}}

	for range 10 {
		assert.Equal(t, 0, engine.pickWeighted(10, candidates))
	}
}

package parking

import "github.com/parkpool-dev/parkpool/internal/model"

// candidate is a queued driver competing in one raffle round.
type candidate struct {
	entry  model.QueueEntry
	driver model.Driver
}

// weightOf is the driver's raffle ticket count. Karma and any manually
// granted extra weight stack on the base; the result never drops below one
// so a heavily penalized driver still has a chance.
func weightOf(base int, driver model.Driver) int {
	weight := base + driver.Karma + driver.ExtraWeight
	if weight < 1 {
		return 1
	}

	return weight
}

// pickWeighted draws one candidate proportionally to weight. The caller
// must pass a non-empty slice.
func (e *Engine) pickWeighted(base int, candidates []candidate) int {
	total := 0
	for _, c := range candidates {
		total += weightOf(base, c.driver)
	}

	ticket := e.intN(total)
	for i, c := range candidates {
		ticket -= weightOf(base, c.driver)
		if ticket < 0 {
			return i
		}
	}

	return len(candidates) - 1
}

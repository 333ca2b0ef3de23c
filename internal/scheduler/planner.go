package scheduler

import (
	"math/rand"
	"time"
)

// PlanSlots spreads count post times across (now, windowEnd) with random
// gaps. The effective bounds adapt to the remaining room so that a late
// start still fits its posts instead of pushing them past the window.
//
// The first gap is drawn from [effMin, 2*effMin] to keep the first post
// close to now; every following gap is drawn from [effMin, effMax].
// Planning stops early once a slot would land at or past windowEnd, so
// the result may be shorter than count. Returned times are strictly
// increasing and all before windowEnd.
//
// The caller owns rng; passing a seeded source makes plans reproducible.
func PlanSlots(now, windowEnd time.Time, count int, minInterval, maxInterval time.Duration, rng *rand.Rand) []time.Time {
	if count <= 0 {
		return nil
	}
	remaining := windowEnd.Sub(now)
	if remaining <= 0 {
		return nil
	}

	effMin := minInterval
	if spread := remaining / time.Duration(count+1); spread > effMin {
		effMin = spread
	}
	effMax := maxInterval
	if ceil := remaining / time.Duration(count); ceil < effMax {
		effMax = ceil
	}
	if effMax < effMin {
		effMax = effMin
	}

	slots := make([]time.Time, 0, count)
	cur := now
	for i := 0; i < count; i++ {
		var gap time.Duration
		if i == 0 {
			gap = randDuration(rng, effMin, 2*effMin)
		} else {
			gap = randDuration(rng, effMin, effMax)
		}
		cur = cur.Add(gap)
		if !cur.Before(windowEnd) {
			break
		}
		slots = append(slots, cur)
	}
	return slots
}

// randDuration draws uniformly from [min, max]. A degenerate range
// collapses to min.
func randDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}

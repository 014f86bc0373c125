package team

import (
	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/randx"
	"github.com/prospectsim/prospect/internal/simerr"
)

// Assignment names a unit-to-surveyor policy.
type Assignment string

const (
	// Naive cycles through surveyors in team order.
	Naive Assignment = "naive"
	// Shuffle cycles through surveyors in an order drawn per run.
	Shuffle Assignment = "shuffle"
	// Random picks a surveyor uniformly, with replacement, for every unit.
	Random Assignment = "random"
	// Speed gives each unit to the surveyor with the least accumulated
	// workload, where workload is unit time budget times speed penalty.
	// Faster surveyors end up with more units.
	Speed Assignment = "speed"
)

func (a Assignment) valid() bool {
	switch a {
	case Naive, Shuffle, Random, Speed:
		return true
	}
	return false
}

// Assign maps every unit to exactly one surveyor, returning for each unit
// the index of its surveyor in surveyors.
func Assign(policy Assignment, units []coverage.Unit, surveyors []Surveyor, rng *randx.Source) ([]int, error) {
	if len(surveyors) == 0 {
		return nil, simerr.ErrEmptyTeam
	}
	out := make([]int, len(units))
	switch policy {
	case Naive, "":
		for i := range units {
			out[i] = i % len(surveyors)
		}
	case Shuffle:
		order := rng.Perm(len(surveyors))
		for i := range units {
			out[i] = order[i%len(order)]
		}
	case Random:
		for i := range units {
			out[i] = rng.IntN(len(surveyors))
		}
	case Speed:
		load := make([]float64, len(surveyors))
		for i, u := range units {
			cost := u.MinTime
			if cost <= 0 {
				cost = 1
			}
			best := 0
			for j := 1; j < len(surveyors); j++ {
				if load[j]+cost*surveyors[j].SpeedPenalty < load[best]+cost*surveyors[best].SpeedPenalty {
					best = j
				}
			}
			out[i] = best
			load[best] += cost * surveyors[best].SpeedPenalty
		}
	default:
		return nil, simerr.Invalid("unknown assignment policy %q", policy)
	}
	return out, nil
}

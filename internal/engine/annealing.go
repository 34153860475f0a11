package engine

import (
	"math"
	"math/rand"
)

// AnnealingParams tune the standalone simulated-annealing optimizer.
type AnnealingParams struct {
	InitialTemp float64
	MinTemp     float64
	CoolingRate float64
	MovesPerT   int
}

// DefaultAnnealingParams is the baseline before adaptive tuning.
func DefaultAnnealingParams() AnnealingParams {
	return AnnealingParams{InitialTemp: 80, MinTemp: 0.5, CoolingRate: 0.93, MovesPerT: 40}
}

// energy is the inverse-flavoured soft score: lower is better. Keeping it a
// separate function lets annealing reward utilization and balance while
// penalising overcapacity without sharing the hill-climb scale.
func energy(schedule []ScheduleItem, courses map[string]*Course, rooms map[string]*Classroom, params ScoreParams) float64 {
	return -SoftScore(schedule, courses, rooms, params)
}

// Anneal runs simulated annealing over the non-hardcoded placements.
// Neighbours are generated by the same day/time swap move as hill climbing;
// moves violating hard constraints are discarded outright. Worse neighbours
// are accepted with probability exp(-delta/temperature), the temperature
// cooling geometrically each outer round. The best state seen is always
// retained and returned.
func Anneal(
	schedule []ScheduleItem,
	courses map[string]*Course,
	rooms map[string]*Classroom,
	grid []TimeBlock,
	rng *rand.Rand,
	scoreParams ScoreParams,
	params AnnealingParams,
) []ScheduleItem {
	if params.InitialTemp <= 0 || params.CoolingRate <= 0 || params.CoolingRate >= 1 {
		params = DefaultAnnealingParams()
	}
	movable := movableIndices(schedule)
	if len(movable) < 2 {
		return schedule
	}

	current := cloneSchedule(schedule)
	best := cloneSchedule(schedule)
	currentEnergy := energy(current, courses, rooms, scoreParams)
	bestEnergy := currentEnergy

	for temp := params.InitialTemp; temp > params.MinTemp; temp *= params.CoolingRate {
		for move := 0; move < params.MovesPerT; move++ {
			i := movable[rng.Intn(len(movable))]
			j := movable[rng.Intn(len(movable))]
			if i == j {
				continue
			}
			if !trySwap(current, i, j, courses, rooms, grid, nil) {
				continue
			}
			nextEnergy := energy(current, courses, rooms, scoreParams)
			delta := nextEnergy - currentEnergy
			if delta <= 0 || rng.Float64() < math.Exp(-delta/temp) {
				currentEnergy = nextEnergy
				if currentEnergy < bestEnergy {
					bestEnergy = currentEnergy
					best = cloneSchedule(current)
				}
				continue
			}
			// Rejected: undo the symmetric swap.
			swapSlots(current, i, j, courses, nil)
		}
	}
	return best
}

func cloneSchedule(schedule []ScheduleItem) []ScheduleItem {
	clone := make([]ScheduleItem, len(schedule))
	copy(clone, schedule)
	return clone
}

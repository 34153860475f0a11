package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Attempt pairs one independent run with its composite quality score.
type Attempt struct {
	Index  int     `json:"index"`
	Seed   int64   `json:"seed"`
	Score  float64 `json:"score"`
	Result *Result `json:"result"`
}

// ParallelResult is the outcome of a multi-attempt selection.
type ParallelResult struct {
	Best     *Attempt  `json:"best"`
	Attempts []Attempt `json:"attempts"`
}

// CompositeScore ranks attempts by success rate first, then capacity
// efficiency, then teacher balance.
func CompositeScore(result *Result, totalCourses int) float64 {
	if result == nil {
		return 0
	}
	successRate := 1.0
	if totalCourses > 0 {
		successRate = float64(totalCourses-len(result.Unscheduled)) / float64(totalCourses)
	}
	capacityEfficiency := 1 - result.Metrics.AvgCapacityMargin
	if capacityEfficiency < 0 {
		capacityEfficiency = 0
	}
	balance := 1 / (1 + result.Metrics.TeacherLoadStddev)
	return successRate*100 + capacityEfficiency*10 + balance*5
}

// RunParallel launches n fully independent engine runs with distinct seeds
// and picks the best by composite score. Every run owns its own index, RNG
// and schedule; only the finished results are read when merging.
func RunParallel(
	ctx context.Context,
	n int,
	settings Settings,
	courses []*Course,
	rooms []*Classroom,
	opts Options,
	logger *zap.Logger,
) *ParallelResult {
	if n <= 0 {
		n = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	attempts := make([]Attempt, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			runOpts := opts
			runOpts.Seed = opts.Seed + int64(index)
			eng := New(settings, courses, rooms, runOpts, logger)
			go drain(eng.Progress())
			result := eng.Run(ctx)
			attempts[index] = Attempt{
				Index:  index,
				Seed:   runOpts.Seed,
				Score:  CompositeScore(result, len(courses)),
				Result: result,
			}
		}(i)
	}
	wg.Wait()

	best := &attempts[0]
	for i := 1; i < len(attempts); i++ {
		if attempts[i].Score > best.Score {
			best = &attempts[i]
		}
	}
	logger.Info("parallel selection finished",
		zap.Int("attempts", n),
		zap.Int64("best_seed", best.Seed),
		zap.Float64("best_score", best.Score),
	)
	return &ParallelResult{Best: best, Attempts: attempts}
}

func drain(ch <-chan Snapshot) {
	for range ch {
	}
}

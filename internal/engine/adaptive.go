package engine

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// ProblemProfile captures the shape of a scheduling problem for tuning and
// for matching against past runs.
type ProblemProfile struct {
	Courses          int     `json:"courses"`
	Classrooms       int     `json:"classrooms"`
	Teachers         int     `json:"teachers"`
	AvgClassSize     float64 `json:"avg_class_size"`
	UtilizationRatio float64 `json:"utilization_ratio"`
	HasLabs          bool    `json:"has_labs"`
	TotalHours       int     `json:"total_hours"`
}

// Profile derives problem characteristics from the inputs.
func Profile(courses []*Course, rooms []*Classroom, grid []TimeBlock) ProblemProfile {
	profile := ProblemProfile{Courses: len(courses)}
	teachers := make(map[string]struct{})
	headcount := 0
	for _, course := range courses {
		if course.TeacherID != "" {
			teachers[course.TeacherID] = struct{}{}
		}
		headcount += course.Headcount()
		profile.TotalHours += course.RequiredHours()
		for _, session := range course.Sessions {
			if session.Type == SessionLab || session.Type == SessionCombined {
				profile.HasLabs = true
			}
		}
	}
	profile.Teachers = len(teachers)
	if len(courses) > 0 {
		profile.AvgClassSize = float64(headcount) / float64(len(courses))
	}
	active := 0
	for _, room := range rooms {
		if room.Active {
			active++
		}
	}
	profile.Classrooms = active
	capacity := active * len(grid) * len(Days)
	if capacity > 0 {
		profile.UtilizationRatio = float64(profile.TotalHours) / float64(capacity)
	}
	return profile
}

// Signature buckets the profile coarsely so similar-shaped problems hash to
// the same value.
func (p ProblemProfile) Signature() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "c%d/r%d/t%d/s%d/u%d/l%t",
		p.Courses/10, p.Classrooms/5, p.Teachers/10,
		int(p.AvgClassSize)/20, int(p.UtilizationRatio*10), p.HasLabs)
	return h.Sum64()
}

// RunRecord is the learning payload stored after a run.
type RunRecord struct {
	Signature   uint64        `json:"signature"`
	Seed        int64         `json:"seed"`
	SuccessRate float64       `json:"success_rate"`
	SoftScore   float64       `json:"soft_score"`
	Elapsed     time.Duration `json:"elapsed"`
	Options     Options       `json:"-"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// HistoryStore persists run outcomes for parameter learning. It is always
// constructor-injected; the engine never reaches for a hidden singleton.
type HistoryStore interface {
	Record(record RunRecord)
	QuerySimilar(signature uint64) []RunRecord
}

// RingHistory is the default HistoryStore: an in-memory bounded ring buffer
// safe for use across parallel attempts.
type RingHistory struct {
	mu      sync.RWMutex
	records []RunRecord
	next    int
	full    bool
}

// NewRingHistory builds a ring buffer holding up to capacity records.
func NewRingHistory(capacity int) *RingHistory {
	if capacity <= 0 {
		capacity = 64
	}
	return &RingHistory{records: make([]RunRecord, capacity)}
}

// Record appends a run outcome, overwriting the oldest once full.
func (r *RingHistory) Record(record RunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[r.next] = record
	r.next = (r.next + 1) % len(r.records)
	if r.next == 0 {
		r.full = true
	}
}

// QuerySimilar returns stored records matching the signature.
func (r *RingHistory) QuerySimilar(signature uint64) []RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	size := r.next
	if r.full {
		size = len(r.records)
	}
	var matches []RunRecord
	for i := 0; i < size; i++ {
		if r.records[i].Signature == signature {
			matches = append(matches, r.records[i])
		}
	}
	return matches
}

// Tune derives problem-scaled options from the profile, optionally blending
// in the best-performing parameters from similar past runs.
func Tune(profile ProblemProfile, base Options, history HistoryStore) Options {
	opts := base.withDefaults()

	// Scale the wall-clock budget with problem size.
	scale := 1.0 + float64(profile.Courses)/80 + float64(profile.TotalHours)/400
	if profile.UtilizationRatio > 0.7 {
		scale *= 1.5
	}
	opts.Timeout = time.Duration(float64(opts.Timeout) * scale)

	// Tight room supply makes scarcity the dominant ordering signal.
	if profile.Classrooms > 0 && profile.Courses > profile.Classrooms*4 {
		opts.Weights.RoomScarcity *= 1.5
	}
	if profile.AvgClassSize > 60 {
		opts.Weights.Headcount *= 1.3
	}
	if profile.HasLabs {
		opts.EnableCombinedTheoryLab = true
	}

	// Crowded problems get a wider acceptable utilization band and a longer
	// improvement pass.
	if profile.UtilizationRatio > 0.6 {
		opts.Band.Low = 0.6
		opts.HillClimb.MaxIterations = opts.HillClimb.MaxIterations * 3 / 2
	}

	if history != nil {
		matches := history.QuerySimilar(profile.Signature())
		var best *RunRecord
		for i := range matches {
			if best == nil || matches[i].SuccessRate > best.SuccessRate ||
				(matches[i].SuccessRate == best.SuccessRate && matches[i].SoftScore > best.SoftScore) {
				best = &matches[i]
			}
		}
		if best != nil && best.SuccessRate >= 0.95 {
			opts.Weights = best.Options.Weights
			opts.Band = best.Options.Band
			opts.HillClimb = best.Options.HillClimb
		}
	}
	return opts
}

package engine

import "sort"

// CourseHistory accumulates every slot a course attempted plus the live
// domain of options still considered viable.
type CourseHistory struct {
	CourseID string        `json:"course_id"`
	Attempts []SlotAttempt `json:"attempts"`
	Placed   []string      `json:"placed,omitempty"`

	domain map[slotToken]struct{}
}

// FailureAnalysis summarises why a course kept missing.
type FailureAnalysis struct {
	CourseID      string                `json:"course_id"`
	TotalAttempts int                   `json:"total_attempts"`
	ByReason      map[FailureReason]int `json:"by_reason"`
	WorstDay      string                `json:"worst_day,omitempty"`
	WorstStart    string                `json:"worst_start,omitempty"`
}

// SlotSuggestion ranks a remaining domain option by conflict pressure.
type SlotSuggestion struct {
	Day      string `json:"day"`
	Start    string `json:"start"`
	Failures int    `json:"failures"`
}

// AttemptTracker is diagnostic scaffolding around the search: it logs
// attempts, shrinks per-course domains as conflicts surface, and abandons a
// course once its attempt count reaches the ceiling. It does not unwind
// prior placements.
type AttemptTracker struct {
	maxAttempts int
	histories   map[string]*CourseHistory
}

// NewAttemptTracker builds a tracker with the given per-course ceiling.
func NewAttemptTracker(maxAttempts int) *AttemptTracker {
	if maxAttempts <= 0 {
		maxAttempts = 400
	}
	return &AttemptTracker{
		maxAttempts: maxAttempts,
		histories:   make(map[string]*CourseHistory),
	}
}

func (t *AttemptTracker) history(courseID string) *CourseHistory {
	if h, ok := t.histories[courseID]; ok {
		return h
	}
	h := &CourseHistory{CourseID: courseID, domain: make(map[slotToken]struct{})}
	t.histories[courseID] = h
	return h
}

// SeedDomain registers the full option space for a course before searching.
func (t *AttemptTracker) SeedDomain(courseID string, grid []TimeBlock) {
	h := t.history(courseID)
	for _, day := range Days {
		for _, block := range grid {
			h.domain[slotToken{Day: day, Start: block.Start}] = struct{}{}
		}
	}
}

// RecordFailure logs a rejected slot and shrinks the domain for conflict
// reasons that will not clear up on their own within this run.
func (t *AttemptTracker) RecordFailure(courseID string, attempt SlotAttempt) {
	h := t.history(courseID)
	h.Attempts = append(h.Attempts, attempt)
	switch attempt.Reason {
	case ReasonTeacherUnavailable, ReasonTeacherConflict, ReasonDepartmentConflict:
		delete(h.domain, slotToken{Day: NormalizeDay(attempt.Day), Start: attempt.Start})
	}
}

// RecordSuccess logs a successful placement.
func (t *AttemptTracker) RecordSuccess(courseID, day, timeRange string) {
	h := t.history(courseID)
	h.Placed = append(h.Placed, day+" "+timeRange)
}

// Exhausted reports whether the course hit its attempt ceiling.
func (t *AttemptTracker) Exhausted(courseID string) bool {
	h, ok := t.histories[courseID]
	return ok && len(h.Attempts) >= t.maxAttempts
}

// DomainSize returns how many (day, start) options remain viable.
func (t *AttemptTracker) DomainSize(courseID string) int {
	h, ok := t.histories[courseID]
	if !ok {
		return 0
	}
	return len(h.domain)
}

// Analyze aggregates failure counts and the most problematic slot.
func (t *AttemptTracker) Analyze(courseID string) FailureAnalysis {
	analysis := FailureAnalysis{CourseID: courseID, ByReason: make(map[FailureReason]int)}
	h, ok := t.histories[courseID]
	if !ok {
		return analysis
	}
	analysis.TotalAttempts = len(h.Attempts)
	slotFailures := make(map[slotToken]int)
	for _, attempt := range h.Attempts {
		analysis.ByReason[attempt.Reason]++
		slotFailures[slotToken{Day: NormalizeDay(attempt.Day), Start: attempt.Start}]++
	}
	worst := slotToken{}
	worstCount := 0
	tokens := sortedTokens(slotFailures)
	for _, token := range tokens {
		if slotFailures[token] > worstCount {
			worst = token
			worstCount = slotFailures[token]
		}
	}
	analysis.WorstDay = worst.Day
	analysis.WorstStart = worst.Start
	return analysis
}

// Suggest ranks remaining domain options by how rarely they failed, so an
// intelligent retry can try the least-contended slots first.
func (t *AttemptTracker) Suggest(courseID string, limit int) []SlotSuggestion {
	h, ok := t.histories[courseID]
	if !ok {
		return nil
	}
	failures := make(map[slotToken]int)
	for _, attempt := range h.Attempts {
		failures[slotToken{Day: NormalizeDay(attempt.Day), Start: attempt.Start}]++
	}
	suggestions := make([]SlotSuggestion, 0, len(h.domain))
	for _, token := range sortedTokens(h.domain) {
		suggestions = append(suggestions, SlotSuggestion{Day: token.Day, Start: token.Start, Failures: failures[token]})
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Failures != suggestions[j].Failures {
			return suggestions[i].Failures < suggestions[j].Failures
		}
		if oi, oj := dayOrdinal(suggestions[i].Day), dayOrdinal(suggestions[j].Day); oi != oj {
			return oi < oj
		}
		return suggestions[i].Start < suggestions[j].Start
	})
	if limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

func sortedTokens[V any](set map[slotToken]V) []slotToken {
	tokens := make([]slotToken, 0, len(set))
	for token := range set {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if oi, oj := dayOrdinal(tokens[i].Day), dayOrdinal(tokens[j].Day); oi != oj {
			return oi < oj
		}
		return tokens[i].Start < tokens[j].Start
	})
	return tokens
}

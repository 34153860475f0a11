package engine

// TimeWindow is one availability entry inside a calendar day. A window with
// an empty End acts as a start-only marker: it matches any block starting at
// exactly that time. A full window is tested for interval containment.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// Calendar maps canonical day names to availability windows. The semantics
// are deliberately permissive, mirroring how the catalog stores them:
//
//   - nil calendar, or a calendar where no day has any window: the entity is
//     fully available;
//   - otherwise, a day that is missing or has an empty window list is
//     unavailable;
//   - a block is allowed on a listed day when some window admits it.
type Calendar map[string][]TimeWindow

// hasAnyWindow reports whether at least one day carries a window.
func (c Calendar) hasAnyWindow() bool {
	for _, windows := range c {
		if len(windows) > 0 {
			return true
		}
	}
	return false
}

// Allows applies the tri-state availability rules to a single block.
func (c Calendar) Allows(day string, block TimeBlock) bool {
	if c == nil || !c.hasAnyWindow() {
		return true
	}
	windows, ok := c[NormalizeDay(day)]
	if !ok || len(windows) == 0 {
		return false
	}
	blockStart := minuteOf(block.Start)
	blockEnd := minuteOf(block.End)
	for _, window := range windows {
		winStart := minuteOf(window.Start)
		if winStart < 0 {
			continue
		}
		if window.End == "" {
			if winStart == blockStart {
				return true
			}
			continue
		}
		winEnd := minuteOf(window.End)
		if winEnd < 0 {
			continue
		}
		if blockStart >= winStart && blockEnd <= winEnd {
			return true
		}
	}
	return false
}

// AllowsRun reports whether every block of a contiguous run is admitted.
func (c Calendar) AllowsRun(day string, blocks []TimeBlock) bool {
	for _, block := range blocks {
		if !c.Allows(day, block) {
			return false
		}
	}
	return true
}

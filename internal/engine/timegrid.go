package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Settings carries the institution-wide timing knobs the grid is built from.
type Settings struct {
	SlotDuration    int    `json:"slot_duration"`
	DayStart        string `json:"day_start"`
	DayEnd          string `json:"day_end"`
	LunchBreakStart string `json:"lunch_break_start"`
	LunchBreakEnd   string `json:"lunch_break_end"`
}

// TimeBlock is one atomic scheduling unit of the day. Blocks produced by
// BuildTimeGrid are ordered and contiguous except across the lunch window.
type TimeBlock struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Days lists the teaching days in canonical order. All shuffling inside the
// engine starts from this slice so runs stay reproducible under one seed.
var Days = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

var dayAliases = map[string]string{
	"monday": "Monday", "mon": "Monday",
	"tuesday": "Tuesday", "tue": "Tuesday", "tues": "Tuesday",
	"wednesday": "Wednesday", "wed": "Wednesday",
	"thursday": "Thursday", "thu": "Thursday", "thur": "Thursday", "thurs": "Thursday",
	"friday": "Friday", "fri": "Friday",
	"saturday": "Saturday", "sat": "Saturday",
	"sunday": "Sunday", "sun": "Sunday",
}

// NormalizeDay maps spelling variants ("MONDAY", "mon") onto the canonical
// day name. Unknown input is returned trimmed so lookups simply miss.
func NormalizeDay(day string) string {
	trimmed := strings.TrimSpace(day)
	if canonical, ok := dayAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// minuteOf parses "HH:MM" into minutes since midnight. Malformed values
// return -1; callers treat that permissively rather than failing the run.
func minuteOf(clock string) int {
	parts := strings.SplitN(strings.TrimSpace(clock), ":", 2)
	if len(parts) != 2 {
		return -1
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return -1
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return -1
	}
	return h*60 + m
}

func clockOf(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// BuildTimeGrid expands the settings into the ordered block sequence for one
// day, excluding any block overlapping the lunch window. Unparseable lunch
// bounds disable the exclusion instead of erroring.
func BuildTimeGrid(settings Settings) []TimeBlock {
	duration := settings.SlotDuration
	if duration <= 0 {
		duration = 60
	}
	start := minuteOf(settings.DayStart)
	end := minuteOf(settings.DayEnd)
	if start < 0 {
		start = 8 * 60
	}
	if end <= start {
		end = 18 * 60
	}
	lunchStart := minuteOf(settings.LunchBreakStart)
	lunchEnd := minuteOf(settings.LunchBreakEnd)
	hasLunch := lunchStart >= 0 && lunchEnd > lunchStart

	blocks := make([]TimeBlock, 0, (end-start)/duration)
	for at := start; at+duration <= end; at += duration {
		if hasLunch && at < lunchEnd && at+duration > lunchStart {
			continue
		}
		blocks = append(blocks, TimeBlock{Start: clockOf(at), End: clockOf(at + duration)})
	}
	return blocks
}

// rangeOf renders the inclusive span of a contiguous block run.
func rangeOf(blocks []TimeBlock) string {
	if len(blocks) == 0 {
		return ""
	}
	return blocks[0].Start + "-" + blocks[len(blocks)-1].End
}

// splitRange parses "HH:MM-HH:MM" into start/end minutes. Either bound may
// come back -1 for malformed input.
func splitRange(timeRange string) (int, int) {
	parts := strings.SplitN(timeRange, "-", 2)
	if len(parts) != 2 {
		return -1, -1
	}
	return minuteOf(parts[0]), minuteOf(parts[1])
}

// rangesOverlap reports whether two half-open clock ranges intersect.
func rangesOverlap(a, b string) bool {
	aStart, aEnd := splitRange(a)
	bStart, bEnd := splitRange(b)
	if aStart < 0 || aEnd < 0 || bStart < 0 || bEnd < 0 {
		return false
	}
	return aStart < bEnd && bStart < aEnd
}

// blocksWithin returns the grid blocks fully covered by the given range.
func blocksWithin(grid []TimeBlock, timeRange string) []TimeBlock {
	start, end := splitRange(timeRange)
	if start < 0 || end <= start {
		return nil
	}
	var covered []TimeBlock
	for _, block := range grid {
		bs, be := minuteOf(block.Start), minuteOf(block.End)
		if bs >= start && be <= end {
			covered = append(covered, block)
		}
	}
	return covered
}

// contiguous reports whether block i+1 starts exactly where block i ends.
func contiguous(a, b TimeBlock) bool {
	return a.End == b.Start
}

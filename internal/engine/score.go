package engine

import (
	"sort"

	"github.com/samber/lo"
)

// ScoreParams tune the soft quality measure the optimizers climb.
type ScoreParams struct {
	Band            UtilizationBand
	WasteThreshold  float64
	BandReward      float64
	WastePenalty    float64
	PriorityBonus   float64
	StddevPenalty   float64
	DaySpreadBonus  float64
	OverfillPenalty float64
}

// DefaultScoreParams is the baseline before adaptive tuning.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		Band:            DefaultUtilizationBand,
		WasteThreshold:  0.4,
		BandReward:      10,
		WastePenalty:    6,
		PriorityBonus:   3,
		StddevPenalty:   2,
		DaySpreadBonus:  4,
		OverfillPenalty: 25,
	}
}

// SoftScore sums placement quality over the whole schedule: reward for
// rooms filled inside the ideal band, penalty for badly wasted capacity,
// bonus for department-priority room matches, penalty proportional to the
// per-teacher load spread, and a bonus for courses spread over distinct days.
func SoftScore(schedule []ScheduleItem, courses map[string]*Course, rooms map[string]*Classroom, params ScoreParams) float64 {
	if params.Band.High <= params.Band.Low {
		params = DefaultScoreParams()
	}
	score := 0.0
	teacherLoads := make(map[string]int)
	courseDays := make(map[string]map[string]struct{})

	for i := range schedule {
		item := &schedule[i]
		course := courses[item.CourseID]
		if course == nil {
			continue
		}
		if course.TeacherID != "" {
			teacherLoads[course.TeacherID] += item.SessionHours
		}
		if courseDays[item.CourseID] == nil {
			courseDays[item.CourseID] = make(map[string]struct{})
		}
		courseDays[item.CourseID][NormalizeDay(item.Day)] = struct{}{}

		room := rooms[item.ClassroomID]
		if room == nil || room.Capacity <= 0 {
			continue
		}
		ratio := float64(course.EffectiveHeadcount()) / float64(room.Capacity)
		switch {
		case ratio > 1:
			score -= params.OverfillPenalty * (ratio - 1)
		case ratio >= params.Band.Low && ratio <= params.Band.High:
			score += params.BandReward
		case ratio < params.WasteThreshold:
			score -= params.WastePenalty * (params.WasteThreshold - ratio)
		}
		if room.PriorityDepartment != "" && len(course.Cohorts) > 0 &&
			room.PriorityDepartment == course.Cohorts[0].Department {
			score += params.PriorityBonus
		}
	}

	score -= params.StddevPenalty * loadStddev(teacherLoads)
	spreadIDs := lo.Keys(courseDays)
	sort.Strings(spreadIDs)
	for _, id := range spreadIDs {
		if days := courseDays[id]; len(days) > 1 {
			score += params.DaySpreadBonus * float64(len(days)-1)
		}
	}
	return score
}

// ComputeMetrics derives the output metrics record from a schedule.
func ComputeMetrics(schedule []ScheduleItem, courses map[string]*Course, rooms map[string]*Classroom) Metrics {
	metrics := Metrics{PlacedSessions: len(schedule)}
	teacherLoads := make(map[string]int)
	marginSum := 0.0
	roomPlacements := 0

	for i := range schedule {
		item := &schedule[i]
		metrics.ScheduledHours += item.SessionHours
		course := courses[item.CourseID]
		if course == nil {
			continue
		}
		if course.TeacherID != "" {
			teacherLoads[course.TeacherID] += item.SessionHours
		}
		room := rooms[item.ClassroomID]
		if room == nil || room.Capacity <= 0 {
			continue
		}
		waste := float64(room.Capacity-course.EffectiveHeadcount()) / float64(room.Capacity)
		if waste < 0 {
			waste = 0
		}
		if waste > metrics.MaxCapacityWaste {
			metrics.MaxCapacityWaste = waste
		}
		marginSum += waste
		roomPlacements++
	}
	if roomPlacements > 0 {
		metrics.AvgCapacityMargin = marginSum / float64(roomPlacements)
	}
	metrics.TeacherLoadStddev = loadStddev(teacherLoads)
	return metrics
}

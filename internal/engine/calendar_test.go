package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalendarAbsentMeansFullyAvailable(t *testing.T) {
	var calendar Calendar
	assert.True(t, calendar.Allows("Monday", TimeBlock{Start: "09:00", End: "10:00"}))
}

func TestCalendarWithNoWindowsMeansFullyAvailable(t *testing.T) {
	calendar := Calendar{"Monday": nil, "Tuesday": {}}
	assert.True(t, calendar.Allows("Wednesday", TimeBlock{Start: "09:00", End: "10:00"}))
}

func TestCalendarMissingDayMeansUnavailable(t *testing.T) {
	calendar := Calendar{"Monday": {{Start: "09:00", End: "12:00"}}}
	assert.False(t, calendar.Allows("Tuesday", TimeBlock{Start: "09:00", End: "10:00"}))
}

func TestCalendarEmptyDayMeansUnavailable(t *testing.T) {
	calendar := Calendar{
		"Monday":  {{Start: "09:00", End: "12:00"}},
		"Tuesday": {},
	}
	assert.False(t, calendar.Allows("Tuesday", TimeBlock{Start: "09:00", End: "10:00"}))
}

func TestCalendarFullRangeContainment(t *testing.T) {
	calendar := Calendar{"Monday": {{Start: "09:00", End: "12:00"}}}
	assert.True(t, calendar.Allows("monday", TimeBlock{Start: "10:00", End: "11:00"}))
	assert.False(t, calendar.Allows("Monday", TimeBlock{Start: "11:30", End: "12:30"}))
}

func TestCalendarStartOnlyMarker(t *testing.T) {
	calendar := Calendar{"Friday": {{Start: "13:00"}}}
	assert.True(t, calendar.Allows("Friday", TimeBlock{Start: "13:00", End: "14:00"}))
	assert.False(t, calendar.Allows("Friday", TimeBlock{Start: "14:00", End: "15:00"}))
}

func TestCalendarMalformedWindowIsIgnored(t *testing.T) {
	calendar := Calendar{"Monday": {{Start: "garbage", End: "noon"}, {Start: "09:00", End: "11:00"}}}
	assert.True(t, calendar.Allows("Monday", TimeBlock{Start: "09:00", End: "10:00"}))
	assert.False(t, calendar.Allows("Monday", TimeBlock{Start: "11:00", End: "12:00"}))
}

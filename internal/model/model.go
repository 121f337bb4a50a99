package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Weekday identifies one sheet tab. Only teaching days exist in the sheet,
// so the range is Monday (0) to Friday (4).
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
)

// Weekdays lists all teaching days in order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

var weekdayNames = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

func (d Weekday) String() string {
	if !d.Valid() {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return weekdayNames[d]
}

func (d Weekday) Valid() bool {
	return d >= Monday && d <= Friday
}

// ParseWeekday accepts a day number ("0".."4") or an English day name in
// any case ("monday", "Mon").
func ParseWeekday(s string) (Weekday, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		d := Weekday(n)
		if !d.Valid() {
			return 0, fmt.Errorf("day number %d out of range 0-4", n)
		}
		return d, nil
	}
	ls := strings.ToLower(s)
	if len(ls) >= 3 {
		for i, name := range weekdayNames {
			if strings.HasPrefix(strings.ToLower(name), ls) {
				return Weekday(i), nil
			}
		}
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

// TimeSlot is one time column of a day tab.
type TimeSlot struct {
	// Index is the sheet column (1-based after the room-name column).
	Index int `json:"index"`
	// Time is the raw label, e.g. "08:00-8:50".
	Time  string `json:"time"`
	Label string `json:"label"`
}

// ScheduleEntry is the content of one room at one time slot.
type ScheduleEntry struct {
	TimeIndex int    `json:"timeIndex"`
	Time      string `json:"time"`
	ClassText string `json:"class"`
	Code      string `json:"code"`
}

// Classroom is one room row of a day tab.
type Classroom struct {
	Name       string          `json:"name"`
	Schedule   []ScheduleEntry `json:"schedule"`
	ClassCodes []string        `json:"classCodes"`
}

// EntryAt returns the schedule entry at the given time index, if any.
func (c Classroom) EntryAt(index int) (ScheduleEntry, bool) {
	for _, e := range c.Schedule {
		if e.TimeIndex == index {
			return e, true
		}
	}
	return ScheduleEntry{}, false
}

// DaySchedule is the parsed timetable of one weekday. It is never mutated
// after being returned; a later fetch replaces it.
type DaySchedule struct {
	Day        Weekday     `json:"dayNum"`
	DayName    string      `json:"dayName"`
	Classrooms []Classroom `json:"classrooms"`
	TimeSlots  []TimeSlot  `json:"timeSlots"`
}

// WeekSchedule maps day names to their schedules. Days that failed to
// load are absent.
type WeekSchedule map[string]DaySchedule

// SearchResultItem is one hit of a schedule search. Time may be a merged
// "start-end" range for multi-period lab sessions.
type SearchResultItem struct {
	ClassroomName string `json:"classroomName"`
	ClassText     string `json:"classText"`
	Code          string `json:"code"`
	Time          string `json:"time"`
	DayNum        int    `json:"dayNum"`
}

// Key is the composite identifier the browser uses for saved classes and
// watch-list entries.
func (it SearchResultItem) Key() string {
	return strings.Join([]string{it.Code, strconv.Itoa(it.DayNum), it.Time, it.ClassroomName}, "|")
}

// Room describes a classroom reported as available.
type Room struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Floor    string `json:"floor"`
}

// FreeRange is a contiguous run of free time slots.
type FreeRange struct {
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	AvailableRooms []Room `json:"availableRooms"`
}

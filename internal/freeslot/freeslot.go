package freeslot

import (
	"errors"
	"strings"

	"classfinder/internal/model"
	"classfinder/internal/rooms"
	"classfinder/internal/sheet"
)

// DefaultMaxRooms caps the rooms listed per free range.
const DefaultMaxRooms = 5

// ErrDataNotReady means no schedule has been loaded for the day yet; the
// caller should retry shortly.
var ErrDataNotReady = errors.New("schedule data not loaded yet, retry shortly")

// Finder answers free-room and free-time questions on a parsed day.
type Finder struct {
	Rooms    *rooms.Catalog
	MaxRooms int
}

func (f *Finder) maxRooms() int {
	if f.MaxRooms <= 0 {
		return DefaultMaxRooms
	}
	return f.MaxRooms
}

// occupied reports whether room has a class at slot index.
func occupied(room model.Classroom, index int) bool {
	e, ok := room.EntryAt(index)
	return ok && !sheet.IsFreeText(e.ClassText)
}

// FreeRoomsInRange lists rooms with no class in any slot starting within
// [start, end). Unparseable bounds yield an empty list; a range that
// selects no slot leaves every room free.
func (f *Finder) FreeRoomsInRange(day *model.DaySchedule, start, end string) ([]model.Room, error) {
	if day == nil {
		return nil, ErrDataNotReady
	}
	out := []model.Room{}

	startMin, ok1 := sheet.ParseMinutes(start)
	endMin, ok2 := sheet.ParseMinutes(end)
	if !ok1 || !ok2 {
		return out, nil
	}

	var selected []int
	for _, slot := range day.TimeSlots {
		m, ok := sheet.ParseMinutes(slot.Time)
		if !ok {
			continue
		}
		if m >= startMin && m < endMin {
			selected = append(selected, slot.Index)
		}
	}
	for _, room := range day.Classrooms {
		if sheet.IsArtifactRoom(room.Name) {
			continue
		}
		if freeThroughout(room, selected) {
			out = append(out, f.Rooms.Lookup(room.Name))
		}
	}
	return out, nil
}

func freeThroughout(room model.Classroom, indexes []int) bool {
	for _, idx := range indexes {
		if occupied(room, idx) {
			return false
		}
	}
	return true
}

// FreeRangesForQuery computes the free time ranges for a query.
//
// A query shaped like a room id ("C-301") selects room mode: the free
// ranges of that room, each reporting the room itself. Any other query is
// matched against class text, codes and room names; slots where nothing
// matches are free, and each free range lists up to MaxRooms rooms that
// are free for all of it.
func (f *Finder) FreeRangesForQuery(day *model.DaySchedule, query string) ([]model.FreeRange, error) {
	if day == nil {
		return nil, ErrDataNotReady
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return []model.FreeRange{}, nil
	}
	if sheet.IsRoomID(q) {
		return f.roomRanges(day, q), nil
	}
	return f.queryRanges(day, q), nil
}

func (f *Finder) roomRanges(day *model.DaySchedule, q string) []model.FreeRange {
	out := []model.FreeRange{}
	room, ok := findRoom(day.Classrooms, q)
	if !ok {
		return out
	}
	free := make([]bool, len(day.TimeSlots))
	for i, slot := range day.TimeSlots {
		free[i] = !occupied(room, slot.Index)
	}
	for _, run := range freeRuns(day.TimeSlots, free) {
		out = append(out, makeRange(day.TimeSlots, run, []model.Room{f.Rooms.Lookup(room.Name)}))
	}
	return out
}

func (f *Finder) queryRanges(day *model.DaySchedule, q string) []model.FreeRange {
	lq := strings.ToLower(q)
	free := make([]bool, len(day.TimeSlots))
	for i, slot := range day.TimeSlots {
		free[i] = !slotMatches(day.Classrooms, slot.Index, lq)
	}

	out := []model.FreeRange{}
	for _, run := range freeRuns(day.TimeSlots, free) {
		var indexes []int
		for i := run[0]; i <= run[1]; i++ {
			indexes = append(indexes, day.TimeSlots[i].Index)
		}
		available := []model.Room{}
		for _, room := range day.Classrooms {
			if len(available) >= f.maxRooms() {
				break
			}
			if sheet.IsArtifactRoom(room.Name) {
				continue
			}
			if freeThroughout(room, indexes) {
				available = append(available, f.Rooms.Lookup(room.Name))
			}
		}
		out = append(out, makeRange(day.TimeSlots, run, available))
	}
	return out
}

// slotMatches reports whether the query occupies the slot: some room has
// matching text or code there, or the query names a room that has a class
// there.
func slotMatches(classrooms []model.Classroom, index int, lq string) bool {
	for _, room := range classrooms {
		e, ok := room.EntryAt(index)
		if !ok || sheet.IsFreeText(e.ClassText) {
			continue
		}
		if strings.Contains(strings.ToLower(e.ClassText), lq) || strings.Contains(strings.ToLower(e.Code), lq) {
			return true
		}
		if strings.Contains(strings.ToLower(room.Name), lq) {
			return true
		}
	}
	return false
}

// findRoom prefers an exact match on the normalized name and falls back
// to the first room whose normalized name contains the query.
func findRoom(classrooms []model.Classroom, q string) (model.Classroom, bool) {
	nq := sheet.NormalizeRoom(q)
	for _, room := range classrooms {
		if sheet.NormalizeRoom(room.Name) == nq {
			return room, true
		}
	}
	for _, room := range classrooms {
		if strings.Contains(sheet.NormalizeRoom(room.Name), nq) {
			return room, true
		}
	}
	return model.Classroom{}, false
}

// freeRuns returns [first, last] positions in slots of maximal runs of
// free slots whose indexes are consecutive.
func freeRuns(slots []model.TimeSlot, free []bool) [][2]int {
	var runs [][2]int
	start := -1
	for i := range slots {
		if !free[i] {
			if start >= 0 {
				runs = append(runs, [2]int{start, i - 1})
				start = -1
			}
			continue
		}
		if start >= 0 && slots[i].Index != slots[i-1].Index+1 {
			runs = append(runs, [2]int{start, i - 1})
			start = -1
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, len(slots) - 1})
	}
	return runs
}

func makeRange(slots []model.TimeSlot, run [2]int, available []model.Room) model.FreeRange {
	start, _ := sheet.SplitRange(slots[run[0]].Time)
	_, end := sheet.SplitRange(slots[run[1]].Time)
	return model.FreeRange{StartTime: start, EndTime: end, AvailableRooms: available}
}

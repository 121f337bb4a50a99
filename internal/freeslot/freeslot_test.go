package freeslot

import (
	"errors"
	"testing"

	"classfinder/internal/model"
	"classfinder/internal/rooms"
)

func slots() []model.TimeSlot {
	labels := []string{"08:00-8:50", "8:55-9:45", "9:50-10:40", "10:45-11:35", "11:40-12:30", "1:30-2:20", "2:25-3:15"}
	out := make([]model.TimeSlot, len(labels))
	for i, l := range labels {
		out[i] = model.TimeSlot{Index: i + 1, Time: l, Label: l}
	}
	return out
}

func classroom(name string, classes map[int]string) model.Classroom {
	c := model.Classroom{Name: name}
	for i := 1; i <= 7; i++ {
		if text, ok := classes[i]; ok {
			c.Schedule = append(c.Schedule, model.ScheduleEntry{TimeIndex: i, ClassText: text})
		}
	}
	return c
}

func testDay() *model.DaySchedule {
	return &model.DaySchedule{
		Day:     model.Monday,
		DayName: "Monday",
		Classrooms: []model.Classroom{
			classroom("CLASSROOMS", nil),
			classroom("C-301", map[int]string{1: "Database BCS-1G", 2: "Database BCS-1G", 6: "---"}),
			classroom("C-302", map[int]string{3: "OOP BSE-2A"}),
			classroom("C-303", map[int]string{6: "Calculus BAI-1A"}),
			classroom("C-304", nil),
		},
		TimeSlots: slots(),
	}
}

func names(rs []model.Room) []string {
	var out []string
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}

func TestFreeRoomsInRange(t *testing.T) {
	f := &Finder{Rooms: rooms.NewCatalog(map[string]rooms.Info{"C-302": {Capacity: 45}})}
	day := testDay()

	// 08:00 and 8:55 start inside [8:00, 9:50).
	got, err := f.FreeRoomsInRange(day, "8:00", "9:50")
	if err != nil {
		t.Fatalf("FreeRoomsInRange: %v", err)
	}
	if want := []string{"C-302", "C-303", "C-304"}; !equal(names(got), want) {
		t.Fatalf("free rooms = %v, want %v", names(got), want)
	}
	if got[0].Capacity != 45 || got[0].Floor != "3" {
		t.Fatalf("catalog metadata missing: %+v", got[0])
	}

	// A single occupied slot in range excludes the room.
	got, _ = f.FreeRoomsInRange(day, "8:00", "10:45")
	if want := []string{"C-303", "C-304"}; !equal(names(got), want) {
		t.Fatalf("free rooms = %v, want %v", names(got), want)
	}

	// "1:30" is 13:30; all-dash text counts as free.
	got, _ = f.FreeRoomsInRange(day, "1:00", "2:00")
	if want := []string{"C-301", "C-302", "C-304"}; !equal(names(got), want) {
		t.Fatalf("afternoon free rooms = %v, want %v", names(got), want)
	}
}

func TestFreeRoomsInRangeDegenerate(t *testing.T) {
	f := &Finder{}
	day := testDay()
	for _, tc := range [][2]string{{"soon", "9:00"}, {"8:00", ""}} {
		got, err := f.FreeRoomsInRange(day, tc[0], tc[1])
		if err != nil || got == nil || len(got) != 0 {
			t.Fatalf("range %v: got %v, %v", tc, got, err)
		}
	}
	if _, err := f.FreeRoomsInRange(nil, "8:00", "9:00"); !errors.Is(err, ErrDataNotReady) {
		t.Fatalf("nil day error = %v", err)
	}
	if _, err := f.FreeRangesForQuery(nil, "x"); !errors.Is(err, ErrDataNotReady) {
		t.Fatalf("nil day error = %v", err)
	}
}

func TestFreeRoomsInRangeWithoutSlots(t *testing.T) {
	f := &Finder{}
	day := testDay()
	// Nothing starts between 3:30 and 4:00, or inside an empty range, so
	// no slot can occupy a room.
	for _, tc := range [][2]string{{"3:30", "4:00"}, {"9:00", "9:00"}} {
		got, err := f.FreeRoomsInRange(day, tc[0], tc[1])
		if err != nil {
			t.Fatalf("range %v: %v", tc, err)
		}
		if want := []string{"C-301", "C-302", "C-303", "C-304"}; !equal(names(got), want) {
			t.Fatalf("range %v: free rooms = %v, want %v", tc, names(got), want)
		}
	}
}

func TestFreeRangesRoomMode(t *testing.T) {
	f := &Finder{}
	got, err := f.FreeRangesForQuery(testDay(), "c301")
	if err != nil {
		t.Fatalf("FreeRangesForQuery: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one free range, got %+v", got)
	}
	if got[0].StartTime != "9:50" || got[0].EndTime != "3:15" {
		t.Fatalf("range = %s-%s", got[0].StartTime, got[0].EndTime)
	}
	if rs := names(got[0].AvailableRooms); !equal(rs, []string{"C-301"}) {
		t.Fatalf("room mode must report the room itself, got %v", rs)
	}

	if got, _ := f.FreeRangesForQuery(testDay(), "Z-999"); len(got) != 0 {
		t.Fatalf("unknown room should give no ranges, got %+v", got)
	}
}

func TestFreeRangesQueryMode(t *testing.T) {
	f := &Finder{MaxRooms: 2}
	got, err := f.FreeRangesForQuery(testDay(), "database")
	if err != nil {
		t.Fatalf("FreeRangesForQuery: %v", err)
	}
	if len(got) != 1 || got[0].StartTime != "9:50" || got[0].EndTime != "3:15" {
		t.Fatalf("unexpected ranges %+v", got)
	}
	// C-301 is free 3..7 except the dashed slot counts as free; C-302 has
	// slot 3; only MaxRooms rooms are listed and CLASSROOMS is skipped.
	if rs := names(got[0].AvailableRooms); !equal(rs, []string{"C-301", "C-304"}) {
		t.Fatalf("available rooms = %v", rs)
	}
}

func TestFreeRangesSplitByOccupiedSlots(t *testing.T) {
	f := &Finder{}
	got, _ := f.FreeRangesForQuery(testDay(), "BSE-2A")
	if len(got) != 2 {
		t.Fatalf("expected ranges before and after slot 3, got %+v", got)
	}
	if got[0].StartTime != "08:00" || got[0].EndTime != "9:45" {
		t.Fatalf("first range %+v", got[0])
	}
	if got[1].StartTime != "10:45" || got[1].EndTime != "3:15" {
		t.Fatalf("second range %+v", got[1])
	}
}

func TestFreeRangesRoomNameNotID(t *testing.T) {
	day := testDay()
	day.Classrooms = append(day.Classrooms, classroom("Physics Lab", map[int]string{7: "Physics Lab BCS-2C"}), classroom("Seminar Hall", map[int]string{1: "Talk"}))
	got, _ := (&Finder{}).FreeRangesForQuery(day, "seminar")
	if len(got) != 1 || got[0].StartTime != "8:55" {
		t.Fatalf("room-name query should occupy the room's classes, got %+v", got)
	}
}

func TestFreeRunsBreakOnIndexGaps(t *testing.T) {
	s := []model.TimeSlot{{Index: 1}, {Index: 2}, {Index: 4}, {Index: 5}}
	runs := freeRuns(s, []bool{true, true, true, false})
	if len(runs) != 2 || runs[0] != [2]int{0, 1} || runs[1] != [2]int{2, 2} {
		t.Fatalf("runs = %v", runs)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

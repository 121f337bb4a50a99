package sheet

import (
	"io"
	"reflect"
	"testing"

	"classfinder/internal/gviz"
	appLog "classfinder/internal/log"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	m.Run()
}

// row builds a gviz row; "" becomes a nil cell.
func row(texts ...string) gviz.Row {
	r := gviz.Row{}
	for _, t := range texts {
		if t == "" {
			r.C = append(r.C, nil)
			continue
		}
		r.C = append(r.C, &gviz.Cell{V: t})
	}
	return r
}

func spanned(r gviz.Row, col, span int) gviz.Row {
	r.C[col].Span = span
	return r
}

func grid(rows ...gviz.Row) *gviz.Grid {
	return &gviz.Grid{Table: gviz.Table{Rows: rows}}
}

var (
	slotRow = row("", "1", "2", "3", "4", "5")
	timeRow = row("Rooms", "08:00-8:50", "8:55-9:45", "9:50-10:40", "10:45-11:35", "11:40-12:30")
)

func TestExtractClassCode(t *testing.T) {
	cases := map[string]string{
		"BCS-1G Database Systems":   "BCS-1G",
		"FE Lab BCS-1G Qurat ul Ain": "BCS-1G",
		"":                          "",
		"no code here":              "",
		"Calculus (BSE-12) Room":    "BSE-12",
		"AI-5 and BCS-3A":           "AI-5",
		"bcs-1g lower case":         "",
	}
	for in, want := range cases {
		if got := ExtractClassCode(in); got != want {
			t.Errorf("ExtractClassCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseMinutes(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"1:30", 13*60 + 30, true},
		{"8:00", 8 * 60, true},
		{"08:00-8:50", 8 * 60, true},
		{"7:59", 19*60 + 59, true},
		{"12:10-1:00", 12*60 + 10, true},
		{"14:00", 14 * 60, true},
		{"0:15", 15, true},
		{"noon", 0, false},
		{"", 0, false},
		{"25:00", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseMinutes(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseMinutes(%q) = %d,%v want %d,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPredicates(t *testing.T) {
	if !IsLab("FE Lab BCS-1G") || !IsLab("LAB") || IsLab("Labour Law") || IsLab("Syllabus") {
		t.Fatalf("IsLab misclassified")
	}
	for _, s := range []string{"", "   ", "-", "---", " -- "} {
		if !IsFreeText(s) {
			t.Errorf("IsFreeText(%q) = false", s)
		}
	}
	if IsFreeText("- BCS-1G -") {
		t.Errorf("text with dashes and content is not free")
	}
	for _, s := range []string{"C301", "C-301", "LB-2", "abc-1234"} {
		if !IsRoomID(s) {
			t.Errorf("IsRoomID(%q) = false", s)
		}
	}
	for _, s := range []string{"BCS-1G", "C-30123", "Lab 3", "ABCD-1"} {
		if IsRoomID(s) {
			t.Errorf("IsRoomID(%q) = true", s)
		}
	}
	for _, s := range []string{"CLASSROOMS", "Rooms", "labs", "MAIN BLOCK"} {
		if !IsArtifactRoom(s) {
			t.Errorf("IsArtifactRoom(%q) = false", s)
		}
	}
	for _, s := range []string{"C-301", "LAB1", "Physics Lab 2", "ROOM 4"} {
		if IsArtifactRoom(s) {
			t.Errorf("IsArtifactRoom(%q) = true", s)
		}
	}
	if s, e := SplitRange("08:00 - 8:50"); s != "08:00" || e != "8:50" {
		t.Errorf("SplitRange = %q,%q", s, e)
	}
	if s, e := SplitRange("9:00"); s != "9:00" || e != "9:00" {
		t.Errorf("SplitRange single = %q,%q", s, e)
	}
	if NormalizeRoom("C - 301") != "c301" {
		t.Errorf("NormalizeRoom = %q", NormalizeRoom("C - 301"))
	}
}

func TestParseShortGridIsEmpty(t *testing.T) {
	for _, g := range []*gviz.Grid{
		nil,
		grid(),
		grid(slotRow, timeRow),
		grid(slotRow, gviz.Row{}, row("C-301", "x")),
	} {
		res := Parse(g, Options{})
		if res.Classrooms == nil || res.TimeSlots == nil {
			t.Fatalf("expected non-nil empty slices")
		}
		if len(res.Classrooms) != 0 || len(res.TimeSlots) != 0 {
			t.Fatalf("expected empty result, got %+v", res)
		}
	}
}

func TestParseOneEntryPerNonEmptyCell(t *testing.T) {
	g := grid(
		slotRow,
		timeRow,
		row("C-301", "BCS-1G Database", "", "BSE-2A Calculus", "-", ""),
		row("", "orphan", "row"),
		row("C-302", "", "", "", "", "BAI-3C Ethics"),
	)
	res := Parse(g, Options{})

	if len(res.TimeSlots) != 5 {
		t.Fatalf("expected 5 slots, got %d", len(res.TimeSlots))
	}
	if res.TimeSlots[0].Index != 1 || res.TimeSlots[0].Time != "08:00-8:50" || res.TimeSlots[0].Label != "1" {
		t.Fatalf("unexpected first slot %+v", res.TimeSlots[0])
	}
	if len(res.Classrooms) != 2 {
		t.Fatalf("row without room name must be skipped, got %d rooms", len(res.Classrooms))
	}

	c301 := res.Classrooms[0]
	var idx []int
	for _, e := range c301.Schedule {
		idx = append(idx, e.TimeIndex)
	}
	if !reflect.DeepEqual(idx, []int{1, 3, 4}) {
		t.Fatalf("C-301 indices = %v", idx)
	}
	if c301.Schedule[1].Time != "9:50-10:40" || c301.Schedule[1].Code != "BSE-2A" {
		t.Fatalf("unexpected entry %+v", c301.Schedule[1])
	}
	if !reflect.DeepEqual(c301.ClassCodes, []string{"BCS-1G", "BSE-2A"}) {
		t.Fatalf("class codes = %v", c301.ClassCodes)
	}

	c302 := res.Classrooms[1]
	if len(c302.Schedule) != 1 || c302.Schedule[0].TimeIndex != 5 {
		t.Fatalf("C-302 schedule = %+v", c302.Schedule)
	}
}

func TestParseExplicitSpan(t *testing.T) {
	r := spanned(row("C-301", "OOP Lab BCS-2B", "ignored", "ignored", "Calc BSE-1A", ""), 1, 3)
	res := Parse(grid(slotRow, timeRow, r), Options{})

	sched := res.Classrooms[0].Schedule
	if len(sched) != 4 {
		t.Fatalf("expected 3 spanned + 1 regular entries, got %+v", sched)
	}
	for i := 0; i < 3; i++ {
		if sched[i].TimeIndex != i+1 || sched[i].ClassText != "OOP Lab BCS-2B" || sched[i].Code != "BCS-2B" {
			t.Fatalf("spanned entry %d = %+v", i, sched[i])
		}
	}
	if sched[3].TimeIndex != 4 || sched[3].Code != "BSE-1A" {
		t.Fatalf("entry after span = %+v", sched[3])
	}
}

func TestParseExplicitSpanBoundedBySlots(t *testing.T) {
	r := spanned(row("C-301", "", "", "", "Theory BCS-1A", ""), 4, 4)
	res := Parse(grid(slotRow, timeRow, r), Options{})
	sched := res.Classrooms[0].Schedule
	if len(sched) != 2 || sched[0].TimeIndex != 4 || sched[1].TimeIndex != 5 {
		t.Fatalf("span must stop at the last slot, got %+v", sched)
	}
}

func TestParseColumnsBeyondLastSlotDropped(t *testing.T) {
	r := row("C-301", "a", "b", "c", "d", "e", "beyond", "also beyond")
	res := Parse(grid(slotRow, timeRow, r), Options{})
	if n := len(res.Classrooms[0].Schedule); n != 5 {
		t.Fatalf("expected 5 entries, got %d", n)
	}
}

func TestInferLabSpan(t *testing.T) {
	cases := []struct {
		name      string
		r         gviz.Row
		lookahead int
		want      int
	}{
		{"two blanks then class", row("R", "DB Lab", "", "", "Next"), 5, 3},
		{"no blanks", row("R", "DB Lab", "Next"), 5, 1},
		{"six blanks bounded", row("R", "DB Lab", "", "", "", "", "", ""), 5, 6},
		{"bound smaller", row("R", "DB Lab", "", "", "", ""), 2, 3},
		{"end of row", row("R", "DB Lab", ""), 5, 2},
	}
	for _, tc := range cases {
		if got := InferLabSpan(tc.r, 1, tc.lookahead); got != tc.want {
			t.Errorf("%s: InferLabSpan = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestParseLabFallbackOnlyForLabs(t *testing.T) {
	g := grid(
		slotRow,
		timeRow,
		row("C-301", "Networks Lab BCS-4A", "", "", "English BSE-1B", ""),
		row("C-302", "Calculus BSE-1A", "", "", "", ""),
	)
	res := Parse(g, Options{})

	lab := res.Classrooms[0].Schedule
	if len(lab) != 4 {
		t.Fatalf("lab should cover 3 slots plus 1 class, got %+v", lab)
	}
	for i := 0; i < 3; i++ {
		if lab[i].TimeIndex != i+1 || lab[i].Code != "BCS-4A" {
			t.Fatalf("lab entry %d = %+v", i, lab[i])
		}
	}

	regular := res.Classrooms[1].Schedule
	if len(regular) != 1 || regular[0].TimeIndex != 1 {
		t.Fatalf("non-lab class must not absorb blank cells, got %+v", regular)
	}
}

func TestParseLabLookaheadOption(t *testing.T) {
	g := grid(slotRow, timeRow, row("C-301", "Physics Lab", "", "", "", ""))
	res := Parse(g, Options{LabLookahead: 1})
	if n := len(res.Classrooms[0].Schedule); n != 2 {
		t.Fatalf("lookahead 1 should give span 2, got %d entries", n)
	}
}

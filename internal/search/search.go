package search

import (
	"sort"
	"strings"

	"classfinder/internal/model"
	"classfinder/internal/sheet"
)

type groupKey struct {
	room string
	text string
}

// Search returns the slots of classrooms matching query, case-insensitively,
// in the class text, the class code or the room name. Free cells (blank or
// dashes) never match.
//
// Hits are grouped per (room, class text). Regular classes yield one item
// per slot. Lab groups are merged into one item per run of consecutive
// time indexes, whose time reads "<start of first>-<end of last>".
// Results are ordered by code, then by the raw time string.
func Search(day model.Weekday, classrooms []model.Classroom, query string) []model.SearchResultItem {
	q := strings.ToLower(strings.TrimSpace(query))
	results := []model.SearchResultItem{}
	if q == "" {
		return results
	}

	groups := make(map[groupKey][]model.ScheduleEntry)
	var order []groupKey
	for _, room := range classrooms {
		roomHit := strings.Contains(strings.ToLower(room.Name), q)
		for _, e := range room.Schedule {
			if sheet.IsFreeText(e.ClassText) {
				continue
			}
			if !roomHit &&
				!strings.Contains(strings.ToLower(e.ClassText), q) &&
				!strings.Contains(strings.ToLower(e.Code), q) {
				continue
			}
			k := groupKey{room: room.Name, text: e.ClassText}
			if _, ok := groups[k]; !ok {
				order = append(order, k)
			}
			groups[k] = append(groups[k], e)
		}
	}

	for _, k := range order {
		entries := groups[k]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].TimeIndex < entries[j].TimeIndex })

		if !sheet.IsLab(k.text) {
			for _, e := range entries {
				results = append(results, item(day, k, e.Code, e.Time))
			}
			continue
		}

		for _, run := range contiguousRuns(entries) {
			first, last := run[0], run[len(run)-1]
			t := first.Time
			if len(run) > 1 {
				t = MergeTimes(first.Time, last.Time)
			}
			results = append(results, item(day, k, first.Code, t))
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Code != results[j].Code {
			return results[i].Code < results[j].Code
		}
		return results[i].Time < results[j].Time
	})
	return results
}

// MergeTimes joins the start of the first label with the end of the last,
// e.g. "08:00-8:50" and "9:50-10:40" become "08:00-10:40".
func MergeTimes(first, last string) string {
	start, _ := sheet.SplitRange(first)
	_, end := sheet.SplitRange(last)
	return start + "-" + end
}

func item(day model.Weekday, k groupKey, code, t string) model.SearchResultItem {
	return model.SearchResultItem{
		ClassroomName: k.room,
		ClassText:     k.text,
		Code:          code,
		Time:          t,
		DayNum:        int(day),
	}
}

// contiguousRuns splits entries sorted by TimeIndex into maximal runs with
// consecutive indexes.
func contiguousRuns(entries []model.ScheduleEntry) [][]model.ScheduleEntry {
	var runs [][]model.ScheduleEntry
	start := 0
	for i := 1; i <= len(entries); i++ {
		if i == len(entries) || entries[i].TimeIndex != entries[i-1].TimeIndex+1 {
			runs = append(runs, entries[start:i])
			start = i
		}
	}
	return runs
}

package sheet

import (
	"sort"

	"classfinder/internal/gviz"
	appLog "classfinder/internal/log"
	"classfinder/internal/model"
)

// DefaultLabLookahead is how many cells after a lab cell may be absorbed
// into the session when the sheet carries no merge metadata.
const DefaultLabLookahead = 5

// Options tunes Parse.
type Options struct {
	// LabLookahead bounds the span inference for lab cells. Zero means
	// DefaultLabLookahead.
	LabLookahead int
}

// Result is the parsed content of one day tab.
type Result struct {
	Classrooms []model.Classroom `json:"classrooms"`
	TimeSlots  []model.TimeSlot  `json:"timeSlots"`
}

// Parse converts a day tab into classrooms and time slots.
//
// Expected layout:
//   - row 0: slot numbers (used only as slot labels)
//   - row 1: time ranges, column 0 is a placeholder
//   - rows 2+: column 0 is the room name, columns 1+ the class per slot
//
// Parse never fails. Rows without a room name are skipped, cells without
// merge metadata count as one slot, and a grid with fewer than three rows
// or no time header yields an empty result.
func Parse(grid *gviz.Grid, opts Options) Result {
	out := Result{
		Classrooms: []model.Classroom{},
		TimeSlots:  []model.TimeSlot{},
	}
	if grid == nil {
		return out
	}
	rows := grid.Table.Rows
	if len(rows) < 3 || len(rows[1].C) == 0 {
		return out
	}
	lookahead := opts.LabLookahead
	if lookahead <= 0 {
		lookahead = DefaultLabLookahead
	}

	slotByIndex := make(map[int]model.TimeSlot)
	header := rows[1]
	for j := 1; j < len(header.C); j++ {
		t := header.CellAt(j).Text()
		if t == "" {
			continue
		}
		label := rows[0].CellAt(j).Text()
		if label == "" {
			label = t
		}
		slot := model.TimeSlot{Index: j, Time: t, Label: label}
		out.TimeSlots = append(out.TimeSlots, slot)
		slotByIndex[j] = slot
	}
	if len(out.TimeSlots) == 0 {
		return out
	}
	lastIndex := out.TimeSlots[len(out.TimeSlots)-1].Index

	for r := 2; r < len(rows); r++ {
		row := rows[r]
		name := row.CellAt(0).Text()
		if name == "" {
			continue
		}

		room := model.Classroom{
			Name:       name,
			Schedule:   []model.ScheduleEntry{},
			ClassCodes: []string{},
		}
		codes := make(map[string]struct{})

		for j := 1; j < len(row.C) && j <= lastIndex; {
			text := row.CellAt(j).Text()
			if text == "" {
				j++
				continue
			}

			span := cellSpan(row, j, text, lookahead)
			code := ExtractClassCode(text)
			if code != "" {
				codes[code] = struct{}{}
			}

			for col := j; col < j+span && col <= lastIndex; col++ {
				slot, ok := slotByIndex[col]
				if !ok {
					continue
				}
				room.Schedule = append(room.Schedule, model.ScheduleEntry{
					TimeIndex: col,
					Time:      slot.Time,
					ClassText: text,
					Code:      code,
				})
			}
			j += span
		}

		for c := range codes {
			room.ClassCodes = append(room.ClassCodes, c)
		}
		sort.Strings(room.ClassCodes)
		out.Classrooms = append(out.Classrooms, room)
	}

	appLog.Debug("sheet parse completed", "rows", len(rows), "classrooms", len(out.Classrooms), "slots", len(out.TimeSlots))
	return out
}

// cellSpan returns how many slot columns the cell at col covers.
func cellSpan(row gviz.Row, col int, text string, lookahead int) int {
	if c := row.CellAt(col); c != nil && c.Span > 0 {
		return c.Span
	}
	if IsLab(text) {
		return InferLabSpan(row, col, lookahead)
	}
	return 1
}

// InferLabSpan counts the blank cells directly after col, up to lookahead
// of them, and returns 1 plus that count. It is only meant for lab cells:
// ordinary classes followed by blank cells are single-period.
func InferLabSpan(row gviz.Row, col, lookahead int) int {
	span := 1
	for k := 1; k <= lookahead; k++ {
		next := col + k
		if next >= len(row.C) {
			break
		}
		if row.CellAt(next).Text() != "" {
			break
		}
		span++
	}
	return span
}

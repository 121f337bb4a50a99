package ics

import (
	"errors"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "classfinder/internal/log"
	"classfinder/internal/model"
	"classfinder/internal/sheet"
)

const (
	DefaultWeeks = 16
	prodID       = "-//classfinder//timetable export//EN"
)

var byDay = map[int]rrule.Weekday{
	int(model.Monday):    rrule.MO,
	int(model.Tuesday):   rrule.TU,
	int(model.Wednesday): rrule.WE,
	int(model.Thursday):  rrule.TH,
	int(model.Friday):    rrule.FR,
}

// ExportConfig controls how search results become recurring events.
type ExportConfig struct {
	// From anchors the export: each class starts on its first weekday at
	// or after From's date. Zero means now.
	From time.Time
	// Location is the timezone the sheet's times are in.
	Location *time.Location
	// Weeks is the number of weekly occurrences per class.
	Weeks int
	Name  string
}

// Export builds a calendar with one weekly recurring VEVENT per result.
// The event UID is the result's composite key. Results whose time cannot
// be parsed are skipped.
func Export(items []model.SearchResultItem, cfg ExportConfig) *ical.Calendar {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Weeks <= 0 {
		cfg.Weeks = DefaultWeeks
	}
	if cfg.From.IsZero() {
		cfg.From = time.Now()
	}
	from := cfg.From.In(cfg.Location)
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, cfg.Location)

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)
	if cfg.Name != "" {
		cal.SetXWRCalName(cfg.Name)
	}
	cal.SetXWRTimezone(cfg.Location.String())

	stamp := cfg.From.UTC()
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		uid := it.Key()
		if _, dup := seen[uid]; dup {
			continue
		}

		start, end, err := occurrence(it, day, cfg.Weeks)
		if err != nil {
			appLog.Debug("ics export: skipping result", "uid", uid, "time", it.Time, "err", err)
			continue
		}
		seen[uid] = struct{}{}

		rule := rrule.ROption{
			Freq:      rrule.WEEKLY,
			Count:     cfg.Weeks,
			Byweekday: []rrule.Weekday{byDay[it.DayNum]},
		}

		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(end)
		ev.SetSummary(it.ClassText)
		ev.SetLocation(it.ClassroomName)
		if it.Code != "" {
			ev.SetDescription("Class " + it.Code)
		}
		ev.AddProperty(ical.ComponentPropertyRrule, rule.RRuleString())
	}

	appLog.Debug("ics export completed", "items", len(items), "events", len(seen))
	return cal
}

// occurrence returns the first start and end of a result, on its weekday
// at or after day.
func occurrence(it model.SearchResultItem, day time.Time, weeks int) (time.Time, time.Time, error) {
	wd, ok := byDay[it.DayNum]
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("day %d out of range", it.DayNum)
	}
	startText, endText := sheet.SplitRange(it.Time)
	sm, ok1 := sheet.ParseMinutes(startText)
	em, ok2 := sheet.ParseMinutes(endText)
	if !ok1 || !ok2 {
		return time.Time{}, time.Time{}, errors.New("unparseable time")
	}
	if em <= sm {
		return time.Time{}, time.Time{}, errors.New("end before start")
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   day.Add(time.Duration(sm) * time.Minute),
		Byweekday: []rrule.Weekday{wd},
		Count:     weeks,
	})
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	occ := r.All()
	if len(occ) == 0 {
		return time.Time{}, time.Time{}, errors.New("no occurrence")
	}
	first := occ[0]
	return first, first.Add(time.Duration(em-sm) * time.Minute), nil
}

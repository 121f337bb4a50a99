package schedule

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"classfinder/internal/model"
)

// ErrInvalidDaySelector is returned for a day selector that is not a day
// number, a weekday name, "all" or "today".
var ErrInvalidDaySelector = errors.New("invalid day selector")

// Selector is a resolved day selector: either every teaching day or one.
type Selector struct {
	All bool
	Day model.Weekday
}

// Days lists the weekdays the selector covers.
func (s Selector) Days() []model.Weekday {
	if s.All {
		return model.Weekdays
	}
	return []model.Weekday{s.Day}
}

// String is the canonical form, "all" or the day number.
func (s Selector) String() string {
	if s.All {
		return "all"
	}
	return strconv.Itoa(int(s.Day))
}

// ParseDaySelector resolves raw against now. An empty selector means
// "today"; Saturday and Sunday resolve to Monday.
func ParseDaySelector(raw string, now time.Time) (Selector, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "all":
		return Selector{All: true}, nil
	case "", "today":
		return Selector{Day: Today(now)}, nil
	}
	d, err := model.ParseWeekday(v)
	if err != nil {
		return Selector{}, errors.Join(ErrInvalidDaySelector, err)
	}
	return Selector{Day: d}, nil
}

// Today maps now to a teaching day; the weekend maps to Monday.
func Today(now time.Time) model.Weekday {
	switch wd := now.Weekday(); wd {
	case time.Saturday, time.Sunday:
		return model.Monday
	default:
		return model.Weekday(wd - time.Monday)
	}
}

package sheet

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// The predicates in this file encode conventions of the timetable sheet
// that are not written down anywhere. Keep them here, one function each,
// so a correction does not leak into the parser or the search code.

var (
	labPattern     = regexp.MustCompile(`(?i)\blab\b`)
	dashesPattern  = regexp.MustCompile(`^-+$`)
	minutesPattern = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})`)
	roomIDPattern  = regexp.MustCompile(`^[A-Za-z]{1,3}-?\d{1,4}$`)
)

var artifactNames = map[string]bool{
	"classroom":  true,
	"classrooms": true,
	"room":       true,
	"rooms":      true,
	"lab":        true,
	"labs":       true,
	"venue":      true,
}

// IsLab reports whether cell text describes a lab session, which usually
// spans several periods.
func IsLab(text string) bool {
	return labPattern.MatchString(text)
}

// IsFreeText reports whether cell text means "nothing scheduled": blank or
// a run of dashes.
func IsFreeText(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || dashesPattern.MatchString(t)
}

// ParseMinutes returns minutes since midnight for the HH:MM prefix of a
// time label. Hours 1 through 7 are read as afternoon hours because the
// sheet writes "1:30" for 13:30; "8:00" stays 08:00.
func ParseMinutes(label string) (int, bool) {
	m := minutesPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if h > 23 || min > 59 {
		return 0, false
	}
	if h >= 1 && h < 8 {
		h += 12
	}
	return h*60 + min, true
}

// SplitRange splits a "start-end" label into its halves. A label without
// a hyphen is returned as both start and end.
func SplitRange(label string) (start, end string) {
	parts := strings.Split(label, "-")
	start = strings.TrimSpace(parts[0])
	end = strings.TrimSpace(parts[len(parts)-1])
	return start, end
}

// IsRoomID reports whether q looks like a room identifier such as "C301",
// "C-301" or "LB-2".
func IsRoomID(q string) bool {
	return roomIDPattern.MatchString(strings.TrimSpace(q))
}

// IsArtifactRoom reports whether a first-column value is a header or
// section label that leaked into the room column rather than a room.
func IsArtifactRoom(name string) bool {
	n := strings.TrimSpace(name)
	if artifactNames[strings.ToLower(n)] {
		return true
	}
	if len(n) <= 4 {
		return false
	}
	hasLetter := false
	for _, r := range n {
		if unicode.IsDigit(r) || unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// NormalizeRoom folds a room name for comparison: case, spaces and
// hyphens are ignored.
func NormalizeRoom(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r == ' ' || r == '-' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

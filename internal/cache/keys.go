package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
)

// DayKey is the cache key of a parsed day schedule.
func DayKey(day int) string {
	return makeKey("day", strconv.Itoa(day))
}

// SearchKey is the cache key of a search response. Queries differing only
// by case or surrounding space share a key.
func SearchKey(selector, query string) string {
	return makeKey("search", canonical(selector), canonical(query))
}

func canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func makeKey(kind string, parts ...string) string {
	h := sha1.Sum([]byte(strings.Join(parts, "|")))
	return kind + ":" + hex.EncodeToString(h[:])
}

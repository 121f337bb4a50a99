package gviz

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Grid is the decoded GViz response for one sheet tab:
//
//	{ "status": "ok", "table": { "rows": [ { "c": [ {"v": ..., "p": {...}}, ... ] } ] } }
type Grid struct {
	Status string     `json:"status,omitempty"`
	Errors []APIError `json:"errors,omitempty"`
	Table  Table      `json:"table"`
}

// APIError is an entry of the GViz "errors" array returned with
// status "error".
type APIError struct {
	Reason          string `json:"reason"`
	Message         string `json:"message"`
	DetailedMessage string `json:"detailed_message"`
}

type Table struct {
	Rows []Row `json:"rows"`
}

// Row holds the cells of one sheet row. Missing cells are nil.
type Row struct {
	C []*Cell `json:"c"`
}

// Cell is one sheet cell. Span is the normalized merge width taken from
// the cell's property bag; 0 means no merge metadata was present.
type Cell struct {
	V    any    `json:"v"`
	F    string `json:"f,omitempty"`
	Span int    `json:"-"`
}

// UnmarshalJSON normalizes the span metadata, which upstream spells as
// colSpan, colspan or span, into Cell.Span.
func (c *Cell) UnmarshalJSON(data []byte) error {
	var raw struct {
		V any                        `json:"v"`
		F string                     `json:"f"`
		P map[string]json.RawMessage `json:"p"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.V = raw.V
	c.F = raw.F
	c.Span = 0
	for _, key := range []string{"colSpan", "colspan", "span"} {
		if v, ok := raw.P[key]; ok {
			if n := spanValue(v); n > 0 {
				c.Span = n
				break
			}
		}
	}
	return nil
}

func spanValue(v json.RawMessage) int {
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return int(n)
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i
		}
	}
	return 0
}

// Text returns the cell content as a trimmed string. Numbers are printed
// without a trailing ".0"; a null value falls back to the formatted value.
func (c *Cell) Text() string {
	if c == nil {
		return ""
	}
	switch v := c.V.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return strings.TrimSpace(c.F)
	default:
		return strings.TrimSpace(c.F)
	}
}

// CellAt returns the cell at column i of row r, or nil when absent.
func (r Row) CellAt(i int) *Cell {
	if i < 0 || i >= len(r.C) {
		return nil
	}
	return r.C[i]
}

package rooms

import (
	"regexp"
	"strings"

	"classfinder/internal/model"
	"classfinder/internal/sheet"
)

var roomNumberPattern = regexp.MustCompile(`\d{3,4}`)

// Info is the configured metadata of a room.
type Info struct {
	Capacity int
	Floor    string
}

// Catalog resolves room names from the sheet to capacity and floor. Rooms
// missing from the catalog get capacity 0 and an inferred floor.
type Catalog struct {
	byName map[string]Info
}

// NewCatalog indexes entries by normalized room name.
func NewCatalog(entries map[string]Info) *Catalog {
	c := &Catalog{byName: make(map[string]Info, len(entries))}
	for name, info := range entries {
		c.byName[sheet.NormalizeRoom(name)] = info
	}
	return c
}

// Lookup returns the Room for a sheet room name. A nil Catalog is valid
// and only infers floors.
func (c *Catalog) Lookup(name string) model.Room {
	room := model.Room{Name: name, Floor: InferFloor(name)}
	if c == nil {
		return room
	}
	if info, ok := c.byName[sheet.NormalizeRoom(name)]; ok {
		room.Capacity = info.Capacity
		if info.Floor != "" {
			room.Floor = info.Floor
		}
	}
	return room
}

// InferFloor reads the floor from the first digit of a three or four digit
// room number ("C-301" is on floor 3). Other names yield "".
func InferFloor(name string) string {
	m := roomNumberPattern.FindString(strings.TrimSpace(name))
	if m == "" {
		return ""
	}
	if len(m) == 4 {
		return strings.TrimLeft(m[:2], "0")
	}
	return m[:1]
}

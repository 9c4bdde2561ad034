package checklist

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/vbonduro/roomcheck/internal/domain"
)

// RoomAreas is the default room checklist, in display order.
var RoomAreas = []domain.AreaDef{
	{ID: "DOOR", Label: "Door"},
	{ID: "CURTAIN", Label: "Curtains"},
	{ID: "BED", Label: "Bed and mattress"},
	{ID: "CHAIR_TABLE", Label: "Desk / chair"},
	{ID: "WARDROBE", Label: "Wardrobe"},
	{ID: "AC", Label: "Air conditioner"},
	{ID: "TOILET_SINK", Label: "Toilet and washbasin"},
	{ID: "SHOWER_HEATER", Label: "Shower and water heater"},
	{ID: "WALL_FLOOR_CEILING", Label: "Floor / walls / ceiling"},
}

// Checklist is an ordered, validated set of inspection areas.
type Checklist struct {
	areas []domain.AreaDef
	index map[string]int
}

// New validates defs and builds a Checklist. IDs must be non-empty and unique.
func New(defs []domain.AreaDef) (*Checklist, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("checklist has no areas")
	}
	c := &Checklist{
		areas: make([]domain.AreaDef, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return nil, fmt.Errorf("checklist area with empty id")
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("duplicate checklist area %q", id)
		}
		label := strings.TrimSpace(d.Label)
		if label == "" {
			label = id
		}
		c.index[id] = len(c.areas)
		c.areas = append(c.areas, domain.AreaDef{ID: id, Label: label})
	}
	return c, nil
}

// Default returns the built-in room checklist.
func Default() *Checklist {
	c, err := New(RoomAreas)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a JSON array of {"id","label"} objects from path. An empty path
// yields the default checklist.
func Load(path string) (*Checklist, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checklist: %w", err)
	}
	var defs []domain.AreaDef
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse checklist %s: %w", path, err)
	}
	return New(defs)
}

func (c *Checklist) Areas() []domain.AreaDef {
	out := make([]domain.AreaDef, len(c.areas))
	copy(out, c.areas)
	return out
}

func (c *Checklist) Len() int { return len(c.areas) }

// Label returns the display label for id, or id itself when unknown.
func (c *Checklist) Label(id string) string {
	if i, ok := c.index[id]; ok {
		return c.areas[i].Label
	}
	return id
}

package models

import (
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/nb-picture/backend/internal/geometry"
)

// Map is the image map attached to a picture.
type Map struct {
	Name      string              `json:"name" msgpack:"name"`
	Areas     []Area              `json:"areas" msgpack:"areas"`
	Resize    bool                `json:"resize" msgpack:"resize"`       // recompute areas when the rendered size changes
	RelCoords bool                `json:"relCoords" msgpack:"relCoords"` // coords are fractions of the image size
	Overlays  map[string]*Overlay `json:"overlays" msgpack:"overlays"`
}

// Clone returns a deep copy of the map.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	c := *m
	c.Areas = CloneAreas(m.Areas)
	c.Overlays = make(map[string]*Overlay, len(m.Overlays))
	for id, o := range m.Overlays {
		oc := o.Clone()
		c.Overlays[id] = &oc
	}
	return &c
}

// AreaIndex returns the index of the area with the given id, or -1.
func (m *Map) AreaIndex(id string) int {
	return IndexOfArea(m.Areas, id)
}

// Area is one hotspot of an image map.
type Area struct {
	ID        string         `json:"id" msgpack:"id"`
	Shape     geometry.Shape `json:"shape" msgpack:"shape"`
	Coords    []float64      `json:"coords" msgpack:"coords"`
	AbsCoords []float64      `json:"$coords" msgpack:"$coords"` // always absolute pixels
	Href      string         `json:"href" msgpack:"href"`
	Alt       string         `json:"alt" msgpack:"alt"`
	Title     string         `json:"title" msgpack:"title"`
	Data      any            `json:"data,omitempty" msgpack:"data,omitempty"`
}

// Clone returns a value copy of the area that shares no memory with a,
// including the opaque data payload.
func (a Area) Clone() Area {
	c := a
	c.Coords = cloneFloats(a.Coords)
	c.AbsCoords = cloneFloats(a.AbsCoords)
	c.Data = cloneValue(a.Data)
	return c
}

// Equal reports whether two areas are indistinguishable.
func (a Area) Equal(b Area) bool {
	return a.ID == b.ID &&
		a.Shape == b.Shape &&
		slices.Equal(a.Coords, b.Coords) &&
		slices.Equal(a.AbsCoords, b.AbsCoords) &&
		a.Href == b.Href &&
		a.Alt == b.Alt &&
		a.Title == b.Title &&
		reflect.DeepEqual(a.Data, b.Data)
}

// CoordsString joins the absolute coordinates for the area element's
// coords attribute.
func (a Area) CoordsString() string {
	parts := make([]string, len(a.AbsCoords))
	for i, v := range a.AbsCoords {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// CloneAreas deep-copies a list of areas.
func CloneAreas(areas []Area) []Area {
	if areas == nil {
		return nil
	}
	out := make([]Area, len(areas))
	for i, a := range areas {
		out[i] = a.Clone()
	}
	return out
}

// AreasEqual compares two area lists in order.
func AreasEqual(a, b []Area) bool {
	return slices.EqualFunc(a, b, Area.Equal)
}

// IndexOfArea returns the index of the area with the given id, or -1.
func IndexOfArea(areas []Area, id string) int {
	return slices.IndexFunc(areas, func(a Area) bool { return a.ID == id })
}

// AreaIDs returns the ids of the areas in order.
func AreaIDs(areas []Area) []string {
	ids := make([]string, len(areas))
	for i, a := range areas {
		ids[i] = a.ID
	}
	return ids
}

// Overlay is a highlight layer over a map's areas.
type Overlay struct {
	ID             string         `json:"id" msgpack:"id"`
	Show           bool           `json:"show" msgpack:"show"`
	AlwaysOn       bool           `json:"alwaysOn" msgpack:"alwaysOn"`
	Click          bool           `json:"click" msgpack:"click"`
	Focus          bool           `json:"focus" msgpack:"focus"`
	Hover          bool           `json:"hover" msgpack:"hover"`
	Single         bool           `json:"single" msgpack:"single"`
	DebounceResize int            `json:"debounceResize" msgpack:"debounceResize"` // milliseconds
	Options        map[string]any `json:"options,omitempty" msgpack:"options,omitempty"`
	Areas          []Area         `json:"$areas" msgpack:"$areas"` // highlighted copies
}

// Interactive reports whether the overlay can ever change state.
func (o Overlay) Interactive() bool {
	return o.AlwaysOn || o.Click || o.Focus || o.Hover
}

// Clone returns a deep copy of the overlay.
func (o Overlay) Clone() Overlay {
	c := o
	c.Areas = CloneAreas(o.Areas)
	if o.Options != nil {
		c.Options = cloneValue(o.Options).(map[string]any)
	}
	return c
}

// MapSpec is the declarative map input.
type MapSpec struct {
	Name      string                 `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	Areas     []AreaSpec             `json:"areas" yaml:"areas" mapstructure:"areas"`
	Resize    bool                   `json:"resize" yaml:"resize" mapstructure:"resize"`
	RelCoords bool                   `json:"relCoords" yaml:"relCoords" mapstructure:"relCoords"`
	Overlays  map[string]OverlaySpec `json:"overlays,omitempty" yaml:"overlays,omitempty" mapstructure:"overlays"`
}

// AreaSpec is the declarative input for one area.
type AreaSpec struct {
	Shape     string    `json:"shape" yaml:"shape" mapstructure:"shape"`
	Coords    []float64 `json:"coords" yaml:"coords" mapstructure:"coords"`
	AbsCoords []float64 `json:"$coords,omitempty" yaml:"$coords,omitempty" mapstructure:"$coords"`
	Href      *string   `json:"href,omitempty" yaml:"href,omitempty" mapstructure:"href"`
	Alt       string    `json:"alt,omitempty" yaml:"alt,omitempty" mapstructure:"alt"`
	Title     string    `json:"title,omitempty" yaml:"title,omitempty" mapstructure:"title"`
	Data      any       `json:"data,omitempty" yaml:"data,omitempty" mapstructure:"data"`
}

// OverlaySpec is the declarative input for one overlay. Keys that are not
// highlight switches are kept in Options for the renderer.
type OverlaySpec struct {
	Show           *bool          `json:"show,omitempty" yaml:"show,omitempty" mapstructure:"show"`
	AlwaysOn       bool           `json:"alwaysOn,omitempty" yaml:"alwaysOn,omitempty" mapstructure:"alwaysOn"`
	Click          bool           `json:"click,omitempty" yaml:"click,omitempty" mapstructure:"click"`
	Focus          bool           `json:"focus,omitempty" yaml:"focus,omitempty" mapstructure:"focus"`
	Hover          bool           `json:"hover,omitempty" yaml:"hover,omitempty" mapstructure:"hover"`
	Single         bool           `json:"single,omitempty" yaml:"single,omitempty" mapstructure:"single"`
	DebounceResize int            `json:"debounceResize,omitempty" yaml:"debounceResize,omitempty" mapstructure:"debounceResize"`
	Options        map[string]any `json:"-" yaml:"-" mapstructure:",remain"`
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}

// cloneValue deep-copies the JSON/YAML shaped values found in area data.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case map[any]any:
		m := make(map[any]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	case []float64:
		return cloneFloats(t)
	case []string:
		return append([]string(nil), t...)
	}
	return v
}

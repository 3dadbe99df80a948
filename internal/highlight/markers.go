package highlight

import (
	"github.com/nb-picture/backend/internal/geometry"
	"github.com/nb-picture/backend/internal/models"
)

// Marker is the display position of a highlighted area. It is derived after
// every transition and never stored with the area.
type Marker struct {
	AreaID   string  `json:"areaId" msgpack:"areaId"`
	X        float64 `json:"x" msgpack:"x"`
	Y        float64 `json:"y" msgpack:"y"`
	Position string  `json:"position,omitempty" msgpack:"position,omitempty"`
}

// Markers places a marker at the rounded centre of each highlighted area's
// absolute coordinates. The quadrant label is only set when the rendered
// size is known.
func Markers(highs []models.Area, width, height int) []Marker {
	markers := make([]Marker, 0, len(highs))
	for _, a := range highs {
		c := geometry.Center(a.Shape, a.AbsCoords, true)
		m := Marker{AreaID: a.ID, X: c[0], Y: c[1]}
		if width > 0 && height > 0 {
			m.Position = geometry.Position(c[0]/float64(width), c[1]/float64(height))
		}
		markers = append(markers, m)
	}
	return markers
}

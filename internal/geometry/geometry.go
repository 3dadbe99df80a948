// Package geometry provides shape math for image map areas.
//
// Coordinates follow the HTML area element conventions: a circle is
// [cx, cy, r], a rectangle is [x1, y1, x2, y2] and a polygon is a flat list
// of x,y pairs.
package geometry

import (
	"math"
	"strings"
)

// Shape is the shape of an image map area.
type Shape string

const (
	Circle    Shape = "circle"
	Polygon   Shape = "poly"
	Rectangle Shape = "rect"
)

// Position labels for the quadrant a point falls in.
const (
	LeftTop     = "left top"
	LeftBottom  = "left bottom"
	RightTop    = "right top"
	RightBottom = "right bottom"
)

// ParseShape normalizes the shape names accepted in map definitions.
// Unknown names are returned unchanged so that callers keep the permissive
// zero-value behavior of the functions below.
func ParseShape(s string) Shape {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "circle", "circ":
		return Circle
	case "poly", "polygon":
		return Polygon
	case "rect", "rectangle":
		return Rectangle
	}
	return Shape(s)
}

// Size is the width and height of a shape's bounds.
type Size struct {
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
}

// at returns coords[i], or 0 when the tuple is too short.
func at(coords []float64, i int) float64 {
	if i < len(coords) {
		return coords[i]
	}
	return 0
}

// Round rounds half-up, matching the rounding used for pixel coordinates.
func Round(v float64) float64 {
	return math.Floor(v + 0.5)
}

// Bounds returns [x1, y1, x2, y2] for the shape.
func Bounds(shape Shape, coords []float64) [4]float64 {
	switch shape {
	case Circle:
		cx, cy, r := at(coords, 0), at(coords, 1), at(coords, 2)
		return [4]float64{cx - r, cy - r, cx + r, cy + r}
	case Polygon, Rectangle:
		if len(coords) == 0 {
			return [4]float64{}
		}
		x1, x2 := coords[0], coords[0]
		y1, y2 := at(coords, 1), at(coords, 1)
		for i := 2; i < len(coords); i++ {
			v := coords[i]
			if i%2 == 0 {
				x1 = math.Min(x1, v)
				x2 = math.Max(x2, v)
			} else {
				y1 = math.Min(y1, v)
				y2 = math.Max(y2, v)
			}
		}
		return [4]float64{x1, y1, x2, y2}
	}
	return [4]float64{}
}

// SizeOf returns the width and height of the shape's bounds.
func SizeOf(shape Shape, coords []float64) Size {
	b := Bounds(shape, coords)
	return Size{Width: b[2] - b[0], Height: b[3] - b[1]}
}

// Center returns the centre of a circle, or the midpoint of the bounds for
// polygons and rectangles.
func Center(shape Shape, coords []float64, round bool) [2]float64 {
	var x, y float64
	switch shape {
	case Circle:
		x, y = at(coords, 0), at(coords, 1)
	case Polygon, Rectangle:
		b := Bounds(shape, coords)
		x = (b[0] + b[2]) / 2
		y = (b[1] + b[3]) / 2
	}
	if round {
		x, y = Round(x), Round(y)
	}
	return [2]float64{x, y}
}

// Contains reports whether the point lies in the shape. Polygons are tested
// against their bounding box, not their outline.
func Contains(shape Shape, coords []float64, point [2]float64) bool {
	x, y := point[0], point[1]
	switch shape {
	case Circle:
		cx, cy, r := at(coords, 0), at(coords, 1), at(coords, 2)
		return (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r
	case Polygon, Rectangle:
		b := Bounds(shape, coords)
		return x >= b[0] && x <= b[2] && y >= b[1] && y <= b[3]
	}
	return false
}

// RelToAbs scales relative (0..1) coordinates to pixels. Even indexes are
// scaled by width and odd ones by height, except a circle's radius which is
// scaled by the smaller of the two.
func RelToAbs(shape Shape, coords []float64, width, height float64, round bool) []float64 {
	n := len(coords)
	switch shape {
	case Circle:
		n = min(n, 3)
	case Rectangle:
		n = min(n, 4)
	case Polygon:
		n -= n % 2
	default:
		return []float64{}
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		scale := width
		if i%2 == 1 {
			scale = height
		}
		if shape == Circle && i == 2 {
			scale = math.Min(width, height)
		}
		v := coords[i] * scale
		if round {
			v = Round(v)
		}
		out[i] = v
	}
	return out
}

// Position returns the quadrant label for a relative point.
func Position(x, y float64) string {
	if x < 0.5 {
		if y < 0.5 {
			return LeftTop
		}
		return LeftBottom
	}
	if y < 0.5 {
		return RightTop
	}
	return RightBottom
}

package domain

import "math"

// ShapeType discriminates the geometry carried by a Shape
type ShapeType string

const (
	ShapeRect        ShapeType = "rect"
	ShapeRotatedRect ShapeType = "rotated-rect"
	ShapePolygon     ShapeType = "polygon"
	ShapeCircle      ShapeType = "circle"
	ShapeKeypoint    ShapeType = "keypoint"
)

// Point is a vertex of a polygon or a single keypoint of a keypoint set
type Point struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Label     string  `json:"label,omitempty"`
	IsVisible bool    `json:"isVisible,omitempty"`
}

// Shape is the geometry of an annotation. Only the fields relevant to
// Type are meaningful.
type Shape struct {
	Type   ShapeType `json:"type"`
	X      float64   `json:"x,omitempty"`
	Y      float64   `json:"y,omitempty"`
	Width  float64   `json:"width,omitempty"`
	Height float64   `json:"height,omitempty"`
	Angle  float64   `json:"angle,omitempty"`
	Radius float64   `json:"r,omitempty"`
	Points []Point   `json:"points,omitempty"`
}

// Rect is an axis aligned bounding box
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether other lies entirely inside r
func (r Rect) Contains(other Rect) bool {
	return other.X >= r.X && other.Y >= r.Y &&
		other.X+other.Width <= r.X+r.Width &&
		other.Y+other.Height <= r.Y+r.Height
}

// Bounds returns the axis aligned bounding box of the shape.
// For rectangles X,Y is the top-left corner, for rotated rectangles and
// circles it is the center.
func (s Shape) Bounds() Rect {
	switch s.Type {
	case ShapeRect:
		return Rect{X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}
	case ShapeRotatedRect:
		rad := s.Angle * math.Pi / 180
		cos, sin := math.Abs(math.Cos(rad)), math.Abs(math.Sin(rad))
		w := s.Width*cos + s.Height*sin
		h := s.Width*sin + s.Height*cos
		return Rect{X: s.X - w/2, Y: s.Y - h/2, Width: w, Height: h}
	case ShapeCircle:
		return Rect{X: s.X - s.Radius, Y: s.Y - s.Radius, Width: 2 * s.Radius, Height: 2 * s.Radius}
	default:
		return pointsBounds(s.Points)
	}
}

func pointsBounds(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Clone deep copies the shape
func (s Shape) Clone() Shape {
	if s.Points != nil {
		s.Points = append([]Point(nil), s.Points...)
	}
	return s
}

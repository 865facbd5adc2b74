package model

// ShapeBase holds the fields shared by every shape variant. Optional fields
// are nil when the source did not set them.
type ShapeBase struct {
	ID          LocalID
	Text        string
	TheZ        *int
	TheC        *int
	TheT        *int
	FillColor   *Color
	StrokeColor *Color
	StrokeWidth *float64
	Locked      *bool
}

// Common returns the shared fields.
func (b *ShapeBase) Common() *ShapeBase { return b }

func (b *ShapeBase) shape() {}

// Shape is the closed set of ROI shape variants: Point, Line, Rectangle,
// Ellipse, Polygon, Polyline and Label.
type Shape interface {
	Common() *ShapeBase
	Accept(v ShapeVisitor) error
	shape()
}

// ShapeVisitor must handle every shape variant.
type ShapeVisitor interface {
	VisitPoint(s *Point) error
	VisitLine(s *Line) error
	VisitRectangle(s *Rectangle) error
	VisitEllipse(s *Ellipse) error
	VisitPolygon(s *Polygon) error
	VisitPolyline(s *Polyline) error
	VisitLabel(s *Label) error
}

type Point struct {
	ShapeBase
	X, Y float64
}

type Line struct {
	ShapeBase
	X1, Y1, X2, Y2 float64
	MarkerStart    string
	MarkerEnd      string
}

type Rectangle struct {
	ShapeBase
	X, Y, Width, Height float64
}

type Ellipse struct {
	ShapeBase
	X, Y, RadiusX, RadiusY float64
}

// Polygon points are "x1,y1 x2,y2 ...".
type Polygon struct {
	ShapeBase
	Points string
}

type Polyline struct {
	ShapeBase
	Points      string
	MarkerStart string
	MarkerEnd   string
}

type Label struct {
	ShapeBase
	X, Y     float64
	FontSize *float64
}

func (s *Point) Accept(v ShapeVisitor) error     { return v.VisitPoint(s) }
func (s *Line) Accept(v ShapeVisitor) error      { return v.VisitLine(s) }
func (s *Rectangle) Accept(v ShapeVisitor) error { return v.VisitRectangle(s) }
func (s *Ellipse) Accept(v ShapeVisitor) error   { return v.VisitEllipse(s) }
func (s *Polygon) Accept(v ShapeVisitor) error   { return v.VisitPolygon(s) }
func (s *Polyline) Accept(v ShapeVisitor) error  { return v.VisitPolyline(s) }
func (s *Label) Accept(v ShapeVisitor) error     { return v.VisitLabel(s) }

// Color is an RGBA color packed the OME way: a signed 32-bit integer with
// red in the most significant byte.
type Color int32

// RGBA builds a Color from its components.
func RGBA(r, g, b, a uint8) Color {
	return Color(int32(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a)))
}

// Components returns the red, green, blue and alpha bytes.
func (c Color) Components() (r, g, b, a uint8) {
	u := uint32(c)
	return uint8(u >> 24), uint8(u >> 16), uint8(u >> 8), uint8(u)
}

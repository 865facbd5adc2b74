package populate

import (
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/server"
)

var (
	defaultFill        = model.RGBA(0, 0, 0, 0)
	defaultStroke      = model.RGBA(255, 255, 255, 255)
	defaultStrokeWidth = 1.0
)

// shapeEncoder flattens a document shape into its server form.
type shapeEncoder struct {
	out server.ShapeInfo
}

var _ model.ShapeVisitor = (*shapeEncoder)(nil)

func fromShape(s model.Shape) (server.ShapeInfo, error) {
	b := s.Common()
	fill, stroke, width := defaultFill, defaultStroke, defaultStrokeWidth
	if b.FillColor != nil {
		fill = *b.FillColor
	}
	if b.StrokeColor != nil {
		stroke = *b.StrokeColor
	}
	if b.StrokeWidth != nil {
		width = *b.StrokeWidth
	}
	fillV, strokeV := int32(fill), int32(stroke)
	e := &shapeEncoder{out: server.ShapeInfo{
		Text:        b.Text,
		TheZ:        b.TheZ,
		TheC:        b.TheC,
		TheT:        b.TheT,
		FillColor:   &fillV,
		StrokeColor: &strokeV,
		StrokeWidth: &width,
		Locked:      b.Locked,
	}}
	if err := s.Accept(e); err != nil {
		return server.ShapeInfo{}, err
	}
	return e.out, nil
}

func (e *shapeEncoder) VisitPoint(s *model.Point) error {
	e.out.Kind, e.out.X, e.out.Y = server.PointShape, s.X, s.Y
	return nil
}

func (e *shapeEncoder) VisitLine(s *model.Line) error {
	e.out.Kind = server.LineShape
	e.out.X1, e.out.Y1, e.out.X2, e.out.Y2 = s.X1, s.Y1, s.X2, s.Y2
	e.out.MarkerStart, e.out.MarkerEnd = s.MarkerStart, s.MarkerEnd
	return nil
}

func (e *shapeEncoder) VisitRectangle(s *model.Rectangle) error {
	e.out.Kind = server.RectangleShape
	e.out.X, e.out.Y, e.out.Width, e.out.Height = s.X, s.Y, s.Width, s.Height
	return nil
}

func (e *shapeEncoder) VisitEllipse(s *model.Ellipse) error {
	e.out.Kind = server.EllipseShape
	e.out.X, e.out.Y, e.out.RadiusX, e.out.RadiusY = s.X, s.Y, s.RadiusX, s.RadiusY
	return nil
}

func (e *shapeEncoder) VisitPolygon(s *model.Polygon) error {
	e.out.Kind, e.out.Points = server.PolygonShape, s.Points
	return nil
}

func (e *shapeEncoder) VisitPolyline(s *model.Polyline) error {
	e.out.Kind, e.out.Points = server.PolylineShape, s.Points
	e.out.MarkerStart, e.out.MarkerEnd = s.MarkerStart, s.MarkerEnd
	return nil
}

func (e *shapeEncoder) VisitLabel(s *model.Label) error {
	e.out.Kind, e.out.X, e.out.Y = server.LabelShape, s.X, s.Y
	e.out.FontSize = s.FontSize
	return nil
}

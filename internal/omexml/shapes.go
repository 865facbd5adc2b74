package omexml

import "github.com/ome/omero-cli-transfer/internal/model"

type shapeEncoder struct {
	out any
}

func shapeAttrsOf(b *model.ShapeBase) shapeAttrs {
	a := shapeAttrs{
		ID:          string(b.ID),
		StrokeWidth: b.StrokeWidth,
		Locked:      b.Locked,
		Text:        b.Text,
		TheZ:        b.TheZ,
		TheC:        b.TheC,
		TheT:        b.TheT,
	}
	if b.FillColor != nil {
		v := int32(*b.FillColor)
		a.FillColor = &v
	}
	if b.StrokeColor != nil {
		v := int32(*b.StrokeColor)
		a.StrokeColor = &v
	}
	return a
}

func shapeBaseOf(a shapeAttrs) model.ShapeBase {
	b := model.ShapeBase{
		ID:          model.LocalID(a.ID),
		Text:        a.Text,
		TheZ:        a.TheZ,
		TheC:        a.TheC,
		TheT:        a.TheT,
		StrokeWidth: a.StrokeWidth,
		Locked:      a.Locked,
	}
	if a.FillColor != nil {
		c := model.Color(*a.FillColor)
		b.FillColor = &c
	}
	if a.StrokeColor != nil {
		c := model.Color(*a.StrokeColor)
		b.StrokeColor = &c
	}
	return b
}

func (e *shapeEncoder) VisitPoint(s *model.Point) error {
	e.out = &pointXML{shapeAttrs: shapeAttrsOf(&s.ShapeBase), X: s.X, Y: s.Y}
	return nil
}

func (e *shapeEncoder) VisitLine(s *model.Line) error {
	e.out = &lineXML{
		shapeAttrs:  shapeAttrsOf(&s.ShapeBase),
		X1:          s.X1,
		Y1:          s.Y1,
		X2:          s.X2,
		Y2:          s.Y2,
		MarkerStart: s.MarkerStart,
		MarkerEnd:   s.MarkerEnd,
	}
	return nil
}

func (e *shapeEncoder) VisitRectangle(s *model.Rectangle) error {
	e.out = &rectangleXML{shapeAttrs: shapeAttrsOf(&s.ShapeBase), X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}
	return nil
}

func (e *shapeEncoder) VisitEllipse(s *model.Ellipse) error {
	e.out = &ellipseXML{shapeAttrs: shapeAttrsOf(&s.ShapeBase), X: s.X, Y: s.Y, RadiusX: s.RadiusX, RadiusY: s.RadiusY}
	return nil
}

func (e *shapeEncoder) VisitPolygon(s *model.Polygon) error {
	e.out = &polygonXML{shapeAttrs: shapeAttrsOf(&s.ShapeBase), Points: s.Points}
	return nil
}

func (e *shapeEncoder) VisitPolyline(s *model.Polyline) error {
	e.out = &polylineXML{
		shapeAttrs:  shapeAttrsOf(&s.ShapeBase),
		Points:      s.Points,
		MarkerStart: s.MarkerStart,
		MarkerEnd:   s.MarkerEnd,
	}
	return nil
}

func (e *shapeEncoder) VisitLabel(s *model.Label) error {
	e.out = &labelXML{shapeAttrs: shapeAttrsOf(&s.ShapeBase), X: s.X, Y: s.Y, FontSize: s.FontSize}
	return nil
}

func shapeFromXML(it any) model.Shape {
	switch x := it.(type) {
	case *pointXML:
		return &model.Point{ShapeBase: shapeBaseOf(x.shapeAttrs), X: x.X, Y: x.Y}
	case *lineXML:
		return &model.Line{
			ShapeBase:   shapeBaseOf(x.shapeAttrs),
			X1:          x.X1,
			Y1:          x.Y1,
			X2:          x.X2,
			Y2:          x.Y2,
			MarkerStart: x.MarkerStart,
			MarkerEnd:   x.MarkerEnd,
		}
	case *rectangleXML:
		return &model.Rectangle{ShapeBase: shapeBaseOf(x.shapeAttrs), X: x.X, Y: x.Y, Width: x.Width, Height: x.Height}
	case *ellipseXML:
		return &model.Ellipse{ShapeBase: shapeBaseOf(x.shapeAttrs), X: x.X, Y: x.Y, RadiusX: x.RadiusX, RadiusY: x.RadiusY}
	case *polygonXML:
		return &model.Polygon{ShapeBase: shapeBaseOf(x.shapeAttrs), Points: x.Points}
	case *polylineXML:
		return &model.Polyline{
			ShapeBase:   shapeBaseOf(x.shapeAttrs),
			Points:      x.Points,
			MarkerStart: x.MarkerStart,
			MarkerEnd:   x.MarkerEnd,
		}
	case *labelXML:
		return &model.Label{ShapeBase: shapeBaseOf(x.shapeAttrs), X: x.X, Y: x.Y, FontSize: x.FontSize}
	}
	panic("omexml: unexpected shape element")
}

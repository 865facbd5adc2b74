package builder

import (
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/server"
)

const defaultFontSize = 10.0

// toShape translates a server shape. ok is false for kinds with no
// portable variant.
func toShape(sh server.ShapeInfo) (model.Shape, bool) {
	base := model.ShapeBase{
		ID:          model.NewLocalID(model.KindShape, sh.ID),
		Text:        sh.Text,
		TheZ:        planeIndex(sh.TheZ),
		TheC:        planeIndex(sh.TheC),
		TheT:        planeIndex(sh.TheT),
		FillColor:   color(sh.FillColor),
		StrokeColor: color(sh.StrokeColor),
		StrokeWidth: sh.StrokeWidth,
		Locked:      sh.Locked,
	}
	switch sh.Kind {
	case server.PointShape:
		return &model.Point{ShapeBase: base, X: sh.X, Y: sh.Y}, true
	case server.LineShape:
		return &model.Line{ShapeBase: base, X1: sh.X1, Y1: sh.Y1, X2: sh.X2, Y2: sh.Y2,
			MarkerStart: sh.MarkerStart, MarkerEnd: sh.MarkerEnd}, true
	case server.RectangleShape:
		return &model.Rectangle{ShapeBase: base, X: sh.X, Y: sh.Y, Width: sh.Width, Height: sh.Height}, true
	case server.EllipseShape:
		return &model.Ellipse{ShapeBase: base, X: sh.X, Y: sh.Y, RadiusX: sh.RadiusX, RadiusY: sh.RadiusY}, true
	case server.PolygonShape:
		return &model.Polygon{ShapeBase: base, Points: sh.Points}, true
	case server.PolylineShape:
		return &model.Polyline{ShapeBase: base, Points: sh.Points,
			MarkerStart: sh.MarkerStart, MarkerEnd: sh.MarkerEnd}, true
	case server.LabelShape:
		size := defaultFontSize
		if sh.FontSize != nil {
			size = *sh.FontSize
		}
		return &model.Label{ShapeBase: base, X: sh.X, Y: sh.Y, FontSize: &size}, true
	}
	return nil, false
}

// planeIndex defaults a missing index to 0 and clamps negative ones.
func planeIndex(v *int) *int {
	n := 0
	if v != nil && *v > 0 {
		n = *v
	}
	return &n
}

func color(v *int32) *model.Color {
	if v == nil {
		return nil
	}
	c := model.Color(*v)
	return &c
}

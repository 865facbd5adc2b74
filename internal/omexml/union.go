package omexml

import (
	"encoding/xml"
	"fmt"
)

// structuredAnnotationsXML keeps the mixed annotation elements in document
// order. Elements of unsupported kinds are recorded in Skipped.
type structuredAnnotationsXML struct {
	Items   []any
	Skipped []string
}

func (s *structuredAnnotationsXML) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, it := range s.Items {
		if err := e.Encode(it); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func (s *structuredAnnotationsXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var item any
			switch t.Name.Local {
			case "TagAnnotation":
				item = &tagXML{}
			case "CommentAnnotation":
				item = &commentXML{}
			case "LongAnnotation":
				item = &longXML{}
			case "MapAnnotation":
				item = &mapXML{}
			case "FileAnnotation":
				item = &fileXML{}
			case "XMLAnnotation":
				item = &xmlAnnotationXML{}
			default:
				id := attr(t, "ID")
				if err := d.Skip(); err != nil {
					return err
				}
				s.Skipped = append(s.Skipped, id)
				continue
			}
			if err := d.DecodeElement(item, &t); err != nil {
				return fmt.Errorf("decoding %s: %w", t.Name.Local, err)
			}
			s.Items = append(s.Items, item)
		case xml.EndElement:
			return nil
		}
	}
}

// unionXML keeps the shapes of an ROI in order. Unsupported shape kinds
// (masks, for instance) are dropped while parsing.
type unionXML struct {
	Items   []any
	Dropped int
}

func (u *unionXML) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, it := range u.Items {
		if err := e.Encode(it); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func (u *unionXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var item any
			switch t.Name.Local {
			case "Point":
				item = &pointXML{}
			case "Line":
				item = &lineXML{}
			case "Rectangle":
				item = &rectangleXML{}
			case "Ellipse":
				item = &ellipseXML{}
			case "Polygon":
				item = &polygonXML{}
			case "Polyline":
				item = &polylineXML{}
			case "Label":
				item = &labelXML{}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
				u.Dropped++
				continue
			}
			if err := d.DecodeElement(item, &t); err != nil {
				return fmt.Errorf("decoding %s: %w", t.Name.Local, err)
			}
			u.Items = append(u.Items, item)
		case xml.EndElement:
			return nil
		}
	}
}

func attr(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

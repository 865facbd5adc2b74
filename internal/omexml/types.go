package omexml

import "encoding/xml"

// Namespace is the OME schema namespace written on the root element.
const Namespace = "http://www.openmicroscopy.org/Schemas/OME/2016-06"

type omeXML struct {
	XMLName               xml.Name                  `xml:"OME"`
	Xmlns                 string                    `xml:"xmlns,attr,omitempty"`
	Creator               string                    `xml:"Creator,attr,omitempty"`
	Projects              []projectXML              `xml:"Project"`
	Datasets              []datasetXML              `xml:"Dataset"`
	Plates                []plateXML                `xml:"Plate"`
	Screens               []screenXML               `xml:"Screen"`
	Images                []imageXML                `xml:"Image"`
	StructuredAnnotations *structuredAnnotationsXML `xml:"StructuredAnnotations,omitempty"`
	ROIs                  []roiXML                  `xml:"ROI"`
}

type refXML struct {
	ID string `xml:"ID,attr"`
}

type projectXML struct {
	ID             string   `xml:"ID,attr"`
	Name           string   `xml:"Name,attr,omitempty"`
	Description    string   `xml:"Description,omitempty"`
	DatasetRefs    []refXML `xml:"DatasetRef"`
	AnnotationRefs []refXML `xml:"AnnotationRef"`
}

type datasetXML struct {
	ID             string   `xml:"ID,attr"`
	Name           string   `xml:"Name,attr,omitempty"`
	Description    string   `xml:"Description,omitempty"`
	ImageRefs      []refXML `xml:"ImageRef"`
	AnnotationRefs []refXML `xml:"AnnotationRef"`
}

type screenXML struct {
	ID             string   `xml:"ID,attr"`
	Name           string   `xml:"Name,attr,omitempty"`
	Description    string   `xml:"Description,omitempty"`
	PlateRefs      []refXML `xml:"PlateRef"`
	AnnotationRefs []refXML `xml:"AnnotationRef"`
}

type plateXML struct {
	ID             string    `xml:"ID,attr"`
	Name           string    `xml:"Name,attr,omitempty"`
	Description    string    `xml:"Description,omitempty"`
	Wells          []wellXML `xml:"Well"`
	AnnotationRefs []refXML  `xml:"AnnotationRef"`
}

type wellXML struct {
	ID             string          `xml:"ID,attr"`
	Column         int             `xml:"Column,attr"`
	Row            int             `xml:"Row,attr"`
	Samples        []wellSampleXML `xml:"WellSample"`
	AnnotationRefs []refXML        `xml:"AnnotationRef"`
}

type wellSampleXML struct {
	ID       string  `xml:"ID,attr"`
	Index    int     `xml:"Index,attr"`
	ImageRef *refXML `xml:"ImageRef,omitempty"`
}

type imageXML struct {
	ID             string    `xml:"ID,attr"`
	Name           string    `xml:"Name,attr,omitempty"`
	Description    string    `xml:"Description,omitempty"`
	Pixels         pixelsXML `xml:"Pixels"`
	ROIRefs        []refXML  `xml:"ROIRef"`
	AnnotationRefs []refXML  `xml:"AnnotationRef"`
}

type pixelsXML struct {
	ID             string    `xml:"ID,attr"`
	DimensionOrder string    `xml:"DimensionOrder,attr"`
	Type           string    `xml:"Type,attr"`
	SizeX          int       `xml:"SizeX,attr"`
	SizeY          int       `xml:"SizeY,attr"`
	SizeZ          int       `xml:"SizeZ,attr"`
	SizeC          int       `xml:"SizeC,attr"`
	SizeT          int       `xml:"SizeT,attr"`
	MetadataOnly   *struct{} `xml:"MetadataOnly"`
}

type roiXML struct {
	ID             string    `xml:"ID,attr"`
	Name           string    `xml:"Name,attr,omitempty"`
	Union          *unionXML `xml:"Union"`
	AnnotationRefs []refXML  `xml:"AnnotationRef"`
	Description    string    `xml:"Description,omitempty"`
}

type annotationAttrs struct {
	ID        string `xml:"ID,attr"`
	Namespace string `xml:"Namespace,attr,omitempty"`
}

type tagXML struct {
	XMLName xml.Name `xml:"TagAnnotation"`
	annotationAttrs
	Description    string   `xml:"Description,omitempty"`
	AnnotationRefs []refXML `xml:"AnnotationRef"`
	Value          string   `xml:"Value"`
}

type commentXML struct {
	XMLName xml.Name `xml:"CommentAnnotation"`
	annotationAttrs
	Description    string   `xml:"Description,omitempty"`
	AnnotationRefs []refXML `xml:"AnnotationRef"`
	Value          string   `xml:"Value"`
}

type longXML struct {
	XMLName xml.Name `xml:"LongAnnotation"`
	annotationAttrs
	Description    string   `xml:"Description,omitempty"`
	AnnotationRefs []refXML `xml:"AnnotationRef"`
	Value          int64    `xml:"Value"`
}

type mapEntryXML struct {
	K     string `xml:"K,attr"`
	Value string `xml:",chardata"`
}

type mapXML struct {
	XMLName xml.Name `xml:"MapAnnotation"`
	annotationAttrs
	Description    string   `xml:"Description,omitempty"`
	AnnotationRefs []refXML `xml:"AnnotationRef"`
	Value          struct {
		M []mapEntryXML `xml:"M"`
	} `xml:"Value"`
}

type binDataXML struct {
	BigEndian bool   `xml:"BigEndian,attr"`
	Length    int    `xml:"Length,attr"`
	Value     string `xml:",chardata"`
}

type binaryFileXML struct {
	FileName string      `xml:"FileName,attr"`
	Size     int64       `xml:"Size,attr"`
	BinData  *binDataXML `xml:"BinData,omitempty"`
}

type fileXML struct {
	XMLName xml.Name `xml:"FileAnnotation"`
	annotationAttrs
	Description    string        `xml:"Description,omitempty"`
	AnnotationRefs []refXML      `xml:"AnnotationRef"`
	BinaryFile     binaryFileXML `xml:"BinaryFile"`
}

type xmlAnnotationXML struct {
	XMLName xml.Name `xml:"XMLAnnotation"`
	annotationAttrs
	Description    string   `xml:"Description,omitempty"`
	AnnotationRefs []refXML `xml:"AnnotationRef"`
	Value          struct {
		Inner string `xml:",innerxml"`
	} `xml:"Value"`
}

type shapeAttrs struct {
	ID          string   `xml:"ID,attr"`
	FillColor   *int32   `xml:"FillColor,attr,omitempty"`
	StrokeColor *int32   `xml:"StrokeColor,attr,omitempty"`
	StrokeWidth *float64 `xml:"StrokeWidth,attr,omitempty"`
	Locked      *bool    `xml:"Locked,attr,omitempty"`
	Text        string   `xml:"Text,attr,omitempty"`
	TheZ        *int     `xml:"TheZ,attr,omitempty"`
	TheC        *int     `xml:"TheC,attr,omitempty"`
	TheT        *int     `xml:"TheT,attr,omitempty"`
}

type pointXML struct {
	XMLName xml.Name `xml:"Point"`
	shapeAttrs
	X float64 `xml:"X,attr"`
	Y float64 `xml:"Y,attr"`
}

type lineXML struct {
	XMLName xml.Name `xml:"Line"`
	shapeAttrs
	X1          float64 `xml:"X1,attr"`
	Y1          float64 `xml:"Y1,attr"`
	X2          float64 `xml:"X2,attr"`
	Y2          float64 `xml:"Y2,attr"`
	MarkerStart string  `xml:"MarkerStart,attr,omitempty"`
	MarkerEnd   string  `xml:"MarkerEnd,attr,omitempty"`
}

type rectangleXML struct {
	XMLName xml.Name `xml:"Rectangle"`
	shapeAttrs
	X      float64 `xml:"X,attr"`
	Y      float64 `xml:"Y,attr"`
	Width  float64 `xml:"Width,attr"`
	Height float64 `xml:"Height,attr"`
}

type ellipseXML struct {
	XMLName xml.Name `xml:"Ellipse"`
	shapeAttrs
	X       float64 `xml:"X,attr"`
	Y       float64 `xml:"Y,attr"`
	RadiusX float64 `xml:"RadiusX,attr"`
	RadiusY float64 `xml:"RadiusY,attr"`
}

type polygonXML struct {
	XMLName xml.Name `xml:"Polygon"`
	shapeAttrs
	Points string `xml:"Points,attr"`
}

type polylineXML struct {
	XMLName xml.Name `xml:"Polyline"`
	shapeAttrs
	Points      string `xml:"Points,attr"`
	MarkerStart string `xml:"MarkerStart,attr,omitempty"`
	MarkerEnd   string `xml:"MarkerEnd,attr,omitempty"`
}

type labelXML struct {
	XMLName xml.Name `xml:"Label"`
	shapeAttrs
	X        float64  `xml:"X,attr"`
	Y        float64  `xml:"Y,attr"`
	FontSize *float64 `xml:"FontSize,attr,omitempty"`
}

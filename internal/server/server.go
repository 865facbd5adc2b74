// Package server defines the contract between the transfer engines and an
// image-management server. Implementations live in subpackages.
package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
)

// Kind names a server object type.
type Kind string

const (
	Project    Kind = "Project"
	Dataset    Kind = "Dataset"
	Screen     Kind = "Screen"
	Plate      Kind = "Plate"
	Well       Kind = "Well"
	Image      Kind = "Image"
	Annotation Kind = "Annotation"
	ROI        Kind = "ROI"
)

// ObjectRef names one server object, e.g. Image:42.
type ObjectRef struct {
	Kind Kind
	ID   int64
}

func (r ObjectRef) String() string {
	return string(r.Kind) + ":" + strconv.FormatInt(r.ID, 10)
}

var packableKinds = map[string]Kind{
	"project": Project,
	"dataset": Dataset,
	"image":   Image,
	"screen":  Screen,
	"plate":   Plate,
}

// ParseObjectRef parses "<Kind>:<id>". A bare id means a Project.
func ParseObjectRef(s string) (ObjectRef, error) {
	kindStr, idStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		kindStr, idStr = "Project", kindStr
	}
	kind, known := packableKinds[strings.ToLower(kindStr)]
	if !known {
		return ObjectRef{}, fmt.Errorf("%w: unsupported object type %q", apperrors.ErrInvalidInput, kindStr)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return ObjectRef{}, fmt.Errorf("%w: invalid object id %q", apperrors.ErrInvalidInput, idStr)
	}
	return ObjectRef{Kind: kind, ID: id}, nil
}

// Object is a named container or image as seen by the caller.
type Object struct {
	Kind        Kind
	ID          int64
	Name        string
	Description string
	Owner       string
}

// PixelsInfo describes image dimensions.
type PixelsInfo struct {
	DimensionOrder string
	Type           string
	SizeX          int
	SizeY          int
	SizeZ          int
	SizeC          int
	SizeT          int
}

// ImageInfo is an image with its fileset membership. FilesetID is 0 for
// images that have no backing files.
type ImageInfo struct {
	Object
	FilesetID int64
	Pixels    PixelsInfo
}

// WellSampleInfo places one image in a well.
type WellSampleInfo struct {
	ID      int64
	Index   int
	ImageID int64
}

// WellInfo is a plate well.
type WellInfo struct {
	ID      int64
	PlateID int64
	Row     int
	Column  int
	Samples []WellSampleInfo
}

// AnnotationKind is a server annotation type. Kinds other than the
// constants below exist on servers and are ignored by the transfer.
type AnnotationKind string

const (
	TagAnnotation     AnnotationKind = "tag"
	CommentAnnotation AnnotationKind = "comment"
	LongAnnotation    AnnotationKind = "long"
	MapAnnotation     AnnotationKind = "map"
	FileAnnotation    AnnotationKind = "file"
	XMLAnnotation     AnnotationKind = "xml"
)

// KeyValue is one entry of a map annotation.
type KeyValue struct {
	Key   string
	Value string
}

// FileInfo is an original file stored on the server.
type FileInfo struct {
	ID   int64
	Path string
	Name string
	Size int64
}

// AnnotationInfo is an annotation as read from, or written to, a server.
// Only the value field matching Kind is meaningful.
type AnnotationInfo struct {
	ID          int64
	Kind        AnnotationKind
	Namespace   string
	Description string
	TextValue   string
	LongValue   int64
	MapValue    []KeyValue
	File        *FileInfo
}

// ShapeKind is a server ROI shape type.
type ShapeKind string

const (
	PointShape     ShapeKind = "point"
	LineShape      ShapeKind = "line"
	RectangleShape ShapeKind = "rectangle"
	EllipseShape   ShapeKind = "ellipse"
	PolygonShape   ShapeKind = "polygon"
	PolylineShape  ShapeKind = "polyline"
	LabelShape     ShapeKind = "label"
	MaskShape      ShapeKind = "mask"
)

// ShapeInfo is a flattened server shape. Geometry fields not used by Kind
// are zero; optional styling fields are nil when unset.
type ShapeInfo struct {
	ID          int64     `json:"id" yaml:"id"`
	Kind        ShapeKind `json:"kind" yaml:"kind"`
	X           float64   `json:"x,omitempty" yaml:"x,omitempty"`
	Y           float64   `json:"y,omitempty" yaml:"y,omitempty"`
	X1          float64   `json:"x1,omitempty" yaml:"x1,omitempty"`
	Y1          float64   `json:"y1,omitempty" yaml:"y1,omitempty"`
	X2          float64   `json:"x2,omitempty" yaml:"x2,omitempty"`
	Y2          float64   `json:"y2,omitempty" yaml:"y2,omitempty"`
	Width       float64   `json:"width,omitempty" yaml:"width,omitempty"`
	Height      float64   `json:"height,omitempty" yaml:"height,omitempty"`
	RadiusX     float64   `json:"radius_x,omitempty" yaml:"radius_x,omitempty"`
	RadiusY     float64   `json:"radius_y,omitempty" yaml:"radius_y,omitempty"`
	Points      string    `json:"points,omitempty" yaml:"points,omitempty"`
	Text        string    `json:"text,omitempty" yaml:"text,omitempty"`
	TheZ        *int      `json:"the_z,omitempty" yaml:"the_z,omitempty"`
	TheC        *int      `json:"the_c,omitempty" yaml:"the_c,omitempty"`
	TheT        *int      `json:"the_t,omitempty" yaml:"the_t,omitempty"`
	FillColor   *int32    `json:"fill_color,omitempty" yaml:"fill_color,omitempty"`
	StrokeColor *int32    `json:"stroke_color,omitempty" yaml:"stroke_color,omitempty"`
	StrokeWidth *float64  `json:"stroke_width,omitempty" yaml:"stroke_width,omitempty"`
	Locked      *bool     `json:"locked,omitempty" yaml:"locked,omitempty"`
	FontSize    *float64  `json:"font_size,omitempty" yaml:"font_size,omitempty"`
	MarkerStart string    `json:"marker_start,omitempty" yaml:"marker_start,omitempty"`
	MarkerEnd   string    `json:"marker_end,omitempty" yaml:"marker_end,omitempty"`
}

// ROIInfo is a region of interest on one image.
type ROIInfo struct {
	ID          int64
	ImageID     int64
	Name        string
	Description string
	Shapes      []ShapeInfo
}

// SessionInfo identifies the connected user and server.
type SessionInfo struct {
	User       string
	Group      string
	DatabaseID string
	Hostname   string
}

// ListOptions narrows OwnedObjects.
type ListOptions struct {
	// Orphaned restricts datasets to those without a parent project and
	// plates to those without a parent screen.
	Orphaned bool
}

// Reader is the read side used when packing.
type Reader interface {
	Session(ctx context.Context) (SessionInfo, error)
	// Object returns apperrors.ErrNotFound when the object does not exist
	// or is not visible to the session.
	Object(ctx context.Context, ref ObjectRef) (Object, error)
	Image(ctx context.Context, id int64) (ImageInfo, error)
	// Children lists Project->Dataset, Dataset->Image and Screen->Plate
	// children ordered by id.
	Children(ctx context.Context, ref ObjectRef) ([]Object, error)
	Wells(ctx context.Context, plateID int64) ([]WellInfo, error)
	FilesetImages(ctx context.Context, filesetID int64) ([]int64, error)
	// BackingFilePaths returns repository-relative paths of the files an
	// image was imported from.
	BackingFilePaths(ctx context.Context, imageID int64) ([]string, error)
	Annotations(ctx context.Context, owner ObjectRef) ([]AnnotationInfo, error)
	ROIs(ctx context.Context, imageID int64) ([]ROIInfo, error)
	// AnnotationsByNamespace lists file annotations in a namespace
	// regardless of owner.
	AnnotationsByNamespace(ctx context.Context, namespace string) ([]AnnotationInfo, error)
	FileContent(ctx context.Context, fileID int64) ([]byte, error)
}

// Writer is the write side used when populating a destination.
type Writer interface {
	CreateContainer(ctx context.Context, kind Kind, name, description string) (int64, error)
	Rename(ctx context.Context, ref ObjectRef, name string) error
	OwnedObjects(ctx context.Context, kind Kind, opts ListOptions) ([]Object, error)
	// Link adds a parent/child link. Linking an already linked pair is a
	// no-op.
	Link(ctx context.Context, parent ObjectRef, child ObjectRef) error
	UploadFile(ctx context.Context, localPath string) (FileInfo, error)
	CreateAnnotation(ctx context.Context, a AnnotationInfo) (int64, error)
	LinkAnnotation(ctx context.Context, owner ObjectRef, annotationID int64) error
	CreateROI(ctx context.Context, imageID int64, roi ROIInfo) (int64, error)
	// CreateWell fails with apperrors.ErrWellOccupied when the position
	// already holds a well.
	CreateWell(ctx context.Context, plateID int64, row, column int, imageIDs []int64) (int64, error)
	WellID(ctx context.Context, plateID int64, row, column int) (int64, error)
	Delete(ctx context.Context, ref ObjectRef, cascade bool) error
}

// Finder resolves destination objects from the client-side paths they
// were imported from.
type Finder interface {
	// ImageIDsByClientPath returns ids of images whose fileset has a file
	// with a client path starting with prefix, ascending.
	ImageIDsByClientPath(ctx context.Context, prefix string) ([]int64, error)
	// PlateIDsByClientPath returns ids of plates holding images whose
	// fileset has a file with a client path containing fragment, ascending.
	PlateIDsByClientPath(ctx context.Context, fragment string) ([]int64, error)
}

// Gateway is a full server connection.
type Gateway interface {
	Reader
	Writer
	Finder
}

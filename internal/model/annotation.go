package model

// AnnotationBase holds the fields shared by every annotation variant.
type AnnotationBase struct {
	ID             LocalID
	Namespace      string
	Description    string
	AnnotationRefs []LocalID
}

// Common returns the shared fields.
func (b *AnnotationBase) Common() *AnnotationBase { return b }

func (b *AnnotationBase) annotation() {}

// Annotation is the closed set of structured annotation variants:
// TagAnnotation, CommentAnnotation, LongAnnotation, MapAnnotation,
// FileAnnotation and XMLAnnotation.
type Annotation interface {
	Common() *AnnotationBase
	Accept(v AnnotationVisitor) error
	annotation()
}

// AnnotationVisitor must handle every annotation variant.
type AnnotationVisitor interface {
	VisitTag(a *TagAnnotation) error
	VisitComment(a *CommentAnnotation) error
	VisitLong(a *LongAnnotation) error
	VisitMap(a *MapAnnotation) error
	VisitFile(a *FileAnnotation) error
	VisitXML(a *XMLAnnotation) error
}

type TagAnnotation struct {
	AnnotationBase
	Value string
}

type CommentAnnotation struct {
	AnnotationBase
	Value string
}

type LongAnnotation struct {
	AnnotationBase
	Value int64
}

// MapPair is one key/value entry of a MapAnnotation. Keys may repeat.
type MapPair struct {
	Key   string
	Value string
}

type MapAnnotation struct {
	AnnotationBase
	Values []MapPair
}

// BinaryFile describes the payload of a FileAnnotation.
type BinaryFile struct {
	FileName string
	Size     int64
	// BinData is the base64 text carried inline in the document.
	BinData string
}

type FileAnnotation struct {
	AnnotationBase
	File BinaryFile
}

// XMLAnnotation carries an arbitrary XML fragment. Value is the raw inner
// XML of the annotation's Value element.
type XMLAnnotation struct {
	AnnotationBase
	Value string
}

func (a *TagAnnotation) Accept(v AnnotationVisitor) error     { return v.VisitTag(a) }
func (a *CommentAnnotation) Accept(v AnnotationVisitor) error { return v.VisitComment(a) }
func (a *LongAnnotation) Accept(v AnnotationVisitor) error    { return v.VisitLong(a) }
func (a *MapAnnotation) Accept(v AnnotationVisitor) error     { return v.VisitMap(a) }
func (a *FileAnnotation) Accept(v AnnotationVisitor) error    { return v.VisitFile(a) }
func (a *XMLAnnotation) Accept(v AnnotationVisitor) error     { return v.VisitXML(a) }

package model

import (
	"bytes"
	"encoding/xml"
	"path"
	"strings"
)

const (
	// TransferNamespace marks origin-path and provenance annotations.
	TransferNamespace = "openmicroscopy.org/cli/transfer"
	// PrepareNamespace marks provenance written by prepare.
	PrepareNamespace = "openmicroscopy.org/cli/transfer/prepare"
	// FigureNamespace marks OMERO.figure JSON file annotations.
	FigureNamespace = "omero.web.figure.json"
	// MockFolder suffixes an origin path that stands for a directory
	// holding a whole multi-file fileset.
	MockFolder = "mock_folder"
	// PixelImagesDir holds images exported because no source file exists.
	PixelImagesDir = "pixel_images"
)

const (
	serverPathElement = "CLITransferServerPath"
	metadataElement   = "CLITransferMetadata"
)

type serverPathValue struct {
	XMLName xml.Name `xml:"CLITransferServerPath"`
	Path    string   `xml:"Path"`
}

type metadataValue struct {
	XMLName xml.Name
	Items   []metadataItem `xml:",any"`
}

type metadataItem struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// NewServerPathAnnotation builds an origin-path annotation.
func NewServerPathAnnotation(id LocalID, path string) *XMLAnnotation {
	var buf bytes.Buffer
	buf.WriteString("<" + serverPathElement + "><Path>")
	_ = xml.EscapeText(&buf, []byte(path))
	buf.WriteString("</Path></" + serverPathElement + ">")
	return &XMLAnnotation{
		AnnotationBase: AnnotationBase{ID: id, Namespace: TransferNamespace},
		Value:          buf.String(),
	}
}

// ServerPath returns the path carried by an origin-path annotation.
func ServerPath(a Annotation) (string, bool) {
	x, ok := a.(*XMLAnnotation)
	if !ok || rootElement(x.Value) != serverPathElement {
		return "", false
	}
	var v serverPathValue
	if err := xml.Unmarshal([]byte(x.Value), &v); err != nil {
		return "", false
	}
	return v.Path, true
}

// IsServerPath reports whether a is an origin-path annotation.
func IsServerPath(a Annotation) bool {
	_, ok := ServerPath(a)
	return ok
}

// ServerPathOf returns the first origin path among refs.
func (d *Document) ServerPathOf(refs []LocalID) (string, LocalID, bool) {
	for _, ref := range refs {
		a := d.Annotation(ref)
		if a == nil {
			continue
		}
		if p, ok := ServerPath(a); ok {
			return p, ref, true
		}
	}
	return "", "", false
}

// ServerPathAnnotations returns the ids of every origin-path annotation
// among refs.
func (d *Document) ServerPathAnnotations(refs []LocalID) []LocalID {
	var out []LocalID
	for _, ref := range refs {
		if a := d.Annotation(ref); a != nil && IsServerPath(a) {
			out = append(out, ref)
		}
	}
	return out
}

// NewMetadataAnnotation builds a provenance annotation holding pairs in
// order. An empty pairs slice yields an empty provenance element.
func NewMetadataAnnotation(id LocalID, namespace string, pairs []MapPair) *XMLAnnotation {
	var buf bytes.Buffer
	buf.WriteString("<" + metadataElement + ">")
	for _, p := range pairs {
		buf.WriteString("<" + p.Key + ">")
		_ = xml.EscapeText(&buf, []byte(p.Value))
		buf.WriteString("</" + p.Key + ">")
	}
	buf.WriteString("</" + metadataElement + ">")
	return &XMLAnnotation{
		AnnotationBase: AnnotationBase{ID: id, Namespace: namespace},
		Value:          buf.String(),
	}
}

// Metadata returns the pairs of a provenance annotation.
func Metadata(a Annotation) ([]MapPair, bool) {
	x, ok := a.(*XMLAnnotation)
	if !ok || rootElement(x.Value) != metadataElement {
		return nil, false
	}
	var v metadataValue
	if err := xml.Unmarshal([]byte(x.Value), &v); err != nil {
		return nil, false
	}
	pairs := make([]MapPair, 0, len(v.Items))
	for _, it := range v.Items {
		pairs = append(pairs, MapPair{Key: it.XMLName.Local, Value: strings.TrimSpace(it.Value)})
	}
	return pairs, true
}

// IsMetadata reports whether a is a provenance annotation.
func IsMetadata(a Annotation) bool {
	_, ok := Metadata(a)
	return ok
}

// rootElement returns the local name of the first element in s.
func rootElement(s string) string {
	dec := xml.NewDecoder(strings.NewReader(s))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local
		}
	}
}

// CommonDir returns the deepest directory shared by every slash-separated
// path, compared component by component, or "" when they share none.
func CommonDir(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	common := strings.Split(path.Dir(paths[0]), "/")
	for _, p := range paths[1:] {
		parts := strings.Split(p, "/")
		n := 0
		for n < len(common) && n < len(parts)-1 && common[n] == parts[n] {
			n++
		}
		common = common[:n]
	}
	if len(common) == 1 && common[0] == "." {
		return ""
	}
	return strings.Join(common, "/")
}

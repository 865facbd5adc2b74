// Package omexml reads and writes the portable transfer document as
// OME-XML.
package omexml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/atomicfile"
	"github.com/ome/omero-cli-transfer/internal/model"
)

// DocumentFile is the name of the document inside a package.
const DocumentFile = "transfer.xml"

// Marshal serializes doc. The output is stable: marshalling the result of
// Unmarshal yields the same bytes.
func Marshal(doc *model.Document) ([]byte, error) {
	root := toXML(doc)
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Unmarshal parses and validates a document. Annotations of kinds the
// transfer does not carry are dropped along with references to them.
func Unmarshal(data []byte) (*model.Document, error) {
	var root omeXML
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptDocument, err)
	}
	doc, skipped, err := fromXML(&root)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		doc.RemoveAnnotations(skipped)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReadFile parses the document stored at path.
func ReadFile(path string) (*model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return Unmarshal(data)
}

// WriteFile serializes doc to path atomically.
func WriteFile(path string, doc *model.Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data, 0o644)
}

func refs(ids []model.LocalID) []refXML {
	if len(ids) == 0 {
		return nil
	}
	out := make([]refXML, len(ids))
	for i, id := range ids {
		out[i] = refXML{ID: string(id)}
	}
	return out
}

func ids(rs []refXML) []model.LocalID {
	if len(rs) == 0 {
		return nil
	}
	out := make([]model.LocalID, len(rs))
	for i, r := range rs {
		out[i] = model.LocalID(r.ID)
	}
	return out
}

func toXML(doc *model.Document) *omeXML {
	root := &omeXML{Xmlns: Namespace, Creator: doc.Creator}
	for _, p := range doc.Projects {
		root.Projects = append(root.Projects, projectXML{
			ID:             string(p.ID),
			Name:           p.Name,
			Description:    p.Description,
			DatasetRefs:    refs(p.DatasetRefs),
			AnnotationRefs: refs(p.AnnotationRefs),
		})
	}
	for _, ds := range doc.Datasets {
		root.Datasets = append(root.Datasets, datasetXML{
			ID:             string(ds.ID),
			Name:           ds.Name,
			Description:    ds.Description,
			ImageRefs:      refs(ds.ImageRefs),
			AnnotationRefs: refs(ds.AnnotationRefs),
		})
	}
	for _, p := range doc.Plates {
		px := plateXML{
			ID:             string(p.ID),
			Name:           p.Name,
			Description:    p.Description,
			AnnotationRefs: refs(p.AnnotationRefs),
		}
		for _, w := range p.Wells {
			wx := wellXML{ID: string(w.ID), Column: w.Column, Row: w.Row, AnnotationRefs: refs(w.AnnotationRefs)}
			for _, ws := range w.Samples {
				sx := wellSampleXML{ID: string(ws.ID), Index: ws.Index}
				if ws.ImageRef != "" {
					sx.ImageRef = &refXML{ID: string(ws.ImageRef)}
				}
				wx.Samples = append(wx.Samples, sx)
			}
			px.Wells = append(px.Wells, wx)
		}
		root.Plates = append(root.Plates, px)
	}
	for _, s := range doc.Screens {
		root.Screens = append(root.Screens, screenXML{
			ID:             string(s.ID),
			Name:           s.Name,
			Description:    s.Description,
			PlateRefs:      refs(s.PlateRefs),
			AnnotationRefs: refs(s.AnnotationRefs),
		})
	}
	for _, img := range doc.Images {
		pix := img.Pixels
		root.Images = append(root.Images, imageXML{
			ID:          string(img.ID),
			Name:        img.Name,
			Description: img.Description,
			Pixels: pixelsXML{
				ID:             string(pix.ID),
				DimensionOrder: pix.DimensionOrder,
				Type:           pix.Type,
				SizeX:          pix.SizeX,
				SizeY:          pix.SizeY,
				SizeZ:          pix.SizeZ,
				SizeC:          pix.SizeC,
				SizeT:          pix.SizeT,
				MetadataOnly:   &struct{}{},
			},
			ROIRefs:        refs(img.ROIRefs),
			AnnotationRefs: refs(img.AnnotationRefs),
		})
	}
	if len(doc.Annotations) > 0 {
		sa := &structuredAnnotationsXML{}
		enc := annotationEncoder{}
		for _, a := range doc.Annotations {
			// The encoder never fails.
			_ = a.Accept(&enc)
			sa.Items = append(sa.Items, enc.out)
		}
		root.StructuredAnnotations = sa
	}
	for _, r := range doc.ROIs {
		rx := roiXML{
			ID:             string(r.ID),
			Name:           r.Name,
			Description:    r.Description,
			AnnotationRefs: refs(r.AnnotationRefs),
			Union:          &unionXML{},
		}
		enc := shapeEncoder{}
		for _, s := range r.Shapes {
			_ = s.Accept(&enc)
			rx.Union.Items = append(rx.Union.Items, enc.out)
		}
		root.ROIs = append(root.ROIs, rx)
	}
	return root
}

func fromXML(root *omeXML) (*model.Document, map[model.LocalID]bool, error) {
	doc := &model.Document{Creator: root.Creator}
	for _, p := range root.Projects {
		doc.Projects = append(doc.Projects, &model.Project{
			ID:             model.LocalID(p.ID),
			Name:           p.Name,
			Description:    p.Description,
			DatasetRefs:    ids(p.DatasetRefs),
			AnnotationRefs: ids(p.AnnotationRefs),
		})
	}
	for _, ds := range root.Datasets {
		doc.Datasets = append(doc.Datasets, &model.Dataset{
			ID:             model.LocalID(ds.ID),
			Name:           ds.Name,
			Description:    ds.Description,
			ImageRefs:      ids(ds.ImageRefs),
			AnnotationRefs: ids(ds.AnnotationRefs),
		})
	}
	for _, p := range root.Plates {
		plate := &model.Plate{
			ID:             model.LocalID(p.ID),
			Name:           p.Name,
			Description:    p.Description,
			AnnotationRefs: ids(p.AnnotationRefs),
		}
		for _, w := range p.Wells {
			well := &model.Well{ID: model.LocalID(w.ID), Row: w.Row, Column: w.Column, AnnotationRefs: ids(w.AnnotationRefs)}
			for _, ws := range w.Samples {
				sample := &model.WellSample{ID: model.LocalID(ws.ID), Index: ws.Index}
				if ws.ImageRef != nil {
					sample.ImageRef = model.LocalID(ws.ImageRef.ID)
				}
				well.Samples = append(well.Samples, sample)
			}
			plate.Wells = append(plate.Wells, well)
		}
		doc.Plates = append(doc.Plates, plate)
	}
	for _, s := range root.Screens {
		doc.Screens = append(doc.Screens, &model.Screen{
			ID:             model.LocalID(s.ID),
			Name:           s.Name,
			Description:    s.Description,
			PlateRefs:      ids(s.PlateRefs),
			AnnotationRefs: ids(s.AnnotationRefs),
		})
	}
	for _, img := range root.Images {
		pix := img.Pixels
		doc.Images = append(doc.Images, &model.Image{
			ID:          model.LocalID(img.ID),
			Name:        img.Name,
			Description: img.Description,
			Pixels: model.Pixels{
				ID:             model.LocalID(pix.ID),
				DimensionOrder: pix.DimensionOrder,
				Type:           pix.Type,
				SizeX:          pix.SizeX,
				SizeY:          pix.SizeY,
				SizeZ:          pix.SizeZ,
				SizeC:          pix.SizeC,
				SizeT:          pix.SizeT,
			},
			ROIRefs:        ids(img.ROIRefs),
			AnnotationRefs: ids(img.AnnotationRefs),
		})
	}
	skipped := map[model.LocalID]bool{}
	if sa := root.StructuredAnnotations; sa != nil {
		for _, id := range sa.Skipped {
			skipped[model.LocalID(id)] = true
		}
		for _, it := range sa.Items {
			a, err := annotationFromXML(it)
			if err != nil {
				return nil, nil, err
			}
			doc.Annotations = append(doc.Annotations, a)
		}
	}
	for _, r := range root.ROIs {
		roi := &model.ROI{
			ID:             model.LocalID(r.ID),
			Name:           r.Name,
			Description:    r.Description,
			AnnotationRefs: ids(r.AnnotationRefs),
		}
		if r.Union != nil {
			for _, it := range r.Union.Items {
				roi.Shapes = append(roi.Shapes, shapeFromXML(it))
			}
		}
		doc.ROIs = append(doc.ROIs, roi)
	}
	return doc, skipped, nil
}

package model

import (
	"fmt"
	"slices"

	"github.com/mohae/deepcopy"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
)

// Document is the portable snapshot of an exported hierarchy. Collections
// are flat and keep insertion order; entities point at each other only
// through LocalIDs.
type Document struct {
	// Creator names the tool that wrote the document.
	Creator string

	Projects    []*Project
	Datasets    []*Dataset
	Screens     []*Screen
	Plates      []*Plate
	Images      []*Image
	ROIs        []*ROI
	Annotations []Annotation

	// idx speeds up the id lookups below. Lookups build it lazily, so a
	// Document is not safe for concurrent use; Clone gives each user its
	// own copy.
	idx *index
}

type Project struct {
	ID             LocalID
	Name           string
	Description    string
	DatasetRefs    []LocalID
	AnnotationRefs []LocalID
}

type Dataset struct {
	ID             LocalID
	Name           string
	Description    string
	ImageRefs      []LocalID
	AnnotationRefs []LocalID
}

type Screen struct {
	ID             LocalID
	Name           string
	Description    string
	PlateRefs      []LocalID
	AnnotationRefs []LocalID
}

type Plate struct {
	ID             LocalID
	Name           string
	Description    string
	Wells          []*Well
	AnnotationRefs []LocalID
}

type Well struct {
	ID             LocalID
	Row            int
	Column         int
	Samples        []*WellSample
	AnnotationRefs []LocalID
}

type WellSample struct {
	ID       LocalID
	Index    int
	ImageRef LocalID
}

// Pixels carries the dimensions of an image. It is metadata only; no pixel
// data ever travels in a document.
type Pixels struct {
	ID             LocalID
	DimensionOrder string
	Type           string
	SizeX          int
	SizeY          int
	SizeZ          int
	SizeC          int
	SizeT          int
}

type Image struct {
	ID             LocalID
	Name           string
	Description    string
	Pixels         Pixels
	AnnotationRefs []LocalID
	ROIRefs        []LocalID
}

type ROI struct {
	ID             LocalID
	Name           string
	Description    string
	Shapes         []Shape
	AnnotationRefs []LocalID
}

// Clone returns a deep copy sharing no mutable state with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := deepcopy.Copy(d).(*Document)
	cp.idx = nil
	return cp
}

func (d *Document) Project(id LocalID) *Project {
	p, _ := lookup(&d.lookups().projects, d.Projects, func(p *Project) LocalID { return p.ID }, id)
	return p
}

func (d *Document) Dataset(id LocalID) *Dataset {
	ds, _ := lookup(&d.lookups().datasets, d.Datasets, func(ds *Dataset) LocalID { return ds.ID }, id)
	return ds
}

func (d *Document) Screen(id LocalID) *Screen {
	s, _ := lookup(&d.lookups().screens, d.Screens, func(s *Screen) LocalID { return s.ID }, id)
	return s
}

func (d *Document) Plate(id LocalID) *Plate {
	p, _ := lookup(&d.lookups().plates, d.Plates, func(p *Plate) LocalID { return p.ID }, id)
	return p
}

func (d *Document) Image(id LocalID) *Image {
	img, _ := lookup(&d.lookups().images, d.Images, func(img *Image) LocalID { return img.ID }, id)
	return img
}

func (d *Document) ROI(id LocalID) *ROI {
	r, _ := lookup(&d.lookups().rois, d.ROIs, func(r *ROI) LocalID { return r.ID }, id)
	return r
}

func (d *Document) Annotation(id LocalID) Annotation {
	a, _ := lookup(&d.lookups().annotations, d.Annotations, func(a Annotation) LocalID { return a.Common().ID }, id)
	return a
}

// AddAnnotation appends a unless an annotation with the same id exists.
// It reports whether a was added.
func (d *Document) AddAnnotation(a Annotation) bool {
	if d.Annotation(a.Common().ID) != nil {
		return false
	}
	d.Annotations = append(d.Annotations, a)
	return true
}

// ProjectsContaining returns the projects that reference a dataset.
func (d *Document) ProjectsContaining(dataset LocalID) []*Project {
	var out []*Project
	for _, p := range d.Projects {
		if slices.Contains(p.DatasetRefs, dataset) {
			out = append(out, p)
		}
	}
	return out
}

// RemoveAnnotations deletes the given annotations and every reference to
// them, in place. Callers that must keep the original work on a Clone.
func (d *Document) RemoveAnnotations(ids map[LocalID]bool) {
	if len(ids) == 0 {
		return
	}
	d.idx = nil
	drop := func(refs []LocalID) []LocalID {
		return slices.DeleteFunc(refs, func(id LocalID) bool { return ids[id] })
	}
	for _, p := range d.Projects {
		p.AnnotationRefs = drop(p.AnnotationRefs)
	}
	for _, ds := range d.Datasets {
		ds.AnnotationRefs = drop(ds.AnnotationRefs)
	}
	for _, s := range d.Screens {
		s.AnnotationRefs = drop(s.AnnotationRefs)
	}
	for _, p := range d.Plates {
		p.AnnotationRefs = drop(p.AnnotationRefs)
		for _, w := range p.Wells {
			w.AnnotationRefs = drop(w.AnnotationRefs)
		}
	}
	for _, img := range d.Images {
		img.AnnotationRefs = drop(img.AnnotationRefs)
	}
	for _, r := range d.ROIs {
		r.AnnotationRefs = drop(r.AnnotationRefs)
	}
	d.Annotations = slices.DeleteFunc(d.Annotations, func(a Annotation) bool {
		return ids[a.Common().ID]
	})
	for _, a := range d.Annotations {
		c := a.Common()
		c.AnnotationRefs = drop(c.AnnotationRefs)
	}
}

// Validate checks that ids are unique and every reference resolves to an
// entity of the right kind.
func (d *Document) Validate() error {
	seen := map[LocalID]Kind{}
	add := func(id LocalID, kind Kind) error {
		if _, _, err := ParseLocalID(id); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrCorruptDocument, err)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %s", apperrors.ErrCorruptDocument, id)
		}
		seen[id] = kind
		return nil
	}

	for _, p := range d.Projects {
		if err := add(p.ID, KindProject); err != nil {
			return err
		}
	}
	for _, ds := range d.Datasets {
		if err := add(ds.ID, KindDataset); err != nil {
			return err
		}
	}
	for _, s := range d.Screens {
		if err := add(s.ID, KindScreen); err != nil {
			return err
		}
	}
	for _, p := range d.Plates {
		if err := add(p.ID, KindPlate); err != nil {
			return err
		}
		for _, w := range p.Wells {
			if err := add(w.ID, KindWell); err != nil {
				return err
			}
			for _, ws := range w.Samples {
				if err := add(ws.ID, KindWellSample); err != nil {
					return err
				}
			}
		}
	}
	for _, img := range d.Images {
		if err := add(img.ID, KindImage); err != nil {
			return err
		}
	}
	for _, r := range d.ROIs {
		if err := add(r.ID, KindROI); err != nil {
			return err
		}
	}
	for _, a := range d.Annotations {
		if err := add(a.Common().ID, KindAnnotation); err != nil {
			return err
		}
	}

	check := func(owner LocalID, refs []LocalID, want Kind) error {
		for _, ref := range refs {
			got, ok := seen[ref]
			if !ok {
				return fmt.Errorf("%w: %s references missing %s", apperrors.ErrCorruptDocument, owner, ref)
			}
			if got != want {
				return fmt.Errorf("%w: %s references %s, want a %s", apperrors.ErrCorruptDocument, owner, ref, want)
			}
		}
		return nil
	}

	for _, p := range d.Projects {
		if err := check(p.ID, p.DatasetRefs, KindDataset); err != nil {
			return err
		}
		if err := check(p.ID, p.AnnotationRefs, KindAnnotation); err != nil {
			return err
		}
	}
	for _, ds := range d.Datasets {
		if err := check(ds.ID, ds.ImageRefs, KindImage); err != nil {
			return err
		}
		if err := check(ds.ID, ds.AnnotationRefs, KindAnnotation); err != nil {
			return err
		}
	}
	for _, s := range d.Screens {
		if err := check(s.ID, s.PlateRefs, KindPlate); err != nil {
			return err
		}
		if err := check(s.ID, s.AnnotationRefs, KindAnnotation); err != nil {
			return err
		}
	}
	for _, p := range d.Plates {
		if err := check(p.ID, p.AnnotationRefs, KindAnnotation); err != nil {
			return err
		}
		for _, w := range p.Wells {
			if err := check(w.ID, w.AnnotationRefs, KindAnnotation); err != nil {
				return err
			}
			for _, ws := range w.Samples {
				if err := check(ws.ID, []LocalID{ws.ImageRef}, KindImage); err != nil {
					return err
				}
			}
		}
	}
	for _, img := range d.Images {
		if err := check(img.ID, img.AnnotationRefs, KindAnnotation); err != nil {
			return err
		}
		if err := check(img.ID, img.ROIRefs, KindROI); err != nil {
			return err
		}
	}
	for _, r := range d.ROIs {
		if err := check(r.ID, r.AnnotationRefs, KindAnnotation); err != nil {
			return err
		}
	}
	for _, a := range d.Annotations {
		c := a.Common()
		if err := check(c.ID, c.AnnotationRefs, KindAnnotation); err != nil {
			return err
		}
	}
	return nil
}

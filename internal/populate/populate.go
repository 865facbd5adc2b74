// Package populate recreates the objects, annotations, ROIs and links of a
// reconciled document on a destination server.
package populate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/provenance"
	"github.com/ome/omero-cli-transfer/internal/reconcile"
	"github.com/ome/omero-cli-transfer/internal/server"
)

// Options tunes a population run.
type Options struct {
	// Folder is the extracted package root. File annotation payloads and
	// figures are read from it.
	Folder string
	// Hash replaces the packed md5 provenance value.
	Hash string
	// Metadata selects the provenance fields kept on the destination. A
	// nil selection keeps every default field.
	Metadata provenance.Selection
	// Merge reuses owned containers with the same name instead of
	// creating new ones.
	Merge bool
	// IncludeFigures creates figure file annotations, with their image
	// references rewritten to destination ids.
	IncludeFigures bool
	Logger         *zap.Logger
}

// Report records what a run created or reused, keyed by document id.
type Report struct {
	Projects    map[model.LocalID]int64
	Datasets    map[model.LocalID]int64
	Screens     map[model.LocalID]int64
	Plates      map[model.LocalID]int64
	Annotations map[model.LocalID]int64
	// CreatedPlates counts plates synthesized from their wells.
	CreatedPlates int
	ROIs          int
	Links         int
	// Skipped lists document objects left out because their image has no
	// destination counterpart.
	Skipped []model.LocalID
}

type populator struct {
	g      server.Gateway
	doc    *model.Document
	images reconcile.IdentifierMap
	opts   Options
	logger *zap.Logger
	report *Report
}

// Populate writes doc to g. images maps document images to destination
// images already imported. Objects are processed in dependency order: plates,
// renames, containers, annotations, ROIs, structural links, annotation
// links. A failure aborts the run; objects already written are kept.
func Populate(ctx context.Context, g server.Gateway, doc *model.Document, images reconcile.IdentifierMap, opts Options) (*Report, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metadata == nil {
		opts.Metadata = provenance.All()
	}
	p := &populator{
		g:      g,
		doc:    doc.Clone(),
		images: images,
		opts:   opts,
		logger: opts.Logger,
		report: &Report{
			Projects:    map[model.LocalID]int64{},
			Datasets:    map[model.LocalID]int64{},
			Screens:     map[model.LocalID]int64{},
			Plates:      map[model.LocalID]int64{},
			Annotations: map[model.LocalID]int64{},
		},
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"resolve plates", p.plates},
		{"rename images", p.renameImages},
		{"rename plates", p.renamePlates},
		{"projects", p.projects},
		{"datasets", p.datasets},
		{"screens", p.screens},
		{"annotations", p.annotations},
		{"rois", p.rois},
		{"link plates", p.linkPlates},
		{"link datasets", p.linkDatasets},
		{"link images", p.linkImages},
		{"link annotations", p.linkAnnotations},
	}
	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			return p.report, fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return p.report, nil
}

// plates finds or creates the destination plate of every document plate.
// Plate origin-path annotations are consumed here and never created.
func (p *populator) plates(ctx context.Context) error {
	drop := map[model.LocalID]bool{}
	for _, pl := range p.doc.Plates {
		filePath, _, hasPath := p.doc.ServerPathOf(pl.AnnotationRefs)
		for _, ref := range pl.AnnotationRefs {
			if x, ok := p.doc.Annotation(ref).(*model.XMLAnnotation); ok && !model.IsMetadata(x) {
				drop[ref] = true
			}
		}

		var id int64
		if hasPath {
			found, err := p.existingPlate(ctx, filePath)
			if err != nil {
				return err
			}
			id = found
		} else {
			p.logger.Warn("plate has no origin path, creating it from its wells", zap.String("plate", string(pl.ID)))
		}
		if id == 0 {
			created, err := p.createPlate(ctx, pl)
			if err != nil {
				return err
			}
			id = created
		}
		p.report.Plates[pl.ID] = id
	}
	p.doc.RemoveAnnotations(drop)
	return nil
}

// existingPlate returns the lowest id among destination plates imported
// from filePath that no earlier unpack has claimed, or 0.
func (p *populator) existingPlate(ctx context.Context, filePath string) (int64, error) {
	fragment := reconcile.SourceKey(strings.Trim(filePath, "/"))
	ids, err := p.g.PlateIDsByClientPath(ctx, fragment)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		claimed, err := p.hasProvenance(ctx, server.ObjectRef{Kind: server.Plate, ID: id})
		if err != nil {
			return 0, err
		}
		if !claimed {
			return id, nil
		}
	}
	return 0, nil
}

func (p *populator) hasProvenance(ctx context.Context, ref server.ObjectRef) (bool, error) {
	anns, err := p.g.Annotations(ctx, ref)
	if err != nil {
		return false, err
	}
	for _, a := range anns {
		if a.Kind == server.MapAnnotation && a.Namespace == model.TransferNamespace {
			return true, nil
		}
	}
	return false, nil
}

// createPlate builds a plate from images that were imported on their own.
func (p *populator) createPlate(ctx context.Context, pl *model.Plate) (int64, error) {
	id, err := p.g.CreateContainer(ctx, server.Plate, pl.Name, pl.Description)
	if err != nil {
		return 0, err
	}
	for _, w := range pl.Wells {
		var imageIDs []int64
		for _, ws := range w.Samples {
			dst, ok := p.images[ws.ImageRef]
			if !ok {
				p.skip(ws.ImageRef, "well sample image not imported")
				continue
			}
			imageIDs = append(imageIDs, dst)
		}
		if _, err := p.g.CreateWell(ctx, id, w.Row, w.Column, imageIDs); err != nil {
			if errors.Is(err, apperrors.ErrWellOccupied) {
				return 0, fmt.Errorf("plate %s: %w", pl.ID, err)
			}
			return 0, err
		}
	}
	p.report.CreatedPlates++
	p.logger.Info("plate created from images", zap.String("plate", string(pl.ID)), zap.Int64("plate_id", id))
	return id, nil
}

func (p *populator) skip(id model.LocalID, msg string) {
	if !slices.Contains(p.report.Skipped, id) {
		p.report.Skipped = append(p.report.Skipped, id)
	}
	p.logger.Warn(msg+", skipping", zap.String("object", string(id)))
}

func (p *populator) renameImages(ctx context.Context) error {
	for _, img := range p.doc.Images {
		dst, ok := p.images[img.ID]
		if !ok {
			p.skip(img.ID, "no destination image")
			continue
		}
		if err := p.g.Rename(ctx, server.ObjectRef{Kind: server.Image, ID: dst}, img.Name); err != nil {
			return err
		}
	}
	return nil
}

func (p *populator) renamePlates(ctx context.Context) error {
	for _, pl := range p.doc.Plates {
		if err := p.g.Rename(ctx, server.ObjectRef{Kind: server.Plate, ID: p.report.Plates[pl.ID]}, pl.Name); err != nil {
			return err
		}
	}
	return nil
}

func (p *populator) projects(ctx context.Context) error {
	for _, pj := range p.doc.Projects {
		id, err := p.findOrCreate(ctx, server.Project, pj.Name, pj.Description, nil)
		if err != nil {
			return err
		}
		p.report.Projects[pj.ID] = id
	}
	return nil
}

func (p *populator) screens(ctx context.Context) error {
	for _, sc := range p.doc.Screens {
		id, err := p.findOrCreate(ctx, server.Screen, sc.Name, sc.Description, nil)
		if err != nil {
			return err
		}
		p.report.Screens[sc.ID] = id
	}
	return nil
}

func (p *populator) datasets(ctx context.Context) error {
	for _, ds := range p.doc.Datasets {
		find := p.findOrphanDataset
		if parents := p.doc.ProjectsContaining(ds.ID); len(parents) > 0 {
			find = func(ctx context.Context, name string) (int64, error) {
				return p.findProjectDataset(ctx, parents, name)
			}
		}
		id, err := p.findOrCreate(ctx, server.Dataset, ds.Name, ds.Description, find)
		if err != nil {
			return err
		}
		p.report.Datasets[ds.ID] = id
	}
	return nil
}

type finder func(ctx context.Context, name string) (int64, error)

// findOrCreate reuses a matching container in merge mode and creates one
// otherwise. A nil find matches among every owned container of kind.
func (p *populator) findOrCreate(ctx context.Context, kind server.Kind, name, description string, find finder) (int64, error) {
	if p.opts.Merge {
		if find == nil {
			find = func(ctx context.Context, name string) (int64, error) {
				return p.findOwned(ctx, kind, name, server.ListOptions{})
			}
		}
		id, err := find(ctx, name)
		if err != nil {
			return 0, err
		}
		if id != 0 {
			p.logger.Debug("reusing container", zap.String("kind", string(kind)), zap.String("name", name), zap.Int64("id", id))
			return id, nil
		}
	}
	return p.g.CreateContainer(ctx, kind, name, description)
}

// findOwned returns the lowest id among owned objects named exactly name.
func (p *populator) findOwned(ctx context.Context, kind server.Kind, name string, opts server.ListOptions) (int64, error) {
	objs, err := p.g.OwnedObjects(ctx, kind, opts)
	if err != nil {
		return 0, err
	}
	var best int64
	for _, o := range objs {
		if o.Name == name && (best == 0 || o.ID < best) {
			best = o.ID
		}
	}
	return best, nil
}

func (p *populator) findOrphanDataset(ctx context.Context, name string) (int64, error) {
	return p.findOwned(ctx, server.Dataset, name, server.ListOptions{Orphaned: true})
}

// findProjectDataset looks for the dataset among the children of owned
// destination projects named like one of its document parents.
func (p *populator) findProjectDataset(ctx context.Context, parents []*model.Project, name string) (int64, error) {
	owned, err := p.g.OwnedObjects(ctx, server.Project, server.ListOptions{})
	if err != nil {
		return 0, err
	}
	var best int64
	for _, parent := range parents {
		for _, o := range owned {
			if o.Name != parent.Name {
				continue
			}
			children, err := p.g.Children(ctx, server.ObjectRef{Kind: server.Project, ID: o.ID})
			if err != nil {
				return 0, err
			}
			for _, c := range children {
				if c.Name == name && (best == 0 || c.ID < best) {
					best = c.ID
				}
			}
		}
	}
	return best, nil
}

func (p *populator) rois(ctx context.Context) error {
	for _, img := range p.doc.Images {
		dst, ok := p.images[img.ID]
		if !ok {
			continue
		}
		for _, ref := range img.ROIRefs {
			roi := p.doc.ROI(ref)
			if roi == nil {
				continue
			}
			info := server.ROIInfo{Name: roi.Name, Description: roi.Description}
			for _, sh := range roi.Shapes {
				s, err := fromShape(sh)
				if err != nil {
					return err
				}
				info.Shapes = append(info.Shapes, s)
			}
			id, err := p.g.CreateROI(ctx, dst, info)
			if err != nil {
				return err
			}
			p.report.ROIs++
			if err := p.linkAnnotationRefs(ctx, server.ObjectRef{Kind: server.ROI, ID: id}, roi.AnnotationRefs); err != nil {
				return err
			}
		}
	}
	return nil
}

// linkChildren links the children not already under parent.
func (p *populator) linkChildren(ctx context.Context, parent server.ObjectRef, kind server.Kind, ids []int64) error {
	existing, err := p.g.Children(ctx, parent)
	if err != nil {
		return err
	}
	linked := map[int64]bool{}
	for _, c := range existing {
		linked[c.ID] = true
	}
	for _, id := range ids {
		if linked[id] {
			continue
		}
		if err := p.g.Link(ctx, parent, server.ObjectRef{Kind: kind, ID: id}); err != nil {
			return err
		}
		linked[id] = true
		p.report.Links++
	}
	return nil
}

func (p *populator) linkPlates(ctx context.Context) error {
	for _, sc := range p.doc.Screens {
		var ids []int64
		for _, ref := range sc.PlateRefs {
			ids = append(ids, p.report.Plates[ref])
		}
		if err := p.linkChildren(ctx, server.ObjectRef{Kind: server.Screen, ID: p.report.Screens[sc.ID]}, server.Plate, ids); err != nil {
			return err
		}
	}
	return nil
}

func (p *populator) linkDatasets(ctx context.Context) error {
	for _, pj := range p.doc.Projects {
		var ids []int64
		for _, ref := range pj.DatasetRefs {
			ids = append(ids, p.report.Datasets[ref])
		}
		if err := p.linkChildren(ctx, server.ObjectRef{Kind: server.Project, ID: p.report.Projects[pj.ID]}, server.Dataset, ids); err != nil {
			return err
		}
	}
	return nil
}

func (p *populator) linkImages(ctx context.Context) error {
	for _, ds := range p.doc.Datasets {
		var ids []int64
		for _, ref := range ds.ImageRefs {
			if dst, ok := p.images[ref]; ok {
				ids = append(ids, dst)
			}
		}
		if err := p.linkChildren(ctx, server.ObjectRef{Kind: server.Dataset, ID: p.report.Datasets[ds.ID]}, server.Image, ids); err != nil {
			return err
		}
	}
	return nil
}

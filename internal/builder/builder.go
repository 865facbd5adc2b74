// Package builder walks a source server hierarchy and produces the portable
// document describing it.
package builder

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/buildinfo"
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/provenance"
	"github.com/ome/omero-cli-transfer/internal/server"
	"github.com/ome/omero-cli-transfer/internal/slugs"
)

// Options tunes a build.
type Options struct {
	// Metadata selects the provenance fields written on images and plates.
	// A nil selection writes every default field.
	Metadata provenance.Selection
	// Simple lays origin paths out as <project>/<dataset>/<file>.
	Simple bool
	// Hostname overrides the session hostname in provenance.
	Hostname string
	// Allocator hands out ids for transport-only annotations. A fresh
	// allocator is used when nil.
	Allocator *model.IDAllocator
	// Now stamps provenance; time.Now when nil.
	Now    func() time.Time
	Logger *zap.Logger
}

type builder struct {
	r      server.Reader
	opts   Options
	alloc  *model.IDAllocator
	src    provenance.Source
	logger *zap.Logger
	doc    *model.Document

	// imagePaths records the origin path given to each built image.
	imagePaths map[model.LocalID]string
}

// Build produces the document rooted at root. Any reader error aborts the
// build; no partial document is returned.
func Build(ctx context.Context, r server.Reader, root server.ObjectRef, opts Options) (*model.Document, error) {
	b, err := newBuilder(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	if _, err := r.Object(ctx, root); err != nil {
		return nil, err
	}

	switch root.Kind {
	case server.Project:
		err = b.project(ctx, root.ID)
	case server.Dataset:
		_, err = b.dataset(ctx, root.ID, "")
	case server.Image:
		_, err = b.image(ctx, root.ID, "")
	case server.Screen:
		err = b.screen(ctx, root.ID)
	case server.Plate:
		_, err = b.plate(ctx, root.ID)
	default:
		return nil, fmt.Errorf("cannot build a document from a %s", root.Kind)
	}
	if err != nil {
		return nil, err
	}
	b.logger.Debug("document built",
		zap.Stringer("root", root),
		zap.Int("images", len(b.doc.Images)),
		zap.Int("annotations", len(b.doc.Annotations)))
	return b.doc, nil
}

func newBuilder(ctx context.Context, r server.Reader, opts Options) (*builder, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metadata == nil {
		opts.Metadata = provenance.All()
	}
	if opts.Allocator == nil {
		opts.Allocator = model.NewIDAllocator()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	sess, err := r.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	hostname := opts.Hostname
	if hostname == "" {
		hostname = sess.Hostname
	}
	return &builder{
		r:     r,
		opts:  opts,
		alloc: opts.Allocator,
		src: provenance.Source{
			Hostname:   hostname,
			User:       sess.User,
			Group:      sess.Group,
			DatabaseID: sess.DatabaseID,
			Software:   buildinfo.Software,
			Version:    buildinfo.ToolVersion(),
			Now:        opts.Now(),
		},
		logger:     opts.Logger,
		doc:        &model.Document{Creator: buildinfo.Software + " " + buildinfo.ToolVersion()},
		imagePaths: map[model.LocalID]string{},
	}, nil
}

func (b *builder) project(ctx context.Context, id int64) error {
	pid := model.NewLocalID(model.KindProject, id)
	if b.doc.Project(pid) != nil {
		return nil
	}
	obj, err := b.r.Object(ctx, server.ObjectRef{Kind: server.Project, ID: id})
	if err != nil {
		return err
	}
	p := &model.Project{ID: pid, Name: obj.Name, Description: obj.Description}
	if p.AnnotationRefs, err = b.annotations(ctx, server.ObjectRef{Kind: server.Project, ID: id}); err != nil {
		return err
	}
	children, err := b.r.Children(ctx, server.ObjectRef{Kind: server.Project, ID: id})
	if err != nil {
		return err
	}
	folder := slugs.FolderName(id, obj.Name)
	for _, ds := range children {
		ref, err := b.dataset(ctx, ds.ID, folder)
		if err != nil {
			return err
		}
		p.DatasetRefs = appendUnique(p.DatasetRefs, ref)
	}
	b.doc.Projects = append(b.doc.Projects, p)
	return nil
}

// dataset builds a dataset once; projectFolder names the simple-layout
// folder of the project it was reached through.
func (b *builder) dataset(ctx context.Context, id int64, projectFolder string) (model.LocalID, error) {
	did := model.NewLocalID(model.KindDataset, id)
	if b.doc.Dataset(did) != nil {
		return did, nil
	}
	obj, err := b.r.Object(ctx, server.ObjectRef{Kind: server.Dataset, ID: id})
	if err != nil {
		return "", err
	}
	ds := &model.Dataset{ID: did, Name: obj.Name, Description: obj.Description}
	if ds.AnnotationRefs, err = b.annotations(ctx, server.ObjectRef{Kind: server.Dataset, ID: id}); err != nil {
		return "", err
	}
	children, err := b.r.Children(ctx, server.ObjectRef{Kind: server.Dataset, ID: id})
	if err != nil {
		return "", err
	}
	folder := path.Join(projectFolder, slugs.FolderName(id, obj.Name))
	for _, img := range children {
		ref, err := b.image(ctx, img.ID, folder)
		if err != nil {
			return "", err
		}
		ds.ImageRefs = appendUnique(ds.ImageRefs, ref)
	}
	b.doc.Datasets = append(b.doc.Datasets, ds)
	return did, nil
}

func (b *builder) screen(ctx context.Context, id int64) error {
	sid := model.NewLocalID(model.KindScreen, id)
	if b.doc.Screen(sid) != nil {
		return nil
	}
	obj, err := b.r.Object(ctx, server.ObjectRef{Kind: server.Screen, ID: id})
	if err != nil {
		return err
	}
	s := &model.Screen{ID: sid, Name: obj.Name, Description: obj.Description}
	if s.AnnotationRefs, err = b.annotations(ctx, server.ObjectRef{Kind: server.Screen, ID: id}); err != nil {
		return err
	}
	children, err := b.r.Children(ctx, server.ObjectRef{Kind: server.Screen, ID: id})
	if err != nil {
		return err
	}
	for _, pl := range children {
		ref, err := b.plate(ctx, pl.ID)
		if err != nil {
			return err
		}
		s.PlateRefs = appendUnique(s.PlateRefs, ref)
	}
	b.doc.Screens = append(b.doc.Screens, s)
	return nil
}

func (b *builder) plate(ctx context.Context, id int64) (model.LocalID, error) {
	pid := model.NewLocalID(model.KindPlate, id)
	if b.doc.Plate(pid) != nil {
		return pid, nil
	}
	ref := server.ObjectRef{Kind: server.Plate, ID: id}
	obj, err := b.r.Object(ctx, ref)
	if err != nil {
		return "", err
	}
	pl := &model.Plate{ID: pid, Name: obj.Name, Description: obj.Description}
	if pl.AnnotationRefs, err = b.annotations(ctx, ref); err != nil {
		return "", err
	}
	pl.AnnotationRefs = append(pl.AnnotationRefs, b.provenance(id, true))

	wells, err := b.r.Wells(ctx, id)
	if err != nil {
		return "", err
	}
	plateFiles := ""
	for _, w := range wells {
		well := &model.Well{
			ID:     model.NewLocalID(model.KindWell, w.ID),
			Row:    w.Row,
			Column: w.Column,
		}
		for _, ws := range w.Samples {
			imgRef, err := b.image(ctx, ws.ImageID, "")
			if err != nil {
				return "", err
			}
			well.Samples = append(well.Samples, &model.WellSample{
				ID:       model.NewLocalID(model.KindWellSample, ws.ID),
				Index:    ws.Index,
				ImageRef: imgRef,
			})
			plateFiles = b.imagePaths[imgRef]
		}
		if well.AnnotationRefs, err = b.annotations(ctx, server.ObjectRef{Kind: server.Well, ID: w.ID}); err != nil {
			return "", err
		}
		pl.Wells = append(pl.Wells, well)
	}

	if plateFiles != "" {
		pl.AnnotationRefs = append(pl.AnnotationRefs, b.serverPath(plateFiles))
	} else {
		b.logger.Warn("plate has no images, no origin path recorded", zap.Int64("plate_id", id))
	}
	b.doc.Plates = append(b.doc.Plates, pl)
	return pid, nil
}

// image builds an image and, through fileset expansion, every image sharing
// its fileset. folder is the simple-layout folder of the dataset it was
// reached through.
func (b *builder) image(ctx context.Context, id int64, folder string) (model.LocalID, error) {
	iid := model.NewLocalID(model.KindImage, id)
	if _, seen := b.imagePaths[iid]; seen {
		return iid, nil
	}
	// Registered before recursing so fileset siblings see it as built.
	b.imagePaths[iid] = ""

	ref := server.ObjectRef{Kind: server.Image, ID: id}
	info, err := b.r.Image(ctx, id)
	if err != nil {
		return "", err
	}
	img := &model.Image{
		ID:          iid,
		Name:        info.Name,
		Description: info.Description,
		Pixels: model.Pixels{
			ID:             model.NewLocalID(model.KindPixels, id),
			DimensionOrder: info.Pixels.DimensionOrder,
			Type:           info.Pixels.Type,
			SizeX:          info.Pixels.SizeX,
			SizeY:          info.Pixels.SizeY,
			SizeZ:          info.Pixels.SizeZ,
			SizeC:          info.Pixels.SizeC,
			SizeT:          info.Pixels.SizeT,
		},
	}
	if img.AnnotationRefs, err = b.annotations(ctx, ref); err != nil {
		return "", err
	}
	img.AnnotationRefs = append(img.AnnotationRefs, b.provenance(id, false))

	paths, err := b.originPaths(ctx, id, folder)
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		img.AnnotationRefs = append(img.AnnotationRefs, b.serverPath(p))
	}
	b.imagePaths[iid] = paths[len(paths)-1]

	rois, err := b.r.ROIs(ctx, id)
	if err != nil {
		return "", err
	}
	for _, roi := range rois {
		roiRef, err := b.roi(ctx, roi)
		if err != nil {
			return "", err
		}
		if roiRef != "" {
			img.ROIRefs = append(img.ROIRefs, roiRef)
		}
	}
	b.doc.Images = append(b.doc.Images, img)

	if info.FilesetID != 0 {
		siblings, err := b.r.FilesetImages(ctx, info.FilesetID)
		if err != nil {
			return "", err
		}
		for _, sib := range siblings {
			if sib == id {
				continue
			}
			if _, err := b.image(ctx, sib, folder); err != nil {
				return "", err
			}
		}
	}
	return iid, nil
}

// originPaths returns the origin paths recorded for an image. The last one
// is the path its binaries are packed under.
func (b *builder) originPaths(ctx context.Context, id int64, folder string) ([]string, error) {
	files, err := b.r.BackingFilePaths(ctx, id)
	if err != nil {
		return nil, err
	}
	exported := path.Join(model.PixelImagesDir, strconv.FormatInt(id, 10)+".tiff")
	switch {
	case len(files) > 1 && b.opts.Simple:
		return []string{path.Join(folder, model.MockFolder)}, nil
	case len(files) > 1:
		return []string{path.Join(model.CommonDir(files), model.MockFolder)}, nil
	case len(files) == 1 && b.opts.Simple:
		return []string{path.Join(folder, path.Base(files[0]))}, nil
	case len(files) == 1:
		return []string{files[0]}, nil
	case b.opts.Simple:
		// The simple path is kept alongside the export location until
		// the exported file is moved there.
		return []string{path.Join(folder, strconv.FormatInt(id, 10)+".tiff"), exported}, nil
	default:
		return []string{exported}, nil
	}
}

func (b *builder) roi(ctx context.Context, roi server.ROIInfo) (model.LocalID, error) {
	rid := model.NewLocalID(model.KindROI, roi.ID)
	if b.doc.ROI(rid) != nil {
		return rid, nil
	}
	var shapes []model.Shape
	for _, sh := range roi.Shapes {
		s, ok := toShape(sh)
		if !ok {
			b.logger.Debug("unsupported shape dropped",
				zap.Int64("roi_id", roi.ID), zap.String("kind", string(sh.Kind)))
			continue
		}
		shapes = append(shapes, s)
	}
	if len(shapes) == 0 {
		b.logger.Info("roi has no supported shapes, dropped", zap.Int64("roi_id", roi.ID))
		return "", nil
	}
	out := &model.ROI{ID: rid, Name: roi.Name, Description: roi.Description, Shapes: shapes}
	var err error
	if out.AnnotationRefs, err = b.annotations(ctx, server.ObjectRef{Kind: server.ROI, ID: roi.ID}); err != nil {
		return "", err
	}
	b.doc.ROIs = append(b.doc.ROIs, out)
	return rid, nil
}

func (b *builder) provenance(id int64, isPlate bool) model.LocalID {
	a := model.NewMetadataAnnotation(b.alloc.Next(model.KindAnnotation), model.TransferNamespace,
		b.opts.Metadata.PackPairs(b.src, id, isPlate))
	b.doc.AddAnnotation(a)
	return a.ID
}

func (b *builder) serverPath(p string) model.LocalID {
	a := model.NewServerPathAnnotation(b.alloc.Next(model.KindAnnotation), p)
	b.doc.AddAnnotation(a)
	return a.ID
}

func appendUnique(refs []model.LocalID, ref model.LocalID) []model.LocalID {
	for _, r := range refs {
		if r == ref {
			return refs
		}
	}
	return append(refs, ref)
}

package populate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/atomicfile"
	"github.com/ome/omero-cli-transfer/internal/figure"
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/server"
)

// annotationCreator writes one document annotation to the destination.
// Visits leave id at 0 for annotations that are not created.
type annotationCreator struct {
	ctx context.Context
	p   *populator
	id  int64
}

var _ model.AnnotationVisitor = (*annotationCreator)(nil)

func (c *annotationCreator) create(info server.AnnotationInfo) error {
	id, err := c.p.g.CreateAnnotation(c.ctx, info)
	if err != nil {
		return err
	}
	c.id = id
	return nil
}

func (c *annotationCreator) VisitTag(a *model.TagAnnotation) error {
	return c.create(server.AnnotationInfo{Kind: server.TagAnnotation, Namespace: a.Namespace,
		Description: a.Description, TextValue: a.Value})
}

func (c *annotationCreator) VisitComment(a *model.CommentAnnotation) error {
	return c.create(server.AnnotationInfo{Kind: server.CommentAnnotation, Namespace: a.Namespace,
		Description: a.Description, TextValue: a.Value})
}

func (c *annotationCreator) VisitLong(a *model.LongAnnotation) error {
	return c.create(server.AnnotationInfo{Kind: server.LongAnnotation, Namespace: a.Namespace,
		Description: a.Description, LongValue: a.Value})
}

func (c *annotationCreator) VisitMap(a *model.MapAnnotation) error {
	return c.create(server.AnnotationInfo{Kind: server.MapAnnotation, Namespace: a.Namespace,
		Description: a.Description, MapValue: keyValues(a.Values)})
}

func (c *annotationCreator) VisitFile(a *model.FileAnnotation) error {
	rel, _, ok := c.p.doc.ServerPathOf(a.AnnotationRefs)
	if !ok {
		c.p.logger.Warn("file annotation has no package path, skipping", zap.String("annotation", string(a.ID)))
		return nil
	}
	local := filepath.Join(c.p.opts.Folder, filepath.FromSlash(rel))
	if a.Namespace == model.FigureNamespace {
		if !c.p.opts.IncludeFigures {
			return nil
		}
		if err := c.p.patchFigure(local); err != nil {
			return err
		}
	}
	file, err := c.p.g.UploadFile(c.ctx, local)
	if err != nil {
		return fmt.Errorf("upload %s: %w", rel, err)
	}
	return c.create(server.AnnotationInfo{Kind: server.FileAnnotation, Namespace: a.Namespace,
		Description: a.Description, File: &file})
}

// VisitXML turns provenance into a map annotation. Origin paths are
// package bookkeeping and are not created.
func (c *annotationCreator) VisitXML(a *model.XMLAnnotation) error {
	packed, ok := model.Metadata(a)
	if !ok {
		return nil
	}
	pairs := c.p.opts.Metadata.UnpackPairs(packed, c.p.opts.Hash)
	return c.create(server.AnnotationInfo{Kind: server.MapAnnotation, Namespace: a.Namespace,
		Description: a.Description, MapValue: keyValues(pairs)})
}

func keyValues(pairs []model.MapPair) []server.KeyValue {
	out := make([]server.KeyValue, len(pairs))
	for i, kv := range pairs {
		out[i] = server.KeyValue{Key: kv.Key, Value: kv.Value}
	}
	return out
}

// patchFigure rewrites the image references of a figure file in place.
func (p *populator) patchFigure(local string) error {
	content, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	mapping := make(map[int64]int64, len(p.images))
	for src, dst := range p.images {
		mapping[src.Num()] = dst
	}
	return atomicfile.WriteFile(local, figure.Patch(content, mapping), 0)
}

func (p *populator) annotations(ctx context.Context) error {
	for _, a := range p.doc.Annotations {
		c := &annotationCreator{ctx: ctx, p: p}
		if err := a.Accept(c); err != nil {
			return fmt.Errorf("annotation %s: %w", a.Common().ID, err)
		}
		if c.id != 0 {
			p.report.Annotations[a.Common().ID] = c.id
		}
	}
	p.logger.Debug("annotations created", zap.Int("count", len(p.report.Annotations)))
	return nil
}

// linkAnnotationRefs links the created annotations among refs to owner.
func (p *populator) linkAnnotationRefs(ctx context.Context, owner server.ObjectRef, refs []model.LocalID) error {
	for _, ref := range refs {
		id, ok := p.report.Annotations[ref]
		if !ok {
			continue
		}
		if err := p.g.LinkAnnotation(ctx, owner, id); err != nil {
			return err
		}
		p.report.Links++
	}
	return nil
}

func (p *populator) linkAnnotations(ctx context.Context) error {
	for _, pj := range p.doc.Projects {
		if err := p.linkAnnotationRefs(ctx, server.ObjectRef{Kind: server.Project, ID: p.report.Projects[pj.ID]}, pj.AnnotationRefs); err != nil {
			return err
		}
	}
	for _, ds := range p.doc.Datasets {
		if err := p.linkAnnotationRefs(ctx, server.ObjectRef{Kind: server.Dataset, ID: p.report.Datasets[ds.ID]}, ds.AnnotationRefs); err != nil {
			return err
		}
	}
	for _, img := range p.doc.Images {
		dst, ok := p.images[img.ID]
		if !ok {
			continue
		}
		if err := p.linkAnnotationRefs(ctx, server.ObjectRef{Kind: server.Image, ID: dst}, img.AnnotationRefs); err != nil {
			return err
		}
	}
	for _, sc := range p.doc.Screens {
		if err := p.linkAnnotationRefs(ctx, server.ObjectRef{Kind: server.Screen, ID: p.report.Screens[sc.ID]}, sc.AnnotationRefs); err != nil {
			return err
		}
	}
	for _, pl := range p.doc.Plates {
		plateID := p.report.Plates[pl.ID]
		if err := p.linkAnnotationRefs(ctx, server.ObjectRef{Kind: server.Plate, ID: plateID}, pl.AnnotationRefs); err != nil {
			return err
		}
		for _, w := range pl.Wells {
			if len(w.AnnotationRefs) == 0 {
				continue
			}
			wellID, err := p.g.WellID(ctx, plateID, w.Row, w.Column)
			if err != nil {
				return err
			}
			if err := p.linkAnnotationRefs(ctx, server.ObjectRef{Kind: server.Well, ID: wellID}, w.AnnotationRefs); err != nil {
				return err
			}
		}
	}
	return nil
}

package builder

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/ome/omero-cli-transfer/internal/figure"
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/server"
)

// FiguresDir holds packed figure JSON files.
const FiguresDir = "figures"

// FileMap returns the package path of every image and file annotation
// payload, keyed by local id. An image with several origin paths maps to
// the last one, which is where its binaries are written.
func FileMap(doc *model.Document) map[model.LocalID]string {
	out := map[model.LocalID]string{}
	for _, img := range doc.Images {
		ids := doc.ServerPathAnnotations(img.AnnotationRefs)
		if len(ids) == 0 {
			continue
		}
		p, _ := model.ServerPath(doc.Annotation(ids[len(ids)-1]))
		out[img.ID] = p
	}
	for _, a := range doc.Annotations {
		f, ok := a.(*model.FileAnnotation)
		if !ok {
			continue
		}
		if p, _, ok := doc.ServerPathOf(f.AnnotationRefs); ok {
			out[f.ID] = p
		}
	}
	return out
}

// Figure is a figure file selected for packing.
type Figure struct {
	AnnotationID model.LocalID
	Path         string
	Content      []byte
}

// CollectFigures adds to doc every figure file annotation on the server
// that references at least one image of doc, each with an origin path
// under figures/. The returned figures carry the content to write.
func CollectFigures(ctx context.Context, r server.Reader, doc *model.Document, alloc *model.IDAllocator) ([]Figure, error) {
	packed := map[int64]bool{}
	for _, img := range doc.Images {
		packed[img.ID.Num()] = true
	}
	infos, err := r.AnnotationsByNamespace(ctx, model.FigureNamespace)
	if err != nil {
		return nil, err
	}
	var figures []Figure
	for _, info := range infos {
		if info.File == nil {
			continue
		}
		content, err := r.FileContent(ctx, info.File.ID)
		if err != nil {
			return nil, fmt.Errorf("read figure %d: %w", info.ID, err)
		}
		if !figure.References(content, packed) {
			continue
		}
		id := model.NewLocalID(model.KindAnnotation, info.ID)
		if doc.Annotation(id) != nil {
			continue
		}
		p := path.Join(FiguresDir, "Figure_"+strconv.FormatInt(info.ID, 10)+".json")
		pathAnn := model.NewServerPathAnnotation(alloc.Next(model.KindAnnotation), p)
		f := fileAnnotation(model.AnnotationBase{
			ID:             id,
			Namespace:      info.Namespace,
			Description:    info.Description,
			AnnotationRefs: []model.LocalID{pathAnn.ID},
		}, *info.File)
		doc.AddAnnotation(pathAnn)
		doc.AddAnnotation(f)
		figures = append(figures, Figure{AnnotationID: id, Path: p, Content: content})
	}
	return figures, nil
}

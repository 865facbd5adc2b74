package builder

import (
	"context"
	"encoding/base64"
	"path"
	"strconv"

	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/server"
)

// FileAnnotationsDir holds the payloads of packed file annotations.
const FileAnnotationsDir = "file_annotations"

// annotations adds the annotations linked to owner and returns their refs.
// An annotation linked to several owners is added once.
func (b *builder) annotations(ctx context.Context, owner server.ObjectRef) ([]model.LocalID, error) {
	infos, err := b.r.Annotations(ctx, owner)
	if err != nil {
		return nil, err
	}
	var refs []model.LocalID
	for _, info := range infos {
		id := model.NewLocalID(model.KindAnnotation, info.ID)
		if b.doc.Annotation(id) == nil {
			a := b.convertAnnotation(info)
			if a == nil {
				b.logger.Debug("annotation kind not transferred",
					zap.Stringer("owner", owner), zap.String("kind", string(info.Kind)))
				continue
			}
			b.doc.AddAnnotation(a)
		}
		refs = appendUnique(refs, id)
	}
	return refs, nil
}

// convertAnnotation returns nil for kinds that are not transferred.
func (b *builder) convertAnnotation(info server.AnnotationInfo) model.Annotation {
	base := model.AnnotationBase{
		ID:          model.NewLocalID(model.KindAnnotation, info.ID),
		Namespace:   info.Namespace,
		Description: info.Description,
	}
	switch info.Kind {
	case server.TagAnnotation:
		return &model.TagAnnotation{AnnotationBase: base, Value: info.TextValue}
	case server.CommentAnnotation:
		return &model.CommentAnnotation{AnnotationBase: base, Value: info.TextValue}
	case server.LongAnnotation:
		return &model.LongAnnotation{AnnotationBase: base, Value: info.LongValue}
	case server.MapAnnotation:
		m := &model.MapAnnotation{AnnotationBase: base}
		for _, kv := range info.MapValue {
			m.Values = append(m.Values, model.MapPair{Key: kv.Key, Value: kv.Value})
		}
		return m
	case server.FileAnnotation:
		if info.File == nil {
			return nil
		}
		f := fileAnnotation(base, *info.File)
		f.AnnotationRefs = append(f.AnnotationRefs,
			b.serverPath(FileAnnotationPath(info.ID, info.File.Name)))
		return f
	}
	return nil
}

func fileAnnotation(base model.AnnotationBase, file server.FileInfo) *model.FileAnnotation {
	return &model.FileAnnotation{
		AnnotationBase: base,
		File: model.BinaryFile{
			FileName: path.Join(file.Path, file.Name),
			Size:     file.Size,
			BinData:  base64.StdEncoding.EncodeToString([]byte(file.Path)),
		},
	}
}

// FileAnnotationPath is the package path of a file annotation payload.
func FileAnnotationPath(annotationID int64, name string) string {
	return path.Join(FileAnnotationsDir, strconv.FormatInt(annotationID, 10), path.Base(name))
}

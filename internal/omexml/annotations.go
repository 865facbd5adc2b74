package omexml

import (
	"fmt"

	"github.com/ome/omero-cli-transfer/internal/model"
)

type annotationEncoder struct {
	out any
}

func baseAttrs(b *model.AnnotationBase) annotationAttrs {
	return annotationAttrs{ID: string(b.ID), Namespace: b.Namespace}
}

func (e *annotationEncoder) VisitTag(a *model.TagAnnotation) error {
	e.out = &tagXML{
		annotationAttrs: baseAttrs(&a.AnnotationBase),
		Description:     a.Description,
		AnnotationRefs:  refs(a.AnnotationRefs),
		Value:           a.Value,
	}
	return nil
}

func (e *annotationEncoder) VisitComment(a *model.CommentAnnotation) error {
	e.out = &commentXML{
		annotationAttrs: baseAttrs(&a.AnnotationBase),
		Description:     a.Description,
		AnnotationRefs:  refs(a.AnnotationRefs),
		Value:           a.Value,
	}
	return nil
}

func (e *annotationEncoder) VisitLong(a *model.LongAnnotation) error {
	e.out = &longXML{
		annotationAttrs: baseAttrs(&a.AnnotationBase),
		Description:     a.Description,
		AnnotationRefs:  refs(a.AnnotationRefs),
		Value:           a.Value,
	}
	return nil
}

func (e *annotationEncoder) VisitMap(a *model.MapAnnotation) error {
	x := &mapXML{
		annotationAttrs: baseAttrs(&a.AnnotationBase),
		Description:     a.Description,
		AnnotationRefs:  refs(a.AnnotationRefs),
	}
	for _, p := range a.Values {
		x.Value.M = append(x.Value.M, mapEntryXML{K: p.Key, Value: p.Value})
	}
	e.out = x
	return nil
}

func (e *annotationEncoder) VisitFile(a *model.FileAnnotation) error {
	x := &fileXML{
		annotationAttrs: baseAttrs(&a.AnnotationBase),
		Description:     a.Description,
		AnnotationRefs:  refs(a.AnnotationRefs),
		BinaryFile: binaryFileXML{
			FileName: a.File.FileName,
			Size:     a.File.Size,
			BinData:  &binDataXML{Length: len(a.File.BinData), Value: a.File.BinData},
		},
	}
	e.out = x
	return nil
}

func (e *annotationEncoder) VisitXML(a *model.XMLAnnotation) error {
	x := &xmlAnnotationXML{
		annotationAttrs: baseAttrs(&a.AnnotationBase),
		Description:     a.Description,
		AnnotationRefs:  refs(a.AnnotationRefs),
	}
	x.Value.Inner = a.Value
	e.out = x
	return nil
}

func annotationBase(attrs annotationAttrs, desc string, rs []refXML) model.AnnotationBase {
	return model.AnnotationBase{
		ID:             model.LocalID(attrs.ID),
		Namespace:      attrs.Namespace,
		Description:    desc,
		AnnotationRefs: ids(rs),
	}
}

func annotationFromXML(it any) (model.Annotation, error) {
	switch x := it.(type) {
	case *tagXML:
		return &model.TagAnnotation{AnnotationBase: annotationBase(x.annotationAttrs, x.Description, x.AnnotationRefs), Value: x.Value}, nil
	case *commentXML:
		return &model.CommentAnnotation{AnnotationBase: annotationBase(x.annotationAttrs, x.Description, x.AnnotationRefs), Value: x.Value}, nil
	case *longXML:
		return &model.LongAnnotation{AnnotationBase: annotationBase(x.annotationAttrs, x.Description, x.AnnotationRefs), Value: x.Value}, nil
	case *mapXML:
		m := &model.MapAnnotation{AnnotationBase: annotationBase(x.annotationAttrs, x.Description, x.AnnotationRefs)}
		for _, e := range x.Value.M {
			m.Values = append(m.Values, model.MapPair{Key: e.K, Value: e.Value})
		}
		return m, nil
	case *fileXML:
		f := &model.FileAnnotation{
			AnnotationBase: annotationBase(x.annotationAttrs, x.Description, x.AnnotationRefs),
			File:           model.BinaryFile{FileName: x.BinaryFile.FileName, Size: x.BinaryFile.Size},
		}
		if x.BinaryFile.BinData != nil {
			f.File.BinData = x.BinaryFile.BinData.Value
		}
		return f, nil
	case *xmlAnnotationXML:
		return &model.XMLAnnotation{AnnotationBase: annotationBase(x.annotationAttrs, x.Description, x.AnnotationRefs), Value: x.Value.Inner}, nil
	}
	return nil, fmt.Errorf("unexpected annotation element %T", it)
}

package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
)

func sampleDocument() *Document {
	path := NewServerPathAnnotation("Annotation:-1", "a/b/mock_folder")
	tag := &TagAnnotation{AnnotationBase: AnnotationBase{ID: "Annotation:7"}, Value: "cells"}
	return &Document{
		Projects: []*Project{{ID: "Project:1", Name: "p", DatasetRefs: []LocalID{"Dataset:2"}}},
		Datasets: []*Dataset{{ID: "Dataset:2", Name: "d", ImageRefs: []LocalID{"Image:3"}}},
		Images: []*Image{{
			ID:             "Image:3",
			Name:           "img",
			AnnotationRefs: []LocalID{"Annotation:7", "Annotation:-1"},
			ROIRefs:        []LocalID{"ROI:4"},
		}},
		ROIs: []*ROI{{
			ID:     "ROI:4",
			Shapes: []Shape{&Point{ShapeBase: ShapeBase{ID: "Shape:5"}, X: 1, Y: 2}},
		}},
		Annotations: []Annotation{tag, path},
	}
}

func TestParseLocalID(t *testing.T) {
	kind, n, err := ParseLocalID("Image:-42")
	require.NoError(t, err)
	assert.Equal(t, KindImage, kind)
	assert.Equal(t, int64(-42), n)

	_, _, err = ParseLocalID("Image")
	assert.Error(t, err)
	_, _, err = ParseLocalID("Image:x")
	assert.Error(t, err)

	assert.True(t, LocalID("Annotation:-3").Synthetic())
	assert.False(t, LocalID("Annotation:3").Synthetic())
}

func TestIDAllocator(t *testing.T) {
	a := NewIDAllocatorFrom(-2)
	assert.Equal(t, LocalID("Annotation:-2"), a.Next(KindAnnotation))
	assert.Equal(t, LocalID("ROI:-1"), a.Next(KindROI))
	assert.Panics(t, func() { a.Next(KindImage) }, "ids never reach zero")

	r := NewIDAllocator()
	first := r.Next(KindImage)
	second := r.Next(KindImage)
	assert.True(t, first.Synthetic())
	assert.True(t, second.Synthetic())
	assert.Less(t, first.Num(), second.Num(), "later ids sort after earlier ones")
}

func TestValidate(t *testing.T) {
	require.NoError(t, sampleDocument().Validate())

	t.Run("dangling", func(t *testing.T) {
		doc := sampleDocument()
		doc.Images[0].AnnotationRefs = append(doc.Images[0].AnnotationRefs, "Annotation:99")
		err := doc.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrCorruptDocument))
	})

	t.Run("wrong kind", func(t *testing.T) {
		doc := sampleDocument()
		doc.Projects[0].DatasetRefs = []LocalID{"Image:3"}
		assert.Error(t, doc.Validate())
	})

	t.Run("duplicate", func(t *testing.T) {
		doc := sampleDocument()
		doc.Images = append(doc.Images, &Image{ID: "Image:3"})
		assert.Error(t, doc.Validate())
	})
}

func TestRemoveAnnotationsStripsRefs(t *testing.T) {
	doc := sampleDocument()
	doc.RemoveAnnotations(map[LocalID]bool{"Annotation:-1": true})

	assert.Nil(t, doc.Annotation("Annotation:-1"))
	assert.Equal(t, []LocalID{"Annotation:7"}, doc.Images[0].AnnotationRefs)
	require.NoError(t, doc.Validate())
}

func TestCloneIsIndependent(t *testing.T) {
	doc := sampleDocument()
	cp := doc.Clone()

	cp.RemoveAnnotations(map[LocalID]bool{"Annotation:-1": true})
	cp.ROIs[0].Shapes[0].(*Point).X = 100
	cp.Annotation("Annotation:7").(*TagAnnotation).Value = "changed"

	assert.Len(t, doc.Annotations, 2)
	assert.Len(t, doc.Images[0].AnnotationRefs, 2)
	assert.Equal(t, 1.0, doc.ROIs[0].Shapes[0].(*Point).X)
	assert.Equal(t, "cells", doc.Annotation("Annotation:7").(*TagAnnotation).Value)
}

func TestServerPathAnnotation(t *testing.T) {
	a := NewServerPathAnnotation("Annotation:-1", "dir/a&b.tif")
	p, ok := ServerPath(a)
	require.True(t, ok)
	assert.Equal(t, "dir/a&b.tif", p)
	assert.False(t, IsMetadata(a))

	doc := sampleDocument()
	path, id, ok := doc.ServerPathOf(doc.Images[0].AnnotationRefs)
	require.True(t, ok)
	assert.Equal(t, "a/b/mock_folder", path)
	assert.Equal(t, LocalID("Annotation:-1"), id)
}

func TestMetadataAnnotation(t *testing.T) {
	pairs := []MapPair{{Key: "origin_image_id", Value: "3"}, {Key: "md5", Value: "TBC"}}
	a := NewMetadataAnnotation("Annotation:-2", TransferNamespace, pairs)
	got, ok := Metadata(a)
	require.True(t, ok)
	assert.Equal(t, pairs, got)
	assert.False(t, IsServerPath(a))

	empty := NewMetadataAnnotation("Annotation:-3", TransferNamespace, nil)
	got, ok = Metadata(empty)
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestColor(t *testing.T) {
	c := RGBA(255, 255, 255, 255)
	assert.Equal(t, Color(-1), c)
	r, g, b, a := RGBA(1, 2, 3, 4).Components()
	assert.Equal(t, []uint8{1, 2, 3, 4}, []uint8{r, g, b, a})
}

func TestCommonDir(t *testing.T) {
	tests := []struct {
		paths []string
		want  string
	}{
		{[]string{"a/b/c.tif", "a/b/d.tif"}, "a/b"},
		{[]string{"a/b/c.tif", "a/bc/d.tif"}, "a"},
		{[]string{"a/b/c.tif", "x/d.tif"}, ""},
		{[]string{"a/b/c.tif"}, "a/b"},
		{[]string{"a.tif", "b.tif"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CommonDir(tt.paths), "%v", tt.paths)
	}
}

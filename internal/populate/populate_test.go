package populate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/provenance"
	"github.com/ome/omero-cli-transfer/internal/reconcile"
	"github.com/ome/omero-cli-transfer/internal/server"
	"github.com/ome/omero-cli-transfer/internal/testutil"
)

const destination = `images:
  - name: imported-1
    files: [pkg/a.tif]
  - name: imported-2
    files: [pkg/b.tif]
  - name: imported-3
    files: [pkg/c.tif]
`

// docBuilder assembles small documents by hand.
type docBuilder struct {
	doc   *model.Document
	alloc *model.IDAllocator
}

func newDoc() *docBuilder {
	return &docBuilder{doc: &model.Document{}, alloc: model.NewIDAllocatorFrom(-1000)}
}

func (b *docBuilder) add(a model.Annotation) model.LocalID {
	b.doc.AddAnnotation(a)
	return a.Common().ID
}

func (b *docBuilder) tag(id int64, value string) model.LocalID {
	return b.add(&model.TagAnnotation{AnnotationBase: model.AnnotationBase{ID: model.NewLocalID(model.KindAnnotation, id)}, Value: value})
}

func (b *docBuilder) provenance(imageID int64) model.LocalID {
	return b.add(model.NewMetadataAnnotation(b.alloc.Next(model.KindAnnotation), model.TransferNamespace, []model.MapPair{
		{Key: "origin_image_id", Value: fmt.Sprint(imageID)},
		{Key: "md5", Value: provenance.PendingMD5},
		{Key: "original_user", Value: "alice"},
	}))
}

func (b *docBuilder) path(p string) model.LocalID {
	return b.add(model.NewServerPathAnnotation(b.alloc.Next(model.KindAnnotation), p))
}

func (b *docBuilder) image(id int64, name string, refs ...model.LocalID) *model.Image {
	img := &model.Image{ID: model.NewLocalID(model.KindImage, id), Name: name, AnnotationRefs: refs}
	b.doc.Images = append(b.doc.Images, img)
	return img
}

func (b *docBuilder) dataset(id int64, name string, images ...*model.Image) *model.Dataset {
	ds := &model.Dataset{ID: model.NewLocalID(model.KindDataset, id), Name: name}
	for _, img := range images {
		ds.ImageRefs = append(ds.ImageRefs, img.ID)
	}
	b.doc.Datasets = append(b.doc.Datasets, ds)
	return ds
}

func (b *docBuilder) project(id int64, name string, datasets ...*model.Dataset) *model.Project {
	p := &model.Project{ID: model.NewLocalID(model.KindProject, id), Name: name}
	for _, ds := range datasets {
		p.DatasetRefs = append(p.DatasetRefs, ds.ID)
	}
	b.doc.Projects = append(b.doc.Projects, p)
	return p
}

func annotationsOf(t *testing.T, s *testutil.TestServer, kind server.Kind, id int64) []server.AnnotationInfo {
	t.Helper()
	anns, err := s.Store.Annotations(context.Background(), server.ObjectRef{Kind: kind, ID: id})
	require.NoError(t, err)
	return anns
}

func children(t *testing.T, s *testutil.TestServer, kind server.Kind, id int64) []server.Object {
	t.Helper()
	objs, err := s.Store.Children(context.Background(), server.ObjectRef{Kind: kind, ID: id})
	require.NoError(t, err)
	return objs
}

func TestPopulateProject(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestServer(t).WithFixture(destination).
		WithFile("pkg/file_annotations/77/protocol.txt", "step 1").
		Build()
	dst := s.IDs.Get(server.Image, "imported-1")

	b := newDoc()
	mapAnn := b.add(&model.MapAnnotation{
		AnnotationBase: model.AnnotationBase{ID: "Annotation:5", Namespace: "openmicroscopy.org/omero/client/mapAnnotation"},
		Values:         []model.MapPair{{Key: "stain", Value: "DAPI"}, {Key: "stain", Value: "GFP"}},
	})
	img := b.image(1, "cells.tif", mapAnn, b.provenance(1))
	point := &model.Point{ShapeBase: model.ShapeBase{ID: "Shape:1"}, X: 3, Y: 4}
	b.doc.ROIs = append(b.doc.ROIs, &model.ROI{ID: "ROI:1", Name: "spot", Shapes: []model.Shape{point}})
	img.ROIRefs = []model.LocalID{"ROI:1"}

	ds := b.dataset(10, "Day 1", img)
	ds.AnnotationRefs = []model.LocalID{b.add(&model.FileAnnotation{
		AnnotationBase: model.AnnotationBase{ID: "Annotation:77", AnnotationRefs: []model.LocalID{b.path("file_annotations/77/protocol.txt")}},
		File:           model.BinaryFile{FileName: "protocol.txt", Size: 6},
	})}
	pj := b.project(20, "Screening", ds)
	pj.AnnotationRefs = []model.LocalID{b.tag(6, "pilot")}
	require.NoError(t, b.doc.Validate())

	report, err := Populate(ctx, s.Store, b.doc, reconcile.IdentifierMap{img.ID: dst}, Options{
		Folder: s.Path("pkg"),
		Hash:   "d41d8cd98f00b204e9800998ecf8427e",
	})
	require.NoError(t, err)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 1, report.ROIs)

	info, err := s.Store.Image(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, "cells.tif", info.Name)

	projectID := report.Projects[pj.ID]
	datasets := children(t, s, server.Project, projectID)
	require.Len(t, datasets, 1)
	assert.Equal(t, "Day 1", datasets[0].Name)
	images := children(t, s, server.Dataset, datasets[0].ID)
	require.Len(t, images, 1)
	assert.Equal(t, dst, images[0].ID)

	projectAnns := annotationsOf(t, s, server.Project, projectID)
	require.Len(t, projectAnns, 1)
	assert.Equal(t, "pilot", projectAnns[0].TextValue)

	imageAnns := annotationsOf(t, s, server.Image, dst)
	require.Len(t, imageAnns, 2)
	assert.Equal(t, []server.KeyValue{{Key: "stain", Value: "DAPI"}, {Key: "stain", Value: "GFP"}}, imageAnns[0].MapValue)
	assert.Equal(t, model.TransferNamespace, imageAnns[1].Namespace)
	assert.Equal(t, []server.KeyValue{
		{Key: "origin_image_id", Value: "1"},
		{Key: "md5", Value: "d41d8cd98f00b204e9800998ecf8427e"},
		{Key: "original_user", Value: "alice"},
	}, imageAnns[1].MapValue)

	dsAnns := annotationsOf(t, s, server.Dataset, datasets[0].ID)
	require.Len(t, dsAnns, 1)
	require.NotNil(t, dsAnns[0].File)
	content, err := s.Store.FileContent(ctx, dsAnns[0].File.ID)
	require.NoError(t, err)
	assert.Equal(t, "step 1", string(content))

	rois, err := s.Store.ROIs(ctx, dst)
	require.NoError(t, err)
	require.Len(t, rois, 1)
	require.Len(t, rois[0].Shapes, 1)
	sh := rois[0].Shapes[0]
	assert.Equal(t, server.PointShape, sh.Kind)
	require.NotNil(t, sh.FillColor)
	assert.Equal(t, int32(model.RGBA(0, 0, 0, 0)), *sh.FillColor)
	require.NotNil(t, sh.StrokeColor)
	assert.Equal(t, int32(model.RGBA(255, 255, 255, 255)), *sh.StrokeColor)
	require.NotNil(t, sh.StrokeWidth)
	assert.Equal(t, 1.0, *sh.StrokeWidth)
}

func TestPopulateSkipsUnmappedImages(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestServer(t).WithFixture(destination).Build()
	dst := s.IDs.Get(server.Image, "imported-1")

	b := newDoc()
	mapped := b.image(1, "kept", b.tag(5, "a"))
	lost := b.image(2, "lost", b.tag(6, "b"))
	ds := b.dataset(10, "D", mapped, lost)

	report, err := Populate(ctx, s.Store, b.doc, reconcile.IdentifierMap{mapped.ID: dst}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []model.LocalID{lost.ID}, report.Skipped)

	images := children(t, s, server.Dataset, report.Datasets[ds.ID])
	require.Len(t, images, 1)
	assert.Equal(t, dst, images[0].ID)
}

func TestPopulateMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestServer(t).WithFixture(destination).Build()
	dst := s.IDs.Get(server.Image, "imported-1")

	b := newDoc()
	img := b.image(1, "cells.tif")
	ds := b.dataset(10, "Day 1", img)
	b.project(20, "Screening", ds)
	images := reconcile.IdentifierMap{img.ID: dst}

	first, err := Populate(ctx, s.Store, b.doc, images, Options{Merge: true})
	require.NoError(t, err)
	second, err := Populate(ctx, s.Store, b.doc, images, Options{Merge: true})
	require.NoError(t, err)

	assert.Equal(t, first.Projects, second.Projects)
	assert.Equal(t, first.Datasets, second.Datasets)
	assert.Zero(t, second.Links)
	s.AssertOwnedCount(server.Project, 1)
	s.AssertOwnedCount(server.Dataset, 1)
	assert.Len(t, children(t, s, server.Dataset, first.Datasets[ds.ID]), 1)

	third, err := Populate(ctx, s.Store, b.doc, images, Options{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Projects, third.Projects)
	s.AssertOwnedCount(server.Project, 2)
}

func TestPopulateMergeDatasetLookup(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestServer(t).WithFixture(`projects:
  - name: Screening
    datasets:
      - name: Day 1
      - name: Day 1
datasets:
  - name: Day 1
  - name: Loose
`).Build()

	owned, err := s.Store.OwnedObjects(ctx, server.Dataset, server.ListOptions{})
	require.NoError(t, err)
	require.Len(t, owned, 4)
	inProject, orphan := owned[0].ID, owned[2].ID
	require.Len(t, children(t, s, server.Project, s.IDs.Get(server.Project, "Screening")), 2)

	b := newDoc()
	b.project(20, "Screening", b.dataset(10, "Day 1"))
	b.dataset(11, "Day 1")
	b.dataset(12, "Loose")

	report, err := Populate(ctx, s.Store, b.doc, reconcile.IdentifierMap{}, Options{Merge: true})
	require.NoError(t, err)
	assert.Equal(t, inProject, report.Datasets["Dataset:10"], "lowest id among the project's children")
	assert.Equal(t, orphan, report.Datasets["Dataset:11"])
	assert.Equal(t, s.IDs.Get(server.Dataset, "Loose"), report.Datasets["Dataset:12"])
	assert.Equal(t, s.IDs.Get(server.Project, "Screening"), report.Projects["Project:20"])
}

func plateDoc(b *docBuilder, positions [][2]int) *model.Plate {
	pl := &model.Plate{ID: "Plate:30", Name: "plate-1"}
	for i, pos := range positions {
		img := b.image(int64(i+1), fmt.Sprintf("well-%d", i+1))
		pl.Wells = append(pl.Wells, &model.Well{
			ID:      model.NewLocalID(model.KindWell, int64(100+i)),
			Row:     pos[0],
			Column:  pos[1],
			Samples: []*model.WellSample{{ID: model.NewLocalID(model.KindWellSample, int64(200+i)), ImageRef: img.ID}},
		})
	}
	pl.AnnotationRefs = []model.LocalID{b.provenance(30), b.path("root/2024/1/pkg/c.tif")}
	b.doc.Plates = append(b.doc.Plates, pl)
	return pl
}

func TestPopulatePlateFromImages(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestServer(t).WithFixture(destination).Build()

	b := newDoc()
	pl := plateDoc(b, [][2]int{{0, 0}, {1, 2}})
	pl.Wells[1].AnnotationRefs = []model.LocalID{b.tag(8, "control")}
	screen := &model.Screen{ID: "Screen:40", Name: "HCS", PlateRefs: []model.LocalID{pl.ID}}
	b.doc.Screens = append(b.doc.Screens, screen)

	images := reconcile.IdentifierMap{
		"Image:1": s.IDs.Get(server.Image, "imported-1"),
		"Image:2": s.IDs.Get(server.Image, "imported-2"),
	}
	report, err := Populate(ctx, s.Store, b.doc, images, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.CreatedPlates)

	plateID := report.Plates[pl.ID]
	wells, err := s.Store.Wells(ctx, plateID)
	require.NoError(t, err)
	require.Len(t, wells, 2)
	assert.Equal(t, 1, wells[1].Row)
	assert.Equal(t, 2, wells[1].Column)
	require.Len(t, wells[1].Samples, 1)
	assert.Equal(t, images["Image:2"], wells[1].Samples[0].ImageID)

	wellAnns := annotationsOf(t, s, server.Well, wells[1].ID)
	require.Len(t, wellAnns, 1)
	assert.Equal(t, "control", wellAnns[0].TextValue)

	plateAnns := annotationsOf(t, s, server.Plate, plateID)
	require.Len(t, plateAnns, 1, "origin path is not created")
	assert.Equal(t, server.MapAnnotation, plateAnns[0].Kind)

	plates := children(t, s, server.Screen, report.Screens[screen.ID])
	require.Len(t, plates, 1)
	assert.Equal(t, "plate-1", plates[0].Name)
}

func TestPopulateFindsImportedPlate(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestServer(t).WithFixture(`plates:
  - name: imported.plate
    wells:
      - row: 0
        column: 0
        images:
          - name: field
            files: [hcs/plate.xml]
`).Build()
	existing := s.IDs.Get(server.Plate, "imported.plate")

	b := newDoc()
	pl := &model.Plate{ID: "Plate:30", Name: "Original name"}
	pl.AnnotationRefs = []model.LocalID{b.provenance(30), b.path("/hcs/plate.xml")}
	b.doc.Plates = append(b.doc.Plates, pl)

	report, err := Populate(ctx, s.Store, b.doc, reconcile.IdentifierMap{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, existing, report.Plates[pl.ID])
	assert.Zero(t, report.CreatedPlates)
	obj, err := s.Store.Object(ctx, server.ObjectRef{Kind: server.Plate, ID: existing})
	require.NoError(t, err)
	assert.Equal(t, "Original name", obj.Name)

	// The plate now carries provenance, so a second run creates a new one.
	again, err := Populate(ctx, s.Store, b.doc, reconcile.IdentifierMap{}, Options{})
	require.NoError(t, err)
	assert.NotEqual(t, existing, again.Plates[pl.ID])
}

func TestPopulateWellOccupied(t *testing.T) {
	s := testutil.NewTestServer(t).WithFixture(destination).Build()
	b := newDoc()
	plateDoc(b, [][2]int{{0, 0}, {0, 0}})

	_, err := Populate(context.Background(), s.Store, b.doc, reconcile.IdentifierMap{
		"Image:1": s.IDs.Get(server.Image, "imported-1"),
		"Image:2": s.IDs.Get(server.Image, "imported-2"),
	}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrWellOccupied)
}

func TestPopulateMetadataSelection(t *testing.T) {
	tests := []struct {
		name     string
		metadata provenance.Selection
		want     []server.KeyValue
	}{
		{
			name:     "user only",
			metadata: provenance.Selection{provenance.OrigUser: true},
			want:     []server.KeyValue{{Key: "original_user", Value: "alice"}},
		},
		{
			name:     "none",
			metadata: provenance.Selection{},
			want:     []server.KeyValue{{Key: "empty_metadata", Value: "True"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testutil.NewTestServer(t).WithFixture(destination).Build()
			dst := s.IDs.Get(server.Image, "imported-1")
			b := newDoc()
			img := b.image(1, "x", b.provenance(1))

			_, err := Populate(context.Background(), s.Store, b.doc, reconcile.IdentifierMap{img.ID: dst},
				Options{Metadata: tt.metadata, Hash: "abc"})
			require.NoError(t, err)
			anns := annotationsOf(t, s, server.Image, dst)
			require.Len(t, anns, 1)
			assert.Equal(t, tt.want, anns[0].MapValue)
		})
	}
}

func TestPopulateFigures(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestServer(t).WithFixture(destination).Build()
	dst1 := s.IDs.Get(server.Image, "imported-1")
	dst2 := s.IDs.Get(server.Image, "imported-2")

	figurePath := s.Path("pkg/figures/Figure_9.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(figurePath), 0o755))
	original := `{"panels": [{"imageId": 1}, {"imageId": 12}, {"imageId": 2}]}`

	b := newDoc()
	b.image(1, "one")
	b.image(2, "two")
	b.add(&model.FileAnnotation{
		AnnotationBase: model.AnnotationBase{ID: "Annotation:9", Namespace: model.FigureNamespace,
			AnnotationRefs: []model.LocalID{b.path("figures/Figure_9.json")}},
		File: model.BinaryFile{FileName: "Figure_9.json"},
	})
	images := reconcile.IdentifierMap{"Image:1": dst1, "Image:2": dst2}

	t.Run("skipped without flag", func(t *testing.T) {
		require.NoError(t, os.WriteFile(figurePath, []byte(original), 0o644))
		report, err := Populate(ctx, s.Store, b.doc, images, Options{Folder: s.Path("pkg")})
		require.NoError(t, err)
		assert.NotContains(t, report.Annotations, model.LocalID("Annotation:9"))
	})

	t.Run("patched with flag", func(t *testing.T) {
		require.NoError(t, os.WriteFile(figurePath, []byte(original), 0o644))
		report, err := Populate(ctx, s.Store, b.doc, images, Options{Folder: s.Path("pkg"), IncludeFigures: true})
		require.NoError(t, err)
		require.Contains(t, report.Annotations, model.LocalID("Annotation:9"))

		want := fmt.Sprintf(`{"panels": [{"imageId": %d}, {"imageId": 12}, {"imageId": %d}]}`, dst1, dst2)
		s.AssertFileContains("pkg/figures/Figure_9.json", want)

		figs, err := s.Store.AnnotationsByNamespace(ctx, model.FigureNamespace)
		require.NoError(t, err)
		require.Len(t, figs, 1)
		content, err := s.Store.FileContent(ctx, figs[0].File.ID)
		require.NoError(t, err)
		assert.Equal(t, want, string(content))
	})
}

package builder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/provenance"
	"github.com/ome/omero-cli-transfer/internal/server"
	"github.com/ome/omero-cli-transfer/internal/testutil"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }

func build(t *testing.T, s *testutil.TestServer, root server.ObjectRef, opts Options) *model.Document {
	t.Helper()
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	doc, err := Build(context.Background(), s.Store, root, opts)
	require.NoError(t, err)
	require.NoError(t, doc.Validate())
	return doc
}

// imagePaths returns every origin path of an image in order.
func imagePaths(doc *model.Document, img *model.Image) []string {
	var out []string
	for _, id := range doc.ServerPathAnnotations(img.AnnotationRefs) {
		p, _ := model.ServerPath(doc.Annotation(id))
		out = append(out, p)
	}
	return out
}

func imageNamed(t *testing.T, doc *model.Document, name string) *model.Image {
	t.Helper()
	for _, img := range doc.Images {
		if img.Name == name {
			return img
		}
	}
	t.Fatalf("no image named %q", name)
	return nil
}

func metadataOf(t *testing.T, doc *model.Document, refs []model.LocalID) []model.MapPair {
	t.Helper()
	for _, ref := range refs {
		if pairs, ok := model.Metadata(doc.Annotation(ref)); ok {
			return pairs
		}
	}
	t.Fatal("no provenance annotation")
	return nil
}

func TestBuildProject(t *testing.T) {
	s := testutil.NewTestServer(t).WithFixture(testutil.ProjectFixture()).Build()
	pid := s.IDs.Get(server.Project, "Screening 2024")

	doc := build(t, s, server.ObjectRef{Kind: server.Project, ID: pid}, Options{})

	require.Len(t, doc.Projects, 1)
	p := doc.Projects[0]
	assert.Equal(t, model.NewLocalID(model.KindProject, pid), p.ID)
	assert.Equal(t, "Screening 2024", p.Name)
	require.Len(t, p.DatasetRefs, 2)
	require.Len(t, p.AnnotationRefs, 1)
	comment, ok := doc.Annotation(p.AnnotationRefs[0]).(*model.CommentAnnotation)
	require.True(t, ok)
	assert.Equal(t, "pilot run", comment.Value)

	require.Len(t, doc.Datasets, 2)
	require.Len(t, doc.Images, 3)

	single := imageNamed(t, doc, "a.tif")
	paths := imagePaths(doc, single)
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "root/seed/"), paths[0])
	assert.True(t, strings.HasSuffix(paths[0], "/run1/a.tif"), paths[0])

	multi := imageNamed(t, doc, "series 0")
	paths = imagePaths(doc, multi)
	require.Len(t, paths, 1)
	assert.True(t, strings.HasSuffix(paths[0], "/run1/multi/mock_folder"), paths[0])

	rendered := imageNamed(t, doc, "rendered")
	assert.Equal(t, []string{"pixel_images/" + strconv.FormatInt(rendered.ID.Num(), 10) + ".tiff"},
		imagePaths(doc, rendered))
}

func TestBuildProvenance(t *testing.T) {
	s := testutil.NewTestServer(t).WithFixture(testutil.SingleImageFixture()).Build()
	id := s.IDs.Get(server.Image, "cells.tif")

	doc := build(t, s, server.ObjectRef{Kind: server.Image, ID: id}, Options{Hostname: "source.example.org"})
	img := doc.Images[0]
	pairs := metadataOf(t, doc, img.AnnotationRefs)

	got := map[string]string{}
	var keys []string
	for _, p := range pairs {
		got[p.Key] = p.Value
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"origin_image_id", "packing_timestamp", "software", "version",
		"origin_hostname", "md5", "original_user", "original_group"}, keys)
	assert.Equal(t, strconv.FormatInt(id, 10), got["origin_image_id"])
	assert.Equal(t, "05/03/2024, 14:07:09", got["packing_timestamp"])
	assert.Equal(t, "source.example.org", got["origin_hostname"])
	assert.Equal(t, provenance.PendingMD5, got["md5"])
	assert.Equal(t, "root", got["original_user"])

	t.Run("none writes an empty element", func(t *testing.T) {
		doc := build(t, s, server.ObjectRef{Kind: server.Image, ID: id},
			Options{Metadata: provenance.Selection{}})
		assert.Empty(t, metadataOf(t, doc, doc.Images[0].AnnotationRefs))
	})
}

func TestBuildImageAnnotationsAndROIs(t *testing.T) {
	s := testutil.NewTestServer(t).WithFixture(testutil.SingleImageFixture()).Build()
	id := s.IDs.Get(server.Image, "cells.tif")

	doc := build(t, s, server.ObjectRef{Kind: server.Image, ID: id}, Options{})
	require.Len(t, doc.Images, 1)
	img := doc.Images[0]

	var tags, maps int
	for _, ref := range img.AnnotationRefs {
		switch a := doc.Annotation(ref).(type) {
		case *model.TagAnnotation:
			tags++
			assert.Equal(t, "cells", a.Value)
		case *model.MapAnnotation:
			maps++
			assert.Equal(t, []model.MapPair{{Key: "stain", Value: "DAPI"}}, a.Values)
		}
	}
	assert.Equal(t, 1, tags)
	assert.Equal(t, 1, maps)

	require.Len(t, img.ROIRefs, 2)
	require.Len(t, doc.ROIs, 2)
	ell, ok := doc.ROI(img.ROIRefs[0]).Shapes[0].(*model.Ellipse)
	require.True(t, ok)
	assert.Equal(t, 4.0, ell.RadiusX)
	require.NotNil(t, ell.TheZ)
	assert.Equal(t, 0, *ell.TheZ)
}

func TestBuildDropsUnsupportedShapes(t *testing.T) {
	s := testutil.NewTestServer(t).WithFixture(`images:
  - name: masked
    files: [m.tif]
    rois:
      - name: only-mask
        shapes:
          - {kind: mask, x: 1, y: 1, width: 4, height: 4}
      - name: mixed
        shapes:
          - {kind: mask, x: 1, y: 1, width: 4, height: 4}
          - {kind: point, x: 3, y: 3}
`).Build()
	id := s.IDs.Get(server.Image, "masked")

	doc := build(t, s, server.ObjectRef{Kind: server.Image, ID: id}, Options{})
	require.Len(t, doc.ROIs, 1)
	assert.Equal(t, "mixed", doc.ROIs[0].Name)
	require.Len(t, doc.ROIs[0].Shapes, 1)
	_, ok := doc.ROIs[0].Shapes[0].(*model.Point)
	assert.True(t, ok)
}

func TestBuildFilesetExpansion(t *testing.T) {
	s := testutil.NewTestServer(t).WithFixture(`datasets:
  - name: half
    images:
      - name: series-a
        fileset: lif
        files: [exp/scan.lif, exp/scan.lif.idx]
images:
  - name: series-b
    fileset: lif
`).Build()
	did := s.IDs.Get(server.Dataset, "half")

	doc := build(t, s, server.ObjectRef{Kind: server.Dataset, ID: did}, Options{})
	require.Len(t, doc.Images, 2)
	a := imageNamed(t, doc, "series-a")
	b := imageNamed(t, doc, "series-b")
	assert.Equal(t, imagePaths(doc, a), imagePaths(doc, b))
	assert.True(t, strings.HasSuffix(imagePaths(doc, b)[0], "/exp/mock_folder"))

	// Only the image reached through the dataset is linked to it.
	assert.Equal(t, []model.LocalID{a.ID}, doc.Datasets[0].ImageRefs)
}

func TestBuildDeduplicatesSharedImages(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestServer(t).WithFixture(testutil.ProjectFixture()).Build()
	pid := s.IDs.Get(server.Project, "Screening 2024")
	day2 := s.IDs.Get(server.Dataset, "Day 2")
	imgID := s.IDs.Get(server.Image, "a.tif")
	require.NoError(t, s.Store.Link(ctx,
		server.ObjectRef{Kind: server.Dataset, ID: day2}, server.ObjectRef{Kind: server.Image, ID: imgID}))

	doc := build(t, s, server.ObjectRef{Kind: server.Project, ID: pid}, Options{})
	assert.Len(t, doc.Images, 3)
	ds := doc.Dataset(model.NewLocalID(model.KindDataset, day2))
	require.NotNil(t, ds)
	assert.Contains(t, ds.ImageRefs, model.NewLocalID(model.KindImage, imgID))
}

func TestBuildSimpleLayout(t *testing.T) {
	s := testutil.NewTestServer(t).WithFixture(testutil.ProjectFixture()).Build()
	pid := s.IDs.Get(server.Project, "Screening 2024")
	day1 := s.IDs.Get(server.Dataset, "Day 1")
	day2 := s.IDs.Get(server.Dataset, "Day 2")

	doc := build(t, s, server.ObjectRef{Kind: server.Project, ID: pid}, Options{Simple: true})

	projectDir := fmt.Sprintf("%d_screening-2024", pid)
	day1Dir := fmt.Sprintf("%s/%d_day-1", projectDir, day1)
	day2Dir := fmt.Sprintf("%s/%d_day-2", projectDir, day2)

	assert.Equal(t, []string{day1Dir + "/a.tif"}, imagePaths(doc, imageNamed(t, doc, "a.tif")))
	assert.Equal(t, []string{day1Dir + "/mock_folder"}, imagePaths(doc, imageNamed(t, doc, "series 0")))

	rendered := imageNamed(t, doc, "rendered")
	n := strconv.FormatInt(rendered.ID.Num(), 10)
	assert.Equal(t, []string{day2Dir + "/" + n + ".tiff", "pixel_images/" + n + ".tiff"},
		imagePaths(doc, rendered))

	files := FileMap(doc)
	assert.Equal(t, "pixel_images/"+n+".tiff", files[rendered.ID])
	assert.Equal(t, day1Dir+"/a.tif", files[imageNamed(t, doc, "a.tif").ID])
}

func TestBuildPlate(t *testing.T) {
	s := testutil.NewTestServer(t).WithFixture(`screens:
  - name: HCS
    plates:
      - name: plate-1
        wells:
          - row: 0
            column: 0
            annotations:
              - tag: control
            images:
              - name: A1
                files: [plates/p1/A1.tif]
          - row: 1
            column: 2
            images:
              - name: B3
                files: [plates/p1/B3.tif]
      - name: empty-plate
`).Build()
	sid := s.IDs.Get(server.Screen, "HCS")

	doc := build(t, s, server.ObjectRef{Kind: server.Screen, ID: sid}, Options{})
	require.Len(t, doc.Screens, 1)
	require.Len(t, doc.Plates, 2)
	require.Len(t, doc.Screens[0].PlateRefs, 2)

	pl := doc.Plate(model.NewLocalID(model.KindPlate, s.IDs.Get(server.Plate, "plate-1")))
	require.NotNil(t, pl)
	require.Len(t, pl.Wells, 2)
	assert.Equal(t, 1, pl.Wells[1].Row)
	assert.Equal(t, 2, pl.Wells[1].Column)
	require.Len(t, pl.Wells[0].AnnotationRefs, 1)
	require.Len(t, pl.Wells[0].Samples, 1)

	platePath, _, ok := doc.ServerPathOf(pl.AnnotationRefs)
	require.True(t, ok)
	last := imageNamed(t, doc, "B3")
	assert.Equal(t, imagePaths(doc, last)[0], platePath)

	pairs := metadataOf(t, doc, pl.AnnotationRefs)
	assert.Equal(t, "origin_plate_id", pairs[0].Key)

	empty := doc.Plate(model.NewLocalID(model.KindPlate, s.IDs.Get(server.Plate, "empty-plate")))
	require.NotNil(t, empty)
	_, _, ok = doc.ServerPathOf(empty.AnnotationRefs)
	assert.False(t, ok)
}

func TestBuildNotFound(t *testing.T) {
	s := testutil.NewTestServer(t).Build()
	_, err := Build(context.Background(), s.Store, server.ObjectRef{Kind: server.Project, ID: 404}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBuildFileAnnotation(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestServer(t).WithFixture(testutil.SingleImageFixture()).Build()
	id := s.IDs.Get(server.Image, "cells.tif")
	annID, err := s.Store.CreateFileAnnotation(ctx, "notes.txt", "", "lab notes", []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, s.Store.LinkAnnotation(ctx, server.ObjectRef{Kind: server.Image, ID: id}, annID))

	doc := build(t, s, server.ObjectRef{Kind: server.Image, ID: id}, Options{})
	f, ok := doc.Annotation(model.NewLocalID(model.KindAnnotation, annID)).(*model.FileAnnotation)
	require.True(t, ok)
	assert.Equal(t, int64(5), f.File.Size)
	assert.True(t, strings.HasSuffix(f.File.FileName, "/notes.txt"))

	want := FileAnnotationPath(annID, "notes.txt")
	assert.Equal(t, fmt.Sprintf("file_annotations/%d/notes.txt", annID), want)
	assert.Equal(t, want, FileMap(doc)[f.ID])
}

func TestCollectFigures(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestServer(t).WithFixture(testutil.SingleImageFixture()).Build()
	id := s.IDs.Get(server.Image, "cells.tif")

	related, err := s.Store.CreateFileAnnotation(ctx, "Figure_1.json", model.FigureNamespace, "",
		[]byte(fmt.Sprintf(`{"panels": [{"imageId": %d}]}`, id)))
	require.NoError(t, err)
	_, err = s.Store.CreateFileAnnotation(ctx, "Figure_2.json", model.FigureNamespace, "",
		[]byte(fmt.Sprintf(`{"panels": [{"imageId": %d}]}`, id*10+7)))
	require.NoError(t, err)

	alloc := model.NewIDAllocatorFrom(-1000)
	doc := build(t, s, server.ObjectRef{Kind: server.Image, ID: id}, Options{Allocator: alloc})
	figures, err := CollectFigures(ctx, s.Store, doc, alloc)
	require.NoError(t, err)
	require.NoError(t, doc.Validate())

	require.Len(t, figures, 1)
	assert.Equal(t, model.NewLocalID(model.KindAnnotation, related), figures[0].AnnotationID)
	assert.Equal(t, fmt.Sprintf("figures/Figure_%d.json", related), figures[0].Path)
	assert.Equal(t, figures[0].Path, FileMap(doc)[figures[0].AnnotationID])
}

package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/omexml"
)

func writeFiles(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(rel), 0o644))
	}
}

// projectDoc is a project "Proj" with dataset "DS" holding a single-file
// image (1), two images of one multi-file fileset (2, 3) and an image
// attached to a file annotation.
func projectDoc() *model.Document {
	pathAnn := func(n int64, p string) *model.XMLAnnotation {
		return model.NewServerPathAnnotation(model.NewLocalID(model.KindAnnotation, n), p)
	}
	ann := func(n int64) model.LocalID { return model.NewLocalID(model.KindAnnotation, n) }
	img := func(n int64) model.LocalID { return model.NewLocalID(model.KindImage, n) }

	doc := &model.Document{}
	doc.Annotations = []model.Annotation{
		pathAnn(-1, "u/2024/a.tif"),
		pathAnn(-2, "u/2024/multi/mock_folder"),
		pathAnn(-3, "u/2024/multi/mock_folder"),
		pathAnn(-4, "file_annotations/40/notes.txt"),
		&model.CommentAnnotation{AnnotationBase: model.AnnotationBase{ID: ann(10)}, Value: "looks good"},
		&model.MapAnnotation{AnnotationBase: model.AnnotationBase{ID: ann(11)}, Values: []model.MapPair{
			{Key: "stain", Value: "DAPI"}, {Key: "organism", Value: "mouse"},
		}},
		&model.FileAnnotation{
			AnnotationBase: model.AnnotationBase{ID: ann(40), AnnotationRefs: []model.LocalID{ann(-4)}},
			File:           model.BinaryFile{FileName: "notes.txt"},
		},
	}
	doc.Images = []*model.Image{
		{ID: img(1), Name: "a.tif", AnnotationRefs: []model.LocalID{ann(10), ann(11), ann(40), ann(-1)}},
		{ID: img(2), Name: "scan [0]", AnnotationRefs: []model.LocalID{ann(-2)}},
		{ID: img(3), Name: "scan [1]", AnnotationRefs: []model.LocalID{ann(-3)}},
	}
	doc.Datasets = []*model.Dataset{{ID: "Dataset:5", Name: "DS", ImageRefs: []model.LocalID{img(1), img(2), img(3)}}}
	doc.Projects = []*model.Project{{ID: "Project:4", Name: "Proj", DatasetRefs: []model.LocalID{"Dataset:5"}}}
	return doc
}

func projectFiles() map[model.LocalID]string {
	return map[model.LocalID]string{
		"Image:1":       "u/2024/a.tif",
		"Image:2":       "u/2024/multi/mock_folder",
		"Image:3":       "u/2024/multi/mock_folder",
		"Annotation:40": "file_annotations/40/notes.txt",
	}
}

func readTSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = '\t'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSubmission(t *testing.T) {
	folder := t.TempDir()
	writeFiles(t, folder,
		"u/2024/a.tif",
		"u/2024/multi/scan.lif",
		"u/2024/multi/sub/scan.meta",
		"file_annotations/40/notes.txt",
	)

	require.NoError(t, Submission(folder, projectDoc(), model.KindProject, projectFiles()))

	rows := readTSV(t, filepath.Join(folder, SubmissionFile))
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"filename", "data_type", "comment", "stain", "organism", "original_omero_ids"}, rows[0])
	assert.Equal(t, []string{"Proj/DS/a.tif", "Image", "looks good", "DAPI", "mouse", "1"}, rows[1])
	assert.Equal(t, []string{"Proj/DS/scan.lif", "Image", " ", " ", " ", "2, 3"}, rows[2])
	assert.Equal(t, []string{"Proj/DS/sub/scan.meta", "Image", " ", " ", " ", "2, 3"}, rows[3])
	assert.Equal(t, []string{"file_annotations/40/notes.txt", "File Annotation", " ", " ", " ", "1"}, rows[4])

	for _, rel := range []string{"Proj/DS/a.tif", "Proj/DS/scan.lif", "Proj/DS/sub/scan.meta", "file_annotations/40/notes.txt"} {
		assert.FileExists(t, filepath.Join(folder, filepath.FromSlash(rel)))
	}
	assert.NoDirExists(t, filepath.Join(folder, "u"), "emptied source folders are removed")
}

func TestSubmissionDatasetRoot(t *testing.T) {
	folder := t.TempDir()
	writeFiles(t, folder, "u/2024/a.tif")
	doc := projectDoc()
	doc.Projects = nil
	files := map[model.LocalID]string{"Image:1": "u/2024/a.tif"}

	require.NoError(t, Submission(folder, doc, model.KindDataset, files))
	rows := readTSV(t, filepath.Join(folder, SubmissionFile))
	require.Len(t, rows, 2)
	assert.Equal(t, "DS/a.tif", rows[1][0])
	assert.FileExists(t, filepath.Join(folder, "DS", "a.tif"))
}

func TestSubmissionRejectsOtherRoots(t *testing.T) {
	for _, kind := range []model.Kind{model.KindImage, model.KindPlate, model.KindScreen} {
		err := Submission(t.TempDir(), projectDoc(), kind, projectFiles())
		assert.Error(t, err, kind)
	}
}

func TestSimpleLayout(t *testing.T) {
	folder := t.TempDir()
	writeFiles(t, folder, "pixel_images/7.tiff", "1_proj/2_ds/a.tif")

	ann := func(n int64) model.LocalID { return model.NewLocalID(model.KindAnnotation, n) }
	doc := &model.Document{
		Annotations: []model.Annotation{
			model.NewServerPathAnnotation(ann(-1), "1_proj/2_ds/7.tiff"),
			model.NewServerPathAnnotation(ann(-2), "pixel_images/7.tiff"),
			model.NewServerPathAnnotation(ann(-3), "1_proj/2_ds/a.tif"),
		},
		Images: []*model.Image{
			{ID: "Image:7", Name: "rendered", AnnotationRefs: []model.LocalID{ann(-1), ann(-2)}},
			{ID: "Image:8", Name: "a.tif", AnnotationRefs: []model.LocalID{ann(-3)}},
		},
	}

	out, err := SimpleLayout(folder, doc)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(folder, "1_proj", "2_ds", "7.tiff"))
	assert.NoDirExists(t, filepath.Join(folder, model.PixelImagesDir))
	assert.Len(t, doc.Annotations, 3, "input document is untouched")

	require.Len(t, out.Annotations, 2)
	p, _, ok := out.ServerPathOf(out.Image("Image:7").AnnotationRefs)
	require.True(t, ok)
	assert.Equal(t, "1_proj/2_ds/7.tiff", p)

	written, err := omexml.ReadFile(filepath.Join(folder, omexml.DocumentFile))
	require.NoError(t, err)
	assert.Len(t, written.Annotations, 2)
}

func TestROCrate(t *testing.T) {
	folder := t.TempDir()
	writeFiles(t, folder, "u/2024/multi/scan.lif", "u/2024/multi/scan.png")
	doc := projectDoc()
	files := projectFiles()
	files["Image:1"] = "u/2024/a.unknownext"

	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	require.NoError(t, ROCrate(folder, doc, files, CrateOptions{Name: "Proj", Now: now}))

	data, err := os.ReadFile(filepath.Join(folder, CrateFile))
	require.NoError(t, err)
	var c crate
	require.NoError(t, json.Unmarshal(data, &c))

	assert.Equal(t, crateContext, c.Context)
	require.Len(t, c.Graph, 5)
	assert.Equal(t, CrateFile, c.Graph[0].ID)
	root := c.Graph[1]
	assert.Equal(t, "Dataset", root.Type)
	assert.Equal(t, "Proj", root.Name)
	assert.Equal(t, "2024-03-05T14:07:09Z", root.DatePublished)
	assert.Len(t, root.HasPart, 3)

	byID := map[string]crateEntity{}
	for _, e := range c.Graph[2:] {
		assert.Equal(t, "File", e.Type)
		byID[e.ID] = e
	}
	assert.Equal(t, "a.tif", byID["u/2024/a.unknownext"].Name)
	assert.Equal(t, "image", byID["u/2024/a.unknownext"].EncodingFormat)
	assert.True(t, strings.HasPrefix(byID["u/2024/multi/scan.png"].EncodingFormat, "image/png"))
	assert.Equal(t, "scan [0]", byID["u/2024/multi/scan.lif"].Name, "fileset files are named after the first image")
}

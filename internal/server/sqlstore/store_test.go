package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/importer"
	"github.com/ome/omero-cli-transfer/internal/server"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(context.Background(), Options{
		DSN:        filepath.Join(dir, "db.sqlite"),
		Repository: filepath.Join(dir, "repo"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenKeepsDatabaseID(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := Options{DSN: filepath.Join(dir, "db.sqlite"), Repository: filepath.Join(dir, "repo")}

	st, err := Open(ctx, opts)
	require.NoError(t, err)
	first, err := st.Session(ctx)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(ctx, opts)
	require.NoError(t, err)
	defer st.Close()
	second, err := st.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.DatabaseID, second.DatabaseID)
	assert.Equal(t, "root", second.User)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle", Repository: t.TempDir()})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestObjectNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Object(context.Background(), server.ObjectRef{Kind: server.Project, ID: 99})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = st.Object(context.Background(), server.ObjectRef{Kind: server.Image, ID: 99})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLinkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	p, err := st.CreateContainer(ctx, server.Project, "P", "")
	require.NoError(t, err)
	d, err := st.CreateContainer(ctx, server.Dataset, "D", "")
	require.NoError(t, err)

	parent := server.ObjectRef{Kind: server.Project, ID: p}
	child := server.ObjectRef{Kind: server.Dataset, ID: d}
	require.NoError(t, st.Link(ctx, parent, child))
	require.NoError(t, st.Link(ctx, parent, child))

	children, err := st.Children(ctx, parent)
	require.NoError(t, err)
	assert.Len(t, children, 1)

	err = st.Link(ctx, child, parent)
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestOwnedObjectsOrphaned(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	p, _ := st.CreateContainer(ctx, server.Project, "P", "")
	linked, _ := st.CreateContainer(ctx, server.Dataset, "linked", "")
	orphan, _ := st.CreateContainer(ctx, server.Dataset, "orphan", "")
	require.NoError(t, st.Link(ctx, server.ObjectRef{Kind: server.Project, ID: p}, server.ObjectRef{Kind: server.Dataset, ID: linked}))
	_, err := st.AsUser("someone-else").CreateContainer(ctx, server.Dataset, "foreign", "")
	require.NoError(t, err)

	all, err := st.OwnedObjects(ctx, server.Dataset, server.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	orphans, err := st.OwnedObjects(ctx, server.Dataset, server.ListOptions{Orphaned: true})
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, orphan, orphans[0].ID)
}

func TestCreateWellOccupied(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	plate, _ := st.CreateContainer(ctx, server.Plate, "PL", "")
	img, err := st.CreateImage(ctx, "i", "", 0, server.PixelsInfo{})
	require.NoError(t, err)

	_, err = st.CreateWell(ctx, plate, 1, 2, []int64{img})
	require.NoError(t, err)
	_, err = st.CreateWell(ctx, plate, 1, 2, nil)
	require.ErrorIs(t, err, apperrors.ErrWellOccupied)

	wells, err := st.Wells(ctx, plate)
	require.NoError(t, err)
	require.Len(t, wells, 1)
	assert.Equal(t, img, wells[0].Samples[0].ImageID)
}

func TestImportAndFind(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	src := t.TempDir()
	folder := filepath.Join(src, "multi")
	require.NoError(t, os.MkdirAll(folder, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "a.tif"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "b.tif"), []byte("b"), 0o644))

	require.NoError(t, st.Import(ctx, folder, importer.ImportOptions{}))

	prefix := strings.TrimPrefix(filepath.ToSlash(folder), "/")
	ids, err := st.ImageIDsByClientPath(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	img, err := st.Image(ctx, ids[0])
	require.NoError(t, err)
	members, err := st.FilesetImages(ctx, img.FilesetID)
	require.NoError(t, err)
	assert.Equal(t, ids, members)

	dest := t.TempDir()
	require.NoError(t, st.Download(ctx, server.ObjectRef{Kind: server.Image, ID: ids[0]}, dest))
	data, err := os.ReadFile(filepath.Join(dest, "b.tif"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestImportMissingPath(t *testing.T) {
	st := newTestStore(t)
	err := st.Import(context.Background(), filepath.Join(t.TempDir(), "nope"), importer.ImportOptions{})
	require.ErrorIs(t, err, apperrors.ErrSubprocess)
}

func TestAnnotationsAndROIs(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	img, _ := st.CreateImage(ctx, "i", "", 0, server.PixelsInfo{SizeX: 4})
	ref := server.ObjectRef{Kind: server.Image, ID: img}

	tag, err := st.CreateAnnotation(ctx, server.AnnotationInfo{Kind: server.TagAnnotation, TextValue: "t"})
	require.NoError(t, err)
	require.NoError(t, st.LinkAnnotation(ctx, ref, tag))
	require.NoError(t, st.LinkAnnotation(ctx, ref, tag))

	_, err = st.CreateAnnotation(ctx, server.AnnotationInfo{Kind: server.FileAnnotation})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)

	z := 2
	_, err = st.CreateROI(ctx, img, server.ROIInfo{Name: "r", Shapes: []server.ShapeInfo{
		{Kind: server.RectangleShape, X: 1, Y: 2, Width: 3, Height: 4, TheZ: &z},
	}})
	require.NoError(t, err)

	anns, err := st.Annotations(ctx, ref)
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, "t", anns[0].TextValue)

	rois, err := st.ROIs(ctx, img)
	require.NoError(t, err)
	require.Len(t, rois, 1)
	sh := rois[0].Shapes[0]
	assert.Equal(t, 3.0, sh.Width)
	require.NotNil(t, sh.TheZ)
	assert.Equal(t, 2, *sh.TheZ)

	require.NoError(t, st.Delete(ctx, server.ObjectRef{Kind: server.ROI, ID: rois[0].ID}, false))
	rois, err = st.ROIs(ctx, img)
	require.NoError(t, err)
	assert.Empty(t, rois)
}

func TestDeleteCascade(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	p, _ := st.CreateContainer(ctx, server.Project, "P", "")
	d, _ := st.CreateContainer(ctx, server.Dataset, "D", "")
	img, _ := st.CreateImage(ctx, "i", "", 0, server.PixelsInfo{})
	pref := server.ObjectRef{Kind: server.Project, ID: p}
	dref := server.ObjectRef{Kind: server.Dataset, ID: d}
	require.NoError(t, st.Link(ctx, pref, dref))
	require.NoError(t, st.Link(ctx, dref, server.ObjectRef{Kind: server.Image, ID: img}))

	require.NoError(t, st.Delete(ctx, pref, true))

	_, err := st.Object(ctx, dref)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = st.Image(ctx, img)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

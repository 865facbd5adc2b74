package cli

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/omexml"
	"github.com/ome/omero-cli-transfer/internal/provenance"
	"github.com/ome/omero-cli-transfer/internal/reconcile"
)

func TestBinariesFlag(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{in: "all", want: false},
		{in: "", want: false},
		{in: "none", want: true},
		{in: "some", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := binariesFlag(tt.in)
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrInvalidInput) {
					t.Fatalf("expected invalid input, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("binariesFlag(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

func TestMetadataSelection(t *testing.T) {
	sel, err := metadataSelection(nil, nil)
	if err != nil || sel != nil {
		t.Fatalf("expected nil selection without flag or config, got %v, %v", sel, err)
	}

	sel, err = metadataSelection(nil, []string{"orig_user"})
	if err != nil {
		t.Fatal(err)
	}
	if !sel.Has(provenance.OrigUser) || sel.Has(provenance.Hostname) {
		t.Fatalf("expected configured fields, got %v", sel.Names())
	}

	sel, err = metadataSelection([]string{"hostname"}, []string{"orig_user"})
	if err != nil {
		t.Fatal(err)
	}
	if !sel.Has(provenance.Hostname) || sel.Has(provenance.OrigUser) {
		t.Fatalf("expected flag to win over config, got %v", sel.Names())
	}

	if _, err := metadataSelection([]string{"colour"}, nil); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected unknown field to be rejected, got %v", err)
	}
}

func writePackage(t *testing.T) string {
	t.Helper()
	ann := func(n int64) model.LocalID { return model.NewLocalID(model.KindAnnotation, n) }
	img := func(n int64) model.LocalID { return model.NewLocalID(model.KindImage, n) }
	doc := &model.Document{
		Creator: "omero-cli-transfer test",
		Annotations: []model.Annotation{
			model.NewServerPathAnnotation(ann(-1), "root/a.tif"),
			model.NewServerPathAnnotation(ann(-2), "root/multi/"+model.MockFolder),
			model.NewServerPathAnnotation(ann(-3), "root/multi/"+model.MockFolder),
		},
		Images: []*model.Image{
			{ID: img(1), Name: "a.tif", AnnotationRefs: []model.LocalID{ann(-1)}},
			{ID: img(2), Name: "scan [0]", AnnotationRefs: []model.LocalID{ann(-2)}},
			{ID: img(3), Name: "scan [1]", AnnotationRefs: []model.LocalID{ann(-3)}},
			{ID: img(4), Name: "orphan"},
		},
		Datasets: []*model.Dataset{{ID: "Dataset:5", Name: "DS", ImageRefs: []model.LocalID{img(1), img(2), img(3), img(4)}}},
	}
	folder := t.TempDir()
	if err := omexml.WriteFile(filepath.Join(folder, omexml.DocumentFile), doc); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return folder
}

func TestInspectPackage(t *testing.T) {
	folder := writePackage(t)

	in, err := inspectPackage(folder)
	if err != nil {
		t.Fatalf("inspectPackage: %v", err)
	}
	if in.Counts["images"] != 4 || in.Counts["datasets"] != 1 || in.Counts["annotations"] != 3 {
		t.Fatalf("unexpected counts: %v", in.Counts)
	}
	want := []packageFile{{Path: "root/a.tif", Images: 1}, {Path: "root/multi/", Images: 2}}
	if len(in.Files) != len(want) {
		t.Fatalf("files = %+v, want %+v", in.Files, want)
	}
	for i := range want {
		if in.Files[i] != want[i] {
			t.Fatalf("files[%d] = %+v, want %+v", i, in.Files[i], want[i])
		}
	}
	if len(in.Unplaced) != 1 || in.Unplaced[0] != "Image:4" {
		t.Fatalf("unplaced = %v", in.Unplaced)
	}

	md := in.markdown()
	for _, s := range []string{"| images | 4 |", "| root/multi/ | 2 |", "Image:4 have no origin path"} {
		if !strings.Contains(md, s) {
			t.Errorf("markdown missing %q:\n%s", s, md)
		}
	}

	byFile, err := inspectPackage(filepath.Join(folder, omexml.DocumentFile))
	if err != nil || len(byFile.Files) != 2 {
		t.Fatalf("inspecting transfer.xml directly: %+v, %v", byFile, err)
	}
}

func TestInspectPackageMissing(t *testing.T) {
	_, err := inspectPackage(t.TempDir())
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for a folder without transfer.xml, got %v", err)
	}
}

func TestSkipReporting(t *testing.T) {
	skips := []reconcile.Skip{
		{Path: "run/scan.lif", Reason: reconcile.ReasonCountMismatch, Source: []int64{1}, Destination: []int64{7, 8}},
		{Path: "run/a.tif", Reason: reconcile.ReasonNotImported, Source: []int64{2}},
	}
	warnings := skipWarnings(skips)
	if len(warnings) != 2 || warnings[0].Code != WarnImageSkipped || warnings[0].Path != "run/scan.lif" {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}

	out := skipsTable(skips)
	if strings.Index(out, "run/a.tif") > strings.Index(out, "run/scan.lif") {
		t.Fatalf("expected rows sorted by path:\n%s", out)
	}
	if !strings.Contains(out, "1 packed, 2 imported") {
		t.Fatalf("expected counts in reason column:\n%s", out)
	}
}

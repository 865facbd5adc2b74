package archive

import (
	"archive/tar"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	files := map[string]string{
		"transfer.xml":             "<OME/>",
		"root/2024-01/1/a.tif":     "pixels",
		"pixel_images/12.tiff":     "tiff",
		"file_annotations/3/n.txt": "notes",
		"figures/Figure_4.json":    `{"imageId": 1}`,
	}
	for _, format := range []Format{Tar, Zip} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			src := filepath.Join(dir, "pkg_folder")
			writeTree(t, src, files)

			dest := filepath.Join(dir, "pkg"+format.Ext())
			if err := Create(ctx, src, dest, format); err != nil {
				t.Fatalf("Create: %v", err)
			}
			out := filepath.Join(dir, "out")
			if err := Extract(ctx, dest, out); err != nil {
				t.Fatalf("Extract: %v", err)
			}
			for rel, want := range files {
				got, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(rel)))
				if err != nil {
					t.Fatalf("missing %s: %v", rel, err)
				}
				if string(got) != want {
					t.Errorf("%s = %q, want %q", rel, got, want)
				}
			}
		})
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"pkg.tar", Tar, false},
		{"pkg.ZIP", Zip, false},
		{"pkg.tar.gz", "", true},
		{"pkg", "", true},
	}
	for _, tt := range tests {
		got, err := FormatOf(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("FormatOf(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("FormatOf(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.tar")
	f, err := os.Create(src)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(f)
	body := []byte("x")
	if err := tw.WriteHeader(&tar.Header{Name: "../escape.txt", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(body); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	f.Close()

	err = Extract(context.Background(), src, filepath.Join(dir, "out"))
	if !errors.Is(err, apperrors.ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); err == nil {
		t.Fatal("entry escaped the output folder")
	}
}

func TestMD5(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := MD5(p)
	if err != nil {
		t.Fatal(err)
	}
	if got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("MD5 = %s", got)
	}

	if _, err := MD5(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

// Package archive writes and reads the tar and zip files packages travel
// in.
package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/atomicfile"
)

// Format is an archive container format.
type Format string

const (
	Tar Format = "tar"
	Zip Format = "zip"
)

// Ext returns the file extension of f, with the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// FormatOf returns the format implied by a file name.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tar":
		return Tar, nil
	case ".zip":
		return Zip, nil
	}
	return "", fmt.Errorf("%w: %s is not a zip or tar file", apperrors.ErrInvalidInput, name)
}

// Create writes the contents of folder, relative to it, into an archive
// at dest.
func Create(ctx context.Context, folder, dest string, format Format) error {
	var files []string
	err := filepath.WalkDir(folder, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", folder, err)
	}

	pr, pw := io.Pipe()
	go func() {
		var err error
		switch format {
		case Tar:
			err = writeTar(pw, folder, files)
		case Zip:
			err = writeZip(pw, folder, files)
		default:
			err = fmt.Errorf("%w: unknown archive format %q", apperrors.ErrInvalidInput, format)
		}
		pw.CloseWithError(err)
	}()
	if err := atomicfile.WriteFrom(dest, pr, 0o644); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

func writeTar(w io.Writer, folder string, files []string) error {
	tw := tar.NewWriter(w)
	for _, p := range files {
		st, err := os.Stat(p)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(st, "")
		if err != nil {
			return err
		}
		if hdr.Name, err = relName(folder, p); err != nil {
			return err
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if err := copyFile(tw, p); err != nil {
			return err
		}
	}
	return tw.Close()
}

func writeZip(w io.Writer, folder string, files []string) error {
	zw := zip.NewWriter(w)
	for _, p := range files {
		st, err := os.Stat(p)
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(st)
		if err != nil {
			return err
		}
		if hdr.Name, err = relName(folder, p); err != nil {
			return err
		}
		hdr.Method = zip.Deflate
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if err := copyFile(fw, p); err != nil {
			return err
		}
	}
	return zw.Close()
}

func relName(folder, p string) (string, error) {
	rel, err := filepath.Rel(folder, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func copyFile(w io.Writer, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Extract unpacks the archive at src into dest. Entries that would land
// outside dest are rejected.
func Extract(ctx context.Context, src, dest string) error {
	format, err := FormatOf(src)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	switch format {
	case Zip:
		return extractZip(ctx, src, dest)
	default:
		return extractTar(ctx, src, dest)
	}
}

// target resolves an entry name below dest.
func target(dest, name string) (string, error) {
	p := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: archive entry %q escapes the output folder", apperrors.ErrCorruptDocument, name)
	}
	return p, nil
}

func extractTar(ctx context.Context, src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	tr := tar.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", apperrors.ErrCorruptDocument, src, err)
		}
		p, err := target(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(p, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := atomicfile.WriteFrom(p, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		}
	}
}

func extractZip(ctx context.Context, src, dest string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", apperrors.ErrCorruptDocument, src, err)
	}
	defer zr.Close()
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := target(dest, zf.Name)
		if err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractZipFile(zf, p); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(zf *zip.File, p string) error {
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrCorruptDocument, zf.Name, err)
	}
	defer rc.Close()
	return atomicfile.WriteFrom(p, rc, zf.Mode().Perm())
}

// MD5 returns the hex md5 digest of a file.
func MD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

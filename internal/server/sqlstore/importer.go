package sqlstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/atomicfile"
	"github.com/ome/omero-cli-transfer/internal/importer"
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/server"
)

var _ importer.Importer = (*Store)(nil)

// placeholderTIFF is a little-endian TIFF header with an empty IFD. The
// store keeps no pixel data, so exports carry no planes.
var placeholderTIFF = []byte{'I', 'I', 42, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0}

// Import registers a file or every file below a directory as one fileset
// with one image per file. Files are copied into the repository, or
// symlinked when opts.InPlace is set.
func (s *Store) Import(ctx context.Context, target string, opts importer.ImportOptions) error {
	abs, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrSubprocess, err)
	}
	if len(opts.Skip) > 0 {
		s.logger.Debug("local import ignores skip options", zap.Strings("skip", opts.Skip))
	}

	var files []string
	root := filepath.Dir(abs)
	if st.IsDir() {
		root = abs
		err := filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrSubprocess, err)
		}
		sort.Strings(files)
	} else {
		files = []string{abs}
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: nothing to import in %s", apperrors.ErrSubprocess, target)
	}

	filesetID, err := s.insert(ctx, `INSERT INTO filesets (owner) VALUES (?)`, s.user)
	if err != nil {
		return fmt.Errorf("create fileset: %w", err)
	}
	dir := path.Join(s.user, time.Now().UTC().Format("2006-01"), strconv.FormatInt(filesetID, 10))

	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			return err
		}
		fileDir := path.Join(dir, filepath.ToSlash(filepath.Dir(rel)))
		name := filepath.Base(f)
		if err := s.place(f, s.repoPath(fileDir, name), opts.InPlace); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrSubprocess, err)
		}
		fst, err := os.Stat(f)
		if err != nil {
			return err
		}
		fileID, err := s.insert(ctx,
			`INSERT INTO original_files (path, name, size, owner) VALUES (?, ?, ?, ?)`,
			fileDir, name, fst.Size(), s.user)
		if err != nil {
			return fmt.Errorf("register file: %w", err)
		}
		clientPath := strings.TrimPrefix(filepath.ToSlash(f), "/")
		if _, err := s.exec(ctx,
			`INSERT INTO fileset_entries (fileset_id, original_file_id, client_path) VALUES (?, ?, ?)`,
			filesetID, fileID, clientPath); err != nil {
			return fmt.Errorf("register fileset entry: %w", err)
		}
		if _, err := s.insert(ctx,
			`INSERT INTO images (name, owner, fileset_id) VALUES (?, ?, ?)`,
			name, s.user, filesetID); err != nil {
			return fmt.Errorf("create image: %w", err)
		}
	}
	s.logger.Info("imported", zap.String("path", target), zap.Int("files", len(files)), zap.Int64("fileset", filesetID))
	return nil
}

func (s *Store) place(src, dst string, link bool) error {
	if !link {
		return atomicfile.CopyFile(dst, src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Symlink(src, dst)
}

func (s *Store) ExportImage(ctx context.Context, imageID int64, dest string) error {
	if _, err := s.Image(ctx, imageID); err != nil {
		return err
	}
	return atomicfile.WriteFile(dest, placeholderTIFF, 0o644)
}

// Download copies the files of an image's fileset into the directory dest,
// keeping their layout relative to the fileset's common directory, or the
// file of a file annotation to the path dest.
func (s *Store) Download(ctx context.Context, ref server.ObjectRef, dest string) error {
	switch ref.Kind {
	case server.Image:
		img, err := s.Image(ctx, ref.ID)
		if err != nil {
			return err
		}
		if img.FilesetID == 0 {
			return fmt.Errorf("%w: image %d has no original files", apperrors.ErrSubprocess, ref.ID)
		}
		files, _, err := s.filesetFiles(ctx, img.FilesetID)
		if err != nil {
			return err
		}
		paths := make([]string, len(files))
		for i, f := range files {
			paths[i] = path.Join(f.Path, f.Name)
		}
		common := model.CommonDir(paths)
		for i, f := range files {
			rel := strings.TrimPrefix(strings.TrimPrefix(paths[i], common), "/")
			if err := atomicfile.CopyFile(filepath.Join(dest, filepath.FromSlash(rel)), s.repoPath(f.Path, f.Name)); err != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrSubprocess, err)
			}
		}
		return nil
	case server.Annotation:
		var dir, name string
		err := s.queryRow(ctx, `
			SELECT f.path, f.name FROM annotations a JOIN original_files f ON f.id = a.file_id
			WHERE a.id = ?`, ref.ID).Scan(&dir, &name)
		if err != nil {
			return fmt.Errorf("%w: FileAnnotation:%d", apperrors.ErrNotFound, ref.ID)
		}
		if err := atomicfile.CopyFile(dest, s.repoPath(dir, name)); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrSubprocess, err)
		}
		return nil
	}
	return fmt.Errorf("%w: cannot download a %s", apperrors.ErrInvalidInput, ref.Kind)
}

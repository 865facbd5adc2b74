package sqlstore

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/ome/omero-cli-transfer/internal/atomicfile"
	"github.com/ome/omero-cli-transfer/internal/server"
)

// SeedFile is one original file of a seeded fileset.
type SeedFile struct {
	// Path is relative to the fileset directory, e.g. "run1/a.tif".
	Path    string
	Content []byte
}

// CreateFileset stores files under "<user>/seed/<fileset id>/" in the
// repository and returns the new fileset id.
func (s *Store) CreateFileset(ctx context.Context, files []SeedFile) (int64, error) {
	filesetID, err := s.insert(ctx, `INSERT INTO filesets (owner) VALUES (?)`, s.user)
	if err != nil {
		return 0, fmt.Errorf("create fileset: %w", err)
	}
	base := path.Join(s.user, "seed", strconv.FormatInt(filesetID, 10))
	for _, f := range files {
		rel := path.Clean(strings.TrimPrefix(f.Path, "/"))
		dir, name := path.Split(path.Join(base, rel))
		dir = strings.TrimSuffix(dir, "/")
		if err := atomicfile.WriteFile(s.repoPath(dir, name), f.Content, 0o644); err != nil {
			return 0, err
		}
		fileID, err := s.insert(ctx,
			`INSERT INTO original_files (path, name, size, owner) VALUES (?, ?, ?, ?)`,
			dir, name, len(f.Content), s.user)
		if err != nil {
			return 0, fmt.Errorf("register file: %w", err)
		}
		if _, err := s.exec(ctx,
			`INSERT INTO fileset_entries (fileset_id, original_file_id, client_path) VALUES (?, ?, ?)`,
			filesetID, fileID, path.Join("seed", strconv.FormatInt(filesetID, 10), rel)); err != nil {
			return 0, fmt.Errorf("register fileset entry: %w", err)
		}
	}
	return filesetID, nil
}

// CreateImage inserts an image. filesetID 0 means no backing files.
func (s *Store) CreateImage(ctx context.Context, name, description string, filesetID int64, px server.PixelsInfo) (int64, error) {
	var fileset any
	if filesetID != 0 {
		fileset = filesetID
	}
	if px.DimensionOrder == "" {
		px.DimensionOrder = "XYZCT"
	}
	if px.Type == "" {
		px.Type = "uint8"
	}
	for _, v := range []*int{&px.SizeX, &px.SizeY, &px.SizeZ, &px.SizeC, &px.SizeT} {
		if *v == 0 {
			*v = 1
		}
	}
	id, err := s.insert(ctx, `
		INSERT INTO images (name, description, owner, fileset_id, dimension_order, pixel_type,
		                    size_x, size_y, size_z, size_c, size_t)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, description, s.user, fileset, px.DimensionOrder, px.Type,
		px.SizeX, px.SizeY, px.SizeZ, px.SizeC, px.SizeT)
	if err != nil {
		return 0, fmt.Errorf("create image: %w", err)
	}
	return id, nil
}

// CreateFileAnnotation stores content as an original file and wraps it in
// a file annotation.
func (s *Store) CreateFileAnnotation(ctx context.Context, name, namespace, description string, content []byte) (int64, error) {
	dir := path.Join(s.user, "files")
	id, err := s.insert(ctx,
		`INSERT INTO original_files (path, name, size, owner) VALUES (?, ?, ?, ?)`,
		dir, name, len(content), s.user)
	if err != nil {
		return 0, fmt.Errorf("register file: %w", err)
	}
	dir = path.Join(dir, strconv.FormatInt(id, 10))
	if _, err := s.exec(ctx, `UPDATE original_files SET path = ? WHERE id = ?`, dir, id); err != nil {
		return 0, err
	}
	if err := atomicfile.WriteFile(s.repoPath(dir, name), content, 0o644); err != nil {
		return 0, err
	}
	return s.CreateAnnotation(ctx, server.AnnotationInfo{
		Kind:        server.FileAnnotation,
		Namespace:   namespace,
		Description: description,
		File:        &server.FileInfo{ID: id, Path: dir, Name: name, Size: int64(len(content))},
	})
}

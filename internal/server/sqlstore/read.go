package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/server"
	"github.com/ome/omero-cli-transfer/internal/sqlutil"
)

func isContainer(kind server.Kind) bool {
	switch kind {
	case server.Project, server.Dataset, server.Screen, server.Plate:
		return true
	}
	return false
}

func notFound(ref server.ObjectRef) error {
	return fmt.Errorf("%w: %s", apperrors.ErrNotFound, ref)
}

func (s *Store) Session(ctx context.Context) (server.SessionInfo, error) {
	return server.SessionInfo{
		User:       s.user,
		Group:      s.group,
		DatabaseID: s.dbID,
		Hostname:   s.hostname,
	}, nil
}

func (s *Store) Object(ctx context.Context, ref server.ObjectRef) (server.Object, error) {
	if ref.Kind == server.Image {
		img, err := s.Image(ctx, ref.ID)
		return img.Object, err
	}
	if !isContainer(ref.Kind) {
		return server.Object{}, fmt.Errorf("%w: unsupported object type %s", apperrors.ErrInvalidInput, ref.Kind)
	}
	obj := server.Object{Kind: ref.Kind, ID: ref.ID}
	err := s.queryRow(ctx,
		`SELECT name, description, owner FROM containers WHERE kind = ? AND id = ?`,
		string(ref.Kind), ref.ID,
	).Scan(&obj.Name, &obj.Description, &obj.Owner)
	if errors.Is(err, sql.ErrNoRows) {
		return server.Object{}, notFound(ref)
	}
	if err != nil {
		return server.Object{}, fmt.Errorf("query %s: %w", ref, err)
	}
	return obj, nil
}

func (s *Store) Image(ctx context.Context, id int64) (server.ImageInfo, error) {
	img := server.ImageInfo{Object: server.Object{Kind: server.Image, ID: id}}
	var fileset sql.NullInt64
	err := s.queryRow(ctx, `
		SELECT name, description, owner, fileset_id, dimension_order, pixel_type,
		       size_x, size_y, size_z, size_c, size_t
		FROM images WHERE id = ?`, id,
	).Scan(&img.Name, &img.Description, &img.Owner, &fileset,
		&img.Pixels.DimensionOrder, &img.Pixels.Type,
		&img.Pixels.SizeX, &img.Pixels.SizeY, &img.Pixels.SizeZ, &img.Pixels.SizeC, &img.Pixels.SizeT)
	if errors.Is(err, sql.ErrNoRows) {
		return server.ImageInfo{}, notFound(server.ObjectRef{Kind: server.Image, ID: id})
	}
	if err != nil {
		return server.ImageInfo{}, fmt.Errorf("query image %d: %w", id, err)
	}
	img.FilesetID = fileset.Int64
	return img, nil
}

func (s *Store) Children(ctx context.Context, ref server.ObjectRef) ([]server.Object, error) {
	var childKind server.Kind
	switch ref.Kind {
	case server.Project:
		childKind = server.Dataset
	case server.Dataset:
		childKind = server.Image
	case server.Screen:
		childKind = server.Plate
	default:
		return nil, fmt.Errorf("%w: %s has no children", apperrors.ErrInvalidInput, ref.Kind)
	}

	table := "containers c"
	if childKind == server.Image {
		table = "images c"
	}
	rows, err := s.query(ctx, `
		SELECT c.id, c.name, c.description, c.owner
		FROM links l JOIN `+table+` ON c.id = l.child_id
		WHERE l.parent_kind = ? AND l.parent_id = ? AND l.child_kind = ?
		ORDER BY c.id`,
		string(ref.Kind), ref.ID, string(childKind))
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", ref, err)
	}
	return sqlutil.ScanRows(rows, func(r *sql.Rows) (server.Object, error) {
		o := server.Object{Kind: childKind}
		err := r.Scan(&o.ID, &o.Name, &o.Description, &o.Owner)
		return o, err
	})
}

func (s *Store) Wells(ctx context.Context, plateID int64) ([]server.WellInfo, error) {
	rows, err := s.query(ctx, `
		SELECT id, row_index, column_index FROM wells
		WHERE plate_id = ? ORDER BY row_index, column_index`, plateID)
	if err != nil {
		return nil, fmt.Errorf("query wells of plate %d: %w", plateID, err)
	}
	wells, err := sqlutil.ScanRows(rows, func(r *sql.Rows) (server.WellInfo, error) {
		w := server.WellInfo{PlateID: plateID}
		err := r.Scan(&w.ID, &w.Row, &w.Column)
		return w, err
	})
	if err != nil {
		return nil, err
	}
	for i := range wells {
		rows, err := s.query(ctx, `
			SELECT id, sample_index, image_id FROM well_samples
			WHERE well_id = ? ORDER BY sample_index, id`, wells[i].ID)
		if err != nil {
			return nil, fmt.Errorf("query samples of well %d: %w", wells[i].ID, err)
		}
		wells[i].Samples, err = sqlutil.ScanRows(rows, func(r *sql.Rows) (server.WellSampleInfo, error) {
			var ws server.WellSampleInfo
			err := r.Scan(&ws.ID, &ws.Index, &ws.ImageID)
			return ws, err
		})
		if err != nil {
			return nil, err
		}
	}
	return wells, nil
}

func (s *Store) FilesetImages(ctx context.Context, filesetID int64) ([]int64, error) {
	rows, err := s.query(ctx, `SELECT id FROM images WHERE fileset_id = ? ORDER BY id`, filesetID)
	if err != nil {
		return nil, fmt.Errorf("query fileset %d: %w", filesetID, err)
	}
	return sqlutil.ScanInt64s(rows)
}

// filesetFiles returns the original files of a fileset in client path order.
func (s *Store) filesetFiles(ctx context.Context, filesetID int64) ([]server.FileInfo, []string, error) {
	rows, err := s.query(ctx, `
		SELECT f.id, f.path, f.name, f.size, e.client_path
		FROM fileset_entries e JOIN original_files f ON f.id = e.original_file_id
		WHERE e.fileset_id = ? ORDER BY e.client_path, f.id`, filesetID)
	if err != nil {
		return nil, nil, fmt.Errorf("query fileset %d files: %w", filesetID, err)
	}
	defer rows.Close()
	var files []server.FileInfo
	var clientPaths []string
	for rows.Next() {
		var f server.FileInfo
		var cp string
		if err := rows.Scan(&f.ID, &f.Path, &f.Name, &f.Size, &cp); err != nil {
			return nil, nil, err
		}
		files = append(files, f)
		clientPaths = append(clientPaths, cp)
	}
	return files, clientPaths, rows.Err()
}

func (s *Store) BackingFilePaths(ctx context.Context, imageID int64) ([]string, error) {
	img, err := s.Image(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if img.FilesetID == 0 {
		return nil, nil
	}
	files, _, err := s.filesetFiles(ctx, img.FilesetID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = path.Join(f.Path, f.Name)
	}
	return paths, nil
}

const annotationColumns = `a.id, a.kind, a.namespace, a.description, a.text_value, a.long_value,
	f.id, f.path, f.name, f.size`

func (s *Store) scanAnnotations(ctx context.Context, rows *sql.Rows) ([]server.AnnotationInfo, error) {
	anns, err := sqlutil.ScanRows(rows, func(r *sql.Rows) (server.AnnotationInfo, error) {
		var a server.AnnotationInfo
		var kind string
		var fid sql.NullInt64
		var fpath, fname sql.NullString
		var fsize sql.NullInt64
		err := r.Scan(&a.ID, &kind, &a.Namespace, &a.Description, &a.TextValue, &a.LongValue,
			&fid, &fpath, &fname, &fsize)
		a.Kind = server.AnnotationKind(kind)
		if fid.Valid {
			a.File = &server.FileInfo{ID: fid.Int64, Path: fpath.String, Name: fname.String, Size: fsize.Int64}
		}
		return a, err
	})
	if err != nil {
		return nil, err
	}
	for i := range anns {
		if anns[i].Kind != server.MapAnnotation {
			continue
		}
		rows, err := s.query(ctx, `SELECT k, v FROM map_values WHERE annotation_id = ? ORDER BY position`, anns[i].ID)
		if err != nil {
			return nil, fmt.Errorf("query map values: %w", err)
		}
		anns[i].MapValue, err = sqlutil.ScanRows(rows, func(r *sql.Rows) (server.KeyValue, error) {
			var kv server.KeyValue
			err := r.Scan(&kv.Key, &kv.Value)
			return kv, err
		})
		if err != nil {
			return nil, err
		}
	}
	return anns, nil
}

func (s *Store) Annotations(ctx context.Context, owner server.ObjectRef) ([]server.AnnotationInfo, error) {
	rows, err := s.query(ctx, `
		SELECT `+annotationColumns+`
		FROM annotation_links l
		JOIN annotations a ON a.id = l.annotation_id
		LEFT JOIN original_files f ON f.id = a.file_id
		WHERE l.owner_kind = ? AND l.owner_id = ?
		ORDER BY a.id`, string(owner.Kind), owner.ID)
	if err != nil {
		return nil, fmt.Errorf("query annotations of %s: %w", owner, err)
	}
	return s.scanAnnotations(ctx, rows)
}

func (s *Store) AnnotationsByNamespace(ctx context.Context, namespace string) ([]server.AnnotationInfo, error) {
	rows, err := s.query(ctx, `
		SELECT `+annotationColumns+`
		FROM annotations a
		LEFT JOIN original_files f ON f.id = a.file_id
		WHERE a.kind = ? AND a.namespace = ?
		ORDER BY a.id`, string(server.FileAnnotation), namespace)
	if err != nil {
		return nil, fmt.Errorf("query annotations in %s: %w", namespace, err)
	}
	return s.scanAnnotations(ctx, rows)
}

func (s *Store) ROIs(ctx context.Context, imageID int64) ([]server.ROIInfo, error) {
	rows, err := s.query(ctx, `SELECT id, name, description FROM rois WHERE image_id = ? ORDER BY id`, imageID)
	if err != nil {
		return nil, fmt.Errorf("query rois of image %d: %w", imageID, err)
	}
	rois, err := sqlutil.ScanRows(rows, func(r *sql.Rows) (server.ROIInfo, error) {
		roi := server.ROIInfo{ImageID: imageID}
		err := r.Scan(&roi.ID, &roi.Name, &roi.Description)
		return roi, err
	})
	if err != nil {
		return nil, err
	}
	for i := range rois {
		rows, err := s.query(ctx, `SELECT id, data FROM shapes WHERE roi_id = ? ORDER BY position`, rois[i].ID)
		if err != nil {
			return nil, fmt.Errorf("query shapes of roi %d: %w", rois[i].ID, err)
		}
		rois[i].Shapes, err = sqlutil.ScanRows(rows, func(r *sql.Rows) (server.ShapeInfo, error) {
			var id int64
			var data string
			if err := r.Scan(&id, &data); err != nil {
				return server.ShapeInfo{}, err
			}
			var sh server.ShapeInfo
			if err := json.Unmarshal([]byte(data), &sh); err != nil {
				return server.ShapeInfo{}, fmt.Errorf("decode shape %d: %w", id, err)
			}
			sh.ID = id
			return sh, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return rois, nil
}

func (s *Store) FileContent(ctx context.Context, fileID int64) ([]byte, error) {
	var dir, name string
	err := s.queryRow(ctx, `SELECT path, name FROM original_files WHERE id = ?`, fileID).Scan(&dir, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: OriginalFile:%d", apperrors.ErrNotFound, fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("query file %d: %w", fileID, err)
	}
	return os.ReadFile(s.repoPath(dir, name))
}

func (s *Store) repoPath(dir, name string) string {
	return filepath.Join(s.repo, filepath.FromSlash(dir), name)
}

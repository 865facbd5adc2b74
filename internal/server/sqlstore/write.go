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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/atomicfile"
	"github.com/ome/omero-cli-transfer/internal/server"
	"github.com/ome/omero-cli-transfer/internal/sqlutil"
)

func (s *Store) CreateContainer(ctx context.Context, kind server.Kind, name, description string) (int64, error) {
	if !isContainer(kind) {
		return 0, fmt.Errorf("%w: cannot create a %s", apperrors.ErrInvalidInput, kind)
	}
	id, err := s.insert(ctx,
		`INSERT INTO containers (kind, name, description, owner) VALUES (?, ?, ?, ?)`,
		string(kind), name, description, s.user)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", kind, err)
	}
	return id, nil
}

func (s *Store) Rename(ctx context.Context, ref server.ObjectRef, name string) error {
	var res sql.Result
	var err error
	switch {
	case ref.Kind == server.Image:
		res, err = s.exec(ctx, `UPDATE images SET name = ? WHERE id = ?`, name, ref.ID)
	case isContainer(ref.Kind):
		res, err = s.exec(ctx, `UPDATE containers SET name = ? WHERE kind = ? AND id = ?`, name, string(ref.Kind), ref.ID)
	default:
		return fmt.Errorf("%w: cannot rename a %s", apperrors.ErrInvalidInput, ref.Kind)
	}
	if err != nil {
		return fmt.Errorf("rename %s: %w", ref, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(ref)
	}
	return nil
}

func (s *Store) OwnedObjects(ctx context.Context, kind server.Kind, opts server.ListOptions) ([]server.Object, error) {
	if !isContainer(kind) {
		return nil, fmt.Errorf("%w: cannot list %s", apperrors.ErrInvalidInput, kind)
	}
	query := `SELECT id, name, description, owner FROM containers WHERE kind = ? AND owner = ?`
	if opts.Orphaned {
		query += ` AND NOT EXISTS (SELECT 1 FROM links l WHERE l.child_kind = containers.kind AND l.child_id = containers.id)`
	}
	rows, err := s.query(ctx, query+` ORDER BY id`, string(kind), s.user)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return sqlutil.ScanRows(rows, func(r *sql.Rows) (server.Object, error) {
		o := server.Object{Kind: kind}
		err := r.Scan(&o.ID, &o.Name, &o.Description, &o.Owner)
		return o, err
	})
}

func (s *Store) Link(ctx context.Context, parent, child server.ObjectRef) error {
	valid := (parent.Kind == server.Project && child.Kind == server.Dataset) ||
		(parent.Kind == server.Dataset && child.Kind == server.Image) ||
		(parent.Kind == server.Screen && child.Kind == server.Plate)
	if !valid {
		return fmt.Errorf("%w: cannot link %s to %s", apperrors.ErrInvalidInput, child, parent)
	}
	_, err := s.exec(ctx, `
		INSERT INTO links (parent_kind, parent_id, child_kind, child_id) VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		string(parent.Kind), parent.ID, string(child.Kind), child.ID)
	if err != nil {
		return fmt.Errorf("link %s to %s: %w", child, parent, err)
	}
	return nil
}

func (s *Store) UploadFile(ctx context.Context, localPath string) (server.FileInfo, error) {
	st, err := os.Stat(localPath)
	if err != nil {
		return server.FileInfo{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	f := server.FileInfo{
		Path: path.Join(s.user, "uploads", uuid.NewString()),
		Name: filepath.Base(localPath),
		Size: st.Size(),
	}
	if err := atomicfile.CopyFile(s.repoPath(f.Path, f.Name), localPath); err != nil {
		return server.FileInfo{}, fmt.Errorf("upload %s: %w", localPath, err)
	}
	f.ID, err = s.insert(ctx,
		`INSERT INTO original_files (path, name, size, owner) VALUES (?, ?, ?, ?)`,
		f.Path, f.Name, f.Size, s.user)
	if err != nil {
		return server.FileInfo{}, fmt.Errorf("register upload: %w", err)
	}
	return f, nil
}

func (s *Store) CreateAnnotation(ctx context.Context, a server.AnnotationInfo) (int64, error) {
	var fileID any
	switch a.Kind {
	case server.TagAnnotation, server.CommentAnnotation, server.LongAnnotation, server.MapAnnotation, server.XMLAnnotation:
	case server.FileAnnotation:
		if a.File == nil || a.File.ID == 0 {
			return 0, fmt.Errorf("%w: file annotation without an uploaded file", apperrors.ErrInvalidInput)
		}
		fileID = a.File.ID
	default:
		return 0, fmt.Errorf("%w: unsupported annotation kind %q", apperrors.ErrInvalidInput, a.Kind)
	}
	id, err := s.insert(ctx, `
		INSERT INTO annotations (kind, namespace, description, text_value, long_value, file_id, owner)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(a.Kind), a.Namespace, a.Description, a.TextValue, a.LongValue, fileID, s.user)
	if err != nil {
		return 0, fmt.Errorf("create %s annotation: %w", a.Kind, err)
	}
	for i, kv := range a.MapValue {
		if _, err := s.exec(ctx,
			`INSERT INTO map_values (annotation_id, position, k, v) VALUES (?, ?, ?, ?)`,
			id, i, kv.Key, kv.Value); err != nil {
			return 0, fmt.Errorf("store map value: %w", err)
		}
	}
	return id, nil
}

func (s *Store) LinkAnnotation(ctx context.Context, owner server.ObjectRef, annotationID int64) error {
	_, err := s.exec(ctx, `
		INSERT INTO annotation_links (owner_kind, owner_id, annotation_id) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`,
		string(owner.Kind), owner.ID, annotationID)
	if err != nil {
		return fmt.Errorf("link annotation %d to %s: %w", annotationID, owner, err)
	}
	return nil
}

func (s *Store) CreateROI(ctx context.Context, imageID int64, roi server.ROIInfo) (int64, error) {
	id, err := s.insert(ctx,
		`INSERT INTO rois (image_id, name, description) VALUES (?, ?, ?)`,
		imageID, roi.Name, roi.Description)
	if err != nil {
		return 0, fmt.Errorf("create roi on image %d: %w", imageID, err)
	}
	for i, sh := range roi.Shapes {
		sh.ID = 0
		data, err := json.Marshal(sh)
		if err != nil {
			return 0, err
		}
		if _, err := s.exec(ctx,
			`INSERT INTO shapes (roi_id, position, kind, data) VALUES (?, ?, ?, ?)`,
			id, i, string(sh.Kind), string(data)); err != nil {
			return 0, fmt.Errorf("create shape: %w", err)
		}
	}
	return id, nil
}

func (s *Store) CreateWell(ctx context.Context, plateID int64, row, column int, imageIDs []int64) (int64, error) {
	if _, err := s.WellID(ctx, plateID, row, column); err == nil {
		return 0, fmt.Errorf("%w: plate %d row %d column %d", apperrors.ErrWellOccupied, plateID, row, column)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return 0, err
	}
	id, err := s.insert(ctx,
		`INSERT INTO wells (plate_id, row_index, column_index) VALUES (?, ?, ?)`,
		plateID, row, column)
	if err != nil {
		return 0, fmt.Errorf("create well: %w", err)
	}
	for i, imageID := range imageIDs {
		if _, err := s.exec(ctx,
			`INSERT INTO well_samples (well_id, image_id, sample_index) VALUES (?, ?, ?)`,
			id, imageID, i); err != nil {
			return 0, fmt.Errorf("create well sample: %w", err)
		}
	}
	return id, nil
}

func (s *Store) WellID(ctx context.Context, plateID int64, row, column int) (int64, error) {
	var id int64
	err := s.queryRow(ctx,
		`SELECT id FROM wells WHERE plate_id = ? AND row_index = ? AND column_index = ?`,
		plateID, row, column).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: well at row %d column %d of plate %d", apperrors.ErrNotFound, row, column, plateID)
	}
	if err != nil {
		return 0, fmt.Errorf("query well: %w", err)
	}
	return id, nil
}

// Delete removes an object and its links. With cascade, containers take
// their children with them, and images their ROIs; annotations are only
// unlinked.
func (s *Store) Delete(ctx context.Context, ref server.ObjectRef, cascade bool) error {
	s.logger.Debug("deleting", zap.Stringer("object", ref), zap.Bool("cascade", cascade))
	switch ref.Kind {
	case server.ROI:
		if _, err := s.exec(ctx, `DELETE FROM shapes WHERE roi_id = ?`, ref.ID); err != nil {
			return err
		}
		_, err := s.exec(ctx, `DELETE FROM rois WHERE id = ?`, ref.ID)
		return err
	case server.Annotation:
		for _, q := range []string{
			`DELETE FROM annotation_links WHERE annotation_id = ?`,
			`DELETE FROM map_values WHERE annotation_id = ?`,
			`DELETE FROM annotations WHERE id = ?`,
		} {
			if _, err := s.exec(ctx, q, ref.ID); err != nil {
				return err
			}
		}
		return nil
	case server.Image:
		rois, err := s.ROIs(ctx, ref.ID)
		if err != nil {
			return err
		}
		for _, r := range rois {
			if err := s.Delete(ctx, server.ObjectRef{Kind: server.ROI, ID: r.ID}, false); err != nil {
				return err
			}
		}
		for _, q := range []string{
			`DELETE FROM annotation_links WHERE owner_kind = 'Image' AND owner_id = ?`,
			`DELETE FROM links WHERE child_kind = 'Image' AND child_id = ?`,
			`DELETE FROM well_samples WHERE image_id = ?`,
			`DELETE FROM images WHERE id = ?`,
		} {
			if _, err := s.exec(ctx, q, ref.ID); err != nil {
				return err
			}
		}
		return nil
	}

	if !isContainer(ref.Kind) {
		return fmt.Errorf("%w: cannot delete a %s", apperrors.ErrInvalidInput, ref.Kind)
	}
	if cascade {
		var children []server.ObjectRef
		if ref.Kind == server.Plate {
			wells, err := s.Wells(ctx, ref.ID)
			if err != nil {
				return err
			}
			for _, w := range wells {
				for _, ws := range w.Samples {
					children = append(children, server.ObjectRef{Kind: server.Image, ID: ws.ImageID})
				}
			}
		} else {
			objs, err := s.Children(ctx, ref)
			if err != nil {
				return err
			}
			for _, o := range objs {
				children = append(children, server.ObjectRef{Kind: o.Kind, ID: o.ID})
			}
		}
		for _, c := range children {
			if err := s.Delete(ctx, c, true); err != nil {
				return err
			}
		}
	}
	if ref.Kind == server.Plate {
		if _, err := s.exec(ctx, `DELETE FROM well_samples WHERE well_id IN (SELECT id FROM wells WHERE plate_id = ?)`, ref.ID); err != nil {
			return err
		}
		if _, err := s.exec(ctx, `DELETE FROM wells WHERE plate_id = ?`, ref.ID); err != nil {
			return err
		}
	}
	for _, q := range []string{
		`DELETE FROM annotation_links WHERE owner_kind = ? AND owner_id = ?`,
		`DELETE FROM links WHERE parent_kind = ? AND parent_id = ?`,
		`DELETE FROM links WHERE child_kind = ? AND child_id = ?`,
		`DELETE FROM containers WHERE kind = ? AND id = ?`,
	} {
		if _, err := s.exec(ctx, q, string(ref.Kind), ref.ID); err != nil {
			return err
		}
	}
	return nil
}

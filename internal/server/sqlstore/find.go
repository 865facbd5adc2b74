package sqlstore

import (
	"context"
	"fmt"

	"github.com/ome/omero-cli-transfer/internal/sqlutil"
)

func (s *Store) ImageIDsByClientPath(ctx context.Context, prefix string) ([]int64, error) {
	rows, err := s.query(ctx, `
		SELECT DISTINCT i.id
		FROM images i JOIN fileset_entries e ON e.fileset_id = i.fileset_id
		WHERE e.client_path LIKE ?
		ORDER BY i.id`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("query images by client path: %w", err)
	}
	return sqlutil.ScanInt64s(rows)
}

func (s *Store) PlateIDsByClientPath(ctx context.Context, fragment string) ([]int64, error) {
	rows, err := s.query(ctx, `
		SELECT DISTINCT w.plate_id
		FROM wells w
		JOIN well_samples ws ON ws.well_id = w.id
		JOIN images i ON i.id = ws.image_id
		JOIN fileset_entries e ON e.fileset_id = i.fileset_id
		WHERE e.client_path LIKE ?
		ORDER BY w.plate_id`, "%"+fragment+"%")
	if err != nil {
		return nil, fmt.Errorf("query plates by client path: %w", err)
	}
	return sqlutil.ScanInt64s(rows)
}

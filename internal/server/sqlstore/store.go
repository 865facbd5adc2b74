// Package sqlstore implements server.Gateway and importer.Importer on top
// of a relational database (sqlite or postgres) plus a managed repository
// directory holding original files.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/server"
	"github.com/ome/omero-cli-transfer/internal/sqlutil"
)

// Driver names a supported database backend.
type Driver string

const (
	SQLite   Driver = "sqlite"
	Postgres Driver = "postgres"
)

// Options configures Open.
type Options struct {
	Driver Driver
	// DSN is a sqlite file path (or ":memory:") or a postgres URL.
	DSN string
	// Repository is the managed directory holding original files.
	Repository string
	User       string
	Group      string
	Hostname   string
	Logger     *zap.Logger
}

// Store is a database-backed server.
type Store struct {
	db       *sql.DB
	driver   Driver
	repo     string
	user     string
	group    string
	hostname string
	dbID     string
	logger   *zap.Logger
}

var (
	_ server.Gateway = (*Store)(nil)
)

// Open connects to the database, creating the schema when missing.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Driver == "" {
		opts.Driver = SQLite
	}
	if opts.User == "" {
		opts.User = "root"
	}
	if opts.Group == "" {
		opts.Group = "system"
	}
	if opts.Hostname == "" {
		opts.Hostname = "localhost"
	}

	driverName := ""
	switch opts.Driver {
	case SQLite:
		driverName = "sqlite"
	case Postgres:
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", apperrors.ErrInvalidInput, opts.Driver)
	}
	if opts.Repository == "" {
		return nil, fmt.Errorf("%w: managed repository directory required", apperrors.ErrInvalidInput)
	}
	if err := os.MkdirAll(opts.Repository, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	db, err := sql.Open(driverName, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.Driver == SQLite {
		// A single connection keeps ":memory:" databases alive and
		// serializes writers.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:       db,
		driver:   opts.Driver,
		repo:     opts.Repository,
		user:     opts.User,
		group:    opts.Group,
		hostname: opts.Hostname,
		logger:   opts.Logger,
	}
	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Repository returns the managed repository directory.
func (s *Store) Repository() string {
	return s.repo
}

// AsUser returns a view of the store acting as another user. Both views
// share the database handle.
func (s *Store) AsUser(user string) *Store {
	cp := *s
	cp.user = user
	return &cp
}

func (s *Store) q(query string) string {
	if s.driver == Postgres {
		return sqlutil.Rebind(query)
	}
	return query
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.q(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.q(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.q(query), args...)
}

// insert runs an INSERT ... RETURNING id statement.
func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := s.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) initialize(ctx context.Context) error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == Postgres {
		pk = "BIGSERIAL PRIMARY KEY"
	}
	ddl := strings.ReplaceAll(schema, "{{pk}}", pk)
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
	}

	err := s.queryRow(ctx, `SELECT value FROM meta WHERE key = 'database_id'`).Scan(&s.dbID)
	if errors.Is(err, sql.ErrNoRows) {
		s.dbID = uuid.NewString()
		_, err = s.exec(ctx, `INSERT INTO meta (key, value) VALUES ('database_id', ?)`, s.dbID)
	}
	if err != nil {
		return fmt.Errorf("failed to read database id: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

-- Projects, datasets, screens and plates
CREATE TABLE IF NOT EXISTS containers (
	id {{pk}},
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	owner TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS original_files (
	id {{pk}},
	path TEXT NOT NULL,          -- repository-relative directory
	name TEXT NOT NULL,
	size BIGINT NOT NULL DEFAULT 0,
	owner TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS filesets (
	id {{pk}},
	owner TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fileset_entries (
	fileset_id BIGINT NOT NULL,
	original_file_id BIGINT NOT NULL,
	client_path TEXT NOT NULL,   -- absolute import path without leading slash
	PRIMARY KEY (fileset_id, original_file_id)
);

CREATE TABLE IF NOT EXISTS images (
	id {{pk}},
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	owner TEXT NOT NULL,
	fileset_id BIGINT,
	dimension_order TEXT NOT NULL DEFAULT 'XYZCT',
	pixel_type TEXT NOT NULL DEFAULT 'uint8',
	size_x INTEGER NOT NULL DEFAULT 1,
	size_y INTEGER NOT NULL DEFAULT 1,
	size_z INTEGER NOT NULL DEFAULT 1,
	size_c INTEGER NOT NULL DEFAULT 1,
	size_t INTEGER NOT NULL DEFAULT 1
);

-- Project->Dataset, Dataset->Image, Screen->Plate
CREATE TABLE IF NOT EXISTS links (
	parent_kind TEXT NOT NULL,
	parent_id BIGINT NOT NULL,
	child_kind TEXT NOT NULL,
	child_id BIGINT NOT NULL,
	PRIMARY KEY (parent_kind, parent_id, child_kind, child_id)
);

CREATE TABLE IF NOT EXISTS wells (
	id {{pk}},
	plate_id BIGINT NOT NULL,
	row_index INTEGER NOT NULL,
	column_index INTEGER NOT NULL,
	UNIQUE (plate_id, row_index, column_index)
);

CREATE TABLE IF NOT EXISTS well_samples (
	id {{pk}},
	well_id BIGINT NOT NULL,
	image_id BIGINT NOT NULL,
	sample_index INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS annotations (
	id {{pk}},
	kind TEXT NOT NULL,
	namespace TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	text_value TEXT NOT NULL DEFAULT '',
	long_value BIGINT NOT NULL DEFAULT 0,
	file_id BIGINT,
	owner TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS map_values (
	annotation_id BIGINT NOT NULL,
	position INTEGER NOT NULL,
	k TEXT NOT NULL,
	v TEXT NOT NULL,
	PRIMARY KEY (annotation_id, position)
);

CREATE TABLE IF NOT EXISTS annotation_links (
	owner_kind TEXT NOT NULL,
	owner_id BIGINT NOT NULL,
	annotation_id BIGINT NOT NULL,
	PRIMARY KEY (owner_kind, owner_id, annotation_id)
);

CREATE TABLE IF NOT EXISTS rois (
	id {{pk}},
	image_id BIGINT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);

-- Shape geometry is stored as JSON
CREATE TABLE IF NOT EXISTS shapes (
	id {{pk}},
	roi_id BIGINT NOT NULL,
	position INTEGER NOT NULL,
	kind TEXT NOT NULL,
	data TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_containers_kind_owner ON containers(kind, owner);
CREATE INDEX IF NOT EXISTS idx_images_fileset ON images(fileset_id);
CREATE INDEX IF NOT EXISTS idx_entries_client_path ON fileset_entries(client_path);
CREATE INDEX IF NOT EXISTS idx_links_child ON links(child_kind, child_id);
CREATE INDEX IF NOT EXISTS idx_samples_image ON well_samples(image_id);
CREATE INDEX IF NOT EXISTS idx_rois_image ON rois(image_id);
`

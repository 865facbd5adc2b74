// Package testutil provides reusable test utilities for omero-transfer
// integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ome/omero-cli-transfer/internal/server/fixture"
	"github.com/ome/omero-cli-transfer/internal/server/sqlstore"
)

// TestServer is a temporary sqlite-backed server with its own managed
// repository and config file.
type TestServer struct {
	// Dir is the root of the workspace; tests may write packages here.
	Dir        string
	DSN        string
	Repository string
	ConfigPath string
	Store      *sqlstore.Store
	// IDs maps "Kind:name" of seeded objects to their ids.
	IDs fixture.IDs

	t        *testing.T
	user     string
	fixtures []string
	files    map[string]string
}

// NewTestServer creates a new test server builder. Call Build() to create
// the database.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	return &TestServer{
		t:     t,
		files: make(map[string]string),
		IDs:   fixture.IDs{},
	}
}

// WithFixture seeds the YAML hierarchy when the server is built. Several
// fixtures are seeded in order.
func (s *TestServer) WithFixture(yaml string) *TestServer {
	s.fixtures = append(s.fixtures, yaml)
	return s
}

// WithUser sets the session user of the store and the CLI.
func (s *TestServer) WithUser(user string) *TestServer {
	s.user = user
	return s
}

// WithFile adds a file to the workspace. The path is relative to Dir.
func (s *TestServer) WithFile(path, content string) *TestServer {
	s.files[path] = content
	return s
}

// Build creates the workspace, opens the store and seeds the fixtures.
func (s *TestServer) Build() *TestServer {
	s.t.Helper()

	s.Dir = s.t.TempDir()
	s.DSN = filepath.Join(s.Dir, "server.db")
	s.Repository = filepath.Join(s.Dir, "ManagedRepository")
	s.ConfigPath = filepath.Join(s.Dir, "config.toml")

	st, err := sqlstore.Open(context.Background(), sqlstore.Options{
		Driver:     sqlstore.SQLite,
		DSN:        s.DSN,
		Repository: s.Repository,
		User:       s.user,
	})
	if err != nil {
		s.t.Fatalf("failed to open store: %v", err)
	}
	s.Store = st
	s.t.Cleanup(func() { st.Close() })

	for _, y := range s.fixtures {
		f, err := fixture.Parse([]byte(y))
		if err != nil {
			s.t.Fatalf("failed to parse fixture: %v", err)
		}
		ids, err := fixture.Seed(context.Background(), st, f)
		if err != nil {
			s.t.Fatalf("failed to seed fixture: %v", err)
		}
		for k, v := range ids {
			if _, ok := s.IDs[k]; !ok {
				s.IDs[k] = v
			}
		}
	}

	user := s.user
	if user == "" {
		user = "root"
	}
	s.writeFile("config.toml", fmt.Sprintf(`[server]
driver = "sqlite"
dsn = %q
repository = %q
user = %q
hostname = "test-server"

[importer]
mode = "local"
`, s.DSN, s.Repository, user))

	for path, content := range s.files {
		s.writeFile(path, content)
	}
	return s
}

// writeFile writes a file to the workspace, creating directories as needed.
func (s *TestServer) writeFile(relPath, content string) {
	s.t.Helper()
	fullPath := filepath.Join(s.Dir, relPath)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.t.Fatalf("failed to create directory %s: %v", dir, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		s.t.Fatalf("failed to write file %s: %v", fullPath, err)
	}
}

// Path returns the absolute path of a workspace-relative path.
func (s *TestServer) Path(relPath string) string {
	return filepath.Join(s.Dir, relPath)
}

// ReadFile reads a file from the workspace.
func (s *TestServer) ReadFile(relPath string) string {
	s.t.Helper()
	content, err := os.ReadFile(s.Path(relPath))
	if err != nil {
		s.t.Fatalf("failed to read file %s: %v", relPath, err)
	}
	return string(content)
}

// FileExists checks if a file exists in the workspace.
func (s *TestServer) FileExists(relPath string) bool {
	s.t.Helper()
	_, err := os.Stat(s.Path(relPath))
	return err == nil
}

// SingleImageFixture is an image with a backing file, a tag, a map
// annotation and two ROIs.
func SingleImageFixture() string {
	return `images:
  - name: cells.tif
    files: [experiment/cells.tif]
    size_x: 64
    size_y: 64
    annotations:
      - tag: cells
      - map: [[stain, DAPI]]
        namespace: openmicroscopy.org/omero/client/mapAnnotation
    rois:
      - name: nucleus
        shapes:
          - {kind: ellipse, x: 10, y: 10, radius_x: 4, radius_y: 3}
      - name: marker
        shapes:
          - {kind: point, x: 5, y: 6}
`
}

// ProjectFixture is a project with two datasets, one image in a two-image
// fileset, and an image without backing files.
func ProjectFixture() string {
	return `projects:
  - name: Screening 2024
    annotations:
      - comment: pilot run
    datasets:
      - name: Day 1
        images:
          - name: a.tif
            files: [run1/a.tif]
          - name: series 0
            fileset: lif
            files: [run1/multi/scan.lif, run1/multi/scan.lif.meta]
      - name: Day 2
        images:
          - name: rendered
`
}

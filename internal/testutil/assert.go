package testutil

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/ome/omero-cli-transfer/internal/server"
)

// AssertFileExists fails the test if the file does not exist.
func (s *TestServer) AssertFileExists(relPath string) {
	s.t.Helper()
	if _, err := os.Stat(s.Path(relPath)); os.IsNotExist(err) {
		s.t.Errorf("expected file to exist: %s", relPath)
	}
}

// AssertFileNotExists fails the test if the file exists.
func (s *TestServer) AssertFileNotExists(relPath string) {
	s.t.Helper()
	if _, err := os.Stat(s.Path(relPath)); err == nil {
		s.t.Errorf("expected file to not exist: %s", relPath)
	}
}

// AssertFileContains fails the test if the file does not contain the substring.
func (s *TestServer) AssertFileContains(relPath, substr string) {
	s.t.Helper()
	content := s.ReadFile(relPath)
	if !strings.Contains(content, substr) {
		s.t.Errorf("expected file %s to contain %q, got:\n%s", relPath, substr, content)
	}
}

// AssertOwnedCount fails the test unless the session user owns exactly
// expected objects of kind.
func (s *TestServer) AssertOwnedCount(kind server.Kind, expected int) {
	s.t.Helper()
	objs, err := s.Store.OwnedObjects(context.Background(), kind, server.ListOptions{})
	if err != nil {
		s.t.Fatalf("list %s: %v", kind, err)
	}
	if len(objs) != expected {
		s.t.Errorf("expected %d %s objects, got %d: %+v", expected, kind, len(objs), objs)
	}
}

// AssertHasWarning checks that the result contains a warning with the given code.
func (r *CLIResult) AssertHasWarning(t *testing.T, code string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Code == code {
			return
		}
	}
	t.Errorf("expected warning with code %s, got warnings: %+v", code, r.Warnings)
}

// AssertNoWarnings checks that the result has no warnings.
func (r *CLIResult) AssertNoWarnings(t *testing.T) {
	t.Helper()
	if len(r.Warnings) > 0 {
		t.Errorf("expected no warnings, got: %+v", r.Warnings)
	}
}

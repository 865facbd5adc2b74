package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveToRoundTrips(t *testing.T) {
	tmp := isolate(t)
	path := filepath.Join(tmp, "config.toml")

	cfg := &Config{
		Server: ServerConfig{
			Driver:     "sqlite",
			DSN:        filepath.Join(tmp, "server.db"),
			Repository: filepath.Join(tmp, "repo"),
			User:       "root",
			Group:      "system",
		},
		Importer: ImporterConfig{Mode: ModeLocal, Timeout: 10 * time.Minute},
		Transport: TransportConfig{
			Bucket:          "packages",
			SecretAccessKey: "do-not-write",
		},
	}

	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "do-not-write") {
		t.Fatal("secret was persisted")
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}
	if loaded.Server.DSN != cfg.Server.DSN || loaded.Server.Repository != cfg.Server.Repository {
		t.Errorf("server not persisted: %+v", loaded.Server)
	}
	if loaded.Importer.Timeout != 10*time.Minute {
		t.Errorf("expected 10m timeout, got %s", loaded.Importer.Timeout)
	}
	if loaded.Transport.Bucket != "packages" {
		t.Errorf("expected bucket, got %q", loaded.Transport.Bucket)
	}
}

func TestSaveToRequiresPath(t *testing.T) {
	if err := SaveTo(" ", &Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ome/omero-cli-transfer/internal/atomicfile"
)

// persistedConfig omits empty values so a saved file only pins what was
// set explicitly.
type persistedConfig struct {
	Server    *persistedServer    `toml:"server,omitempty"`
	Importer  *persistedImporter  `toml:"importer,omitempty"`
	Transport *persistedTransport `toml:"transport,omitempty"`
	Pack      *PackConfig         `toml:"pack,omitempty"`
	Metrics   *MetricsConfig      `toml:"metrics,omitempty"`
}

type persistedServer struct {
	Driver     *string `toml:"driver,omitempty"`
	DSN        *string `toml:"dsn,omitempty"`
	Repository *string `toml:"repository,omitempty"`
	User       *string `toml:"user,omitempty"`
	Group      *string `toml:"group,omitempty"`
	Hostname   *string `toml:"hostname,omitempty"`
}

type persistedImporter struct {
	Mode    *string  `toml:"mode,omitempty"`
	Command []string `toml:"command,omitempty"`
	Showinf []string `toml:"showinf,omitempty"`
	Timeout *string  `toml:"timeout,omitempty"`
}

type persistedTransport struct {
	Bucket    *string `toml:"bucket,omitempty"`
	Region    *string `toml:"region,omitempty"`
	Endpoint  *string `toml:"endpoint,omitempty"`
	PathStyle bool    `toml:"path_style,omitempty"`
	Prefix    *string `toml:"prefix,omitempty"`
}

func nonEmptyPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// SaveTo writes cfg to path atomically. Secrets are never written.
func SaveTo(path string, cfg *Config) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	out := persistedConfig{
		Server: &persistedServer{
			Driver:     nonEmptyPtr(cfg.Server.Driver),
			DSN:        nonEmptyPtr(cfg.Server.DSN),
			Repository: nonEmptyPtr(cfg.Server.Repository),
			User:       nonEmptyPtr(cfg.Server.User),
			Group:      nonEmptyPtr(cfg.Server.Group),
			Hostname:   nonEmptyPtr(cfg.Server.Hostname),
		},
		Importer: &persistedImporter{
			Mode:    nonEmptyPtr(cfg.Importer.Mode),
			Command: cfg.Importer.Command,
			Showinf: cfg.Importer.Showinf,
		},
	}
	if cfg.Importer.Timeout > 0 {
		out.Importer.Timeout = nonEmptyPtr(cfg.Importer.Timeout.String())
	}
	t := cfg.Transport
	if t.Bucket != "" || t.Endpoint != "" || t.Prefix != "" || t.PathStyle {
		out.Transport = &persistedTransport{
			Bucket:    nonEmptyPtr(t.Bucket),
			Region:    nonEmptyPtr(t.Region),
			Endpoint:  nonEmptyPtr(t.Endpoint),
			PathStyle: t.PathStyle,
			Prefix:    nonEmptyPtr(t.Prefix),
		}
	}
	if len(cfg.Pack.Metadata) > 0 {
		out.Pack = &cfg.Pack
	}
	if cfg.Metrics.File != "" {
		out.Metrics = &cfg.Metrics
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(out); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := atomicfile.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

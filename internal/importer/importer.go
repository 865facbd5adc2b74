// Package importer drives the external tool that materializes pixel data:
// importing files into a destination server and downloading or exporting
// images from a source server.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/server"
	"github.com/ome/omero-cli-transfer/internal/shellquote"
)

// ImportOptions tunes one import invocation.
type ImportOptions struct {
	// InPlace links files into the managed repository instead of copying.
	InPlace bool
	// Skip lists import steps to skip (checksum, thumbnails, ...).
	Skip []string
}

// Importer materializes binaries on a server.
type Importer interface {
	// Import imports a file or a directory. Resulting image ids are found
	// afterwards with server.Finder.
	Import(ctx context.Context, path string, opts ImportOptions) error
	// ExportImage writes an image as a flat OME-TIFF to dest.
	ExportImage(ctx context.Context, imageID int64, dest string) error
	// Download writes the original files of an Image fileset into the
	// directory dest, or the file of a file Annotation to the path dest.
	Download(ctx context.Context, ref server.ObjectRef, dest string) error
}

// Process runs an omero-compatible command line client.
type Process struct {
	// Command is the client executable and any leading arguments, e.g.
	// ["omero"] or ["python", "-m", "omero.cli"].
	Command []string
	// Showinf is the Bio-Formats metadata dumper used by Describe.
	Showinf []string
	Timeout time.Duration
	Env     []string
	Logger  *zap.Logger
}

// NewProcess returns a Process running command.
func NewProcess(command []string, timeout time.Duration, logger *zap.Logger) *Process {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Process{Command: command, Timeout: timeout, Logger: logger}
}

func (p *Process) Import(ctx context.Context, path string, opts ImportOptions) error {
	args := []string{"import", path}
	if opts.InPlace {
		args = append(args, "--transfer=ln_s")
	}
	for _, s := range opts.Skip {
		args = append(args, "--skip", s)
	}
	_, err := p.run(ctx, p.Command, args...)
	return err
}

func (p *Process) ExportImage(ctx context.Context, imageID int64, dest string) error {
	_, err := p.run(ctx, p.Command, "export", "--file", dest, server.ObjectRef{Kind: server.Image, ID: imageID}.String())
	return err
}

func (p *Process) Download(ctx context.Context, ref server.ObjectRef, dest string) error {
	target := ref.String()
	if ref.Kind == server.Annotation {
		target = fmt.Sprintf("FileAnnotation:%d", ref.ID)
	}
	_, err := p.run(ctx, p.Command, "download", target, dest)
	return err
}

// run executes command with args and returns its standard output.
func (p *Process) run(ctx context.Context, command []string, args ...string) ([]byte, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("%w: no importer command configured", apperrors.ErrInvalidInput)
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	argv := append(append([]string{}, command...), args...)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), p.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	p.Logger.Debug("importer command finished",
		zap.String("command", shellquote.Join(argv)),
		zap.Duration("duration", time.Since(start)),
		zap.String("stdout", strings.TrimSpace(stdout.String())),
	)
	if err == nil {
		return stdout.Bytes(), nil
	}

	msg := strings.TrimSpace(stderr.String())
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg = "timed out"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, fmt.Errorf("%w: %s exited with %d: %s", apperrors.ErrSubprocess, shellquote.Join(argv), exitErr.ExitCode(), msg)
	}
	return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrSubprocess, shellquote.Join(argv), err)
}

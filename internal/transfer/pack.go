package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/archive"
	"github.com/ome/omero-cli-transfer/internal/atomicfile"
	"github.com/ome/omero-cli-transfer/internal/builder"
	"github.com/ome/omero-cli-transfer/internal/export"
	"github.com/ome/omero-cli-transfer/internal/importer"
	"github.com/ome/omero-cli-transfer/internal/metrics"
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/omexml"
	"github.com/ome/omero-cli-transfer/internal/provenance"
	"github.com/ome/omero-cli-transfer/internal/server"
)

// Profile selects the package layout.
type Profile string

const (
	ProfileDefault  Profile = ""
	ProfileSimple   Profile = "simple"
	ProfileBArchive Profile = "barchive"
	ProfileROCrate  Profile = "rocrate"
)

// ProfileFromFlags picks the profile from the three mutually exclusive
// export flags.
func ProfileFromFlags(simple, barchive, rocrate bool) (Profile, error) {
	var picked []Profile
	if simple {
		picked = append(picked, ProfileSimple)
	}
	if barchive {
		picked = append(picked, ProfileBArchive)
	}
	if rocrate {
		picked = append(picked, ProfileROCrate)
	}
	switch len(picked) {
	case 0:
		return ProfileDefault, nil
	case 1:
		return picked[0], nil
	}
	return "", fmt.Errorf("%w: only one special export type (RO-Crate, Bioimage Archive, human-readable) can be specified at once", apperrors.ErrInvalidInput)
}

// Uploader publishes a finished package and returns where it went.
type Uploader interface {
	Upload(ctx context.Context, local string) (string, error)
}

// PackOptions tunes Pack.
type PackOptions struct {
	Format  archive.Format
	Profile Profile
	// NoBinaries writes only the metadata into the folder named after the
	// package file, without extension, and skips the archive.
	NoBinaries bool
	Figures    bool
	Metadata   provenance.Selection
	Hostname   string
	// Upload, when set, receives the archive once written.
	Upload    Uploader
	Allocator *model.IDAllocator
	Now       func() time.Time
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

// PackResult describes a written package.
type PackResult struct {
	Document *model.Document
	// Folder is the working folder; removed once archived.
	Folder string
	// Archive is empty with NoBinaries.
	Archive string
	// URI is set when the archive was uploaded.
	URI     string
	Figures int
}

// ValidatePack rejects option combinations before any work is done.
func ValidatePack(root server.ObjectRef, opts PackOptions) error {
	switch opts.Profile {
	case ProfileBArchive:
		if root.Kind == server.Image || root.Kind == server.Plate || root.Kind == server.Screen {
			return fmt.Errorf("%w: single image, plate or screen cannot be packaged for Bioimage Archive", apperrors.ErrInvalidInput)
		}
	case ProfileROCrate:
		if root.Kind == server.Plate || root.Kind == server.Screen {
			return fmt.Errorf("%w: single plate or screen cannot be packaged in a RO-Crate", apperrors.ErrInvalidInput)
		}
	case ProfileSimple:
		if root.Kind == server.Plate || root.Kind == server.Screen {
			return fmt.Errorf("%w: single plate or screen cannot be packaged in human-readable format", apperrors.ErrInvalidInput)
		}
		if opts.NoBinaries {
			return fmt.Errorf("%w: the `--binaries none` and `--simple` options are incompatible", apperrors.ErrInvalidInput)
		}
	case ProfileDefault:
	default:
		return fmt.Errorf("%w: unknown export profile %q", apperrors.ErrInvalidInput, opts.Profile)
	}
	switch opts.Format {
	case "", archive.Tar, archive.Zip:
	default:
		return fmt.Errorf("%w: unknown archive format %q", apperrors.ErrInvalidInput, opts.Format)
	}
	return nil
}

// PackPaths returns the working folder and archive path for file. The
// archive takes the package file name with its extension replaced by the
// format's.
func PackPaths(file string, format archive.Format, noBinaries bool) (folder, archivePath string) {
	stem := strings.TrimSuffix(file, filepath.Ext(file))
	if noBinaries {
		return stem, ""
	}
	if format == "" {
		format = archive.Tar
	}
	return file + "_folder", stem + format.Ext()
}

// Pack writes the package of root to file. r reads the source hierarchy;
// imp fetches binaries from the same server.
func Pack(ctx context.Context, r server.Reader, imp importer.Importer, root server.ObjectRef, file string, opts PackOptions) (res *PackResult, err error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Allocator == nil {
		opts.Allocator = model.NewIDAllocator()
	}
	if opts.Metrics != nil {
		defer func() { opts.Metrics.Run("pack", err) }()
	}
	if err := ValidatePack(root, opts); err != nil {
		return nil, err
	}
	if _, err := r.Object(ctx, root); err != nil {
		return nil, err
	}

	lc := NewLifecycle(Building, opts.Logger)
	folder, archivePath := PackPaths(file, opts.Format, opts.NoBinaries)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("create working folder: %w", err)
	}
	res = &PackResult{Folder: folder, Archive: archivePath}

	doc, err := builder.Build(ctx, r, root, builder.Options{
		Metadata:  opts.Metadata,
		Simple:    opts.Profile == ProfileSimple,
		Hostname:  opts.Hostname,
		Allocator: opts.Allocator,
		Now:       opts.Now,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	figures := map[model.LocalID]bool{}
	if opts.Figures && opts.Profile != ProfileSimple && opts.Profile != ProfileBArchive {
		collected, err := builder.CollectFigures(ctx, r, doc, opts.Allocator)
		if err != nil {
			return nil, fmt.Errorf("collect figures: %w", err)
		}
		for _, f := range collected {
			if err := atomicfile.WriteFile(filepath.Join(folder, filepath.FromSlash(f.Path)), f.Content, 0o644); err != nil {
				return nil, err
			}
			figures[f.AnnotationID] = true
		}
		res.Figures = len(collected)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	res.Document = doc
	if err := lc.Advance(Serialized); err != nil {
		return nil, err
	}

	// The archival profiles describe the package with their own metadata
	// file instead of transfer.xml.
	if opts.Profile != ProfileBArchive && opts.Profile != ProfileROCrate {
		if err := omexml.WriteFile(filepath.Join(folder, omexml.DocumentFile), doc); err != nil {
			return nil, err
		}
	}
	files := builder.FileMap(doc)
	if !opts.NoBinaries {
		if err := copyBinaries(ctx, r, imp, doc, files, figures, folder, opts.Logger); err != nil {
			return nil, err
		}
	}

	switch opts.Profile {
	case ProfileSimple:
		fixed, err := export.SimpleLayout(folder, doc)
		if err != nil {
			return nil, err
		}
		res.Document = fixed
	case ProfileBArchive:
		if err := export.Submission(folder, doc, modelKind(root.Kind), files); err != nil {
			return nil, err
		}
	case ProfileROCrate:
		stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		if err := export.ROCrate(folder, doc, files, export.CrateOptions{Name: stem, Now: now(opts.Now)}); err != nil {
			return nil, err
		}
	}

	if opts.NoBinaries {
		opts.Logger.Info("metadata written", zap.String("folder", folder))
	} else {
		format := opts.Format
		if format == "" {
			format = archive.Tar
		}
		if err := archive.Create(ctx, folder, archivePath, format); err != nil {
			return nil, err
		}
		if err := os.RemoveAll(folder); err != nil {
			return nil, fmt.Errorf("clean up working folder: %w", err)
		}
	}
	if err := lc.Advance(Packaged); err != nil {
		return nil, err
	}

	if opts.Upload != nil && archivePath != "" {
		uri, err := opts.Upload.Upload(ctx, archivePath)
		if err != nil {
			return nil, fmt.Errorf("upload package: %w", err)
		}
		res.URI = uri
	}
	if opts.Metrics != nil {
		opts.Metrics.ImagesPacked(len(doc.Images))
	}
	return res, nil
}

// copyBinaries writes every image's files and every file annotation's
// payload under folder. A fileset is downloaded once, into the directory
// of the first image that names it; images without files are exported.
func copyBinaries(ctx context.Context, r server.Reader, imp importer.Importer, doc *model.Document,
	files map[model.LocalID]string, figures map[model.LocalID]bool, folder string, logger *zap.Logger) error {
	filesets := map[int64]bool{}
	for _, img := range doc.Images {
		p, ok := files[img.ID]
		if !ok {
			continue
		}
		id := img.ID.Num()
		info, err := r.Image(ctx, id)
		if err != nil {
			return err
		}
		dest := filepath.Join(folder, filepath.FromSlash(p))
		if strings.HasPrefix(p, model.PixelImagesDir+"/") || info.FilesetID == 0 {
			logger.Info("exporting image", zap.Int64("image_id", id), zap.String("path", p))
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			if err := imp.ExportImage(ctx, id, dest); err != nil {
				return fmt.Errorf("export image %d: %w", id, err)
			}
			continue
		}
		if filesets[info.FilesetID] {
			continue
		}
		filesets[info.FilesetID] = true
		logger.Info("downloading fileset", zap.Int64("image_id", id), zap.Int64("fileset_id", info.FilesetID))
		dir := filepath.Join(folder, filepath.FromSlash(path.Dir(p)))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := imp.Download(ctx, server.ObjectRef{Kind: server.Image, ID: id}, dir); err != nil {
			return fmt.Errorf("download image %d: %w", id, err)
		}
	}

	for _, a := range doc.Annotations {
		f, ok := a.(*model.FileAnnotation)
		if !ok || figures[f.ID] {
			continue
		}
		p, ok := files[f.ID]
		if !ok {
			continue
		}
		dest := filepath.Join(folder, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := imp.Download(ctx, server.ObjectRef{Kind: server.Annotation, ID: f.ID.Num()}, dest); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				logger.Warn("file annotation payload missing", zap.String("annotation", string(f.ID)))
				continue
			}
			return fmt.Errorf("download file annotation %s: %w", f.ID, err)
		}
	}
	return nil
}

func modelKind(k server.Kind) model.Kind {
	switch k {
	case server.Project:
		return model.KindProject
	case server.Dataset:
		return model.KindDataset
	case server.Screen:
		return model.KindScreen
	case server.Plate:
		return model.KindPlate
	}
	return model.KindImage
}

func now(f func() time.Time) time.Time {
	if f == nil {
		return time.Now()
	}
	return f()
}

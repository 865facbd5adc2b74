package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/archive"
	"github.com/ome/omero-cli-transfer/internal/importer"
	"github.com/ome/omero-cli-transfer/internal/metrics"
	"github.com/ome/omero-cli-transfer/internal/omexml"
	"github.com/ome/omero-cli-transfer/internal/populate"
	"github.com/ome/omero-cli-transfer/internal/provenance"
	"github.com/ome/omero-cli-transfer/internal/reconcile"
	"github.com/ome/omero-cli-transfer/internal/server"
	"github.com/ome/omero-cli-transfer/internal/transport"
)

// FolderHash is the md5 provenance value of a package unpacked from an
// already extracted folder.
const FolderHash = "imported from folder"

// Fetcher retrieves a remote package into dir.
type Fetcher interface {
	Fetch(ctx context.Context, uri, dir string) (string, error)
}

// UnpackOptions tunes Unpack.
type UnpackOptions struct {
	// FromFolder treats the source as an extracted package folder.
	FromFolder bool
	// Output is the extraction folder; <parent>/<stem> of the package
	// when empty.
	Output string
	Merge  bool
	// Figures recreates packed figures with patched image references.
	Figures bool
	// InPlace imports files by linking them instead of copying.
	InPlace  bool
	Skip     []string
	Metadata provenance.Selection
	// Fetch downloads s3:// sources.
	Fetch   Fetcher
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// UnpackResult summarizes an unpack.
type UnpackResult struct {
	Folder string
	Hash   string
	// Imported lists the package paths handed to the importer.
	Imported []string
	Images   reconcile.IdentifierMap
	Skips    []reconcile.Skip
	Report   *populate.Report
}

// Unpack imports the package at source into g. imp imports the package
// files into the same server g reads from.
func Unpack(ctx context.Context, g server.Gateway, imp importer.Importer, source string, opts UnpackOptions) (res *UnpackResult, err error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics != nil {
		defer func() { opts.Metrics.Run("unpack", err) }()
	}
	logger := opts.Logger
	lc := NewLifecycle(Packaged, logger)

	folder, hash, err := open(ctx, source, opts)
	if err != nil {
		return nil, err
	}
	absFolder, err := filepath.Abs(folder)
	if err != nil {
		return nil, err
	}
	res = &UnpackResult{Folder: absFolder, Hash: hash}
	if err := lc.Advance(Unpacked); err != nil {
		return nil, err
	}

	doc, err := omexml.ReadFile(filepath.Join(absFolder, omexml.DocumentFile))
	if err != nil {
		return nil, err
	}
	if err := lc.Advance(Reconciling); err != nil {
		return nil, err
	}
	rec, err := reconcile.Reconcile(doc)
	if err != nil {
		return nil, err
	}
	for _, id := range rec.Unplaced {
		logger.Warn("image has no origin path, it will not be imported", zap.String("image", string(id)))
	}

	keep := reconcile.WithoutProvenance(g)
	destination := map[string][]int64{}
	for _, f := range rec.Files {
		importPath := absFolder + "/./" + f
		logger.Info("importing", zap.String("path", f))
		if err := imp.Import(ctx, importPath, importer.ImportOptions{InPlace: opts.InPlace, Skip: opts.Skip}); err != nil {
			return nil, fmt.Errorf("import %s: %w", f, err)
		}
		res.Imported = append(res.Imported, f)

		ids, err := g.ImageIDsByClientPath(ctx, clientPrefix(absFolder, f))
		if err != nil {
			return nil, err
		}
		var fresh []int64
		for _, id := range ids {
			ok, err := keep(ctx, id)
			if err != nil {
				return nil, err
			}
			if ok {
				fresh = append(fresh, id)
			}
		}
		if err := deleteROIs(ctx, g, fresh); err != nil {
			return nil, err
		}
		destination[importPath] = fresh
	}

	images, skips, err := reconcile.Match(ctx, rec.Sources, destination, nil)
	if err != nil {
		return nil, err
	}
	for _, s := range skips {
		logger.Warn("images not mapped",
			zap.String("path", s.Path),
			zap.String("reason", string(s.Reason)),
			zap.Int64s("source", s.Source),
			zap.Int64s("destination", s.Destination))
	}
	res.Images, res.Skips = images, skips
	if err := lc.Advance(Populating); err != nil {
		return nil, err
	}

	report, err := populate.Populate(ctx, g, rec.Document, images, populate.Options{
		Folder:         absFolder,
		Hash:           hash,
		Metadata:       opts.Metadata,
		Merge:          opts.Merge,
		IncludeFigures: opts.Figures,
		Logger:         logger,
	})
	res.Report = report
	if err != nil {
		return res, err
	}
	if err := lc.Advance(Done); err != nil {
		return nil, err
	}

	if m := opts.Metrics; m != nil {
		m.ImagesMapped(len(images))
		skipped := 0
		for _, s := range skips {
			skipped += len(s.Source)
		}
		m.ImagesSkipped(skipped)
		m.AnnotationsCreated(len(report.Annotations))
		m.ROIsCreated(report.ROIs)
		m.LinksCreated(report.Links)
	}
	return res, nil
}

// open locates, and unless it is a folder extracts, the package. It returns
// the package folder and the md5 provenance value.
func open(ctx context.Context, source string, opts UnpackOptions) (string, string, error) {
	if opts.FromFolder {
		st, err := os.Stat(source)
		if err != nil || !st.IsDir() {
			return "", "", fmt.Errorf("%w: folder %s cannot be found", apperrors.ErrInvalidInput, source)
		}
		return source, FolderHash, nil
	}

	local := source
	if transport.IsRemote(source) {
		if opts.Fetch == nil {
			return "", "", fmt.Errorf("%w: no object storage configured for %s", apperrors.ErrInvalidInput, source)
		}
		dir, err := os.MkdirTemp("", "omero-transfer-*")
		if err != nil {
			return "", "", err
		}
		defer os.RemoveAll(dir)
		if local, err = opts.Fetch.Fetch(ctx, source, dir); err != nil {
			return "", "", err
		}
	}

	if _, err := archive.FormatOf(local); err != nil {
		return "", "", err
	}
	hash, err := archive.MD5(local)
	if err != nil {
		return "", "", err
	}
	folder := opts.Output
	if folder == "" {
		stem := strings.TrimSuffix(filepath.Base(local), filepath.Ext(local))
		parent := filepath.Dir(source)
		if transport.IsRemote(source) {
			parent = "."
		}
		folder = filepath.Join(parent, stem)
	}
	if err := archive.Extract(ctx, local, folder); err != nil {
		return "", "", err
	}
	return folder, hash, nil
}

// clientPrefix is the client path prefix the files of an imported package
// path are registered under. Directory paths keep their separator so a
// sibling directory sharing the prefix is not matched.
func clientPrefix(absFolder, p string) string {
	q := strings.TrimPrefix(filepath.ToSlash(filepath.Join(absFolder, filepath.FromSlash(p))), "/")
	if strings.HasSuffix(p, "/") {
		q += "/"
	}
	return q
}

// deleteROIs removes the ROIs an import created, which the document's
// own ROIs replace.
func deleteROIs(ctx context.Context, g server.Gateway, images []int64) error {
	for _, id := range images {
		rois, err := g.ROIs(ctx, id)
		if err != nil {
			return err
		}
		for _, roi := range rois {
			if err := g.Delete(ctx, server.ObjectRef{Kind: server.ROI, ID: roi.ID}, true); err != nil {
				return fmt.Errorf("delete roi %d of image %d: %w", roi.ID, id, err)
			}
		}
	}
	return nil
}

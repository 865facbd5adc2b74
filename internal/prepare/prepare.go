// Package prepare describes files on local disk as a transfer document, so
// that data never held by a server can be unpacked like a package.
package prepare

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/buildinfo"
	"github.com/ome/omero-cli-transfer/internal/importer"
	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/omexml"
	"github.com/ome/omero-cli-transfer/internal/provenance"
)

type Options struct {
	// FileList reads targets from a text file, one path per line, instead
	// of walking a folder.
	FileList  bool
	Inspector importer.Inspector
	// Allocator hands out the document's ids; a fresh allocator is used
	// when nil.
	Allocator *model.IDAllocator
	Now       func() time.Time
	Logger    *zap.Logger
}

// Result is a prepared document and where it was written.
type Result struct {
	Document *model.Document
	// Path is the transfer.xml written.
	Path string
	// Base is the folder target paths are relative to.
	Base    string
	Targets []string
}

// Prepare builds and writes transfer.xml for a folder or a file list.
// With a folder the document is written into it; with a file list it is
// written next to the list, and absolute entries are made relative to
// the list's folder.
func Prepare(ctx context.Context, target string, opts Options) (*Result, error) {
	if opts.Inspector == nil {
		opts.Inspector = importer.Local{}
	}
	if opts.Allocator == nil {
		opts.Allocator = model.NewIDAllocator()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var (
		base    string
		targets []string
		err     error
	)
	if opts.FileList {
		base = filepath.Dir(target)
		targets, err = readFileList(target, base)
	} else {
		base = target
		targets, err = folderTargets(ctx, target, opts.Inspector, opts.Logger)
	}
	if err != nil {
		return nil, err
	}
	base, err = filepath.Abs(base)
	if err != nil {
		return nil, err
	}

	p := &preparer{
		alloc: opts.Allocator,
		doc:   &model.Document{Creator: buildinfo.Software + " " + buildinfo.ToolVersion()},
		meta: []model.MapPair{
			{Key: provenance.Software.Key(), Value: buildinfo.Software},
			{Key: provenance.Version.Key(), Value: buildinfo.ToolVersion()},
			{Key: provenance.Timestamp.Key(), Value: opts.Now().Format(provenance.TimestampLayout)},
		},
	}
	for _, t := range targets {
		abs := filepath.Join(base, filepath.FromSlash(t))
		opts.Logger.Info("describing file", zap.String("path", abs))
		desc, err := opts.Inspector.Describe(ctx, abs)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", t, err)
		}
		p.add(t, desc)
	}
	if err := p.doc.Validate(); err != nil {
		return nil, err
	}

	out := filepath.Join(base, omexml.DocumentFile)
	if err := omexml.WriteFile(out, p.doc); err != nil {
		return nil, err
	}
	return &Result{Document: p.doc, Path: out, Base: base, Targets: targets}, nil
}

func readFileList(list, base string) ([]string, error) {
	f, err := os.Open(list)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	defer f.Close()
	var targets []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if filepath.IsAbs(line) {
			rel, err := filepath.Rel(base, line)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
			}
			line = rel
		}
		targets = append(targets, filepath.ToSlash(line))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return targets, nil
}

// folderTargets walks folder and groups its files into import targets.
// A file whose import would consume other files absorbs them; a file no
// import would read is dropped.
func folderTargets(ctx context.Context, folder string, insp importer.Inspector, logger *zap.Logger) ([]string, error) {
	st, err := os.Stat(folder)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: folder %s cannot be found", apperrors.ErrInvalidInput, folder)
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, err
	}
	var files []string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		if rel == omexml.DocumentFile {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", folder, err)
	}

	consumed := map[string]bool{}
	for _, f := range files {
		if consumed[f] {
			continue
		}
		used, err := insp.ImportFiles(ctx, filepath.Join(abs, filepath.FromSlash(f)))
		if err != nil {
			return nil, fmt.Errorf("list import files of %s: %w", f, err)
		}
		if len(used) == 0 {
			logger.Info("file is not importable", zap.String("path", f))
			consumed[f] = true
			continue
		}
		for _, u := range used {
			rel, err := filepath.Rel(abs, u)
			if err != nil {
				continue
			}
			if rel = filepath.ToSlash(rel); rel != f {
				consumed[rel] = true
			}
		}
	}
	return slices.DeleteFunc(files, func(f string) bool { return consumed[f] }), nil
}

type preparer struct {
	alloc *model.IDAllocator
	doc   *model.Document
	meta  []model.MapPair
}

// add appends the images and plates of one target.
func (p *preparer) add(target string, desc *importer.Description) {
	refs := map[string]model.LocalID{}
	for _, d := range desc.Images {
		id := p.alloc.Next(model.KindImage)
		refs[d.ID] = id
		name := d.Name
		if len(desc.Images) > 1 {
			if name == "" {
				name = "0"
			}
			name = filepath.Base(filepath.FromSlash(target)) + " [" + name + "]"
		}
		pathAnn := model.NewServerPathAnnotation(p.alloc.Next(model.KindAnnotation), target)
		metaAnn := model.NewMetadataAnnotation(p.alloc.Next(model.KindAnnotation), model.PrepareNamespace, p.meta)
		p.doc.Annotations = append(p.doc.Annotations, pathAnn, metaAnn)
		p.doc.Images = append(p.doc.Images, &model.Image{
			ID:   id,
			Name: name,
			Pixels: model.Pixels{
				ID:             model.NewLocalID(model.KindPixels, id.Num()),
				DimensionOrder: d.DimensionOrder,
				Type:           d.Type,
				SizeX:          d.SizeX,
				SizeY:          d.SizeY,
				SizeZ:          d.SizeZ,
				SizeC:          d.SizeC,
				SizeT:          d.SizeT,
			},
			AnnotationRefs: []model.LocalID{pathAnn.ID, metaAnn.ID},
		})
	}
	for _, dp := range desc.Plates {
		pl := &model.Plate{ID: p.alloc.Next(model.KindPlate), Name: dp.Name}
		for _, dw := range dp.Wells {
			w := &model.Well{ID: p.alloc.Next(model.KindWell), Row: dw.Row, Column: dw.Column}
			for _, ds := range dw.Samples {
				ref, ok := refs[ds.ImageRef]
				if !ok {
					continue
				}
				w.Samples = append(w.Samples, &model.WellSample{
					ID:       p.alloc.Next(model.KindWellSample),
					Index:    ds.Index,
					ImageRef: ref,
				})
			}
			pl.Wells = append(pl.Wells, w)
		}
		pathAnn := model.NewServerPathAnnotation(p.alloc.Next(model.KindAnnotation), target)
		p.doc.Annotations = append(p.doc.Annotations, pathAnn)
		pl.AnnotationRefs = []model.LocalID{pathAnn.ID}
		p.doc.Plates = append(p.doc.Plates, pl)
	}
}

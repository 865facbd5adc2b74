// Package reconcile re-establishes which destination images correspond to
// which document images after the package files have been imported.
package reconcile

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/server"
)

// Result is a document prepared for population.
type Result struct {
	// Document is a copy of the input with the origin-path annotations of
	// images removed, along with every reference to them. Plate origin
	// paths are kept; they locate the plates on the destination.
	Document *model.Document
	// Sources maps each origin path to the ascending source ids of the
	// images recorded under it.
	Sources map[string][]int64
	// Files lists the paths to import, each once, with the mock_folder
	// sentinel stripped.
	Files []string
	// Unplaced lists images that carry no origin path.
	Unplaced []model.LocalID
}

// Reconcile derives the import file list and the source side of the image
// mapping from doc. doc itself is not modified.
func Reconcile(doc *model.Document) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	out := doc.Clone()
	res := &Result{Document: out, Sources: map[string][]int64{}}

	drop := map[model.LocalID]bool{}
	seen := map[string]bool{}
	for _, img := range out.Images {
		p, _, ok := out.ServerPathOf(img.AnnotationRefs)
		if !ok {
			res.Unplaced = append(res.Unplaced, img.ID)
			continue
		}
		res.Sources[p] = append(res.Sources[p], img.ID.Num())
		f := SourceKey(p)
		if !seen[f] {
			seen[f] = true
			res.Files = append(res.Files, f)
		}
		for _, id := range out.ServerPathAnnotations(img.AnnotationRefs) {
			drop[id] = true
		}
	}
	out.RemoveAnnotations(drop)

	for p := range res.Sources {
		slices.Sort(res.Sources[p])
	}
	sort.Strings(res.Files)
	return res, nil
}

// SourceKey strips the mock_folder sentinel from an origin path, keeping
// the trailing separator.
func SourceKey(p string) string {
	return strings.TrimSuffix(p, model.MockFolder)
}

// DestinationKey returns the part of an import path after the last "/./",
// which is the origin path it was imported from.
func DestinationKey(p string) string {
	if i := strings.LastIndex(p, "/./"); i >= 0 {
		return p[i+3:]
	}
	return p
}

// IdentifierMap maps document images to destination image ids.
type IdentifierMap map[model.LocalID]int64

// Reason explains a Skip.
type Reason string

const (
	ReasonNotImported   Reason = "no destination images for path"
	ReasonCountMismatch Reason = "source and destination image counts differ"
)

// Skip is a path whose images could not be mapped. Skips are diagnostics,
// not failures.
type Skip struct {
	Path        string
	Reason      Reason
	Source      []int64
	Destination []int64
}

func (s Skip) String() string {
	return fmt.Sprintf("%s: %s (source %v, destination %v)", s.Path, s.Reason, s.Source, s.Destination)
}

// FilterFunc reports whether a destination image may take part in the
// mapping.
type FilterFunc func(ctx context.Context, imageID int64) (bool, error)

// Match pairs source and destination images that share a path. source is
// keyed by origin path, destination by import path. A nil filter keeps
// every destination image.
func Match(ctx context.Context, source, destination map[string][]int64, filter FilterFunc) (IdentifierMap, []Skip, error) {
	src := map[string][]int64{}
	for k, ids := range source {
		key := SourceKey(k)
		src[key] = append(src[key], ids...)
	}
	dst := map[string][]int64{}
	for k, ids := range destination {
		key := DestinationKey(k)
		dst[key] = append(dst[key], ids...)
	}

	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := IdentifierMap{}
	var skips []Skip
	for _, k := range keys {
		srcIDs := sorted(src[k])
		candidates, ok := dst[k]
		if !ok || len(candidates) == 0 {
			skips = append(skips, Skip{Path: k, Reason: ReasonNotImported, Source: srcIDs})
			continue
		}
		var dstIDs []int64
		for _, id := range sorted(candidates) {
			if filter != nil {
				keep, err := filter(ctx, id)
				if err != nil {
					return nil, nil, fmt.Errorf("filter destination image %d: %w", id, err)
				}
				if !keep {
					continue
				}
			}
			dstIDs = append(dstIDs, id)
		}
		pairs, ok := PairPositional(srcIDs, dstIDs)
		if !ok {
			skips = append(skips, Skip{Path: k, Reason: ReasonCountMismatch, Source: srcIDs, Destination: dstIDs})
			continue
		}
		for s, d := range pairs {
			out[model.NewLocalID(model.KindImage, s)] = d
		}
	}
	return out, skips, nil
}

// PairPositional pairs the i-th smallest source id with the i-th smallest
// destination id. It reports false, pairing nothing, when the counts
// differ.
func PairPositional(src, dst []int64) (map[int64]int64, bool) {
	if len(src) != len(dst) {
		return nil, false
	}
	s, d := sorted(src), sorted(dst)
	out := make(map[int64]int64, len(s))
	for i := range s {
		out[s[i]] = d[i]
	}
	return out, true
}

func sorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// AnnotationLister is the read access WithoutProvenance needs.
type AnnotationLister interface {
	Annotations(ctx context.Context, owner server.ObjectRef) ([]server.AnnotationInfo, error)
}

// WithoutProvenance keeps destination images that carry no annotation in
// the transfer namespace, or any namespace below it. Such images were
// populated by an earlier unpack.
func WithoutProvenance(r AnnotationLister) FilterFunc {
	return func(ctx context.Context, imageID int64) (bool, error) {
		anns, err := r.Annotations(ctx, server.ObjectRef{Kind: server.Image, ID: imageID})
		if err != nil {
			return false, err
		}
		for _, a := range anns {
			if strings.HasPrefix(a.Namespace, model.TransferNamespace) {
				return false, nil
			}
		}
		return true, nil
	}
}

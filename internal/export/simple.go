// Package export lays a packed folder out for the alternative package
// profiles: the human-readable layout, the BioImage Archive submission
// table and RO-Crate metadata.
package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ome/omero-cli-transfer/internal/model"
	"github.com/ome/omero-cli-transfer/internal/omexml"
)

// SimpleLayout finishes a human-readable package. Images exported under
// pixel_images/ are moved to the readable path recorded ahead of the
// export path, the export path annotations are dropped, pixel_images/ is
// removed and transfer.xml is rewritten. doc is not modified; the
// rewritten document is returned.
func SimpleLayout(folder string, doc *model.Document) (*model.Document, error) {
	out := doc.Clone()
	drop := map[model.LocalID]bool{}
	for _, img := range out.Images {
		ids := out.ServerPathAnnotations(img.AnnotationRefs)
		if len(ids) < 2 {
			continue
		}
		last := ids[len(ids)-1]
		exported, _ := model.ServerPath(out.Annotation(last))
		if !strings.HasPrefix(exported, model.PixelImagesDir+"/") {
			continue
		}
		readable, _ := model.ServerPath(out.Annotation(ids[0]))
		if err := move(filepath.Join(folder, filepath.FromSlash(exported)),
			filepath.Join(folder, filepath.FromSlash(readable))); err != nil {
			return nil, fmt.Errorf("move %s: %w", exported, err)
		}
		drop[last] = true
	}
	out.RemoveAnnotations(drop)

	if err := os.RemoveAll(filepath.Join(folder, model.PixelImagesDir)); err != nil {
		return nil, err
	}
	if err := omexml.WriteFile(filepath.Join(folder, omexml.DocumentFile), out); err != nil {
		return nil, err
	}
	return out, nil
}

// move renames src to dst, creating parents. A missing src is not an
// error: nothing was exported for it.
func move(src, dst string) error {
	if src == dst {
		return nil
	}
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// removeEmptyDirs deletes every directory below root that holds no files
// once its empty children are gone. root itself is kept.
func removeEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && p != root {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			if err := os.Remove(dirs[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/atomicfile"
	"github.com/ome/omero-cli-transfer/internal/model"
)

// SubmissionFile is the BioImage Archive file list written into the
// package folder.
const SubmissionFile = "submission.tsv"

const (
	colFilename = "filename"
	colDataType = "data_type"
	colComment  = "comment"
	colIDs      = "original_omero_ids"

	// blank fills cells that have no value.
	blank = " "
)

// Submission writes submission.tsv for a project or dataset package and
// moves every image file to <project>/<dataset>/<file> (or
// <dataset>/<file> for a dataset). files maps images and file annotations
// to their package paths. An image reached through several datasets is
// laid out once, under the first.
func Submission(folder string, doc *model.Document, root model.Kind, files map[model.LocalID]string) error {
	if root != model.KindProject && root != model.KindDataset {
		return fmt.Errorf("%w: a %s cannot be packaged for the BioImage Archive", apperrors.ErrInvalidInput, root)
	}
	cols := submissionColumns(doc)

	var rows [][]string
	rowOf := map[string]int{}
	moves := map[string]string{}
	var order []string
	for _, img := range doc.Images {
		orig, ok := files[img.ID]
		if !ok {
			continue
		}
		rels, err := imageFiles(folder, orig)
		if err != nil {
			return err
		}
		base := datasetOf(doc, img.ID)
		if root == model.KindProject && len(doc.Projects) > 0 {
			base = path.Join(doc.Projects[0].Name, base)
		}
		id := strconv.FormatInt(img.ID.Num(), 10)
		for _, rel := range rels {
			dest := path.Join(base, rel)
			src := path.Join(path.Dir(orig), rel)
			if prev, seen := moves[src]; seen {
				dest = prev
			} else {
				moves[src] = dest
				order = append(order, src)
			}
			if i, dup := rowOf[dest]; dup {
				rows[i][len(cols)-1] += ", " + id
				continue
			}
			row := append([]string{dest, "Image"}, annotationValues(doc, img, cols)...)
			row = append(row, id)
			rowOf[dest] = len(rows)
			rows = append(rows, row)
		}
	}
	for _, a := range doc.Annotations {
		f, ok := a.(*model.FileAnnotation)
		if !ok {
			continue
		}
		p, ok := files[f.ID]
		if !ok {
			continue
		}
		row := []string{p, "File Annotation"}
		for range cols[2 : len(cols)-1] {
			row = append(row, blank)
		}
		rows = append(rows, append(row, annotatedImages(doc, f.ID)))
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'
	if err := w.Write(cols); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	if err := atomicfile.WriteFile(filepath.Join(folder, SubmissionFile), buf.Bytes(), 0o644); err != nil {
		return err
	}

	for _, src := range order {
		if err := move(filepath.Join(folder, filepath.FromSlash(src)),
			filepath.Join(folder, filepath.FromSlash(moves[src]))); err != nil {
			return fmt.Errorf("move %s: %w", src, err)
		}
	}
	return removeEmptyDirs(folder)
}

// submissionColumns lists filename, data_type, comment when any source
// comment exists, the keys of image key-value annotations in first-seen
// order, then original_omero_ids.
func submissionColumns(doc *model.Document) []string {
	cols := []string{colFilename, colDataType}
	for _, a := range doc.Annotations {
		if c, ok := a.(*model.CommentAnnotation); ok && !c.ID.Synthetic() {
			cols = append(cols, colComment)
			break
		}
	}
	for _, img := range doc.Images {
		for _, ref := range img.AnnotationRefs {
			m, ok := doc.Annotation(ref).(*model.MapAnnotation)
			if !ok {
				continue
			}
			for _, kv := range m.Values {
				if !slices.Contains(cols, kv.Key) {
					cols = append(cols, kv.Key)
				}
			}
		}
	}
	return append(cols, colIDs)
}

// imageFiles lists the files of an image relative to the directory of its
// origin path. A mock folder expands to every file below it.
func imageFiles(folder, orig string) ([]string, error) {
	if path.Base(orig) != model.MockFolder {
		return []string{path.Base(orig)}, nil
	}
	dir := filepath.Join(folder, filepath.FromSlash(path.Dir(orig)))
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

func datasetOf(doc *model.Document, img model.LocalID) string {
	for _, ds := range doc.Datasets {
		if slices.Contains(ds.ImageRefs, img) {
			return ds.Name
		}
	}
	return ""
}

// annotationValues fills the comment and key-value columns of an image
// row from annotations carried over from the source server.
func annotationValues(doc *model.Document, img *model.Image, cols []string) []string {
	var vals []string
	for _, col := range cols[2 : len(cols)-1] {
		var found []string
		for _, ref := range img.AnnotationRefs {
			if ref.Synthetic() {
				continue
			}
			switch a := doc.Annotation(ref).(type) {
			case *model.CommentAnnotation:
				if col == colComment && len(found) == 0 {
					found = append(found, a.Value)
				}
			case *model.MapAnnotation:
				if col == colComment {
					continue
				}
				for _, kv := range a.Values {
					if kv.Key == col {
						found = append(found, kv.Value)
					}
				}
			}
		}
		if len(found) == 0 {
			vals = append(vals, blank)
			continue
		}
		vals = append(vals, strings.Join(found, ", "))
	}
	return vals
}

func annotatedImages(doc *model.Document, ann model.LocalID) string {
	var ids []string
	for _, img := range doc.Images {
		if slices.Contains(img.AnnotationRefs, ann) {
			ids = append(ids, strconv.FormatInt(img.ID.Num(), 10))
		}
	}
	if len(ids) == 0 {
		return blank
	}
	return strings.Join(ids, ", ")
}

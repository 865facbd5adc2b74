package export

import (
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"time"

	"github.com/ome/omero-cli-transfer/internal/atomicfile"
	"github.com/ome/omero-cli-transfer/internal/model"
)

// CrateFile is the RO-Crate metadata descriptor written into the package
// folder.
const CrateFile = "ro-crate-metadata.json"

const (
	crateContext = "https://w3id.org/ro/crate/1.1/context"
	crateProfile = "https://w3id.org/ro/crate/1.1"
)

type crateRef struct {
	ID string `json:"@id"`
}

type crateEntity struct {
	ID             string     `json:"@id"`
	Type           string     `json:"@type"`
	Name           string     `json:"name,omitempty"`
	Description    string     `json:"description,omitempty"`
	DatePublished  string     `json:"datePublished,omitempty"`
	EncodingFormat string     `json:"encodingFormat,omitempty"`
	About          *crateRef  `json:"about,omitempty"`
	ConformsTo     *crateRef  `json:"conformsTo,omitempty"`
	HasPart        []crateRef `json:"hasPart,omitempty"`
}

type crate struct {
	Context string        `json:"@context"`
	Graph   []crateEntity `json:"@graph"`
}

// CrateOptions describes the root dataset of a crate.
type CrateOptions struct {
	Name        string
	Description string
	Now         time.Time
}

// ROCrate writes ro-crate-metadata.json with one File entity per image
// file. files maps images to their package paths; a mock folder stands for
// every file below it.
func ROCrate(folder string, doc *model.Document, files map[model.LocalID]string, opts CrateOptions) error {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	root := crateEntity{
		ID:            "./",
		Type:          "Dataset",
		Name:          opts.Name,
		Description:   opts.Description,
		DatePublished: opts.Now.UTC().Format(time.RFC3339),
	}
	var parts []crateEntity
	seen := map[string]bool{}
	for _, img := range doc.Images {
		orig, ok := files[img.ID]
		if !ok {
			continue
		}
		rels, err := imageFiles(folder, orig)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			id := path.Join(path.Dir(orig), rel)
			if seen[id] {
				continue
			}
			seen[id] = true
			root.HasPart = append(root.HasPart, crateRef{ID: id})
			parts = append(parts, crateEntity{
				ID:             id,
				Type:           "File",
				Name:           img.Name,
				EncodingFormat: encodingFormat(id),
			})
		}
	}

	c := crate{
		Context: crateContext,
		Graph: append([]crateEntity{
			{
				ID:         CrateFile,
				Type:       "CreativeWork",
				About:      &crateRef{ID: "./"},
				ConformsTo: &crateRef{ID: crateProfile},
			},
			root,
		}, parts...),
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode crate: %w", err)
	}
	return atomicfile.WriteFile(filepath.Join(folder, CrateFile), append(data, '\n'), 0o644)
}

// encodingFormat guesses a media type from the file extension, falling
// back to "image".
func encodingFormat(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "image"
}

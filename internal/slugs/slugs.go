// Package slugs turns entity names into filesystem-safe path components.
package slugs

import (
	"strconv"
	"strings"

	goslug "github.com/gosimple/slug"
)

// ComponentSlug converts a string to a slug usable as a single path
// component.
func ComponentSlug(s string) string {
	slugged := goslug.Make(s)
	if slugged == "" {
		slugged = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "-"))
		slugged = strings.ReplaceAll(slugged, "/", "-")
	}
	return slugged
}

// FolderName names the folder of a project or dataset in the human-readable
// package layout, e.g. "12_my-dataset".
func FolderName(id int64, name string) string {
	s := ComponentSlug(name)
	if s == "" {
		return strconv.FormatInt(id, 10)
	}
	return strconv.FormatInt(id, 10) + "_" + s
}

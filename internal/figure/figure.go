// Package figure reads and rewrites the image references embedded in
// OMERO.figure JSON files.
package figure

import (
	"regexp"
	"strconv"
)

// imageRef matches the serialized form OMERO.figure writes for a panel's
// image. The digit run is greedy, so a match always covers a whole number.
var imageRef = regexp.MustCompile(`"imageId": (\d+)`)

// ImageIDs returns every image id referenced by content, in order of
// appearance.
func ImageIDs(content []byte) []int64 {
	var ids []int64
	for _, m := range imageRef.FindAllSubmatch(content, -1) {
		id, err := strconv.ParseInt(string(m[1]), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// References reports whether content references any of ids.
func References(content []byte, ids map[int64]bool) bool {
	for _, id := range ImageIDs(content) {
		if ids[id] {
			return true
		}
	}
	return false
}

// Patch replaces every referenced source image id found in mapping with its
// destination id. Each reference is rewritten at most once, so a
// destination id that is also a source id is never rewritten again.
// References to unmapped ids are left alone.
func Patch(content []byte, mapping map[int64]int64) []byte {
	return imageRef.ReplaceAllFunc(content, func(m []byte) []byte {
		sub := imageRef.FindSubmatch(m)
		src, err := strconv.ParseInt(string(sub[1]), 10, 64)
		if err != nil {
			return m
		}
		dst, ok := mapping[src]
		if !ok {
			return m
		}
		return []byte(`"imageId": ` + strconv.FormatInt(dst, 10))
	})
}

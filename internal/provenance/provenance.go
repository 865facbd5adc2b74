// Package provenance selects and renders the transfer metadata recorded on
// packed images and plates.
package provenance

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/model"
)

// Field is a user-facing metadata selector.
type Field string

const (
	ImageID   Field = "img_id"
	PlateID   Field = "plate_id"
	Timestamp Field = "timestamp"
	Software  Field = "software"
	Version   Field = "version"
	Hostname  Field = "hostname"
	MD5       Field = "md5"
	OrigUser  Field = "orig_user"
	OrigGroup Field = "orig_group"
	DBID      Field = "db_id"
)

// Fields lists every field in the order they are written.
var Fields = []Field{ImageID, PlateID, Timestamp, Software, Version, Hostname, MD5, OrigUser, OrigGroup, DBID}

// keys maps a field to the key it is stored under.
var keys = map[Field]string{
	ImageID:   "origin_image_id",
	PlateID:   "origin_plate_id",
	Timestamp: "packing_timestamp",
	Software:  "software",
	Version:   "version",
	Hostname:  "origin_hostname",
	MD5:       "md5",
	OrigUser:  "original_user",
	OrigGroup: "original_group",
	DBID:      "database_id",
}

// TimestampLayout formats packing_timestamp.
const TimestampLayout = "02/01/2006, 15:04:05"

// PendingMD5 stands in for the package checksum until unpack computes it.
const PendingMD5 = "TBC"

// EmptyKey is the single key written when no field survives selection.
const EmptyKey = "empty_metadata"

// Key returns the storage key of f.
func (f Field) Key() string {
	return keys[f]
}

// Selection is a set of fields.
type Selection map[Field]bool

// All selects every field except the database id.
func All() Selection {
	sel := Selection{}
	for _, f := range Fields {
		if f != DBID {
			sel[f] = true
		}
	}
	return sel
}

// Parse reads "all", "none" or a list of field names. An empty list means
// all.
func Parse(values []string) (Selection, error) {
	var names []string
	for _, v := range values {
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			names = append(names, strings.ToLower(part))
		}
	}
	if len(names) == 0 {
		return All(), nil
	}
	sel := Selection{}
	for _, n := range names {
		switch n {
		case "all":
			for f := range All() {
				sel[f] = true
			}
		case "none":
		default:
			f := Field(n)
			if _, ok := keys[f]; !ok {
				return nil, fmt.Errorf("%w: unknown metadata field %q (want all, none or one of %s)",
					apperrors.ErrInvalidInput, n, strings.Join(fieldNames(), ", "))
			}
			sel[f] = true
		}
	}
	if slices.Contains(names, "none") && len(names) > 1 {
		return nil, fmt.Errorf("%w: metadata 'none' cannot be combined with other fields", apperrors.ErrInvalidInput)
	}
	return sel, nil
}

func fieldNames() []string {
	out := make([]string, len(Fields))
	for i, f := range Fields {
		out[i] = string(f)
	}
	return out
}

// Has reports whether f is selected.
func (s Selection) Has(f Field) bool {
	return s[f]
}

// Names returns the selected field names in canonical order.
func (s Selection) Names() []string {
	var out []string
	for _, f := range Fields {
		if s[f] {
			out = append(out, string(f))
		}
	}
	return out
}

// Source describes the packing session.
type Source struct {
	Hostname   string
	User       string
	Group      string
	DatabaseID string
	Software   string
	Version    string
	Now        time.Time
}

// PackPairs returns the metadata recorded for one packed object. isPlate
// selects origin_plate_id over origin_image_id.
func (s Selection) PackPairs(src Source, objectID int64, isPlate bool) []model.MapPair {
	values := map[Field]string{
		Timestamp: src.Now.Format(TimestampLayout),
		Software:  src.Software,
		Version:   src.Version,
		Hostname:  src.Hostname,
		MD5:       PendingMD5,
		OrigUser:  src.User,
		OrigGroup: src.Group,
		DBID:      src.DatabaseID,
	}
	if isPlate {
		values[PlateID] = strconv.FormatInt(objectID, 10)
	} else {
		values[ImageID] = strconv.FormatInt(objectID, 10)
	}
	pairs := []model.MapPair{}
	for _, f := range Fields {
		v, ok := values[f]
		if !ok || !s[f] {
			continue
		}
		pairs = append(pairs, model.MapPair{Key: f.Key(), Value: v})
	}
	return pairs
}

// UnpackPairs filters packed metadata down to the selected fields and
// replaces the checksum with hash. When nothing remains the result is the
// single pair empty_metadata=True.
func (s Selection) UnpackPairs(packed []model.MapPair, hash string) []model.MapPair {
	byKey := map[string]Field{}
	for f, k := range keys {
		byKey[k] = f
	}
	var out []model.MapPair
	for _, p := range packed {
		f, known := byKey[p.Key]
		if !known || !s[f] {
			continue
		}
		if f == MD5 {
			p.Value = hash
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return []model.MapPair{{Key: EmptyKey, Value: "True"}}
	}
	return out
}

package provenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/model"
)

func TestParse(t *testing.T) {
	sel, err := Parse(nil)
	require.NoError(t, err)
	assert.False(t, sel.Has(DBID))
	assert.True(t, sel.Has(MD5))

	sel, err = Parse([]string{"none"})
	require.NoError(t, err)
	assert.Empty(t, sel.Names())

	sel, err = Parse([]string{"img_id,db_id", "md5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"img_id", "md5", "db_id"}, sel.Names())

	_, err = Parse([]string{"colour"})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = Parse([]string{"none", "md5"})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPackPairs(t *testing.T) {
	src := Source{
		Hostname: "omero.example.org",
		User:     "alice",
		Group:    "lab",
		Software: "omero-cli-transfer",
		Version:  "1.0.0",
		Now:      time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC),
	}
	pairs := All().PackPairs(src, 42, false)
	assert.Equal(t, []model.MapPair{
		{Key: "origin_image_id", Value: "42"},
		{Key: "packing_timestamp", Value: "05/03/2024, 14:07:09"},
		{Key: "software", Value: "omero-cli-transfer"},
		{Key: "version", Value: "1.0.0"},
		{Key: "origin_hostname", Value: "omero.example.org"},
		{Key: "md5", Value: "TBC"},
		{Key: "original_user", Value: "alice"},
		{Key: "original_group", Value: "lab"},
	}, pairs)

	plate := All().PackPairs(src, 7, true)
	assert.Equal(t, model.MapPair{Key: "origin_plate_id", Value: "7"}, plate[0])

	none, err := Parse([]string{"none"})
	require.NoError(t, err)
	assert.Empty(t, none.PackPairs(src, 1, false))
}

func TestUnpackPairs(t *testing.T) {
	packed := []model.MapPair{
		{Key: "origin_image_id", Value: "42"},
		{Key: "md5", Value: "TBC"},
		{Key: "original_user", Value: "alice"},
	}
	sel, err := Parse([]string{"md5", "img_id"})
	require.NoError(t, err)
	assert.Equal(t, []model.MapPair{
		{Key: "origin_image_id", Value: "42"},
		{Key: "md5", Value: "abc123"},
	}, sel.UnpackPairs(packed, "abc123"))

	empty := []model.MapPair{{Key: EmptyKey, Value: "True"}}
	assert.Equal(t, empty, All().UnpackPairs(nil, "abc123"))

	none, err := Parse([]string{"none"})
	require.NoError(t, err)
	assert.Equal(t, empty, none.UnpackPairs(packed, "abc123"))
}

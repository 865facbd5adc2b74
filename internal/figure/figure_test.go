package figure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sample = `{"panels": [{"imageId": 12, "x": 120}, {"imageId": 123, "name": "imageId"}, {"imageId": 5}]}`

func TestImageIDs(t *testing.T) {
	assert.Equal(t, []int64{12, 123, 5}, ImageIDs([]byte(sample)))
	assert.Empty(t, ImageIDs([]byte(`{"panels": []}`)))
}

func TestReferencesMatchesWholeNumbers(t *testing.T) {
	assert.True(t, References([]byte(sample), map[int64]bool{123: true}))
	assert.False(t, References([]byte(sample), map[int64]bool{1: true, 23: true}))
}

func TestPatch(t *testing.T) {
	tests := []struct {
		name    string
		mapping map[int64]int64
		want    string
	}{
		{
			name:    "prefix ids are not confused",
			mapping: map[int64]int64{12: 900},
			want:    `{"panels": [{"imageId": 900, "x": 120}, {"imageId": 123, "name": "imageId"}, {"imageId": 5}]}`,
		},
		{
			name:    "swapped ids are not rewritten twice",
			mapping: map[int64]int64{12: 5, 5: 12},
			want:    `{"panels": [{"imageId": 5, "x": 120}, {"imageId": 123, "name": "imageId"}, {"imageId": 12}]}`,
		},
		{
			name:    "empty mapping",
			mapping: nil,
			want:    sample,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(Patch([]byte(sample), tt.mapping)))
		})
	}
}

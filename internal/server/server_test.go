package server

import (
	"errors"
	"testing"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
)

func TestParseObjectRef(t *testing.T) {
	tests := []struct {
		in      string
		want    ObjectRef
		wantErr bool
	}{
		{"Image:12", ObjectRef{Image, 12}, false},
		{"dataset:3", ObjectRef{Dataset, 3}, false},
		{"7", ObjectRef{Project, 7}, false},
		{"Plate:0", ObjectRef{}, true},
		{"Well:1", ObjectRef{}, true},
		{"Image:abc", ObjectRef{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseObjectRef(tt.in)
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrInvalidInput) {
					t.Fatalf("expected invalid input error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObjectRefString(t *testing.T) {
	if s := (ObjectRef{Kind: Screen, ID: 4}).String(); s != "Screen:4" {
		t.Errorf("String() = %q", s)
	}
}

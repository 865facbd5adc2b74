package cli

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "invalid input", err: fmt.Errorf("%w: bad flag", apperrors.ErrInvalidInput), want: ErrInvalidInput},
		{name: "not found", err: fmt.Errorf("read Image:3: %w", apperrors.ErrNotFound), want: ErrNotFound},
		{name: "corrupt", err: fmt.Errorf("%w: dangling ref", apperrors.ErrCorruptDocument), want: ErrCorruptDocument},
		{name: "subprocess", err: fmt.Errorf("import: %w", apperrors.ErrSubprocess), want: ErrSubprocessFailed},
		{name: "well", err: apperrors.ErrWellOccupied, want: ErrWellOccupied},
		{name: "transition", err: apperrors.ErrInvalidTransition, want: ErrInvalidTransition},
		{name: "other", err: errors.New("disk full"), want: ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorCode(tt.err); got != tt.want {
				t.Fatalf("errorCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleErrorJSONReportsAndFails(t *testing.T) {
	prev := jsonOutput
	t.Cleanup(func() { jsonOutput = prev })
	jsonOutput = true

	var err error
	out := captureStdout(t, func() {
		err = fail(fmt.Errorf("%w: Image:9", apperrors.ErrNotFound))
	})
	if !errors.Is(err, errReported) {
		t.Fatalf("expected errReported, got %v", err)
	}
	if !strings.Contains(out, `"code": "NOT_FOUND"`) {
		t.Fatalf("expected NOT_FOUND envelope, got %s", out)
	}
}

func TestHandleErrorTextAddsSuggestion(t *testing.T) {
	prev := jsonOutput
	t.Cleanup(func() { jsonOutput = prev })
	jsonOutput = false

	err := handleError(ErrNotFound, errors.New("no such image"), "check the id")
	if err == nil || !strings.Contains(err.Error(), "check the id") {
		t.Fatalf("expected suggestion in error, got %v", err)
	}
}

package cli

import (
	"errors"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
)

// Error codes for structured error responses.
// These codes are stable and can be relied upon by scripts.
const (
	ErrInvalidInput      = "INVALID_INPUT"
	ErrNotFound          = "NOT_FOUND"
	ErrCorruptDocument   = "CORRUPT_DOCUMENT"
	ErrSubprocessFailed  = "SUBPROCESS_FAILED"
	ErrWellOccupied      = "WELL_OCCUPIED"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrConfigInvalid     = "CONFIG_INVALID"
	ErrMissingArgument   = "MISSING_ARGUMENT"
	ErrInternal          = "INTERNAL_ERROR"
)

// Warning codes for non-fatal issues.
const (
	WarnImageSkipped   = "IMAGE_SKIPPED"
	WarnImageUnplaced  = "IMAGE_UNPLACED"
	WarnObjectSkipped  = "OBJECT_SKIPPED"
	WarnUploadDisabled = "UPLOAD_DISABLED"
)

var sentinelCodes = []struct {
	err  error
	code string
}{
	{apperrors.ErrInvalidInput, ErrInvalidInput},
	{apperrors.ErrNotFound, ErrNotFound},
	{apperrors.ErrCorruptDocument, ErrCorruptDocument},
	{apperrors.ErrSubprocess, ErrSubprocessFailed},
	{apperrors.ErrWellOccupied, ErrWellOccupied},
	{apperrors.ErrInvalidTransition, ErrInvalidTransition},
}

// errorCode maps err to the code of the first sentinel it wraps.
func errorCode(err error) string {
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return ErrInternal
}

func suggestionFor(code string) string {
	switch code {
	case ErrNotFound:
		return "Check the object id and that the configured user can read it"
	case ErrCorruptDocument:
		return "Run 'omero-transfer inspect' on the package folder to see which reference is broken"
	case ErrSubprocessFailed:
		return "Run with --verbose to see the client's output"
	}
	return ""
}

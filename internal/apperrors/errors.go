package apperrors

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("object not found or outside current permissions")
	ErrCorruptDocument   = errors.New("corrupt transfer document")
	ErrSubprocess        = errors.New("import/export subprocess failed")
	ErrWellOccupied      = errors.New("well position already occupied")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

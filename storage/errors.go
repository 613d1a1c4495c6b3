package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrTerminal is returned when a transition targets a recipe whose
	// import already reached Completed or Failed.
	ErrTerminal = errors.New("import already in a terminal state")

	// ErrImportInProgress is returned when a new import is requested for a
	// recipe that is still Pending.
	ErrImportInProgress = errors.New("import already in progress")

	// ErrQuotaExceeded is returned when a reservation would pass the
	// monthly import limit.
	ErrQuotaExceeded = errors.New("monthly import quota exceeded")

	// ErrImageTooLarge is returned when an image exceeds the store bound.
	ErrImageTooLarge = errors.New("image exceeds size limit")
)

// Package apperr defines the sentinel errors shared across the runtime.
package apperr

import "errors"

var (
	// ErrInvalidState marks a structural operation attempted in a document
	// configuration that makes it ill-defined. The document is left unchanged.
	ErrInvalidState = errors.New("invalid state")

	// ErrNoSuchNeighbor marks a move or merge with no cell in the requested
	// direction.
	ErrNoSuchNeighbor = errors.New("no such neighbor")

	// ErrKernelNotReady marks a kernel-dependent operation attempted while the
	// session is not ready. The operation is dropped, never queued.
	ErrKernelNotReady = errors.New("kernel not ready")

	// ErrAlreadyStarted marks an attempt to start a kernel session that is
	// already running.
	ErrAlreadyStarted = errors.New("kernel already started")

	// ErrAmbiguousSaveResponse marks a save whose transport succeeded but whose
	// status signal did not match the expected success code, after retries
	// were exhausted.
	ErrAmbiguousSaveResponse = errors.New("ambiguous save response")

	// ErrTransportFailure marks a network-level error on a remote call.
	ErrTransportFailure = errors.New("transport failure")

	// ErrNotFound marks a missing remote or local document.
	ErrNotFound = errors.New("not found")
)

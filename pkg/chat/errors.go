package chat

import "errors"

// Sentinel errors surfaced by the ingestion pipeline. The HTTP edge and
// the realtime gateway map these to status codes / error frames; none of
// them leaves partial state behind.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	// ErrGroupFull propagates the Membership Authority's capacity error
	// unchanged; the core never owns the cap itself.
	ErrGroupFull = errors.New("group is full")
)

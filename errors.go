package medley

import "errors"

// Namespace prefixes every sentinel error so callers can tell at a glance
// which subsystem raised it, even after wrapping.
const Namespace = "medley"

// Wire-stable error taxonomy. Providers attach their own errors to a
// terminal frame; the relay may substitute ErrOperationCancelled for any of
// these when the operation was cancelled before the terminal frame arrived.
var (
	ErrBrowseFailed          = errors.New(Namespace + ": browse failed")
	ErrSearchFailed          = errors.New(Namespace + ": search failed")
	ErrQueryFailed           = errors.New(Namespace + ": query failed")
	ErrMetadataFailed        = errors.New(Namespace + ": metadata failed")
	ErrMediaFromURIFailed    = errors.New(Namespace + ": media-from-uri failed")
	ErrResolveFailed         = errors.New(Namespace + ": resolve failed")
	ErrStoreFailed           = errors.New(Namespace + ": store failed")
	ErrRemoveFailed          = errors.New(Namespace + ": remove failed")
	ErrOperationCancelled    = errors.New(Namespace + ": operation cancelled")
	ErrSearchNullUnsupported = errors.New(Namespace + ": provider does not support search with empty text")

	ErrInvalidConfig   = errors.New(Namespace + ": invalid configuration")
	ErrUnknownSource   = errors.New(Namespace + ": unknown source")
	ErrSchedulerClosed = errors.New(Namespace + ": scheduler is closed")
	ErrNoSources       = errors.New(Namespace + ": no sources available for requested capability")
)

package models

import "errors"

// Domain errors for coordinator operations. Handlers translate these into
// HTTP status codes in one place; everything else wraps them with %w.
var (
	// ErrInvalidFormat means the client supplied an unsupported file format.
	ErrInvalidFormat = errors.New("unsupported file format")

	// ErrWorkNotFound means no storage entry exists for the requested id.
	ErrWorkNotFound = errors.New("work not found")

	// ErrJobNotFound means no job or dispatch row matches the request.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotAuthorized means the presented report code does not match the dispatch.
	ErrNotAuthorized = errors.New("report code mismatch")

	// ErrAlreadyReported means the dispatch's failure was already recorded.
	ErrAlreadyReported = errors.New("dispatch failure already reported")

	// ErrObjectNotFound means no unfetched object exists for the given id.
	ErrObjectNotFound = errors.New("unfetched object not found")

	// ErrDuplicateDetected means the submitted bytes are identical to the
	// current HEAD. This is a normal outcome, not a bug: the dispatch is
	// completed with found_as_duplicate and the job still succeeds.
	ErrDuplicateDetected = errors.New("content identical to current head")

	// ErrTooManyIterations means a patch chain exceeded the walk guard,
	// which indicates corruption.
	ErrTooManyIterations = errors.New("patch chain exceeds iteration guard")
)

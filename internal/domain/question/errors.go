package question

import "errors"

var (
	// ErrQuestionNotFound indicates the question doesn't exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidTransition indicates the event is not legal from the
	// question's current status.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrNotAuthorized indicates the actor lacks the role or assignment
	// the operation requires.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrConflict indicates the question was modified since it was read.
	ErrConflict = errors.New("question modified concurrently")
	// ErrMissingComment indicates a rejection without the required comment.
	ErrMissingComment = errors.New("comment required when requesting changes")
	// ErrMissingImages indicates a creation attempt with no image references.
	ErrMissingImages = errors.New("at least one image reference required")
	// ErrMissingDraft indicates a submission with an empty draft slot.
	ErrMissingDraft = errors.New("draft content required before submission")
	// ErrInvalidSlot indicates a rewrite index outside 1..5.
	ErrInvalidSlot = errors.New("rewrite index out of range")
	// ErrInvalidInput indicates invalid input for question operations.
	ErrInvalidInput = errors.New("invalid question input")
	// ErrStaleResult indicates a job result whose epoch no longer matches
	// the question's bookkeeping; the result must be discarded.
	ErrStaleResult = errors.New("stale job result")
)

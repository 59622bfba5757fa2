package errs

import (
	"errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrUnsupportedMedia = errors.New("only application/pdf is accepted")
	ErrTooLarge         = errors.New("file exceeds the size limit")
	// ErrAttachmentGone means the record claims an attachment that is missing
	// on disk. It is surfaced, never repaired in place.
	ErrAttachmentGone = errors.New("attachment file is missing from storage")
)

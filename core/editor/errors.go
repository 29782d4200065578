package editor

import (
	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
)

var (
	// errors
	ErrSessionNotFound = core.NewNotFoundError("editing session not found")
	ErrElementNotFound = core.NewNotFoundError("element not found")
	ErrPageNotFound    = core.NewNotFoundError("page not found")
	ErrReadOnly        = core.NewPermissionError("viewers cannot edit this report")

	// ErrElementLocked rejects changes to a locked element. Callers may treat it as a silent no-op.
	ErrElementLocked = errors.New("element is locked")

	ErrLastPage       = core.NewValidationError(errors.New("a report must keep at least one page"))
	ErrPageBoundary   = core.NewValidationError(errors.New("page cannot be moved further"))
	ErrEmptySelection = core.NewValidationError(errors.New("no element selected"))
	ErrEmptyClipboard = core.NewValidationError(errors.New("clipboard is empty"))
	ErrNotAIText      = core.NewValidationError(errors.New("element is not an AI text element"))
)

// IsRejection reports whether err is a silent rejection (no mutation, nothing to report to the user).
func IsRejection(err error) bool {
	return errors.Is(err, ErrElementLocked)
}

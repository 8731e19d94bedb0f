package knowledge

import "errors"

var (
	ErrInvalidFile  = errors.New("knowledge: invalid file")
	ErrForbidden    = errors.New("knowledge: not a member of this bot")
	ErrBotNotFound  = errors.New("knowledge: bot not found")
	ErrFileNotFound = errors.New("knowledge: file not found")
	ErrBusy         = errors.New("knowledge: too many uploads in progress")
	// ErrDuplicateFile means another upload already holds the storage path.
	ErrDuplicateFile = errors.New("knowledge: file already uploaded at this path")

	// ErrIngestFailed wraps failures of the store or index after validation passed.
	ErrIngestFailed = errors.New("knowledge: ingestion failed")
)

// ValidationError is a user-facing rejection. It matches ErrInvalidFile.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidFile }

package errors

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrTaskNotFound        = errors.New("task not found")
	ErrTokenNotFound       = errors.New("verification token not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrUserAlreadyVerified = errors.New("user already verified")
	ErrInvalidID           = errors.New("invalid identifier")
	ErrNoEffect            = errors.New("operation did not modify any document")
	ErrInternalServer      = errors.New("internal server error")
	ErrInvalidStatus       = errors.New("invalid task status")
	ErrStorageUnavailable  = errors.New("storage is not available")
	ErrInvalidGzipRequest  = errors.New("invalid gzip request body")

	ErrConfigFileReadFailed = errors.New("failed to read config file")
	ErrConfigParseFailed    = errors.New("failed to parse config file")
	ErrConfigInvalidFormat  = errors.New("invalid config value")
	ErrUnknownDriver        = errors.New("unknown storage driver")
)

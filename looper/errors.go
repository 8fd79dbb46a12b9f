package looper

import "github.com/pkg/errors"

var (
	ErrInitializationFailed = errors.New("looper initialization failed")
	ErrAlreadyRecording     = errors.New("another loop is already recording")
	ErrInvalidNote          = errors.New("note out of range")
	ErrInvalidController    = errors.New("controller out of range")
	ErrQueueSaturated       = errors.New("command queue saturated")
	ErrClosed               = errors.New("looper closed")

	ErrFileNotFound   = errors.New("configuration file not found")
	ErrParseFailed    = errors.New("failed to parse configuration file")
	ErrWriteFailed    = errors.New("failed to write configuration file")
	ErrInvalidVersion = errors.New("invalid configuration file version")
	ErrInvalidData    = errors.New("invalid configuration data")
)

// Result is the typed outcome of a snapshot operation.
type Result int

const (
	ResultSuccess Result = iota
	ResultFileNotFound
	ResultParseFailed
	ResultWriteFailed
	ResultInvalidVersion
	ResultMemory
	ResultInvalidData
)

var resultMessages = [...]string{
	"Success",
	"Configuration file not found",
	"Failed to parse configuration file",
	"Failed to write configuration file",
	"Invalid configuration file version",
	"Memory allocation error",
	"Invalid configuration data",
}

// Message returns the human readable text for r.
func (r Result) Message() string {
	if r < 0 || int(r) >= len(resultMessages) {
		return "Unknown error"
	}
	return resultMessages[r]
}

func (r Result) String() string { return r.Message() }

// ResultOf classifies an error returned by the snapshot functions.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrFileNotFound):
		return ResultFileNotFound
	case errors.Is(err, ErrParseFailed):
		return ResultParseFailed
	case errors.Is(err, ErrWriteFailed):
		return ResultWriteFailed
	case errors.Is(err, ErrInvalidVersion):
		return ResultInvalidVersion
	}
	return ResultInvalidData
}

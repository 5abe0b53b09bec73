package export

import (
	"strings"

	"github.com/svnlab/easy-file/errors"
)

// Sentinel errors for the export engine. Callers classify with errors.Is.
var (
	// ErrTaskNotFound means the (app id, task code) pair has no definition.
	ErrTaskNotFound = errors.New("export task not found")

	// ErrRecordNotFound means no execution record exists for the id.
	ErrRecordNotFound = errors.New("export record not found")

	// ErrGenerateRecoverable marks transient local I/O faults during file
	// generation. Only errors carrying this mark are retried by the
	// pipeline's bounded retry; mark with errors.Mark.
	ErrGenerateRecoverable = errors.New("recoverable generation error")

	// ErrRateLimited means registration was refused by the task's limiter.
	ErrRateLimited = errors.New("export registration rate limited")
)

// IsRecoverable reports whether err should be retried by the pipeline.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrGenerateRecoverable)
}

// JoinErrorMessages collapses accumulated errors into one "|"-delimited
// message, truncated to MaxErrorMsgLen before persistence.
func JoinErrorMessages(errs []string) string {
	var parts []string
	for _, e := range errs {
		if e != "" {
			parts = append(parts, e)
		}
	}
	return TruncateErrorMsg(strings.Join(parts, "|"))
}

// TruncateErrorMsg bounds a message to MaxErrorMsgLen bytes.
func TruncateErrorMsg(msg string) string {
	if len(msg) > MaxErrorMsgLen {
		return msg[:MaxErrorMsgLen]
	}
	return msg
}

package bridge

import (
	"strings"

	durable "github.com/goliatone/go-durable"
)

// Older workers report application errors as one string:
//
//	Result: <result>\nException: <type>: <message>\nStack: <trace>
//
// The message may be followed by "\n\n$OutOfProcData$:" and a JSON blob.
const (
	legacyResultLabel    = "Result:"
	legacyExceptionLabel = "\nException:"
	legacyStackLabel     = "\nStack:"
	legacyDataLabel      = "\n\n$OutOfProcData$:"
)

// ParseLegacyError turns a worker error string into FailureDetails. Strings
// that do not start with the result label are returned as an opaque message
// and matched is false.
func ParseLegacyError(raw string) (details *durable.FailureDetails, matched bool) {
	if !strings.HasPrefix(raw, legacyResultLabel) {
		return &durable.FailureDetails{ErrorMessage: raw}, false
	}

	body := raw[len(legacyResultLabel):]
	details = &durable.FailureDetails{}

	if idx := strings.Index(body, legacyStackLabel); idx >= 0 {
		stack := strings.TrimSpace(body[idx+len(legacyStackLabel):])
		details.StackTrace = &stack
		body = body[:idx]
	}

	idx := strings.Index(body, legacyExceptionLabel)
	if idx < 0 {
		details.ErrorMessage = strings.TrimSpace(body)
		return details, true
	}

	message := strings.TrimSpace(body[idx+len(legacyExceptionLabel):])
	if data := strings.Index(message, legacyDataLabel); data >= 0 {
		message = strings.TrimSpace(message[:data])
	}

	errorType, text, ok := strings.Cut(message, ": ")
	if !ok {
		details.ErrorMessage = message
		return details, true
	}
	details.ErrorType = errorType
	details.ErrorMessage = text
	return details, true
}

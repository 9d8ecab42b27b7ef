package durable

import "strings"

// FailureDetails is a structured, possibly nested, description of a failure.
type FailureDetails struct {
	ErrorType      string
	ErrorMessage   string
	StackTrace     *string
	Inner          *FailureDetails
	IsNonRetriable bool
}

// IsCausedBy reports whether this failure or any inner failure has an error
// type ending in errorType.
func (f *FailureDetails) IsCausedBy(errorType string) bool {
	for cur := f; cur != nil; cur = cur.Inner {
		if cur.ErrorType == errorType || strings.HasSuffix(cur.ErrorType, "."+errorType) {
			return true
		}
	}
	return false
}

// Depth returns the number of failures in the chain.
func (f *FailureDetails) Depth() int {
	n := 0
	for cur := f; cur != nil; cur = cur.Inner {
		n++
	}
	return n
}

func (f *FailureDetails) String() string {
	if f == nil {
		return ""
	}
	if f.ErrorType == "" {
		return f.ErrorMessage
	}
	return f.ErrorType + ": " + f.ErrorMessage
}

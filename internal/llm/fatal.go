package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFatalAPI marks provider errors that will not succeed on retry, such as
// expired credentials or an exhausted quota. Callers check with errors.Is
// before scheduling retries.
var ErrFatalAPI = errors.New("fatal API error")

// fatalMarkers are lowercase substrings of provider error messages that
// indicate a non-retryable failure.
var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether err is a permanent provider failure.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapFatalError tags permanent provider failures with ErrFatalAPI.
// Non-fatal errors pass through unchanged.
func wrapFatalError(err error) error {
	if err == nil {
		return nil
	}
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %v", ErrFatalAPI, err)
	}
	return err
}

// IsRetryable reports whether a generation error is worth one more attempt.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrFatalAPI)
}

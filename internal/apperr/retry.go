package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"net"
)

// Retryable reports whether redelivering the message that produced err could
// succeed, plus a short classification for logs and metrics. Malformed
// payloads and missing rows never heal on retry; dependency and network
// failures might.
func Retryable(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, ErrNotFound) {
		return false, "row_missing"
	}
	if errors.Is(err, ErrValidation) {
		return false, "invalid_payload"
	}
	if errors.Is(err, ErrDependency) {
		return true, "dependency_error"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	// Unknown errors are handled conservatively: no retry.
	return false, "unknown_error"
}

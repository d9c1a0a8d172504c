package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	t.Parallel()

	decodeErr := json.Unmarshal([]byte("{bad"), &struct{}{})

	cases := []struct {
		name     string
		err      error
		want     bool
		wantKind string
	}{
		{"nil", nil, false, ""},
		{"json syntax", decodeErr, false, "json_decode_error"},
		{"not found", NotFound("task", 1), false, "row_missing"},
		{"validation", Validation("bad"), false, "invalid_payload"},
		{"dependency", Dependency("query", errors.New("conn reset")), true, "dependency_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"unknown", errors.New("boom"), false, "unknown_error"},
		{"wrapped dependency", fmt.Errorf("handler: %w", Dependency("query", errors.New("x"))), true, "dependency_error"},
	}

	for _, tc := range cases {
		got, kind := Retryable(tc.err)
		if got != tc.want || kind != tc.wantKind {
			t.Errorf("%s: Retryable = (%v, %q), want (%v, %q)", tc.name, got, kind, tc.want, tc.wantKind)
		}
	}
}

func TestTaxonomyWrappersMatchSentinels(t *testing.T) {
	t.Parallel()

	if !errors.Is(NotFound("milestone", 3), ErrNotFound) {
		t.Fatalf("NotFound does not match ErrNotFound")
	}
	if !errors.Is(Validation("reason"), ErrValidation) {
		t.Fatalf("Validation does not match ErrValidation")
	}
	if !errors.Is(Forbidden("reason"), ErrForbidden) {
		t.Fatalf("Forbidden does not match ErrForbidden")
	}
	if !errors.Is(Dependency("op", errors.New("x")), ErrDependency) {
		t.Fatalf("Dependency does not match ErrDependency")
	}
}

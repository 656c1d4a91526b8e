package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", NotFound("diary.delete_entry", "entry_not_found", "entry not found", cause))

	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not found kind, got %q", KindOf(err))
	}
	if CodeOf(err) != "diary.delete_entry.entry_not_found" {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
	if MessageOf(err) != "entry not found" {
		t.Fatalf("unexpected message %q", MessageOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to remain reachable")
	}
}

func TestKindOfTreatsPlainErrorsAsInternal(t *testing.T) {
	err := errors.New("database is locked")
	if KindOf(err) != KindInternal {
		t.Fatalf("expected internal kind, got %q", KindOf(err))
	}
	if MessageOf(err) != "something went wrong" {
		t.Fatalf("expected generic message, got %q", MessageOf(err))
	}
	if KindOf(nil) != "" {
		t.Fatalf("expected empty kind for nil error")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	testCases := map[Kind]int{
		KindValidation:   http.StatusBadRequest,
		KindNotFound:     http.StatusNotFound,
		KindConflict:     http.StatusConflict,
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, want := range testCases {
		if got := HTTPStatus(kind); got != want {
			t.Fatalf("kind %s: got %d want %d", kind, got, want)
		}
	}
}

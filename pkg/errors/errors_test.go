package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
	if !stdErrors.Is(err, internal) {
		t.Fatal("expected wrapped error to unwrap to internal")
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}

	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}

	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	detailed := ErrUserNotVerified.WithDetail("resend_attempted", true)

	if ErrUserNotVerified.Details != nil {
		t.Fatalf("expected sentinel details to stay empty, got %v", ErrUserNotVerified.Details)
	}
	if detailed.Details["resend_attempted"] != true {
		t.Fatalf("expected detail to be attached, got %v", detailed.Details)
	}
	if detailed.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", detailed.StatusCode)
	}

	again := detailed.WithDetail("other", "x")
	if _, ok := detailed.Details["other"]; ok {
		t.Fatal("expected WithDetail to copy the details map")
	}
	if len(again.Details) != 2 {
		t.Fatalf("expected 2 details, got %v", again.Details)
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	if err.Code != ErrBadRequest.Code {
		t.Fatalf("expected %s, got %s", ErrBadRequest.Code, err.Code)
	}
	if err.Message != "invalid payload" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != ErrBadRequest.StatusCode {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}

func TestIsMatchesCopiesByCode(t *testing.T) {
	wrapped := ErrEmailFailure.WithInternal(stdErrors.New("smtp down"))

	if !stdErrors.Is(wrapped, ErrEmailFailure) {
		t.Fatal("expected copy to match its sentinel")
	}
	if stdErrors.Is(wrapped, ErrInvalidToken) {
		t.Fatal("expected different codes not to match")
	}
	if stdErrors.Is(wrapped, stdErrors.New("EMAIL_FAILURE")) {
		t.Fatal("expected plain errors not to match")
	}
}

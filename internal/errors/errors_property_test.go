package errors

import (
	"net/http"
	"strconv"
	"testing"

	"pgregory.net/rapid"
)

// TestErrorCodePrefixMatchesHTTPStatus checks that every predefined error's
// numeric code starts with its HTTP status.
func TestErrorCodePrefixMatchesHTTPStatus(t *testing.T) {
	predefined := []*APIError{
		ErrInvalidCredentialsError,
		ErrTokenExpiredError,
		ErrInvalidAPIKeyError,
		ErrForbiddenError,
		ErrToolNotFoundError,
		ErrUserNotFoundError,
		ErrKeyNotFoundError,
		ErrRateLimitedError,
		ErrInternalServerError,
		ErrUpstreamTimeoutError,
		ErrUpstreamUnavailableError,
	}

	for _, e := range predefined {
		wantPrefix := strconv.Itoa(e.HTTPStatus)
		if len(string(e.Code)) != 5 || string(e.Code)[:3] != wantPrefix {
			t.Errorf("code %s does not extend status %d", e.Code, e.HTTPStatus)
		}
	}
}

// TestCredentialRejectionsIndistinguishable checks that credential
// rejections share a status and expose no cause, while privilege
// rejections stay distinct.
func TestCredentialRejectionsIndistinguishable(t *testing.T) {
	rejections := []*APIError{ErrInvalidCredentialsError, ErrInvalidAPIKeyError}
	for _, e := range rejections {
		if e.HTTPStatus != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", e.Code, e.HTTPStatus)
		}
		if e.Details != nil {
			t.Errorf("%s: credential rejection must not carry details", e.Code)
		}
	}
	if ErrForbiddenError.HTTPStatus != http.StatusForbidden {
		t.Errorf("privilege rejection must be 403, got %d", ErrForbiddenError.HTTPStatus)
	}
}

// TestValidationErrorCarriesDetails checks that arbitrary validation detail
// payloads reach the response shape without changing code or status.
func TestValidationErrorCarriesDetails(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		detail := rapid.StringMatching(`[a-zA-Z0-9 .,]{1,100}`).Draw(rt, "detail")

		e := NewValidationError(detail)
		if e.Code != ErrValidationFailed {
			rt.Fatalf("expected code %s, got %s", ErrValidationFailed, e.Code)
		}
		if e.HTTPStatus != http.StatusBadRequest {
			rt.Fatalf("expected 400, got %d", e.HTTPStatus)
		}
		got, ok := e.Details.(string)
		if !ok || got != detail {
			rt.Fatalf("details not preserved: %v", e.Details)
		}
	})
}

// TestInvalidRequestErrorMessage checks message passthrough
func TestInvalidRequestErrorMessage(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		msg := rapid.StringMatching(`[a-zA-Z0-9 ]{1,80}`).Draw(rt, "msg")
		e := NewInvalidRequestError(msg)
		if e.Message != msg {
			rt.Fatalf("message not preserved: %q", e.Message)
		}
		if e.HTTPStatus != http.StatusBadRequest {
			rt.Fatalf("expected 400, got %d", e.HTTPStatus)
		}
	})
}

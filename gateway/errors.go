package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	remyerrors "github.com/jrsteele09/remycare-client/internal/errors"
)

// Kind classifies a failed call so callers can branch without matching on
// message text.
type Kind string

const (
	KindBadRequest    Kind = "bad_request"    // 400
	KindUnauthorized  Kind = "unauthorized"   // 401, after a failed or impossible refresh
	KindForbidden     Kind = "forbidden"      // 403
	KindNotFound      Kind = "not_found"      // 404
	KindConflict      Kind = "conflict"       // 409
	KindUnprocessable Kind = "unprocessable"  // 422
	KindRateLimited   Kind = "rate_limited"   // 429
	KindServerError   Kind = "server_error"   // 500
	KindUnavailable   Kind = "unavailable"    // 502, 503, 504
	KindUnknown       Kind = "unknown"        // any other status, or an unreadable success body
	KindNetwork       Kind = "network_error"  // no response received
	KindTimeout       Kind = "timeout"        // request exceeded its deadline
)

const sessionExpiredMessage = "Session expired. Please login again."

// APIError is the error type returned by every Gateway call.
type APIError struct {
	Kind       Kind
	Message    string
	StatusCode int   // 0 when no response was received
	Err        error // underlying cause, if any
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindForStatus maps an HTTP status outside the 2xx range to its Kind.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusUnprocessableEntity:
		return KindUnprocessable
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusInternalServerError:
		return KindServerError
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// IsKind reports whether err is an *APIError of kind k.
func IsKind(err error, k Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == k
}

// IsSessionExpired reports whether err is the terminal refresh failure that
// must send the user back to the login screen.
func IsSessionExpired(err error) bool {
	return errors.Is(err, remyerrors.ErrSessionExpired)
}

func statusError(resp *response) *APIError {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(resp.body, &payload) == nil {
		msg = payload.Message
		if msg == "" {
			msg = payload.Error
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d: %s", resp.status, http.StatusText(resp.status))
	}
	return &APIError{Kind: KindForStatus(resp.status), Message: msg, StatusCode: resp.status}
}

func transportError(err error) *APIError {
	if isTimeout(err) {
		return &APIError{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &APIError{Kind: KindNetwork, Message: err.Error(), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sessionExpiredError(cause error) *APIError {
	return &APIError{
		Kind:       KindUnauthorized,
		Message:    sessionExpiredMessage,
		StatusCode: http.StatusUnauthorized,
		Err:        fmt.Errorf("%w: %w", remyerrors.ErrSessionExpired, cause),
	}
}

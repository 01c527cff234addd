package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
)

// pendingRequest describes one logical call. It survives the single retry
// that may follow a refresh, so the body and request id are built once.
type pendingRequest struct {
	method       string
	path         string
	body         []byte
	authRequired bool
	retried      bool
	id           string // X-Request-ID, shared by the original attempt and its retry
}

// CallOption adjusts a single call.
type CallOption func(*pendingRequest)

// WithoutAuth sends the call with no bearer credential, for endpoints such as
// login that must not carry a previous session's token. A 401 is then
// reported as is, with no refresh attempt.
func WithoutAuth() CallOption {
	return func(r *pendingRequest) {
		r.authRequired = false
	}
}

func newPendingRequest(method, path string, body any, opts []CallOption) (*pendingRequest, error) {
	r := &pendingRequest{
		method:       method,
		path:         path,
		authRequired: true,
		id:           uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{Kind: KindUnknown, Message: "encoding request body", Err: err}
		}
		r.body = data
	}
	return r, nil
}

// markRetried consumes the single retry a request is allowed after a
// refresh. It returns false when the retry was already used.
func (r *pendingRequest) markRetried() bool {
	if r.retried {
		return false
	}
	r.retried = true
	return true
}

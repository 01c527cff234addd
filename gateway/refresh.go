package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/sync/singleflight"

	remyerrors "github.com/jrsteele09/remycare-client/internal/errors"
	"github.com/jrsteele09/remycare-client/token"
)

// refresher exchanges the refresh token for a new access token. Concurrent
// callers holding the same stale access token share one exchange.
type refresher struct {
	gw    *Gateway
	group singleflight.Group
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// refresh returns the access token to retry with after stale was rejected.
// The exchange itself is not cancelled when ctx is, since other callers may
// be waiting on it.
func (r *refresher) refresh(ctx context.Context, stale string) (string, error) {
	ch := r.group.DoChan(stale, func() (any, error) {
		return r.run(context.WithoutCancel(ctx), stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", transportError(ctx.Err())
	}
}

func (r *refresher) run(ctx context.Context, stale string) (string, error) {
	store := r.gw.store

	current, ok := store.AccessToken()
	if !ok {
		// An earlier refresh already failed, or the user logged out.
		return "", sessionExpiredError(remyerrors.ErrNoSession)
	}
	if current != stale {
		return current, nil
	}

	fresh, err := r.exchange(ctx)
	if err != nil {
		r.expire(err)
		return "", sessionExpiredError(err)
	}

	if !store.UpdateAccessToken(fresh) {
		return "", sessionExpiredError(remyerrors.ErrNoSession)
	}

	event := r.gw.logger.Info()
	if claims, err := token.ParseUnverified(fresh); err == nil && !claims.ExpiresAt.IsZero() {
		event = event.Time("expires_at", claims.ExpiresAt)
	}
	event.Msg("Access token refreshed")

	if r.gw.onTokenRefreshed != nil {
		r.gw.onTokenRefreshed(fresh)
	}
	return fresh, nil
}

func (r *refresher) exchange(ctx context.Context) (string, error) {
	refreshToken, ok := r.gw.store.RefreshToken()
	if !ok {
		return "", remyerrors.ErrNoRefreshToken
	}

	ctx, cancel := context.WithTimeout(ctx, r.gw.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.gw.baseURL+r.gw.refreshPath, nil)
	if err != nil {
		return "", remyerrors.Wrapf(err, "building refresh request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	token.Bearer(refreshToken).SetAuthHeader(req)

	resp, err := r.gw.client.Do(req)
	if err != nil {
		return "", remyerrors.Wrapf(err, "refresh request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", remyerrors.Wrapf(remyerrors.ErrRefreshRejected, "status %d", resp.StatusCode)
	}

	var payload refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", remyerrors.Wrapf(remyerrors.ErrMalformedRefresh, "decoding refresh response: %v", err)
	}
	if payload.AccessToken == "" {
		return "", remyerrors.Wrapf(remyerrors.ErrMalformedRefresh, "empty access_token")
	}
	return payload.AccessToken, nil
}

// expire ends the session after a failed exchange. Callers that arrive later
// find no session and never reach this point, so it runs once per failure.
func (r *refresher) expire(cause error) {
	if _, ok := r.gw.store.Snapshot(); !ok {
		return
	}
	r.gw.store.Clear()
	r.gw.logger.Warn().Err(cause).Msg("Token refresh failed, session cleared")

	if r.gw.onSessionExpired != nil {
		r.gw.onSessionExpired()
	}
}

package session

import "github.com/jrsteele09/remycare-client/users"

// Session is the authenticated state of one tab. At most one is active at a
// time. AccessToken is replaced in place on every refresh; the rest only
// changes with a new login.
type Session struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	User         users.UserSummary `json:"user"`
}

// Store holds the current session. Implementations are local to one tab, never
// block and never panic; "absent" is the only failure mode.
type Store interface {
	// Save starts a session with a fresh token pair, dropping any previous user.
	Save(access, refresh string)

	// SaveUser records the identity issued alongside the token pair.
	SaveUser(user users.UserSummary)

	AccessToken() (string, bool)
	RefreshToken() (string, bool)
	User() (users.UserSummary, bool)

	// UpdateAccessToken replaces the access token of the active session.
	// It returns false, leaving the store untouched, when there is none.
	UpdateAccessToken(access string) bool

	Snapshot() (Session, bool)

	// Clear drops the session. Safe to call repeatedly or with no session.
	Clear()
}

package fakeapi

import (
	"context"
	"net/http"
	"strings"

	remyerrors "github.com/jrsteele09/remycare-client/internal/errors"
	"github.com/jrsteele09/remycare-client/token"
	"github.com/jrsteele09/remycare-client/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyAccount stores the authenticated *users.Account
	ContextKeyAccount ContextKey = "account"
	// ContextKeyClaims stores the verified *token.Claims
	ContextKeyClaims ContextKey = "claims"
)

// RequireAuth is middleware that validates a Bearer access token
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return s.requireToken(token.TypeAccess)
}

// RequireRefreshToken is middleware for /auth/refresh, which is
// authenticated by the refresh token rather than the access token
func (s *Server) RequireRefreshToken() func(http.HandlerFunc) http.HandlerFunc {
	return s.requireToken(token.TypeRefresh)
}

func (s *Server) requireToken(tokenType string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Missing Authorization header")
				return
			}

			account, claims, err := s.authenticate(raw, tokenType)
			if err != nil {
				s.logger.Debug().
					Err(err).
					Str("path", r.URL.Path).
					Bool("revoked", remyerrors.Is(err, remyerrors.ErrTokenRevoked)).
					Msg("Rejected token")
				writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyAccount, account)
			ctx = context.WithValue(ctx, ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRole is middleware that rejects accounts of any other role. Chain
// it after RequireAuth.
func (s *Server) RequireRole(roles ...users.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			account := accountFromContext(r.Context())
			if account == nil {
				writeError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			for _, role := range roles {
				if account.Role == role {
					next(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Insufficient permissions")
		}
	}
}

// authenticate verifies raw and loads the account it was issued to.
func (s *Server) authenticate(raw, tokenType string) (*users.Account, *token.Claims, error) {
	mapClaims, err := s.signer.Verify(raw)
	if err != nil {
		return nil, nil, remyerrors.Wrapf(remyerrors.ErrInvalidToken, "%v", err)
	}
	claims := token.ClaimsFromMap(mapClaims)
	if claims.Type != tokenType {
		return nil, nil, remyerrors.Wrapf(remyerrors.ErrInvalidToken, "want %s token, got %q", tokenType, claims.Type)
	}
	if s.revoked.IsRevoked(claims.ID) {
		return nil, nil, remyerrors.ErrTokenRevoked
	}

	id, err := parseID(claims.Subject)
	if err != nil {
		return nil, nil, remyerrors.Wrapf(remyerrors.ErrInvalidToken, "bad subject %q", claims.Subject)
	}
	account, err := s.users.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	if !account.Active || !account.Verified {
		return nil, nil, remyerrors.Wrapf(remyerrors.ErrInvalidCredentials, "account %d is not active", id)
	}
	return account, claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func accountFromContext(ctx context.Context) *users.Account {
	account, _ := ctx.Value(ContextKeyAccount).(*users.Account)
	return account
}

func claimsFromContext(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(ContextKeyClaims).(*token.Claims)
	return claims
}

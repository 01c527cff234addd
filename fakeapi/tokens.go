package fakeapi

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jrsteele09/remycare-client/token"
	"github.com/jrsteele09/remycare-client/users"
)

// issueToken signs a token of tokenType for account.
func (s *Server) issueToken(account *users.Account, tokenType string) (string, error) {
	ttl := s.config.GetAccessTokenExpiry()
	if tokenType == token.TypeRefresh {
		ttl = s.config.GetRefreshTokenExpiry()
	}

	now := token.NowTimeFunc()
	exp := now.Add(ttl)
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(account.ID, 10),
		"typ":  tokenType,
		"jti":  jti,
		"role": string(account.Role),
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}

	raw, err := s.signer.Sign(claims)
	if err != nil {
		return "", err
	}
	if tokenType == token.TypeAccess {
		s.trackAccessToken(jti, exp)
	}
	return raw, nil
}

// trackAccessToken records jti for RevokeAccessTokens and drops records of
// tokens that have since expired.
func (s *Server) trackAccessToken(jti string, exp time.Time) {
	s.issuedLock.Lock()
	defer s.issuedLock.Unlock()
	now := token.NowTimeFunc()
	for id, e := range s.issued {
		if now.After(e) {
			delete(s.issued, id)
		}
	}
	s.issued[jti] = exp

	if n := s.revoked.Cleanup(); n > 0 {
		s.logger.Debug().Int("removed", n).Msg("Pruned expired revocations")
	}
}

// revokeToken revokes a single token by its claims.
func (s *Server) revokeToken(claims *token.Claims) {
	if claims == nil {
		return
	}
	s.revoked.Revoke(claims.ID, claims.ExpiresAt)
	s.issuedLock.Lock()
	delete(s.issued, claims.ID)
	s.issuedLock.Unlock()
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

package fakeapi

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/remycare-client/token"
	"github.com/jrsteele09/remycare-client/users"
)

const otpTTL = 10 * time.Minute

type otpEntry struct {
	code      string
	userID    int64
	expiresAt time.Time
}

type loginBody struct {
	PhoneNumber string `json:"phone_number"`
	PIN         string `json:"pin"`
}

type registerBody struct {
	PhoneNumber string     `json:"phone_number"`
	Name        string     `json:"name"`
	PIN         string     `json:"pin"`
	Role        users.Role `json:"role"`
	DOB         string     `json:"dob"`
	DueDate     string     `json:"due_date"`
}

type otpBody struct {
	PhoneNumber string `json:"phone_number"`
	OTPCode     string `json:"otp_code"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "connections": s.hub.Len()})
	}
}

// LoginHandler exchanges a phone number and PIN for an access/refresh pair.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loginBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.PhoneNumber == "" || body.PIN == "" {
			writeError(w, http.StatusBadRequest, "Phone number and PIN are required")
			return
		}

		account, err := s.users.GetByPhone(body.PhoneNumber)
		if err != nil || !account.CheckPIN(body.PIN) {
			writeError(w, http.StatusUnauthorized, "Invalid phone number or PIN")
			return
		}
		if !account.Verified {
			writeError(w, http.StatusUnauthorized, "Please verify your phone number first")
			return
		}
		if !account.Active {
			writeError(w, http.StatusUnauthorized, "Account is deactivated")
			return
		}

		access, err := s.issueToken(account, token.TypeAccess)
		if err != nil {
			s.logger.Error().Err(err).Msg("Issuing access token")
			writeError(w, http.StatusInternalServerError, "Could not issue tokens")
			return
		}
		refresh, err := s.issueToken(account, token.TypeRefresh)
		if err != nil {
			s.logger.Error().Err(err).Msg("Issuing refresh token")
			writeError(w, http.StatusInternalServerError, "Could not issue tokens")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"message":       "Login successful",
			"access_token":  access,
			"refresh_token": refresh,
			"user":          account.UserSummary,
		})
	}
}

// RefreshHandler issues a new access token. It runs behind
// RequireRefreshToken.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := accountFromContext(r.Context())
		access, err := s.issueToken(account, token.TypeAccess)
		if err != nil {
			s.logger.Error().Err(err).Msg("Issuing access token")
			writeError(w, http.StatusInternalServerError, "Could not issue token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.revokeToken(claimsFromContext(r.Context()))
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
	}
}

func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := accountFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"id":           account.ID,
			"phone_number": account.PhoneNumber,
			"name":         account.Name,
			"role":         account.Role,
			"profile_id":   account.ProfileID,
			"is_verified":  account.Verified,
		})
	}
}

// RegisterHandler creates an unverified account and returns its OTP in the
// body, since there is no SMS gateway in development.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body registerBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for field, value := range map[string]string{"phone_number": body.PhoneNumber, "name": body.Name, "pin": body.PIN, "role": string(body.Role)} {
			if strings.TrimSpace(value) == "" {
				writeError(w, http.StatusBadRequest, field+" is required")
				return
			}
		}
		if !body.Role.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid role. Must be mother, chw, or nurse")
			return
		}
		if err := users.ValidatePIN(body.PIN); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if _, err := s.users.GetByPhone(body.PhoneNumber); err == nil {
			writeError(w, http.StatusConflict, "User with this phone number already exists")
			return
		}

		hash, err := users.HashPIN(body.PIN)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Registration failed. Please try again.")
			return
		}
		account := &users.Account{
			UserSummary: users.UserSummary{PhoneNumber: body.PhoneNumber, Name: body.Name, Role: body.Role},
			PINHash:     hash,
			Active:      true,
		}
		if err := s.users.Upsert(account); err != nil {
			writeError(w, http.StatusInternalServerError, "Registration failed. Please try again.")
			return
		}

		code, err := s.newOTP(account)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Registration failed. Please try again.")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message":    "Registration successful. Please verify your phone number.",
			"user_id":    account.ID,
			"otp_code":   code,
			"expires_in": "10 minutes",
		})
	}
}

// VerifyOTPHandler activates the account and creates its role profile.
func (s *Server) VerifyOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body otpBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.PhoneNumber == "" || body.OTPCode == "" {
			writeError(w, http.StatusBadRequest, "Phone number and OTP code are required")
			return
		}

		s.otpLock.Lock()
		entry, ok := s.otps[body.PhoneNumber]
		if ok && entry.code == body.OTPCode {
			delete(s.otps, body.PhoneNumber)
		}
		s.otpLock.Unlock()

		if !ok || entry.code != body.OTPCode {
			writeError(w, http.StatusBadRequest, "Invalid OTP code")
			return
		}
		if token.NowTimeFunc().After(entry.expiresAt) {
			writeError(w, http.StatusBadRequest, "OTP code has expired")
			return
		}

		existing, err := s.users.GetByID(entry.userID)
		if err != nil {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		account := *existing
		account.Verified = true
		account.ProfileID = s.data.newProfileID(string(account.Role))
		if err := s.users.Upsert(&account); err != nil {
			writeError(w, http.StatusInternalServerError, "Verification failed")
			return
		}
		if account.Role == users.RoleMother {
			s.data.putMother(Mother{ID: account.ProfileID, UserID: account.ID, Name: account.Name})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"message":    "Phone number verified successfully. You can now login.",
			"user_id":    account.ID,
			"role":       account.Role,
			"profile_id": account.ProfileID,
		})
	}
}

func (s *Server) ResendOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body otpBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.PhoneNumber == "" {
			writeError(w, http.StatusBadRequest, "Phone number is required")
			return
		}

		account, err := s.users.GetByPhone(body.PhoneNumber)
		if err != nil || account.Verified {
			writeError(w, http.StatusNotFound, "No unverified user found with this phone number")
			return
		}
		code, err := s.newOTP(account)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Could not generate OTP")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message":  "OTP resent successfully",
			"otp_code": code,
		})
	}
}

// newOTP replaces any pending code for the account's phone number.
func (s *Server) newOTP(account *users.Account) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("%06d", n.Int64())

	s.otpLock.Lock()
	defer s.otpLock.Unlock()
	s.otps[account.PhoneNumber] = otpEntry{
		code:      code,
		userID:    account.ID,
		expiresAt: token.NowTimeFunc().Add(otpTTL),
	}
	return code, nil
}

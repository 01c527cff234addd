package auth

import "errors"

var (
	ErrPhoneRequired = errors.New("phone number is required")
	ErrInvalidPhone  = errors.New("phone number must be in international format, e.g. +254700000001")
	ErrPINRequired   = errors.New("pin is required")
	ErrOTPRequired   = errors.New("otp code is required")
	ErrNameRequired  = errors.New("name is required")
	ErrInvalidRole   = errors.New("invalid role, must be mother, chw or nurse")
	ErrMissingTokens = errors.New("login response did not include both tokens")
	ErrNotLoggedIn   = errors.New("not logged in")
)

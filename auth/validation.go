package auth

import (
	"strings"

	"github.com/jrsteele09/remycare-client/users"
)

// NormalizePhone trims spaces and dashes from a phone number.
func NormalizePhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
}

// ValidatePhone accepts E.164 numbers: a leading + followed by 8 to 15 digits.
func ValidatePhone(phone string) error {
	if phone == "" {
		return ErrPhoneRequired
	}
	if phone[0] != '+' || len(phone) < 9 || len(phone) > 16 {
		return ErrInvalidPhone
	}
	for _, r := range phone[1:] {
		if r < '0' || r > '9' {
			return ErrInvalidPhone
		}
	}
	return nil
}

func (r *LoginRequest) Validate() error {
	r.PhoneNumber = NormalizePhone(r.PhoneNumber)
	if err := ValidatePhone(r.PhoneNumber); err != nil {
		return err
	}
	if r.PIN == "" {
		return ErrPINRequired
	}
	return nil
}

func (r *RegisterRequest) Validate() error {
	r.PhoneNumber = NormalizePhone(r.PhoneNumber)
	if err := ValidatePhone(r.PhoneNumber); err != nil {
		return err
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrNameRequired
	}
	if r.PIN == "" {
		return ErrPINRequired
	}
	if err := users.ValidatePIN(r.PIN); err != nil {
		return err
	}
	if !r.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

func (r *VerifyOTPRequest) Validate() error {
	r.PhoneNumber = NormalizePhone(r.PhoneNumber)
	if err := ValidatePhone(r.PhoneNumber); err != nil {
		return err
	}
	if strings.TrimSpace(r.OTPCode) == "" {
		return ErrOTPRequired
	}
	return nil
}

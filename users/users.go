package users

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Role is the dashboard a user lands on after login.
type Role string

const (
	RoleMother Role = "mother"
	RoleCHW    Role = "chw"   // Community health worker
	RoleNurse  Role = "nurse" // Nurse handling escalations
)

func (r Role) Valid() bool {
	switch r {
	case RoleMother, RoleCHW, RoleNurse:
		return true
	}
	return false
}

// UserSummary is the identity issued with a session. It is immutable for the
// life of the session and only replaced by a new login.
type UserSummary struct {
	ID          int64  `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
}

// Account is the server-side record behind a UserSummary. Only the
// development backend keeps these.
type Account struct {
	UserSummary
	PINHash   string `json:"-"` // never serialize
	ProfileID int64  `json:"profile_id"` // mothers.id, chws.id or nurses.id depending on Role
	Verified  bool   `json:"is_verified"`
	Active    bool   `json:"is_active"`
}

// ValidatePIN checks the PIN meets the registration rules:
// - At least 4 characters long
// - No whitespace
func ValidatePIN(pin string) error {
	if len(pin) < 4 {
		return fmt.Errorf("pin must be at least 4 characters long")
	}
	if strings.ContainsAny(pin, " \t\r\n") {
		return fmt.Errorf("pin must not contain whitespace")
	}
	return nil
}

func HashPIN(pin string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPINHash(pin, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin))
	return err == nil
}

// CheckPIN reports whether pin matches the account's stored hash.
func (a *Account) CheckPIN(pin string) bool {
	return CheckPINHash(pin, a.PINHash)
}

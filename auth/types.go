package auth

import "github.com/jrsteele09/remycare-client/users"

type LoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	PIN         string `json:"pin"`
}

// LoginUser is the identity returned by /auth/login. The name fields beyond
// UserSummary are only sent by newer backends.
type LoginUser struct {
	users.UserSummary
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// LoginResponse is the body of a successful /auth/login.
type LoginResponse struct {
	Message      string    `json:"message"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	User         LoginUser `json:"user"`
}

type RegisterRequest struct {
	PhoneNumber   string     `json:"phone_number"`
	Name          string     `json:"name"`
	PIN           string     `json:"pin"`
	Role          users.Role `json:"role"`
	LicenseNumber string     `json:"license_number,omitempty"` // CHW and nurse
	WardID        int64      `json:"ward_id,omitempty"`
	DOB           string     `json:"dob,omitempty"`      // mother, YYYY-MM-DD
	DueDate       string     `json:"due_date,omitempty"` // mother, YYYY-MM-DD
}

type RegisterResponse struct {
	Message   string `json:"message"`
	UserID    int64  `json:"user_id"`
	OTPCode   string `json:"otp_code,omitempty"` // development backends only
	ExpiresIn string `json:"expires_in"`
}

type VerifyOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	OTPCode     string `json:"otp_code"`
}

type VerifyOTPResponse struct {
	Message   string `json:"message"`
	UserID    int64  `json:"user_id"`
	ProfileID *int64 `json:"profile_id,omitempty"`
}

type ResendOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// MessageResponse is returned by endpoints with nothing else to say.
type MessageResponse struct {
	Message string `json:"message"`
	OTPCode string `json:"otp_code,omitempty"`
}

// Profile is the body of /auth/profile.
type Profile struct {
	users.UserSummary
	ProfileID  int64  `json:"profile_id,omitempty"`
	IsVerified bool   `json:"is_verified"`
	CreatedAt  string `json:"created_at,omitempty"`
}

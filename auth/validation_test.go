package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/remycare-client/auth"
	"github.com/jrsteele09/remycare-client/users"
)

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		phone string
		err   error
	}{
		{"+254700000001", nil},
		{"+14155552671", nil},
		{"", auth.ErrPhoneRequired},
		{"0700000001", auth.ErrInvalidPhone},
		{"+2547", auth.ErrInvalidPhone},
		{"+2547000000011234567", auth.ErrInvalidPhone},
		{"+25470000000a", auth.ErrInvalidPhone},
	}
	for _, tc := range tests {
		t.Run(tc.phone, func(t *testing.T) {
			require.ErrorIs(t, auth.ValidatePhone(tc.phone), tc.err)
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	require.Equal(t, "+254700000001", auth.NormalizePhone(" +254 700-000-001 "))
}

func TestLoginRequest_Validate(t *testing.T) {
	req := auth.LoginRequest{PhoneNumber: "+254 700 000 001", PIN: "demo123"}
	require.NoError(t, req.Validate())
	require.Equal(t, "+254700000001", req.PhoneNumber)

	req = auth.LoginRequest{PhoneNumber: "+254700000001"}
	require.ErrorIs(t, req.Validate(), auth.ErrPINRequired)
}

func TestRegisterRequest_Validate(t *testing.T) {
	valid := func() auth.RegisterRequest {
		return auth.RegisterRequest{PhoneNumber: "+254711000111", Name: "Achieng", PIN: "4821", Role: users.RoleMother}
	}

	t.Run("valid", func(t *testing.T) {
		req := valid()
		require.NoError(t, req.Validate())
	})

	t.Run("missing name", func(t *testing.T) {
		req := valid()
		req.Name = "  "
		require.ErrorIs(t, req.Validate(), auth.ErrNameRequired)
	})

	t.Run("short pin", func(t *testing.T) {
		req := valid()
		req.PIN = "12"
		require.Error(t, req.Validate())
	})

	t.Run("bad role", func(t *testing.T) {
		req := valid()
		req.Role = "admin"
		require.ErrorIs(t, req.Validate(), auth.ErrInvalidRole)
	})
}

func TestVerifyOTPRequest_Validate(t *testing.T) {
	req := auth.VerifyOTPRequest{PhoneNumber: "+254711000111"}
	require.ErrorIs(t, req.Validate(), auth.ErrOTPRequired)
	req.OTPCode = "123456"
	require.NoError(t, req.Validate())
}

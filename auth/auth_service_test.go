package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/remycare-client/auth"
	"github.com/jrsteele09/remycare-client/fakeapi"
	"github.com/jrsteele09/remycare-client/gateway"
	"github.com/jrsteele09/remycare-client/internal/config"
	"github.com/jrsteele09/remycare-client/session"
	"github.com/jrsteele09/remycare-client/users"
)

func newService(t *testing.T, baseURL string) (*auth.Service, *session.MemoryStore, *gateway.Gateway) {
	t.Helper()
	store := session.NewMemoryStore()
	gw := gateway.New(baseURL, store)
	svc, err := auth.NewService(gw, store)
	require.NoError(t, err)
	return svc, store, gw
}

func newFakeAPI(t *testing.T, options ...fakeapi.ServerOption) (*fakeapi.Server, string) {
	t.Helper()
	srv, err := fakeapi.New(config.New(), options...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts.URL + fakeapi.APIPrefix
}

func TestNewService(t *testing.T) {
	_, err := auth.NewService(nil, session.NewMemoryStore())
	require.Error(t, err)
	_, err = auth.NewService(gateway.New("http://localhost", nil), nil)
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	_, baseURL := newFakeAPI(t)

	t.Run("saves session and user", func(t *testing.T) {
		svc, store, gw := newService(t, baseURL)
		resp, err := svc.Login(context.Background(), auth.LoginRequest{PhoneNumber: "+254 700 000 001", PIN: fakeapi.DemoPIN})
		require.NoError(t, err)
		require.Equal(t, users.RoleMother, resp.User.Role)

		snap, ok := store.Snapshot()
		require.True(t, ok)
		require.Equal(t, resp.AccessToken, snap.AccessToken)
		require.Equal(t, resp.RefreshToken, snap.RefreshToken)
		require.True(t, svc.IsAuthenticated())

		user, ok := svc.CurrentUser()
		require.True(t, ok)
		require.Equal(t, "Amina Otieno", user.Name)

		var mother struct {
			ID   int64  `json:"id"`
			Name string `json:"mother_name"`
		}
		require.NoError(t, gw.Get(context.Background(), "/mothers/1", &mother))
		require.Equal(t, int64(1), mother.ID)
	})

	t.Run("wrong pin", func(t *testing.T) {
		svc, store, _ := newService(t, baseURL)
		_, err := svc.Login(context.Background(), auth.LoginRequest{PhoneNumber: fakeapi.DemoMotherPhone, PIN: "wrong1"})
		require.True(t, gateway.IsKind(err, gateway.KindUnauthorized))

		var apiErr *gateway.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "Invalid phone number or PIN", apiErr.Message)
		require.False(t, gateway.IsSessionExpired(err))

		_, ok := store.Snapshot()
		require.False(t, ok)
	})

	t.Run("invalid input never reaches the network", func(t *testing.T) {
		svc, _, _ := newService(t, "http://127.0.0.1:1")
		_, err := svc.Login(context.Background(), auth.LoginRequest{PhoneNumber: "0700", PIN: "x"})
		require.ErrorIs(t, err, auth.ErrInvalidPhone)
	})
}

func TestLogin_MissingTokens(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":      "Login successful",
			"access_token": "only-access",
			"user":         map[string]any{"id": 7, "role": "chw"},
		})
	}))
	t.Cleanup(ts.Close)

	svc, store, _ := newService(t, ts.URL)
	resp, err := svc.Login(context.Background(), auth.LoginRequest{PhoneNumber: fakeapi.DemoCHWPhone, PIN: fakeapi.DemoPIN})
	require.ErrorIs(t, err, auth.ErrMissingTokens)
	require.NotNil(t, resp)
	_, ok := store.Snapshot()
	require.False(t, ok)
}

func TestFirstLogin(t *testing.T) {
	_, baseURL := newFakeAPI(t)
	svc, _, _ := newService(t, baseURL)
	ctx := context.Background()

	resp, err := svc.Login(ctx, auth.LoginRequest{PhoneNumber: fakeapi.DemoCHWPhone, PIN: fakeapi.DemoPIN})
	require.NoError(t, err)
	id := resp.User.ID
	require.True(t, svc.IsFirstLogin(id))

	svc.MarkOnboardingComplete(id)
	require.False(t, svc.IsFirstLogin(id))

	_, err = svc.Login(ctx, auth.LoginRequest{PhoneNumber: fakeapi.DemoCHWPhone, PIN: fakeapi.DemoPIN})
	require.NoError(t, err)
	require.False(t, svc.IsFirstLogin(id))
}

func TestProfileAndLogout(t *testing.T) {
	_, baseURL := newFakeAPI(t)
	svc, store, gw := newService(t, baseURL)
	ctx := context.Background()

	_, err := svc.Profile(ctx)
	require.ErrorIs(t, err, auth.ErrNotLoggedIn)

	_, err = svc.Login(ctx, auth.LoginRequest{PhoneNumber: fakeapi.DemoNursePhone, PIN: fakeapi.DemoPIN})
	require.NoError(t, err)
	stale, _ := store.AccessToken()

	profile, err := svc.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, users.RoleNurse, profile.Role)
	require.Equal(t, int64(1), profile.ProfileID)
	require.True(t, profile.IsVerified)

	svc.Logout(ctx)
	require.False(t, svc.IsAuthenticated())
	_, ok := store.User()
	require.False(t, ok)

	// the server revoked the token, so reusing it must fail
	store.Save(stale, "")
	err = gw.Get(ctx, "/auth/profile", nil)
	require.True(t, gateway.IsSessionExpired(err))
}

func TestLogout_ServerUnreachable(t *testing.T) {
	svc, store, _ := newService(t, "http://127.0.0.1:1")
	store.Save("access", "refresh")
	svc.Logout(context.Background())
	_, ok := store.Snapshot()
	require.False(t, ok)
}

func TestRegistrationFlow(t *testing.T) {
	_, baseURL := newFakeAPI(t, fakeapi.WithoutSeed())
	svc, _, _ := newService(t, baseURL)
	ctx := context.Background()

	reg, err := svc.Register(ctx, auth.RegisterRequest{
		PhoneNumber: "+254 722 000 111",
		Name:        "Wanjiru",
		PIN:         "5931",
		Role:        users.RoleCHW,
	})
	require.NoError(t, err)
	require.NotZero(t, reg.UserID)
	require.Len(t, reg.OTPCode, 6)

	_, err = svc.Register(ctx, auth.RegisterRequest{PhoneNumber: "+254722000111", Name: "Wanjiru", PIN: "5931", Role: users.RoleCHW})
	require.True(t, gateway.IsKind(err, gateway.KindConflict))

	resent, err := svc.ResendOTP(ctx, "+254722000111")
	require.NoError(t, err)
	require.Len(t, resent.OTPCode, 6)

	verified, err := svc.VerifyOTP(ctx, auth.VerifyOTPRequest{PhoneNumber: "+254722000111", OTPCode: resent.OTPCode})
	require.NoError(t, err)
	require.NotNil(t, verified.ProfileID)
	require.Equal(t, int64(1), *verified.ProfileID)

	_, err = svc.VerifyOTP(ctx, auth.VerifyOTPRequest{PhoneNumber: "+254722000111", OTPCode: resent.OTPCode})
	require.True(t, gateway.IsKind(err, gateway.KindBadRequest))

	_, err = svc.ResendOTP(ctx, "+254722000111")
	require.True(t, gateway.IsKind(err, gateway.KindNotFound))

	resp, err := svc.Login(ctx, auth.LoginRequest{PhoneNumber: "+254722000111", PIN: "5931"})
	require.NoError(t, err)
	require.Equal(t, users.RoleCHW, resp.User.Role)
}

package auth

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/remycare-client/gateway"
	"github.com/jrsteele09/remycare-client/internal/utils"
	"github.com/jrsteele09/remycare-client/session"
	"github.com/jrsteele09/remycare-client/users"
)

const (
	loginPath     = "/auth/login"
	logoutPath    = "/auth/logout"
	registerPath  = "/auth/register"
	verifyOTPPath = "/auth/verify-otp"
	resendOTPPath = "/auth/resend-otp"
	profilePath   = "/auth/profile"
)

type onboardingState int

const (
	onboardingPending onboardingState = iota + 1
	onboardingComplete
)

// Service wraps the authentication endpoints and keeps the session store in
// step with them.
type Service struct {
	gw     *gateway.Gateway
	store  session.Store
	logger zerolog.Logger

	lock       sync.Mutex
	onboarding map[int64]onboardingState // user id to onboarding progress
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service that calls the API through gw and records
// sessions in store.
func NewService(gw *gateway.Gateway, store session.Store, options ...ServiceOption) (*Service, error) {
	if gw == nil {
		return nil, errors.New("[NewService] gateway is required")
	}
	if store == nil {
		return nil, errors.New("[NewService] session store is required")
	}

	s := &Service{
		gw:         gw,
		store:      store,
		logger:     log.Logger,
		onboarding: make(map[int64]onboardingState),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "auth").Logger()
	return s, nil
}

// Login exchanges a phone number and PIN for a token pair and starts a new
// session with it.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.logger.Info().Str("phone", maskPhone(req.PhoneNumber)).Msg("Attempting login")

	var resp LoginResponse
	if err := s.gw.Post(ctx, loginPath, req, &resp, gateway.WithoutAuth()); err != nil {
		s.logger.Warn().Err(err).Str("phone", maskPhone(req.PhoneNumber)).Msg("Login failed")
		return nil, err
	}

	if resp.AccessToken == "" || resp.RefreshToken == "" {
		s.logger.Warn().
			Bool("has_access_token", resp.AccessToken != "").
			Bool("has_refresh_token", resp.RefreshToken != "").
			Msg("Login response is missing tokens, session not saved")
		return &resp, ErrMissingTokens
	}

	s.store.Save(resp.AccessToken, resp.RefreshToken)
	s.store.SaveUser(resp.User.UserSummary)
	s.trackFirstLogin(resp.User.ID)

	s.logger.Info().
		Int64("user_id", resp.User.ID).
		Str("role", string(resp.User.Role)).
		Msg("Login successful, session saved")
	return &resp, nil
}

// Register creates an unverified account. The OTP that must be passed to
// VerifyOTP is delivered out of band.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var resp RegisterResponse
	if err := s.gw.Post(ctx, registerPath, req, &resp, gateway.WithoutAuth()); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", resp.UserID).Str("role", string(req.Role)).Msg("Registration accepted")
	return &resp, nil
}

func (s *Service) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*VerifyOTPResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var resp VerifyOTPResponse
	if err := s.gw.Post(ctx, verifyOTPPath, req, &resp, gateway.WithoutAuth()); err != nil {
		return nil, err
	}
	s.logger.Info().
		Int64("user_id", resp.UserID).
		Int64("profile_id", utils.Value(resp.ProfileID)).
		Msg("Phone number verified")
	return &resp, nil
}

func (s *Service) ResendOTP(ctx context.Context, phoneNumber string) (*MessageResponse, error) {
	req := ResendOTPRequest{PhoneNumber: NormalizePhone(phoneNumber)}
	if err := ValidatePhone(req.PhoneNumber); err != nil {
		return nil, err
	}

	var resp MessageResponse
	if err := s.gw.Post(ctx, resendOTPPath, req, &resp, gateway.WithoutAuth()); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profile fetches the logged-in user's profile.
func (s *Service) Profile(ctx context.Context) (*Profile, error) {
	if !s.IsAuthenticated() {
		return nil, ErrNotLoggedIn
	}

	var profile Profile
	if err := s.gw.Get(ctx, profilePath, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Logout tells the server the session is over and clears it locally. The
// local session is cleared even when the server cannot be reached.
func (s *Service) Logout(ctx context.Context) {
	if s.IsAuthenticated() {
		if err := s.gw.Post(ctx, logoutPath, nil, nil); err != nil {
			s.logger.Warn().Err(err).Msg("Server logout failed, clearing local session anyway")
		}
	}
	s.store.Clear()
	s.logger.Info().Msg("Logged out")
}

func (s *Service) CurrentUser() (users.UserSummary, bool) {
	return s.store.User()
}

func (s *Service) IsAuthenticated() bool {
	_, ok := s.store.AccessToken()
	return ok
}

// IsFirstLogin reports whether userID has logged in but not yet finished
// onboarding.
func (s *Service) IsFirstLogin(userID int64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.onboarding[userID] == onboardingPending
}

func (s *Service) MarkOnboardingComplete(userID int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.onboarding[userID] = onboardingComplete
}

func (s *Service) trackFirstLogin(userID int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, seen := s.onboarding[userID]; !seen {
		s.onboarding[userID] = onboardingPending
	}
}

// maskPhone keeps the last three digits of a phone number for logging.
func maskPhone(phone string) string {
	if len(phone) <= 3 {
		return "***"
	}
	return "***" + phone[len(phone)-3:]
}

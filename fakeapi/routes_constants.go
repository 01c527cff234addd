package fakeapi

const (
	APIPrefix = "/api/v1"

	// Auth
	RouteAuthLogin     = APIPrefix + "/auth/login"
	RouteAuthRefresh   = APIPrefix + "/auth/refresh"
	RouteAuthLogout    = APIPrefix + "/auth/logout"
	RouteAuthProfile   = APIPrefix + "/auth/profile"
	RouteAuthRegister  = APIPrefix + "/auth/register"
	RouteAuthVerifyOTP = APIPrefix + "/auth/verify-otp"
	RouteAuthResendOTP = APIPrefix + "/auth/resend-otp"

	// Mothers
	RouteMother         = APIPrefix + "/mothers/{id}"
	RouteMotherCheckins = APIPrefix + "/mothers/{id}/checkins"

	// Escalations
	RouteEscalations      = APIPrefix + "/escalations"
	RouteEscalationStatus = APIPrefix + "/escalations/{id}/status"

	// Realtime
	RouteWebSocket = "/ws"

	RouteHealth = "/health"
)

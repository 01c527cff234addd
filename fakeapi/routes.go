package fakeapi

import "github.com/jrsteele09/remycare-client/users"

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// AUTH
	s.RegisterRouteFunc("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthVerifyOTP, ChainMiddleware(s.VerifyOTPHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthResendOTP, ChainMiddleware(s.ResendOTPHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware(s.RequireRefreshToken())...))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteFunc("GET "+RouteAuthProfile, ChainMiddleware(s.ProfileHandler(), s.APIMiddleware(s.RequireAuth())...))

	// MOTHERS
	s.RegisterRouteFunc("GET "+RouteMother, ChainMiddleware(s.GetMotherHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteFunc("GET "+RouteMotherCheckins, ChainMiddleware(s.ListCheckinsHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteFunc("POST "+RouteMotherCheckins, ChainMiddleware(s.CreateCheckinHandler(), s.APIMiddleware(s.RequireAuth())...))

	// ESCALATIONS
	s.RegisterRouteFunc("GET "+RouteEscalations, ChainMiddleware(s.ListEscalationsHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteFunc("POST "+RouteEscalations, ChainMiddleware(s.CreateEscalationHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireRole(users.RoleCHW))...))
	s.RegisterRouteFunc("PATCH "+RouteEscalationStatus, ChainMiddleware(s.UpdateEscalationStatusHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireRole(users.RoleNurse))...))

	// REALTIME: the token travels in the query string, so no bearer middleware
	s.RegisterRouteFunc("GET "+RouteWebSocket, ChainMiddleware(s.WebSocketHandler(), s.LoggingMiddleware, s.RecoverMiddleware))
}

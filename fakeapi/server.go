package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/remycare-client/internal/config"
	"github.com/jrsteele09/remycare-client/token"
	"github.com/jrsteele09/remycare-client/users"
	fakeuserrepo "github.com/jrsteele09/remycare-client/users/repofake"
)

// Server is a development stand-in for the RemyCare REST API and its push
// endpoint. It keeps everything in memory.
type Server struct {
	env     string
	mux     *http.ServeMux
	routes  []string
	config  config.ServerConfig
	logger  zerolog.Logger
	users   users.Repo
	signer  token.Signer
	revoked *token.RevocationList
	hub     *Hub
	data    *store
	seed    bool

	issuedLock sync.Mutex
	issued     map[string]time.Time // access token jti -> exp

	otpLock sync.Mutex
	otps    map[string]otpEntry // phone number -> pending code
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithEnv sets the environment name. DEV logs every route at startup.
func WithEnv(env string) ServerOption {
	return func(s *Server) {
		s.env = env
	}
}

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithUserRepo replaces the in-memory account store.
func WithUserRepo(repo users.Repo) ServerOption {
	return func(s *Server) {
		s.users = repo
	}
}

// WithoutSeed starts with no demo accounts or records.
func WithoutSeed() ServerOption {
	return func(s *Server) {
		s.seed = false
	}
}

// New creates the development API and seeds it with demo users.
func New(cfg config.ServerConfig, options ...ServerOption) (*Server, error) {
	s := &Server{
		mux:     http.NewServeMux(),
		config:  cfg,
		logger:  log.Logger,
		users:   fakeuserrepo.NewFakeUserRepo(),
		signer:  token.NewHMACSigner(cfg.GetJWTSecret()),
		revoked: token.NewRevocationList(),
		data:    newStore(),
		issued:  make(map[string]time.Time),
		otps:    make(map[string]otpEntry),
		seed:    true,
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "fakeapi").Logger()
	s.hub = newHub(s.logger)

	if s.seed {
		if err := s.InitialiseDemoData(); err != nil {
			return nil, fmt.Errorf("[fakeapi New] failed to seed demo data: %w", err)
		}
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Close drops every realtime connection. http.Server.Shutdown does not
// touch hijacked connections, so call this alongside it.
func (s *Server) Close() {
	s.hub.Close()
}

// Broadcast pushes event to every connection in rooms, or to every
// connection when no room is given.
func (s *Server) Broadcast(event string, payload any, rooms ...string) error {
	return s.hub.Broadcast(event, payload, rooms...)
}

// Connections returns the number of open realtime connections.
func (s *Server) Connections() int {
	return s.hub.Len()
}

// RoomMembers returns the number of realtime connections that joined room.
func (s *Server) RoomMembers(room string) int {
	return s.hub.Members(room)
}

// RevokeAccessTokens revokes every access token issued so far, so the next
// call with any of them gets a 401 and must refresh.
func (s *Server) RevokeAccessTokens() int {
	s.issuedLock.Lock()
	defer s.issuedLock.Unlock()
	for jti, exp := range s.issued {
		s.revoked.Revoke(jti, exp)
	}
	n := len(s.issued)
	s.issued = make(map[string]time.Time)
	s.logger.Info().Int("revoked", n).Msg("Access tokens revoked")
	return n
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = gray
	}
	s.logger.Info().Msgf("[%s] %s", color+paddedMethod+resetColor, path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

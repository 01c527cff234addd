package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/remycare-client/gateway"
	remyerrors "github.com/jrsteele09/remycare-client/internal/errors"
	"github.com/jrsteele09/remycare-client/session"
	"github.com/stretchr/testify/require"
)

// countingStore records how many times the session is cleared.
type countingStore struct {
	*session.MemoryStore
	clears atomic.Int32
}

func (s *countingStore) Clear() {
	s.clears.Add(1)
	s.MemoryStore.Clear()
}

type escalationList struct {
	Escalations []map[string]any `json:"escalations"`
	Total       int              `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(cond func() bool) {
	deadline := time.Now().Add(time.Second)
	for !cond() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGateway_AttachesHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "name": "Amina"})
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	store.Save("A1", "R1")
	gw := gateway.New(srv.URL, store)

	var out struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, gw.Get(context.Background(), "/mothers/1", &out))
	require.Equal(t, 1, out.ID)
	require.Equal(t, "Amina", out.Name)
	got := <-headers
	require.Equal(t, "Bearer A1", got.Get("Authorization"))
	require.Equal(t, "application/json", got.Get("Content-Type"))
	require.Equal(t, "application/json", got.Get("Accept"))
	require.NotEmpty(t, got.Get("X-Request-ID"))
}

func TestGateway_WithoutAuth(t *testing.T) {
	authHeader := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid phone number or PIN"})
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	store.Save("A1", "R1")
	gw := gateway.New(srv.URL, store)

	err := gw.Post(context.Background(), "/auth/login", map[string]string{"phone_number": "+254700000001", "pin": "bad"}, nil, gateway.WithoutAuth())
	require.Error(t, err)
	require.Empty(t, <-authHeader)

	var apiErr *gateway.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, gateway.KindUnauthorized, apiErr.Kind)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "Invalid phone number or PIN", apiErr.Message)
	require.False(t, gateway.IsSessionExpired(err))

	// The session is untouched by a login failure.
	access, ok := store.AccessToken()
	require.True(t, ok)
	require.Equal(t, "A1", access)
}

func TestGateway_UnauthorizedWithoutSession(t *testing.T) {
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
	})
	mux.HandleFunc("/escalations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Missing token"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gw := gateway.New(srv.URL, session.NewMemoryStore())
	err := gw.Get(context.Background(), "/escalations", nil)
	require.True(t, gateway.IsKind(err, gateway.KindUnauthorized))
	require.Zero(t, refreshCalls.Load())
}

func TestGateway_RefreshAndRetry(t *testing.T) {
	var escalationCalls, refreshCalls atomic.Int32
	refreshAuth := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/escalations", func(w http.ResponseWriter, r *http.Request) {
		escalationCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer A2" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token expired"})
			return
		}
		writeJSON(w, http.StatusOK, escalationList{Escalations: []map[string]any{}, Total: 0})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		refreshAuth <- r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "A2"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := session.NewMemoryStore()
	store.Save("A1", "R1")
	var refreshed []string
	gw := gateway.New(srv.URL, store, gateway.WithTokenRefreshedHandler(func(access string) {
		refreshed = append(refreshed, access)
	}))

	var out escalationList
	require.NoError(t, gw.Get(context.Background(), "/escalations", &out))
	require.Equal(t, 0, out.Total)
	require.NotNil(t, out.Escalations)

	require.EqualValues(t, 2, escalationCalls.Load())
	require.EqualValues(t, 1, refreshCalls.Load())
	require.Equal(t, "Bearer R1", <-refreshAuth)
	require.Equal(t, []string{"A2"}, refreshed)

	access, _ := store.AccessToken()
	require.Equal(t, "A2", access)
	refresh, _ := store.RefreshToken()
	require.Equal(t, "R1", refresh)
}

func TestGateway_RetriesOnlyOnce(t *testing.T) {
	var escalationCalls, refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/escalations", func(w http.ResponseWriter, r *http.Request) {
		escalationCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token expired"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "A2"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := session.NewMemoryStore()
	store.Save("A1", "R1")
	gw := gateway.New(srv.URL, store)

	err := gw.Get(context.Background(), "/escalations", nil)
	require.True(t, gateway.IsKind(err, gateway.KindUnauthorized))
	require.False(t, gateway.IsSessionExpired(err))
	require.EqualValues(t, 2, escalationCalls.Load())
	require.EqualValues(t, 1, refreshCalls.Load())

	// The refresh itself succeeded, so the session survives.
	access, ok := store.AccessToken()
	require.True(t, ok)
	require.Equal(t, "A2", access)
}

func TestGateway_SingleFlightRefresh(t *testing.T) {
	const callers = 8

	var rejected, refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/patients", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer A1" {
			rejected.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		waitFor(func() bool { return rejected.Load() >= callers })
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "A2"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := session.NewMemoryStore()
	store.Save("A1", "R1")
	gw := gateway.New(srv.URL, store)

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = gw.Get(context.Background(), "/patients", nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, callers, rejected.Load())
	require.EqualValues(t, 1, refreshCalls.Load())
}

func TestGateway_FailedRefreshClearsOnce(t *testing.T) {
	const callers = 5

	var rejected, refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/alerts", func(w http.ResponseWriter, r *http.Request) {
		rejected.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token expired"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		waitFor(func() bool { return rejected.Load() >= callers })
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Refresh token expired"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &countingStore{MemoryStore: session.NewMemoryStore()}
	store.Save("A1", "R1")
	var expired atomic.Int32
	gw := gateway.New(srv.URL, store, gateway.WithSessionExpiredHandler(func() {
		expired.Add(1)
	}))

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = gw.Get(context.Background(), "/alerts", nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.True(t, gateway.IsSessionExpired(err), "got %v", err)
		var apiErr *gateway.APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, gateway.KindUnauthorized, apiErr.Kind)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	}
	require.EqualValues(t, 1, refreshCalls.Load())
	require.EqualValues(t, 1, store.clears.Load())
	require.EqualValues(t, 1, expired.Load())

	_, ok := store.Snapshot()
	require.False(t, ok)
}

func TestGateway_RefreshFailures(t *testing.T) {
	tests := []struct {
		name     string
		refresh  string // refresh token saved with the session
		handler  http.HandlerFunc
		cause    error
		exchange bool
	}{
		{
			name:    "no refresh token",
			refresh: "",
			cause:   remyerrors.ErrNoRefreshToken,
		},
		{
			name:     "rejected",
			refresh:  "R1",
			exchange: true,
			cause:    remyerrors.ErrRefreshRejected,
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid refresh token"})
			},
		},
		{
			name:     "malformed body",
			refresh:  "R1",
			exchange: true,
			cause:    remyerrors.ErrMalformedRefresh,
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, "not json")
			},
		},
		{
			name:     "empty access token",
			refresh:  "R1",
			exchange: true,
			cause:    remyerrors.ErrMalformedRefresh,
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{"access_token": ""})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var refreshCalls atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc("/visits", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token expired"})
			})
			mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
				refreshCalls.Add(1)
				if tt.handler != nil {
					tt.handler(w, r)
				}
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			store := session.NewMemoryStore()
			store.Save("A1", tt.refresh)
			gw := gateway.New(srv.URL, store)

			err := gw.Get(context.Background(), "/visits", nil)
			require.True(t, gateway.IsSessionExpired(err))
			require.ErrorIs(t, err, tt.cause)
			if tt.exchange {
				require.EqualValues(t, 1, refreshCalls.Load())
			} else {
				require.Zero(t, refreshCalls.Load())
			}

			_, ok := store.AccessToken()
			require.False(t, ok)
		})
	}
}

func TestGateway_StatusTaxonomy(t *testing.T) {
	tests := []struct {
		status  int
		body    any
		kind    gateway.Kind
		message string
	}{
		{http.StatusBadRequest, map[string]string{"message": "phone_number is required"}, gateway.KindBadRequest, "phone_number is required"},
		{http.StatusForbidden, map[string]string{"error": "Nurses only"}, gateway.KindForbidden, "Nurses only"},
		{http.StatusNotFound, nil, gateway.KindNotFound, "HTTP 404: Not Found"},
		{http.StatusConflict, map[string]string{"error": "Already acknowledged"}, gateway.KindConflict, "Already acknowledged"},
		{http.StatusUnprocessableEntity, nil, gateway.KindUnprocessable, "HTTP 422: Unprocessable Entity"},
		{http.StatusTooManyRequests, nil, gateway.KindRateLimited, "HTTP 429: Too Many Requests"},
		{http.StatusInternalServerError, nil, gateway.KindServerError, "HTTP 500: Internal Server Error"},
		{http.StatusBadGateway, nil, gateway.KindUnavailable, "HTTP 502: Bad Gateway"},
		{http.StatusServiceUnavailable, nil, gateway.KindUnavailable, "HTTP 503: Service Unavailable"},
		{http.StatusGatewayTimeout, nil, gateway.KindUnavailable, "HTTP 504: Gateway Timeout"},
		{http.StatusTeapot, nil, gateway.KindUnknown, "HTTP 418: I'm a teapot"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.body == nil {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(w, tt.status, tt.body)
			}))
			defer srv.Close()

			store := session.NewMemoryStore()
			store.Save("A1", "R1")
			gw := gateway.New(srv.URL, store)

			err := gw.Get(context.Background(), "/mothers", nil)
			var apiErr *gateway.APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tt.kind, apiErr.Kind)
			require.Equal(t, tt.status, apiErr.StatusCode)
			require.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestGateway_NoContent(t *testing.T) {
	methods := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods <- r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	store.Save("A1", "R1")
	gw := gateway.New(srv.URL, store)

	out := map[string]string{"untouched": "yes"}
	require.NoError(t, gw.Delete(context.Background(), "/escalations/7", &out))
	require.Equal(t, http.MethodDelete, <-methods)
	require.Equal(t, map[string]string{"untouched": "yes"}, out)
}

func TestGateway_SendsJSONBody(t *testing.T) {
	type visit struct {
		MotherID int    `json:"mother_id"`
		Notes    string `json:"notes"`
	}

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			type received struct {
				method string
				body   visit
			}
			requests := make(chan received, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var rec received
				rec.method = r.Method
				_ = json.NewDecoder(r.Body).Decode(&rec.body)
				requests <- rec
				writeJSON(w, http.StatusCreated, map[string]int{"id": 42})
			}))
			defer srv.Close()

			store := session.NewMemoryStore()
			store.Save("A1", "R1")
			gw := gateway.New(srv.URL, store)

			in := visit{MotherID: 3, Notes: "BP normal"}
			var out struct {
				ID int `json:"id"`
			}
			var err error
			switch method {
			case http.MethodPost:
				err = gw.Post(context.Background(), "/visits", in, &out)
			case http.MethodPut:
				err = gw.Put(context.Background(), "/visits/42", in, &out)
			case http.MethodPatch:
				err = gw.Patch(context.Background(), "/visits/42", in, &out)
			}
			require.NoError(t, err)
			rec := <-requests
			require.Equal(t, method, rec.method)
			require.Equal(t, in, rec.body)
			require.Equal(t, 42, out.ID)
		})
	}
}

func TestGateway_MalformedSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{not json")
	}))
	defer srv.Close()

	gw := gateway.New(srv.URL, session.NewMemoryStore())
	var out map[string]any
	err := gw.Get(context.Background(), "/stats", &out)
	require.True(t, gateway.IsKind(err, gateway.KindUnknown))
}

func TestGateway_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	gw := gateway.New(url, session.NewMemoryStore())
	err := gw.Get(context.Background(), "/stats", nil)
	require.True(t, gateway.IsKind(err, gateway.KindNetwork), "got %v", err)

	var apiErr *gateway.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Zero(t, apiErr.StatusCode)
}

func TestGateway_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	gw := gateway.New(srv.URL, session.NewMemoryStore(), gateway.WithTimeout(50*time.Millisecond))
	err := gw.Get(context.Background(), "/stats", nil)
	require.True(t, gateway.IsKind(err, gateway.KindTimeout), "got %v", err)
}

func TestKindForStatus(t *testing.T) {
	require.Equal(t, gateway.KindUnauthorized, gateway.KindForStatus(http.StatusUnauthorized))
	require.Equal(t, gateway.KindUnavailable, gateway.KindForStatus(http.StatusServiceUnavailable))
	require.Equal(t, gateway.KindUnknown, gateway.KindForStatus(http.StatusMethodNotAllowed))
}

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/infrastructure/token"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var liveUser = &domain.User{ID: "u1", Token: "live-token"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL + "/", RateLimit: 1000, Burst: 100}, zerolog.Nop())
	client.backoff = func(int) time.Duration { return time.Millisecond }
	return client
}

func userCtx() context.Context {
	return domain.ContextWithUser(context.Background(), liveUser)
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://api.example.com/"}, zerolog.Nop())

	assert.Equal(t, "https://api.example.com", client.baseURL)
	assert.Equal(t, 3, client.maxAttempts)
	assert.Equal(t, 15*time.Second, client.httpClient.Timeout)
	assert.NotNil(t, client.rateLimiter)
	assert.False(t, client.debug)

	client.SetDebug(true)
	assert.True(t, client.debug)
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
	}
}

func TestListProducts_WrappedAndBare(t *testing.T) {
	bodies := []string{
		`{"products":[{"id":"42","product_name":"MacBook Pro","current_price":"$1,999.00","target_price":1799,"vendor":"Apple","product_url":"https://apple.com","status":"tracking"}]}`,
		`[{"id":42,"product_name":"MacBook Pro","current_price":1999,"target_price":"1,799.00","vendor":"Apple","product_url":"https://apple.com","status":"tracking"}]`,
	}

	for _, body := range bodies {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/products", r.URL.Path)
			assert.Equal(t, "Bearer live-token", r.Header.Get("Authorization"))
			assert.Equal(t, "paused", r.URL.Query().Get("status"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, body)
		})

		products, err := client.ListProducts(userCtx(), domain.ProductQuery{Status: domain.ProductStatusPaused})
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, domain.ProductID(42), products[0].ID)
		assert.Equal(t, 1999.0, products[0].CurrentPrice)
		assert.Equal(t, 1799.0, products[0].TargetPrice)
		assert.Equal(t, domain.SourceBackend, products[0].Source)
	}
}

func TestListProducts_SkipsMalformedIDs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"products":[{"id":"abc","product_name":"Bad"},{"id":7,"product_name":"Good"}]}`)
	})

	products, err := client.ListProducts(userCtx(), domain.ProductQuery{})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Good", products[0].Title)
}

func TestRequest_RequiresToken(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.ListAlerts(context.Background(), domain.AlertQuery{})
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRequest_ErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		message  string
		sentinel error
	}{
		{"nested message", http.StatusBadRequest, `{"error":{"message":"bad target"}}`, "bad target", domain.ErrInvalidRequest},
		{"flat error", http.StatusUnauthorized, `{"error":"expired token"}`, "expired token", domain.ErrNotAuthenticated},
		{"top-level message", http.StatusNotFound, `{"message":"no such alert"}`, "no such alert", domain.ErrAlertNotFound},
		{"no body", http.StatusConflict, ``, defaultErrorMessage, domain.ErrBackendFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			err := client.DeleteAlert(userCtx(), "alert-1")
			require.Error(t, err)
			var apiErr *domain.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestRequest_RetriesGetOnServerError(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"vendors":["Amazon","Best Buy"]}`)
	})

	vendors, err := client.Vendors(userCtx())
	require.NoError(t, err)
	assert.Equal(t, []string{"Amazon", "Best Buy"}, vendors)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRequest_DoesNotRetryMutations(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.CreateAlert(userCtx(), domain.AlertInput{ProductID: 1})
	assert.ErrorIs(t, err, domain.ErrBackendFailure)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateAlert_AcknowledgesWithID(t *testing.T) {
	for _, ack := range []string{`{"id":"a-9"}`, `{"success":true,"alertId":"a-9"}`} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			var payload map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "42", payload["product_id"])
			assert.Equal(t, 99.5, payload["target_price"])
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, ack)
		})

		id, err := client.CreateAlert(userCtx(), domain.AlertInput{ProductID: 42, TargetPrice: 99.5})
		require.NoError(t, err)
		assert.Equal(t, "a-9", id)
	}
}

func TestCreateAlert_MissingIDIsAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true}`)
	})

	_, err := client.CreateAlert(userCtx(), domain.AlertInput{ProductID: 1})
	assert.ErrorIs(t, err, domain.ErrBackendFailure)
}

func TestUpdateProduct_SendsPatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/products/42", r.URL.Path)
		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "paused", payload["status"])
		assert.Equal(t, "dismissed", payload["alert_status"])
		assert.NotContains(t, payload, "target_price")
		_, _ = io.WriteString(w, `{"success":true}`)
	})

	alertStatus := domain.AlertStatusDismissed
	patch := domain.AlertUpdate{Status: &alertStatus}.ProductPatch()
	require.NoError(t, client.UpdateProduct(userCtx(), 42, patch))
}

func TestGetPreferences_Shapes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		isNil  bool
	}{
		{"wrapped", http.StatusOK, `{"preferences":{"checkFrequency":"weekly","timezone":"UTC"}}`, false},
		{"bare", http.StatusOK, `{"checkFrequency":"weekly","timezone":"UTC"}`, false},
		{"null", http.StatusOK, `{"preferences":null}`, true},
		{"not found", http.StatusNotFound, `{"error":{"message":"none"}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/user/preferences", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			prefs, err := client.GetPreferences(userCtx())
			require.NoError(t, err)
			if tt.isNil {
				assert.Nil(t, prefs)
				return
			}
			require.NotNil(t, prefs)
			assert.Equal(t, domain.CheckWeekly, prefs.CheckFrequency)
		})
	}
}

func TestSearchSuggestions_EncodesQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mac book", r.URL.Query().Get("query"))
		_, _ = io.WriteString(w, `["MacBook Pro"]`)
	})

	got, err := client.SearchSuggestions(userCtx(), "mac book")
	require.NoError(t, err)
	assert.Equal(t, []string{"MacBook Pro"}, got)
}

func TestStats(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/stats", r.URL.Path)
		_, _ = io.WriteString(w, `{"stats":{"total_products":3,"active_alerts":2,"total_savings":"250.00"}}`)
	})

	stats, err := client.Stats(userCtx())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalProducts)
	assert.Equal(t, 2, stats.ActiveAlerts)
	assert.Equal(t, 250.0, stats.TotalSavings)
}

func TestPing(t *testing.T) {
	healthy := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, healthy.Ping(context.Background()))

	unhealthy := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.ErrorIs(t, unhealthy.Ping(context.Background()), domain.ErrBackendUnavailable)

	down := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, zerolog.Nop())
	assert.ErrorIs(t, down.Ping(context.Background()), domain.ErrBackendUnavailable)
}

func TestIdentityClient_SignInAndOut(t *testing.T) {
	var signedOut int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/signin":
			var creds credentialsDTO
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			if creds.Password != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"error":{"message":"wrong password"}}`)
				return
			}
			_, _ = io.WriteString(w, `{"token":"tok-1","user":{"id":"u1","email":"a@b.c","display_name":"A"}}`)
		case "/auth/signout":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			atomic.AddInt32(&signedOut, 1)
			_, _ = io.WriteString(w, `{"success":true}`)
		}
	})
	identity := NewIdentityClient(client, token.Service{})

	var seen []*domain.User
	unsubscribe := identity.OnAuthStateChanged(func(u *domain.User) { seen = append(seen, u) })
	defer unsubscribe()

	_, err := identity.SignInWithEmail(context.Background(), "a@b.c", "nope")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	user, err := identity.SignInWithEmail(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", user.Token)
	assert.Equal(t, user, identity.CurrentUser())

	require.NoError(t, identity.SignOut(context.Background()))
	assert.Nil(t, identity.CurrentUser())
	assert.Equal(t, int32(1), atomic.LoadInt32(&signedOut))

	require.Len(t, seen, 3)
	assert.Nil(t, seen[0])
	assert.Equal(t, "u1", seen[1].ID)
	assert.Nil(t, seen[2])
}

func TestIdentityClient_VerifyToken(t *testing.T) {
	tokens := token.Service{Secret: []byte("s3cret"), Issuer: "dealpop", Duration: time.Hour}
	signed, _, err := tokens.Sign(&domain.User{ID: "u7", Email: "x@y.z"})
	require.NoError(t, err)

	local := NewIdentityClient(NewClient(Config{BaseURL: "http://unused"}, zerolog.Nop()), tokens)
	user, err := local.VerifyToken(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "u7", user.ID)
	assert.Equal(t, signed, user.Token)

	_, err = local.VerifyToken(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	remote := NewIdentityClient(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/me", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"user":{"id":"u8","email":"r@y.z"}}`)
	}), token.Service{})

	user, err = remote.VerifyToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u8", user.ID)

	_, err = remote.VerifyToken(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

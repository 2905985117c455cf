package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestIsAllowedOrigin(t *testing.T) {
	tests := []struct {
		name           string
		origin         string
		allowedOrigins []string
		want           bool
	}{
		{"exact match", "http://localhost:5173", []string{"http://localhost:5173"}, true},
		{"wildcard match", "chrome-extension://abcdefg12345", []string{"chrome-extension://*"}, true},
		{"second of several", "http://localhost:5173", []string{"chrome-extension://*", "http://localhost:5173"}, true},
		{"no match", "http://evil.com", []string{"chrome-extension://*"}, false},
		{"port must match", "http://localhost:3000", []string{"http://localhost:5173"}, false},
		{"empty origin", "", []string{"chrome-extension://*"}, false},
		{"empty allowed list", "chrome-extension://abcdefg12345", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAllowedOrigin(tt.origin, tt.allowedOrigins); got != tt.want {
				t.Errorf("isAllowedOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		origin     string
		method     string
		wantStatus int
		wantCORS   bool
	}{
		{"allowed origin - GET request", "chrome-extension://abcdefg12345", "GET", http.StatusOK, true},
		{"allowed origin - OPTIONS request", "chrome-extension://abcdefg12345", "OPTIONS", http.StatusNoContent, true},
		{"disallowed origin", "http://evil.com", "GET", http.StatusOK, false},
		{"no origin header", "", "GET", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(CORSMiddleware([]string{"chrome-extension://*"}))
			router.GET("/test", func(c *gin.Context) {
				c.String(http.StatusOK, "OK")
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}

			corsHeader := w.Header().Get("Access-Control-Allow-Origin")
			if tt.wantCORS {
				if corsHeader != tt.origin {
					t.Errorf("Access-Control-Allow-Origin = %s, want %s", corsHeader, tt.origin)
				}
				if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
					t.Errorf("Access-Control-Allow-Credentials not set to true")
				}
			} else if corsHeader != "" {
				t.Errorf("Access-Control-Allow-Origin should not be set for disallowed origin, got %s", corsHeader)
			}
		})
	}
}

func TestCORSMiddleware_PreflightAllowsPatch(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware([]string{"chrome-extension://*"}))
	router.PATCH("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	req := httptest.NewRequest("OPTIONS", "/test", nil)
	req.Header.Set("Origin", "chrome-extension://abcdefg12345")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Errorf("Access-Control-Allow-Methods = %q, want PATCH included", w.Header().Get("Access-Control-Allow-Methods"))
	}
	if w.Header().Get("Access-Control-Max-Age") == "" {
		t.Errorf("Access-Control-Max-Age not set")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		target string
		ws     bool
		want   string
	}{
		{"bearer header", "Bearer abc", "/x", false, "abc"},
		{"case insensitive scheme", "bearer abc", "/x", false, "abc"},
		{"other scheme", "Basic abc", "/x", false, ""},
		{"missing", "", "/x", false, ""},
		{"query ignored without upgrade", "", "/x?token=abc", false, ""},
		{"query on websocket upgrade", "", "/x?token=abc", true, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.ws {
				req.Header.Set("Upgrade", "websocket")
			}
			if got := bearerToken(req); got != tt.want {
				t.Errorf("bearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

// tokenIdentity verifies a fixed token table
type tokenIdentity struct {
	domain.IdentityBackend
	users map[string]*domain.User
}

func (f *tokenIdentity) VerifyToken(ctx context.Context, tok string) (*domain.User, error) {
	if u, ok := f.users[tok]; ok {
		return u, nil
	}
	return nil, domain.ErrInvalidToken
}

type recordingBinder struct {
	user  *domain.User
	binds int
}

func (b *recordingBinder) User() *domain.User { return b.user }

func (b *recordingBinder) SetIdentity(ctx context.Context, user *domain.User) error {
	b.binds++
	b.user = user
	return nil
}

func TestAuthMiddleware(t *testing.T) {
	alice := &domain.User{ID: "alice"}
	bob := &domain.User{ID: "bob"}
	identity := &tokenIdentity{users: map[string]*domain.User{"t-alice": alice, "t-bob": bob}}
	binder := &recordingBinder{}

	router := gin.New()
	router.Use(AuthMiddleware(identity, binder, zerolog.Nop()))
	router.GET("/whoami", func(c *gin.Context) {
		fromCtx := domain.UserFromContext(c.Request.Context())
		if fromCtx == nil || fromCtx.ID != currentUser(c).ID {
			c.String(http.StatusInternalServerError, "context user mismatch")
			return
		}
		c.String(http.StatusOK, currentUser(c).ID)
	})

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	if w := call(""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token: Status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w := call("Bearer nope"); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: Status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if binder.binds != 0 {
		t.Errorf("binds = %d after rejected requests, want 0", binder.binds)
	}

	for i := 0; i < 2; i++ {
		w := call("Bearer t-alice")
		if w.Code != http.StatusOK || w.Body.String() != "alice" {
			t.Fatalf("alice: Status = %d body = %q", w.Code, w.Body.String())
		}
	}
	if binder.binds != 1 {
		t.Errorf("binds = %d after repeated sessions of one user, want 1", binder.binds)
	}

	if w := call("Bearer t-bob"); w.Body.String() != "bob" {
		t.Errorf("bob: body = %q, want bob", w.Body.String())
	}
	if binder.binds != 2 || binder.user.ID != "bob" {
		t.Errorf("binder = %d binds on %v, want 2 binds on bob", binder.binds, binder.user)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	router := gin.New()
	router.Use(MetricsMiddleware(m))
	router.GET("/items/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	if got := testutil.ToFloat64(m.TotalRequests.WithLabelValues("GET", "/items/:id", "200")); got != 2 {
		t.Errorf("requests for route template = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TotalRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}
}

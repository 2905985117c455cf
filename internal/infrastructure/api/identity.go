package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/infrastructure/token"
)

// IdentityClient signs in against the live identity endpoints and keeps the
// resulting session.
type IdentityClient struct {
	client *Client
	tokens token.Service

	mu        sync.RWMutex
	user      *domain.User
	listeners map[int]func(*domain.User)
	nextID    int
}

// NewIdentityClient creates a live identity client. When tokens carries a
// secret, VerifyToken checks signatures locally; otherwise it asks the
// backend.
func NewIdentityClient(client *Client, tokens token.Service) *IdentityClient {
	return &IdentityClient{
		client:    client,
		tokens:    tokens,
		listeners: make(map[int]func(*domain.User)),
	}
}

// Ping checks the identity endpoints share the live backend's health
func (ic *IdentityClient) Ping(ctx context.Context) error {
	return ic.client.Ping(ctx)
}

func (ic *IdentityClient) SignInWithEmail(ctx context.Context, email, password string) (*domain.User, error) {
	return ic.authenticate(ctx, "sign_in", "/auth/signin", email, password)
}

func (ic *IdentityClient) CreateAccount(ctx context.Context, email, password string) (*domain.User, error) {
	return ic.authenticate(ctx, "sign_up", "/auth/signup", email, password)
}

func (ic *IdentityClient) authenticate(ctx context.Context, op, path, email, password string) (*domain.User, error) {
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	body, err := ic.client.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   path,
		body:   credentialsDTO{Email: email, Password: password},
		public: true,
	})
	if err != nil {
		return nil, err
	}
	var session sessionDTO
	if err := decode(unwrap(body, "session"), &session); err != nil {
		return nil, err
	}
	if session.Token == "" || session.User.ID == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user := userFromDTO(session.User, session.Token)
	ic.setUser(user)
	return user, nil
}

// SignOut ends the session at the backend and locally. The local session is
// dropped even when the backend call fails.
func (ic *IdentityClient) SignOut(ctx context.Context) error {
	user := ic.CurrentUser()
	if user == nil {
		return nil
	}
	_, err := ic.client.do(domain.ContextWithUser(ctx, user), request{op: "sign_out", method: http.MethodPost, path: "/auth/signout"})
	ic.setUser(nil)
	return err
}

func (ic *IdentityClient) CurrentUser() *domain.User {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return ic.user
}

func (ic *IdentityClient) OnAuthStateChanged(fn func(*domain.User)) func() {
	ic.mu.Lock()
	id := ic.nextID
	ic.nextID++
	ic.listeners[id] = fn
	current := ic.user
	ic.mu.Unlock()

	fn(current)
	return func() {
		ic.mu.Lock()
		defer ic.mu.Unlock()
		delete(ic.listeners, id)
	}
}

// VerifyToken resolves a bearer token into its user
func (ic *IdentityClient) VerifyToken(ctx context.Context, tok string) (*domain.User, error) {
	if tok == "" {
		return nil, domain.ErrInvalidToken
	}
	if len(ic.tokens.Secret) > 0 {
		claims, err := ic.tokens.Parse(tok)
		if err != nil {
			return nil, err
		}
		user := claims.User()
		user.Token = tok
		return user, nil
	}

	body, err := ic.client.do(domain.ContextWithUser(ctx, &domain.User{Token: tok}), request{op: "verify_token", method: http.MethodGet, path: "/auth/me"})
	if err != nil {
		return nil, err
	}
	var dto userDTO
	if err := decode(unwrap(body, "user"), &dto); err != nil {
		return nil, err
	}
	if dto.ID == "" {
		return nil, domain.ErrInvalidToken
	}
	return userFromDTO(dto, tok), nil
}

func (ic *IdentityClient) setUser(user *domain.User) {
	ic.mu.Lock()
	ic.user = user
	fns := make([]func(*domain.User), 0, len(ic.listeners))
	for _, fn := range ic.listeners {
		fns = append(fns, fn)
	}
	ic.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

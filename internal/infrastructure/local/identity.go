package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/infrastructure/token"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	DemoUserID    = "demo-user-1"
	DemoUserEmail = "demo@dealpop.com"

	providerFallback = "fallback"
	minPasswordLen   = 6
)

// Identity is the fallback identity provider. Registered accounts are
// checked against bcrypt hashes; any other non-empty credentials sign in as
// the demo user. Sessions are HS256 tokens.
type Identity struct {
	db     *sql.DB
	tokens token.Service
	logger zerolog.Logger

	mu        sync.RWMutex
	user      *domain.User
	listeners map[int]func(*domain.User)
	nextID    int
}

// NewIdentity creates the fallback identity. Without a configured secret a
// random one is generated, so sessions do not survive a restart.
func NewIdentity(db *sql.DB, tokens token.Service, logger zerolog.Logger) *Identity {
	logger = logger.With().Str("component", "fallback_identity").Logger()
	if len(tokens.Secret) == 0 {
		tokens.Secret = []byte(uuid.NewString() + uuid.NewString())
		logger.Warn().Msg("No identity secret configured, sessions are valid for this process only")
	}
	if tokens.Duration <= 0 {
		tokens.Duration = 24 * time.Hour
	}
	return &Identity{
		db:        db,
		tokens:    tokens,
		logger:    logger,
		listeners: make(map[int]func(*domain.User)),
	}
}

func (id *Identity) SignInWithEmail(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	var userID, displayName, hash string
	err := id.db.QueryRowContext(ctx, `SELECT id, display_name, password_hash FROM users WHERE email = ?`, email).
		Scan(&userID, &displayName, &hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id.logger.Info().Str("email", email).Msg("Signing in as demo user")
		return id.startSession(&domain.User{
			ID:          DemoUserID,
			Email:       email,
			DisplayName: "Demo User",
			Provider:    providerFallback,
		})
	case err != nil:
		return nil, fmt.Errorf("load account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return id.startSession(&domain.User{ID: userID, Email: email, DisplayName: displayName, Provider: providerFallback})
}

func (id *Identity) CreateAccount(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", domain.ErrInvalidRequest)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidRequest, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: strings.SplitN(email, "@", 2)[0],
		Provider:    providerFallback,
	}
	_, err = id.db.ExecContext(ctx, `INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.DisplayName, string(hash), formatTime(time.Now()))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("%w: account already exists", domain.ErrInvalidRequest)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	id.logger.Info().Str("user_id", user.ID).Msg("Account created")
	return id.startSession(user)
}

func (id *Identity) startSession(user *domain.User) (*domain.User, error) {
	signed, _, err := id.tokens.Sign(user)
	if err != nil {
		return nil, err
	}
	user.Token = signed
	id.setUser(user)
	return user, nil
}

func (id *Identity) SignOut(ctx context.Context) error {
	id.setUser(nil)
	return nil
}

func (id *Identity) CurrentUser() *domain.User {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.user
}

func (id *Identity) OnAuthStateChanged(fn func(*domain.User)) func() {
	id.mu.Lock()
	key := id.nextID
	id.nextID++
	id.listeners[key] = fn
	current := id.user
	id.mu.Unlock()

	fn(current)
	return func() {
		id.mu.Lock()
		defer id.mu.Unlock()
		delete(id.listeners, key)
	}
}

// SetRealUser adopts an identity established by the live provider so the
// fallback keeps acting for the same user.
func (id *Identity) SetRealUser(user *domain.User) {
	if user == nil {
		return
	}
	current := id.CurrentUser()
	if current != nil && current.ID == user.ID && current.Token == user.Token {
		return
	}
	id.logger.Info().Str("user_id", user.ID).Msg("Adopting live identity")
	id.setUser(user)
}

// VerifyToken accepts tokens issued here and the token of an adopted live
// identity.
func (id *Identity) VerifyToken(ctx context.Context, tok string) (*domain.User, error) {
	if tok == "" {
		return nil, domain.ErrInvalidToken
	}
	if current := id.CurrentUser(); current != nil && current.Token == tok {
		return current, nil
	}
	claims, err := id.tokens.Parse(tok)
	if err != nil {
		return nil, err
	}
	user := claims.User()
	user.Token = tok
	return user, nil
}

func (id *Identity) setUser(user *domain.User) {
	id.mu.Lock()
	id.user = user
	fns := make([]func(*domain.User), 0, len(id.listeners))
	for _, fn := range id.listeners {
		fns = append(fns, fn)
	}
	id.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

package availability

import (
	"context"
	"sync"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/rs/zerolog"
)

// FallbackIdentity is a fallback identity provider that can adopt a user
// signed in with the live provider
type FallbackIdentity interface {
	domain.IdentityBackend
	SetRealUser(user *domain.User)
}

// IdentityAdapter routes identity operations like DataAdapter routes data.
// When the fallback is selected, a user already signed in with the live
// provider is carried over, now and on later live auth changes.
type IdentityAdapter struct {
	live     domain.IdentityBackend
	fallback FallbackIdentity
	probe    *Probe
	logger   zerolog.Logger

	forwardOnce sync.Once
}

// NewIdentityAdapter creates an identity adapter. live may be nil.
func NewIdentityAdapter(live domain.IdentityBackend, fallback FallbackIdentity, probe *Probe, logger zerolog.Logger) *IdentityAdapter {
	return &IdentityAdapter{
		live:     live,
		fallback: fallback,
		probe:    probe,
		logger:   logger.With().Str("component", "identity_adapter").Logger(),
	}
}

// IsUsingFallback reports whether identity calls go to the fallback
func (a *IdentityAdapter) IsUsingFallback(ctx context.Context) bool {
	return a.live == nil || a.probe.Decide(ctx).UsingFallback
}

// Decision returns the identity probe decision. Without a live provider the
// fallback is selected without probing.
func (a *IdentityAdapter) Decision(ctx context.Context) Decision {
	if a.live == nil {
		return Decision{UsingFallback: true, Reason: "live identity provider not configured"}
	}
	return a.probe.Decide(ctx)
}

// Decided returns the decision without probing
func (a *IdentityAdapter) Decided() (Decision, bool) {
	if a.live == nil {
		return a.Decision(context.Background()), true
	}
	return a.probe.Decided()
}

func (a *IdentityAdapter) backend(ctx context.Context) domain.IdentityBackend {
	if a.live == nil || a.probe.Decide(ctx).UsingFallback {
		a.forwardOnce.Do(a.forwardRealUser)
		return a.fallback
	}
	return a.live
}

// forwardRealUser hands the live session to the fallback and keeps doing so
// for the adapter lifetime
func (a *IdentityAdapter) forwardRealUser() {
	if a.live == nil {
		return
	}
	a.live.OnAuthStateChanged(func(user *domain.User) {
		if user == nil {
			return
		}
		a.logger.Info().Str("user_id", user.ID).Msg("Forwarding live identity to fallback")
		a.fallback.SetRealUser(user)
	})
}

func (a *IdentityAdapter) SignInWithEmail(ctx context.Context, email, password string) (*domain.User, error) {
	return a.backend(ctx).SignInWithEmail(ctx, email, password)
}

func (a *IdentityAdapter) CreateAccount(ctx context.Context, email, password string) (*domain.User, error) {
	return a.backend(ctx).CreateAccount(ctx, email, password)
}

func (a *IdentityAdapter) SignOut(ctx context.Context) error {
	return a.backend(ctx).SignOut(ctx)
}

func (a *IdentityAdapter) CurrentUser() *domain.User {
	return a.backend(context.Background()).CurrentUser()
}

func (a *IdentityAdapter) OnAuthStateChanged(fn func(*domain.User)) func() {
	return a.backend(context.Background()).OnAuthStateChanged(fn)
}

func (a *IdentityAdapter) VerifyToken(ctx context.Context, token string) (*domain.User, error) {
	return a.backend(ctx).VerifyToken(ctx, token)
}

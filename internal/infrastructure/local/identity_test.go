package local

import (
	"context"
	"testing"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/infrastructure/token"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIdentity(t *testing.T) *Identity {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewIdentity(db, token.Service{Secret: []byte("test-secret"), Issuer: "dealpop", Duration: time.Hour}, zerolog.Nop())
}

func TestIdentity_DemoSignIn(t *testing.T) {
	id := newTestIdentity(t)
	ctx := context.Background()

	_, err := id.SignInWithEmail(ctx, "", "pw")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	user, err := id.SignInWithEmail(ctx, DemoUserEmail, "anything")
	require.NoError(t, err)
	assert.Equal(t, DemoUserID, user.ID)
	assert.NotEmpty(t, user.Token)
	assert.Equal(t, user, id.CurrentUser())

	verified, err := id.VerifyToken(ctx, user.Token)
	require.NoError(t, err)
	assert.Equal(t, DemoUserID, verified.ID)
}

func TestIdentity_AccountLifecycle(t *testing.T) {
	id := newTestIdentity(t)
	ctx := context.Background()

	_, err := id.CreateAccount(ctx, "ana@example.com", "short")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	created, err := id.CreateAccount(ctx, "Ana@Example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", created.Email)
	assert.Equal(t, "ana", created.DisplayName)

	_, err = id.CreateAccount(ctx, "ana@example.com", "another-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	require.NoError(t, id.SignOut(ctx))
	assert.Nil(t, id.CurrentUser())

	_, err = id.SignInWithEmail(ctx, "ana@example.com", "wrong-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	user, err := id.SignInWithEmail(ctx, "ana@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
}

func TestIdentity_AuthStateListeners(t *testing.T) {
	id := newTestIdentity(t)

	var seen []*domain.User
	unsubscribe := id.OnAuthStateChanged(func(u *domain.User) { seen = append(seen, u) })

	_, err := id.SignInWithEmail(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	unsubscribe()
	require.NoError(t, id.SignOut(context.Background()))

	require.Len(t, seen, 2)
	assert.Nil(t, seen[0], "called immediately with the signed-out state")
	assert.Equal(t, DemoUserID, seen[1].ID)
}

func TestIdentity_SetRealUser(t *testing.T) {
	id := newTestIdentity(t)
	live := &domain.User{ID: "live-1", Email: "live@example.com", Token: "opaque-live-token"}

	calls := 0
	id.OnAuthStateChanged(func(*domain.User) { calls++ })

	id.SetRealUser(live)
	id.SetRealUser(live)
	id.SetRealUser(nil)

	assert.Equal(t, 2, calls, "initial call plus one adoption")
	assert.Equal(t, live, id.CurrentUser())

	verified, err := id.VerifyToken(context.Background(), "opaque-live-token")
	require.NoError(t, err)
	assert.Equal(t, "live-1", verified.ID)

	_, err = id.VerifyToken(context.Background(), "forged")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestIdentity_GeneratesSecretWhenMissing(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	id := NewIdentity(db, token.Service{}, zerolog.Nop())
	user, err := id.SignInWithEmail(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)

	_, err = id.VerifyToken(context.Background(), user.Token)
	assert.NoError(t, err)
}

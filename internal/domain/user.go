package domain

import "context"

// User is a signed-in identity
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	Provider    string `json:"provider"`
	Token       string `json:"-"`
}

type userKey struct{}

// ContextWithUser attaches the identity a backend call is made for
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the identity attached to ctx, or nil
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userKey{}).(*User)
	return user
}

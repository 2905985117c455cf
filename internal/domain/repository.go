package domain

import (
	"context"
	"io"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// DataBackend is the operation set shared by the live API and the local
// fallback. Callers cannot tell which one they talk to. The identity a call
// is made for travels in ctx (see ContextWithUser).
type DataBackend interface {
	ListProducts(ctx context.Context, query ProductQuery) ([]Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (ProductID, error)
	UpdateProduct(ctx context.Context, id ProductID, patch ProductPatch) error
	DeleteProduct(ctx context.Context, id ProductID) error

	ListAlerts(ctx context.Context, query AlertQuery) ([]Alert, error)
	// CreateAlert acknowledges with the generated id only
	CreateAlert(ctx context.Context, input AlertInput) (string, error)
	DeleteAlert(ctx context.Context, id string) error
	AlertHistory(ctx context.Context, alertID string) ([]AlertHistory, error)

	GetPreferences(ctx context.Context) (*Preferences, error)
	UpdatePreferences(ctx context.Context, prefs Preferences) error

	SearchSuggestions(ctx context.Context, query string) ([]string, error)
	Vendors(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (*DashboardStats, error)
}

// Prober is implemented by live backends that can be health checked
type Prober interface {
	Ping(ctx context.Context) error
}

// IdentityBackend is the operation set shared by the live identity provider
// and the local fallback identity.
type IdentityBackend interface {
	SignInWithEmail(ctx context.Context, email, password string) (*User, error)
	CreateAccount(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	CurrentUser() *User
	// OnAuthStateChanged calls fn with the current user immediately and on
	// every change. The returned func unsubscribes.
	OnAuthStateChanged(fn func(*User)) func()
	VerifyToken(ctx context.Context, token string) (*User, error)
}

// ExtensionStorage is the browser extension's captured product store
type ExtensionStorage interface {
	Products(ctx context.Context) ([]CapturedProduct, error)
	Save(ctx context.Context, product CapturedProduct) (CapturedProduct, error)
	Update(ctx context.Context, id string, update func(*CapturedProduct)) error
	Delete(ctx context.Context, id string) error
}

// ProductExtractor reads a captured product out of a product page
type ProductExtractor interface {
	Extract(page io.Reader, pageURL string) (*CapturedProduct, error)
}

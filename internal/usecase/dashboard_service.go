package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/rs/zerolog"
)

// DashboardConfig holds optional collaborators of the dashboard service
type DashboardConfig struct {
	// Extension is the browser extension's capture store; nil disables it
	Extension domain.ExtensionStorage
	// Extractor parses product pages for Capture; nil disables capture
	Extractor domain.ProductExtractor
}

// ProductListing is the filtered product view plus facets of the whole set
type ProductListing struct {
	Products   []domain.ProductView `json:"products"`
	Total      int                  `json:"total"`
	Vendors    []string             `json:"vendors"`
	PriceRange domain.PriceRange    `json:"priceRange"`
}

// EditDefaults pre-fills the product edit form
type EditDefaults struct {
	Product     domain.Product `json:"product"`
	TargetPrice float64        `json:"targetPrice"`
	HasAlert    bool           `json:"hasAlert"`
	AlertID     string         `json:"alertId,omitempty"`
}

// DashboardService owns the dashboard data flow: products from the backend
// and the extension are merged with the alert store and then filtered.
type DashboardService struct {
	backend   domain.DataBackend
	alerts    *AlertStore
	search    *SearchService
	extension domain.ExtensionStorage
	extractor domain.ProductExtractor
	logger    zerolog.Logger
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(backend domain.DataBackend, alerts *AlertStore, search *SearchService, logger zerolog.Logger, config DashboardConfig) *DashboardService {
	return &DashboardService{
		backend:   backend,
		alerts:    alerts,
		search:    search,
		extension: config.Extension,
		extractor: config.Extractor,
		logger:    logger.With().Str("component", "dashboard").Logger(),
	}
}

// Alerts returns the alert store the service reconciles against
func (s *DashboardService) Alerts() *AlertStore {
	return s.alerts
}

// Products loads, reconciles and filters the product view
func (s *DashboardService) Products(ctx context.Context, filters domain.SearchFilters) (*ProductListing, error) {
	views, err := s.views(ctx)
	if err != nil {
		return nil, err
	}
	return &ProductListing{
		Products:   s.search.FilterProducts(views, filters),
		Total:      len(views),
		Vendors:    UniqueVendors(views),
		PriceRange: PriceRangeOf(views),
	}, nil
}

func (s *DashboardService) views(ctx context.Context) ([]domain.ProductView, error) {
	products, err := s.allProducts(ctx)
	if err != nil {
		return nil, err
	}
	return NewReconciler(s.alerts.Alerts()).Merge(products), nil
}

// allProducts merges backend products with extension captures. The backend
// record wins when both carry the same id.
func (s *DashboardService) allProducts(ctx context.Context) ([]domain.Product, error) {
	ctx, err := s.userContext(ctx)
	if err != nil {
		return nil, err
	}

	products, err := s.backend.ListProducts(ctx, domain.ProductQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	if s.extension == nil {
		return products, nil
	}

	captured, err := s.extension.Products(ctx)
	if err != nil {
		// the dashboard still works without captures
		s.logger.Warn().Err(err).Msg("Failed to read extension products")
		return products, nil
	}

	seen := make(map[domain.ProductID]struct{}, len(products))
	for _, p := range products {
		seen[p.ID] = struct{}{}
	}
	for _, c := range captured {
		p, err := ProductFromCapture(c)
		if err != nil {
			s.logger.Warn().Err(err).Str("capture_id", c.ID).Msg("Skipping captured product")
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		products = append(products, p)
	}
	return products, nil
}

// ProductFromCapture maps an extension record onto the canonical product
func ProductFromCapture(c domain.CapturedProduct) (domain.Product, error) {
	id, err := domain.ParseProductID(c.ID)
	if err != nil {
		return domain.Product{}, err
	}
	status := c.Status
	if !status.Valid() {
		status = domain.ProductStatusTracking
	}
	extractedAt, _ := time.Parse(time.RFC3339, c.ExtractedAt)
	return domain.Product{
		ID:           id,
		Title:        c.ProductName,
		Vendor:       c.Vendor,
		Brand:        c.Brand,
		Color:        c.Color,
		Capacity:     c.Capacity,
		CurrentPrice: ExtractPrice(c.Price),
		TargetPrice:  ExtractPrice(c.TargetPrice),
		ExpiresIn:    c.ExpiresIn,
		Status:       status,
		URL:          c.URL,
		ImageURL:     c.ImageURL,
		ExtractedAt:  extractedAt,
		Source:       domain.SourceExtension,
	}, nil
}

// CreateProduct starts tracking a product
func (s *DashboardService) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.ProductID, error) {
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.URL) == "" {
		return 0, fmt.Errorf("%w: title and url are required", domain.ErrInvalidRequest)
	}
	if input.Status == "" {
		input.Status = domain.ProductStatusTracking
	}
	if !input.Status.Valid() {
		return 0, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, input.Status)
	}
	ctx, err := s.userContext(ctx)
	if err != nil {
		return 0, err
	}

	id, err := s.backend.CreateProduct(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("failed to create product: %w", err)
	}
	s.logger.Info().Str("product_id", id.String()).Msg("Product created")
	return id, nil
}

// UpdateProduct patches a product. Alerts project status and target price
// from their product, so those edits reload the alert store.
func (s *DashboardService) UpdateProduct(ctx context.Context, id domain.ProductID, patch domain.ProductPatch) error {
	if patch.Empty() {
		return nil
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, *patch.Status)
	}
	if patch.AlertStatus != nil && !patch.AlertStatus.Valid() {
		return fmt.Errorf("%w: unknown alert status %q", domain.ErrInvalidRequest, *patch.AlertStatus)
	}
	if patch.TargetPrice != nil && *patch.TargetPrice < 0 {
		return fmt.Errorf("%w: negative target price", domain.ErrInvalidRequest)
	}
	userCtx, err := s.userContext(ctx)
	if err != nil {
		return err
	}

	if err := s.backend.UpdateProduct(userCtx, id, patch); err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if patch.Status != nil || patch.TargetPrice != nil || patch.AlertStatus != nil {
		if err := s.alerts.Reload(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Alert reload after product update failed")
		}
	}
	return nil
}

// DeleteProduct deletes a product and, by cascade, its alerts
func (s *DashboardService) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	userCtx, err := s.userContext(ctx)
	if err != nil {
		return err
	}
	if err := s.backend.DeleteProduct(userCtx, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	s.logger.Info().Str("product_id", id.String()).Msg("Product deleted")

	if err := s.alerts.Reload(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Alert reload after product delete failed")
	}
	return nil
}

// EditDefaults returns the edit pre-fill of a product: an active alert's
// target price wins over the product's own.
func (s *DashboardService) EditDefaults(ctx context.Context, id domain.ProductID) (*EditDefaults, error) {
	products, err := s.allProducts(ctx)
	if err != nil {
		return nil, err
	}
	reconciler := NewReconciler(s.alerts.Alerts())
	for _, p := range products {
		if p.ID != id {
			continue
		}
		defaults := &EditDefaults{Product: p, TargetPrice: reconciler.EffectiveTargetPrice(p)}
		if alert := reconciler.ExistingAlert(p.ID); alert != nil {
			defaults.HasAlert = true
			defaults.AlertID = alert.ID
		}
		return defaults, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
}

// Stats returns the backend's dashboard summary
func (s *DashboardService) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	ctx, err := s.userContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.Stats(ctx)
}

// Suggestions returns search suggestions for a partial query
func (s *DashboardService) Suggestions(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}, nil
	}
	ctx, err := s.userContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.SearchSuggestions(ctx, query)
}

// Vendors returns the vendors known to the backend
func (s *DashboardService) Vendors(ctx context.Context) ([]string, error) {
	ctx, err := s.userContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.Vendors(ctx)
}

// Capture extracts a product from a page and stores it as an extension
// capture.
func (s *DashboardService) Capture(ctx context.Context, page io.Reader, pageURL string) (*domain.CapturedProduct, error) {
	if s.extension == nil {
		return nil, domain.ErrExtensionUnavailable
	}
	if s.extractor == nil {
		return nil, errors.New("product capture is not configured")
	}

	captured, err := s.extractor.Extract(page, pageURL)
	if err != nil {
		return nil, err
	}
	saved, err := s.extension.Save(ctx, *captured)
	if err != nil {
		return nil, fmt.Errorf("failed to save capture: %w", err)
	}
	s.logger.Info().Str("capture_id", saved.ID).Str("url", pageURL).Msg("Product captured")
	return &saved, nil
}

func (s *DashboardService) userContext(ctx context.Context) (context.Context, error) {
	user := s.alerts.User()
	if user == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return domain.ContextWithUser(ctx, user), nil
}

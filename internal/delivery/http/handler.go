package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dealpop/dashboard/internal/availability"
	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// StatusReporter exposes a backend selection decision
type StatusReporter interface {
	Decision(ctx context.Context) availability.Decision
	// Decided reports the decision only if it was already made
	Decided() (availability.Decision, bool)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	dashboard      *usecase.DashboardService
	identity       domain.IdentityBackend
	dataStatus     StatusReporter
	identityStatus StatusReporter
	hub            *Hub
	logger         zerolog.Logger
	version        string
}

// HandlerConfig holds the collaborators of the HTTP handlers
type HandlerConfig struct {
	Dashboard      *usecase.DashboardService
	Identity       domain.IdentityBackend
	DataStatus     StatusReporter
	IdentityStatus StatusReporter
	Hub            *Hub
	Logger         zerolog.Logger
	Version        string
}

// NewHandler creates a new HTTP handler
func NewHandler(cfg HandlerConfig) *Handler {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		dashboard:      cfg.Dashboard,
		identity:       cfg.Identity,
		dataStatus:     cfg.DataStatus,
		identityStatus: cfg.IdentityStatus,
		hub:            cfg.Hub,
		logger:         cfg.Logger.With().Str("component", "http").Logger(),
		version:        version,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "dealpop-dashboard",
		"version": h.version,
		"backend": gin.H{
			"data":     backendMode(h.dataStatus),
			"identity": backendMode(h.identityStatus),
		},
	})
}

// backendMode names the selected backend. Health checks never trigger the
// liveness check, so an undecided backend is "pending".
func backendMode(status StatusReporter) string {
	if status == nil {
		return "pending"
	}
	d, ok := status.Decided()
	switch {
	case !ok:
		return "pending"
	case d.UsingFallback:
		return "fallback"
	default:
		return "live"
	}
}

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignIn starts a session with email and password
func (h *Handler) SignIn(c *gin.Context) {
	h.authenticate(c, http.StatusOK, h.identity.SignInWithEmail)
}

// SignUp creates an account and starts a session
func (h *Handler) SignUp(c *gin.Context) {
	h.authenticate(c, http.StatusCreated, h.identity.CreateAccount)
}

func (h *Handler) authenticate(c *gin.Context, status int, fn func(context.Context, string, string) (*domain.User, error)) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidCredentials)
		return
	}

	user, err := fn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	alerts := h.dashboard.Alerts()
	if err := alerts.SetIdentity(c.Request.Context(), user); err != nil {
		h.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to load alerts after sign-in")
	}

	c.JSON(status, gin.H{"user": user, "token": user.Token})
}

// SignOut ends the session and clears the alert state
func (h *Handler) SignOut(c *gin.Context) {
	if err := h.identity.SignOut(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	_ = h.dashboard.Alerts().SetIdentity(c.Request.Context(), nil)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me returns the session's user
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": currentUser(c)})
}

// ListProducts returns the reconciled and filtered product view
func (h *Handler) ListProducts(c *gin.Context) {
	filters, err := filtersFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	listing, err := h.dashboard.Products(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func filtersFromQuery(c *gin.Context) (domain.SearchFilters, error) {
	filters := usecase.DefaultFilters()
	filters.Query = c.Query("query")
	if status := c.Query("status"); status != "" {
		filters.Status = status
	}
	if vendor := c.Query("vendor"); vendor != "" {
		filters.Vendor = vendor
	}

	var err error
	if filters.PriceRange.Min, err = priceParam(c, "minPrice", 0); err != nil {
		return filters, err
	}
	if filters.PriceRange.Max, err = priceParam(c, "maxPrice", math.Inf(1)); err != nil {
		return filters, err
	}

	if sortBy := c.Query("sortBy"); sortBy != "" {
		switch s := domain.SortBy(sortBy); s {
		case domain.SortSmart, domain.SortName, domain.SortPrice, domain.SortVendor:
			filters.SortBy = s
		default:
			return filters, &domain.ValidationError{Errors: []domain.FieldError{{
				Field: "sortBy", Message: "Unknown sort field", Code: "INVALID_SORT",
			}}}
		}
	}
	if order := c.Query("sortOrder"); order != "" {
		switch o := domain.SortOrder(order); o {
		case domain.SortAsc, domain.SortDesc:
			filters.SortOrder = o
		default:
			return filters, &domain.ValidationError{Errors: []domain.FieldError{{
				Field: "sortOrder", Message: "Sort order must be asc or desc", Code: "INVALID_SORT_ORDER",
			}}}
		}
	}
	return filters, nil
}

func priceParam(c *gin.Context, name string, def float64) (float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) {
		return 0, &domain.ValidationError{Errors: []domain.FieldError{{
			Field: name, Message: "Price must be a non-negative number", Code: "INVALID_PRICE",
		}}}
	}
	return v, nil
}

// CreateProduct starts tracking a product
func (h *Handler) CreateProduct(c *gin.Context) {
	var input domain.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, domain.ErrInvalidRequest)
		return
	}

	id, err := h.dashboard.CreateProduct(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// UpdateProduct applies a partial product edit
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, err := domain.ParseProductID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var patch domain.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, domain.ErrInvalidRequest)
		return
	}

	if err := h.dashboard.UpdateProduct(c.Request.Context(), id, patch); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteProduct stops tracking a product
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, err := domain.ParseProductID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.dashboard.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// EditProduct returns the edit form defaults of a product
func (h *Handler) EditProduct(c *gin.Context) {
	id, err := domain.ParseProductID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	defaults, err := h.dashboard.EditDefaults(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, defaults)
}

// ListAlerts returns the alert collection and its counts. A failed load is
// reported next to whatever the store still holds.
func (h *Handler) ListAlerts(c *gin.Context) {
	store := h.dashboard.Alerts()
	alerts := store.Alerts()
	if status := c.Query("status"); status != "" {
		filtered := alerts[:0]
		for _, a := range alerts {
			if string(a.Status) == status {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}

	resp := gin.H{"alerts": alerts, "stats": store.Stats(), "loading": store.Loading()}
	if err := store.Err(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// CreateAlert validates and creates a price alert
func (h *Handler) CreateAlert(c *gin.Context) {
	var input domain.AlertInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, domain.ErrInvalidRequest)
		return
	}

	alert, err := h.dashboard.Alerts().Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, alert)
}

// UpdateAlert changes the status or target price of an alert
func (h *Handler) UpdateAlert(c *gin.Context) {
	var update domain.AlertUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		respondError(c, domain.ErrInvalidRequest)
		return
	}
	if err := h.dashboard.Alerts().Update(c.Request.Context(), c.Param("id"), update); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DismissAlert marks an alert dismissed
func (h *Handler) DismissAlert(c *gin.Context) {
	if err := h.dashboard.Alerts().Dismiss(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteAlert removes an alert
func (h *Handler) DeleteAlert(c *gin.Context) {
	if err := h.dashboard.Alerts().Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AlertHistory returns the events of an alert
func (h *Handler) AlertHistory(c *gin.Context) {
	history, err := h.dashboard.Alerts().History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// AlertStats returns the alert counts by status
func (h *Handler) AlertStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.dashboard.Alerts().Stats())
}

// AlertStream pushes alert store changes over a websocket
func (h *Handler) AlertStream(c *gin.Context) {
	if h.hub == nil {
		respondError(c, errors.New("alert stream is not configured"))
		return
	}
	h.hub.ServeWS(c, usecase.StoreEvent{
		Type:  usecase.StoreEventReloaded,
		Stats: h.dashboard.Alerts().Stats(),
	})
}

// GetPreferences returns the user's alert preferences
func (h *Handler) GetPreferences(c *gin.Context) {
	prefs, err := h.dashboard.Alerts().Preferences(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

// UpdatePreferences saves the user's alert preferences
func (h *Handler) UpdatePreferences(c *gin.Context) {
	var prefs domain.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		respondError(c, domain.ErrInvalidRequest)
		return
	}
	if err := h.dashboard.Alerts().UpdatePreferences(c.Request.Context(), prefs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SearchSuggestions returns completions for a partial query
func (h *Handler) SearchSuggestions(c *gin.Context) {
	suggestions, err := h.dashboard.Suggestions(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// Vendors returns the known vendors
func (h *Handler) Vendors(c *gin.Context) {
	vendors, err := h.dashboard.Vendors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vendors": vendors})
}

// DashboardStats returns the product and savings summary
func (h *Handler) DashboardStats(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type captureRequest struct {
	URL  string `json:"url" binding:"required"`
	HTML string `json:"html" binding:"required"`
}

// Capture extracts a product from a page and stores it for the extension
func (h *Handler) Capture(c *gin.Context) {
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidRequest)
		return
	}

	captured, err := h.dashboard.Capture(c.Request.Context(), strings.NewReader(req.HTML), req.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, captured)
}

// BackendStatus reports which data and identity backends are in use
func (h *Handler) BackendStatus(c *gin.Context) {
	resp := gin.H{}
	if h.dataStatus != nil {
		resp["data"] = h.dataStatus.Decision(c.Request.Context())
	}
	if h.identityStatus != nil {
		resp["identity"] = h.identityStatus.Decision(c.Request.Context())
	}
	c.JSON(http.StatusOK, resp)
}

// respondError maps domain errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": validation.Errors,
		})
		return
	}

	status := http.StatusInternalServerError
	var apiErr *domain.APIError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidProductID):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthenticated),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrAlertNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrExtractionFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrExtensionUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrBackendFailure), errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}

	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

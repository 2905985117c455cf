package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dealpop/dashboard/internal/domain"
)

// ListProducts fetches the user's tracked products
func (c *Client) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	params := url.Values{}
	if query.Status != "" {
		params.Set("status", string(query.Status))
	}
	if query.Vendor != "" {
		params.Set("vendor", query.Vendor)
	}
	if query.Search != "" {
		params.Set("search", query.Search)
	}

	body, err := c.do(ctx, request{op: "list_products", method: http.MethodGet, path: "/products", query: params})
	if err != nil {
		return nil, err
	}

	var dtos []productDTO
	if err := decode(unwrap(body, "products"), &dtos); err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(dtos))
	for _, dto := range dtos {
		p, err := productFromDTO(dto)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Skipping product with malformed id")
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

// CreateProduct starts tracking a product
func (c *Client) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.ProductID, error) {
	body, err := c.do(ctx, request{op: "create_product", method: http.MethodPost, path: "/products", body: productInputToDTO(input)})
	if err != nil {
		return 0, err
	}
	var ack ackDTO
	if err := decode(body, &ack); err != nil {
		return 0, err
	}
	id, err := domain.ParseProductID(ackID(ack))
	if err != nil {
		return 0, fmt.Errorf("%w: create acknowledgement without product id", domain.ErrBackendFailure)
	}
	return id, nil
}

// UpdateProduct patches a product. Alert status and target edits travel here.
func (c *Client) UpdateProduct(ctx context.Context, id domain.ProductID, patch domain.ProductPatch) error {
	_, err := c.do(ctx, request{
		op:       "update_product",
		method:   http.MethodPut,
		path:     "/products/" + id.String(),
		body:     productPatchToDTO(patch),
		notFound: domain.ErrProductNotFound,
	})
	return err
}

// DeleteProduct deletes a product; the backend cascades to its alerts
func (c *Client) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	_, err := c.do(ctx, request{
		op:       "delete_product",
		method:   http.MethodDelete,
		path:     "/products/" + id.String(),
		notFound: domain.ErrProductNotFound,
	})
	return err
}

// ListAlerts fetches the user's alerts
func (c *Client) ListAlerts(ctx context.Context, query domain.AlertQuery) ([]domain.Alert, error) {
	params := url.Values{}
	if query.Status != "" {
		params.Set("status", string(query.Status))
	}
	if query.ProductID != nil {
		params.Set("productId", query.ProductID.String())
	}

	body, err := c.do(ctx, request{op: "list_alerts", method: http.MethodGet, path: "/alerts", query: params})
	if err != nil {
		return nil, err
	}

	var dtos []alertDTO
	if err := decode(unwrap(body, "alerts"), &dtos); err != nil {
		return nil, err
	}
	alerts := make([]domain.Alert, 0, len(dtos))
	for _, dto := range dtos {
		a, err := alertFromDTO(dto)
		if err != nil {
			c.logger.Warn().Err(err).Str("alert_id", idString(dto.ID)).Msg("Skipping alert with malformed product id")
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// CreateAlert submits an alert; the backend acknowledges with its id only
func (c *Client) CreateAlert(ctx context.Context, input domain.AlertInput) (string, error) {
	body, err := c.do(ctx, request{op: "create_alert", method: http.MethodPost, path: "/alerts", body: alertInputToDTO(input)})
	if err != nil {
		return "", err
	}
	var ack ackDTO
	if err := decode(body, &ack); err != nil {
		return "", err
	}
	id := ackID(ack)
	if id == "" {
		return "", fmt.Errorf("%w: create acknowledgement without alert id", domain.ErrBackendFailure)
	}
	return id, nil
}

// DeleteAlert deletes an alert
func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{
		op:       "delete_alert",
		method:   http.MethodDelete,
		path:     "/alerts/" + url.PathEscape(id),
		notFound: domain.ErrAlertNotFound,
	})
	return err
}

// AlertHistory fetches the event history of an alert
func (c *Client) AlertHistory(ctx context.Context, alertID string) ([]domain.AlertHistory, error) {
	body, err := c.do(ctx, request{
		op:       "alert_history",
		method:   http.MethodGet,
		path:     "/alerts/" + url.PathEscape(alertID) + "/history",
		notFound: domain.ErrAlertNotFound,
	})
	if err != nil {
		return nil, err
	}
	var history []domain.AlertHistory
	if err := decode(unwrap(body, "history"), &history); err != nil {
		return nil, err
	}
	return history, nil
}

// GetPreferences fetches the user's preferences. A user without saved
// preferences yields nil.
func (c *Client) GetPreferences(ctx context.Context) (*domain.Preferences, error) {
	body, err := c.do(ctx, request{op: "get_preferences", method: http.MethodGet, path: "/user/preferences"})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	inner := unwrap(body, "preferences")
	if string(inner) == "null" {
		return nil, nil
	}
	var prefs domain.Preferences
	if err := decode(inner, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// UpdatePreferences saves the user's preferences
func (c *Client) UpdatePreferences(ctx context.Context, prefs domain.Preferences) error {
	_, err := c.do(ctx, request{op: "update_preferences", method: http.MethodPut, path: "/user/preferences", body: prefs})
	return err
}

// SearchSuggestions fetches suggestions for a partial query
func (c *Client) SearchSuggestions(ctx context.Context, query string) ([]string, error) {
	body, err := c.do(ctx, request{
		op:     "search_suggestions",
		method: http.MethodGet,
		path:   "/search/suggestions",
		query:  url.Values{"query": []string{query}},
	})
	if err != nil {
		return nil, err
	}
	suggestions := []string{}
	if err := decode(unwrap(body, "suggestions"), &suggestions); err != nil {
		return nil, err
	}
	return suggestions, nil
}

// Vendors fetches the vendors of the user's products
func (c *Client) Vendors(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, request{op: "vendors", method: http.MethodGet, path: "/search/vendors"})
	if err != nil {
		return nil, err
	}
	vendors := []string{}
	if err := decode(unwrap(body, "vendors"), &vendors); err != nil {
		return nil, err
	}
	return vendors, nil
}

// Stats fetches the dashboard summary
func (c *Client) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	body, err := c.do(ctx, request{op: "stats", method: http.MethodGet, path: "/search/stats"})
	if err != nil {
		return nil, err
	}
	var dto statsDTO
	if err := decode(unwrap(body, "stats"), &dto); err != nil {
		return nil, err
	}
	stats := statsFromDTO(dto)
	return &stats, nil
}

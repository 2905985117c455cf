package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dealpop/dashboard/internal/domain"
)

// MockDataBackend is an in-memory domain.DataBackend. Like the real
// backends it projects alert status and target price from the product.
type MockDataBackend struct {
	mu           sync.Mutex
	products     []domain.Product
	alertStatus  map[domain.ProductID]domain.AlertStatus
	alerts       []domain.Alert
	prefs        *domain.Preferences
	nextAlertID  int
	nextProduct  domain.ProductID
	listAlertErr error
	createErr    error
	deleteErr    error
	updateErr    error
	listCalls    int
	lastUser     *domain.User
	// beforeListAlerts runs inside ListAlerts before the snapshot is taken
	beforeListAlerts func(call int)
}

func NewMockDataBackend() *MockDataBackend {
	return &MockDataBackend{
		alertStatus: make(map[domain.ProductID]domain.AlertStatus),
		nextProduct: 1000,
	}
}

func (m *MockDataBackend) addProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append(m.products, p)
}

func (m *MockDataBackend) addAlert(a domain.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	m.alertStatus[a.ProductID] = a.Status
}

func (m *MockDataBackend) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUser = domain.UserFromContext(ctx)
	out := make([]domain.Product, len(m.products))
	copy(out, m.products)
	return out, nil
}

func (m *MockDataBackend) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.ProductID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextProduct++
	m.products = append(m.products, domain.Product{
		ID: m.nextProduct, Title: input.Title, URL: input.URL, CurrentPrice: input.CurrentPrice,
		TargetPrice: input.TargetPrice, Status: input.Status, Source: domain.SourceBackend,
	})
	return m.nextProduct, nil
}

func (m *MockDataBackend) UpdateProduct(ctx context.Context, id domain.ProductID, patch domain.ProductPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for i := range m.products {
		if m.products[i].ID != id {
			continue
		}
		if patch.Status != nil {
			m.products[i].Status = *patch.Status
		}
		if patch.TargetPrice != nil {
			m.products[i].TargetPrice = *patch.TargetPrice
		}
		if patch.AlertStatus != nil {
			m.alertStatus[id] = *patch.AlertStatus
		}
		return nil
	}
	return domain.ErrProductNotFound
}

func (m *MockDataBackend) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.products[:0]
	found := false
	for _, p := range m.products {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return domain.ErrProductNotFound
	}
	m.products = kept
	alerts := m.alerts[:0]
	for _, a := range m.alerts {
		if a.ProductID != id {
			alerts = append(alerts, a)
		}
	}
	m.alerts = alerts
	return nil
}

func (m *MockDataBackend) ListAlerts(ctx context.Context, query domain.AlertQuery) ([]domain.Alert, error) {
	m.mu.Lock()
	m.listCalls++
	call := m.listCalls
	hook := m.beforeListAlerts
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUser = domain.UserFromContext(ctx)
	if m.listAlertErr != nil {
		return nil, m.listAlertErr
	}
	out := make([]domain.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if status, ok := m.alertStatus[a.ProductID]; ok {
			a.Status = status
		}
		for _, p := range m.products {
			if p.ID == a.ProductID && p.TargetPrice > 0 {
				a.TargetPrice = p.TargetPrice
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *MockDataBackend) CreateAlert(ctx context.Context, input domain.AlertInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.nextAlertID++
	id := fmt.Sprintf("alert-%d", m.nextAlertID)
	m.alerts = append([]domain.Alert{{
		ID: id, ProductID: input.ProductID, ProductName: input.ProductName,
		TargetPrice: input.TargetPrice, Status: domain.AlertStatusActive,
	}}, m.alerts...)
	m.alertStatus[input.ProductID] = domain.AlertStatusActive
	return id, nil
}

func (m *MockDataBackend) DeleteAlert(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, a := range m.alerts {
		if a.ID == id {
			m.alerts = append(m.alerts[:i], m.alerts[i+1:]...)
			return nil
		}
	}
	return domain.ErrAlertNotFound
}

func (m *MockDataBackend) AlertHistory(ctx context.Context, alertID string) ([]domain.AlertHistory, error) {
	return []domain.AlertHistory{{ID: "h1", AlertID: alertID, EventType: domain.AlertEventCreated}}, nil
}

func (m *MockDataBackend) GetPreferences(ctx context.Context) (*domain.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs, nil
}

func (m *MockDataBackend) UpdatePreferences(ctx context.Context, prefs domain.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = &prefs
	return nil
}

func (m *MockDataBackend) SearchSuggestions(ctx context.Context, query string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.products {
		if strings.Contains(strings.ToLower(p.Title), strings.ToLower(query)) {
			out = append(out, p.Title)
		}
	}
	return out, nil
}

func (m *MockDataBackend) Vendors(ctx context.Context) ([]string, error) {
	return []string{"Amazon"}, nil
}

func (m *MockDataBackend) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &domain.DashboardStats{TotalProducts: len(m.products)}, nil
}

// MockExtensionStorage is an in-memory domain.ExtensionStorage
type MockExtensionStorage struct {
	products []domain.CapturedProduct
	err      error
}

func (m *MockExtensionStorage) Products(ctx context.Context) ([]domain.CapturedProduct, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.products, nil
}

func (m *MockExtensionStorage) Save(ctx context.Context, product domain.CapturedProduct) (domain.CapturedProduct, error) {
	if product.ID == "" {
		product.ID = "1700000000000"
	}
	m.products = append([]domain.CapturedProduct{product}, m.products...)
	return product, nil
}

func (m *MockExtensionStorage) Update(ctx context.Context, id string, update func(*domain.CapturedProduct)) error {
	for i := range m.products {
		if m.products[i].ID == id {
			update(&m.products[i])
			return nil
		}
	}
	return domain.ErrProductNotFound
}

func (m *MockExtensionStorage) Delete(ctx context.Context, id string) error {
	return errors.New("not implemented")
}

// MockExtractor returns a fixed capture
type MockExtractor struct {
	result *domain.CapturedProduct
	err    error
}

func (m *MockExtractor) Extract(page io.Reader, pageURL string) (*domain.CapturedProduct, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := *m.result
	out.URL = pageURL
	return &out, nil
}

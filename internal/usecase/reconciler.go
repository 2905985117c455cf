package usecase

import (
	"github.com/dealpop/dashboard/internal/domain"
)

// Reconciler joins products to their active alert by canonical product id.
// It works on a snapshot of the alert collection taken at construction.
type Reconciler struct {
	alerts []domain.Alert
}

// NewReconciler creates a reconciler over a snapshot of alerts
func NewReconciler(alerts []domain.Alert) *Reconciler {
	return &Reconciler{alerts: alerts}
}

// Lookup returns the first active alert for a raw product id. A malformed id
// is reported as domain.ErrInvalidProductID rather than silently missing.
func (r *Reconciler) Lookup(rawProductID any) (*domain.Alert, error) {
	id, err := domain.ParseProductID(rawProductID)
	if err != nil {
		return nil, err
	}
	return r.lookup(id), nil
}

func (r *Reconciler) lookup(id domain.ProductID) *domain.Alert {
	for i := range r.alerts {
		if r.alerts[i].ProductID == id && r.alerts[i].Status == domain.AlertStatusActive {
			alert := r.alerts[i]
			return &alert
		}
	}
	return nil
}

// HasAlert reports whether the product has an active alert. "42" and 42 are
// the same product; malformed ids never match.
func (r *Reconciler) HasAlert(rawProductID any) bool {
	alert, err := r.Lookup(rawProductID)
	return err == nil && alert != nil
}

// ExistingAlert returns the product's active alert, or nil
func (r *Reconciler) ExistingAlert(rawProductID any) *domain.Alert {
	alert, err := r.Lookup(rawProductID)
	if err != nil {
		return nil
	}
	return alert
}

// EffectiveTargetPrice is the price shown and pre-filled for a product: the
// active alert's target when there is one, else the product's own.
func (r *Reconciler) EffectiveTargetPrice(product domain.Product) float64 {
	if alert := r.lookup(product.ID); alert != nil {
		return alert.TargetPrice
	}
	return product.TargetPrice
}

// Merge builds the product view with alerts and price comparison attached
func (r *Reconciler) Merge(products []domain.Product) []domain.ProductView {
	views := make([]domain.ProductView, 0, len(products))
	for _, p := range products {
		view := domain.ProductView{Product: p, EffectiveTargetPrice: p.TargetPrice}
		if alert := r.lookup(p.ID); alert != nil {
			view.Alert = alert
			view.HasAlert = true
			view.EffectiveTargetPrice = alert.TargetPrice
			view.PriceDropped = CheckPriceDropThreshold(*alert, p.CurrentPrice)
		}
		cmp := CalculatePriceComparison(PriceData{Current: p.CurrentPrice, Target: view.EffectiveTargetPrice})
		view.IsDeal = cmp.IsDeal
		view.Savings = cmp.Savings
		view.SavingsPercentage = cmp.SavingsPercentage
		views = append(views, view)
	}
	return views
}

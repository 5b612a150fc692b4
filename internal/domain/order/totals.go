package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/model"
)

var ErrNegativeTotal = errors.New("discount exceeds order amount")

// CalculateTotals derives subtotal, tax and total from lines alone, so
// repeated calls with the same lines give the same result. Tax is disabled
// and always zero.
func CalculateTotals(o *model.Order, lines []model.OrderLine) error {
	if o.ShippingCost.IsNegative() || o.Discount.IsNegative() {
		return fmt.Errorf("%w: shipping cost and discount must be non-negative", ErrNegativeTotal)
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}
	tax := decimal.Zero
	total := subtotal.Add(tax).Add(o.ShippingCost).Sub(o.Discount)
	if total.IsNegative() {
		return ErrNegativeTotal
	}

	o.Subtotal = subtotal
	o.Tax = tax
	o.Total = total
	return nil
}

// Recalculate reloads the order's lines and persists fresh totals. Pass a
// transactional store to make it part of a larger write.
func Recalculate(ctx context.Context, st store.Store, orderID string) (*model.Order, error) {
	o, err := st.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	lines, err := st.ListOrderLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order lines: %w", err)
	}
	if err := CalculateTotals(o, lines); err != nil {
		return nil, err
	}
	if err := st.UpdateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to save totals: %w", err)
	}
	o.Lines = lines
	return o, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"retailops/backend/internal/domain"
	"retailops/backend/internal/store"
)

func TestPlaceOrderDecrementsInventoryAtomically(t *testing.T) {
	databaseURL := os.Getenv("RETAILOPS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set RETAILOPS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-it-%d", stamp)
	branchID := fmt.Sprintf("branch-it-%d", stamp)
	customerID := fmt.Sprintf("cust-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM order_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE customer_id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, branchID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, unit_price, cost_price, active, created_at, updated_at)
		VALUES ($1, $2, 'Integration Kettle', 'kitchen', 45.50, 20.00, true, now(), now())
	`, productID, fmt.Sprintf("SKU-IT-%d", stamp)); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, location, created_at)
		VALUES ($1, 'Integration Branch', 'Test City', now())
	`, branchID); err != nil {
		t.Fatalf("insert branch: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, lifetime_spend, tier, created_at)
		VALUES ($1, 'Integration Customer', $2, 0, 'Bronze', now())
	`, customerID, fmt.Sprintf("it-%d@example.com", stamp)); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, branch_id, quantity, min_stock, max_stock, updated_at)
		VALUES ($1, $2, 10, 2, 20, now())
	`, productID, branchID); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	now := time.Now().UTC()
	unitPrice := decimal.RequireFromString("45.50")
	order := domain.Order{
		ID:              fmt.Sprintf("ord-it-%d", stamp),
		CustomerID:      customerID,
		BranchID:        branchID,
		ShippingAddress: "1 Test St",
		Subtotal:        unitPrice.Mul(decimal.NewFromInt(2)),
		DiscountAmount:  decimal.Zero,
		TaxAmount:       decimal.Zero,
		TotalAmount:     unitPrice.Mul(decimal.NewFromInt(2)),
		Status:          domain.OrderPending,
		CreatedAt:       now,
		Items: []domain.OrderLineItem{
			{
				OrderID:   fmt.Sprintf("ord-it-%d", stamp),
				ProductID: productID,
				Quantity:  2,
				UnitPrice: unitPrice,
				Subtotal:  unitPrice.Mul(decimal.NewFromInt(2)),
			},
		},
	}

	if _, err := s.PlaceOrder(ctx, store.PlaceOrderParams{Order: order}); err != nil {
		t.Fatalf("place order: %v", err)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM inventory WHERE product_id = $1 AND branch_id = $2
	`, productID, branchID).Scan(&qty); err != nil {
		t.Fatalf("query inventory: %v", err)
	}
	if qty != 8 {
		t.Fatalf("expected quantity 8 after order, got %d", qty)
	}

	// A second order for more than the remaining stock must fail and leave
	// the inventory row untouched.
	over := order
	over.ID = fmt.Sprintf("ord-it-over-%d", stamp)
	over.Items = []domain.OrderLineItem{
		{
			OrderID:   over.ID,
			ProductID: productID,
			Quantity:  50,
			UnitPrice: unitPrice,
			Subtotal:  unitPrice.Mul(decimal.NewFromInt(50)),
		},
	}
	if _, err := s.PlaceOrder(ctx, store.PlaceOrderParams{Order: over}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM inventory WHERE product_id = $1 AND branch_id = $2
	`, productID, branchID).Scan(&qty); err != nil {
		t.Fatalf("query inventory after failed order: %v", err)
	}
	if qty != 8 {
		t.Fatalf("expected quantity to remain 8 after rollback, got %d", qty)
	}
}

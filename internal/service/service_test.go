package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"retailops/backend/internal/cache"
	"retailops/backend/internal/domain"
	"retailops/backend/internal/pricing"
	"retailops/backend/internal/store"
	"retailops/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	svc := New(repo, cache.NewMemoryCartStore(), pricing.DefaultSchedule(decimal.NewFromInt(10)))
	return svc, repo
}

func managerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "manager", Role: domain.RoleManager})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff, EmployeeID: "emp-1"})
}

func supplierCtx(supplierID string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "supplier", Role: domain.RoleSupplier, SupplierID: supplierID})
}

func customerCtx(customerID string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "customer", Role: domain.RoleCustomer, CustomerID: customerID})
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func branchQty(t *testing.T, repo *memory.Store, branchID string, productID string) int {
	t.Helper()
	stock, err := repo.GetStockMap(context.Background(), branchID, []string{productID})
	if err != nil {
		t.Fatalf("stock map: %v", err)
	}
	return stock[productID].Quantity
}

func TestPlaceOrderSilverMemberPricing(t *testing.T) {
	svc, repo := newTestService()

	// Alice is Silver (5%): 2 x $25 beans + 1 x $10 mug.
	resp, err := svc.PlaceOrder(customerCtx("cust-alice"), domain.PlaceOrderRequest{
		BranchID:        "branch-downtown",
		ShippingAddress: "14 Elm St",
		Items: []domain.OrderItemRequest{
			{ProductID: "prod-beans", Quantity: 2},
			{ProductID: "prod-mug", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	order := resp.Order
	if !order.Subtotal.Equal(dec("60.00")) {
		t.Errorf("subtotal = %s, want 60.00", order.Subtotal)
	}
	if !order.DiscountAmount.Equal(dec("3.00")) {
		t.Errorf("discount = %s, want 3.00", order.DiscountAmount)
	}
	if !order.TaxAmount.Equal(dec("5.70")) {
		t.Errorf("tax = %s, want 5.70", order.TaxAmount)
	}
	if !order.TotalAmount.Equal(dec("62.70")) {
		t.Errorf("total = %s, want 62.70", order.TotalAmount)
	}
	if order.Status != domain.OrderPending {
		t.Errorf("status = %s, want Pending without payment", order.Status)
	}
	if len(order.Items) != 2 {
		t.Fatalf("line items = %d, want 2", len(order.Items))
	}

	if qty := branchQty(t, repo, "branch-downtown", "prod-beans"); qty != 38 {
		t.Errorf("beans stock = %d, want 38", qty)
	}
	if qty := branchQty(t, repo, "branch-downtown", "prod-mug"); qty != 39 {
		t.Errorf("mug stock = %d, want 39", qty)
	}
}

func TestPlaceOrderWithPaymentMovesToProcessing(t *testing.T) {
	svc, repo := newTestService()

	resp, err := svc.PlaceOrder(customerCtx("cust-bob"), domain.PlaceOrderRequest{
		BranchID:        "branch-downtown",
		ShippingAddress: "9 Oak Rd",
		PaymentMethod:   "Credit Card",
		Items:           []domain.OrderItemRequest{{ProductID: "prod-kettle", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	if resp.Order.Status != domain.OrderProcessing {
		t.Errorf("status = %s, want Processing after payment capture", resp.Order.Status)
	}

	payment, err := repo.GetPaymentByOrderID(context.Background(), resp.Order.ID)
	if err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != domain.PaymentCompleted {
		t.Errorf("payment status = %s, want Completed", payment.Status)
	}
	if !payment.Amount.Equal(resp.Order.TotalAmount) {
		t.Errorf("payment amount = %s, want %s", payment.Amount, resp.Order.TotalAmount)
	}
}

func TestPlaceOrderRejectsBadInput(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.PlaceOrder(customerCtx("cust-bob"), domain.PlaceOrderRequest{
		BranchID: "branch-downtown",
		Items:    []domain.OrderItemRequest{{ProductID: "prod-mug", Quantity: 0}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("zero quantity: got %v, want ErrValidation", err)
	}

	_, err = svc.PlaceOrder(customerCtx("cust-bob"), domain.PlaceOrderRequest{
		BranchID: "branch-downtown",
		Items:    []domain.OrderItemRequest{{ProductID: "prod-retired", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("inactive product: got %v, want ErrValidation", err)
	}

	_, err = svc.PlaceOrder(customerCtx("cust-bob"), domain.PlaceOrderRequest{
		BranchID:      "branch-downtown",
		PaymentMethod: "IOU",
		Items:         []domain.OrderItemRequest{{ProductID: "prod-mug", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("unknown payment method: got %v, want ErrValidation", err)
	}
}

func TestPlaceOrderRollsBackOnInsufficientStock(t *testing.T) {
	svc, repo := newTestService()

	// Line two exceeds the seeded 40 units; nothing may survive.
	_, err := svc.PlaceOrder(customerCtx("cust-alice"), domain.PlaceOrderRequest{
		BranchID: "branch-downtown",
		Items: []domain.OrderItemRequest{
			{ProductID: "prod-beans", Quantity: 2},
			{ProductID: "prod-kettle", Quantity: 50},
			{ProductID: "prod-mug", Quantity: 1},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("got %v, want ErrInsufficientStock", err)
	}

	for _, productID := range []string{"prod-beans", "prod-kettle", "prod-mug"} {
		if qty := branchQty(t, repo, "branch-downtown", productID); qty != 40 {
			t.Errorf("%s stock = %d, want untouched 40", productID, qty)
		}
	}
	orders, err := repo.ListOrders(context.Background(), "branch-downtown", "", "", 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("orders persisted = %d, want 0 after rollback", len(orders))
	}
}

func TestConcurrentPlaceOrderExhaustsStockToZero(t *testing.T) {
	svc, repo := newTestService()

	// 40 units, ten callers wanting 8 each: exactly five can win.
	const callers = 10
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(customerCtx("cust-bob"), domain.PlaceOrderRequest{
				BranchID: "branch-harbor",
				Items:    []domain.OrderItemRequest{{ProductID: "prod-mug", Quantity: 8}},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, failed := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientStock):
			failed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 5 || failed != 5 {
		t.Errorf("succeeded=%d failed=%d, want 5/5", succeeded, failed)
	}
	if qty := branchQty(t, repo, "branch-harbor", "prod-mug"); qty != 0 {
		t.Errorf("final stock = %d, want exactly 0", qty)
	}
}

func TestSetOrderStatusEnforcesTransitions(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.PlaceOrder(staffCtx(), domain.PlaceOrderRequest{
		CustomerID: "cust-bob",
		BranchID:   "branch-downtown",
		Items:      []domain.OrderItemRequest{{ProductID: "prod-filter", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	orderID := resp.Order.ID

	if _, err := svc.SetOrderStatus(managerCtx(), orderID, domain.OrderDelivered); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Pending->Delivered: got %v, want ErrInvalidTransition", err)
	}

	for _, to := range []domain.OrderStatus{domain.OrderProcessing, domain.OrderShipped, domain.OrderDelivered} {
		if _, err := svc.SetOrderStatus(managerCtx(), orderID, to); err != nil {
			t.Fatalf("transition to %s failed: %v", to, err)
		}
	}

	if _, err := svc.SetOrderStatus(managerCtx(), orderID, domain.OrderProcessing); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Delivered->Processing: got %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.SetOrderStatus(managerCtx(), orderID, "Misplaced"); !errors.Is(err, store.ErrValidation) {
		t.Errorf("unknown status: got %v, want ErrValidation", err)
	}
}

func TestRefundedOrderRefundsPayment(t *testing.T) {
	svc, repo := newTestService()

	resp, err := svc.PlaceOrder(customerCtx("cust-alice"), domain.PlaceOrderRequest{
		BranchID:      "branch-downtown",
		PaymentMethod: "PayPal",
		Items:         []domain.OrderItemRequest{{ProductID: "prod-scale", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	if _, err := svc.SetOrderStatus(managerCtx(), resp.Order.ID, domain.OrderRefunded); err != nil {
		t.Fatalf("refund transition failed: %v", err)
	}

	payment, err := repo.GetPaymentByOrderID(context.Background(), resp.Order.ID)
	if err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != domain.PaymentRefunded {
		t.Errorf("payment status = %s, want Refunded", payment.Status)
	}
}

func TestLifetimeSpendDrivesTierUpgrade(t *testing.T) {
	svc, repo := newTestService()

	// Bob starts Bronze with zero spend; four espresso machines push him
	// over the Silver threshold.
	_, err := svc.PlaceOrder(customerCtx("cust-bob"), domain.PlaceOrderRequest{
		BranchID: "branch-downtown",
		Items:    []domain.OrderItemRequest{{ProductID: "prod-espresso", Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	customer, err := repo.GetCustomerByID(context.Background(), "cust-bob")
	if err != nil {
		t.Fatalf("load customer: %v", err)
	}
	if customer.Tier != domain.TierSilver {
		t.Errorf("tier = %s, want Silver after spend %s", customer.Tier, customer.LifetimeSpend)
	}
}

func TestCartCheckoutClearsCartOnlyOnSuccess(t *testing.T) {
	svc, _ := newTestService()
	ctx := customerCtx("cust-alice")

	if _, err := svc.AddToCart(ctx, domain.CartAddRequest{ProductID: "prod-kettle", Quantity: 60}); err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}

	_, err := svc.CheckoutCart(ctx, domain.CheckoutRequest{BranchID: "branch-downtown", ShippingAddress: "14 Elm St"})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("got %v, want ErrInsufficientStock", err)
	}

	cart, err := svc.GetCart(ctx)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Cart.Items) != 1 || cart.Cart.Items[0].Quantity != 60 {
		t.Fatalf("cart changed after failed checkout: %+v", cart.Cart.Items)
	}

	if _, err := svc.RemoveFromCart(ctx, "prod-kettle"); err != nil {
		t.Fatalf("remove from cart: %v", err)
	}
	if _, err := svc.AddToCart(ctx, domain.CartAddRequest{ProductID: "prod-kettle", Quantity: 2}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	resp, err := svc.CheckoutCart(ctx, domain.CheckoutRequest{BranchID: "branch-downtown", ShippingAddress: "14 Elm St"})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if len(resp.Order.Items) != 1 {
		t.Fatalf("order items = %d, want 1", len(resp.Order.Items))
	}

	cart, err = svc.GetCart(ctx)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Cart.Items) != 0 {
		t.Errorf("cart not cleared after successful checkout: %+v", cart.Cart.Items)
	}
}

func TestPurchaseOrderReceiveRestocksBranch(t *testing.T) {
	svc, repo := newTestService()
	northCtx := supplierCtx("sup-north")

	created, err := svc.CreatePurchaseOrder(northCtx, domain.PurchaseOrderCreateRequest{
		BranchID: "branch-harbor",
		Submit:   true,
		Items: []domain.PurchaseOrderItemRequest{
			{ProductID: "prod-beans", Quantity: 25, UnitCost: dec("13.75")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	po := created.PurchaseOrder
	if po.Status != domain.POSubmitted {
		t.Fatalf("status = %s, want Submitted", po.Status)
	}
	if !po.Total.Equal(dec("343.75")) {
		t.Errorf("total = %s, want 343.75", po.Total)
	}

	if _, err := svc.ConfirmPurchaseOrder(northCtx, po.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := svc.ShipPurchaseOrder(northCtx, po.ID); err != nil {
		t.Fatalf("ship failed: %v", err)
	}

	received, err := svc.ReceivePurchaseOrder(staffCtx(), po.ID)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if received.PurchaseOrder.Status != domain.POReceived {
		t.Errorf("status = %s, want Received", received.PurchaseOrder.Status)
	}
	if received.PurchaseOrder.ReceivedAt == nil {
		t.Error("received_at not set")
	}
	if qty := branchQty(t, repo, "branch-harbor", "prod-beans"); qty != 65 {
		t.Errorf("stock = %d, want 40+25=65", qty)
	}

	if _, err := svc.ReceivePurchaseOrder(staffCtx(), po.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("double receive: got %v, want ErrInvalidTransition", err)
	}
}

func TestPurchaseOrderTransitionOrderEnforced(t *testing.T) {
	svc, _ := newTestService()
	northCtx := supplierCtx("sup-north")

	created, err := svc.CreatePurchaseOrder(northCtx, domain.PurchaseOrderCreateRequest{
		BranchID: "branch-downtown",
		Items: []domain.PurchaseOrderItemRequest{
			{ProductID: "prod-filter", Quantity: 10, UnitCost: dec("2.10")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	po := created.PurchaseOrder
	if po.Status != domain.PODraft {
		t.Fatalf("status = %s, want Draft", po.Status)
	}

	// Draft cannot jump to Shipped; it must go through Submitted and
	// Confirmed first.
	if _, err := svc.ShipPurchaseOrder(northCtx, po.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Draft->Shipped: got %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.SubmitPurchaseOrder(northCtx, po.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.CancelPurchaseOrder(northCtx, po.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := svc.ConfirmPurchaseOrder(northCtx, po.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Cancelled->Confirmed: got %v, want ErrInvalidTransition", err)
	}
}

func TestShippedPurchaseOrderCanBeCancelled(t *testing.T) {
	svc, repo := newTestService()
	northCtx := supplierCtx("sup-north")

	created, err := svc.CreatePurchaseOrder(northCtx, domain.PurchaseOrderCreateRequest{
		BranchID: "branch-downtown",
		Submit:   true,
		Items: []domain.PurchaseOrderItemRequest{
			{ProductID: "prod-scale", Quantity: 15, UnitCost: dec("18.00")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	po := created.PurchaseOrder
	if _, err := svc.ConfirmPurchaseOrder(northCtx, po.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := svc.ShipPurchaseOrder(northCtx, po.ID); err != nil {
		t.Fatalf("ship failed: %v", err)
	}

	// Shipped is not terminal; a lost or rejected delivery can still be
	// cancelled before goods are received.
	cancelled, err := svc.CancelPurchaseOrder(northCtx, po.ID)
	if err != nil {
		t.Fatalf("Shipped->Cancelled: %v", err)
	}
	if cancelled.PurchaseOrder.Status != domain.POCancelled {
		t.Errorf("status = %s, want Cancelled", cancelled.PurchaseOrder.Status)
	}
	if _, err := svc.ReceivePurchaseOrder(staffCtx(), po.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Cancelled->Received: got %v, want ErrInvalidTransition", err)
	}
	if qty := branchQty(t, repo, "branch-downtown", "prod-scale"); qty != 40 {
		t.Errorf("stock = %d, want 40 (cancelled order must not restock)", qty)
	}
}

func TestCrossSupplierMutationRejected(t *testing.T) {
	svc, _ := newTestService()

	created, err := svc.CreatePurchaseOrder(supplierCtx("sup-north"), domain.PurchaseOrderCreateRequest{
		BranchID: "branch-downtown",
		Submit:   true,
		Items: []domain.PurchaseOrderItemRequest{
			{ProductID: "prod-beans", Quantity: 5, UnitCost: dec("13.75")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}

	if _, err := svc.ConfirmPurchaseOrder(supplierCtx("sup-pacific"), created.PurchaseOrder.ID); !errors.Is(err, store.ErrNotAuthorized) {
		t.Errorf("cross-supplier confirm: got %v, want ErrNotAuthorized", err)
	}
	if _, err := svc.GetPurchaseOrder(supplierCtx("sup-pacific"), created.PurchaseOrder.ID); !errors.Is(err, store.ErrNotAuthorized) {
		t.Errorf("cross-supplier read: got %v, want ErrNotAuthorized", err)
	}

	if _, err := svc.ReceivePurchaseOrder(supplierCtx("sup-north"), created.PurchaseOrder.ID); !errors.Is(err, store.ErrNotAuthorized) {
		t.Errorf("supplier receive: got %v, want ErrNotAuthorized", err)
	}
}

func TestShipmentDeliveredStampIsWriteOnce(t *testing.T) {
	svc, _ := newTestService()
	northCtx := supplierCtx("sup-north")

	created, err := svc.CreateShipment(northCtx, domain.ShipmentCreateRequest{
		BranchID:       "branch-downtown",
		TrackingNumber: "TRK-1001",
	})
	if err != nil {
		t.Fatalf("create shipment failed: %v", err)
	}
	shipmentID := created.Shipment.ID

	if _, err := svc.UpdateShipment(northCtx, shipmentID, domain.ShipmentUpdateRequest{Status: domain.ShipmentInTransit}); err != nil {
		t.Fatalf("in transit failed: %v", err)
	}

	first, err := svc.UpdateShipment(northCtx, shipmentID, domain.ShipmentUpdateRequest{Status: domain.ShipmentDelivered})
	if err != nil {
		t.Fatalf("delivered failed: %v", err)
	}
	if first.Shipment.ActualArrival == nil {
		t.Fatal("actual arrival not stamped on first Delivered")
	}
	arrival := *first.Shipment.ActualArrival

	second, err := svc.UpdateShipment(northCtx, shipmentID, domain.ShipmentUpdateRequest{Status: domain.ShipmentDelivered})
	if err != nil {
		t.Fatalf("repeat delivered failed: %v", err)
	}
	if second.Shipment.ActualArrival == nil || !second.Shipment.ActualArrival.Equal(arrival) {
		t.Errorf("arrival restamped: first=%v second=%v", arrival, second.Shipment.ActualArrival)
	}

	if _, err := svc.UpdateShipment(northCtx, shipmentID, domain.ShipmentUpdateRequest{Status: domain.ShipmentInTransit}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Delivered->In Transit: got %v, want ErrInvalidTransition", err)
	}

	if _, err := svc.UpdateShipment(supplierCtx("sup-pacific"), shipmentID, domain.ShipmentUpdateRequest{Status: domain.ShipmentCancelled}); !errors.Is(err, store.ErrNotAuthorized) {
		t.Errorf("cross-supplier shipment update: got %v, want ErrNotAuthorized", err)
	}
}

func TestCanReviewRequiresDeliveredOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := customerCtx("cust-alice")

	resp, err := svc.PlaceOrder(ctx, domain.PlaceOrderRequest{
		BranchID: "branch-downtown",
		Items:    []domain.OrderItemRequest{{ProductID: "prod-grinder", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	ok, err := svc.CanReview(ctx, "prod-grinder")
	if err != nil {
		t.Fatalf("can review: %v", err)
	}
	if ok {
		t.Error("review allowed before delivery")
	}

	for _, to := range []domain.OrderStatus{domain.OrderProcessing, domain.OrderShipped, domain.OrderDelivered} {
		if _, err := svc.SetOrderStatus(managerCtx(), resp.Order.ID, to); err != nil {
			t.Fatalf("transition to %s failed: %v", to, err)
		}
	}

	ok, err = svc.CanReview(ctx, "prod-grinder")
	if err != nil {
		t.Fatalf("can review: %v", err)
	}
	if !ok {
		t.Error("review denied after delivery")
	}
}

func TestCustomerCannotReadForeignOrder(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.PlaceOrder(customerCtx("cust-alice"), domain.PlaceOrderRequest{
		BranchID: "branch-downtown",
		Items:    []domain.OrderItemRequest{{ProductID: "prod-mug", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	if _, err := svc.GetOrder(customerCtx("cust-bob"), resp.Order.ID); !errors.Is(err, store.ErrNotAuthorized) {
		t.Errorf("foreign order read: got %v, want ErrNotAuthorized", err)
	}
}

func TestReorderSuggestionsFlagLowStock(t *testing.T) {
	svc, _ := newTestService()

	// Drain mugs at downtown to 3, below the min threshold of 5.
	_, err := svc.PlaceOrder(customerCtx("cust-alice"), domain.PlaceOrderRequest{
		BranchID: "branch-downtown",
		Items:    []domain.OrderItemRequest{{ProductID: "prod-mug", Quantity: 37}},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	resp, err := svc.ReorderSuggestions(staffCtx(), "branch-downtown")
	if err != nil {
		t.Fatalf("reorder suggestions: %v", err)
	}
	if len(resp.Suggestions) != 1 {
		t.Fatalf("suggestions = %d, want 1", len(resp.Suggestions))
	}
	got := resp.Suggestions[0]
	if got.ProductID != "prod-mug" || got.Quantity != 3 {
		t.Errorf("suggestion = %+v, want prod-mug at qty 3", got)
	}
	if got.SuggestedQty != 77 {
		t.Errorf("suggested qty = %d, want 77 (top up to max 80)", got.SuggestedQty)
	}
}

func TestSalesReportAggregatesDay(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.PlaceOrder(customerCtx("cust-alice"), domain.PlaceOrderRequest{
		BranchID:      "branch-downtown",
		PaymentMethod: "Cash",
		Items:         []domain.OrderItemRequest{{ProductID: "prod-beans", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("first order failed: %v", err)
	}
	second, err := svc.PlaceOrder(customerCtx("cust-bob"), domain.PlaceOrderRequest{
		BranchID: "branch-downtown",
		Items:    []domain.OrderItemRequest{{ProductID: "prod-mug", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("second order failed: %v", err)
	}
	if _, err := svc.SetOrderStatus(managerCtx(), second.Order.ID, domain.OrderCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	report, err := svc.SalesReport(managerCtx(), "branch-downtown", "")
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if report.Orders != 1 {
		t.Errorf("orders = %d, want 1 (cancelled excluded)", report.Orders)
	}
	if !report.NetSales.Equal(first.Order.TotalAmount) {
		t.Errorf("net sales = %s, want %s", report.NetSales, first.Order.TotalAmount)
	}
}

func TestReceiveStockUpdatesRestockTimestamp(t *testing.T) {
	svc, _ := newTestService()

	rec, err := svc.ReceiveStock(staffCtx(), domain.ReceiveStockRequest{
		ProductID: "prod-scale",
		BranchID:  "branch-harbor",
		Quantity:  15,
	})
	if err != nil {
		t.Fatalf("receive stock failed: %v", err)
	}
	if rec.Quantity != 55 {
		t.Errorf("quantity = %d, want 55", rec.Quantity)
	}
	if rec.LastRestockedAt == nil {
		t.Error("last restocked timestamp not set")
	}

	if _, err := svc.ReceiveStock(staffCtx(), domain.ReceiveStockRequest{ProductID: "prod-scale", BranchID: "branch-harbor", Quantity: -1}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("negative receive: got %v, want ErrValidation", err)
	}
}

func TestDeductStockHonorsNeverNegative(t *testing.T) {
	svc, repo := newTestService()

	rec, err := svc.DeductStock(staffCtx(), domain.StockAdjustmentRequest{
		ProductID: "prod-filter",
		BranchID:  "branch-downtown",
		Quantity:  12,
		Reason:    "water damage",
	})
	if err != nil {
		t.Fatalf("deduct stock failed: %v", err)
	}
	if rec.Quantity != 28 {
		t.Errorf("quantity = %d, want 28", rec.Quantity)
	}

	if _, err := svc.DeductStock(staffCtx(), domain.StockAdjustmentRequest{
		ProductID: "prod-filter",
		BranchID:  "branch-downtown",
		Quantity:  100,
	}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Errorf("oversized deduct: got %v, want ErrInsufficientStock", err)
	}
	if got := branchQty(t, repo, "branch-downtown", "prod-filter"); got != 28 {
		t.Errorf("quantity after failed deduct = %d, want 28", got)
	}
}

func TestGetOrderPaymentScopedToOwner(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.PlaceOrder(customerCtx("cust-alice"), domain.PlaceOrderRequest{
		BranchID:        "branch-downtown",
		ShippingAddress: "12 Pier Ave",
		PaymentMethod:   "Cash",
		Items:           []domain.OrderItemRequest{{ProductID: "prod-mug", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	payment, err := svc.GetOrderPayment(customerCtx("cust-alice"), resp.Order.ID)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if payment.Payment.Status != domain.PaymentCompleted {
		t.Errorf("payment status = %s, want Completed", payment.Payment.Status)
	}
	if !payment.Payment.Amount.Equal(resp.Order.TotalAmount) {
		t.Errorf("payment amount = %s, want %s", payment.Payment.Amount, resp.Order.TotalAmount)
	}

	if _, err := svc.GetOrderPayment(customerCtx("cust-bob"), resp.Order.ID); !errors.Is(err, store.ErrNotAuthorized) {
		t.Errorf("foreign payment read: got %v, want ErrNotAuthorized", err)
	}
}

func TestCreateProductManagerOnly(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.CreateProduct(staffCtx(), domain.ProductCreateRequest{
		SKU: "SKU-NEW", Name: "French Press", Category: "brewing",
		UnitPrice: dec("34.00"), CostPrice: dec("15.00"),
	}); !errors.Is(err, store.ErrNotAuthorized) {
		t.Fatalf("staff create product: got %v, want ErrNotAuthorized", err)
	}

	created, err := svc.CreateProduct(managerCtx(), domain.ProductCreateRequest{
		SKU: "SKU-NEW", Name: "French Press", Category: "brewing",
		UnitPrice: dec("34.00"), CostPrice: dec("15.00"),
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if created.Product.ID == "" || !created.Product.Active {
		t.Errorf("expected active product with id, got %+v", created.Product)
	}
}

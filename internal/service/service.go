package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailops/backend/internal/cache"
	"retailops/backend/internal/domain"
	"retailops/backend/internal/pricing"
	"retailops/backend/internal/store"
	"retailops/backend/internal/xid"
)

const cartTTL = 30 * 24 * time.Hour

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	carts    cache.CartStore
	schedule pricing.Schedule
}

func New(repo store.Repository, carts cache.CartStore, schedule pricing.Schedule) *Service {
	if carts == nil {
		carts = cache.NewMemoryCartStore()
	}
	if len(schedule.Tiers) == 0 {
		schedule = pricing.DefaultSchedule(decimal.NewFromInt(10))
	}

	return &Service{
		repo:     repo,
		carts:    carts,
		schedule: schedule,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return s.repo.ListBranches(ctx)
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.ProductResponse, error) {
	actor, _ := ActorFromContext(ctx)
	if actor.Role != domain.RoleManager {
		return domain.ProductResponse{}, store.ErrNotAuthorized
	}

	product, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:       strings.TrimSpace(req.SKU),
		Name:      strings.TrimSpace(req.Name),
		Category:  strings.TrimSpace(req.Category),
		UnitPrice: req.UnitPrice,
		CostPrice: req.CostPrice,
		Active:    true,
	})
	if err != nil {
		return domain.ProductResponse{}, err
	}

	s.logAudit(ctx, "", "product_create", "product", product.ID, fmt.Sprintf("sku=%s", product.SKU))
	return domain.ProductResponse{Product: *product}, nil
}

// PlaceOrder runs the whole checkout: resolve catalog prices, price the
// order with the customer's membership discount, and hand the priced
// order to the store as one atomic unit. Client-supplied prices are never
// trusted; the catalog price at this moment is what gets captured.
func (s *Service) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderResponse, error) {
	actor, _ := ActorFromContext(ctx)
	if actor.Role == domain.RoleCustomer {
		// Customers only ever order for themselves.
		req.CustomerID = actor.CustomerID
		req.EmployeeID = ""
	}
	if actor.Role == domain.RoleStaff && req.EmployeeID == "" {
		req.EmployeeID = actor.EmployeeID
	}

	req.ShippingAddress = strings.TrimSpace(req.ShippingAddress)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.CustomerID == "" || req.BranchID == "" {
		return domain.OrderResponse{}, fmt.Errorf("%w: customer and branch are required", store.ErrValidation)
	}
	if req.PaymentMethod != "" && !domain.IsPaymentMethod(req.PaymentMethod) {
		return domain.OrderResponse{}, fmt.Errorf("%w: unknown payment method %q", store.ErrValidation, req.PaymentMethod)
	}

	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity < 1 {
			return domain.OrderResponse{}, fmt.Errorf("%w: every line needs a product and a positive quantity", store.ErrValidation)
		}
	}
	items := normalizeItems(req.Items)
	if len(items) == 0 {
		return domain.OrderResponse{}, fmt.Errorf("%w: order has no line items", store.ErrValidation)
	}

	customer, err := s.repo.GetCustomerByID(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.OrderResponse{}, fmt.Errorf("%w: customer %s", store.ErrValidation, req.CustomerID)
		}
		return domain.OrderResponse{}, err
	}
	if _, err := s.repo.GetBranchByID(ctx, req.BranchID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.OrderResponse{}, fmt.Errorf("%w: branch %s", store.ErrValidation, req.BranchID)
		}
		return domain.OrderResponse{}, err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.Active {
			return domain.OrderResponse{}, fmt.Errorf("%w: product %s unavailable", store.ErrValidation, item.ProductID)
		}
		lines = append(lines, pricing.Line{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.UnitPrice,
		})
	}

	tier := s.schedule.TierForSpend(customer.LifetimeSpend)
	quote, err := pricing.Price(lines, tier.DiscountPercent, s.schedule.TaxPercent)
	if err != nil {
		return domain.OrderResponse{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:              xid.New("ord"),
		CustomerID:      req.CustomerID,
		BranchID:        req.BranchID,
		EmployeeID:      req.EmployeeID,
		ShippingAddress: req.ShippingAddress,
		Subtotal:        quote.Subtotal,
		DiscountAmount:  quote.Discount,
		TaxAmount:       quote.Tax,
		TotalAmount:     quote.Total,
		Status:          domain.OrderPending,
		CreatedAt:       now,
		Items:           make([]domain.OrderLineItem, 0, len(quote.Lines)),
	}
	for _, line := range quote.Lines {
		order.Items = append(order.Items, domain.OrderLineItem{
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal,
		})
	}

	params := store.PlaceOrderParams{Order: order}
	if req.PaymentMethod != "" {
		params.Payment = &domain.Payment{
			ID:        xid.New("pay"),
			OrderID:   order.ID,
			Amount:    quote.Total,
			Method:    req.PaymentMethod,
			Status:    domain.PaymentCompleted,
			CreatedAt: now,
		}
	}

	placed, err := s.repo.PlaceOrder(ctx, params)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	newTier := s.schedule.TierForSpend(customer.LifetimeSpend.Add(placed.TotalAmount))
	if err := s.repo.AddCustomerSpend(ctx, placed.CustomerID, placed.TotalAmount, newTier.Name); err != nil {
		log.Printf("[service] WARN: failed to update lifetime spend customer=%s: %v", placed.CustomerID, err)
	}

	s.logAudit(ctx, placed.BranchID, "order_place", "order", placed.ID,
		fmt.Sprintf("customer=%s,total=%s,status=%s", placed.CustomerID, placed.TotalAmount, placed.Status))

	return domain.OrderResponse{Order: *placed}, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.OrderResponse, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	actor, _ := ActorFromContext(ctx)
	if actor.Role == domain.RoleCustomer && order.CustomerID != actor.CustomerID {
		return domain.OrderResponse{}, store.ErrNotAuthorized
	}
	return domain.OrderResponse{Order: *order}, nil
}

func (s *Service) ListOrders(ctx context.Context, branchID string, status string, limit int) (domain.OrderListResponse, error) {
	customerID := ""
	actor, _ := ActorFromContext(ctx)
	if actor.Role == domain.RoleCustomer {
		customerID = actor.CustomerID
	}

	orders, err := s.repo.ListOrders(ctx, branchID, customerID, domain.OrderStatus(status), limit)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	return domain.OrderListResponse{Orders: orders}, nil
}

// SetOrderStatus moves an order along its lifecycle. Illegal jumps are
// rejected by the store's transition check, including attempts to pull
// an order out of a terminal state.
func (s *Service) SetOrderStatus(ctx context.Context, orderID string, to domain.OrderStatus) (domain.OrderResponse, error) {
	actor, _ := ActorFromContext(ctx)
	if actor.Role != domain.RoleManager && actor.Role != domain.RoleStaff {
		return domain.OrderResponse{}, fmt.Errorf("%w: order status changes are staff operations", store.ErrNotAuthorized)
	}
	if !to.Valid() {
		return domain.OrderResponse{}, fmt.Errorf("%w: unknown order status %q", store.ErrValidation, to)
	}

	order, err := s.repo.SetOrderStatus(ctx, orderID, to, time.Now().UTC())
	if err != nil {
		return domain.OrderResponse{}, err
	}

	s.logAudit(ctx, order.BranchID, "order_status", "order", order.ID, fmt.Sprintf("status=%s", order.Status))
	return domain.OrderResponse{Order: *order}, nil
}

// GetOrderPayment returns the payment recorded for an order. Customers
// may only look up payments on their own orders.
func (s *Service) GetOrderPayment(ctx context.Context, orderID string) (domain.PaymentResponse, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	actor, _ := ActorFromContext(ctx)
	if actor.Role == domain.RoleCustomer && order.CustomerID != actor.CustomerID {
		return domain.PaymentResponse{}, store.ErrNotAuthorized
	}

	payment, err := s.repo.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	return domain.PaymentResponse{Payment: *payment}, nil
}

// CanReview reports whether the calling customer has a delivered order
// containing the product. Review submission itself lives elsewhere; this
// is only the gate.
func (s *Service) CanReview(ctx context.Context, productID string) (bool, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleCustomer {
		return false, store.ErrNotAuthorized
	}
	return s.repo.HasDeliveredOrder(ctx, actor.CustomerID, productID)
}

func (s *Service) GetCart(ctx context.Context) (domain.CartResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleCustomer {
		return domain.CartResponse{}, store.ErrNotAuthorized
	}

	cart, found, err := s.carts.Get(ctx, actor.CustomerID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if !found {
		return domain.CartResponse{Cart: domain.Cart{CustomerID: actor.CustomerID, Items: []domain.CartItem{}}}, nil
	}
	return domain.CartResponse{Cart: *cart}, nil
}

func (s *Service) AddToCart(ctx context.Context, req domain.CartAddRequest) (domain.CartResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleCustomer {
		return domain.CartResponse{}, store.ErrNotAuthorized
	}
	if req.ProductID == "" || req.Quantity < 1 {
		return domain.CartResponse{}, fmt.Errorf("%w: product and positive quantity required", store.ErrValidation)
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CartResponse{}, fmt.Errorf("%w: product %s", store.ErrValidation, req.ProductID)
		}
		return domain.CartResponse{}, err
	}
	if !product.Active {
		return domain.CartResponse{}, fmt.Errorf("%w: product %s unavailable", store.ErrValidation, req.ProductID)
	}

	cart, found, err := s.carts.Get(ctx, actor.CustomerID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if !found {
		cart = &domain.Cart{CustomerID: actor.CustomerID}
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == req.ProductID {
			cart.Items[i].Quantity += req.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: req.ProductID, Quantity: req.Quantity})
	}
	cart.UpdatedAt = time.Now().UTC()

	if err := s.carts.Save(ctx, *cart, cartTTL); err != nil {
		return domain.CartResponse{}, err
	}
	return domain.CartResponse{Cart: *cart}, nil
}

func (s *Service) RemoveFromCart(ctx context.Context, productID string) (domain.CartResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleCustomer {
		return domain.CartResponse{}, store.ErrNotAuthorized
	}

	cart, found, err := s.carts.Get(ctx, actor.CustomerID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if !found {
		return domain.CartResponse{Cart: domain.Cart{CustomerID: actor.CustomerID, Items: []domain.CartItem{}}}, nil
	}

	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	cart.UpdatedAt = time.Now().UTC()

	if err := s.carts.Save(ctx, *cart, cartTTL); err != nil {
		return domain.CartResponse{}, err
	}
	return domain.CartResponse{Cart: *cart}, nil
}

// CheckoutCart converts the customer's cart into a placed order. The cart
// is cleared only after the order committed; a failed checkout leaves the
// cart (and inventory) untouched, so retrying is safe.
func (s *Service) CheckoutCart(ctx context.Context, req domain.CheckoutRequest) (domain.OrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleCustomer {
		return domain.OrderResponse{}, store.ErrNotAuthorized
	}

	cart, found, err := s.carts.Get(ctx, actor.CustomerID)
	if err != nil {
		return domain.OrderResponse{}, err
	}
	if !found || len(cart.Items) == 0 {
		return domain.OrderResponse{}, fmt.Errorf("%w: cart is empty", store.ErrValidation)
	}

	placeReq := domain.PlaceOrderRequest{
		CustomerID:      actor.CustomerID,
		BranchID:        req.BranchID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Items:           make([]domain.OrderItemRequest, 0, len(cart.Items)),
	}
	for _, item := range cart.Items {
		placeReq.Items = append(placeReq.Items, domain.OrderItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	resp, err := s.PlaceOrder(ctx, placeReq)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	if err := s.carts.Clear(ctx, actor.CustomerID); err != nil {
		log.Printf("[service] WARN: failed to clear cart customer=%s: %v", actor.CustomerID, err)
	}
	return resp, nil
}

func (s *Service) StockLevels(ctx context.Context, branchID string) (domain.InventoryListResponse, error) {
	records, err := s.repo.StockLevels(ctx, branchID)
	if err != nil {
		return domain.InventoryListResponse{}, err
	}
	return domain.InventoryListResponse{Records: records}, nil
}

func (s *Service) ReceiveStock(ctx context.Context, req domain.ReceiveStockRequest) (domain.InventoryRecord, error) {
	if req.ProductID == "" || req.BranchID == "" || req.Quantity < 0 {
		return domain.InventoryRecord{}, fmt.Errorf("%w: product, branch and non-negative quantity required", store.ErrValidation)
	}

	rec, err := s.repo.ReceiveStock(ctx, req.BranchID, req.ProductID, req.Quantity, time.Now().UTC())
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	s.logAudit(ctx, req.BranchID, "stock_receive", "inventory", req.ProductID, fmt.Sprintf("qty=%d,new=%d", req.Quantity, rec.Quantity))
	return *rec, nil
}

// DeductStock records a manual stock deduction outside the order flow,
// e.g. damaged or missing goods. The same never-negative guarantee
// applies: deducting more than is on hand fails.
func (s *Service) DeductStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.InventoryRecord, error) {
	if req.ProductID == "" || req.BranchID == "" || req.Quantity < 1 {
		return domain.InventoryRecord{}, fmt.Errorf("%w: product, branch and positive quantity required", store.ErrValidation)
	}

	if err := s.repo.DecrementStock(ctx, req.BranchID, req.ProductID, req.Quantity); err != nil {
		return domain.InventoryRecord{}, err
	}

	s.logAudit(ctx, req.BranchID, "stock_deduct", "inventory", req.ProductID,
		fmt.Sprintf("qty=%d,reason=%s", req.Quantity, strings.TrimSpace(req.Reason)))

	levels, err := s.repo.GetStockMap(ctx, req.BranchID, []string{req.ProductID})
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return levels[req.ProductID], nil
}

// ReorderSuggestions lists products at or below their minimum threshold
// with a quantity that tops the branch back up to max stock.
func (s *Service) ReorderSuggestions(ctx context.Context, branchID string) (domain.ReorderSuggestionResponse, error) {
	records, err := s.repo.StockLevels(ctx, branchID)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}

	suggestions := make([]domain.ReorderSuggestion, 0, 24)
	for _, rec := range records {
		if !rec.LowStock {
			continue
		}
		target := rec.MaxStock
		if target <= rec.MinStock {
			target = rec.MinStock * 2
		}
		qty := target - rec.Quantity
		if qty < 1 {
			continue
		}
		suggestions = append(suggestions, domain.ReorderSuggestion{
			ProductID:    rec.ProductID,
			ProductName:  rec.ProductName,
			BranchID:     rec.BranchID,
			Quantity:     rec.Quantity,
			MinStock:     rec.MinStock,
			SuggestedQty: qty,
		})
	}

	return domain.ReorderSuggestionResponse{
		BranchID:    branchID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Suggestions: suggestions,
	}, nil
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrderResponse, error) {
	actor, _ := ActorFromContext(ctx)
	if actor.Role == domain.RoleSupplier {
		// Suppliers raise purchase orders against themselves only.
		req.SupplierID = actor.SupplierID
	}
	if req.SupplierID == "" || req.BranchID == "" || len(req.Items) == 0 {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("%w: supplier, branch and items required", store.ErrValidation)
	}
	if _, err := s.repo.GetSupplierByID(ctx, req.SupplierID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PurchaseOrderResponse{}, fmt.Errorf("%w: supplier %s", store.ErrValidation, req.SupplierID)
		}
		return domain.PurchaseOrderResponse{}, err
	}

	var expected *time.Time
	if strings.TrimSpace(req.ExpectedDelivery) != "" {
		parsed, err := time.Parse("2006-01-02", req.ExpectedDelivery)
		if err != nil {
			return domain.PurchaseOrderResponse{}, fmt.Errorf("%w: expected_delivery must be YYYY-MM-DD", store.ErrValidation)
		}
		expected = &parsed
	}

	status := domain.PODraft
	if req.Submit {
		status = domain.POSubmitted
	}

	subtotal := decimal.Zero
	items := make([]domain.PurchaseOrderLineItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity < 1 || !item.UnitCost.IsPositive() {
			return domain.PurchaseOrderResponse{}, fmt.Errorf("%w: every item needs a product, positive quantity and positive cost", store.ErrValidation)
		}
		lineSub := item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		items = append(items, domain.PurchaseOrderLineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
			Subtotal:  lineSub,
		})
		subtotal = subtotal.Add(lineSub)
	}

	po := domain.PurchaseOrder{
		ID:               xid.New("po"),
		SupplierID:       req.SupplierID,
		BranchID:         req.BranchID,
		ExpectedDelivery: expected,
		Subtotal:         subtotal,
		Total:            subtotal,
		Status:           status,
		CreatedAt:        time.Now().UTC(),
		Items:            items,
	}

	created, err := s.repo.CreatePurchaseOrder(ctx, po)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, created.BranchID, "po_create", "purchase_order", created.ID,
		fmt.Sprintf("supplier=%s,total=%s,status=%s", created.SupplierID, created.Total, created.Status))
	return domain.PurchaseOrderResponse{PurchaseOrder: *created}, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	po, err := s.repo.GetPurchaseOrderByID(ctx, purchaseOrderID)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	if err := s.requireSupplierOwnership(ctx, po.SupplierID); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	return domain.PurchaseOrderResponse{PurchaseOrder: *po}, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, branchID string, status string, limit int) (domain.PurchaseOrderListResponse, error) {
	supplierID := ""
	actor, _ := ActorFromContext(ctx)
	if actor.Role == domain.RoleSupplier {
		supplierID = actor.SupplierID
	}

	orders, err := s.repo.ListPurchaseOrders(ctx, supplierID, branchID, domain.PurchaseOrderStatus(status), limit)
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	return domain.PurchaseOrderListResponse{PurchaseOrders: orders}, nil
}

func (s *Service) SubmitPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	return s.advancePurchaseOrder(ctx, purchaseOrderID, domain.POSubmitted, "po_submit")
}

func (s *Service) ConfirmPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	return s.advancePurchaseOrder(ctx, purchaseOrderID, domain.POConfirmed, "po_confirm")
}

func (s *Service) ShipPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	return s.advancePurchaseOrder(ctx, purchaseOrderID, domain.POShipped, "po_ship")
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	return s.advancePurchaseOrder(ctx, purchaseOrderID, domain.POCancelled, "po_cancel")
}

// ReceivePurchaseOrder marks the purchase order Received; the store adds
// every line item into branch inventory in the same unit of work.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	actor, _ := ActorFromContext(ctx)
	if actor.Role == domain.RoleSupplier {
		// Goods are received by the branch, never by the supplier.
		return domain.PurchaseOrderResponse{}, store.ErrNotAuthorized
	}

	po, err := s.repo.ReceivePurchaseOrder(ctx, purchaseOrderID, time.Now().UTC())
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, po.BranchID, "po_receive", "purchase_order", po.ID, fmt.Sprintf("supplier=%s,items=%d", po.SupplierID, len(po.Items)))
	return domain.PurchaseOrderResponse{PurchaseOrder: *po}, nil
}

func (s *Service) advancePurchaseOrder(ctx context.Context, purchaseOrderID string, to domain.PurchaseOrderStatus, action string) (domain.PurchaseOrderResponse, error) {
	po, err := s.repo.GetPurchaseOrderByID(ctx, purchaseOrderID)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	if err := s.requireSupplierOwnership(ctx, po.SupplierID); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	updated, err := s.repo.SetPurchaseOrderStatus(ctx, purchaseOrderID, to, time.Now().UTC())
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, updated.BranchID, action, "purchase_order", updated.ID, fmt.Sprintf("status=%s", updated.Status))
	return domain.PurchaseOrderResponse{PurchaseOrder: *updated}, nil
}

func (s *Service) CreateShipment(ctx context.Context, req domain.ShipmentCreateRequest) (domain.ShipmentResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleSupplier {
		return domain.ShipmentResponse{}, store.ErrNotAuthorized
	}
	if req.BranchID == "" {
		return domain.ShipmentResponse{}, fmt.Errorf("%w: branch is required", store.ErrValidation)
	}

	var expected *time.Time
	if strings.TrimSpace(req.ExpectedArrival) != "" {
		parsed, err := time.Parse("2006-01-02", req.ExpectedArrival)
		if err != nil {
			return domain.ShipmentResponse{}, fmt.Errorf("%w: expected_arrival must be YYYY-MM-DD", store.ErrValidation)
		}
		expected = &parsed
	}

	if req.PurchaseOrderID != "" {
		po, err := s.repo.GetPurchaseOrderByID(ctx, req.PurchaseOrderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.ShipmentResponse{}, fmt.Errorf("%w: purchase order %s", store.ErrValidation, req.PurchaseOrderID)
			}
			return domain.ShipmentResponse{}, err
		}
		if po.SupplierID != actor.SupplierID {
			return domain.ShipmentResponse{}, store.ErrNotAuthorized
		}
	}

	shipment := domain.Shipment{
		ID:              xid.New("shp"),
		SupplierID:      actor.SupplierID,
		BranchID:        req.BranchID,
		PurchaseOrderID: req.PurchaseOrderID,
		ShipmentDate:    time.Now().UTC(),
		ExpectedArrival: expected,
		TrackingNumber:  strings.TrimSpace(req.TrackingNumber),
		Status:          domain.ShipmentPending,
	}

	created, err := s.repo.CreateShipment(ctx, shipment)
	if err != nil {
		return domain.ShipmentResponse{}, err
	}

	s.logAudit(ctx, created.BranchID, "shipment_create", "shipment", created.ID, fmt.Sprintf("supplier=%s", created.SupplierID))
	return domain.ShipmentResponse{Shipment: *created}, nil
}

func (s *Service) ListShipments(ctx context.Context, branchID string, status string, limit int) (domain.ShipmentListResponse, error) {
	supplierID := ""
	actor, _ := ActorFromContext(ctx)
	if actor.Role == domain.RoleSupplier {
		supplierID = actor.SupplierID
	}

	shipments, err := s.repo.ListShipments(ctx, supplierID, branchID, domain.ShipmentStatus(status), limit)
	if err != nil {
		return domain.ShipmentListResponse{}, err
	}
	return domain.ShipmentListResponse{Shipments: shipments}, nil
}

// UpdateShipment advances a shipment's status and optionally its tracking
// number. Only the owning supplier (or branch management) may touch it;
// the Delivered arrival stamp is write-once in the store.
func (s *Service) UpdateShipment(ctx context.Context, shipmentID string, req domain.ShipmentUpdateRequest) (domain.ShipmentResponse, error) {
	if !req.Status.Valid() {
		return domain.ShipmentResponse{}, fmt.Errorf("%w: unknown shipment status %q", store.ErrValidation, req.Status)
	}

	shipment, err := s.repo.GetShipmentByID(ctx, shipmentID)
	if err != nil {
		return domain.ShipmentResponse{}, err
	}
	if err := s.requireSupplierOwnership(ctx, shipment.SupplierID); err != nil {
		return domain.ShipmentResponse{}, err
	}

	updated, err := s.repo.UpdateShipment(ctx, shipmentID, req.Status, strings.TrimSpace(req.TrackingNumber), time.Now().UTC())
	if err != nil {
		return domain.ShipmentResponse{}, err
	}

	s.logAudit(ctx, updated.BranchID, "shipment_update", "shipment", updated.ID, fmt.Sprintf("status=%s", updated.Status))
	return domain.ShipmentResponse{Shipment: *updated}, nil
}

func (s *Service) SalesReport(ctx context.Context, branchID string, date string) (domain.SalesReport, error) {
	day, err := parseDay(date)
	if err != nil {
		return domain.SalesReport{}, err
	}
	return s.repo.GetSalesReport(ctx, branchID, day, day.Add(24*time.Hour))
}

func (s *Service) ListAuditLogs(ctx context.Context, branchID string, date string, limit int) ([]domain.AuditLog, error) {
	day, err := parseDay(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, branchID, day, day.Add(24*time.Hour), limit)
}

// requireSupplierOwnership rejects supplier actors touching another
// supplier's resource. Managers and staff pass through.
func (s *Service) requireSupplierOwnership(ctx context.Context, supplierID string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return store.ErrNotAuthorized
	}
	if actor.Role == domain.RoleSupplier && actor.SupplierID != supplierID {
		return fmt.Errorf("%w: supplier %s does not own this resource", store.ErrNotAuthorized, actor.SupplierID)
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, branchID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		BranchID:   branchID,
		ActorName:  actor.Username,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func normalizeItems(items []domain.OrderItemRequest) []domain.OrderItemRequest {
	agg := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 {
			continue
		}
		if _, seen := agg[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		agg[item.ProductID] += item.Quantity
	}

	normalized := make([]domain.OrderItemRequest, 0, len(agg))
	for _, id := range order {
		normalized = append(normalized, domain.OrderItemRequest{ProductID: id, Quantity: agg[id]})
	}
	return normalized
}

func parseDay(date string) (time.Time, error) {
	if strings.TrimSpace(date) == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
	}
	return day, nil
}

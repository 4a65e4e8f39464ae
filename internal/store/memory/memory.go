package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"retailops/backend/internal/domain"
	"retailops/backend/internal/store"
	"retailops/backend/internal/xid"
)

type inventoryKey struct {
	branchID  string
	productID string
}

type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	branches           map[string]domain.Branch
	suppliers          map[string]domain.Supplier
	customers          map[string]domain.Customer
	inventory          map[inventoryKey]domain.InventoryRecord
	ordersByID         map[string]domain.Order
	paymentsByOrderID  map[string]domain.Payment
	purchaseOrdersByID map[string]domain.PurchaseOrder
	shipmentsByID      map[string]domain.Shipment
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Passwords come from SEED_PASSWORD; a hardcoded dev default is used with
// a warning when it is unset. Production deployments use PostgreSQL via
// DATABASE_URL and never touch these accounts.
func seedUsers() map[string]domain.UserAccount {
	pwd := envOr("SEED_PASSWORD", "retail123")
	if os.Getenv("SEED_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_PASSWORD to override.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []domain.UserAccount{
		{Username: "manager", Role: domain.RoleManager},
		{Username: "staff", Role: domain.RoleStaff, EmployeeID: "emp-1"},
		{Username: "northsupply", Role: domain.RoleSupplier, SupplierID: "sup-north"},
		{Username: "pacifictrade", Role: domain.RoleSupplier, SupplierID: "sup-pacific"},
		{Username: "alice", Role: domain.RoleCustomer, CustomerID: "cust-alice"},
		{Username: "bob", Role: domain.RoleCustomer, CustomerID: "cust-bob"},
	} {
		u.Password = string(hash)
		u.Active = true
		u.CreatedAt = now
		users[u.Username] = u
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prod-espresso", SKU: "SKU-ESP-01", Name: "Espresso Machine", Category: "appliances", UnitPrice: dec("249.99"), CostPrice: dec("162.50"), Active: true},
		{ID: "prod-grinder", SKU: "SKU-GRN-01", Name: "Burr Grinder", Category: "appliances", UnitPrice: dec("89.00"), CostPrice: dec("51.00"), Active: true},
		{ID: "prod-kettle", SKU: "SKU-KTL-01", Name: "Gooseneck Kettle", Category: "kitchen", UnitPrice: dec("45.50"), CostPrice: dec("24.00"), Active: true},
		{ID: "prod-mug", SKU: "SKU-MUG-01", Name: "Ceramic Mug", Category: "kitchen", UnitPrice: dec("10.00"), CostPrice: dec("3.20"), Active: true},
		{ID: "prod-beans", SKU: "SKU-BNS-01", Name: "House Blend Beans 1kg", Category: "grocery", UnitPrice: dec("25.00"), CostPrice: dec("13.75"), Active: true},
		{ID: "prod-filter", SKU: "SKU-FLT-01", Name: "Paper Filters 100pk", Category: "grocery", UnitPrice: dec("6.75"), CostPrice: dec("2.10"), Active: true},
		{ID: "prod-scale", SKU: "SKU-SCL-01", Name: "Pocket Scale", Category: "kitchen", UnitPrice: dec("32.00"), CostPrice: dec("17.80"), Active: true},
		{ID: "prod-retired", SKU: "SKU-RTD-01", Name: "Retired Press", Category: "kitchen", UnitPrice: dec("19.99"), CostPrice: dec("9.00"), Active: false},
	}

	branches := []domain.Branch{
		{ID: "branch-downtown", Name: "Downtown", Location: "12 Main St"},
		{ID: "branch-harbor", Name: "Harborside", Location: "3 Pier Ave"},
	}

	suppliers := []domain.Supplier{
		{ID: "sup-north", Name: "North Supply Co", Phone: "+1-555-0101", Email: "orders@northsupply.example"},
		{ID: "sup-pacific", Name: "Pacific Trade Ltd", Phone: "+1-555-0188", Email: "sales@pacifictrade.example"},
	}

	customers := []domain.Customer{
		{ID: "cust-alice", Name: "Alice Moreno", Email: "alice@example.com", LifetimeSpend: dec("1250.00"), Tier: domain.TierSilver},
		{ID: "cust-bob", Name: "Bob Tanaka", Email: "bob@example.com", LifetimeSpend: dec("0"), Tier: domain.TierBronze},
		{ID: "cust-gold", Name: "Priya Nair", Email: "priya@example.com", LifetimeSpend: dec("6400.00"), Tier: domain.TierGold},
		{ID: "cust-platinum", Name: "Dana Wolfe", Email: "dana@example.com", LifetimeSpend: dec("15100.00"), Tier: domain.TierPlatinum},
	}

	productMap := make(map[string]domain.Product, len(products))
	inventory := make(map[inventoryKey]domain.InventoryRecord)
	now := time.Now().UTC()
	for _, p := range products {
		productMap[p.ID] = p
		for _, b := range branches {
			restocked := now
			inventory[inventoryKey{branchID: b.ID, productID: p.ID}] = domain.InventoryRecord{
				ProductID:       p.ID,
				BranchID:        b.ID,
				Quantity:        40,
				MinStock:        5,
				MaxStock:        80,
				LastRestockedAt: &restocked,
			}
		}
	}

	branchMap := make(map[string]domain.Branch, len(branches))
	for _, b := range branches {
		branchMap[b.ID] = b
	}
	supplierMap := make(map[string]domain.Supplier, len(suppliers))
	for _, sup := range suppliers {
		supplierMap[sup.ID] = sup
	}
	customerMap := make(map[string]domain.Customer, len(customers))
	for _, c := range customers {
		customerMap[c.ID] = c
	}

	return &Store{
		products:           productMap,
		branches:           branchMap,
		suppliers:          supplierMap,
		customers:          customerMap,
		inventory:          inventory,
		ordersByID:         make(map[string]domain.Order),
		paymentsByOrderID:  make(map[string]domain.Payment),
		purchaseOrdersByID: make(map[string]domain.PurchaseOrder),
		shipmentsByID:      make(map[string]domain.Shipment),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := p
	return &found, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" || !product.UnitPrice.IsPositive() {
		return nil, store.ErrValidation
	}
	if product.CostPrice.IsNegative() {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrValidation
	}
	product.Active = true
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		branches = append(branches, b)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return strings.Compare(a.Name, b.Name)
	})
	return branches, nil
}

func (s *Store) GetBranchByID(_ context.Context, branchID string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.branches[branchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := b
	return &found, nil
}

func (s *Store) GetCustomerByID(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := c
	return &found, nil
}

func (s *Store) AddCustomerSpend(_ context.Context, customerID string, amount decimal.Decimal, tier domain.MembershipTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount.IsNegative() {
		return store.ErrValidation
	}
	c, ok := s.customers[customerID]
	if !ok {
		return store.ErrNotFound
	}
	c.LifetimeSpend = c.LifetimeSpend.Add(amount)
	c.Tier = tier
	s.customers[customerID] = c
	return nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) GetSupplierByID(_ context.Context, supplierID string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sup, ok := s.suppliers[supplierID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := sup
	return &found, nil
}

func (s *Store) StockLevels(_ context.Context, branchID string) ([]domain.InventoryView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]domain.InventoryView, 0, len(s.inventory))
	for key, rec := range s.inventory {
		if branchID != "" && key.branchID != branchID {
			continue
		}
		p := s.products[key.productID]
		views = append(views, domain.InventoryView{
			ProductID:       rec.ProductID,
			ProductName:     p.Name,
			BranchID:        rec.BranchID,
			Quantity:        rec.Quantity,
			MinStock:        rec.MinStock,
			MaxStock:        rec.MaxStock,
			LowStock:        rec.Quantity <= rec.MinStock,
			LastRestockedAt: rec.LastRestockedAt,
		})
	}
	slices.SortFunc(views, func(a, b domain.InventoryView) int {
		if a.ProductName == b.ProductName {
			return strings.Compare(a.BranchID, b.BranchID)
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	return views, nil
}

func (s *Store) GetStockMap(_ context.Context, branchID string, productIDs []string) (map[string]domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.InventoryRecord, len(productIDs))
	for _, id := range productIDs {
		if rec, ok := s.inventory[inventoryKey{branchID: branchID, productID: id}]; ok {
			result[id] = rec
		}
	}
	return result, nil
}

func (s *Store) ReceiveStock(_ context.Context, branchID string, productID string, qty int, at time.Time) (*domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if branchID == "" || productID == "" || qty < 0 {
		return nil, store.ErrValidation
	}
	if _, ok := s.products[productID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.branches[branchID]; !ok {
		return nil, store.ErrNotFound
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	key := inventoryKey{branchID: branchID, productID: productID}
	rec, ok := s.inventory[key]
	if !ok {
		rec = domain.InventoryRecord{ProductID: productID, BranchID: branchID}
	}
	rec.Quantity += qty
	restocked := at
	rec.LastRestockedAt = &restocked
	s.inventory[key] = rec

	saved := rec
	return &saved, nil
}

func (s *Store) DecrementStock(_ context.Context, branchID string, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decrementLocked(branchID, productID, qty)
}

// decrementLocked is the conditional decrement: the quantity check and the
// write happen under the same lock hold, so concurrent callers can never
// drive stock negative. Callers must hold s.mu.
func (s *Store) decrementLocked(branchID string, productID string, qty int) error {
	if qty < 1 {
		return store.ErrValidation
	}
	key := inventoryKey{branchID: branchID, productID: productID}
	rec, ok := s.inventory[key]
	if !ok || rec.Quantity < qty {
		return fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
	}
	rec.Quantity -= qty
	s.inventory[key] = rec
	return nil
}

func (s *Store) PlaceOrder(_ context.Context, params store.PlaceOrderParams) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := params.Order
	if order.CustomerID == "" || order.BranchID == "" || len(order.Items) == 0 {
		return nil, store.ErrValidation
	}
	if _, ok := s.branches[order.BranchID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.customers[order.CustomerID]; !ok {
		return nil, store.ErrNotFound
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderPending
	}

	// Stage every decrement before touching the live map so a failure at
	// any line leaves the inventory untouched.
	staged := make(map[inventoryKey]domain.InventoryRecord, len(order.Items))
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		item := order.Items[i]
		if item.Quantity < 1 {
			return nil, store.ErrValidation
		}
		key := inventoryKey{branchID: order.BranchID, productID: item.ProductID}
		rec, ok := staged[key]
		if !ok {
			rec, ok = s.inventory[key]
			if !ok {
				return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, item.ProductID)
			}
		}
		if rec.Quantity < item.Quantity {
			return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, item.ProductID)
		}
		rec.Quantity -= item.Quantity
		staged[key] = rec
	}
	for key, rec := range staged {
		s.inventory[key] = rec
	}

	if params.Payment != nil {
		payment := *params.Payment
		if payment.ID == "" {
			payment.ID = xid.New("pay")
		}
		if payment.CreatedAt.IsZero() {
			payment.CreatedAt = order.CreatedAt
		}
		payment.OrderID = order.ID
		s.paymentsByOrderID[order.ID] = payment
		if payment.Status == domain.PaymentCompleted && order.Status == domain.OrderPending {
			order.Status = domain.OrderProcessing
		}
	}

	s.ordersByID[order.ID] = order
	saved := order
	return &saved, nil
}

func (s *Store) GetOrderByID(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := order
	return &found, nil
}

func (s *Store) ListOrders(_ context.Context, branchID string, customerID string, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	orders := make([]domain.Order, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if branchID != "" && order.BranchID != branchID {
			continue
		}
		if customerID != "" && order.CustomerID != customerID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, order)
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) SetOrderStatus(_ context.Context, orderID string, to domain.OrderStatus, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !to.Valid() {
		return nil, store.ErrValidation
	}
	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !order.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, order.Status, to)
	}
	order.Status = to
	s.ordersByID[orderID] = order

	if to == domain.OrderRefunded {
		if payment, ok := s.paymentsByOrderID[orderID]; ok && payment.Status == domain.PaymentCompleted {
			payment.Status = domain.PaymentRefunded
			s.paymentsByOrderID[orderID] = payment
		}
	}

	updated := order
	return &updated, nil
}

func (s *Store) HasDeliveredOrder(_ context.Context, customerID string, productID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, order := range s.ordersByID {
		if order.CustomerID != customerID || order.Status != domain.OrderDelivered {
			continue
		}
		for _, item := range order.Items {
			if item.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) GetPaymentByOrderID(_ context.Context, orderID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.paymentsByOrderID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := payment
	return &found, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.SupplierID == "" || po.BranchID == "" || len(po.Items) == 0 {
		return nil, store.ErrValidation
	}
	if _, ok := s.suppliers[po.SupplierID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.branches[po.BranchID]; !ok {
		return nil, store.ErrNotFound
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	if po.Status == "" {
		po.Status = domain.PODraft
	}
	if po.Status != domain.PODraft && po.Status != domain.POSubmitted {
		return nil, store.ErrValidation
	}
	for i := range po.Items {
		po.Items[i].PurchaseOrderID = po.ID
		item := po.Items[i]
		if item.ProductID == "" || item.Quantity < 1 || !item.UnitCost.IsPositive() {
			return nil, store.ErrValidation
		}
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	s.purchaseOrdersByID[po.ID] = po
	saved := po
	return &saved, nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrdersByID[purchaseOrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := po
	return &found, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, supplierID string, branchID string, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.PurchaseOrder, 0, len(s.purchaseOrdersByID))
	for _, po := range s.purchaseOrdersByID {
		if supplierID != "" && po.SupplierID != supplierID {
			continue
		}
		if branchID != "" && po.BranchID != branchID {
			continue
		}
		if status != "" && po.Status != status {
			continue
		}
		result = append(result, po)
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SetPurchaseOrderStatus(ctx context.Context, purchaseOrderID string, to domain.PurchaseOrderStatus, at time.Time) (*domain.PurchaseOrder, error) {
	if to == domain.POReceived {
		return s.ReceivePurchaseOrder(ctx, purchaseOrderID, at)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !to.Valid() {
		return nil, store.ErrValidation
	}
	po, ok := s.purchaseOrdersByID[purchaseOrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !po.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, po.Status, to)
	}
	po.Status = to
	s.purchaseOrdersByID[purchaseOrderID] = po

	updated := po
	return &updated, nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, purchaseOrderID string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at.IsZero() {
		at = time.Now().UTC()
	}
	po, ok := s.purchaseOrdersByID[purchaseOrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !po.Status.CanTransition(domain.POReceived) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, po.Status, domain.POReceived)
	}

	for _, item := range po.Items {
		key := inventoryKey{branchID: po.BranchID, productID: item.ProductID}
		rec, ok := s.inventory[key]
		if !ok {
			rec = domain.InventoryRecord{ProductID: item.ProductID, BranchID: po.BranchID}
		}
		rec.Quantity += item.Quantity
		restocked := at
		rec.LastRestockedAt = &restocked
		s.inventory[key] = rec
	}

	po.Status = domain.POReceived
	receivedAt := at
	po.ReceivedAt = &receivedAt
	s.purchaseOrdersByID[purchaseOrderID] = po

	updated := po
	return &updated, nil
}

func (s *Store) CreateShipment(_ context.Context, shipment domain.Shipment) (*domain.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if shipment.SupplierID == "" || shipment.BranchID == "" {
		return nil, store.ErrValidation
	}
	if _, ok := s.suppliers[shipment.SupplierID]; !ok {
		return nil, store.ErrNotFound
	}
	if shipment.PurchaseOrderID != "" {
		if _, ok := s.purchaseOrdersByID[shipment.PurchaseOrderID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	if shipment.ID == "" {
		shipment.ID = xid.New("shp")
	}
	if shipment.ShipmentDate.IsZero() {
		shipment.ShipmentDate = time.Now().UTC()
	}
	if shipment.Status == "" {
		shipment.Status = domain.ShipmentPending
	}
	if shipment.Status != domain.ShipmentPending {
		return nil, store.ErrValidation
	}

	s.shipmentsByID[shipment.ID] = shipment
	saved := shipment
	return &saved, nil
}

func (s *Store) GetShipmentByID(_ context.Context, shipmentID string) (*domain.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.shipmentsByID[shipmentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := sh
	return &found, nil
}

func (s *Store) ListShipments(_ context.Context, supplierID string, branchID string, status domain.ShipmentStatus, limit int) ([]domain.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.Shipment, 0, len(s.shipmentsByID))
	for _, sh := range s.shipmentsByID {
		if supplierID != "" && sh.SupplierID != supplierID {
			continue
		}
		if branchID != "" && sh.BranchID != branchID {
			continue
		}
		if status != "" && sh.Status != status {
			continue
		}
		result = append(result, sh)
	}
	slices.SortFunc(result, func(a, b domain.Shipment) int {
		return b.ShipmentDate.Compare(a.ShipmentDate)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpdateShipment(_ context.Context, shipmentID string, to domain.ShipmentStatus, trackingNumber string, at time.Time) (*domain.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !to.Valid() {
		return nil, store.ErrValidation
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	sh, ok := s.shipmentsByID[shipmentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if to != sh.Status && !sh.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, sh.Status, to)
	}

	sh.Status = to
	if trackingNumber != "" {
		sh.TrackingNumber = trackingNumber
	}
	// Delivered stamps the arrival once; repeats keep the first stamp.
	if to == domain.ShipmentDelivered && sh.ActualArrival == nil {
		arrived := at
		sh.ActualArrival = &arrived
	}
	s.shipmentsByID[shipmentID] = sh

	updated := sh
	return &updated, nil
}

func (s *Store) GetSalesReport(_ context.Context, branchID string, from time.Time, to time.Time) (domain.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.SalesReport{
		BranchID:      branchID,
		Date:          from.UTC().Format("2006-01-02"),
		GrossSales:    decimal.Zero,
		DiscountTotal: decimal.Zero,
		TaxTotal:      decimal.Zero,
		NetSales:      decimal.Zero,
	}
	byStatus := make(map[domain.OrderStatus]int64)
	for _, order := range s.ordersByID {
		if branchID != "" && order.BranchID != branchID {
			continue
		}
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		byStatus[order.Status]++
		if order.Status == domain.OrderCancelled || order.Status == domain.OrderRefunded {
			continue
		}
		report.Orders++
		report.GrossSales = report.GrossSales.Add(order.Subtotal)
		report.DiscountTotal = report.DiscountTotal.Add(order.DiscountAmount)
		report.TaxTotal = report.TaxTotal.Add(order.TaxAmount)
		report.NetSales = report.NetSales.Add(order.TotalAmount)
	}

	statuses := make([]domain.OrderStatus, 0, len(byStatus))
	for status := range byStatus {
		statuses = append(statuses, status)
	}
	slices.SortFunc(statuses, func(a, b domain.OrderStatus) int {
		return strings.Compare(string(a), string(b))
	})
	for _, status := range statuses {
		report.ByStatus = append(report.ByStatus, domain.SalesReportStatusRow{Status: status, Orders: byStatus[status]})
	}
	return report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 500
	}
	logs := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

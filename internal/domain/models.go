package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Active    bool            `json:"active"`
}

type Branch struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

type Supplier struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type Employee struct {
	ID       string `json:"id"`
	BranchID string `json:"branch_id"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

type Customer struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	LifetimeSpend decimal.Decimal `json:"lifetime_spend"`
	Tier          MembershipTier  `json:"tier"`
}

// InventoryRecord is the per-(product, branch) stock row. Quantity is
// mutated only through the store's decrement/receive operations and is
// never negative.
type InventoryRecord struct {
	ProductID       string     `json:"product_id"`
	BranchID        string     `json:"branch_id"`
	Quantity        int        `json:"quantity"`
	MinStock        int        `json:"min_stock"`
	MaxStock        int        `json:"max_stock"`
	LastRestockedAt *time.Time `json:"last_restocked_at,omitempty"`
}

type Order struct {
	ID              string          `json:"id"`
	CustomerID      string          `json:"customer_id"`
	BranchID        string          `json:"branch_id"`
	EmployeeID      string          `json:"employee_id,omitempty"`
	ShippingAddress string          `json:"shipping_address"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []OrderLineItem `json:"items"`
}

// OrderLineItem captures the catalog unit price at the time of sale; it
// is never recomputed afterwards.
type OrderLineItem struct {
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Payment struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Status    PaymentStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type PurchaseOrder struct {
	ID               string                  `json:"id"`
	SupplierID       string                  `json:"supplier_id"`
	BranchID         string                  `json:"branch_id"`
	ExpectedDelivery *time.Time              `json:"expected_delivery,omitempty"`
	Subtotal         decimal.Decimal         `json:"subtotal"`
	Total            decimal.Decimal         `json:"total"`
	Status           PurchaseOrderStatus     `json:"status"`
	CreatedAt        time.Time               `json:"created_at"`
	ReceivedAt       *time.Time              `json:"received_at,omitempty"`
	Items            []PurchaseOrderLineItem `json:"items"`
}

type PurchaseOrderLineItem struct {
	PurchaseOrderID string          `json:"purchase_order_id"`
	ProductID       string          `json:"product_id"`
	Quantity        int             `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	Subtotal        decimal.Decimal `json:"subtotal"`
}

type Shipment struct {
	ID              string         `json:"id"`
	SupplierID      string         `json:"supplier_id"`
	BranchID        string         `json:"branch_id"`
	PurchaseOrderID string         `json:"purchase_order_id,omitempty"`
	ShipmentDate    time.Time      `json:"shipment_date"`
	ExpectedArrival *time.Time     `json:"expected_arrival,omitempty"`
	ActualArrival   *time.Time     `json:"actual_arrival,omitempty"`
	TrackingNumber  string         `json:"tracking_number,omitempty"`
	Status          ShipmentStatus `json:"status"`
}

// Cart is the explicit per-customer cart aggregate. Checkout consumes a
// cart snapshot rather than ambient session state.
type Cart struct {
	CustomerID string     `json:"customer_id"`
	Items      []CartItem `json:"items"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ProductCreateRequest struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CostPrice decimal.Decimal `json:"cost_price"`
}

type ProductResponse struct {
	Product Product `json:"product"`
}

type PaymentResponse struct {
	Payment Payment `json:"payment"`
}

// StockAdjustmentRequest records a manual stock deduction, e.g. damaged
// or lost goods found during a count.
type StockAdjustmentRequest struct {
	ProductID string `json:"product_id"`
	BranchID  string `json:"branch_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason,omitempty"`
}

type OrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	CustomerID      string             `json:"customer_id"`
	BranchID        string             `json:"branch_id"`
	EmployeeID      string             `json:"employee_id,omitempty"`
	ShippingAddress string             `json:"shipping_address"`
	PaymentMethod   string             `json:"payment_method,omitempty"`
	Items           []OrderItemRequest `json:"items"`
}

type OrderResponse struct {
	Order Order `json:"order"`
}

type OrderListResponse struct {
	Orders []Order `json:"orders"`
}

type SetOrderStatusRequest struct {
	Status OrderStatus `json:"status"`
}

type CheckoutRequest struct {
	BranchID        string `json:"branch_id"`
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method,omitempty"`
}

type CartAddRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CartResponse struct {
	Cart Cart `json:"cart"`
}

type PurchaseOrderItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID       string                     `json:"supplier_id,omitempty"`
	BranchID         string                     `json:"branch_id"`
	ExpectedDelivery string                     `json:"expected_delivery,omitempty"`
	Submit           bool                       `json:"submit"`
	Items            []PurchaseOrderItemRequest `json:"items"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
}

type PurchaseOrderListResponse struct {
	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
}

type ShipmentCreateRequest struct {
	BranchID        string `json:"branch_id"`
	PurchaseOrderID string `json:"purchase_order_id,omitempty"`
	ExpectedArrival string `json:"expected_arrival,omitempty"`
	TrackingNumber  string `json:"tracking_number,omitempty"`
}

type ShipmentUpdateRequest struct {
	Status         ShipmentStatus `json:"status"`
	TrackingNumber string         `json:"tracking_number,omitempty"`
}

type ShipmentResponse struct {
	Shipment Shipment `json:"shipment"`
}

type ShipmentListResponse struct {
	Shipments []Shipment `json:"shipments"`
}

// InventoryView is the read model behind the staff inventory page:
// current quantity plus a low-stock flag against the min threshold.
type InventoryView struct {
	ProductID       string     `json:"product_id"`
	ProductName     string     `json:"product_name"`
	BranchID        string     `json:"branch_id"`
	Quantity        int        `json:"quantity"`
	MinStock        int        `json:"min_stock"`
	MaxStock        int        `json:"max_stock"`
	LowStock        bool       `json:"low_stock"`
	LastRestockedAt *time.Time `json:"last_restocked_at,omitempty"`
}

type InventoryListResponse struct {
	Records []InventoryView `json:"records"`
}

type ReceiveStockRequest struct {
	ProductID string `json:"product_id"`
	BranchID  string `json:"branch_id"`
	Quantity  int    `json:"quantity"`
}

type ReorderSuggestion struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	BranchID     string `json:"branch_id"`
	Quantity     int    `json:"quantity"`
	MinStock     int    `json:"min_stock"`
	SuggestedQty int    `json:"suggested_qty"`
}

type ReorderSuggestionResponse struct {
	BranchID    string              `json:"branch_id"`
	GeneratedAt string              `json:"generated_at"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
}

type SalesReport struct {
	BranchID      string                 `json:"branch_id"`
	Date          string                 `json:"date"`
	Orders        int64                  `json:"orders"`
	GrossSales    decimal.Decimal        `json:"gross_sales"`
	DiscountTotal decimal.Decimal        `json:"discount_total"`
	TaxTotal      decimal.Decimal        `json:"tax_total"`
	NetSales      decimal.Decimal        `json:"net_sales"`
	ByStatus      []SalesReportStatusRow `json:"by_status"`
}

type SalesReportStatusRow struct {
	Status OrderStatus `json:"status"`
	Orders int64       `json:"orders"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	BranchID   string    `json:"branch_id"`
	ActorName  string    `json:"actor_name"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type RegisterStaffRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	EmployeeID string `json:"employee_id,omitempty"`
}

type UserSummary struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor identifies the authenticated caller. Exactly one of SupplierID,
// CustomerID or EmployeeID is set depending on role, and drives the
// ownership checks in the service layer.
type Actor struct {
	Username   string
	Role       string
	SupplierID string
	CustomerID string
	EmployeeID string
}

// UserAccount is the persistence model for login credentials. Password
// holds a bcrypt hash.
type UserAccount struct {
	Username   string
	Password   string
	Role       string
	SupplierID string
	CustomerID string
	EmployeeID string
	Active     bool
	CreatedAt  time.Time
}

const (
	RoleManager  = "manager"
	RoleStaff    = "staff"
	RoleSupplier = "supplier"
	RoleCustomer = "customer"
)

var PaymentMethods = []string{"Cash", "Credit Card", "Debit Card", "PayPal", "Bank Transfer"}

func IsPaymentMethod(method string) bool {
	for _, m := range PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

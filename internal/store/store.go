package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"retailops/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotAuthorized     = errors.New("not authorized")
)

// PlaceOrderParams is the fully priced order handed to the store. The
// store persists the order, its line items and the optional payment, and
// decrements stock for every line in one atomic unit; any failure leaves
// nothing behind.
type PlaceOrderParams struct {
	Order   domain.Order
	Payment *domain.Payment
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	ListBranches(ctx context.Context) ([]domain.Branch, error)
	GetBranchByID(ctx context.Context, branchID string) (*domain.Branch, error)

	GetCustomerByID(ctx context.Context, customerID string) (*domain.Customer, error)
	AddCustomerSpend(ctx context.Context, customerID string, amount decimal.Decimal, tier domain.MembershipTier) error

	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplierByID(ctx context.Context, supplierID string) (*domain.Supplier, error)

	StockLevels(ctx context.Context, branchID string) ([]domain.InventoryView, error)
	GetStockMap(ctx context.Context, branchID string, productIDs []string) (map[string]domain.InventoryRecord, error)
	ReceiveStock(ctx context.Context, branchID string, productID string, qty int, at time.Time) (*domain.InventoryRecord, error)
	DecrementStock(ctx context.Context, branchID string, productID string, qty int) error

	PlaceOrder(ctx context.Context, params PlaceOrderParams) (*domain.Order, error)
	GetOrderByID(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, branchID string, customerID string, status domain.OrderStatus, limit int) ([]domain.Order, error)
	SetOrderStatus(ctx context.Context, orderID string, to domain.OrderStatus, at time.Time) (*domain.Order, error)
	HasDeliveredOrder(ctx context.Context, customerID string, productID string) (bool, error)

	GetPaymentByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, supplierID string, branchID string, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error)
	SetPurchaseOrderStatus(ctx context.Context, purchaseOrderID string, to domain.PurchaseOrderStatus, at time.Time) (*domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, at time.Time) (*domain.PurchaseOrder, error)

	CreateShipment(ctx context.Context, shipment domain.Shipment) (*domain.Shipment, error)
	GetShipmentByID(ctx context.Context, shipmentID string) (*domain.Shipment, error)
	ListShipments(ctx context.Context, supplierID string, branchID string, status domain.ShipmentStatus, limit int) ([]domain.Shipment, error)
	UpdateShipment(ctx context.Context, shipmentID string, to domain.ShipmentStatus, trackingNumber string, at time.Time) (*domain.Shipment, error)

	GetSalesReport(ctx context.Context, branchID string, from time.Time, to time.Time) (domain.SalesReport, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"retailops/backend/internal/domain"
	"retailops/backend/internal/store"
	"retailops/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, unit_price, cost_price, active
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.UnitPrice, &p.CostPrice, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, category, unit_price, cost_price, active
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.UnitPrice, &p.CostPrice, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	ids := uniqueIDs(productIDs)
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, unit_price, cost_price, active
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.UnitPrice, &p.CostPrice, &p.Active); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || !product.UnitPrice.IsPositive() {
		return nil, store.ErrValidation
	}
	if product.CostPrice.IsNegative() {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, unit_price, cost_price, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
	`, product.ID, product.SKU, product.Name, product.Category, product.UnitPrice, product.CostPrice, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, location
		FROM branches
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 16)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Location); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) GetBranchByID(ctx context.Context, branchID string) (*domain.Branch, error) {
	var b domain.Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, location
		FROM branches
		WHERE id = $1
	`, branchID).Scan(&b.ID, &b.Name, &b.Location)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, lifetime_spend, tier
		FROM customers
		WHERE id = $1
	`, customerID).Scan(&c.ID, &c.Name, &c.Email, &c.LifetimeSpend, &c.Tier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) AddCustomerSpend(ctx context.Context, customerID string, amount decimal.Decimal, tier domain.MembershipTier) error {
	if amount.IsNegative() {
		return store.ErrValidation
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET lifetime_spend = lifetime_spend + $2, tier = $3, updated_at = now()
		WHERE id = $1
	`, customerID, amount, tier)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email
		FROM suppliers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Email); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) GetSupplierByID(ctx context.Context, supplierID string) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email
		FROM suppliers
		WHERE id = $1
	`, supplierID).Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sup, nil
}

func (s *Store) StockLevels(ctx context.Context, branchID string) ([]domain.InventoryView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.product_id, p.name, i.branch_id, i.quantity, i.min_stock, i.max_stock, i.last_restocked_at
		FROM inventory i
		JOIN products p ON p.id = i.product_id
		WHERE ($1 = '' OR i.branch_id = $1)
		ORDER BY p.name ASC, i.branch_id ASC
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.InventoryView, 0, 128)
	for rows.Next() {
		var v domain.InventoryView
		var restocked sql.NullTime
		if err := rows.Scan(&v.ProductID, &v.ProductName, &v.BranchID, &v.Quantity, &v.MinStock, &v.MaxStock, &restocked); err != nil {
			return nil, err
		}
		if restocked.Valid {
			at := restocked.Time.UTC()
			v.LastRestockedAt = &at
		}
		v.LowStock = v.Quantity <= v.MinStock
		records = append(records, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) GetStockMap(ctx context.Context, branchID string, productIDs []string) (map[string]domain.InventoryRecord, error) {
	ids := uniqueIDs(productIDs)
	result := make(map[string]domain.InventoryRecord, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, branch_id, quantity, min_stock, max_stock, last_restocked_at
		FROM inventory
		WHERE branch_id = $1 AND product_id = ANY($2)
	`, branchID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec domain.InventoryRecord
		var restocked sql.NullTime
		if err := rows.Scan(&rec.ProductID, &rec.BranchID, &rec.Quantity, &rec.MinStock, &rec.MaxStock, &restocked); err != nil {
			return nil, err
		}
		if restocked.Valid {
			at := restocked.Time.UTC()
			rec.LastRestockedAt = &at
		}
		result[rec.ProductID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ReceiveStock(ctx context.Context, branchID string, productID string, qty int, at time.Time) (*domain.InventoryRecord, error) {
	if branchID == "" || productID == "" || qty < 0 {
		return nil, store.ErrValidation
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var rec domain.InventoryRecord
	var restocked sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO inventory (product_id, branch_id, quantity, min_stock, max_stock, last_restocked_at, updated_at)
		VALUES ($1,$2,$3,0,0,$4,now())
		ON CONFLICT (product_id, branch_id)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity,
			last_restocked_at = EXCLUDED.last_restocked_at,
			updated_at = now()
		RETURNING product_id, branch_id, quantity, min_stock, max_stock, last_restocked_at
	`, productID, branchID, qty, at).Scan(&rec.ProductID, &rec.BranchID, &rec.Quantity, &rec.MinStock, &rec.MaxStock, &restocked)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if restocked.Valid {
		t := restocked.Time.UTC()
		rec.LastRestockedAt = &t
	}
	return &rec, nil
}

// DecrementStock subtracts qty in one conditional statement. The quantity
// guard in the WHERE clause is what keeps stock from going negative under
// concurrent checkouts; there is deliberately no separate read.
func (s *Store) DecrementStock(ctx context.Context, branchID string, productID string, qty int) error {
	if qty < 1 {
		return store.ErrValidation
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - $1, updated_at = now()
		WHERE branch_id = $2 AND product_id = $3 AND quantity >= $1
	`, qty, branchID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
	}
	return nil
}

func (s *Store) PlaceOrder(ctx context.Context, params store.PlaceOrderParams) (*domain.Order, error) {
	order := params.Order
	if order.CustomerID == "" || order.BranchID == "" || len(order.Items) == 0 {
		return nil, store.ErrValidation
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_id, branch_id, employee_id, shipping_address,
			subtotal, discount_amount, tax_amount, total_amount, status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
	`, order.ID, order.CustomerID, order.BranchID, nullIfEmpty(order.EmployeeID), order.ShippingAddress,
		order.Subtotal, order.DiscountAmount, order.TaxAmount, order.TotalAmount, order.Status, order.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		item := order.Items[i]
		if item.Quantity < 1 {
			return nil, store.ErrValidation
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5)
		`, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal)
		if err != nil {
			return nil, err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE inventory
			SET quantity = quantity - $1, updated_at = now()
			WHERE branch_id = $2 AND product_id = $3 AND quantity >= $1
		`, item.Quantity, order.BranchID, item.ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, item.ProductID)
		}
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
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, order_id, amount, method, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, payment.ID, payment.OrderID, payment.Amount, payment.Method, payment.Status, payment.CreatedAt)
		if err != nil {
			return nil, err
		}

		// Payment capture moves a fresh order straight to Processing.
		if payment.Status == domain.PaymentCompleted && order.Status == domain.OrderPending {
			order.Status = domain.OrderProcessing
			_, err := tx.ExecContext(ctx, `
				UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
			`, order.ID, order.Status)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	saved := order
	return &saved, nil
}

func (s *Store) GetOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	var employeeID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, branch_id, employee_id, shipping_address,
			subtotal, discount_amount, tax_amount, total_amount, status, created_at
		FROM orders
		WHERE id = $1
	`, orderID).Scan(
		&order.ID,
		&order.CustomerID,
		&order.BranchID,
		&employeeID,
		&order.ShippingAddress,
		&order.Subtotal,
		&order.DiscountAmount,
		&order.TaxAmount,
		&order.TotalAmount,
		&order.Status,
		&order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	if employeeID.Valid {
		order.EmployeeID = employeeID.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, unit_price, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, order.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderLineItem, 0, 8)
	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, branchID string, customerID string, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, branch_id, employee_id, shipping_address,
			subtotal, discount_amount, tax_amount, total_amount, status, created_at
		FROM orders
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR customer_id = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`, branchID, customerID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Order, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var order domain.Order
		var employeeID sql.NullString
		if err := rows.Scan(
			&order.ID,
			&order.CustomerID,
			&order.BranchID,
			&employeeID,
			&order.ShippingAddress,
			&order.Subtotal,
			&order.DiscountAmount,
			&order.TaxAmount,
			&order.TotalAmount,
			&order.Status,
			&order.CreatedAt,
		); err != nil {
			return nil, err
		}
		order.CreatedAt = order.CreatedAt.UTC()
		if employeeID.Valid {
			order.EmployeeID = employeeID.String
		}
		result = append(result, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, unit_price, subtotal
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemMap := make(map[string][]domain.OrderLineItem, len(ids))
	for itemRows.Next() {
		var item domain.OrderLineItem
		if err := itemRows.Scan(&item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		itemMap[item.OrderID] = append(itemMap[item.OrderID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		result[i].Items = itemMap[result[i].ID]
	}
	return result, nil
}

func (s *Store) SetOrderStatus(ctx context.Context, orderID string, to domain.OrderStatus, at time.Time) (*domain.Order, error) {
	if !to.Valid() {
		return nil, store.ErrValidation
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.OrderStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, orderID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !current.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, to)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1
	`, orderID, to, at)
	if err != nil {
		return nil, err
	}

	// A refunded order refunds its captured payment in the same unit.
	if to == domain.OrderRefunded {
		_, err = tx.ExecContext(ctx, `
			UPDATE payments SET status = $2 WHERE order_id = $1 AND status = $3
		`, orderID, domain.PaymentRefunded, domain.PaymentCompleted)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrderByID(ctx, orderID)
}

func (s *Store) HasDeliveredOrder(ctx context.Context, customerID string, productID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			WHERE o.customer_id = $1 AND oi.product_id = $2 AND o.status = $3
		)
	`, customerID, productID, domain.OrderDelivered).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	var p domain.Payment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, amount, method, status, created_at
		FROM payments
		WHERE order_id = $1
	`, orderID).Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.SupplierID == "" || po.BranchID == "" || len(po.Items) == 0 {
		return nil, store.ErrValidation
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier_id, branch_id, expected_delivery, subtotal, total, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, po.ID, po.SupplierID, po.BranchID, nullDate(po.ExpectedDelivery), po.Subtotal, po.Total, po.Status, po.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for i := range po.Items {
		po.Items[i].PurchaseOrderID = po.ID
		item := po.Items[i]
		if item.ProductID == "" || item.Quantity < 1 || !item.UnitCost.IsPositive() {
			return nil, store.ErrValidation
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, product_id, quantity, unit_cost, subtotal)
			VALUES ($1,$2,$3,$4,$5)
		`, item.PurchaseOrderID, item.ProductID, item.Quantity, item.UnitCost, item.Subtotal)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := po
	return &saved, nil
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, branch_id, expected_delivery, subtotal, total, status, created_at, received_at
		FROM purchase_orders
		WHERE id = $1
	`, purchaseOrderID))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT purchase_order_id, product_id, quantity, unit_cost, subtotal
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id ASC
	`, po.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderLineItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderLineItem
		if err := rows.Scan(&item.PurchaseOrderID, &item.ProductID, &item.Quantity, &item.UnitCost, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	po.Items = items
	return po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, supplierID string, branchID string, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, branch_id, expected_delivery, subtotal, total, status, created_at, received_at
		FROM purchase_orders
		WHERE ($1 = '' OR supplier_id = $1)
			AND ($2 = '' OR branch_id = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`, supplierID, branchID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PurchaseOrder, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrderRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT purchase_order_id, product_id, quantity, unit_cost, subtotal
		FROM purchase_order_items
		WHERE purchase_order_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemMap := make(map[string][]domain.PurchaseOrderLineItem, len(ids))
	for itemRows.Next() {
		var item domain.PurchaseOrderLineItem
		if err := itemRows.Scan(&item.PurchaseOrderID, &item.ProductID, &item.Quantity, &item.UnitCost, &item.Subtotal); err != nil {
			return nil, err
		}
		itemMap[item.PurchaseOrderID] = append(itemMap[item.PurchaseOrderID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		result[i].Items = itemMap[result[i].ID]
	}
	return result, nil
}

func (s *Store) SetPurchaseOrderStatus(ctx context.Context, purchaseOrderID string, to domain.PurchaseOrderStatus, at time.Time) (*domain.PurchaseOrder, error) {
	if !to.Valid() {
		return nil, store.ErrValidation
	}
	if to == domain.POReceived {
		// receiving has its own path so that stock lands in the same unit
		return s.ReceivePurchaseOrder(ctx, purchaseOrderID, at)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.PurchaseOrderStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM purchase_orders WHERE id = $1 FOR UPDATE
	`, purchaseOrderID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !current.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, to)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2, updated_at = $3 WHERE id = $1
	`, purchaseOrderID, to, at)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetPurchaseOrderByID(ctx, purchaseOrderID)
}

// ReceivePurchaseOrder moves the purchase order to Received and adds every
// line item's quantity to branch inventory in one serializable unit.
func (s *Store) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, at time.Time) (*domain.PurchaseOrder, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	po, err := scanPurchaseOrder(tx.QueryRowContext(ctx, `
		SELECT id, supplier_id, branch_id, expected_delivery, subtotal, total, status, created_at, received_at
		FROM purchase_orders
		WHERE id = $1
		FOR UPDATE
	`, purchaseOrderID))
	if err != nil {
		return nil, err
	}
	if !po.Status.CanTransition(domain.POReceived) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, po.Status, domain.POReceived)
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT purchase_order_id, product_id, quantity, unit_cost, subtotal
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id ASC
	`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	items := make([]domain.PurchaseOrderLineItem, 0, 8)
	for itemRows.Next() {
		var item domain.PurchaseOrderLineItem
		if err := itemRows.Scan(&item.PurchaseOrderID, &item.ProductID, &item.Quantity, &item.UnitCost, &item.Subtotal); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()
	if len(items) == 0 {
		return nil, store.ErrValidation
	}
	po.Items = items

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory (product_id, branch_id, quantity, min_stock, max_stock, last_restocked_at, updated_at)
			VALUES ($1,$2,$3,0,0,$4,now())
			ON CONFLICT (product_id, branch_id)
			DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity,
				last_restocked_at = EXCLUDED.last_restocked_at,
				updated_at = now()
		`, item.ProductID, po.BranchID, item.Quantity, at)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2, received_at = $3, updated_at = $3 WHERE id = $1
	`, purchaseOrderID, domain.POReceived, at)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	po.Status = domain.POReceived
	receivedAt := at
	po.ReceivedAt = &receivedAt
	return po, nil
}

func (s *Store) CreateShipment(ctx context.Context, shipment domain.Shipment) (*domain.Shipment, error) {
	if shipment.SupplierID == "" || shipment.BranchID == "" {
		return nil, store.ErrValidation
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shipments (
			id, supplier_id, branch_id, purchase_order_id, shipment_date,
			expected_arrival, actual_arrival, tracking_number, status, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, shipment.ID, shipment.SupplierID, shipment.BranchID, nullIfEmpty(shipment.PurchaseOrderID),
		shipment.ShipmentDate, nullDate(shipment.ExpectedArrival), nullTime(shipment.ActualArrival),
		nullIfEmpty(shipment.TrackingNumber), shipment.Status)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	saved := shipment
	return &saved, nil
}

func (s *Store) GetShipmentByID(ctx context.Context, shipmentID string) (*domain.Shipment, error) {
	return scanShipment(s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, branch_id, purchase_order_id, shipment_date,
			expected_arrival, actual_arrival, tracking_number, status
		FROM shipments
		WHERE id = $1
	`, shipmentID))
}

func (s *Store) ListShipments(ctx context.Context, supplierID string, branchID string, status domain.ShipmentStatus, limit int) ([]domain.Shipment, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, branch_id, purchase_order_id, shipment_date,
			expected_arrival, actual_arrival, tracking_number, status
		FROM shipments
		WHERE ($1 = '' OR supplier_id = $1)
			AND ($2 = '' OR branch_id = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY shipment_date DESC
		LIMIT $4
	`, supplierID, branchID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Shipment, 0, limit)
	for rows.Next() {
		sh, err := scanShipmentRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateShipment advances the shipment status and optionally replaces the
// tracking number. The CASE on actual_arrival makes the Delivered stamp
// write-once: a repeated Delivered update never moves an arrival date that
// is already set.
func (s *Store) UpdateShipment(ctx context.Context, shipmentID string, to domain.ShipmentStatus, trackingNumber string, at time.Time) (*domain.Shipment, error) {
	if !to.Valid() {
		return nil, store.ErrValidation
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.ShipmentStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM shipments WHERE id = $1 FOR UPDATE
	`, shipmentID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if to != current && !current.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, to)
	}

	if to == domain.ShipmentDelivered {
		_, err = tx.ExecContext(ctx, `
			UPDATE shipments
			SET status = $2,
				actual_arrival = CASE WHEN actual_arrival IS NULL THEN $3 ELSE actual_arrival END,
				tracking_number = COALESCE(NULLIF($4, ''), tracking_number),
				updated_at = now()
			WHERE id = $1
		`, shipmentID, to, at, trackingNumber)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE shipments
			SET status = $2,
				tracking_number = COALESCE(NULLIF($3, ''), tracking_number),
				updated_at = now()
			WHERE id = $1
		`, shipmentID, to, trackingNumber)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetShipmentByID(ctx, shipmentID)
}

func (s *Store) GetSalesReport(ctx context.Context, branchID string, from time.Time, to time.Time) (domain.SalesReport, error) {
	report := domain.SalesReport{
		BranchID:      branchID,
		Date:          from.UTC().Format("2006-01-02"),
		GrossSales:    decimal.Zero,
		DiscountTotal: decimal.Zero,
		TaxTotal:      decimal.Zero,
		NetSales:      decimal.Zero,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(subtotal), 0),
			COALESCE(SUM(discount_amount), 0),
			COALESCE(SUM(tax_amount), 0),
			COALESCE(SUM(total_amount), 0)
		FROM orders
		WHERE ($1 = '' OR branch_id = $1)
			AND created_at >= $2 AND created_at < $3
			AND status NOT IN ($4, $5)
	`, branchID, from, to, domain.OrderCancelled, domain.OrderRefunded).Scan(
		&report.Orders,
		&report.GrossSales,
		&report.DiscountTotal,
		&report.TaxTotal,
		&report.NetSales,
	)
	if err != nil {
		return report, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM orders
		WHERE ($1 = '' OR branch_id = $1)
			AND created_at >= $2 AND created_at < $3
		GROUP BY status
		ORDER BY status ASC
	`, branchID, from, to)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		var row domain.SalesReportStatusRow
		if err := rows.Scan(&row.Status, &row.Orders); err != nil {
			return report, err
		}
		report.ByStatus = append(report.ByStatus, row)
	}
	if err := rows.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, branch_id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, nullIfEmpty(entry.BranchID), entry.ActorName, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(branch_id, ''), actor_name, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR branch_id = $1)
			AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, branchID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.BranchID, &entry.ActorName, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	var user domain.UserAccount
	var supplierID, customerID, employeeID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, supplier_id, customer_id, employee_id, active, created_at
		FROM app_users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &supplierID, &customerID, &employeeID, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	if supplierID.Valid {
		user.SupplierID = supplierID.String
	}
	if customerID.Valid {
		user.CustomerID = customerID.String
	}
	if employeeID.Valid {
		user.EmployeeID = employeeID.String
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, supplier_id, customer_id, employee_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, user.Username, user.Password, user.Role, nullIfEmpty(user.SupplierID),
		nullIfEmpty(user.CustomerID), nullIfEmpty(user.EmployeeID), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchaseOrder(row rowScanner) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrderRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return po, nil
}

func scanPurchaseOrderRows(row rowScanner) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var expected, received sql.NullTime
	err := row.Scan(
		&po.ID,
		&po.SupplierID,
		&po.BranchID,
		&expected,
		&po.Subtotal,
		&po.Total,
		&po.Status,
		&po.CreatedAt,
		&received,
	)
	if err != nil {
		return nil, err
	}
	po.CreatedAt = po.CreatedAt.UTC()
	if expected.Valid {
		at := expected.Time.UTC()
		po.ExpectedDelivery = &at
	}
	if received.Valid {
		at := received.Time.UTC()
		po.ReceivedAt = &at
	}
	return &po, nil
}

func scanShipment(row rowScanner) (*domain.Shipment, error) {
	sh, err := scanShipmentRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sh, nil
}

func scanShipmentRows(row rowScanner) (*domain.Shipment, error) {
	var sh domain.Shipment
	var poID, tracking sql.NullString
	var expected, actual sql.NullTime
	err := row.Scan(
		&sh.ID,
		&sh.SupplierID,
		&sh.BranchID,
		&poID,
		&sh.ShipmentDate,
		&expected,
		&actual,
		&tracking,
		&sh.Status,
	)
	if err != nil {
		return nil, err
	}
	sh.ShipmentDate = sh.ShipmentDate.UTC()
	if poID.Valid {
		sh.PurchaseOrderID = poID.String
	}
	if tracking.Valid {
		sh.TrackingNumber = tracking.String
	}
	if expected.Valid {
		at := expected.Time.UTC()
		sh.ExpectedArrival = &at
	}
	if actual.Valid {
		at := actual.Time.UTC()
		sh.ActualArrival = &at
	}
	return &sh, nil
}

func uniqueIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}

	unique := make([]string, 0, len(set))
	for id := range set {
		unique = append(unique, id)
	}
	sort.Strings(unique)
	return unique
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return nowDateUTC(*val)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

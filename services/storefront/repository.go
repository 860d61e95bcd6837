package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the PostgreSQL store for users, products, orders and payments.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS roles (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS users (
	id SERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	role_id INTEGER NOT NULL REFERENCES roles(id),
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS products (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	price BIGINT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	stock INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
	id SERIAL PRIMARY KEY,
	order_id TEXT NOT NULL UNIQUE,
	customer_id INTEGER NOT NULL REFERENCES users(id),
	product_id INTEGER NOT NULL REFERENCES products(id),
	quantity INTEGER NOT NULL,
	total_amount BIGINT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	shipping_name TEXT NOT NULL DEFAULT '',
	shipping_phone TEXT NOT NULL DEFAULT '',
	shipping_address TEXT NOT NULL DEFAULT '',
	shipping_city TEXT NOT NULL DEFAULT '',
	shipping_postal_code TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS payments (
	id SERIAL PRIMARY KEY,
	order_id TEXT NOT NULL UNIQUE REFERENCES transactions(order_id),
	gross_amount BIGINT NOT NULL DEFAULT 0,
	payment_type TEXT NOT NULL DEFAULT '',
	transaction_status TEXT NOT NULL DEFAULT '',
	fraud_status TEXT NOT NULL DEFAULT '',
	status_message TEXT NOT NULL DEFAULT '',
	midtrans_transaction_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// InitSchema creates the tables if missing and seeds the role vocabulary.
func (r *Repository) InitSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO roles (name) VALUES ($1), ($2), ($3) ON CONFLICT (name) DO NOTHING`,
		RoleAdmin, RoleSales, RoleCustomer)
	if err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	return nil
}

// CreateOrder persists a pending order. The insert is idempotent on order_id: a
// replayed submission with the same id is a no-op, not an error. Stock is checked
// but not reserved; it is decremented only when the payment settles.
func (r *Repository) CreateOrder(ctx context.Context, order *Order) error {
	var stock int
	err := r.pool.QueryRow(ctx,
		`SELECT stock FROM products WHERE id = $1`, order.ProductID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("product %d does not exist", order.ProductID)
	}
	if err != nil {
		return fmt.Errorf("check product stock: %w", err)
	}
	if stock < order.Quantity {
		return fmt.Errorf("%w: %d available, %d requested", ErrOutOfStock, stock, order.Quantity)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO transactions
			(order_id, customer_id, product_id, quantity, total_amount, status,
			 shipping_name, shipping_phone, shipping_address, shipping_city, shipping_postal_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (order_id) DO NOTHING`,
		order.ID, order.CustomerID, order.ProductID, order.Quantity, order.TotalAmount, order.Status,
		order.Shipping.FullName, order.Shipping.Phone, order.Shipping.Address,
		order.Shipping.City, order.Shipping.PostalCode)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrder loads one order, joined with its product name.
func (r *Repository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT t.order_id, t.customer_id, t.product_id, p.name, t.quantity, t.total_amount, t.status,
		       t.shipping_name, t.shipping_phone, t.shipping_address, t.shipping_city, t.shipping_postal_code,
		       t.created_at, t.updated_at
		FROM transactions t
		JOIN products p ON p.id = t.product_id
		WHERE t.order_id = $1`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return order, nil
}

// ListOrders returns orders matching the filter, newest first.
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, error) {
	query := `
		SELECT t.order_id, t.customer_id, t.product_id, p.name, t.quantity, t.total_amount, t.status,
		       t.shipping_name, t.shipping_phone, t.shipping_address, t.shipping_city, t.shipping_postal_code,
		       t.created_at, t.updated_at
		FROM transactions t
		JOIN products p ON p.id = t.product_id
		WHERE ($1 = 0 OR t.customer_id = $1)
		  AND ($2 = '' OR t.status = $2)
		ORDER BY t.created_at DESC
		LIMIT $3`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, query, filter.CustomerID, filter.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.ProductID, &o.ProductName, &o.Quantity, &o.TotalAmount, &o.Status,
		&o.Shipping.FullName, &o.Shipping.Phone, &o.Shipping.Address, &o.Shipping.City, &o.Shipping.PostalCode,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ApplyPaymentStatus records a provider status and transitions the order inside one
// transaction. Only pending orders change status, so a webhook replay after
// settlement cannot decrement stock twice or downgrade a paid order.
func (r *Repository) ApplyPaymentStatus(ctx context.Context, status ProviderStatus) (PaymentApplied, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return PaymentApplied{}, fmt.Errorf("begin payment apply: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		current   string
		productID int64
		quantity  int
	)
	err = tx.QueryRow(ctx,
		`SELECT status, product_id, quantity FROM transactions WHERE order_id = $1 FOR UPDATE`,
		status.OrderID).Scan(&current, &productID, &quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentApplied{Found: false}, nil
	}
	if err != nil {
		return PaymentApplied{}, fmt.Errorf("lock order %s: %w", status.OrderID, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments
			(order_id, gross_amount, payment_type, transaction_status, fraud_status,
			 status_message, midtrans_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO UPDATE SET
			gross_amount = EXCLUDED.gross_amount,
			payment_type = EXCLUDED.payment_type,
			transaction_status = EXCLUDED.transaction_status,
			fraud_status = EXCLUDED.fraud_status,
			status_message = EXCLUDED.status_message,
			midtrans_transaction_id = EXCLUDED.midtrans_transaction_id,
			updated_at = NOW()`,
		status.OrderID, status.GrossAmount, status.PaymentType, status.TransactionStatus,
		status.FraudStatus, status.StatusMessage, status.TransactionID)
	if err != nil {
		return PaymentApplied{}, fmt.Errorf("upsert payment %s: %w", status.OrderID, err)
	}

	next := current
	if current == OrderStatusPending {
		switch NormalizeProviderStatus(status.TransactionStatus) {
		case ReconSettled:
			next = OrderStatusPaid
		case ReconFailed:
			next = OrderStatusFailed
		}
	}

	if next != current {
		_, err = tx.Exec(ctx,
			`UPDATE transactions SET status = $1, updated_at = NOW() WHERE order_id = $2`,
			next, status.OrderID)
		if err != nil {
			return PaymentApplied{}, fmt.Errorf("update order status %s: %w", status.OrderID, err)
		}
		if next == OrderStatusPaid {
			_, err = tx.Exec(ctx,
				`UPDATE products SET stock = GREATEST(stock - $1, 0) WHERE id = $2`,
				quantity, productID)
			if err != nil {
				return PaymentApplied{}, fmt.Errorf("decrement stock for order %s: %w", status.OrderID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return PaymentApplied{}, fmt.Errorf("commit payment apply: %w", err)
	}
	return PaymentApplied{Found: true, OrderStatus: next, Changed: next != current, ProductID: productID}, nil
}

// ListProducts returns the active catalog, oldest first. Soft-deleted products are
// hidden from the storefront but keep their transaction history.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price, description, image_url, stock, created_at FROM products WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.ImageURL, &p.Stock, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProduct loads one catalog item.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, price, description, image_url, stock, created_at FROM products WHERE id = $1`,
		id).Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.ImageURL, &p.Stock, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("product %d not found", id)
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

// GetUserByIdentifier looks an active user up by username or email and returns the
// stored password hash alongside the account.
func (r *Repository) GetUserByIdentifier(ctx context.Context, identifier string) (User, string, error) {
	var (
		u    User
		hash string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.username, u.email, u.full_name, r.name, u.is_active, u.password_hash
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE (u.username = $1 OR u.email = $1) AND u.is_active`,
		identifier).Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Role, &u.IsActive, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, "", fmt.Errorf("no active user for %q", identifier)
	}
	if err != nil {
		return User{}, "", fmt.Errorf("get user: %w", err)
	}
	return u, hash, nil
}

// ListPayments returns persisted payment records, newest first.
func (r *Repository) ListPayments(ctx context.Context, limit int) ([]PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, gross_amount, payment_type, transaction_status, fraud_status,
		       status_message, midtrans_transaction_id, created_at, updated_at
		FROM payments ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var records []PaymentRecord
	for rows.Next() {
		var p PaymentRecord
		err := rows.Scan(&p.ID, &p.OrderID, &p.GrossAmount, &p.PaymentType, &p.TransactionStatus,
			&p.FraudStatus, &p.StatusMessage, &p.ProviderTxnID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		records = append(records, p)
	}
	return records, rows.Err()
}

// Earnings aggregates order totals for the dashboard. Only paid orders count
// toward total earnings.
func (r *Repository) Earnings(ctx context.Context) (Earnings, error) {
	var e Earnings
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total_amount) FILTER (WHERE status = $1), 0),
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status IN ($3, $4))
		FROM transactions`,
		OrderStatusPaid, OrderStatusPending, OrderStatusFailed, OrderStatusCancelled).
		Scan(&e.TotalEarnings, &e.PaidCount, &e.PendingCount, &e.FailedCount)
	if err != nil {
		return Earnings{}, fmt.Errorf("aggregate earnings: %w", err)
	}
	return e, nil
}

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Product is a catalog item. The price is in whole rupiah; the stock value held by
// a session is a snapshot and may be stale relative to the database.
type Product struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Price       int64     `json:"price" db:"price"`
	Description string    `json:"description,omitempty" db:"description"`
	ImageURL    string    `json:"image_url,omitempty" db:"image_url"`
	Stock       int       `json:"stock" db:"stock"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ShippingDetails is the five-field shipping form, validated as a unit before an
// order may be submitted.
type ShippingDetails struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// Order is the durable record of a purchase intent, independent of payment outcome.
// Once created it is immutable except for Status.
type Order struct {
	ID          string          `json:"order_id" db:"order_id"`
	CustomerID  int64           `json:"customer_id" db:"customer_id"`
	ProductID   int64           `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity" db:"quantity"`
	TotalAmount int64           `json:"total_amount" db:"total_amount"`
	Status      string          `json:"status" db:"status"`
	Shipping    ShippingDetails `json:"shipping"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Order statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusFailed    = "failed"
	OrderStatusCancelled = "cancelled"
)

// NewOrder creates a pending order for one cart selection.
func NewOrder(id string, customerID int64, product Product, quantity int, shipping ShippingDetails) *Order {
	now := time.Now()
	return &Order{
		ID:          id,
		CustomerID:  customerID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		TotalAmount: product.Price * int64(quantity),
		Status:      OrderStatusPending,
		Shipping:    shipping,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewOrderID generates a client-unique order identifier. The original frontend used
// ORD-<epoch millis>, which can collide across rapid attempts; a uuid fragment is
// appended to keep the identifier unique per submission attempt.
func NewOrderID() string {
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// PaymentSession is the provider's handle for collecting payment against one order.
type PaymentSession struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// Midtrans transaction_status vocabulary (raw, provider-defined).
const (
	RawStatusSettlement = "settlement"
	RawStatusCapture    = "capture"
	RawStatusPending    = "pending"
	RawStatusDeny       = "deny"
	RawStatusCancel     = "cancel"
	RawStatusExpire     = "expire"
)

// ReconStatus is the normalized payment outcome.
type ReconStatus string

const (
	ReconSettled ReconStatus = "settled"
	ReconPending ReconStatus = "pending"
	ReconFailed  ReconStatus = "failed"
	ReconUnknown ReconStatus = "unknown"
)

// NormalizeProviderStatus maps the raw provider vocabulary onto the four normalized
// buckets.
func NormalizeProviderStatus(raw string) ReconStatus {
	switch raw {
	case RawStatusSettlement, RawStatusCapture:
		return ReconSettled
	case RawStatusPending:
		return ReconPending
	case RawStatusDeny, RawStatusCancel, RawStatusExpire:
		return ReconFailed
	default:
		return ReconUnknown
	}
}

// ReconMessage returns the user-facing message for a normalized bucket.
func ReconMessage(status ReconStatus) string {
	switch status {
	case ReconSettled:
		return "Pembayaran berhasil!"
	case ReconPending:
		return "Pembayaran sedang diproses"
	case ReconFailed:
		return "Pembayaran gagal atau dibatalkan"
	default:
		return "Status pembayaran tidak diketahui"
	}
}

// ReconciliationResult is the outcome of reconciling one order against the provider.
// It is session state, not persisted; the backend rows are the system of record.
type ReconciliationResult struct {
	OrderID   string      `json:"order_id"`
	Status    ReconStatus `json:"status"`
	Message   string      `json:"message"`
	RawStatus string      `json:"raw_status,omitempty"`
}

// NewReconciliationResult builds a result from a raw provider status.
func NewReconciliationResult(orderID, raw string) ReconciliationResult {
	status := NormalizeProviderStatus(raw)
	return ReconciliationResult{
		OrderID:   orderID,
		Status:    status,
		Message:   ReconMessage(status),
		RawStatus: raw,
	}
}

// User is an authenticated account. Role is one of admin, sales, customer.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role_name"`
	IsActive bool   `json:"is_active"`
}

const (
	RoleAdmin    = "admin"
	RoleSales    = "sales"
	RoleCustomer = "customer"
)

// IsEmployee reports whether the user holds a back-office role.
func (u User) IsEmployee() bool {
	return u.Role == RoleAdmin || u.Role == RoleSales
}

// PaymentRecord mirrors one provider notification or status check, as persisted.
type PaymentRecord struct {
	ID                int64     `json:"id" db:"id"`
	OrderID           string    `json:"order_id" db:"order_id"`
	GrossAmount       int64     `json:"gross_amount" db:"gross_amount"`
	PaymentType       string    `json:"payment_type,omitempty" db:"payment_type"`
	TransactionStatus string    `json:"transaction_status" db:"transaction_status"`
	FraudStatus       string    `json:"fraud_status,omitempty" db:"fraud_status"`
	StatusMessage     string    `json:"status_message,omitempty" db:"status_message"`
	ProviderTxnID     string    `json:"midtrans_transaction_id,omitempty" db:"midtrans_transaction_id"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Earnings aggregates transaction totals for the back office.
type Earnings struct {
	TotalEarnings int64 `json:"total_earnings"`
	PaidCount     int   `json:"paid_count"`
	PendingCount  int   `json:"pending_count"`
	FailedCount   int   `json:"failed_count"`
}

var (
	// ErrInvalidStateTransition is returned by the checkout session when a stage
	// change is not allowed from the current stage.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrConfirmationRequired is returned when leaving checkout would discard a
	// partially filled shipping form without explicit confirmation.
	ErrConfirmationRequired = errors.New("confirmation required: shipping details would be discarded")

	// ErrOutOfStock is returned when selecting a product with zero stock.
	ErrOutOfStock = errors.New("product is out of stock")

	// ErrNoSelection is returned when an operation requires a cart selection.
	ErrNoSelection = errors.New("no product selected")

	// ErrSubmissionInFlight rejects re-entrant submission while the two-step
	// handoff is outstanding.
	ErrSubmissionInFlight = errors.New("submission already in progress")

	// ErrGrossAmountMismatch marks a defect: the payment session gross amount does
	// not equal the order total.
	ErrGrossAmountMismatch = errors.New("gross amount does not match item totals")

	// ErrOrderNotFound is returned by the repository for unknown order ids.
	ErrOrderNotFound = errors.New("order not found")
)

// ValidationError carries the per-field error map from shipping validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("shipping validation failed: %d field(s)", len(e.Fields))
}

// Submission step names, for SubmissionError.
const (
	StepCreateOrder   = "create_order"
	StepCreatePayment = "create_payment"
)

// SubmissionError reports which step of the two-step handoff failed. When Step is
// StepCreatePayment the order was already created and is left pending.
type SubmissionError struct {
	Step  string
	Order *Order
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("order submission failed at %s: %v", e.Step, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrAccessDenied is returned when a customer touches an order that is not theirs.
var ErrAccessDenied = errors.New("access denied")

// OrderStore is the order side of the backend. CreateOrder is idempotent on the
// client-generated order id.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, error)
	ApplyPaymentStatus(ctx context.Context, status ProviderStatus) (PaymentApplied, error)
}

// OrderFilter narrows ListOrders. Zero values mean "no filter".
type OrderFilter struct {
	CustomerID int64
	Status     string
	Limit      int
}

// PaymentApplied reports what a provider status did to the persisted order.
type PaymentApplied struct {
	Found       bool
	OrderStatus string
	Changed     bool
	ProductID   int64
}

// Catalog is the read-only product store.
type Catalog interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
}

// CatalogInvalidator is implemented by catalogs that cache product snapshots and
// can drop them after stock changed.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, id int64)
}

// PaymentGateway is the payment-session store: session creation and the
// authoritative, side-effect-free status query.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (PaymentSession, error)
	Status(ctx context.Context, orderID string) (ProviderStatus, error)
}

// SessionRequest is the payload for creating a payment session.
type SessionRequest struct {
	OrderID     string
	GrossAmount int64
	Items       []SessionItem
	Customer    CustomerDetails
}

type SessionItem struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type CustomerDetails struct {
	FirstName  string `json:"first_name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// ProviderStatus is the raw answer of the provider's status API (or a webhook
// notification body, which carries the same fields).
type ProviderStatus struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code,omitempty"`
	GrossAmount       int64  `json:"gross_amount,omitempty"`
	PaymentType       string `json:"payment_type,omitempty"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	TransactionID     string `json:"transaction_id,omitempty"`
	StatusMessage     string `json:"status_message,omitempty"`
}

// RedirectParams are the untrusted query parameters the provider's hosted page
// sends the browser back with. All fields are optional.
type RedirectParams struct {
	TransactionStatus string
	StatusCode        string
	Outcome           string // coarse payment=success/unfinish/error flag
}

// Empty reports whether no usable hint is present.
func (p RedirectParams) Empty() bool {
	return p.TransactionStatus == "" && p.StatusCode == "" && p.Outcome == ""
}

// EventPublisher emits domain events; see events.go for the Kafka implementation.
type EventPublisher interface {
	Publish(topic string, message map[string]interface{})
}

const paymentEventsTopic = "payment-status"

// CheckoutUseCase owns the order submission orchestration and payment
// reconciliation against the provider.
type CheckoutUseCase struct {
	orders  OrderStore
	catalog Catalog
	gateway PaymentGateway
	events  EventPublisher
	tracer  trace.Tracer
}

func NewCheckoutUseCase(orders OrderStore, catalog Catalog, gateway PaymentGateway, events EventPublisher) *CheckoutUseCase {
	return &CheckoutUseCase{
		orders:  orders,
		catalog: catalog,
		gateway: gateway,
		events:  events,
		tracer:  otel.Tracer("storefront-checkout"),
	}
}

// Submit performs the two-step handoff: create the order, then request a payment
// session for it. Step A and Step B are each attempted exactly once; Step B never
// starts before Step A has returned. On a Step B failure the order stays pending
// and the returned SubmissionError carries it, so the caller can offer "resume
// payment" instead of resubmitting.
func (uc *CheckoutUseCase) Submit(ctx context.Context, customer User, sel CartSelection, shipping ShippingDetails) (*Order, string, error) {
	ctx, span := uc.tracer.Start(ctx, "checkout.submit")
	defer span.End()

	if sel.Product.ID == 0 || sel.Quantity < 1 {
		return nil, "", ErrNoSelection
	}
	if fieldErrs := ValidateShipping(shipping); len(fieldErrs) > 0 {
		return nil, "", &ValidationError{Fields: fieldErrs}
	}

	orderID := NewOrderID()
	order := NewOrder(orderID, customer.ID, sel.Product, sel.Quantity, shipping)
	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.Int64("customer_id", customer.ID),
		attribute.Int64("total_amount", order.TotalAmount),
	)

	log.Printf("➡️ [SUBMIT %s] Step A: creating order (customer=%d product=%d qty=%d total=%d)",
		orderID, customer.ID, order.ProductID, order.Quantity, order.TotalAmount)
	if err := uc.orders.CreateOrder(ctx, order); err != nil {
		span.RecordError(err)
		log.Printf("❌ [SUBMIT %s] order creation failed: %v", orderID, err)
		return nil, "", &SubmissionError{Step: StepCreateOrder, Err: err}
	}

	log.Printf("➡️ [SUBMIT %s] Step B: creating payment session", orderID)
	session, err := uc.gateway.CreateSession(ctx, buildSessionRequest(order, customer))
	if err != nil {
		// The order exists in pending status with no payment session. This partial
		// state is observable and recoverable via ResumePayment; it is not cleaned
		// up here.
		span.RecordError(err)
		log.Printf("❌ [SUBMIT %s] payment session creation failed; order left pending: %v", orderID, err)
		return order, "", &SubmissionError{Step: StepCreatePayment, Order: order, Err: err}
	}

	log.Printf("✅ [SUBMIT %s] payment session created, redirect: %s", orderID, session.RedirectURL)
	return order, session.RedirectURL, nil
}

// ResumePayment requests a payment session for an existing pending order whose
// original Step B failed. The order itself is not resubmitted.
func (uc *CheckoutUseCase) ResumePayment(ctx context.Context, customer User, orderID string) (string, error) {
	ctx, span := uc.tracer.Start(ctx, "checkout.resume_payment")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID))

	order, err := uc.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.CustomerID != customer.ID {
		return "", ErrAccessDenied
	}
	if order.Status != OrderStatusPending {
		return "", fmt.Errorf("order %s is %s, payment can only be resumed while pending", orderID, order.Status)
	}
	if order.ProductName == "" {
		product, perr := uc.catalog.GetProduct(ctx, order.ProductID)
		if perr != nil {
			return "", fmt.Errorf("load product for order %s: %w", orderID, perr)
		}
		order.ProductName = product.Name
	}

	session, err := uc.gateway.CreateSession(ctx, buildSessionRequest(order, customer))
	if err != nil {
		span.RecordError(err)
		return "", &SubmissionError{Step: StepCreatePayment, Order: order, Err: err}
	}
	log.Printf("✅ [RESUME %s] payment session re-created, redirect: %s", orderID, session.RedirectURL)
	return session.RedirectURL, nil
}

// CreateOrder performs only the order-store half of the handoff, for API clients
// that drive the payment session themselves. Quantity is clamped the same way the
// cart does it.
func (uc *CheckoutUseCase) CreateOrder(ctx context.Context, customer User, productID int64, quantity int, shipping ShippingDetails) (*Order, error) {
	ctx, span := uc.tracer.Start(ctx, "checkout.create_order")
	defer span.End()

	if fieldErrs := ValidateShipping(shipping); len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}
	product, err := uc.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock <= 0 {
		return nil, ErrOutOfStock
	}
	quantity = clampQuantity(quantity, product.Stock)

	order := NewOrder(NewOrderID(), customer.ID, product, quantity, shipping)
	span.SetAttributes(attribute.String("order_id", order.ID))
	if err := uc.orders.CreateOrder(ctx, order); err != nil {
		span.RecordError(err)
		return nil, &SubmissionError{Step: StepCreateOrder, Err: err}
	}
	return order, nil
}

// CheckStatus reconciles one order after verifying the caller may see it.
// Customers only reach their own orders; back-office roles reach all.
func (uc *CheckoutUseCase) CheckStatus(ctx context.Context, user User, orderID string) (ReconciliationResult, error) {
	order, err := uc.orders.GetOrder(ctx, orderID)
	if err != nil {
		return ReconciliationResult{}, err
	}
	if !user.IsEmployee() && order.CustomerID != user.ID {
		return ReconciliationResult{}, ErrAccessDenied
	}
	return uc.Reconcile(ctx, orderID, nil), nil
}

// Reconcile determines the authoritative final status of a payment. The provider's
// status API is always queried first; the redirect parameters are consulted only
// after that query has definitively failed, and only as hints. The result is never
// left undetermined silently: with no provider answer and no usable hint it is
// "unknown" with an explicit message.
func (uc *CheckoutUseCase) Reconcile(ctx context.Context, orderID string, params *RedirectParams) ReconciliationResult {
	ctx, span := uc.tracer.Start(ctx, "checkout.reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID))

	status, err := uc.gateway.Status(ctx, orderID)
	if err == nil {
		result := NewReconciliationResult(orderID, status.TransactionStatus)
		span.SetAttributes(attribute.String("recon_status", string(result.Status)))
		log.Printf("✅ [RECONCILE %s] provider status: %s → %s", orderID, status.TransactionStatus, result.Status)
		uc.applyAndPublish(ctx, status)
		return result
	}

	span.RecordError(err)
	log.Printf("⚠️ [RECONCILE %s] authoritative status query failed, falling back to redirect params: %v", orderID, err)

	if params == nil || params.Empty() {
		return ReconciliationResult{
			OrderID: orderID,
			Status:  ReconUnknown,
			Message: ReconMessage(ReconUnknown),
		}
	}

	switch {
	case params.TransactionStatus != "":
		return NewReconciliationResult(orderID, params.TransactionStatus)
	case params.StatusCode == "200":
		return NewReconciliationResult(orderID, RawStatusSettlement)
	case params.Outcome == "success":
		return NewReconciliationResult(orderID, RawStatusSettlement)
	default:
		return ReconciliationResult{
			OrderID: orderID,
			Status:  ReconUnknown,
			Message: ReconMessage(ReconUnknown),
		}
	}
}

// HandleNotification applies a provider webhook notification to the persisted
// order and payment records.
func (uc *CheckoutUseCase) HandleNotification(ctx context.Context, status ProviderStatus) error {
	ctx, span := uc.tracer.Start(ctx, "checkout.notification")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", status.OrderID),
		attribute.String("transaction_status", status.TransactionStatus),
	)
	uc.applyAndPublish(ctx, status)
	return nil
}

// applyAndPublish persists the provider status and, when the order actually
// changed, emits a payment-status event. Persistence failures are logged, not
// surfaced: the reconciliation answer to the user does not depend on them.
func (uc *CheckoutUseCase) applyAndPublish(ctx context.Context, status ProviderStatus) {
	applied, err := uc.orders.ApplyPaymentStatus(ctx, status)
	if err != nil {
		log.Printf("⚠️ [RECONCILE %s] failed to persist payment status: %v", status.OrderID, err)
		return
	}
	if !applied.Found {
		log.Printf("⚠️ [RECONCILE %s] no order for provider notification", status.OrderID)
		return
	}
	if !applied.Changed {
		return
	}
	// The first transition to paid decremented stock, so any cached product
	// snapshot is stale now.
	if applied.OrderStatus == OrderStatusPaid {
		if inv, ok := uc.catalog.(CatalogInvalidator); ok {
			inv.Invalidate(ctx, applied.ProductID)
		}
	}
	if uc.events != nil {
		uc.events.Publish(paymentEventsTopic, map[string]interface{}{
			"order_id":           status.OrderID,
			"transaction_status": status.TransactionStatus,
			"order_status":       applied.OrderStatus,
		})
	}
}

func buildSessionRequest(order *Order, customer User) SessionRequest {
	unitPrice := int64(0)
	if order.Quantity > 0 {
		unitPrice = order.TotalAmount / int64(order.Quantity)
	}
	return SessionRequest{
		OrderID:     order.ID,
		GrossAmount: order.TotalAmount,
		Items: []SessionItem{{
			ID:       fmt.Sprintf("%d", order.ProductID),
			Price:    unitPrice,
			Quantity: order.Quantity,
			Name:     order.ProductName,
		}},
		Customer: CustomerDetails{
			FirstName:  order.Shipping.FullName,
			Email:      customer.Email,
			Phone:      order.Shipping.Phone,
			Address:    order.Shipping.Address,
			City:       order.Shipping.City,
			PostalCode: order.Shipping.PostalCode,
		},
	}
}

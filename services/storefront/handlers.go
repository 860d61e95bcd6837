package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CheckoutUseCaseInterface is the handler-side view of the checkout use case.
type CheckoutUseCaseInterface interface {
	Submit(ctx context.Context, customer User, sel CartSelection, shipping ShippingDetails) (*Order, string, error)
	CreateOrder(ctx context.Context, customer User, productID int64, quantity int, shipping ShippingDetails) (*Order, error)
	ResumePayment(ctx context.Context, customer User, orderID string) (string, error)
	Reconcile(ctx context.Context, orderID string, params *RedirectParams) ReconciliationResult
	CheckStatus(ctx context.Context, user User, orderID string) (ReconciliationResult, error)
	HandleNotification(ctx context.Context, status ProviderStatus) error
}

// ReadStore is the handler-side view of the order and reporting queries.
type ReadStore interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, error)
	ListPayments(ctx context.Context, limit int) ([]PaymentRecord, error)
	Earnings(ctx context.Context) (Earnings, error)
}

// StorefrontHandler holds the HTTP handlers.
type StorefrontHandler struct {
	useCase     CheckoutUseCaseInterface
	sessions    *SessionStore
	catalog     Catalog
	reads       ReadStore
	auth        *Authenticator
	frontendURL string
	tracer      trace.Tracer
}

func NewStorefrontHandler(
	useCase CheckoutUseCaseInterface,
	sessions *SessionStore,
	catalog Catalog,
	reads ReadStore,
	auth *Authenticator,
	frontendURL string,
	tracer trace.Tracer,
) *StorefrontHandler {
	return &StorefrontHandler{
		useCase:     useCase,
		sessions:    sessions,
		catalog:     catalog,
		reads:       reads,
		auth:        auth,
		frontendURL: frontendURL,
		tracer:      tracer,
	}
}

// RegisterRoutes wires the full route table onto the engine.
func (h *StorefrontHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)
	r.POST("/auth/login", h.Login)
	r.GET("/auth/me", h.auth.AuthRequired(), h.Me)

	api := r.Group("/api")
	api.GET("/products", h.ListProducts)
	api.GET("/products/:id", h.GetProduct)

	checkout := api.Group("/checkout", h.auth.AuthRequired())
	checkout.GET("/session", h.SessionView)
	checkout.POST("/select", h.SelectProduct)
	checkout.POST("/quantity", h.SetQuantity)
	checkout.POST("/begin", h.BeginCheckout)
	checkout.POST("/shipping", h.SetShipping)
	checkout.POST("/back", h.BackToCart)
	checkout.POST("/submit", h.SubmitOrder)
	checkout.POST("/resume", h.ResumePayment)
	checkout.POST("/reset", h.ResetSession)

	payment := api.Group("/payment")
	payment.GET("/return", h.PaymentReturn)
	payment.POST("/webhook", h.PaymentWebhook)
	payment.GET("/check-status/:order_id", h.auth.AuthRequired(), h.CheckStatus)

	api.POST("/transactions", h.auth.AuthRequired(), h.CreateTransaction)
	api.GET("/transactions", h.auth.AuthRequired(), h.ListTransactions)
	api.GET("/payments", h.auth.AuthRequired(), RequireRoles(RoleAdmin, RoleSales), h.ListPayments)
	api.GET("/dashboard/earnings", h.auth.AuthRequired(), RequireRoles(RoleAdmin, RoleSales), h.DashboardEarnings)
}

// HealthCheck reports service liveness.
func (h *StorefrontHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "storefront-service",
	})
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// Login exchanges credentials for an access token.
func (h *StorefrontHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, user, err := h.auth.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

// Me returns the authenticated account.
func (h *StorefrontHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// ListProducts returns the catalog.
func (h *StorefrontHandler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, products)
}

// GetProduct returns one catalog item.
func (h *StorefrontHandler) GetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product id must be numeric"})
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, product)
}

// SessionView returns the current checkout session snapshot.
func (h *StorefrontHandler) SessionView(c *gin.Context) {
	sess := h.sessions.Get(currentUser(c).ID)
	c.JSON(http.StatusOK, sess.View())
}

type selectRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

// SelectProduct picks a product into the cart, optionally with a quantity.
func (h *StorefrontHandler) SelectProduct(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), req.ProductID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	sess := h.sessions.Get(currentUser(c).ID)
	if err := sess.Select(product); err != nil {
		h.renderError(c, err)
		return
	}
	if req.Quantity > 0 {
		if err := sess.SetQuantity(req.Quantity); err != nil {
			h.renderError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, sess.View())
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// SetQuantity updates the cart quantity. Out-of-range values are clamped.
func (h *StorefrontHandler) SetQuantity(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := h.sessions.Get(currentUser(c).ID)
	if err := sess.SetQuantity(req.Quantity); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

// BeginCheckout moves the session from cart to the shipping form. The product
// snapshot is refreshed first so a quantity picked against stale stock gets
// re-clamped before the order form is shown.
func (h *StorefrontHandler) BeginCheckout(c *gin.Context) {
	sess := h.sessions.Get(currentUser(c).ID)
	if view := sess.View(); view.Cart != nil {
		if product, err := h.catalog.GetProduct(c.Request.Context(), view.Cart.Product.ID); err == nil {
			if err := sess.RefreshCart(product); err != nil {
				h.renderError(c, err)
				return
			}
		}
	}
	if err := sess.BeginCheckout(); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

// SetShipping stores the shipping form as typed so far, without validating it.
func (h *StorefrontHandler) SetShipping(c *gin.Context) {
	var details ShippingDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := h.sessions.Get(currentUser(c).ID)
	if err := sess.SetShipping(details); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

type backRequest struct {
	Confirmed bool `json:"confirmed"`
}

// BackToCart leaves the shipping form. Unless confirmed, a partially filled form
// blocks the transition.
func (h *StorefrontHandler) BackToCart(c *gin.Context) {
	var req backRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := h.sessions.Get(currentUser(c).ID)
	if err := sess.BackToCart(req.Confirmed); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

// SubmitOrder runs the two-step order submission. The session is snapshotted
// before the network calls and the outcome is applied after, so a user who left
// checkout meanwhile does not get yanked to the invoice.
func (h *StorefrontHandler) SubmitOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "submit_order")
	defer span.End()

	var details ShippingDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := currentUser(c)
	sess := h.sessions.Get(user.ID)
	if err := sess.SetShipping(details); err != nil {
		h.renderError(c, err)
		return
	}

	epoch, sel, shipping, err := sess.BeginSubmit()
	if err != nil {
		h.renderError(c, err)
		return
	}
	span.SetAttributes(attribute.Int64("customer_id", user.ID))

	order, redirectURL, err := h.useCase.Submit(ctx, user, sel, shipping)
	if err != nil {
		sess.AbortSubmit()
		span.RecordError(err)
		h.renderError(c, err)
		return
	}

	if err := sess.FinishSubmit(epoch, order, redirectURL); err != nil {
		// The user navigated away while the submission was in flight. The order
		// exists and can be paid later; the session stays where the user is.
		c.JSON(http.StatusOK, gin.H{
			"order":        order,
			"redirect_url": redirectURL,
			"discarded":    true,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":        order,
		"redirect_url": redirectURL,
		"session":      sess.View(),
	})
}

type resumeRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// ResumePayment re-creates a payment session for a pending order whose first
// payment-session creation failed.
func (h *StorefrontHandler) ResumePayment(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	redirectURL, err := h.useCase.ResumePayment(c.Request.Context(), currentUser(c), req.OrderID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":     req.OrderID,
		"redirect_url": redirectURL,
	})
}

// ResetSession returns a finished session to the cart stage.
func (h *StorefrontHandler) ResetSession(c *gin.Context) {
	sess := h.sessions.Get(currentUser(c).ID)
	if err := sess.Reset(); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

// PaymentReturn handles the browser coming back from the provider's hosted page.
// The status is reconciled and persisted, the result is handed to the owning
// customer's session, and then the browser is redirected to the frontend with a
// bare URL so the untrusted query parameters do not linger in the address bar or
// history. The session keeps the result and the order id, so the frontend can
// render the outcome and re-check later without the stripped parameters.
func (h *StorefrontHandler) PaymentReturn(c *gin.Context) {
	orderID := c.Query("order_id")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id is required"})
		return
	}
	params := &RedirectParams{
		TransactionStatus: c.Query("transaction_status"),
		StatusCode:        c.Query("status_code"),
		Outcome:           c.Query("payment"),
	}
	result := h.useCase.Reconcile(c.Request.Context(), orderID, params)

	// The redirect carries no auth header, so the owner is looked up through the
	// order itself. An unknown order still answers, it just has no session to
	// update.
	if order, err := h.reads.GetOrder(c.Request.Context(), orderID); err == nil {
		h.sessions.Get(order.CustomerID).ApplyReconciliation(result)
	}

	if h.frontendURL != "" {
		c.Redirect(http.StatusFound, h.frontendURL)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CheckStatus reconciles one order on demand and moves the caller's session to the
// payment result stage.
func (h *StorefrontHandler) CheckStatus(c *gin.Context) {
	user := currentUser(c)
	result, err := h.useCase.CheckStatus(c.Request.Context(), user, c.Param("order_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	sess := h.sessions.Get(user.ID)
	sess.ApplyReconciliation(result)
	c.JSON(http.StatusOK, result)
}

type createTransactionRequest struct {
	ProductID int64           `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity"`
	Shipping  ShippingDetails `json:"shipping"`
}

// CreateTransaction creates a pending order directly, for API clients that drive
// the payment session themselves.
func (h *StorefrontHandler) CreateTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := h.useCase.CreateOrder(c.Request.Context(), currentUser(c), req.ProductID, req.Quantity, req.Shipping)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// PaymentWebhook ingests provider notifications. Midtrans retries on non-2xx, so
// the response is always ok; processing problems are logged server-side.
func (h *StorefrontHandler) PaymentWebhook(c *gin.Context) {
	var status ProviderStatus
	if err := c.ShouldBindJSON(&status); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	_ = h.useCase.HandleNotification(c.Request.Context(), status)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListTransactions returns orders. Customers see only their own; back-office roles
// see everything and may filter by customer or status.
func (h *StorefrontHandler) ListTransactions(c *gin.Context) {
	user := currentUser(c)
	filter := OrderFilter{Status: c.Query("status")}
	if user.IsEmployee() {
		if v := c.Query("customer_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "customer_id must be numeric"})
				return
			}
			filter.CustomerID = id
		}
	} else {
		filter.CustomerID = user.ID
	}
	orders, err := h.reads.ListOrders(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

// ListPayments returns persisted payment records for the back office.
func (h *StorefrontHandler) ListPayments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	payments, err := h.reads.ListPayments(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, payments)
}

// DashboardEarnings aggregates totals for the back office.
func (h *StorefrontHandler) DashboardEarnings(c *gin.Context) {
	earnings, err := h.reads.Earnings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, earnings)
}

// renderError maps domain errors onto HTTP statuses.
func (h *StorefrontHandler) renderError(c *gin.Context, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "shipping validation failed",
			"fields": validationErr.Fields,
		})
		return
	}

	var submissionErr *SubmissionError
	if errors.As(err, &submissionErr) {
		body := gin.H{
			"error": submissionErr.Error(),
			"step":  submissionErr.Step,
		}
		if submissionErr.Order != nil {
			// Step B failed after the order was created. The order id lets the
			// client offer resuming payment instead of resubmitting.
			body["order_id"] = submissionErr.Order.ID
			body["order_status"] = submissionErr.Order.Status
		}
		c.JSON(http.StatusBadGateway, body)
		return
	}

	switch {
	case errors.Is(err, ErrConfirmationRequired),
		errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrSubmissionInFlight),
		errors.Is(err, ErrOutOfStock),
		errors.Is(err, ErrNoSelection):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

package main

import (
	"sync"
)

// Stage is one of the user-facing checkout stages.
type Stage string

const (
	StageCart          Stage = "cart"
	StageCheckout      Stage = "checkout"
	StageInvoice       Stage = "invoice"
	StagePaymentResult Stage = "payment_result"
)

// CheckoutSession sequences one customer's checkout stages and owns the data each
// stage requires. All methods hold the session lock; network calls never run under
// it. The handler snapshots state via BeginSubmit, performs the call, and applies
// the outcome via FinishSubmit, which discards results from a superseded epoch.
type CheckoutSession struct {
	mu sync.Mutex

	stage      Stage
	epoch      int
	submitting bool

	cart        *CartSelection
	shipping    ShippingDetails
	order       *Order
	redirectURL string
	result      *ReconciliationResult
}

// NewCheckoutSession starts at the cart stage.
func NewCheckoutSession() *CheckoutSession {
	return &CheckoutSession{stage: StageCart}
}

// Snapshot is a read-only copy of the session for rendering.
type Snapshot struct {
	Stage       Stage                 `json:"stage"`
	Cart        *CartSelection        `json:"cart,omitempty"`
	Shipping    ShippingDetails       `json:"shipping"`
	Order       *Order                `json:"order,omitempty"`
	RedirectURL string                `json:"redirect_url,omitempty"`
	Result      *ReconciliationResult `json:"result,omitempty"`
}

// View returns a copy of the current session state. The pointer fields are
// copied, not shared, so a snapshot being marshaled never races with a
// concurrent mutation of the session.
func (s *CheckoutSession) View() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Stage:       s.stage,
		Shipping:    s.shipping,
		RedirectURL: s.redirectURL,
	}
	if s.cart != nil {
		cart := *s.cart
		snap.Cart = &cart
	}
	if s.order != nil {
		order := *s.order
		snap.Order = &order
	}
	if s.result != nil {
		result := *s.result
		snap.Result = &result
	}
	return snap
}

// Select picks a product (quantity 1), replacing any previous selection. Only
// valid while browsing the cart stage.
func (s *CheckoutSession) Select(p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageCart {
		return ErrInvalidStateTransition
	}
	sel, err := NewCartSelection(p)
	if err != nil {
		return err
	}
	s.cart = sel
	return nil
}

// SetQuantity clamps and stores the quantity for the current selection.
func (s *CheckoutSession) SetQuantity(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageCart {
		return ErrInvalidStateTransition
	}
	if s.cart == nil {
		return ErrNoSelection
	}
	s.cart.SetQuantity(n)
	return nil
}

// RefreshCart replaces the cart's product snapshot with a fresher one, re-clamping
// the stored quantity against the new stock.
func (s *CheckoutSession) RefreshCart(p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageCart {
		return ErrInvalidStateTransition
	}
	if s.cart == nil {
		return ErrNoSelection
	}
	return s.cart.Refresh(p)
}

// BeginCheckout moves cart → checkout. Requires a selection.
func (s *CheckoutSession) BeginCheckout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageCart {
		return ErrInvalidStateTransition
	}
	if s.cart == nil {
		return ErrNoSelection
	}
	s.stage = StageCheckout
	return nil
}

// SetShipping stores the form as typed so far. Only meaningful during checkout.
func (s *CheckoutSession) SetShipping(d ShippingDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageCheckout {
		return ErrInvalidStateTransition
	}
	s.shipping = d
	return nil
}

// BackToCart moves checkout → cart. A non-empty shipping form is only discarded
// when the caller has confirmed the data loss.
func (s *CheckoutSession) BackToCart(confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageCheckout {
		return ErrInvalidStateTransition
	}
	if !s.shipping.Empty() && !confirmed {
		return ErrConfirmationRequired
	}
	s.stage = StageCart
	s.shipping = ShippingDetails{}
	s.epoch++
	return nil
}

// BeginSubmit snapshots the data the orchestrator needs and marks the session as
// submitting so a second submit is rejected while the first is outstanding. The
// returned epoch must be passed back to FinishSubmit.
func (s *CheckoutSession) BeginSubmit() (epoch int, sel CartSelection, shipping ShippingDetails, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageCheckout {
		return 0, CartSelection{}, ShippingDetails{}, ErrInvalidStateTransition
	}
	if s.submitting {
		return 0, CartSelection{}, ShippingDetails{}, ErrSubmissionInFlight
	}
	if s.cart == nil {
		return 0, CartSelection{}, ShippingDetails{}, ErrNoSelection
	}
	s.submitting = true
	return s.epoch, *s.cart, s.shipping, nil
}

// FinishSubmit applies a successful submission, moving checkout → invoice. A result
// whose epoch no longer matches (the user left checkout while the call was in
// flight) is discarded.
func (s *CheckoutSession) FinishSubmit(epoch int, order *Order, redirectURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if epoch != s.epoch || s.stage != StageCheckout {
		return ErrInvalidStateTransition
	}
	s.order = order
	s.redirectURL = redirectURL
	s.stage = StageInvoice
	return nil
}

// AbortSubmit clears the submitting flag after a failed submission, leaving the
// session in checkout so the user can retry.
func (s *CheckoutSession) AbortSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
}

// ApplyReconciliation enters payment_result. This is the sole entry point into
// that stage; it is reachable from any stage because the provider redirect can
// arrive on a fresh session, but never without a result.
func (s *CheckoutSession) ApplyReconciliation(result ReconciliationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = &result
	s.stage = StagePaymentResult
	if result.Status == ReconSettled {
		s.cart = nil
	}
}

// Reset moves payment_result → cart, clearing the selection, invoice data and
// reconciliation result.
func (s *CheckoutSession) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StagePaymentResult {
		return ErrInvalidStateTransition
	}
	s.stage = StageCart
	s.cart = nil
	s.shipping = ShippingDetails{}
	s.order = nil
	s.redirectURL = ""
	s.result = nil
	s.epoch++
	return nil
}

// OrderID returns the id of the order currently carried by the session, if any.
func (s *CheckoutSession) OrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil {
		return ""
	}
	return s.order.ID
}

// SessionStore holds one checkout session per customer.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*CheckoutSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[int64]*CheckoutSession)}
}

// Get returns the customer's session, creating it on first use.
func (st *SessionStore) Get(customerID int64) *CheckoutSession {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[customerID]
	if !ok {
		sess = NewCheckoutSession()
		st.sessions[customerID] = sess
	}
	return sess
}

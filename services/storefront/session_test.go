package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sessionWithCart(t *testing.T) *CheckoutSession {
	t.Helper()
	sess := NewCheckoutSession()
	if err := sess.Select(Product{ID: 1, Name: "Kaos", Price: 50000, Stock: 10}); err != nil {
		t.Fatalf("select: %v", err)
	}
	return sess
}

func sessionAtCheckout(t *testing.T) *CheckoutSession {
	t.Helper()
	sess := sessionWithCart(t)
	if err := sess.BeginCheckout(); err != nil {
		t.Fatalf("begin checkout: %v", err)
	}
	return sess
}

func TestSessionStartsAtCart(t *testing.T) {
	sess := NewCheckoutSession()
	assert.Equal(t, StageCart, sess.View().Stage)
}

func TestBeginCheckoutRequiresSelection(t *testing.T) {
	sess := NewCheckoutSession()
	assert.ErrorIs(t, sess.BeginCheckout(), ErrNoSelection)
}

func TestBeginCheckoutMovesToCheckout(t *testing.T) {
	sess := sessionWithCart(t)
	assert.NoError(t, sess.BeginCheckout())
	assert.Equal(t, StageCheckout, sess.View().Stage)
}

func TestRefreshCartReclampsAgainstFreshStock(t *testing.T) {
	sess := sessionWithCart(t)
	assert.NoError(t, sess.SetQuantity(8))

	assert.NoError(t, sess.RefreshCart(Product{ID: 1, Name: "Kaos", Price: 50000, Stock: 3}))
	assert.Equal(t, 3, sess.View().Cart.Quantity)

	assert.ErrorIs(t, sess.RefreshCart(Product{ID: 1, Stock: 0}), ErrOutOfStock)
}

func TestSelectOutsideCartRejected(t *testing.T) {
	sess := sessionAtCheckout(t)
	err := sess.Select(Product{ID: 2, Stock: 5})
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestBackToCartWithEmptyFormNeedsNoConfirmation(t *testing.T) {
	sess := sessionAtCheckout(t)
	assert.NoError(t, sess.BackToCart(false))
	assert.Equal(t, StageCart, sess.View().Stage)
}

func TestBackToCartWithFilledFormBlocksWithoutConfirmation(t *testing.T) {
	sess := sessionAtCheckout(t)
	assert.NoError(t, sess.SetShipping(ShippingDetails{City: "Jakarta"}))

	err := sess.BackToCart(false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Equal(t, StageCheckout, sess.View().Stage, "blocked transition must not change stage")

	assert.NoError(t, sess.BackToCart(true))
	assert.Equal(t, StageCart, sess.View().Stage)
	assert.True(t, sess.View().Shipping.Empty(), "confirmed back discards the form")
}

func TestBeginSubmitRejectsReentry(t *testing.T) {
	sess := sessionAtCheckout(t)

	_, _, _, err := sess.BeginSubmit()
	assert.NoError(t, err)

	_, _, _, err = sess.BeginSubmit()
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
}

func TestAbortSubmitAllowsRetry(t *testing.T) {
	sess := sessionAtCheckout(t)

	_, _, _, err := sess.BeginSubmit()
	assert.NoError(t, err)
	sess.AbortSubmit()

	_, _, _, err = sess.BeginSubmit()
	assert.NoError(t, err)
	assert.Equal(t, StageCheckout, sess.View().Stage, "failed submit leaves the user on checkout")
}

func TestFinishSubmitMovesToInvoice(t *testing.T) {
	sess := sessionAtCheckout(t)
	epoch, _, _, err := sess.BeginSubmit()
	assert.NoError(t, err)

	order := &Order{ID: "ORD-1", Status: OrderStatusPending}
	assert.NoError(t, sess.FinishSubmit(epoch, order, "https://pay.example/redirect"))

	view := sess.View()
	assert.Equal(t, StageInvoice, view.Stage)
	assert.Equal(t, "ORD-1", view.Order.ID)
	assert.Equal(t, "https://pay.example/redirect", view.RedirectURL)
}

func TestFinishSubmitDiscardsStaleEpoch(t *testing.T) {
	sess := sessionAtCheckout(t)
	assert.NoError(t, sess.SetShipping(ShippingDetails{City: "Jakarta"}))
	epoch, _, _, err := sess.BeginSubmit()
	assert.NoError(t, err)

	// The user leaves checkout while the submission is in flight.
	sess.AbortSubmit()
	assert.NoError(t, sess.BackToCart(true))

	err = sess.FinishSubmit(epoch, &Order{ID: "ORD-late"}, "https://pay.example")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, StageCart, sess.View().Stage, "late response must not yank the user forward")
	assert.Nil(t, sess.View().Order)
}

func TestApplyReconciliationIsSoleEntryToPaymentResult(t *testing.T) {
	// Reachable from any stage, but never without a result attached.
	for _, setup := range []func(*testing.T) *CheckoutSession{
		func(t *testing.T) *CheckoutSession { return NewCheckoutSession() },
		sessionWithCart,
		sessionAtCheckout,
	} {
		sess := setup(t)
		sess.ApplyReconciliation(NewReconciliationResult("ORD-1", "pending"))

		view := sess.View()
		assert.Equal(t, StagePaymentResult, view.Stage)
		if assert.NotNil(t, view.Result) {
			assert.NotEmpty(t, view.Result.Message)
		}
	}
}

func TestSettledReconciliationClearsCart(t *testing.T) {
	sess := sessionWithCart(t)
	sess.ApplyReconciliation(NewReconciliationResult("ORD-1", "settlement"))
	assert.Nil(t, sess.View().Cart)
}

func TestPendingReconciliationKeepsCart(t *testing.T) {
	sess := sessionWithCart(t)
	sess.ApplyReconciliation(NewReconciliationResult("ORD-1", "pending"))
	assert.NotNil(t, sess.View().Cart)
}

func TestResetOnlyFromPaymentResult(t *testing.T) {
	for _, setup := range []func(*testing.T) *CheckoutSession{
		func(t *testing.T) *CheckoutSession { return NewCheckoutSession() },
		sessionWithCart,
		sessionAtCheckout,
	} {
		sess := setup(t)
		assert.True(t, errors.Is(sess.Reset(), ErrInvalidStateTransition))
	}
}

func TestResetClearsEverything(t *testing.T) {
	sess := sessionAtCheckout(t)
	epoch, _, _, _ := sess.BeginSubmit()
	assert.NoError(t, sess.FinishSubmit(epoch, &Order{ID: "ORD-1"}, "https://pay.example"))
	sess.ApplyReconciliation(NewReconciliationResult("ORD-1", "settlement"))

	assert.NoError(t, sess.Reset())

	view := sess.View()
	assert.Equal(t, StageCart, view.Stage)
	assert.Nil(t, view.Cart)
	assert.Nil(t, view.Order)
	assert.Nil(t, view.Result)
	assert.Empty(t, view.RedirectURL)
	assert.True(t, view.Shipping.Empty())
}

func TestResetInvalidatesInFlightSubmission(t *testing.T) {
	sess := sessionAtCheckout(t)
	epoch, _, _, _ := sess.BeginSubmit()

	sess.ApplyReconciliation(NewReconciliationResult("ORD-0", "settlement"))
	sess.AbortSubmit()
	assert.NoError(t, sess.Reset())

	err := sess.FinishSubmit(epoch, &Order{ID: "ORD-stale"}, "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestViewReturnsIndependentCopies(t *testing.T) {
	sess := sessionWithCart(t)
	assert.NoError(t, sess.SetQuantity(2))

	snap := sess.View()
	assert.NoError(t, sess.SetQuantity(5))

	// Mutating the session after the fact must not reach into an already taken
	// snapshot, and vice versa.
	assert.Equal(t, 2, snap.Cart.Quantity)
	snap.Cart.Quantity = 9
	assert.Equal(t, 5, sess.View().Cart.Quantity)
}

func TestSessionStoreReturnsSameSessionPerCustomer(t *testing.T) {
	store := NewSessionStore()

	a := store.Get(1)
	b := store.Get(1)
	c := store.Get(2)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

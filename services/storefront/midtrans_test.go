package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSessionRequest() SessionRequest {
	return SessionRequest{
		OrderID:     "ORD-1",
		GrossAmount: 100000,
		Items: []SessionItem{
			{ID: "7", Price: 50000, Quantity: 2, Name: "Kaos Polos Hitam"},
		},
		Customer: CustomerDetails{
			FirstName: "Budi Santoso",
			Phone:     "081234567890",
			Address:   "Jl. Merdeka No. 1",
			City:      "Jakarta",
		},
	}
}

func TestCreateSession(t *testing.T) {
	var received snapRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/snap/v1/transactions", r.URL.Path)

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "server-key", user)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"token":        "snap-token",
			"redirect_url": "https://app.sandbox.midtrans.com/snap/v4/redirection/snap-token",
		})
	}))
	defer srv.Close()

	client := NewMidtransClient(MidtransConfig{
		ServerKey:   "server-key",
		SnapBaseURL: srv.URL,
		CoreBaseURL: srv.URL,
		FrontendURL: "http://localhost:5173",
	})

	session, err := client.CreateSession(context.Background(), testSessionRequest())

	require.NoError(t, err)
	assert.Equal(t, "snap-token", session.Token)
	assert.Contains(t, session.RedirectURL, "snap-token")
	assert.Equal(t, "ORD-1", received.TransactionDetails.OrderID)
	assert.Equal(t, int64(100000), received.TransactionDetails.GrossAmount)
	require.NotNil(t, received.Callbacks)
	assert.Equal(t, "http://localhost:5173?payment=success", received.Callbacks.Finish)
}

func TestCreateSessionGrossAmountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("a mismatched request must never reach the provider")
	}))
	defer srv.Close()

	client := NewMidtransClient(MidtransConfig{ServerKey: "k", SnapBaseURL: srv.URL, CoreBaseURL: srv.URL})

	req := testSessionRequest()
	req.GrossAmount = 99999

	_, err := client.CreateSession(context.Background(), req)
	assert.ErrorIs(t, err, ErrGrossAmountMismatch)
}

func TestCreateSessionProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string][]string{
			"error_messages": {"Access denied due to unauthorized transaction"},
		})
	}))
	defer srv.Close()

	client := NewMidtransClient(MidtransConfig{ServerKey: "wrong", SnapBaseURL: srv.URL, CoreBaseURL: srv.URL})

	_, err := client.CreateSession(context.Background(), testSessionRequest())
	assert.ErrorContains(t, err, "401")
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ORD-1/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"order_id":           "ORD-1",
			"transaction_status": "settlement",
			"status_code":        "200",
			"gross_amount":       "100000.00",
			"payment_type":       "qris",
			"transaction_id":     "txn-123",
		})
	}))
	defer srv.Close()

	client := NewMidtransClient(MidtransConfig{ServerKey: "k", SnapBaseURL: srv.URL, CoreBaseURL: srv.URL})

	status, err := client.Status(context.Background(), "ORD-1")

	require.NoError(t, err)
	assert.Equal(t, "settlement", status.TransactionStatus)
	assert.Equal(t, int64(100000), status.GrossAmount)
	assert.Equal(t, "qris", status.PaymentType)
}

func TestStatusUnknownTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Midtrans answers 200 with an embedded 404 status code.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status_code":    "404",
			"status_message": "Transaction doesn't exist.",
		})
	}))
	defer srv.Close()

	client := NewMidtransClient(MidtransConfig{ServerKey: "k", SnapBaseURL: srv.URL, CoreBaseURL: srv.URL})

	_, err := client.Status(context.Background(), "ORD-ghost")
	assert.Error(t, err)
}

func TestStatusServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewMidtransClient(MidtransConfig{ServerKey: "k", SnapBaseURL: srv.URL, CoreBaseURL: srv.URL})

	_, err := client.Status(context.Background(), "ORD-1")
	assert.Error(t, err)
}

func TestParseGrossAmount(t *testing.T) {
	cases := map[string]int64{
		"100000.00": 100000,
		"50000":     50000,
		"":          0,
		"abc":       0,
	}
	for input, expected := range cases {
		assert.Equal(t, expected, parseGrossAmount(input), "input %q", input)
	}
}

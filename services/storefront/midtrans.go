package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Default Midtrans sandbox hosts. Overridable for tests and production.
const (
	DefaultSnapBaseURL = "https://app.sandbox.midtrans.com"
	DefaultCoreBaseURL = "https://api.sandbox.midtrans.com"
)

// MidtransClient talks to Midtrans Snap (session creation) and the Core API
// (authoritative status). It implements PaymentGateway.
type MidtransClient struct {
	snap        *resty.Client
	core        *resty.Client
	frontendURL string
}

// MidtransConfig carries the gateway settings read from the environment.
type MidtransConfig struct {
	ServerKey   string
	SnapBaseURL string
	CoreBaseURL string
	FrontendURL string
}

// NewMidtransClient builds the gateway client. Midtrans authenticates with HTTP
// basic auth using the server key as username and an empty password.
func NewMidtransClient(cfg MidtransConfig) *MidtransClient {
	if cfg.SnapBaseURL == "" {
		cfg.SnapBaseURL = DefaultSnapBaseURL
	}
	if cfg.CoreBaseURL == "" {
		cfg.CoreBaseURL = DefaultCoreBaseURL
	}
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.ServerKey+":"))
	newClient := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetHeader("Accept", "application/json").
			SetHeader("Content-Type", "application/json").
			SetHeader("Authorization", auth)
	}
	return &MidtransClient{
		snap:        newClient(cfg.SnapBaseURL),
		core:        newClient(cfg.CoreBaseURL),
		frontendURL: cfg.FrontendURL,
	}
}

type snapTransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type snapCallbacks struct {
	Finish string `json:"finish,omitempty"`
	Error  string `json:"error,omitempty"`
}

type snapRequest struct {
	TransactionDetails snapTransactionDetails `json:"transaction_details"`
	ItemDetails        []SessionItem          `json:"item_details"`
	CustomerDetails    CustomerDetails        `json:"customer_details"`
	Callbacks          *snapCallbacks         `json:"callbacks,omitempty"`
}

type snapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages,omitempty"`
}

// CreateSession creates a Snap transaction for the order. The gross amount must
// equal the sum of item price times quantity; Midtrans rejects mismatches, so the
// defect is caught here before the network call.
func (c *MidtransClient) CreateSession(ctx context.Context, req SessionRequest) (PaymentSession, error) {
	var itemTotal int64
	for _, item := range req.Items {
		itemTotal += item.Price * int64(item.Quantity)
	}
	if itemTotal != req.GrossAmount {
		return PaymentSession{}, fmt.Errorf("%w: items total %d, gross amount %d",
			ErrGrossAmountMismatch, itemTotal, req.GrossAmount)
	}

	payload := snapRequest{
		TransactionDetails: snapTransactionDetails{
			OrderID:     req.OrderID,
			GrossAmount: req.GrossAmount,
		},
		ItemDetails:     req.Items,
		CustomerDetails: req.Customer,
	}
	if c.frontendURL != "" {
		payload.Callbacks = &snapCallbacks{
			Finish: c.frontendURL + "?payment=success",
			Error:  c.frontendURL + "?payment=error",
		}
	}

	var out snapResponse
	resp, err := c.snap.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post("/snap/v1/transactions")
	if err != nil {
		return PaymentSession{}, fmt.Errorf("midtrans snap request: %w", err)
	}
	if resp.IsError() {
		return PaymentSession{}, fmt.Errorf("midtrans snap returned %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Token == "" || out.RedirectURL == "" {
		return PaymentSession{}, fmt.Errorf("midtrans snap response missing token or redirect url")
	}
	return PaymentSession{
		OrderID:     req.OrderID,
		GrossAmount: req.GrossAmount,
		Token:       out.Token,
		RedirectURL: out.RedirectURL,
	}, nil
}

type coreStatusResponse struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
}

// Status queries the Core API for the transaction's current status. It is a pure
// read; any transport error or non-2xx answer is returned as an error so callers
// can fall back.
func (c *MidtransClient) Status(ctx context.Context, orderID string) (ProviderStatus, error) {
	var out coreStatusResponse
	resp, err := c.core.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v2/%s/status", orderID))
	if err != nil {
		return ProviderStatus{}, fmt.Errorf("midtrans status request: %w", err)
	}
	if resp.IsError() {
		return ProviderStatus{}, fmt.Errorf("midtrans status returned %d: %s", resp.StatusCode(), resp.String())
	}
	// Midtrans answers HTTP 200 with an embedded status_code; 404 there means the
	// transaction does not exist.
	if out.StatusCode == "404" {
		return ProviderStatus{}, fmt.Errorf("midtrans has no transaction for order %s", orderID)
	}
	return ProviderStatus{
		OrderID:           out.OrderID,
		TransactionStatus: out.TransactionStatus,
		StatusCode:        out.StatusCode,
		GrossAmount:       parseGrossAmount(out.GrossAmount),
		PaymentType:       out.PaymentType,
		FraudStatus:       out.FraudStatus,
		TransactionID:     out.TransactionID,
		StatusMessage:     out.StatusMessage,
	}, nil
}

// parseGrossAmount converts Midtrans' decimal string ("100000.00") to whole rupiah.
func parseGrossAmount(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

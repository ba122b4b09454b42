// Package omise adapts the Omise API to payment.Gateway. Holds are charges
// created with capture disabled; the provider's recipient id travels in the
// charge metadata for the payout transfer.
package omise

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"

	"github.com/BruksfildServices01/marketplace-exchange/internal/payment"
)

const (
	statusSuccessful = "successful"
	statusFailed     = "failed"
	statusReversed   = "reversed"
	statusExpired    = "expired"
)

type Gateway struct {
	client *omise.Client
}

func New(publicKey, secretKey string) (*Gateway, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, err
	}
	return &Gateway{client: c}, nil
}

// do runs a client call and gives up waiting when ctx ends. The SDK has no
// context support, so an abandoned call may still complete remotely; that
// is reported as a connection error, which callers treat as ambiguous.
func (g *Gateway) do(ctx context.Context, call func() error) error {
	if err := ctx.Err(); err != nil {
		return &payment.GatewayError{Kind: payment.ConnectionError, Raw: err.Error()}
	}
	done := make(chan error, 1)
	go func() { done <- call() }()

	select {
	case err := <-done:
		if err != nil {
			return classify(err)
		}
		return nil
	case <-ctx.Done():
		return &payment.GatewayError{Kind: payment.ConnectionError, Raw: ctx.Err().Error()}
	}
}

func (g *Gateway) CreatePayer(ctx context.Context, in payment.PayerRequest) (string, error) {
	cust := &omise.Customer{}
	op := &operations.CreateCustomer{
		Email:       in.Email,
		Description: in.Description,
		Card:        in.Token,
	}
	if err := g.do(ctx, func() error { return g.client.Do(cust, op) }); err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (g *Gateway) createCharge(ctx context.Context, in payment.ChargeRequest, capture bool) (*omise.Charge, error) {
	ch := &omise.Charge{}
	op := &operations.CreateCharge{
		Customer:    in.PayerRef,
		Amount:      in.Amount.Amount,
		Currency:    strings.ToLower(in.Amount.Currency),
		Description: in.Description,
		DontCapture: !capture,
		Metadata: map[string]interface{}{
			"transaction_id": in.Reference,
			"recipient":      in.Destination,
		},
	}
	if in.PayerRef == "" {
		op.Card = in.Token
	}
	if err := g.do(ctx, func() error { return g.client.Do(ch, op) }); err != nil {
		return nil, err
	}
	if string(ch.Status) == statusFailed {
		return nil, declined(ch)
	}
	return ch, nil
}

func (g *Gateway) Authorize(ctx context.Context, in payment.ChargeRequest) (string, error) {
	ch, err := g.createCharge(ctx, in, false)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (g *Gateway) Charge(ctx context.Context, in payment.ChargeRequest) (string, error) {
	ch, err := g.createCharge(ctx, in, true)
	if err != nil {
		return "", err
	}
	if string(ch.Status) != statusSuccessful {
		return "", payment.NewError(payment.CardDeclined, "", "charge left in status "+string(ch.Status))
	}
	return ch.ID, nil
}

// Capture reads the charge first so a repeated capture is answered from
// the charge state instead of the API's failed_capture error.
func (g *Gateway) Capture(ctx context.Context, chargeID string) (string, error) {
	current := &omise.Charge{}
	retrieve := &operations.RetrieveCharge{ChargeID: chargeID}
	if err := g.do(ctx, func() error { return g.client.Do(current, retrieve) }); err != nil {
		return "", err
	}
	switch string(current.Status) {
	case statusSuccessful:
		return "", &payment.GatewayError{Kind: payment.AlreadyCaptured, Reference: current.ID}
	case statusReversed, statusExpired:
		return "", payment.NewError(payment.InvalidRequest, "The authorization is no longer valid.", "charge "+string(current.Status))
	case statusFailed:
		return "", declined(current)
	}

	ch := &omise.Charge{}
	capture := &operations.CaptureCharge{ChargeID: chargeID}
	if err := g.do(ctx, func() error { return g.client.Do(ch, capture) }); err != nil {
		return "", err
	}
	if string(ch.Status) == statusFailed {
		return "", declined(ch)
	}
	return ch.ID, nil
}

func (g *Gateway) Void(ctx context.Context, chargeID string) error {
	ch := &omise.Charge{}
	reverse := &operations.ReverseCharge{ChargeID: chargeID}
	return g.do(ctx, func() error { return g.client.Do(ch, reverse) })
}

// ======================================================
// ERROR CLASSIFICATION
// ======================================================

func declined(ch *omise.Charge) *payment.GatewayError {
	raw := "charge failed"
	if ch.FailureCode != nil {
		raw = *ch.FailureCode
	}
	msg := ""
	if ch.FailureMessage != nil {
		msg = *ch.FailureMessage
	}
	return &payment.GatewayError{Kind: payment.CardDeclined, Message: msg, Raw: raw, Reference: ch.ID}
}

func classify(err error) error {
	var resp *omise.Error
	if errors.As(err, &resp) {
		return classifyResponse(resp.StatusCode, resp.Code, resp.Message)
	}
	// Unreadable response bodies: the request may have been applied.
	var transport *omise.ErrTransport
	if errors.As(err, &transport) {
		return &payment.GatewayError{Kind: payment.ConnectionError, Raw: err.Error()}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &payment.GatewayError{Kind: payment.ConnectionError, Raw: err.Error()}
	}
	return &payment.GatewayError{Kind: payment.Unclassified, Raw: err.Error()}
}

func classifyResponse(status int, code, message string) *payment.GatewayError {
	raw := code
	if message != "" {
		raw = code + ": " + message
	}
	switch {
	case status == 401 || status == 403 || code == "authentication_failure":
		return &payment.GatewayError{Kind: payment.AuthenticationFailed, Raw: raw}
	case status == 429:
		return &payment.GatewayError{Kind: payment.RateLimited, Raw: raw}
	case status >= 500:
		return &payment.GatewayError{Kind: payment.ConnectionError, Raw: raw}
	case isCardCode(code):
		return &payment.GatewayError{Kind: payment.CardDeclined, Message: message, Raw: raw}
	case status >= 400:
		return &payment.GatewayError{Kind: payment.InvalidRequest, Raw: raw}
	}
	return &payment.GatewayError{Kind: payment.Unclassified, Raw: raw}
}

func isCardCode(code string) bool {
	switch code {
	case "invalid_card", "used_token", "failed_capture", "insufficient_fund",
		"stolen_or_lost_card", "failed_processing", "invalid_security_code":
		return true
	}
	return false
}

var _ payment.Gateway = (*Gateway)(nil)

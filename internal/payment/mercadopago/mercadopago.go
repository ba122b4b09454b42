// Package mercadopago adapts the Mercado Pago payments API to
// payment.Gateway. Holds are payments created with capture disabled.
package mercadopago

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/customer"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	mppayment "github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/requester"

	"github.com/BruksfildServices01/marketplace-exchange/internal/payment"
)

const (
	statusApproved   = "approved"
	statusAuthorized = "authorized"
	statusRejected   = "rejected"
	statusCancelled  = "cancelled"
	statusRefunded   = "refunded"

	httpTimeout = 30 * time.Second
)

type Gateway struct {
	payments  mppayment.Client
	customers customer.Client
}

func New(accessToken string) (*Gateway, error) {
	return NewWithRequester(accessToken, &http.Client{Timeout: httpTimeout})
}

// NewWithRequester sends API calls through r. Payment creates are rewritten
// so that holds carry an explicit capture=false.
func NewWithRequester(accessToken string, r requester.Requester) (*Gateway, error) {
	cfg, err := config.New(accessToken, config.WithHTTPClient(&holdRequester{next: r}))
	if err != nil {
		return nil, fmt.Errorf("mercadopago config: %w", err)
	}
	return &Gateway{
		payments:  mppayment.NewClient(cfg),
		customers: customer.NewClient(cfg),
	}, nil
}

func (g *Gateway) CreatePayer(ctx context.Context, in payment.PayerRequest) (string, error) {
	res, err := g.customers.Create(ctx, customer.Request{Email: in.Email})
	if err != nil {
		return "", classify(err)
	}
	return res.ID, nil
}

func (g *Gateway) create(ctx context.Context, in payment.ChargeRequest, capture bool) (*mppayment.Response, error) {
	req := mppayment.Request{
		TransactionAmount: in.Amount.Major(),
		Token:             in.Token,
		PaymentMethodID:   in.MethodID,
		Installments:      1,
		Capture:           capture,
		Description:       in.Description,
		ExternalReference: in.Reference,
		Metadata: map[string]any{
			"transaction_id": in.Reference,
			"collector":      in.Destination,
		},
		Payer: &mppayment.PayerRequest{
			Type:  "customer",
			ID:    in.PayerRef,
			Email: in.Email,
		},
	}
	res, err := g.payments.Create(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	if res.Status == statusRejected {
		return nil, &payment.GatewayError{
			Kind:      payment.CardDeclined,
			Raw:       res.StatusDetail,
			Reference: strconv.Itoa(res.ID),
		}
	}
	return res, nil
}

func (g *Gateway) Authorize(ctx context.Context, in payment.ChargeRequest) (string, error) {
	res, err := g.create(ctx, in, false)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(res.ID), nil
}

func (g *Gateway) Charge(ctx context.Context, in payment.ChargeRequest) (string, error) {
	res, err := g.create(ctx, in, true)
	if err != nil {
		return "", err
	}
	if res.Status != statusApproved {
		return "", payment.NewError(payment.CardDeclined, "", "payment left in status "+res.Status)
	}
	return strconv.Itoa(res.ID), nil
}

func parseID(ref string) (int, error) {
	id, err := strconv.Atoi(ref)
	if err != nil {
		return 0, payment.NewError(payment.InvalidRequest, "", "malformed payment id "+ref)
	}
	return id, nil
}

func (g *Gateway) Capture(ctx context.Context, ref string) (string, error) {
	id, err := parseID(ref)
	if err != nil {
		return "", err
	}

	current, err := g.payments.Get(ctx, id)
	if err != nil {
		return "", classify(err)
	}
	switch {
	case current.Status == statusApproved && current.Captured:
		return "", &payment.GatewayError{Kind: payment.AlreadyCaptured, Reference: ref}
	case current.Status == statusCancelled || current.Status == statusRefunded:
		return "", payment.NewError(payment.InvalidRequest, "The authorization is no longer valid.", "payment "+current.Status)
	case current.Status != statusAuthorized:
		return "", payment.NewError(payment.InvalidRequest, "", "payment in status "+current.Status)
	}

	res, err := g.payments.Capture(ctx, id)
	if err != nil {
		return "", classify(err)
	}
	if res.Status != statusApproved {
		return "", &payment.GatewayError{Kind: payment.CardDeclined, Raw: res.StatusDetail, Reference: ref}
	}
	return strconv.Itoa(res.ID), nil
}

func (g *Gateway) Void(ctx context.Context, ref string) error {
	id, err := parseID(ref)
	if err != nil {
		return err
	}
	if _, err := g.payments.Cancel(ctx, id); err != nil {
		return classify(err)
	}
	return nil
}

// ======================================================
// ERROR CLASSIFICATION
// ======================================================

func classify(err error) error {
	var resp *mperror.ResponseError
	if errors.As(err, &resp) {
		return classifyStatus(resp.StatusCode, resp.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &payment.GatewayError{Kind: payment.ConnectionError, Raw: err.Error()}
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &payment.GatewayError{Kind: payment.ConnectionError, Raw: err.Error()}
	}
	return &payment.GatewayError{Kind: payment.Unclassified, Raw: err.Error()}
}

func classifyStatus(status int, message string) *payment.GatewayError {
	switch {
	case status == 401 || status == 403:
		return &payment.GatewayError{Kind: payment.AuthenticationFailed, Raw: message}
	case status == 429:
		return &payment.GatewayError{Kind: payment.RateLimited, Raw: message}
	case status >= 500:
		return &payment.GatewayError{Kind: payment.ConnectionError, Raw: message}
	case status == 402:
		return &payment.GatewayError{Kind: payment.CardDeclined, Raw: message}
	case status >= 400:
		return &payment.GatewayError{Kind: payment.InvalidRequest, Raw: message}
	}
	return &payment.GatewayError{Kind: payment.Unclassified, Raw: message}
}

var _ payment.Gateway = (*Gateway)(nil)

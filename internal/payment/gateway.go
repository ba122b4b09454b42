package payment

import (
	"context"

	"github.com/BruksfildServices01/marketplace-exchange/internal/money"
)

type PayerRequest struct {
	Email       string
	Token       string
	Description string
}

type ChargeRequest struct {
	// PayerRef is the gateway customer created by CreatePayer.
	PayerRef    string
	Token       string
	MethodID    string
	Email       string
	Amount      money.Money
	Destination string
	Description string
	// Reference is the transaction id, passed along as metadata.
	Reference string
}

// Gateway is one payment provider. Implementations return *GatewayError
// for every provider failure.
type Gateway interface {
	CreatePayer(ctx context.Context, in PayerRequest) (string, error)

	// Authorize places a hold without capturing it.
	Authorize(ctx context.Context, in ChargeRequest) (string, error)

	// Charge authorizes and captures in one call.
	Charge(ctx context.Context, in ChargeRequest) (string, error)

	Capture(ctx context.Context, authorizationRef string) (string, error)

	Void(ctx context.Context, authorizationRef string) error
}

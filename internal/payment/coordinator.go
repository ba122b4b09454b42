// Package payment authorizes and captures money through the configured
// gateway. Failures are classified once, retried when transient, and fenced
// by a circuit breaker per gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/process"
	"github.com/BruksfildServices01/marketplace-exchange/internal/money"
)

type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type BreakerPolicy struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration
}

type Options struct {
	SettlementCurrency string
	// Timeout bounds each gateway attempt. Zero leaves it to the caller.
	Timeout time.Duration
	Retry   RetryPolicy
	Breaker BreakerPolicy
}

type guarded struct {
	kind    process.Gateway
	gw      Gateway
	breaker *gobreaker.CircuitBreaker
}

type Coordinator struct {
	gateways map[process.Gateway]*guarded
	opts     Options
	logger   *zap.Logger
}

func NewCoordinator(opts Options, logger *zap.Logger) *Coordinator {
	if opts.Retry.InitialInterval <= 0 {
		opts.Retry.InitialInterval = 200 * time.Millisecond
	}
	if opts.Retry.MaxInterval <= 0 {
		opts.Retry.MaxInterval = 2 * time.Second
	}
	if opts.Breaker.ConsecutiveFailures == 0 {
		opts.Breaker.ConsecutiveFailures = 5
	}
	if opts.Breaker.Timeout <= 0 {
		opts.Breaker.Timeout = 30 * time.Second
	}
	return &Coordinator{
		gateways: make(map[process.Gateway]*guarded),
		opts:     opts,
		logger:   logger,
	}
}

// Register installs the adapter for a gateway kind. Not safe to call once
// the coordinator is serving requests.
func (c *Coordinator) Register(kind process.Gateway, gw Gateway) {
	failures := c.opts.Breaker.ConsecutiveFailures
	logger := c.logger
	c.gateways[kind] = &guarded{
		kind: kind,
		gw:   gw,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gateway-" + string(kind),
			MaxRequests: 1,
			Timeout:     c.opts.Breaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			// Declines and bad requests say nothing about gateway health.
			IsSuccessful: func(err error) bool {
				return err == nil || !IsTransient(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("payment circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

func (c *Coordinator) Supports(kind process.Gateway) bool {
	_, ok := c.gateways[kind]
	return ok
}

func (c *Coordinator) SettlementCurrency() string {
	return c.opts.SettlementCurrency
}

// ======================================================
// OPERATIONS
// ======================================================

type AuthorizeInput struct {
	Gateway     process.Gateway
	Amount      money.Money
	Payer       PayerRequest
	MethodID    string
	Destination string
	// PayeeName names the provider in the missing destination message.
	PayeeName   string
	Reference   string
	Description string
}

// Authorize creates the payer on the gateway and places a hold for the
// amount without capturing it.
func (c *Coordinator) Authorize(ctx context.Context, in AuthorizeInput) (string, error) {
	return c.hold(ctx, in, false)
}

// Charge is Authorize with immediate capture.
func (c *Coordinator) Charge(ctx context.Context, in AuthorizeInput) (string, error) {
	return c.hold(ctx, in, true)
}

func (c *Coordinator) hold(ctx context.Context, in AuthorizeInput, capture bool) (string, error) {
	g, err := c.gateway(in.Gateway)
	if err != nil {
		return "", err
	}
	if in.Destination == "" {
		return "", MissingDestination(in.PayeeName)
	}
	if in.Amount.Amount <= 0 {
		return "", NewError(InvalidRequest, "The amount to pay must be positive.", in.Amount.String())
	}
	if c.opts.SettlementCurrency != "" && in.Amount.Currency != c.opts.SettlementCurrency {
		return "", NewError(
			InvalidRequest,
			"This marketplace only accepts payments in "+c.opts.SettlementCurrency+".",
			"currency "+in.Amount.Currency,
		)
	}

	payerRef, err := c.call(ctx, g, "create_payer", true, func(ctx context.Context) (string, error) {
		return g.gw.CreatePayer(ctx, in.Payer)
	})
	if err != nil {
		return "", err
	}

	req := ChargeRequest{
		PayerRef:    payerRef,
		Token:       in.Payer.Token,
		MethodID:    in.MethodID,
		Email:       in.Payer.Email,
		Amount:      in.Amount,
		Destination: in.Destination,
		Description: in.Description,
		Reference:   in.Reference,
	}

	// A hold that timed out may still exist remotely, so only rejections
	// the gateway made before processing are retried.
	if capture {
		return c.call(ctx, g, "charge", false, func(ctx context.Context) (string, error) {
			return g.gw.Charge(ctx, req)
		})
	}
	return c.call(ctx, g, "authorize", false, func(ctx context.Context) (string, error) {
		return g.gw.Authorize(ctx, req)
	})
}

// Capture settles a hold. Adapters check the remote charge first, so a
// repeated capture answers AlreadyCaptured instead of charging twice.
func (c *Coordinator) Capture(ctx context.Context, kind process.Gateway, authorizationRef string) (string, error) {
	if authorizationRef == "" {
		return "", NewError(InvalidRequest, "There is no authorized payment to capture.", "missing authorization reference")
	}
	g, err := c.gateway(kind)
	if err != nil {
		return "", err
	}
	return c.call(ctx, g, "capture", true, func(ctx context.Context) (string, error) {
		return g.gw.Capture(ctx, authorizationRef)
	})
}

// Void releases a hold.
func (c *Coordinator) Void(ctx context.Context, kind process.Gateway, authorizationRef string) error {
	if authorizationRef == "" {
		return nil
	}
	g, err := c.gateway(kind)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, g, "void", true, func(ctx context.Context) (string, error) {
		return "", g.gw.Void(ctx, authorizationRef)
	})
	return err
}

func MissingDestination(payee string) *GatewayError {
	if payee == "" {
		payee = "the provider"
	}
	return NewError(
		InvalidRequest,
		fmt.Sprintf("Unfortunately, %s still hasn't set up their payment preferences and cannot accept payments yet.", payee),
		"missing destination account",
	)
}

// ======================================================
// INTERNALS
// ======================================================

func (c *Coordinator) gateway(kind process.Gateway) (*guarded, error) {
	g, ok := c.gateways[kind]
	if !ok {
		return nil, NewError(InvalidRequest, "Payments are not available for this listing.", "no adapter for gateway "+string(kind))
	}
	return g, nil
}

func (c *Coordinator) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.Retry.InitialInterval
	eb.MaxInterval = c.opts.Retry.MaxInterval
	eb.MaxElapsedTime = 0
	eb.Reset()

	retries := c.opts.Retry.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

func (c *Coordinator) call(
	ctx context.Context,
	g *guarded,
	op string,
	idempotent bool,
	fn func(context.Context) (string, error),
) (string, error) {

	var out string
	operation := func() error {
		res, err := g.breaker.Execute(func() (interface{}, error) {
			actx, cancel := ctx, context.CancelFunc(func() {})
			if c.opts.Timeout > 0 {
				actx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
			}
			defer cancel()
			return fn(actx)
		})
		if err != nil {
			err = classify(err)
			if retryable(err, idempotent) {
				return err
			}
			return backoff.Permanent(err)
		}
		out, _ = res.(string)
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("payment call failed, retrying",
			zap.String("gateway", string(g.kind)),
			zap.String("op", op),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, c.backOff(ctx), notify); err != nil {
		err = classify(err)
		c.logger.Info("payment call failed",
			zap.String("gateway", string(g.kind)),
			zap.String("op", op),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		return "", err
	}
	return out, nil
}

// retryable: a rate limit was refused before anything happened. A connection
// error may hide a hold or charge that went through, so only calls that are
// safe to repeat (payer, capture, void) try again.
func retryable(err error, idempotent bool) bool {
	switch KindOf(err) {
	case RateLimited:
		return true
	case ConnectionError:
		return idempotent
	}
	return false
}

// classify makes sure whatever reaches the state machine is a *GatewayError.
func classify(err error) error {
	if _, ok := AsGatewayError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &GatewayError{
			Kind:    ConnectionError,
			Message: "The payment provider is temporarily unavailable, please try again later.",
			Raw:     err.Error(),
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &GatewayError{Kind: ConnectionError, Raw: err.Error()}
	}
	return &GatewayError{Kind: Unclassified, Raw: err.Error()}
}

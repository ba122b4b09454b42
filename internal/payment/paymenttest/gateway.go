// Package paymenttest provides a scripted in-memory payment.Gateway.
package paymenttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/BruksfildServices01/marketplace-exchange/internal/payment"
)

const (
	OpCreatePayer = "create_payer"
	OpAuthorize   = "authorize"
	OpCharge      = "charge"
	OpCapture     = "capture"
	OpVoid        = "void"
)

// Gateway behaves like a real provider: captures are remembered per hold,
// a second capture answers AlreadyCaptured, voided holds cannot be
// captured. Failures are queued per operation with FailNext.
type Gateway struct {
	mu       sync.Mutex
	seq      int
	calls    map[string]int
	failures map[string][]error
	holds    map[string]payment.ChargeRequest
	captured map[string]string
	voided   map[string]bool
	captures int

	// OnCapture runs at the start of every Capture call, outside the mutex.
	OnCapture func(authorizationRef string)
}

func New() *Gateway {
	return &Gateway{
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		holds:    make(map[string]payment.ChargeRequest),
		captured: make(map[string]string),
		voided:   make(map[string]bool),
	}
}

func (g *Gateway) FailNext(op string, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], errs...)
}

func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Captures counts captures that actually moved money.
func (g *Gateway) Captures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captures
}

func (g *Gateway) Captured(authorizationRef string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref, ok := g.captured[authorizationRef]
	return ref, ok
}

func (g *Gateway) Voided(authorizationRef string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.voided[authorizationRef]
}

func (g *Gateway) Hold(authorizationRef string) (payment.ChargeRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[authorizationRef]
	return h, ok
}

// begin counts the call and pops a queued failure. Callers hold g.mu.
func (g *Gateway) begin(op string) error {
	g.calls[op]++
	if q := g.failures[op]; len(q) > 0 {
		g.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (g *Gateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *Gateway) CreatePayer(ctx context.Context, in payment.PayerRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpCreatePayer); err != nil {
		return "", err
	}
	return g.next("cust"), nil
}

func (g *Gateway) Authorize(ctx context.Context, in payment.ChargeRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpAuthorize); err != nil {
		return "", err
	}
	ref := g.next("auth")
	g.holds[ref] = in
	return ref, nil
}

func (g *Gateway) Charge(ctx context.Context, in payment.ChargeRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpCharge); err != nil {
		return "", err
	}
	ref := g.next("chrg")
	g.holds[ref] = in
	g.captured[ref] = ref
	g.captures++
	return ref, nil
}

func (g *Gateway) Capture(ctx context.Context, authorizationRef string) (string, error) {
	if g.OnCapture != nil {
		g.OnCapture(authorizationRef)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpCapture); err != nil {
		return "", err
	}
	if _, ok := g.holds[authorizationRef]; !ok {
		return "", payment.NewError(payment.InvalidRequest, "", "no such charge "+authorizationRef)
	}
	if ref, ok := g.captured[authorizationRef]; ok {
		return "", &payment.GatewayError{Kind: payment.AlreadyCaptured, Reference: ref}
	}
	if g.voided[authorizationRef] {
		return "", payment.NewError(payment.InvalidRequest, "The authorization was voided.", "charge reversed")
	}
	ref := g.next("cap")
	g.captured[authorizationRef] = ref
	g.captures++
	return ref, nil
}

func (g *Gateway) Void(ctx context.Context, authorizationRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpVoid); err != nil {
		return err
	}
	if _, ok := g.captured[authorizationRef]; ok {
		return payment.NewError(payment.InvalidRequest, "", "charge already captured")
	}
	g.voided[authorizationRef] = true
	return nil
}

var _ payment.Gateway = (*Gateway)(nil)

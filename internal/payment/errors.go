package payment

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures once, at the adapter boundary.
type ErrorKind string

const (
	CardDeclined         ErrorKind = "card_declined"
	RateLimited          ErrorKind = "rate_limited"
	InvalidRequest       ErrorKind = "invalid_request"
	AuthenticationFailed ErrorKind = "authentication_failed"
	ConnectionError      ErrorKind = "connection_error"
	Unclassified         ErrorKind = "unclassified"

	// AlreadyCaptured is returned by Capture when the charge was captured
	// earlier. Reference carries the existing capture reference.
	AlreadyCaptured ErrorKind = "already_captured"
)

type GatewayError struct {
	Kind ErrorKind
	// Message is safe to show to the requester.
	Message string
	// Raw is the provider's own message, for operators.
	Raw       string
	Reference string
}

func (e *GatewayError) Error() string {
	if e.Raw != "" && e.Raw != e.Message {
		return fmt.Sprintf("payment %s: %s (%s)", e.Kind, e.Message, e.Raw)
	}
	return fmt.Sprintf("payment %s: %s", e.Kind, e.Message)
}

// Transient failures may succeed when retried unchanged.
func (e *GatewayError) Transient() bool {
	return e.Kind == RateLimited || e.Kind == ConnectionError
}

// UserMessage is what the requester sees for this failure.
func (e *GatewayError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case CardDeclined:
		return "Your card was declined."
	case RateLimited:
		return "The payment provider is busy, please try again in a moment."
	case AuthenticationFailed:
		return "Payments are temporarily unavailable."
	case ConnectionError:
		return "We could not reach the payment provider, please try again."
	case InvalidRequest:
		return "The payment request was rejected."
	case AlreadyCaptured:
		return "This payment was already captured."
	}
	return "Something went wrong with the payment."
}

func NewError(kind ErrorKind, message, raw string) *GatewayError {
	return &GatewayError{Kind: kind, Message: message, Raw: raw}
}

func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

func KindOf(err error) ErrorKind {
	if ge, ok := AsGatewayError(err); ok {
		return ge.Kind
	}
	if err != nil {
		return Unclassified
	}
	return ""
}

func IsTransient(err error) bool {
	ge, ok := AsGatewayError(err)
	return ok && ge.Transient()
}

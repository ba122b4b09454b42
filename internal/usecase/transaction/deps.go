// Package transaction runs the transaction state machine: creation,
// provider decisions, capture and the conversation side channels.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/process"
	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/events"
	"github.com/BruksfildServices01/marketplace-exchange/internal/lock"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
	"github.com/BruksfildServices01/marketplace-exchange/internal/money"
	"github.com/BruksfildServices01/marketplace-exchange/internal/payment"
	"github.com/BruksfildServices01/marketplace-exchange/internal/timezone"
	"github.com/BruksfildServices01/marketplace-exchange/internal/usecase/booking"
)

const (
	msgAccepted = "Appointment Accepted"
	msgDenied   = "Appointment Denied"
)

// Payments is the part of the payment coordinator the state machine uses.
type Payments interface {
	Supports(kind process.Gateway) bool
	SettlementCurrency() string
	Authorize(ctx context.Context, in payment.AuthorizeInput) (string, error)
	Charge(ctx context.Context, in payment.AuthorizeInput) (string, error)
	Capture(ctx context.Context, kind process.Gateway, authorizationRef string) (string, error)
	Void(ctx context.Context, kind process.Gateway, authorizationRef string) error
}

var _ Payments = (*payment.Coordinator)(nil)

// Deps is shared by every use case of the package.
type Deps struct {
	Transactions domain.TransactionRepository
	Bookings     domain.BookingRepository
	Catalog      domain.Catalog
	Resolver     *booking.Resolver
	Payments     Payments
	Locks        lock.Locker
	Events       events.Sink
	Logger       *zap.Logger
	Now          func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Deps) load(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := d.Transactions.Get(ctx, id)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, domain.ErrNotFound("transaction_not_found", "transaction "+id+" not found")
	}
	return tx, err
}

func (d *Deps) person(ctx context.Context, id uint, role string) (*models.Person, error) {
	p, err := d.Catalog.Person(ctx, id)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, domain.ErrNotFound(role+"_not_found", fmt.Sprintf("%s %d not found", role, id))
	}
	return p, err
}

// commit moves tx from one state to another, or leaves it untouched.
func (d *Deps) commit(ctx context.Context, tx *models.Transaction, from, to domain.State) error {
	if err := domain.ValidateTransition(from, to); err != nil {
		return err
	}
	tx.State = string(to)
	if err := d.Transactions.Transition(ctx, tx, from); err != nil {
		tx.State = string(from)
		return err
	}
	return nil
}

func (d *Deps) emit(tx *models.Transaction, kind events.Kind, actor uint, payload map[string]any) {
	a := actor
	d.Events.Emit(events.Event{
		TransactionID: tx.ID,
		CommunityID:   tx.CommunityID,
		ActorID:       &a,
		Kind:          kind,
		Payload:       payload,
		OccurredAt:    d.now(),
	})
}

// postMessage adds a line to the conversation. Failures are logged only:
// the state change it describes is already committed.
func (d *Deps) postMessage(ctx context.Context, tx *models.Transaction, sender uint, content string) {
	msg := &models.Message{
		TransactionID: tx.ID,
		SenderID:      sender,
		Content:       content,
		CreatedAt:     d.now(),
	}
	if err := d.Transactions.AppendMessage(ctx, msg); err != nil {
		d.Logger.Error("append message failed",
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
	}
}

func (d *Deps) markDecided(ctx context.Context, tx *models.Transaction) {
	if err := d.Bookings.MarkDecided(ctx, tx.ID, d.now()); err != nil {
		d.Logger.Error("mark booking decided failed",
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
	}
}

func (d *Deps) lockTx(ctx context.Context, id string) (lock.Unlock, error) {
	return d.Locks.Lock(ctx, lock.TransactionKey(id))
}

// lockOutcome takes the transaction lock to record a gateway outcome. The
// outcome commit is a compare-and-set, so when the lock cannot be had it
// goes ahead without one rather than strand the transaction.
func (d *Deps) lockOutcome(ctx context.Context, id string) lock.Unlock {
	unlock, err := d.lockTx(ctx, id)
	if err != nil {
		d.Logger.Warn("recording outcome without transaction lock",
			zap.String("transaction_id", id),
			zap.Error(err),
		)
		return func() {}
	}
	return unlock
}

// takeLease grabs the capture lease or reports the capture as in flight.
func (d *Deps) takeLease(ctx context.Context, id string) (lock.Unlock, error) {
	lease, ok, err := d.Locks.TryLock(ctx, lock.CaptureKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidState("capture_in_progress", "the payment capture is already in progress")
	}
	return lease, nil
}

// capture settles the hold of a capture_pending transaction. The caller
// holds the lease and no other lock; the lease is released on return.
func (d *Deps) capture(ctx context.Context, tx *models.Transaction, actor uint, lease lock.Unlock) (*models.Transaction, error) {
	defer lease()

	ref, err := d.Payments.Capture(ctx, process.Gateway(tx.GatewayKind), deref(tx.AuthorizationRef))
	if ge, ok := payment.AsGatewayError(err); ok && ge.Kind == payment.AlreadyCaptured {
		d.Logger.Info("charge already captured, recording it",
			zap.String("transaction_id", tx.ID),
			zap.String("capture_ref", ge.Reference),
		)
		ref, err = ge.Reference, nil
		if ref == "" {
			ref = deref(tx.AuthorizationRef)
		}
	}

	// The outcome must be recorded even if the caller went away.
	cctx := context.WithoutCancel(ctx)
	defer d.lockOutcome(cctx, tx.ID)()

	fresh, lerr := d.load(cctx, tx.ID)
	if lerr != nil {
		return nil, lerr
	}

	if err != nil {
		fresh.LastError = userMessage(err)
		if cerr := d.commit(cctx, fresh, domain.StateCapturePending, domain.StateCaptureFailed); cerr != nil {
			return nil, cerr
		}
		d.Logger.Warn("capture failed",
			zap.String("transaction_id", fresh.ID),
			zap.String("kind", string(payment.KindOf(err))),
			zap.Error(err),
		)
		d.emit(fresh, events.KindErrored, actor, map[string]any{
			"reason":  string(payment.KindOf(err)),
			"message": fresh.LastError,
		})
		return nil, err
	}

	fresh.CaptureRef = &ref
	fresh.LastError = ""
	if cerr := d.commit(cctx, fresh, domain.StateCapturePending, domain.StateCompleted); cerr != nil {
		return nil, cerr
	}

	d.postMessage(cctx, fresh, actor, msgAccepted)
	d.emit(fresh, events.KindAccepted, actor, map[string]any{
		"message":     msgAccepted,
		"capture_ref": ref,
	})
	return fresh, nil
}

// amount recomputes what the requester pays from the stored price.
func amount(tx *models.Transaction) (money.Breakdown, error) {
	var shipping *money.Money
	if tx.ShippingPrice != nil {
		s := money.New(*tx.ShippingPrice, tx.Currency)
		shipping = &s
	}
	scheduled := tx.UnitType == models.UnitTypeHour || tx.UnitType == models.UnitTypeDay
	return money.Break(money.New(tx.UnitPrice, tx.Currency), tx.Quantity, shipping, scheduled)
}

func userMessage(err error) string {
	if ge, ok := payment.AsGatewayError(err); ok {
		return ge.UserMessage()
	}
	return err.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func locationOf(p *models.Person) *time.Location {
	return timezone.Location(p.Timezone)
}

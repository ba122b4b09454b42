package transaction

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/process"
	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/schedule"
	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/events"
	"github.com/BruksfildServices01/marketplace-exchange/internal/lock"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
	"github.com/BruksfildServices01/marketplace-exchange/internal/payment"
)

type DecideInput struct {
	TransactionID string
	ActorID       uint
	Decision      string
}

type DecideTransaction struct {
	*Deps
}

func NewDecideTransaction(deps *Deps) *DecideTransaction {
	return &DecideTransaction{Deps: deps}
}

// decidable is the state each process waits in for the provider.
func decidable(tx *models.Transaction) bool {
	switch process.Kind(tx.ProcessKind) {
	case process.Preauthorize:
		return tx.State == string(domain.StateAuthorized)
	case process.Postpay:
		return tx.State == string(domain.StateInitiated)
	}
	return false
}

// ======================================================
// EXECUTE
// ======================================================

// Execute applies the provider's decision. Repeating a decision that
// already took effect returns the transaction unchanged.
func (uc *DecideTransaction) Execute(
	ctx context.Context,
	in DecideInput,
) (*models.Transaction, error) {

	decision, err := domain.ParseDecision(in.Decision)
	if err != nil {
		return nil, err
	}

	tx, err := uc.load(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.ProviderID != in.ActorID {
		return nil, domain.ErrUnauthorized("only the provider can accept or deny this request")
	}

	if decision == domain.DecisionDeny {
		return uc.deny(ctx, in)
	}
	return uc.accept(ctx, in)
}

// ======================================================
// DENY
// ======================================================

func (uc *DecideTransaction) deny(ctx context.Context, in DecideInput) (*models.Transaction, error) {
	unlock, err := uc.lockTx(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}

	tx, err := uc.load(ctx, in.TransactionID)
	if err != nil {
		unlock()
		return nil, err
	}
	if tx.State == string(domain.StateDenied) {
		unlock()
		return tx, nil
	}
	if !decidable(tx) {
		unlock()
		return nil, domain.ErrInvalidState("already_decided", "the request was already answered")
	}

	from := domain.State(tx.State)
	tx.AppointmentDecision = string(domain.AppointmentDenied)
	if err := uc.commit(ctx, tx, from, domain.StateDenied); err != nil {
		unlock()
		return nil, err
	}
	unlock()

	cctx := context.WithoutCancel(ctx)
	uc.markDecided(cctx, tx)
	uc.postMessage(cctx, tx, in.ActorID, msgDenied)
	uc.emit(tx, events.KindDenied, in.ActorID, map[string]any{"message": msgDenied})

	// Releasing the hold is a courtesy; the gateway expires it anyway.
	if ref := deref(tx.AuthorizationRef); ref != "" {
		if err := uc.Payments.Void(cctx, process.Gateway(tx.GatewayKind), ref); err != nil {
			uc.Logger.Warn("void after deny failed",
				zap.String("transaction_id", tx.ID),
				zap.Error(err),
			)
		}
	}
	return tx, nil
}

// ======================================================
// ACCEPT
// ======================================================

func (uc *DecideTransaction) accept(ctx context.Context, in DecideInput) (*models.Transaction, error) {

	// --------------------------------------------------
	// 1. Locks: provider first, then the transaction
	// --------------------------------------------------
	bk, err := uc.Bookings.ForTransaction(ctx, in.TransactionID)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		return nil, err
	}
	if errors.Is(err, domain.ErrRecordNotFound) {
		bk = nil
	}

	release := []lock.Unlock{}
	unlockAll := func() {
		for i := len(release) - 1; i >= 0; i-- {
			release[i]()
		}
		release = nil
	}
	defer unlockAll()

	if bk != nil {
		u, err := uc.Locks.Lock(ctx, lock.ProviderKey(bk.ProviderID))
		if err != nil {
			return nil, err
		}
		release = append(release, u)
	}
	u, err := uc.lockTx(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	release = append(release, u)

	tx, err := uc.load(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	kind := process.Kind(tx.ProcessKind)

	// --------------------------------------------------
	// 2. Repeats and resumptions
	// --------------------------------------------------
	switch domain.State(tx.State) {
	case domain.StateCompleted:
		return tx, nil
	case domain.StateAccepted:
		if kind == process.Postpay {
			return tx, nil
		}
	case domain.StateCapturePending:
		if kind == process.Postpay {
			return tx, nil
		}
		lease, err := uc.takeLease(ctx, tx.ID)
		if err != nil {
			return nil, err
		}
		unlockAll()
		return uc.capture(ctx, tx, in.ActorID, lease)
	}
	if !decidable(tx) {
		return nil, domain.ErrInvalidState("already_decided", "the request was already answered")
	}

	// --------------------------------------------------
	// 3. The slot must still be free
	// --------------------------------------------------
	if bk != nil {
		iv := schedule.Interval{Start: bk.StartAt, End: bk.EndAt}
		if err := uc.Resolver.CheckConflict(ctx, bk.ProviderID, iv, tx.ID); err != nil {
			return nil, err
		}
	}

	from := domain.State(tx.State)
	tx.AppointmentDecision = string(domain.AppointmentAccepted)

	// --------------------------------------------------
	// 4. Postpay waits for the requester to pay
	// --------------------------------------------------
	if kind == process.Postpay {
		if err := uc.commit(ctx, tx, from, domain.StateAccepted); err != nil {
			return nil, err
		}
		unlockAll()

		cctx := context.WithoutCancel(ctx)
		uc.markDecided(cctx, tx)
		uc.postMessage(cctx, tx, in.ActorID, msgAccepted)
		uc.emit(tx, events.KindAccepted, in.ActorID, map[string]any{"message": msgAccepted})
		return tx, nil
	}

	// --------------------------------------------------
	// 5. Preauthorize captures the hold
	// --------------------------------------------------
	if deref(tx.AuthorizationRef) == "" {
		return nil, payment.NewError(payment.InvalidRequest, "transaction has no authorization to capture", "")
	}
	lease, err := uc.takeLease(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if err := uc.commit(ctx, tx, from, domain.StateCapturePending); err != nil {
		lease()
		return nil, err
	}
	unlockAll()

	uc.markDecided(context.WithoutCancel(ctx), tx)
	return uc.capture(ctx, tx, in.ActorID, lease)
}

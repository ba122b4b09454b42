package transaction

import (
	"context"

	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
)

type RetryCaptureInput struct {
	TransactionID string
	ActorID       uint
}

// RetryCapture re-runs a failed capture against the retained hold.
type RetryCapture struct {
	*Deps
}

func NewRetryCapture(deps *Deps) *RetryCapture {
	return &RetryCapture{Deps: deps}
}

func (uc *RetryCapture) Execute(
	ctx context.Context,
	in RetryCaptureInput,
) (*models.Transaction, error) {

	unlock, err := uc.lockTx(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if unlock != nil {
			unlock()
		}
	}()

	tx, err := uc.load(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.ProviderID != in.ActorID {
		return nil, domain.ErrUnauthorized("only the provider can retry the capture")
	}

	switch domain.State(tx.State) {
	case domain.StateCompleted:
		return tx, nil
	case domain.StateCaptureFailed:
	default:
		return nil, domain.ErrInvalidState("not_capture_failed", "there is no failed capture to retry")
	}

	lease, err := uc.takeLease(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if err := uc.commit(ctx, tx, domain.StateCaptureFailed, domain.StateCapturePending); err != nil {
		lease()
		return nil, err
	}

	unlock()
	unlock = nil
	return uc.capture(ctx, tx, in.ActorID, lease)
}

package transaction

import (
	"context"

	"go.uber.org/zap"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/process"
	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/events"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
	"github.com/BruksfildServices01/marketplace-exchange/internal/payment"
)

type PayInput struct {
	TransactionID   string
	PayerID         uint
	PayerToken      string
	PayerEmail      string
	PaymentMethodID string
}

// PayTransaction charges an accepted postpay transaction in one step.
type PayTransaction struct {
	*Deps
}

func NewPayTransaction(deps *Deps) *PayTransaction {
	return &PayTransaction{Deps: deps}
}

func (uc *PayTransaction) Execute(
	ctx context.Context,
	in PayInput,
) (*models.Transaction, error) {

	// --------------------------------------------------
	// 1. Claim the charge
	// --------------------------------------------------
	unlock, err := uc.lockTx(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}

	tx, err := uc.load(ctx, in.TransactionID)
	if err != nil {
		unlock()
		return nil, err
	}
	if tx.RequesterID != in.PayerID {
		unlock()
		return nil, domain.ErrUnauthorized("only the requester can pay for this transaction")
	}
	if process.Kind(tx.ProcessKind) != process.Postpay {
		unlock()
		return nil, domain.ErrInvalidState("not_postpay", "this transaction is not paid after acceptance")
	}

	// capture_pending with a free lease was claimed by an attempt that
	// never recorded its outcome; the charge is run again.
	resume := false
	switch domain.State(tx.State) {
	case domain.StateCompleted:
		unlock()
		return tx, nil
	case domain.StateCapturePending:
		resume = true
	case domain.StateAccepted:
	default:
		unlock()
		return nil, domain.ErrInvalidState("not_accepted", "the request has not been accepted")
	}

	lease, err := uc.takeLease(ctx, tx.ID)
	if err != nil {
		unlock()
		return nil, err
	}
	defer lease()

	if resume {
		uc.Logger.Warn("resuming interrupted postpay charge",
			zap.String("transaction_id", tx.ID),
			zap.String("last_error", tx.LastError),
		)
	} else if err := uc.commit(ctx, tx, domain.StateAccepted, domain.StateCapturePending); err != nil {
		unlock()
		return nil, err
	}
	unlock()

	// --------------------------------------------------
	// 2. Charge with no lock held
	// --------------------------------------------------
	ref, chargeErr := uc.charge(ctx, tx, in)

	// --------------------------------------------------
	// 3. Record the outcome
	// --------------------------------------------------
	cctx := context.WithoutCancel(ctx)
	defer uc.lockOutcome(cctx, tx.ID)()

	fresh, err := uc.load(cctx, tx.ID)
	if err != nil {
		return nil, err
	}

	if chargeErr != nil {
		fresh.LastError = userMessage(chargeErr)
		if err := uc.commit(cctx, fresh, domain.StateCapturePending, domain.StateAccepted); err != nil {
			return nil, err
		}
		uc.Logger.Warn("postpay charge failed",
			zap.String("transaction_id", fresh.ID),
			zap.String("kind", string(payment.KindOf(chargeErr))),
			zap.Error(chargeErr),
		)
		uc.emit(fresh, events.KindErrored, in.PayerID, map[string]any{
			"reason":  string(payment.KindOf(chargeErr)),
			"message": fresh.LastError,
		})
		return nil, chargeErr
	}

	fresh.AuthorizationRef = &ref
	fresh.CaptureRef = &ref
	fresh.LastError = ""
	if err := uc.commit(cctx, fresh, domain.StateCapturePending, domain.StateCompleted); err != nil {
		return nil, err
	}
	uc.emit(fresh, events.KindCompleted, in.PayerID, map[string]any{"capture_ref": ref})
	return fresh, nil
}

func (uc *PayTransaction) charge(ctx context.Context, tx *models.Transaction, in PayInput) (string, error) {
	bd, err := amount(tx)
	if err != nil {
		return "", err
	}
	provider, err := uc.person(ctx, tx.ProviderID, "provider")
	if err != nil {
		return "", err
	}
	requester, err := uc.person(ctx, tx.RequesterID, "requester")
	if err != nil {
		return "", err
	}

	email := in.PayerEmail
	if email == "" {
		email = requester.Email
	}
	gateway := process.Gateway(tx.GatewayKind)

	return uc.Payments.Charge(ctx, payment.AuthorizeInput{
		Gateway: gateway,
		Amount:  bd.Total,
		Payer: payment.PayerRequest{
			Email:       email,
			Token:       in.PayerToken,
			Description: requester.DisplayName,
		},
		MethodID:    in.PaymentMethodID,
		Destination: provider.PayoutAccount(string(gateway)),
		PayeeName:   provider.DisplayName,
		Reference:   tx.ID,
		Description: tx.ListingTitle,
	})
}

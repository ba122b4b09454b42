package transaction

import (
	"context"
	"errors"

	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
	"github.com/BruksfildServices01/marketplace-exchange/internal/money"
)

type Details struct {
	Transaction *models.Transaction `json:"transaction"`
	Booking     *models.Booking     `json:"booking,omitempty"`
	Breakdown   money.Breakdown     `json:"breakdown"`
	Messages    []models.Message    `json:"messages"`
}

type GetTransaction struct {
	*Deps
}

func NewGetTransaction(deps *Deps) *GetTransaction {
	return &GetTransaction{Deps: deps}
}

func (uc *GetTransaction) Execute(ctx context.Context, id string, callerID uint) (*Details, error) {
	tx, err := uc.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tx.IsParty(callerID) {
		return nil, domain.ErrUnauthorized("you are not part of this transaction")
	}

	bk, err := uc.Bookings.ForTransaction(ctx, id)
	if errors.Is(err, domain.ErrRecordNotFound) {
		bk, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	bd, err := amount(tx)
	if err != nil {
		return nil, err
	}

	msgs, err := uc.Transactions.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Details{
		Transaction: tx,
		Booking:     bk,
		Breakdown:   bd,
		Messages:    msgs,
	}, nil
}

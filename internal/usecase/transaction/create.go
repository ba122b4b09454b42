package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/process"
	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/schedule"
	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/events"
	"github.com/BruksfildServices01/marketplace-exchange/internal/httperr"
	"github.com/BruksfildServices01/marketplace-exchange/internal/lock"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
	"github.com/BruksfildServices01/marketplace-exchange/internal/money"
	"github.com/BruksfildServices01/marketplace-exchange/internal/payment"
	"github.com/BruksfildServices01/marketplace-exchange/internal/usecase/booking"
)

// ======================================================
// INPUT / OUTPUT
// ======================================================

type CreateInput struct {
	CommunityID uint
	ListingID   uint
	RequesterID uint

	// Quantity is ignored for scheduled listings, where the booked span
	// decides it.
	Quantity int64
	Start    *time.Time
	End      *time.Time
	Message  string

	PayerToken      string
	PayerEmail      string
	PaymentMethodID string
}

type CreateResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Booking     *models.Booking     `json:"booking,omitempty"`
	Breakdown   money.Breakdown     `json:"breakdown"`
}

// ======================================================
// USE CASE
// ======================================================

type CreateTransaction struct {
	*Deps
}

func NewCreateTransaction(deps *Deps) *CreateTransaction {
	return &CreateTransaction{Deps: deps}
}

// draft is everything validated before anything is written.
type draft struct {
	listing   *models.Listing
	community *models.Community
	provider  *models.Person
	requester *models.Person
	policy    process.Policy
	interval  *schedule.Interval
	breakdown money.Breakdown
}

// ======================================================
// EXECUTE
// ======================================================

func (uc *CreateTransaction) Execute(
	ctx context.Context,
	in CreateInput,
) (*CreateResult, error) {

	// --------------------------------------------------
	// 1. Validation and policy
	// --------------------------------------------------
	d, err := uc.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		ID:                  uuid.NewString(),
		CommunityID:         d.community.ID,
		ListingID:           d.listing.ID,
		ListingTitle:        d.listing.Title,
		RequesterID:         in.RequesterID,
		ProviderID:          d.provider.ID,
		UnitType:            d.listing.UnitType,
		UnitPrice:           d.breakdown.UnitPrice.Amount,
		ShippingPrice:       d.listing.ShippingPriceCents,
		Currency:            d.breakdown.UnitPrice.Currency,
		Quantity:            d.breakdown.Quantity,
		ProcessKind:         string(d.policy.Process),
		GatewayKind:         string(d.policy.Gateway),
		State:               string(domain.StateInitiated),
		AppointmentDecision: string(domain.AppointmentUndecided),
	}

	// --------------------------------------------------
	// 2. Admission and insert under the provider lock
	// --------------------------------------------------
	bk, err := uc.admit(ctx, d, tx)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(in.Message)
	if content == "" && d.interval != nil {
		content = "Appointment requested for " +
			d.interval.Start.In(locationOf(d.provider)).Format(booking.Layout)
	}
	if content != "" {
		uc.postMessage(ctx, tx, in.RequesterID, content)
		uc.emit(tx, events.KindMessage, in.RequesterID, map[string]any{"content": content})
	}

	res := &CreateResult{Transaction: tx, Booking: bk, Breakdown: d.breakdown}

	// --------------------------------------------------
	// 3. Money
	// --------------------------------------------------
	switch d.policy.Process {
	case process.None:
		uc.emit(tx, events.KindCompleted, in.RequesterID, nil)
		return res, nil
	case process.Postpay:
		return res, nil
	}

	if err := uc.authorize(ctx, d, in, tx); err != nil {
		return nil, err
	}
	return res, nil
}

func (uc *CreateTransaction) prepare(ctx context.Context, in CreateInput) (*draft, error) {
	if in.ListingID == 0 {
		return nil, domain.ErrValidation("missing_listing", "No listing ID provided")
	}

	listing, err := uc.Catalog.Listing(ctx, in.ListingID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, domain.ErrNotFound("listing_not_found", fmt.Sprintf("listing %d not found", in.ListingID))
	}
	if err != nil {
		return nil, err
	}
	if in.CommunityID != 0 && listing.CommunityID != in.CommunityID {
		return nil, domain.ErrNotFound("listing_not_found", fmt.Sprintf("listing %d not found", in.ListingID))
	}
	if listing.Closed {
		return nil, domain.ErrValidation("listing_closed", "You cannot reply to a closed offer")
	}
	if listing.AuthorID == in.RequesterID {
		return nil, domain.ErrValidation("own_listing", "You cannot send a request for your own listing")
	}

	community, err := uc.Catalog.Community(ctx, listing.CommunityID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, domain.ErrNotFound("community_not_found", fmt.Sprintf("community %d not found", listing.CommunityID))
	}
	if err != nil {
		return nil, err
	}

	policy, err := process.Resolve(listing, community)
	if err == nil && policy.MovesMoney() && !uc.Payments.Supports(policy.Gateway) {
		err = process.Unsupported(policy.Process, policy.Gateway)
	}
	if httperr.Is(err, httperr.KindUnsupportedProcess) {
		uc.Logger.DPanic("listing process cannot run",
			zap.Uint("listing_id", listing.ID),
			zap.Uint("community_id", community.ID),
			zap.Error(err),
		)
	}
	if err != nil {
		return nil, err
	}

	d := &draft{listing: listing, community: community, policy: policy}

	quantity := in.Quantity
	if listing.Scheduled() {
		if in.Start == nil || in.End == nil {
			return nil, domain.ErrValidation("missing_booking_time", "Booking start and end are required")
		}
		iv := schedule.Interval{Start: in.Start.UTC(), End: in.End.UTC()}
		if !iv.Valid() {
			return nil, domain.ErrValidation("invalid_booking_range", "Booking end must be after its start")
		}
		d.interval = &iv
		quantity = units(iv.Duration(), listing.UnitDuration())
	} else if quantity < 1 {
		return nil, domain.ErrValidation("invalid_quantity", "Quantity must be at least 1")
	}

	unit := money.New(listing.PriceCents, listing.Currency)
	var shipping *money.Money
	if listing.ShippingPriceCents != nil {
		s := money.New(*listing.ShippingPriceCents, listing.Currency)
		shipping = &s
	}
	if d.breakdown, err = money.Break(unit, quantity, shipping, listing.Scheduled()); err != nil {
		return nil, domain.ErrValidation("invalid_price", err.Error())
	}
	if policy.MovesMoney() && d.breakdown.Total.IsZero() {
		return nil, domain.ErrValidation("invalid_price", "A listing with a payment process needs a price")
	}
	if policy.MovesMoney() && unit.Currency != uc.Payments.SettlementCurrency() {
		return nil, domain.ErrValidation(
			"currency_mismatch",
			fmt.Sprintf("Listing is priced in %s but payments settle in %s", unit.Currency, uc.Payments.SettlementCurrency()),
		)
	}

	if d.provider, err = uc.person(ctx, listing.AuthorID, "provider"); err != nil {
		return nil, err
	}
	if d.requester, err = uc.person(ctx, in.RequesterID, "requester"); err != nil {
		return nil, err
	}
	return d, nil
}

// admit checks the provider's calendar and writes the transaction. The
// free path is completed before the lock is released so its booking is
// blocking from the moment it exists.
func (uc *CreateTransaction) admit(ctx context.Context, d *draft, tx *models.Transaction) (*models.Booking, error) {
	var bk *models.Booking
	unlock := lock.Unlock(func() {})

	if d.interval != nil {
		u, err := uc.Locks.Lock(ctx, lock.ProviderKey(d.provider.ID))
		if err != nil {
			return nil, err
		}
		unlock = u

		if err := uc.Resolver.Admit(ctx, d.provider, *d.interval, ""); err != nil {
			unlock()
			uc.Logger.Info("booking refused",
				zap.Uint("provider_id", d.provider.ID),
				zap.Time("start", d.interval.Start),
				zap.Time("end", d.interval.End),
				zap.Error(err),
			)
			return nil, err
		}
		bk = &models.Booking{
			ProviderID:  d.provider.ID,
			RequesterID: tx.RequesterID,
			StartAt:     d.interval.Start,
			EndAt:       d.interval.End,
		}
	}
	defer unlock()

	if err := uc.Transactions.Create(ctx, tx, bk); err != nil {
		return nil, err
	}
	if d.policy.Process == process.None {
		if err := uc.commit(ctx, tx, domain.StateInitiated, domain.StateFreeCompleted); err != nil {
			return nil, err
		}
	}
	return bk, nil
}

// authorize places the hold with no lock held, then records the outcome.
func (uc *CreateTransaction) authorize(ctx context.Context, d *draft, in CreateInput, tx *models.Transaction) error {
	email := in.PayerEmail
	if email == "" {
		email = d.requester.Email
	}

	ref, authErr := uc.Payments.Authorize(ctx, payment.AuthorizeInput{
		Gateway: d.policy.Gateway,
		Amount:  d.breakdown.Total,
		Payer: payment.PayerRequest{
			Email:       email,
			Token:       in.PayerToken,
			Description: d.requester.DisplayName,
		},
		MethodID:    in.PaymentMethodID,
		Destination: d.provider.PayoutAccount(string(d.policy.Gateway)),
		PayeeName:   d.provider.DisplayName,
		Reference:   tx.ID,
		Description: d.listing.Title,
	})

	cctx := context.WithoutCancel(ctx)
	unlock, err := uc.lockTx(cctx, tx.ID)
	if err != nil {
		return err
	}
	defer unlock()

	if authErr != nil {
		tx.LastError = userMessage(authErr)
		if err := uc.commit(cctx, tx, domain.StateInitiated, domain.StateErrored); err != nil {
			return err
		}
		uc.Logger.Warn("authorization failed",
			zap.String("transaction_id", tx.ID),
			zap.String("kind", string(payment.KindOf(authErr))),
			zap.Error(authErr),
		)
		uc.emit(tx, events.KindErrored, in.RequesterID, map[string]any{
			"reason":  string(payment.KindOf(authErr)),
			"message": tx.LastError,
		})
		return authErr
	}

	tx.AuthorizationRef = &ref
	return uc.commit(cctx, tx, domain.StateInitiated, domain.StateAuthorized)
}

// units is how many listing units a span takes, rounded up.
func units(span, unit time.Duration) int64 {
	if unit <= 0 {
		return 1
	}
	n := int64(span / unit)
	if span%unit != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

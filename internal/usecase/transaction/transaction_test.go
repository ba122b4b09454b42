package transaction_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/process"
	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/schedule"
	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/events"
	"github.com/BruksfildServices01/marketplace-exchange/internal/httperr"
	"github.com/BruksfildServices01/marketplace-exchange/internal/infra/memory"
	"github.com/BruksfildServices01/marketplace-exchange/internal/lock"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
	"github.com/BruksfildServices01/marketplace-exchange/internal/payment"
	"github.com/BruksfildServices01/marketplace-exchange/internal/payment/paymenttest"
	"github.com/BruksfildServices01/marketplace-exchange/internal/usecase/booking"
	"github.com/BruksfildServices01/marketplace-exchange/internal/usecase/transaction"
)

const (
	communityID = uint(1)
	providerID  = uint(10)
	requesterID = uint(20)
	otherID     = uint(21)
	outsiderID  = uint(99)

	freeHourly     = uint(100)
	preauthHourly  = uint(101)
	postpayUnit    = uint(102)
	closedListing  = uint(103)
	usdHourly      = uint(104)
	unknownProcess = uint(105)
	unpricedPaid   = uint(106)
)

type harness struct {
	store  *memory.Store
	gw     *paymenttest.Gateway
	events *events.Recorder
	deps   *transaction.Deps

	create  *transaction.CreateTransaction
	decide  *transaction.DecideTransaction
	pay     *transaction.PayTransaction
	retry   *transaction.RetryCapture
	message *transaction.AppendMessage
	seen    *transaction.MarkSeen
	get     *transaction.GetTransaction
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.NewStore()
	store.PutCommunity(models.Community{
		ID:             communityID,
		Name:           "Makers",
		PaymentGateway: "omise",
		Processes: []models.ProcessConfig{
			{ID: 1, CommunityID: communityID, Process: "none"},
			{ID: 2, CommunityID: communityID, Process: "preauthorize"},
			{ID: 3, CommunityID: communityID, Process: "postpay"},
		},
	})

	provider := models.Person{
		ID:               providerID,
		DisplayName:      "Pat",
		Email:            "pat@example.com",
		Timezone:         "UTC",
		OmiseRecipientID: "recp_10",
	}
	provider.SetAvailability(schedule.NewRule(
		[]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		[]int{9, 10, 11, 12, 13, 14, 15, 16},
	))
	store.PutPerson(provider)
	store.PutPerson(models.Person{ID: requesterID, DisplayName: "Robin", Email: "robin@example.com", Timezone: "UTC"})
	store.PutPerson(models.Person{ID: otherID, DisplayName: "Sam", Email: "sam@example.com", Timezone: "UTC"})

	shipping := int64(500)
	for _, l := range []models.Listing{
		{ID: freeHourly, Title: "Free consult", UnitType: models.UnitTypeHour, PriceCents: 0, Currency: "CAD", ProcessID: 1},
		{ID: preauthHourly, Title: "Lesson", UnitType: models.UnitTypeHour, PriceCents: 1000, Currency: "CAD", ProcessID: 2},
		{ID: postpayUnit, Title: "Mug", UnitType: models.UnitTypeUnit, PriceCents: 1250, Currency: "CAD", ShippingPriceCents: &shipping, ProcessID: 3},
		{ID: closedListing, Title: "Gone", UnitType: models.UnitTypeUnit, PriceCents: 100, Currency: "CAD", ProcessID: 1, Closed: true},
		{ID: usdHourly, Title: "Lesson USD", UnitType: models.UnitTypeHour, PriceCents: 1000, Currency: "USD", ProcessID: 2},
		{ID: unknownProcess, Title: "Odd", UnitType: models.UnitTypeUnit, PriceCents: 100, Currency: "CAD", ProcessID: 42},
		{ID: unpricedPaid, Title: "Unpriced", UnitType: models.UnitTypeUnit, PriceCents: 0, Currency: "CAD", ProcessID: 2},
	} {
		l.CommunityID = communityID
		l.AuthorID = providerID
		store.PutListing(l)
	}

	coordinator := payment.NewCoordinator(payment.Options{
		SettlementCurrency: "CAD",
		Retry:              payment.RetryPolicy{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		Breaker:            payment.BreakerPolicy{ConsecutiveFailures: 100, Timeout: time.Minute},
	}, zap.NewNop())
	gw := paymenttest.New()
	coordinator.Register(process.GatewayOmise, gw)

	rec := &events.Recorder{}
	deps := &transaction.Deps{
		Transactions: store,
		Bookings:     store,
		Catalog:      store,
		Resolver:     booking.NewResolver(store, store, "https://market.example.com"),
		Payments:     coordinator,
		Locks:        lock.NewKeyedMutex(),
		Events:       rec,
		Logger:       zap.NewNop(),
	}

	return &harness{
		store:   store,
		gw:      gw,
		events:  rec,
		deps:    deps,
		create:  transaction.NewCreateTransaction(deps),
		decide:  transaction.NewDecideTransaction(deps),
		pay:     transaction.NewPayTransaction(deps),
		retry:   transaction.NewRetryCapture(deps),
		message: transaction.NewAppendMessage(deps),
		seen:    transaction.NewMarkSeen(deps),
		get:     transaction.NewGetTransaction(deps),
	}
}

// at is a wall-clock time on Monday 2026-11-02 in UTC.
func at(hour, minute int) *time.Time {
	t := time.Date(2026, time.November, 2, hour, minute, 0, 0, time.UTC)
	return &t
}

func (h *harness) book(t *testing.T, listing, requester uint, start, end *time.Time) *transaction.CreateResult {
	t.Helper()
	res, err := h.create.Execute(context.Background(), transaction.CreateInput{
		CommunityID: communityID,
		ListingID:   listing,
		RequesterID: requester,
		Start:       start,
		End:         end,
		PayerToken:  "tokn_test",
	})
	require.NoError(t, err)
	return res
}

func (h *harness) state(t *testing.T, id string) domain.State {
	t.Helper()
	tx, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return domain.State(tx.State)
}

func accept(id string) transaction.DecideInput {
	return transaction.DecideInput{TransactionID: id, ActorID: providerID, Decision: "accept"}
}

func deny(id string) transaction.DecideInput {
	return transaction.DecideInput{TransactionID: id, ActorID: providerID, Decision: "deny"}
}

// ======================================================
// CREATE
// ======================================================

func TestCreateFreeBookingCompletesAndBlocks(t *testing.T) {
	h := newHarness(t)

	res := h.book(t, freeHourly, requesterID, at(10, 0), at(11, 0))
	assert.Equal(t, string(domain.StateFreeCompleted), res.Transaction.State)
	require.NotNil(t, res.Booking)
	assert.Equal(t, res.Transaction.ID, res.Booking.TransactionID)
	assert.Equal(t, []events.Kind{events.KindMessage, events.KindCompleted}, h.events.Kinds(res.Transaction.ID))
	assert.Zero(t, h.gw.Calls(paymenttest.OpAuthorize))

	_, err := h.create.Execute(context.Background(), transaction.CreateInput{
		CommunityID: communityID,
		ListingID:   freeHourly,
		RequesterID: otherID,
		Start:       at(10, 30),
		End:         at(11, 30),
	})
	assert.True(t, httperr.Is(err, httperr.KindConflict), "got %v", err)

	// Back to back is fine.
	h.book(t, freeHourly, otherID, at(11, 0), at(12, 0))
}

func TestCreateFirstMessage(t *testing.T) {
	h := newHarness(t)

	res := h.book(t, freeHourly, requesterID, at(9, 0), at(10, 0))
	msgs, err := h.store.ListMessages(context.Background(), res.Transaction.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Appointment requested for 2026-11-02T09:00:00", msgs[0].Content)
	assert.Equal(t, requesterID, msgs[0].SenderID)

	res, err = h.create.Execute(context.Background(), transaction.CreateInput{
		CommunityID: communityID,
		ListingID:   freeHourly,
		RequesterID: requesterID,
		Start:       at(13, 0),
		End:         at(14, 0),
		Message:     "  see you then ",
	})
	require.NoError(t, err)
	msgs, err = h.store.ListMessages(context.Background(), res.Transaction.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "see you then", msgs[0].Content)
}

func TestCreateOutsideAvailability(t *testing.T) {
	h := newHarness(t)

	_, err := h.create.Execute(context.Background(), transaction.CreateInput{
		CommunityID: communityID,
		ListingID:   freeHourly,
		RequesterID: requesterID,
		Start:       at(16, 30),
		End:         at(17, 30),
	})
	assert.True(t, httperr.Is(err, httperr.KindOutsideAvailability), "got %v", err)

	saturday := time.Date(2026, time.November, 7, 10, 0, 0, 0, time.UTC)
	end := saturday.Add(time.Hour)
	_, err = h.create.Execute(context.Background(), transaction.CreateInput{
		CommunityID: communityID,
		ListingID:   freeHourly,
		RequesterID: requesterID,
		Start:       &saturday,
		End:         &end,
	})
	assert.True(t, httperr.Is(err, httperr.KindOutsideAvailability), "got %v", err)
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name string
		in   transaction.CreateInput
		kind httperr.Kind
		code string
	}{
		{
			name: "missing listing",
			in:   transaction.CreateInput{RequesterID: requesterID},
			kind: httperr.KindValidation,
			code: "missing_listing",
		},
		{
			name: "unknown listing",
			in:   transaction.CreateInput{ListingID: 7, RequesterID: requesterID},
			kind: httperr.KindNotFound,
			code: "listing_not_found",
		},
		{
			name: "listing of another community",
			in:   transaction.CreateInput{CommunityID: 2, ListingID: freeHourly, RequesterID: requesterID, Start: at(9, 0), End: at(10, 0)},
			kind: httperr.KindNotFound,
			code: "listing_not_found",
		},
		{
			name: "closed listing",
			in:   transaction.CreateInput{ListingID: closedListing, RequesterID: requesterID, Quantity: 1},
			kind: httperr.KindValidation,
			code: "listing_closed",
		},
		{
			name: "own listing",
			in:   transaction.CreateInput{ListingID: freeHourly, RequesterID: providerID, Start: at(9, 0), End: at(10, 0)},
			kind: httperr.KindValidation,
			code: "own_listing",
		},
		{
			name: "missing booking time",
			in:   transaction.CreateInput{ListingID: freeHourly, RequesterID: requesterID, Start: at(9, 0)},
			kind: httperr.KindValidation,
			code: "missing_booking_time",
		},
		{
			name: "end before start",
			in:   transaction.CreateInput{ListingID: freeHourly, RequesterID: requesterID, Start: at(10, 0), End: at(9, 0)},
			kind: httperr.KindValidation,
			code: "invalid_booking_range",
		},
		{
			name: "empty range",
			in:   transaction.CreateInput{ListingID: freeHourly, RequesterID: requesterID, Start: at(10, 0), End: at(10, 0)},
			kind: httperr.KindValidation,
			code: "invalid_booking_range",
		},
		{
			name: "zero quantity",
			in:   transaction.CreateInput{ListingID: postpayUnit, RequesterID: requesterID},
			kind: httperr.KindValidation,
			code: "invalid_quantity",
		},
		{
			name: "paid process without a price",
			in:   transaction.CreateInput{ListingID: unpricedPaid, RequesterID: requesterID, Quantity: 1},
			kind: httperr.KindValidation,
			code: "invalid_price",
		},
		{
			name: "currency differs from settlement",
			in:   transaction.CreateInput{ListingID: usdHourly, RequesterID: requesterID, Start: at(9, 0), End: at(10, 0)},
			kind: httperr.KindValidation,
			code: "currency_mismatch",
		},
		{
			name: "unknown requester",
			in:   transaction.CreateInput{ListingID: postpayUnit, RequesterID: 404, Quantity: 1},
			kind: httperr.KindNotFound,
			code: "requester_not_found",
		},
		{
			name: "unconfigured process",
			in:   transaction.CreateInput{ListingID: unknownProcess, RequesterID: requesterID, Quantity: 1},
			kind: httperr.KindUnknownProcess,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.create.Execute(context.Background(), tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, httperr.KindOf(err), "got %v", err)
			if tc.code != "" {
				assert.True(t, httperr.IsBusiness(err, tc.code), "got %v", err)
			}
			assert.Zero(t, h.gw.Calls(paymenttest.OpAuthorize))
		})
	}
}

func TestCreateUnsupportedGateway(t *testing.T) {
	h := newHarness(t)
	h.store.PutCommunity(models.Community{
		ID:             communityID,
		Name:           "Makers",
		PaymentGateway: "mercadopago",
		Processes:      []models.ProcessConfig{{ID: 2, CommunityID: communityID, Process: "preauthorize"}},
	})

	_, err := h.create.Execute(context.Background(), transaction.CreateInput{
		ListingID:   preauthHourly,
		RequesterID: requesterID,
		Start:       at(9, 0),
		End:         at(10, 0),
	})
	assert.True(t, httperr.Is(err, httperr.KindUnsupportedProcess), "got %v", err)
}

func TestCreatePreauthorizeHoldsTotal(t *testing.T) {
	h := newHarness(t)

	res := h.book(t, preauthHourly, requesterID, at(9, 30), at(11, 0))
	tx := res.Transaction
	assert.Equal(t, string(domain.StateAuthorized), tx.State)
	assert.Equal(t, int64(2), tx.Quantity)
	require.NotNil(t, tx.AuthorizationRef)

	hold, ok := h.gw.Hold(*tx.AuthorizationRef)
	require.True(t, ok)
	assert.Equal(t, int64(2000), hold.Amount.Amount)
	assert.Equal(t, "CAD", hold.Amount.Currency)
	assert.Equal(t, "recp_10", hold.Destination)
	assert.Equal(t, "robin@example.com", hold.Email)
	assert.Equal(t, tx.ID, hold.Reference)
	assert.Zero(t, h.gw.Captures())

	// An authorized request does not block the slot.
	other := h.book(t, preauthHourly, otherID, at(10, 0), at(11, 0))
	assert.Equal(t, string(domain.StateAuthorized), other.Transaction.State)
}

func TestCreateAuthorizationFailure(t *testing.T) {
	h := newHarness(t)
	h.gw.FailNext(paymenttest.OpAuthorize, payment.NewError(payment.CardDeclined, "", "insufficient_fund"))

	_, err := h.create.Execute(context.Background(), transaction.CreateInput{
		ListingID:   preauthHourly,
		RequesterID: requesterID,
		Start:       at(9, 0),
		End:         at(10, 0),
	})
	require.Error(t, err)
	assert.Equal(t, payment.CardDeclined, payment.KindOf(err))

	evs := h.events.Events()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, events.KindErrored, last.Kind)
	assert.Equal(t, domain.StateErrored, h.state(t, last.TransactionID))

	tx, err := h.store.Get(context.Background(), last.TransactionID)
	require.NoError(t, err)
	assert.NotEmpty(t, tx.LastError)
	assert.Nil(t, tx.AuthorizationRef)
}

func TestCreateMissingPayoutAccount(t *testing.T) {
	h := newHarness(t)
	p, err := h.store.Person(context.Background(), providerID)
	require.NoError(t, err)
	p.OmiseRecipientID = ""
	h.store.PutPerson(*p)

	_, err = h.create.Execute(context.Background(), transaction.CreateInput{
		ListingID:   preauthHourly,
		RequesterID: requesterID,
		Start:       at(9, 0),
		End:         at(10, 0),
	})
	require.Error(t, err)
	assert.Equal(t, payment.InvalidRequest, payment.KindOf(err))
	assert.Contains(t, err.Error(), "Pat")
	assert.Zero(t, h.gw.Calls(paymenttest.OpAuthorize))
}

// ======================================================
// DECIDE
// ======================================================

func TestAcceptCapturesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.book(t, preauthHourly, requesterID, at(9, 0), at(10, 0))
	id := res.Transaction.ID

	tx, err := h.decide.Execute(ctx, accept(id))
	require.NoError(t, err)
	assert.Equal(t, string(domain.StateCompleted), tx.State)
	assert.Equal(t, string(domain.AppointmentAccepted), tx.AppointmentDecision)
	require.NotNil(t, tx.CaptureRef)
	assert.Equal(t, 1, h.gw.Captures())

	capRef, ok := h.gw.Captured(*tx.AuthorizationRef)
	require.True(t, ok)
	assert.Equal(t, capRef, *tx.CaptureRef)

	again, err := h.decide.Execute(ctx, accept(id))
	require.NoError(t, err)
	assert.Equal(t, string(domain.StateCompleted), again.State)
	assert.Equal(t, 1, h.gw.Calls(paymenttest.OpCapture))

	assert.Equal(t, []events.Kind{events.KindMessage, events.KindAccepted}, h.events.Kinds(id))

	bk, err := h.store.ForTransaction(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, bk.DecidedAt)

	msgs, err := h.store.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Appointment Accepted", msgs[len(msgs)-1].Content)
}

func TestDecideRequiresProvider(t *testing.T) {
	h := newHarness(t)
	res := h.book(t, preauthHourly, requesterID, at(9, 0), at(10, 0))

	_, err := h.decide.Execute(context.Background(), transaction.DecideInput{
		TransactionID: res.Transaction.ID,
		ActorID:       requesterID,
		Decision:      "accept",
	})
	assert.True(t, httperr.Is(err, httperr.KindUnauthorized), "got %v", err)

	_, err = h.decide.Execute(context.Background(), transaction.DecideInput{
		TransactionID: res.Transaction.ID,
		ActorID:       providerID,
		Decision:      "maybe",
	})
	assert.True(t, httperr.Is(err, httperr.KindValidation), "got %v", err)

	_, err = h.decide.Execute(context.Background(), accept("missing"))
	assert.True(t, httperr.Is(err, httperr.KindNotFound), "got %v", err)
	assert.Equal(t, domain.StateAuthorized, h.state(t, res.Transaction.ID))
}

func TestDenyVoidsAndNeverCaptures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.book(t, preauthHourly, requesterID, at(9, 0), at(10, 0))
	id := res.Transaction.ID

	tx, err := h.decide.Execute(ctx, deny(id))
	require.NoError(t, err)
	assert.Equal(t, string(domain.StateDenied), tx.State)
	assert.True(t, h.gw.Voided(*res.Transaction.AuthorizationRef))

	_, err = h.decide.Execute(ctx, deny(id))
	require.NoError(t, err)
	assert.Equal(t, 1, h.gw.Calls(paymenttest.OpVoid))

	_, err = h.decide.Execute(ctx, accept(id))
	assert.True(t, httperr.Is(err, httperr.KindInvalidState), "got %v", err)
	assert.Zero(t, h.gw.Calls(paymenttest.OpCapture))
	assert.Equal(t, []events.Kind{events.KindMessage, events.KindDenied}, h.events.Kinds(id))

	// A denied booking frees the slot.
	free := h.book(t, freeHourly, otherID, at(9, 0), at(10, 0))
	assert.Equal(t, string(domain.StateFreeCompleted), free.Transaction.State)
}

func TestDenyVoidFailureKeepsDenied(t *testing.T) {
	h := newHarness(t)
	res := h.book(t, preauthHourly, requesterID, at(9, 0), at(10, 0))
	h.gw.FailNext(paymenttest.OpVoid, payment.NewError(payment.InvalidRequest, "", "boom"))

	tx, err := h.decide.Execute(context.Background(), deny(res.Transaction.ID))
	require.NoError(t, err)
	assert.Equal(t, string(domain.StateDenied), tx.State)
}

func TestAcceptReadmission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.book(t, preauthHourly, requesterID, at(9, 0), at(11, 0))
	second := h.book(t, preauthHourly, otherID, at(10, 0), at(12, 0))

	_, err := h.decide.Execute(ctx, accept(first.Transaction.ID))
	require.NoError(t, err)

	_, err = h.decide.Execute(ctx, accept(second.Transaction.ID))
	assert.True(t, httperr.Is(err, httperr.KindConflict), "got %v", err)
	assert.Equal(t, domain.StateAuthorized, h.state(t, second.Transaction.ID))
	assert.Equal(t, 1, h.gw.Captures())

	// The provider can still turn it down.
	_, err = h.decide.Execute(ctx, deny(second.Transaction.ID))
	require.NoError(t, err)
}

func TestConcurrentAcceptSeesCaptureInFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.book(t, preauthHourly, requesterID, at(9, 0), at(10, 0))
	id := res.Transaction.ID

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.gw.OnCapture = func(string) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.decide.Execute(ctx, accept(id))
		done <- err
	}()
	<-entered

	assert.Equal(t, domain.StateCapturePending, h.state(t, id))

	_, err := h.decide.Execute(ctx, accept(id))
	assert.True(t, httperr.IsBusiness(err, "capture_in_progress"), "got %v", err)

	_, err = h.decide.Execute(ctx, deny(id))
	assert.True(t, httperr.Is(err, httperr.KindInvalidState), "got %v", err)

	// The conversation stays open while the capture runs.
	_, err = h.message.Execute(ctx, transaction.MessageInput{TransactionID: id, SenderID: requesterID, Content: "hello?"})
	require.NoError(t, err)
	require.NoError(t, h.seen.Execute(ctx, transaction.SeenInput{TransactionID: id, PersonID: requesterID}))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, domain.StateCompleted, h.state(t, id))
	assert.Equal(t, 1, h.gw.Captures())
	assert.False(t, h.gw.Voided(*res.Transaction.AuthorizationRef))
}

func TestAcceptDenyRace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		start := at(9, 0).Add(time.Duration(i%8) * time.Hour)
		end := start.Add(time.Hour)
		// A fresh day per round keeps earlier winners from blocking the slot.
		start = start.AddDate(0, 0, 7*(i/8))
		end = end.AddDate(0, 0, 7*(i/8))

		res := h.book(t, preauthHourly, requesterID, &start, &end)
		id := res.Transaction.ID
		ref := *res.Transaction.AuthorizationRef

		var wg sync.WaitGroup
		var acceptErr, denyErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, acceptErr = h.decide.Execute(ctx, accept(id))
		}()
		go func() {
			defer wg.Done()
			_, denyErr = h.decide.Execute(ctx, deny(id))
		}()
		wg.Wait()

		_, captured := h.gw.Captured(ref)
		switch h.state(t, id) {
		case domain.StateCompleted:
			assert.NoError(t, acceptErr)
			assert.True(t, httperr.Is(denyErr, httperr.KindInvalidState), "round %d: %v", i, denyErr)
			assert.True(t, captured)
			assert.False(t, h.gw.Voided(ref))
		case domain.StateDenied:
			assert.NoError(t, denyErr)
			assert.True(t, httperr.Is(acceptErr, httperr.KindInvalidState), "round %d: %v", i, acceptErr)
			assert.False(t, captured)
		default:
			t.Fatalf("round %d: unexpected state %s", i, h.state(t, id))
		}
	}
}

// ======================================================
// PARALLEL ADMISSION
// ======================================================

func TestParallelOverlappingCreatesAdmitOne(t *testing.T) {
	h := newHarness(t)
	const attempts = 30

	var admitted, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			requester := requesterID
			if i%2 == 1 {
				requester = otherID
			}
			_, err := h.create.Execute(context.Background(), transaction.CreateInput{
				CommunityID: communityID,
				ListingID:   freeHourly,
				RequesterID: requester,
				Start:       at(10, i),
				End:         at(11, i),
			})
			switch {
			case err == nil:
				admitted.Add(1)
			case httperr.Is(err, httperr.KindConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(attempts-1), conflicts.Load())

	blocking, err := h.store.ListBlocking(context.Background(), providerID, *at(9, 0), *at(12, 0))
	require.NoError(t, err)
	assert.Len(t, blocking, 1)
}

func TestParallelAcceptsCaptureOnce(t *testing.T) {
	h := newHarness(t)
	const requests = 10

	ids := make([]string, requests)
	for i := range ids {
		requester := requesterID
		if i%2 == 1 {
			requester = otherID
		}
		ids[i] = h.book(t, preauthHourly, requester, at(10, i), at(11, i)).Transaction.ID
	}

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.decide.Execute(context.Background(), accept(id))
			switch {
			case err == nil:
				accepted.Add(1)
			case httperr.Is(err, httperr.KindConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, 1, h.gw.Captures())

	completed := 0
	for _, id := range ids {
		switch h.state(t, id) {
		case domain.StateCompleted:
			completed++
		case domain.StateAuthorized:
		default:
			t.Errorf("transaction %s in state %s", id, h.state(t, id))
		}
	}
	assert.Equal(t, 1, completed)
}

func TestCreateConflictsWithAcceptedBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.book(t, preauthHourly, requesterID, at(9, 0), at(10, 0))
	_, err := h.decide.Execute(ctx, accept(first.Transaction.ID))
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, h.state(t, first.Transaction.ID))

	_, err = h.create.Execute(ctx, transaction.CreateInput{
		CommunityID: communityID,
		ListingID:   preauthHourly,
		RequesterID: otherID,
		Start:       at(9, 30),
		End:         at(10, 30),
		PayerToken:  "tokn_test",
	})
	assert.True(t, httperr.Is(err, httperr.KindConflict), "got %v", err)
	assert.Equal(t, 1, h.gw.Calls(paymenttest.OpAuthorize), "no hold for a refused slot")
}

// ======================================================
// CAPTURE FAILURE AND RETRY
// ======================================================

func TestCaptureFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.book(t, preauthHourly, requesterID, at(9, 0), at(10, 0))
	id := res.Transaction.ID

	h.gw.FailNext(paymenttest.OpCapture, payment.NewError(payment.InvalidRequest, "", "amount_mismatch"))
	_, err := h.decide.Execute(ctx, accept(id))
	require.Error(t, err)
	assert.Equal(t, payment.InvalidRequest, payment.KindOf(err))
	assert.Equal(t, domain.StateCaptureFailed, h.state(t, id))
	assert.Contains(t, h.events.Kinds(id), events.KindErrored)

	tx, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, tx.LastError)

	// A failed capture still holds the slot.
	_, err = h.create.Execute(ctx, transaction.CreateInput{
		ListingID: freeHourly, RequesterID: otherID, Start: at(9, 0), End: at(10, 0),
	})
	assert.True(t, httperr.Is(err, httperr.KindConflict), "got %v", err)

	_, err = h.retry.Execute(ctx, transaction.RetryCaptureInput{TransactionID: id, ActorID: requesterID})
	assert.True(t, httperr.Is(err, httperr.KindUnauthorized), "got %v", err)

	tx, err = h.retry.Execute(ctx, transaction.RetryCaptureInput{TransactionID: id, ActorID: providerID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StateCompleted), tx.State)
	assert.Empty(t, tx.LastError)
	assert.Equal(t, 1, h.gw.Captures())

	tx, err = h.retry.Execute(ctx, transaction.RetryCaptureInput{TransactionID: id, ActorID: providerID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StateCompleted), tx.State)
	assert.Equal(t, 2, h.gw.Calls(paymenttest.OpCapture))
}

func TestRetryCaptureRequiresFailedCapture(t *testing.T) {
	h := newHarness(t)
	res := h.book(t, preauthHourly, requesterID, at(9, 0), at(10, 0))

	_, err := h.retry.Execute(context.Background(), transaction.RetryCaptureInput{
		TransactionID: res.Transaction.ID,
		ActorID:       providerID,
	})
	assert.True(t, httperr.IsBusiness(err, "not_capture_failed"), "got %v", err)
}

func TestAlreadyCapturedIsRecorded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.book(t, preauthHourly, requesterID, at(9, 0), at(10, 0))
	authRef := *res.Transaction.AuthorizationRef

	// A previous attempt moved the money but never recorded it.
	capRef, err := h.gw.Capture(ctx, authRef)
	require.NoError(t, err)

	tx, err := h.decide.Execute(ctx, accept(res.Transaction.ID))
	require.NoError(t, err)
	assert.Equal(t, string(domain.StateCompleted), tx.State)
	assert.Equal(t, capRef, *tx.CaptureRef)
	assert.Equal(t, 1, h.gw.Captures())
}

// ======================================================
// POSTPAY
// ======================================================

func TestPostpayFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.create.Execute(ctx, transaction.CreateInput{
		ListingID:   postpayUnit,
		RequesterID: requesterID,
		Quantity:    2,
		Message:     "two please",
	})
	require.NoError(t, err)
	id := res.Transaction.ID
	assert.Equal(t, string(domain.StateInitiated), res.Transaction.State)
	assert.Nil(t, res.Booking)
	assert.Equal(t, int64(3000), res.Breakdown.Total.Amount)
	require.NotNil(t, res.Breakdown.Subtotal)
	assert.Equal(t, int64(2500), res.Breakdown.Subtotal.Amount)
	assert.Zero(t, h.gw.Calls(paymenttest.OpAuthorize))

	pay := transaction.PayInput{TransactionID: id, PayerID: requesterID, PayerToken: "tokn_test"}

	_, err = h.pay.Execute(ctx, pay)
	assert.True(t, httperr.IsBusiness(err, "not_accepted"), "got %v", err)

	tx, err := h.decide.Execute(ctx, accept(id))
	require.NoError(t, err)
	assert.Equal(t, string(domain.StateAccepted), tx.State)

	_, err = h.decide.Execute(ctx, accept(id))
	require.NoError(t, err)

	_, err = h.pay.Execute(ctx, transaction.PayInput{TransactionID: id, PayerID: providerID})
	assert.True(t, httperr.Is(err, httperr.KindUnauthorized), "got %v", err)

	h.gw.FailNext(paymenttest.OpCharge, payment.NewError(payment.CardDeclined, "", "insufficient_fund"))
	_, err = h.pay.Execute(ctx, pay)
	require.Error(t, err)
	assert.Equal(t, payment.CardDeclined, payment.KindOf(err))
	assert.Equal(t, domain.StateAccepted, h.state(t, id))

	tx, err = h.pay.Execute(ctx, pay)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StateCompleted), tx.State)
	require.NotNil(t, tx.CaptureRef)
	assert.Equal(t, *tx.CaptureRef, *tx.AuthorizationRef)

	hold, ok := h.gw.Hold(*tx.CaptureRef)
	require.True(t, ok)
	assert.Equal(t, int64(3000), hold.Amount.Amount)

	_, err = h.pay.Execute(ctx, pay)
	require.NoError(t, err)
	assert.Equal(t, 2, h.gw.Calls(paymenttest.OpCharge))

	assert.Equal(t,
		[]events.Kind{events.KindMessage, events.KindAccepted, events.KindErrored, events.KindCompleted},
		h.events.Kinds(id),
	)
}

func TestPayRejectsOtherProcesses(t *testing.T) {
	h := newHarness(t)
	res := h.book(t, preauthHourly, requesterID, at(9, 0), at(10, 0))

	_, err := h.pay.Execute(context.Background(), transaction.PayInput{
		TransactionID: res.Transaction.ID,
		PayerID:       requesterID,
	})
	assert.True(t, httperr.IsBusiness(err, "not_postpay"), "got %v", err)
}

func TestPayResumesInterruptedCharge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.create.Execute(ctx, transaction.CreateInput{ListingID: postpayUnit, RequesterID: requesterID, Quantity: 1})
	require.NoError(t, err)
	id := res.Transaction.ID
	_, err = h.decide.Execute(ctx, accept(id))
	require.NoError(t, err)

	// An attempt claimed the charge and died before recording anything.
	tx, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	tx.State = string(domain.StateCapturePending)
	require.NoError(t, h.store.Transition(ctx, tx, domain.StateAccepted))

	pay := transaction.PayInput{TransactionID: id, PayerID: requesterID, PayerToken: "tokn_test"}

	lease, ok, err := h.deps.Locks.TryLock(ctx, lock.CaptureKey(id))
	require.NoError(t, err)
	require.True(t, ok)
	_, err = h.pay.Execute(ctx, pay)
	assert.True(t, httperr.IsBusiness(err, "capture_in_progress"), "got %v", err)
	lease()

	tx, err = h.pay.Execute(ctx, pay)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StateCompleted), tx.State)
	assert.Equal(t, 1, h.gw.Calls(paymenttest.OpCharge))
}

// txLockOutage fails transaction lock acquisition while down is set.
type txLockOutage struct {
	lock.Locker
	key  string
	down atomic.Bool
}

func (o *txLockOutage) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	if o.down.Load() && key == o.key {
		return nil, errors.New("lock service unavailable")
	}
	return o.Locker.Lock(ctx, key)
}

func TestCaptureOutcomeRecordedWithoutTransactionLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.book(t, preauthHourly, requesterID, at(9, 0), at(10, 0)).Transaction.ID

	outage := &txLockOutage{Locker: h.deps.Locks, key: lock.TransactionKey(id)}
	h.deps.Locks = outage
	h.gw.OnCapture = func(string) { outage.down.Store(true) }

	tx, err := h.decide.Execute(ctx, accept(id))
	require.NoError(t, err)
	assert.Equal(t, string(domain.StateCompleted), tx.State)
	assert.Equal(t, domain.StateCompleted, h.state(t, id))
	assert.Equal(t, 1, h.gw.Captures())
}

// ======================================================
// SIDE CHANNELS AND READS
// ======================================================

func TestMessagesAndSeen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.book(t, freeHourly, requesterID, at(9, 0), at(10, 0))
	id := res.Transaction.ID

	_, err := h.message.Execute(ctx, transaction.MessageInput{TransactionID: id, SenderID: providerID, Content: "   "})
	assert.True(t, httperr.IsBusiness(err, "empty_message"), "got %v", err)

	_, err = h.message.Execute(ctx, transaction.MessageInput{TransactionID: id, SenderID: outsiderID, Content: "hi"})
	assert.True(t, httperr.Is(err, httperr.KindUnauthorized), "got %v", err)

	msg, err := h.message.Execute(ctx, transaction.MessageInput{TransactionID: id, SenderID: providerID, Content: "see you"})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)

	err = h.seen.Execute(ctx, transaction.SeenInput{TransactionID: id, PersonID: outsiderID})
	assert.True(t, httperr.Is(err, httperr.KindUnauthorized), "got %v", err)

	require.NoError(t, h.seen.Execute(ctx, transaction.SeenInput{TransactionID: id, PersonID: providerID}))
	_, ok := h.store.SeenAt(id, providerID)
	assert.True(t, ok)

	kinds := h.events.Kinds(id)
	assert.Equal(t, events.KindMessage, kinds[len(kinds)-1])
}

func TestGetTransaction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.book(t, preauthHourly, requesterID, at(9, 0), at(11, 0))
	id := res.Transaction.ID

	d, err := h.get.Execute(ctx, id, providerID)
	require.NoError(t, err)
	assert.Equal(t, id, d.Transaction.ID)
	require.NotNil(t, d.Booking)
	assert.Equal(t, *at(9, 0), d.Booking.StartAt)
	assert.Equal(t, int64(2000), d.Breakdown.Total.Amount)
	assert.Len(t, d.Messages, 1)

	_, err = h.get.Execute(ctx, id, outsiderID)
	assert.True(t, httperr.Is(err, httperr.KindUnauthorized), "got %v", err)

	_, err = h.get.Execute(ctx, "nope", providerID)
	assert.True(t, httperr.Is(err, httperr.KindNotFound), "got %v", err)
}

package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/schedule"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
)

// ErrRecordNotFound is returned by repositories for a missing row.
var ErrRecordNotFound = errors.New("record not found")

// TransactionRepository stores transactions. Transition is a
// compare-and-set on the state column: it writes tx only while the stored
// state still equals from, and fails with an invalid state error otherwise.
type TransactionRepository interface {
	// Create inserts the transaction and its booking (when not nil) atomically.
	Create(ctx context.Context, tx *models.Transaction, booking *models.Booking) error

	Get(ctx context.Context, id string) (*models.Transaction, error)

	Transition(ctx context.Context, tx *models.Transaction, from State) error

	AppendMessage(ctx context.Context, msg *models.Message) error

	ListMessages(ctx context.Context, transactionID string) ([]models.Message, error)

	MarkSeen(ctx context.Context, transactionID string, personID uint, at time.Time) error
}

// CalendarBooking is a decided booking as seen by the calendar feed.
type CalendarBooking struct {
	TransactionID string
	ProviderID    uint
	RequesterID   uint
	StartAt       time.Time
	EndAt         time.Time
}

type BookingRepository interface {
	ForTransaction(ctx context.Context, transactionID string) (*models.Booking, error)

	// ListBlocking returns the provider's bookings whose transaction is in a
	// blocking state and that intersect [from, to). Zero bounds are open.
	ListBlocking(ctx context.Context, providerID uint, from, to time.Time) ([]models.Booking, error)

	// ListCalendar returns accepted bookings where the person is provider or
	// requester.
	ListCalendar(ctx context.Context, personID uint) ([]CalendarBooking, error)

	MarkDecided(ctx context.Context, transactionID string, at time.Time) error
}

// Catalog is the view of listings, people and communities. The only
// thing written through it is a person's open hours.
type Catalog interface {
	Listing(ctx context.Context, id uint) (*models.Listing, error)
	Person(ctx context.Context, id uint) (*models.Person, error)
	Community(ctx context.Context, id uint) (*models.Community, error)
	SaveAvailability(ctx context.Context, personID uint, rule schedule.AvailabilityRule) error
}

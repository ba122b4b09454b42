package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
)

type BookingGormRepository struct {
	db *gorm.DB
}

func NewBookingGormRepository(db *gorm.DB) *BookingGormRepository {
	return &BookingGormRepository{db: db}
}

func blockingStates() []string {
	states := domain.BlockingStates()
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func (r *BookingGormRepository) ForTransaction(
	ctx context.Context,
	transactionID string,
) (*models.Booking, error) {

	var b models.Booking
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *BookingGormRepository) ListBlocking(
	ctx context.Context,
	providerID uint,
	from time.Time,
	to time.Time,
) ([]models.Booking, error) {

	q := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Joins("JOIN transactions ON transactions.id = bookings.transaction_id").
		Where("bookings.provider_id = ? AND transactions.state IN ?", providerID, blockingStates())

	if !to.IsZero() {
		q = q.Where("bookings.start_at < ?", to)
	}
	if !from.IsZero() {
		q = q.Where("bookings.end_at > ?", from)
	}

	var out []models.Booking
	if err := q.Order("bookings.start_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BookingGormRepository) ListCalendar(
	ctx context.Context,
	personID uint,
) ([]domain.CalendarBooking, error) {

	var rows []domain.CalendarBooking
	if err := r.db.WithContext(ctx).
		Table("bookings").
		Select("bookings.transaction_id, transactions.provider_id, transactions.requester_id, bookings.start_at, bookings.end_at").
		Joins("JOIN transactions ON transactions.id = bookings.transaction_id").
		Where("(transactions.provider_id = ? OR transactions.requester_id = ?) AND transactions.appointment_decision = ?",
			personID, personID, string(domain.AppointmentAccepted)).
		Order("bookings.start_at ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, row := range rows {
		if !row.StartAt.IsZero() && !row.EndAt.IsZero() {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *BookingGormRepository) MarkDecided(
	ctx context.Context,
	transactionID string,
	at time.Time,
) error {
	return r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("transaction_id = ?", transactionID).
		Update("decided_at", at).Error
}

// Compile-time check
var _ domain.BookingRepository = (*BookingGormRepository)(nil)

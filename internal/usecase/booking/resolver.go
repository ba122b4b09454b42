// Package booking decides whether a provider can take a time span and
// renders the provider's calendar views.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/schedule"
	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
	"github.com/BruksfildServices01/marketplace-exchange/internal/timezone"
)

// Layout is the wall-clock format of every time the calendar views emit.
const Layout = "2006-01-02T15:04:05"

type Availability string

const (
	Available    Availability = "available"
	Conflict     Availability = "conflict"
	OutsideHours Availability = "outside_availability"
)

type Resolver struct {
	bookings domain.BookingRepository
	catalog  domain.Catalog
	baseURL  string
}

func NewResolver(
	bookings domain.BookingRepository,
	catalog domain.Catalog,
	baseURL string,
) *Resolver {
	return &Resolver{
		bookings: bookings,
		catalog:  catalog,
		baseURL:  baseURL,
	}
}

func (r *Resolver) provider(ctx context.Context, id uint) (*models.Person, error) {
	p, err := r.catalog.Person(ctx, id)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, domain.ErrNotFound("provider_not_found", fmt.Sprintf("provider %d not found", id))
	}
	return p, err
}

// Location is the provider's time zone, used to read wall-clock inputs.
func (r *Resolver) Location(ctx context.Context, providerID uint) (*time.Location, error) {
	p, err := r.provider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return timezone.Location(p.Timezone), nil
}

// ======================================================
// ADMISSION
// ======================================================

// CheckAvailability classifies [start, end) for the provider. Open hours
// are checked before existing bookings.
func (r *Resolver) CheckAvailability(
	ctx context.Context,
	providerID uint,
	start time.Time,
	end time.Time,
) (Availability, error) {

	iv := schedule.Interval{Start: start, End: end}
	if !iv.Valid() {
		return "", domain.ErrValidation("invalid_booking_range", "booking end must be after its start")
	}

	p, err := r.provider(ctx, providerID)
	if err != nil {
		return "", err
	}
	if !covers(p, iv) {
		return OutsideHours, nil
	}

	_, conflict, err := r.findConflict(ctx, providerID, iv, "")
	if err != nil {
		return "", err
	}
	if conflict {
		return Conflict, nil
	}
	return Available, nil
}

// Admit returns nil when the provider can take iv, or the matching
// outside availability or conflict error. Callers hold the provider lock.
func (r *Resolver) Admit(ctx context.Context, provider *models.Person, iv schedule.Interval, exclude string) error {
	if !covers(provider, iv) {
		return domain.ErrOutsideAvailability(fmt.Sprintf(
			"%s is not available between %s and %s",
			provider.DisplayName,
			iv.Start.In(timezone.Location(provider.Timezone)).Format(Layout),
			iv.End.In(timezone.Location(provider.Timezone)).Format(Layout),
		))
	}
	return r.CheckConflict(ctx, provider.ID, iv, exclude)
}

// CheckConflict only looks at blocking bookings, ignoring the booking of
// the excluded transaction.
func (r *Resolver) CheckConflict(ctx context.Context, providerID uint, iv schedule.Interval, exclude string) error {
	item, conflict, err := r.findConflict(ctx, providerID, iv, exclude)
	if err != nil {
		return err
	}
	if conflict {
		return domain.ErrConflict("the requested time overlaps booking " + item.ID)
	}
	return nil
}

func covers(p *models.Person, iv schedule.Interval) bool {
	rule, _ := p.Availability()
	return rule.Covers(iv.Start, iv.End, timezone.Location(p.Timezone))
}

func (r *Resolver) findConflict(
	ctx context.Context,
	providerID uint,
	iv schedule.Interval,
	exclude string,
) (schedule.Item, bool, error) {

	blocking, err := r.bookings.ListBlocking(ctx, providerID, iv.Start, iv.End)
	if err != nil {
		return schedule.Item{}, false, err
	}
	items := make([]schedule.Item, 0, len(blocking))
	for _, b := range blocking {
		if b.TransactionID == exclude {
			continue
		}
		items = append(items, schedule.Item{
			ID:       b.TransactionID,
			Interval: schedule.Interval{Start: b.StartAt, End: b.EndAt},
		})
	}
	item, ok := schedule.NewIntervalIndex(items).FirstOverlap(iv)
	return item, ok, nil
}

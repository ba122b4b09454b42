// Package memory holds every port in process memory. It backs STORAGE=memory
// and the use case tests. Values are copied in and out so callers never
// share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/schedule"
	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
)

type Store struct {
	mu sync.RWMutex

	transactions map[string]models.Transaction
	bookings     map[string]models.Booking
	messages     map[string][]models.Message
	seen         map[string]map[uint]time.Time

	listings    map[uint]models.Listing
	people      map[uint]models.Person
	communities map[uint]models.Community

	nextID uint
}

func NewStore() *Store {
	return &Store{
		transactions: make(map[string]models.Transaction),
		bookings:     make(map[string]models.Booking),
		messages:     make(map[string][]models.Message),
		seen:         make(map[string]map[uint]time.Time),
		listings:     make(map[uint]models.Listing),
		people:       make(map[uint]models.Person),
		communities:  make(map[uint]models.Community),
	}
}

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

func cloneTx(tx models.Transaction) *models.Transaction {
	if tx.AuthorizationRef != nil {
		v := *tx.AuthorizationRef
		tx.AuthorizationRef = &v
	}
	if tx.CaptureRef != nil {
		v := *tx.CaptureRef
		tx.CaptureRef = &v
	}
	if tx.ShippingPrice != nil {
		v := *tx.ShippingPrice
		tx.ShippingPrice = &v
	}
	return &tx
}

// --------------------------------------------------
// TransactionRepository
// --------------------------------------------------

func (s *Store) Create(ctx context.Context, tx *models.Transaction, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[tx.ID]; ok {
		return domain.ErrInvalidState("duplicate_transaction", "transaction "+tx.ID+" exists")
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	s.transactions[tx.ID] = *cloneTx(*tx)

	if booking != nil {
		booking.TransactionID = tx.ID
		booking.ID = s.id()
		booking.CreatedAt = now
		booking.UpdatedAt = now
		s.bookings[tx.ID] = *booking
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return cloneTx(tx), nil
}

func (s *Store) Transition(ctx context.Context, tx *models.Transaction, from domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.transactions[tx.ID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if cur.State != string(from) {
		return domain.ErrInvalidState("stale_state", "transaction is no longer "+string(from))
	}
	tx.UpdatedAt = time.Now().UTC()
	s.transactions[tx.ID] = *cloneTx(*tx)
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = s.id()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.TransactionID] = append(s.messages[msg.TransactionID], *msg)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, transactionID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, len(s.messages[transactionID]))
	copy(out, s.messages[transactionID])
	return out, nil
}

func (s *Store) MarkSeen(ctx context.Context, transactionID string, personID uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[transactionID] == nil {
		s.seen[transactionID] = make(map[uint]time.Time)
	}
	s.seen[transactionID][personID] = at
	return nil
}

// SeenAt reports when the person last marked the conversation seen.
func (s *Store) SeenAt(transactionID string, personID uint) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.seen[transactionID][personID]
	return at, ok
}

// --------------------------------------------------
// BookingRepository
// --------------------------------------------------

func (s *Store) ForTransaction(ctx context.Context, transactionID string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[transactionID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return &b, nil
}

func (s *Store) ListBlocking(ctx context.Context, providerID uint, from, to time.Time) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Booking
	for id, b := range s.bookings {
		if b.ProviderID != providerID {
			continue
		}
		if !domain.State(s.transactions[id].State).Blocking() {
			continue
		}
		if !to.IsZero() && !b.StartAt.Before(to) {
			continue
		}
		if !from.IsZero() && !b.EndAt.After(from) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (s *Store) ListCalendar(ctx context.Context, personID uint) ([]domain.CalendarBooking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CalendarBooking
	for id, b := range s.bookings {
		tx := s.transactions[id]
		if tx.ProviderID != personID && tx.RequesterID != personID {
			continue
		}
		if tx.AppointmentDecision != string(domain.AppointmentAccepted) || b.StartAt.IsZero() || b.EndAt.IsZero() {
			continue
		}
		out = append(out, domain.CalendarBooking{
			TransactionID: id,
			ProviderID:    tx.ProviderID,
			RequesterID:   tx.RequesterID,
			StartAt:       b.StartAt,
			EndAt:         b.EndAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (s *Store) MarkDecided(ctx context.Context, transactionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[transactionID]
	if !ok {
		return nil
	}
	b.DecidedAt = &at
	s.bookings[transactionID] = b
	return nil
}

// --------------------------------------------------
// Catalog
// --------------------------------------------------

func (s *Store) Listing(ctx context.Context, id uint) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return &l, nil
}

func (s *Store) Person(ctx context.Context, id uint) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return &p, nil
}

func (s *Store) Community(ctx context.Context, id uint) (*models.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.communities[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	c.Processes = append([]models.ProcessConfig(nil), c.Processes...)
	return &c, nil
}

func (s *Store) SaveAvailability(ctx context.Context, personID uint, rule schedule.AvailabilityRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.people[personID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	p.SetAvailability(rule)
	s.people[personID] = p
	return nil
}

func (s *Store) PutListing(l models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = l
}

func (s *Store) PutPerson(p models.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people[p.ID] = p
}

func (s *Store) PutCommunity(c models.Community) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.communities[c.ID] = c
}

var (
	_ domain.TransactionRepository = (*Store)(nil)
	_ domain.BookingRepository     = (*Store)(nil)
	_ domain.Catalog               = (*Store)(nil)
)

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
)

type TransactionGormRepository struct {
	db *gorm.DB
}

func NewTransactionGormRepository(db *gorm.DB) *TransactionGormRepository {
	return &TransactionGormRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrRecordNotFound
	}
	return err
}

// --------------------------------------------------
// Transaction
// --------------------------------------------------

func (r *TransactionGormRepository) Create(
	ctx context.Context,
	tx *models.Transaction,
	booking *models.Booking,
) error {
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Create(tx).Error; err != nil {
			return err
		}
		if booking != nil {
			booking.TransactionID = tx.ID
			if err := db.Create(booking).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *TransactionGormRepository) Get(
	ctx context.Context,
	id string,
) (*models.Transaction, error) {

	var tx models.Transaction
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&tx).Error; err != nil {
		return nil, notFound(err)
	}
	return &tx, nil
}

func (r *TransactionGormRepository) Transition(
	ctx context.Context,
	tx *models.Transaction,
	from domain.State,
) error {

	tx.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND state = ?", tx.ID, string(from)).
		Updates(map[string]any{
			"state":                tx.State,
			"appointment_decision": tx.AppointmentDecision,
			"authorization_ref":    tx.AuthorizationRef,
			"capture_ref":          tx.CaptureRef,
			"last_error":           tx.LastError,
			"updated_at":           tx.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInvalidState("stale_state", "transaction is no longer "+string(from))
	}
	return nil
}

// --------------------------------------------------
// Side channels
// --------------------------------------------------

func (r *TransactionGormRepository) AppendMessage(
	ctx context.Context,
	msg *models.Message,
) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *TransactionGormRepository) ListMessages(
	ctx context.Context,
	transactionID string,
) ([]models.Message, error) {

	var msgs []models.Message
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *TransactionGormRepository) MarkSeen(
	ctx context.Context,
	transactionID string,
	personID uint,
	at time.Time,
) error {

	marker := models.ReadMarker{
		TransactionID: transactionID,
		PersonID:      personID,
		SeenAt:        at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}, {Name: "person_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"seen_at"}),
		}).
		Create(&marker).Error
}

// Compile-time check
var _ domain.TransactionRepository = (*TransactionGormRepository)(nil)

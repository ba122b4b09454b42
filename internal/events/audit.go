package events

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
)

// AuditPublisher records every event as an audit_logs row.
type AuditPublisher struct {
	db *gorm.DB
}

func NewAuditPublisher(db *gorm.DB) *AuditPublisher {
	return &AuditPublisher{db: db}
}

func (a *AuditPublisher) Publish(ctx context.Context, ev Event) error {
	var metaJSON string
	if ev.Payload != nil {
		if b, err := json.Marshal(ev.Payload); err == nil {
			metaJSON = string(b)
		}
	}

	log := models.AuditLog{
		CommunityID: ev.CommunityID,
		ActorID:     ev.ActorID,
		Action:      "transaction_" + string(ev.Kind),
		Entity:      "transaction",
		EntityID:    ev.TransactionID,
		Metadata:    metaJSON,
		CreatedAt:   ev.OccurredAt,
	}

	return a.db.WithContext(ctx).Create(&log).Error
}

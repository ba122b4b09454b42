package models

import "time"

type Transaction struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	CommunityID  uint   `gorm:"index" json:"community_id"`
	ListingID    uint   `gorm:"index" json:"listing_id"`
	ListingTitle string `gorm:"size:255" json:"listing_title"`
	RequesterID  uint   `gorm:"index" json:"requester_id"`
	ProviderID   uint   `gorm:"index" json:"provider_id"`

	UnitType      string `gorm:"size:10" json:"unit_type"`
	UnitPrice     int64  `json:"unit_price"`
	ShippingPrice *int64 `json:"shipping_price,omitempty"`
	Currency      string `gorm:"size:3" json:"currency"`
	Quantity      int64  `json:"quantity"`

	ProcessKind string `gorm:"size:20" json:"process"`
	GatewayKind string `gorm:"size:20" json:"gateway"`

	State               string  `gorm:"size:20;index;not null" json:"state"`
	AppointmentDecision string  `gorm:"size:10;default:'undecided'" json:"appointment_decision"`
	AuthorizationRef    *string `gorm:"size:100" json:"authorization_ref,omitempty"`
	CaptureRef          *string `gorm:"size:100" json:"capture_ref,omitempty"`
	LastError           string  `gorm:"size:255" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsParty reports whether the person is the requester or the provider.
func (t *Transaction) IsParty(personID uint) bool {
	return personID != 0 && (t.RequesterID == personID || t.ProviderID == personID)
}

type Booking struct {
	ID uint `gorm:"primaryKey" json:"id"`

	TransactionID string `gorm:"size:36;uniqueIndex;not null" json:"transaction_id"`
	ProviderID    uint   `gorm:"index" json:"provider_id"`
	RequesterID   uint   `gorm:"index" json:"requester_id"`

	StartAt   time.Time  `gorm:"index" json:"start_at"`
	EndAt     time.Time  `gorm:"index" json:"end_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID uint `gorm:"primaryKey" json:"id"`

	TransactionID string `gorm:"size:36;index;not null" json:"transaction_id"`
	SenderID      uint   `json:"sender_id"`
	Content       string `gorm:"type:text" json:"content"`

	CreatedAt time.Time `json:"created_at"`
}

// ReadMarker is kept apart from Transaction so marking a conversation seen
// never contends with state transitions.
type ReadMarker struct {
	TransactionID string    `gorm:"primaryKey;size:36" json:"transaction_id"`
	PersonID      uint      `gorm:"primaryKey" json:"person_id"`
	SeenAt        time.Time `json:"seen_at"`
}

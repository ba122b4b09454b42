package models

import (
	"time"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/schedule"
)

const (
	UnitTypeUnit = "unit"
	UnitTypeHour = "hour"
	UnitTypeDay  = "day"
)

type Listing struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	CommunityID uint `gorm:"index" json:"community_id"`
	AuthorID    uint `gorm:"index" json:"author_id"`

	Title              string `gorm:"size:255;not null" json:"title"`
	UnitType           string `gorm:"size:10;default:'unit'" json:"unit_type"`
	PriceCents         int64  `json:"price_cents"`
	Currency           string `gorm:"size:3" json:"currency"`
	ShippingPriceCents *int64 `json:"shipping_price_cents,omitempty"`
	ProcessID          uint   `json:"process_id"`
	Closed             bool   `gorm:"default:false" json:"closed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scheduled listings are booked for a span of time.
func (l *Listing) Scheduled() bool {
	return l.UnitType == UnitTypeHour || l.UnitType == UnitTypeDay
}

// UnitDuration is the length of one priced unit of a scheduled listing.
func (l *Listing) UnitDuration() time.Duration {
	switch l.UnitType {
	case UnitTypeHour:
		return time.Hour
	case UnitTypeDay:
		return 24 * time.Hour
	}
	return 0
}

type Person struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	DisplayName string `gorm:"size:100;not null" json:"display_name"`
	Email       string `gorm:"size:100" json:"email"`
	Timezone    string `gorm:"size:50" json:"timezone"`

	OmiseRecipientID   string `gorm:"size:100" json:"-"`
	MercadoPagoAccount string `gorm:"size:100" json:"-"`

	AvailabilitySet      bool  `gorm:"default:false" json:"availability_set"`
	AvailabilityWeekdays int16 `json:"availability_weekdays"`
	AvailabilityHours    int64 `json:"availability_hours"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PayoutAccount is the destination account of the person on a gateway.
func (p *Person) PayoutAccount(gateway string) string {
	switch gateway {
	case "omise":
		return p.OmiseRecipientID
	case "mercadopago":
		return p.MercadoPagoAccount
	}
	return ""
}

// Availability returns the open hours rule and whether one was ever set.
func (p *Person) Availability() (schedule.AvailabilityRule, bool) {
	if !p.AvailabilitySet {
		return schedule.Unrestricted(), false
	}
	return schedule.AvailabilityRule{
		Weekdays: uint8(p.AvailabilityWeekdays),
		Hours:    uint32(p.AvailabilityHours),
	}, true
}

func (p *Person) SetAvailability(r schedule.AvailabilityRule) {
	p.AvailabilitySet = true
	p.AvailabilityWeekdays = int16(r.Weekdays)
	p.AvailabilityHours = int64(r.Hours)
}

type Community struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Name           string `gorm:"size:100;not null" json:"name"`
	PaymentGateway string `gorm:"size:20;default:'none'" json:"payment_gateway"`

	Processes []ProcessConfig `gorm:"foreignKey:CommunityID" json:"processes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProcessConfig is one transaction process a community offers its listings.
type ProcessConfig struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	CommunityID uint   `gorm:"index" json:"community_id"`
	Process     string `gorm:"size:20;not null" json:"process"`
}

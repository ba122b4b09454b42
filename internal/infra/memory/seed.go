package memory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
	"github.com/BruksfildServices01/marketplace-exchange/internal/money"
)

// Seed is the catalog a memory store starts with.
type Seed struct {
	Communities []models.Community `json:"communities"`
	People      []seedPerson       `json:"people"`
	Listings    []seedListing      `json:"listings"`
}

// seedListing also takes prices in major units ("12.50"), which win over
// the cent fields when set.
type seedListing struct {
	models.Listing
	Price         string `json:"price"`
	ShippingPrice string `json:"shipping_price"`
}

func (l seedListing) resolve() (models.Listing, error) {
	listing := l.Listing
	if l.Price != "" {
		m, err := money.Parse(l.Price, listing.Currency)
		if err != nil {
			return listing, fmt.Errorf("listing %d price: %w", listing.ID, err)
		}
		listing.PriceCents = m.Amount
	}
	if l.ShippingPrice != "" {
		m, err := money.Parse(l.ShippingPrice, listing.Currency)
		if err != nil {
			return listing, fmt.Errorf("listing %d shipping price: %w", listing.ID, err)
		}
		listing.ShippingPriceCents = &m.Amount
	}
	return listing, nil
}

// seedPerson exposes the payout accounts the API hides.
type seedPerson struct {
	models.Person
	OmiseRecipientID   string `json:"omise_recipient_id"`
	MercadoPagoAccount string `json:"mercadopago_account"`
}

// LoadSeed reads a JSON seed file into the store.
func (s *Store) LoadSeed(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(b, &seed); err != nil {
		return fmt.Errorf("parse seed %s: %w", path, err)
	}

	for _, c := range seed.Communities {
		for i := range c.Processes {
			c.Processes[i].CommunityID = c.ID
		}
		s.PutCommunity(c)
	}
	for _, p := range seed.People {
		person := p.Person
		person.OmiseRecipientID = p.OmiseRecipientID
		person.MercadoPagoAccount = p.MercadoPagoAccount
		s.PutPerson(person)
	}
	listings := make([]models.Listing, 0, len(seed.Listings))
	for _, l := range seed.Listings {
		listing, err := l.resolve()
		if err != nil {
			return fmt.Errorf("parse seed %s: %w", path, err)
		}
		listings = append(listings, listing)
	}
	for _, l := range listings {
		s.PutListing(l)
	}
	return nil
}

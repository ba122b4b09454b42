package money

// Breakdown is the price shown to both parties of a transaction.
type Breakdown struct {
	UnitPrice Money  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	Subtotal  *Money `json:"subtotal,omitempty"`
	Shipping  *Money `json:"shipping,omitempty"`
	Total     Money  `json:"total"`
}

// Break computes unit price x quantity (+ shipping). The subtotal line is
// only present when it differs from a bare unit price: quantity above one,
// a booked time span, or a shipping fee.
func Break(unit Money, quantity int64, shipping *Money, scheduled bool) (Breakdown, error) {
	if quantity < 1 {
		return Breakdown{}, ErrNegativeQuantity
	}
	sub, err := unit.Mul(quantity)
	if err != nil {
		return Breakdown{}, err
	}
	total := sub
	if shipping != nil {
		if total, err = sub.Add(*shipping); err != nil {
			return Breakdown{}, err
		}
	}

	b := Breakdown{
		UnitPrice: unit,
		Quantity:  quantity,
		Total:     total,
	}
	if shipping != nil {
		s := *shipping
		b.Shipping = &s
	}
	if quantity > 1 || scheduled || shipping != nil {
		b.Subtotal = &sub
	}
	return b, nil
}

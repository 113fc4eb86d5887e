package outbox

import (
	"encoding/json"
	"time"
)

const (
	orderDateLayout      = "2006-01-02"
	defaultPaymentMethod = "Cash"
)

// Order is the payload accepted by POST /api/orders.
type Order struct {
	ProductID     int      `json:"product_id"`
	Quantity      float64  `json:"quantity"`
	PaymentMethod string   `json:"payment_method"`
	OrderDate     string   `json:"order_date,omitempty"`
	UseBottle     bool     `json:"use_bottle"`
	BottlesUsed   *int     `json:"bottles_used,omitempty"`
	BottleSize    *int     `json:"bottle_size,omitempty"`
	BottlePrice   *float64 `json:"bottle_price,omitempty"`
}

// Validate checks the fields the server rejects outright.
func (o Order) Validate() error {
	if o.ProductID <= 0 {
		return ErrInvalidProductID
	}
	if o.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if o.OrderDate != "" {
		if _, err := time.Parse(orderDateLayout, o.OrderDate); err != nil {
			return ErrInvalidOrderDate
		}
	}
	if o.BottlesUsed != nil && *o.BottlesUsed < 0 {
		return ErrInvalidBottles
	}

	return nil
}

// Payload validates the order and encodes it, defaulting the payment method.
func (o Order) Payload() (json.RawMessage, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = defaultPaymentMethod
	}

	return json.Marshal(o)
}

package outbox

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestOrderValidate(t *testing.T) {
	negative := -1

	cases := []struct {
		name  string
		order Order
		err   error
	}{
		{
			name:  "missing product",
			order: Order{Quantity: 1},
			err:   ErrInvalidProductID,
		},
		{
			name:  "zero quantity",
			order: Order{ProductID: 1},
			err:   ErrInvalidQuantity,
		},
		{
			name:  "bad date",
			order: Order{ProductID: 1, Quantity: 1, OrderDate: "01/02/2024"},
			err:   ErrInvalidOrderDate,
		},
		{
			name:  "negative bottles",
			order: Order{ProductID: 1, Quantity: 1, UseBottle: true, BottlesUsed: &negative},
			err:   ErrInvalidBottles,
		},
		{
			name:  "fractional quantity",
			order: Order{ProductID: 2, Quantity: 0.5, OrderDate: "2024-01-01"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.order.Validate()
			if tc.err == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.err != nil && !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestOrderPayloadDefaultsPaymentMethod(t *testing.T) {
	payload, err := Order{ProductID: 1, Quantity: 2, OrderDate: "2024-01-01"}.Payload()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["payment_method"] != "Cash" {
		t.Fatalf("expected Cash default, got %v", decoded["payment_method"])
	}
	if _, ok := decoded["bottles_used"]; ok {
		t.Fatalf("expected optional bottle fields to be omitted")
	}
}

func TestOrderPayloadKeepsBottleFields(t *testing.T) {
	bottles, size, price := 2, 20, 150.0
	order := Order{
		ProductID:     3,
		Quantity:      2,
		PaymentMethod: "Mpesa",
		UseBottle:     true,
		BottlesUsed:   &bottles,
		BottleSize:    &size,
		BottlePrice:   &price,
	}

	payload, err := order.Payload()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}

	var decoded Order
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.PaymentMethod != "Mpesa" || decoded.BottleSize == nil || *decoded.BottleSize != 20 {
		t.Fatalf("unexpected decoded order: %+v", decoded)
	}
}

func TestRejectionClassification(t *testing.T) {
	rejection := &RejectionError{StatusCode: 400, Message: "invalid product_id"}
	wrapped := errors.Join(errors.New("context"), rejection)

	if !IsRejection(wrapped) {
		t.Fatalf("expected wrapped rejection to be detected")
	}
	if IsTransport(wrapped) {
		t.Fatalf("rejection must not be a transport failure")
	}
	if !IsTransport(errors.New("dial tcp: connection refused")) {
		t.Fatalf("expected plain error to be a transport failure")
	}
	if IsTransport(nil) {
		t.Fatalf("nil is not a failure")
	}
}

func TestStorageErrorWrapsSentinel(t *testing.T) {
	cause := errors.New("disk full")
	err := StorageError("outbox sqlite: open", cause)

	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved")
	}
	if StorageError("op", nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
}

package reservations

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Booking is a confirmed claim on a slot's capacity.
type Booking struct {
	ID             uuid.UUID     `json:"id"`
	UserID         uuid.UUID     `json:"user_id"`
	SlotID         uuid.UUID     `json:"slot_id"`
	Quantity       int           `json:"quantity"`
	Seats          []string      `json:"seats,omitempty"`
	Status         BookingStatus `json:"status"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	CancelledAt    *time.Time    `json:"cancelled_at,omitempty"`
}

func newBooking(slotID, userID uuid.UUID, quantity int, seats []string, key string, now time.Time) *Booking {
	return &Booking{
		ID:             uuid.New(),
		UserID:         userID,
		SlotID:         slotID,
		Quantity:       quantity,
		Seats:          seats,
		Status:         BookingConfirmed,
		IdempotencyKey: key,
		CreatedAt:      now.UTC(),
	}
}

// cancel flips a confirmed booking to cancelled. It reports false if it already was.
func (b *Booking) cancel(now time.Time) bool {
	if b.Status == BookingCancelled {
		return false
	}
	at := now.UTC()
	b.Status = BookingCancelled
	b.CancelledAt = &at
	return true
}

func (b *Booking) clone() *Booking {
	c := *b
	if b.Seats != nil {
		c.Seats = append([]string(nil), b.Seats...)
	}
	if b.CancelledAt != nil {
		at := *b.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}

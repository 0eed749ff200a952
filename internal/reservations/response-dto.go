package reservations

import (
	"time"

	"github.com/google/uuid"
)

type SlotResponse struct {
	ID         uuid.UUID  `json:"id"`
	ParentID   uuid.UUID  `json:"parent_id"`
	ParentType ParentType `json:"parent_type"`
	StartsAt   time.Time  `json:"starts_at"`
	EndsAt     time.Time  `json:"ends_at"`
	Capacity   int        `json:"capacity"`
	Booked     int        `json:"booked"`
	Available  int        `json:"available"`
	SeatLevel  bool       `json:"seat_level"`
	CreatedAt  time.Time  `json:"created_at"`
}

func ToSlotResponse(s *Slot) SlotResponse {
	return SlotResponse{
		ID:         s.ID(),
		ParentID:   s.ParentID(),
		ParentType: s.ParentType(),
		StartsAt:   s.StartsAt(),
		EndsAt:     s.EndsAt(),
		Capacity:   s.Capacity(),
		Booked:     s.Booked(),
		Available:  s.Available(),
		SeatLevel:  s.SeatLevel(),
		CreatedAt:  s.CreatedAt(),
	}
}

type SeatMapResponse struct {
	SlotID    uuid.UUID `json:"slot_id"`
	Available int       `json:"available"`
	Seats     []Seat    `json:"seats"`
}

type BookingListResponse struct {
	Bookings []Booking `json:"bookings"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

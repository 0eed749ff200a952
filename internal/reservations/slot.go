package reservations

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ParentType identifies what a slot belongs to.
type ParentType string

const (
	ParentEvent ParentType = "EVENT"
	ParentMovie ParentType = "MOVIE"
)

func (p ParentType) IsValid() bool {
	return p == ParentEvent || p == ParentMovie
}

// Slot is a bookable time window with a fixed capacity.
//
// booked only changes through commitReserve and releaseReserve, which keep
// 0 <= booked <= capacity. version is bumped by the store on every write and
// is used for compare-and-set.
type Slot struct {
	id         uuid.UUID
	parentID   uuid.UUID
	parentType ParentType
	startsAt   time.Time
	endsAt     time.Time
	capacity   int
	booked     int
	seatLevel  bool
	version    int64
	createdAt  time.Time
}

// NewSlotInput describes a slot to be created.
type NewSlotInput struct {
	ParentID   uuid.UUID
	ParentType ParentType
	StartsAt   time.Time
	EndsAt     time.Time
	Capacity   int
	// Seats enables seat-level tracking. Capacity must be zero or equal len(Seats).
	Seats []string
}

// NewSlot validates input and builds an empty slot.
func NewSlot(in NewSlotInput, now time.Time) (*Slot, error) {
	if !in.ParentType.IsValid() {
		return nil, fmt.Errorf("%w: unknown parent type %q", ErrInvalidSlot, in.ParentType)
	}
	if in.ParentID == uuid.Nil {
		return nil, fmt.Errorf("%w: parent id is required", ErrInvalidSlot)
	}
	if !in.EndsAt.After(in.StartsAt) {
		return nil, fmt.Errorf("%w: slot must end after it starts", ErrInvalidSlot)
	}

	capacity := in.Capacity
	if len(in.Seats) > 0 {
		if capacity != 0 && capacity != len(in.Seats) {
			return nil, fmt.Errorf("%w: capacity %d does not match %d seats", ErrInvalidSlot, capacity, len(in.Seats))
		}
		capacity = len(in.Seats)
		seen := make(map[string]struct{}, len(in.Seats))
		for _, label := range in.Seats {
			if label == "" {
				return nil, fmt.Errorf("%w: empty seat label", ErrInvalidSlot)
			}
			if _, dup := seen[label]; dup {
				return nil, fmt.Errorf("%w: duplicate seat %s", ErrInvalidSlot, label)
			}
			seen[label] = struct{}{}
		}
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidSlot)
	}

	return &Slot{
		id:         uuid.New(),
		parentID:   in.ParentID,
		parentType: in.ParentType,
		startsAt:   in.StartsAt.UTC(),
		endsAt:     in.EndsAt.UTC(),
		capacity:   capacity,
		seatLevel:  len(in.Seats) > 0,
		createdAt:  now.UTC(),
	}, nil
}

// restoreSlot rebuilds a slot from persisted state.
func restoreSlot(id, parentID uuid.UUID, parentType ParentType, startsAt, endsAt time.Time,
	capacity, booked int, seatLevel bool, version int64, createdAt time.Time) *Slot {
	return &Slot{
		id:         id,
		parentID:   parentID,
		parentType: parentType,
		startsAt:   startsAt,
		endsAt:     endsAt,
		capacity:   capacity,
		booked:     booked,
		seatLevel:  seatLevel,
		version:    version,
		createdAt:  createdAt,
	}
}

func (s *Slot) ID() uuid.UUID          { return s.id }
func (s *Slot) ParentID() uuid.UUID    { return s.parentID }
func (s *Slot) ParentType() ParentType { return s.parentType }
func (s *Slot) StartsAt() time.Time    { return s.startsAt }
func (s *Slot) EndsAt() time.Time      { return s.endsAt }
func (s *Slot) Capacity() int          { return s.capacity }
func (s *Slot) Booked() int            { return s.booked }
func (s *Slot) SeatLevel() bool        { return s.seatLevel }
func (s *Slot) Version() int64         { return s.version }
func (s *Slot) CreatedAt() time.Time   { return s.createdAt }

// Available is the remaining capacity.
func (s *Slot) Available() int { return s.capacity - s.booked }

// Fits reports whether quantity units can be committed right now.
func (s *Slot) Fits(quantity int) bool {
	return quantity > 0 && s.booked+quantity <= s.capacity
}

// Started reports whether the slot has begun at the given time.
func (s *Slot) Started(now time.Time) bool { return !now.Before(s.startsAt) }

func (s *Slot) commitReserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !s.Fits(quantity) {
		return ErrCapacityExceeded
	}
	s.booked += quantity
	return nil
}

// releaseReserve returns the units actually freed, clamped so booked never goes negative.
func (s *Slot) releaseReserve(quantity int) int {
	if quantity <= 0 {
		return 0
	}
	if quantity > s.booked {
		quantity = s.booked
	}
	s.booked -= quantity
	return quantity
}

// Clone returns an independent copy.
func (s *Slot) Clone() *Slot {
	c := *s
	return &c
}

// SlotAvailability summarises whether a slot can take another unit.
type SlotAvailability string

const (
	SlotAvailable SlotAvailability = "AVAILABLE"
	SlotFull      SlotAvailability = "FULL"
)

// SlotStatus is the read model returned by GetSlotStatus.
type SlotStatus struct {
	SlotID    uuid.UUID        `json:"slot_id"`
	Status    SlotAvailability `json:"status"`
	Capacity  int              `json:"capacity"`
	Booked    int              `json:"booked"`
	Available int              `json:"available"`
	SeatLevel bool             `json:"seat_level"`
	StartsAt  time.Time        `json:"starts_at"`
	Pending   int              `json:"waitlist_pending"`
}

func statusOf(s *Slot, pending int) *SlotStatus {
	availability := SlotFull
	if s.Available() > 0 {
		availability = SlotAvailable
	}
	return &SlotStatus{
		SlotID:    s.id,
		Status:    availability,
		Capacity:  s.capacity,
		Booked:    s.booked,
		Available: s.Available(),
		SeatLevel: s.seatLevel,
		StartsAt:  s.startsAt,
		Pending:   pending,
	}
}

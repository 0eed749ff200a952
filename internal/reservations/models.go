package reservations

import (
	"time"

	"github.com/google/uuid"
)

// Table records for the gorm store. Domain types never carry gorm tags.

type slotRecord struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ParentID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_slots_parent" json:"parent_id"`
	ParentType ParentType `gorm:"type:varchar(10);not null;index:idx_slots_parent" json:"parent_type"`
	StartsAt   time.Time  `gorm:"not null;index" json:"starts_at"`
	EndsAt     time.Time  `gorm:"not null" json:"ends_at"`
	Capacity   int        `gorm:"not null" json:"capacity"`
	Booked     int        `gorm:"not null;default:0" json:"booked"`
	SeatLevel  bool       `gorm:"not null;default:false" json:"seat_level"`
	Version    int64      `gorm:"not null;default:0" json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (slotRecord) TableName() string { return "slots" }

type seatRecord struct {
	SlotID    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"slot_id"`
	Label     string     `gorm:"type:varchar(20);primaryKey" json:"label"`
	Position  int        `gorm:"not null" json:"position"`
	Status    SeatStatus `gorm:"type:varchar(20);not null;default:'AVAILABLE'" json:"status"`
	BookingID *uuid.UUID `gorm:"type:uuid;index" json:"booking_id,omitempty"`
}

func (seatRecord) TableName() string { return "slot_seats" }

type bookingRecord struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	SlotID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"slot_id"`
	Quantity       int           `gorm:"not null" json:"quantity"`
	Seats          []string      `gorm:"type:jsonb;serializer:json" json:"seats"`
	Status         BookingStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	IdempotencyKey *string       `gorm:"type:varchar(100)" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	CancelledAt    *time.Time    `json:"cancelled_at,omitempty"`
}

func (bookingRecord) TableName() string { return "bookings" }

type waitlistRecord struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	SlotID         uuid.UUID      `gorm:"type:uuid;not null;index:idx_waitlist_slot_status" json:"slot_id"`
	Quantity       int            `gorm:"not null" json:"quantity"`
	Status         WaitlistStatus `gorm:"type:varchar(20);not null;index:idx_waitlist_slot_status" json:"status"`
	IdempotencyKey *string        `gorm:"type:varchar(100)" json:"idempotency_key,omitempty"`
	ArrivedAt      time.Time      `gorm:"not null" json:"arrived_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	BookingID      *uuid.UUID     `gorm:"type:uuid" json:"booking_id,omitempty"`
}

func (waitlistRecord) TableName() string { return "waitlist_entries" }

// Models lists the records to auto-migrate.
func Models() []interface{} {
	return []interface{}{&slotRecord{}, &seatRecord{}, &bookingRecord{}, &waitlistRecord{}}
}

// Constraints are applied after AutoMigrate. They hold the same rules the
// engine enforces so a bug or a manual write cannot break them.
var Constraints = []string{
	`DO $$ BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_slots_booked_range') THEN
			ALTER TABLE slots ADD CONSTRAINT chk_slots_booked_range CHECK (booked >= 0 AND booked <= capacity AND capacity > 0);
		END IF;
	END $$`,
	`DO $$ BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_bookings_quantity') THEN
			ALTER TABLE bookings ADD CONSTRAINT chk_bookings_quantity CHECK (quantity > 0);
		END IF;
	END $$`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_bookings_idempotency
		ON bookings (slot_id, user_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_waitlist_pending_user
		ON waitlist_entries (slot_id, user_id) WHERE status = 'PENDING'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_waitlist_idempotency
		ON waitlist_entries (slot_id, user_id, idempotency_key) WHERE idempotency_key IS NOT NULL AND status = 'PENDING'`,
	`CREATE INDEX IF NOT EXISTS idx_waitlist_fifo
		ON waitlist_entries (slot_id, arrived_at, id) WHERE status = 'PENDING'`,
}

func slotToRecord(s *Slot) *slotRecord {
	return &slotRecord{
		ID:         s.id,
		ParentID:   s.parentID,
		ParentType: s.parentType,
		StartsAt:   s.startsAt,
		EndsAt:     s.endsAt,
		Capacity:   s.capacity,
		Booked:     s.booked,
		SeatLevel:  s.seatLevel,
		Version:    s.version,
		CreatedAt:  s.createdAt,
	}
}

func (r *slotRecord) toDomain() *Slot {
	return restoreSlot(r.ID, r.ParentID, r.ParentType, r.StartsAt, r.EndsAt,
		r.Capacity, r.Booked, r.SeatLevel, r.Version, r.CreatedAt)
}

func (r *seatRecord) toDomain() Seat {
	return Seat{SlotID: r.SlotID, Label: r.Label, Position: r.Position, Status: r.Status, BookingID: r.BookingID}
}

func bookingToRecord(b *Booking) *bookingRecord {
	r := &bookingRecord{
		ID:          b.ID,
		UserID:      b.UserID,
		SlotID:      b.SlotID,
		Quantity:    b.Quantity,
		Seats:       b.Seats,
		Status:      b.Status,
		CreatedAt:   b.CreatedAt,
		CancelledAt: b.CancelledAt,
	}
	if b.IdempotencyKey != "" {
		key := b.IdempotencyKey
		r.IdempotencyKey = &key
	}
	return r
}

func (r *bookingRecord) toDomain() *Booking {
	b := &Booking{
		ID:          r.ID,
		UserID:      r.UserID,
		SlotID:      r.SlotID,
		Quantity:    r.Quantity,
		Seats:       r.Seats,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		CancelledAt: r.CancelledAt,
	}
	if r.IdempotencyKey != nil {
		b.IdempotencyKey = *r.IdempotencyKey
	}
	return b
}

func entryToRecord(e *WaitlistEntry) *waitlistRecord {
	r := &waitlistRecord{
		ID:         e.ID,
		UserID:     e.UserID,
		SlotID:     e.SlotID,
		Quantity:   e.Quantity,
		Status:     e.Status,
		ArrivedAt:  e.ArrivedAt,
		ResolvedAt: e.ResolvedAt,
		BookingID:  e.BookingID,
	}
	if e.IdempotencyKey != "" {
		key := e.IdempotencyKey
		r.IdempotencyKey = &key
	}
	return r
}

func (r *waitlistRecord) toDomain() WaitlistEntry {
	e := WaitlistEntry{
		ID:         r.ID,
		UserID:     r.UserID,
		SlotID:     r.SlotID,
		Quantity:   r.Quantity,
		Status:     r.Status,
		ArrivedAt:  r.ArrivedAt,
		ResolvedAt: r.ResolvedAt,
		BookingID:  r.BookingID,
	}
	if r.IdempotencyKey != nil {
		e.IdempotencyKey = *r.IdempotencyKey
	}
	return e
}

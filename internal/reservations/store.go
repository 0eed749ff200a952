package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists slots, seats, bookings and waitlist entries.
//
// All mutation happens inside InSlotTx. A store must guarantee that the
// closure observes and commits a consistent view of one slot aggregate (the
// slot row, its seat ledger, its bookings and its waitlist) and that two
// units of work on the same slot cannot both commit from the same starting
// version. When that guarantee is violated a store returns ErrConflict and
// the caller retries.
type Store interface {
	InSlotTx(ctx context.Context, slotID uuid.UUID, fn func(tx SlotTx) error) error

	CreateSlot(ctx context.Context, slot *Slot, seats []Seat) error
	GetSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error)
	ListSeats(ctx context.Context, slotID uuid.UUID) ([]Seat, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error)
	ListUserBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Booking, error)
	// ListPendingEntries returns the slot's PENDING entries in FIFO order.
	ListPendingEntries(ctx context.Context, slotID uuid.UUID) ([]WaitlistEntry, error)
	// ListStartedSlotsWithPending returns ids of slots starting at or before
	// the given time that still hold PENDING entries.
	ListStartedSlotsWithPending(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
	Ping(ctx context.Context) error
}

// SlotTx is a unit of work scoped to a single slot. The transaction's
// context is bound when it is opened.
type SlotTx interface {
	// Slot is the slot as read at the start of the unit of work.
	Slot() *Slot
	// SaveSlot persists booked. It fails with ErrConflict if the version moved.
	SaveSlot(slot *Slot) error

	// Seats returns the seat ledger in position order.
	Seats() ([]Seat, error)
	MarkSeats(labels []string, status SeatStatus, bookingID *uuid.UUID) error

	CreateBooking(b *Booking) error
	GetBooking(bookingID uuid.UUID) (*Booking, error)
	FindBookingByKey(userID uuid.UUID, key string) (*Booking, error)
	SaveBooking(b *Booking) error

	// PendingEntries returns PENDING entries in FIFO order.
	PendingEntries() ([]WaitlistEntry, error)
	FindPendingEntry(userID uuid.UUID) (*WaitlistEntry, error)
	CreateEntry(e *WaitlistEntry) error
	SaveEntry(e *WaitlistEntry) error
}

// Notifier receives domain events after they commit. Implementations must
// not block the caller.
type Notifier interface {
	Notify(ctx context.Context, event string, userID, slotID uuid.UUID, payload map[string]interface{})
}

const (
	EventWaitlistAdded    = "waitlist:added"
	EventWaitlistPromoted = "waitlist:promoted"
	EventWaitlistExpired  = "waitlist:expired"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, uuid.UUID, uuid.UUID, map[string]interface{}) {}

// StatusCache is an optional read-through cache for GetSlotStatus.
// Generation is taken before the store read; Set must drop the snapshot if
// Invalidate ran after that generation was observed.
type StatusCache interface {
	Get(ctx context.Context, slotID uuid.UUID) (*SlotStatus, bool)
	Generation(ctx context.Context, slotID uuid.UUID) (int64, bool)
	Set(ctx context.Context, status *SlotStatus, gen int64)
	Invalidate(ctx context.Context, slotID uuid.UUID)
}

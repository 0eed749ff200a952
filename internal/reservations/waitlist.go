package reservations

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type WaitlistStatus string

const (
	WaitlistPending  WaitlistStatus = "PENDING"
	WaitlistPromoted WaitlistStatus = "PROMOTED"
	WaitlistExpired  WaitlistStatus = "EXPIRED"
)

func (s WaitlistStatus) IsValid() bool {
	switch s {
	case WaitlistPending, WaitlistPromoted, WaitlistExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether a status change is allowed.
// PROMOTED and EXPIRED are terminal.
func (s WaitlistStatus) CanTransitionTo(next WaitlistStatus) bool {
	transitions := map[WaitlistStatus][]WaitlistStatus{
		WaitlistPending: {WaitlistPromoted, WaitlistExpired},
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WaitlistEntry is a queued request for capacity.
type WaitlistEntry struct {
	ID         uuid.UUID      `json:"id"`
	UserID     uuid.UUID      `json:"user_id"`
	SlotID     uuid.UUID      `json:"slot_id"`
	Quantity   int            `json:"quantity"`
	Status     WaitlistStatus `json:"status"`
	ArrivedAt  time.Time      `json:"arrived_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	BookingID  *uuid.UUID     `json:"booking_id,omitempty"`

	// IdempotencyKey is carried onto the booking created on promotion.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func newWaitlistEntry(slotID, userID uuid.UUID, quantity int, key string, now time.Time) *WaitlistEntry {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &WaitlistEntry{
		ID:             id,
		UserID:         userID,
		SlotID:         slotID,
		Quantity:       quantity,
		Status:         WaitlistPending,
		ArrivedAt:      now.UTC(),
		IdempotencyKey: key,
	}
}

func (e *WaitlistEntry) transition(next WaitlistStatus, now time.Time) error {
	if !e.Status.CanTransitionTo(next) {
		return wrapf(ErrInvalidTransition, "%s -> %s", e.Status, next)
	}
	at := now.UTC()
	e.Status = next
	e.ResolvedAt = &at
	return nil
}

func (e *WaitlistEntry) promote(bookingID uuid.UUID, now time.Time) error {
	if err := e.transition(WaitlistPromoted, now); err != nil {
		return err
	}
	e.BookingID = &bookingID
	return nil
}

func (e *WaitlistEntry) expire(now time.Time) error {
	return e.transition(WaitlistExpired, now)
}

// arrivedBefore is the FIFO order: arrival time, then entry id.
func arrivedBefore(a, b *WaitlistEntry) bool {
	if !a.ArrivedAt.Equal(b.ArrivedAt) {
		return a.ArrivedAt.Before(b.ArrivedAt)
	}
	return a.ID.String() < b.ID.String()
}

func sortFIFO(entries []WaitlistEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return arrivedBefore(&entries[i], &entries[j])
	})
}

// WaitlistTicket is what a caller gets back after joining a waitlist.
type WaitlistTicket struct {
	EntryID   uuid.UUID      `json:"entry_id"`
	SlotID    uuid.UUID      `json:"slot_id"`
	UserID    uuid.UUID      `json:"user_id"`
	Quantity  int            `json:"quantity"`
	Status    WaitlistStatus `json:"status"`
	Position  int            `json:"position,omitempty"`
	ArrivedAt time.Time      `json:"arrived_at"`
	BookingID *uuid.UUID     `json:"booking_id,omitempty"`
}

// ticketFor builds a ticket; position is the 1-based rank among pending
// entries, or zero once the entry is resolved.
func ticketFor(entry *WaitlistEntry, pending []WaitlistEntry) *WaitlistTicket {
	t := &WaitlistTicket{
		EntryID:   entry.ID,
		SlotID:    entry.SlotID,
		UserID:    entry.UserID,
		Quantity:  entry.Quantity,
		Status:    entry.Status,
		ArrivedAt: entry.ArrivedAt,
		BookingID: entry.BookingID,
	}
	if entry.Status == WaitlistPending {
		for i := range pending {
			if pending[i].ID == entry.ID {
				t.Position = i + 1
				break
			}
		}
	}
	return t
}

package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WaitlistManager queues requests that do not fit and promotes them as
// capacity frees up. Promotion is FIFO with fit: entries that are too large
// for the remaining capacity are skipped, later smaller ones are not blocked.
type WaitlistManager struct {
	engine *Engine
}

// enqueueInTx appends a PENDING entry, or returns the user's existing one.
// key is stored on a new entry so the promoted booking can be found by it.
func (w *WaitlistManager) enqueueInTx(tx SlotTx, slot *Slot, userID uuid.UUID, quantity int, key string) (*WaitlistTicket, bool, error) {
	existing, err := tx.FindPendingEntry(userID)
	if err != nil {
		return nil, false, err
	}
	created := false
	entry := existing
	if entry == nil {
		entry = newWaitlistEntry(slot.ID(), userID, quantity, key, w.engine.now())
		if err := tx.CreateEntry(entry); err != nil {
			return nil, false, err
		}
		created = true
	}

	pending, err := tx.PendingEntries()
	if err != nil {
		return nil, false, err
	}
	return ticketFor(entry, pending), created, nil
}

// promoteInTx walks PENDING entries in arrival order and confirms every one
// that fits the capacity left. Capacity only shrinks during the walk, so a
// skipped entry cannot fit later in the same pass.
func (w *WaitlistManager) promoteInTx(tx SlotTx, slot *Slot) ([]Promotion, error) {
	if slot.Available() == 0 {
		return nil, nil
	}
	pending, err := tx.PendingEntries()
	if err != nil {
		return nil, err
	}

	var promos []Promotion
	for i := range pending {
		if slot.Available() == 0 {
			break
		}
		entry := &pending[i]
		if !slot.Fits(entry.Quantity) {
			continue
		}
		booking, err := w.engine.commit(tx, slot, entry.UserID, entry.Quantity, nil, entry.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if err := entry.promote(booking.ID, w.engine.now()); err != nil {
			return nil, err
		}
		if err := tx.SaveEntry(entry); err != nil {
			return nil, err
		}
		promos = append(promos, Promotion{
			EntryID:   entry.ID,
			UserID:    entry.UserID,
			BookingID: booking.ID,
			Quantity:  entry.Quantity,
		})
	}
	return promos, nil
}

// Enqueue adds the user to the slot's waitlist. If the slot has room the
// entry is promoted in the same unit of work and the ticket comes back PROMOTED.
func (w *WaitlistManager) Enqueue(ctx context.Context, slotID, userID uuid.UUID, quantity int) (*WaitlistTicket, error) {
	e := w.engine
	if err := e.validateQuantity(quantity); err != nil {
		return nil, err
	}
	if !e.cfg.WaitlistEnabled {
		return nil, wrapf(ErrCapacityExceeded, "waitlist disabled")
	}

	var (
		ticket *WaitlistTicket
		promos []Promotion
		events []event
	)
	err := e.withRetry(ctx, "enqueue", slotID, func(ctx context.Context) error {
		ticket, promos, events = nil, nil, nil
		return e.store.InSlotTx(ctx, slotID, func(tx SlotTx) error {
			slot := tx.Slot()
			if quantity > slot.Capacity() {
				return wrapf(ErrInvalidQuantity, "slot capacity is %d", slot.Capacity())
			}
			t, created, err := w.enqueueInTx(tx, slot, userID, quantity, "")
			if err != nil {
				return err
			}
			if created {
				events = append(events, addedEvent(t))
			}
			if promos, err = w.promoteInTx(tx, slot); err != nil {
				return err
			}
			for _, p := range promos {
				events = append(events, promotedEvent(slotID, p))
				if p.EntryID == t.EntryID {
					bookingID := p.BookingID
					t.Status = WaitlistPromoted
					t.Position = 0
					t.BookingID = &bookingID
				}
			}
			if len(promos) > 0 && t.Status == WaitlistPending {
				pending, err := tx.PendingEntries()
				if err != nil {
					return err
				}
				for i := range pending {
					if pending[i].ID == t.EntryID {
						t.Position = i + 1
					}
				}
			}
			ticket = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if len(events) > 0 && events[0].name == EventWaitlistAdded {
		e.logger.LogWaitlistJoined(ctx, ticket.EntryID.String(), slotID.String(), userID.String(), ticket.Position)
	}
	e.afterPromotions(ctx, slotID, promos)
	e.invalidate(ctx, slotID)
	e.emit(ctx, events)
	return ticket, nil
}

// Promote runs a promotion pass on its own. Release already promotes in the
// same unit of work, so this is for capacity that frees up by other means.
func (w *WaitlistManager) Promote(ctx context.Context, slotID uuid.UUID) ([]Promotion, error) {
	e := w.engine
	var (
		promos []Promotion
		events []event
	)
	err := e.withRetry(ctx, "promote", slotID, func(ctx context.Context) error {
		promos, events = nil, nil
		return e.store.InSlotTx(ctx, slotID, func(tx SlotTx) error {
			var err error
			if promos, err = w.promoteInTx(tx, tx.Slot()); err != nil {
				return err
			}
			for _, p := range promos {
				events = append(events, promotedEvent(slotID, p))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(promos) > 0 {
		e.invalidate(ctx, slotID)
	}
	e.afterPromotions(ctx, slotID, promos)
	e.emit(ctx, events)
	return promos, nil
}

// Leave expires the user's PENDING entry.
func (w *WaitlistManager) Leave(ctx context.Context, slotID, userID uuid.UUID) error {
	e := w.engine
	var expired *WaitlistEntry
	err := e.withRetry(ctx, "leave", slotID, func(ctx context.Context) error {
		expired = nil
		return e.store.InSlotTx(ctx, slotID, func(tx SlotTx) error {
			entry, err := tx.FindPendingEntry(userID)
			if err != nil {
				return err
			}
			if entry == nil {
				return ErrEntryNotFound
			}
			if err := entry.expire(e.now()); err != nil {
				return err
			}
			if err := tx.SaveEntry(entry); err != nil {
				return err
			}
			expired = entry
			return nil
		})
	})
	if err != nil {
		return err
	}
	e.logger.LogWaitlistExpired(ctx, expired.ID.String(), slotID.String(), "left")
	e.invalidate(ctx, slotID)
	e.emit(ctx, []event{expiredEvent(expired, "left")})
	return nil
}

// Ticket returns the user's PENDING entry with its current position.
func (w *WaitlistManager) Ticket(ctx context.Context, slotID, userID uuid.UUID) (*WaitlistTicket, error) {
	pending, err := w.engine.store.ListPendingEntries(ctx, slotID)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		if pending[i].UserID == userID {
			return ticketFor(&pending[i], pending), nil
		}
	}
	return nil, ErrEntryNotFound
}

// ExpireStarted expires PENDING entries of slots that have already started.
// It returns the number of entries expired.
func (w *WaitlistManager) ExpireStarted(ctx context.Context, batch int) (int, error) {
	e := w.engine
	now := e.now()
	slotIDs, err := e.store.ListStartedSlotsWithPending(ctx, now, batch)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, slotID := range slotIDs {
		n, err := w.expireSlot(ctx, slotID, now)
		if err != nil {
			e.logger.ErrorContext(ctx, "waitlist expiry failed", "slot_id", slotID.String(), "error", err.Error())
			continue
		}
		total += n
	}
	return total, nil
}

func (w *WaitlistManager) expireSlot(ctx context.Context, slotID uuid.UUID, now time.Time) (int, error) {
	e := w.engine
	var expired []WaitlistEntry
	err := e.withRetry(ctx, "expire", slotID, func(ctx context.Context) error {
		expired = nil
		return e.store.InSlotTx(ctx, slotID, func(tx SlotTx) error {
			if !tx.Slot().Started(now) {
				return nil
			}
			pending, err := tx.PendingEntries()
			if err != nil {
				return err
			}
			for i := range pending {
				entry := &pending[i]
				if err := entry.expire(now); err != nil {
					return err
				}
				if err := tx.SaveEntry(entry); err != nil {
					return err
				}
				expired = append(expired, *entry)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	events := make([]event, 0, len(expired))
	for i := range expired {
		e.logger.LogWaitlistExpired(ctx, expired[i].ID.String(), slotID.String(), "slot_started")
		events = append(events, expiredEvent(&expired[i], "slot_started"))
	}
	if len(expired) > 0 {
		e.invalidate(ctx, slotID)
	}
	e.emit(ctx, events)
	return len(expired), nil
}

// Engine-level shortcuts used by the HTTP layer.

func (e *Engine) Enqueue(ctx context.Context, slotID, userID uuid.UUID, quantity int) (*WaitlistTicket, error) {
	return e.waitlist.Enqueue(ctx, slotID, userID, quantity)
}

func (e *Engine) LeaveWaitlist(ctx context.Context, slotID, userID uuid.UUID) error {
	return e.waitlist.Leave(ctx, slotID, userID)
}

func (e *Engine) GetWaitlistTicket(ctx context.Context, slotID, userID uuid.UUID) (*WaitlistTicket, error) {
	return e.waitlist.Ticket(ctx, slotID, userID)
}

package reservations

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. Each unit of work runs on a
// private copy of the slot aggregate and commits with a version check, so
// concurrent writers on the same slot race the same way they do on the
// database store and the loser gets ErrConflict.
type MemoryStore struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]*memSlot
	bookings map[uuid.UUID]uuid.UUID // booking id -> slot id
}

type memSlot struct {
	slot     Slot
	seats    []Seat
	bookings map[uuid.UUID]*Booking
	entries  map[uuid.UUID]*WaitlistEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots:    make(map[uuid.UUID]*memSlot),
		bookings: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *memSlot) clone() *memSlot {
	c := &memSlot{
		slot:     m.slot,
		seats:    make([]Seat, len(m.seats)),
		bookings: make(map[uuid.UUID]*Booking, len(m.bookings)),
		entries:  make(map[uuid.UUID]*WaitlistEntry, len(m.entries)),
	}
	for i, seat := range m.seats {
		c.seats[i] = copySeat(seat)
	}
	for id, b := range m.bookings {
		c.bookings[id] = b.clone()
	}
	for id, e := range m.entries {
		entry := *e
		c.entries[id] = &entry
	}
	return c
}

func copySeat(s Seat) Seat {
	if s.BookingID != nil {
		id := *s.BookingID
		s.BookingID = &id
	}
	return s
}

func (m *memSlot) pending() []WaitlistEntry {
	out := make([]WaitlistEntry, 0)
	for _, e := range m.entries {
		if e.Status == WaitlistPending {
			out = append(out, *e)
		}
	}
	sortFIFO(out)
	return out
}

func (s *MemoryStore) InSlotTx(ctx context.Context, slotID uuid.UUID, fn func(tx SlotTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	current, ok := s.slots[slotID]
	if !ok {
		s.mu.Unlock()
		return ErrSlotNotFound
	}
	work := current.clone()
	s.mu.Unlock()

	tx := &memTx{data: work, slot: work.slot.Clone(), baseVersion: work.slot.version}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[slotID].slot.version != tx.baseVersion {
		return ErrConflict
	}
	work.slot.version = tx.baseVersion + 1
	s.slots[slotID] = work
	for id := range tx.newBookings {
		s.bookings[id] = slotID
	}
	return nil
}

func (s *MemoryStore) CreateSlot(ctx context.Context, slot *Slot, seats []Seat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.slots[slot.ID()]; exists {
		return wrapf(ErrInvalidSlot, "slot %s already exists", slot.ID())
	}
	data := &memSlot{
		slot:     *slot,
		seats:    make([]Seat, len(seats)),
		bookings: make(map[uuid.UUID]*Booking),
		entries:  make(map[uuid.UUID]*WaitlistEntry),
	}
	copy(data.seats, seats)
	s.slots[slot.ID()] = data
	return nil
}

func (s *MemoryStore) GetSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return data.slot.Clone(), nil
}

func (s *MemoryStore) ListSeats(ctx context.Context, slotID uuid.UUID) ([]Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	out := make([]Seat, len(data.seats))
	for i, seat := range data.seats {
		out[i] = copySeat(seat)
	}
	return out, nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slotID, ok := s.bookings[bookingID]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return s.slots[slotID].bookings[bookingID].clone(), nil
}

func (s *MemoryStore) ListUserBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Booking, error) {
	s.mu.Lock()
	var all []Booking
	for _, data := range s.slots {
		for _, b := range data.bookings {
			if b.UserID == userID {
				all = append(all, *b.clone())
			}
		}
	}
	s.mu.Unlock()

	// Newest first, ties broken by id descending like the database store.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() > all[j].ID.String()
	})
	if offset >= len(all) {
		return []Booking{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

func (s *MemoryStore) ListPendingEntries(ctx context.Context, slotID uuid.UUID) ([]WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return data.pending(), nil
}

func (s *MemoryStore) ListStartedSlotsWithPending(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, data := range s.slots {
		if limit > 0 && len(ids) >= limit {
			break
		}
		if data.slot.startsAt.After(before) {
			continue
		}
		for _, e := range data.entries {
			if e.Status == WaitlistPending {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

type memTx struct {
	data        *memSlot
	slot        *Slot
	baseVersion int64
	dirty       bool
	newBookings map[uuid.UUID]struct{}
}

func (t *memTx) Slot() *Slot { return t.slot }

func (t *memTx) SaveSlot(slot *Slot) error {
	if slot.version != t.baseVersion {
		return ErrConflict
	}
	t.data.slot = *slot
	t.dirty = true
	return nil
}

func (t *memTx) Seats() ([]Seat, error) {
	out := make([]Seat, len(t.data.seats))
	for i, seat := range t.data.seats {
		out[i] = copySeat(seat)
	}
	return out, nil
}

func (t *memTx) MarkSeats(labels []string, status SeatStatus, bookingID *uuid.UUID) error {
	want := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		want[l] = struct{}{}
	}
	marked := 0
	for i := range t.data.seats {
		seat := &t.data.seats[i]
		if _, ok := want[seat.Label]; !ok {
			continue
		}
		seat.Status = status
		seat.BookingID = nil
		if bookingID != nil {
			id := *bookingID
			seat.BookingID = &id
		}
		marked++
	}
	if marked != len(want) {
		return ErrUnknownSeat
	}
	t.dirty = true
	return nil
}

func (t *memTx) CreateBooking(b *Booking) error {
	t.data.bookings[b.ID] = b.clone()
	if t.newBookings == nil {
		t.newBookings = make(map[uuid.UUID]struct{})
	}
	t.newBookings[b.ID] = struct{}{}
	t.dirty = true
	return nil
}

func (t *memTx) GetBooking(bookingID uuid.UUID) (*Booking, error) {
	b, ok := t.data.bookings[bookingID]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return b.clone(), nil
}

func (t *memTx) FindBookingByKey(userID uuid.UUID, key string) (*Booking, error) {
	for _, b := range t.data.bookings {
		if b.UserID == userID && b.IdempotencyKey == key {
			return b.clone(), nil
		}
	}
	return nil, nil
}

func (t *memTx) SaveBooking(b *Booking) error {
	if _, ok := t.data.bookings[b.ID]; !ok {
		return ErrBookingNotFound
	}
	t.data.bookings[b.ID] = b.clone()
	t.dirty = true
	return nil
}

func (t *memTx) PendingEntries() ([]WaitlistEntry, error) {
	return t.data.pending(), nil
}

func (t *memTx) FindPendingEntry(userID uuid.UUID) (*WaitlistEntry, error) {
	for _, e := range t.data.entries {
		if e.UserID == userID && e.Status == WaitlistPending {
			entry := *e
			return &entry, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateEntry(e *WaitlistEntry) error {
	if existing, _ := t.FindPendingEntry(e.UserID); existing != nil {
		return ErrConflict
	}
	entry := *e
	t.data.entries[e.ID] = &entry
	t.dirty = true
	return nil
}

func (t *memTx) SaveEntry(e *WaitlistEntry) error {
	if _, ok := t.data.entries[e.ID]; !ok {
		return ErrEntryNotFound
	}
	entry := *e
	t.data.entries[e.ID] = &entry
	t.dirty = true
	return nil
}

package reservations

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoredSlot(t *testing.T, s *MemoryStore, capacity int) *Slot {
	t.Helper()
	slot, err := NewSlot(NewSlotInput{
		ParentID:   uuid.New(),
		ParentType: ParentEvent,
		StartsAt:   time.Now().Add(time.Hour),
		EndsAt:     time.Now().Add(2 * time.Hour),
		Capacity:   capacity,
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateSlot(context.Background(), slot, nil))
	return slot
}

func TestMemoryStore_StaleWriterConflicts(t *testing.T) {
	s := NewMemoryStore()
	slot := newStoredSlot(t, s, 5)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.InSlotTx(ctx, slot.ID(), func(tx SlotTx) error {
			close(entered)
			<-release
			sl := tx.Slot()
			if err := sl.commitReserve(1); err != nil {
				return err
			}
			return tx.SaveSlot(sl)
		})
	}()

	<-entered
	require.NoError(t, s.InSlotTx(ctx, slot.ID(), func(tx SlotTx) error {
		sl := tx.Slot()
		require.NoError(t, sl.commitReserve(2))
		return tx.SaveSlot(sl)
	}))
	close(release)

	assert.ErrorIs(t, <-done, ErrConflict)
	got, err := s.GetSlot(ctx, slot.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, got.Booked())
	assert.Equal(t, int64(1), got.Version())
}

func TestMemoryStore_FailedWorkIsDiscarded(t *testing.T) {
	s := NewMemoryStore()
	slot := newStoredSlot(t, s, 5)
	ctx := context.Background()

	err := s.InSlotTx(ctx, slot.ID(), func(tx SlotTx) error {
		sl := tx.Slot()
		require.NoError(t, sl.commitReserve(3))
		require.NoError(t, tx.SaveSlot(sl))
		return ErrSeatConflict
	})
	assert.ErrorIs(t, err, ErrSeatConflict)

	got, err := s.GetSlot(ctx, slot.ID())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Booked())
}

func TestMemoryStore_PendingFIFO(t *testing.T) {
	s := NewMemoryStore()
	slot := newStoredSlot(t, s, 1)
	ctx := context.Background()
	base := time.Now()

	late := newWaitlistEntry(slot.ID(), uuid.New(), 1, "", base.Add(time.Second))
	early := newWaitlistEntry(slot.ID(), uuid.New(), 1, "", base)
	require.NoError(t, s.InSlotTx(ctx, slot.ID(), func(tx SlotTx) error {
		if err := tx.CreateEntry(late); err != nil {
			return err
		}
		return tx.CreateEntry(early)
	}))

	pending, err := s.ListPendingEntries(ctx, slot.ID())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, early.ID, pending[0].ID)
	assert.Equal(t, late.ID, pending[1].ID)
}

func TestMemoryStore_OnePendingEntryPerUser(t *testing.T) {
	s := NewMemoryStore()
	slot := newStoredSlot(t, s, 1)
	user := uuid.New()

	err := s.InSlotTx(context.Background(), slot.ID(), func(tx SlotTx) error {
		if err := tx.CreateEntry(newWaitlistEntry(slot.ID(), user, 1, "", time.Now())); err != nil {
			return err
		}
		return tx.CreateEntry(newWaitlistEntry(slot.ID(), user, 2, "", time.Now()))
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_ListUserBookingsPaginates(t *testing.T) {
	s := NewMemoryStore()
	slot := newStoredSlot(t, s, 10)
	user := uuid.New()
	base := time.Now()

	require.NoError(t, s.InSlotTx(context.Background(), slot.ID(), func(tx SlotTx) error {
		for i := 0; i < 3; i++ {
			if err := tx.CreateBooking(newBooking(slot.ID(), user, 1, nil, "", base.Add(time.Duration(i)*time.Minute))); err != nil {
				return err
			}
		}
		return nil
	}))

	page, err := s.ListUserBookings(context.Background(), user, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	rest, err := s.ListUserBookings(context.Background(), user, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestMemoryStore_ListUserBookingsTiesOrderedByID(t *testing.T) {
	s := NewMemoryStore()
	slot := newStoredSlot(t, s, 10)
	user := uuid.New()
	at := time.Now()

	var ids []string
	require.NoError(t, s.InSlotTx(context.Background(), slot.ID(), func(tx SlotTx) error {
		for i := 0; i < 5; i++ {
			b := newBooking(slot.ID(), user, 1, nil, "", at)
			ids = append(ids, b.ID.String())
			if err := tx.CreateBooking(b); err != nil {
				return err
			}
		}
		return nil
	}))
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	var paged []string
	for offset := 0; offset < 5; offset += 2 {
		page, err := s.ListUserBookings(context.Background(), user, 2, offset)
		require.NoError(t, err)
		for _, b := range page {
			paged = append(paged, b.ID.String())
		}
	}
	assert.Equal(t, ids, paged, "pages over equal timestamps must be stable and disjoint")
}

package reservations

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserve_ConfirmsWithinCapacity(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 5)

	res := env.reserve(t, slot.ID(), 3)

	assert.Equal(t, ReserveConfirmed, res.Status)
	require.NotNil(t, res.Booking)
	assert.Equal(t, 3, res.Booking.Quantity)
	assert.Equal(t, BookingConfirmed, res.Booking.Status)
	assert.Equal(t, 3, env.booked(t, slot.ID()))
}

func TestReserve_TwoCallersOneUnit(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 1)

	var wg sync.WaitGroup
	results := make([]*ReserveResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.engine.Reserve(context.Background(), ReserveRequest{UserID: uuid.New(), SlotID: slot.ID(), Quantity: 1})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	statuses := []ReserveStatus{results[0].Status, results[1].Status}
	assert.ElementsMatch(t, []ReserveStatus{ReserveConfirmed, ReserveWaitlisted}, statuses)
	assert.Equal(t, 1, env.booked(t, slot.ID()))
}

func TestReserve_ConcurrentCallersNeverOverbook(t *testing.T) {
	env := newTestEnv(t, testConfig())
	const capacity, callers = 10, 50
	slot := env.slot(t, capacity)

	var confirmed, waitlisted int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.engine.Reserve(context.Background(), ReserveRequest{UserID: uuid.New(), SlotID: slot.ID(), Quantity: 1})
			if !assert.NoError(t, err) {
				return
			}
			switch res.Status {
			case ReserveConfirmed:
				atomic.AddInt32(&confirmed, 1)
			case ReserveWaitlisted:
				atomic.AddInt32(&waitlisted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(capacity), confirmed)
	assert.Equal(t, int32(callers-capacity), waitlisted)
	assert.Equal(t, capacity, env.booked(t, slot.ID()))
	assert.Equal(t, capacity, env.confirmedSum(slot.ID()))

	pending, err := env.store.ListPendingEntries(context.Background(), slot.ID())
	require.NoError(t, err)
	assert.Len(t, pending, callers-capacity)
}

func TestReserve_MixedQuantitiesUnderContention(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 17)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			_, err := env.engine.Reserve(context.Background(), ReserveRequest{UserID: uuid.New(), SlotID: slot.ID(), Quantity: q})
			assert.NoError(t, err)
		}(i%4 + 1)
	}
	wg.Wait()

	booked := env.booked(t, slot.ID())
	assert.LessOrEqual(t, booked, 17)
	assert.Equal(t, booked, env.confirmedSum(slot.ID()))
}

func TestReserve_WaitlistDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.WaitlistEnabled = false
	env := newTestEnv(t, cfg)
	slot := env.slot(t, 1)
	env.reserve(t, slot.ID(), 1)

	_, err := env.engine.Reserve(context.Background(), ReserveRequest{UserID: uuid.New(), SlotID: slot.ID(), Quantity: 1})

	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
}

func TestReserve_InvalidInput(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQuantity = 4
	env := newTestEnv(t, cfg)
	slot := env.slot(t, 3)
	seated := env.slot(t, 0, "A1", "A2")
	ctx := context.Background()
	user := uuid.New()

	tests := []struct {
		name string
		req  ReserveRequest
		want error
	}{
		{"zero quantity", ReserveRequest{UserID: user, SlotID: slot.ID(), Quantity: 0}, ErrInvalidQuantity},
		{"over request cap", ReserveRequest{UserID: user, SlotID: slot.ID(), Quantity: 5}, ErrInvalidQuantity},
		{"over slot capacity", ReserveRequest{UserID: user, SlotID: slot.ID(), Quantity: 4}, ErrInvalidQuantity},
		{"seat count mismatch", ReserveRequest{UserID: user, SlotID: seated.ID(), Quantity: 2, Seats: []string{"A1"}}, ErrSeatMismatch},
		{"duplicate seat", ReserveRequest{UserID: user, SlotID: seated.ID(), Quantity: 2, Seats: []string{"A1", "A1"}}, ErrSeatMismatch},
		{"unknown seat", ReserveRequest{UserID: user, SlotID: seated.ID(), Quantity: 1, Seats: []string{"Z9"}}, ErrUnknownSeat},
		{"seats on unseated slot", ReserveRequest{UserID: user, SlotID: slot.ID(), Quantity: 1, Seats: []string{"A1"}}, ErrSeatMismatch},
		{"missing slot", ReserveRequest{UserID: user, SlotID: uuid.New(), Quantity: 1}, ErrSlotNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Reserve(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, env.booked(t, slot.ID()))
	assert.Equal(t, 0, env.booked(t, seated.ID()))
}

func TestReserve_IdempotencyKey(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 5)
	req := ReserveRequest{UserID: uuid.New(), SlotID: slot.ID(), Quantity: 2, IdempotencyKey: "order-17"}

	first, err := env.engine.Reserve(context.Background(), req)
	require.NoError(t, err)
	second, err := env.engine.Reserve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Booking.ID, second.Booking.ID)
	assert.Equal(t, 2, env.booked(t, slot.ID()))
}

func TestReserve_IdempotencyKeySurvivesWaitlist(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 2)
	ctx := context.Background()
	holder := env.reserve(t, slot.ID(), 2)

	user := uuid.New()
	req := ReserveRequest{UserID: user, SlotID: slot.ID(), Quantity: 1, IdempotencyKey: "k2"}
	queued, err := env.engine.Reserve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, ReserveWaitlisted, queued.Status)

	again, err := env.engine.Reserve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ReserveWaitlisted, again.Status)
	assert.Equal(t, queued.Ticket.EntryID, again.Ticket.EntryID)

	rel, err := env.engine.Release(ctx, holder.Booking.ID)
	require.NoError(t, err)
	require.Len(t, rel.Promotions, 1)
	assert.Equal(t, user, rel.Promotions[0].UserID)

	replay, err := env.engine.Reserve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ReserveConfirmed, replay.Status)
	assert.Equal(t, rel.Promotions[0].BookingID, replay.Booking.ID)
	assert.Equal(t, "k2", replay.Booking.IdempotencyKey)

	bookings, err := env.engine.ListUserBookings(ctx, user, 10, 0)
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
	assert.Equal(t, 1, env.booked(t, slot.ID()))
}

func TestReserve_IdempotencyKeyOfCancelledBooking(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 3)
	ctx := context.Background()
	req := ReserveRequest{UserID: uuid.New(), SlotID: slot.ID(), Quantity: 1, IdempotencyKey: "order-9"}

	first, err := env.engine.Reserve(ctx, req)
	require.NoError(t, err)
	_, err = env.engine.Release(ctx, first.Booking.ID)
	require.NoError(t, err)

	replay, err := env.engine.Reserve(ctx, req)
	assert.Nil(t, replay)
	assert.ErrorIs(t, err, ErrKeyCancelled)
	assert.Equal(t, KindInvalid, Kind(err))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	assert.Equal(t, 0, env.booked(t, slot.ID()))
}

func TestReserve_SameUserWaitlistedOnce(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 1)
	env.reserve(t, slot.ID(), 1)
	user := uuid.New()

	first, err := env.engine.Reserve(context.Background(), ReserveRequest{UserID: user, SlotID: slot.ID(), Quantity: 1})
	require.NoError(t, err)
	second, err := env.engine.Reserve(context.Background(), ReserveRequest{UserID: user, SlotID: slot.ID(), Quantity: 1})
	require.NoError(t, err)

	assert.Equal(t, ReserveWaitlisted, second.Status)
	assert.Equal(t, first.Ticket.EntryID, second.Ticket.EntryID)
	assert.Len(t, env.notifier.byEvent(EventWaitlistAdded), 1)
}

func TestSeats_ExplicitConflict(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 0, "A1", "A2")
	ctx := context.Background()

	res, err := env.engine.Reserve(ctx, ReserveRequest{UserID: uuid.New(), SlotID: slot.ID(), Quantity: 1, Seats: []string{"A1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, res.Booking.Seats)

	_, err = env.engine.Reserve(ctx, ReserveRequest{UserID: uuid.New(), SlotID: slot.ID(), Quantity: 1, Seats: []string{"A1"}})
	assert.ErrorIs(t, err, ErrSeatConflict)
	assert.Equal(t, KindSeatConflict, Kind(err))
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
	assert.Equal(t, 1, env.booked(t, slot.ID()))
}

func TestSeats_ConcurrentSameSeat(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 0, "A1", "A2")

	var confirmed, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Reserve(context.Background(), ReserveRequest{UserID: uuid.New(), SlotID: slot.ID(), Quantity: 1, Seats: []string{"A1"}})
			switch {
			case err == nil:
				atomic.AddInt32(&confirmed, 1)
			case errors.Is(err, ErrSeatConflict):
				atomic.AddInt32(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), confirmed)
	assert.Equal(t, int32(19), conflicts)

	seats, err := env.engine.ListSeats(context.Background(), slot.ID())
	require.NoError(t, err)
	assert.Equal(t, SeatBooked, seats[0].Status)
	assert.Equal(t, SeatAvailable, seats[1].Status)
}

func TestSeats_AutoAssignAndRelease(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 0, "A1", "A2", "A3")
	ctx := context.Background()

	res := env.reserve(t, slot.ID(), 2)
	assert.Equal(t, []string{"A1", "A2"}, res.Booking.Seats)

	_, err := env.engine.Release(ctx, res.Booking.ID)
	require.NoError(t, err)

	seats, err := env.engine.ListSeats(ctx, slot.ID())
	require.NoError(t, err)
	for _, s := range seats {
		assert.Equal(t, SeatAvailable, s.Status, s.Label)
		assert.Nil(t, s.BookingID)
	}
}

func TestRelease_PromotesWaiter(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 5)
	ctx := context.Background()
	env.reserve(t, slot.ID(), 3)
	two := env.reserve(t, slot.ID(), 2)
	waiter := uuid.New()
	queued, err := env.engine.Reserve(ctx, ReserveRequest{UserID: waiter, SlotID: slot.ID(), Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, ReserveWaitlisted, queued.Status)
	assert.Equal(t, 1, queued.Ticket.Position)

	rel, err := env.engine.Release(ctx, two.Booking.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, rel.FreedQuantity)
	require.Len(t, rel.Promotions, 1)
	assert.Equal(t, waiter, rel.Promotions[0].UserID)
	assert.Equal(t, 5, env.booked(t, slot.ID()))

	status, err := env.engine.GetSlotStatus(ctx, slot.ID())
	require.NoError(t, err)
	assert.Equal(t, 0, status.Available)
	assert.Equal(t, 0, status.Pending)

	promoted := env.notifier.byEvent(EventWaitlistPromoted)
	require.Len(t, promoted, 1)
	assert.Equal(t, waiter, promoted[0].UserID)

	bookings, err := env.engine.ListUserBookings(ctx, waiter, 10, 0)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, rel.Promotions[0].BookingID, bookings[0].ID)
}

func TestRelease_Idempotent(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 5)
	res := env.reserve(t, slot.ID(), 5)
	ctx := context.Background()

	first, err := env.engine.Release(ctx, res.Booking.ID)
	require.NoError(t, err)
	second, err := env.engine.Release(ctx, res.Booking.ID)
	require.NoError(t, err)

	assert.Equal(t, 5, first.FreedQuantity)
	assert.Equal(t, 0, second.FreedQuantity)
	assert.Equal(t, 0, env.booked(t, slot.ID()))
}

func TestRelease_ConcurrentCallsFreeOnce(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 5)
	env.reserve(t, slot.ID(), 1)
	res := env.reserve(t, slot.ID(), 4)

	var freed int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rel, err := env.engine.Release(context.Background(), res.Booking.ID)
			if assert.NoError(t, err) {
				atomic.AddInt32(&freed, int32(rel.FreedQuantity))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(4), freed)
	assert.Equal(t, 1, env.booked(t, slot.ID()))
}

func TestRelease_UnknownBooking(t *testing.T) {
	env := newTestEnv(t, testConfig())
	_, err := env.engine.Release(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestCancelBooking_Ownership(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 2)
	owner := uuid.New()
	res, err := env.engine.Reserve(context.Background(), ReserveRequest{UserID: owner, SlotID: slot.ID(), Quantity: 1})
	require.NoError(t, err)

	_, err = env.engine.CancelBooking(context.Background(), res.Booking.ID, uuid.New(), false)
	assert.ErrorIs(t, err, ErrForbidden)

	rel, err := env.engine.CancelBooking(context.Background(), res.Booking.ID, uuid.New(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, rel.FreedQuantity)
}

func TestWaitlist_FIFOWithFit(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 4)
	ctx := context.Background()
	one := env.reserve(t, slot.ID(), 1)
	env.reserve(t, slot.ID(), 3)

	big, small := uuid.New(), uuid.New()
	_, err := env.engine.Reserve(ctx, ReserveRequest{UserID: big, SlotID: slot.ID(), Quantity: 3})
	require.NoError(t, err)
	_, err = env.engine.Reserve(ctx, ReserveRequest{UserID: small, SlotID: slot.ID(), Quantity: 1})
	require.NoError(t, err)

	rel, err := env.engine.Release(ctx, one.Booking.ID)
	require.NoError(t, err)

	require.Len(t, rel.Promotions, 1)
	assert.Equal(t, small, rel.Promotions[0].UserID)

	promoted := 0
	for _, p := range rel.Promotions {
		promoted += p.Quantity
	}
	assert.LessOrEqual(t, promoted, rel.FreedQuantity)

	ticket, err := env.engine.GetWaitlistTicket(ctx, slot.ID(), big)
	require.NoError(t, err)
	assert.Equal(t, WaitlistPending, ticket.Status)
	assert.Equal(t, 1, ticket.Position)
}

func TestWaitlist_PromotedOnlyWhenCumulativeFreeFits(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 10)
	ctx := context.Background()
	parts := []*ReserveResult{env.reserve(t, slot.ID(), 3), env.reserve(t, slot.ID(), 3), env.reserve(t, slot.ID(), 4)}

	waiter := uuid.New()
	_, err := env.engine.Reserve(ctx, ReserveRequest{UserID: waiter, SlotID: slot.ID(), Quantity: 10})
	require.NoError(t, err)

	for i, part := range parts {
		rel, err := env.engine.Release(ctx, part.Booking.ID)
		require.NoError(t, err)
		if i < 2 {
			assert.Empty(t, rel.Promotions, "release %d", i)
			continue
		}
		require.Len(t, rel.Promotions, 1)
		assert.Equal(t, 10, rel.Promotions[0].Quantity)
	}

	assert.Equal(t, 10, env.booked(t, slot.ID()))
	assert.Len(t, env.notifier.byEvent(EventWaitlistPromoted), 1)
	bookings, err := env.engine.ListUserBookings(ctx, waiter, 10, 0)
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestRoundTrip_RestoresAvailability(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 6)
	ctx := context.Background()

	before, err := env.engine.GetSlotStatus(ctx, slot.ID())
	require.NoError(t, err)

	res := env.reserve(t, slot.ID(), 4)
	_, err = env.engine.Release(ctx, res.Booking.ID)
	require.NoError(t, err)
	env.reserve(t, slot.ID(), 4)
	last := env.reserve(t, slot.ID(), 2)
	_, err = env.engine.Release(ctx, last.Booking.ID)
	require.NoError(t, err)

	after, err := env.engine.GetSlotStatus(ctx, slot.ID())
	require.NoError(t, err)
	assert.Equal(t, before.Available-4, after.Available)
}

func TestEnqueue_PromotesImmediatelyWhenRoom(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 3)

	ticket, err := env.engine.Enqueue(context.Background(), slot.ID(), uuid.New(), 2)
	require.NoError(t, err)

	assert.Equal(t, WaitlistPromoted, ticket.Status)
	assert.NotNil(t, ticket.BookingID)
	assert.Equal(t, 0, ticket.Position)
	assert.Equal(t, 2, env.booked(t, slot.ID()))
	assert.Len(t, env.notifier.byEvent(EventWaitlistAdded), 1)
	assert.Len(t, env.notifier.byEvent(EventWaitlistPromoted), 1)
}

func TestWaitlist_PositionsAndLeave(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 1)
	ctx := context.Background()
	env.reserve(t, slot.ID(), 1)

	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i, u := range users {
		ticket, err := env.engine.Enqueue(ctx, slot.ID(), u, 1)
		require.NoError(t, err)
		assert.Equal(t, i+1, ticket.Position)
	}

	require.NoError(t, env.engine.LeaveWaitlist(ctx, slot.ID(), users[0]))
	assert.ErrorIs(t, env.engine.LeaveWaitlist(ctx, slot.ID(), users[0]), ErrEntryNotFound)

	_, err := env.engine.GetWaitlistTicket(ctx, slot.ID(), users[0])
	assert.ErrorIs(t, err, ErrEntryNotFound)

	ticket, err := env.engine.GetWaitlistTicket(ctx, slot.ID(), users[1])
	require.NoError(t, err)
	assert.Equal(t, 1, ticket.Position)

	expired := env.notifier.byEvent(EventWaitlistExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, users[0], expired[0].UserID)
}

func TestWaitlist_ExpireStartedSlots(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := env.slot(t, 1)
	later := env.slot(t, 1)
	ctx := context.Background()
	env.reserve(t, slot.ID(), 1)
	env.reserve(t, later.ID(), 1)
	env.reserve(t, slot.ID(), 1)
	env.reserve(t, later.ID(), 1)

	n, err := env.engine.Waitlist().ExpireStarted(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	env.clock.Advance(24*time.Hour + time.Second)
	sweeper := NewSweeper(env.engine.Waitlist(), &SweeperConfig{Interval: time.Hour, BatchSize: 10}, quietLogger())
	assert.Equal(t, 2, sweeper.RunOnce(ctx))

	pending, err := env.store.ListPendingEntries(ctx, slot.ID())
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, env.notifier.byEvent(EventWaitlistExpired), 2)
}

func TestWaitlistStatus_Transitions(t *testing.T) {
	assert.True(t, WaitlistPending.CanTransitionTo(WaitlistPromoted))
	assert.True(t, WaitlistPending.CanTransitionTo(WaitlistExpired))
	assert.False(t, WaitlistPromoted.CanTransitionTo(WaitlistExpired))
	assert.False(t, WaitlistExpired.CanTransitionTo(WaitlistPending))

	entry := newWaitlistEntry(uuid.New(), uuid.New(), 1, "", time.Now())
	require.NoError(t, entry.expire(time.Now()))
	assert.ErrorIs(t, entry.promote(uuid.New(), time.Now()), ErrInvalidTransition)
}

func TestGetSlotStatus_UsesCache(t *testing.T) {
	cache := newMapStatusCache()
	env := newTestEnv(t, testConfig(), WithStatusCache(cache))
	slot := env.slot(t, 4)
	ctx := context.Background()

	status, err := env.engine.GetSlotStatus(ctx, slot.ID())
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, status.Status)
	_, hit := cache.Get(ctx, slot.ID())
	assert.True(t, hit)

	env.reserve(t, slot.ID(), 1)
	_, hit = cache.Get(ctx, slot.ID())
	assert.False(t, hit, "reserve must evict the cached status")

	status, err = env.engine.GetSlotStatus(ctx, slot.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, status.Booked)
	assert.Equal(t, SlotAvailable, status.Status)

	env.reserve(t, slot.ID(), 3)
	status, err = env.engine.GetSlotStatus(ctx, slot.ID())
	require.NoError(t, err)
	assert.Equal(t, 0, status.Available)
	assert.Equal(t, SlotFull, status.Status)
	cached, hit := cache.Get(ctx, slot.ID())
	require.True(t, hit)
	assert.Equal(t, SlotFull, cached.Status)
}

// racingStore runs hook between the slot read and the waitlist read of
// GetSlotStatus, the window where a concurrent commit makes the read stale.
type racingStore struct {
	*MemoryStore
	once sync.Once
	hook func()
}

func (s *racingStore) ListPendingEntries(ctx context.Context, slotID uuid.UUID) ([]WaitlistEntry, error) {
	s.once.Do(s.hook)
	return s.MemoryStore.ListPendingEntries(ctx, slotID)
}

func TestGetSlotStatus_StaleReadIsNotCached(t *testing.T) {
	cache := newMapStatusCache()
	clock := newTestClock()
	store := &racingStore{MemoryStore: NewMemoryStore()}
	engine := NewEngine(store, testConfig(), WithStatusCache(cache), WithClock(clock.Now), WithLogger(quietLogger()))
	ctx := context.Background()

	starts := clock.Now().Add(24 * time.Hour)
	slot, err := engine.CreateSlot(ctx, NewSlotInput{
		ParentID: uuid.New(), ParentType: ParentEvent,
		StartsAt: starts, EndsAt: starts.Add(time.Hour), Capacity: 2,
	})
	require.NoError(t, err)

	store.hook = func() {
		_, err := engine.Reserve(ctx, ReserveRequest{UserID: uuid.New(), SlotID: slot.ID(), Quantity: 2})
		require.NoError(t, err)
	}

	stale, err := engine.GetSlotStatus(ctx, slot.ID())
	require.NoError(t, err)
	assert.Equal(t, 0, stale.Booked, "slot was read before the concurrent reserve")

	_, hit := cache.Get(ctx, slot.ID())
	assert.False(t, hit, "a snapshot older than the last invalidation must not be cached")

	fresh, err := engine.GetSlotStatus(ctx, slot.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Booked)
	assert.Equal(t, SlotFull, fresh.Status)
	_, hit = cache.Get(ctx, slot.ID())
	assert.True(t, hit)
}

type mapStatusCache struct {
	mu  sync.Mutex
	m   map[uuid.UUID]SlotStatus
	gen map[uuid.UUID]int64
}

func newMapStatusCache() *mapStatusCache {
	return &mapStatusCache{m: make(map[uuid.UUID]SlotStatus), gen: make(map[uuid.UUID]int64)}
}

func (c *mapStatusCache) Get(_ context.Context, id uuid.UUID) (*SlotStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.m[id]
	return &st, ok
}

func (c *mapStatusCache) Generation(_ context.Context, id uuid.UUID) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[id], true
}

func (c *mapStatusCache) Set(_ context.Context, st *SlotStatus, gen int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[st.SlotID] != gen {
		return
	}
	c.m[st.SlotID] = *st
}

func (c *mapStatusCache) Invalidate(_ context.Context, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[id]++
	delete(c.m, id)
}

package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"

	"slotbook/pkg/logger"
	"slotbook/pkg/metrics"
)

// Config tunes the engine.
type Config struct {
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	TxTimeout       time.Duration
	WaitlistEnabled bool
	// MaxQuantity caps a single request; zero means only slot capacity applies.
	MaxQuantity int
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     8,
		BaseBackoff:     5 * time.Millisecond,
		MaxBackoff:      200 * time.Millisecond,
		TxTimeout:       5 * time.Second,
		WaitlistEnabled: true,
		MaxQuantity:     10,
	}
}

// Engine owns the reserve and release paths and delegates queueing to the
// waitlist manager.
type Engine struct {
	store    Store
	waitlist *WaitlistManager
	notifier Notifier
	cache    StatusCache
	metrics  *metrics.Metrics
	logger   *logger.Logger
	cfg      Config
	now      func() time.Time
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }
func WithStatusCache(c StatusCache) Option { return func(e *Engine) { e.cache = c } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithLogger(l *logger.Logger) Option { return func(e *Engine) { e.logger = l } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(store Store, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}

	e := &Engine{
		store:    store,
		notifier: nopNotifier{},
		logger:   logger.GetDefault(),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.waitlist = &WaitlistManager{engine: e}
	return e
}

// Waitlist exposes the waitlist manager.
func (e *Engine) Waitlist() *WaitlistManager { return e.waitlist }

// ReserveRequest asks for quantity units of a slot.
type ReserveRequest struct {
	UserID   uuid.UUID
	SlotID   uuid.UUID
	Quantity int
	// Seats optionally names exact seats; its length must equal Quantity.
	Seats []string
	// IdempotencyKey makes retries of the same request return the first booking.
	IdempotencyKey string
}

type ReserveStatus string

const (
	ReserveConfirmed  ReserveStatus = "CONFIRMED"
	ReserveWaitlisted ReserveStatus = "WAITLISTED"
)

// ReserveResult carries either a booking or a waitlist ticket.
type ReserveResult struct {
	Status  ReserveStatus   `json:"status"`
	Booking *Booking        `json:"booking,omitempty"`
	Ticket  *WaitlistTicket `json:"ticket,omitempty"`
}

// Promotion records a waitlist entry turned into a booking.
type Promotion struct {
	EntryID   uuid.UUID `json:"entry_id"`
	UserID    uuid.UUID `json:"user_id"`
	BookingID uuid.UUID `json:"booking_id"`
	Quantity  int       `json:"quantity"`
}

type ReleaseResult struct {
	FreedQuantity int         `json:"freed_quantity"`
	Promotions    []Promotion `json:"promotions,omitempty"`
}

// event is a notification queued during a unit of work and sent after commit.
type event struct {
	name    string
	userID  uuid.UUID
	slotID  uuid.UUID
	payload map[string]interface{}
}

func (e *Engine) emit(ctx context.Context, events []event) {
	for _, ev := range events {
		e.notifier.Notify(ctx, ev.name, ev.userID, ev.slotID, ev.payload)
	}
}

func (e *Engine) invalidate(ctx context.Context, slotID uuid.UUID) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, slotID)
	}
}

func (e *Engine) validateQuantity(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if e.cfg.MaxQuantity > 0 && quantity > e.cfg.MaxQuantity {
		return wrapf(ErrInvalidQuantity, "at most %d per request", e.cfg.MaxQuantity)
	}
	return nil
}

// Reserve confirms the request if the slot has room, otherwise queues it.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	if err := e.validateQuantity(req.Quantity); err != nil {
		e.metrics.ObserveReservation("invalid")
		return nil, err
	}
	if len(req.Seats) > 0 && len(req.Seats) != req.Quantity {
		e.metrics.ObserveReservation("invalid")
		return nil, ErrSeatMismatch
	}

	var (
		result *ReserveResult
		events []event
		fresh  bool
	)
	err := e.withRetry(ctx, "reserve", req.SlotID, func(ctx context.Context) error {
		result, events, fresh = nil, nil, false
		return e.store.InSlotTx(ctx, req.SlotID, func(tx SlotTx) error {
			slot := tx.Slot()

			if req.IdempotencyKey != "" {
				existing, err := tx.FindBookingByKey(req.UserID, req.IdempotencyKey)
				if err != nil {
					return err
				}
				if existing != nil {
					if existing.Status == BookingCancelled {
						return ErrKeyCancelled
					}
					result = &ReserveResult{Status: ReserveConfirmed, Booking: existing}
					return nil
				}
				queued, err := tx.FindPendingEntry(req.UserID)
				if err != nil {
					return err
				}
				if queued != nil && queued.IdempotencyKey == req.IdempotencyKey {
					pending, err := tx.PendingEntries()
					if err != nil {
						return err
					}
					result = &ReserveResult{Status: ReserveWaitlisted, Ticket: ticketFor(queued, pending)}
					return nil
				}
			}

			if req.Quantity > slot.Capacity() {
				return wrapf(ErrInvalidQuantity, "slot capacity is %d", slot.Capacity())
			}

			if len(req.Seats) > 0 {
				if !slot.SeatLevel() {
					return wrapf(ErrSeatMismatch, "slot has no seat map")
				}
				ledger, err := tx.Seats()
				if err != nil {
					return err
				}
				if err := checkSeats(ledger, req.Seats, req.Quantity); err != nil {
					return err
				}
			}

			if !slot.Fits(req.Quantity) {
				if !e.cfg.WaitlistEnabled {
					return ErrCapacityExceeded
				}
				ticket, created, err := e.waitlist.enqueueInTx(tx, slot, req.UserID, req.Quantity, req.IdempotencyKey)
				if err != nil {
					return err
				}
				result = &ReserveResult{Status: ReserveWaitlisted, Ticket: ticket}
				if created {
					events = append(events, addedEvent(ticket))
				}
				return nil
			}

			booking, err := e.commit(tx, slot, req.UserID, req.Quantity, req.Seats, req.IdempotencyKey)
			if err != nil {
				return err
			}
			result = &ReserveResult{Status: ReserveConfirmed, Booking: booking}
			fresh = true
			return nil
		})
	})
	if err != nil {
		e.metrics.ObserveReservation(outcomeOf(err))
		return nil, err
	}

	switch result.Status {
	case ReserveConfirmed:
		e.metrics.ObserveReservation("confirmed")
		if fresh {
			e.logger.LogBookingCreated(ctx, result.Booking.ID.String(), req.SlotID.String(), req.UserID.String(), req.Quantity)
			e.invalidate(ctx, req.SlotID)
		}
	case ReserveWaitlisted:
		e.metrics.ObserveReservation("waitlisted")
		if len(events) > 0 {
			e.logger.LogWaitlistJoined(ctx, result.Ticket.EntryID.String(), req.SlotID.String(), req.UserID.String(), result.Ticket.Position)
			e.invalidate(ctx, req.SlotID)
		}
	}
	e.emit(ctx, events)
	return result, nil
}

// commit claims capacity and seats and records the booking. It is the only
// path that creates bookings, used by direct reserves and by promotion.
func (e *Engine) commit(tx SlotTx, slot *Slot, userID uuid.UUID, quantity int, seats []string, key string) (*Booking, error) {
	if slot.SeatLevel() && len(seats) == 0 {
		ledger, err := tx.Seats()
		if err != nil {
			return nil, err
		}
		if seats, err = pickSeats(ledger, quantity); err != nil {
			return nil, err
		}
	}
	if err := slot.commitReserve(quantity); err != nil {
		return nil, err
	}

	booking := newBooking(slot.ID(), userID, quantity, seats, key, e.now())
	if len(seats) > 0 {
		if err := tx.MarkSeats(seats, SeatBooked, &booking.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.SaveSlot(slot); err != nil {
		return nil, err
	}
	if err := tx.CreateBooking(booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// Release cancels a booking, returns its units and promotes waiters in the
// same unit of work. Releasing an already cancelled booking frees nothing.
func (e *Engine) Release(ctx context.Context, bookingID uuid.UUID) (*ReleaseResult, error) {
	booking, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == BookingCancelled {
		return &ReleaseResult{}, nil
	}

	var (
		result *ReleaseResult
		events []event
	)
	err = e.withRetry(ctx, "release", booking.SlotID, func(ctx context.Context) error {
		result, events = &ReleaseResult{}, nil
		return e.store.InSlotTx(ctx, booking.SlotID, func(tx SlotTx) error {
			b, err := tx.GetBooking(bookingID)
			if err != nil {
				return err
			}
			if !b.cancel(e.now()) {
				return nil
			}
			if err := tx.SaveBooking(b); err != nil {
				return err
			}

			slot := tx.Slot()
			result.FreedQuantity = slot.releaseReserve(b.Quantity)
			if len(b.Seats) > 0 {
				if err := tx.MarkSeats(b.Seats, SeatAvailable, nil); err != nil {
					return err
				}
			}
			if err := tx.SaveSlot(slot); err != nil {
				return err
			}

			promos, err := e.waitlist.promoteInTx(tx, slot)
			if err != nil {
				return err
			}
			result.Promotions = promos
			for _, p := range promos {
				events = append(events, promotedEvent(slot.ID(), p))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if result.FreedQuantity > 0 {
		e.logger.LogBookingCancelled(ctx, bookingID.String(), booking.SlotID.String(), result.FreedQuantity)
		e.invalidate(ctx, booking.SlotID)
	}
	e.afterPromotions(ctx, booking.SlotID, result.Promotions)
	e.emit(ctx, events)
	return result, nil
}

// CancelBooking releases a booking on behalf of a user. Admins may cancel any booking.
func (e *Engine) CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, admin bool) (*ReleaseResult, error) {
	booking, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !admin && booking.UserID != userID {
		return nil, ErrForbidden
	}
	return e.Release(ctx, bookingID)
}

func (e *Engine) afterPromotions(ctx context.Context, slotID uuid.UUID, promos []Promotion) {
	for _, p := range promos {
		e.logger.LogWaitlistPromoted(ctx, p.EntryID.String(), p.BookingID.String(), slotID.String())
	}
	e.metrics.ObservePromotions(len(promos))
}

// GetSlotStatus reports capacity, bookings and queue length for a slot.
func (e *Engine) GetSlotStatus(ctx context.Context, slotID uuid.UUID) (*SlotStatus, error) {
	var (
		gen       int64
		cacheable bool
	)
	if e.cache != nil {
		if st, ok := e.cache.Get(ctx, slotID); ok {
			return st, nil
		}
		gen, cacheable = e.cache.Generation(ctx, slotID)
	}
	slot, err := e.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	pending, err := e.store.ListPendingEntries(ctx, slotID)
	if err != nil {
		return nil, err
	}
	st := statusOf(slot, len(pending))
	if cacheable {
		e.cache.Set(ctx, st, gen)
	}
	return st, nil
}

// CreateSlot validates and stores a slot, with its seat ledger if seats are given.
func (e *Engine) CreateSlot(ctx context.Context, in NewSlotInput) (*Slot, error) {
	slot, err := NewSlot(in, e.now())
	if err != nil {
		return nil, err
	}
	var seats []Seat
	if slot.SeatLevel() {
		seats = newSeatLedger(slot.ID(), in.Seats)
	}
	if err := e.store.CreateSlot(ctx, slot, seats); err != nil {
		return nil, err
	}
	return slot, nil
}

func (e *Engine) GetSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	return e.store.GetSlot(ctx, slotID)
}

func (e *Engine) ListSeats(ctx context.Context, slotID uuid.UUID) ([]Seat, error) {
	if _, err := e.store.GetSlot(ctx, slotID); err != nil {
		return nil, err
	}
	return e.store.ListSeats(ctx, slotID)
}

func (e *Engine) GetBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	return e.store.GetBooking(ctx, bookingID)
}

func (e *Engine) ListUserBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return e.store.ListUserBookings(ctx, userID, limit, offset)
}

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func outcomeOf(err error) string {
	switch Kind(err) {
	case KindInvalid:
		return "invalid"
	case KindSeatConflict:
		return "seat_conflict"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindBusy:
		return "busy"
	case KindNotFound:
		return "not_found"
	default:
		return "error"
	}
}

func addedEvent(t *WaitlistTicket) event {
	return event{
		name:   EventWaitlistAdded,
		userID: t.UserID,
		slotID: t.SlotID,
		payload: map[string]interface{}{
			"entry_id": t.EntryID.String(),
			"quantity": t.Quantity,
			"position": t.Position,
		},
	}
}

func promotedEvent(slotID uuid.UUID, p Promotion) event {
	return event{
		name:   EventWaitlistPromoted,
		userID: p.UserID,
		slotID: slotID,
		payload: map[string]interface{}{
			"entry_id":   p.EntryID.String(),
			"booking_id": p.BookingID.String(),
			"quantity":   p.Quantity,
		},
	}
}

func expiredEvent(entry *WaitlistEntry, reason string) event {
	return event{
		name:   EventWaitlistExpired,
		userID: entry.UserID,
		slotID: entry.SlotID,
		payload: map[string]interface{}{
			"entry_id": entry.ID.String(),
			"reason":   reason,
		},
	}
}

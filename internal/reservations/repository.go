package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the PostgreSQL store. A unit of work locks the slot row with
// SELECT ... FOR UPDATE; seats, bookings and waitlist rows of that slot are
// only written while that lock is held. The version column is checked on
// every slot write as a second guard.
type GormStore struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewGormStore(db *gorm.DB, lockTimeout time.Duration) *GormStore {
	return &GormStore{db: db, lockTimeout: lockTimeout}
}

func (s *GormStore) InSlotTx(ctx context.Context, slotID uuid.UUID, fn func(tx SlotTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}

		var rec slotRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", slotID).
			First(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSlotNotFound
			}
			return err
		}

		return fn(&gormTx{tx: tx, slot: rec.toDomain()})
	})
	return classify(err)
}

func (s *GormStore) CreateSlot(ctx context.Context, slot *Slot, seats []Seat) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(slotToRecord(slot)).Error; err != nil {
			return err
		}
		if len(seats) == 0 {
			return nil
		}
		records := make([]seatRecord, len(seats))
		for i, seat := range seats {
			records[i] = seatRecord{
				SlotID:   seat.SlotID,
				Label:    seat.Label,
				Position: seat.Position,
				Status:   seat.Status,
			}
		}
		return tx.CreateInBatches(records, 500).Error
	})
	return classify(err)
}

func (s *GormStore) GetSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	var rec slotRecord
	err := s.db.WithContext(ctx).Where("id = ?", slotID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, classify(err)
	}
	return rec.toDomain(), nil
}

func (s *GormStore) ListSeats(ctx context.Context, slotID uuid.UUID) ([]Seat, error) {
	var recs []seatRecord
	err := s.db.WithContext(ctx).
		Where("slot_id = ?", slotID).
		Order("position ASC").
		Find(&recs).Error
	if err != nil {
		return nil, classify(err)
	}
	seats := make([]Seat, len(recs))
	for i := range recs {
		seats[i] = recs[i].toDomain()
	}
	return seats, nil
}

func (s *GormStore) GetBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	var rec bookingRecord
	err := s.db.WithContext(ctx).Where("id = ?", bookingID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, classify(err)
	}
	return rec.toDomain(), nil
}

func (s *GormStore) ListUserBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Booking, error) {
	var recs []bookingRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, classify(err)
	}
	out := make([]Booking, len(recs))
	for i := range recs {
		out[i] = *recs[i].toDomain()
	}
	return out, nil
}

func (s *GormStore) ListPendingEntries(ctx context.Context, slotID uuid.UUID) ([]WaitlistEntry, error) {
	return pendingEntries(s.db.WithContext(ctx), slotID)
}

func (s *GormStore) ListStartedSlotsWithPending(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&slotRecord{}).
		Where("starts_at <= ?", before).
		Where("EXISTS (SELECT 1 FROM waitlist_entries w WHERE w.slot_id = slots.id AND w.status = ?)", WaitlistPending).
		Order("starts_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func pendingEntries(db *gorm.DB, slotID uuid.UUID) ([]WaitlistEntry, error) {
	var recs []waitlistRecord
	err := db.Where("slot_id = ? AND status = ?", slotID, WaitlistPending).
		Order("arrived_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, classify(err)
	}
	out := make([]WaitlistEntry, len(recs))
	for i := range recs {
		out[i] = recs[i].toDomain()
	}
	return out, nil
}

type gormTx struct {
	tx   *gorm.DB
	slot *Slot
}

func (t *gormTx) Slot() *Slot { return t.slot }

func (t *gormTx) SaveSlot(slot *Slot) error {
	res := t.tx.Model(&slotRecord{}).
		Where("id = ? AND version = ?", slot.id, slot.version).
		Updates(map[string]interface{}{
			"booked":     slot.booked,
			"version":    slot.version + 1,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	slot.version++
	return nil
}

func (t *gormTx) Seats() ([]Seat, error) {
	var recs []seatRecord
	if err := t.tx.Where("slot_id = ?", t.slot.id).Order("position ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	seats := make([]Seat, len(recs))
	for i := range recs {
		seats[i] = recs[i].toDomain()
	}
	return seats, nil
}

func (t *gormTx) MarkSeats(labels []string, status SeatStatus, bookingID *uuid.UUID) error {
	res := t.tx.Model(&seatRecord{}).
		Where("slot_id = ? AND label IN ?", t.slot.id, labels).
		Updates(map[string]interface{}{
			"status":     status,
			"booking_id": bookingID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(labels)) {
		return ErrUnknownSeat
	}
	return nil
}

func (t *gormTx) CreateBooking(b *Booking) error {
	return t.tx.Create(bookingToRecord(b)).Error
}

func (t *gormTx) GetBooking(bookingID uuid.UUID) (*Booking, error) {
	var rec bookingRecord
	err := t.tx.Where("id = ? AND slot_id = ?", bookingID, t.slot.id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return rec.toDomain(), nil
}

func (t *gormTx) FindBookingByKey(userID uuid.UUID, key string) (*Booking, error) {
	var rec bookingRecord
	err := t.tx.Where("slot_id = ? AND user_id = ? AND idempotency_key = ?", t.slot.id, userID, key).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec.toDomain(), nil
}

func (t *gormTx) SaveBooking(b *Booking) error {
	res := t.tx.Model(&bookingRecord{}).
		Where("id = ?", b.ID).
		Updates(map[string]interface{}{
			"status":       b.Status,
			"cancelled_at": b.CancelledAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (t *gormTx) PendingEntries() ([]WaitlistEntry, error) {
	return pendingEntries(t.tx, t.slot.id)
}

func (t *gormTx) FindPendingEntry(userID uuid.UUID) (*WaitlistEntry, error) {
	var rec waitlistRecord
	err := t.tx.Where("slot_id = ? AND user_id = ? AND status = ?", t.slot.id, userID, WaitlistPending).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	entry := rec.toDomain()
	return &entry, nil
}

func (t *gormTx) CreateEntry(e *WaitlistEntry) error {
	return t.tx.Create(entryToRecord(e)).Error
}

func (t *gormTx) SaveEntry(e *WaitlistEntry) error {
	res := t.tx.Model(&waitlistRecord{}).
		Where("id = ?", e.ID).
		Updates(map[string]interface{}{
			"status":      e.Status,
			"resolved_at": e.ResolvedAt,
			"booking_id":  e.BookingID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Postgres error codes treated as retryable.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
)

// classify maps driver errors onto the package's error kinds. Domain errors
// and context errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var domain *Error
	if errors.As(err, &domain) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
		return fmt.Errorf("reservation store: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

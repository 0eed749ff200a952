package reservations

import "github.com/google/uuid"

type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatBooked    SeatStatus = "BOOKED"
)

func (s SeatStatus) IsValid() bool {
	return s == SeatAvailable || s == SeatBooked
}

// Seat is one entry in a slot's seat ledger.
type Seat struct {
	SlotID    uuid.UUID  `json:"slot_id"`
	Label     string     `json:"label"`
	Position  int        `json:"position"`
	Status    SeatStatus `json:"status"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
}

func newSeatLedger(slotID uuid.UUID, labels []string) []Seat {
	seats := make([]Seat, len(labels))
	for i, label := range labels {
		seats[i] = Seat{SlotID: slotID, Label: label, Position: i, Status: SeatAvailable}
	}
	return seats
}

// checkSeats validates explicit seat labels against the ledger.
// Unknown labels and duplicates are invalid input; booked labels are a conflict.
func checkSeats(ledger []Seat, labels []string, quantity int) error {
	if len(labels) != quantity {
		return ErrSeatMismatch
	}
	byLabel := make(map[string]Seat, len(ledger))
	for _, seat := range ledger {
		byLabel[seat.Label] = seat
	}
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if _, dup := seen[label]; dup {
			return ErrSeatMismatch
		}
		seen[label] = struct{}{}
		seat, ok := byLabel[label]
		if !ok {
			return wrapf(ErrUnknownSeat, "%s", label)
		}
		if seat.Status != SeatAvailable {
			return wrapf(ErrSeatConflict, "%s", label)
		}
	}
	return nil
}

// pickSeats takes the first quantity available seats in ledger order.
func pickSeats(ledger []Seat, quantity int) ([]string, error) {
	labels := make([]string, 0, quantity)
	for _, seat := range ledger {
		if len(labels) == quantity {
			break
		}
		if seat.Status == SeatAvailable {
			labels = append(labels, seat.Label)
		}
	}
	if len(labels) < quantity {
		return nil, ErrCapacityExceeded
	}
	return labels, nil
}

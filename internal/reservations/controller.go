package reservations

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"slotbook/internal/shared/middleware"
	"slotbook/internal/shared/utils/response"
	"slotbook/pkg/logger"
)

// Service is what the HTTP layer needs from the engine.
type Service interface {
	Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error)
	CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, admin bool) (*ReleaseResult, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error)
	ListUserBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Booking, error)
	CreateSlot(ctx context.Context, in NewSlotInput) (*Slot, error)
	GetSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error)
	GetSlotStatus(ctx context.Context, slotID uuid.UUID) (*SlotStatus, error)
	ListSeats(ctx context.Context, slotID uuid.UUID) ([]Seat, error)
	Enqueue(ctx context.Context, slotID, userID uuid.UUID, quantity int) (*WaitlistTicket, error)
	LeaveWaitlist(ctx context.Context, slotID, userID uuid.UUID) error
	GetWaitlistTicket(ctx context.Context, slotID, userID uuid.UUID) (*WaitlistTicket, error)
}

type Controller struct {
	service Service
	logger  *logger.Logger
}

func NewController(service Service, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Controller{service: service, logger: log}
}

// Reserve handles POST /slots/:id/reservations
func (c *Controller) Reserve(ctx *gin.Context) {
	userID, ok := c.requireUser(ctx)
	if !ok {
		return
	}
	slotID, ok := parseID(ctx, "id", "Invalid slot ID")
	if !ok {
		return
	}

	var body ReserveRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	result, err := c.service.Reserve(ctx.Request.Context(), ReserveRequest{
		UserID:         userID,
		SlotID:         slotID,
		Quantity:       body.Quantity,
		Seats:          body.Seats,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		c.fail(ctx, "Reservation failed", err)
		return
	}

	if result.Status == ReserveWaitlisted {
		response.RespondJSON(ctx, "success", http.StatusAccepted, "Slot is full, added to waitlist", result, nil)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusCreated, "Reservation confirmed", result, nil)
}

// CancelBooking handles POST /bookings/:id/cancel
func (c *Controller) CancelBooking(ctx *gin.Context) {
	userID, ok := c.requireUser(ctx)
	if !ok {
		return
	}
	bookingID, ok := parseID(ctx, "id", "Invalid booking ID")
	if !ok {
		return
	}

	result, err := c.service.CancelBooking(ctx.Request.Context(), bookingID, userID, middleware.IsAdmin(ctx))
	if err != nil {
		c.fail(ctx, "Failed to cancel booking", err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Booking cancelled", result, nil)
}

// GetBooking handles GET /bookings/:id
func (c *Controller) GetBooking(ctx *gin.Context) {
	userID, ok := c.requireUser(ctx)
	if !ok {
		return
	}
	bookingID, ok := parseID(ctx, "id", "Invalid booking ID")
	if !ok {
		return
	}

	booking, err := c.service.GetBooking(ctx.Request.Context(), bookingID)
	if err != nil {
		c.fail(ctx, "Failed to get booking", err)
		return
	}
	if booking.UserID != userID && !middleware.IsAdmin(ctx) {
		// Other users' bookings are reported as missing.
		c.fail(ctx, "Failed to get booking", ErrBookingNotFound)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Booking retrieved", booking, nil)
}

// GetUserBookings handles GET /users/bookings
func (c *Controller) GetUserBookings(ctx *gin.Context) {
	userID, ok := c.requireUser(ctx)
	if !ok {
		return
	}
	var q PaginationQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid pagination", nil, err.Error())
		return
	}
	if q.Limit == 0 {
		q.Limit = 20
	}

	bookings, err := c.service.ListUserBookings(ctx.Request.Context(), userID, q.Limit, q.Offset)
	if err != nil {
		c.fail(ctx, "Failed to list bookings", err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Bookings retrieved",
		BookingListResponse{Bookings: bookings, Limit: q.Limit, Offset: q.Offset}, nil)
}

// CreateSlot handles POST /slots
func (c *Controller) CreateSlot(ctx *gin.Context) {
	var body CreateSlotRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}
	slot, err := c.service.CreateSlot(ctx.Request.Context(), NewSlotInput{
		ParentID:   uuid.MustParse(body.ParentID),
		ParentType: ParentType(body.ParentType),
		StartsAt:   body.StartsAt,
		EndsAt:     body.EndsAt,
		Capacity:   body.Capacity,
		Seats:      body.Seats,
	})
	if err != nil {
		c.fail(ctx, "Failed to create slot", err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusCreated, "Slot created", ToSlotResponse(slot), nil)
}

// GetSlot handles GET /slots/:id
func (c *Controller) GetSlot(ctx *gin.Context) {
	slotID, ok := parseID(ctx, "id", "Invalid slot ID")
	if !ok {
		return
	}
	slot, err := c.service.GetSlot(ctx.Request.Context(), slotID)
	if err != nil {
		c.fail(ctx, "Failed to get slot", err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Slot retrieved", ToSlotResponse(slot), nil)
}

// GetSlotStatus handles GET /slots/:id/status
func (c *Controller) GetSlotStatus(ctx *gin.Context) {
	slotID, ok := parseID(ctx, "id", "Invalid slot ID")
	if !ok {
		return
	}
	status, err := c.service.GetSlotStatus(ctx.Request.Context(), slotID)
	if err != nil {
		c.fail(ctx, "Failed to get slot status", err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Slot status retrieved", status, nil)
}

// GetSeatMap handles GET /slots/:id/seats
func (c *Controller) GetSeatMap(ctx *gin.Context) {
	slotID, ok := parseID(ctx, "id", "Invalid slot ID")
	if !ok {
		return
	}
	seats, err := c.service.ListSeats(ctx.Request.Context(), slotID)
	if err != nil {
		c.fail(ctx, "Failed to get seats", err)
		return
	}
	available := 0
	for _, s := range seats {
		if s.Status == SeatAvailable {
			available++
		}
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Seat map retrieved",
		SeatMapResponse{SlotID: slotID, Available: available, Seats: seats}, nil)
}

// JoinWaitlist handles POST /slots/:id/waitlist
func (c *Controller) JoinWaitlist(ctx *gin.Context) {
	userID, ok := c.requireUser(ctx)
	if !ok {
		return
	}
	slotID, ok := parseID(ctx, "id", "Invalid slot ID")
	if !ok {
		return
	}
	var body JoinWaitlistRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	ticket, err := c.service.Enqueue(ctx.Request.Context(), slotID, userID, body.Quantity)
	if err != nil {
		c.fail(ctx, "Failed to join waitlist", err)
		return
	}
	if ticket.Status == WaitlistPromoted {
		response.RespondJSON(ctx, "success", http.StatusCreated, "Capacity was available, booking confirmed", ticket, nil)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusAccepted, "Joined waitlist", ticket, nil)
}

// LeaveWaitlist handles DELETE /slots/:id/waitlist
func (c *Controller) LeaveWaitlist(ctx *gin.Context) {
	userID, ok := c.requireUser(ctx)
	if !ok {
		return
	}
	slotID, ok := parseID(ctx, "id", "Invalid slot ID")
	if !ok {
		return
	}
	if err := c.service.LeaveWaitlist(ctx.Request.Context(), slotID, userID); err != nil {
		c.fail(ctx, "Failed to leave waitlist", err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Left waitlist", nil, nil)
}

// GetWaitlistTicket handles GET /slots/:id/waitlist/me
func (c *Controller) GetWaitlistTicket(ctx *gin.Context) {
	userID, ok := c.requireUser(ctx)
	if !ok {
		return
	}
	slotID, ok := parseID(ctx, "id", "Invalid slot ID")
	if !ok {
		return
	}
	ticket, err := c.service.GetWaitlistTicket(ctx.Request.Context(), slotID, userID)
	if err != nil {
		c.fail(ctx, "Failed to get waitlist position", err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist position retrieved", ticket, nil)
}

func (c *Controller) requireUser(ctx *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return uuid.Nil, false
	}
	return userID, true
}

func parseID(ctx *gin.Context, param, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param(param))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, message, nil, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (c *Controller) fail(ctx *gin.Context, message string, err error) {
	status := HTTPStatus(err)
	if status == http.StatusServiceUnavailable {
		ctx.Header("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		c.logger.LogHTTPError(ctx, err, status)
	}
	detail := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, ErrUnavailable) {
		detail = "internal error"
	}
	response.RespondError(ctx, status, Kind(err).String(), message, detail)
}

package reservations

import (
	"regexp"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type ReserveRequestBody struct {
	Quantity       int      `json:"quantity" binding:"required,min=1"`
	Seats          []string `json:"seats" binding:"omitempty,dive,seatlabel"`
	IdempotencyKey string   `json:"idempotency_key" binding:"omitempty,max=100"`
}

type JoinWaitlistRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type CreateSlotRequest struct {
	ParentID   string    `json:"parent_id" binding:"required,uuid"`
	ParentType string    `json:"parent_type" binding:"required,oneof=EVENT MOVIE"`
	StartsAt   time.Time `json:"starts_at" binding:"required"`
	EndsAt     time.Time `json:"ends_at" binding:"required,gtfield=StartsAt"`
	Capacity   int       `json:"capacity" binding:"omitempty,min=1"`
	Seats      []string  `json:"seats" binding:"omitempty,dive,seatlabel"`
}

type PaginationQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

var (
	seatLabelPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,20}$`)
	registerOnce     sync.Once
)

// RegisterValidators adds the seatlabel rule to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("seatlabel", func(fl validator.FieldLevel) bool {
				return seatLabelPattern.MatchString(fl.Field().String())
			})
		}
	})
}

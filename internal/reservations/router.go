package reservations

import (
	"github.com/gin-gonic/gin"

	"slotbook/internal/shared/middleware"
)

// SetupRoutes mounts reservation routes on rg. auth must authenticate the
// caller and set the user id and role on the context.
func SetupRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	RegisterValidators()

	slots := rg.Group("/slots")
	{
		slots.GET("/:id", controller.GetSlot)
		slots.GET("/:id/status", controller.GetSlotStatus)
		slots.GET("/:id/seats", controller.GetSeatMap)
	}

	authed := rg.Group("")
	authed.Use(auth, middleware.RequireRoles(middleware.RoleUser, middleware.RoleOrganizer, middleware.RoleAdmin))
	{
		authed.POST("/slots/:id/reservations", controller.Reserve)
		authed.POST("/slots/:id/waitlist", controller.JoinWaitlist)
		authed.DELETE("/slots/:id/waitlist", controller.LeaveWaitlist)
		authed.GET("/slots/:id/waitlist/me", controller.GetWaitlistTicket)

		authed.GET("/bookings/:id", controller.GetBooking)
		authed.POST("/bookings/:id/cancel", controller.CancelBooking)
		authed.GET("/users/bookings", controller.GetUserBookings)
	}

	organizers := rg.Group("/slots")
	organizers.Use(auth, middleware.RequireRoles(middleware.RoleOrganizer, middleware.RoleAdmin))
	{
		organizers.POST("", controller.CreateSlot)
	}
}

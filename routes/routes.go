package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"findmycoach/handlers"
	"findmycoach/middleware"
)

// HandlerBundle gathers the handlers the router wires up.
type HandlerBundle struct {
	Booking *handlers.BookingHandler
	Webhook *handlers.WebhookHandler
	Connect *handlers.ConnectHandler
}

// RegisterRoutes registers all endpoints.
func RegisterRoutes(r *gin.Engine, hb *HandlerBundle) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider notifications authenticate via signature, not session.
	r.POST("/api/webhooks/stripe", hb.Webhook.HandleStripeEvent)

	api := r.Group("/api")
	api.Use(middleware.JWTAuthMiddleware())
	{
		bookings := api.Group("/bookings")
		{
			bookings.POST("", middleware.RequireRole("PLAYER"), hb.Booking.CreateBooking)
			bookings.GET("", hb.Booking.ListBookings)
			bookings.GET("/:id", hb.Booking.GetBooking)
			bookings.GET("/:id/audit", hb.Booking.GetBookingAudit)
			bookings.POST("/:id/capture", middleware.RequireRole("COACH"), hb.Booking.CaptureBooking)
			bookings.POST("/:id/cancel", hb.Booking.CancelBooking)
		}

		api.POST("/stripe/connect", middleware.RequireRole("COACH"), hb.Connect.StartOnboarding)
	}
}

package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/planora/booking-service/config/db"
	redisclient "github.com/planora/booking-service/config/redis"
	"github.com/planora/booking-service/controllers/booking_controller"
	"github.com/planora/booking-service/logger"
	middleware "github.com/planora/booking-service/middlewares"
	"github.com/planora/booking-service/middlewares/auth"
)

func RegisterBookingRoutes(router *gin.Engine) {
	rdb, err := redisclient.GetRedisClient(context.Background())
	if err != nil {
		logger.WarnLogger.Warnf("Redis unavailable, OTP throttle disabled: %v", err)
		rdb = nil
	}

	bookingController := booking_controller.NewBookingController(db.DB, rdb)

	bookings := router.Group("/bookings")
	bookings.Use(auth.AuthMiddleware())
	{
		bookings.POST("", bookingController.CreateBooking)
		bookings.GET("", bookingController.ListBookings)
		bookings.GET("/:id", bookingController.GetBooking)

		bookings.PATCH("/:id/assign-vendor",
			auth.RequireRoles(auth.RoleAdmin),
			bookingController.AssignVendor)

		bookings.PATCH("/:id/start",
			auth.RequireRoles(auth.RoleVendor, auth.RoleAdmin),
			bookingController.StartService)

		bookings.PATCH("/:id/complete",
			auth.RequireRoles(auth.RoleVendor, auth.RoleAdmin),
			bookingController.MarkComplete)

		bookings.POST("/:id/reissue-otp",
			auth.RequireRoles(auth.RoleVendor, auth.RoleAdmin),
			middleware.NewRateLimiter("5-10m", "otp_reissue"),
			bookingController.ReissueCompletionOTP)

		bookings.PATCH("/:id/cancel", bookingController.CancelBooking)

		bookings.POST("/:id/verify-otp",
			middleware.NewRateLimiter("10-10m", "otp_verify"),
			bookingController.VerifyCompletionOTP)
	}
}

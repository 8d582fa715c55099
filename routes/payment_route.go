package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/planora/booking-service/clients"
	"github.com/planora/booking-service/config/db"
	"github.com/planora/booking-service/controllers/payment_controller"
	middleware "github.com/planora/booking-service/middlewares"
	"github.com/planora/booking-service/middlewares/auth"
	"github.com/planora/booking-service/reconciler"
)

func RegisterPaymentRoutes(router *gin.Engine, gateway clients.GatewayClient) {
	engine := reconciler.New(reconciler.NewPGLedger(db.DB), gateway)
	paymentController := payment_controller.NewPaymentController(db.DB, gateway, engine)

	// Webhook is signature-authenticated, not JWT-authenticated, and is
	// excluded from rate limiting so gateway retries are never dropped.
	router.POST("/payments/webhook", paymentController.PaymentWebhook)

	payments := router.Group("/payments")
	payments.Use(auth.AuthMiddleware())
	{
		payments.POST("/order",
			middleware.NewRateLimiter("20-10m", "order_create"),
			paymentController.CreateOrder)

		payments.POST("/confirm", paymentController.ConfirmPayment)

		payments.POST("/:paymentId/refund",
			auth.RequireRoles(auth.RoleAdmin),
			paymentController.RefundPayment)

		payments.POST("/cash",
			auth.RequireRoles(auth.RoleAdmin),
			paymentController.RecordCashPayment)
	}

	bookings := router.Group("/bookings")
	bookings.Use(auth.AuthMiddleware())
	{
		bookings.GET("/:id/payments", paymentController.ListBookingPayments)
	}
}

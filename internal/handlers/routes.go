package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/middleware"
	"github.com/hoponpass/daypass-backend/pkg/jwt"
)

// Routes bundles the handlers mounted under /api/v1
type Routes struct {
	Bookings *BookingHandler
	Pickups  *PickupHandler
	Chat     *ChatHandler
	JWT      *jwt.Service
	Logger   *logrus.Logger
}

// Register mounts the API on router
func (r Routes) Register(router gin.IRouter) {
	v1 := router.Group("/api/v1")

	bookings := v1.Group("/bookings")
	{
		bookings.POST("", r.Bookings.CreateBooking)
		bookings.POST("/verify", r.Bookings.VerifyCredentials)
		bookings.POST("/verify-code", r.Bookings.VerifyCode)
		bookings.GET("/session", middleware.RequireSession(r.JWT, r.Logger), r.Bookings.Session)
		bookings.GET("/:id", r.Bookings.GetBooking)
	}

	v1.POST("/pickup-requests", middleware.OptionalSession(r.JWT, r.Logger), r.Pickups.CreatePickupRequest)

	chat := v1.Group("/chat/conversations")
	{
		chat.POST("", r.Chat.StartOrResume)
		chat.GET("/:id/messages", r.Chat.GetMessages)
		chat.POST("/:id/messages", r.Chat.SendMessage)
	}
}

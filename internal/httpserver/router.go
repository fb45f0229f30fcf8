package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sparekart/backend/internal/middleware/auth"
)

type Deps struct {
	OrderHandler *OrderHTTP
	JWTSecret    []byte
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	authMW := auth.New(d.JWTSecret)

	orders := e.Group("/orders", authMW.RequireAuth)
	orders.POST("", d.OrderHandler.CreateOrder)
	orders.GET("", d.OrderHandler.ListOrders)
	orders.GET("/:id", d.OrderHandler.GetOrder)
	orders.GET("/:id/tracking", d.OrderHandler.GetTracking)
	orders.POST("/:id/cancel", d.OrderHandler.CancelOrder)

	admin := e.Group("/admin/orders", authMW.RequireAdmin)
	admin.PATCH("/:id/status", d.OrderHandler.UpdateStatus)
	admin.PATCH("/:id/payment", d.OrderHandler.UpdatePaymentStatus)
}

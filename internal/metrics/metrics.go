package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders that reached CONFIRMED.",
	})
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Orders cancelled by users or admins.",
	})
	PaymentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_failures_total",
		Help: "Payment attempts that failed and triggered compensation.",
	})
	StockRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_rejections_total",
		Help: "Order attempts rejected for insufficient stock.",
	})
)

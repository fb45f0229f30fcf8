package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sparekart/backend/internal/coupon"
	"github.com/sparekart/backend/internal/inventory"
	"github.com/sparekart/backend/internal/middleware/auth"
	"github.com/sparekart/backend/internal/models"
	"github.com/sparekart/backend/internal/order"
	"github.com/sparekart/backend/internal/status"
	"github.com/sparekart/backend/internal/util"
	"github.com/sparekart/backend/pkg/logging"
)

type OrderHTTP struct {
	Svc *order.Service
}

// currentUser builds the caller identity from the verified token claims.
// Ownership checks only need the id and role, so no profile read happens
// here; order creation uses loadUser for the stored profile instead.
func (h *OrderHTTP) currentUser(c echo.Context) (*models.User, error) {
	id, ok := auth.UserID(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return &models.User{ID: id, Role: auth.Role(c)}, nil
}

// loadUser fetches the full profile; pricing depends on the customer type.
func (h *OrderHTTP) loadUser(c echo.Context) (*models.User, error) {
	id, ok := auth.UserID(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	user, err := h.Svc.Repo.GetUser(c.Request().Context(), id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return user, nil
}

func orderID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	return uint(id), nil
}

// httpError translates domain sentinels into transport status codes.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, order.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	case errors.Is(err, order.ErrPaymentFailed):
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, coupon.ErrInvalid):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, inventory.ErrProductNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	case errors.Is(err, status.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (h *OrderHTTP) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.create_order")

	user, err := h.loadUser(c)
	if err != nil {
		return err
	}

	var req order.CreateRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_order_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.IdempotencyKey = c.Request().Header.Get("Idempotency-Key")

	o, err := h.Svc.CreateOrder(ctx, req, user)
	if err != nil {
		he := httpError(err)
		l.Warn("create_order_error", "status", he.Code, "error", err)
		return he
	}

	l.Info("create_order_success", "order_number", o.OrderNumber)
	return c.JSON(http.StatusCreated, o)
}

func (h *OrderHTTP) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get_order")

	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	id, err := orderID(c)
	if err != nil {
		return err
	}

	o, err := h.Svc.GetOrder(ctx, id, user)
	if err != nil {
		he := httpError(err)
		l.Warn("get_order_error", "status", he.Code, "error", err)
		return he
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHTTP) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.list_orders")

	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Calculate(page, size)
	statusFilter := models.OrderStatus(c.QueryParam("status"))

	orders, err := h.Svc.ListOrders(ctx, user, statusFilter, limit, offset)
	if err != nil {
		he := httpError(err)
		l.Warn("list_orders_error", "status", he.Code, "error", err)
		return he
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHTTP) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.cancel_order")

	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	id, err := orderID(c)
	if err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("cancel_order_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	o, err := h.Svc.CancelOrder(ctx, id, user, req.Reason)
	if err != nil {
		he := httpError(err)
		l.Warn("cancel_order_error", "status", he.Code, "error", err)
		return he
	}

	l.Info("cancel_order_success", "order_number", o.OrderNumber)
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHTTP) GetTracking(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get_tracking")

	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	id, err := orderID(c)
	if err != nil {
		return err
	}

	tr, err := h.Svc.GetTracking(ctx, id, user)
	if err != nil {
		he := httpError(err)
		l.Warn("get_tracking_error", "status", he.Code, "error", err)
		return he
	}
	return c.JSON(http.StatusOK, tr)
}

// UpdateStatus is admin-only, guarded by the router.
func (h *OrderHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.update_status")

	id, err := orderID(c)
	if err != nil {
		return err
	}

	var req struct {
		Status models.OrderStatus `json:"status"`
		Notes  string             `json:"notes"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		l.Warn("update_status_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	o, err := h.Svc.UpdateStatus(ctx, id, req.Status, req.Notes)
	if err != nil {
		he := httpError(err)
		l.Warn("update_status_error", "status", he.Code, "error", err)
		return he
	}

	l.Info("update_status_success", "order_number", o.OrderNumber, "to", req.Status)
	return c.JSON(http.StatusOK, o)
}

// UpdatePaymentStatus is admin-only, guarded by the router.
func (h *OrderHTTP) UpdatePaymentStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.update_payment_status")

	id, err := orderID(c)
	if err != nil {
		return err
	}

	var req struct {
		PaymentStatus models.PaymentStatus `json:"payment_status"`
	}
	if err := c.Bind(&req); err != nil || req.PaymentStatus == "" {
		l.Warn("update_payment_status_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	o, err := h.Svc.UpdatePaymentStatus(ctx, id, req.PaymentStatus)
	if err != nil {
		he := httpError(err)
		l.Warn("update_payment_status_error", "status", he.Code, "error", err)
		return he
	}

	l.Info("update_payment_status_success", "order_number", o.OrderNumber, "to", req.PaymentStatus)
	return c.JSON(http.StatusOK, o)
}

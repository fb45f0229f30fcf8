package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sparekart/backend/internal/collab"
	"github.com/sparekart/backend/internal/coupon"
	"github.com/sparekart/backend/internal/inventory"
	"github.com/sparekart/backend/internal/middleware/auth"
	"github.com/sparekart/backend/internal/models"
	"github.com/sparekart/backend/internal/order"
	"github.com/sparekart/backend/internal/pricing"
)

var testSecret = []byte("test-secret")

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, uint, string, string, string, uint) {}

type memCache struct {
	m map[string]string
}

func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.m[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	return c.m[key], nil
}

func (c *memCache) GenerateKey(userID uint, idempotencyKey string) string {
	return "test:" + strconv.FormatUint(uint64(userID), 10) + ":" + idempotencyKey
}

type testEnv struct {
	DB    *gorm.DB
	E     *echo.Echo
	Svc   *order.Service
	User  models.User
	Admin models.User
	Addr  models.Address
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Address{}, &models.Product{},
		&models.Order{}, &models.OrderItem{},
		&models.Coupon{}, &models.CouponUsage{},
		&models.OrderStatusHistory{}, &models.Invoice{}, &models.LoyaltyTransaction{},
	))

	user := models.User{Email: "buyer@example.com", PasswordHash: "x", Role: "user", CustomerType: models.CustomerIndividual}
	require.NoError(t, db.Create(&user).Error)
	admin := models.User{Email: "admin@example.com", PasswordHash: "x", Role: "admin"}
	require.NoError(t, db.Create(&admin).Error)

	addr := models.Address{
		UserID: user.ID, Line1: "12 MG Road", City: "Mumbai",
		State: "Maharashtra", PostalCode: "400001", Country: "India",
	}
	require.NoError(t, db.Create(&addr).Error)

	svc := &order.Service{
		DB:        db,
		Repo:      &order.GormRepo{DB: db},
		Pricing:   &pricing.Calculator{HomeStateCode: "27"},
		Coupons:   &coupon.Validator{DB: db},
		Inventory: &inventory.Coordinator{DB: db},
		Payment:   &collab.SandboxGateway{},
		Invoicer:  &collab.GormInvoicer{DB: db},
		Loyalty:   &collab.GormLoyalty{DB: db},
		Notifier:  noopNotifier{},
		Shipping:  &collab.FlatRateShipping{Fee: decimal.NewFromInt(50)},

		FreeShippingThreshold: decimal.NewFromInt(500),
	}

	e := echo.New()
	Register(e, &Deps{
		OrderHandler: &OrderHTTP{Svc: svc},
		JWTSecret:    testSecret,
	})

	return &testEnv{DB: db, E: e, Svc: svc, User: user, Admin: admin, Addr: addr}
}

func (env *testEnv) seedProduct(t *testing.T, stock int) models.Product {
	t.Helper()
	p := models.Product{
		SKU: "SKU-1", Name: "brake pad",
		BasePrice:     decimal.NewFromInt(100),
		GSTApplicable: true,
		GSTRate:       decimal.NewFromInt(18),
		StockQuantity: stock,
		Active:        true,
	}
	require.NoError(t, env.DB.Create(&p).Error)
	return p
}

func signToken(t *testing.T, userID uint, role string) string {
	t.Helper()
	claims := auth.AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func createBody(env *testEnv, p models.Product, qty int) map[string]any {
	return map[string]any{
		"items":               []map[string]any{{"product_id": p.ID, "quantity": qty}},
		"shipping_address_id": env.Addr.ID,
		"payment_method":      "CARD",
		"payment_details":     map[string]string{"card_number": "4111111111111111"},
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, 5)
	token := signToken(t, env.User.ID, "user")

	rec := env.do(t, http.MethodPost, "/orders", token, createBody(env, p, 5))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, decimal.NewFromInt(590).Equal(resp.TotalAmount), "total %s", resp.TotalAmount)
	assert.Equal(t, models.OrderConfirmed, resp.Status)
	assert.NotEmpty(t, resp.OrderNumber)
	require.Len(t, resp.Items, 1)
}

func TestCreateOrderEndpoint_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, 5)

	rec := env.do(t, http.MethodPost, "/orders", "", createBody(env, p, 1))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/orders", "garbage", createBody(env, p, 1))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOrderEndpoint_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, 2)
	token := signToken(t, env.User.ID, "user")

	rec := env.do(t, http.MethodPost, "/orders", token, createBody(env, p, 3))
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestCreateOrderEndpoint_CardDeclined(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, 5)
	token := signToken(t, env.User.ID, "user")

	body := createBody(env, p, 1)
	body["payment_details"] = map[string]string{"card_number": "4111111110000"}
	rec := env.do(t, http.MethodPost, "/orders", token, body)
	require.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())
}

func TestCreateOrderEndpoint_InvalidCoupon(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, 5)
	token := signToken(t, env.User.ID, "user")

	body := createBody(env, p, 1)
	body["coupon_code"] = "NOPE"
	rec := env.do(t, http.MethodPost, "/orders", token, body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestGetAndListOrdersEndpoint(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, 5)
	token := signToken(t, env.User.ID, "user")

	rec := env.do(t, http.MethodPost, "/orders", token, createBody(env, p, 1))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodGet, "/orders/"+strconv.Itoa(int(created.ID)), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// a stranger's token gets a 403, not the order
	stranger := models.User{Email: "other@example.com", PasswordHash: "x", Role: "user"}
	require.NoError(t, env.DB.Create(&stranger).Error)
	rec = env.do(t, http.MethodGet, "/orders/"+strconv.Itoa(int(created.ID)), signToken(t, stranger.ID, "user"), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/orders?status=CONFIRMED", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = env.do(t, http.MethodGet, "/orders?status=CANCELLED", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)

	rec = env.do(t, http.MethodGet, "/orders/9999", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelOrderEndpoint(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, 5)
	token := signToken(t, env.User.ID, "user")

	rec := env.do(t, http.MethodPost, "/orders", token, createBody(env, p, 2))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodPost, "/orders/"+strconv.Itoa(int(created.ID))+"/cancel", token,
		map[string]string{"reason": "ordered twice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cancelled models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	assert.Equal(t, models.PaymentRefunded, cancelled.PaymentStatus)

	var reloaded models.Product
	require.NoError(t, env.DB.First(&reloaded, p.ID).Error)
	assert.Equal(t, 5, reloaded.StockQuantity)
}

func TestTrackingEndpoint(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, 5)
	token := signToken(t, env.User.ID, "user")

	rec := env.do(t, http.MethodPost, "/orders", token, createBody(env, p, 1))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodGet, "/orders/"+strconv.Itoa(int(created.ID))+"/tracking", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tr order.Tracking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, created.OrderNumber, tr.OrderNumber)
	require.Len(t, tr.History, 1)
}

func TestAdminStatusEndpoints(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, 5)
	userToken := signToken(t, env.User.ID, "user")
	adminToken := signToken(t, env.Admin.ID, "admin")

	rec := env.do(t, http.MethodPost, "/orders", userToken, createBody(env, p, 1))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	path := "/admin/orders/" + strconv.Itoa(int(created.ID)) + "/status"

	// ordinary users cannot drive the lifecycle
	rec = env.do(t, http.MethodPatch, path, userToken, map[string]string{"status": "PROCESSING"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPatch, path, adminToken, map[string]string{"status": "PROCESSING"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// illegal transition surfaces as a conflict
	rec = env.do(t, http.MethodPatch, path, adminToken, map[string]string{"status": "DELIVERED"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPatch,
		"/admin/orders/"+strconv.Itoa(int(created.ID))+"/payment",
		adminToken, map[string]string{"payment_status": "REFUNDED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// payment states outside the defined set are a bad request
	rec = env.do(t, http.MethodPatch,
		"/admin/orders/"+strconv.Itoa(int(created.ID))+"/payment",
		adminToken, map[string]string{"payment_status": "SETTLED"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotencyKeyHeader(t *testing.T) {
	env := newTestEnv(t)
	env.Svc.Idem = &memCache{m: map[string]string{}}
	p := env.seedProduct(t, 5)
	token := signToken(t, env.User.ID, "user")

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(createBody(env, p, 1)))
	payload := buf.Bytes()

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(payload))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		req.Header.Set("Idempotency-Key", "retry-1")
		rec := httptest.NewRecorder()
		env.E.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := send()
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())

	var a, b models.Order
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.OrderNumber, b.OrderNumber)

	var count int64
	require.NoError(t, env.DB.Model(&models.Order{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

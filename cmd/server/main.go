package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sparekart/backend/internal/collab"
	"github.com/sparekart/backend/internal/config"
	"github.com/sparekart/backend/internal/coupon"
	"github.com/sparekart/backend/internal/hash"
	"github.com/sparekart/backend/internal/httpserver"
	"github.com/sparekart/backend/internal/idempotency"
	"github.com/sparekart/backend/internal/inventory"
	"github.com/sparekart/backend/internal/models"
	"github.com/sparekart/backend/internal/mykafka"
	"github.com/sparekart/backend/internal/order"
	"github.com/sparekart/backend/internal/pricing"
	"github.com/sparekart/backend/pkg/db"
	"github.com/sparekart/backend/pkg/logging"
	logmw "github.com/sparekart/backend/pkg/middleware/logging"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LogLevel)
	ctx := logging.IntoContext(context.Background(), logger)

	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	if err := gdb.AutoMigrate(
		&models.User{}, &models.Address{}, &models.Product{},
		&models.Order{}, &models.OrderItem{},
		&models.Coupon{}, &models.CouponUsage{},
		&models.OrderStatusHistory{}, &models.Invoice{}, &models.LoyaltyTransaction{},
	); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	if err := bootstrapAdmin(gdb, cfg); err != nil {
		log.Fatalf("admin bootstrap error: %v", err)
	}

	prod := mykafka.NewProducer([]string{cfg.KafkaAddress})
	notifier := &collab.KafkaNotifier{Producer: prod}

	var idemCache idempotency.Cache
	if cfg.RedisAddr != "" {
		idemCache = idempotency.NewRedisCache(cfg.RedisAddr)
	}

	svc := &order.Service{
		DB:        gdb,
		Repo:      &order.GormRepo{DB: gdb},
		Pricing:   &pricing.Calculator{HomeStateCode: cfg.HomeStateCode},
		Coupons:   &coupon.Validator{DB: gdb},
		Inventory: &inventory.Coordinator{DB: gdb, Alerter: notifier},
		Payment:   &collab.SandboxGateway{},
		Invoicer:  &collab.GormInvoicer{DB: gdb},
		Loyalty:   &collab.GormLoyalty{DB: gdb},
		Notifier:  notifier,
		Shipping:  &collab.FlatRateShipping{Fee: cfg.FlatShippingFee},
		Idem:      idemCache,

		FreeShippingThreshold: cfg.FreeShippingThreshold,
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), logmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		OrderHandler: &httpserver.OrderHTTP{Svc: svc},
		JWTSecret:    cfg.JWTSecret,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}

// bootstrapAdmin ensures one admin account exists so the admin endpoints
// are reachable on a fresh deployment, and rotates the stored hash when
// the configured password changed.
func bootstrapAdmin(gdb *gorm.DB, cfg *config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	var admin models.User
	err := gdb.Where("email = ?", cfg.AdminEmail).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pwHash, err := hash.HashPassword(cfg.AdminPassword)
		if err != nil {
			return err
		}
		admin = models.User{
			Email:        cfg.AdminEmail,
			PasswordHash: pwHash,
			Role:         "admin",
			CustomerType: models.CustomerIndividual,
		}
		return gdb.Create(&admin).Error
	}
	if err != nil {
		return err
	}

	if hash.CheckPassword(admin.PasswordHash, cfg.AdminPassword) {
		return nil
	}
	pwHash, err := hash.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	return gdb.Model(&admin).Update("password_hash", pwHash).Error
}

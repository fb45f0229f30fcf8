package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	ServerPort int
	LogLevel   string

	DatabaseURL string

	KafkaAddress string
	RedisAddr    string

	JWTSecret []byte

	// GST state code of the business ("27" = Maharashtra). Shipments into
	// the same state split tax into CGST+SGST, everything else is IGST.
	HomeStateCode string

	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal

	AdminEmail    string
	AdminPassword string
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{
		ServerPort: EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:   EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		KafkaAddress: os.Getenv("KAFKA_ADDRESS"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),

		JWTSecret: []byte(os.Getenv("JWT_SECRET")),

		HomeStateCode: EnvDefault("HOME_STATE_CODE", "27"),

		FreeShippingThreshold: EnvDecimalDefault("FREE_SHIPPING_THRESHOLD", "500"),
		FlatShippingFee:       EnvDecimalDefault("FLAT_SHIPPING_FEE", "50"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	return cfg, nil
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvDecimalDefault(key, def string) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		d, _ = decimal.NewFromString(def)
	}
	return d
}

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"keywatch/internal/model"
)

type Config struct {
	RedisURL         string
	DatabaseURL      string
	MetricsPort      string
	CatalogURL       string
	UpdateInterval   time.Duration
	UnavailableAfter time.Duration
	FetchTimeout     time.Duration
	PaymentMethod    model.PaymentMethod
	AllowAccounts    bool
}

func Load() *Config {
	// Pick up a .env from the project root, then the working directory.
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load()
	return &Config{
		RedisURL:         os.Getenv("REDIS_URL"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		MetricsPort:      getEnv("METRICS_PORT", "9090"),
		CatalogURL:       os.Getenv("CATALOG_URL"),
		UpdateInterval:   time.Duration(getEnvInt("UPDATE_INTERVAL_MINUTES", 60)) * time.Minute,
		UnavailableAfter: time.Duration(getEnvInt("UNAVAILABLE_AFTER_HOURS", 24)) * time.Hour,
		FetchTimeout:     time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 15)) * time.Second,
		PaymentMethod:    model.ParsePaymentMethod(os.Getenv("PAYMENT_METHOD")),
		AllowAccounts:    getEnvBool("ALLOW_ACCOUNTS", false),
	}
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getEnvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getEnvBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

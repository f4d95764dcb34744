package cli

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	HTTPAddr            string
	TenantID            string
	JWTSecret           string
	FixedFuelPrice      string
	PriceLookupTimeout  time.Duration
	TankTimeout         time.Duration
	OutboxEnabled       bool
	OutboxInterval      time.Duration
	OutboxBatch         int
	OutboxMaxAttempts   int
	ProcessedRetention  time.Duration
	AutoCloseStations   []string
	AutoCloseAt         string
	MigrateOnStart      bool
	ShutdownGracePeriod time.Duration
}

func loadConfig() config {
	return config{
		HTTPAddr:            getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:            getenvDefault("TENANT_ID", "tenant-default"),
		JWTSecret:           getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		FixedFuelPrice:      getenvDefault("FIXED_FUEL_PRICE", ""),
		PriceLookupTimeout:  getenvDuration("PRICE_LOOKUP_TIMEOUT", 2*time.Second),
		TankTimeout:         getenvDuration("TANK_STATUS_TIMEOUT", 300*time.Millisecond),
		OutboxEnabled:       getenvBool("OUTBOX_ENABLED", true),
		OutboxInterval:      getenvDuration("OUTBOX_DISPATCH_INTERVAL", 2*time.Second),
		OutboxBatch:         getenvIntDefault("OUTBOX_DISPATCH_BATCH", 100),
		OutboxMaxAttempts:   getenvIntDefault("OUTBOX_MAX_ATTEMPTS", 5),
		ProcessedRetention:  getenvDuration("PROCESSED_RETENTION", 30*24*time.Hour),
		AutoCloseStations:   getenvList("AUTO_CLOSE_STATIONS"),
		AutoCloseAt:         getenvDefault("AUTO_CLOSE_AT", "00:30"),
		MigrateOnStart:      getenvBool("MIGRATE_ON_START", false),
		ShutdownGracePeriod: getenvDuration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

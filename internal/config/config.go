// Package config は環境変数からのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 各コンポーネントには参照で渡し、グローバル参照は行わない。
type Config struct {
	// App
	AppName string

	// Database
	DatabaseURL string

	// Admin（テナント管理APIのBasic認証）
	AdminUsername string
	AdminPassword string

	// Geocoding
	GmapsAPIKey      string
	GeocodeEndpoint  string // 空の場合はGoogle Geocoding APIの既定エンドポイント
	GeocodeTimeout   time.Duration
	GeohashPrecision uint

	// Rate Limit（req/sec）
	RateLimitGeneral int
	RateLimitIngest  int

	// Event ingestion
	EventQueueSize          int
	EventWorkers            int
	DeadLetterMaxAge        time.Duration
	DeadLetterSweepInterval time.Duration

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AdminUsername = os.Getenv("ADMIN_USERNAME")
	if cfg.AdminUsername == "" {
		missing = append(missing, "ADMIN_USERNAME")
	}

	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	if cfg.AdminPassword == "" {
		missing = append(missing, "ADMIN_PASSWORD")
	}

	cfg.GmapsAPIKey = os.Getenv("GMAPS_API_KEY")
	if cfg.GmapsAPIKey == "" {
		missing = append(missing, "GMAPS_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AppName = getEnvString("APP_NAME", "opalizer")
	cfg.GeocodeEndpoint = getEnvString("GEOCODE_ENDPOINT", "")
	cfg.GeocodeTimeout = getEnvDuration("GEOCODE_TIMEOUT", 5*time.Second)
	cfg.GeohashPrecision = uint(getEnvInt("GEOHASH_PRECISION", 12))
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 10)
	cfg.RateLimitIngest = getEnvInt("RATE_LIMIT_INGEST", 50)
	cfg.EventQueueSize = getEnvInt("EVENT_QUEUE_SIZE", 1024)
	cfg.EventWorkers = getEnvInt("EVENT_WORKERS", 8)
	cfg.DeadLetterMaxAge = getEnvDuration("DEADLETTER_MAX_AGE", 14*24*time.Hour)
	cfg.DeadLetterSweepInterval = getEnvDuration("DEADLETTER_SWEEP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

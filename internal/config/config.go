package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Port            string
	DatabaseDSN     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	Env             string
	SessionTTLHours int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func Load() Config {
	port := getenv("APP_PORT", "8080")
	dsn := getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=rrchat port=5432 sslmode=disable TimeZone=UTC")
	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	redisPass := getenv("REDIS_PASSWORD", "")
	redisDBStr := getenv("REDIS_DB", "0")
	env := getenv("APP_ENV", "dev")
	ttlStr := getenv("SESSION_TTL_HOURS", "72")
	redisDB, _ := strconv.Atoi(redisDBStr)
	ttl, err := strconv.Atoi(ttlStr)
	if err != nil || ttl < 0 {
		ttl = 72
	}
	return Config{
		Port:            port,
		DatabaseDSN:     dsn,
		RedisAddr:       redisAddr,
		RedisPassword:   redisPass,
		RedisDB:         redisDB,
		Env:             env,
		SessionTTLHours: ttl,
	}
}

// Validate 检查启动必需的配置项。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: database dsn is required")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redis addr is required")
	}
	return nil
}

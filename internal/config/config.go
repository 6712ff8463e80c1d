// Package config loads server settings from flags, falling back to the
// environment and then to defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go-roomchat/internal/chat"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"
)

type Config struct {
	Addr               string
	DBDSN              string
	RedisAddr          string
	RedisChannelPrefix string
	HistorySize        int
	MaxMessageSize     int64
	SendBuffer         int
	RateLimit          float64
	RateBurst          int
	AllowedOrigins     []string
	Location           *time.Location
	ShutdownTimeout    time.Duration
}

func defaults() Config {
	return Config{
		Addr:               ":8080",
		RedisChannelPrefix: "chat:",
		HistorySize:        chat.DefaultHistorySize,
		MaxMessageSize:     chat.DefaultMaxMessageSize,
		SendBuffer:         chat.DefaultSendBuffer,
		RateLimit:          float64(chat.DefaultRateLimit),
		RateBurst:          chat.DefaultRateBurst,
		AllowedOrigins:     []string{"*"},
		Location:           time.UTC,
		ShutdownTimeout:    15 * time.Second,
	}
}

// Load parses args (without the program name). getenv is usually os.Getenv.
func Load(args []string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	d := defaults()

	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	addr := fs.String("addr", envString(getenv, "ADDR", d.Addr), "http service address")
	dsn := fs.String("db-dsn", envString(getenv, "DB_DSN", ""), "postgres DSN for the presence ledger (empty disables it)")
	redisAddr := fs.String("redis-addr", envString(getenv, "REDIS_ADDR", ""), "redis address for the event mirror (empty disables it)")
	prefix := fs.String("redis-channel-prefix", envString(getenv, "REDIS_CHANNEL_PREFIX", d.RedisChannelPrefix), "redis channel prefix")
	history := fs.Int("history-size", envInt(getenv, "HISTORY_SIZE", d.HistorySize), "events kept per room, at most 50")
	maxSize := fs.Int64("max-message-size", envInt64(getenv, "MAX_MESSAGE_SIZE", d.MaxMessageSize), "largest inbound frame in bytes")
	sendBuf := fs.Int("send-buffer", envInt(getenv, "SEND_BUFFER", d.SendBuffer), "outbound frames queued per connection")
	rateLimit := fs.Float64("rate-limit", envFloat(getenv, "RATE_LIMIT", d.RateLimit), "inbound messages per second per connection")
	rateBurst := fs.Int("rate-burst", envInt(getenv, "RATE_BURST", d.RateBurst), "inbound burst per connection")
	origins := fs.StringSlice("allowed-origins", envList(getenv, "ALLOWED_ORIGINS", d.AllowedOrigins), "allowed websocket origins, * for any")
	tz := fs.String("timezone", envString(getenv, "CHAT_TIMEZONE", "UTC"), "time zone for event timestamps")
	shutdown := fs.Duration("shutdown-timeout", envDuration(getenv, "SHUTDOWN_TIMEOUT", d.ShutdownTimeout), "graceful shutdown budget")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", *tz, err)
	}

	cfg := &Config{
		Addr:               *addr,
		DBDSN:              *dsn,
		RedisAddr:          *redisAddr,
		RedisChannelPrefix: *prefix,
		HistorySize:        *history,
		MaxMessageSize:     *maxSize,
		SendBuffer:         *sendBuf,
		RateLimit:          *rateLimit,
		RateBurst:          *rateBurst,
		AllowedOrigins:     *origins,
		Location:           loc,
		ShutdownTimeout:    *shutdown,
	}
	return cfg.sanitize(d), nil
}

func (c *Config) sanitize(d Config) *Config {
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.HistorySize <= 0 || c.HistorySize > d.HistorySize {
		c.HistorySize = d.HistorySize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = d.AllowedOrigins
	}
	return c
}

func envString(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(getenv func(string) string, key string, def int) int {
	if v, err := strconv.Atoi(getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func envInt64(getenv func(string) string, key string, def int64) int64 {
	if v, err := strconv.ParseInt(getenv(key), 10, 64); err == nil && v > 0 {
		return v
	}
	return def
}

func envFloat(getenv func(string) string, key string, def float64) float64 {
	if v, err := strconv.ParseFloat(getenv(key), 64); err == nil && v > 0 {
		return v
	}
	return def
}

func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func envList(getenv func(string) string, key string, def []string) []string {
	v := getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HubOptions maps the config onto chat.Options.
func (c *Config) HubOptions(observer chat.Observer) chat.Options {
	return chat.Options{
		HistorySize:    c.HistorySize,
		SendBuffer:     c.SendBuffer,
		MaxMessageSize: c.MaxMessageSize,
		RateLimit:      rate.Limit(c.RateLimit),
		RateBurst:      c.RateBurst,
		Location:       c.Location,
		Observer:       observer,
	}
}

package config

import (
	"testing"
	"time"

	"go-roomchat/internal/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DBDSN)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "chat:", cfg.RedisChannelPrefix)
	assert.Equal(t, chat.DefaultHistorySize, cfg.HistorySize)
	assert.Equal(t, int64(chat.DefaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestLoadFromEnv(t *testing.T) {
	cfg, err := Load(nil, envMap(map[string]string{
		"ADDR":             ":9000",
		"DB_DSN":           "postgres://localhost/chat",
		"REDIS_ADDR":       "localhost:6379",
		"HISTORY_SIZE":     "10",
		"RATE_LIMIT":       "2.5",
		"ALLOWED_ORIGINS":  "https://a.example, https://b.example ,",
		"CHAT_TIMEZONE":    "Europe/Berlin",
		"SHUTDOWN_TIMEOUT": "3s",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "postgres://localhost/chat", cfg.DBDSN)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 10, cfg.HistorySize)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := Load(
		[]string{"--addr", ":7000", "--history-size=5", "--allowed-origins", "https://x.example"},
		envMap(map[string]string{"ADDR": ":9000", "HISTORY_SIZE": "10"}),
	)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, 5, cfg.HistorySize)
	assert.Equal(t, []string{"https://x.example"}, cfg.AllowedOrigins)
}

func TestInvalidValuesFallBack(t *testing.T) {
	cfg, err := Load(
		[]string{"--history-size=0", "--rate-burst=-1"},
		envMap(map[string]string{"SEND_BUFFER": "lots", "MAX_MESSAGE_SIZE": "-5"}),
	)
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultHistorySize, cfg.HistorySize)
	assert.Equal(t, chat.DefaultRateBurst, cfg.RateBurst)
	assert.Equal(t, chat.DefaultSendBuffer, cfg.SendBuffer)
	assert.Equal(t, int64(chat.DefaultMaxMessageSize), cfg.MaxMessageSize)
}

func TestHistorySizeIsCapped(t *testing.T) {
	cfg, err := Load([]string{"--history-size=500"}, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultHistorySize, cfg.HistorySize)

	cfg, err = Load(nil, envMap(map[string]string{"HISTORY_SIZE": "51"}))
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultHistorySize, cfg.HistorySize)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(nil, envMap(map[string]string{"CHAT_TIMEZONE": "Mars/Olympus"}))
	assert.ErrorContains(t, err, "invalid timezone")

	_, err = Load([]string{"--no-such-flag"}, envMap(nil))
	assert.Error(t, err)
}

func TestHubOptions(t *testing.T) {
	cfg, err := Load([]string{"--rate-limit=4", "--send-buffer=8"}, envMap(nil))
	require.NoError(t, err)

	opts := cfg.HubOptions(nil)
	assert.Equal(t, rate.Limit(4), opts.RateLimit)
	assert.Equal(t, 8, opts.SendBuffer)
	assert.Equal(t, cfg.HistorySize, opts.HistorySize)
	assert.Same(t, cfg.Location, opts.Location)
}

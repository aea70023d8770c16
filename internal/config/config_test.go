package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 256, cfg.Hub.SendQueueSize)
	assert.Equal(t, 24*time.Hour, cfg.Hub.CacheTTL)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("HUB_SEND_QUEUE_SIZE", "64")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, 64, cfg.Hub.SendQueueSize)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestGetDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"bare seconds", "30", 30 * time.Second},
		{"duration string", "2m", 2 * time.Minute},
		{"invalid falls back", "not-a-duration", 5 * time.Second},
		{"empty falls back", "", 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_DURATION", tt.value)
			}
			got := getDuration("TEST_DURATION", 5*time.Second)
			assert.Equal(t, tt.want, got)
		})
	}
}

package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolOptionsDefaults(t *testing.T) {
	got := PoolOptions{}.withDefaults()
	assert.Equal(t, PoolOptions{MaxConns: 20, MinConns: 2, MaxConnLifetime: 30 * time.Minute, MaxConnIdleTime: 10 * time.Minute}, got)

	got = PoolOptions{MaxConns: 1, MinConns: 4, MaxConnIdleTime: time.Minute}.withDefaults()
	assert.Equal(t, int32(1), got.MaxConns)
	assert.Equal(t, int32(1), got.MinConns)
	assert.Equal(t, 30*time.Minute, got.MaxConnLifetime)
	assert.Equal(t, time.Minute, got.MaxConnIdleTime)
}

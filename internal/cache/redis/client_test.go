package redis

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptionsAppliesPoolDefaults(t *testing.T) {
	ro := clientOptions(Options{Addr: "localhost:6379"})

	assert.Equal(t, "localhost:6379", ro.Addr)
	assert.Equal(t, defaultPoolSize, ro.PoolSize)
	assert.Equal(t, defaultMaxRetries, ro.MaxRetries)
	assert.Nil(t, ro.TLSConfig)
}

func TestClientOptionsKeepsExplicitValues(t *testing.T) {
	ro := clientOptions(Options{
		Addr:       "redis.internal:6380",
		Password:   "hunter2",
		DB:         3,
		PoolSize:   5,
		MaxRetries: 1,
	})

	assert.Equal(t, 5, ro.PoolSize)
	assert.Equal(t, 1, ro.MaxRetries)
	assert.Equal(t, "hunter2", ro.Password)
	assert.Equal(t, 3, ro.DB)
}

func TestClientOptionsTLS(t *testing.T) {
	ro := clientOptions(Options{Addr: "x", TLSEnabled: true})
	require.NotNil(t, ro.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), ro.TLSConfig.MinVersion)
}

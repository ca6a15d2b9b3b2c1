package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/exam-api/internal/config"
)

func TestUniversalOptions(t *testing.T) {
	t.Run("single uses first address", func(t *testing.T) {
		opts, err := UniversalOptions(config.RedisConfig{Addrs: []string{"a:6379", "b:6379"}, MinRetryBackoff: 8})
		require.NoError(t, err)
		assert.Equal(t, []string{"a:6379"}, opts.Addrs)
		assert.Equal(t, 8*time.Millisecond, opts.MinRetryBackoff)
	})

	t.Run("legacy addr", func(t *testing.T) {
		opts, err := UniversalOptions(config.RedisConfig{Mode: "single", Addr: "redis:6379"})
		require.NoError(t, err)
		assert.Equal(t, []string{"redis:6379"}, opts.Addrs)
	})

	t.Run("sentinel needs master name", func(t *testing.T) {
		_, err := UniversalOptions(config.RedisConfig{Mode: "sentinel", Addrs: []string{"s1:26379"}})
		assert.Error(t, err)

		opts, err := UniversalOptions(config.RedisConfig{Mode: "sentinel", Addrs: []string{"s1:26379"}, MasterName: "mymaster"})
		require.NoError(t, err)
		assert.Equal(t, "mymaster", opts.MasterName)
	})

	t.Run("cluster keeps all addresses", func(t *testing.T) {
		opts, err := UniversalOptions(config.RedisConfig{Mode: "cluster", Addrs: []string{"c1:7000", "c2:7000"}})
		require.NoError(t, err)
		assert.Len(t, opts.Addrs, 2)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := UniversalOptions(config.RedisConfig{})
		assert.Error(t, err)

		_, err = UniversalOptions(config.RedisConfig{Mode: "ring", Addr: "x:1"})
		assert.Error(t, err)
	})
}

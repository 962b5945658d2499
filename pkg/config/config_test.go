package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajitpratap0/imagepool/pkg/compression"
	"github.com/ajitpratap0/imagepool/pkg/pool"
	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsValidate(t *testing.T) {
	cfg := New("", 0)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "imagepool", cfg.Name)
	assert.Equal(t, DefaultMaxMemoryMB, cfg.MaxMemoryMB)
	assert.Equal(t, DefaultMaxMemoryMB*pool.MiB, cfg.MaxMemoryBytes())
	assert.Equal(t, pool.BitmapPoolBuckets, cfg.Pools.Bitmap.Type)
	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"no memory", func(c *Config) { c.MaxMemoryMB = 0 }},
		{"bad pools", func(c *Config) { c.Pools.Bitmap.Type = "arena" }},
		{"bad codec", func(c *Config) { c.Compression.Algorithm = "brotli" }},
		{"bad monitor", func(c *Config) { c.Monitor.LowMemoryPercent = 120 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad encoding", func(c *Config) { c.Logging.Encoding = "xml" }},
		{"missing metrics address", func(c *Config) { c.Observability.MetricsAddress = "" }},
		{"bad sample rate", func(c *Config) { c.Observability.TracingSampleRate = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New("test", 64)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
		})
	}
}

func TestDisabledMonitorSkipsValidation(t *testing.T) {
	cfg := New("test", 64)
	cfg.Monitor.Enabled = false
	cfg.Monitor.Interval = 0
	assert.NoError(t, cfg.Validate())
}

func TestParseSizesDefaultsFromMaxMemory(t *testing.T) {
	cfg, err := Parse([]byte("name: decoder\nmax_memory_mb: 8\n"))
	require.NoError(t, err)
	assert.Equal(t, "decoder", cfg.Name)
	assert.Equal(t, pool.DefaultMemoryChunkPoolParams(8*pool.MiB), cfg.Pools.MemoryChunk)
	assert.Equal(t, 4*pool.MiB, cfg.Pools.MemoryChunk.MaxSizeHardCap)
}

func TestParseReplacesBucketTable(t *testing.T) {
	data := []byte(`
pools:
  byte_array:
    max_size_soft_cap: 1048576
    max_size_hard_cap: 2097152
    bucket_sizes:
      4096: 2
      8192: 2
  bitmap:
    type: lru
monitor:
  interval: 250ms
logging:
  level: debug
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	ba := cfg.Pools.ByteArray
	assert.Equal(t, map[int]int{4096: 2, 8192: 2}, ba.BucketSizes)
	assert.Equal(t, 4096, ba.MinBucketSize)
	assert.Equal(t, 8192, ba.MaxBucketSize)
	assert.Equal(t, pool.MiB, ba.MaxSizeSoftCap)

	def := pool.DefaultFactoryConfig(DefaultMaxMemoryMB * pool.MiB)
	assert.Equal(t, def.MemoryChunk, cfg.Pools.MemoryChunk, "untouched sections keep defaults")
	assert.Equal(t, pool.BitmapPoolLRU, cfg.Pools.Bitmap.Type)
	assert.Equal(t, def.Bitmap.MaxPoolSize, cfg.Pools.Bitmap.MaxPoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.Interval)
	assert.Equal(t, 85.0, cfg.Monitor.LowMemoryPercent)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestParseSubstitutesEnv(t *testing.T) {
	t.Setenv("IMAGEPOOL_TEST_NAME", "thumbnailer")
	t.Setenv("IMAGEPOOL_TEST_ADDR", ":9999")
	cfg, err := Parse([]byte("name: ${IMAGEPOOL_TEST_NAME}\nobservability:\n  metrics_address: ${IMAGEPOOL_TEST_ADDR}\n"))
	require.NoError(t, err)
	assert.Equal(t, "thumbnailer", cfg.Name)
	assert.Equal(t, ":9999", cfg.Observability.MetricsAddress)
}

func TestParseCompression(t *testing.T) {
	cfg, err := Parse([]byte("compression:\n  algorithm: lz4\n"))
	require.NoError(t, err)
	assert.Equal(t, compression.LZ4, cfg.Compression.Algorithm)
	assert.Equal(t, compression.DefaultConfig().MaxDecodedSize, cfg.Compression.MaxDecodedSize)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("pools: [unclosed"))
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))

	_, err = Parse([]byte("pools:\n  byte_array:\n    max_size_hard_cap: -1\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pool.ErrInvalidParams))
}

func TestSaveAndLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "imagepool.yaml")

	cfg := New("roundtrip", 128)
	cfg.Pools.Bitmap.Type = pool.BitmapPoolDummy
	cfg.Logging.Encoding = "console"
	require.NoError(t, Save(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	var v struct{}
	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.yaml"), &v))
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("IMAGEPOOL_A", "x")
	assert.Equal(t, "x-", substituteEnvVars("${IMAGEPOOL_A}-${IMAGEPOOL_UNSET_VAR}"))
	assert.Equal(t, "open ${brace", substituteEnvVars("open ${brace"))
}

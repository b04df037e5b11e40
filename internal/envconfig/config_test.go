package envconfig

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngine(t *testing.T) {
	t.Setenv("FORGE_ENGINE", "")
	assert.Equal(t, "go", Engine())

	t.Setenv("FORGE_ENGINE", "'custom'")
	assert.Equal(t, "custom", Engine())
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("FORGE_DEBUG", value)
			assert.Equal(t, want, LogLevel())
		})
	}
}

func TestVerifyChecksum(t *testing.T) {
	t.Setenv("FORGE_VERIFY_CHECKSUM", "")
	assert.True(t, VerifyChecksum(true))

	t.Setenv("FORGE_VERIFY_CHECKSUM", "false")
	assert.False(t, VerifyChecksum(true))

	t.Setenv("FORGE_VERIFY_CHECKSUM", "garbage")
	assert.True(t, VerifyChecksum(false))
}

func TestMemoryLimit(t *testing.T) {
	t.Setenv("FORGE_MEMORY_LIMIT", "1048576")
	assert.Equal(t, uint64(1<<20), MemoryLimit())

	t.Setenv("FORGE_MEMORY_LIMIT", "lots")
	assert.Equal(t, uint64(0), MemoryLimit())
}

func TestCompression(t *testing.T) {
	t.Setenv("FORGE_COMPRESSION", "ZSTD")
	assert.Equal(t, "zstd", Compression())

	t.Setenv("FORGE_COMPRESSION", "brotli")
	assert.Equal(t, "none", Compression())
}

func TestAsMap(t *testing.T) {
	t.Setenv("FORGE_DEVICE", "cpu")
	m := AsMap()
	assert.Len(t, m, 7)
	assert.Equal(t, "cpu", m["FORGE_DEVICE"].Value)
	assert.Equal(t, "cpu", Values()["FORGE_DEVICE"])
}

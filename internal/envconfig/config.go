// Package envconfig reads Forge configuration from environment variables.
//
// Every setting is exposed as a getter that reads the environment on each
// call, so tests can use t.Setenv without any reset hooks.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Engine returns the name of the default engine.
// Configurable via FORGE_ENGINE. Default: "go".
func Engine() string {
	if s := Var("FORGE_ENGINE"); s != "" {
		return s
	}
	return "go"
}

// Device returns the preferred device string, e.g. "cpu" or "cuda:0".
// Configurable via FORGE_DEVICE. Empty means the engine default.
var Device = String("FORGE_DEVICE")

// MemoryLimit returns the byte budget for a model's root manager.
// Configurable via FORGE_MEMORY_LIMIT. 0 means unlimited.
var MemoryLimit = Uint64("FORGE_MEMORY_LIMIT", 0)

// NumThreads returns the number of worker goroutines used by parallel
// kernels. Configurable via FORGE_NUM_THREADS. 0 means one per CPU.
var NumThreads = Uint64("FORGE_NUM_THREADS", 0)

// VerifyChecksum reports whether parameter files are checksummed on load.
// Configurable via FORGE_VERIFY_CHECKSUM. Default: true.
var VerifyChecksum = BoolWithDefault("FORGE_VERIFY_CHECKSUM")

// Compression returns the data-section compression used when saving
// parameters: "none", "zstd" or "lz4".
// Configurable via FORGE_COMPRESSION. Default: "none".
func Compression() string {
	s := strings.ToLower(Var("FORGE_COMPRESSION"))
	switch s {
	case "", "none":
		return "none"
	case "zstd", "lz4":
		return s
	default:
		slog.Warn("invalid environment variable, using default", "key", "FORGE_COMPRESSION", "value", s, "default", "none")
		return "none"
	}
}

// LogLevel returns the log level.
// Configurable via FORGE_DEBUG: 0/false = INFO (default), 1/true = DEBUG,
// larger integers step further below DEBUG.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("FORGE_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// BoolWithDefault returns a getter for a boolean variable. Unparseable
// non-empty values count as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a getter for a boolean variable defaulting to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String returns a getter for a string variable.
func String(k string) func() string {
	return func() string {
		return Var(k)
	}
}

// Uint64 returns a getter for an unsigned integer variable.
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// EnvVar describes one configuration variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every known variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"FORGE_ENGINE":          {"FORGE_ENGINE", Engine(), "Engine used by engine.Instance (default \"go\")"},
		"FORGE_DEBUG":           {"FORGE_DEBUG", LogLevel(), "Show additional debug information (e.g. FORGE_DEBUG=1)"},
		"FORGE_DEVICE":          {"FORGE_DEVICE", Device(), "Preferred device such as cpu or cuda:0"},
		"FORGE_MEMORY_LIMIT":    {"FORGE_MEMORY_LIMIT", MemoryLimit(), "Tensor memory budget per model in bytes (0 = unlimited)"},
		"FORGE_VERIFY_CHECKSUM": {"FORGE_VERIFY_CHECKSUM", VerifyChecksum(true), "Verify parameter file checksums on load (default true)"},
		"FORGE_COMPRESSION":     {"FORGE_COMPRESSION", Compression(), "Parameter compression on save: none, zstd or lz4"},
		"FORGE_NUM_THREADS":     {"FORGE_NUM_THREADS", NumThreads(), "Worker goroutines for parallel kernels (0 = one per CPU)"},
	}
}

// Values returns every variable rendered as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Var returns an environment variable stripped of whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

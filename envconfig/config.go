// Package envconfig exposes typed accessors over the environment variables
// the cache's demo harness reads, following the same Var/parse-with-default
// idiom the teacher's envconfig package uses for its own OLLAMA_* settings.
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Offload reports whether KVCACHE_OFFLOAD requests per-layer device
// placement instead of host-only allocation. Default: false.
func Offload() bool {
	s := Var("KVCACHE_OFFLOAD")
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		slog.Warn("invalid KVCACHE_OFFLOAD, ignoring", "value", s)
		return false
	}
	return b
}

// LogLevel reads KVCACHE_LOG_LEVEL. Recognized values: "debug", "info",
// "warn", "error", or a numeric slog level. Default: info.
func LogLevel() slog.Level {
	s := strings.ToLower(Var("KVCACHE_LOG_LEVEL"))
	switch s {
	case "", "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if n, err := strconv.Atoi(s); err == nil {
		return slog.Level(n)
	}
	slog.Warn("invalid KVCACHE_LOG_LEVEL, using info", "value", s)
	return slog.LevelInfo
}

// DefaultCapacity reads KVCACHE_CAPACITY, the cell-table size the demo CLI
// uses when none is given on the command line. Default: 4096.
func DefaultCapacity() int32 {
	const def = 4096
	s := Var("KVCACHE_CAPACITY")
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n <= 0 {
		slog.Warn("invalid KVCACHE_CAPACITY, using default", "value", s, "default", def)
		return def
	}
	return int32(n)
}

// Var returns an environment variable, trimmed of surrounding whitespace and
// matching quote characters.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Package debug sets up logging for the datasci binaries and offers
// category-scoped debug output.
//
// Categories select which subsystems log debug detail (DATASCI_DEBUG, a
// comma separated list, or "all"). The level selects how much of it is
// printed (DATASCI_LOG_LEVEL: ERROR, WARN, INFO, DEBUG, TRACE). Both can also
// come from the config file; the environment wins.
//
//	debug.Log("sessions", "evicted", "session_id", id)
//
// Categories in use: agent, auth, config, executor, model, sandbox,
// sessions, transport.
package debug

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LevelTrace is one step below slog.LevelDebug. Model replies and service
// bodies are logged at this level.
const LevelTrace = slog.LevelDebug - 4

// set is an immutable set of enabled categories.
type set map[string]bool

func (s set) has(category string) bool {
	return s["all"] || s[category]
}

var enabled atomic.Pointer[set]

func init() {
	store(parseCategories(os.Getenv("DATASCI_DEBUG")))
}

func store(s set) { enabled.Store(&s) }

func load() set {
	if p := enabled.Load(); p != nil {
		return *p
	}
	return nil
}

// Init installs the default slog handler and the enabled categories.
// Empty environment variables fall back to the given config values.
// format "json" selects JSON lines, anything else the text handler.
func Init(configCategories, configLevel, format string) {
	store(parseCategories(firstNonEmpty(os.Getenv("DATASCI_DEBUG"), configCategories)))

	opts := &slog.HandlerOptions{
		Level: ParseLevel(firstNonEmpty(os.Getenv("DATASCI_LOG_LEVEL"), configLevel)),
	}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// Logger returns the default logger with a component attribute.
func Logger(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// Enabled reports whether debug output is on for category.
func Enabled(category string) bool {
	return load().has(category)
}

// Log writes a debug record tagged with category when it is enabled.
func Log(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace is Log at LevelTrace.
func Trace(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel maps a level name to a slog level. Unknown names mean INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Truncate shortens s to at most n runes for log output, marking the cut
// with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func parseCategories(s string) set {
	out := set{}
	for _, c := range strings.Split(s, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			out[c] = true
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

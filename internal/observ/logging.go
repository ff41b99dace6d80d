package observ

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logMu  sync.RWMutex
	logger = newLogger(os.Stdout)
)

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetOutput redirects event logs, mainly for tests.
func SetOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	logger = newLogger(w)
}

// SetLevel sets the minimum level emitted ("debug", "info", "warn", "error").
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	logMu.Lock()
	defer logMu.Unlock()
	logger = logger.Level(lvl)
	return nil
}

func current() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// Log writes one JSON line with the event name and key/value pairs.
func Log(event string, kv map[string]any) {
	l := current()
	l.Info().Str("event", event).Fields(kv).Send()
}

func Debug(event string, kv map[string]any) {
	l := current()
	l.Debug().Str("event", event).Fields(kv).Send()
}

func Warn(event string, kv map[string]any) {
	l := current()
	l.Warn().Str("event", event).Fields(kv).Send()
}

// Error logs event with err attached under the "error" key.
func Error(event string, err error, kv map[string]any) {
	l := current()
	l.Error().Str("event", event).Err(err).Fields(kv).Send()
}

// Package logging sets up the zap loggers of ggml-build. Loggers are named
// per subsystem and created with their level in one call; there is no
// package-level logger to write to.
package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// FormatEnv selects JSON output when set to "json".
const FormatEnv = "GGML_BUILD_LOG_FMT"

func init() {
	envfmt := strings.TrimSpace(strings.ToLower(os.Getenv(FormatEnv)))
	log.SetPrimaryCore(zapcore.NewCore(newEncoder(envfmt == "json" || !term.IsTerminal(int(os.Stderr.Fd()))), os.Stderr, zap.NewAtomicLevelAt(zapcore.DebugLevel)))
}

func newEncoder(json bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.MessageKey = "msg"
	cfg.LevelKey = "lvl"
	cfg.TimeKey = "ts"
	cfg.NameKey = "log"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}

	// Same fields in both encodings.
	if json {
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// New creates a named logger with the given level. Calling it again for the
// same subsystem only changes the level.
func New(subsystem, level string) *zap.Logger {
	l := log.Logger(subsystem).Desugar()
	SetLogLevel(subsystem, level)
	return l
}

// SetLogLevel sets the level of a named logger. It panics on an invalid level.
func SetLogLevel(subsystem, level string) {
	if err := log.SetLogLevel(subsystem, level); err != nil {
		panic(fmt.Errorf("%s %s %w", subsystem, level, err))
	}
}

// ValidLevel reports whether level names a log level.
func ValidLevel(level string) bool {
	_, err := log.LevelFromString(level)
	return err == nil
}

// ListLogNames returns the subsystems created so far.
func ListLogNames() []string {
	logs := log.GetSubsystems()
	sort.Strings(logs)
	return logs
}

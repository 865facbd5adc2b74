// Package logging builds the zap logger every command logs through.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// Verbose lowers the level from warn to debug.
	Verbose bool
	// JSON switches from the console encoder to JSON lines.
	JSON bool
	// Writer defaults to stderr so stdout stays free for command output.
	Writer io.Writer
}

// New returns a logger for opts. Sync errors on stderr are ignored by
// callers.
func New(opts Options) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.WarnLevel)
	if opts.Verbose {
		level.SetLevel(zap.DebugLevel)
	}

	var (
		encCfg zapcore.EncoderConfig
		enc    zapcore.Encoder
	)
	if opts.JSON {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core, zap.AddCaller())
}

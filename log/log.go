// Package log builds the zap loggers used by firmware images and host tools.
package log

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Production returns a logger that discards everything, release images
// carry no console output.
func Production(_ ...zap.Option) *zap.Logger {
	l := zap.NewNop()
	zap.ReplaceGlobals(l)

	return l
}

func Development(opts ...zap.Option) *zap.Logger {
	opts = append(opts, zap.WithCaller(true))
	l, err := zap.NewDevelopment(
		opts...,
	)

	if err != nil {
		panic(err)
	}

	zap.ReplaceGlobals(l)

	return zap.L()
}

// Console returns a development style logger writing to w, typically the
// firmware serial port, at level and above.
func Console(w io.Writer, level zapcore.Level, opts ...zap.Option) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)

	l := zap.New(core, opts...)
	zap.ReplaceGlobals(l)

	return l
}

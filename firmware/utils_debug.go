//go:build tamago && riscv64 && debug

package main

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quard-star/platform/log"
)

var (
	debugLogger     *zap.SugaredLogger
	debugLoggerOnce sync.Once
)

// console writes through printk, it works before the serial driver is
// probed.
type console struct{}

func (console) Write(p []byte) (int, error) {
	for _, c := range p {
		if c == '\n' {
			printk('\r')
		}
		printk(c)
	}

	return len(p), nil
}

func logger() *zap.SugaredLogger {
	debugLoggerOnce.Do(func() {
		debugLogger = log.Console(console{}, zapcore.DebugLevel, zap.WithCaller(true)).Sugar()
	})

	return debugLogger
}

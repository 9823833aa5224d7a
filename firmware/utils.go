//go:build tamago && riscv64 && !debug

package main

import (
	"go.uber.org/zap"

	"github.com/quard-star/platform/log"
)

func logger() *zap.SugaredLogger {
	return log.Production().Sugar()
}

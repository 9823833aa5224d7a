//go:build tamago && riscv64

package main

import (
	"github.com/quard-star/platform/platform"
)

// defined in wfi_riscv64.s
func wfi()

func init() {
	platform.WaitForInterrupt = wfi
}

//go:build tamago && riscv64

package main

// defined in semihosting_riscv64.s
func semihostingCall(op uint32, param uint64) int64

func semihostingProbe() bool {
	return semihostingAttached
}

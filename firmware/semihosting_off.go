//go:build tamago && riscv64 && !semihosting

package main

const semihostingAttached = false

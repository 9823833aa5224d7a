//go:build tamago && riscv64 && semihosting

package main

// a debugger answers ebreak traps, without one they are fatal
const semihostingAttached = true

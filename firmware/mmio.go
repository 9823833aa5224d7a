//go:build tamago && riscv64

package main

import (
	"unsafe"

	"github.com/quard-star/platform/driver"
)

// mmio accesses device registers in place.
type mmio struct{}

var (
	bus mmio

	_ driver.Bus = mmio{}
)

func (mmio) Read8(addr uint64) uint8 {
	return *(*uint8)(unsafe.Pointer(uintptr(addr)))
}

func (mmio) Write8(addr uint64, val uint8) {
	*(*uint8)(unsafe.Pointer(uintptr(addr))) = val
}

func (mmio) Read32(addr uint64) uint32 {
	return *(*uint32)(unsafe.Pointer(uintptr(addr)))
}

func (mmio) Write32(addr uint64, val uint32) {
	*(*uint32)(unsafe.Pointer(uintptr(addr))) = val
}

//go:build tamago && riscv64

package main

import (
	"encoding/binary"
	"unsafe"

	"github.com/f-secure-foundry/tamago/dma"
	"github.com/f-secure-foundry/tamago/soc/sifive/fu540"
)

const (
	// Firmware, Go runtime included
	RAMStart = 0x80000000
	RAMSize  = 0x04000000 // 64MB

	// Devicetree placed by the loader, and the one handed to the payload
	BootFDTAddr = 0x87f00000
	NextFDTAddr = 0x87e00000
	FDTMaxSize  = 0x00100000 // 1MB

	// Supervisor payload
	PayloadSize = 0x08000000 // 128MB

	uartBase = 0x10000000
	uartLSR  = 5
	uartTHRE = 0x20
)

//go:linkname ramStart runtime.ramStart
var ramStart uint64 = RAMStart

//go:linkname ramSize runtime.ramSize
var ramSize uint64 = RAMSize

//go:linkname hwinit runtime.hwinit
func hwinit() {
	fu540.RV64.Init()
}

//go:linkname printk runtime.printk
func printk(c byte) {
	for bus.Read8(uartBase+uartLSR)&uartTHRE == 0 {
	}

	bus.Write8(uartBase, c)
}

// memory returns size bytes of physical memory at addr.
func memory(addr uint64, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size)
}

// bootDevicetree returns the blob the loader left at BootFDTAddr, sized from
// its header.
func bootDevicetree() []byte {
	size := binary.BigEndian.Uint32(memory(BootFDTAddr, 8)[4:])
	if size > FDTMaxSize {
		size = FDTMaxSize
	}

	return memory(BootFDTAddr, int(size))
}

func payloadRegion(start uint64) *dma.Region {
	r := &dma.Region{
		Start: uint(start),
		Size:  PayloadSize,
	}
	r.Init()
	r.Reserve(PayloadSize, 0)

	return r
}

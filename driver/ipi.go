package driver

import (
	"github.com/quard-star/platform/devicetree"
)

var ipiCompat = []string{"riscv,clint0", "sifive,clint0", "riscv,aclint-mswi"}

// IPI delivers machine software interrupts through the CLINT MSIP registers.
type IPI struct {
	bus   Bus
	tree  *devicetree.Tree
	harts []uint32

	base uint64
}

func NewIPI(bus Bus, tree *devicetree.Tree, harts []uint32) *IPI {
	return &IPI{
		bus:   bus,
		tree:  tree,
		harts: harts,
	}
}

// Init clears the pending software interrupt of every hart on cold boot.
func (i *IPI) Init(coldBoot bool) error {
	if !coldBoot {
		return nil
	}

	_, reg, err := probe(i.tree, ipiCompat...)
	if err != nil {
		return err
	}

	i.base = reg.Base

	for _, h := range i.harts {
		i.Clear(h)
	}

	return nil
}

func (i *IPI) msip(hart uint32) uint64 {
	return i.base + 4*uint64(hart)
}

// Send raises a software interrupt on hart.
func (i *IPI) Send(hart uint32) {
	i.bus.Write32(i.msip(hart), 1)
}

// Clear acknowledges hart's software interrupt.
func (i *IPI) Clear(hart uint32) {
	i.bus.Write32(i.msip(hart), 0)
}

func (i *IPI) Exit() {}

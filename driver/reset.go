package driver

import (
	"fmt"

	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/sbi"
)

// ResetType selects what a system reset does.
type ResetType int

const (
	Shutdown ResetType = iota
	ColdReboot
	WarmReboot
)

const (
	finisherFail  = 0x3333
	finisherPass  = 0x5555
	finisherReset = 0x7777
)

var resetCompat = []string{"sifive,test1", "sifive,test0"}

// Reset drives the SiFive test finisher device.
type Reset struct {
	bus  Bus
	tree *devicetree.Tree

	base  uint64
	ready bool
}

func NewReset(bus Bus, tree *devicetree.Tree) *Reset {
	return &Reset{
		bus:  bus,
		tree: tree,
	}
}

// Init locates the finisher.
func (r *Reset) Init() error {
	_, reg, err := probe(r.tree, resetCompat...)
	if err != nil {
		return err
	}

	r.base, r.ready = reg.Base, true

	return nil
}

// Reset performs a system reset of kind t, on real hardware it does not
// return.
func (r *Reset) Reset(t ResetType) error {
	if !r.ready {
		return sbi.ErrNoDevice
	}

	switch t {
	case Shutdown:
		r.bus.Write32(r.base, finisherPass)
	case ColdReboot, WarmReboot:
		r.bus.Write32(r.base, finisherReset)
	default:
		return fmt.Errorf("reset type %d, %w", t, sbi.ErrInvalidParam)
	}

	return nil
}

// Fail reports a failed run with exit code code.
func (r *Reset) Fail(code uint16) error {
	if !r.ready {
		return sbi.ErrNoDevice
	}

	r.bus.Write32(r.base, uint32(code)<<16|finisherFail)

	return nil
}

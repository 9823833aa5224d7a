package driver

import (
	"fmt"

	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/sbi"
)

const (
	plicPriorityBase  = 0x0
	plicEnableBase    = 0x2000
	plicEnableStride  = 0x80
	plicContextBase   = 0x200000
	plicContextStride = 0x1000
)

var plicCompat = []string{"riscv,plic0", "sifive,plic-1.0.0"}

// PLIC is the platform level interrupt controller.
type PLIC struct {
	bus  Bus
	tree *devicetree.Tree

	base     uint64
	ndev     uint32
	contexts int
}

func NewPLIC(bus Bus, tree *devicetree.Tree) *PLIC {
	return &PLIC{
		bus:  bus,
		tree: tree,
	}
}

// Init masks every interrupt source on cold boot: all priorities and context
// enables are cleared, thresholds are set to zero.
func (p *PLIC) Init(coldBoot bool) error {
	if !coldBoot {
		return nil
	}

	n, reg, err := probe(p.tree, plicCompat...)
	if err != nil {
		return err
	}

	ndev, err := devicetree.U32Prop(n, "riscv,ndev")
	if err != nil {
		return fmt.Errorf("%s riscv,ndev, %w", n.Name, sbi.ErrInvalidParam)
	}

	irqs, err := devicetree.Cells(n, "interrupts-extended")
	if err != nil {
		return fmt.Errorf("%s interrupts-extended, %w", n.Name, sbi.ErrInvalidParam)
	}

	p.base, p.ndev, p.contexts = reg.Base, ndev, len(irqs)/2

	for src := uint32(1); src <= ndev; src++ {
		p.bus.Write32(p.base+plicPriorityBase+4*uint64(src), 0)
	}

	for ctx := 0; ctx < p.contexts; ctx++ {
		for word := uint32(0); word <= ndev/32; word++ {
			p.bus.Write32(p.enable(ctx)+4*uint64(word), 0)
		}

		p.bus.Write32(p.threshold(ctx), 0)
	}

	return nil
}

func (p *PLIC) enable(ctx int) uint64 {
	return p.base + plicEnableBase + uint64(ctx)*plicEnableStride
}

func (p *PLIC) threshold(ctx int) uint64 {
	return p.base + plicContextBase + uint64(ctx)*plicContextStride
}

// Sources returns the number of interrupt sources found at Init.
func (p *PLIC) Sources() uint32 {
	return p.ndev
}

func (p *PLIC) Exit() {}

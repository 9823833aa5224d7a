// Package fixup rewrites a devicetree so that it describes the machine as the
// next boot stage will see it, after firmware took its share.
package fixup

import (
	"errors"
	"fmt"

	"github.com/u-root/u-root/pkg/dt"
	"go.uber.org/multierr"

	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/sbi"
)

// ErrCells is returned when a node uses cell sizes a fixup cannot encode.
var ErrCells = errors.New("unsupported cell size")

const (
	irqMExt      = 11
	irqDisabled  = 0xffffffff
	reservedName = "reserved-memory"
)

var (
	plicCompat = []string{"riscv,plic0", "sifive,plic-1.0.0"}
	pmuCompat  = []string{"riscv,pmu"}
	pmuProps   = []string{
		"riscv,event-to-mhpmevent",
		"riscv,event-to-mhpmcounters",
		"riscv,raw-event-to-mhpmcounters",
	}
)

// Region is the memory firmware keeps for itself.
type Region struct {
	Base uint64
	Size uint64
}

// CPU disables every cpu node whose hart is not visible to the next stage.
func CPU(tree *devicetree.Tree, visible func(hart uint32) bool) error {
	cpus, ok := tree.PathNode("/cpus")
	if !ok {
		return fmt.Errorf("/cpus, %w", sbi.ErrNoEntry)
	}

	for _, cpu := range devicetree.Subnodes(cpus) {
		hart, err := devicetree.ParseHartID(cpu)
		if err != nil {
			continue
		}

		if hart >= sbi.HartMaskMaxBits || !visible(hart) {
			devicetree.Disable(cpu)
		}
	}

	return nil
}

// Devices applies the generic device fixups: interrupt controller, reserved
// memory and performance monitor.
func Devices(tree *devicetree.Tree, fw Region) error {
	return multierr.Combine(
		PLIC(tree),
		ReservedMemory(tree, fw),
		PMU(tree),
	)
}

// PLIC hides the M-mode external interrupt of every PLIC context from the
// next stage.
func PLIC(tree *devicetree.Tree) error {
	var err error

	for _, plic := range tree.FindCompatible(plicCompat...) {
		cells, cerr := devicetree.Cells(plic, "interrupts-extended")
		if cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%s, %w", plic.Name, cerr))
			continue
		}

		for i := 1; i < len(cells); i += 2 {
			if cells[i] == irqMExt {
				cells[i] = irqDisabled
			}
		}

		devicetree.SetProperty(plic, devicetree.U32("interrupts-extended", cells...))
	}

	return err
}

// ReservedMemory adds a no-map reservation covering fw under
// /reserved-memory, creating the node when needed.
func ReservedMemory(tree *devicetree.Tree, fw Region) error {
	if fw.Size == 0 {
		return nil
	}

	root := tree.Root()
	if root == nil {
		return fmt.Errorf("/, %w", sbi.ErrNoEntry)
	}

	parent, exists := tree.PathNode("/" + reservedName)
	if !exists {
		parent = root
	}

	ac, sc := devicetree.AddressCells(parent)

	reg, err := encodeReg(ac, sc, fw)
	if err != nil {
		return err
	}

	if !exists {
		parent = devicetree.Node(reservedName, []dt.Property{
			devicetree.U32("#address-cells", uint32(ac)),
			devicetree.U32("#size-cells", uint32(sc)),
			devicetree.Empty("ranges"),
		})
		devicetree.AddChild(root, parent)
	}

	name := fmt.Sprintf("mmode_resv0@%x", fw.Base)
	for _, c := range devicetree.Subnodes(parent) {
		if c.Name == name {
			return nil
		}
	}

	devicetree.AddChild(parent, devicetree.Node(name, []dt.Property{
		devicetree.U32("reg", reg...),
		devicetree.Empty("no-map"),
	}))

	return nil
}

func encodeReg(ac, sc int, fw Region) ([]uint32, error) {
	var reg []uint32
	for _, part := range []struct {
		cells int
		value uint64
	}{{ac, fw.Base}, {sc, fw.Size}} {
		switch part.cells {
		case 1:
			if part.value>>32 != 0 {
				return nil, fmt.Errorf("%#x in one cell, %w", part.value, ErrCells)
			}
			reg = append(reg, uint32(part.value))
		case 2:
			reg = append(reg, uint32(part.value>>32), uint32(part.value))
		default:
			return nil, fmt.Errorf("%d cells, %w", part.cells, ErrCells)
		}
	}

	return reg, nil
}

// PMU drops the event mappings only firmware uses.
func PMU(tree *devicetree.Tree) error {
	for _, pmu := range tree.FindCompatible(pmuCompat...) {
		for _, prop := range pmuProps {
			devicetree.DeleteProperty(pmu, prop)
		}
	}

	return nil
}

// Domain removes the domain configuration, which is firmware private.
func Domain(tree *devicetree.Tree) error {
	for _, cfg := range tree.FindCompatible("opensbi,domain,config") {
		parent, err := tree.Parent(cfg)
		if err != nil {
			return err
		}

		devicetree.DeleteChild(parent, cfg)
	}

	if cpus, ok := tree.PathNode("/cpus"); ok {
		for _, cpu := range devicetree.Subnodes(cpus) {
			devicetree.DeleteProperty(cpu, "opensbi-domain")
		}
	}

	return nil
}

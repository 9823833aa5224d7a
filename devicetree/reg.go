package devicetree

import (
	"fmt"

	"github.com/u-root/u-root/pkg/dt"
)

const (
	defaultAddressCells = 2
	defaultSizeCells    = 1
)

// Region is one (address, size) pair of a reg property.
type Region struct {
	Base uint64
	Size uint64
}

// AddressCells returns n's #address-cells and #size-cells, as seen by its
// children.
func AddressCells(n *dt.Node) (addr, size int) {
	addr, size = defaultAddressCells, defaultSizeCells

	if v, err := U32Prop(n, "#address-cells"); err == nil {
		addr = int(v)
	}

	if v, err := U32Prop(n, "#size-cells"); err == nil {
		size = int(v)
	}

	return
}

// Reg decodes n's reg property using its parent's cell sizes.
func (t *Tree) Reg(n *dt.Node) ([]Region, error) {
	parent, err := t.Parent(n)
	if err != nil {
		return nil, err
	}

	ac, sc := AddressCells(parent)
	if ac < 1 || ac > 2 || sc < 0 || sc > 2 {
		return nil, fmt.Errorf("%s cells %d/%d, %w", n.Name, ac, sc, ErrBadCells)
	}

	cells, err := Cells(n, "reg")
	if err != nil {
		return nil, err
	}

	stride := ac + sc
	if len(cells) == 0 || len(cells)%stride != 0 {
		return nil, fmt.Errorf("%s reg, %w", n.Name, ErrBadCells)
	}

	var regions []Region
	for i := 0; i < len(cells); i += stride {
		base, _ := joinCells("reg", cells[i:i+ac])

		var size uint64
		if sc > 0 {
			size, _ = joinCells("reg", cells[i+ac:i+stride])
		}

		regions = append(regions, Region{Base: base, Size: size})
	}

	return regions, nil
}

// FirstReg returns the first region of n's reg property.
func (t *Tree) FirstReg(n *dt.Node) (Region, error) {
	regs, err := t.Reg(n)
	if err != nil {
		return Region{}, err
	}

	return regs[0], nil
}

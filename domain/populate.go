package domain

import (
	"errors"
	"fmt"

	"github.com/u-root/u-root/pkg/dt"

	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/sbi"
)

const (
	compatConfig    = "opensbi,domain,config"
	compatInstance  = "opensbi,domain,instance"
	cpuDomainProp   = "opensbi-domain"
	minRegionOrder  = 3
	maxRegionOrder  = 64
	regionCellCount = 2
)

// Populate registers every domain instance described under the devicetree's
// domain configuration node and assigns cpus carrying an opensbi-domain
// reference. A tree without a configuration node, or an error, leaves r
// untouched.
func Populate(tree *devicetree.Tree, r *Registry) error {
	cfgs := tree.FindCompatible(compatConfig)
	if len(cfgs) == 0 {
		return nil
	}

	var domains []*Domain
	byPhandle := map[uint32]*Domain{}

	for _, n := range devicetree.Subnodes(cfgs[0]) {
		if !devicetree.Compatible(n, compatInstance) {
			continue
		}

		d, err := parseDomain(tree, n, r.Root())
		if err != nil {
			return fmt.Errorf("cannot parse domain %s, %w", n.Name, err)
		}

		domains = append(domains, d)

		if ph, err := devicetree.U32Prop(n, "phandle"); err == nil {
			byPhandle[ph] = d
		}
	}

	type assignment struct {
		hart uint32
		d    *Domain
	}

	var assignments []assignment

	if cpus, ok := tree.PathNode("/cpus"); ok {
		for _, cpu := range devicetree.Subnodes(cpus) {
			hart, err := devicetree.ParseHartID(cpu)
			if err != nil || hart >= sbi.HartMaskMaxBits || !devicetree.NodeIsEnabled(cpu) {
				continue
			}

			ph, err := devicetree.U32Prop(cpu, cpuDomainProp)
			if err != nil {
				continue
			}

			d, ok := byPhandle[ph]
			if !ok {
				return fmt.Errorf("%s references unknown domain %#x, %w", cpu.Name, ph, sbi.ErrInvalidParam)
			}

			if !d.Possible(hart) {
				return fmt.Errorf("hart %d not possible in domain %s, %w", hart, d.Name, sbi.ErrInvalidParam)
			}

			assignments = append(assignments, assignment{hart, d})
		}
	}

	if err := r.RegisterAll(domains...); err != nil {
		return err
	}

	for _, a := range assignments {
		if err := r.Assign(a.hart, a.d); err != nil {
			return err
		}
	}

	return nil
}

func parseDomain(tree *devicetree.Tree, n *dt.Node, root *Domain) (*Domain, error) {
	d := &Domain{
		Name: n.Name,
		Next: Next{
			Addr: root.Next.Addr,
			Arg1: root.Next.Arg1,
			Mode: ModeSupervisor,
		},
		SystemResetAllowed: devicetree.HasProperty(n, "system-reset-allowed"),
	}

	harts, err := phandleHarts(tree, n, "possible-harts")
	if err != nil {
		return nil, err
	}
	d.PossibleHarts = harts

	if d.Regions, err = parseRegions(tree, n); err != nil {
		return nil, err
	}

	d.BootHart = root.BootHart
	if len(d.PossibleHarts) > 0 {
		d.BootHart = d.PossibleHarts[0]
	}

	if devicetree.HasProperty(n, "boot-hart") {
		boot, err := phandleHarts(tree, n, "boot-hart")
		if err != nil {
			return nil, err
		}

		if len(boot) != 1 {
			return nil, fmt.Errorf("boot-hart, %w", sbi.ErrInvalidParam)
		}

		d.BootHart = boot[0]
	}

	if err := optionalU64(n, "next-arg1", &d.Next.Arg1); err != nil {
		return nil, err
	}

	if err := optionalU64(n, "next-addr", &d.Next.Addr); err != nil {
		return nil, err
	}

	if mode, err := devicetree.U32Prop(n, "next-mode"); err == nil {
		switch Mode(mode) {
		case ModeUser, ModeSupervisor:
			d.Next.Mode = Mode(mode)
		default:
			return nil, fmt.Errorf("next-mode %d, %w", mode, sbi.ErrInvalidParam)
		}
	} else if !errors.Is(err, devicetree.ErrNoProperty) {
		return nil, fmt.Errorf("next-mode, %w", sbi.ErrInvalidParam)
	}

	return d, nil
}

// phandleHarts resolves a list of cpu phandles to enabled, trackable hart ids.
func phandleHarts(tree *devicetree.Tree, n *dt.Node, prop string) ([]uint32, error) {
	phandles, err := devicetree.Cells(n, prop)
	if errors.Is(err, devicetree.ErrNoProperty) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%s, %w", prop, sbi.ErrInvalidParam)
	}

	var harts []uint32
	for _, ph := range phandles {
		cpu, ok := tree.ByPhandle(ph)
		if !ok {
			return nil, fmt.Errorf("%s phandle %#x, %w", prop, ph, sbi.ErrInvalidParam)
		}

		hart, err := devicetree.ParseHartID(cpu)
		if err != nil {
			return nil, fmt.Errorf("%s phandle %#x, %w", prop, ph, sbi.ErrInvalidParam)
		}

		if hart >= sbi.HartMaskMaxBits || !devicetree.NodeIsEnabled(cpu) {
			continue
		}

		harts = append(harts, hart)
	}

	return harts, nil
}

func parseRegions(tree *devicetree.Tree, n *dt.Node) ([]Region, error) {
	cells, err := devicetree.Cells(n, "regions")
	if errors.Is(err, devicetree.ErrNoProperty) {
		return nil, nil
	}

	if err != nil || len(cells)%regionCellCount != 0 {
		return nil, fmt.Errorf("regions, %w", sbi.ErrInvalidParam)
	}

	if len(cells)/regionCellCount > MaxRegions {
		return nil, fmt.Errorf("%d regions, %w", len(cells)/regionCellCount, sbi.ErrNoSpace)
	}

	var regions []Region
	for i := 0; i < len(cells); i += regionCellCount {
		mr, ok := tree.ByPhandle(cells[i])
		if !ok {
			return nil, fmt.Errorf("region phandle %#x, %w", cells[i], sbi.ErrInvalidParam)
		}

		r, err := parseMemregion(mr)
		if err != nil {
			return nil, err
		}

		r.Flags |= Flags(cells[i+1]) & AccessMask
		regions = append(regions, r)
	}

	return regions, nil
}

func parseMemregion(n *dt.Node) (Region, error) {
	base, err := devicetree.U64Prop(n, "base")
	if err != nil {
		return Region{}, fmt.Errorf("%s base, %w", n.Name, sbi.ErrInvalidParam)
	}

	order, err := devicetree.U32Prop(n, "order")
	if err != nil || order < minRegionOrder || order > maxRegionOrder {
		return Region{}, fmt.Errorf("%s order, %w", n.Name, sbi.ErrInvalidParam)
	}

	r := Region{Base: base, Order: order}
	if order < 64 && base&(r.Size()-1) != 0 {
		return Region{}, fmt.Errorf("%s base %#x not aligned to order %d, %w", n.Name, base, order, sbi.ErrInvalidParam)
	}

	if devicetree.HasProperty(n, "mmio") {
		r.Flags |= MMIO
	}

	return r, nil
}

func optionalU64(n *dt.Node, prop string, dst *uint64) error {
	v, err := devicetree.U64Prop(n, prop)
	if errors.Is(err, devicetree.ErrNoProperty) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("%s, %w", prop, sbi.ErrInvalidParam)
	}

	*dst = v

	return nil
}

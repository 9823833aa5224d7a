// Package driver holds the devicetree matched drivers the Quard-Star platform
// delegates console, interrupt, IPI, timer and reset setup to.
package driver

import (
	"fmt"

	"github.com/u-root/u-root/pkg/dt"

	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/sbi"
)

// Bus performs device register accesses.
type Bus interface {
	Read8(addr uint64) uint8
	Write8(addr uint64, val uint8)
	Read32(addr uint64) uint32
	Write32(addr uint64, val uint32)
}

// Driver is matched against devicetree nodes by compatible string.
type Driver interface {
	Name() string
	Compatible() []string
}

// Registry keeps track of the drivers available to a subsystem.
type Registry struct {
	drivers map[string]Driver
	compat  map[string]Driver
}

func NewRegistry() *Registry {
	return &Registry{
		drivers: map[string]Driver{},
		compat:  map[string]Driver{},
	}
}

// Register registers drivers into r.
// A driver whose name, or one of whose compatible strings, is already
// registered is rejected.
func (r *Registry) Register(drivers ...Driver) error {
	for _, d := range drivers {
		if _, exists := r.drivers[d.Name()]; exists {
			return fmt.Errorf("driver %s already registered, %w", d.Name(), sbi.ErrAlreadyAvailable)
		}

		for _, c := range d.Compatible() {
			if other, exists := r.compat[c]; exists {
				return fmt.Errorf("%s already handled by %s, %w", c, other.Name(), sbi.ErrAlreadyAvailable)
			}
		}

		r.drivers[d.Name()] = d

		for _, c := range d.Compatible() {
			r.compat[c] = d
		}
	}

	return nil
}

// Compatible returns every compatible string r handles.
func (r *Registry) Compatible() []string {
	var ret []string
	for c := range r.compat {
		ret = append(ret, c)
	}

	return ret
}

// Match returns the driver for n, honouring the order of n's compatible list.
func (r *Registry) Match(n *dt.Node) (Driver, bool) {
	for _, c := range devicetree.StringList(n, "compatible") {
		if d, ok := r.compat[c]; ok {
			return d, true
		}
	}

	return nil, false
}

// probe returns the first enabled node matching compat and its first register
// region.
func probe(tree *devicetree.Tree, compat ...string) (*dt.Node, devicetree.Region, error) {
	for _, n := range tree.FindCompatible(compat...) {
		if !devicetree.NodeIsEnabled(n) {
			continue
		}

		reg, err := tree.FirstReg(n)
		if err != nil {
			return nil, devicetree.Region{}, fmt.Errorf("%s, %v, %w", n.Name, err, sbi.ErrInvalidParam)
		}

		return n, reg, nil
	}

	return nil, devicetree.Region{}, fmt.Errorf("%v, %w", compat, sbi.ErrNoDevice)
}

func optionalU32(n *dt.Node, name string, def uint32) uint32 {
	if v, err := devicetree.U32Prop(n, name); err == nil {
		return v
	}

	return def
}

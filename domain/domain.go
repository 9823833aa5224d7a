// Package domain keeps track of the isolation domains harts are assigned to.
package domain

import (
	"fmt"

	"github.com/quard-star/platform/sbi"
)

const (
	// MaxDomains bounds the number of registered domains, root included.
	MaxDomains = 16

	// MaxRegions bounds the memory regions of a single domain.
	MaxRegions = 16

	// RootName is the name of the domain every hart starts in.
	RootName = "root"
)

// Flags describe how a domain may access a memory region.
type Flags uint32

const (
	Readable Flags = 1 << iota
	Writeable
	Executable
	MMode

	AccessMask Flags = 0xf
	MMIO       Flags = 1 << 31
)

// Mode is the privilege mode the next stage of a domain starts in.
type Mode uint32

const (
	ModeUser       Mode = 0
	ModeSupervisor Mode = 1
)

// Region is a naturally aligned power of two memory region.
type Region struct {
	Base  uint64
	Order uint32
	Flags Flags
}

// Size returns the region size, zero meaning the whole address space.
func (r Region) Size() uint64 {
	if r.Order >= 64 {
		return 0
	}

	return 1 << r.Order
}

// Contains reports whether addr falls within r.
func (r Region) Contains(addr uint64) bool {
	if r.Order >= 64 {
		return true
	}

	return addr >= r.Base && addr-r.Base < r.Size()
}

// Next describes where a domain's boot hart jumps once firmware is done.
type Next struct {
	Addr uint64
	Arg1 uint64
	Mode Mode
}

// Domain is an isolation domain.
type Domain struct {
	Name               string
	Index              int
	PossibleHarts      []uint32
	AssignedHarts      []uint32
	Regions            []Region
	BootHart           uint32
	Next               Next
	SystemResetAllowed bool
}

// Possible reports whether hart may be assigned to d.
func (d *Domain) Possible(hart uint32) bool {
	return contains(d.PossibleHarts, hart)
}

// Assigned reports whether hart currently runs in d.
func (d *Domain) Assigned(hart uint32) bool {
	return contains(d.AssignedHarts, hart)
}

// Registry holds the domains of a boot.
type Registry struct {
	domains    []*Domain
	hartDomain map[uint32]*Domain
}

// NewRegistry returns a registry whose root domain owns harts and may access
// all memory.
func NewRegistry(harts []uint32, bootHart uint32, next Next) *Registry {
	root := &Domain{
		Name:          RootName,
		PossibleHarts: append([]uint32(nil), harts...),
		AssignedHarts: append([]uint32(nil), harts...),
		Regions: []Region{
			{Base: 0, Order: 64, Flags: Readable | Writeable | Executable},
		},
		BootHart:           bootHart,
		Next:               next,
		SystemResetAllowed: true,
	}

	r := &Registry{
		domains:    []*Domain{root},
		hartDomain: map[uint32]*Domain{},
	}

	for _, h := range harts {
		r.hartDomain[h] = root
	}

	return r
}

// Root returns the root domain.
func (r *Registry) Root() *Domain {
	return r.domains[0]
}

// Domains returns the registered domains in registration order, root first.
func (r *Registry) Domains() []*Domain {
	return append([]*Domain(nil), r.domains...)
}

// Lookup returns the domain called name.
func (r *Registry) Lookup(name string) (*Domain, bool) {
	for _, d := range r.domains {
		if d.Name == name {
			return d, true
		}
	}

	return nil, false
}

// Register adds d to r.
func (r *Registry) Register(d *Domain) error {
	return r.RegisterAll(d)
}

// RegisterAll adds every domain of ds to r, or none of them.
func (r *Registry) RegisterAll(ds ...*Domain) error {
	names := map[string]bool{}
	for _, d := range r.domains {
		names[d.Name] = true
	}

	for _, d := range ds {
		if names[d.Name] {
			return fmt.Errorf("domain %s, %w", d.Name, sbi.ErrAlreadyAvailable)
		}
		names[d.Name] = true

		if len(d.Regions) > MaxRegions {
			return fmt.Errorf("domain %s has %d regions, %w", d.Name, len(d.Regions), sbi.ErrNoSpace)
		}
	}

	if len(r.domains)+len(ds) > MaxDomains {
		return fmt.Errorf("%d more domains, %w", len(ds), sbi.ErrNoSpace)
	}

	for _, d := range ds {
		d.Index = len(r.domains)
		d.AssignedHarts = nil
		r.domains = append(r.domains, d)
	}

	return nil
}

// Assign moves hart into d, d must list hart as possible.
func (r *Registry) Assign(hart uint32, d *Domain) error {
	if !d.Possible(hart) {
		return fmt.Errorf("hart %d not possible in domain %s, %w", hart, d.Name, sbi.ErrInvalidParam)
	}

	if prev, ok := r.hartDomain[hart]; ok {
		prev.AssignedHarts = remove(prev.AssignedHarts, hart)
	}

	d.AssignedHarts = append(d.AssignedHarts, hart)
	r.hartDomain[hart] = d

	return nil
}

// Of returns the domain hart is assigned to.
func (r *Registry) Of(hart uint32) (*Domain, bool) {
	d, ok := r.hartDomain[hart]
	return d, ok
}

// SameDomain reports whether harts a and b are assigned to the same domain.
func (r *Registry) SameDomain(a, b uint32) bool {
	da, ok := r.Of(a)
	if !ok {
		return false
	}

	db, ok := r.Of(b)

	return ok && da == db
}

func contains(harts []uint32, hart uint32) bool {
	for _, h := range harts {
		if h == hart {
			return true
		}
	}

	return false
}

func remove(harts []uint32, hart uint32) []uint32 {
	for i, h := range harts {
		if h == hart {
			return append(harts[:i], harts[i+1:]...)
		}
	}

	return harts
}

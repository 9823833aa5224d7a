// Package platform is the Quard-Star board support: it discovers harts and
// the board name from the boot devicetree and implements the lifecycle hooks
// the firmware core calls while bringing the machine up.
package platform

import (
	"bytes"

	"github.com/quard-star/platform/sbi"
)

const (
	// NameSize is the capacity of the descriptor name field, terminator
	// included.
	NameSize = 64

	// DefaultName is the compiled-in platform name.
	DefaultName = "Quard-Star"
)

// Version is the Quard-Star platform version.
var Version = sbi.Version(0x0, 0x01)

// Descriptor is what the firmware core reads to learn about the platform.
type Descriptor struct {
	FirmwareVersion uint32
	PlatformVersion uint32
	Features        uint64
	HartCount       uint32
	HartStackSize   uint32

	name [NameSize]byte
}

// DefaultDescriptor returns the descriptor as compiled in, before discovery.
func DefaultDescriptor() Descriptor {
	d := Descriptor{
		FirmwareVersion: sbi.FirmwareVersion,
		PlatformVersion: Version,
		Features:        sbi.PlatformDefaultFeatures,
		HartCount:       sbi.HartMaskMaxBits,
		HartStackSize:   sbi.DefaultHartStackSize,
	}
	copy(d.name[:], DefaultName)

	return d
}

// Name returns the platform name.
func (d Descriptor) Name() string {
	name := d.name[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	return string(name)
}

// setName replaces the name with at most NameSize-1 bytes of s, stopping at
// the first NUL.
func (d *Descriptor) setName(s []byte) {
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}

	if len(s) > NameSize-1 {
		s = s[:NameSize-1]
	}

	d.name = [NameSize]byte{}
	copy(d.name[:], s)
}

// HartTable maps hart indexes to hart ids, in discovery order.
type HartTable struct {
	ids   [sbi.HartMaskMaxBits]uint32
	count int
}

func (h *HartTable) add(id uint32) bool {
	if h.count == len(h.ids) {
		return false
	}

	h.ids[h.count] = id
	h.count++

	return true
}

// Len returns the number of discovered harts. Entries past Len are unused.
func (h *HartTable) Len() int {
	return h.count
}

// IDs returns the discovered hart ids in discovery order.
func (h *HartTable) IDs() []uint32 {
	ids := make([]uint32, h.count)
	copy(ids, h.ids[:h.count])

	return ids
}

// Index2ID returns the hart id at index i.
func (h *HartTable) Index2ID(i int) (uint32, bool) {
	if i < 0 || i >= h.count {
		return 0, false
	}

	return h.ids[i], true
}

// Index returns the index of hart id, if discovered.
func (h *HartTable) Index(id uint32) (int, bool) {
	for i := 0; i < h.count; i++ {
		if h.ids[i] == id {
			return i, true
		}
	}

	return 0, false
}

// Contains reports whether hart id was discovered.
func (h *HartTable) Contains(id uint32) bool {
	_, ok := h.Index(id)
	return ok
}

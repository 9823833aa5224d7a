package driver

import (
	"fmt"

	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/sbi"
)

type mtimerLayout struct {
	mtimecmp uint64
	mtime    uint64
}

var timerLayouts = map[string]mtimerLayout{
	"riscv,clint0":        {mtimecmp: 0x4000, mtime: 0xbff8},
	"sifive,clint0":       {mtimecmp: 0x4000, mtime: 0xbff8},
	"riscv,aclint-mtimer": {mtimecmp: 0x0000, mtime: 0x7ff8},
}

// Timer is the machine timer of a CLINT or ACLINT MTIMER device.
type Timer struct {
	bus   Bus
	tree  *devicetree.Tree
	harts []uint32

	base   uint64
	layout mtimerLayout
	freq   uint32
}

func NewTimer(bus Bus, tree *devicetree.Tree, harts []uint32) *Timer {
	return &Timer{
		bus:   bus,
		tree:  tree,
		harts: harts,
	}
}

// Init reads the timebase frequency and pushes every hart's compare register
// to the far future on cold boot.
func (t *Timer) Init(coldBoot bool) error {
	if !coldBoot {
		return nil
	}

	var compat []string
	for c := range timerLayouts {
		compat = append(compat, c)
	}

	n, reg, err := probe(t.tree, compat...)
	if err != nil {
		return err
	}

	cpus, ok := t.tree.PathNode("/cpus")
	if !ok {
		return fmt.Errorf("/cpus, %w", sbi.ErrNoEntry)
	}

	freq, err := devicetree.U32Prop(cpus, "timebase-frequency")
	if err != nil || freq == 0 {
		return fmt.Errorf("timebase-frequency, %w", sbi.ErrInvalidParam)
	}

	for _, c := range devicetree.StringList(n, "compatible") {
		if l, ok := timerLayouts[c]; ok {
			t.layout = l
			break
		}
	}

	t.base, t.freq = reg.Base, freq

	for _, h := range t.harts {
		t.SetCompare(h, ^uint64(0))
	}

	return nil
}

// Frequency returns the timebase frequency in Hz.
func (t *Timer) Frequency() uint32 {
	return t.freq
}

// SetCompare programs hart's mtimecmp. The high word is parked first so that
// no spurious interrupt fires between the two writes.
func (t *Timer) SetCompare(hart uint32, v uint64) {
	addr := t.base + t.layout.mtimecmp + 8*uint64(hart)

	t.bus.Write32(addr+4, 0xffffffff)
	t.bus.Write32(addr, uint32(v))
	t.bus.Write32(addr+4, uint32(v>>32))
}

// Value reads mtime.
func (t *Timer) Value() uint64 {
	addr := t.base + t.layout.mtime

	for {
		hi := t.bus.Read32(addr + 4)
		lo := t.bus.Read32(addr)

		if hi == t.bus.Read32(addr+4) {
			return uint64(hi)<<32 | uint64(lo)
		}
	}
}

func (t *Timer) Exit() {}

package platform

import (
	"errors"
	"fmt"
	"time"

	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/sbi"
)

var (
	ErrNoRoot = errors.New("devicetree root node not found")
	ErrNoCPUs = errors.New("devicetree /cpus node not found")
)

// WaitForInterrupt idles the hart once. FwPlatformInit calls it forever when
// discovery fails. The default sleeps so host tools can observe the halt,
// the firmware image installs a wfi instruction.
var WaitForInterrupt = func() {
	time.Sleep(10 * time.Millisecond)
}

// BootArgs are the a0-a4 registers at firmware entry. A0 is the boot hart
// id, A1 the devicetree address; the others are unused by this platform.
type BootArgs struct {
	HartID  uint64
	FDTAddr uint64
	Arg2    uint64
	Arg3    uint64
	Arg4    uint64
}

// Config is the outcome of discovery. It is built once on the boot hart and
// read-only afterwards.
type Config struct {
	Descriptor Descriptor
	Harts      HartTable
	BootHart   uint32
	FDTAddr    uint64

	tree *devicetree.Tree
}

// Tree returns the boot devicetree. It is shared by every hart and must not be
// modified; Clone it first.
func (c *Config) Tree() *devicetree.Tree {
	return c.tree
}

// Discover reads the board name and the enabled harts out of blob.
//
// CPU nodes whose hart id cannot be parsed, is not trackable or that are
// disabled are skipped without notice.
func Discover(args BootArgs, blob []byte) (*Config, error) {
	tree, err := devicetree.Load(blob)
	if err != nil {
		return nil, fmt.Errorf("%v, %w", err, ErrNoRoot)
	}

	root, ok := tree.PathNode("/")
	if !ok {
		return nil, ErrNoRoot
	}

	cfg := &Config{
		Descriptor: DefaultDescriptor(),
		BootHart:   uint32(args.HartID),
		FDTAddr:    args.FDTAddr,
		tree:       tree,
	}

	if model, ok := devicetree.Property(root, "model"); ok {
		cfg.Descriptor.setName(model)
	}

	cpus, ok := tree.PathNode("/cpus")
	if !ok {
		return nil, ErrNoCPUs
	}

	for _, cpu := range devicetree.Subnodes(cpus) {
		hartID, err := devicetree.ParseHartID(cpu)
		if err != nil {
			continue
		}

		if hartID >= sbi.HartMaskMaxBits {
			continue
		}

		if !devicetree.NodeIsEnabled(cpu) {
			continue
		}

		cfg.Harts.add(hartID)
	}

	cfg.Descriptor.HartCount = uint32(cfg.Harts.Len())

	return cfg, nil
}

// FwPlatformInit runs discovery on the boot hart, at firmware entry, and
// returns the devicetree address the rest of the boot uses, which is always
// args.FDTAddr as this platform does not relocate the blob.
//
// Without a readable root or /cpus node boot cannot continue: FwPlatformInit
// then never returns.
func FwPlatformInit(args BootArgs, blob []byte) (*Config, uint64) {
	cfg, err := Discover(args, blob)
	if err != nil {
		for {
			WaitForInterrupt()
		}
	}

	return cfg, args.FDTAddr
}

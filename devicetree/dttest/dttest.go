// Package dttest builds Quard-Star shaped devicetrees for tests.
package dttest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/u-root/u-root/pkg/dt"

	"github.com/quard-star/platform/devicetree"
)

const (
	Model        = "Quard-Star-Board"
	TimebaseFreq = 10000000
	UARTBase     = 0x10000000
	UARTClock    = 3686400
	CLINTBase    = 0x02000000
	CLINTSize    = 0x10000
	PLICBase     = 0x0c000000
	PLICSize     = 0x210000
	PLICNdev     = 53
	PLICPhandle  = 0x100
	TestBase     = 0x100000
	RAMBase      = 0x80000000
	RAMSize      = 0x40000000
)

// IntcPhandle is the phandle of hart's cpu interrupt controller.
func IntcPhandle(hart uint32) uint32 {
	return hart + 1
}

// CPUPhandle is the phandle of hart's cpu node.
func CPUPhandle(hart uint32) uint32 {
	return 0x80 + hart
}

// CPU returns a cpu node for hart with the given status, an empty status
// omits the property.
func CPU(hart uint32, status string) *dt.Node {
	props := []dt.Property{
		devicetree.String("device_type", "cpu"),
		devicetree.U32("reg", hart),
		devicetree.String("compatible", "riscv"),
		devicetree.String("riscv,isa", "rv64imafdcsu"),
		devicetree.String("mmu-type", "riscv,sv39"),
		devicetree.U32("phandle", CPUPhandle(hart)),
	}

	if status != "" {
		props = append(props, devicetree.String("status", status))
	}

	return devicetree.Node(fmt.Sprintf("cpu@%d", hart), props,
		devicetree.Node("interrupt-controller", []dt.Property{
			devicetree.U32("#interrupt-cells", 1),
			devicetree.Empty("interrupt-controller"),
			devicetree.String("compatible", "riscv,cpu-intc"),
			devicetree.U32("phandle", IntcPhandle(hart)),
		}),
	)
}

// CPUs returns a /cpus node holding cpus.
func CPUs(cpus ...*dt.Node) *dt.Node {
	return devicetree.Node("cpus", []dt.Property{
		devicetree.U32("#address-cells", 1),
		devicetree.U32("#size-cells", 0),
		devicetree.U32("timebase-frequency", TimebaseFreq),
	}, cpus...)
}

// Root returns a root node with model (omitted when empty) and children.
func Root(model string, children ...*dt.Node) *dt.Node {
	props := []dt.Property{
		devicetree.U32("#address-cells", 2),
		devicetree.U32("#size-cells", 2),
		devicetree.String("compatible", "riscv-quard-star"),
	}

	if model != "" {
		props = append(props, devicetree.String("model", model))
	}

	return devicetree.Node("", props, children...)
}

// SoC returns the Quard-Star peripherals wired to harts.
func SoC(harts int) *dt.Node {
	var clintIrqs, plicIrqs []uint32
	for i := 0; i < harts; i++ {
		ph := IntcPhandle(uint32(i))
		clintIrqs = append(clintIrqs, ph, 3, ph, 7)
		plicIrqs = append(plicIrqs, ph, 11, ph, 9)
	}

	return devicetree.Node("soc", []dt.Property{
		devicetree.U32("#address-cells", 2),
		devicetree.U32("#size-cells", 2),
		devicetree.Strings("compatible", "simple-bus"),
		devicetree.Empty("ranges"),
	},
		devicetree.Node(fmt.Sprintf("clint@%x", CLINTBase), []dt.Property{
			devicetree.Strings("compatible", "sifive,clint0", "riscv,clint0"),
			devicetree.U32("reg", 0, CLINTBase, 0, CLINTSize),
			devicetree.U32("interrupts-extended", clintIrqs...),
		}),
		devicetree.Node(fmt.Sprintf("plic@%x", PLICBase), []dt.Property{
			devicetree.U32("#interrupt-cells", 1),
			devicetree.Empty("interrupt-controller"),
			devicetree.Strings("compatible", "sifive,plic-1.0.0", "riscv,plic0"),
			devicetree.U32("reg", 0, PLICBase, 0, PLICSize),
			devicetree.U32("interrupts-extended", plicIrqs...),
			devicetree.U32("riscv,ndev", PLICNdev),
			devicetree.U32("phandle", PLICPhandle),
		}),
		devicetree.Node(fmt.Sprintf("uart0@%x", UARTBase), []dt.Property{
			devicetree.String("compatible", "ns16550a"),
			devicetree.U32("reg", 0, UARTBase, 0, 0x100),
			devicetree.U32("clock-frequency", UARTClock),
			devicetree.U32("interrupts", 10),
			devicetree.U32("interrupt-parent", PLICPhandle),
		}),
		devicetree.Node(fmt.Sprintf("test@%x", TestBase), []dt.Property{
			devicetree.Strings("compatible", "sifive,test1", "sifive,test0", "syscon"),
			devicetree.U32("reg", 0, TestBase, 0, 0x1000),
		}),
		devicetree.Node("pmu", []dt.Property{
			devicetree.String("compatible", "riscv,pmu"),
			devicetree.U32("riscv,event-to-mhpmevent", 0x00003, 0x00000000, 0x00001),
			devicetree.U32("riscv,event-to-mhpmcounters", 0x00001, 0x00001, 0x00000001),
			devicetree.U32("riscv,raw-event-to-mhpmcounters", 0, 0, 0xffffffff, 0xffffffff, 0x00000f8),
		}),
	)
}

// Board returns a complete Quard-Star devicetree with harts enabled cpus.
func Board(harts int) *dt.Node {
	var cpus []*dt.Node
	for i := 0; i < harts; i++ {
		cpus = append(cpus, CPU(uint32(i), "okay"))
	}

	return Root(Model,
		devicetree.Node("chosen", []dt.Property{
			devicetree.String("stdout-path", fmt.Sprintf("/soc/uart0@%x", UARTBase)),
		}),
		CPUs(cpus...),
		devicetree.Node(fmt.Sprintf("memory@%x", RAMBase), []dt.Property{
			devicetree.String("device_type", "memory"),
			devicetree.U32("reg", 0, RAMBase, 0, RAMSize),
		}),
		SoC(harts),
	)
}

// Blob encodes root into a flattened devicetree.
func Blob(t *testing.T, root *dt.Node) []byte {
	t.Helper()

	b, err := devicetree.New(root).Bytes()
	require.NoError(t, err)

	return b
}

// Tree encodes root and parses it back, so tests see what a firmware would.
func Tree(t *testing.T, root *dt.Node) *devicetree.Tree {
	t.Helper()

	tree, err := devicetree.Load(Blob(t, root))
	require.NoError(t, err)

	return tree
}

package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/u-root/u-root/pkg/dt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/devicetree/dttest"
	"github.com/quard-star/platform/domain"
	"github.com/quard-star/platform/driver"
	"github.com/quard-star/platform/fixup"
	"github.com/quard-star/platform/sbi"
)

var firmware = fixup.Region{Base: dttest.RAMBase, Size: 0x200000}

func boardDrivers(cfg *Config, bus driver.Bus, sh *driver.Semihosting) Drivers {
	tree := cfg.Tree()
	harts := cfg.Harts.IDs()

	return Drivers{
		Reset:       driver.NewReset(bus, tree),
		Serial:      driver.NewSerial(bus, tree),
		Semihosting: sh,
		Irqchip:     driver.NewPLIC(bus, tree),
		IPI:         driver.NewIPI(bus, tree, harts),
		Timer:       driver.NewTimer(bus, tree, harts),
	}
}

func observed() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return zap.New(core).Sugar(), logs
}

func encode(t *testing.T, tree *devicetree.Tree) []byte {
	t.Helper()

	b, err := tree.Bytes()
	require.NoError(t, err)

	return b
}

func warmBoot(t *testing.T, q *QuardStar) {
	t.Helper()

	require.NoError(t, q.EarlyInit(false))
	require.NoError(t, q.IrqchipInit(false))
	require.NoError(t, q.IPIInit(false))
	require.NoError(t, q.TimerInit(false))
	require.NoError(t, q.FinalInit(false))
}

func TestWarmBootDoesNotMutate(t *testing.T) {
	cfg := discover(t, dttest.Board(4))
	bus := driver.NewMemoryBus()
	q := New(cfg, boardDrivers(cfg, bus, &driver.Semihosting{}), nil, WithFirmware(firmware))

	descriptor, harts := cfg.Descriptor, cfg.Harts
	bootTree := encode(t, cfg.Tree())
	nextTree := encode(t, q.FDT())

	warmBoot(t, q)

	require.Empty(t, bus.Writes())
	require.Equal(t, descriptor, cfg.Descriptor)
	require.Equal(t, harts, cfg.Harts)
	require.Equal(t, bootTree, encode(t, cfg.Tree()))
	require.Equal(t, nextTree, encode(t, q.FDT()))
	require.Nil(t, q.Blob())
	require.Len(t, q.Domains().Domains(), 1)
}

func TestWarmBootAfterColdBoot(t *testing.T) {
	cfg := discover(t, dttest.Board(2))
	bus := driver.NewMemoryBus()
	bus.Preset(dttest.UARTBase+5, 0x20)
	q := New(cfg, boardDrivers(cfg, bus, &driver.Semihosting{}), nil, WithFirmware(firmware))

	require.NoError(t, q.EarlyInit(true))
	require.NoError(t, q.ConsoleInit())
	require.NoError(t, q.IrqchipInit(true))
	require.NoError(t, q.IPIInit(true))
	require.NoError(t, q.TimerInit(true))
	require.NoError(t, q.DomainsInit())
	require.NoError(t, q.FinalInit(true))
	require.NotEmpty(t, bus.Writes())

	blob := q.Blob()
	require.NotNil(t, blob)
	bus.Reset()

	warmBoot(t, q)

	require.Empty(t, bus.Writes())
	require.Equal(t, blob, q.Blob())
}

func TestColdBootWithoutDrivers(t *testing.T) {
	cfg := discover(t, dttest.Board(1))
	q := New(cfg, Drivers{}, nil)

	require.NoError(t, q.EarlyInit(true))
	require.ErrorIs(t, q.ConsoleInit(), sbi.ErrNoDevice)
	require.ErrorIs(t, q.IrqchipInit(true), sbi.ErrNoDevice)
	require.ErrorIs(t, q.IPIInit(true), sbi.ErrNoDevice)
	require.ErrorIs(t, q.TimerInit(true), sbi.ErrNoDevice)

	warmBoot(t, q)

	q.IrqchipExit()
	q.IPIExit()
	q.TimerExit()
	q.EarlyExit()
	q.FinalExit()
}

func TestColdBootDriverErrors(t *testing.T) {
	// no soc: every probe fails
	cfg := discover(t, dttest.Root("BoardX", dttest.CPUs(dttest.CPU(0, "okay"))))
	q := New(cfg, boardDrivers(cfg, driver.NewMemoryBus(), &driver.Semihosting{}), nil)

	require.ErrorIs(t, q.ConsoleInit(), sbi.ErrNoDevice)
	require.ErrorIs(t, q.IrqchipInit(true), sbi.ErrNoDevice)
	require.ErrorIs(t, q.IPIInit(true), sbi.ErrNoDevice)
	require.ErrorIs(t, q.TimerInit(true), sbi.ErrNoDevice)
}

func TestEarlyInitLogsResetFailure(t *testing.T) {
	cfg := discover(t, dttest.Root("BoardX", dttest.CPUs(dttest.CPU(0, "okay"))))
	log, logs := observed()
	q := New(cfg, boardDrivers(cfg, driver.NewMemoryBus(), nil), log)

	require.NoError(t, q.EarlyInit(true))
	require.Equal(t, 1, logs.FilterMessageSnippet("system reset init failed").Len())

	require.NoError(t, q.EarlyInit(false))
	require.Equal(t, 1, logs.Len())
}

type fakeConsole struct {
	calls int
	err   error
}

func (c *fakeConsole) Init() error {
	c.calls++
	return c.err
}

type fakeSemihosting struct {
	fakeConsole
	enabled bool
}

func (s *fakeSemihosting) Enabled() bool {
	return s.enabled
}

func TestConsoleInit(t *testing.T) {
	errSerial := errors.New("serial")
	errSemihosting := errors.New("semihosting")

	tests := []struct {
		name            string
		enabled         bool
		wantSerial      int
		wantSemihosting int
		wantErr         error
	}{
		{"semihosting", true, 0, 1, errSemihosting},
		{"serial", false, 1, 0, errSerial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := discover(t, dttest.Board(1))
			serial := &fakeConsole{err: errSerial}
			sh := &fakeSemihosting{fakeConsole: fakeConsole{err: errSemihosting}, enabled: tt.enabled}

			q := New(cfg, Drivers{Serial: serial, Semihosting: sh}, nil)

			require.Equal(t, tt.wantErr, q.ConsoleInit())
			require.Equal(t, tt.wantSerial, serial.calls)
			require.Equal(t, tt.wantSemihosting, sh.calls)
			require.Equal(t, 1, serial.calls+sh.calls)
		})
	}
}

func TestConsoleInitSemihostingDriver(t *testing.T) {
	cfg := discover(t, dttest.Board(1))
	bus := driver.NewMemoryBus()

	var out []byte
	sh := &driver.Semihosting{
		Probe: func() bool { return true },
		Call: func(op uint32, param uint64) int64 {
			if op == driver.SemihostingWriteC {
				out = append(out, byte(param))
			}
			return 0
		},
	}

	q := New(cfg, boardDrivers(cfg, bus, sh), nil)
	require.NoError(t, q.ConsoleInit())

	_, err := sh.Write([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, "hi", string(out))
	require.Empty(t, bus.Writes())
}

func TestFinalInit(t *testing.T) {
	cfg := discover(t, dttest.Board(3))

	// hart 1 runs in a domain of its own and is hidden from the boot hart's
	// next stage
	r := domain.NewRegistry(cfg.Harts.IDs(), cfg.BootHart, domain.Next{})
	other := &domain.Domain{Name: "other", PossibleHarts: []uint32{1}}
	require.NoError(t, r.Register(other))
	require.NoError(t, r.Assign(1, other))

	q := New(cfg, Drivers{}, nil, WithDomains(r), WithFirmware(firmware))
	require.NoError(t, q.FinalInit(true))

	next, err := devicetree.Load(q.Blob())
	require.NoError(t, err)

	var enabled []uint32
	cpus, ok := next.PathNode("/cpus")
	require.True(t, ok)
	for _, cpu := range devicetree.Subnodes(cpus) {
		hart, err := devicetree.ParseHartID(cpu)
		require.NoError(t, err)
		if devicetree.NodeIsEnabled(cpu) {
			enabled = append(enabled, hart)
		}
	}
	require.Equal(t, []uint32{0, 2}, enabled)

	resv, ok := next.PathNode("/reserved-memory/mmode_resv0@80000000")
	require.True(t, ok)
	require.True(t, devicetree.HasProperty(resv, "no-map"))

	pmu, ok := next.PathNode("/soc/pmu")
	require.True(t, ok)
	require.False(t, devicetree.HasProperty(pmu, "riscv,event-to-mhpmevent"))

	// the boot devicetree is left alone
	pmu, ok = cfg.Tree().PathNode("/soc/pmu")
	require.True(t, ok)
	require.True(t, devicetree.HasProperty(pmu, "riscv,event-to-mhpmevent"))
	_, ok = cfg.Tree().PathNode("/reserved-memory")
	require.False(t, ok)
}

func TestFinalInitScratch(t *testing.T) {
	cfg := discover(t, dttest.Board(1))
	scratch := cfg.Tree().Clone()

	q := New(cfg, Drivers{}, nil, WithScratch(func() *devicetree.Tree { return scratch }))
	require.NoError(t, q.FinalInit(true))

	require.Same(t, scratch, q.FDT())
	_, ok := scratch.PathNode("/soc/plic")
	require.True(t, ok)
	require.Equal(t, encode(t, scratch), q.Blob())
}

func TestFinalInitLogsFixupFailure(t *testing.T) {
	root := dttest.Board(1)
	devicetree.SetProperty(root, devicetree.U32("#address-cells", 3))

	cfg := discover(t, root)
	log, logs := observed()
	q := New(cfg, Drivers{}, log, WithFirmware(firmware))

	require.NoError(t, q.FinalInit(true))
	require.Equal(t, 1, logs.FilterMessageSnippet("devicetree fixup failed").Len())
	require.NotNil(t, q.Blob())

	next, err := devicetree.Load(q.Blob())
	require.NoError(t, err)
	_, ok := next.PathNode("/reserved-memory")
	require.False(t, ok)
}

func TestDomainsInit(t *testing.T) {
	root := dttest.Board(2)
	chosen := root.Children[0]
	devicetree.AddChild(chosen, devicetree.Node("opensbi-domains", []dt.Property{
		devicetree.String("compatible", "opensbi,domain,config"),
	},
		devicetree.Node("tdomain", []dt.Property{
			devicetree.String("compatible", "opensbi,domain,instance"),
			devicetree.U32("phandle", 0x300),
			devicetree.U32("possible-harts", dttest.CPUPhandle(1)),
		}),
	))
	devicetree.SetProperty(root.Children[1].Children[1], devicetree.U32("opensbi-domain", 0x300))

	cfg := discover(t, root)
	q := New(cfg, Drivers{}, nil)
	require.NoError(t, q.DomainsInit())

	d, ok := q.Domains().Lookup("tdomain")
	require.True(t, ok)
	require.Equal(t, []uint32{1}, d.AssignedHarts)
	require.False(t, q.Domains().SameDomain(0, 1))
}

func TestDomainsInitUnknownDomain(t *testing.T) {
	root := dttest.Board(2)
	devicetree.AddChild(root.Children[0], devicetree.Node("opensbi-domains", []dt.Property{
		devicetree.String("compatible", "opensbi,domain,config"),
	}))
	devicetree.SetProperty(root.Children[1].Children[1], devicetree.U32("opensbi-domain", 0x999))

	q := New(discover(t, root), Drivers{}, nil)
	require.ErrorIs(t, q.DomainsInit(), sbi.ErrInvalidParam)
}

func TestNilPointerDrivers(t *testing.T) {
	cfg := discover(t, dttest.Board(1))
	serial := &fakeConsole{}

	q := New(cfg, Drivers{
		Reset:       (*driver.Reset)(nil),
		Serial:      serial,
		Semihosting: (*fakeSemihosting)(nil),
		Irqchip:     (*driver.PLIC)(nil),
		IPI:         (*driver.IPI)(nil),
		Timer:       (*driver.Timer)(nil),
	}, nil)

	require.NoError(t, q.EarlyInit(true))
	require.NoError(t, q.ConsoleInit())
	require.Equal(t, 1, serial.calls)
	require.ErrorIs(t, q.IrqchipInit(true), sbi.ErrNoDevice)
	require.ErrorIs(t, q.IPIInit(true), sbi.ErrNoDevice)
	require.ErrorIs(t, q.TimerInit(true), sbi.ErrNoDevice)

	warmBoot(t, q)
	q.IrqchipExit()
	q.IPIExit()
	q.TimerExit()

	q = New(cfg, Drivers{Serial: (*driver.Serial)(nil)}, nil)
	require.ErrorIs(t, q.ConsoleInit(), sbi.ErrNoDevice)
}

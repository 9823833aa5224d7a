//go:build tamago && riscv64

package main

import (
	"bytes"
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/f-secure-foundry/GoTEE/monitor"
	"github.com/f-secure-foundry/armory-boot/exec"
	"go.uber.org/zap"

	"github.com/quard-star/platform/boot"
	"github.com/quard-star/platform/config"
	"github.com/quard-star/platform/driver"
	"github.com/quard-star/platform/platform"
)

var (
	// Build is a string which contains build user, host and date.
	Build string

	// Revision contains the git revision (last hash and/or tag).
	Revision string
)

// tamago brings up hart 0 only, the others stay parked.
const bootHart = 0

var reset *driver.Reset

func init() {
	l := logger()

	l.Infow("quard-star firmware started", "GOOS", runtime.GOOS, "GOARCH", runtime.GOARCH, "GOVERSION", runtime.Version(), "revision", Revision, "build", Build)
}

func main() {
	defer catchPanic()

	l := logger()

	build, err := config.Load(bytes.NewReader(buildYAML))
	notErr(err, l)
	notErr(build.Validate(), l)

	cfg, fdtAddr := platform.FwPlatformInit(platform.BootArgs{
		HartID:  bootHart,
		FDTAddr: BootFDTAddr,
	}, bootDevicetree())

	tree := cfg.Tree()
	harts := cfg.Harts.IDs()
	reset = driver.NewReset(bus, tree)

	qs := platform.New(cfg, platform.Drivers{
		Reset:  reset,
		Serial: driver.NewSerial(bus, tree),
		Semihosting: &driver.Semihosting{
			Probe: semihostingProbe,
			Call:  semihostingCall,
		},
		Irqchip: driver.NewPLIC(bus, tree),
		IPI:     driver.NewIPI(bus, tree, harts),
		Timer:   driver.NewTimer(bus, tree, harts),
	}, l, platform.WithFirmware(build.Firmware()))

	core := boot.New(cfg, qs, l)
	notErr(core.Boot(context.Background(), cfg.BootHart, true), l)

	l.Infow("platform ready",
		"name", cfg.Descriptor.Name(),
		"harts", harts,
		"fdt", fdtAddr,
	)

	next := qs.Blob()
	if len(next) > FDTMaxSize {
		l.Panicf("next stage devicetree too large (%d bytes)", len(next))
	}
	copy(memory(NextFDTAddr, len(next)), next)

	d, _ := qs.Domains().Of(cfg.BootHart)
	entry, err := boot.NextAddr(build.FWJumpAddr, d)
	notErr(err, l)

	runPayload(l, entry)

	core.Exit()
	resetBoard()
}

func runPayload(l *zap.SugaredLogger, start uint64) {
	image := &exec.ELFImage{
		Region: payloadRegion(start),
		ELF:    payloadELF,
	}

	notErr(image.Load(), l)

	stage, err := boot.Handoff(payloadELF, uint64(image.Entry()), NextFDTAddr)
	notErr(err, l)
	l.Info(stage.ForHart(bootHart).String())

	ctx, err := monitor.Load(image.Entry(), image.Region, false)
	notErr(err, l)

	ctx.Debug = true

	if err := ctx.Run(); err != nil {
		l.Errorf("payload stopped, %v", err)
	}
}

func resetBoard() {
	if err := reset.Reset(driver.Shutdown); err != nil {
		logger().Errorf("cannot reset, %v", err)
	}

	for {
		platform.WaitForInterrupt()
	}
}

// catchPanic catches every panic(), prints the stacktrace and shuts the
// board down.
func catchPanic() {
	l := logger()
	if r := recover(); r != nil {
		l.Errorf("panic: %v\n\n", r)
		l.Error(string(debug.Stack()))
		l.Warn("shutting down in 1 second...")

		time.Sleep(1 * time.Second)

		if reset != nil {
			_ = reset.Fail(1)
		}

		for {
			platform.WaitForInterrupt()
		}
	}
}

// since we're in a critical configuration phase, panic on error.
func notErr(e error, l *zap.SugaredLogger) {
	if e != nil {
		l.Panic(e)
	}
}

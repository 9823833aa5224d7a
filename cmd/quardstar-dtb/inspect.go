package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/quard-star/platform/boot"
	"github.com/quard-star/platform/config"
	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/driver"
	"github.com/quard-star/platform/platform"
)

// fdtLoadAddr is where a loader usually places the devicetree on Quard-Star.
const fdtLoadAddr = 0x87f00000

type report struct {
	cfg     *platform.Config
	build   config.Build
	domains []string
	next    []byte
	writes  []driver.Access
	booted  int
	verbose bool
}

func inspect(a args, l *zap.SugaredLogger) (*report, error) {
	blob, err := os.ReadFile(a.dtb)
	if err != nil {
		return nil, err
	}

	build, err := loadBuild(a)
	if err != nil {
		return nil, err
	}

	cfg, err := platform.Discover(platform.BootArgs{HartID: a.bootHart, FDTAddr: fdtLoadAddr}, blob)
	if err != nil {
		return nil, fmt.Errorf("cannot discover platform, %w", err)
	}

	bus := driver.NewMemoryBus()
	tree := cfg.Tree()

	// transmitter always empty
	for _, n := range tree.FindCompatible("ns16550a", "ns16550") {
		if reg, err := tree.FirstReg(n); err == nil {
			bus.Preset(reg.Base+5, 0x20)
		}
	}

	qs := platform.New(cfg, platform.Drivers{
		Reset:       driver.NewReset(bus, tree),
		Serial:      driver.NewSerial(bus, tree),
		Semihosting: &driver.Semihosting{},
		Irqchip:     driver.NewPLIC(bus, tree),
		IPI:         driver.NewIPI(bus, tree, cfg.Harts.IDs()),
		Timer:       driver.NewTimer(bus, tree, cfg.Harts.IDs()),
	}, l, platform.WithFirmware(build.Firmware()))

	r := &report{
		cfg:     cfg,
		build:   build,
		verbose: a.verbose,
	}

	core := boot.New(cfg, qs, l)

	if a.boot {
		if err := core.BootAll(context.Background()); err != nil {
			return nil, fmt.Errorf("dry boot failed, %w", err)
		}
		r.booted = core.Booted()
		r.writes = bus.Writes()
	} else {
		if err := qs.DomainsInit(); err != nil {
			return nil, fmt.Errorf("cannot populate domains, %w", err)
		}

		if err := qs.FinalInit(true); err != nil {
			return nil, err
		}
	}

	for _, d := range qs.Domains().Domains() {
		r.domains = append(r.domains, fmt.Sprintf("%s harts=%v next=%#x", d.Name, d.AssignedHarts, d.Next.Addr))
	}

	r.next = qs.Blob()

	if a.out != "" {
		if err := os.WriteFile(a.out, r.next, 0644); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func loadBuild(a args) (config.Build, error) {
	var src io.Reader

	if a.config != "" {
		data, err := os.ReadFile(a.config)
		if err != nil {
			return config.Build{}, err
		}
		src = bytes.NewReader(data)
	}

	b, err := config.Load(src, a.set...)
	if err != nil {
		return config.Build{}, err
	}

	return b, b.Validate()
}

func (r *report) print(w io.Writer, color bool) error {
	heading := func(s string) string {
		if color {
			return "\x1b[1;36m" + s + "\x1b[0m"
		}
		return s
	}

	d := r.cfg.Descriptor

	p := &printer{w: w}
	p.printf("%s\n", heading("platform"))
	p.printf("  name:           %s\n", d.Name())
	p.printf("  version:        %#x (firmware %#x)\n", d.PlatformVersion, d.FirmwareVersion)
	p.printf("  features:       %#x\n", d.Features)
	p.printf("  hart count:     %d\n", d.HartCount)
	p.printf("  hart stack:     %d\n", d.HartStackSize)
	p.printf("  harts:          %v\n", r.cfg.Harts.IDs())
	p.printf("  boot hart:      %d\n", r.cfg.BootHart)

	p.printf("%s\n", heading("build"))
	p.printf("  FW_TEXT_START:  %#x\n", r.build.FWTextStart)
	p.printf("  FW_SIZE:        %#x\n", r.build.FWSize)
	p.printf("  FW_JUMP_ADDR:   %#x\n", r.build.FWJumpAddr)
	p.printf("  objects:        %v\n", r.build.Objects)

	p.printf("%s\n", heading("domains"))
	for _, s := range r.domains {
		p.printf("  %s\n", s)
	}

	if r.booted > 0 {
		p.printf("%s\n", heading("dry boot"))
		p.printf("  harts booted:   %d\n", r.booted)
		p.printf("  mmio writes:    %d\n", len(r.writes))
		if r.verbose {
			for _, a := range r.writes {
				p.printf("    %#010x/%d <- %#x\n", a.Addr, a.Width, a.Value)
			}
		}
	}

	if r.next != nil {
		tree, err := devicetree.Load(r.next)
		if err != nil {
			return err
		}
		resv, _ := tree.PathNode("/reserved-memory")

		p.printf("%s\n", heading("next stage devicetree"))
		p.printf("  size:           %d\n", len(r.next))
		p.printf("  reservations:   %d\n", len(devicetree.Subnodes(resv)))
	}

	return p.err
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, a ...interface{}) {
	if p.err != nil {
		return
	}

	_, p.err = fmt.Fprintf(p.w, format, a...)
}

// Package boot drives the platform hooks the way the firmware core does:
// one cold boot hart initializes the system while the others wait, then every
// hart performs its own setup before jumping to the next stage.
package boot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quard-star/platform/platform"
	"github.com/quard-star/platform/sbi"
)

// PollInterval is how often a warm hart checks for cold boot completion.
var PollInterval = time.Millisecond

// Core sequences the platform hooks of a discovered configuration.
type Core struct {
	cfg *platform.Config
	ops platform.Operations
	log *zap.SugaredLogger

	coldDone atomic.Bool
	booted   atomic.Uint32
}

// New returns a Core driving ops for cfg.
func New(cfg *platform.Config, ops platform.Operations, log *zap.SugaredLogger) *Core {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Core{
		cfg: cfg,
		ops: ops,
		log: log,
	}
}

type step struct {
	name string
	run  func() error
}

func (c *Core) coldSteps() []step {
	return []step{
		{"early_init", func() error { return c.ops.EarlyInit(true) }},
		{"console_init", c.ops.ConsoleInit},
		{"irqchip_init", func() error { return c.ops.IrqchipInit(true) }},
		{"ipi_init", func() error { return c.ops.IPIInit(true) }},
		{"timer_init", func() error { return c.ops.TimerInit(true) }},
		{"domains_init", c.ops.DomainsInit},
		{"final_init", func() error { return c.ops.FinalInit(true) }},
	}
}

func (c *Core) warmSteps() []step {
	return []step{
		{"early_init", func() error { return c.ops.EarlyInit(false) }},
		{"irqchip_init", func() error { return c.ops.IrqchipInit(false) }},
		{"ipi_init", func() error { return c.ops.IPIInit(false) }},
		{"timer_init", func() error { return c.ops.TimerInit(false) }},
		{"final_init", func() error { return c.ops.FinalInit(false) }},
	}
}

// Boot runs the init hooks for hart. A warm hart first waits for the cold
// boot to complete, or for ctx to be done.
func (c *Core) Boot(ctx context.Context, hart uint32, coldBoot bool) error {
	if !c.cfg.Harts.Contains(hart) {
		return fmt.Errorf("hart %d, %w", hart, sbi.ErrInvalidParam)
	}

	steps := c.coldSteps()

	if !coldBoot {
		if err := c.waitColdBoot(ctx); err != nil {
			return fmt.Errorf("hart %d, %w", hart, err)
		}

		steps = c.warmSteps()
	}

	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("hart %d %s failed, %w", hart, s.name, err)
		}
	}

	c.booted.Inc()

	if coldBoot {
		c.log.Infof("cold boot done on hart %d", hart)
		c.coldDone.Store(true)
	} else {
		c.log.Debugf("warm boot done on hart %d", hart)
	}

	return nil
}

func (c *Core) waitColdBoot(ctx context.Context) error {
	if c.coldDone.Load() {
		return nil
	}

	t := time.NewTicker(PollInterval)
	defer t.Stop()

	for !c.coldDone.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	return nil
}

// BootAll boots every discovered hart concurrently, the boot hart cold and
// the others warm. It stops at the first failure.
func (c *Core) BootAll(ctx context.Context) error {
	if !c.cfg.Harts.Contains(c.cfg.BootHart) {
		return fmt.Errorf("boot hart %d not discovered, %w", c.cfg.BootHart, sbi.ErrInvalidParam)
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, hart := range c.cfg.Harts.IDs() {
		hart := hart
		g.Go(func() error {
			return c.Boot(ctx, hart, hart == c.cfg.BootHart)
		})
	}

	return g.Wait()
}

// ColdBootDone reports whether the cold boot hart completed its hooks.
func (c *Core) ColdBootDone() bool {
	return c.coldDone.Load()
}

// Booted returns the number of harts that completed their init hooks.
func (c *Core) Booted() int {
	return int(c.booted.Load())
}

// Exit runs the teardown hooks, in reverse init order.
func (c *Core) Exit() {
	c.ops.EarlyExit()
	c.ops.TimerExit()
	c.ops.IPIExit()
	c.ops.IrqchipExit()
	c.ops.FinalExit()

	c.log.Info("platform exit done")
}

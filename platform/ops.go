package platform

import (
	"reflect"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/domain"
	"github.com/quard-star/platform/fixup"
	"github.com/quard-star/platform/sbi"
)

// Operations are the platform hooks called by the firmware core. Hooks taking
// coldBoot run on every hart; the others only on the cold boot hart.
type Operations interface {
	EarlyInit(coldBoot bool) error
	FinalInit(coldBoot bool) error
	EarlyExit()
	FinalExit()
	DomainsInit() error
	ConsoleInit() error
	IrqchipInit(coldBoot bool) error
	IrqchipExit()
	IPIInit(coldBoot bool) error
	IPIExit()
	TimerInit(coldBoot bool) error
	TimerExit()
}

// Resetter probes the system reset device.
type Resetter interface {
	Init() error
}

// Console is a serial console.
type Console interface {
	Init() error
}

// Semihosting is the debugger console channel.
type Semihosting interface {
	Enabled() bool
	Init() error
}

// Subsystem is a per-hart device: interrupt controller, IPI or timer.
type Subsystem interface {
	Init(coldBoot bool) error
	Exit()
}

// Drivers are the devices the Quard-Star hooks delegate to. A nil field,
// or a nil pointer stored in one, means the device is absent.
type Drivers struct {
	Reset       Resetter
	Serial      Console
	Semihosting Semihosting
	Irqchip     Subsystem
	IPI         Subsystem
	Timer       Subsystem
}

// QuardStar implements the Quard-Star board hooks.
type QuardStar struct {
	cfg     *Config
	drivers Drivers
	log     *zap.SugaredLogger

	domains  *domain.Registry
	firmware fixup.Region
	scratch  func() *devicetree.Tree

	fdt  *devicetree.Tree
	blob []byte
}

var _ Operations = (*QuardStar)(nil)

// Option configures a QuardStar.
type Option func(*QuardStar)

// WithDomains sets the registry DomainsInit populates. By default every
// discovered hart belongs to the root domain only.
func WithDomains(r *domain.Registry) Option {
	return func(q *QuardStar) {
		q.domains = r
	}
}

// WithFirmware sets the memory region reserved for the firmware in the next
// stage devicetree.
func WithFirmware(fw fixup.Region) Option {
	return func(q *QuardStar) {
		q.firmware = fw
	}
}

// WithScratch sets the source of the devicetree handed to the next stage.
// By default it is a private copy of the boot devicetree.
func WithScratch(f func() *devicetree.Tree) Option {
	return func(q *QuardStar) {
		q.scratch = f
	}
}

// New returns the Quard-Star hooks for a discovered configuration.
func New(cfg *Config, drivers Drivers, log *zap.SugaredLogger, opts ...Option) *QuardStar {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	q := &QuardStar{
		cfg:     cfg,
		drivers: drivers,
		log:     log,
		fdt:     cfg.Tree().Clone(),
	}

	q.scratch = func() *devicetree.Tree {
		return q.fdt
	}

	for _, opt := range opts {
		opt(q)
	}

	if q.domains == nil {
		q.domains = domain.NewRegistry(cfg.Harts.IDs(), cfg.BootHart, domain.Next{})
	}

	return q
}

// Config returns the configuration the hooks were built for.
func (q *QuardStar) Config() *Config {
	return q.cfg
}

// Domains returns the domain registry.
func (q *QuardStar) Domains() *domain.Registry {
	return q.domains
}

// FDT returns the devicetree prepared for the next stage.
func (q *QuardStar) FDT() *devicetree.Tree {
	return q.scratch()
}

// Blob returns the next stage devicetree as encoded by the last cold
// FinalInit, or nil.
func (q *QuardStar) Blob() []byte {
	return q.blob
}

// EarlyInit probes the reset device on cold boot. A missing reset device is
// logged and boot goes on.
func (q *QuardStar) EarlyInit(coldBoot bool) error {
	if !coldBoot {
		return nil
	}

	if absent(q.drivers.Reset) {
		q.log.Warn("no system reset driver")
		return nil
	}

	if err := q.drivers.Reset.Init(); err != nil {
		q.log.Warnf("system reset init failed, %v", err)
	}

	return nil
}

// FinalInit prepares the next stage devicetree on cold boot: harts outside
// the boot hart domain are disabled, firmware memory is reserved and domain
// configuration is removed. Fixup failures are logged and boot goes on.
func (q *QuardStar) FinalInit(coldBoot bool) error {
	if !coldBoot {
		return nil
	}

	tree := q.scratch()

	err := multierr.Combine(
		fixup.CPU(tree, q.visible),
		fixup.Devices(tree, q.firmware),
		fixup.Domain(tree),
	)

	for _, e := range multierr.Errors(err) {
		q.log.Warnf("devicetree fixup failed, %v", e)
	}

	blob, err := tree.Bytes()
	if err != nil {
		q.log.Warnf("cannot encode devicetree, %v", err)
		return nil
	}

	q.blob = blob

	return nil
}

func (q *QuardStar) visible(hart uint32) bool {
	return q.cfg.Harts.Contains(hart) && q.domains.SameDomain(hart, q.cfg.BootHart)
}

func (q *QuardStar) EarlyExit() {}

func (q *QuardStar) FinalExit() {}

// DomainsInit populates the domain registry from the boot devicetree.
func (q *QuardStar) DomainsInit() error {
	return domain.Populate(q.cfg.Tree(), q.domains)
}

// ConsoleInit brings up the semihosting console when a debugger provides
// one, and the serial console otherwise.
func (q *QuardStar) ConsoleInit() error {
	if sh := q.drivers.Semihosting; !absent(sh) && sh.Enabled() {
		return sh.Init()
	}

	if absent(q.drivers.Serial) {
		return sbi.ErrNoDevice
	}

	return q.drivers.Serial.Init()
}

func (q *QuardStar) IrqchipInit(coldBoot bool) error {
	return initSubsystem(q.drivers.Irqchip, coldBoot)
}

func (q *QuardStar) IrqchipExit() {
	exitSubsystem(q.drivers.Irqchip)
}

func (q *QuardStar) IPIInit(coldBoot bool) error {
	return initSubsystem(q.drivers.IPI, coldBoot)
}

func (q *QuardStar) IPIExit() {
	exitSubsystem(q.drivers.IPI)
}

func (q *QuardStar) TimerInit(coldBoot bool) error {
	return initSubsystem(q.drivers.Timer, coldBoot)
}

func (q *QuardStar) TimerExit() {
	exitSubsystem(q.drivers.Timer)
}

func initSubsystem(s Subsystem, coldBoot bool) error {
	if absent(s) {
		if coldBoot {
			return sbi.ErrNoDevice
		}

		return nil
	}

	return s.Init(coldBoot)
}

func exitSubsystem(s Subsystem) {
	if !absent(s) {
		s.Exit()
	}
}

func absent(d interface{}) bool {
	if d == nil {
		return true
	}

	v := reflect.ValueOf(d)

	return v.Kind() == reflect.Ptr && v.IsNil()
}

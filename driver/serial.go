package driver

import (
	"fmt"
	"strings"

	"github.com/u-root/u-root/pkg/dt"

	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/sbi"
)

const defaultBaudrate = 115200

// uartParams is what a UART backend needs from its devicetree node.
type uartParams struct {
	base     uint64
	freq     uint32
	baudrate uint32
	regShift uint32
	regWidth uint32
}

type uartDriver interface {
	Driver
	setup(bus Bus, p uartParams) (port, error)
}

type port interface {
	putc(c byte)
}

// Serial is the devicetree described console.
type Serial struct {
	bus     Bus
	tree    *devicetree.Tree
	drivers *Registry
	port    port
}

// NewSerial returns a console probing tree over bus.
func NewSerial(bus Bus, tree *devicetree.Tree) *Serial {
	r := NewRegistry()
	if err := r.Register(uart8250{}, sifiveUART{}); err != nil {
		panic(err)
	}

	return &Serial{
		bus:     bus,
		tree:    tree,
		drivers: r,
	}
}

// Init picks the /chosen stdout-path device when a driver handles it, the
// first enabled compatible node otherwise, and programs it.
func (s *Serial) Init() error {
	n, ok := s.stdout()
	if !ok {
		var err error
		if n, _, err = probe(s.tree, s.drivers.Compatible()...); err != nil {
			return err
		}
	}

	d, _ := s.drivers.Match(n)

	reg, err := s.tree.FirstReg(n)
	if err != nil {
		return fmt.Errorf("%s, %v, %w", n.Name, err, sbi.ErrInvalidParam)
	}

	p, err := d.(uartDriver).setup(s.bus, uartParams{
		base:     reg.Base,
		freq:     optionalU32(n, "clock-frequency", 0),
		baudrate: optionalU32(n, "current-speed", defaultBaudrate),
		regShift: optionalU32(n, "reg-shift", 0),
		regWidth: optionalU32(n, "reg-io-width", 1),
	})
	if err != nil {
		return err
	}

	s.port = p

	return nil
}

func (s *Serial) stdout() (*dt.Node, bool) {
	path, ok := s.tree.PathNode("/chosen")
	if !ok {
		return nil, false
	}

	stdout, ok := devicetree.StringProp(path, "stdout-path")
	if !ok {
		return nil, false
	}

	if i := strings.IndexByte(stdout, ':'); i >= 0 {
		stdout = stdout[:i]
	}

	n, ok := s.tree.PathNode(stdout)
	if !ok || !devicetree.NodeIsEnabled(n) {
		return nil, false
	}

	if _, ok := s.drivers.Match(n); !ok {
		return nil, false
	}

	return n, true
}

// Write implements io.Writer on top of the initialized UART.
func (s *Serial) Write(p []byte) (int, error) {
	if s.port == nil {
		return 0, sbi.ErrNoDevice
	}

	for _, c := range p {
		s.port.putc(c)
	}

	return len(p), nil
}

// 8250 compatible UART.

const (
	uart8250RBR = 0
	uart8250THR = 0
	uart8250DLL = 0
	uart8250IER = 1
	uart8250DLM = 1
	uart8250FCR = 2
	uart8250LCR = 3
	uart8250MCR = 4
	uart8250LSR = 5
	uart8250SCR = 7

	uart8250LSRTHRE = 0x20
	uart8250LCRDLAB = 0x80
	uart8250LCR8N1  = 0x03
	uart8250FCRFIFO = 0x01
)

type uart8250 struct{}

func (uart8250) Name() string { return "uart8250" }

func (uart8250) Compatible() []string {
	return []string{"ns16550a", "ns16550", "snps,dw-apb-uart"}
}

func (uart8250) setup(bus Bus, p uartParams) (port, error) {
	if p.regWidth != 1 && p.regWidth != 4 {
		return nil, fmt.Errorf("reg-io-width %d, %w", p.regWidth, sbi.ErrInvalidParam)
	}

	u := &port8250{bus: bus, params: p}

	var div uint32
	if p.baudrate != 0 {
		div = (p.freq + 8*p.baudrate) / (16 * p.baudrate)
	}

	u.set(uart8250IER, 0)
	u.set(uart8250LCR, uart8250LCRDLAB)

	if div != 0 {
		u.set(uart8250DLL, div&0xff)
		u.set(uart8250DLM, (div>>8)&0xff)
	}

	u.set(uart8250LCR, uart8250LCR8N1)
	u.set(uart8250FCR, uart8250FCRFIFO)
	u.set(uart8250MCR, 0)
	u.get(uart8250LSR)
	u.get(uart8250RBR)
	u.set(uart8250SCR, 0)

	return u, nil
}

type port8250 struct {
	bus    Bus
	params uartParams
}

func (u *port8250) addr(reg uint32) uint64 {
	return u.params.base + uint64(reg<<u.params.regShift)
}

func (u *port8250) set(reg, val uint32) {
	if u.params.regWidth == 4 {
		u.bus.Write32(u.addr(reg), val)
		return
	}

	u.bus.Write8(u.addr(reg), uint8(val))
}

func (u *port8250) get(reg uint32) uint32 {
	if u.params.regWidth == 4 {
		return u.bus.Read32(u.addr(reg))
	}

	return uint32(u.bus.Read8(u.addr(reg)))
}

func (u *port8250) putc(c byte) {
	for u.get(uart8250LSR)&uart8250LSRTHRE == 0 {
	}

	u.set(uart8250THR, uint32(c))
}

// SiFive UART.

const (
	sifiveTXFIFO = 0x00
	sifiveTXCTRL = 0x08
	sifiveRXCTRL = 0x0c
	sifiveIE     = 0x10
	sifiveDIV    = 0x18

	sifiveTXFIFOFull = 1 << 31
	sifiveTXEN       = 1
	sifiveRXEN       = 1
)

type sifiveUART struct{}

func (sifiveUART) Name() string { return "sifive-uart" }

func (sifiveUART) Compatible() []string {
	return []string{"sifive,uart0"}
}

func (sifiveUART) setup(bus Bus, p uartParams) (port, error) {
	u := &portSifive{bus: bus, base: p.base}

	if p.baudrate != 0 && p.freq != 0 {
		div := (p.freq + p.baudrate - 1) / p.baudrate
		if div > 0 {
			div--
		}
		bus.Write32(p.base+sifiveDIV, div)
	}

	bus.Write32(p.base+sifiveIE, 0)
	bus.Write32(p.base+sifiveTXCTRL, sifiveTXEN)
	bus.Write32(p.base+sifiveRXCTRL, sifiveRXEN)

	return u, nil
}

type portSifive struct {
	bus  Bus
	base uint64
}

func (u *portSifive) putc(c byte) {
	for u.bus.Read32(u.base+sifiveTXFIFO)&sifiveTXFIFOFull != 0 {
	}

	u.bus.Write32(u.base+sifiveTXFIFO, uint32(c))
}

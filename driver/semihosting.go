package driver

import "github.com/quard-star/platform/sbi"

// Semihosting operation numbers.
const (
	SemihostingWriteC = 0x03
	SemihostingWrite0 = 0x04
	SemihostingReadC  = 0x07
	SemihostingExit   = 0x18
)

// Semihosting is a debugger backed console. Probe reports whether a debugger
// answers semihosting traps, Call issues one.
type Semihosting struct {
	Probe func() bool
	Call  func(op uint32, param uint64) int64

	ready bool
}

// Enabled reports whether a semihosting host is attached.
func (s *Semihosting) Enabled() bool {
	return s != nil && s.Probe != nil && s.Probe()
}

// Init binds the console to the semihosting host.
func (s *Semihosting) Init() error {
	if s.Call == nil {
		return sbi.ErrNoDevice
	}

	s.ready = true

	return nil
}

// Write sends p one character at a time.
func (s *Semihosting) Write(p []byte) (int, error) {
	if !s.ready {
		return 0, sbi.ErrNoDevice
	}

	for _, c := range p {
		s.Call(SemihostingWriteC, uint64(c))
	}

	return len(p), nil
}

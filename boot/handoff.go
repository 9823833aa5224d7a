package boot

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/quard-star/platform/domain"
)

var (
	ErrNoPayload  = errors.New("empty next stage payload")
	ErrNoNextAddr = errors.New("no next stage address")
)

// NextAddr returns where the next stage of d runs: the domain next-addr when
// set, the build jump address otherwise. A zero jump address means the
// firmware was built without one.
func NextAddr(jump uint64, d *domain.Domain) (uint64, error) {
	if d != nil && d.Next.Addr != 0 {
		return d.Next.Addr, nil
	}

	if jump == 0 {
		return 0, fmt.Errorf("set next-addr in the boot hart domain or FW_JUMP_ADDR, %w", ErrNoNextAddr)
	}

	return jump, nil
}

// NextStage describes the jump to the supervisor payload.
type NextStage struct {
	Addr   uint64
	Arg0   uint64
	Arg1   uint64
	Mode   domain.Mode
	Size   int
	Digest [blake2b.Size256]byte
}

// Handoff measures payload, to be loaded at addr and entered in supervisor
// mode with the devicetree address arg1.
func Handoff(payload []byte, addr uint64, arg1 uint64) (NextStage, error) {
	if len(payload) == 0 {
		return NextStage{}, ErrNoPayload
	}

	return NextStage{
		Addr:   addr,
		Arg1:   arg1,
		Mode:   domain.ModeSupervisor,
		Size:   len(payload),
		Digest: blake2b.Sum256(payload),
	}, nil
}

// ForHart returns the stage as entered by hart, which gets its id in a0.
func (n NextStage) ForHart(hart uint32) NextStage {
	n.Arg0 = uint64(hart)
	return n
}

func (n NextStage) String() string {
	return fmt.Sprintf("next stage %#x (%d bytes, blake2b-256 %s) a0=%#x a1=%#x mode=%d",
		n.Addr, n.Size, hex.EncodeToString(n.Digest[:]), n.Arg0, n.Arg1, n.Mode)
}

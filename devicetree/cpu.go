package devicetree

import (
	"fmt"
	"strings"

	"github.com/u-root/u-root/pkg/dt"
)

// ParseHartID returns the hart id of a cpu node. The node must have a
// device_type starting with "cpu" and a reg of at least one cell; for a two
// cell reg the low cell is the hart id.
func ParseHartID(n *dt.Node) (uint32, error) {
	devType, ok := StringProp(n, "device_type")
	if !ok || devType == "" || !strings.HasPrefix(devType, "cpu") {
		return 0, ErrNotCPU
	}

	reg, ok := Property(n, "reg")
	if !ok || len(reg) < 4 {
		return 0, fmt.Errorf("%s reg, %w", n.Name, ErrBadCells)
	}

	cells, err := Cells(n, "reg")
	if err != nil {
		return 0, err
	}

	if len(cells) > 1 {
		return cells[1], nil
	}

	return cells[0], nil
}

// NodeIsEnabled reports whether n has no status, or a status of "okay" or "ok".
func NodeIsEnabled(n *dt.Node) bool {
	status, ok := StringProp(n, "status")
	if !ok {
		return true
	}

	return status == "okay" || status == "ok"
}

// Disable marks n as disabled.
func Disable(n *dt.Node) {
	SetProperty(n, String("status", "disabled"))
}

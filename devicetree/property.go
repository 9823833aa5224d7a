package devicetree

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/u-root/u-root/pkg/dt"
)

// Property returns the raw value of the named property.
func Property(n *dt.Node, name string) ([]byte, bool) {
	if n == nil {
		return nil, false
	}

	p, ok := lookProperty(n, name)
	if !ok {
		return nil, false
	}

	return p.Value, true
}

func lookProperty(n *dt.Node, name string) (*dt.Property, bool) {
	for i := range n.Properties {
		if n.Properties[i].Name == name {
			return &n.Properties[i], true
		}
	}

	return nil, false
}

// HasProperty reports whether n carries the named property.
func HasProperty(n *dt.Node, name string) bool {
	_, ok := Property(n, name)
	return ok
}

// StringProp returns the named property up to its first NUL byte.
func StringProp(n *dt.Node, name string) (string, bool) {
	v, ok := Property(n, name)
	if !ok {
		return "", false
	}

	if i := bytes.IndexByte(v, 0); i >= 0 {
		v = v[:i]
	}

	return string(v), true
}

// StringList returns every NUL separated string of the named property.
func StringList(n *dt.Node, name string) []string {
	v, ok := Property(n, name)
	if !ok {
		return nil
	}

	var ret []string
	for _, s := range bytes.Split(bytes.TrimRight(v, "\x00"), []byte{0}) {
		ret = append(ret, string(s))
	}

	return ret
}

// Compatible reports whether any entry of n's compatible list is in compat.
func Compatible(n *dt.Node, compat ...string) bool {
	for _, have := range StringList(n, "compatible") {
		for _, want := range compat {
			if have == want {
				return true
			}
		}
	}

	return false
}

// Cells decodes the named property as big endian 32-bit cells.
func Cells(n *dt.Node, name string) ([]uint32, error) {
	v, ok := Property(n, name)
	if !ok {
		return nil, fmt.Errorf("%s, %w", name, ErrNoProperty)
	}

	if len(v)%4 != 0 {
		return nil, fmt.Errorf("%s is %d bytes long, %w", name, len(v), ErrBadCells)
	}

	cells := make([]uint32, len(v)/4)
	for i := range cells {
		cells[i] = binary.BigEndian.Uint32(v[i*4:])
	}

	return cells, nil
}

// U32Prop reads a single cell property.
func U32Prop(n *dt.Node, name string) (uint32, error) {
	if n == nil {
		return 0, fmt.Errorf("%s, %w", name, ErrNoProperty)
	}

	p, ok := lookProperty(n, name)
	if !ok {
		return 0, fmt.Errorf("%s, %w", name, ErrNoProperty)
	}

	return p.AsU32()
}

// U64Prop reads a one or two cell property.
func U64Prop(n *dt.Node, name string) (uint64, error) {
	cells, err := Cells(n, name)
	if err != nil {
		return 0, err
	}

	return joinCells(name, cells)
}

func joinCells(name string, cells []uint32) (uint64, error) {
	switch len(cells) {
	case 1:
		return uint64(cells[0]), nil
	case 2:
		return uint64(cells[0])<<32 | uint64(cells[1]), nil
	default:
		return 0, fmt.Errorf("%s has %d cells, %w", name, len(cells), ErrBadCells)
	}
}

// Node returns a new node carrying props and children.
func Node(name string, props []dt.Property, children ...*dt.Node) *dt.Node {
	return &dt.Node{
		Name:       name,
		Properties: props,
		Children:   children,
	}
}

// String returns a NUL terminated string property.
func String(name, value string) dt.Property {
	return dt.Property{
		Name:  name,
		Value: append([]byte(value), 0),
	}
}

// Strings returns a string list property.
func Strings(name string, values ...string) dt.Property {
	var b bytes.Buffer
	for _, v := range values {
		b.WriteString(v)
		b.WriteByte(0)
	}

	return dt.Property{
		Name:  name,
		Value: b.Bytes(),
	}
}

// U32 returns a cell array property.
func U32(name string, values ...uint32) dt.Property {
	v := make([]byte, 4*len(values))
	for i, c := range values {
		binary.BigEndian.PutUint32(v[i*4:], c)
	}

	return dt.Property{
		Name:  name,
		Value: v,
	}
}

// U64 returns a two cell property.
func U64(name string, value uint64) dt.Property {
	return U32(name, uint32(value>>32), uint32(value))
}

// Empty returns a boolean property.
func Empty(name string) dt.Property {
	return dt.Property{
		Name:  name,
		Value: []byte{},
	}
}

// SetProperty replaces the property with the same name, or appends p.
func SetProperty(n *dt.Node, p dt.Property) {
	for i := range n.Properties {
		if n.Properties[i].Name == p.Name {
			n.Properties[i].Value = p.Value
			return
		}
	}

	n.Properties = append(n.Properties, p)
}

// DeleteProperty removes the named property and reports whether it existed.
func DeleteProperty(n *dt.Node, name string) bool {
	for i := range n.Properties {
		if n.Properties[i].Name == name {
			n.Properties = append(n.Properties[:i], n.Properties[i+1:]...)
			return true
		}
	}

	return false
}

// AddChild appends c to n's children.
func AddChild(n *dt.Node, c *dt.Node) {
	n.Children = append(n.Children, c)
}

// DeleteChild removes c from n's children and reports whether it was there.
func DeleteChild(n *dt.Node, c *dt.Node) bool {
	for i := range n.Children {
		if n.Children[i] == c {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}

	return false
}

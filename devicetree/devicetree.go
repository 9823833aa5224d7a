// Package devicetree wraps the u-root flattened devicetree codec with the
// lookups platform code needs during boot.
package devicetree

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/u-root/u-root/pkg/dt"
)

const (
	magic           = 0xd00dfeed
	version         = 17
	lastCompVersion = 16
)

var (
	ErrNoProperty = errors.New("property not found")
	ErrBadCells   = errors.New("malformed cell property")
	ErrNotCPU     = errors.New("node is not a cpu")
	ErrNoParent   = errors.New("node has no parent")
)

// Tree is a parsed devicetree blob.
type Tree struct {
	fdt *dt.FDT
}

// Load parses a flattened devicetree blob.
func Load(blob []byte) (*Tree, error) {
	fdt, err := dt.ReadFDT(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("cannot read devicetree, %w", err)
	}

	return &Tree{fdt: fdt}, nil
}

// New returns a tree rooted at root.
func New(root *dt.Node) *Tree {
	return &Tree{
		fdt: &dt.FDT{
			Header: dt.Header{
				Magic:           magic,
				Version:         version,
				LastCompVersion: lastCompVersion,
			},
			RootNode: root,
		},
	}
}

// Bytes encodes t back into a flattened blob.
func (t *Tree) Bytes() ([]byte, error) {
	var b bytes.Buffer
	if _, err := t.fdt.Write(&b); err != nil {
		return nil, fmt.Errorf("cannot encode devicetree, %w", err)
	}

	return b.Bytes(), nil
}

// Clone returns a deep copy of t, later changes to either tree are not
// visible in the other.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		fdt: &dt.FDT{
			Header:   t.fdt.Header,
			RootNode: cloneNode(t.fdt.RootNode),
		},
	}
	c.fdt.ReserveEntries = append(c.fdt.ReserveEntries, t.fdt.ReserveEntries...)

	return c
}

func cloneNode(n *dt.Node) *dt.Node {
	if n == nil {
		return nil
	}

	c := &dt.Node{Name: n.Name}
	for _, p := range n.Properties {
		c.Properties = append(c.Properties, dt.Property{
			Name:  p.Name,
			Value: append([]byte(nil), p.Value...),
		})
	}

	for _, child := range n.Children {
		c.Children = append(c.Children, cloneNode(child))
	}

	return c
}

// Root returns the root node, nil for an empty tree.
func (t *Tree) Root() *dt.Node {
	return t.fdt.RootNode
}

// PathNode resolves an absolute path such as "/cpus" or "/soc/serial@10000000".
// A segment without a unit address also matches a node that has one.
func (t *Tree) PathNode(path string) (*dt.Node, bool) {
	n := t.Root()
	if n == nil || !strings.HasPrefix(path, "/") {
		return nil, false
	}

	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}

		if n = child(n, seg); n == nil {
			return nil, false
		}
	}

	return n, true
}

func child(n *dt.Node, name string) *dt.Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}

	if strings.Contains(name, "@") {
		return nil
	}

	for _, c := range n.Children {
		if UnitName(c.Name) == name {
			return c
		}
	}

	return nil
}

// UnitName strips the unit address from a node name.
func UnitName(name string) string {
	if i := strings.IndexByte(name, '@'); i >= 0 {
		return name[:i]
	}

	return name
}

// Subnodes returns the immediate children of n in document order.
func Subnodes(n *dt.Node) []*dt.Node {
	if n == nil {
		return nil
	}

	return n.Children
}

// Parent returns the parent of n.
func (t *Tree) Parent(n *dt.Node) (*dt.Node, error) {
	var parent *dt.Node

	var find func(*dt.Node) bool
	find = func(cur *dt.Node) bool {
		for _, c := range cur.Children {
			if c == n {
				parent = cur
				return true
			}

			if find(c) {
				return true
			}
		}

		return false
	}

	if root := t.Root(); root == nil || !find(root) {
		return nil, fmt.Errorf("%s, %w", n.Name, ErrNoParent)
	}

	return parent, nil
}

// Walk visits every node in document order.
func (t *Tree) Walk(f func(*dt.Node) error) error {
	root := t.Root()
	if root == nil {
		return nil
	}

	return root.Walk(f)
}

// FindCompatible returns every node, in document order, whose compatible
// list contains one of compat.
func (t *Tree) FindCompatible(compat ...string) []*dt.Node {
	var found []*dt.Node

	_ = t.Walk(func(n *dt.Node) error {
		if Compatible(n, compat...) {
			found = append(found, n)
		}

		return nil
	})

	return found
}

// ByPhandle returns the node carrying phandle ph.
func (t *Tree) ByPhandle(ph uint32) (*dt.Node, bool) {
	var found *dt.Node

	errFound := errors.New("found")
	_ = t.Walk(func(n *dt.Node) error {
		for _, name := range []string{"phandle", "linux,phandle"} {
			if v, err := U32Prop(n, name); err == nil && v == ph {
				found = n
				return errFound
			}
		}

		return nil
	})

	return found, found != nil
}

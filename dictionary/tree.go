// Package dictionary implements the translation dictionary model used by
// ngxkit: a nested JSON tree of translation texts, its flattened key-path
// projection, and a deterministic serializer.
//
// The expected file format is an ngx-translate style JSON document:
//
//	{
//	    "greet": "Hello {{ name }}",
//	    "nav": {
//	        "self": "Navigation",
//	        "home": "Home"
//	    }
//	}
//
// A node is either a leaf (translation text) or a branch (nested mapping).
// When a key needs both a value and children, the value lives in the
// reserved child segment "self".
package dictionary

import "strings"

// Self is the reserved segment holding a branch's own value.
const Self = "self"

// Separator joins key path segments.
const Separator = "."

// Node is either a Leaf or a *Branch.
type Node interface {
	node()
}

// Leaf is a translation value.
type Leaf struct {
	// Value is the translation text. For literal leaves it holds the
	// compact JSON text of the original value (number, boolean, null, array).
	Value string
	// literal marks values that were not JSON strings in the source file;
	// they are written back verbatim.
	literal bool
}

func (Leaf) node() {}

// Text returns a string leaf.
func Text(value string) Leaf {
	return Leaf{Value: value}
}

// Literal returns a leaf written verbatim as JSON (e.g. "42", "true").
func Literal(raw string) Leaf {
	return Leaf{Value: raw, literal: true}
}

// IsLiteral reports whether the leaf holds a non-string JSON value.
func (l Leaf) IsLiteral() bool {
	return l.literal
}

// Branch is a mapping from segment names to nodes. It remembers the order
// in which keys were first added, which is the dictionary iteration order.
type Branch struct {
	keys     []string
	children map[string]Node
}

func (*Branch) node() {}

// NewBranch returns an empty branch.
func NewBranch() *Branch {
	return &Branch{children: make(map[string]Node)}
}

// Len returns the number of direct children.
func (b *Branch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

// Keys returns the child names in insertion order.
func (b *Branch) Keys() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

// Get returns the child stored under name.
func (b *Branch) Get(name string) (Node, bool) {
	if b == nil {
		return nil, false
	}
	n, ok := b.children[name]
	return n, ok
}

// Set stores n under name. Replacing an existing child keeps its position.
func (b *Branch) Set(name string, n Node) {
	if b.children == nil {
		b.children = make(map[string]Node)
	}
	if _, ok := b.children[name]; !ok {
		b.keys = append(b.keys, name)
	}
	b.children[name] = n
}

// Clone returns a deep copy of the branch.
func (b *Branch) Clone() *Branch {
	out := NewBranch()
	if b == nil {
		return out
	}
	for _, k := range b.keys {
		switch n := b.children[k].(type) {
		case *Branch:
			out.Set(k, n.Clone())
		case Leaf:
			out.Set(k, n)
		}
	}
	return out
}

// Insert stores value under the dot-joined key and returns the key the value
// was actually stored at.
//
// An existing leaf on the way down is demoted into a "self" child of a new
// branch. When the terminal segment already holds a branch, the value goes
// into its "self" child and the returned key carries the ".self" suffix.
// An existing leaf at the terminal segment is overwritten.
func (b *Branch) Insert(key, value string) string {
	return b.InsertLeaf(key, Text(value))
}

// InsertLeaf is Insert for an arbitrary leaf, literal or text.
func (b *Branch) InsertLeaf(key string, l Leaf) string {
	segments := strings.Split(key, Separator)
	ref := b
	for _, seg := range segments[:len(segments)-1] {
		ref = ref.descend(seg)
	}

	last := segments[len(segments)-1]
	if child, ok := ref.children[last].(*Branch); ok {
		child.Set(Self, l)
		return key + Separator + Self
	}
	ref.Set(last, l)
	return key
}

// descend returns the branch stored under seg, creating it or demoting an
// existing leaf into its "self" child as needed.
func (b *Branch) descend(seg string) *Branch {
	switch n := b.children[seg].(type) {
	case *Branch:
		return n
	case Leaf:
		nb := NewBranch()
		nb.Set(Self, n)
		b.Set(seg, nb)
		return nb
	default:
		nb := NewBranch()
		b.Set(seg, nb)
		return nb
	}
}

// Lookup resolves a dot-joined key to a leaf.
func (b *Branch) Lookup(key string) (Leaf, bool) {
	ref := b
	segments := strings.Split(key, Separator)
	for i, seg := range segments {
		n, ok := ref.Get(seg)
		if !ok {
			return Leaf{}, false
		}
		switch v := n.(type) {
		case Leaf:
			if i == len(segments)-1 {
				return v, true
			}
			return Leaf{}, false
		case *Branch:
			ref = v
		}
	}
	return Leaf{}, false
}

// Equal reports whether two nodes are structurally equal. Key order is
// ignored.
func Equal(a, b Node) bool {
	switch x := a.(type) {
	case Leaf:
		y, ok := b.(Leaf)
		return ok && x == y
	case *Branch:
		y, ok := b.(*Branch)
		if !ok || x.Len() != y.Len() {
			return false
		}
		if x == nil || y == nil {
			return true
		}
		for _, k := range x.keys {
			other, ok := y.children[k]
			if !ok || !Equal(x.children[k], other) {
				return false
			}
		}
		return true
	}
	return a == nil && b == nil
}

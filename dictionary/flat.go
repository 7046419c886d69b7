package dictionary

// Flat is the flattened projection of a tree: dot-joined key paths mapped
// to translation texts, in dictionary iteration order.
type Flat struct {
	keys   []string
	values map[string]string
	// literals holds the keys whose value is raw JSON rather than text.
	literals map[string]bool
}

// NewFlat returns an empty flat dictionary.
func NewFlat() *Flat {
	return &Flat{values: make(map[string]string)}
}

// Set stores value under key. Replacing an existing key keeps its position.
func (f *Flat) Set(key, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
	delete(f.literals, key)
}

// SetLeaf stores a leaf under key, keeping whether it is a literal.
func (f *Flat) SetLeaf(key string, l Leaf) {
	f.Set(key, l.Value)
	if l.literal {
		if f.literals == nil {
			f.literals = make(map[string]bool)
		}
		f.literals[key] = true
	}
}

// Leaf returns the leaf stored under key.
func (f *Flat) Leaf(key string) (Leaf, bool) {
	v, ok := f.Get(key)
	if !ok {
		return Leaf{}, false
	}
	return Leaf{Value: v, literal: f.literals[key]}, true
}

// Get returns the value stored under key.
func (f *Flat) Get(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f.values[key]
	return v, ok
}

// Has reports whether key exists.
func (f *Flat) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// Keys returns the keys in dictionary order.
func (f *Flat) Keys() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Len returns the number of keys.
func (f *Flat) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Map returns a copy of the key/value pairs.
func (f *Flat) Map() map[string]string {
	out := make(map[string]string, f.Len())
	if f == nil {
		return out
	}
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Flatten projects a tree into a flat dictionary. A nil or empty root
// yields an empty dictionary.
func Flatten(root *Branch) *Flat {
	flat := NewFlat()
	flattenInto(flat, root, "")
	return flat
}

func flattenInto(flat *Flat, b *Branch, prefix string) {
	if b == nil {
		return
	}
	for _, k := range b.keys {
		path := k
		if prefix != "" {
			path = prefix + Separator + k
		}
		switch n := b.children[k].(type) {
		case *Branch:
			flattenInto(flat, n, path)
		case Leaf:
			flat.SetLeaf(path, n)
		}
	}
}

// Unflatten rebuilds a tree from a flat dictionary using the Insert rule.
func Unflatten(flat *Flat) *Branch {
	root := NewBranch()
	if flat == nil {
		return root
	}
	for _, k := range flat.keys {
		l, _ := flat.Leaf(k)
		root.InsertLeaf(k, l)
	}
	return root
}

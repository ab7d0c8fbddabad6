// Package tree is the configuration tree the resolution engine walks: an
// ordered, tagged-variant value built from YAML documents.
//
// Besides the four loader kinds (Map, Seq, String, Other) there are two kinds
// only the engine produces. Resolved holds a plaintext value together with the
// configuration text it came from; Unresolved holds configuration text whose
// references could not be resolved. Every serializer in this package (JSON,
// YAML, fmt) writes the original text for both, so marshalling a resolved
// tree never emits secret material. Interface is the only way to get the
// plaintext back out.
package tree

import (
	"fmt"
)

// Kind tags the variant held by a Node.
type Kind int

const (
	KindMap Kind = iota + 1
	KindSeq
	KindString
	KindOther
	KindResolved
	KindUnresolved
)

var kindNames = map[Kind]string{
	KindMap:        "map",
	KindSeq:        "seq",
	KindString:     "string",
	KindOther:      "other",
	KindResolved:   "resolved",
	KindUnresolved: "unresolved",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node is one value in a configuration tree. The zero value is not usable;
// build nodes with the New* constructors.
type Node struct {
	kind Kind

	keys   []string
	fields map[string]*Node
	items  []*Node

	text   string
	origin string
	other  interface{}
}

// NewMap returns an empty ordered mapping.
func NewMap() *Node {
	return &Node{kind: KindMap, fields: make(map[string]*Node)}
}

// NewSeq returns a sequence holding items.
func NewSeq(items ...*Node) *Node {
	return &Node{kind: KindSeq, items: items}
}

// NewString returns a string scalar.
func NewString(s string) *Node {
	return &Node{kind: KindString, text: s}
}

// NewOther returns a non-string scalar: a number, a bool or nil.
func NewOther(v interface{}) *Node {
	return &Node{kind: KindOther, other: v}
}

// NewResolved returns a scalar whose plaintext value was produced from the
// configuration text origin, by substituting references or decoding $${
// escapes.
func NewResolved(value, origin string) *Node {
	return &Node{kind: KindResolved, text: value, origin: origin}
}

// NewUnresolved returns a scalar whose configuration text raw could not be
// resolved.
func NewUnresolved(raw string) *Node {
	return &Node{kind: KindUnresolved, origin: raw}
}

// Kind returns the variant held by n.
func (n *Node) Kind() Kind {
	return n.kind
}

// IsScalar reports whether n is neither a map nor a sequence.
func (n *Node) IsScalar() bool {
	return n.kind != KindMap && n.kind != KindSeq
}

// Set adds or replaces key in a map, keeping first-insertion order.
func (n *Node) Set(key string, v *Node) {
	n.mustBe(KindMap)
	if _, ok := n.fields[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.fields[key] = v
}

// Delete removes key from a map.
func (n *Node) Delete(key string) {
	n.mustBe(KindMap)
	if _, ok := n.fields[key]; !ok {
		return
	}
	delete(n.fields, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i:i], n.keys[i+1:]...)
			break
		}
	}
}

// Get returns the value stored under key in a map.
func (n *Node) Get(key string) (*Node, bool) {
	if n.kind != KindMap {
		return nil, false
	}
	v, ok := n.fields[key]
	return v, ok
}

// Keys returns the keys of a map in order.
func (n *Node) Keys() []string {
	return n.keys
}

// Len returns the number of entries of a map or items of a sequence.
func (n *Node) Len() int {
	switch n.kind {
	case KindMap:
		return len(n.keys)
	case KindSeq:
		return len(n.items)
	}
	return 0
}

// Items returns the items of a sequence.
func (n *Node) Items() []*Node {
	return n.items
}

// Append adds items to a sequence.
func (n *Node) Append(items ...*Node) {
	n.mustBe(KindSeq)
	n.items = append(n.items, items...)
}

// Text returns the string of a String node, the plaintext of a Resolved node
// and the configuration text of an Unresolved node.
func (n *Node) Text() string {
	if n.kind == KindUnresolved {
		return n.origin
	}
	return n.text
}

// Origin returns the configuration text a Resolved or Unresolved node was
// produced from. For a String node it is the string itself.
func (n *Node) Origin() string {
	switch n.kind {
	case KindResolved, KindUnresolved:
		return n.origin
	case KindString:
		return n.text
	}
	return ""
}

// Value returns the scalar held by an Other node.
func (n *Node) Value() interface{} {
	return n.other
}

// Interface converts n into plain Go values: map[string]interface{},
// []interface{}, string and the Other scalars. Resolved nodes yield their
// plaintext and Unresolved nodes yield nil.
func (n *Node) Interface() interface{} {
	switch n.kind {
	case KindMap:
		m := make(map[string]interface{}, len(n.keys))
		for _, k := range n.keys {
			m[k] = n.fields[k].Interface()
		}
		return m
	case KindSeq:
		s := make([]interface{}, len(n.items))
		for i, item := range n.items {
			s[i] = item.Interface()
		}
		return s
	case KindString, KindResolved:
		return n.text
	case KindOther:
		return n.other
	}
	return nil
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := *n
	switch n.kind {
	case KindMap:
		c.keys = append([]string(nil), n.keys...)
		c.fields = make(map[string]*Node, len(n.fields))
		for k, v := range n.fields {
			c.fields[k] = v.Clone()
		}
	case KindSeq:
		c.items = make([]*Node, len(n.items))
		for i, item := range n.items {
			c.items[i] = item.Clone()
		}
	}
	return &c
}

// Equal reports whether a and b have the same shape, kinds and contents.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindMap:
		if len(a.keys) != len(b.keys) {
			return false
		}
		for i, k := range a.keys {
			if b.keys[i] != k || !Equal(a.fields[k], b.fields[k]) {
				return false
			}
		}
		return true
	case KindSeq:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindOther:
		return a.other == b.other
	}
	return a.text == b.text && a.origin == b.origin
}

func (n *Node) mustBe(k Kind) {
	if n.kind != k {
		panic(fmt.Sprintf("tree: %s operation on %s node", k, n.kind))
	}
}

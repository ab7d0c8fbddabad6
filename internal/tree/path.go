package tree

import (
	"strconv"
	"strings"
)

// Segment is one step of a Path: a map key or a sequence index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path locates a node from the root of a tree.
type Path []Segment

// Child returns p extended with a map key.
func (p Path) Child(key string) Path {
	return append(p[:len(p):len(p)], Segment{Key: key})
}

// Index returns p extended with a sequence index.
func (p Path) Index(i int) Path {
	return append(p[:len(p):len(p)], Segment{Index: i, IsIndex: true})
}

// String renders p as "b.d" or "items[2].name". Keys that would be ambiguous
// in dotted form are written as ["quoted"].
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		switch {
		case seg.IsIndex:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
		case plainKey(seg.Key):
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Key)
		default:
			b.WriteByte('[')
			b.WriteString(strconv.Quote(seg.Key))
			b.WriteByte(']')
		}
	}
	return b.String()
}

func plainKey(k string) bool {
	return k != "" && !strings.ContainsAny(k, ".[]\" ")
}

// At returns the node at p.
func (n *Node) At(p Path) (*Node, bool) {
	cur := n
	for _, seg := range p {
		switch {
		case seg.IsIndex && cur.kind == KindSeq:
			if seg.Index < 0 || seg.Index >= len(cur.items) {
				return nil, false
			}
			cur = cur.items[seg.Index]
		case !seg.IsIndex && cur.kind == KindMap:
			next, ok := cur.fields[seg.Key]
			if !ok {
				return nil, false
			}
			cur = next
		default:
			return nil, false
		}
	}
	return cur, true
}

// Lookup finds the node whose Path renders as path.
func (n *Node) Lookup(path string) (*Node, bool) {
	var found *Node
	_ = Walk(n, func(p Path, node *Node) error {
		if found == nil && p.String() == path {
			found = node
			return errStop
		}
		return nil
	})
	return found, found != nil
}

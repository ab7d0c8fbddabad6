package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON implements json.Marshaler. Map key order is preserved and
// Resolved and Unresolved scalars are written as their configuration text.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	switch n.kind {
	case KindMap:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := n.fields[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case KindSeq:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}

	var v interface{}
	switch n.kind {
	case KindString:
		v = n.text
	case KindResolved, KindUnresolved:
		v = n.origin
	case KindOther:
		v = n.other
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// String renders n as compact JSON with secrets shown as their references.
func (n *Node) String() string {
	b, err := n.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s node: %v>", n.kind, err)
	}
	return string(b)
}

// GoString implements fmt.GoStringer so %#v is redacted too.
func (n *Node) GoString() string {
	return "tree.Node(" + n.String() + ")"
}

// Format implements fmt.Formatter so that every verb, including %v on a
// dereferenced node, goes through the redacting String.
func (n *Node) Format(f fmt.State, verb rune) {
	if verb == 'v' && f.Flag('#') {
		fmt.Fprint(f, n.GoString())
		return
	}
	fmt.Fprint(f, n.String())
}

// FromInterface builds a tree from plain Go values. Map keys are sorted,
// because Go maps carry no order.
func FromInterface(v interface{}) *Node {
	switch t := v.(type) {
	case *Node:
		return t
	case map[string]interface{}:
		m := NewMap()
		for _, k := range sortedKeys(t) {
			m.Set(k, FromInterface(t[k]))
		}
		return m
	case map[string]string:
		m := NewMap()
		for _, k := range sortedKeys(t) {
			m.Set(k, NewString(t[k]))
		}
		return m
	case []interface{}:
		s := NewSeq()
		for _, item := range t {
			s.Append(FromInterface(item))
		}
		return s
	case []string:
		s := NewSeq()
		for _, item := range t {
			s.Append(NewString(item))
		}
		return s
	case string:
		return NewString(t)
	}
	return NewOther(v)
}

package tree

import "errors"

var errStop = errors.New("stop walk")

// WalkFunc is called for every node. Returning an error stops the walk.
type WalkFunc func(p Path, n *Node) error

// Walk visits n and its descendants depth first, maps in key order.
func Walk(n *Node, fn WalkFunc) error {
	err := walk(nil, n, fn)
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

func walk(p Path, n *Node, fn WalkFunc) error {
	if err := fn(p, n); err != nil {
		return err
	}
	switch n.kind {
	case KindMap:
		for _, k := range n.keys {
			if err := walk(p.Child(k), n.fields[k], fn); err != nil {
				return err
			}
		}
	case KindSeq:
		for i, item := range n.items {
			if err := walk(p.Index(i), item, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Strings calls fn for every String scalar in n.
func Strings(n *Node, fn func(p Path, s string)) {
	_ = Walk(n, func(p Path, node *Node) error {
		if node.kind == KindString {
			fn(p, node.text)
		}
		return nil
	})
}

// Rewrite returns a copy of n in which every scalar has been replaced by
// fn's result. Maps and sequences keep their shape and order. fn returning
// nil keeps the scalar unchanged.
func Rewrite(n *Node, fn func(p Path, scalar *Node) *Node) *Node {
	return rewrite(nil, n, fn)
}

func rewrite(p Path, n *Node, fn func(Path, *Node) *Node) *Node {
	switch n.kind {
	case KindMap:
		out := &Node{kind: KindMap, keys: append([]string(nil), n.keys...), fields: make(map[string]*Node, len(n.fields))}
		for _, k := range n.keys {
			out.fields[k] = rewrite(p.Child(k), n.fields[k], fn)
		}
		return out
	case KindSeq:
		out := &Node{kind: KindSeq, items: make([]*Node, len(n.items))}
		for i, item := range n.items {
			out.items[i] = rewrite(p.Index(i), item, fn)
		}
		return out
	}
	if r := fn(p, n); r != nil {
		return r
	}
	c := *n
	return &c
}

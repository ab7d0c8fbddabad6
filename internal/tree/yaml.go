package tree

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FromYAML converts a decoded YAML node into a tree. Aliases are expanded
// and "<<" merge keys are applied.
func FromYAML(doc *yaml.Node) (*Node, error) {
	if doc == nil {
		return NewMap(), nil
	}
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return NewMap(), nil
		}
		doc = doc.Content[0]
	}
	c := &converter{budget: MaxNodes}
	return c.fromYAML(doc, 0)
}

// ParseYAML decodes a YAML document into a tree.
func ParseYAML(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return FromYAML(&doc)
}

const maxAliasDepth = 64

// MaxNodes bounds the number of nodes one document may expand to once
// aliases are followed.
const MaxNodes = 1 << 20

// converter counts the nodes built so far against its budget.
type converter struct {
	budget int
}

func (c *converter) fromYAML(y *yaml.Node, depth int) (*Node, error) {
	if depth > maxAliasDepth {
		return nil, fmt.Errorf("line %d: document nested too deeply", y.Line)
	}
	if y.Kind != yaml.AliasNode {
		if c.budget <= 0 {
			return nil, fmt.Errorf("line %d: document expands to more than %d nodes", y.Line, MaxNodes)
		}
		c.budget--
	}
	switch y.Kind {
	case yaml.AliasNode:
		return c.fromYAML(y.Alias, depth+1)
	case yaml.MappingNode:
		return c.mappingFromYAML(y, depth)
	case yaml.SequenceNode:
		seq := NewSeq()
		for _, child := range y.Content {
			item, err := c.fromYAML(child, depth+1)
			if err != nil {
				return nil, err
			}
			seq.Append(item)
		}
		return seq, nil
	case yaml.ScalarNode:
		if y.ShortTag() == "!!str" || y.ShortTag() == "!!binary" {
			return NewString(y.Value), nil
		}
		var v interface{}
		if err := y.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", y.Line, err)
		}
		if s, ok := v.(string); ok {
			return NewString(s), nil
		}
		return NewOther(v), nil
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", y.Line, y.Kind)
}

func (c *converter) mappingFromYAML(y *yaml.Node, depth int) (*Node, error) {
	m := NewMap()
	var explicit []*yaml.Node
	for i := 0; i+1 < len(y.Content); i += 2 {
		k, v := y.Content[i], y.Content[i+1]
		if k.Kind == yaml.ScalarNode && k.ShortTag() == "!!merge" {
			if err := c.mergeInto(m, v, depth); err != nil {
				return nil, err
			}
			continue
		}
		explicit = append(explicit, k, v)
	}
	for i := 0; i < len(explicit); i += 2 {
		k, v := explicit[i], explicit[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
		}
		val, err := c.fromYAML(v, depth+1)
		if err != nil {
			return nil, err
		}
		m.Set(k.Value, val)
	}
	return m, nil
}

func (c *converter) mergeInto(m *Node, v *yaml.Node, depth int) error {
	src, err := c.fromYAML(v, depth+1)
	if err != nil {
		return err
	}
	var sources []*Node
	switch src.kind {
	case KindMap:
		sources = []*Node{src}
	case KindSeq:
		sources = src.items
	default:
		return fmt.Errorf("line %d: merge value must be a mapping", v.Line)
	}
	for _, s := range sources {
		if s.kind != KindMap {
			return fmt.Errorf("line %d: merge value must be a mapping", v.Line)
		}
		for _, k := range s.keys {
			if _, exists := m.fields[k]; !exists {
				m.Set(k, s.fields[k])
			}
		}
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler. Resolved and Unresolved scalars are
// written as their configuration text.
func (n *Node) MarshalYAML() (interface{}, error) {
	return n.yamlNode()
}

func (n *Node) yamlNode() (*yaml.Node, error) {
	switch n.kind {
	case KindMap:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range n.keys {
			v, err := n.fields[k].yamlNode()
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, v)
		}
		return out, nil
	case KindSeq:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.items {
			v, err := item.yamlNode()
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, v)
		}
		return out, nil
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.text}, nil
	case KindResolved, KindUnresolved:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.origin}, nil
	case KindOther:
		var out yaml.Node
		if err := out.Encode(n.other); err != nil {
			return nil, err
		}
		return &out, nil
	}
	return nil, fmt.Errorf("tree: cannot marshal %s node", n.kind)
}

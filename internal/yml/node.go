package yml

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	Node yaml.Node
)

// Parse decodes data into a mapping node. Empty input yields an empty map.
func Parse(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return (*Node)(NewMap()), nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping, got %v", kindName(root.Kind))
	}
	return (*Node)(root), nil
}

// Lookup returns the value stored under key or nil.
func (n *Node) Lookup(key string) *Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return (*Node)(n.Content[i+1])
		}
	}
	return nil
}

// Pairs iterates mapping entries in document order.
func (n *Node) Pairs(callback func(key string, node *Node) error) error {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := callback(n.Content[i].Value, (*Node)(n.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

// Put sets key to value, replacing an existing entry.
func (n *Node) Put(key string, value *yaml.Node) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			n.Content[i+1] = value
			return
		}
	}
	n.Content = append(n.Content, Scalar(key), value)
}

// Set assigns a scalar at a dotted path, creating intermediate maps. The
// value tag is resolved by the decoder, so "10" decodes into an int field and
// "true" into a bool.
func (n *Node) Set(path, value string) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("not a map node: %v", kindName(n.Kind))
	}
	keys := strings.Split(path, ".")
	current := n
	for i, key := range keys {
		if key == "" {
			return fmt.Errorf("invalid path %q", path)
		}
		if i == len(keys)-1 {
			current.Put(key, &yaml.Node{Kind: yaml.ScalarNode, Value: value})
			return nil
		}
		next := current.Lookup(key)
		if next == nil || next.Kind != yaml.MappingNode {
			next = (*Node)(NewMap())
			current.Put(key, (*yaml.Node)(next))
		}
		current = next
	}
	return nil
}

// Decode decodes the node into v.
func (n *Node) Decode(v interface{}) error {
	return (*yaml.Node)(n).Decode(v)
}

// ParseAssignment splits a key=value override.
func ParseAssignment(text string) (path, value string, err error) {
	path, value, ok := strings.Cut(text, "=")
	path = strings.TrimSpace(path)
	if !ok || path == "" {
		return "", "", fmt.Errorf("invalid override %q, expected key=value", text)
	}
	return path, strings.TrimSpace(value), nil
}

func NewMap() *yaml.Node {
	return &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
	}
}

// Scalar returns a string scalar node.
func Scalar(value string) *yaml.Node {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!str",
		Value: value,
	}
}

func kindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return fmt.Sprintf("kind(%d)", kind)
}

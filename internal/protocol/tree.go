// Package protocol implements the nested protocol-occurrence tree.
package protocol

import (
	"bytes"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// countKey is the per-node counter key in serialized output.
const countKey = "count"

// Node is one protocol layer in the occurrence tree. Children keep the order
// in which they were first encountered.
type Node struct {
	Name  string
	Count int

	root     bool
	children []*Node
	index    map[string]int
}

// NewTree creates an empty root node. The root itself carries no name and
// its counter is unused.
func NewTree() *Node {
	return &Node{root: true}
}

// Add walks a packet's layer sequence from the root, creating missing nodes
// and incrementing each visited node exactly once.
func (n *Node) Add(layers []string) {
	cur := n
	for _, name := range layers {
		cur = cur.child(name)
		cur.Count++
	}
}

// child returns the named child, creating it if absent.
func (n *Node) child(name string) *Node {
	if i, ok := n.index[name]; ok {
		return n.children[i]
	}
	if n.index == nil {
		n.index = make(map[string]int)
	}
	c := &Node{Name: name}
	n.index[name] = len(n.children)
	n.children = append(n.children, c)
	return c
}

// Lookup follows a path of layer names from n. It returns false when any
// element of the path is missing.
func (n *Node) Lookup(path ...string) (*Node, bool) {
	cur := n
	for _, name := range path {
		i, ok := cur.index[name]
		if !ok {
			return nil, false
		}
		cur = cur.children[i]
	}
	return cur, true
}

// Children returns the direct children in first-seen order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Walk visits every descendant depth-first, in first-seen order.
// depth is 1 for the direct children of n.
func (n *Node) Walk(fn func(depth int, node *Node)) {
	n.walk(1, fn)
}

func (n *Node) walk(depth int, fn func(int, *Node)) {
	for _, c := range n.children {
		fn(depth, c)
		c.walk(depth+1, fn)
	}
}

// Clone returns a deep copy of n. Later Adds to either tree do not affect
// the other.
func (n *Node) Clone() *Node {
	c := &Node{Name: n.Name, Count: n.Count, root: n.root}
	if len(n.children) == 0 {
		return c
	}
	c.children = make([]*Node, len(n.children))
	c.index = make(map[string]int, len(n.children))
	for i, child := range n.children {
		c.children[i] = child.Clone()
		c.index[child.Name] = i
	}
	return c
}

// MarshalJSON renders the root as an object of its children and every other
// node as {"count": N, <child>: {...}}, preserving first-seen order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf, n.root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer, root bool) error {
	buf.WriteByte('{')
	first := true
	if !root {
		buf.WriteString(`"` + countKey + `":`)
		buf.WriteString(strconv.Itoa(n.Count))
		first = false
	}
	for _, c := range n.children {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		name, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(c.Name)
		if err != nil {
			return err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if err := c.writeJSON(buf, false); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// MarshalYAML renders the same shape as MarshalJSON as an ordered mapping.
func (n *Node) MarshalYAML() (interface{}, error) {
	return n.yamlNode(n.root), nil
}

func (n *Node) yamlNode(root bool) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if !root {
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: countKey},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(n.Count)},
		)
	}
	for _, c := range n.children {
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Name},
			c.yamlNode(false),
		)
	}
	return m
}

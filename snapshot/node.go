package snapshot

import "github.com/J-Pabon/ouisync/object"

// NodeType classifies an object within a snapshot.
type NodeType byte

const (
	// Missing objects are referenced by a parent but absent locally.
	Missing NodeType = iota
	// Incomplete objects are present but some descendants are not.
	Incomplete
	// Complete objects are present together with their whole subtree.
	Complete
)

func (t NodeType) String() string {
	switch t {
	case Missing:
		return "missing"
	case Incomplete:
		return "incomplete"
	case Complete:
		return "complete"
	default:
		return "invalid"
	}
}

// Children partitions a node's immediate children by their type at the
// time of insertion.
type Children struct {
	Missing    map[object.ID]struct{}
	Incomplete map[object.ID]struct{}
	Complete   map[object.ID]struct{}
}

func newChildren() Children {
	return Children{
		Missing:    make(map[object.ID]struct{}),
		Incomplete: make(map[object.ID]struct{}),
		Complete:   make(map[object.ID]struct{}),
	}
}

func (c Children) clone() Children {
	result := newChildren()
	for id := range c.Missing {
		result.Missing[id] = struct{}{}
	}
	for id := range c.Incomplete {
		result.Incomplete[id] = struct{}{}
	}
	for id := range c.Complete {
		result.Complete[id] = struct{}{}
	}
	return result
}

// settled returns true if no child is still missing or incomplete.
func (c Children) settled() bool {
	return len(c.Missing) == 0 && len(c.Incomplete) == 0
}

// Node is the snapshot's record of a single object.
type Node struct {
	Type     NodeType
	Parents  map[object.ID]struct{}
	Children Children
}

func newNode(t NodeType) *Node {
	return &Node{
		Type:     t,
		Parents:  make(map[object.ID]struct{}),
		Children: newChildren(),
	}
}

func (n *Node) clone() *Node {
	parents := make(map[object.ID]struct{}, len(n.Parents))
	for id := range n.Parents {
		parents[id] = struct{}{}
	}
	return &Node{
		Type:     n.Type,
		Parents:  parents,
		Children: n.Children.clone(),
	}
}

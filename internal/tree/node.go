// Package tree implements the lazy hierarchical tree cache and flattening
// engine: a canonical forest of partially loaded nodes, the child and filter
// caches that avoid refetching subtrees, and the projection of the forest into
// the flat sequence a renderer draws.
package tree

import (
	"strconv"
)

// NodeID is the stable remote identifier of a node.
type NodeID int64

// NoID marks an absent identifier: the parent of a root, or a node that has
// not been persisted yet.
const NoID NodeID = 0

// KeepParent asks an update to leave the node under its current parent.
const KeepParent NodeID = -1

func (id NodeID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Node is the canonical tree node.
//
// Children are owned exclusively by the node. An empty Children slice does not
// mean the node is childless: HasMoreChildren reports children that exist
// remotely but have not been fetched. Once children are loaded HasMoreChildren
// is false.
type Node struct {
	ID              NodeID
	Label           string
	ParentID        NodeID
	Children        []*Node
	HasMoreChildren bool
}

// Expandable reports whether the node has loaded children or children that
// can still be fetched.
func (n *Node) Expandable() bool {
	return len(n.Children) > 0 || n.HasMoreChildren
}

// Unloaded reports whether the node is collapsed-unloaded: children exist
// remotely but none are present locally.
func (n *Node) Unloaded() bool {
	return len(n.Children) == 0 && n.HasMoreChildren
}

// setChildren splices a fetched child list into the node. A loaded list
// supersedes the server child-count hint, even when it is empty.
func (n *Node) setChildren(children []*Node) {
	for _, c := range children {
		if c.ParentID == NoID {
			c.ParentID = n.ID
		}
	}
	n.Children = children
	n.HasMoreChildren = false
}

// Clone returns a deep copy of the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Children = cloneNodes(n.Children)
	return &c
}

func cloneNodes(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// findNode locates a node by identity anywhere below nodes.
func findNode(nodes []*Node, id NodeID) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
		if found := findNode(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}

// walkNodes visits nodes in pre-order with their depth.
func walkNodes(nodes []*Node, depth int, fn func(n *Node, depth int)) {
	for _, n := range nodes {
		fn(n, depth)
		walkNodes(n.Children, depth+1, fn)
	}
}

// subtreeIDs returns the id of n and of every loaded descendant.
func subtreeIDs(n *Node) []NodeID {
	var ids []NodeID
	walkNodes([]*Node{n}, 0, func(d *Node, _ int) {
		ids = append(ids, d.ID)
	})
	return ids
}

// Forest is an immutable snapshot of the canonical root set handed to
// subscribers. Receivers must treat the nodes as read-only.
type Forest struct {
	// Version increases with every broadcast of the owning Store.
	Version uint64
	Roots   []*Node
	// Filter is the active filter key, empty when the full tree is shown.
	Filter string
}

// Filtered reports whether the forest is a filtered view.
func (f Forest) Filtered() bool {
	return f.Filter != ""
}

// Find returns the node with the given id, or nil.
func (f Forest) Find(id NodeID) *Node {
	return findNode(f.Roots, id)
}

// Len returns the number of loaded nodes in the forest.
func (f Forest) Len() int {
	n := 0
	walkNodes(f.Roots, 0, func(*Node, int) { n++ })
	return n
}

// Walk visits every loaded node in pre-order.
func (f Forest) Walk(fn func(n *Node, depth int)) {
	walkNodes(f.Roots, 0, fn)
}

package tree

// FlatNode is the render-facing projection of exactly one Node.
//
// Adding, Updating and Deleting are presentation flags. They are reset on every
// flatten pass and never influence flattening or caching.
type FlatNode struct {
	ID         NodeID
	ParentID   NodeID
	Label      string
	Depth      int
	Expandable bool

	Adding   bool
	Updating bool
	Deleting bool
}

// Flattener projects a forest and an expand state into the ordered sequence a
// renderer draws.
//
// It keeps an id-keyed index between nodes and flat nodes: a FlatNode is
// reused across passes while its node keeps the same label and reallocated
// when the label changes. Entries for nodes that left the forest are pruned.
// A Flattener is not safe for concurrent use.
type Flattener struct {
	flat  map[NodeID]*FlatNode
	nodes map[NodeID]*Node
}

// NewFlattener returns an empty Flattener.
func NewFlattener() *Flattener {
	return &Flattener{
		flat:  make(map[NodeID]*FlatNode),
		nodes: make(map[NodeID]*Node),
	}
}

// Flatten walks the forest in pre-order and emits every node whose ancestors
// are all expanded. A node reached a second time is skipped with its subtree.
func (f *Flattener) Flatten(roots []*Node, state *ExpandState) []*FlatNode {
	seen := make(map[NodeID]struct{}, len(f.flat))
	out := make([]*FlatNode, 0, len(roots))

	var visit func(nodes []*Node, parent NodeID, depth int, visible bool)
	visit = func(nodes []*Node, parent NodeID, depth int, visible bool) {
		for _, n := range nodes {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			f.nodes[n.ID] = n

			if visible {
				out = append(out, f.transform(n, parent, depth))
			}
			visit(n.Children, n.ID, depth+1, visible && state.IsExpanded(n.ID))
		}
	}
	visit(roots, NoID, 0, true)

	for id := range f.flat {
		if _, ok := seen[id]; !ok {
			delete(f.flat, id)
		}
	}
	for id := range f.nodes {
		if _, ok := seen[id]; !ok {
			delete(f.nodes, id)
		}
	}
	return out
}

func (f *Flattener) transform(n *Node, parent NodeID, depth int) *FlatNode {
	parentID := n.ParentID
	if parentID == NoID {
		parentID = parent
	}

	fn, ok := f.flat[n.ID]
	if !ok || fn.Label != n.Label || n.ID == NoID {
		fn = &FlatNode{ID: n.ID, Label: n.Label}
		if n.ID != NoID {
			f.flat[n.ID] = fn
		}
	}
	fn.ParentID = parentID
	fn.Depth = depth
	fn.Expandable = n.Expandable()
	fn.Adding, fn.Updating, fn.Deleting = false, false, false
	return fn
}

// FlatOf returns the flat node currently representing id.
func (f *Flattener) FlatOf(id NodeID) (*FlatNode, bool) {
	fn, ok := f.flat[id]
	return fn, ok
}

// NodeOf returns the node a flat node represents.
func (f *Flattener) NodeOf(fn *FlatNode) (*Node, bool) {
	if fn == nil {
		return nil, false
	}
	if cur, ok := f.flat[fn.ID]; !ok || cur != fn {
		return nil, false
	}
	n, ok := f.nodes[fn.ID]
	return n, ok
}

// Len returns the number of indexed flat nodes.
func (f *Flattener) Len() int {
	return len(f.flat)
}

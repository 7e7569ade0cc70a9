package tree

// snapshotCache maps a node id to an ordered snapshot of child nodes. Get and
// Set copy the snapshot so that cached nodes never alias forest nodes.
//
// Not safe for concurrent use; the Store serializes access.
type snapshotCache struct {
	entries map[NodeID][]*Node
}

func (c *snapshotCache) get(id NodeID) ([]*Node, bool) {
	children, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return cloneNodes(children), true
}

func (c *snapshotCache) set(id NodeID, children []*Node) {
	if c.entries == nil {
		c.entries = make(map[NodeID][]*Node)
	}
	snapshot := cloneNodes(children)
	if snapshot == nil {
		snapshot = []*Node{}
	}
	c.entries[id] = snapshot
}

func (c *snapshotCache) invalidate(ids ...NodeID) {
	for _, id := range ids {
		delete(c.entries, id)
	}
}

// invalidateContaining drops every entry whose snapshot lists id directly.
func (c *snapshotCache) invalidateContaining(id NodeID) {
	for key, children := range c.entries {
		for _, child := range children {
			if child.ID == id {
				delete(c.entries, key)
				break
			}
		}
	}
}

// remove deletes the node with the given id from every snapshot, at any depth.
func (c *snapshotCache) remove(id NodeID) {
	for key, children := range c.entries {
		c.entries[key] = removeNode(children, id)
	}
}

func (c *snapshotCache) len() int {
	return len(c.entries)
}

func (c *snapshotCache) reset() {
	c.entries = nil
}

func removeNode(nodes []*Node, id NodeID) []*Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n.ID == id {
			continue
		}
		n.Children = removeNode(n.Children, id)
		out = append(out, n)
	}
	return out
}

// ChildCache memoizes the children fetched for a parent. It is single-level:
// an entry holds one parent's children, not the whole subtree.
//
// Entries never expire and the cache has no capacity bound. That is only
// acceptable because the cache lives for one session over one tree.
type ChildCache struct {
	c snapshotCache
}

// Get returns a copy of the cached children of parentID.
func (cc *ChildCache) Get(parentID NodeID) ([]*Node, bool) { return cc.c.get(parentID) }

// Set overwrites the entry for parentID unconditionally.
func (cc *ChildCache) Set(parentID NodeID, children []*Node) { cc.c.set(parentID, children) }

// Invalidate drops the entries keyed by the given parents.
func (cc *ChildCache) Invalidate(parentIDs ...NodeID) { cc.c.invalidate(parentIDs...) }

// InvalidateContaining drops the entry of whichever parent lists id.
func (cc *ChildCache) InvalidateContaining(id NodeID) { cc.c.invalidateContaining(id) }

// Remove deletes a node from every cached child list.
func (cc *ChildCache) Remove(id NodeID) { cc.c.remove(id) }

// Len returns the number of cached parents.
func (cc *ChildCache) Len() int { return cc.c.len() }

// FilterCache holds the children bundled with filter results, keyed by the
// matched node. It is written only by a filter query and is a separate
// namespace from ChildCache.
type FilterCache struct {
	c snapshotCache
}

// Get returns a copy of the children bundled with the match nodeID.
func (fc *FilterCache) Get(nodeID NodeID) ([]*Node, bool) { return fc.c.get(nodeID) }

// Set stores the bundled children of a match.
func (fc *FilterCache) Set(nodeID NodeID, children []*Node) { fc.c.set(nodeID, children) }

// Invalidate drops the entries keyed by the given nodes.
func (fc *FilterCache) Invalidate(nodeIDs ...NodeID) { fc.c.invalidate(nodeIDs...) }

// Remove deletes a node from every bundled child list.
func (fc *FilterCache) Remove(nodeID NodeID) { fc.c.remove(nodeID) }

// Reset empties the cache.
func (fc *FilterCache) Reset() { fc.c.reset() }

// Len returns the number of cached matches.
func (fc *FilterCache) Len() int { return fc.c.len() }

package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/lazytree/internal/apperr"
)

// Frame is one rendered state of a View.
type Frame struct {
	// Version is the Store version the frame was flattened from.
	Version uint64
	Filter  string
	Nodes   []*FlatNode
	// Expanded is the expand state the frame was flattened with.
	Expanded *ExpandState
}

// Clone returns a frame whose flat nodes are copies.
func (f Frame) Clone() Frame {
	out := f
	out.Nodes = make([]*FlatNode, len(f.Nodes))
	for i, n := range f.Nodes {
		c := *n
		out.Nodes[i] = &c
	}
	out.Expanded = NewExpandState(f.Expanded.IDs()...)
	return out
}

// Index returns the position of id in the frame, or -1.
func (f Frame) Index(id NodeID) int {
	for i, n := range f.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithRedraw registers the renderer callback. It runs with the view locked
// after every flatten pass and must not call back into the View.
func WithRedraw(fn func(Frame)) ViewOption {
	return func(v *View) {
		v.redraw = fn
	}
}

// WithViewLogger sets the view logger.
func WithViewLogger(logger *slog.Logger) ViewOption {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithExpandState seeds the view with previously expanded nodes. Ids that
// are not loaded when the first forest is applied are dropped; use
// RestoreExpanded to load them.
func WithExpandState(state *ExpandState) ViewOption {
	return func(v *View) {
		if state != nil {
			v.state = NewExpandState(state.IDs()...)
		}
	}
}

// View is the renderer-side controller. It applies Store broadcasts, owns the
// expand state and the Flattener, and turns renderer intents into Store calls.
type View struct {
	store  *Store
	logger *slog.Logger
	redraw func(Frame)

	mu      sync.Mutex
	forest  Forest
	state   *ExpandState
	pending map[NodeID]struct{}
	flat    *Flattener
	frame   Frame
}

// NewView creates a view over store and applies its current snapshot.
func NewView(store *Store, opts ...ViewOption) *View {
	v := &View{
		store:   store,
		logger:  slog.Default(),
		state:   &ExpandState{},
		pending: make(map[NodeID]struct{}),
		flat:    NewFlattener(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.Apply(store.Snapshot())
	return v
}

// Run applies Store broadcasts until ctx is done or the Store is closed.
func (v *View) Run(ctx context.Context) error {
	ch := v.store.Subscribe()
	defer v.store.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-ch:
			if !ok {
				return nil
			}
			v.Apply(f)
		}
	}
}

// Apply flattens f unless a newer forest was already applied. Expanded ids
// whose node is gone or no longer loaded are forgotten, so a full reload
// collapses the tree.
func (v *View) Apply(f Forest) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if f.Version != 0 && f.Version <= v.forest.Version {
		return false
	}
	v.forest = f
	for _, id := range v.state.IDs() {
		n := f.Find(id)
		if n == nil || len(n.Children) == 0 {
			v.state.Set(id, false)
		}
	}
	v.refreshLocked()
	return true
}

func (v *View) refreshLocked() {
	v.frame = Frame{
		Version:  v.forest.Version,
		Filter:   v.forest.Filter,
		Nodes:    v.flat.Flatten(v.forest.Roots, v.state),
		Expanded: NewExpandState(v.state.IDs()...),
	}
	if v.redraw != nil {
		v.redraw(v.frame)
	}
}

// Frame returns a copy of the current frame.
func (v *View) Frame() Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame.Clone()
}

// ExpandState returns a copy of the expanded set.
func (v *View) ExpandState() *ExpandState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return NewExpandState(v.state.IDs()...)
}

// Expand expands a node. A node with loaded children expands without touching
// any cache; a collapsed-unloaded node is loaded through the Store first and
// only expands if it was not collapsed while loading. Leaves are ignored.
func (v *View) Expand(ctx context.Context, id NodeID) error {
	v.mu.Lock()
	n := v.forest.Find(id)
	if n == nil {
		v.mu.Unlock()
		return fmt.Errorf("tree: expand %d: %w", id, apperr.ErrNotFound)
	}
	if len(n.Children) > 0 {
		v.state.Set(id, true)
		v.refreshLocked()
		v.mu.Unlock()
		return nil
	}
	if !n.HasMoreChildren {
		v.mu.Unlock()
		return nil
	}
	if _, loading := v.pending[id]; loading {
		v.mu.Unlock()
		return nil
	}
	v.pending[id] = struct{}{}
	v.mu.Unlock()

	_, err := v.store.LoadChildren(ctx, id)
	v.Apply(v.store.Snapshot())

	v.mu.Lock()
	defer v.mu.Unlock()

	_, wanted := v.pending[id]
	delete(v.pending, id)
	if err != nil {
		return fmt.Errorf("tree: expand %d: %w", id, err)
	}
	if !wanted {
		return nil
	}
	if loaded := v.forest.Find(id); loaded != nil && len(loaded.Children) > 0 {
		v.state.Set(id, true)
		v.refreshLocked()
	}
	return nil
}

// Collapse hides the children of a node. A pending load for the node still
// completes but no longer expands it.
func (v *View) Collapse(id NodeID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.forest.Find(id) == nil {
		return fmt.Errorf("tree: collapse %d: %w", id, apperr.ErrNotFound)
	}
	delete(v.pending, id)
	if v.state.IsExpanded(id) {
		v.state.Set(id, false)
		v.refreshLocked()
	}
	return nil
}

// Toggle collapses an expanded node and expands any other.
func (v *View) Toggle(ctx context.Context, id NodeID) error {
	v.mu.Lock()
	expanded := v.state.IsExpanded(id)
	v.mu.Unlock()

	if expanded {
		return v.Collapse(id)
	}
	return v.Expand(ctx, id)
}

// ExpandAll expands every node whose children are already loaded. It never
// fetches.
func (v *View) ExpandAll() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.forest.Walk(func(n *Node, _ int) {
		if len(n.Children) > 0 {
			v.state.Set(n.ID, true)
		}
	})
	v.refreshLocked()
}

// CollapseAll collapses every node.
func (v *View) CollapseAll() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.state.Clear()
	clear(v.pending)
	v.refreshLocked()
}

// RestoreExpanded expands the given ids, loading children as needed. Ids are
// retried as their ancestors load; ids that never appear are skipped.
func (v *View) RestoreExpanded(ctx context.Context, ids []NodeID) error {
	want := make(map[NodeID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var errs []error
	for progress := true; progress && len(want) > 0; {
		progress = false
		for _, id := range NewExpandState(keys(want)...).IDs() {
			v.mu.Lock()
			found := v.forest.Find(id) != nil
			v.mu.Unlock()
			if !found {
				continue
			}
			delete(want, id)
			progress = true
			if err := v.Expand(ctx, id); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(want) > 0 {
		v.logger.Debug("tree: expanded ids not found", slog.Int("count", len(want)))
	}
	return errors.Join(errs...)
}

func keys(m map[NodeID]struct{}) []NodeID {
	out := make([]NodeID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// NodeState reports the render-relevant state of a node.
func (v *View) NodeState(id NodeID) (NodeState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := v.forest.Find(id)
	switch {
	case n == nil:
		return Leaf, fmt.Errorf("tree: node %d: %w", id, apperr.ErrNotFound)
	case len(n.Children) > 0 && v.state.IsExpanded(id):
		return ExpandedLoaded, nil
	case len(n.Children) > 0:
		return CollapsedLoaded, nil
	}
	if _, loading := v.pending[id]; loading {
		return Loading, nil
	}
	if n.HasMoreChildren {
		return CollapsedUnloaded, nil
	}
	return Leaf, nil
}

// ParentOf returns the visible parent of a visible node: the nearest
// preceding flat node with a smaller depth.
func (v *View) ParentOf(id NodeID) (FlatNode, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	i := v.frame.Index(id)
	if i < 0 {
		return FlatNode{}, false
	}
	depth := v.frame.Nodes[i].Depth
	for j := i - 1; j >= 0; j-- {
		if v.frame.Nodes[j].Depth < depth {
			return *v.frame.Nodes[j], true
		}
	}
	return FlatNode{}, false
}

// Filter shows the nodes matching key; an empty key shows the full tree.
func (v *View) Filter(ctx context.Context, key string) {
	v.Apply(v.store.ApplyFilter(ctx, strings.TrimSpace(key)))
}

// Reload replaces the forest with a fresh root page.
func (v *View) Reload(ctx context.Context) {
	v.Apply(v.store.Initialize(ctx))
}

// Create adds a node under parentID (NoID for a root).
func (v *View) Create(ctx context.Context, parentID NodeID, label string) error {
	if parentID != NoID {
		v.MarkAdding(parentID)
	}
	f, err := v.store.Create(ctx, parentID, label)
	return v.settle(f, err)
}

// Update relabels and/or moves a node. An empty label keeps the current
// label and KeepParent keeps the current parent.
func (v *View) Update(ctx context.Context, id NodeID, label string, parentID NodeID) error {
	v.mu.Lock()
	n := v.forest.Find(id)
	if n == nil {
		v.mu.Unlock()
		return fmt.Errorf("tree: update %d: %w", id, apperr.ErrNotFound)
	}
	if strings.TrimSpace(label) == "" {
		label = n.Label
	}
	if parentID == KeepParent {
		parentID = n.ParentID
	}
	v.mu.Unlock()

	v.MarkUpdating(id)
	f, err := v.store.Update(ctx, id, label, parentID)
	return v.settle(f, err)
}

// Delete removes a node and its subtree.
func (v *View) Delete(ctx context.Context, id NodeID) error {
	v.MarkDeleting(id)
	f, err := v.store.Delete(ctx, id)
	return v.settle(f, err)
}

func (v *View) settle(f Forest, err error) error {
	if !v.Apply(f) {
		// Nothing new to flatten; redraw to clear the marks.
		v.mu.Lock()
		v.refreshLocked()
		v.mu.Unlock()
	}
	return err
}

// ValidParents lists the nodes id may be moved under.
func (v *View) ValidParents(ctx context.Context, id NodeID) ([]*Node, error) {
	return v.store.ValidParents(ctx, id)
}

// MarkAdding flags the visible node id as receiving a new child.
func (v *View) MarkAdding(id NodeID) bool {
	return v.mark(id, func(fn *FlatNode) { fn.Adding = true })
}

// MarkUpdating flags the visible node id as being edited.
func (v *View) MarkUpdating(id NodeID) bool {
	return v.mark(id, func(fn *FlatNode) { fn.Updating = true })
}

// MarkDeleting flags the visible node id as being deleted.
func (v *View) MarkDeleting(id NodeID) bool {
	return v.mark(id, func(fn *FlatNode) { fn.Deleting = true })
}

func (v *View) mark(id NodeID, set func(*FlatNode)) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	i := v.frame.Index(id)
	if i < 0 {
		return false
	}
	set(v.frame.Nodes[i])
	if v.redraw != nil {
		v.redraw(v.frame)
	}
	return true
}

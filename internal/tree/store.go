package tree

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/lazytree/internal/apperr"
	"github.com/starford/lazytree/internal/broadcast"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for fail-soft reporting.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSingleFlight collapses concurrent child fetches for the same parent
// into a single DataSource call.
func WithSingleFlight() StoreOption {
	return func(s *Store) {
		s.flight = &singleflight.Group{}
	}
}

// Store owns the canonical forest and both caches. Every structural mutation
// happens under one lock and is followed by a broadcast of a forest snapshot,
// so broadcasts are ordered by completion of the operations that caused them.
// DataSource calls run outside the lock and only block their caller.
type Store struct {
	src    DataSource
	logger *slog.Logger
	hub    *broadcast.Hub[Forest]
	flight *singleflight.Group

	mu       sync.Mutex
	roots    []*Node
	filter   string
	version  uint64
	current  Forest
	children ChildCache
	filtered FilterCache
}

// NewStore creates a store over src and broadcasts the initial empty forest.
// Call Initialize to load the root page.
func NewStore(src DataSource, opts ...StoreOption) *Store {
	s := &Store{
		src:    src,
		logger: slog.Default(),
		hub:    broadcast.New[Forest](broadcast.WithReplay(), broadcast.WithConflation(), broadcast.WithBuffer(16)),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	s.publishLocked()
	s.mu.Unlock()
	return s
}

// Close stops the broadcast stream and closes every subscription.
func (s *Store) Close() {
	s.hub.Close()
}

// Subscribe returns a stream of forest snapshots. The latest snapshot is
// replayed immediately; a slow subscriber only misses superseded snapshots.
func (s *Store) Subscribe() <-chan Forest {
	return s.hub.Subscribe()
}

// Unsubscribe closes a subscription returned by Subscribe.
func (s *Store) Unsubscribe(ch <-chan Forest) {
	s.hub.Unsubscribe(ch)
}

// Snapshot returns the most recently broadcast forest.
func (s *Store) Snapshot() Forest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CacheStats reports the number of ChildCache and FilterCache entries.
func (s *Store) CacheStats() (children, filtered int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.children.Len(), s.filtered.Len()
}

func (s *Store) publishLocked() Forest {
	s.version++
	s.current = Forest{
		Version: s.version,
		Roots:   cloneNodes(s.roots),
		Filter:  s.filter,
	}
	s.hub.Publish(s.current)
	return s.current
}

// Initialize loads the root page and replaces the forest with it, leaving any
// filtered view. Failures are fail-soft: the forest becomes empty and the
// error is only logged.
func (s *Store) Initialize(ctx context.Context) Forest {
	roots, err := s.fetch(ctx, "initialize", s.src.FetchRoots)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.logger.Warn("tree: initialize failed, showing empty forest", slog.String("error", err.Error()))
		roots = nil
	}
	s.roots = roots
	s.filter = ""
	return s.publishLocked()
}

// LoadChildren resolves the children of parentID, splices them into the
// matching node of the current forest and returns them.
//
// While a filtered view is active the FilterCache is consulted first and a hit
// leaves the ChildCache untouched. Otherwise a ChildCache hit resolves without
// a network call and a miss fetches, caches and splices. Concurrent misses for
// the same parent each fetch unless the store uses WithSingleFlight; the last
// response wins the cache entry.
//
// If the parent has left the forest in the meantime the splice is dropped
// without a broadcast, but the children are still cached and returned.
func (s *Store) LoadChildren(ctx context.Context, parentID NodeID) ([]*Node, error) {
	s.mu.Lock()
	if s.filter != "" {
		if children, ok := s.filtered.Get(parentID); ok {
			defer s.mu.Unlock()
			s.spliceLocked(parentID, cloneNodes(children), "filter_cache")
			return children, nil
		}
	}
	if children, ok := s.children.Get(parentID); ok {
		defer s.mu.Unlock()
		s.spliceLocked(parentID, cloneNodes(children), "child_cache")
		return children, nil
	}
	s.mu.Unlock()

	children, err := s.fetchChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.children.Set(parentID, children)
	s.spliceLocked(parentID, cloneNodes(children), "fetch")
	return cloneNodes(children), nil
}

func (s *Store) fetchChildren(ctx context.Context, parentID NodeID) ([]*Node, error) {
	load := func(ctx context.Context) ([]Record, error) {
		return s.src.FetchChildren(ctx, parentID)
	}
	if s.flight == nil {
		return s.fetch(ctx, "load children", load)
	}
	v, err, _ := s.flight.Do(parentID.String(), func() (any, error) {
		return s.fetch(ctx, "load children", load)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Node), nil
}

func (s *Store) spliceLocked(parentID NodeID, children []*Node, source string) {
	parent := findNode(s.roots, parentID)
	if parent == nil {
		s.logger.Debug("tree: splice target left the forest",
			slog.String("parent_id", parentID.String()),
			slog.String("source", source))
		return
	}
	parent.setChildren(children)
	s.logger.Debug("tree: children spliced",
		slog.String("parent_id", parentID.String()),
		slog.Int("count", len(children)),
		slog.String("source", source))
	s.publishLocked()
}

// ApplyFilter replaces the entire forest with the nodes matching key. Each
// match is shown collapsed and its bundled children seed the FilterCache, so
// expanding a match does not hit the network. Matches are not reconnected
// to their ancestors, and a match bundled below another match is shown only
// there. An empty key leaves the filtered view via Initialize.
// Failures are fail-soft: the filtered forest is empty.
func (s *Store) ApplyFilter(ctx context.Context, key string) Forest {
	key = strings.TrimSpace(key)
	if key == "" {
		return s.Initialize(ctx)
	}

	matches, err := s.fetch(ctx, "apply filter", func(ctx context.Context) ([]Record, error) {
		return s.src.FetchFiltered(ctx, key)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	s.filtered.Reset()
	if err != nil {
		s.logger.Warn("tree: filter failed, showing empty forest",
			slog.String("filter", key),
			slog.String("error", err.Error()))
		matches = nil
	}
	matches = dropBundledMatches(matches)
	for _, m := range matches {
		if len(m.Children) == 0 {
			continue
		}
		s.filtered.Set(m.ID, m.Children)
		m.Children = nil
		m.HasMoreChildren = true
	}
	s.roots = matches
	s.filter = key
	return s.publishLocked()
}

// dropBundledMatches removes matches that are already bundled below another
// match, so every node appears in the filtered forest at most once.
func dropBundledMatches(matches []*Node) []*Node {
	bundled := make(map[NodeID]struct{})
	for _, m := range matches {
		walkNodes(m.Children, 1, func(n *Node, _ int) {
			bundled[n.ID] = struct{}{}
		})
	}
	if len(bundled) == 0 {
		return matches
	}
	kept := matches[:0]
	for _, m := range matches {
		if _, ok := bundled[m.ID]; !ok {
			kept = append(kept, m)
		}
	}
	return kept
}

// Create adds a node under parentID (NoID for a root) and reloads the forest.
func (s *Store) Create(ctx context.Context, parentID NodeID, label string) (Forest, error) {
	if strings.TrimSpace(label) == "" {
		return s.Snapshot(), fmt.Errorf("tree: create: label is required: %w", apperr.ErrInvalidInput)
	}
	rec, err := s.src.CreateNode(ctx, parentID, label)
	if err != nil {
		return s.Snapshot(), sourceErr("create", err)
	}
	s.checkEdited("create", rec)

	s.mu.Lock()
	s.children.Invalidate(parentID)
	s.mu.Unlock()

	return s.Initialize(ctx), nil
}

// Update relabels and/or moves a node and reloads the forest.
func (s *Store) Update(ctx context.Context, id NodeID, label string, parentID NodeID) (Forest, error) {
	switch {
	case id <= NoID:
		return s.Snapshot(), fmt.Errorf("tree: update: invalid node id %d: %w", id, apperr.ErrInvalidInput)
	case strings.TrimSpace(label) == "":
		return s.Snapshot(), fmt.Errorf("tree: update: label is required: %w", apperr.ErrInvalidInput)
	case parentID < NoID || parentID == id:
		return s.Snapshot(), fmt.Errorf("tree: update: invalid parent %d: %w", parentID, apperr.ErrInvalidInput)
	}

	rec, err := s.src.UpdateNode(ctx, id, label, parentID)
	if err != nil {
		return s.Snapshot(), sourceErr("update", err)
	}
	s.checkEdited("update", rec)

	s.mu.Lock()
	s.children.InvalidateContaining(id)
	s.children.Invalidate(parentID)
	if n := findNode(s.roots, id); n != nil {
		s.children.Invalidate(n.ParentID)
	}
	s.filtered.Invalidate(id)
	s.mu.Unlock()

	return s.Initialize(ctx), nil
}

// checkEdited logs a record returned by an edit that does not map to a node.
// The edit itself succeeded, and the reload that follows replaces the record.
func (s *Store) checkEdited(op string, rec Record) {
	if _, err := MapRecord(rec); err != nil {
		s.logger.Warn("tree: "+op+" returned a malformed record", slog.String("error", err.Error()))
	}
}

// Delete removes a node and its subtree and reloads the forest.
func (s *Store) Delete(ctx context.Context, id NodeID) (Forest, error) {
	if id <= NoID {
		return s.Snapshot(), fmt.Errorf("tree: delete: invalid node id %d: %w", id, apperr.ErrInvalidInput)
	}
	if err := s.src.DeleteNode(ctx, id); err != nil {
		return s.Snapshot(), sourceErr("delete", err)
	}

	s.mu.Lock()
	gone := s.knownSubtreeLocked(id)
	s.children.InvalidateContaining(id)
	s.children.Invalidate(gone...)
	s.children.Remove(id)
	s.filtered.Invalidate(gone...)
	s.filtered.Remove(id)
	s.mu.Unlock()

	return s.Initialize(ctx), nil
}

// knownSubtreeLocked collects id and every descendant known to the forest or
// reachable through ChildCache entries.
func (s *Store) knownSubtreeLocked(id NodeID) []NodeID {
	seen := map[NodeID]struct{}{}
	var visit func(id NodeID)
	visit = func(id NodeID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		if n := findNode(s.roots, id); n != nil {
			for _, d := range subtreeIDs(n) {
				visit(d)
			}
		}
		if cached, ok := s.children.c.entries[id]; ok {
			for _, c := range cached {
				visit(c.ID)
			}
		}
	}
	visit(id)

	ids := make([]NodeID, 0, len(seen))
	for d := range seen {
		ids = append(ids, d)
	}
	return ids
}

// ValidParents lists the nodes id may be moved under. When the DataSource
// cannot answer, the loaded forest outside the node's own subtree is used.
func (s *Store) ValidParents(ctx context.Context, id NodeID) ([]*Node, error) {
	if lister, ok := s.src.(ParentLister); ok {
		return s.fetch(ctx, "valid parents", func(ctx context.Context) ([]Record, error) {
			return lister.ValidParents(ctx, id)
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	self := findNode(s.roots, id)
	if self == nil {
		return nil, fmt.Errorf("tree: valid parents: node %d: %w", id, apperr.ErrNotFound)
	}
	excluded := make(map[NodeID]struct{})
	for _, d := range subtreeIDs(self) {
		excluded[d] = struct{}{}
	}
	var out []*Node
	walkNodes(s.roots, 0, func(n *Node, _ int) {
		if _, skip := excluded[n.ID]; !skip {
			out = append(out, &Node{ID: n.ID, Label: n.Label, ParentID: n.ParentID})
		}
	})
	return out, nil
}

func (s *Store) fetch(ctx context.Context, op string, call func(context.Context) ([]Record, error)) ([]*Node, error) {
	records, err := call(ctx)
	if err != nil {
		return nil, sourceErr(op, err)
	}
	nodes, err := MapRecords(records)
	if err != nil {
		return nil, sourceErr(op, err)
	}
	return nodes, nil
}

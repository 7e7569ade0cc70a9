package tree

import (
	"fmt"
	"slices"

	"github.com/goccy/go-json"
)

// ExpandState is the set of expanded node ids. The zero value is an empty set
// and a nil *ExpandState reports every node collapsed.
type ExpandState struct {
	expanded map[NodeID]struct{}
}

// NewExpandState returns a state with the given ids expanded.
func NewExpandState(ids ...NodeID) *ExpandState {
	s := &ExpandState{}
	for _, id := range ids {
		s.Set(id, true)
	}
	return s
}

// IsExpanded reports whether id is expanded.
func (s *ExpandState) IsExpanded(id NodeID) bool {
	if s == nil {
		return false
	}
	_, ok := s.expanded[id]
	return ok
}

// Set expands or collapses id.
func (s *ExpandState) Set(id NodeID, expanded bool) {
	if !expanded {
		delete(s.expanded, id)
		return
	}
	if s.expanded == nil {
		s.expanded = make(map[NodeID]struct{})
	}
	s.expanded[id] = struct{}{}
}

// Clear collapses every node.
func (s *ExpandState) Clear() {
	s.expanded = nil
}

// IDs returns the expanded ids in ascending order.
func (s *ExpandState) IDs() []NodeID {
	if s == nil {
		return nil
	}
	ids := make([]NodeID, 0, len(s.expanded))
	for id := range s.expanded {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of expanded nodes.
func (s *ExpandState) Len() int {
	if s == nil {
		return 0
	}
	return len(s.expanded)
}

const expandStateVersion = 1

type expandStateJSON struct {
	Version  int      `json:"version"`
	Expanded []NodeID `json:"expanded"`
}

// MarshalJSON encodes the state as {"version":1,"expanded":[ids]}.
func (s *ExpandState) MarshalJSON() ([]byte, error) {
	ids := s.IDs()
	if ids == nil {
		ids = []NodeID{}
	}
	return json.Marshal(expandStateJSON{Version: expandStateVersion, Expanded: ids})
}

// UnmarshalJSON replaces the state with the decoded ids.
func (s *ExpandState) UnmarshalJSON(data []byte) error {
	var raw expandStateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Version != expandStateVersion {
		return fmt.Errorf("tree: unsupported expand state version %d", raw.Version)
	}
	s.Clear()
	for _, id := range raw.Expanded {
		s.Set(id, true)
	}
	return nil
}

// NodeState is the render-relevant state of a single node.
type NodeState int

const (
	// Leaf nodes have no children, loaded or remote.
	Leaf NodeState = iota
	CollapsedUnloaded
	Loading
	ExpandedLoaded
	CollapsedLoaded
)

func (s NodeState) String() string {
	switch s {
	case Leaf:
		return "leaf"
	case CollapsedUnloaded:
		return "collapsed-unloaded"
	case Loading:
		return "loading"
	case ExpandedLoaded:
		return "expanded-loaded"
	case CollapsedLoaded:
		return "collapsed-loaded"
	default:
		return fmt.Sprintf("NodeState(%d)", int(s))
	}
}

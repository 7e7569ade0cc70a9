package datasource

import (
	"context"

	"github.com/starford/lazytree/internal/tree"
	"github.com/starford/lazytree/internal/treeservice"
)

// Local serves the tree straight from the service, without HTTP.
type Local struct {
	svc *treeservice.Service
}

var (
	_ tree.DataSource   = (*Local)(nil)
	_ tree.ParentLister = (*Local)(nil)
)

// NewLocal creates an in-process data source.
func NewLocal(svc *treeservice.Service) *Local {
	return &Local{svc: svc}
}

func toRecord(n treeservice.NodeRecord) tree.Record {
	var parent tree.NodeID
	if n.Parent != nil {
		parent = tree.NodeID(*n.Parent)
	}
	r := tree.NewRecord(tree.NodeID(n.ID), n.Node, parent, n.ChildrenLength)
	if len(n.Children) > 0 {
		r = r.WithChildren(toRecords(n.Children)...)
	}
	return r
}

func toRecords(nodes []treeservice.NodeRecord) []tree.Record {
	out := make([]tree.Record, len(nodes))
	for i, n := range nodes {
		out[i] = toRecord(n)
	}
	return out
}

func (l *Local) list(ctx context.Context, parentID tree.NodeID, filter string) ([]tree.Record, error) {
	nodes, err := l.svc.Nodes(ctx, int64(parentID), filter)
	if err != nil {
		return nil, err
	}
	return toRecords(nodes), nil
}

// FetchRoots lists the top-level nodes.
func (l *Local) FetchRoots(ctx context.Context) ([]tree.Record, error) {
	return l.list(ctx, tree.NoID, "")
}

// FetchChildren lists the direct children of parentID.
func (l *Local) FetchChildren(ctx context.Context, parentID tree.NodeID) ([]tree.Record, error) {
	return l.list(ctx, parentID, "")
}

// FetchFiltered lists the nodes matching key with their children embedded.
func (l *Local) FetchFiltered(ctx context.Context, key string) ([]tree.Record, error) {
	return l.list(ctx, tree.NoID, key)
}

// CreateNode creates a node under parentID.
func (l *Local) CreateNode(ctx context.Context, parentID tree.NodeID, label string) (tree.Record, error) {
	n, err := l.svc.Create(ctx, int64(parentID), label)
	if err != nil {
		return tree.Record{}, err
	}
	return toRecord(n), nil
}

// UpdateNode relabels id and moves it under parentID.
func (l *Local) UpdateNode(ctx context.Context, id tree.NodeID, label string, parentID tree.NodeID) (tree.Record, error) {
	n, err := l.svc.Update(ctx, int64(id), label, int64(parentID))
	if err != nil {
		return tree.Record{}, err
	}
	return toRecord(n), nil
}

// DeleteNode removes id and its subtree.
func (l *Local) DeleteNode(ctx context.Context, id tree.NodeID) error {
	_, err := l.svc.Delete(ctx, int64(id))
	return err
}

// ValidParents lists the nodes id may be moved under.
func (l *Local) ValidParents(ctx context.Context, id tree.NodeID) ([]tree.Record, error) {
	nodes, err := l.svc.ValidParents(ctx, int64(id))
	if err != nil {
		return nil, err
	}
	return toRecords(nodes), nil
}

package treedb

import "context"

// Repository defines the node storage operations behind the tree API.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Repository interface {
	Get(ctx context.Context, id int64) (Row, error)
	Roots(ctx context.Context) ([]Row, error)
	Children(ctx context.Context, parentID int64) ([]Row, error)
	Filter(ctx context.Context, key string, limit int) ([]Row, error)
	Create(ctx context.Context, parentID int64, label string) (Row, error)
	Update(ctx context.Context, id int64, label string, parentID int64) (Row, error)
	Delete(ctx context.Context, id int64) error
	ValidParents(ctx context.Context, id int64) ([]Row, error)
	Subtree(ctx context.Context, id int64) ([]Row, error)
	Replace(ctx context.Context, outline []Branch) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)

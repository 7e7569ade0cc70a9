package tree

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/lazytree/internal/apperr"
)

// DataSource performs the remote fetch and edit calls for the Store.
// Implementations report failures as errors and must never panic.
type DataSource interface {
	// FetchRoots returns the top-level page (nodes without a parent).
	FetchRoots(ctx context.Context) ([]Record, error)
	// FetchChildren returns the direct children of parentID.
	FetchChildren(ctx context.Context, parentID NodeID) ([]Record, error)
	// FetchFiltered returns the nodes matching key, each with its children embedded.
	FetchFiltered(ctx context.Context, key string) ([]Record, error)
	CreateNode(ctx context.Context, parentID NodeID, label string) (Record, error)
	UpdateNode(ctx context.Context, id NodeID, label string, parentID NodeID) (Record, error)
	DeleteNode(ctx context.Context, id NodeID) error
}

// ParentLister is implemented by data sources that can list the nodes a node
// may be moved under.
type ParentLister interface {
	ValidParents(ctx context.Context, id NodeID) ([]Record, error)
}

// sourceErr classifies a DataSource failure. Errors that are neither mapping
// nor transport failures already are reported as transport failures.
func sourceErr(op string, err error) error {
	if errors.Is(err, apperr.ErrTransport) || errors.Is(err, apperr.ErrMapping) {
		return fmt.Errorf("tree: %s: %w", op, err)
	}
	return fmt.Errorf("tree: %s: %w: %w", op, apperr.ErrTransport, err)
}

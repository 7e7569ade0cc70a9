package api

import "github.com/starford/lazytree/internal/treeservice"

// NodeRecord is the wire node type (aliased from the domain layer).
type NodeRecord = treeservice.NodeRecord

// CreateNodeRequest is the request body for creating a node.
type CreateNodeRequest struct {
	Node   string `json:"node" example:"Groceries" validate:"required"`
	Parent *int64 `json:"parent" example:"1"`
}

// UpdateNodeRequest is the request body for relabelling or moving a node.
// A null parent moves the node to the top level.
type UpdateNodeRequest struct {
	Node   string `json:"node" example:"Shopping" validate:"required"`
	Parent *int64 `json:"parent" example:"3"`
}

// NodesResponse wraps a children page or filter results.
type NodesResponse struct {
	Nodes []NodeRecord `json:"nodes" validate:"required"`
}

// DeleteResponse wraps the removed node.
type DeleteResponse struct {
	Node NodeRecord `json:"node" validate:"required"`
}

// ValidParentsResponse wraps the nodes a node may be moved under.
type ValidParentsResponse struct {
	ValidParents []NodeRecord `json:"validParents" validate:"required"`
}

func parentValue(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

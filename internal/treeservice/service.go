// Package treeservice coordinates the node store and change notifications
// behind the tree API.
package treeservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/lazytree/internal/apperr"
	"github.com/starford/lazytree/internal/treedb"
)

// NodeRecord is the wire representation of a node.
type NodeRecord struct {
	ID             int64        `json:"id" example:"2" validate:"required"`
	Node           string       `json:"node" example:"Groceries" validate:"required"`
	Parent         *int64       `json:"parent" example:"1"`
	ChildrenLength int          `json:"childrenLength" example:"3" validate:"required"`
	Children       []NodeRecord `json:"children,omitempty"`
}

// EventPublisher receives change notifications after successful writes.
type EventPublisher interface {
	PublishNodeEvent(kind string, id, parentID int64)
	PublishReload(count int)
}

// Service coordinates the node store and event publishing.
type Service struct {
	db     treedb.Repository
	events EventPublisher
	logger *slog.Logger
}

// NewService creates a new tree service. events may be nil.
func NewService(db treedb.Repository, events EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, events: events, logger: logger}
}

func toRecord(r treedb.Row) NodeRecord {
	rec := NodeRecord{
		ID:             r.ID,
		Node:           r.Label,
		ChildrenLength: r.ChildCount,
	}
	if r.ParentID != 0 {
		p := r.ParentID
		rec.Parent = &p
	}
	if len(r.Children) > 0 {
		rec.Children = toRecords(r.Children)
	}
	return rec
}

func toRecords(rows []treedb.Row) []NodeRecord {
	out := make([]NodeRecord, len(rows))
	for i, r := range rows {
		out[i] = toRecord(r)
	}
	return out
}

func (s *Service) publish(kind string, id, parentID int64) {
	if s.events != nil {
		s.events.PublishNodeEvent(kind, id, parentID)
	}
}

// Nodes returns the children of parentID (0 for the roots), or the nodes
// matching filter with their children embedded when filter is not empty.
func (s *Service) Nodes(ctx context.Context, parentID int64, filter string) ([]NodeRecord, error) {
	if filter = strings.TrimSpace(filter); filter != "" {
		rows, err := s.db.Filter(ctx, filter, 0)
		if err != nil {
			return nil, err
		}
		return toRecords(rows), nil
	}
	if parentID != 0 {
		if _, err := s.db.Get(ctx, parentID); err != nil {
			return nil, err
		}
	}
	rows, err := s.db.Children(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// Get returns a single node.
func (s *Service) Get(ctx context.Context, id int64) (NodeRecord, error) {
	row, err := s.db.Get(ctx, id)
	if err != nil {
		return NodeRecord{}, err
	}
	return toRecord(row), nil
}

// Create appends a node under parentID (0 for a root).
func (s *Service) Create(ctx context.Context, parentID int64, label string) (NodeRecord, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return NodeRecord{}, fmt.Errorf("treeservice: label is required: %w", apperr.ErrInvalidInput)
	}
	row, err := s.db.Create(ctx, parentID, label)
	if err != nil {
		return NodeRecord{}, err
	}
	s.publish("created", row.ID, row.ParentID)
	return toRecord(row), nil
}

// Update relabels a node and moves it under parentID (0 for a root).
func (s *Service) Update(ctx context.Context, id int64, label string, parentID int64) (NodeRecord, error) {
	label = strings.TrimSpace(label)
	switch {
	case label == "":
		return NodeRecord{}, fmt.Errorf("treeservice: label is required: %w", apperr.ErrInvalidInput)
	case parentID == id:
		return NodeRecord{}, fmt.Errorf("treeservice: node cannot be its own parent: %w", apperr.ErrInvalidInput)
	}
	row, err := s.db.Update(ctx, id, label, parentID)
	if err != nil {
		return NodeRecord{}, err
	}
	s.publish("updated", row.ID, row.ParentID)
	return toRecord(row), nil
}

// Delete removes a node and its subtree and returns the removed node.
func (s *Service) Delete(ctx context.Context, id int64) (NodeRecord, error) {
	row, err := s.db.Get(ctx, id)
	if err != nil {
		return NodeRecord{}, err
	}
	below, err := s.db.Subtree(ctx, id)
	if err != nil {
		return NodeRecord{}, err
	}
	if err := s.db.Delete(ctx, id); err != nil {
		return NodeRecord{}, err
	}
	for _, d := range below {
		s.publish("deleted", d.ID, d.ParentID)
	}
	s.publish("deleted", row.ID, row.ParentID)
	if len(below) > 0 {
		s.logger.Info("node deleted with descendants",
			slog.Int64("id", row.ID),
			slog.Int("descendants", len(below)))
	}
	return toRecord(row), nil
}

// ValidParents lists the nodes id may be moved under.
func (s *Service) ValidParents(ctx context.Context, id int64) ([]NodeRecord, error) {
	rows, err := s.db.ValidParents(ctx, id)
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// Import replaces the whole tree with outline.
func (s *Service) Import(ctx context.Context, outline []treedb.Branch) (int, error) {
	n, err := s.db.Replace(ctx, outline)
	if err != nil {
		return 0, err
	}
	s.logger.Info("tree imported", slog.Int("nodes", n))
	if s.events != nil {
		s.events.PublishReload(n)
	}
	return n, nil
}

// Count returns the number of stored nodes.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.db.Count(ctx)
}

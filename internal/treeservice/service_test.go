package treeservice

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/lazytree/internal/apperr"
	"github.com/starford/lazytree/internal/treedb"
)

type recordedEvent struct {
	kind     string
	id       int64
	parentID int64
}

type recorder struct {
	events  []recordedEvent
	reloads []int
}

func (r *recorder) PublishNodeEvent(kind string, id, parentID int64) {
	r.events = append(r.events, recordedEvent{kind, id, parentID})
}

func (r *recorder) PublishReload(count int) {
	r.reloads = append(r.reloads, count)
}

func testService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	db, err := treedb.Open(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	rec := &recorder{}
	return NewService(db, rec, nil), rec
}

func TestCreateListAndEvents(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, 0, "root")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if root.Parent != nil {
		t.Errorf("root parent = %v, want nil", *root.Parent)
	}
	child, err := svc.Create(ctx, root.ID, "  a  ")
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}
	if child.Node != "a" || child.Parent == nil || *child.Parent != root.ID {
		t.Fatalf("child = %+v", child)
	}

	roots, err := svc.Nodes(ctx, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 1 || roots[0].ChildrenLength != 1 {
		t.Fatalf("roots = %+v", roots)
	}

	if len(rec.events) != 2 || rec.events[1] != (recordedEvent{"created", child.ID, root.ID}) {
		t.Errorf("events = %+v", rec.events)
	}
}

func TestNodesErrors(t *testing.T) {
	svc, _ := testService(t)
	if _, err := svc.Nodes(context.Background(), 42, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing parent err = %v", err)
	}
	if _, err := svc.Create(context.Background(), 0, " "); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty label err = %v", err)
	}
}

func TestFilterAndDelete(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()

	n, err := svc.Import(ctx, []treedb.Branch{
		{Label: "root", Children: []treedb.Branch{
			{Label: "alpha", Children: []treedb.Branch{{Label: "leaf"}}},
			{Label: "beta"},
		}},
	})
	if err != nil || n != 4 {
		t.Fatalf("Import = %d, %v", n, err)
	}
	if len(rec.reloads) != 1 || rec.reloads[0] != 4 {
		t.Errorf("reloads = %v", rec.reloads)
	}

	matches, err := svc.Nodes(ctx, 0, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || len(matches[0].Children) != 1 || matches[0].Children[0].Node != "leaf" {
		t.Fatalf("matches = %+v", matches)
	}

	removed, err := svc.Delete(ctx, matches[0].ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed.Node != "alpha" {
		t.Errorf("removed = %+v", removed)
	}
	if count, _ := svc.Count(ctx); count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if _, err := svc.Delete(ctx, matches[0].ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestDeletePublishesCascadedNodes(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()

	if _, err := svc.Import(ctx, []treedb.Branch{
		{Label: "root", Children: []treedb.Branch{
			{Label: "alpha", Children: []treedb.Branch{{Label: "leaf"}}},
		}},
	}); err != nil {
		t.Fatal(err)
	}
	roots, err := svc.Nodes(ctx, 0, "")
	if err != nil || len(roots) != 1 {
		t.Fatalf("roots = %+v, %v", roots, err)
	}
	root := roots[0].ID

	if _, err := svc.Delete(ctx, root); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(rec.events) != 3 {
		t.Fatalf("events = %+v, want 3 deletions", rec.events)
	}
	for _, e := range rec.events {
		if e.kind != "deleted" {
			t.Errorf("event = %+v, want deleted", e)
		}
	}
	if last := rec.events[2]; last.id != root || last.parentID != 0 {
		t.Errorf("last event = %+v, want the deleted root", last)
	}
	if first := rec.events[0]; first.parentID == root {
		t.Errorf("deepest node should be announced first, got %+v", first)
	}
}

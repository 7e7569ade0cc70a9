// Package testutil provides shared test helpers for setting up tree databases.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/starford/lazytree/internal/treedb"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *treedb.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "lazytree-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := treedb.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ScenarioOutline is the tree used across package tests:
//
//	root
//	├── a
//	│   └── a1
//	└── b
func ScenarioOutline() []treedb.Branch {
	return []treedb.Branch{
		{Label: "root", Children: []treedb.Branch{
			{Label: "a", Children: []treedb.Branch{{Label: "a1"}}},
			{Label: "b"},
		}},
	}
}

// SeedScenario stores ScenarioOutline in db and returns the node ids by label.
func SeedScenario(t *testing.T, db *treedb.DB) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	if _, err := db.Replace(ctx, ScenarioOutline()); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	ids := make(map[string]int64)
	var walk func(parent int64)
	walk = func(parent int64) {
		rows, err := db.Children(ctx, parent)
		if err != nil {
			t.Fatalf("Children(%d): %v", parent, err)
		}
		for _, r := range rows {
			ids[r.Label] = r.ID
			walk(r.ID)
		}
	}
	walk(0)
	return ids
}

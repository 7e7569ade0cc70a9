package tree

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/starford/lazytree/internal/apperr"
)

// fakeSource is an in-memory DataSource that counts calls.
type fakeSource struct {
	mu       sync.Mutex
	roots    []Record
	children map[NodeID][]Record
	filtered map[string][]Record
	err      error

	rootCalls   int
	childCalls  map[NodeID]int
	filterCalls int
	edits       []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		children:   make(map[NodeID][]Record),
		filtered:   make(map[string][]Record),
		childCalls: make(map[NodeID]int),
	}
}

func (f *fakeSource) FetchRoots(context.Context) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rootCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.roots, nil
}

func (f *fakeSource) FetchChildren(_ context.Context, parentID NodeID) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.childCalls[parentID]++
	if f.err != nil {
		return nil, f.err
	}
	return f.children[parentID], nil
}

func (f *fakeSource) FetchFiltered(_ context.Context, key string) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.filtered[key], nil
}

func (f *fakeSource) CreateNode(_ context.Context, parentID NodeID, label string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Record{}, f.err
	}
	f.edits = append(f.edits, "create")
	return NewRecord(99, label, parentID, 0), nil
}

func (f *fakeSource) UpdateNode(_ context.Context, id NodeID, label string, parentID NodeID) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Record{}, f.err
	}
	f.edits = append(f.edits, "update")
	return NewRecord(id, label, parentID, 0), nil
}

func (f *fakeSource) DeleteNode(_ context.Context, id NodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.edits = append(f.edits, "delete")
	kept := f.roots[:0]
	for _, r := range f.roots {
		if *r.ID != id {
			kept = append(kept, r)
		}
	}
	f.roots = kept
	for parent, list := range f.children {
		kept := make([]Record, 0, len(list))
		for _, r := range list {
			if *r.ID != id {
				kept = append(kept, r)
			}
		}
		f.children[parent] = kept
	}
	delete(f.children, id)
	return nil
}

func (f *fakeSource) childFetches(id NodeID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.childCalls[id]
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// scenarioSource returns root(1) -> a(2), b(3) with a filter "a" matching a
// with a bundled child a1(4).
func scenarioSource() *fakeSource {
	src := newFakeSource()
	src.roots = []Record{NewRecord(1, "root", NoID, 2)}
	src.children[1] = []Record{
		NewRecord(2, "a", 1, 0),
		NewRecord(3, "b", 1, 0),
	}
	src.filtered["a"] = []Record{
		NewRecord(2, "a", 1, 1).WithChildren(NewRecord(4, "a1", 2, 0)),
	}
	return src
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, src DataSource, opts ...StoreOption) *Store {
	t.Helper()
	opts = append([]StoreOption{WithLogger(quietLogger())}, opts...)
	s := NewStore(src, opts...)
	t.Cleanup(s.Close)
	return s
}

func labels(nodes []*FlatNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Label
	}
	return out
}

func depths(nodes []*FlatNode) []int {
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = n.Depth
	}
	return out
}

func equalSlices[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var errBoom = errors.New("boom")

func TestSourceErrClassification(t *testing.T) {
	err := sourceErr("load", errBoom)
	if !errors.Is(err, apperr.ErrTransport) || !errors.Is(err, errBoom) {
		t.Fatalf("plain error should become transport failure, got %v", err)
	}

	mapped := sourceErr("load", &MappingError{Err: errBoom})
	if !errors.Is(mapped, apperr.ErrMapping) {
		t.Fatalf("mapping error lost: %v", mapped)
	}
	if errors.Is(mapped, apperr.ErrTransport) {
		t.Fatalf("mapping error must not be reported as transport: %v", mapped)
	}
}

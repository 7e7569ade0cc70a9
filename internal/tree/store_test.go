package tree

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/starford/lazytree/internal/apperr"
)

func TestInitializeBroadcastsRoots(t *testing.T) {
	src := scenarioSource()
	s := newTestStore(t, src)

	f := s.Initialize(context.Background())
	if len(f.Roots) != 1 || f.Roots[0].Label != "root" {
		t.Fatalf("unexpected roots: %+v", f.Roots)
	}
	if !f.Roots[0].HasMoreChildren || !f.Roots[0].Expandable() {
		t.Errorf("root should be collapsed-unloaded: %+v", f.Roots[0])
	}
	if f.Version != 2 {
		t.Errorf("version = %d, want 2", f.Version)
	}
}

func TestSubscribeReplaysLatestForest(t *testing.T) {
	s := newTestStore(t, scenarioSource())
	s.Initialize(context.Background())

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	timeout := time.After(time.Second)
	for {
		select {
		case f := <-ch:
			if f.Version < 2 {
				continue
			}
			if f.Version != 2 || len(f.Roots) != 1 {
				t.Fatalf("replayed forest = %+v", f)
			}
			return
		case <-timeout:
			t.Fatal("no replay for late subscriber")
		}
	}
}

func TestInitializeFailSoft(t *testing.T) {
	src := scenarioSource()
	s := newTestStore(t, src)
	s.Initialize(context.Background())

	src.fail(errBoom)
	f := s.Initialize(context.Background())
	if len(f.Roots) != 0 {
		t.Fatalf("failed initialize should empty the forest, got %d roots", len(f.Roots))
	}
}

func TestInitializeMappingFailureIsFailSoft(t *testing.T) {
	src := newFakeSource()
	label := "no id"
	src.roots = []Record{{Label: &label}}
	s := newTestStore(t, src)

	f := s.Initialize(context.Background())
	if len(f.Roots) != 0 {
		t.Fatalf("malformed roots should produce an empty forest, got %+v", f.Roots)
	}
}

func TestLoadChildrenCacheHitAvoidsFetch(t *testing.T) {
	src := scenarioSource()
	s := newTestStore(t, src)
	s.Initialize(context.Background())

	for i := 0; i < 2; i++ {
		children, err := s.LoadChildren(context.Background(), 1)
		if err != nil {
			t.Fatalf("LoadChildren #%d: %v", i, err)
		}
		if len(children) != 2 {
			t.Fatalf("LoadChildren #%d returned %d children", i, len(children))
		}
	}
	if n := src.childFetches(1); n != 1 {
		t.Errorf("FetchChildren calls = %d, want 1", n)
	}

	root := s.Snapshot().Find(1)
	if len(root.Children) != 2 || root.HasMoreChildren {
		t.Errorf("children not spliced: %+v", root)
	}
	if root.Children[0].ParentID != 1 {
		t.Errorf("child parent = %d, want 1", root.Children[0].ParentID)
	}
}

func TestLoadChildrenFailurePropagates(t *testing.T) {
	src := scenarioSource()
	s := newTestStore(t, src)
	s.Initialize(context.Background())
	before := s.Snapshot()

	src.fail(errBoom)
	_, err := s.LoadChildren(context.Background(), 1)
	if !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if after := s.Snapshot(); after.Version != before.Version {
		t.Errorf("failed load broadcast a new forest")
	}
}

func TestLoadChildrenMappingFailure(t *testing.T) {
	src := scenarioSource()
	bad := -1
	src.children[1] = []Record{{ID: new(NodeID), ChildCount: &bad}}
	s := newTestStore(t, src)
	s.Initialize(context.Background())

	_, err := s.LoadChildren(context.Background(), 1)
	if !errors.Is(err, apperr.ErrMapping) {
		t.Fatalf("err = %v, want ErrMapping", err)
	}
	var me *MappingError
	if !errors.As(err, &me) || me.Index != 0 {
		t.Fatalf("expected *MappingError for record 0, got %v", err)
	}
}

func TestLoadChildrenForMissingParentIsNoop(t *testing.T) {
	src := scenarioSource()
	src.children[42] = []Record{NewRecord(43, "orphan", 42, 0)}
	s := newTestStore(t, src)
	s.Initialize(context.Background())
	before := s.Snapshot()

	children, err := s.LoadChildren(context.Background(), 42)
	if err != nil {
		t.Fatalf("LoadChildren: %v", err)
	}
	if len(children) != 1 {
		t.Errorf("children = %d, want 1", len(children))
	}
	if s.Snapshot().Version != before.Version {
		t.Error("splice into a missing parent should not broadcast")
	}
	if cached, _ := s.CacheStats(); cached != 1 {
		t.Errorf("child cache entries = %d, want 1", cached)
	}
}

// gatedFetch holds the n-th FetchChildren call until gates[n] is closed and
// answers it with a single child labelled labels[n].
type gatedFetch struct {
	*fakeSource
	gates  []chan struct{}
	labels []string

	mu      sync.Mutex
	entered int
}

func newGatedFetch(labels ...string) *gatedFetch {
	g := &gatedFetch{fakeSource: scenarioSource(), labels: labels}
	for range labels {
		g.gates = append(g.gates, make(chan struct{}))
	}
	return g
}

func (g *gatedFetch) FetchChildren(ctx context.Context, parentID NodeID) ([]Record, error) {
	g.mu.Lock()
	n := g.entered
	g.entered++
	g.mu.Unlock()

	<-g.gates[n]
	if _, err := g.fakeSource.FetchChildren(ctx, parentID); err != nil {
		return nil, err
	}
	return []Record{NewRecord(NodeID(10+n), g.labels[n], parentID, 0)}, nil
}

func TestLoadChildrenSingleFlight(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		src := newGatedFetch("only", "unused", "unused", "unused")
		s := newTestStore(t, src, WithSingleFlight())
		s.Initialize(context.Background())

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Go(func() {
				children, err := s.LoadChildren(context.Background(), 1)
				if err != nil {
					t.Errorf("LoadChildren: %v", err)
					return
				}
				if len(children) != 1 || children[0].Label != "only" {
					t.Errorf("children = %+v", children)
				}
			})
		}
		synctest.Wait()
		close(src.gates[0])
		wg.Wait()

		if n := src.childFetches(1); n != 1 {
			t.Errorf("FetchChildren calls = %d, want 1", n)
		}
	})
}

func TestLoadChildrenConcurrentMissesLastResponseWins(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		src := newGatedFetch("first", "second")
		s := newTestStore(t, src)
		s.Initialize(context.Background())

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Go(func() {
				if _, err := s.LoadChildren(context.Background(), 1); err != nil {
					t.Errorf("LoadChildren: %v", err)
				}
			})
		}
		synctest.Wait()
		if n := src.childFetches(1); n != 0 {
			t.Fatalf("fetches completed before release: %d", n)
		}

		close(src.gates[1])
		synctest.Wait()
		close(src.gates[0])
		wg.Wait()

		if n := src.childFetches(1); n != 2 {
			t.Errorf("FetchChildren calls = %d, want 2", n)
		}
		children, err := s.LoadChildren(context.Background(), 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(children) != 1 || children[0].Label != "first" {
			t.Errorf("cached children = %+v, want the later response", children)
		}
		if root := s.Snapshot().Find(1); len(root.Children) != 1 || root.Children[0].Label != "first" {
			t.Errorf("spliced children = %+v", root.Children)
		}
	})
}

func TestApplyFilterSeedsFilterCache(t *testing.T) {
	src := scenarioSource()
	s := newTestStore(t, src)
	s.Initialize(context.Background())

	f := s.ApplyFilter(context.Background(), "a")
	if !f.Filtered() || len(f.Roots) != 1 || f.Roots[0].ID != 2 {
		t.Fatalf("filtered forest = %+v", f)
	}
	if len(f.Roots[0].Children) != 0 || !f.Roots[0].HasMoreChildren {
		t.Fatalf("match should be collapsed-unloaded: %+v", f.Roots[0])
	}

	children, err := s.LoadChildren(context.Background(), 2)
	if err != nil {
		t.Fatalf("LoadChildren: %v", err)
	}
	if len(children) != 1 || children[0].Label != "a1" {
		t.Fatalf("children = %+v", children)
	}
	if n := src.childFetches(2); n != 0 {
		t.Errorf("FetchChildren calls = %d, want 0", n)
	}
	if cached, filtered := s.CacheStats(); cached != 0 || filtered != 1 {
		t.Errorf("cache stats = (%d, %d), want (0, 1)", cached, filtered)
	}
}

func TestApplyFilterEmptyKeyReinitializes(t *testing.T) {
	src := scenarioSource()
	s := newTestStore(t, src)
	s.ApplyFilter(context.Background(), "a")

	f := s.ApplyFilter(context.Background(), "  ")
	if f.Filtered() || len(f.Roots) != 1 || f.Roots[0].ID != 1 {
		t.Fatalf("empty filter should restore the root page: %+v", f)
	}
}

func TestApplyFilterFailSoft(t *testing.T) {
	src := scenarioSource()
	s := newTestStore(t, src)
	s.Initialize(context.Background())

	src.fail(errBoom)
	f := s.ApplyFilter(context.Background(), "a")
	if len(f.Roots) != 0 || !f.Filtered() {
		t.Fatalf("failed filter should show an empty filtered forest: %+v", f)
	}
}

func TestDeleteReinitializesAndDropsNode(t *testing.T) {
	src := scenarioSource()
	s := newTestStore(t, src)
	s.Initialize(context.Background())
	if _, err := s.LoadChildren(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	f, err := s.Delete(context.Background(), 2)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.Find(2) != nil {
		t.Fatal("deleted node still in forest")
	}
	if cached, _ := s.CacheStats(); cached != 0 {
		t.Errorf("child cache entries = %d, want 0", cached)
	}

	children, err := s.LoadChildren(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0].ID != 3 {
		t.Errorf("children after delete = %+v", children)
	}
	if n := src.childFetches(1); n != 2 {
		t.Errorf("FetchChildren calls = %d, want 2", n)
	}
}

func TestEditFailureKeepsForest(t *testing.T) {
	src := scenarioSource()
	s := newTestStore(t, src)
	s.Initialize(context.Background())
	before := s.Snapshot()

	src.fail(errBoom)
	if _, err := s.Create(context.Background(), 1, "c"); !errors.Is(err, apperr.ErrTransport) {
		t.Errorf("Create err = %v", err)
	}
	if _, err := s.Update(context.Background(), 1, "x", NoID); !errors.Is(err, apperr.ErrTransport) {
		t.Errorf("Update err = %v", err)
	}
	if _, err := s.Delete(context.Background(), 1); !errors.Is(err, apperr.ErrTransport) {
		t.Errorf("Delete err = %v", err)
	}
	if after := s.Snapshot(); after.Version != before.Version || len(after.Roots) != 1 {
		t.Errorf("forest changed after failed edits: %+v", after)
	}
}

func TestEditValidation(t *testing.T) {
	s := newTestStore(t, scenarioSource())

	if _, err := s.Create(context.Background(), 1, " "); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("Create empty label err = %v", err)
	}
	if _, err := s.Update(context.Background(), 2, "a", 2); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("Update self-parent err = %v", err)
	}
	if _, err := s.Delete(context.Background(), NoID); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("Delete no id err = %v", err)
	}
}

func TestCreateInvalidatesParentEntry(t *testing.T) {
	src := scenarioSource()
	s := newTestStore(t, src)
	s.Initialize(context.Background())
	if _, err := s.LoadChildren(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Create(context.Background(), 1, "c"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cached, _ := s.CacheStats(); cached != 0 {
		t.Errorf("child cache entries = %d, want 0", cached)
	}
	if src.rootCalls != 2 {
		t.Errorf("FetchRoots calls = %d, want 2", src.rootCalls)
	}
}

func TestValidParentsFallsBackToForest(t *testing.T) {
	src := scenarioSource()
	src.children[2] = []Record{NewRecord(5, "a-child", 2, 0)}
	src.children[1][0] = NewRecord(2, "a", 1, 1)
	s := newTestStore(t, src)
	s.Initialize(context.Background())
	if _, err := s.LoadChildren(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadChildren(context.Background(), 2); err != nil {
		t.Fatal(err)
	}

	parents, err := s.ValidParents(context.Background(), 2)
	if err != nil {
		t.Fatalf("ValidParents: %v", err)
	}
	var ids []NodeID
	for _, p := range parents {
		ids = append(ids, p.ID)
	}
	if !equalSlices(ids, []NodeID{1, 3}) {
		t.Errorf("valid parents = %v, want [1 3]", ids)
	}

	if _, err := s.ValidParents(context.Background(), 77); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown node err = %v", err)
	}
}

func TestApplyFilterDropsBundledMatches(t *testing.T) {
	src := scenarioSource()
	src.filtered["a"] = []Record{
		NewRecord(4, "a1", 2, 0),
		NewRecord(2, "a", 1, 1).WithChildren(NewRecord(4, "a1", 2, 0)),
		NewRecord(3, "ba", 1, 0),
	}
	s := newTestStore(t, src)

	f := s.ApplyFilter(context.Background(), "a")
	var ids []NodeID
	for _, r := range f.Roots {
		ids = append(ids, r.ID)
	}
	if !equalSlices(ids, []NodeID{2, 3}) {
		t.Fatalf("filtered roots = %v, want [2 3]", ids)
	}
}

func TestUpdateMoveInvalidatesOldAndNewParent(t *testing.T) {
	src := scenarioSource()
	src.children[1] = []Record{NewRecord(2, "a", 1, 1), NewRecord(3, "b", 1, 1)}
	src.children[2] = []Record{NewRecord(4, "a1", 2, 0)}
	src.children[3] = []Record{NewRecord(5, "b1", 3, 0)}
	s := newTestStore(t, src)
	ctx := context.Background()
	s.Initialize(ctx)
	for _, id := range []NodeID{1, 2, 3} {
		if _, err := s.LoadChildren(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Update(ctx, 4, "a1", 3); err != nil {
		t.Fatalf("Update: %v", err)
	}
	for _, id := range []NodeID{1, 2, 3} {
		if _, err := s.LoadChildren(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	if n := src.childFetches(2); n != 2 {
		t.Errorf("old parent fetches = %d, want 2", n)
	}
	if n := src.childFetches(3); n != 2 {
		t.Errorf("new parent fetches = %d, want 2", n)
	}
	if n := src.childFetches(1); n != 1 {
		t.Errorf("unrelated parent fetches = %d, want 1", n)
	}
}

type malformedEdits struct {
	*fakeSource
}

func (malformedEdits) CreateNode(context.Context, NodeID, string) (Record, error) {
	return Record{}, nil
}

func (malformedEdits) UpdateNode(context.Context, NodeID, string, NodeID) (Record, error) {
	return Record{}, nil
}

func TestEditsReportMalformedRecords(t *testing.T) {
	var logs bytes.Buffer
	src := malformedEdits{fakeSource: scenarioSource()}
	s := newTestStore(t, src, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	ctx := context.Background()

	if _, err := s.Create(ctx, 1, "c"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Update(ctx, 1, "x", NoID); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := strings.Count(logs.String(), "malformed record"); got != 2 {
		t.Errorf("malformed record warnings = %d, want 2:\n%s", got, logs.String())
	}
	if f := s.Snapshot(); len(f.Roots) != 1 {
		t.Errorf("forest not reloaded after edits: %+v", f.Roots)
	}
}

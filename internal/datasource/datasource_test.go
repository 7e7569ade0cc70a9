package datasource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lazytree/internal/api"
	"github.com/starford/lazytree/internal/apperr"
	"github.com/starford/lazytree/internal/sse"
	"github.com/starford/lazytree/internal/testutil"
	"github.com/starford/lazytree/internal/tree"
	"github.com/starford/lazytree/internal/treeservice"
)

type testServer struct {
	client *HTTP
	svc    *treeservice.Service
	ids    map[string]int64
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	db := testutil.TestDB(t)
	ids := testutil.SeedScenario(t, db)

	broker := sse.NewBroker(time.Millisecond)
	t.Cleanup(broker.Close)
	svc := treeservice.NewService(db, broker, nil)

	r := chi.NewRouter()
	r.Mount("/api", api.NewRouter(svc, token != "", token, broker))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	client, err := NewHTTP(srv.URL+"/api/", token, time.Second)
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	return &testServer{client: client, svc: svc, ids: ids}
}

func TestNewHTTPRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://host", "http://", "::"} {
		if _, err := NewHTTP(raw, "", 0); err == nil {
			t.Errorf("NewHTTP(%q) accepted", raw)
		}
	}
}

func TestHTTPFetch(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()

	roots, err := ts.client.FetchRoots(ctx)
	if err != nil {
		t.Fatalf("FetchRoots: %v", err)
	}
	if len(roots) != 1 || *roots[0].Label != "root" || *roots[0].ChildCount != 2 || roots[0].ParentID != nil {
		t.Fatalf("roots = %+v", roots)
	}

	children, err := ts.client.FetchChildren(ctx, tree.NodeID(ts.ids["root"]))
	if err != nil {
		t.Fatalf("FetchChildren: %v", err)
	}
	if len(children) != 2 || *children[0].Label != "a" {
		t.Fatalf("children = %+v", children)
	}
	if _, err := tree.MapRecords(children); err != nil {
		t.Errorf("children do not map: %v", err)
	}

	filtered, err := ts.client.FetchFiltered(ctx, "a1")
	if err != nil {
		t.Fatalf("FetchFiltered: %v", err)
	}
	if len(filtered) != 1 || *filtered[0].Label != "a1" {
		t.Fatalf("filtered = %+v", filtered)
	}
}

func TestHTTPEditsAndStatusErrors(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()
	root := tree.NodeID(ts.ids["root"])

	created, err := ts.client.CreateNode(ctx, root, "c")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if *created.Label != "c" || created.ParentID == nil || *created.ParentID != root {
		t.Fatalf("created = %+v", created)
	}

	moved, err := ts.client.UpdateNode(ctx, *created.ID, "c", tree.NoID)
	if err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	if moved.ParentID != nil {
		t.Errorf("moved to top level, parent = %v", *moved.ParentID)
	}

	_, err = ts.client.UpdateNode(ctx, tree.NodeID(ts.ids["a"]), "a", tree.NodeID(ts.ids["a1"]))
	if !errors.Is(err, apperr.ErrConflict) || !errors.Is(err, apperr.ErrTransport) {
		t.Errorf("cycle err = %v, want conflict transport failure", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusConflict {
		t.Errorf("err = %#v, want *StatusError 409", err)
	}

	if err := ts.client.DeleteNode(ctx, *created.ID); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if err := ts.client.DeleteNode(ctx, *created.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestHTTPValidParents(t *testing.T) {
	ts := newTestServer(t, "")

	parents, err := ts.client.ValidParents(context.Background(), tree.NodeID(ts.ids["a"]))
	if err != nil {
		t.Fatalf("ValidParents: %v", err)
	}
	if len(parents) != 2 {
		t.Fatalf("valid parents = %d, want 2", len(parents))
	}
}

func TestHTTPAuth(t *testing.T) {
	ts := newTestServer(t, "secret")
	if _, err := ts.client.FetchRoots(context.Background()); err != nil {
		t.Fatalf("FetchRoots with token: %v", err)
	}

	ts.client.token = "wrong"
	_, err := ts.client.FetchRoots(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401", err)
	}
}

func TestHTTPUnreachableIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewHTTP(url, "", 200*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.FetchRoots(context.Background()); !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestHTTPMalformedBodyIsMappingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nodes":`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTP(srv.URL, "", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.FetchRoots(context.Background()); !errors.Is(err, apperr.ErrMapping) {
		t.Fatalf("err = %v, want ErrMapping", err)
	}
}

func TestHTTPWatchDeliversEvents(t *testing.T) {
	ts := newTestServer(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- ts.client.Watch(ctx, func(ev string) { events <- ev })
	}()

	// Keep writing until the subscription is live and an event arrives.
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case ev := <-events:
			if ev != sse.TypeNodeCreated && ev != sse.TypeTreeChanged {
				t.Fatalf("event = %q", ev)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch returned %v", err)
			}
			return
		case <-tick.C:
			if _, err := ts.svc.Create(context.Background(), 0, "ping"); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}

func TestLocalDrivesStore(t *testing.T) {
	db := testutil.TestDB(t)
	ids := testutil.SeedScenario(t, db)
	src := NewLocal(treeservice.NewService(db, nil, nil))

	s := tree.NewStore(src)
	t.Cleanup(s.Close)
	ctx := context.Background()

	f := s.Initialize(ctx)
	if len(f.Roots) != 1 || !f.Roots[0].HasMoreChildren {
		t.Fatalf("roots = %+v", f.Roots)
	}
	children, err := s.LoadChildren(ctx, tree.NodeID(ids["root"]))
	if err != nil {
		t.Fatalf("LoadChildren: %v", err)
	}
	if len(children) != 2 || children[0].Label != "a" || !children[0].HasMoreChildren {
		t.Fatalf("children = %+v", children)
	}

	f = s.ApplyFilter(ctx, "a1")
	if len(f.Roots) != 1 || f.Roots[0].Label != "a1" {
		t.Fatalf("filtered = %+v", f.Roots)
	}

	parents, err := s.ValidParents(ctx, tree.NodeID(ids["a"]))
	if err != nil {
		t.Fatalf("ValidParents: %v", err)
	}
	if len(parents) != 2 {
		t.Errorf("valid parents = %d, want 2", len(parents))
	}

	if _, err := s.Delete(ctx, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("delete missing err = %v, want ErrNotFound", err)
	}
}

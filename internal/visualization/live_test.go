package visualization

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autoscene/autoscene/internal/scenegraph"
)

func dialLive(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/api/live", header)
	if err != nil {
		t.Fatalf("dial /api/live: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readGraph(t *testing.T, conn *websocket.Conn) scenegraph.Graph {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var g scenegraph.Graph
	if err := conn.ReadJSON(&g); err != nil {
		t.Fatalf("read graph: %v", err)
	}
	return g
}

func TestLive_PushesUpdates(t *testing.T) {
	srv := NewServer(testGraph(), "", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialLive(t, ts.URL, nil)

	first := readGraph(t, conn)
	if first.Name != testGraph().Name || len(first.Frames) != 2 {
		t.Fatalf("initial graph = %q with %d frames", first.Name, len(first.Frames))
	}

	srv.Update(&scenegraph.Graph{Name: "reloaded", Frames: []*scenegraph.Frame{{Shapes: []scenegraph.Shape{}}}})
	got := readGraph(t, conn)
	if got.Name != "reloaded" || len(got.Frames) != 1 {
		t.Errorf("pushed graph = %q with %d frames", got.Name, len(got.Frames))
	}
}

func TestLive_LatestUpdateWins(t *testing.T) {
	h := newHub()
	c := &liveClient{send: make(chan *scenegraph.Graph, 1), done: make(chan struct{})}
	if !h.register(c, func() *scenegraph.Graph { return &scenegraph.Graph{Name: "initial"} }) {
		t.Fatal("register on open hub failed")
	}

	for _, name := range []string{"a", "b", "c"} {
		if n := h.broadcast(&scenegraph.Graph{Name: name}); n != 1 {
			t.Fatalf("broadcast reached %d clients, want 1", n)
		}
	}
	if g := <-c.send; g.Name != "c" {
		t.Errorf("queued graph = %q, want c", g.Name)
	}

	h.closeAll()
	select {
	case <-c.done:
	default:
		t.Error("closeAll did not signal the client")
	}
	if h.register(&liveClient{send: make(chan *scenegraph.Graph, 1), done: make(chan struct{})}, func() *scenegraph.Graph { return nil }) {
		t.Error("register after closeAll succeeded")
	}
	if n := h.broadcast(&scenegraph.Graph{}); n != 0 {
		t.Errorf("broadcast after closeAll reached %d clients", n)
	}
}

func TestLive_RejectsForeignOrigin(t *testing.T) {
	ts := httptest.NewServer(NewServer(testGraph(), "", nil).Handler())
	defer ts.Close()

	header := http.Header{"Origin": {"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/live", header)
	if err == nil {
		conn.Close()
		t.Fatal("dial with foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}

	// Pages served by the viewer itself connect.
	own := dialLive(t, ts.URL, http.Header{"Origin": {ts.URL}})
	readGraph(t, own)
}

func TestLive_ShutdownClosesClients(t *testing.T) {
	srv := NewServer(testGraph(), "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	waitForServer(t, srv, 2*time.Second)

	conn := dialLive(t, "http://"+srv.Addr(), nil)
	readGraph(t, conn)

	cancel()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseGoingAway {
		t.Errorf("read after shutdown = %v, want going-away close", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected error on shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down within 3 seconds")
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{name: "no origin", origin: "", host: "localhost:8080", want: true},
		{name: "same host", origin: "http://localhost:8080", host: "localhost:8080", want: true},
		{name: "other port", origin: "http://localhost:9090", host: "localhost:8080", want: false},
		{name: "other host", origin: "https://evil.example", host: "localhost:8080", want: false},
		{name: "malformed", origin: "://", host: "localhost:8080", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://"+tt.host+"/api/live", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := sameOrigin(r); got != tt.want {
				t.Errorf("sameOrigin(%q, %q) = %v, want %v", tt.origin, tt.host, got, tt.want)
			}
		})
	}
}

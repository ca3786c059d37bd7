package visualization

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/autoscene/autoscene/internal/observability"
	"github.com/autoscene/autoscene/internal/scenegraph"
)

// Server serves the interactive scenario viewer. The graph can be replaced
// while serving; open pages receive the new graph over /api/live, or on
// their next poll when the websocket is unavailable.
type Server struct {
	metrics    *observability.Collector
	listenAddr string
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	graph      *scenegraph.Graph
	addr       string
	hub        *hub
}

// NewServer creates a viewer server for g. listenAddr defaults to an
// OS-assigned localhost port. A nil metrics collector disables /metrics.
func NewServer(g *scenegraph.Graph, listenAddr string, metrics *observability.Collector) *Server {
	if listenAddr == "" {
		listenAddr = "localhost:0"
	}
	return &Server{graph: g, listenAddr: listenAddr, metrics: metrics, hub: newHub()}
}

// Update replaces the served graph and pushes it to connected pages. It
// never blocks on a slow page.
func (s *Server) Update(g *scenegraph.Graph) {
	s.mu.Lock()
	s.graph = g
	s.mu.Unlock()
	s.hub.broadcast(g)
}

func (s *Server) current() *scenegraph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/frames", s.handleFrames)
	mux.HandleFunc("/api/live", s.handleLive)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.closeAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handleIndex serves the live viewer page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	html, err := renderHTML(s.current(), true)
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

// handleFrames returns the current graph as JSON.
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.current())
}

package visualization

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autoscene/autoscene/internal/scenegraph"
)

const (
	// Time allowed to write a graph to the page.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the page.
	pongWait = 60 * time.Second

	// Ping period, shorter than pongWait.
	pingPeriod = 54 * time.Second

	// Pages never send more than control frames.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts clients without an Origin header and pages served by
// this server.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// liveClient is one open viewer page. send holds at most the latest graph.
type liveClient struct {
	conn *websocket.Conn
	send chan *scenegraph.Graph
	done chan struct{}
}

// hub pushes graph updates to every open page.
type hub struct {
	mu      sync.Mutex
	clients map[*liveClient]struct{}
	closed  bool
}

func newHub() *hub {
	return &hub{clients: make(map[*liveClient]struct{})}
}

// register adds c and queues the graph returned by initial. Holding the
// hub lock keeps a concurrent broadcast from being overtaken by an older
// graph.
func (h *hub) register(c *liveClient, initial func() *scenegraph.Graph) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	c.send <- initial()
	return true
}

func (h *hub) unregister(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.done)
	}
}

// broadcast queues g for every client, replacing a graph that has not been
// written yet. It returns the number of clients reached.
func (h *hub) broadcast(g *scenegraph.Graph) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case <-c.send:
		default:
		}
		c.send <- g
	}
	return len(h.clients)
}

// closeAll disconnects every client. Hijacked connections are not closed
// by http.Server.Shutdown.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.done)
	}
}

// handleLive upgrades to a websocket, sends the current graph and then
// every graph passed to Update.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		return
	}
	c := &liveClient{conn: conn, send: make(chan *scenegraph.Graph, 1), done: make(chan struct{})}
	if !s.hub.register(c, s.current) {
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump(s.hub)
}

// readPump discards page messages and handles pongs until the connection
// fails.
func (c *liveClient) readPump(h *hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "viewer stopped"))
			return
		case g := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(g); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

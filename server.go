package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/heptiolabs/healthcheck"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/radiostream/pkg/stream"
)

// statusInterval paces the status push to websocket clients.
const statusInterval = time.Second

// stopBacklog is how many session ends may queue for announcement.
const stopBacklog = 64

type Client struct {
	id   string
	conn *websocket.Conn
	send chan interface{}

	mu     sync.Mutex
	closed bool
}

// trySend queues msg unless the client is gone or its queue is full.
func (c *Client) trySend(msg interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Server is the HTTP control surface of a Station.
type Server struct {
	st       *Station
	clients  cmap.ConcurrentMap[string, *Client]
	upgrader websocket.Upgrader
	health   healthcheck.Handler
	mux      *http.ServeMux

	stops       <-chan stream.Stop
	unsubscribe func()
}

func newServer(st *Station, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		st:      st,
		clients: cmap.New[*Client](),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		health: healthcheck.NewHandler(),
		mux:    http.NewServeMux(),
	}
	s.stops, s.unsubscribe = st.stream.Subscribe(stopBacklog)

	s.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000))
	s.health.AddReadinessCheck("station", st.Ready)

	// Radio endpoints
	s.mux.HandleFunc("/api/radio/source", s.handleSource)
	s.mux.HandleFunc("/api/radio/tuner", s.handleTuner)
	s.mux.HandleFunc("/api/radio/mute", s.handleMute)
	s.mux.HandleFunc("/api/radio/benchmark", s.handleBenchmark)

	// Stream endpoints
	s.mux.HandleFunc("/api/stream/start", s.handleStreamStart)
	s.mux.HandleFunc("/api/stream/stop", s.handleStreamStop)
	s.mux.HandleFunc("/api/stream/state", s.handleStreamState)
	s.mux.HandleFunc("/api/status", s.handleStatus)

	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/live", s.health.LiveEndpoint)
	s.mux.HandleFunc("/ready", s.health.ReadyEndpoint)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// serve runs the HTTP server until ctx is done.
func (s *Server) serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[INFO] control server listening on http://localhost%s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleWS pushes status to the client and accepts stream_control messages.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[WARN] upgrade:", err)
		return
	}

	client := &Client{id: uuid.NewString(), conn: conn, send: make(chan interface{}, 16)}
	s.clients.Set(client.id, client)
	log.Printf("[INFO] client %s connected", client.id)

	go client.writePump()
	client.trySend(statusMessage(s.st.Status()))

	defer func() {
		s.clients.Remove(client.id)
		client.close()
		log.Printf("[INFO] client %s disconnected", client.id)
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Type     string `json:"type"`
			Enabled  *bool  `json:"enabled"`
			Endpoint string `json:"endpoint"`
		}
		if err := json.Unmarshal(msg, &req); err != nil || req.Type != "stream_control" || req.Enabled == nil {
			continue
		}

		if *req.Enabled {
			err = s.st.StartStreaming(req.Endpoint)
		} else {
			err = s.st.StopStreaming()
		}
		if err != nil {
			client.trySend(map[string]interface{}{"type": "error", "error": err.Error()})
			continue
		}
		s.broadcast(statusMessage(s.st.Status()))
	}
}

func statusMessage(st Status) map[string]interface{} {
	return map[string]interface{}{"type": "status", "status": st}
}

// broadcast drops the message for clients whose queue is full.
func (s *Server) broadcast(msg interface{}) {
	for item := range s.clients.IterBuffered() {
		item.Val.trySend(msg)
	}
}

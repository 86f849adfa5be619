// Package web provides an HTTP status server for the posture-coach daemon.
package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/posture-coach/internal/mqtt"
	"github.com/sweeney/posture-coach/internal/session"
	"github.com/sweeney/posture-coach/internal/status"
	"github.com/sweeney/posture-coach/internal/store"
)

const (
	pingPeriod   = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	recentLimit  = 10
	historyQuery = 2 * time.Second
)

// History lists recently finished sessions. *store.Store satisfies it.
type History interface {
	Recent(ctx context.Context, n int) ([]store.PostureRecord, error)
}

// Server serves the status page, the live feed and session controls.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    History
	commands   chan<- mqtt.Command
	upgrader   websocket.Upgrader
}

// New creates a Server that reads state from the given tracker. history
// may be nil. Start/stop requests are sent on commands.
func New(addr string, tracker *status.Tracker, history History, commands chan<- mqtt.Command) *Server {
	s := &Server{
		tracker:  tracker,
		history:  history,
		commands: commands,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/session/start", s.handleCommand(mqtt.CommandStart))
	mux.HandleFunc("/session/stop", s.handleCommand(mqtt.CommandStop))

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	var recent []store.PostureRecord
	if s.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), historyQuery)
		var err error
		recent, err = s.history.Recent(ctx, recentLimit)
		cancel()
		if err != nil {
			log.Printf("web: recent sessions unavailable: %v", err)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, recent)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleCommand(cmd mqtt.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		select {
		case s.commands <- cmd:
			w.WriteHeader(http.StatusAccepted)
		case <-r.Context().Done():
			http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		case <-time.After(time.Second):
			http.Error(w, "controller busy", http.StatusServiceUnavailable)
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade failed: %v", err)
		return
	}

	id, feed := s.tracker.Subscribe()
	log.Printf("web: websocket client %d connected from %s", id, r.RemoteAddr)

	closed := make(chan struct{})
	go readPump(conn, closed)
	writePump(conn, feed, closed)

	s.tracker.Unsubscribe(id)
	conn.Close()
	log.Printf("web: websocket client %d disconnected", id)
}

// readPump discards client messages and keeps the read deadline fresh.
// closed is closed when the client goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("web: websocket read: %v", err)
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, feed <-chan session.Snapshot, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-feed:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, status.FormatSessionJSON(snap)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

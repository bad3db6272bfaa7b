package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	field "github.com/esimov/pixel-particles/particle-field"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 5 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 30 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Pointer messages are tiny.
	maxMessageSize = 512
	// Frames buffered per client before the client starts dropping them.
	sendBuffer = 4
)

var json = jsoniter.ConfigFastest

// HttpParams holds the address and static file settings of the server.
type HttpParams struct {
	Address string
	Prefix  string
	Root    string

	// Width and Height are the canvas size announced to clients at /canvas.json.
	Width, Height int

	// PointerRate and PointerBurst throttle the pointer messages of a client.
	PointerRate  float64
	PointerBurst int
}

// Server serves the browser client, receives pointer updates over a websocket
// and broadcasts every rendered frame to the connected clients.
type Server struct {
	params   HttpParams
	logger   *zap.Logger
	upgrader websocket.Upgrader
	events   chan field.PointerEvent

	mu      sync.Mutex
	clients map[*client]struct{}

	frame int64
}

// NewServer creates a server. Call ListenAndServe, or mount Handler yourself.
func NewServer(p HttpParams, logger *zap.Logger) *Server {
	if p.Prefix == "" {
		p.Prefix = "/"
	}
	if p.PointerRate <= 0 {
		p.PointerRate = 120
	}
	if p.PointerBurst <= 0 {
		p.PointerBurst = 16
	}
	return &Server{
		params: p,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		events:  make(chan field.PointerEvent, 64),
		clients: make(map[*client]struct{}),
	}
}

// Events returns the pointer updates received from the clients.
func (s *Server) Events() <-chan field.PointerEvent {
	return s.events
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Handler returns the HTTP handler serving static files under the prefix and
// the websocket endpoint at /ws.
func (s *Server) Handler() (http.Handler, error) {
	root, err := filepath.Abs(s.params.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving static root: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(s.params.Prefix, http.StripPrefix(s.params.Prefix, http.FileServer(http.Dir(root))))
	mux.HandleFunc("/ws", s.wsHandler)
	mux.HandleFunc("/canvas.json", s.canvasHandler)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request",
			zap.String("remote", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()))
		mux.ServeHTTP(w, r)
	}), nil
}

// ListenAndServe runs the HTTP server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:        s.params.Address,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("serving", zap.String("root", s.params.Root),
			zap.String("prefix", s.params.Prefix), zap.String("address", s.params.Address))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.closeClients()
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Render broadcasts a frame to every client. It implements field.Renderer.
// Clients whose buffer is full skip the frame.
func (s *Server) Render(cmds []field.DrawCommand) error {
	s.frame++

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return nil
	}

	msg := encodeFrame(s.frame, cmds)
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			c.dropped++
		}
	}
	return nil
}

// canvasHandler reports the canvas size the pointer coordinates refer to.
func (s *Server) canvasHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	stream := json.BorrowStream(w)
	defer json.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField("width")
	stream.WriteInt(s.params.Width)
	stream.WriteMore()
	stream.WriteObjectField("height")
	stream.WriteInt(s.params.Height)
	stream.WriteObjectEnd()
	if err := stream.Flush(); err != nil {
		s.logger.Debug("writing canvas size", zap.Error(err))
	}
}

// wsHandler upgrades the connection and starts the client pumps.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		var hsErr websocket.HandshakeError
		if !errors.As(err, &hsErr) {
			s.logger.Warn("websocket upgrade failed", zap.Error(err))
		}
		return
	}

	c := &client{
		id:      uuid.New().String(),
		server:  s,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(rate.Limit(s.params.PointerRate), s.params.PointerBurst),
	}
	s.register(c)

	go c.writePump()
	go c.readPump()
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("client connected", zap.String("client_id", c.id))
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	if ok {
		delete(s.clients, c)
		close(c.send)
	}
	dropped := c.dropped
	s.mu.Unlock()
	if ok {
		s.logger.Info("client disconnected", zap.String("client_id", c.id), zap.Int("dropped_frames", dropped))
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

// encodeFrame writes {"frame":n,"particles":[[x,y,r,g,b,radius],...]}.
func encodeFrame(frame int64, cmds []field.DrawCommand) []byte {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField("frame")
	stream.WriteInt64(frame)
	stream.WriteMore()
	stream.WriteObjectField("particles")
	stream.WriteArrayStart()
	for i, c := range cmds {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteArrayStart()
		stream.WriteFloat64(c.X)
		stream.WriteMore()
		stream.WriteFloat64(c.Y)
		stream.WriteMore()
		stream.WriteUint8(c.Color.R)
		stream.WriteMore()
		stream.WriteUint8(c.Color.G)
		stream.WriteMore()
		stream.WriteUint8(c.Color.B)
		stream.WriteMore()
		stream.WriteFloat64(c.Radius)
		stream.WriteArrayEnd()
	}
	stream.WriteArrayEnd()
	stream.WriteObjectEnd()

	return append([]byte(nil), stream.Buffer()...)
}

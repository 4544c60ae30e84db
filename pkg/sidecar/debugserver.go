package sidecar

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// DebugServer mirrors every outbound wire message over a loopback
// websocket, so a host-side debugger can observe the stream without parsing
// stdout. Enabled only when WHISPERSIDECAR_DEBUG_WS_ADDR is set; it never
// touches the stdio protocol itself.
type DebugServer struct {
	addr   string
	logger Logger
	srv    *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewDebugServer builds a mirror server bound to addr (e.g. "127.0.0.1:7711").
func NewDebugServer(addr string, logger Logger) *DebugServer {
	if logger == nil {
		logger = NoOpLogger{}
	}
	d := &DebugServer{addr: addr, logger: logger, clients: make(map[*websocket.Conn]struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/", d.handle)
	d.srv = &http.Server{Addr: addr, Handler: mux}
	return d
}

// Start begins accepting connections in the background. It returns once
// the listener is bound, or an error if the address can't be claimed.
func (d *DebugServer) Start() error {
	ln, err := newListener(d.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := d.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			d.logger.Warn("debug server stopped", "error", err)
		}
	}()
	return nil
}

// Stop closes the listener and disconnects every mirrored client.
func (d *DebugServer) Stop(ctx context.Context) {
	_ = d.srv.Shutdown(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.clients {
		c.Close(websocket.StatusNormalClosure, "sidecar shutting down")
	}
	d.clients = make(map[*websocket.Conn]struct{})
}

func (d *DebugServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	d.mu.Lock()
	d.clients[conn] = struct{}{}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.clients, conn)
		d.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	// The mirror is write-only from the sidecar's perspective; block here
	// until the client disconnects so the registration above stays live.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

// Broadcast fans a single encoded message out to every connected debug
// client. Writes go to one client after another, and each blocks until it
// completes or ctx is done; write errors are ignored and slow clients are
// not dropped.
func (d *DebugServer) Broadcast(ctx context.Context, payload []byte) {
	d.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(d.clients))
	for c := range d.clients {
		conns = append(conns, c)
	}
	d.mu.Unlock()

	for _, c := range conns {
		_ = c.Write(ctx, websocket.MessageText, payload)
	}
}

// MirroringWriter wraps a Writer and additionally broadcasts every message
// to an attached DebugServer, so host debuggers see the exact wire bytes.
type MirroringWriter struct {
	inner Writer
	debug *DebugServer
}

// NewMirroringWriter wraps inner with debug mirroring. debug may be nil, in
// which case Write behaves exactly like inner.Write.
func NewMirroringWriter(inner Writer, debug *DebugServer) *MirroringWriter {
	return &MirroringWriter{inner: inner, debug: debug}
}

func (m *MirroringWriter) Write(msg interface{}) error {
	err := m.inner.Write(msg)
	if m.debug != nil {
		if b, encErr := marshalForMirror(msg); encErr == nil {
			m.debug.Broadcast(context.Background(), b)
		}
	}
	return err
}

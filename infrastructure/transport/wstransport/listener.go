package wstransport

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Listener upgrades incoming HTTP requests on one path to WebSocket
// connections and hands each out as a net.Conn through Accept, so the
// same transport.Server accept loop drives both the TCP and WebSocket
// bindings.
type Listener struct {
	tcpListener net.Listener
	httpServer  *http.Server
	queue       chan net.Conn
	closed      chan struct{}
	closeOnce   sync.Once
}

// NewListener binds addr and serves WebSocket upgrades on path (e.g.
// "/relay"). ctx cancellation shuts the HTTP server down gracefully.
func NewListener(ctx context.Context, addr, path string) (*Listener, error) {
	tcpListener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	queue := make(chan net.Conn, 1024)
	closed := make(chan struct{})
	l := &Listener{tcpListener: tcpListener, queue: queue, closed: closed}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		_ = l.httpServer.Serve(tcpListener)
		l.markClosed()
	}()
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	return l, nil
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return
	}

	remote := parseTCPAddr(r.RemoteAddr)
	conn := NewConn(context.Background(), ws, l.tcpListener.Addr(), remote)

	select {
	case l.queue <- conn:
	default:
		_ = ws.Close(websocket.StatusPolicyViolation, "accept queue full")
	}
}

// Accept implements net.Listener.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.queue:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

// Close implements net.Listener.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.httpServer.Shutdown(shutdownCtx)
		_ = l.tcpListener.Close()
		l.markClosed()
	})
	return nil
}

// Addr implements net.Listener.
func (l *Listener) Addr() net.Addr { return l.tcpListener.Addr() }

func (l *Listener) markClosed() {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
}

func parseTCPAddr(remoteAddr string) net.Addr {
	host, portStr, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return &net.TCPAddr{}
	}
	port, _ := strconv.Atoi(portStr)
	return &net.TCPAddr{IP: net.ParseIP(host), Port: port}
}

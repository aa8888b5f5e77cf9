package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	defaultPasvMinPort = 49152
	defaultPasvMaxPort = 65535
)

// Server is the FTP server.
//
// It handles listening for incoming connections and dispatching them to
// client sessions. Each connection runs in its own goroutine.
//
// Lifecycle:
//  1. Create server with NewServer()
//  2. Start with ListenAndServe() or Serve()
//  3. Drain() stops accepting; live sessions get 421 for every new command
//  4. Shutdown() drains, waits for sessions to leave, then closes the rest
//
// Basic example:
//
//	driver, _ := server.NewVFSDriver("file:///srv/ftp/")
//	s, err := server.NewServer(":21", server.WithDriver(driver))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
//
// With graceful shutdown:
//
//	go func() {
//	    <-ctx.Done()
//	    sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	    defer cancel()
//	    s.Shutdown(sctx)
//	}()
//	err := s.ListenAndServe() // returns ErrServerClosed
type Server struct {
	// addr is the TCP address to listen on (e.g., ":21").
	addr string

	// driver provides a Filesystem per session.
	driver Driver

	// logger is the logger instance.
	logger *slog.Logger

	// welcomeMessage is the banner sent to clients on connection.
	welcomeMessage string

	// systemName is the system type returned by the SYST command.
	// Defaults to "UNIX Type: L8".
	systemName string

	// readTimeout is the deadline for read operations on the control connection.
	// If 0, no timeout is applied.
	readTimeout time.Duration

	// writeTimeout is the deadline for write operations on the control connection.
	// If 0, no timeout is applied.
	writeTimeout time.Duration

	// dataTimeout bounds a single data connection. If 0, no timeout is applied.
	dataTimeout time.Duration

	// maxConnections is the maximum number of simultaneous connections.
	// If 0, there is no limit.
	maxConnections int

	// pasvMinPort and pasvMaxPort bound the PASV listener ports.
	pasvMinPort int
	pasvMaxPort int

	// publicHost is the IPv4 address advertised in 227 replies.
	// If empty, the control connection's local address is used.
	publicHost string

	// bandwidthLimit is the per-transfer rate in bytes per second. 0 = unlimited.
	bandwidthLimit int64

	// metrics receives command, transfer and connection events. May be nil.
	metrics MetricsCollector

	// transferLog receives xferlog lines. May be nil.
	transferLog   io.Writer
	transferLogMu sync.Mutex

	// statusText overrides the default reply texts.
	statusText map[int]string

	// activeConns tracks the number of currently active connections.
	activeConns atomic.Int32

	// Shutdown handling
	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	live     map[*session]struct{}
	draining atomic.Bool
	sessions sync.WaitGroup
}

// ErrServerClosed is returned by Serve and ListenAndServe after a call to
// Drain or Shutdown.
var ErrServerClosed = errors.New("ftp: Server closed")

// NewServer creates a new FTP server with the given address and options.
// The address should be in the form ":port" or "host:port".
// The driver must be provided via the WithDriver option.
//
// Default values:
//   - Logger: slog.Default()
//   - Welcome message: "Service ready for new user."
//   - System name: "UNIX Type: L8"
//   - Passive port range: 49152-65535
//   - Timeouts: none
//   - MaxConnections: 0 (unlimited)
//
// Example with limits:
//
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithMaxConnections(100),
//	    server.WithReadTimeout(5*time.Minute),
//	    server.WithBandwidthLimit(1<<20),
//	)
func NewServer(addr string, options ...Option) (*Server, error) {
	s := &Server{
		addr:        addr,
		logger:      slog.Default(),
		systemName:  "UNIX Type: L8",
		pasvMinPort: defaultPasvMinPort,
		pasvMaxPort: defaultPasvMaxPort,
		conns:       make(map[net.Conn]struct{}),
		live:        make(map[*session]struct{}),
	}

	// Apply options
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	// Validate required fields
	if s.driver == nil {
		return nil, fmt.Errorf("driver is required (use WithDriver option)")
	}

	return s, nil
}

// ListenAndServe starts the FTP server on the configured address.
// It blocks until the server stops or an error occurs.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("FTP server listening", "addr", ln.Addr().String())
	return s.Serve(ln)
}

// Serve accepts incoming connections on the listener l.
// It blocks until the listener is closed or the server is drained.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.draining.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		l.Close()
	}()

	var tempDelay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.draining.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay = min(2*tempDelay, time.Second)
			}
			s.logger.Error("accept error", "error", err, "retry_in", tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		if !s.trackConnection(conn, true) {
			conn.Close()
			continue
		}
		go s.handleConnection(conn)
	}
}

// Drain stops accepting new connections. Every command received afterwards
// on a live session is answered with 421 and not executed; transfers already
// in progress run to completion.
func (s *Server) Drain() {
	if s.draining.Swap(true) {
		return
	}

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	s.logger.Info("server_draining")
}

// Draining reports whether Drain has been called.
func (s *Server) Draining() bool {
	return s.draining.Load()
}

// Shutdown drains the server and waits for every session to end. When ctx
// is done first, the remaining connections are closed forcibly and the
// context error is returned together with any close errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Drain()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[net.Conn]struct{})
	live := s.live
	s.live = make(map[*session]struct{})
	s.mu.Unlock()

	// Canceling releases transfers waiting on a data connection, which
	// closing the sockets alone does not.
	for sess := range live {
		sess.cancel()
	}

	var result error
	result = multierror.Append(result, ctx.Err())
	for conn := range conns {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", conn.RemoteAddr(), err))
		}
	}
	s.logger.Warn("server_shutdown_forced", "open_connections", len(conns))
	return result
}

// handleConnection runs a session for conn.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.sessions.Done()
	defer s.trackConnection(conn, false)

	remoteIP := remoteIP(conn)

	// Check global connection limit
	if s.maxConnections > 0 && s.activeConns.Load() >= int32(s.maxConnections) {
		s.logger.Warn("connection_rejected",
			"remote_ip", remoteIP,
			"reason", "global_limit_reached",
			"limit", s.maxConnections,
		)
		s.recordConnection(false, "global_limit_reached")
		fmt.Fprintf(conn, "421 Too many users, sorry.\r\n")
		conn.Close()
		return
	}

	fsys, err := s.driver.Open()
	if err != nil {
		s.logger.Error("driver_open_failed", "remote_ip", remoteIP, "error", err)
		s.recordConnection(false, "driver_open_failed")
		fmt.Fprintf(conn, "421 %s\r\n", s.text(421))
		conn.Close()
		return
	}

	s.activeConns.Add(1)
	defer s.activeConns.Add(-1)
	s.recordConnection(true, "")

	sess := newSession(s, conn, fsys)
	s.trackSession(sess, true)
	defer s.trackSession(sess, false)
	sess.serve()
}

// trackSession registers a running session so a forced Shutdown can cancel it.
func (s *Server) trackSession(sess *session, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.live[sess] = struct{}{}
	} else {
		delete(s.live, sess)
	}
}

// trackConnection registers a control connection and its session.
// It returns false if we're shutting down.
func (s *Server) trackConnection(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !add {
		delete(s.conns, conn)
		return true
	}
	if s.draining.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	s.sessions.Add(1)
	return true
}

// trackDataConn registers a data connection so Shutdown can force it closed.
// Unlike control connections it is accepted while draining, so transfers
// that already started can finish.
func (s *Server) trackDataConn(conn net.Conn) func() {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}
}

func (s *Server) recordConnection(accepted bool, reason string) {
	if s.metrics != nil {
		s.metrics.RecordConnection(accepted, reason)
	}
}

// remoteIP returns the host part of conn's remote address.
func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return ip
}

// ListenAndServe serves the vfs location rootURI to anonymous users on addr
// with default options. It blocks like (*Server).ListenAndServe.
//
// Example:
//
//	log.Fatal(server.ListenAndServe(":2121", "file:///srv/ftp/"))
func ListenAndServe(addr, rootURI string) error {
	driver, err := NewVFSDriver(rootURI)
	if err != nil {
		return err
	}
	s, err := NewServer(addr, WithDriver(driver))
	if err != nil {
		return err
	}
	return s.ListenAndServe()
}

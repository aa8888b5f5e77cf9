package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// encoding is the representation type selected with TYPE.
type encoding int

const (
	encodingBinary encoding = iota // TYPE I
	encodingASCII                  // TYPE A
)

func (e encoding) String() string {
	if e == encodingASCII {
		return "ascii"
	}
	return "binary"
}

// dataMode tells a transfer how to obtain its data connection.
type dataMode int

const (
	modeActive  dataMode = iota // server dials the client (PORT)
	modePassive                 // client dials the server (PASV)
)

func (m dataMode) String() string {
	if m == modePassive {
		return "passive"
	}
	return "active"
}

// session represents an FTP client session.
//
// Concurrency Model:
//
//  1. Reader Goroutine: reads lines from the control connection into a
//     bounded queue and keeps reading while a command runs, so a hang-up is
//     seen even during a transfer. When the read fails (client hung up,
//     timeout, overlong line) it cancels the session context, which releases
//     any transfer blocked waiting for a data connection. It never touches
//     session state.
//
//  2. Command Loop (serve): the only goroutine that touches session state.
//     Commands run one at a time, transfers included, so a command never
//     observes a half-applied PASV or PORT.
//
//  3. Passive Accept Goroutine: owned by the current passiveChannel. It
//     only touches the channel's own state and writes to the control
//     connection through reply, which holds mu.
type session struct {
	server *Server
	conn   net.Conn
	lines  *lineReader
	logger *slog.Logger

	// mu protects writer, closed and lastCode.
	mu       sync.Mutex
	writer   *bufio.Writer
	closed   bool
	lastCode int

	ctx    context.Context
	cancel context.CancelFunc

	// Session tracking
	id       string
	remoteIP string

	// Authentication
	user          string
	authenticated bool

	// Filesystem port and the working directory when the session opened.
	fs   Filesystem
	home string

	// Transfer parameters
	encoding   encoding
	mode       dataMode
	activeHost string
	activePort int
	passive    *passiveChannel

	quitting bool
}

// newSession creates a new session. The data mode defaults to ACTIVE toward
// the client's own control address and port (RFC 959 section 3.2).
func newSession(server *Server, conn net.Conn, fsys Filesystem) *session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &session{
		server:   server,
		conn:     conn,
		lines:    newLineReader(conn, MaxCommandLength),
		writer:   bufio.NewWriter(conn),
		ctx:      ctx,
		cancel:   cancel,
		id:       uuid.NewString(),
		remoteIP: remoteIP(conn),
		fs:       fsys,
		home:     fsys.Pwd(),
		encoding: encodingBinary,
		mode:     modeActive,
	}

	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		s.activeHost = addr.IP.String()
		s.activePort = addr.Port
	}

	s.logger = server.logger.With(
		"session_id", s.id,
		"remote_ip", s.remoteIP,
	)
	return s
}

// serve handles the FTP session until the client quits, the control
// connection fails, or the server is shut down.
func (s *session) serve() {
	defer s.close()

	s.reply(220, s.server.welcomeMessage)
	s.logger.Info("session_started", "home", s.home)

	for line := range s.readCommands() {
		if s.ctx.Err() != nil {
			return
		}
		s.execute(line)
		if s.quitting {
			return
		}
	}
}

// maxPendingCommands bounds the lines read ahead of the command loop.
const maxPendingCommands = 64

// readCommands starts the reader goroutine. The returned channel is closed
// when the control connection can no longer be read. A client that queues
// more than maxPendingCommands lines is disconnected with 421.
func (s *session) readCommands() <-chan string {
	cmds := make(chan string, maxPendingCommands)
	go func() {
		defer close(cmds)
		defer s.cancel()

		for {
			if rt := s.server.readTimeout; rt > 0 {
				_ = s.conn.SetReadDeadline(time.Now().Add(rt))
			}

			line, err := s.lines.ReadLine()
			if err != nil {
				switch {
				case errors.Is(err, errLineTooLong):
					s.reply(500, "Command line too long.")
				case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				default:
					s.logger.Warn("read error", "error", err)
				}
				return
			}

			select {
			case cmds <- line:
			default:
				s.logger.Warn("command_queue_full", "pending", maxPendingCommands)
				s.reply(421, "Too many pending commands, closing control connection.")
				s.closeControl()
				return
			}
		}
	}()
	return cmds
}

// closeControl closes the control connection without waiting for the
// command loop. Safe to call from any goroutine.
func (s *session) closeControl() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close()
}

// close releases everything the session owns.
func (s *session) close() {
	s.discardPassive()
	s.closeControl()

	if err := s.fs.Close(); err != nil {
		s.logger.Warn("filesystem close failed", "error", err)
	}

	s.logger.Info("session_closed", "user", s.user)
}

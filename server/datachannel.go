package server

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// maxPassiveBindAttempts bounds the random port search of PASV.
	maxPassiveBindAttempts = 50
	// passiveBindJitter is the upper bound of the pause between attempts.
	passiveBindJitter = 5 * time.Millisecond
)

// passiveChannel is a listener opened by PASV that serves exactly one data
// connection.
//
// The first inbound peer fills a one-slot future; a transfer command picks
// it up with open, whether the peer arrived before or after the command.
// Any further inbound connection is unsolicited and handed to the
// unsolicited callback.
type passiveChannel struct {
	ln          net.Listener
	peer        chan net.Conn
	done        chan struct{}
	unsolicited func(net.Conn)

	mu      sync.Mutex
	claimed bool
	closed  bool
	once    sync.Once
}

func newPassiveChannel(ln net.Listener, unsolicited func(net.Conn)) *passiveChannel {
	pc := &passiveChannel{
		ln:          ln,
		peer:        make(chan net.Conn, 1),
		done:        make(chan struct{}),
		unsolicited: unsolicited,
	}
	go pc.acceptLoop()
	return pc
}

// port returns the TCP port the channel listens on.
func (pc *passiveChannel) port() int {
	if addr, ok := pc.ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	_, p, _ := net.SplitHostPort(pc.ln.Addr().String())
	port, _ := strconv.Atoi(p)
	return port
}

func (pc *passiveChannel) acceptLoop() {
	for {
		conn, err := pc.ln.Accept()
		if err != nil {
			return
		}

		pc.mu.Lock()
		switch {
		case pc.closed:
			pc.mu.Unlock()
			conn.Close()
			return
		case pc.claimed:
			pc.mu.Unlock()
			pc.unsolicited(conn)
			continue
		}
		pc.claimed = true
		pc.peer <- conn
		pc.mu.Unlock()
	}
}

// open returns the peer connection, waiting for it if it has not arrived.
func (pc *passiveChannel) open(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-pc.peer:
		return conn, nil
	case <-pc.done:
		return nil, errChannelClosed
	case <-ctx.Done():
		return nil, &Error{Code: 425, Message: "No data connection received.", Err: ctx.Err()}
	}
}

// close stops the listener and closes a peer nobody picked up.
// It is safe to call more than once.
func (pc *passiveChannel) close() {
	pc.once.Do(func() {
		pc.mu.Lock()
		pc.closed = true
		pc.mu.Unlock()

		close(pc.done)
		pc.ln.Close()

		select {
		case conn := <-pc.peer:
			conn.Close()
		default:
		}
	})
}

func (s *session) handlePASV(_ []string) {
	s.discardPassive()

	ln, err := s.listenPassive()
	if err != nil {
		s.logger.Warn("passive_listen_failed",
			"user", s.user,
			"range", fmt.Sprintf("%d-%d", s.server.pasvMinPort, s.server.pasvMaxPort),
			"error", err,
		)
		s.replyError(err, 425)
		return
	}

	// The accept goroutine must not read session state.
	user := s.user
	s.passive = newPassiveChannel(ln, func(conn net.Conn) {
		s.rejectUnsolicited(conn, user)
	})
	s.mode = modePassive

	ip := s.passiveHost()
	port := s.passive.port()
	s.logger.Debug("passive_listening", "user", s.user, "port", port)
	s.reply(227, fmt.Sprintf("Entering Passive Mode (%d,%d,%d,%d,%d,%d).",
		ip[0], ip[1], ip[2], ip[3], port/256, port%256))
}

// listenPassive binds a random port of the configured range, retrying on a
// new random port when the bind fails.
func (s *session) listenPassive() (net.Listener, error) {
	lo, hi := s.server.pasvMinPort, s.server.pasvMaxPort

	var lastErr error
	for attempt := range maxPassiveBindAttempts {
		if attempt > 0 {
			time.Sleep(rand.N(passiveBindJitter))
		}
		port := lo + rand.IntN(hi-lo+1)
		ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, &Error{Code: 425, Message: errPassiveExhausted.Message, Err: lastErr}
}

// passiveHost returns the IPv4 address advertised in the 227 reply: the
// configured public host, else the local address of the control
// connection, else 0.0.0.0.
func (s *session) passiveHost() [4]byte {
	if ip, ok := parseIPv4(s.server.publicHost); ok {
		return ip
	}
	if addr, ok := s.conn.LocalAddr().(*net.TCPAddr); ok {
		if ip4 := addr.IP.To4(); ip4 != nil {
			return [4]byte(ip4)
		}
	}
	return [4]byte{}
}

// rejectUnsolicited handles a second inbound connection on a passive
// listener: the data socket and the control connection are both closed.
func (s *session) rejectUnsolicited(conn net.Conn, user string) {
	s.logger.Warn("unsolicited_data_connection",
		"user", user,
		"peer", conn.RemoteAddr().String(),
	)
	conn.Close()
	s.reply(421, "Unsolicited data connection, closing control connection.")
	s.closeControl()
}

// discardPassive tears down the current passive channel, if any.
func (s *session) discardPassive() {
	if s.passive != nil {
		s.passive.close()
		s.passive = nil
	}
}

func (s *session) handlePORT(args []string) {
	host, port, err := parseHostPort(firstArg(args))
	if err != nil {
		s.logger.Debug("port_rejected", "user", s.user, "error", err)
		s.reply(501, "")
		return
	}

	s.discardPassive()
	s.mode = modeActive
	s.activeHost = host
	s.activePort = port
	s.reply(200, "PORT command successful.")
}

// parseHostPort parses the h1,h2,h3,h4,p1,p2 argument of PORT.
func parseHostPort(arg string) (string, int, error) {
	fields := strings.Split(arg, ",")
	if len(fields) != 6 {
		return "", 0, fmt.Errorf("expected h1,h2,h3,h4,p1,p2, got %q", arg)
	}

	var b [6]int
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			return "", 0, fmt.Errorf("invalid field %q: %w", f, err)
		}
		b[i] = int(n)
	}

	host := fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
	return host, b[4]*256 + b[5], nil
}

// parseIPv4 parses a dotted IPv4 address.
func parseIPv4(host string) ([4]byte, bool) {
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return [4]byte{}, false
	}
	return [4]byte(ip), true
}

// openDataConn returns the data connection for the current mode: the
// passive peer, or an outbound dial to the active address.
func (s *session) openDataConn(ctx context.Context) (net.Conn, error) {
	if s.mode == modePassive {
		if s.passive == nil {
			return nil, errNoDataChannel
		}
		return s.passive.open(ctx)
	}

	if s.activeHost == "" {
		return nil, errNoDataChannel
	}
	addr := net.JoinHostPort(s.activeHost, strconv.Itoa(s.activePort))
	s.logger.Debug("dialing active connection", "user", s.user, "addr", addr)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Code: 425, Message: "Can't open data connection.", Err: err}
	}
	return conn, nil
}

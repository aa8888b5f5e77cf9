package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gonzalop/ftpd/internal/ratelimit"
)

// transferBody moves data over an open data connection.
type transferBody func(dc *dataConn) error

// dataConn is the data connection of one transfer. It applies the session
// encoding and bandwidth limit, and counts the bytes moved.
type dataConn struct {
	ctx      context.Context
	conn     net.Conn
	encoding encoding
	limiter  *ratelimit.Limiter
	bytes    int64
}

// send copies src to the client.
func (dc *dataConn) send(src io.Reader) error {
	if dc.encoding == encodingASCII {
		src = newASCIIReader(src)
	}
	dst := ratelimit.NewWriter(dc.ctx, dc.conn, dc.limiter)

	n, err := io.Copy(dst, src)
	dc.bytes += n
	return err
}

// receive copies everything the client sends, up to EOF, into dst.
func (dc *dataConn) receive(dst io.Writer) error {
	src := ratelimit.NewReader(dc.ctx, dc.conn, dc.limiter)

	if dc.encoding != encodingASCII {
		n, err := io.Copy(dst, src)
		dc.bytes += n
		return err
	}

	w := newASCIIWriter(dst)
	n, err := io.Copy(w, src)
	dc.bytes += n
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

// transfer runs a data command:
//
//  1. 150 is sent before the data connection is looked at
//  2. the data connection is obtained from the current mode
//  3. body runs, then the connection and any passive listener are closed
//  4. exactly one terminal reply follows: 226, or the error's code (426 when
//     it carries none)
func (s *session) transfer(verb, path string, body transferBody) {
	start := time.Now()
	s.reply(150, fmt.Sprintf("Opening %s mode data connection for %s.",
		strings.ToUpper(s.encoding.String()), verb))

	ctx := s.ctx
	if dt := s.server.dataTimeout; dt > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dt)
		defer cancel()
	}

	var n int64
	conn, err := s.openDataConn(ctx)
	if err == nil {
		untrack := s.server.trackDataConn(conn)
		// A canceled session or an expired data timeout unblocks the copy.
		stop := context.AfterFunc(ctx, func() { conn.Close() })

		dc := &dataConn{
			ctx:      ctx,
			conn:     conn,
			encoding: s.encoding,
			limiter:  ratelimit.New(s.server.bandwidthLimit),
		}
		err = body(dc)
		n = dc.bytes

		stop()
		conn.Close()
		untrack()
	}
	s.discardPassive()

	duration := time.Since(start)
	code := 226
	if err != nil {
		code = replyCode(err, 426)
		s.reply(code, replyMessage(err))
	} else {
		s.reply(226, "Transfer complete.")
	}

	// Calculate throughput in MB/s
	throughputMBps := float64(0)
	if duration.Seconds() > 0 {
		throughputMBps = float64(n) / duration.Seconds() / 1024 / 1024
	}

	// Transfer logging
	attrs := []any{
		"user", s.user,
		"operation", verb,
		"path", path,
		"mode", s.mode.String(),
		"encoding", s.encoding.String(),
		"bytes", n,
		"duration_ms", duration.Milliseconds(),
		"throughput_mbps", fmt.Sprintf("%.2f", throughputMBps),
		"code", code,
	}
	if err != nil {
		s.logger.Warn("transfer_failed", append(attrs, "error", err)...)
	} else {
		s.logger.Info("transfer_complete", attrs...)
	}

	s.recordTransfer(verb, n, duration, code)
	if verb != "LIST" {
		s.logTransfer(verb, path, n, duration, err == nil)
	}
}

// logTransfer logs a file transfer in standard xferlog format.
// Format: current-time transfer-time remote-host file-size filename transfer-type special-action-flag direction access-mode username service-name authentication-method authenticated-user-id completion-status
func (s *session) logTransfer(verb, path string, bytes int64, duration time.Duration, complete bool) {
	if s.server.transferLog == nil {
		return
	}

	transferTime := int64(duration.Seconds())
	if transferTime == 0 {
		transferTime = 1
	}

	// Transfer type: a (ascii), b (binary)
	tType := "b"
	if s.encoding == encodingASCII {
		tType = "a"
	}

	// Direction: o (outgoing/download), i (incoming/upload)
	direction := "o"
	if verb == "STOR" {
		direction = "i"
	}

	// Completion status: c (complete), i (incomplete)
	status := "c"
	if !complete {
		status = "i"
	}

	// Only anonymous users can log in, so access mode is always "a" and the
	// authentication method is "0" (none).
	// Mon Dec 25 15:04:05 2025 1 127.0.0.1 1024 /file.txt b _ o a anonymous ftp 0 * c
	line := fmt.Sprintf("%s %d %s %d %s %s _ %s a %s ftp 0 * %s\n",
		time.Now().Format("Mon Jan 02 15:04:05 2006"),
		transferTime,
		s.remoteIP,
		bytes,
		s.absPath(path),
		tType,
		direction,
		s.user,
		status,
	)

	s.server.transferLogMu.Lock()
	defer s.server.transferLogMu.Unlock()
	if _, err := io.WriteString(s.server.transferLog, line); err != nil {
		s.logger.Warn("transfer log write failed", "error", err)
	}
}

// absPath returns path as an absolute virtual path for logging. Spaces are
// replaced since xferlog fields are space separated.
func (s *session) absPath(path string) string {
	if !strings.HasPrefix(path, "/") {
		cwd := s.fs.Pwd()
		if !strings.HasSuffix(cwd, "/") {
			cwd += "/"
		}
		path = cwd + path
	}
	return strings.ReplaceAll(path, " ", "_")
}

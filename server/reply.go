package server

import (
	"fmt"
	"strings"
	"time"
)

// statusText holds the default reply text for each code.
var statusText = map[int]string{
	150: "File status okay; about to open data connection.",
	200: "Command okay.",
	202: "Command not implemented, superfluous at this site.",
	211: "System status, or system help reply.",
	215: "UNIX Type: L8",
	220: "Service ready for new user.",
	221: "Service closing control connection.",
	226: "Closing data connection. Requested file action successful.",
	227: "Entering Passive Mode.",
	230: "User logged in, proceed.",
	250: "Requested file action okay, completed.",
	257: "Pathname created.",
	331: "User name okay, need password.",
	421: "Service not available, closing control connection.",
	425: "Can't open data connection.",
	426: "Connection closed; transfer aborted.",
	450: "Requested file action not taken.",
	451: "Requested action aborted: local error in processing.",
	500: "Syntax error, command unrecognized.",
	501: "Syntax error in parameters or arguments.",
	502: "Command not implemented.",
	503: "Bad sequence of commands.",
	530: "Not logged in.",
	550: "Requested action not taken. File unavailable.",
}

// StatusText returns the default text for an FTP reply code, or
// "No information" if the code is unknown.
func StatusText(code int) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return "No information"
}

// text returns the reply text for code, honoring WithStatusText overrides.
func (srv *Server) text(code int) string {
	if text, ok := srv.statusText[code]; ok {
		return text
	}
	return StatusText(code)
}

// reply writes a single-line reply to the control connection.
// An empty message is replaced by the catalog text for code. Nothing is
// written once the control connection is closed.
func (s *session) reply(code int, message string) {
	if message == "" {
		message = s.server.text(code)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCode = code
	if s.closed {
		return
	}
	if wt := s.server.writeTimeout; wt > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(wt))
	}
	fmt.Fprintf(s.writer, "%d %s\r\n", code, message)
	if err := s.writer.Flush(); err != nil {
		s.closed = true
		s.logger.Debug("reply dropped", "code", code, "error", err)
	}
}

// replyLines writes a multi-line reply: one "code-line" per entry in lines,
// then a normal "code final" line.
func (s *session) replyLines(code int, lines []string, final string) {
	s.mu.Lock()
	if !s.closed {
		var b strings.Builder
		for _, line := range lines {
			fmt.Fprintf(&b, "%d-%s\r\n", code, line)
		}
		_, _ = s.writer.WriteString(b.String())
	}
	s.mu.Unlock()

	s.reply(code, final)
}

// replyError reports err on the control connection using its carried code,
// or fallback if it has none.
func (s *session) replyError(err error, fallback int) {
	code := replyCode(err, fallback)
	s.logger.Debug("command_failed", "user", s.user, "code", code, "error", err)
	s.reply(code, replyMessage(err))
}

// lastReplyCode returns the code of the most recent reply.
func (s *session) lastReplyCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCode
}

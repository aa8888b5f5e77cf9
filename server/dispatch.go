package server

import (
	"runtime/debug"
	"strings"
	"time"
)

// execute parses one command line and runs it.
//
// Order of checks:
//  1. a draining server answers 421 to everything
//  2. an unknown verb (or an empty line) is 502
//  3. without a completed login, anything but USER and PASS is 530
func (s *session) execute(line string) {
	start := time.Now()

	if s.server.draining.Load() {
		s.reply(421, "Server is shutting down.")
		return
	}

	fields := strings.Split(strings.TrimSpace(line), " ")
	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	handler, ok := commandTable[verb]
	if !ok {
		s.logger.Debug("command_unknown", "user", s.user, "cmd", verb)
		s.reply(502, "")
		return
	}

	logArgs := pathArg(args)
	if verb == "PASS" {
		logArgs = "***"
	}
	s.logger.Debug("command_received", "user", s.user, "cmd", verb, "arg", logArgs)

	if !s.authenticated && verb != "USER" && verb != "PASS" {
		s.reply(530, "")
		s.recordCommand(verb, time.Since(start))
		return
	}

	s.invoke(verb, handler, args)
	s.recordCommand(verb, time.Since(start))
}

// invoke runs handler, turning a panic into a 550 reply so a faulty
// Filesystem cannot take the server down.
func (s *session) invoke(verb string, handler commandHandler, args []string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("command_panic",
				"user", s.user,
				"cmd", verb,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			s.reply(550, "Requested action aborted: internal error.")
		}
	}()
	handler(s, args)
}

package server

import "strings"

func (s *session) handleFEAT(_ []string) {
	s.replyLines(211, []string{"Extensions supported"}, "End")
}

func (s *session) handleSYST(_ []string) {
	s.reply(215, s.server.systemName)
}

func (s *session) handleQUIT(_ []string) {
	s.reply(221, "")
	s.quitting = true
}

// handleTYPE switches the representation type. Only the first token is
// looked at, so "TYPE A N" selects ASCII.
func (s *session) handleTYPE(args []string) {
	switch strings.ToUpper(firstArg(args)) {
	case "A":
		s.encoding = encodingASCII
		s.reply(200, "Switching to ASCII mode.")
	case "I":
		s.encoding = encodingBinary
		s.reply(200, "Switching to Binary mode.")
	default:
		s.reply(501, "Unsupported type.")
	}
}

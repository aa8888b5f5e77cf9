package server

// anonymousUser is the only account that can log in.
const anonymousUser = "anonymous"

func (s *session) handleUSER(args []string) {
	s.user = firstArg(args)
	s.authenticated = false
	s.reply(331, "")
}

// handlePASS accepts any password for the anonymous user.
func (s *session) handlePASS(_ []string) {
	if s.user == "" {
		s.reply(503, "Login with USER first.")
		return
	}

	if s.user != anonymousUser {
		// Security audit: failed authentication
		s.logger.Warn("authentication_failed",
			"user", s.user,
			"reason", "only anonymous access is allowed",
		)
		s.recordAuthentication(false)
		s.reply(530, "")
		return
	}

	s.authenticated = true
	// Security audit: successful authentication
	s.logger.Info("authentication_success", "user", s.user)
	s.recordAuthentication(true)
	s.reply(230, "")
}

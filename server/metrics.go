package server

import "time"

// MetricsCollector is an optional interface for collecting server metrics.
// Implementations can send metrics to monitoring systems like Prometheus,
// StatsD, OpenTelemetry, etc. The metrics package provides one on top of
// an OpenTelemetry meter.
//
// All methods are called from session goroutines and should be
// non-blocking. If a method takes significant time, it should dispatch the
// work asynchronously.
//
// The server will check if the collector is nil before calling methods,
// so implementations don't need to handle nil receivers.
type MetricsCollector interface {
	// RecordCommand records one dispatched command.
	// verb is the upper-cased command name (e.g., "RETR", "PASV").
	// code is the last reply code sent for it.
	// duration is how long the command took, transfers included.
	RecordCommand(verb string, code int, duration time.Duration)

	// RecordTransfer records one finished data transfer.
	// verb is "LIST", "RETR" or "STOR".
	// bytes is the number of bytes moved on the data connection.
	// code is the terminal reply code (226 on success).
	RecordTransfer(verb string, bytes int64, duration time.Duration, code int)

	// RecordConnection records metrics for connection attempts.
	// accepted indicates whether the connection was accepted.
	// reason provides context (e.g., "global_limit_reached", "driver_open_failed").
	RecordConnection(accepted bool, reason string)

	// RecordAuthentication records metrics for authentication attempts.
	// success indicates whether authentication succeeded.
	// user is the username that attempted to authenticate.
	RecordAuthentication(success bool, user string)
}

func (s *session) recordCommand(verb string, duration time.Duration) {
	if m := s.server.metrics; m != nil {
		m.RecordCommand(verb, s.lastReplyCode(), duration)
	}
}

func (s *session) recordTransfer(verb string, bytes int64, duration time.Duration, code int) {
	if m := s.server.metrics; m != nil {
		m.RecordTransfer(verb, bytes, duration, code)
	}
}

func (s *session) recordAuthentication(success bool) {
	if m := s.server.metrics; m != nil {
		m.RecordAuthentication(success, s.user)
	}
}

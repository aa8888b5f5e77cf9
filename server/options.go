package server

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"
)

// Option is a functional option for configuring an FTP server.
type Option func(*Server) error

// WithDriver sets the backend driver that provides each session's
// Filesystem. This option is required and can only be set once.
//
// Example:
//
//	driver, _ := server.NewVFSDriver("file:///srv/ftp/")
//	s, _ := server.NewServer(":21", server.WithDriver(driver))
func WithDriver(driver Driver) Option {
	return func(s *Server) error {
		if s.driver != nil {
			return fmt.Errorf("driver already set")
		}
		s.driver = driver
		return nil
	}
}

// WithLogger sets a custom logger for the server.
// If not specified, slog.Default() is used.
//
// Example with debug logging:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithLogger(logger),
//	)
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithWelcomeMessage sets the text of the 220 banner sent on connect.
func WithWelcomeMessage(message string) Option {
	return func(s *Server) error {
		s.welcomeMessage = message
		return nil
	}
}

// WithSystemName sets the text returned by SYST.
// Defaults to "UNIX Type: L8".
func WithSystemName(name string) Option {
	return func(s *Server) error {
		s.systemName = name
		return nil
	}
}

// WithPassivePortRange restricts PASV listeners to ports in [min, max].
// Defaults to the IANA dynamic range 49152-65535.
//
// Example:
//
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithPassivePortRange(30000, 30099),
//	)
func WithPassivePortRange(min, max int) Option {
	return func(s *Server) error {
		if min < 1 || max > 65535 || min > max {
			return fmt.Errorf("invalid passive port range %d-%d", min, max)
		}
		s.pasvMinPort = min
		s.pasvMaxPort = max
		return nil
	}
}

// WithPublicHost sets the IPv4 address advertised in 227 replies.
// Use it when the server sits behind NAT. By default the local address of
// the control connection is advertised.
func WithPublicHost(host string) Option {
	return func(s *Server) error {
		if _, ok := parseIPv4(host); !ok {
			return fmt.Errorf("public host must be an IPv4 address: %q", host)
		}
		s.publicHost = host
		return nil
	}
}

// WithReadTimeout sets the deadline for each read on the control connection.
// If 0, no timeout is applied. This is the default.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.readTimeout = d
		return nil
	}
}

// WithWriteTimeout sets the deadline for each write on the control
// connection. If 0, no timeout is applied. This is the default.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.writeTimeout = d
		return nil
	}
}

// WithDataTimeout bounds the whole life of a data connection, from the 150
// reply until the transfer completes. If 0, no timeout is applied. This is
// the default.
func WithDataTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.dataTimeout = d
		return nil
	}
}

// WithMaxConnections sets the maximum number of simultaneous connections.
// If 0, there is no limit. This is the default.
//
// When the limit is reached, new connections receive a "421 Too many users" response.
//
// Example:
//
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithMaxConnections(100),
//	)
func WithMaxConnections(max int) Option {
	return func(s *Server) error {
		if max < 0 {
			return fmt.Errorf("max connections cannot be negative")
		}
		s.maxConnections = max
		return nil
	}
}

// WithBandwidthLimit caps the data stream of every transfer to
// bytesPerSecond. If 0, transfers are not throttled.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Server) error {
		if bytesPerSecond < 0 {
			return fmt.Errorf("bandwidth limit cannot be negative")
		}
		s.bandwidthLimit = bytesPerSecond
		return nil
	}
}

// WithMetrics sets a collector for commands, transfers, connections and
// logins. See the metrics package for an OpenTelemetry implementation.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *Server) error {
		s.metrics = collector
		return nil
	}
}

// WithTransferLog appends one line per completed transfer to w, in the
// xferlog format used by wu-ftpd and vsftpd.
func WithTransferLog(w io.Writer) Option {
	return func(s *Server) error {
		s.transferLog = w
		return nil
	}
}

// WithStatusText overrides the default text of individual reply codes.
//
// Example:
//
//	server.WithStatusText(map[int]string{530: "Anonymous users only."})
func WithStatusText(texts map[int]string) Option {
	return func(s *Server) error {
		if s.statusText == nil {
			s.statusText = make(map[int]string, len(texts))
		}
		maps.Copy(s.statusText, texts)
		return nil
	}
}

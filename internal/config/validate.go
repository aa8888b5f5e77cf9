package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks every section and returns all problems found, or nil.
func (c *Config) Validate() error {
	var result *multierror.Error

	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		result = multierror.Append(result, ValidationError{"server.address", err.Error()})
	}
	if c.Server.MaxConnections < 0 {
		result = multierror.Append(result, ValidationError{"server.maxConnections", "must not be negative"})
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		result = multierror.Append(result, ValidationError{"server.readTimeout", "timeouts must not be negative"})
	}

	if c.Passive.MinPort < 1 || c.Passive.MaxPort > 65535 || c.Passive.MinPort > c.Passive.MaxPort {
		result = multierror.Append(result, ValidationError{
			"passive.minPort",
			fmt.Sprintf("invalid range %d-%d", c.Passive.MinPort, c.Passive.MaxPort),
		})
	}
	if h := c.Passive.PublicHost; h != "" && net.ParseIP(h).To4() == nil {
		result = multierror.Append(result, ValidationError{"passive.publicHost", "must be an IPv4 address"})
	}

	if !strings.Contains(c.Storage.Root, "://") {
		result = multierror.Append(result, ValidationError{"storage.root", "must be a URI such as file:///srv/ftp/"})
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, ValidationError{"logging.level", fmt.Sprintf("unknown level %q", c.Logging.Level)})
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		result = multierror.Append(result, ValidationError{"logging.format", fmt.Sprintf("unknown format %q", c.Logging.Format)})
	}

	if c.Metrics.Enabled && c.Metrics.Interval <= 0 {
		result = multierror.Append(result, ValidationError{"metrics.interval", "must be positive"})
	}

	if c.Transfer.BandwidthLimit < 0 {
		result = multierror.Append(result, ValidationError{"transfer.bandwidthLimit", "must not be negative"})
	}
	if c.Transfer.DataTimeout < 0 {
		result = multierror.Append(result, ValidationError{"transfer.dataTimeout", "must not be negative"})
	}

	return result.ErrorOrNil()
}

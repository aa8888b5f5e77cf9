// Package metrics provides an OpenTelemetry implementation of
// server.MetricsCollector.
//
// Example:
//
//	exporter, _ := stdoutmetric.New()
//	provider := sdkmetric.NewMeterProvider(
//	    sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
//	)
//	collector, _ := metrics.NewOTelCollector(provider.Meter("ftpd"))
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithMetrics(collector),
//	)
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/gonzalop/ftpd/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	CommandsName        = "ftpd.commands"
	CommandDurationName = "ftpd.command.duration"
	TransfersName       = "ftpd.transfers"
	TransferBytesName   = "ftpd.transfer.bytes"
	ConnectionsName     = "ftpd.connections"
	LoginsName          = "ftpd.logins"
)

// OTelCollector records server events as OpenTelemetry instruments.
type OTelCollector struct {
	commands        metric.Int64Counter
	commandDuration metric.Float64Histogram
	transfers       metric.Int64Counter
	transferBytes   metric.Int64Counter
	connections     metric.Int64Counter
	logins          metric.Int64Counter
}

var _ server.MetricsCollector = (*OTelCollector)(nil)

// NewOTelCollector creates the instruments on meter.
func NewOTelCollector(meter metric.Meter) (*OTelCollector, error) {
	var (
		c   OTelCollector
		err error
	)

	if c.commands, err = meter.Int64Counter(CommandsName,
		metric.WithDescription("Commands dispatched, by verb and reply code."),
		metric.WithUnit("{command}"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", CommandsName, err)
	}

	if c.commandDuration, err = meter.Float64Histogram(CommandDurationName,
		metric.WithDescription("Time spent executing a command, transfers included."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", CommandDurationName, err)
	}

	if c.transfers, err = meter.Int64Counter(TransfersName,
		metric.WithDescription("Data transfers, by verb and terminal reply code."),
		metric.WithUnit("{transfer}"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", TransfersName, err)
	}

	if c.transferBytes, err = meter.Int64Counter(TransferBytesName,
		metric.WithDescription("Bytes moved on data connections."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", TransferBytesName, err)
	}

	if c.connections, err = meter.Int64Counter(ConnectionsName,
		metric.WithDescription("Control connections, accepted or rejected."),
		metric.WithUnit("{connection}"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", ConnectionsName, err)
	}

	if c.logins, err = meter.Int64Counter(LoginsName,
		metric.WithDescription("Login attempts."),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", LoginsName, err)
	}

	return &c, nil
}

func (c *OTelCollector) RecordCommand(verb string, code int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("verb", verb),
		attribute.Int("code", code),
	)
	c.commands.Add(context.Background(), 1, attrs)
	c.commandDuration.Record(context.Background(), duration.Seconds(), attrs)
}

func (c *OTelCollector) RecordTransfer(verb string, bytes int64, _ time.Duration, code int) {
	attrs := metric.WithAttributes(
		attribute.String("verb", verb),
		attribute.Int("code", code),
	)
	c.transfers.Add(context.Background(), 1, attrs)
	c.transferBytes.Add(context.Background(), bytes, metric.WithAttributes(attribute.String("verb", verb)))
}

func (c *OTelCollector) RecordConnection(accepted bool, reason string) {
	if reason == "" {
		reason = "accepted"
	}
	c.connections.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Bool("accepted", accepted),
		attribute.String("reason", reason),
	))
}

// RecordAuthentication counts login attempts. The user name is left out of
// the attributes to keep cardinality bounded.
func (c *OTelCollector) RecordAuthentication(success bool, _ string) {
	c.logins.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

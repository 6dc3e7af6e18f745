// Package notify delivers operator-facing alerts about order flow.
package notify

import "hermes/pkg/logger"

// Severity of a reported event
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Sink receives alert reports. Implementations must not block the
// caller on delivery.
type Sink interface {
	Report(severity Severity, title, body string)
}

// LogSink writes alerts to the structured log. Used as a fallback when
// no external channel is configured.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a log-backed sink
func NewLogSink() *LogSink {
	return &LogSink{log: logger.Get().With("component", "notify")}
}

// Report logs the alert at the matching level
func (s *LogSink) Report(severity Severity, title, body string) {
	switch severity {
	case SeverityError:
		s.log.Errorw(title, "detail", body)
	case SeverityWarning:
		s.log.Warnw(title, "detail", body)
	default:
		s.log.Infow(title, "detail", body)
	}
}

// MultiSink fans a report out to several sinks
type MultiSink []Sink

// Report delivers to every sink in order
func (m MultiSink) Report(severity Severity, title, body string) {
	for _, s := range m {
		s.Report(severity, title, body)
	}
}

// Package notify publishes a run-completed event to NATS when a run finishes.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stackvity/diagram-converter/pkg/converter"
)

const (
	connectTimeout = 5 * time.Second
	flushTimeout   = 5 * time.Second
)

// RunCompletedEvent is the JSON payload published after a run.
type RunCompletedEvent struct {
	RunID               string            `json:"runId"`
	SourceDir           string            `json:"sourceDir"`
	OutputDir           string            `json:"outputDir"`
	TaskCount           int               `json:"taskCount"`
	Succeeded           int               `json:"succeeded"`
	Failed              int               `json:"failed"`
	Cached              int               `json:"cached"`
	Skipped             int               `json:"skipped"`
	DurationSeconds     float64           `json:"durationSeconds"`
	ThroughputPerMinute *float64          `json:"throughputPerMinute,omitempty"`
	Outcome             converter.Outcome `json:"outcome"`
	ExitCode            int               `json:"exitCode"`
	Timestamp           time.Time         `json:"timestamp"`
}

// NewRunCompletedEvent builds the event payload from a report.
func NewRunCompletedEvent(report converter.Report) RunCompletedEvent {
	s := report.Summary
	return RunCompletedEvent{
		RunID:               s.RunID,
		SourceDir:           s.SourceDir,
		OutputDir:           s.OutputDir,
		TaskCount:           s.TaskCount,
		Succeeded:           s.Succeeded,
		Failed:              s.Failed,
		Cached:              s.Cached,
		Skipped:             s.Skipped,
		DurationSeconds:     s.DurationSeconds,
		ThroughputPerMinute: s.ThroughputPerMinute,
		Outcome:             s.Outcome,
		ExitCode:            report.ExitCode(),
		Timestamp:           s.Timestamp,
	}
}

// Publisher sends JSON payloads to a subject.
type Publisher interface {
	PublishJSON(subject string, v any) error
	Close()
}

// Client is a Publisher backed by a NATS connection.
type Client struct{ nc *nats.Conn }

var _ Publisher = (*Client)(nil)

// Connect dials url. The CLI publishes once and exits, so reconnects are disabled.
func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("diagram-converter"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(0),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

// PublishJSON marshals v and publishes it, waiting for the server to acknowledge the flush.
func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.nc.Publish(subject, b); err != nil {
		return err
	}
	return c.nc.FlushTimeout(flushTimeout)
}

// Notifier publishes RunCompletedEvents.
type Notifier struct {
	logger  *slog.Logger
	url     string
	subject string
	connect func(url string) (Publisher, error)
}

// NewNotifier returns a Notifier for cfg. It returns nil when no URL is configured.
func NewNotifier(logger *slog.Logger, cfg converter.NotifyConfig) *Notifier {
	if cfg.URL == "" {
		return nil
	}
	subject := cfg.Subject
	if subject == "" {
		subject = converter.DefaultNotifySubject
	}
	return &Notifier{
		logger:  logger.With(slog.String("component", "notify")),
		url:     cfg.URL,
		subject: subject,
		connect: func(url string) (Publisher, error) { return Connect(url) },
	}
}

// Publish sends the event for report. Errors are returned for the caller to log;
// they never affect the run outcome.
func (n *Notifier) Publish(report converter.Report) error {
	if n == nil {
		return nil
	}
	pub, err := n.connect(n.url)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", n.url, err)
	}
	defer pub.Close()

	event := NewRunCompletedEvent(report)
	if err := pub.PublishJSON(n.subject, event); err != nil {
		return fmt.Errorf("publish to %s: %w", n.subject, err)
	}
	n.logger.Debug("Published run-completed event", slog.String("subject", n.subject), slog.String("runID", event.RunID))
	return nil
}

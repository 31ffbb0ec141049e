package notify

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stackvity/diagram-converter/pkg/converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	subject string
	payload []byte
	err     error
	closed  bool
}

func (p *recordingPublisher) PublishJSON(subject string, v any) error {
	if p.err != nil {
		return p.err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.subject, p.payload = subject, b
	return nil
}

func (p *recordingPublisher) Close() { p.closed = true }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sampleReport() converter.Report {
	tput := 120.0
	return converter.Report{Summary: converter.ReportSummary{
		RunID: "run-1", SourceDir: "/src", OutputDir: "/out",
		TaskCount: 3, Processed: 3, Succeeded: 2, Failed: 1,
		DurationSeconds: 1, ThroughputPerMinute: &tput,
		Outcome:   converter.OutcomeSuccess,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}
}

func TestNewNotifier_DisabledWithoutURL(t *testing.T) {
	n := NewNotifier(testLogger(), converter.NotifyConfig{})
	assert.Nil(t, n)
	assert.NoError(t, n.Publish(sampleReport()), "nil notifier is a no-op")
}

func TestNotifier_Publish(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifier(testLogger(), converter.NotifyConfig{URL: "nats://example:4222"})
	var dialed string
	n.connect = func(url string) (Publisher, error) {
		dialed = url
		return pub, nil
	}

	require.NoError(t, n.Publish(sampleReport()))

	assert.Equal(t, "nats://example:4222", dialed)
	assert.Equal(t, converter.DefaultNotifySubject, pub.subject)
	assert.True(t, pub.closed)

	var event map[string]any
	require.NoError(t, json.Unmarshal(pub.payload, &event))
	assert.Equal(t, "run-1", event["runId"])
	assert.EqualValues(t, 2, event["succeeded"])
	assert.EqualValues(t, 1, event["failed"])
	assert.EqualValues(t, 120, event["throughputPerMinute"])
	assert.Equal(t, "success", event["outcome"])
	assert.EqualValues(t, 0, event["exitCode"])
}

func TestNotifier_PublishErrors(t *testing.T) {
	n := NewNotifier(testLogger(), converter.NotifyConfig{URL: "nats://example:4222", Subject: "custom.subject"})

	n.connect = func(string) (Publisher, error) { return nil, errors.New("no servers available") }
	err := n.Publish(sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to nats://example:4222")

	pub := &recordingPublisher{err: errors.New("connection closed")}
	n.connect = func(string) (Publisher, error) { return pub, nil }
	err = n.Publish(sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish to custom.subject")
	assert.True(t, pub.closed)
}

func TestNewRunCompletedEvent_FailedRun(t *testing.T) {
	report := converter.Report{Summary: converter.ReportSummary{TaskCount: 2, Processed: 2, Failed: 2, Outcome: converter.OutcomeFailed}}
	event := NewRunCompletedEvent(report)
	assert.Equal(t, 1, event.ExitCode)
	assert.Nil(t, event.ThroughputPerMinute)

	b, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "throughputPerMinute")
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1")
	assert.Error(t, err)
}

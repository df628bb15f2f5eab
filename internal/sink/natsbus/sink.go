package natsbus

import (
	"context"
	"fmt"

	"FlowSentry/internal/config"
	"FlowSentry/internal/factory"
	"FlowSentry/internal/model"
	"FlowSentry/internal/probe"
)

// SinkName is the engine.sinks entry that enables this sink.
const SinkName = "nats"

// maxEventAlerts caps the alert rows carried in one event.
const maxEventAlerts = 100

func init() {
	factory.RegisterSink(SinkName, func(cfg *config.Config) (model.Sink, error) {
		pub, err := probe.NewPublisher(cfg.Probe)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		return New(pub, cfg.Probe.AlertSubject), nil
	})
}

// publisher is the part of probe.Publisher the sink needs.
type publisher interface {
	PublishRaw(subject string, data []byte) error
	Close()
}

// Sink publishes one event per batch that raised at least one alert.
type Sink struct {
	pub     publisher
	subject string
}

// New creates a sink publishing batch events to subject.
func New(pub publisher, subject string) *Sink {
	return &Sink{pub: pub, subject: subject}
}

// Name implements model.Sink.
func (s *Sink) Name() string { return SinkName }

// Write implements model.Sink. Batches without alerts are not published.
func (s *Sink) Write(ctx context.Context, b *model.Batch) error {
	if b.Summary.Alerts == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := probe.EncodeBatchEvent(b, maxEventAlerts)
	if err != nil {
		return err
	}
	return s.pub.PublishRaw(s.subject, data)
}

// Close implements model.Sink.
func (s *Sink) Close() error {
	s.pub.Close()
	return nil
}

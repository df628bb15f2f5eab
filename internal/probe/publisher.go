package probe

import (
	"fmt"
	"log"

	"FlowSentry/internal/config"

	"github.com/nats-io/nats.go"
)

// Publisher is responsible for publishing flow rows and batch events to NATS.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// PublishFlow serializes a FlowMessage and publishes it to the configured subject.
func (p *Publisher) PublishFlow(msg *FlowMessage) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// PublishRaw publishes already encoded data to subject.
func (p *Publisher) PublishRaw(subject string, data []byte) error {
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to '%s': %w", subject, err)
	}
	return nil
}

// Flush waits until the server has processed everything published so far.
func (p *Publisher) Flush() error {
	return p.nc.Flush()
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}

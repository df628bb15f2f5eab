package probe

import (
	"log"

	"FlowSentry/internal/config"

	"github.com/nats-io/nats.go"
)

// FlowHandler is a function that processes a received FlowMessage.
type FlowHandler func(msg *FlowMessage)

// Subscriber is responsible for subscribing to a NATS subject and processing messages.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	// OnDecodeError is called for messages that are not FlowMessages.
	OnDecodeError func(err error)
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.ProbeConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes to the configured subject and starts processing messages with the provided handler.
func (s *Subscriber) Start(handler FlowHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		flow, err := UnmarshalFlowMessage(msg.Data)
		if err != nil {
			log.Printf("Error decoding flow message: %v", err)
			if s.OnDecodeError != nil {
				s.OnDecodeError(err)
			}
			return
		}
		handler(flow)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for messages...", s.subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}

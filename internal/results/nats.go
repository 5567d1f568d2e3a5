package results

import (
	"NWBBenchmarks/internal/config"
	"NWBBenchmarks/internal/core/model"
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Publisher sends measurements to a NATS subject, one message each.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to the NATS server.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Infof("Connected to NATS server at %s", cfg.URL)
	return NewPublisherWithConn(nc, cfg.Subject), nil
}

// NewPublisherWithConn publishes on an existing connection.
func NewPublisherWithConn(nc *nats.Conn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: subject}
}

func (p *Publisher) Name() string { return "nats" }

// Write publishes every measurement and flushes the connection.
func (p *Publisher) Write(ctx context.Context, measurements []*model.Measurement) error {
	for _, m := range measurements {
		data, err := Encode(m)
		if err != nil {
			return fmt.Errorf("failed to encode measurement %s: %w", m.ID, err)
		}
		if err := p.nc.Publish(p.subject, data); err != nil {
			return err
		}
	}
	if len(measurements) == 0 {
		return nil
	}
	return p.nc.FlushWithContext(ctx)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	log.Info("NATS connection drained and closed.")
	return err
}

// MeasurementHandler processes a received measurement.
type MeasurementHandler func(m *model.Measurement)

// Subscriber decodes measurements from a NATS subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to the NATS server.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Infof("Connected to NATS server at %s", cfg.URL)
	return NewSubscriberWithConn(nc, cfg.Subject), nil
}

// NewSubscriberWithConn subscribes on an existing connection.
func NewSubscriberWithConn(nc *nats.Conn, subject string) *Subscriber {
	return &Subscriber{nc: nc, subject: subject}
}

// Start subscribes and hands every decodable message to handler.
func (s *Subscriber) Start(handler MeasurementHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		m, err := Decode(msg.Data)
		if err != nil {
			log.Warnf("Dropping undecodable measurement: %v", err)
			return
		}
		handler(m)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Infof("Subscribed to '%s'. Waiting for measurements...", s.subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Info("NATS connection closed.")
	}
}

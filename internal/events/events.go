// Package events publishes invoice lifecycle notifications for downstream
// consumers (mailer, accounting sync).
package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Type names an event.
type Type string

const (
	InvoiceCreated       Type = "invoice.created"
	InvoiceStatusChanged Type = "invoice.status_changed"
	InvoiceDeleted       Type = "invoice.deleted"
	InvoiceRendered      Type = "invoice.rendered"
)

// Event is the payload published for every invoice change.
type Event struct {
	Type          Type      `json:"type"`
	InvoiceNumber string    `json:"invoice_number"`
	OrderID       uint      `json:"order_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	PDFPath       string    `json:"pdf_path,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to the log. It is the default when no broker
// is configured.
type LogPublisher struct {
	Logger logrus.FieldLogger
}

func (p LogPublisher) Publish(_ context.Context, e Event) error {
	p.Logger.WithFields(logrus.Fields{
		"event":          e.Type,
		"invoice_number": e.InvoiceNumber,
		"order_id":       e.OrderID,
		"status":         e.Status,
	}).Info("event")
	return nil
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// PubSubPublisher publishes JSON events to a Google Pub/Sub topic.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher prefers explicit credentials JSON and falls back to ADC.
func NewPubSubPublisher(ctx context.Context, projectID, topic, credentialsJSON string) (*PubSubPublisher, error) {
	var (
		c   *pubsub.Client
		err error
	)
	if strings.TrimSpace(credentialsJSON) != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credentialsJSON)))
	} else {
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}
	return &PubSubPublisher{client: c, topic: c.Topic(topic)}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"type": string(e.Type)},
	})
	_, err = result.Get(ctx)
	return err
}

// Close flushes pending messages and releases the client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

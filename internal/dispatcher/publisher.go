package dispatcher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/DotoriPicnic/condition-pick/internal/screening"
	"github.com/DotoriPicnic/condition-pick/pkg/cloudevent"
)

// EventSource is the CloudEvents source attribute for published events.
const EventSource = "condition-pick/screener-service"

// Publisher fans screening outcomes out to every configured webhook.
// It implements screening.Notifier.
type Publisher struct {
	dispatcher Dispatcher
	urls       []string
	key        string
	logger     *slog.Logger
}

// NewPublisher creates a publisher. key, when set, signs every event with
// HMAC-SHA256 in the X-Signature-256 header.
func NewPublisher(d Dispatcher, urls []string, key string) *Publisher {
	return &Publisher{
		dispatcher: d,
		urls:       urls,
		key:        key,
		logger:     slog.With("component", "publisher"),
	}
}

// Notify queues the event for every subscriber. It never blocks.
func (p *Publisher) Notify(ctx context.Context, ev screening.Event) {
	if len(p.urls) == 0 {
		return
	}

	payload := ev.CloudEvent(EventSource)

	var signature string
	if p.key != "" {
		sig, err := cloudevent.Sign(payload, p.key)
		if err != nil {
			p.logger.Error("Failed to sign event", "type", payload.Type, "runId", ev.RunID, "error", err)
			return
		}
		signature = sig
	}

	for _, u := range p.urls {
		err := p.dispatcher.Dispatch(&Delivery{
			Payload:     payload,
			Destination: u,
			Signature:   signature,
		})
		if err != nil && !errors.Is(err, ErrBufferFull) {
			p.logger.Warn("Failed to queue event", "destination", extractHost(u), "error", err)
		}
	}
}

var _ screening.Notifier = (*Publisher)(nil)

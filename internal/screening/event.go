package screening

import (
	"context"
	"time"

	"github.com/DotoriPicnic/condition-pick/pkg/cloudevent"
)

// Event types published after every admitted run.
const (
	EventResultUpdated = "condition.screening.result.updated"
	EventRunFailed     = "condition.screening.run.failed"
)

// Event describes the outcome of one run.
type Event struct {
	Type     string    `json:"type"`
	RunID    string    `json:"runId"`
	Trigger  Trigger   `json:"trigger"`
	Result   *Result   `json:"data,omitempty"`
	Error    string    `json:"error,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Duration float64   `json:"durationSeconds"`
	At       time.Time `json:"timestamp"`
}

// Notifier receives run outcomes. Notify must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev Event)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// CloudEvent converts the event to a CloudEvents 1.0 envelope.
func (e Event) CloudEvent(source string) *cloudevent.CloudEvent {
	data := map[string]any{
		"runId":           e.RunID,
		"trigger":         string(e.Trigger),
		"durationSeconds": e.Duration,
	}
	if e.Result != nil {
		data["condition_name"] = e.Result.ConditionName
		data["count"] = e.Result.Count
		data["result"] = e.Result.Items
		data["lastUpdate"] = e.Result.RetrievedAt
	}
	if e.Error != "" {
		data["error"] = e.Error
		data["reason"] = e.Reason
	}

	ce := cloudevent.New(e.Type, source, e.RunID, e.RunID+"-"+e.Type, data)
	ce.Time = e.At.UTC()
	return ce
}

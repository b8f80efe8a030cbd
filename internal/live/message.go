package live

import (
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/screening"
)

// Message types sent to clients.
const (
	TypeSnapshot      = "snapshot"
	TypeResultUpdated = "result.updated"
	TypeRunFailed     = "run.failed"
)

// Message is the envelope of every frame the hub writes.
type Message struct {
	Type      string    `json:"type"`
	RunID     string    `json:"runId,omitempty"`
	Data      *Payload  `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	IsRunning bool      `json:"isRunning"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload carries a screening result in the same shape as the HTTP API.
type Payload struct {
	ConditionName string           `json:"condition_name"`
	Count         int              `json:"count"`
	Result        []screening.Item `json:"result"`
	LastUpdate    time.Time        `json:"lastUpdate"`
}

func payload(r *screening.Result) *Payload {
	if r == nil {
		return nil
	}
	return &Payload{
		ConditionName: r.ConditionName,
		Count:         r.Count,
		Result:        r.Items,
		LastUpdate:    r.RetrievedAt,
	}
}

// snapshotMessage describes the current state to a newly connected client.
func snapshotMessage(st screening.Status, now time.Time) Message {
	return Message{
		Type:      TypeSnapshot,
		Data:      payload(st.LastResult),
		Error:     st.LastError,
		IsRunning: st.IsRunning,
		Timestamp: now,
	}
}

// eventMessage converts a run outcome into a broadcast frame.
func eventMessage(ev screening.Event) Message {
	msg := Message{
		RunID:     ev.RunID,
		Data:      payload(ev.Result),
		Error:     ev.Error,
		Reason:    ev.Reason,
		Timestamp: ev.At,
	}
	switch ev.Type {
	case screening.EventResultUpdated:
		msg.Type = TypeResultUpdated
	case screening.EventRunFailed:
		msg.Type = TypeRunFailed
	default:
		msg.Type = ev.Type
	}
	return msg
}

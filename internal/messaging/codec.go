package messaging

import "encoding/json"

type wireMessage struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Priority    Priority  `json:"priority"`
	Sender      string    `json:"sender"`
	Recipient   string    `json:"recipient,omitempty"`
	Payload     any       `json:"payload"`
	CreatedAt   string    `json:"created_at"`
	ExpiresAt   string    `json:"expires_at"`
	RequiresAck bool      `json:"requires_ack"`
	ReplyTo     string    `json:"reply_to,omitempty"`
}

func encodeMessage(m Message) ([]byte, error) {
	return json.Marshal(wireMessage{
		ID:          m.ID,
		Kind:        m.Kind,
		Priority:    m.Priority,
		Sender:      m.Sender,
		Recipient:   m.Recipient,
		Payload:     m.Payload,
		CreatedAt:   m.CreatedAt.Format(timeLayout),
		ExpiresAt:   m.ExpiresAt.Format(timeLayout),
		RequiresAck: m.RequiresAck,
		ReplyTo:     m.ReplyTo,
	})
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

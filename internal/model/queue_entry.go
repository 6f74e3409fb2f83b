// internal/model/queue_entry.go
package model

import "time"

// Status is the delivery state of a queue entry.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Active reports whether the entry still holds its dedupe key.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusSending
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// Channel records why a message was queued. It does not affect processing.
type Channel string

const (
	ChannelManual     Channel = "manual"
	ChannelCampaign   Channel = "campaign"
	ChannelAutomation Channel = "automation"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelManual, ChannelCampaign, ChannelAutomation:
		return true
	}
	return false
}

// ProviderResponse is what a delivery provider returned on success, plus
// the recipients and subject that were actually sent.
type ProviderResponse struct {
	MessageID  string   `json:"messageId"`
	Provider   string   `json:"provider,omitempty"`
	StatusCode int      `json:"statusCode,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Subject    string   `json:"subject,omitempty"`
}

type QueueEntry struct {
	ID               string            `json:"id"`
	CreatedAt        time.Time         `json:"createdAt"`
	SendAt           time.Time         `json:"sendAt"`
	Status           Status            `json:"status"`
	Attempts         int               `json:"attempts"`
	LastAttemptAt    *time.Time        `json:"lastAttemptAt,omitempty"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
	Channel          Channel           `json:"channel"`
	Campaign         string            `json:"campaign,omitempty"`
	DedupeKey        string            `json:"dedupeKey,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	Options          MessageOptions    `json:"options"`
	LastError        string            `json:"lastError,omitempty"`
	ProviderResponse *ProviderResponse `json:"providerResponse,omitempty"`
}

// Queue is the whole persisted queue document, in insertion order.
type Queue struct {
	Messages []QueueEntry `json:"messages"`
}

// Find returns the index of the entry with the given id, or -1.
func (q *Queue) Find(id string) int {
	for i := range q.Messages {
		if q.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

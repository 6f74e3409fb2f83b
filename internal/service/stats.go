package service

import (
	"time"

	"github.com/unclebandit/salon-messaging/internal/model"
)

// QueueStats aggregates a queue snapshot for reporting.
type QueueStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"byStatus"`
	ByChannel  map[string]int `json:"byChannel"`
	ByCampaign map[string]int `json:"byCampaign"`
	NextSendAt *time.Time     `json:"nextSendAt,omitempty"`
}

func SummarizeQueue(q model.Queue) QueueStats {
	stats := QueueStats{
		Total:      len(q.Messages),
		ByStatus:   map[string]int{},
		ByChannel:  map[string]int{},
		ByCampaign: map[string]int{},
	}
	for _, s := range []model.Status{model.StatusScheduled, model.StatusSending, model.StatusSent, model.StatusFailed, model.StatusCancelled} {
		stats.ByStatus[string(s)] = 0
	}
	for _, e := range q.Messages {
		stats.ByStatus[string(e.Status)]++
		stats.ByChannel[string(e.Channel)]++
		if e.Campaign != "" {
			stats.ByCampaign[e.Campaign]++
		}
		if e.Status == model.StatusScheduled {
			if stats.NextSendAt == nil || e.SendAt.Before(*stats.NextSendAt) {
				t := e.SendAt
				stats.NextSendAt = &t
			}
		}
	}
	return stats
}

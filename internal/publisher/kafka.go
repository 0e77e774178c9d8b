package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gosight/campaignsync/internal/config"
	"github.com/gosight/campaignsync/internal/rollup"
	"github.com/gosight/campaignsync/internal/storage"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OverviewEvent is the message published for each synced campaign
type OverviewEvent struct {
	RunID              string    `json:"run_id"`
	AccountID          string    `json:"account_id"`
	CampaignID         string    `json:"campaign_id"`
	CampaignName       string    `json:"campaign_name"`
	Status             string    `json:"status"`
	TotalLeads         int       `json:"total_leads"`
	ActiveLeads        int       `json:"active_leads"`
	UniqueLeadsEmailed int       `json:"unique_leads_emailed"`
	EmailOpenRate      string    `json:"email_open_rate"`
	EmailCTR           string    `json:"email_ctr"`
	EmailReplyRate     string    `json:"email_reply_rate"`
	EmailBounceRate    string    `json:"email_bounce_rate"`
	MeetingsBooked     int       `json:"meetings_booked"`
	SyncedAt           time.Time `json:"synced_at"`
}

// Kafka publishes sync results for downstream consumers
type Kafka struct {
	campaigns messageWriter
	runs      messageWriter
}

func NewKafka(cfg config.KafkaConfig) *Kafka {
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: time.Millisecond * 100,
			Async:        true,
		}
	}

	return &Kafka{
		campaigns: newWriter(cfg.Topics.Campaigns),
		runs:      newWriter(cfg.Topics.SyncRuns),
	}
}

// PublishOverviews sends one message per campaign keyed by campaign id
func (k *Kafka) PublishOverviews(ctx context.Context, runID string, overviews []rollup.CampaignOverview) error {
	if len(overviews) == 0 {
		return nil
	}

	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(overviews))
	for _, o := range overviews {
		data, err := json.Marshal(OverviewEvent{
			RunID:              runID,
			AccountID:          o.AccountID,
			CampaignID:         o.CampaignID,
			CampaignName:       o.CampaignName,
			Status:             o.Status,
			TotalLeads:         o.TotalLeads,
			ActiveLeads:        o.ActiveLeads,
			UniqueLeadsEmailed: o.UniqueLeadsEmailed,
			EmailOpenRate:      o.EmailOpenRate,
			EmailCTR:           o.EmailCTR,
			EmailReplyRate:     o.EmailReplyRate,
			EmailBounceRate:    o.EmailBounceRate,
			MeetingsBooked:     o.MeetingsBooked,
			SyncedAt:           now,
		})
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(o.CampaignID),
			Value: data,
		})
	}

	return k.campaigns.WriteMessages(ctx, msgs...)
}

// PublishRun sends the summary of a finished sync run
func (k *Kafka) PublishRun(ctx context.Context, run storage.SyncRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	return k.runs.WriteMessages(ctx, kafka.Message{
		Key:   []byte(run.ID),
		Value: data,
	})
}

// Close flushes both writers. Async write failures surface here.
func (k *Kafka) Close() error {
	return errors.Join(k.campaigns.Close(), k.runs.Close())
}

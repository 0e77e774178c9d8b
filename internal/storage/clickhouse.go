package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosight/campaignsync/internal/config"
	"github.com/gosight/campaignsync/internal/rollup"
)

var clickhouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS campaign_overview (
		account_id String, campaign_id String, campaign_name String, status String,
		is_archived Bool, created_date Nullable(DateTime64(3)),
		total_leads Int64, active_leads Int64, completed_leads Int64,
		total_emails_sent Int64, unique_leads_emailed Int64, emails_delivered Int64,
		email_opens Int64, email_open_rate Float64, email_clicks Int64, email_ctr Float64,
		email_replies Int64, email_reply_rate Float64, email_bounces Int64, email_bounce_rate Float64,
		email_fails Int64, unsubscribes Int64, meetings_booked Int64, interested Int64, not_interested Int64,
		team_id String, sender_name String, sender_email String
	) ENGINE = MergeTree ORDER BY (account_id, campaign_id)`,
	`CREATE TABLE IF NOT EXISTS sequence_steps (
		account_id String, campaign_id String, campaign_name String, step_number Int64, step_type String,
		unique_leads_sent Int64, opens Int64, open_rate Float64, clicks Int64, ctr Float64,
		replies Int64, reply_rate Float64, bounces Int64, fails Int64
	) ENGINE = MergeTree ORDER BY (account_id, campaign_id, step_number)`,
	`CREATE TABLE IF NOT EXISTS leads (
		account_id String, campaign_id String, campaign_name String, lead_email String, lead_name String,
		company_name String, phone String, status LowCardinality(String),
		added_date Nullable(DateTime64(3)), last_activity_date Nullable(DateTime64(3)), last_activity_type String,
		emails_sent Int64, opens Int64, clicks Int64, replies Int64, bounces Int64, total_activities Int64,
		is_interested Bool, is_replied Bool, is_bounced Bool, is_unsubscribed Bool
	) ENGINE = MergeTree ORDER BY (account_id, campaign_id, lead_email)`,
	`CREATE TABLE IF NOT EXISTS replies (
		reply_id String, account_id String, campaign_id String, campaign_name String,
		reply_date Nullable(DateTime64(3)), reply_type String, lead_email String, lead_name String,
		company_name String, phone String, step_number Int64, sender_name String, reply_content String,
		is_bot Bool, is_first_reply Bool, original_message_date Nullable(DateTime64(3)), response_time_hours Float64
	) ENGINE = MergeTree ORDER BY (account_id, campaign_id, reply_id)`,
	`CREATE TABLE IF NOT EXISTS meetings (
		account_id String, campaign_id String, campaign_name String, lead_email String, lead_name String,
		company_name String, meeting_type String, meeting_date Nullable(DateTime64(3)),
		booking_date Nullable(DateTime64(3)), step_number Int64, days_to_book Int64
	) ENGINE = MergeTree ORDER BY (account_id, campaign_id)`,
	`CREATE TABLE IF NOT EXISTS activity_log (
		activity_id String, account_id String, campaign_id String, campaign_name String,
		activity_type LowCardinality(String), activity_date Nullable(DateTime64(3)),
		lead_email String, lead_name String, company_name String, step_number Int64, sender_name String,
		is_first Bool, stopped_sequence Bool, is_bot Bool, error_message String, additional_data String
	) ENGINE = MergeTree ORDER BY (account_id, campaign_id, activity_id)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id String, sync_type String, started_at DateTime64(3), finished_at Nullable(DateTime64(3)),
		status LowCardinality(String), records_processed Int64, error_message String, breakdown String,
		campaigns_failed Int64, accounts_failed Int64, updated_at DateTime64(3)
	) ENGINE = ReplacingMergeTree(updated_at) ORDER BY id`,
}

type ClickHouse struct {
	conn      driver.Conn
	batchSize int
}

func NewClickHouse(cfg config.ClickHouseConfig, activityBatchSize int) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	return &ClickHouse{conn: conn, batchSize: activityBatchSize}, nil
}

func (c *ClickHouse) Init(ctx context.Context) error {
	for _, stmt := range clickhouseSchema {
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (c *ClickHouse) ReplaceDataset(ctx context.Context, d *rollup.Dataset) (WriteResult, error) {
	result := WriteResult{Written: make(map[string]int, len(datasetTables))}

	for _, t := range datasetTables {
		if err := c.conn.Exec(ctx, "TRUNCATE TABLE IF EXISTS "+t.name); err != nil {
			return result, fmt.Errorf("truncate %s: %w", t.name, err)
		}
	}

	rows := datasetRows(d)
	for i, t := range datasetTables {
		if t.name != activitiesTable.name {
			if err := c.insert(ctx, t, rows[i]); err != nil {
				return result, fmt.Errorf("insert %s: %w", t.name, err)
			}
			result.Written[t.name] = len(rows[i])
			continue
		}

		for _, r := range chunks(len(rows[i]), c.batchSize) {
			if err := c.insert(ctx, t, rows[i][r[0]:r[1]]); err != nil {
				log.Error().Err(err).Int("offset", r[0]).Int("size", r[1]-r[0]).Msg("Failed to insert activity batch")
				result.FailedBatches++
				continue
			}
			result.Written[t.name] += r[1] - r[0]
		}
	}

	return result, nil
}

func (c *ClickHouse) insert(ctx context.Context, t table, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO "+t.name+" ("+t.columnList()+")")
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) StartRun(ctx context.Context, runType string) (SyncRun, error) {
	run := SyncRun{
		ID:        uuid.New().String(),
		Type:      runType,
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
	}
	return run, c.writeRun(ctx, run)
}

// FinishRun writes a newer version of the run row; ReplacingMergeTree keeps the latest
func (c *ClickHouse) FinishRun(ctx context.Context, run SyncRun) error {
	return c.writeRun(ctx, run)
}

func (c *ClickHouse) writeRun(ctx context.Context, run SyncRun) error {
	return c.conn.Exec(ctx, `
		INSERT INTO sync_runs (
			`+runsTable.columnList()+`, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Type, run.StartedAt, nullTime(run.FinishedAt), string(run.Status), int64(run.RecordsProcessed),
		run.ErrorMessage, encodeBreakdown(run.Breakdown), int64(run.CampaignsFailed), int64(run.AccountsFailed),
		time.Now().UTC(),
	)
}

func (c *ClickHouse) LastRun(ctx context.Context) (SyncRun, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT `+runsTable.columnList()+`
		FROM sync_runs FINAL
		ORDER BY started_at DESC
		LIMIT 1
	`)
	if err != nil {
		return SyncRun{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return SyncRun{}, err
		}
		return SyncRun{}, ErrNoRuns
	}

	var run SyncRun
	var status, breakdown string
	var finished *time.Time
	var processed, campaignsFailed, accsFailed int64
	if err := rows.Scan(&run.ID, &run.Type, &run.StartedAt, &finished, &status, &processed,
		&run.ErrorMessage, &breakdown, &campaignsFailed, &accsFailed); err != nil {
		return SyncRun{}, err
	}

	run.Status = RunStatus(status)
	run.RecordsProcessed = int(processed)
	run.Breakdown = decodeBreakdown(breakdown)
	run.CampaignsFailed = int(campaignsFailed)
	run.AccountsFailed = int(accsFailed)
	if finished != nil {
		run.FinishedAt = *finished
	}
	return run, nil
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/gosight/campaignsync/internal/config"
	"github.com/gosight/campaignsync/internal/rollup"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS campaign_overview (
		account_id TEXT NOT NULL, campaign_id TEXT NOT NULL, campaign_name TEXT, status TEXT,
		is_archived BOOLEAN, created_date TIMESTAMPTZ,
		total_leads BIGINT, active_leads BIGINT, completed_leads BIGINT,
		total_emails_sent BIGINT, unique_leads_emailed BIGINT, emails_delivered BIGINT,
		email_opens BIGINT, email_open_rate NUMERIC(10,2), email_clicks BIGINT, email_ctr NUMERIC(10,2),
		email_replies BIGINT, email_reply_rate NUMERIC(10,2), email_bounces BIGINT, email_bounce_rate NUMERIC(10,2),
		email_fails BIGINT, unsubscribes BIGINT, meetings_booked BIGINT, interested BIGINT, not_interested BIGINT,
		team_id TEXT, sender_name TEXT, sender_email TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sequence_steps (
		account_id TEXT NOT NULL, campaign_id TEXT NOT NULL, campaign_name TEXT, step_number BIGINT, step_type TEXT,
		unique_leads_sent BIGINT, opens BIGINT, open_rate NUMERIC(10,2), clicks BIGINT, ctr NUMERIC(10,2),
		replies BIGINT, reply_rate NUMERIC(10,2), bounces BIGINT, fails BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		account_id TEXT NOT NULL, campaign_id TEXT NOT NULL, campaign_name TEXT, lead_email TEXT NOT NULL,
		lead_name TEXT, company_name TEXT, phone TEXT, status TEXT,
		added_date TIMESTAMPTZ, last_activity_date TIMESTAMPTZ, last_activity_type TEXT,
		emails_sent BIGINT, opens BIGINT, clicks BIGINT, replies BIGINT, bounces BIGINT, total_activities BIGINT,
		is_interested BOOLEAN, is_replied BOOLEAN, is_bounced BOOLEAN, is_unsubscribed BOOLEAN
	)`,
	`CREATE TABLE IF NOT EXISTS replies (
		reply_id TEXT, account_id TEXT NOT NULL, campaign_id TEXT NOT NULL, campaign_name TEXT,
		reply_date TIMESTAMPTZ, reply_type TEXT, lead_email TEXT, lead_name TEXT, company_name TEXT, phone TEXT,
		step_number BIGINT, sender_name TEXT, reply_content TEXT, is_bot BOOLEAN, is_first_reply BOOLEAN,
		original_message_date TIMESTAMPTZ, response_time_hours DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS meetings (
		account_id TEXT NOT NULL, campaign_id TEXT NOT NULL, campaign_name TEXT, lead_email TEXT,
		lead_name TEXT, company_name TEXT, meeting_type TEXT, meeting_date TIMESTAMPTZ,
		booking_date TIMESTAMPTZ, step_number BIGINT, days_to_book BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS activity_log (
		activity_id TEXT, account_id TEXT NOT NULL, campaign_id TEXT NOT NULL, campaign_name TEXT,
		activity_type TEXT, activity_date TIMESTAMPTZ, lead_email TEXT, lead_name TEXT, company_name TEXT,
		step_number BIGINT, sender_name TEXT, is_first BOOLEAN, stopped_sequence BOOLEAN, is_bot BOOLEAN,
		error_message TEXT, additional_data TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_log_campaign ON activity_log (campaign_id, activity_date DESC)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY, sync_type TEXT NOT NULL, started_at TIMESTAMPTZ NOT NULL, finished_at TIMESTAMPTZ,
		status TEXT NOT NULL, records_processed BIGINT NOT NULL DEFAULT 0, error_message TEXT NOT NULL DEFAULT '',
		breakdown JSONB NOT NULL DEFAULT '{}', campaigns_failed BIGINT NOT NULL DEFAULT 0,
		accounts_failed BIGINT NOT NULL DEFAULT 0
	)`,
}

const activitySavepoint = "activity_batch"

// maxBindParams is the Postgres limit on parameters in one statement
const maxBindParams = 65535

// Postgres is a sink over database/sql with the pgx driver
type Postgres struct {
	db        *sql.DB
	batchSize int
}

// NewPostgres connects with the pgx driver and checks the connection
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, batchSize int) (*Postgres, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresFromDB(db, batchSize), nil
}

// NewPostgresFromDB wraps an open handle
func NewPostgresFromDB(db *sql.DB, batchSize int) *Postgres {
	return &Postgres{db: db, batchSize: batchSize}
}

func (p *Postgres) Init(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// ReplaceDataset rewrites all tables in one transaction. Each activity batch
// runs under a savepoint so a failed batch rolls back alone.
func (p *Postgres) ReplaceDataset(ctx context.Context, d *rollup.Dataset) (WriteResult, error) {
	result := WriteResult{Written: make(map[string]int, len(datasetTables))}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range datasetTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.name); err != nil {
			return WriteResult{}, fmt.Errorf("clear %s: %w", t.name, err)
		}
	}

	rows := datasetRows(d)
	for i, t := range datasetTables {
		for _, r := range chunks(len(rows[i]), rowsPerStatement(t, p.batchSize)) {
			batch := rows[i][r[0]:r[1]]

			if t.name != activitiesTable.name {
				if err := execInsert(ctx, tx, t, batch); err != nil {
					return WriteResult{}, fmt.Errorf("insert %s: %w", t.name, err)
				}
				result.Written[t.name] += len(batch)
				continue
			}

			if _, err := tx.ExecContext(ctx, "SAVEPOINT "+activitySavepoint); err != nil {
				return WriteResult{}, fmt.Errorf("savepoint: %w", err)
			}
			if err := execInsert(ctx, tx, t, batch); err != nil {
				log.Error().Err(err).Int("offset", r[0]).Int("size", len(batch)).Msg("Failed to insert activity batch")
				result.FailedBatches++
				if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+activitySavepoint); err != nil {
					return WriteResult{}, fmt.Errorf("rollback savepoint: %w", err)
				}
				continue
			}
			if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+activitySavepoint); err != nil {
				return WriteResult{}, fmt.Errorf("release savepoint: %w", err)
			}
			result.Written[t.name] += len(batch)
		}
	}

	if err := tx.Commit(); err != nil {
		return WriteResult{}, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

func execInsert(ctx context.Context, tx *sql.Tx, t table, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, args := insertStatement(t, rows)
	_, err := tx.ExecContext(ctx, stmt, args...)
	return err
}

// rowsPerStatement caps batchSize so one multi-row INSERT stays under the
// bind parameter limit. A non-positive batchSize means as many as fit.
func rowsPerStatement(t table, batchSize int) int {
	limit := maxBindParams / len(t.columns)
	if batchSize <= 0 || batchSize > limit {
		return limit
	}
	return batchSize
}

// insertStatement builds a multi-row INSERT with numbered placeholders
func insertStatement(t table, rows [][]any) (string, []any) {
	placeholders := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(t.columns))

	argi := 1
	for _, row := range rows {
		ph := make([]string, 0, len(row))
		for _, v := range row {
			ph = append(ph, "$"+strconv.Itoa(argi))
			args = append(args, v)
			argi++
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	stmt := "INSERT INTO " + t.name + " (" + t.columnList() + ") VALUES " + strings.Join(placeholders, ",")
	return stmt, args
}

func (p *Postgres) StartRun(ctx context.Context, runType string) (SyncRun, error) {
	run := SyncRun{
		ID:        uuid.New().String(),
		Type:      runType,
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, sync_type, started_at, status) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Type, run.StartedAt, string(run.Status),
	)
	if err != nil {
		return SyncRun{}, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

func (p *Postgres) FinishRun(ctx context.Context, run SyncRun) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET finished_at = $2, status = $3, records_processed = $4, error_message = $5,
			breakdown = $6::jsonb, campaigns_failed = $7, accounts_failed = $8
		WHERE id = $1`,
		run.ID, nullTime(run.FinishedAt), string(run.Status), int64(run.RecordsProcessed), run.ErrorMessage,
		encodeBreakdown(run.Breakdown), int64(run.CampaignsFailed), int64(run.AccountsFailed),
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return nil
}

func (p *Postgres) LastRun(ctx context.Context) (SyncRun, error) {
	var run SyncRun
	var status, breakdown string
	var finished sql.NullTime
	var processed, campaignsFailed, accountsFailed int64

	err := p.db.QueryRowContext(ctx, `
		SELECT id, sync_type, started_at, finished_at, status, records_processed,
			error_message, breakdown::text, campaigns_failed, accounts_failed
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT 1`,
	).Scan(&run.ID, &run.Type, &run.StartedAt, &finished, &status, &processed,
		&run.ErrorMessage, &breakdown, &campaignsFailed, &accountsFailed)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncRun{}, ErrNoRuns
	}
	if err != nil {
		return SyncRun{}, err
	}

	run.Status = RunStatus(status)
	run.RecordsProcessed = int(processed)
	run.Breakdown = decodeBreakdown(breakdown)
	run.CampaignsFailed = int(campaignsFailed)
	run.AccountsFailed = int(accountsFailed)
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

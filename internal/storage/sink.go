package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gosight/campaignsync/internal/rollup"
)

// ErrNoRuns is returned by LastRun before any sync has been recorded
var ErrNoRuns = errors.New("no sync runs recorded")

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunTypeFull is a sync that replaces every table
const RunTypeFull = "full"

// SyncRun is one entry in the sync log
type SyncRun struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at,omitempty"`
	Status           RunStatus      `json:"status"`
	RecordsProcessed int            `json:"records_processed"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	Breakdown        map[string]int `json:"breakdown,omitempty"`
	CampaignsFailed  int            `json:"campaigns_failed"`
	AccountsFailed   int            `json:"accounts_failed"`
}

// WriteResult reports what ReplaceDataset actually stored
type WriteResult struct {
	Written       map[string]int
	FailedBatches int
}

// Total returns the number of rows written across all tables
func (w WriteResult) Total() int {
	n := 0
	for _, c := range w.Written {
		n += c
	}
	return n
}

// Sink is the durable owner of sync output
type Sink interface {
	// Init creates tables that do not exist yet
	Init(ctx context.Context) error
	// ReplaceDataset discards the previous sync output and writes d. Activity log
	// batches that fail are logged and skipped; any other failure is returned.
	ReplaceDataset(ctx context.Context, d *rollup.Dataset) (WriteResult, error)
	StartRun(ctx context.Context, runType string) (SyncRun, error)
	FinishRun(ctx context.Context, run SyncRun) error
	LastRun(ctx context.Context) (SyncRun, error)
	Close() error
}

func encodeBreakdown(b map[string]int) string {
	if len(b) == 0 {
		return "{}"
	}
	data, _ := json.Marshal(b)
	return string(data)
}

func decodeBreakdown(s string) map[string]int {
	var b map[string]int
	if err := json.Unmarshal([]byte(s), &b); err != nil || len(b) == 0 {
		return nil
	}
	return b
}

package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/campaignsync/internal/activity"
	"github.com/gosight/campaignsync/internal/pace"
	"github.com/gosight/campaignsync/internal/replies"
	"github.com/gosight/campaignsync/internal/rollup"
)

// Source supplies campaign data for one account
type Source interface {
	ListCampaigns(ctx context.Context, apiKey string) ([]activity.Campaign, error)
	ListActivities(ctx context.Context, campaignID, apiKey string) ([]activity.Event, error)
	ListLeads(ctx context.Context, campaignID, apiKey string) ([]activity.Lead, error)
}

// ReplyResolver fetches reply content for a campaign's replied events
type ReplyResolver interface {
	Resolve(ctx context.Context, events []activity.Event, campaignID, apiKey string) map[string]replies.Reply
}

type Options struct {
	IncludeArchived  bool
	CampaignDelay    time.Duration
	ParallelAccounts bool
}

// Report counts what a sync covered and what it had to skip
type Report struct {
	Accounts        int
	AccountsFailed  int
	Campaigns       int
	CampaignsFailed int
}

func (r *Report) add(o Report) {
	r.Accounts += o.Accounts
	r.AccountsFailed += o.AccountsFailed
	r.Campaigns += o.Campaigns
	r.CampaignsFailed += o.CampaignsFailed
}

// Orchestrator runs the aggregation pipeline over every campaign of every account
type Orchestrator struct {
	source   Source
	resolver ReplyResolver
	opts     Options
}

func NewOrchestrator(source Source, resolver ReplyResolver, opts Options) *Orchestrator {
	return &Orchestrator{
		source:   source,
		resolver: resolver,
		opts:     opts,
	}
}

// SyncAll processes every account and returns the merged, sorted dataset.
// A failing campaign or account is logged and left out; the rest still sync.
func (o *Orchestrator) SyncAll(ctx context.Context, accounts []activity.Account) (*rollup.Dataset, Report) {
	results := make([]*rollup.Dataset, len(accounts))
	reports := make([]Report, len(accounts))

	if o.opts.ParallelAccounts {
		var wg sync.WaitGroup
		for i, acc := range accounts {
			wg.Add(1)
			go func(i int, acc activity.Account) {
				defer wg.Done()
				results[i], reports[i] = o.runAccount(ctx, acc)
			}(i, acc)
		}
		wg.Wait()
	} else {
		for i, acc := range accounts {
			if ctx.Err() != nil {
				break
			}
			results[i], reports[i] = o.runAccount(ctx, acc)
		}
	}

	dataset := &rollup.Dataset{}
	var report Report
	for i := range accounts {
		dataset.Merge(results[i])
		report.add(reports[i])
	}
	dataset.Sort()

	log.Info().
		Int("accounts", report.Accounts).
		Int("accounts_failed", report.AccountsFailed).
		Int("campaigns", report.Campaigns).
		Int("campaigns_failed", report.CampaignsFailed).
		Msg("Sync finished")

	return dataset, report
}

func (o *Orchestrator) runAccount(ctx context.Context, acc activity.Account) (*rollup.Dataset, Report) {
	report := Report{Accounts: 1}
	dataset, campaignReport, err := o.syncAccount(ctx, acc)
	report.add(campaignReport)
	if err != nil {
		log.Error().Err(err).Str("account_id", acc.ID).Msg("Account sync failed")
		report.AccountsFailed++
		return nil, report
	}
	return dataset, report
}

func (o *Orchestrator) syncAccount(ctx context.Context, acc activity.Account) (dataset *rollup.Dataset, report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			dataset, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	campaigns, err := o.source.ListCampaigns(ctx, acc.APIKey)
	if err != nil {
		return nil, report, fmt.Errorf("list campaigns: %w", err)
	}

	if !o.opts.IncludeArchived {
		active := campaigns[:0:0]
		for _, c := range campaigns {
			if !c.Ended() {
				active = append(active, c)
			}
		}
		campaigns = active
	}

	log.Info().Str("account_id", acc.ID).Int("campaigns", len(campaigns)).Msg("Syncing account")

	dataset = &rollup.Dataset{}
	for i, c := range campaigns {
		if ctx.Err() != nil {
			return dataset, report, ctx.Err()
		}
		if i > 0 {
			if err := pace.Wait(ctx, o.opts.CampaignDelay); err != nil {
				return dataset, report, err
			}
		}

		report.Campaigns++
		overview, result, err := o.syncCampaign(ctx, acc, c)
		if err != nil {
			log.Error().Err(err).
				Str("account_id", acc.ID).
				Str("campaign_id", c.ID).
				Str("campaign_name", c.Name).
				Msg("Campaign sync failed")
			report.CampaignsFailed++
			continue
		}
		dataset.AddCampaign(overview, result)
	}

	return dataset, report, nil
}

func (o *Orchestrator) syncCampaign(ctx context.Context, acc activity.Account, c activity.Campaign) (overview rollup.CampaignOverview, result rollup.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	start := time.Now()

	events, err := o.source.ListActivities(ctx, c.ID, acc.APIKey)
	if err != nil {
		return overview, result, fmt.Errorf("list activities: %w", err)
	}
	leads, err := o.source.ListLeads(ctx, c.ID, acc.APIKey)
	if err != nil {
		return overview, result, fmt.Errorf("list leads: %w", err)
	}

	var resolved map[string]string
	if o.resolver != nil {
		resolved = replies.Contents(o.resolver.Resolve(ctx, events, c.ID, acc.APIKey))
	}

	scope := rollup.Scope{AccountID: acc.ID, CampaignID: c.ID, CampaignName: c.Name}
	result = rollup.Aggregate(scope, events, activity.LeadsByEmail(leads), resolved)

	total, active := rollup.CountLeads(events)
	overview = rollup.ComputeOverview(c, acc.ID, total, active, result.Metrics, result.Team)

	log.Info().
		Str("account_id", acc.ID).
		Str("campaign_id", c.ID).
		Int("activities", len(events)).
		Int("leads", len(leads)).
		Int("replies", len(result.Replies)).
		Dur("took", time.Since(start)).
		Msg("Campaign processed")

	return overview, result, nil
}

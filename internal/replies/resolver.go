package replies

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/campaignsync/internal/activity"
	"github.com/gosight/campaignsync/internal/pace"
)

// lookupsPerPause is how many detail lookups run back to back before pacing
const lookupsPerPause = 10

// Reply is the resolved content of one replied event. Detail is nil when the
// content came from the cache.
type Reply struct {
	Content string
	Detail  map[string]interface{}
}

// DetailFetcher fetches a single activity in full
type DetailFetcher interface {
	GetActivityDetail(ctx context.Context, activityID, apiKey string) (*activity.Detail, error)
}

// Cache stores resolved reply content by event id
type Cache interface {
	GetMany(ctx context.Context, eventIDs []string) (map[string]string, error)
	SetMany(ctx context.Context, contents map[string]string) error
}

// Resolver fetches full reply bodies for replied events
type Resolver struct {
	fetcher DetailFetcher
	cache   Cache
	delay   time.Duration
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(fetcher DetailFetcher, cache Cache, delay time.Duration) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		cache:   cache,
		delay:   delay,
	}
}

// Resolve looks up the content of every replied event, one at a time. A
// failed lookup is logged and skipped so the event keeps its embedded body.
// On cancellation the replies resolved so far are returned.
func (r *Resolver) Resolve(ctx context.Context, events []activity.Event, campaignID, apiKey string) map[string]Reply {
	var ids []string
	for _, e := range events {
		if e.Type == activity.TypeReplied && e.ID != "" {
			ids = append(ids, e.ID)
		}
	}

	resolved := make(map[string]Reply, len(ids))
	if len(ids) == 0 {
		return resolved
	}

	if r.cache != nil {
		cached, err := r.cache.GetMany(ctx, ids)
		if err != nil {
			log.Warn().Err(err).Str("campaign_id", campaignID).Msg("Reply cache read failed")
		}
		for id, content := range cached {
			resolved[id] = Reply{Content: content}
		}
	}

	fetched := make(map[string]string)
	lookups := 0
	for _, id := range ids {
		if _, ok := resolved[id]; ok {
			continue
		}

		if pace.Every(lookups, lookupsPerPause) {
			if err := pace.Wait(ctx, r.delay); err != nil {
				break
			}
		}

		detail, err := r.fetcher.GetActivityDetail(ctx, id, apiKey)
		lookups++
		switch {
		case err != nil:
			log.Error().Err(err).Str("campaign_id", campaignID).Str("activity_id", id).Msg("Failed to fetch reply content")
		case detail != nil:
			content := Content(detail)
			resolved[id] = Reply{Content: content, Detail: detail.Raw}
			if content != "" {
				fetched[id] = content
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	if r.cache != nil && len(fetched) > 0 {
		if err := r.cache.SetMany(ctx, fetched); err != nil {
			log.Warn().Err(err).Str("campaign_id", campaignID).Msg("Reply cache write failed")
		}
	}

	log.Debug().
		Str("campaign_id", campaignID).
		Int("replies", len(ids)).
		Int("resolved", len(resolved)).
		Int("lookups", lookups).
		Msg("Resolved reply content")

	return resolved
}

// Content picks the reply text of a detail: body, then text, then metadata body
func Content(d *activity.Detail) string {
	if d == nil {
		return ""
	}
	switch {
	case d.Body != "":
		return d.Body
	case d.Text != "":
		return d.Text
	}
	return d.MetadataBody
}

// Contents flattens resolved replies into event id to content
func Contents(resolved map[string]Reply) map[string]string {
	out := make(map[string]string, len(resolved))
	for id, r := range resolved {
		out[id] = r.Content
	}
	return out
}

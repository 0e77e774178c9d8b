package lemlist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/campaignsync/internal/activity"
	"github.com/gosight/campaignsync/internal/config"
	"github.com/gosight/campaignsync/internal/pace"
)

// StatusError is a non-success HTTP response from the vendor API
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Quota reports whether the vendor rejected the request for rate limiting
func (e *StatusError) Quota() bool {
	return e.Code == http.StatusTooManyRequests || strings.Contains(strings.ToLower(e.Body), "quota")
}

// Client fetches campaigns, leads and activities from the lemlist API
type Client struct {
	cfg  config.LemlistConfig
	http *http.Client
}

// NewClient creates a new API client
func NewClient(cfg config.LemlistConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// ListCampaigns returns every campaign of the account
func (c *Client) ListCampaigns(ctx context.Context, apiKey string) ([]activity.Campaign, error) {
	body, err := c.getWithRetry(ctx, c.cfg.BaseURL+"/campaigns", apiKey)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	if body == nil {
		return nil, nil
	}

	var raw []map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode campaigns: %w", err)
	}

	campaigns := make([]activity.Campaign, 0, len(raw))
	for _, r := range raw {
		campaigns = append(campaigns, TransformCampaign(r))
	}
	return campaigns, nil
}

// ListActivities returns all activities of a campaign. A page that fails after
// retries ends pagination and the pages fetched so far are returned.
func (c *Client) ListActivities(ctx context.Context, campaignID, apiKey string) ([]activity.Event, error) {
	raw, err := c.paginate(ctx, c.cfg.BaseURL+"/activities?campaignId="+url.QueryEscape(campaignID), apiKey)
	if err != nil {
		return nil, err
	}
	events := make([]activity.Event, 0, len(raw))
	for _, r := range raw {
		events = append(events, TransformActivity(r))
	}
	return events, nil
}

// ListLeads returns all leads of a campaign, paginated like ListActivities
func (c *Client) ListLeads(ctx context.Context, campaignID, apiKey string) ([]activity.Lead, error) {
	raw, err := c.paginate(ctx, c.cfg.BaseURL+"/leads?campaignId="+url.QueryEscape(campaignID), apiKey)
	if err != nil {
		return nil, err
	}
	leads := make([]activity.Lead, 0, len(raw))
	for _, r := range raw {
		leads = append(leads, TransformLead(r))
	}
	return leads, nil
}

// GetActivityDetail fetches one activity in full. It returns nil, nil when the
// activity does not exist.
func (c *Client) GetActivityDetail(ctx context.Context, activityID, apiKey string) (*activity.Detail, error) {
	body, err := c.getWithRetry(ctx, c.cfg.BaseURL+"/activities/"+url.PathEscape(activityID), apiKey)
	if err != nil {
		return nil, fmt.Errorf("get activity %s: %w", activityID, err)
	}
	if body == nil {
		return nil, nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode activity %s: %w", activityID, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return TransformDetail(raw), nil
}

// paginate walks limit/offset pages until a short or empty page. A page that
// still fails after retries is logged and ends the walk with what was collected.
func (c *Client) paginate(ctx context.Context, base, apiKey string) ([]map[string]interface{}, error) {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}

	size := c.cfg.BatchSize
	if size <= 0 {
		size = config.DefaultBatchSize
	}

	var all []map[string]interface{}
	for offset := 0; ; offset += size {
		pageURL := base + sep + "limit=" + strconv.Itoa(size) + "&offset=" + strconv.Itoa(offset)

		body, err := c.getWithRetry(ctx, pageURL, apiKey)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			log.Warn().Err(err).Str("url", base).Int("offset", offset).Msg("Pagination stopped early")
			return all, nil
		}
		if body == nil {
			return all, nil
		}

		var page []map[string]interface{}
		if err := json.Unmarshal(body, &page); err != nil {
			log.Warn().Err(err).Str("url", base).Int("offset", offset).Msg("Unexpected page payload")
			return all, nil
		}
		if len(page) == 0 {
			return all, nil
		}

		all = append(all, page...)
		if len(page) < size {
			return all, nil
		}

		if err := pace.Wait(ctx, c.cfg.RequestDelay); err != nil {
			return all, err
		}
	}
}

// getWithRetry issues an authenticated GET. Quota errors back off linearly by
// attempt, other failures wait a fixed delay. A 404 returns a nil body.
func (c *Client) getWithRetry(ctx context.Context, rawURL, apiKey string) ([]byte, error) {
	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := c.get(ctx, rawURL, apiKey)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == attempts {
			break
		}

		delay := c.cfg.RetryDelay
		if se, ok := err.(*StatusError); ok && se.Quota() {
			delay = c.cfg.RetryDelay * time.Duration(attempt)
			log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("Quota exceeded, backing off")
		} else {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Retrying request")
		}

		if err := pace.Wait(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) get(ctx context.Context, rawURL, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("", apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

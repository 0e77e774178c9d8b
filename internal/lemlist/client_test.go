package lemlist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/campaignsync/internal/activity"
	"github.com/gosight/campaignsync/internal/config"
)

func testClient(url string) *Client {
	return NewClient(config.LemlistConfig{
		BaseURL:    url,
		BatchSize:  2,
		MaxRetries: 3,
		Timeout:    2 * time.Second,
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestListActivitiesPaginates(t *testing.T) {
	var offsets []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activities", r.URL.Path)
		assert.Equal(t, "cam_1", r.URL.Query().Get("campaignId"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "", user)
		assert.Equal(t, "key-1", pass)

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, offset)

		var page []map[string]interface{}
		for i := offset; i < offset+2 && i < 5; i++ {
			page = append(page, map[string]interface{}{"_id": fmt.Sprintf("act_%d", i), "type": "emailsSent"})
		}
		writeJSON(t, w, page)
	}))
	defer srv.Close()

	events, err := testClient(srv.URL).ListActivities(context.Background(), "cam_1", "key-1")
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 4}, offsets)
	require.Len(t, events, 5)
	assert.Equal(t, "act_4", events[4].ID)
	assert.Equal(t, activity.TypeSent, events[0].Type)
}

func TestPaginationFallsBackToDefaultPageSize(t *testing.T) {
	var limits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limits = append(limits, r.URL.Query().Get("limit"))
		writeJSON(t, w, []map[string]interface{}{{"_id": "act_1", "type": "emailsSent"}})
	}))
	defer srv.Close()

	c := NewClient(config.LemlistConfig{BaseURL: srv.URL, BatchSize: -1, MaxRetries: 1, Timeout: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := c.ListActivities(ctx, "cam_1", "key")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, []string{"100"}, limits)
}

func TestListLeadsStopsOnEmptyPage(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			writeJSON(t, w, []map[string]interface{}{{"email": "a@x.io"}, {"email": "b@x.io"}})
			return
		}
		writeJSON(t, w, []map[string]interface{}{})
	}))
	defer srv.Close()

	leads, err := testClient(srv.URL).ListLeads(context.Background(), "cam_1", "key")
	require.NoError(t, err)
	assert.Len(t, leads, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPaginationFailureKeepsPartialResults(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("offset") == "0" {
			writeJSON(t, w, []map[string]interface{}{{"_id": "a"}, {"_id": "b"}})
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	events, err := testClient(srv.URL).ListActivities(context.Background(), "cam_1", "key")
	require.NoError(t, err)
	assert.Len(t, events, 2)
	// one successful page plus three attempts at the failing offset
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestRetryRecoversAfterQuotaError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "API quota exceeded", http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, []map[string]interface{}{{"_id": "cam_1", "name": "Spring", "status": "running"}})
	}))
	defer srv.Close()

	campaigns, err := testClient(srv.URL).ListCampaigns(context.Background(), "key")
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "Spring", campaigns[0].Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestListCampaignsExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ListCampaigns(context.Background(), "key")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.False(t, se.Quota())
}

func TestGetActivityDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/activities/act_1":
			writeJSON(t, w, map[string]interface{}{"text": "plain", "metaData": map[string]interface{}{"body": "meta"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)

	detail, err := c.GetActivityDetail(context.Background(), "act_1", "key")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "plain", detail.Text)
	assert.Equal(t, "meta", detail.MetadataBody)
	assert.Equal(t, "plain", detail.Raw["text"])

	missing, err := c.GetActivityDetail(context.Background(), "act_404", "key")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStatusErrorQuota(t *testing.T) {
	assert.True(t, (&StatusError{Code: 429}).Quota())
	assert.True(t, (&StatusError{Code: 400, Body: "Daily QUOTA reached"}).Quota())
	assert.False(t, (&StatusError{Code: 500, Body: "internal"}).Quota())
}

func TestContextCancelStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(config.LemlistConfig{BaseURL: srv.URL, BatchSize: 2, MaxRetries: 3, RetryDelay: time.Hour, Timeout: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.ListCampaigns(ctx, "key")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

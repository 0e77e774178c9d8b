package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/gosight/campaignsync/internal/rollup"
)

// table describes one sink table. Both sinks share column order so values
// helpers line up with either driver.
type table struct {
	name    string
	columns []string
}

func (t table) columnList() string {
	return strings.Join(t.columns, ", ")
}

var (
	overviewTable = table{
		name: rollup.CollectionOverview,
		columns: []string{
			"account_id", "campaign_id", "campaign_name", "status", "is_archived", "created_date",
			"total_leads", "active_leads", "completed_leads",
			"total_emails_sent", "unique_leads_emailed", "emails_delivered",
			"email_opens", "email_open_rate", "email_clicks", "email_ctr",
			"email_replies", "email_reply_rate", "email_bounces", "email_bounce_rate",
			"email_fails", "unsubscribes", "meetings_booked", "interested", "not_interested",
			"team_id", "sender_name", "sender_email",
		},
	}

	stepsTable = table{
		name: rollup.CollectionSteps,
		columns: []string{
			"account_id", "campaign_id", "campaign_name", "step_number", "step_type",
			"unique_leads_sent", "opens", "open_rate", "clicks", "ctr",
			"replies", "reply_rate", "bounces", "fails",
		},
	}

	leadsTable = table{
		name: rollup.CollectionLeads,
		columns: []string{
			"account_id", "campaign_id", "campaign_name", "lead_email", "lead_name", "company_name", "phone",
			"status", "added_date", "last_activity_date", "last_activity_type",
			"emails_sent", "opens", "clicks", "replies", "bounces", "total_activities",
			"is_interested", "is_replied", "is_bounced", "is_unsubscribed",
		},
	}

	repliesTable = table{
		name: rollup.CollectionReplies,
		columns: []string{
			"reply_id", "account_id", "campaign_id", "campaign_name", "reply_date", "reply_type",
			"lead_email", "lead_name", "company_name", "phone", "step_number", "sender_name",
			"reply_content", "is_bot", "is_first_reply", "original_message_date", "response_time_hours",
		},
	}

	meetingsTable = table{
		name: rollup.CollectionMeetings,
		columns: []string{
			"account_id", "campaign_id", "campaign_name", "lead_email", "lead_name", "company_name",
			"meeting_type", "meeting_date", "booking_date", "step_number", "days_to_book",
		},
	}

	activitiesTable = table{
		name: rollup.CollectionActivities,
		columns: []string{
			"activity_id", "account_id", "campaign_id", "campaign_name", "activity_type", "activity_date",
			"lead_email", "lead_name", "company_name", "step_number", "sender_name",
			"is_first", "stopped_sequence", "is_bot", "error_message", "additional_data",
		},
	}

	runsTable = table{
		name: "sync_runs",
		columns: []string{
			"id", "sync_type", "started_at", "finished_at", "status", "records_processed",
			"error_message", "breakdown", "campaigns_failed", "accounts_failed",
		},
	}
)

// datasetTables lists the replaced tables in write order
var datasetTables = []table{overviewTable, stepsTable, leadsTable, repliesTable, meetingsTable, activitiesTable}

func overviewValues(o rollup.CampaignOverview) []any {
	return []any{
		o.AccountID, o.CampaignID, o.CampaignName, o.Status, o.IsArchived, nullTime(o.CreatedDate),
		int64(o.TotalLeads), int64(o.ActiveLeads), int64(o.CompletedLeads),
		int64(o.TotalEmailsSent), int64(o.UniqueLeadsEmailed), int64(o.EmailsDelivered),
		int64(o.EmailOpens), parseRate(o.EmailOpenRate), int64(o.EmailClicks), parseRate(o.EmailCTR),
		int64(o.EmailReplies), parseRate(o.EmailReplyRate), int64(o.EmailBounces), parseRate(o.EmailBounceRate),
		int64(o.EmailFails), int64(o.Unsubscribes), int64(o.MeetingsBooked), int64(o.Interested), int64(o.NotInterested),
		o.TeamID, o.SenderName, o.SenderEmail,
	}
}

func stepValues(s rollup.StepRollup) []any {
	return []any{
		s.AccountID, s.CampaignID, s.CampaignName, int64(s.StepNumber), s.StepType,
		int64(s.UniqueLeadsSent), int64(s.Opens), parseRate(s.OpenRate), int64(s.Clicks), parseRate(s.CTR),
		int64(s.Replies), parseRate(s.ReplyRate), int64(s.Bounces), int64(s.Fails),
	}
}

func leadValues(l rollup.LeadRollup) []any {
	return []any{
		l.AccountID, l.CampaignID, l.CampaignName, l.LeadEmail, l.LeadName, l.CompanyName, l.Phone,
		string(l.Status), nullTime(l.AddedDate), nullTime(l.LastActivityDate), string(l.LastActivityType),
		int64(l.EmailsSent), int64(l.Opens), int64(l.Clicks), int64(l.Replies), int64(l.Bounces), int64(l.TotalActivities),
		l.IsInterested, l.IsReplied, l.IsBounced, l.IsUnsubscribed,
	}
}

func replyValues(r rollup.ReplyRecord) []any {
	return []any{
		r.ReplyID, r.AccountID, r.CampaignID, r.CampaignName, nullTime(r.ReplyDate), string(r.ReplyType),
		r.LeadEmail, r.LeadName, r.CompanyName, r.Phone, int64(r.StepNumber), r.SenderName,
		r.ReplyContent, r.IsBot, r.IsFirstReply, nullTime(r.OriginalMessageDate), r.ResponseTimeHours,
	}
}

func meetingValues(m rollup.MeetingRecord) []any {
	return []any{
		m.AccountID, m.CampaignID, m.CampaignName, m.LeadEmail, m.LeadName, m.CompanyName,
		m.MeetingType, nullTime(m.MeetingDate), nullTime(m.BookingDate), int64(m.StepNumber), int64(m.DaysToBook),
	}
}

func activityValues(a rollup.ActivityLogRecord) []any {
	return []any{
		a.ActivityID, a.AccountID, a.CampaignID, a.CampaignName, string(a.ActivityType), nullTime(a.ActivityDate),
		a.LeadEmail, a.LeadName, a.CompanyName, int64(a.StepNumber), a.SenderName,
		a.IsFirst, a.StoppedSequence, a.IsBot, a.ErrorMessage, a.AdditionalData,
	}
}

// datasetRows flattens a dataset into per-table value rows, in datasetTables order
func datasetRows(d *rollup.Dataset) [][][]any {
	out := make([][][]any, len(datasetTables))
	for _, o := range d.Overview {
		out[0] = append(out[0], overviewValues(o))
	}
	for _, s := range d.Steps {
		out[1] = append(out[1], stepValues(s))
	}
	for _, l := range d.Leads {
		out[2] = append(out[2], leadValues(l))
	}
	for _, r := range d.Replies {
		out[3] = append(out[3], replyValues(r))
	}
	for _, m := range d.Meetings {
		out[4] = append(out[4], meetingValues(m))
	}
	for _, a := range d.Activities {
		out[5] = append(out[5], activityValues(a))
	}
	return out
}

// parseRate turns a formatted rate back into a number for numeric columns
func parseRate(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// chunks splits n rows into [start, end) ranges of at most size
func chunks(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

package rollup

import (
	"strconv"

	"github.com/gosight/campaignsync/internal/activity"
)

const defaultCampaignStatus = "active"

// Rate formats num/den as a percentage with two decimals, or "0" when den is zero
func Rate(num, den int) string {
	if den <= 0 {
		return "0"
	}
	return strconv.FormatFloat(float64(num)/float64(den)*100, 'f', 2, 64)
}

// ComputeOverview derives campaign-level funnel totals and rates. It reads
// metrics without mutating them.
//
// CompletedLeads and EmailsDelivered are plain differences and go negative
// when upstream counts disagree.
func ComputeOverview(c activity.Campaign, accountID string, totalLeads, activeLeads int, m Metrics, team TeamInfo) CampaignOverview {
	status := c.Status
	if status == "" {
		status = defaultCampaignStatus
	}

	emailed := m.UniqueLeadsEmailed.Len()
	opens := m.EmailOpens.Len()
	clicks := m.EmailClicks.Len()
	replies := m.EmailReplies.Len()
	bounces := m.EmailBounces.Len()

	return CampaignOverview{
		AccountID:          accountID,
		CampaignID:         c.ID,
		CampaignName:       c.Name,
		Status:             status,
		IsArchived:         c.Archived,
		CreatedDate:        c.CreatedAt,
		TotalLeads:         totalLeads,
		ActiveLeads:        activeLeads,
		CompletedLeads:     totalLeads - activeLeads,
		TotalEmailsSent:    m.TotalEmailsSent,
		UniqueLeadsEmailed: emailed,
		EmailsDelivered:    emailed - bounces,
		EmailOpens:         opens,
		EmailOpenRate:      Rate(opens, emailed),
		EmailClicks:        clicks,
		EmailCTR:           Rate(clicks, opens),
		EmailReplies:       replies,
		EmailReplyRate:     Rate(replies, emailed),
		EmailBounces:       bounces,
		EmailBounceRate:    Rate(bounces, emailed),
		EmailFails:         m.EmailFails.Len(),
		Unsubscribes:       m.Unsubscribes.Len(),
		MeetingsBooked:     m.MeetingsBooked.Len(),
		Interested:         m.Interested.Len(),
		NotInterested:      m.NotInterested.Len(),
		TeamID:             team.TeamID,
		SenderName:         team.SenderName,
		SenderEmail:        team.SenderEmail,
	}
}

// CountLeads counts distinct lead ids across all events, and those among them
// that never bounced, unsubscribed or declined interest.
func CountLeads(events []activity.Event) (total, active int) {
	all := LeadSet{}
	stopped := LeadSet{}
	for _, e := range events {
		all.Add(e.LeadID)
		switch e.Type {
		case activity.TypeBounced, activity.TypeUnsubscribed, activity.TypeNotInterested:
			stopped.Add(e.LeadID)
		}
	}
	return all.Len(), all.Len() - stopped.Len()
}

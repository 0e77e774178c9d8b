package rollup

import "sort"

// Dataset is the unified output of a sync, one slice per sink table
type Dataset struct {
	Overview   []CampaignOverview
	Steps      []StepRollup
	Leads      []LeadRollup
	Replies    []ReplyRecord
	Activities []ActivityLogRecord
	Meetings   []MeetingRecord
}

// Collection names used in run breakdowns and table naming
const (
	CollectionOverview   = "campaign_overview"
	CollectionSteps      = "sequence_steps"
	CollectionLeads      = "leads"
	CollectionReplies    = "replies"
	CollectionActivities = "activity_log"
	CollectionMeetings   = "meetings"
)

// AddCampaign appends the output of one campaign
func (d *Dataset) AddCampaign(overview CampaignOverview, r Result) {
	d.Overview = append(d.Overview, overview)
	d.Steps = append(d.Steps, r.Steps...)
	d.Leads = append(d.Leads, r.Leads...)
	d.Replies = append(d.Replies, r.Replies...)
	d.Activities = append(d.Activities, r.ActivityLog...)
	d.Meetings = append(d.Meetings, r.Meetings...)
}

// Merge concatenates other onto d
func (d *Dataset) Merge(other *Dataset) {
	if other == nil {
		return
	}
	d.Overview = append(d.Overview, other.Overview...)
	d.Steps = append(d.Steps, other.Steps...)
	d.Leads = append(d.Leads, other.Leads...)
	d.Replies = append(d.Replies, other.Replies...)
	d.Activities = append(d.Activities, other.Activities...)
	d.Meetings = append(d.Meetings, other.Meetings...)
}

// Sort orders overview by creation date, replies by reply date and meetings by
// booking date ascending, and activities newest first.
func (d *Dataset) Sort() {
	sort.SliceStable(d.Overview, func(i, j int) bool {
		return d.Overview[i].CreatedDate.Before(d.Overview[j].CreatedDate)
	})
	sort.SliceStable(d.Replies, func(i, j int) bool {
		return d.Replies[i].ReplyDate.Before(d.Replies[j].ReplyDate)
	})
	sort.SliceStable(d.Activities, func(i, j int) bool {
		return d.Activities[i].ActivityDate.After(d.Activities[j].ActivityDate)
	})
	sort.SliceStable(d.Meetings, func(i, j int) bool {
		return d.Meetings[i].BookingDate.Before(d.Meetings[j].BookingDate)
	})
}

// Counts returns the number of rows per collection
func (d *Dataset) Counts() map[string]int {
	return map[string]int{
		CollectionOverview:   len(d.Overview),
		CollectionSteps:      len(d.Steps),
		CollectionLeads:      len(d.Leads),
		CollectionReplies:    len(d.Replies),
		CollectionActivities: len(d.Activities),
		CollectionMeetings:   len(d.Meetings),
	}
}

// Total returns the number of rows across all collections
func (d *Dataset) Total() int {
	n := 0
	for _, c := range d.Counts() {
		n += c
	}
	return n
}

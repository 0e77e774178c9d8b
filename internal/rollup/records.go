package rollup

import (
	"time"

	"github.com/gosight/campaignsync/internal/activity"
)

// LeadStatus is the terminal state of a lead within a campaign
type LeadStatus string

const (
	StatusActive        LeadStatus = "active"
	StatusBounced       LeadStatus = "bounced"
	StatusUnsubscribed  LeadStatus = "unsubscribed"
	StatusNotInterested LeadStatus = "not_interested"
)

// Scope identifies the campaign an aggregation pass belongs to
type Scope struct {
	AccountID    string
	CampaignID   string
	CampaignName string
}

// StepRollup counts distinct leads per sequence step
type StepRollup struct {
	AccountID       string
	CampaignID      string
	CampaignName    string
	StepNumber      int
	StepType        string
	UniqueLeadsSent int
	Opens           int
	OpenRate        string
	Clicks          int
	CTR             string
	Replies         int
	ReplyRate       string
	Bounces         int
	Fails           int
}

// LeadRollup holds per-lead running totals. Counts are events, not distinct leads.
type LeadRollup struct {
	AccountID        string
	CampaignID       string
	CampaignName     string
	LeadEmail        string
	LeadName         string
	CompanyName      string
	Phone            string
	Status           LeadStatus
	AddedDate        time.Time
	LastActivityDate time.Time
	LastActivityType activity.EventType
	EmailsSent       int
	Opens            int
	Clicks           int
	Replies          int
	Bounces          int
	TotalActivities  int
	IsInterested     bool
	IsReplied        bool
	IsBounced        bool
	IsUnsubscribed   bool
}

// ReplyRecord is one replied event with resolved content and latency
type ReplyRecord struct {
	AccountID           string
	CampaignID          string
	CampaignName        string
	ReplyID             string
	ReplyDate           time.Time
	ReplyType           activity.EventType
	LeadEmail           string
	LeadName            string
	CompanyName         string
	Phone               string
	StepNumber          int
	SenderName          string
	ReplyContent        string
	IsBot               bool
	IsFirstReply        bool
	OriginalMessageDate time.Time
	ResponseTimeHours   float64
}

// MeetingRecord is one booked meeting
type MeetingRecord struct {
	AccountID    string
	CampaignID   string
	CampaignName string
	LeadEmail    string
	LeadName     string
	CompanyName  string
	MeetingType  string
	MeetingDate  time.Time
	BookingDate  time.Time
	StepNumber   int
	DaysToBook   int
}

// ActivityLogRecord is the normalized audit row written for every event
type ActivityLogRecord struct {
	ActivityID      string
	AccountID       string
	CampaignID      string
	CampaignName    string
	ActivityType    activity.EventType
	ActivityDate    time.Time
	LeadEmail       string
	LeadName        string
	CompanyName     string
	StepNumber      int
	SenderName      string
	IsFirst         bool
	StoppedSequence bool
	IsBot           bool
	ErrorMessage    string
	AdditionalData  string
}

// TeamInfo is the sending team of a campaign
type TeamInfo struct {
	TeamID      string
	SenderName  string
	SenderEmail string
}

// CampaignOverview holds campaign-level funnel totals and rates
type CampaignOverview struct {
	AccountID          string
	CampaignID         string
	CampaignName       string
	Status             string
	IsArchived         bool
	CreatedDate        time.Time
	TotalLeads         int
	ActiveLeads        int
	CompletedLeads     int
	TotalEmailsSent    int
	UniqueLeadsEmailed int
	EmailsDelivered    int
	EmailOpens         int
	EmailOpenRate      string
	EmailClicks        int
	EmailCTR           string
	EmailReplies       int
	EmailReplyRate     string
	EmailBounces       int
	EmailBounceRate    string
	EmailFails         int
	Unsubscribes       int
	MeetingsBooked     int
	Interested         int
	NotInterested      int
	TeamID             string
	SenderName         string
	SenderEmail        string
}

// LeadSet is a set of lead ids
type LeadSet map[string]struct{}

// Add inserts id. Empty ids are ignored.
func (s LeadSet) Add(id string) {
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

// Len returns the number of distinct leads
func (s LeadSet) Len() int { return len(s) }

// Metrics holds the campaign-wide distinct-lead sets of one aggregation pass
type Metrics struct {
	TotalEmailsSent    int
	UniqueLeadsEmailed LeadSet
	EmailOpens         LeadSet
	EmailClicks        LeadSet
	EmailReplies       LeadSet
	EmailBounces       LeadSet
	EmailFails         LeadSet
	Unsubscribes       LeadSet
	Interested         LeadSet
	NotInterested      LeadSet
	MeetingsBooked     LeadSet
}

func newMetrics() Metrics {
	return Metrics{
		UniqueLeadsEmailed: LeadSet{},
		EmailOpens:         LeadSet{},
		EmailClicks:        LeadSet{},
		EmailReplies:       LeadSet{},
		EmailBounces:       LeadSet{},
		EmailFails:         LeadSet{},
		Unsubscribes:       LeadSet{},
		Interested:         LeadSet{},
		NotInterested:      LeadSet{},
		MeetingsBooked:     LeadSet{},
	}
}

// Result is everything one aggregation pass produces
type Result struct {
	Metrics     Metrics
	Steps       []StepRollup
	Leads       []LeadRollup
	Replies     []ReplyRecord
	Meetings    []MeetingRecord
	ActivityLog []ActivityLogRecord
	Team        TeamInfo
}

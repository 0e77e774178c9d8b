package rollup

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/gosight/campaignsync/internal/activity"
)

// ErrOutOfOrder is returned by Observe when an event is older than the previous one
var ErrOutOfOrder = errors.New("event observed out of chronological order")

const stepTypeEmail = "Email"

type stepSets struct {
	sent    LeadSet
	opens   LeadSet
	clicks  LeadSet
	replies LeadSet
	bounces LeadSet
	fails   LeadSet
}

func newStepSets() *stepSets {
	return &stepSets{
		sent:    LeadSet{},
		opens:   LeadSet{},
		clicks:  LeadSet{},
		replies: LeadSet{},
		bounces: LeadSet{},
		fails:   LeadSet{},
	}
}

// Accumulator folds the events of one campaign into rollups.
//
// Events must be observed in ascending CreatedAt order. First-reply detection,
// last-write-wins lead status, last activity tracking and one-time team capture
// all depend on it. Observe rejects an event older than the one before it.
// An Accumulator belongs to a single pass and is not safe for concurrent use.
type Accumulator struct {
	scope    Scope
	leads    map[string]activity.Lead
	resolved map[string]string

	metrics Metrics
	steps   map[int]*stepSets

	leadRollups map[string]*LeadRollup
	leadOrder   []string
	replyCounts map[string]int

	replies    []ReplyRecord
	meetings   []MeetingRecord
	log        []ActivityLogRecord
	team       TeamInfo
	teamCaught bool

	last     time.Time
	observed bool
}

// NewAccumulator creates an accumulator for one campaign. leads maps email to
// profile and resolved maps event id to reply content; either may be nil.
func NewAccumulator(scope Scope, leads map[string]activity.Lead, resolved map[string]string) *Accumulator {
	return &Accumulator{
		scope:       scope,
		leads:       leads,
		resolved:    resolved,
		metrics:     newMetrics(),
		steps:       make(map[int]*stepSets),
		leadRollups: make(map[string]*LeadRollup),
		replyCounts: make(map[string]int),
	}
}

// Aggregate sorts events chronologically and reduces them into rollups.
// The input slice is not modified. Events sharing a timestamp keep their
// input order, so which of two simultaneous replies counts as first depends
// on how the vendor returned them.
func Aggregate(scope Scope, events []activity.Event, leads map[string]activity.Lead, resolved map[string]string) Result {
	sorted := make([]activity.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	acc := NewAccumulator(scope, leads, resolved)
	for _, e := range sorted {
		// sorted input never trips the ordering check
		_ = acc.Observe(e)
	}
	return acc.Result()
}

// Observe folds one event into the accumulator
func (a *Accumulator) Observe(e activity.Event) error {
	if a.observed && e.CreatedAt.Before(a.last) {
		return ErrOutOfOrder
	}
	a.last = e.CreatedAt
	a.observed = true

	step := a.steps[e.SequenceStep]
	if step == nil {
		step = newStepSets()
		a.steps[e.SequenceStep] = step
	}

	if !a.teamCaught && e.TeamID != "" {
		a.team = TeamInfo{TeamID: e.TeamID, SenderName: e.SenderName, SenderEmail: e.SenderEmail}
		a.teamCaught = true
	}

	src := leadSource{event: e}
	if e.LeadEmail != "" {
		src.lead = a.leads[e.LeadEmail]
	}
	lead := a.leadRollup(src)

	switch e.Type {
	case activity.TypeSent:
		a.metrics.TotalEmailsSent++
		a.metrics.UniqueLeadsEmailed.Add(e.LeadID)
		step.sent.Add(e.LeadID)
		if lead != nil {
			lead.EmailsSent++
		}
	case activity.TypeOpened:
		a.metrics.EmailOpens.Add(e.LeadID)
		step.opens.Add(e.LeadID)
		if lead != nil {
			lead.Opens++
		}
	case activity.TypeClicked:
		a.metrics.EmailClicks.Add(e.LeadID)
		step.clicks.Add(e.LeadID)
		if lead != nil {
			lead.Clicks++
		}
	case activity.TypeReplied:
		a.metrics.EmailReplies.Add(e.LeadID)
		step.replies.Add(e.LeadID)
		if lead != nil {
			lead.Replies++
			lead.IsReplied = true
		}
		a.replies = append(a.replies, a.replyRecord(e, src))
	case activity.TypeBounced:
		a.metrics.EmailBounces.Add(e.LeadID)
		step.bounces.Add(e.LeadID)
		if lead != nil {
			lead.Bounces++
			lead.IsBounced = true
			lead.Status = StatusBounced
		}
	case activity.TypeFailed:
		a.metrics.EmailFails.Add(e.LeadID)
		step.fails.Add(e.LeadID)
	case activity.TypeUnsubscribed:
		a.metrics.Unsubscribes.Add(e.LeadID)
		if lead != nil {
			lead.IsUnsubscribed = true
			lead.Status = StatusUnsubscribed
		}
	case activity.TypeInterested:
		a.metrics.Interested.Add(e.LeadID)
		if lead != nil {
			lead.IsInterested = true
		}
	case activity.TypeNotInterested:
		a.metrics.NotInterested.Add(e.LeadID)
		if lead != nil {
			lead.Status = StatusNotInterested
		}
	case activity.TypeMeetingBooked:
		a.metrics.MeetingsBooked.Add(e.LeadID)
		a.meetings = append(a.meetings, a.meetingRecord(e, src))
	}

	if lead != nil {
		lead.TotalActivities++
		lead.LastActivityDate = e.CreatedAt
		lead.LastActivityType = e.Type
	}

	a.log = append(a.log, a.logRecord(e, src))
	return nil
}

// leadRollup returns the rollup for the event's lead, creating it on first
// sighting. Events without an email have no lead rollup.
func (a *Accumulator) leadRollup(src leadSource) *LeadRollup {
	email := src.event.LeadEmail
	if email == "" {
		return nil
	}
	if r, ok := a.leadRollups[email]; ok {
		return r
	}
	r := &LeadRollup{
		AccountID:    a.scope.AccountID,
		CampaignID:   a.scope.CampaignID,
		CampaignName: a.scope.CampaignName,
		LeadEmail:    email,
		LeadName:     leadName(src),
		CompanyName:  companyName(src),
		Phone:        phone(src),
		Status:       StatusActive,
		AddedDate:    src.lead.CreatedAt,
	}
	a.leadRollups[email] = r
	a.leadOrder = append(a.leadOrder, email)
	return r
}

func (a *Accumulator) replyRecord(e activity.Event, src leadSource) ReplyRecord {
	key := e.LeadEmail
	if key == "" {
		key = e.LeadID
	}
	first := a.replyCounts[key] == 0
	a.replyCounts[key]++

	email := e.LeadEmail
	if email == "" {
		email = notAvailable
	}

	return ReplyRecord{
		AccountID:           a.scope.AccountID,
		CampaignID:          a.scope.CampaignID,
		CampaignName:        a.scope.CampaignName,
		ReplyID:             e.ID,
		ReplyDate:           e.CreatedAt,
		ReplyType:           e.Type,
		LeadEmail:           email,
		LeadName:            leadName(src),
		CompanyName:         companyName(src),
		Phone:               phone(src),
		StepNumber:          e.SequenceStep,
		SenderName:          e.SenderName,
		ReplyContent:        replyContent(e, a.resolved),
		IsBot:               e.IsBot,
		IsFirstReply:        first,
		OriginalMessageDate: e.RelatedSentAt,
		ResponseTimeHours:   ResponseTimeHours(e.RelatedSentAt, e.CreatedAt),
	}
}

func (a *Accumulator) meetingRecord(e activity.Event, src leadSource) MeetingRecord {
	meetingDate := e.MeetingDate
	if meetingDate.IsZero() {
		meetingDate = e.CreatedAt
	}
	meetingType := e.MeetingType
	if meetingType == "" {
		meetingType = notAvailable
	}
	return MeetingRecord{
		AccountID:    a.scope.AccountID,
		CampaignID:   a.scope.CampaignID,
		CampaignName: a.scope.CampaignName,
		LeadEmail:    e.LeadEmail,
		LeadName:     leadName(src),
		CompanyName:  companyName(src),
		MeetingType:  meetingType,
		MeetingDate:  meetingDate,
		BookingDate:  e.CreatedAt,
		StepNumber:   e.SequenceStep,
		DaysToBook:   DaysToBook(e.CreatedAt, meetingDate),
	}
}

func (a *Accumulator) logRecord(e activity.Event, src leadSource) ActivityLogRecord {
	return ActivityLogRecord{
		ActivityID:      e.ID,
		AccountID:       a.scope.AccountID,
		CampaignID:      a.scope.CampaignID,
		CampaignName:    a.scope.CampaignName,
		ActivityType:    e.Type,
		ActivityDate:    e.CreatedAt,
		LeadEmail:       e.LeadEmail,
		LeadName:        leadName(src),
		CompanyName:     companyName(src),
		StepNumber:      e.SequenceStep,
		SenderName:      e.SenderName,
		IsFirst:         e.IsFirst,
		StoppedSequence: e.StoppedSequence,
		IsBot:           e.IsBot,
		ErrorMessage:    e.ErrorMessage,
		AdditionalData:  additionalData(e),
	}
}

// Result converts the accumulated state into output records. Steps are
// ordered by step number and leads by first sighting.
func (a *Accumulator) Result() Result {
	stepNumbers := make([]int, 0, len(a.steps))
	for n := range a.steps {
		stepNumbers = append(stepNumbers, n)
	}
	sort.Ints(stepNumbers)

	steps := make([]StepRollup, 0, len(stepNumbers))
	for _, n := range stepNumbers {
		s := a.steps[n]
		sent, opens, clicks, replies := s.sent.Len(), s.opens.Len(), s.clicks.Len(), s.replies.Len()
		steps = append(steps, StepRollup{
			AccountID:       a.scope.AccountID,
			CampaignID:      a.scope.CampaignID,
			CampaignName:    a.scope.CampaignName,
			StepNumber:      n,
			StepType:        stepTypeEmail,
			UniqueLeadsSent: sent,
			Opens:           opens,
			OpenRate:        Rate(opens, sent),
			Clicks:          clicks,
			CTR:             Rate(clicks, opens),
			Replies:         replies,
			ReplyRate:       Rate(replies, sent),
			Bounces:         s.bounces.Len(),
			Fails:           s.fails.Len(),
		})
	}

	leads := make([]LeadRollup, 0, len(a.leadOrder))
	for _, email := range a.leadOrder {
		leads = append(leads, *a.leadRollups[email])
	}

	return Result{
		Metrics:     a.metrics,
		Steps:       steps,
		Leads:       leads,
		Replies:     a.replies,
		Meetings:    a.meetings,
		ActivityLog: a.log,
		Team:        a.team,
	}
}

// ResponseTimeHours returns the hours between a send and its reply rounded to
// two decimals, or 0 when either timestamp is unknown.
func ResponseTimeHours(sentAt, repliedAt time.Time) float64 {
	if sentAt.IsZero() || repliedAt.IsZero() {
		return 0
	}
	return round2(repliedAt.Sub(sentAt).Hours())
}

// DaysToBook returns whole days between booking and meeting, rounded half away from zero
func DaysToBook(bookedAt, meetingAt time.Time) int {
	if bookedAt.IsZero() || meetingAt.IsZero() {
		return 0
	}
	return int(math.Round(meetingAt.Sub(bookedAt).Hours() / 24))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

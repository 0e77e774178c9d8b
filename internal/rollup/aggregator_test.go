package rollup

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/campaignsync/internal/activity"
)

var (
	t0    = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	scope = Scope{AccountID: "ACC_1", CampaignID: "cam_1", CampaignName: "Spring outreach"}
)

func at(h float64) time.Time {
	return t0.Add(time.Duration(h * float64(time.Hour)))
}

func ev(id string, typ activity.EventType, h float64, lead string, step int) activity.Event {
	return activity.Event{
		ID:           id,
		Type:         typ,
		CreatedAt:    at(h),
		LeadID:       lead,
		LeadEmail:    lead + "@example.com",
		SequenceStep: step,
	}
}

func TestAggregateDeduplicatesStepCounts(t *testing.T) {
	events := []activity.Event{
		ev("e6", activity.TypeClicked, 6, "a", 1),
		ev("e1", activity.TypeSent, 1, "a", 1),
		ev("e4", activity.TypeOpened, 4, "a", 1),
		ev("e2", activity.TypeSent, 2, "a", 1),
		ev("e5", activity.TypeOpened, 5, "a", 1),
		ev("e3", activity.TypeSent, 3, "a", 1),
	}

	res := Aggregate(scope, events, nil, nil)

	require.Len(t, res.Steps, 1)
	step := res.Steps[0]
	assert.Equal(t, 1, step.StepNumber)
	assert.Equal(t, "Email", step.StepType)
	assert.Equal(t, 1, step.UniqueLeadsSent)
	assert.Equal(t, 1, step.Opens)
	assert.Equal(t, 1, step.Clicks)
	assert.Equal(t, "100.00", step.OpenRate)
	assert.Equal(t, "100.00", step.CTR)
	assert.Equal(t, "0.00", step.ReplyRate)
	assert.Equal(t, 3, res.Metrics.TotalEmailsSent)
	assert.Equal(t, 1, res.Metrics.UniqueLeadsEmailed.Len())

	require.Len(t, res.Leads, 1)
	lead := res.Leads[0]
	assert.Equal(t, 3, lead.EmailsSent)
	assert.Equal(t, 2, lead.Opens)
	assert.Equal(t, 1, lead.Clicks)
	assert.Equal(t, 6, lead.TotalActivities)
	assert.Equal(t, at(6), lead.LastActivityDate)
	assert.Equal(t, activity.TypeClicked, lead.LastActivityType)
	assert.Equal(t, StatusActive, lead.Status)
}

func TestAggregateDoesNotModifyInput(t *testing.T) {
	events := []activity.Event{
		ev("e2", activity.TypeOpened, 2, "a", 1),
		ev("e1", activity.TypeSent, 1, "a", 1),
	}
	Aggregate(scope, events, nil, nil)
	assert.Equal(t, "e2", events[0].ID)
}

func TestAggregateRepliesFirstAndResponseTime(t *testing.T) {
	sent := ev("s", activity.TypeSent, 0, "b", 1)
	late := ev("r2", activity.TypeReplied, 5, "b", 1)
	late.RelatedSentAt = at(0)
	early := ev("r1", activity.TypeReplied, 2, "b", 1)
	early.RelatedSentAt = at(0)

	res := Aggregate(scope, []activity.Event{late, sent, early}, nil, nil)

	require.Len(t, res.Replies, 2)
	assert.Equal(t, "r1", res.Replies[0].ReplyID)
	assert.True(t, res.Replies[0].IsFirstReply)
	assert.Equal(t, 2.0, res.Replies[0].ResponseTimeHours)
	assert.Equal(t, "r2", res.Replies[1].ReplyID)
	assert.False(t, res.Replies[1].IsFirstReply)
	assert.Equal(t, 5.0, res.Replies[1].ResponseTimeHours)

	assert.Equal(t, 2, res.Leads[0].Replies)
	assert.True(t, res.Leads[0].IsReplied)
	assert.Equal(t, 1, res.Steps[0].Replies)
	assert.Equal(t, "100.00", res.Steps[0].ReplyRate)
}

func TestAggregateFirstReplyIsPerLead(t *testing.T) {
	events := []activity.Event{
		ev("r1", activity.TypeReplied, 1, "a", 1),
		ev("r2", activity.TypeReplied, 2, "b", 1),
		ev("r3", activity.TypeReplied, 3, "a", 2),
	}
	res := Aggregate(scope, events, nil, nil)

	first := map[string]bool{}
	for _, r := range res.Replies {
		first[r.ReplyID] = r.IsFirstReply
	}
	assert.Equal(t, map[string]bool{"r1": true, "r2": true, "r3": false}, first)
}

func TestAggregateResponseTimeUnknownSend(t *testing.T) {
	res := Aggregate(scope, []activity.Event{ev("r", activity.TypeReplied, 3, "a", 1)}, nil, nil)
	require.Len(t, res.Replies, 1)
	assert.Equal(t, 0.0, res.Replies[0].ResponseTimeHours)
	assert.True(t, res.Replies[0].OriginalMessageDate.IsZero())
}

func TestAggregateReplyContentFallback(t *testing.T) {
	resolved := ev("r1", activity.TypeReplied, 1, "a", 1)
	resolved.Body = "inline"
	inline := ev("r2", activity.TypeReplied, 2, "b", 1)
	inline.Body = "inline body"
	meta := ev("r3", activity.TypeReplied, 3, "c", 1)
	meta.MetadataBody = "meta body"
	empty := ev("r4", activity.TypeReplied, 4, "d", 1)

	res := Aggregate(scope, []activity.Event{resolved, inline, meta, empty}, nil, map[string]string{
		"r1": "fetched body",
		"r2": "",
	})

	require.Len(t, res.Replies, 4)
	assert.Equal(t, "fetched body", res.Replies[0].ReplyContent)
	assert.Equal(t, "inline body", res.Replies[1].ReplyContent)
	assert.Equal(t, "meta body", res.Replies[2].ReplyContent)
	assert.Equal(t, "", res.Replies[3].ReplyContent)
}

func TestAggregateMeetings(t *testing.T) {
	noDate := ev("m1", activity.TypeMeetingBooked, 1, "a", 2)
	withDate := ev("m2", activity.TypeMeetingBooked, 2, "b", 3)
	withDate.MeetingDate = at(2 + 24*3 + 13)
	withDate.MeetingType = "Discovery call"

	res := Aggregate(scope, []activity.Event{withDate, noDate}, nil, nil)

	require.Len(t, res.Meetings, 2)
	assert.Equal(t, 0, res.Meetings[0].DaysToBook)
	assert.Equal(t, at(1), res.Meetings[0].MeetingDate)
	assert.Equal(t, "N/A", res.Meetings[0].MeetingType)
	assert.Equal(t, 4, res.Meetings[1].DaysToBook)
	assert.Equal(t, "Discovery call", res.Meetings[1].MeetingType)
	assert.Equal(t, 2, res.Metrics.MeetingsBooked.Len())
}

func TestAggregateEventWithoutEmail(t *testing.T) {
	e := ev("e1", activity.TypeOpened, 1, "x", 1)
	e.LeadEmail = ""
	res := Aggregate(scope, []activity.Event{e}, nil, nil)

	assert.Empty(t, res.Leads)
	assert.Equal(t, 1, res.Metrics.EmailOpens.Len())
	assert.Equal(t, 1, res.Steps[0].Opens)
	require.Len(t, res.ActivityLog, 1)
	assert.Equal(t, "N/A", res.ActivityLog[0].LeadName)
}

func TestAggregateStatusLastWriteWins(t *testing.T) {
	events := []activity.Event{
		ev("e3", activity.TypeNotInterested, 3, "a", 1),
		ev("e1", activity.TypeBounced, 1, "a", 1),
		ev("e2", activity.TypeUnsubscribed, 2, "a", 1),
	}
	res := Aggregate(scope, events, nil, nil)

	require.Len(t, res.Leads, 1)
	lead := res.Leads[0]
	assert.Equal(t, StatusNotInterested, lead.Status)
	assert.True(t, lead.IsBounced)
	assert.True(t, lead.IsUnsubscribed)
	assert.Equal(t, 1, lead.Bounces)
}

func TestAggregateTeamCapturedOnce(t *testing.T) {
	none := ev("e1", activity.TypeSent, 1, "a", 1)
	first := ev("e2", activity.TypeSent, 2, "b", 1)
	first.TeamID, first.SenderName, first.SenderEmail = "tea_1", "Ana", "ana@acme.io"
	second := ev("e3", activity.TypeSent, 3, "c", 1)
	second.TeamID, second.SenderName = "tea_2", "Bo"

	res := Aggregate(scope, []activity.Event{second, none, first}, nil, nil)
	assert.Equal(t, TeamInfo{TeamID: "tea_1", SenderName: "Ana", SenderEmail: "ana@acme.io"}, res.Team)
}

func TestAggregateLeadOrderAndProfileFallback(t *testing.T) {
	leads := activity.LeadsByEmail([]activity.Lead{
		{Email: "a@example.com", FirstName: "Ada", LastName: "Lovelace", Company: "Engines", Phone: "+44", CreatedAt: at(-48)},
		{Email: "b@example.com", CustomVariables: map[string]string{"first_name": "Bob", "companyName": "Builders"}},
	})
	embedded := ev("e3", activity.TypeSent, 3, "c", 1)
	embedded.LeadFirstName, embedded.LeadCompanyName = "Cy", "Cyber"

	res := Aggregate(scope, []activity.Event{
		embedded,
		ev("e2", activity.TypeSent, 2, "b", 1),
		ev("e1", activity.TypeSent, 1, "a", 1),
		ev("e4", activity.TypeSent, 4, "d", 1),
	}, leads, nil)

	require.Len(t, res.Leads, 4)
	assert.Equal(t, "a@example.com", res.Leads[0].LeadEmail)
	assert.Equal(t, "Ada Lovelace", res.Leads[0].LeadName)
	assert.Equal(t, "Engines", res.Leads[0].CompanyName)
	assert.Equal(t, "+44", res.Leads[0].Phone)
	assert.Equal(t, at(-48), res.Leads[0].AddedDate)
	assert.Equal(t, "Bob", res.Leads[1].LeadName)
	assert.Equal(t, "Builders", res.Leads[1].CompanyName)
	assert.Equal(t, "Cy", res.Leads[2].LeadName)
	assert.Equal(t, "Cyber", res.Leads[2].CompanyName)
	assert.Equal(t, "N/A", res.Leads[3].LeadName)
	assert.Equal(t, "N/A", res.Leads[3].CompanyName)
}

func TestAggregateActivityLog(t *testing.T) {
	note := ev("e1", activity.TypeClicked, 1, "a", 1)
	note.Location, note.ConditionLabel, note.ConditionValue, note.Note = "https://acme.io", "opened", "yes", "called"
	cond := ev("e2", activity.TypeClicked, 2, "a", 1)
	cond.Location, cond.ConditionLabel, cond.ConditionValue = "https://acme.io", "opened", "yes"
	url := ev("e3", activity.TypeClicked, 3, "a", 1)
	url.Location = "https://acme.io"
	unknown := ev("e4", activity.EventType("linkedinVisit"), 4, "a", 1)

	res := Aggregate(scope, []activity.Event{note, cond, url, unknown}, nil, nil)

	require.Len(t, res.ActivityLog, 4)
	assert.Equal(t, "Note: called", res.ActivityLog[0].AdditionalData)
	assert.Equal(t, "Condition: opened = yes", res.ActivityLog[1].AdditionalData)
	assert.Equal(t, "URL: https://acme.io", res.ActivityLog[2].AdditionalData)
	assert.Equal(t, activity.EventType("linkedinVisit"), res.ActivityLog[3].ActivityType)
	assert.Equal(t, 4, res.Leads[0].TotalActivities)
}

func TestAggregateStepsSortedAndNonSendSteps(t *testing.T) {
	res := Aggregate(scope, []activity.Event{
		ev("e1", activity.TypeSent, 1, "a", 3),
		ev("e2", activity.TypeOpened, 2, "a", 0),
		ev("e3", activity.TypeSent, 3, "a", 2),
	}, nil, nil)

	require.Len(t, res.Steps, 3)
	assert.Equal(t, []int{0, 2, 3}, []int{res.Steps[0].StepNumber, res.Steps[1].StepNumber, res.Steps[2].StepNumber})
	assert.Equal(t, "0", res.Steps[0].OpenRate)
	assert.Equal(t, "0.00", res.Steps[0].CTR)
	assert.Equal(t, 1, res.Steps[0].Opens)
}

func TestAggregateEmpty(t *testing.T) {
	res := Aggregate(scope, nil, nil, nil)
	assert.Empty(t, res.Steps)
	assert.Empty(t, res.Leads)
	assert.Empty(t, res.ActivityLog)
	assert.Equal(t, 0, res.Metrics.TotalEmailsSent)
}

func TestObserveRejectsOutOfOrder(t *testing.T) {
	acc := NewAccumulator(scope, nil, nil)
	require.NoError(t, acc.Observe(ev("e2", activity.TypeSent, 2, "a", 1)))
	require.NoError(t, acc.Observe(ev("e3", activity.TypeSent, 2, "b", 1)))
	assert.ErrorIs(t, acc.Observe(ev("e1", activity.TypeSent, 1, "c", 1)), ErrOutOfOrder)
	assert.Len(t, acc.Result().ActivityLog, 2)
}

func TestDaysToBook(t *testing.T) {
	assert.Equal(t, 0, DaysToBook(at(0), at(11)))
	assert.Equal(t, 1, DaysToBook(at(0), at(12)))
	assert.Equal(t, 7, DaysToBook(at(0), at(24*7)))
	assert.Equal(t, 0, DaysToBook(time.Time{}, at(48)))
}

// Unique timestamps make every permutation sort to the same sequence.
func TestAggregateOrderIndependence(t *testing.T) {
	types := []activity.EventType{
		activity.TypeSent, activity.TypeOpened, activity.TypeClicked, activity.TypeReplied,
		activity.TypeBounced, activity.TypeFailed, activity.TypeUnsubscribed,
		activity.TypeInterested, activity.TypeNotInterested, activity.TypeMeetingBooked,
	}
	leadIDs := []string{"a", "b", "c", "d"}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("rollups do not depend on input order", prop.ForAll(
		func(codes []int, seed int64) bool {
			events := make([]activity.Event, len(codes))
			for i, c := range codes {
				e := ev("e", types[c%len(types)], float64(i), leadIDs[(c/10)%len(leadIDs)], (c/40)%3)
				e.RelatedSentAt = at(float64(i) - 1)
				events[i] = e
			}
			shuffled := make([]activity.Event, len(events))
			copy(shuffled, events)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			a := Aggregate(scope, events, nil, nil)
			b := Aggregate(scope, shuffled, nil, nil)
			return reflect.DeepEqual(a.Steps, b.Steps) &&
				reflect.DeepEqual(a.Leads, b.Leads) &&
				reflect.DeepEqual(a.Replies, b.Replies) &&
				reflect.DeepEqual(a.Metrics, b.Metrics)
		},
		gen.SliceOf(gen.IntRange(0, 119)),
		gen.Int64(),
	))

	properties.Property("step opens never exceed distinct openers", prop.ForAll(
		func(leads []int) bool {
			events := make([]activity.Event, len(leads))
			distinct := map[int]struct{}{}
			for i, l := range leads {
				events[i] = ev("o", activity.TypeOpened, float64(i), string(rune('a'+l)), 1)
				distinct[l] = struct{}{}
			}
			res := Aggregate(scope, events, nil, nil)
			if len(events) == 0 {
				return len(res.Steps) == 0
			}
			return res.Steps[0].Opens == len(distinct)
		},
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}

func TestAggregateEventWithoutEmailIgnoresProfilesWithoutEmail(t *testing.T) {
	leads := activity.LeadsByEmail([]activity.Lead{{FirstName: "Zed", CompanyName: "Wrong Co"}})
	assert.Empty(t, leads)

	e := activity.Event{ID: "r1", Type: activity.TypeReplied, CreatedAt: at(1), LeadID: "l1"}

	// a raw map keyed by "" must not leak into events without an email either
	res := Aggregate(scope, []activity.Event{e}, map[string]activity.Lead{"": {FirstName: "Zed", CompanyName: "Wrong Co"}}, nil)

	require.Len(t, res.Replies, 1)
	assert.Equal(t, "N/A", res.Replies[0].LeadName)
	assert.Equal(t, "N/A", res.Replies[0].CompanyName)
	require.Len(t, res.ActivityLog, 1)
	assert.Equal(t, "N/A", res.ActivityLog[0].LeadName)
	assert.Equal(t, "N/A", res.ActivityLog[0].CompanyName)
}

func TestAggregateKeepsReplyWhitespace(t *testing.T) {
	e := ev("r1", activity.TypeReplied, 1, "a", 1)
	e.Body = "  Thanks,\n  Ada\n"

	res := Aggregate(scope, []activity.Event{e}, nil, nil)
	require.Len(t, res.Replies, 1)
	assert.Equal(t, "  Thanks,\n  Ada\n", res.Replies[0].ReplyContent)
}

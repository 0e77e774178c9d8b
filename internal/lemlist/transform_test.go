package lemlist

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gosight/campaignsync/internal/activity"
)

func TestTransformActivity(t *testing.T) {
	e := TransformActivity(map[string]interface{}{
		"_id":             "act_1",
		"type":            "emailsReplied",
		"createdAt":       "2024-03-01T10:00:00.000Z",
		"leadId":          "lea_1",
		"leadEmail":       "ada@engines.io",
		"leadFirstName":   "Ada",
		"leadCompanyName": "Engines",
		"sequenceStep":    float64(2),
		"teamId":          "tea_1",
		"sendUserName":    "Ana",
		"sendUserEmail":   "ana@acme.io",
		"bot":             true,
		"isFirst":         true,
		"stopped":         true,
		"relatedSentAt":   "2024-03-01T08:00:00.000Z",
		"metaData":        map[string]interface{}{"body": "hello", "meetingType": "Demo"},
		"note":            "called back",
	})

	assert.Equal(t, "act_1", e.ID)
	assert.Equal(t, activity.TypeReplied, e.Type)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), e.CreatedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), e.RelatedSentAt)
	assert.Equal(t, 2, e.SequenceStep)
	assert.Equal(t, "Ana", e.SenderName)
	assert.Equal(t, "ana@acme.io", e.SenderEmail)
	assert.True(t, e.IsBot)
	assert.True(t, e.IsFirst)
	assert.True(t, e.StoppedSequence)
	assert.Equal(t, "hello", e.MetadataBody)
	assert.Equal(t, "Demo", e.MeetingType)
	assert.Equal(t, "called back", e.Note)
}

func TestTransformActivityDefaults(t *testing.T) {
	e := TransformActivity(map[string]interface{}{
		"type":          "linkedinVisitDone",
		"createdAt":     "not a date",
		"relatedSentAt": float64(1709280000000),
		"sequenceStep":  "3",
	})

	_, err := uuid.Parse(e.ID)
	assert.NoError(t, err)
	assert.Equal(t, activity.EventType("linkedinVisitDone"), e.Type)
	assert.True(t, e.CreatedAt.IsZero())
	assert.Equal(t, time.UnixMilli(1709280000000).UTC(), e.RelatedSentAt)
	assert.Equal(t, 3, e.SequenceStep)
}

func TestParseEventType(t *testing.T) {
	assert.Equal(t, activity.TypeNotInterested, ParseEventType("emailsNotInterested"))
	assert.Equal(t, activity.TypeMeetingBooked, ParseEventType("meetingBooked"))
	assert.Equal(t, activity.TypeUnsubscribed, ParseEventType("emailsUnsubscribed"))
}

func TestTransformLeadAndCampaign(t *testing.T) {
	lead := TransformLead(map[string]interface{}{
		"email":     "bob@builders.io",
		"company":   "Builders",
		"createdAt": "2024-02-01T00:00:00Z",
		"customVariables": map[string]interface{}{
			"first_name": "Bob",
			"seats":      float64(12),
			"empty":      nil,
		},
	})
	assert.Equal(t, "Builders", lead.Company)
	assert.Equal(t, map[string]string{"first_name": "Bob", "seats": "12"}, lead.CustomVariables)
	assert.False(t, lead.CreatedAt.IsZero())

	campaign := TransformCampaign(map[string]interface{}{
		"_id":      "cam_1",
		"name":     "Spring",
		"status":   "Ended",
		"archived": false,
	})
	assert.Equal(t, "cam_1", campaign.ID)
	assert.True(t, campaign.Ended())
}

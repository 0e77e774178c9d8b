package lemlist

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gosight/campaignsync/internal/activity"
)

// vendorTypes maps vendor activity type names to event types
var vendorTypes = map[string]activity.EventType{
	"emailsSent":          activity.TypeSent,
	"emailsOpened":        activity.TypeOpened,
	"emailsClicked":       activity.TypeClicked,
	"emailsReplied":       activity.TypeReplied,
	"emailsBounced":       activity.TypeBounced,
	"emailsFailed":        activity.TypeFailed,
	"emailsUnsubscribed":  activity.TypeUnsubscribed,
	"emailsInterested":    activity.TypeInterested,
	"emailsNotInterested": activity.TypeNotInterested,
	"meetingBooked":       activity.TypeMeetingBooked,
}

// ParseEventType maps a vendor type name. Unknown names are kept verbatim.
func ParseEventType(name string) activity.EventType {
	if t, ok := vendorTypes[name]; ok {
		return t
	}
	return activity.EventType(name)
}

// TransformActivity converts a raw vendor activity into an event
func TransformActivity(raw map[string]interface{}) activity.Event {
	meta := getMap(raw, "metaData")

	event := activity.Event{
		ID:              getString(raw, "_id"),
		Type:            ParseEventType(getString(raw, "type")),
		CreatedAt:       getTime(raw, "createdAt"),
		LeadID:          getString(raw, "leadId"),
		LeadEmail:       getString(raw, "leadEmail"),
		LeadFirstName:   getString(raw, "leadFirstName"),
		LeadLastName:    getString(raw, "leadLastName"),
		LeadCompanyName: getString(raw, "leadCompanyName"),
		LeadPhone:       getString(raw, "leadPhone"),
		SequenceStep:    getInt(raw, "sequenceStep"),
		TeamID:          getString(raw, "teamId"),
		SenderName:      getString(raw, "sendUserName"),
		SenderEmail:     getString(raw, "sendUserEmail"),
		IsBot:           getBool(raw, "bot"),
		IsFirst:         getBool(raw, "isFirst"),
		StoppedSequence: getBool(raw, "stopped"),
		ErrorMessage:    getString(raw, "errorMessage"),
		RelatedSentAt:   getTime(raw, "relatedSentAt"),
		Body:            getString(raw, "body"),
		MetadataBody:    getString(meta, "body"),
		Location:        getString(raw, "location"),
		ConditionLabel:  getString(raw, "conditionLabel"),
		ConditionValue:  getString(raw, "conditionValue"),
		Note:            getString(raw, "note"),
		MeetingDate:     getTime(raw, "meetingDate"),
		MeetingType:     getString(raw, "meetingType"),
	}

	// Meeting fields are sometimes only present in metadata
	if event.MeetingDate.IsZero() {
		event.MeetingDate = getTime(meta, "meetingDate")
	}
	if event.MeetingType == "" {
		event.MeetingType = getString(meta, "meetingType")
	}

	// Activity log rows need an id even when the vendor omits one
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	return event
}

// TransformCampaign converts a raw vendor campaign
func TransformCampaign(raw map[string]interface{}) activity.Campaign {
	return activity.Campaign{
		ID:        getString(raw, "_id"),
		Name:      getString(raw, "name"),
		Status:    getString(raw, "status"),
		Archived:  getBool(raw, "archived"),
		CreatedAt: getTime(raw, "createdAt"),
		TeamID:    getString(raw, "teamId"),
	}
}

// TransformLead converts a raw vendor lead
func TransformLead(raw map[string]interface{}) activity.Lead {
	lead := activity.Lead{
		Email:       getString(raw, "email"),
		FirstName:   getString(raw, "firstName"),
		LastName:    getString(raw, "lastName"),
		CompanyName: getString(raw, "companyName"),
		Company:     getString(raw, "company"),
		Phone:       getString(raw, "phone"),
		CreatedAt:   getTime(raw, "createdAt"),
	}

	if vars := getMap(raw, "customVariables"); len(vars) > 0 {
		lead.CustomVariables = make(map[string]string, len(vars))
		for k, v := range vars {
			switch val := v.(type) {
			case nil:
			case string:
				lead.CustomVariables[k] = val
			default:
				lead.CustomVariables[k] = fmt.Sprint(val)
			}
		}
	}

	return lead
}

// TransformDetail extracts reply content from a raw activity detail
func TransformDetail(raw map[string]interface{}) *activity.Detail {
	return &activity.Detail{
		Body:         getString(raw, "body"),
		Text:         getString(raw, "text"),
		MetadataBody: getString(getMap(raw, "metaData"), "body"),
		Raw:          raw,
	}
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

// getTime accepts RFC 3339 strings or epoch milliseconds. Unparseable values are zero.
func getTime(m map[string]interface{}, key string) time.Time {
	switch v := m[key].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	case float64:
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Time{}
}

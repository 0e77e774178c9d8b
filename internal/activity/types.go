package activity

import (
	"strings"
	"time"
)

// EventType identifies what happened to a lead at a sequence step
type EventType string

const (
	TypeSent          EventType = "sent"
	TypeOpened        EventType = "opened"
	TypeClicked       EventType = "clicked"
	TypeReplied       EventType = "replied"
	TypeBounced       EventType = "bounced"
	TypeFailed        EventType = "failed"
	TypeUnsubscribed  EventType = "unsubscribed"
	TypeInterested    EventType = "interested"
	TypeNotInterested EventType = "notInterested"
	TypeMeetingBooked EventType = "meetingBooked"
)

// Event is one timestamped activity record for a lead within a campaign
type Event struct {
	ID              string
	Type            EventType
	CreatedAt       time.Time
	LeadID          string
	LeadEmail       string
	LeadFirstName   string
	LeadLastName    string
	LeadCompanyName string
	LeadPhone       string
	SequenceStep    int
	TeamID          string
	SenderName      string
	SenderEmail     string
	IsBot           bool
	IsFirst         bool
	StoppedSequence bool
	ErrorMessage    string

	// RelatedSentAt is the send this event responds to. Zero when unknown.
	RelatedSentAt time.Time

	Body         string
	MetadataBody string

	Location       string
	ConditionLabel string
	ConditionValue string
	Note           string

	MeetingDate time.Time
	MeetingType string
}

// Lead is a prospect profile keyed by email
type Lead struct {
	Email           string
	FirstName       string
	LastName        string
	CompanyName     string
	Company         string
	Phone           string
	CreatedAt       time.Time
	CustomVariables map[string]string
}

// Campaign describes one outreach campaign of an account
type Campaign struct {
	ID        string
	Name      string
	Status    string
	Archived  bool
	CreatedAt time.Time
	TeamID    string
}

// Detail is the full payload of a single activity fetched on demand
type Detail struct {
	Body         string
	Text         string
	MetadataBody string
	Raw          map[string]interface{}
}

// Account is one connected vendor account
type Account struct {
	ID     string
	APIKey string
}

// LeadsByEmail indexes lead profiles by email. Later duplicates win and
// profiles without an email are left out.
func LeadsByEmail(leads []Lead) map[string]Lead {
	out := make(map[string]Lead, len(leads))
	for _, l := range leads {
		if l.Email == "" {
			continue
		}
		out[l.Email] = l
	}
	return out
}

// Ended reports whether a campaign is archived or in a terminal status
func (c Campaign) Ended() bool {
	if c.Archived {
		return true
	}
	switch strings.ToLower(c.Status) {
	case "ended", "archived", "completed":
		return true
	}
	return false
}

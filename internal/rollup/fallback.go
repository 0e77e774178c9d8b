package rollup

import (
	"strings"

	"github.com/gosight/campaignsync/internal/activity"
)

const notAvailable = "N/A"

// Extractor pulls one candidate value out of a source, or "" when it has none
type Extractor[T any] func(T) string

// FirstMatch tries each extractor in order and returns the first value that
// is not blank, unmodified, or fallback when every extractor comes up blank.
func FirstMatch[T any](src T, fallback string, chain ...Extractor[T]) string {
	for _, extract := range chain {
		if v := extract(src); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return fallback
}

// leadSource pairs an event with the profile of the lead it belongs to.
// The profile is the zero value when the lead is unknown.
type leadSource struct {
	event activity.Event
	lead  activity.Lead
}

func customVar(keys ...string) Extractor[leadSource] {
	return func(s leadSource) string {
		for _, k := range keys {
			if v := s.lead.CustomVariables[k]; v != "" {
				return v
			}
		}
		return ""
	}
}

var firstNameChain = []Extractor[leadSource]{
	func(s leadSource) string { return s.event.LeadFirstName },
	func(s leadSource) string { return s.lead.FirstName },
	customVar("firstName", "first_name"),
}

var lastNameChain = []Extractor[leadSource]{
	func(s leadSource) string { return s.event.LeadLastName },
	func(s leadSource) string { return s.lead.LastName },
	customVar("lastName", "last_name"),
}

var companyChain = []Extractor[leadSource]{
	func(s leadSource) string { return s.event.LeadCompanyName },
	func(s leadSource) string { return s.lead.CompanyName },
	func(s leadSource) string { return s.lead.Company },
	customVar("company", "companyName"),
}

var phoneChain = []Extractor[leadSource]{
	func(s leadSource) string { return s.event.LeadPhone },
	func(s leadSource) string { return s.lead.Phone },
}

func leadName(src leadSource) string {
	first := FirstMatch(src, "", firstNameChain...)
	last := FirstMatch(src, "", lastNameChain...)
	if name := strings.TrimSpace(first + " " + last); name != "" {
		return name
	}
	return notAvailable
}

func companyName(src leadSource) string {
	return FirstMatch(src, notAvailable, companyChain...)
}

func phone(src leadSource) string {
	return FirstMatch(src, "", phoneChain...)
}

// replySource pairs a replied event with the content resolved for it out of band
type replySource struct {
	event    activity.Event
	resolved map[string]string
}

var replyContentChain = []Extractor[replySource]{
	func(s replySource) string { return s.resolved[s.event.ID] },
	func(s replySource) string { return s.event.Body },
	func(s replySource) string { return s.event.MetadataBody },
}

func replyContent(event activity.Event, resolved map[string]string) string {
	return FirstMatch(replySource{event: event, resolved: resolved}, "", replyContentChain...)
}

// additionalData summarizes the free-form annotations of an event. A note
// takes precedence over a condition, which takes precedence over a location.
func additionalData(e activity.Event) string {
	switch {
	case e.Note != "":
		return "Note: " + e.Note
	case e.ConditionLabel != "":
		return "Condition: " + e.ConditionLabel + " = " + e.ConditionValue
	case e.Location != "":
		return "URL: " + e.Location
	}
	return ""
}

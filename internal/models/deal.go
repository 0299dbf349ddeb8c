package models

import (
	"strings"
	"time"
)

// Deal is a read-only projection of a CRM deal for the duration of one run.
type Deal struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Stage           string     `json:"stage"`
	Amount          string     `json:"amount,omitempty"`
	ContactID       string     `json:"contactId,omitempty"`
	CompanyID       string     `json:"companyId,omitempty"`
	LastEmailSentAt *time.Time `json:"lastEmailSentAt,omitempty"`
}

// DaysSinceLastEmail returns whole days elapsed since the last sent email.
// ok is false when the deal has no recorded email.
func (d Deal) DaysSinceLastEmail(now time.Time) (days int, ok bool) {
	if d.LastEmailSentAt == nil {
		return 0, false
	}
	elapsed := now.Sub(*d.LastEmailSentAt)
	if elapsed < 0 {
		return 0, true
	}
	return int(elapsed / (24 * time.Hour)), true
}

type Contact struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	JobTitle  string `json:"jobTitle,omitempty"`
}

func (c *Contact) Name() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Domain    string `json:"domain,omitempty"`
	Industry  string `json:"industry,omitempty"`
	Employees string `json:"employees,omitempty"`
}

func (c *Company) DisplayName() string {
	if c == nil {
		return ""
	}
	return c.Name
}

type ActivityKind string

const (
	ActivityNote  ActivityKind = "note"
	ActivityEmail ActivityKind = "email"
)

// Activity is a note or email logged against a deal or its company.
type Activity struct {
	ID        string       `json:"id"`
	Kind      ActivityKind `json:"kind"`
	Subject   string       `json:"subject,omitempty"`
	Body      string       `json:"body"`
	Direction string       `json:"direction,omitempty"`
	Status    string       `json:"status,omitempty"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
}

// IsSentEmail mirrors the CRM convention: an outbound email is SENT, or logged with direction EMAIL.
func (a Activity) IsSentEmail() bool {
	return a.Kind == ActivityEmail && (a.Status == "SENT" || a.Direction == "EMAIL")
}

var stageLabels = map[string]string{
	"appointmentscheduled":  "Demo",
	"qualifiedtobuy":        "Potential Fit",
	"presentationscheduled": "Presentation",
	"decisionmakerboughtin": "Decision Maker Bought-In",
}

// StageLabel maps a pipeline stage id to its human label, returning the id when unknown.
func StageLabel(stage string) string {
	if label, ok := stageLabels[stage]; ok {
		return label
	}
	return stage
}

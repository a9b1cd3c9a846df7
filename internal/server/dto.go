package server

import (
	"reportline/internal/cadence"
	"reportline/internal/domain"
	"reportline/internal/events"
)

// Request payloads

type CreateOrgRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email" format:"email"`
	IsWrangler bool   `json:"is_wrangler,omitempty"`
}

type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type UpdateOrgRequest struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty" format:"email"`
	IsWrangler *bool  `json:"is_wrangler,omitempty"`
}

type UpdateProjectRequest struct {
	Name        string  `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CreateExpectationRequest struct {
	Name    string              `json:"name"`
	Columns []ExpectationColumn `json:"columns,omitempty"`
}

type ExpectationColumn struct {
	Name      string `json:"name"`
	NullsOK   bool   `json:"nulls_ok,omitempty"`
	MustBeInt bool   `json:"must_be_int,omitempty"`
}

type ScheduleRequest struct {
	Interval   string `json:"reporting_interval" enum:"none,daily,weekly,monthly"`
	DayOfWeek  *int   `json:"reporting_day_of_week,omitempty" minimum:"0" maximum:"6"`
	DayOfMonth *int   `json:"reporting_day_of_month,omitempty" minimum:"1" maximum:"31"`
}

type RecordDataRequest struct {
	Values map[string]string `json:"values"`
}

type DevLoginRequest struct {
	Email string `json:"email" format:"email"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type OrgResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsWrangler bool   `json:"is_wrangler"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type ProjectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type ExpectationResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Columns   []ExpectationColumn `json:"columns"`
	CreatedAt string              `json:"created_at" format:"date-time"`
}

type SubmissionRecordResponse struct {
	DueDate       string `json:"due_date"`
	SubmittedDate string `json:"submitted_date"`
	WasOnTime     bool   `json:"was_on_time"`
}

type ComplianceResponse struct {
	Status    string `json:"status" enum:"no-schedule,overdue,due-today,due-soon,on-track"`
	DaysUntil *int   `json:"days_until,omitempty"`
	Message   string `json:"message"`
}

type LinkResponse struct {
	OrgID      string                     `json:"org_id"`
	ProjectID  string                     `json:"project_id"`
	Interval   string                     `json:"reporting_interval" enum:"none,daily,weekly,monthly"`
	DayOfWeek  *int                       `json:"reporting_day_of_week,omitempty"`
	DayOfMonth *int                       `json:"reporting_day_of_month,omitempty"`
	NextDue    *string                    `json:"next_due_date,omitempty"`
	Streak     int                        `json:"streak"`
	History    []SubmissionRecordResponse `json:"history"`
	Compliance *ComplianceResponse        `json:"compliance,omitempty"`
	CreatedAt  string                     `json:"created_at" format:"date-time"`
	UpdatedAt  string                     `json:"updated_at" format:"date-time"`
}

type SubmissionResponse struct {
	Recorded bool         `json:"recorded"`
	Link     LinkResponse `json:"link"`
}

type CollectedEntryResponse struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	ExpectationID string `json:"expectation_id"`
	Values        string `json:"values"`
	SubmittedBy   string `json:"submitted_by"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

type PresetResponse struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Interval    string `json:"reporting_interval" enum:"none,daily,weekly,monthly"`
	DayOfWeek   *int   `json:"reporting_day_of_week,omitempty"`
	DayOfMonth  *int   `json:"reporting_day_of_month,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

type WhoAmIResponse struct {
	OrgID      string `json:"org_id"`
	Email      string `json:"email,omitempty"`
	IsWrangler bool   `json:"is_wrangler"`
	Source     string `json:"source"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Key       string `json:"key,omitempty"`
}

// Mapping helpers

func orgResponse(o domain.Organization) OrgResponse {
	return OrgResponse{ID: o.ID, Name: o.Name, Email: o.Email, IsWrangler: o.IsWrangler, CreatedAt: o.CreatedAt}
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{ID: p.ID, Name: p.Name, Description: p.Description, CreatedAt: p.CreatedAt}
}

func expectationResponse(e domain.Expectation) ExpectationResponse {
	cols := make([]ExpectationColumn, 0, len(e.Columns))
	for _, c := range e.Columns {
		cols = append(cols, ExpectationColumn{Name: c.Name, NullsOK: c.NullsOK, MustBeInt: c.MustBeInt})
	}
	return ExpectationResponse{ID: e.ID, Name: e.Name, Columns: cols, CreatedAt: e.CreatedAt}
}

func complianceResponse(c cadence.Compliance) *ComplianceResponse {
	return &ComplianceResponse{Status: string(c.Status), DaysUntil: c.DaysUntil, Message: c.Message}
}

func linkResponse(l domain.ReportingLink, c *cadence.Compliance) LinkResponse {
	history := make([]SubmissionRecordResponse, 0, len(l.History))
	for _, rec := range l.History {
		history = append(history, SubmissionRecordResponse{
			DueDate:       rec.DueDate,
			SubmittedDate: rec.SubmittedDate,
			WasOnTime:     rec.WasOnTime,
		})
	}
	resp := LinkResponse{
		OrgID:      l.OrgID,
		ProjectID:  l.ProjectID,
		Interval:   l.Interval,
		DayOfWeek:  l.DayOfWeek,
		DayOfMonth: l.DayOfMonth,
		NextDue:    l.NextDue,
		Streak:     l.Streak,
		History:    history,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
	if c != nil {
		resp.Compliance = complianceResponse(*c)
	}
	return resp
}

func collectedResponse(e domain.CollectedEntry) CollectedEntryResponse {
	return CollectedEntryResponse{
		ID:            e.ID,
		ProjectID:     e.ProjectID,
		ExpectationID: e.ExpectationID,
		Values:        e.ValuesJSON,
		SubmittedBy:   e.SubmittedBy,
		CreatedAt:     e.CreatedAt,
	}
}

func eventResponse(e events.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

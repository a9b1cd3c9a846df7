package domain

// HistoryLimit bounds the submission history kept on a reporting link.
// Older entries are dropped when a new submission is recorded.
const HistoryLimit = 12

type Organization struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsWrangler bool   `json:"is_wrangler"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Expectation describes the shape of a data set a project collects:
// a named list of columns with per-column validation rules.
type Expectation struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Columns   []ExpectationColumn `json:"columns"`
	CreatedAt string              `json:"created_at" format:"date-time"`
}

type ExpectationColumn struct {
	Name      string `json:"name"`
	NullsOK   bool   `json:"nulls_ok"`
	MustBeInt bool   `json:"must_be_int"`
}

// ReportingLink ties an organization to a project it reports on. At most
// one link exists per (org, project) pair. Interval "none" means no
// schedule is active; NextDue is nil exactly in that case.
type ReportingLink struct {
	OrgID      string             `json:"org_id"`
	ProjectID  string             `json:"project_id"`
	Interval   string             `json:"reporting_interval" enum:"none,daily,weekly,monthly"`
	DayOfWeek  *int               `json:"reporting_day_of_week,omitempty"`
	DayOfMonth *int               `json:"reporting_day_of_month,omitempty"`
	NextDue    *string            `json:"next_due_date,omitempty" format:"date-time"`
	Streak     int                `json:"streak"`
	History    []SubmissionRecord `json:"history"`
	CreatedAt  string             `json:"created_at" format:"date-time"`
	UpdatedAt  string             `json:"updated_at" format:"date-time"`
}

// SubmissionRecord captures one report submission against the due date
// that was in effect when it landed.
type SubmissionRecord struct {
	DueDate       string `json:"due_date" format:"date-time"`
	SubmittedDate string `json:"submitted_date" format:"date-time"`
	WasOnTime     bool   `json:"was_on_time"`
}

// PushHistory prepends rec and truncates to HistoryLimit entries, newest
// first. All writers go through here so the bound holds everywhere a
// link is persisted.
func (l *ReportingLink) PushHistory(rec SubmissionRecord) {
	l.History = append([]SubmissionRecord{rec}, l.History...)
	if len(l.History) > HistoryLimit {
		l.History = l.History[:HistoryLimit]
	}
}

// HasSchedule reports whether the link carries an active cadence.
func (l ReportingLink) HasSchedule() bool {
	return l.Interval != "" && l.Interval != "none"
}

// CollectedEntry is one validated data submission against an expectation.
type CollectedEntry struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	ExpectationID string `json:"expectation_id"`
	ValuesJSON    string `json:"values_json"`
	SubmittedBy   string `json:"submitted_by"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

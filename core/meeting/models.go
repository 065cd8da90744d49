package meeting

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/somalabs/darasa/core"
)

// Status is a meeting's lifecycle state. scheduled/live/completed are derived
// from the clock against the scheduled window; cancelled is an explicit
// terminal override, never time-derived.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsTerminal() bool { return s == StatusCompleted || s == StatusCancelled }

// Duration and capacity bounds.
const (
	MinDurationMins = 15
	MaxDurationMins = 480

	MinAttendees        = 1
	MaxAttendeesCeiling = 500
	DefaultMaxAttendees = 100
)

// Attendee is a roster entry. Membership is keyed by AccountID; an account
// appears at most once.
type Attendee struct {
	AccountID string     `json:"account_id"`
	HasJoined bool       `json:"has_joined"`
	JoinedAt  *time.Time `json:"joined_at"`
}

type Meeting struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	JoinLink      string     `json:"join_link"`
	ScheduledAt   time.Time  `json:"scheduled_at"` // UTC
	DurationMins  int        `json:"duration_mins"`
	InstructorID  string     `json:"instructor_id"`
	StageID       string     `json:"stage_id"`
	SubjectID     string     `json:"subject_id"`
	MaxAttendees  int        `json:"max_attendees"`
	IsRecorded    bool       `json:"is_recorded"`
	RecordingLink string     `json:"recording_link,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	CreatedBy     string     `json:"created_by"`
	Status        Status     `json:"status"`
	Attendees     []Attendee `json:"attendees"`
	CreatedAt     time.Time  `json:"created_at"` // UTC
	UpdatedAt     time.Time  `json:"updated_at"` // UTC
}

// EndsAt is the end of the scheduled window.
func (m *Meeting) EndsAt() time.Time {
	return m.ScheduledAt.Add(time.Duration(m.DurationMins) * time.Minute)
}

// IndexOfAttendee is the single normalized membership lookup used by join,
// add, remove and authorization alike. Returns -1 when absent.
func (m *Meeting) IndexOfAttendee(accountID string) int {
	accountID = core.CleanString(accountID)
	if accountID == "" {
		return -1
	}
	for i, att := range m.Attendees {
		if att.AccountID == accountID {
			return i
		}
	}
	return -1
}

func (m *Meeting) IsMember(accountID string) bool { return m.IndexOfAttendee(accountID) >= 0 }

func (m *Meeting) JoinedCount() int {
	var n int
	for _, att := range m.Attendees {
		if att.HasJoined {
			n++
		}
	}
	return n
}

// NewMeeting contains the information needed to schedule a Meeting.
type NewMeeting struct {
	Title        string    `json:"title" validate:"required"`
	Description  string    `json:"description"`
	JoinLink     string    `json:"join_link" validate:"required,joinlink"`
	ScheduledAt  time.Time `json:"scheduled_at" validate:"required"`
	DurationMins int       `json:"duration_mins" validate:"required,min=15,max=480"`
	InstructorID string    `json:"instructor_id" validate:"required"`
	StageID      string    `json:"stage_id" validate:"required"`
	SubjectID    string    `json:"subject_id" validate:"required"`
	MaxAttendees int       `json:"max_attendees" validate:"omitempty,min=1,max=500"`
	IsRecorded   bool      `json:"is_recorded"`
	Tags         []string  `json:"tags"`
	Attendees    []string  `json:"attendees"` // account IDs; unknown ones are reported, not fatal
}

func (nm *NewMeeting) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	nm.Description = core.CleanString(nm.Description)
	nm.JoinLink = core.CleanString(nm.JoinLink)
	if nm.MaxAttendees == 0 {
		nm.MaxAttendees = DefaultMaxAttendees
	}
	return validate.Struct(nm)
}

// UpdateMeeting defines what may be modified on an existing Meeting.
// Nil/empty fields are left untouched. Attendees, when present, is a bare
// list of account IDs merged against the existing roster.
type UpdateMeeting struct {
	Title         string     `json:"title"`
	Description   *string    `json:"description"`
	JoinLink      string     `json:"join_link" validate:"omitempty,joinlink"`
	ScheduledAt   *time.Time `json:"scheduled_at"`
	DurationMins  *int       `json:"duration_mins" validate:"omitempty,min=15,max=480"`
	MaxAttendees  *int       `json:"max_attendees" validate:"omitempty,min=1,max=500"`
	IsRecorded    *bool      `json:"is_recorded"`
	RecordingLink *string    `json:"recording_link"`
	Tags          []string   `json:"tags"`
	Attendees     []string   `json:"attendees"`
	Status        Status     `json:"status" validate:"omitempty,eq=cancelled"`
}

func (um *UpdateMeeting) Validate(validate *validator.Validate) error {
	um.Title = core.CleanString(um.Title)
	um.JoinLink = core.CleanString(um.JoinLink)
	return validate.Struct(um)
}

// QueryFilter applies AND on its non-empty fields.
type QueryFilter struct {
	Status       Status    `query:"status"`
	StageID      string    `query:"stage"`
	SubjectID    string    `query:"subject"`
	InstructorID string    `query:"instructor"`
	StartDate    time.Time `query:"start_date"`
	EndDate      time.Time `query:"end_date"`

	// MemberID restricts to meetings whose roster contains the account or
	// whose instructor is the account ("my meetings").
	MemberID string `query:"-"`
}

// AttendeeReport surfaces the outcome of a partial-success roster addition:
// the don't-hard-fail-on-bad-input policy made explicit.
type AttendeeReport struct {
	Added    []string           `json:"added"`
	Rejected []RejectedAttendee `json:"rejected"`
}

type RejectedAttendee struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

// Stats are the admin aggregate counters.
type Stats struct {
	Total          int            `json:"total"`
	ByStatus       map[Status]int `json:"by_status"`
	TotalAttendees int            `json:"total_attendees"`
	JoinedCount    int            `json:"joined_count"`
	AttendanceRate float64        `json:"attendance_rate"`
}

var (
	joinLinkTag  = "joinlink"
	joinLinkText = "must be a valid https meeting link"
)

// InitValidators registers the meeting-specific validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(joinLinkTag, joinLinkValidation)
	core.RegisterCustomTranslation(validate, translator, joinLinkTag, joinLinkText)
}

func joinLinkValidation(fl validator.FieldLevel) bool {
	return joinLinkRegex.MatchString(fl.Field().String())
}

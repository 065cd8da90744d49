package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core"
	"github.com/somalabs/darasa/core/meeting"
)

type MeetingRepository struct {
	db *sqlx.DB
}

var _ meeting.Repository = (*MeetingRepository)(nil) // interface compliance check

func NewMeetingRepository(db *sqlx.DB) *MeetingRepository {
	return &MeetingRepository{db: db}
}

type meetingRow struct {
	ID            string         `db:"id"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	JoinLink      string         `db:"join_link"`
	ScheduledAt   sql.NullTime   `db:"scheduled_at"`
	DurationMins  int            `db:"duration_mins"`
	InstructorID  string         `db:"instructor_id"`
	StageID       string         `db:"stage_id"`
	SubjectID     string         `db:"subject_id"`
	MaxAttendees  int            `db:"max_attendees"`
	IsRecorded    bool           `db:"is_recorded"`
	RecordingLink string         `db:"recording_link"`
	Tags          pq.StringArray `db:"tags"`
	CreatedBy     sql.NullString `db:"created_by"`
	Status        string         `db:"status"`
	Attendees     []byte         `db:"attendees"`
	CreatedAt     sql.NullTime   `db:"created_at"`
	UpdatedAt     sql.NullTime   `db:"updated_at"`
}

func (r meetingRow) toMeeting() (meeting.Meeting, error) {
	var attendees []meeting.Attendee
	if len(r.Attendees) > 0 {
		if err := json.Unmarshal(r.Attendees, &attendees); err != nil {
			return meeting.Meeting{}, errors.Wrap(err, "decoding roster")
		}
	}
	return meeting.Meeting{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		JoinLink:      r.JoinLink,
		ScheduledAt:   r.ScheduledAt.Time,
		DurationMins:  r.DurationMins,
		InstructorID:  r.InstructorID,
		StageID:       r.StageID,
		SubjectID:     r.SubjectID,
		MaxAttendees:  r.MaxAttendees,
		IsRecorded:    r.IsRecorded,
		RecordingLink: r.RecordingLink,
		Tags:          r.Tags,
		CreatedBy:     r.CreatedBy.String,
		Status:        meeting.Status(r.Status),
		Attendees:     attendees,
		CreatedAt:     r.CreatedAt.Time,
		UpdatedAt:     r.UpdatedAt.Time,
	}, nil
}

func encodeRoster(attendees []meeting.Attendee) ([]byte, error) {
	if attendees == nil {
		attendees = []meeting.Attendee{}
	}
	data, err := json.Marshal(attendees)
	return data, errors.Wrap(err, "encoding roster")
}

const meetingCols = `id, title, description, join_link, scheduled_at, duration_mins, instructor_id,
	stage_id, subject_id, max_attendees, is_recorded, recording_link, tags, created_by, status,
	attendees, created_at, updated_at`

func (repo *MeetingRepository) CreateMeeting(ctx context.Context, mtg meeting.Meeting) (meeting.Meeting, error) {
	roster, err := encodeRoster(mtg.Attendees)
	if err != nil {
		return meeting.Meeting{}, err
	}
	_, err = repo.db.ExecContext(ctx,
		`INSERT INTO meeting (`+meetingCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		mtg.ID, mtg.Title, mtg.Description, mtg.JoinLink, mtg.ScheduledAt.UTC(), mtg.DurationMins,
		mtg.InstructorID, mtg.StageID, mtg.SubjectID, mtg.MaxAttendees, mtg.IsRecorded,
		mtg.RecordingLink, pq.StringArray(mtg.Tags), nullStr(mtg.CreatedBy), string(mtg.Status),
		roster, nullTime(mtg.CreatedAt), nullTime(mtg.UpdatedAt))
	if err != nil {
		return meeting.Meeting{}, errors.Wrap(err, "inserting meeting")
	}
	return mtg, nil
}

func (repo *MeetingRepository) GetMeeting(ctx context.Context, id string) (meeting.Meeting, error) {
	if _, err := uuid.Parse(id); err != nil {
		return meeting.Meeting{}, meeting.ErrNotFound
	}
	var row meetingRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+meetingCols+` FROM meeting WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return meeting.Meeting{}, meeting.ErrNotFound
		}
		return meeting.Meeting{}, errors.Wrap(err, "finding meeting")
	}
	return row.toMeeting()
}

// orderableCols whitelists the sortable columns.
var orderableCols = map[string]bool{
	"scheduled_at": true,
	"created_at":   true,
	"updated_at":   true,
}

func buildWhere(filter *meeting.QueryFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conds = append(conds, "status = "+arg(string(filter.Status)))
	}
	if filter.StageID != "" {
		conds = append(conds, "stage_id = "+arg(filter.StageID))
	}
	if filter.SubjectID != "" {
		conds = append(conds, "subject_id = "+arg(filter.SubjectID))
	}
	if filter.InstructorID != "" {
		conds = append(conds, "instructor_id = "+arg(filter.InstructorID))
	}
	if !filter.StartDate.IsZero() {
		conds = append(conds, "scheduled_at >= "+arg(filter.StartDate.UTC()))
	}
	if !filter.EndDate.IsZero() {
		conds = append(conds, "scheduled_at <= "+arg(filter.EndDate.UTC()))
	}
	if filter.MemberID != "" {
		member, _ := json.Marshal([]map[string]string{{"account_id": filter.MemberID}})
		conds = append(conds,
			"(instructor_id = "+arg(filter.MemberID)+" OR attendees @> "+arg(string(member))+"::jsonb)")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (repo *MeetingRepository) QueryMeetings(
	ctx context.Context,
	filter *meeting.QueryFilter,
	ordering []core.DBOrdering,
	page core.Pagination,
) ([]meeting.Meeting, int, error) {
	where, args := buildWhere(filter)

	var total int
	if err := repo.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM meeting`+where, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting meetings")
	}

	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if orderableCols[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, "created_at DESC")
	}

	query := `SELECT ` + meetingCols + ` FROM meeting` + where +
		` ORDER BY ` + strings.Join(orderList, ", ")
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset())
	}

	var rows []meetingRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying meetings")
	}
	meetings := make([]meeting.Meeting, 0, len(rows))
	for _, row := range rows {
		mtg, err := row.toMeeting()
		if err != nil {
			return nil, 0, err
		}
		meetings = append(meetings, mtg)
	}
	return meetings, total, nil
}

func (repo *MeetingRepository) QueryAllMeetings(ctx context.Context) ([]meeting.Meeting, error) {
	meetings, _, err := repo.QueryMeetings(ctx, nil, nil, core.Pagination{})
	return meetings, err
}

func (repo *MeetingRepository) UpdateMeeting(ctx context.Context, mtg meeting.Meeting) (meeting.Meeting, error) {
	roster, err := encodeRoster(mtg.Attendees)
	if err != nil {
		return meeting.Meeting{}, err
	}
	res, err := repo.db.ExecContext(ctx,
		`UPDATE meeting
		 SET title = $2, description = $3, join_link = $4, scheduled_at = $5, duration_mins = $6,
		     instructor_id = $7, stage_id = $8, subject_id = $9, max_attendees = $10,
		     is_recorded = $11, recording_link = $12, tags = $13, status = $14, attendees = $15,
		     updated_at = $16
		 WHERE id = $1`,
		mtg.ID, mtg.Title, mtg.Description, mtg.JoinLink, mtg.ScheduledAt.UTC(), mtg.DurationMins,
		mtg.InstructorID, mtg.StageID, mtg.SubjectID, mtg.MaxAttendees, mtg.IsRecorded,
		mtg.RecordingLink, pq.StringArray(mtg.Tags), string(mtg.Status), roster,
		nullTime(mtg.UpdatedAt))
	if err != nil {
		return meeting.Meeting{}, errors.Wrap(err, "updating meeting")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return meeting.Meeting{}, meeting.ErrNotFound
	}
	return mtg, nil
}

func (repo *MeetingRepository) DeleteMeeting(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return meeting.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM meeting WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting meeting")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return meeting.ErrNotFound
	}
	return nil
}

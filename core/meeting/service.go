package meeting

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core"
	"github.com/somalabs/darasa/core/account"
	"github.com/somalabs/darasa/core/catalog"
)

var (
	// errors
	ErrNotFound           = errors.New("meeting not found")
	ErrInstructorNotFound = errors.New("instructor not found")
	ErrAttendeeNotFound   = errors.New("attendee not found")
	ErrCompleted          = errors.New("meeting has already been completed")
	ErrNotLive            = errors.New("meeting is not live")
	ErrNotMember          = errors.New("account is not on the meeting roster")
	ErrRosterFull         = errors.New("meeting attendee capacity exceeded")
	ErrForbidden          = errors.New("permission denied")
	ErrScheduledInPast    = errors.New("scheduled date must be in the future")
	ErrLiveReschedule     = errors.New("cannot reschedule a live meeting")
	ErrNotInstructor      = errors.New("account does not have an instructor role")
)

// Rejection reasons reported by AddAttendees and Create.
const (
	RejectEmptyID   = "empty id"
	RejectUnknown   = "unknown account"
	RejectDuplicate = "already on roster"
)

const upcomingLimit = 10

type (
	Repository interface {
		CreateMeeting(ctx context.Context, mtg Meeting) (Meeting, error)
		GetMeeting(ctx context.Context, id string) (Meeting, error)
		// QueryMeetings applies AND on available QueryFilter fields and
		// returns the page plus the unpaginated total.
		QueryMeetings(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Meeting, int, error)
		QueryAllMeetings(ctx context.Context) ([]Meeting, error)
		// UpdateMeeting persists the full document, roster included.
		// The store serializes concurrent writes to the same meeting.
		UpdateMeeting(ctx context.Context, mtg Meeting) (Meeting, error)
		DeleteMeeting(ctx context.Context, id string) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, nm NewMeeting, creatorID string) (Meeting, AttendeeReport, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Meeting, core.PageMeta, error)
		MyMeetings(ctx context.Context, acct account.Account, status Status, page core.Pagination) ([]Meeting, core.PageMeta, error)
		Upcoming(ctx context.Context, acct account.Account) ([]Meeting, error)
		Get(ctx context.Context, id string, viewer account.Account) (Meeting, error)
		Update(ctx context.Context, id string, um UpdateMeeting) (Meeting, error)
		Delete(ctx context.Context, id string) error
		Join(ctx context.Context, id, accountID string) (string, error)
		AddAttendees(ctx context.Context, id string, accountIDs []string) (Meeting, AttendeeReport, error)
		RemoveAttendee(ctx context.Context, id, accountID string) (Meeting, error)
		Stats(ctx context.Context) (Stats, error)
	}

	Service struct {
		repo      Repository
		directory account.ServiceInterface
		catalog   catalog.Repository
		now       core.NowFunc
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, directory account.ServiceInterface, cat catalog.Repository, now core.NowFunc) *Service {
	if now == nil {
		now = core.UTCNow
	}
	return &Service{repo: repo, directory: directory, catalog: cat, now: now}
}

// refresh re-derives the meeting status; reports whether it changed.
func (svc *Service) refresh(mtg *Meeting) bool {
	derived := DeriveStatus(svc.now(), mtg.ScheduledAt, mtg.DurationMins, mtg.Status)
	if derived == mtg.Status {
		return false
	}
	mtg.Status = derived
	return true
}

// get fetches a meeting, re-deriving and persisting its status when the
// window has moved it along.
func (svc *Service) get(ctx context.Context, id string) (Meeting, error) {
	mtg, err := svc.repo.GetMeeting(ctx, id)
	if err != nil {
		return Meeting{}, err
	}
	if svc.refresh(&mtg) {
		if mtg, err = svc.repo.UpdateMeeting(ctx, mtg); err != nil {
			return Meeting{}, errors.Wrap(err, "persisting derived status")
		}
	}
	return mtg, nil
}

// checkRefs validates the instructor/stage/subject references against the
// external directory. Failures identify the offending field.
func (svc *Service) checkRefs(ctx context.Context, instructorID, stageID, subjectID string) error {
	if instructorID != "" {
		instructor, err := svc.directory.GetByID(ctx, instructorID)
		if err != nil {
			if errors.Cause(err) == account.ErrNotFound {
				return ErrInstructorNotFound
			}
			return errors.Wrap(err, "finding instructor")
		}
		if !instructor.IsTeacher() {
			return core.NewValidationError(ErrNotInstructor, core.FieldError{Field: "instructor_id", Error: ErrNotInstructor.Error()})
		}
	}
	if stageID != "" {
		if _, err := svc.catalog.GetStage(ctx, stageID); err != nil {
			if errors.Cause(err) == catalog.ErrStageNotFound {
				return err
			}
			return errors.Wrap(err, "finding stage")
		}
	}
	if subjectID != "" {
		if _, err := svc.catalog.GetSubject(ctx, subjectID); err != nil {
			if errors.Cause(err) == catalog.ErrSubjectNotFound {
				return err
			}
			return errors.Wrap(err, "finding subject")
		}
	}
	return nil
}

// partitionCandidates splits candidate IDs into net-new roster entries and
// rejections (empty, unknown to the directory, or already on the roster).
func (svc *Service) partitionCandidates(ctx context.Context, mtg *Meeting, candidates []string) ([]string, []RejectedAttendee, error) {
	var report []RejectedAttendee
	seen := make(map[string]struct{}, len(candidates))
	cleaned := make([]string, 0, len(candidates))
	for _, id := range candidates {
		id = core.CleanString(id)
		if id == "" {
			report = append(report, RejectedAttendee{AccountID: id, Reason: RejectEmptyID})
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if mtg.IsMember(id) {
			report = append(report, RejectedAttendee{AccountID: id, Reason: RejectDuplicate})
			continue
		}
		cleaned = append(cleaned, id)
	}

	known, unknown, err := svc.directory.PartitionIDs(ctx, cleaned)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range unknown {
		report = append(report, RejectedAttendee{AccountID: id, Reason: RejectUnknown})
	}
	return known, report, nil
}

func (svc *Service) Create(ctx context.Context, nm NewMeeting, creatorID string) (Meeting, AttendeeReport, error) {
	now := svc.now()
	if !nm.ScheduledAt.After(now) {
		return Meeting{}, AttendeeReport{}, core.NewValidationError(
			ErrScheduledInPast, core.FieldError{Field: "scheduled_at", Error: ErrScheduledInPast.Error()})
	}
	if err := svc.checkRefs(ctx, nm.InstructorID, nm.StageID, nm.SubjectID); err != nil {
		return Meeting{}, AttendeeReport{}, err
	}

	mtg := Meeting{
		ID:           uuid.New().String(),
		Title:        nm.Title,
		Description:  nm.Description,
		JoinLink:     nm.JoinLink,
		ScheduledAt:  nm.ScheduledAt.UTC(),
		DurationMins: nm.DurationMins,
		InstructorID: nm.InstructorID,
		StageID:      nm.StageID,
		SubjectID:    nm.SubjectID,
		MaxAttendees: nm.MaxAttendees,
		IsRecorded:   nm.IsRecorded,
		Tags:         nm.Tags,
		CreatedBy:    creatorID,
		Status:       StatusScheduled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	valid, rejected, err := svc.partitionCandidates(ctx, &mtg, nm.Attendees)
	if err != nil {
		return Meeting{}, AttendeeReport{}, err
	}
	if len(valid) > mtg.MaxAttendees {
		return Meeting{}, AttendeeReport{}, ErrRosterFull
	}
	for _, id := range valid {
		mtg.Attendees = append(mtg.Attendees, Attendee{AccountID: id})
	}

	mtg, err = svc.repo.CreateMeeting(ctx, mtg)
	if err != nil {
		return Meeting{}, AttendeeReport{}, errors.Wrap(err, "creating meeting")
	}
	return mtg, AttendeeReport{Added: valid, Rejected: rejected}, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Meeting, core.PageMeta, error) {
	meetings, total, err := svc.repo.QueryMeetings(ctx, filter, ordering, page)
	if err != nil {
		return nil, core.PageMeta{}, errors.Wrap(err, "querying meetings")
	}
	// lazy derivation on read; listings do not persist the transition,
	// the next write will
	for i := range meetings {
		svc.refresh(&meetings[i])
	}
	return meetings, core.NewPageMeta(page, total), nil
}

func (svc *Service) MyMeetings(ctx context.Context, acct account.Account, status Status, page core.Pagination) ([]Meeting, core.PageMeta, error) {
	if status == "" {
		status = StatusScheduled
	}
	filter := &QueryFilter{Status: status, MemberID: acct.ID}
	ordering := []core.DBOrdering{{Field: "scheduled_at", Ascending: true}}
	return svc.Query(ctx, filter, ordering, page)
}

// Upcoming lists the next scheduled meetings for the account's stage.
// An account without a stage sees all upcoming meetings system-wide.
func (svc *Service) Upcoming(ctx context.Context, acct account.Account) ([]Meeting, error) {
	filter := &QueryFilter{
		Status:    StatusScheduled,
		StageID:   acct.StageID,
		StartDate: svc.now(),
	}
	ordering := []core.DBOrdering{{Field: "scheduled_at", Ascending: true}}
	meetings, _, err := svc.repo.QueryMeetings(ctx, filter, ordering, core.Pagination{Page: 1, Limit: upcomingLimit})
	if err != nil {
		return nil, errors.Wrap(err, "querying upcoming meetings")
	}
	return meetings, nil
}

// Get fetches a meeting. Admins bypass the roster check; anyone else must be
// the instructor or on the roster.
func (svc *Service) Get(ctx context.Context, id string, viewer account.Account) (Meeting, error) {
	mtg, err := svc.get(ctx, id)
	if err != nil {
		return Meeting{}, err
	}
	if viewer.IsAdmin() || mtg.InstructorID == viewer.ID || mtg.IsMember(viewer.ID) {
		return mtg, nil
	}
	return Meeting{}, ErrForbidden
}

func (svc *Service) Update(ctx context.Context, id string, um UpdateMeeting) (Meeting, error) {
	mtg, err := svc.get(ctx, id)
	if err != nil {
		return Meeting{}, err
	}
	if mtg.Status == StatusCompleted {
		return Meeting{}, ErrCompleted
	}

	if um.Title != "" {
		mtg.Title = um.Title
	}
	if um.Description != nil {
		mtg.Description = *um.Description
	}
	if um.JoinLink != "" {
		mtg.JoinLink = um.JoinLink
	}
	if um.ScheduledAt != nil {
		// moving the date of a meeting that is already in progress would
		// wind its status back to scheduled
		if mtg.Status == StatusLive {
			return Meeting{}, core.NewValidationError(
				ErrLiveReschedule, core.FieldError{Field: "scheduled_at", Error: ErrLiveReschedule.Error()})
		}
		if !um.ScheduledAt.After(svc.now()) {
			return Meeting{}, core.NewValidationError(
				ErrScheduledInPast, core.FieldError{Field: "scheduled_at", Error: ErrScheduledInPast.Error()})
		}
		mtg.ScheduledAt = um.ScheduledAt.UTC()
	}
	if um.DurationMins != nil {
		mtg.DurationMins = *um.DurationMins
	}
	if um.MaxAttendees != nil {
		mtg.MaxAttendees = *um.MaxAttendees
	}
	if um.IsRecorded != nil {
		mtg.IsRecorded = *um.IsRecorded
	}
	if um.RecordingLink != nil {
		mtg.RecordingLink = *um.RecordingLink
	}
	if um.Tags != nil {
		mtg.Tags = um.Tags
	}
	if um.Status == StatusCancelled {
		mtg.Status = StatusCancelled
	}

	if um.Attendees != nil {
		// merge by account ID: entries already on the roster keep their
		// join state, new ones start un-joined
		merged := make([]Attendee, 0, len(um.Attendees))
		seen := make(map[string]struct{}, len(um.Attendees))
		var unknownCheck []string
		for _, rawID := range um.Attendees {
			attID := core.CleanString(rawID)
			if attID == "" {
				continue
			}
			if _, dup := seen[attID]; dup {
				continue
			}
			seen[attID] = struct{}{}
			if i := mtg.IndexOfAttendee(attID); i >= 0 {
				merged = append(merged, mtg.Attendees[i])
			} else {
				unknownCheck = append(unknownCheck, attID)
			}
		}
		known, _, err := svc.directory.PartitionIDs(ctx, unknownCheck)
		if err != nil {
			return Meeting{}, err
		}
		for _, attID := range known {
			merged = append(merged, Attendee{AccountID: attID})
		}
		if len(merged) > mtg.MaxAttendees {
			return Meeting{}, ErrRosterFull
		}
		mtg.Attendees = merged
	} else if len(mtg.Attendees) > mtg.MaxAttendees {
		// a lowered capacity cannot orphan the existing roster
		return Meeting{}, ErrRosterFull
	}

	// status may have been re-derived against the patched window
	svc.refresh(&mtg)
	mtg.UpdatedAt = svc.now()

	mtg, err = svc.repo.UpdateMeeting(ctx, mtg)
	return mtg, errors.Wrap(err, "updating meeting")
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteMeeting(ctx, id)
}

// Join marks an existing roster entry as joined and returns the external
// join link. It never adds new attendees.
func (svc *Service) Join(ctx context.Context, id, accountID string) (string, error) {
	mtg, err := svc.get(ctx, id)
	if err != nil {
		return "", err
	}
	if mtg.Status != StatusLive {
		return "", ErrNotLive
	}
	i := mtg.IndexOfAttendee(accountID)
	if i < 0 {
		return "", ErrNotMember
	}
	if !mtg.Attendees[i].HasJoined {
		now := svc.now()
		mtg.Attendees[i].HasJoined = true
		mtg.Attendees[i].JoinedAt = &now
		mtg.UpdatedAt = now
		if _, err = svc.repo.UpdateMeeting(ctx, mtg); err != nil {
			return "", errors.Wrap(err, "recording join")
		}
	}
	return mtg.JoinLink, nil
}

// AddAttendees appends the valid net-new candidates to the roster. A batch
// that would breach capacity leaves the roster unchanged.
func (svc *Service) AddAttendees(ctx context.Context, id string, accountIDs []string) (Meeting, AttendeeReport, error) {
	mtg, err := svc.get(ctx, id)
	if err != nil {
		return Meeting{}, AttendeeReport{}, err
	}
	if mtg.Status == StatusCompleted {
		return Meeting{}, AttendeeReport{}, ErrCompleted
	}

	valid, rejected, err := svc.partitionCandidates(ctx, &mtg, accountIDs)
	if err != nil {
		return Meeting{}, AttendeeReport{}, err
	}
	if len(mtg.Attendees)+len(valid) > mtg.MaxAttendees {
		return Meeting{}, AttendeeReport{}, ErrRosterFull
	}
	for _, attID := range valid {
		mtg.Attendees = append(mtg.Attendees, Attendee{AccountID: attID})
	}
	mtg.UpdatedAt = svc.now()

	mtg, err = svc.repo.UpdateMeeting(ctx, mtg)
	if err != nil {
		return Meeting{}, AttendeeReport{}, errors.Wrap(err, "adding attendees")
	}
	return mtg, AttendeeReport{Added: valid, Rejected: rejected}, nil
}

func (svc *Service) RemoveAttendee(ctx context.Context, id, accountID string) (Meeting, error) {
	mtg, err := svc.get(ctx, id)
	if err != nil {
		return Meeting{}, err
	}
	if mtg.Status == StatusCompleted {
		return Meeting{}, ErrCompleted
	}
	i := mtg.IndexOfAttendee(accountID)
	if i < 0 {
		return Meeting{}, ErrAttendeeNotFound
	}
	mtg.Attendees = append(mtg.Attendees[:i], mtg.Attendees[i+1:]...)
	mtg.UpdatedAt = svc.now()

	mtg, err = svc.repo.UpdateMeeting(ctx, mtg)
	return mtg, errors.Wrap(err, "removing attendee")
}

func (svc *Service) Stats(ctx context.Context) (Stats, error) {
	meetings, err := svc.repo.QueryAllMeetings(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying meetings")
	}

	stats := Stats{
		Total:    len(meetings),
		ByStatus: make(map[Status]int, 4),
	}
	for i := range meetings {
		svc.refresh(&meetings[i])
		stats.ByStatus[meetings[i].Status]++
		stats.TotalAttendees += len(meetings[i].Attendees)
		stats.JoinedCount += meetings[i].JoinedCount()
	}
	if stats.TotalAttendees > 0 {
		stats.AttendanceRate = float64(stats.JoinedCount) / float64(stats.TotalAttendees)
	}
	return stats, nil
}

package inmemdb

import (
	"context"
	"sort"

	"github.com/somalabs/darasa/core"
	"github.com/somalabs/darasa/core/meeting"
)

type meetingRepository struct {
	db *meetingTable
}

var _ meeting.Repository = (*meetingRepository)(nil) // interface compliance check

func NewMeetingRepository(db *DB) meeting.Repository {
	return &meetingRepository{db: db.meeting}
}

func (repo *meetingRepository) query() []meeting.Meeting {
	meetings := make([]meeting.Meeting, 0, len(repo.db.table))
	for _, mtg := range repo.db.table {
		meetings = append(meetings, cloneMeeting(*mtg))
	}
	return meetings
}

// cloneMeeting copies the roster slice so callers cannot mutate stored state.
func cloneMeeting(mtg meeting.Meeting) meeting.Meeting {
	attendees := make([]meeting.Attendee, len(mtg.Attendees))
	copy(attendees, mtg.Attendees)
	mtg.Attendees = attendees
	return mtg
}

func (repo *meetingRepository) CreateMeeting(_ context.Context, mtg meeting.Meeting) (meeting.Meeting, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored := cloneMeeting(mtg)
	repo.db.table[mtg.ID] = &stored
	return mtg, nil
}

func (repo *meetingRepository) GetMeeting(_ context.Context, id string) (meeting.Meeting, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if mtg, ok := repo.db.table[id]; ok {
		return cloneMeeting(*mtg), nil
	}
	return meeting.Meeting{}, meeting.ErrNotFound
}

func (repo *meetingRepository) QueryMeetings(
	_ context.Context,
	filter *meeting.QueryFilter,
	ordering []core.DBOrdering,
	page core.Pagination,
) ([]meeting.Meeting, int, error) {
	repo.db.RLock()
	meetings := repo.query()
	repo.db.RUnlock()

	if filter != nil {
		var filtered []meeting.Meeting
		for _, mtg := range meetings {
			if matchesFilter(mtg, filter) {
				filtered = append(filtered, mtg)
			}
		}
		meetings = filtered
	}

	applyOrdering(meetings, ordering)

	total := len(meetings)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if page.Limit <= 0 || end > total {
		end = total
	}
	return meetings[start:end], total, nil
}

func matchesFilter(mtg meeting.Meeting, filter *meeting.QueryFilter) bool {
	if filter.Status != "" && mtg.Status != filter.Status {
		return false
	}
	if filter.StageID != "" && mtg.StageID != filter.StageID {
		return false
	}
	if filter.SubjectID != "" && mtg.SubjectID != filter.SubjectID {
		return false
	}
	if filter.InstructorID != "" && mtg.InstructorID != filter.InstructorID {
		return false
	}
	if !filter.StartDate.IsZero() && mtg.ScheduledAt.Before(filter.StartDate.UTC()) {
		return false
	}
	if !filter.EndDate.IsZero() && mtg.ScheduledAt.After(filter.EndDate.UTC()) {
		return false
	}
	if filter.MemberID != "" && mtg.InstructorID != filter.MemberID && !mtg.IsMember(filter.MemberID) {
		return false
	}
	return true
}

func applyOrdering(meetings []meeting.Meeting, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	ord := ordering[0]
	sort.SliceStable(meetings, func(i, j int) bool {
		var before bool
		switch ord.Field {
		case "scheduled_at":
			before = meetings[i].ScheduledAt.Before(meetings[j].ScheduledAt)
		case "updated_at":
			before = meetings[i].UpdatedAt.Before(meetings[j].UpdatedAt)
		default:
			before = meetings[i].CreatedAt.Before(meetings[j].CreatedAt)
		}
		if ord.Ascending {
			return before
		}
		return !before
	})
}

func (repo *meetingRepository) QueryAllMeetings(_ context.Context) ([]meeting.Meeting, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *meetingRepository) UpdateMeeting(_ context.Context, mtg meeting.Meeting) (meeting.Meeting, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[mtg.ID]; !ok {
		return meeting.Meeting{}, meeting.ErrNotFound
	}
	stored := cloneMeeting(mtg)
	repo.db.table[mtg.ID] = &stored
	return mtg, nil
}

func (repo *meetingRepository) DeleteMeeting(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return meeting.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/somalabs/darasa/apps/api/echo"
	"github.com/somalabs/darasa/core/account"
	"github.com/somalabs/darasa/core/meeting"
	testutil "github.com/somalabs/darasa/tests"
)

type meetingFixture struct {
	*testApp
	admin, teacher, student1, student2, outsider account.Account
}

func setupMeetings(t *testing.T) *meetingFixture {
	t.Helper()
	app := setup(t)

	f := &meetingFixture{
		testApp:  app,
		admin:    testutil.CreateAccount(t, app.acctRepo, "Admin", "admin", "admin@test.cd", "", account.AllRoles, true, false),
		teacher:  testutil.CreateAccount(t, app.acctRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{account.RoleTeacher}, true, false),
		outsider: testutil.CreateAccount(t, app.acctRepo, "Outsider", "outsider", "outsider@test.cd", "", []string{account.RoleStudent}, true, false),
	}
	f.student1 = testutil.CreateAccount(t, app.acctRepo, "Student One", "st1", "st1@test.cd", "", []string{account.RoleStudent}, true, false, app.stage.ID)
	f.student2 = testutil.CreateAccount(t, app.acctRepo, "Student Two", "st2", "st2@test.cd", "", []string{account.RoleStudent}, true, false, app.stage.ID)
	return f
}

func (f *meetingFixture) newMeeting(attendees ...string) meeting.NewMeeting {
	return meeting.NewMeeting{
		Title:        "Algebra review",
		JoinLink:     "https://meet.google.com/abc-defg-hij",
		ScheduledAt:  f.clock.Now().Add(2 * time.Hour),
		DurationMins: 60,
		InstructorID: f.teacher.ID,
		StageID:      f.stage.ID,
		SubjectID:    f.subject.ID,
		MaxAttendees: 10,
		Attendees:    attendees,
	}
}

func (f *meetingFixture) mustCreate(t *testing.T, nm meeting.NewMeeting) meeting.Meeting {
	t.Helper()
	mtg, _, err := f.meetingSvc.Create(context.Background(), nm, f.admin.ID)
	require.NoError(t, err)
	return mtg
}

func Test_meetingApi_accessControl(t *testing.T) {
	f := setupMeetings(t)
	studentToken := f.getToken(t, f.student1)
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/v1/live-meetings",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "create: admin required", method: http.MethodPost, path: "/v1/live-meetings",
			body: marchallObj(t, f.newMeeting()), token: studentToken,
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "admin listing: admin required", method: http.MethodGet, path: "/v1/live-meetings/admin/all",
			token: studentToken, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "stats: admin required", method: http.MethodGet, path: "/v1/live-meetings/admin/stats",
			token: studentToken, wantCode: http.StatusForbidden, wantData: forbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			f.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_meetingApi_create(t *testing.T) {
	f := setupMeetings(t)
	adminToken := f.getToken(t, f.admin)

	t.Run("ok with partial roster", func(t *testing.T) {
		nm := f.newMeeting(f.student1.ID, "4cc0184c-0000-4000-8000-000000000000")
		req, rec := newAuthRequest(http.MethodPost, "/v1/live-meetings", adminToken, marchallObj(t, nm))
		f.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp MeetingWithReport
		decodeBody(t, rec, &resp)
		assert.NotEmpty(t, resp.Meeting.ID)
		assert.Equal(t, meeting.StatusScheduled, resp.Meeting.Status)
		assert.Equal(t, f.admin.ID, resp.Meeting.CreatedBy)
		assert.Equal(t, []string{f.student1.ID}, resp.Attendees.Added)
		require.Len(t, resp.Attendees.Rejected, 1)
		assert.Equal(t, meeting.RejectUnknown, resp.Attendees.Rejected[0].Reason)
	})

	t.Run("scheduled in the past", func(t *testing.T) {
		nm := f.newMeeting()
		nm.ScheduledAt = f.clock.Now().Add(-time.Hour)
		req, rec := newAuthRequest(http.MethodPost, "/v1/live-meetings", adminToken, marchallObj(t, nm))
		f.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp httpFieldErrs
		decodeBody(t, rec, &resp)
		assert.Contains(t, resp.Errors, "scheduled_at")
	})

	// unknown references are not-found, never coerced into bad-request
	t.Run("unknown instructor", func(t *testing.T) {
		nm := f.newMeeting()
		nm.InstructorID = "13a9e401-0000-4000-8000-000000000000"
		req, rec := newAuthRequest(http.MethodPost, "/v1/live-meetings", adminToken, marchallObj(t, nm))
		f.server.ServeHTTP(rec, req)

		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "instructor not found"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("unknown stage", func(t *testing.T) {
		nm := f.newMeeting()
		nm.StageID = "26b4f012-0000-4000-8000-000000000000"
		req, rec := newAuthRequest(http.MethodPost, "/v1/live-meetings", adminToken, marchallObj(t, nm))
		f.server.ServeHTTP(rec, req)

		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "stage not found"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("unknown subject", func(t *testing.T) {
		nm := f.newMeeting()
		nm.SubjectID = "39c1d733-0000-4000-8000-000000000000"
		req, rec := newAuthRequest(http.MethodPost, "/v1/live-meetings", adminToken, marchallObj(t, nm))
		f.server.ServeHTTP(rec, req)

		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "subject not found"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("plain http join link", func(t *testing.T) {
		nm := f.newMeeting()
		nm.JoinLink = "http://meet.google.com/abc-defg-hij"
		req, rec := newAuthRequest(http.MethodPost, "/v1/live-meetings", adminToken, marchallObj(t, nm))
		f.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp httpFieldErrs
		decodeBody(t, rec, &resp)
		assert.Contains(t, resp.Errors, "join_link")
	})
}

func Test_meetingApi_retrieve(t *testing.T) {
	f := setupMeetings(t)
	mtg := f.mustCreate(t, f.newMeeting(f.student1.ID))

	tests := []httpTest{
		{
			name: "member can retrieve", path: "/v1/live-meetings/" + mtg.ID, token: f.getToken(t, f.student1),
			wantCode: http.StatusOK, wantData: marchallObj(t, mtg),
		},
		{
			name: "instructor can retrieve", path: "/v1/live-meetings/" + mtg.ID, token: f.getToken(t, f.teacher),
			wantCode: http.StatusOK, wantData: marchallObj(t, mtg),
		},
		{
			name: "non-member denied", path: "/v1/live-meetings/" + mtg.ID, token: f.getToken(t, f.outsider),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown meeting", path: "/v1/live-meetings/6e0e9bda-0000-4000-8000-000000000000", token: f.getToken(t, f.admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "meeting not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			f.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_meetingApi_join(t *testing.T) {
	f := setupMeetings(t)
	mtg := f.mustCreate(t, f.newMeeting(f.student1.ID))
	path := "/v1/live-meetings/" + mtg.ID + "/join"

	t.Run("not live yet", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, f.getToken(t, f.student1))
		f.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "meeting is not live"})}
		checkCodeAndData(t, tt, rec)
	})

	f.clock.Advance(2*time.Hour + time.Minute) // into the meeting window

	t.Run("member joins", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, f.getToken(t, f.student1))
		f.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, JoinResponse{JoinLink: mtg.JoinLink})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("non-member rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, f.getToken(t, f.outsider))
		f.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account is not on the meeting roster"})}
		checkCodeAndData(t, tt, rec)
	})
}

func Test_meetingApi_update(t *testing.T) {
	f := setupMeetings(t)
	mtg := f.mustCreate(t, f.newMeeting(f.student1.ID))
	adminToken := f.getToken(t, f.admin)
	path := "/v1/live-meetings/" + mtg.ID

	t.Run("rename and cancel", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"title": "Geometry recap", "status": "cancelled"})
		req, rec := newAuthRequest(http.MethodPut, path, adminToken, body)
		f.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated meeting.Meeting
		decodeBody(t, rec, &updated)
		assert.Equal(t, "Geometry recap", updated.Title)
		assert.Equal(t, meeting.StatusCancelled, updated.Status)
	})

	t.Run("cancelled meetings stay mutable, completed do not", func(t *testing.T) {
		other := f.mustCreate(t, f.newMeeting())
		f.clock.Advance(4 * time.Hour) // past the end

		body := marchallObj(t, map[string]interface{}{"title": "too late"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/live-meetings/"+other.ID, adminToken, body)
		f.server.ServeHTTP(rec, req)

		tt := httpTest{wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "meeting has already been completed"})}
		checkCodeAndData(t, tt, rec)
	})
}

func Test_meetingApi_attendees(t *testing.T) {
	f := setupMeetings(t)
	mtg := f.mustCreate(t, f.newMeeting(f.student1.ID))
	adminToken := f.getToken(t, f.admin)
	path := "/v1/live-meetings/" + mtg.ID + "/attendees"

	t.Run("add", func(t *testing.T) {
		body := marchallObj(t, AddAttendeesRequest{AccountIDs: []string{f.student2.ID, f.student1.ID}})
		req, rec := newAuthRequest(http.MethodPost, path, adminToken, body)
		f.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp MeetingWithReport
		decodeBody(t, rec, &resp)
		assert.Equal(t, []string{f.student2.ID}, resp.Attendees.Added)
		require.Len(t, resp.Attendees.Rejected, 1) // student1 already on the roster
		assert.Len(t, resp.Meeting.Attendees, 2)
	})

	t.Run("remove", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, path+"/"+f.student2.ID, adminToken)
		f.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated meeting.Meeting
		decodeBody(t, rec, &updated)
		assert.Len(t, updated.Attendees, 1)
	})

	t.Run("remove absent attendee", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, path+"/"+f.outsider.ID, adminToken)
		f.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "attendee not found"})}
		checkCodeAndData(t, tt, rec)
	})
}

func Test_meetingApi_listings(t *testing.T) {
	f := setupMeetings(t)
	m1 := f.mustCreate(t, f.newMeeting(f.student1.ID))
	nm := f.newMeeting(f.student1.ID, f.student2.ID)
	nm.Title = "Fractions drill"
	nm.ScheduledAt = f.clock.Now().Add(24 * time.Hour)
	f.mustCreate(t, nm)

	t.Run("my meetings", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/live-meetings/my-meetings", f.getToken(t, f.student2))
		f.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Results []meeting.Meeting `json:"results"`
			Meta    struct {
				Total int `json:"total"`
			} `json:"meta"`
		}
		decodeBody(t, rec, &resp)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "Fractions drill", resp.Results[0].Title)
		assert.Equal(t, 1, resp.Meta.Total)
	})

	t.Run("upcoming for my stage", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/live-meetings/upcoming", f.getToken(t, f.student1))
		f.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var results []meeting.Meeting
		decodeBody(t, rec, &results)
		require.Len(t, results, 2)
		assert.Equal(t, m1.ID, results[0].ID) // soonest first
	})

	t.Run("admin listing", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/live-meetings/admin/all?status=scheduled", f.getToken(t, f.admin))
		f.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Results []meeting.Meeting `json:"results"`
		}
		decodeBody(t, rec, &resp)
		assert.Len(t, resp.Results, 2)
	})

	t.Run("admin stats", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/live-meetings/admin/stats", f.getToken(t, f.admin))
		f.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var stats meeting.Stats
		decodeBody(t, rec, &stats)
		assert.Equal(t, 2, stats.Total)
		assert.Equal(t, 3, stats.TotalAttendees)
	})
}

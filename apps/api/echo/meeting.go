package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core/account"
	"github.com/somalabs/darasa/core/meeting"
)

type meetingApi struct {
	svc        meeting.ServiceInterface
	accountSvc account.ServiceInterface
	validate   *validator.Validate
	translator ut.Translator
}

func registerMeetingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := meetingApi{
		svc:        deps.MeetingSvc,
		accountSvc: deps.AccountSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	mg := g.Group("/live-meetings", jwt)

	mg.POST("", api.create, adminMiddleware())
	mg.GET("/admin/all", api.query, adminMiddleware())
	mg.GET("/admin/stats", api.stats, adminMiddleware())
	mg.GET("/my-meetings", api.myMeetings)
	mg.GET("/upcoming", api.upcoming)

	dg := mg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, adminMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.POST("/join", api.join)
	dg.POST("/attendees", api.addAttendees, adminMiddleware())
	dg.DELETE("/attendees/:attendeeId", api.removeAttendee, adminMiddleware())
}

// Handlers

func (api *meetingApi) create(ctx echo.Context) error {
	var data meeting.NewMeeting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMeeting")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	mtg, report, err := api.svc.Create(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating meeting")
	}
	return ctx.JSON(http.StatusCreated, MeetingWithReport{Meeting: mtg, Attendees: report})
}

func (api *meetingApi) query(ctx echo.Context) error {
	filter := new(meeting.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, PagedResponse{Results: []meeting.Meeting{}})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	page := bindPagination(ctx)

	meetings, meta, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying meetings")
	}
	if meetings == nil {
		meetings = []meeting.Meeting{}
	}
	return ctx.JSON(http.StatusOK, PagedResponse{Results: meetings, Meta: meta})
}

func (api *meetingApi) myMeetings(ctx echo.Context) error {
	acct, err := getContextAccount(ctx, api.accountSvc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	status := meeting.Status(ctx.QueryParam("status"))
	page := bindPagination(ctx)

	meetings, meta, err := api.svc.MyMeetings(ctx.Request().Context(), acct, status, page)
	if err != nil {
		return errors.Wrap(err, "querying my meetings")
	}
	if meetings == nil {
		meetings = []meeting.Meeting{}
	}
	return ctx.JSON(http.StatusOK, PagedResponse{Results: meetings, Meta: meta})
}

func (api *meetingApi) upcoming(ctx echo.Context) error {
	acct, err := getContextAccount(ctx, api.accountSvc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	meetings, err := api.svc.Upcoming(ctx.Request().Context(), acct)
	if err != nil {
		return errors.Wrap(err, "querying upcoming meetings")
	}
	if meetings == nil {
		meetings = []meeting.Meeting{}
	}
	return ctx.JSON(http.StatusOK, meetings)
}

func (api *meetingApi) retrieve(ctx echo.Context) error {
	acct, err := getContextAccount(ctx, api.accountSvc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	mtg, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), acct)
	if err != nil {
		return errors.Wrap(err, "finding meeting")
	}
	return ctx.JSON(http.StatusOK, mtg)
}

func (api *meetingApi) update(ctx echo.Context) error {
	var data meeting.UpdateMeeting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMeeting")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	mtg, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating meeting")
	}
	return ctx.JSON(http.StatusOK, mtg)
}

func (api *meetingApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting meeting")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *meetingApi) join(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	link, err := api.svc.Join(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "joining meeting")
	}
	return ctx.JSON(http.StatusOK, JoinResponse{JoinLink: link})
}

func (api *meetingApi) addAttendees(ctx echo.Context) error {
	var data AddAttendeesRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddAttendeesRequest")
	}

	mtg, report, err := api.svc.AddAttendees(ctx.Request().Context(), ctx.Param("id"), data.AccountIDs)
	if err != nil {
		return errors.Wrap(err, "adding attendees")
	}
	return ctx.JSON(http.StatusOK, MeetingWithReport{Meeting: mtg, Attendees: report})
}

func (api *meetingApi) removeAttendee(ctx echo.Context) error {
	mtg, err := api.svc.RemoveAttendee(ctx.Request().Context(), ctx.Param("id"), ctx.Param("attendeeId"))
	if err != nil {
		return errors.Wrap(err, "removing attendee")
	}
	return ctx.JSON(http.StatusOK, mtg)
}

func (api *meetingApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing meeting stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

type (
	MeetingWithReport struct {
		Meeting   meeting.Meeting        `json:"meeting"`
		Attendees meeting.AttendeeReport `json:"attendees"`
	}

	JoinResponse struct {
		JoinLink string `json:"join_link"`
	}

	AddAttendeesRequest struct {
		AccountIDs []string `json:"account_ids"`
	}
)

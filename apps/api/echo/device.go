package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core/account"
	"github.com/somalabs/darasa/core/device"
)

type deviceApi struct {
	svc        device.ServiceInterface
	accountSvc account.ServiceInterface
	validate   *validator.Validate
	translator ut.Translator
}

func registerDeviceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := deviceApi{
		svc:        deps.DeviceSvc,
		accountSvc: deps.AccountSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	dg := g.Group("/device-management", jwt)

	dg.POST("/register", api.register)
	dg.POST("/check-authorization", api.checkAuthorization)

	dg.GET("/users", api.listAccounts, adminMiddleware())
	dg.GET("/users/:id/devices", api.accountDevices, adminMiddleware())
	dg.PUT("/users/:id/reset", api.resetAccountDevices, adminMiddleware())
	dg.DELETE("/devices/:id", api.removeDevice, adminMiddleware())
	dg.GET("/stats", api.stats, adminMiddleware())
	dg.GET("/limit", api.getLimit, adminMiddleware())
	dg.PUT("/limit", api.updateLimit, adminMiddleware())
}

// Handlers

func (api *deviceApi) register(ctx echo.Context) error {
	var data device.Registration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Registration")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	data.IP = ctx.RealIP()

	acct, err := getContextAccount(ctx, api.accountSvc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	dev, created, err := api.svc.Register(ctx.Request().Context(), acct, data)
	if err != nil {
		return errors.Wrap(err, "registering device")
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return ctx.JSON(status, RegisterResponse{Device: dev, Created: created})
}

// checkAuthorization reports whether the submitted metadata matches an
// active registration. Unknown devices get a 200 with authorized=false,
// not an error.
func (api *deviceApi) checkAuthorization(ctx echo.Context) error {
	var data device.Registration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Registration")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acct, err := getContextAccount(ctx, api.accountSvc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	dev, err := api.svc.CheckAuthorization(ctx.Request().Context(), acct, data)
	if err != nil {
		if errors.Cause(err) == device.ErrNotAuthorized {
			return ctx.JSON(http.StatusOK, AuthorizationResponse{Authorized: false})
		}
		return errors.Wrap(err, "checking device authorization")
	}
	return ctx.JSON(http.StatusOK, AuthorizationResponse{Authorized: true, Device: &dev})
}

func (api *deviceApi) listAccounts(ctx echo.Context) error {
	filter := new(device.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, PagedResponse{Results: []device.AccountSummary{}})
	}
	page := bindPagination(ctx)

	summaries, meta, err := api.svc.ListAccounts(ctx.Request().Context(), filter, page)
	if err != nil {
		return errors.Wrap(err, "listing accounts with devices")
	}
	if summaries == nil {
		summaries = []device.AccountSummary{}
	}
	return ctx.JSON(http.StatusOK, PagedResponse{Results: summaries, Meta: meta})
}

func (api *deviceApi) accountDevices(ctx echo.Context) error {
	devices, err := api.svc.AccountDevices(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying account devices")
	}
	if devices == nil {
		devices = []device.Device{}
	}
	return ctx.JSON(http.StatusOK, devices)
}

func (api *deviceApi) resetAccountDevices(ctx echo.Context) error {
	count, err := api.svc.ResetAccountDevices(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "resetting account devices")
	}
	return ctx.JSON(http.StatusOK, ResetResponse{ResetCount: count})
}

func (api *deviceApi) removeDevice(ctx echo.Context) error {
	if err := api.svc.RemoveDevice(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing device")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *deviceApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing device stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *deviceApi) getLimit(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, LimitResponse{DeviceLimit: api.svc.Limit()})
}

func (api *deviceApi) updateLimit(ctx echo.Context) error {
	var data UpdateLimitRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLimitRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	update, err := api.svc.UpdateGlobalLimit(ctx.Request().Context(), data.NewLimit)
	if err != nil {
		return errors.Wrap(err, "updating device limit")
	}
	return ctx.JSON(http.StatusOK, update)
}

type (
	RegisterResponse struct {
		Device  device.Device `json:"device"`
		Created bool          `json:"created"`
	}

	AuthorizationResponse struct {
		Authorized bool           `json:"authorized"`
		Device     *device.Device `json:"device,omitempty"`
	}

	ResetResponse struct {
		ResetCount int `json:"reset_count"`
	}

	LimitResponse struct {
		DeviceLimit int `json:"device_limit"`
	}

	UpdateLimitRequest struct {
		NewLimit int `json:"new_limit" validate:"required"`
	}
)

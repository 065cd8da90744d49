package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core"
	"github.com/somalabs/darasa/core/account"
	"github.com/somalabs/darasa/core/device"
)

type accountApi struct {
	conf       *core.Config
	svc        account.ServiceInterface
	deviceSvc  device.ServiceInterface
	validate   *validator.Validate
	translator ut.Translator
}

func registerAccountAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := accountApi{
		conf:       deps.Conf,
		svc:        deps.AccountSvc,
		deviceSvc:  deps.DeviceSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	ag := g.Group("/accounts")

	// un-authed endpoints
	ag.POST("/login", api.login)

	// authed endpoints
	tg := ag.Group("", jwt)
	tg.POST("/token-refresh", api.refreshToken)
}

// login authenticates credentials, admits the calling device and issues a
// JWT. A device over the global limit never gets a token.
func (api *accountApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acct, err := authenticate(ctx.Request().Context(), data.Username, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}

	data.Device.IP = ctx.RealIP()
	admission, err := api.deviceSvc.Admit(ctx.Request().Context(), acct, data.Device)
	if err != nil {
		return errors.Wrap(err, "admitting device")
	}

	token, err := GenerateToken(api.conf, GetAccountClaims(api.conf, acct))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Admission: admission})
}

func (api *accountApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

type (
	LoginRequest struct {
		Username string              `json:"username" validate:"required"`
		Password string              `json:"password" validate:"required"`
		Device   device.Registration `json:"device"`
	}

	LoginResponse struct {
		Token     string           `json:"token"`
		Admission device.Admission `json:"admission"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	// cleans the device metadata and validates the whole request,
	// nested Registration included
	lr.Device.Platform = core.CleanString(lr.Device.Platform)
	lr.Device.UserAgent = core.CleanString(lr.Device.UserAgent)
	lr.Device.ScreenResolution = core.CleanString(lr.Device.ScreenResolution)
	lr.Device.Timezone = core.CleanString(lr.Device.Timezone)
	return validate.Struct(lr)
}

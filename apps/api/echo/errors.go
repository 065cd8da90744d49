package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core"
	"github.com/somalabs/darasa/core/account"
	"github.com/somalabs/darasa/core/catalog"
	"github.com/somalabs/darasa/core/device"
	"github.com/somalabs/darasa/core/meeting"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "account not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// deviceLimitCode is the machine-readable code clients key on to show the
// "too many devices" screen.
const deviceLimitCode = "DEVICE_LIMIT_EXCEEDED"

// httpStatusFor maps domain sentinel errors to HTTP statuses. Anything not
// listed is a server error.
func httpStatusFor(err error) (int, bool) {
	switch err {
	case meeting.ErrNotFound, meeting.ErrAttendeeNotFound, meeting.ErrInstructorNotFound,
		catalog.ErrStageNotFound, catalog.ErrSubjectNotFound,
		device.ErrNotFound, account.ErrNotFound:
		return http.StatusNotFound, true
	case meeting.ErrCompleted, meeting.ErrRosterFull, meeting.ErrNotLive, device.ErrLimitExceeded:
		return http.StatusConflict, true
	case meeting.ErrForbidden, meeting.ErrNotMember:
		return http.StatusForbidden, true
	case meeting.ErrScheduledInPast, device.ErrLimitBounds:
		return http.StatusBadRequest, true
	case device.ErrNotAuthorized:
		return http.StatusUnauthorized, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if status, ok := httpStatusFor(cause); ok {
			code = status
			if cause == device.ErrLimitExceeded {
				message = echo.Map{"error": cause.Error(), "code": deviceLimitCode}
			} else {
				message = cause.Error()
			}
			sendError(ctx, code, message, err)
			return
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = translateFieldErrors(origErr, translator)
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var acct account.Account
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				acct.ID = claims.Subject
				acct.Username = claims.Username
				acct.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), acct)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		sendError(ctx, code, message, err)
	}
}

func translateFieldErrors(vErrs validator.ValidationErrors, translator ut.Translator) map[string]string {
	fldErrs := make(map[string]string, len(vErrs))
	for _, vErr := range vErrs {
		if translator != nil {
			fldErrs[vErr.Field()] = vErr.Translate(translator)
		} else {
			fldErrs[vErr.Field()] = vErr.Error()
		}
	}
	return fldErrs
}

// sendError writes the error envelope. Whatever shape the message takes
// (plain string, field-error map, limit payload) the body always carries
// "success": false alongside it.
func sendError(ctx echo.Context, code int, message interface{}, err error) {
	payload, ok := message.(echo.Map)
	if !ok {
		payload = echo.Map{"error": message}
	}
	payload["success"] = false
	if !ctx.Response().Committed {
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, payload)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}

package echoapi

import (
	stderrors "errors"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
)

var kindStatuses = map[core.Kind]int{
	core.KindValidation:      http.StatusBadRequest,
	core.KindConflict:        http.StatusConflict,
	core.KindAuthentication:  http.StatusUnauthorized,
	core.KindPendingApproval: http.StatusForbidden,
	core.KindAccountRejected: http.StatusForbidden,
	core.KindAuthorization:   http.StatusForbidden,
	core.KindNotFound:        http.StatusNotFound,
	core.KindEligibility:     http.StatusBadRequest,
	core.KindPollClosed:      http.StatusBadRequest,
	core.KindInvalidOption:   http.StatusBadRequest,
	core.KindDuplicateVote:   http.StatusBadRequest,
	core.KindEventFull:       http.StatusConflict,
	core.KindDependency:      http.StatusInternalServerError,
}

var statusKinds = map[int]core.Kind{
	http.StatusBadRequest:       core.KindValidation,
	http.StatusUnauthorized:     core.KindAuthentication,
	http.StatusForbidden:        core.KindAuthorization,
	http.StatusNotFound:         core.KindNotFound,
	http.StatusMethodNotAllowed: core.KindNotFound,
	http.StatusConflict:         core.KindConflict,
}

type ErrorResponse struct {
	Kind   core.Kind         `json:"kind"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func fieldsMap(flds []core.FieldError) map[string]string {
	if len(flds) == 0 {
		return nil
	}
	res := make(map[string]string, len(flds))
	for _, f := range flds {
		res[f.Field] = f.Error
	}
	return res
}

// toErrorResponse classifies err into a status code and response body.
func toErrorResponse(err error, translator ut.Translator) (int, ErrorResponse) {
	var (
		bindErr *echo.BindingError
		httpErr *echo.HTTPError
		vErrs   validator.ValidationErrors
		valErr  *core.ValidationError
		confErr *core.ConflictError
	)

	switch {
	case stderrors.As(err, &bindErr):
		return http.StatusBadRequest, ErrorResponse{
			Kind:   core.KindValidation,
			Error:  "invalid input",
			Fields: map[string]string{bindErr.Field: "invalid value"},
		}
	case stderrors.As(err, &httpErr):
		kind, ok := statusKinds[httpErr.Code]
		if !ok {
			kind = core.KindDependency
		}
		msg, ok := httpErr.Message.(string)
		if !ok {
			msg = http.StatusText(httpErr.Code)
		}
		return httpErr.Code, ErrorResponse{Kind: kind, Error: msg}
	case stderrors.As(err, &vErrs):
		valErr, _ := core.TranslateValidationErrors(vErrs, translator).(*core.ValidationError)
		return http.StatusBadRequest, ErrorResponse{
			Kind:   core.KindValidation,
			Error:  "invalid input",
			Fields: fieldsMap(valErr.Fields),
		}
	case stderrors.As(err, &valErr):
		msg := "invalid input"
		if valErr.Err != nil {
			msg = valErr.Err.Error()
		}
		return http.StatusBadRequest, ErrorResponse{Kind: core.KindValidation, Error: msg, Fields: fieldsMap(valErr.Fields)}
	case stderrors.As(err, &confErr):
		return http.StatusConflict, ErrorResponse{Kind: core.KindConflict, Error: confErr.Error(), Fields: fieldsMap(confErr.Fields)}
	}

	kind := core.KindOf(err)
	if kind == core.KindDependency {
		return http.StatusInternalServerError, ErrorResponse{Kind: kind, Error: http.StatusText(http.StatusInternalServerError)}
	}
	code, ok := kindStatuses[kind]
	if !ok {
		code = http.StatusBadRequest
	}
	var kindErr *core.Error
	_ = stderrors.As(err, &kindErr)
	return code, ErrorResponse{Kind: kind, Error: kindErr.Msg}
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}

		code, res := toErrorResponse(err, translator)
		if code >= http.StatusInternalServerError {
			var acc account.Account
			if claims, ok := contextClaims(ctx); ok {
				acc.ID = claims.Subject
				acc.Email = claims.Email
				acc.Role = claims.Role
			}
			logger.Error(res.Error, errors.Wrap(err, ctx.Request().Method+" "+ctx.Path()), acc)

			if ctx.Echo().Debug {
				res.Error = err.Error()
			}
			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, res)
		}
		if err != nil {
			logger.Error("writing error response", err)
		}
	}
}

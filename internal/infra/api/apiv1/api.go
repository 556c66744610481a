package apiv1

import (
	"fmt"
	"net/http"

	"campaign-launcher/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// StartLaunchRequest is the body of POST /api/v1/launches. Config may be
// omitted when the key already names a stored job.
type StartLaunchRequest struct {
	IdempotencyKey string              `json:"idempotency_key"`
	Config         *model.LaunchConfig `json:"config,omitempty"`
}

type ErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (POST /api/v1/launches)
	StartLaunch(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/launches/{key})
	GetLaunch(w http.ResponseWriter, r *http.Request, key string)
	// (POST /api/v1/launches/{key}/retry)
	RetryLaunch(w http.ResponseWriter, r *http.Request, key string)
	// (POST /api/v1/launches/{key}/cancel)
	CancelLaunch(w http.ResponseWriter, r *http.Request, key string)
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// ServerInterfaceWrapper converts path parameters before calling the handler.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) StartLaunch(w http.ResponseWriter, r *http.Request) {
	siw.Handler.StartLaunch(w, r)
}

func (siw *ServerInterfaceWrapper) GetLaunch(w http.ResponseWriter, r *http.Request) {
	key, ok := siw.bindKey(w, r)
	if !ok {
		return
	}
	siw.Handler.GetLaunch(w, r, key)
}

func (siw *ServerInterfaceWrapper) RetryLaunch(w http.ResponseWriter, r *http.Request) {
	key, ok := siw.bindKey(w, r)
	if !ok {
		return
	}
	siw.Handler.RetryLaunch(w, r, key)
}

func (siw *ServerInterfaceWrapper) CancelLaunch(w http.ResponseWriter, r *http.Request) {
	key, ok := siw.bindKey(w, r)
	if !ok {
		return
	}
	siw.Handler.CancelLaunch(w, r, key)
}

func (siw *ServerInterfaceWrapper) bindKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	var key string
	err := runtime.BindStyledParameterWithOptions("simple", "key", chi.URLParam(r, "key"), &key,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "key", Err: err})
		return "", false
	}
	return key, true
}

// RegisterAPIV1 registers absolute /api/v1 paths on r.
func RegisterAPIV1(r chi.Router, si ServerInterface) {
	wrapper := ServerInterfaceWrapper{
		Handler: si,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, http.StatusBadRequest, "invalid_parameter", err.Error(), "")
		},
	}
	r.Post("/api/v1/launches", wrapper.StartLaunch)
	r.Get("/api/v1/launches/{key}", wrapper.GetLaunch)
	r.Post("/api/v1/launches/{key}/retry", wrapper.RetryLaunch)
	r.Post("/api/v1/launches/{key}/cancel", wrapper.CancelLaunch)
}

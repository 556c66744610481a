package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"campaign-launcher/internal/domain"
	"campaign-launcher/internal/infra/logging"
	"campaign-launcher/internal/infra/metrics"
	"campaign-launcher/internal/infra/security"
	"campaign-launcher/internal/usecase"

	"github.com/rs/zerolog"
)

// redirectLauncher tells the client to send the user back to the launcher form.
const redirectLauncher = "launcher"

const maxBodyBytes = 1 << 20

var _ ServerInterface = (*Server)(nil)

type Server struct {
	launches usecase.LaunchUseCase
	log      *zerolog.Logger
}

func NewServer(launches usecase.LaunchUseCase, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{launches: launches, log: &l}
}

func (s *Server) StartLaunch(w http.ResponseWriter, r *http.Request) {
	const route = "start_launch"
	start := time.Now()
	status := http.StatusAccepted
	defer func() { observe(route, status, start) }()

	var req StartLaunchRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(body) == 0 {
		status = http.StatusBadRequest
		writeError(w, status, "invalid_body", "request body is required", "")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		status = http.StatusBadRequest
		writeError(w, status, "invalid_body", "request body is not valid JSON", "")
		return
	}

	ctx := logging.WithJobKey(r.Context(), req.IdempotencyKey)
	if req.IdempotencyKey != "" {
		existing, err := s.launches.Get(ctx, req.IdempotencyKey)
		switch {
		case err == nil && !owns(ctx, existing):
			status = http.StatusConflict
			writeError(w, status, "key_in_use", "launch key belongs to another user", "")
			return
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			status = statusOf(err)
			s.writeMapped(w, ctx, status, err)
			return
		}
	}

	view, err := s.launches.Start(ctx, usecase.StartRequest{
		Key:    req.IdempotencyKey,
		UserID: security.SubjectFrom(ctx),
		Config: req.Config,
	})
	if err != nil {
		status = statusOf(err)
		s.writeMapped(w, ctx, status, err)
		return
	}
	writeJSON(w, status, view)
}

func (s *Server) GetLaunch(w http.ResponseWriter, r *http.Request, key string) {
	const route = "get_launch"
	start := time.Now()
	status := http.StatusOK
	defer func() { observe(route, status, start) }()

	ctx := logging.WithJobKey(r.Context(), key)
	view, err := s.launches.Get(ctx, key)
	if err == nil && !owns(ctx, view) {
		err = domain.ErrNotFound
	}
	if err != nil {
		status = statusOf(err)
		s.writeMapped(w, ctx, status, err)
		return
	}
	writeJSON(w, status, view)
}

func (s *Server) RetryLaunch(w http.ResponseWriter, r *http.Request, key string) {
	const route = "retry_launch"
	start := time.Now()
	status := http.StatusAccepted
	defer func() { observe(route, status, start) }()

	ctx := logging.WithJobKey(r.Context(), key)
	if status = s.checkOwner(ctx, key); status != http.StatusOK {
		s.writeMapped(w, ctx, status, nil)
		return
	}
	view, err := s.launches.Retry(ctx, key)
	if err != nil {
		status = statusOf(err)
		s.writeMapped(w, ctx, status, err)
		return
	}
	status = http.StatusAccepted
	writeJSON(w, status, view)
}

func (s *Server) CancelLaunch(w http.ResponseWriter, r *http.Request, key string) {
	const route = "cancel_launch"
	start := time.Now()
	status := http.StatusNoContent
	defer func() { observe(route, status, start) }()

	ctx := logging.WithJobKey(r.Context(), key)
	if status = s.checkOwner(ctx, key); status != http.StatusOK {
		s.writeMapped(w, ctx, status, nil)
		return
	}
	if err := s.launches.Cancel(ctx, key); err != nil {
		status = statusOf(err)
		s.writeMapped(w, ctx, status, err)
		return
	}
	status = http.StatusNoContent
	w.WriteHeader(status)
}

// checkOwner returns 200 when the job exists and belongs to the caller. A job
// owned by someone else reads as 404.
func (s *Server) checkOwner(ctx context.Context, key string) int {
	view, err := s.launches.Get(ctx, key)
	if err != nil {
		return statusOf(err)
	}
	if !owns(ctx, view) {
		return http.StatusNotFound
	}
	return http.StatusOK
}

func owns(ctx context.Context, view *usecase.LaunchView) bool {
	sub := security.SubjectFrom(ctx)
	if sub == "" || view == nil || view.Job == nil || view.Job.UserID == "" {
		return true
	}
	return view.Job.UserID == sub
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingIdempotencyKey),
		errors.Is(err, domain.ErrMissingConfig),
		errors.Is(err, domain.ErrIncompleteConfig),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotRetryable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeMapped renders the user-facing message for status. Config problems
// point the client back to the launcher.
func (s *Server) writeMapped(w http.ResponseWriter, ctx context.Context, status int, err error) {
	switch status {
	case http.StatusBadRequest:
		msg := "Campaign configuration is missing or incomplete. Please start again from the launcher."
		if errors.Is(err, domain.ErrMissingIdempotencyKey) {
			msg = "Campaign launch key is missing. Please start again from the launcher."
		}
		writeError(w, status, "invalid_launch", msg, redirectLauncher)
	case http.StatusNotFound:
		writeError(w, status, "not_found", "launch not found", "")
	case http.StatusConflict:
		writeError(w, status, "not_retryable", "launch can only be retried after it failed", "")
	default:
		l := logging.With(ctx, s.log)
		l.Error().Err(err).Int("status", status).Msg("launch request failed")
		writeError(w, status, "internal", "internal error", "")
	}
}

func observe(route string, status int, start time.Time) {
	metrics.APIRequests.WithLabelValues(route, metrics.ResultOf(status)).Inc()
	metrics.APIRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg, redirect string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: msg, Redirect: redirect}})
}

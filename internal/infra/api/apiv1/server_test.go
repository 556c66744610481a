//go:build !integration

package apiv1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	apiv1 "campaign-launcher/internal/infra/api/apiv1"
	"campaign-launcher/internal/infra/security"
	"campaign-launcher/internal/usecase"

	"campaign-launcher/internal/domain"
	"campaign-launcher/internal/domain/model"
)

//
// ---------------- use case mock ----------------
//

type mockLaunches struct {
	StartFunc  func(ctx context.Context, req usecase.StartRequest) (*usecase.LaunchView, error)
	RetryFunc  func(ctx context.Context, key string) (*usecase.LaunchView, error)
	CancelFunc func(ctx context.Context, key string) error
	GetFunc    func(ctx context.Context, key string) (*usecase.LaunchView, error)

	startCalls  []usecase.StartRequest
	cancelCalls []string
}

func (m *mockLaunches) Start(ctx context.Context, req usecase.StartRequest) (*usecase.LaunchView, error) {
	m.startCalls = append(m.startCalls, req)
	if m.StartFunc != nil {
		return m.StartFunc(ctx, req)
	}
	return viewFor(req.Key, req.UserID, model.LaunchStatusStarted), nil
}

func (m *mockLaunches) Retry(ctx context.Context, key string) (*usecase.LaunchView, error) {
	if m.RetryFunc != nil {
		return m.RetryFunc(ctx, key)
	}
	return viewFor(key, "", model.LaunchStatusStarted), nil
}

func (m *mockLaunches) Cancel(ctx context.Context, key string) error {
	m.cancelCalls = append(m.cancelCalls, key)
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, key)
	}
	return nil
}

func (m *mockLaunches) Get(ctx context.Context, key string) (*usecase.LaunchView, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, domain.ErrNotFound
}

//
// -------------------- test helpers --------------------
//

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func viewFor(key, user string, status model.LaunchStatus) *usecase.LaunchView {
	return &usecase.LaunchView{
		Job: &model.LaunchJob{ID: "job-1", IdempotencyKey: key, UserID: user, Status: status},
		Projection: usecase.Projection{
			Status: status,
		},
	}
}

func storedAs(user string, status model.LaunchStatus) func(context.Context, string) (*usecase.LaunchView, error) {
	return func(_ context.Context, key string) (*usecase.LaunchView, error) {
		return viewFor(key, user, status), nil
	}
}

// asUser puts the subject on the context the way the auth middleware does.
func asUser(user string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(security.WithSubject(r.Context(), user)))
		})
	}
}

func newRouter(uc usecase.LaunchUseCase) *chi.Mux {
	r := chi.NewRouter()
	r.Use(asUser("user-1"))
	apiv1.RegisterAPIV1(r, apiv1.NewServer(uc, newLogger()))
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiv1.ErrorBody {
	t.Helper()
	var body apiv1.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

const validConfig = `{
  "product_name": "Trail Runner",
  "product_link": "https://shop.example.com/trail",
  "product_image_url": "https://cdn.example.com/trail.png",
  "asset_url": "https://cdn.example.com/trail.mp4",
  "launch_mode": "sandbox",
  "campaign_name": "Spring",
  "daily_budget": 50,
  "ad_copy": {"body_text": "Run further"}
}`

//
// -------------------- tests --------------------
//

func TestLaunches_Start(t *testing.T) {
	t.Run("202 with view and caller as owner", func(t *testing.T) {
		uc := &mockLaunches{}
		r := newRouter(uc)

		rec := do(t, r, http.MethodPost, "/api/v1/launches", `{"idempotency_key":"k-1","config":`+validConfig+`}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("want 202, got %d, body=%s", rec.Code, rec.Body.String())
		}
		var view usecase.LaunchView
		if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if view.Job == nil || view.Job.IdempotencyKey != "k-1" {
			t.Fatalf("unexpected view: %+v", view)
		}
		if len(uc.startCalls) != 1 || uc.startCalls[0].UserID != "user-1" {
			t.Fatalf("start calls: %+v", uc.startCalls)
		}
		if uc.startCalls[0].Config == nil || uc.startCalls[0].Config.ProductName != "Trail Runner" {
			t.Fatalf("config not forwarded: %+v", uc.startCalls[0].Config)
		}
	})

	t.Run("resume without config", func(t *testing.T) {
		uc := &mockLaunches{GetFunc: storedAs("user-1", model.LaunchStatusCampaignDone)}
		r := newRouter(uc)

		rec := do(t, r, http.MethodPost, "/api/v1/launches", `{"idempotency_key":"k-1"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("want 202, got %d, body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("400 with launcher redirect on config errors", func(t *testing.T) {
		for _, err := range []error{domain.ErrMissingConfig, domain.ErrIncompleteConfig, domain.ErrMissingIdempotencyKey} {
			uc := &mockLaunches{StartFunc: func(context.Context, usecase.StartRequest) (*usecase.LaunchView, error) {
				return nil, fmt.Errorf("wrapped: %w", err)
			}}
			rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/launches", `{"idempotency_key":"k-1"}`)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("%v: want 400, got %d", err, rec.Code)
			}
			if body := decodeError(t, rec); body.Redirect != "launcher" || body.Message == "" {
				t.Fatalf("%v: unexpected error body %+v", err, body)
			}
		}
	})

	t.Run("400 missing body", func(t *testing.T) {
		rec := do(t, newRouter(&mockLaunches{}), http.MethodPost, "/api/v1/launches", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("400 malformed json", func(t *testing.T) {
		rec := do(t, newRouter(&mockLaunches{}), http.MethodPost, "/api/v1/launches", `{"idempotency_key":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("409 when key belongs to another user", func(t *testing.T) {
		uc := &mockLaunches{GetFunc: storedAs("user-2", model.LaunchStatusStarted)}
		rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/launches", `{"idempotency_key":"k-1"}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("want 409, got %d", rec.Code)
		}
		if len(uc.startCalls) != 0 {
			t.Fatalf("start must not be called for a foreign key")
		}
	})

	t.Run("500 on store failure", func(t *testing.T) {
		uc := &mockLaunches{StartFunc: func(context.Context, usecase.StartRequest) (*usecase.LaunchView, error) {
			return nil, errors.New("connection refused")
		}}
		rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/launches", `{"idempotency_key":"k-1"}`)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("want 500, got %d", rec.Code)
		}
		if body := decodeError(t, rec); body.Message != "internal error" {
			t.Fatalf("internal details leaked: %+v", body)
		}
	})
}

func TestLaunches_Get(t *testing.T) {
	t.Run("200", func(t *testing.T) {
		uc := &mockLaunches{GetFunc: storedAs("user-1", model.LaunchStatusAdGroupDone)}
		rec := do(t, newRouter(uc), http.MethodGet, "/api/v1/launches/k-1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
		}
		var view usecase.LaunchView
		if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if view.Projection.Status != model.LaunchStatusAdGroupDone {
			t.Fatalf("status = %s", view.Projection.Status)
		}
	})

	t.Run("404 unknown", func(t *testing.T) {
		rec := do(t, newRouter(&mockLaunches{}), http.MethodGet, "/api/v1/launches/nope", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})

	t.Run("404 for another user's job", func(t *testing.T) {
		uc := &mockLaunches{GetFunc: storedAs("user-2", model.LaunchStatusStarted)}
		rec := do(t, newRouter(uc), http.MethodGet, "/api/v1/launches/k-1", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})
}

func TestLaunches_Retry(t *testing.T) {
	t.Run("202", func(t *testing.T) {
		uc := &mockLaunches{GetFunc: storedAs("user-1", model.LaunchStatusFailed)}
		rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/launches/k-1/retry", "")
		if rec.Code != http.StatusAccepted {
			t.Fatalf("want 202, got %d, body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("409 when not failed", func(t *testing.T) {
		uc := &mockLaunches{
			GetFunc: storedAs("user-1", model.LaunchStatusCampaignDone),
			RetryFunc: func(context.Context, string) (*usecase.LaunchView, error) {
				return nil, fmt.Errorf("%w: status is CAMPAIGN_DONE", domain.ErrNotRetryable)
			},
		}
		rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/launches/k-1/retry", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("want 409, got %d", rec.Code)
		}
	})

	t.Run("404 unknown", func(t *testing.T) {
		rec := do(t, newRouter(&mockLaunches{}), http.MethodPost, "/api/v1/launches/nope/retry", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})
}

func TestLaunches_Cancel(t *testing.T) {
	t.Run("204", func(t *testing.T) {
		uc := &mockLaunches{GetFunc: storedAs("user-1", model.LaunchStatusIdentityDone)}
		rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/launches/k-1/cancel", "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("want 204, got %d", rec.Code)
		}
		if len(uc.cancelCalls) != 1 || uc.cancelCalls[0] != "k-1" {
			t.Fatalf("cancel calls: %v", uc.cancelCalls)
		}
	})

	t.Run("404 for another user's job", func(t *testing.T) {
		uc := &mockLaunches{GetFunc: storedAs("user-2", model.LaunchStatusIdentityDone)}
		rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/launches/k-1/cancel", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
		if len(uc.cancelCalls) != 0 {
			t.Fatalf("cancel must not be called")
		}
	})
}

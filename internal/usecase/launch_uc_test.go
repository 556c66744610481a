//go:build !integration

package usecase

import (
	"context"
	"testing"

	"campaign-launcher/internal/domain"
	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/repository"
	"campaign-launcher/internal/infra/adapters/adplatform"
	"campaign-launcher/internal/infra/db/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(e *engine, d Driver, jobs repository.LaunchJobRepository) *LaunchService {
	if jobs == nil {
		jobs = e.repo
	}
	return NewLaunchService(DefaultSteps(), jobs, nil, d, e.notifier, e.clock, testLogger())
}

func TestStart_Validation(t *testing.T) {
	e := newEngine(t)
	d := &fakeDriver{}
	svc := newService(e, d, nil)
	ctx := context.Background()

	_, err := svc.Start(ctx, StartRequest{UserID: "u1", Config: sampleConfig()})
	require.ErrorIs(t, err, domain.ErrMissingIdempotencyKey)

	_, err = svc.Start(ctx, StartRequest{Key: "key-no-config", UserID: "u1"})
	require.ErrorIs(t, err, domain.ErrMissingConfig)

	incomplete := sampleConfig()
	incomplete.AssetURL = ""
	_, err = svc.Start(ctx, StartRequest{Key: "key-incomplete", UserID: "u1", Config: incomplete})
	require.ErrorIs(t, err, domain.ErrIncompleteConfig)

	assert.Zero(t, e.repo.Len(), "no job is created for a rejected start")
	assert.Empty(t, d.Ensured())
}

func TestStart_FreshLaunchCreatesJob(t *testing.T) {
	e := newEngine(t)
	d := &fakeDriver{}
	svc := newService(e, d, nil)

	view, err := svc.Start(context.Background(), StartRequest{Key: "0123456789abcdef", UserID: "u1", Config: sampleConfig()})
	require.NoError(t, err)

	assert.False(t, view.Resumed)
	assert.NotEmpty(t, view.Job.ID)
	assert.Equal(t, model.LaunchStatusStarted, view.Job.Status)
	assert.Equal(t, "[NX:0123456789]", view.Job.CorrelationTag)
	assert.Equal(t, "prod-42", view.Job.ProductID)
	assert.Equal(t, model.LaunchModeSandbox, view.Job.LaunchMode)
	assert.Equal(t, []string{"0123456789abcdef"}, d.Ensured())
	for _, s := range view.Projection.Steps {
		assert.Equal(t, StepPending, s.State)
	}
}

func TestStart_SameKeyResumesInsteadOfCreating(t *testing.T) {
	e := newEngine(t)
	d := &fakeDriver{}
	svc := newService(e, d, nil)
	ctx := context.Background()

	first, err := svc.Start(ctx, StartRequest{Key: "key-resume-001", UserID: "u1", Config: sampleConfig()})
	require.NoError(t, err)

	// a reload carries no config
	second, err := svc.Start(ctx, StartRequest{Key: "key-resume-001", UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, second.Resumed)
	assert.Equal(t, first.Job.ID, second.Job.ID)
	require.NotNil(t, second.Job.Config)
	assert.Equal(t, "Trail Runner Pro", second.Job.Config.ProductName)
	assert.Equal(t, 1, e.repo.Len())

	// a different config on resume does not replace the stored snapshot
	other := sampleConfig()
	other.CampaignName = "Something else"
	third, err := svc.Start(ctx, StartRequest{Key: "key-resume-001", UserID: "u1", Config: other})
	require.NoError(t, err)
	assert.Equal(t, "Trail Runner spring", third.Job.Config.CampaignName)
	assert.Equal(t, 1, e.repo.Len())
}

// racingRepo hides existing jobs from the first lookups, as if another
// instance inserted the key in between.
type racingRepo struct {
	*memory.LaunchJobRepo
	hidden int
}

func (r *racingRepo) FindByKey(ctx context.Context, tx repository.Tx, key string) ([]*model.LaunchJob, error) {
	if r.hidden > 0 {
		r.hidden--
		return nil, nil
	}
	return r.LaunchJobRepo.FindByKey(ctx, tx, key)
}

func TestStart_LosingCreateRaceResumesWinner(t *testing.T) {
	e := newEngine(t)
	winner := e.seedJob(t, "key-race-00001", sampleConfig(), model.LaunchStatusAssetsDone, model.StepResults{AvatarImageID: "av-1", ImageID: "img-1"})
	repo := &racingRepo{LaunchJobRepo: e.repo, hidden: 2}
	svc := newService(e, &fakeDriver{}, repo)

	view, err := svc.Start(context.Background(), StartRequest{Key: "key-race-00001", UserID: "u2", Config: sampleConfig()})
	require.NoError(t, err)

	assert.True(t, view.Resumed)
	assert.Equal(t, winner.ID, view.Job.ID)
	assert.Equal(t, 1, e.repo.Len())
}

func TestRetry(t *testing.T) {
	e := newEngine(t)
	d := &fakeDriver{}
	svc := newService(e, d, nil)
	ctx := context.Background()

	t.Run("unknown key", func(t *testing.T) {
		_, err := svc.Retry(ctx, "key-missing")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("only from FAILED", func(t *testing.T) {
		e.seedJob(t, "key-retry-0001", sampleConfig(), model.LaunchStatusCampaignDone, model.StepResults{CampaignID: "c"})
		_, err := svc.Retry(ctx, "key-retry-0001")
		require.ErrorIs(t, err, domain.ErrNotRetryable)
	})

	t.Run("resets status and keeps results", func(t *testing.T) {
		job := e.seedJob(t, "key-retry-0002", sampleConfig(), model.LaunchStatusFailed, model.StepResults{
			AvatarImageID: "av-1", ImageID: "img-1", IdentityID: "id-1", CampaignID: "camp-1",
		})
		_, err := e.repo.Update(ctx, nil, job.ID, model.JobUpdate{ErrorLog: &model.ErrorLog{Step: StepCreateAdGroup, Message: "boom"}})
		require.NoError(t, err)

		view, err := svc.Retry(ctx, "key-retry-0002")
		require.NoError(t, err)

		assert.Equal(t, model.LaunchStatusStarted, view.Job.Status)
		assert.Nil(t, view.Job.ErrorLog)
		assert.Equal(t, "camp-1", view.Job.Results.CampaignID)
		assert.Contains(t, d.Ensured(), "key-retry-0002")
		assert.Contains(t, e.notifier.Titles(), "Attempting to restart campaign creation process.")
	})
}

func TestRetryPreservesProgressEndToEnd(t *testing.T) {
	e := newEngine(t)
	e.sandbox.FailNext(adplatform.OpCreateAdGroup, assertErr("ad group quota reached for account"))
	svc := newService(e, &fakeDriver{}, nil)
	ctx := context.Background()

	view, err := svc.Start(ctx, StartRequest{Key: "key-e2e-retry1", UserID: "u1", Config: sampleConfig()})
	require.NoError(t, err)

	failed, err := e.orch.Drive(ctx, view.Job, nil)
	require.NoError(t, err)
	require.Equal(t, model.LaunchStatusFailed, failed.Status)
	require.Equal(t, StepCreateAdGroup, failed.ErrorLog.Step)

	retried, err := svc.Retry(ctx, "key-e2e-retry1")
	require.NoError(t, err)

	done, err := e.orch.Drive(ctx, retried.Job, nil)
	require.NoError(t, err)

	assert.Equal(t, model.LaunchStatusSucceeded, done.Status)
	assert.Equal(t, 1, e.sandbox.Calls(adplatform.OpUploadAvatar))
	assert.Equal(t, 1, e.sandbox.Calls(adplatform.OpUploadImage))
	assert.Equal(t, 1, e.sandbox.Calls(adplatform.OpCreateIdentity))
	assert.Equal(t, 1, e.sandbox.Calls(adplatform.OpCreateCampaign))
	assert.Equal(t, 2, e.sandbox.Calls(adplatform.OpCreateAdGroup))
	assert.Equal(t, 1, e.sandbox.Calls(adplatform.OpCreateAd))
	assert.Equal(t, failed.Results.CampaignID, done.Results.CampaignID)
}

func TestGetAndCancel(t *testing.T) {
	e := newEngine(t)
	var cancelled string
	d := &fakeDriver{CancelFunc: func(key string) bool { cancelled = key; return true }}
	svc := newService(e, d, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, "key-nowhere")
	require.ErrorIs(t, err, domain.ErrNotFound)

	e.seedJob(t, "key-get-000001", sampleConfig(), model.LaunchStatusAdGroupDone, model.StepResults{AdGroupID: "ag"})
	view, err := svc.Get(ctx, "key-get-000001")
	require.NoError(t, err)
	assert.Equal(t, model.LaunchStatusAdGroupDone, view.Projection.Status)
	assert.Empty(t, d.Ensured(), "Get has no side effects")

	require.NoError(t, svc.Cancel(ctx, "key-get-000001"))
	assert.Equal(t, "key-get-000001", cancelled)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

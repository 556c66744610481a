package repository

import (
	"context"

	"campaign-launcher/internal/domain/model"
)

// LaunchJobRepository is the durable job store. Update is atomic and last-write-wins;
// results merge set-once.
type LaunchJobRepository interface {
	// Create assigns the job id. It returns domain.ErrAlreadyExists when the key is taken.
	Create(ctx context.Context, tx Tx, job *model.LaunchJob) error
	Update(ctx context.Context, tx Tx, id string, upd model.JobUpdate) (*model.LaunchJob, error)
	// FindByKey returns zero or one job.
	FindByKey(ctx context.Context, tx Tx, key string) ([]*model.LaunchJob, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.LaunchJob, error)
	// ListInFlight returns non-terminal jobs, oldest update first.
	ListInFlight(ctx context.Context, tx Tx, limit int) ([]*model.LaunchJob, error)
}

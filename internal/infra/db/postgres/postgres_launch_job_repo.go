package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campaign-launcher/internal/domain"
	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.LaunchJobRepository = (*launchJobRepo)(nil)

const launchJobColumns = `id, idempotency_key, user_id, product_id, launch_mode, status,
correlation_tag, config, results, error_log, created_at, updated_at`

const pgUniqueViolation = "23505"

type launchJobRepo struct {
	pool *pgxpool.Pool
}

func NewLaunchJobRepo(pool *pgxpool.Pool) *launchJobRepo {
	return &launchJobRepo{pool: pool}
}

func (r *launchJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.LaunchJob) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	if job.IdempotencyKey == "" {
		return domain.ErrMissingIdempotencyKey
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	cfg, err := jsonOrNil(job.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	results, err := json.Marshal(job.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	errLog, err := jsonOrNil(job.ErrorLog)
	if err != nil {
		return fmt.Errorf("encode error log: %w", err)
	}

	const q = `
INSERT INTO launch_jobs (` + launchJobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10::jsonb, $11, $12);`

	_, err = exec.Exec(ctx, q,
		job.ID, job.IdempotencyKey, job.UserID, job.ProductID, string(job.LaunchMode), string(job.Status),
		job.CorrelationTag, cfg, string(results), errLog, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert launch job: %w", err)
	}
	return nil
}

// Update applies upd in one statement. Results merge with existing keys
// winning, so a result field is never overwritten once set.
func (r *launchJobRepo) Update(ctx context.Context, tx repository.Tx, id string, upd model.JobUpdate) (*model.LaunchJob, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}

	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}
	patch, err := json.Marshal(upd.Results)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	var errLog *string
	if upd.ErrorLog != nil && !upd.ClearErrorLog {
		errLog, err = jsonOrNil(upd.ErrorLog)
		if err != nil {
			return nil, fmt.Errorf("encode error log: %w", err)
		}
	}

	const q = `
UPDATE launch_jobs SET
  status     = COALESCE($2::text, status),
  results    = $3::jsonb || results,
  error_log  = CASE WHEN $4::bool THEN NULL ELSE COALESCE($5::jsonb, error_log) END,
  updated_at = $6
WHERE id = $1
RETURNING ` + launchJobColumns + `;`

	row := exec.QueryRow(ctx, q, id, status, string(patch), upd.ClearErrorLog, errLog, time.Now().UTC())
	job, err := scanLaunchJob(row)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *launchJobRepo) FindByKey(ctx context.Context, tx repository.Tx, key string) ([]*model.LaunchJob, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + launchJobColumns + ` FROM launch_jobs WHERE idempotency_key = $1;`
	return queryLaunchJobs(ctx, exec, q, key)
}

func (r *launchJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.LaunchJob, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + launchJobColumns + ` FROM launch_jobs WHERE id = $1;`
	return scanLaunchJob(exec.QueryRow(ctx, q, id))
}

// ListInFlight returns non-terminal jobs, least recently touched first.
func (r *launchJobRepo) ListInFlight(ctx context.Context, tx repository.Tx, limit int) ([]*model.LaunchJob, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + launchJobColumns + ` FROM launch_jobs
WHERE status NOT IN ('SUCCEEDED', 'FAILED')
ORDER BY updated_at
LIMIT $1;`
	return queryLaunchJobs(ctx, exec, q, limit)
}

func queryLaunchJobs(ctx context.Context, exec executor, q string, args ...interface{}) ([]*model.LaunchJob, error) {
	rows, err := exec.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query launch jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.LaunchJob
	for rows.Next() {
		job, err := scanLaunchJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate launch jobs: %w", err)
	}
	return out, nil
}

func scanLaunchJob(row pgx.Row) (*model.LaunchJob, error) {
	var (
		job                     model.LaunchJob
		mode, status            string
		cfg, results, errLogRaw []byte
	)
	err := row.Scan(
		&job.ID, &job.IdempotencyKey, &job.UserID, &job.ProductID, &mode, &status,
		&job.CorrelationTag, &cfg, &results, &errLogRaw, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	job.LaunchMode = model.LaunchMode(mode)
	job.Status = model.LaunchStatus(status)

	if len(cfg) > 0 && string(cfg) != "null" {
		job.Config = &model.LaunchConfig{}
		if err := json.Unmarshal(cfg, job.Config); err != nil {
			return nil, fmt.Errorf("%w: config: %v", domain.ErrReadDatabaseRow, err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &job.Results); err != nil {
			return nil, fmt.Errorf("%w: results: %v", domain.ErrReadDatabaseRow, err)
		}
	}
	if len(errLogRaw) > 0 && string(errLogRaw) != "null" {
		job.ErrorLog = &model.ErrorLog{}
		if err := json.Unmarshal(errLogRaw, job.ErrorLog); err != nil {
			return nil, fmt.Errorf("%w: error log: %v", domain.ErrReadDatabaseRow, err)
		}
	}
	return &job, nil
}

// jsonOrNil encodes v, mapping a nil pointer to SQL NULL.
func jsonOrNil[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

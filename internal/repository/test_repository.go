package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veritest/veritest-backend/internal/model"
)

// ErrActiveTestExists is returned when scheduling would violate the
// one-active-test invariant. The partial unique index on tests(active)
// turns the concurrent-schedule race into this error instead of a second row.
var ErrActiveTestExists = errors.New("an active test already exists")

const testColumns = `id, title, start_time, end_time, active, duration_seconds, question_seconds, created_at, updated_at`

// TestRepository handles test scheduling data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// Create inserts a new test with active=true. The uniqueness of the active
// flag is enforced by the storage layer, not by a prior read.
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tests (title, start_time, end_time, active, duration_seconds, question_seconds)
		 VALUES ($1, $2, $3, TRUE, $4, $5)
		 RETURNING id, active, created_at, updated_at`,
		t.Title, t.StartTime, t.EndTime, t.DurationSeconds, t.QuestionSeconds,
	).Scan(&t.ID, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrActiveTestExists
		}
		return err
	}
	return nil
}

// GetByID retrieves a test by its UUID.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+testColumns+` FROM tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.StartTime, &t.EndTime, &t.Active,
		&t.DurationSeconds, &t.QuestionSeconds, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindActive retrieves the test that is active and whose window contains now.
// Returns pgx.ErrNoRows when no test is currently schedulable.
func (r *TestRepository) FindActive(ctx context.Context, now time.Time) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+testColumns+`
		 FROM tests
		 WHERE active AND start_time <= $1 AND end_time >= $1`, now,
	).Scan(&t.ID, &t.Title, &t.StartTime, &t.EndTime, &t.Active,
		&t.DurationSeconds, &t.QuestionSeconds, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// End sets active=false. Ending an already-inactive test is a no-op success.
func (r *TestRepository) End(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// List retrieves all tests, newest first.
func (r *TestRepository) List(ctx context.Context) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+testColumns+` FROM tests ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []model.Test
	for rows.Next() {
		var t model.Test
		if err := rows.Scan(&t.ID, &t.Title, &t.StartTime, &t.EndTime, &t.Active,
			&t.DurationSeconds, &t.QuestionSeconds, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// Delete removes a test and, via FK cascade, its questions and attempts.
func (r *TestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tests WHERE id = $1`, id)
	return err
}

// DeactivateExpired flips active=false on tests whose window has passed.
// Returns the number of tests closed.
func (r *TestRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tests SET active = FALSE, updated_at = NOW()
		 WHERE active AND end_time < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veritest/veritest-backend/internal/model"
)

const attemptColumns = `id, test_id, student_id, total, correct, wrong, attempted, locked, percent,
		finish_reason, integrity_flagged, answers, created_at`

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new attempt. The insert is conditional on the unique
// (student_id, test_id) constraint: a concurrent duplicate surfaces as
// pgx.ErrNoRows from the RETURNING scan, never as a second row.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts
			(test_id, student_id, total, correct, wrong, attempted, locked, percent,
			 finish_reason, integrity_flagged, answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (student_id, test_id) DO NOTHING
		 RETURNING id, created_at`,
		a.TestID, a.StudentID, a.Total, a.Correct, a.Wrong, a.Attempted, a.Locked,
		a.Percent, a.FinishReason, a.IntegrityFlagged, answers,
	).Scan(&a.ID, &a.CreatedAt)
}

// GetByStudentAndTest retrieves the attempt for a (student, test) pair.
func (r *AttemptRepository) GetByStudentAndTest(ctx context.Context, studentID int, testID uuid.UUID) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE student_id = $1 AND test_id = $2`, studentID, testID)
	return scanAttempt(row)
}

// GetByID retrieves an attempt by its UUID for result rendering.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id)
	return scanAttempt(row)
}

// ListByStudent retrieves a student's attempt history, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE student_id = $1 ORDER BY created_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// TestResult pairs an attempt with the student who made it.
type TestResult struct {
	model.Attempt
	StudentName string `json:"student_name"`
	RollNumber  string `json:"roll_number"`
}

// ListByTest retrieves all attempts for a test joined with student identity,
// ordered by student name.
func (r *AttemptRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]TestResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.`+nestedAttemptColumns()+`, s.name, s.roll_number
		 FROM attempts a
		 JOIN students s ON a.student_id = s.id
		 WHERE a.test_id = $1
		 ORDER BY s.name ASC`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TestResult
	for rows.Next() {
		var res TestResult
		var answers []byte
		if err := rows.Scan(&res.ID, &res.TestID, &res.StudentID, &res.Total, &res.Correct,
			&res.Wrong, &res.Attempted, &res.Locked, &res.Percent, &res.FinishReason,
			&res.IntegrityFlagged, &answers, &res.CreatedAt,
			&res.StudentName, &res.RollNumber); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answers, &res.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// Leaderboard retrieves the top attempts for a test by percent, earliest
// submission winning ties.
func (r *AttemptRepository) Leaderboard(ctx context.Context, testID uuid.UUID, limit int) ([]TestResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.`+nestedAttemptColumns()+`, s.name, s.roll_number
		 FROM attempts a
		 JOIN students s ON a.student_id = s.id
		 WHERE a.test_id = $1
		 ORDER BY a.percent DESC, a.created_at ASC
		 LIMIT $2`, testID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TestResult
	for rows.Next() {
		var res TestResult
		var answers []byte
		if err := rows.Scan(&res.ID, &res.TestID, &res.StudentID, &res.Total, &res.Correct,
			&res.Wrong, &res.Attempted, &res.Locked, &res.Percent, &res.FinishReason,
			&res.IntegrityFlagged, &answers, &res.CreatedAt,
			&res.StudentName, &res.RollNumber); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answers, &res.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*model.Attempt, error) {
	a := &model.Attempt{}
	var answers []byte
	err := row.Scan(&a.ID, &a.TestID, &a.StudentID, &a.Total, &a.Correct, &a.Wrong,
		&a.Attempted, &a.Locked, &a.Percent, &a.FinishReason, &a.IntegrityFlagged,
		&answers, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return a, nil
}

func collectAttempts(rows interface {
	Next() bool
	Err() error
	Scan(dest ...any) error
}) ([]model.Attempt, error) {
	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		var answers []byte
		if err := rows.Scan(&a.ID, &a.TestID, &a.StudentID, &a.Total, &a.Correct, &a.Wrong,
			&a.Attempted, &a.Locked, &a.Percent, &a.FinishReason, &a.IntegrityFlagged,
			&answers, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func nestedAttemptColumns() string {
	return `id, a.test_id, a.student_id, a.total, a.correct, a.wrong, a.attempted, a.locked, a.percent,
		a.finish_reason, a.integrity_flagged, a.answers, a.created_at`
}

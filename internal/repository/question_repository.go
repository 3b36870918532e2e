package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veritest/veritest-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByTest retrieves all questions for a given test, ordered by seq_num.
func (r *QuestionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, seq_num, question_text, options, correct_answer
		 FROM questions WHERE test_id = $1
		 ORDER BY seq_num`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var opts []byte
		if err := rows.Scan(&q.ID, &q.TestID, &q.SeqNum, &q.Text, &opts, &q.CorrectAnswer); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(opts, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options for question %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ReplaceForTest atomically deletes the existing question set and inserts the
// new one. By policy this also deletes every attempt recorded against the
// test, since question identities and correct answers have changed. Returns
// the number of attempts invalidated so callers can surface the destruction.
func (r *QuestionRepository) ReplaceForTest(ctx context.Context, testID uuid.UUID, inputs []model.QuestionInput) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM attempts WHERE test_id = $1`, testID)
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	invalidated := tag.RowsAffected()

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE test_id = $1`, testID); err != nil {
		return 0, fmt.Errorf("delete questions: %w", err)
	}

	for _, in := range inputs {
		opts, err := json.Marshal(in.Options)
		if err != nil {
			return 0, fmt.Errorf("encode options: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO questions (test_id, seq_num, question_text, options, correct_answer)
			 VALUES ($1, $2, $3, $4, $5)`,
			testID, in.SeqNum, in.Text, opts, in.CorrectAnswer,
		); err != nil {
			return 0, fmt.Errorf("insert question %d: %w", in.SeqNum, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return invalidated, nil
}

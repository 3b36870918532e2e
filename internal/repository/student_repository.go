package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veritest/veritest-backend/internal/model"
)

// StudentRepository handles student data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// Create inserts a new student account.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO students (name, email, roll_number, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		s.Name, s.Email, s.RollNumber, s.PasswordHash,
	).Scan(&s.ID, &s.CreatedAt)
}

// GetByEmail retrieves a student by email for login.
func (r *StudentRepository) GetByEmail(ctx context.Context, email string) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, roll_number, password_hash, created_at
		 FROM students WHERE email = $1`, email,
	).Scan(&s.ID, &s.Name, &s.Email, &s.RollNumber, &s.PasswordHash, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a student by id.
func (r *StudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, roll_number, password_hash, created_at
		 FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Email, &s.RollNumber, &s.PasswordHash, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

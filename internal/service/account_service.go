package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/veritest/veritest-backend/internal/model"
)

// ErrEmailTaken is returned when registering with an email that already exists.
var ErrEmailTaken = errors.New("email already registered")

// StudentAccountStore is the student access account management needs.
type StudentAccountStore interface {
	Create(ctx context.Context, s *model.Student) error
	GetByEmail(ctx context.Context, email string) (*model.Student, error)
	GetByID(ctx context.Context, id int) (*model.Student, error)
}

// AdminAccountStore is the admin access account management needs.
type AdminAccountStore interface {
	GetByEmail(ctx context.Context, email string) (*model.Admin, error)
	GetByID(ctx context.Context, id int) (*model.Admin, error)
}

// AccountService manages student and admin accounts.
type AccountService struct {
	students StudentAccountStore
	admins   AdminAccountStore
	auth     *AuthService
}

// NewAccountService creates a new AccountService.
func NewAccountService(students StudentAccountStore, admins AdminAccountStore, auth *AuthService) *AccountService {
	return &AccountService{students: students, admins: admins, auth: auth}
}

// RegisterStudent creates a student account with a hashed password.
func (s *AccountService) RegisterStudent(ctx context.Context, req *model.StudentRegisterRequest) (*model.Student, error) {
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	student := &model.Student{
		Name:         req.Name,
		Email:        req.Email,
		RollNumber:   req.RollNumber,
		PasswordHash: hash,
	}
	if err := s.students.Create(ctx, student); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create student: %w", err)
	}
	return student, nil
}

// StudentByEmail retrieves a student for login.
func (s *AccountService) StudentByEmail(ctx context.Context, email string) (*model.Student, error) {
	return s.students.GetByEmail(ctx, email)
}

// StudentByID retrieves a student profile.
func (s *AccountService) StudentByID(ctx context.Context, id int) (*model.Student, error) {
	return s.students.GetByID(ctx, id)
}

// AdminByEmail retrieves an admin for login.
func (s *AccountService) AdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	return s.admins.GetByEmail(ctx, email)
}

// AdminByID retrieves an admin profile.
func (s *AccountService) AdminByID(ctx context.Context, id int) (*model.Admin, error) {
	return s.admins.GetByID(ctx, id)
}

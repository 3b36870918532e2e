package model

import "time"

// Student represents a student user.
type Student struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RollNumber   string    `json:"roll_number"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// StudentRegisterRequest is the payload for creating a new student account.
type StudentRegisterRequest struct {
	Name       string `json:"name" binding:"required,min=2,max=100"`
	Email      string `json:"email" binding:"required,email,max=255"`
	RollNumber string `json:"roll_number" binding:"required,min=1,max=32"`
	Password   string `json:"password" binding:"required,min=6,max=128"`
}

// StudentLoginRequest is the payload for student authentication.
type StudentLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// StudentLoginResponse is returned after successful student login.
type StudentLoginResponse struct {
	Token   string  `json:"token"`
	Student Student `json:"student"`
}

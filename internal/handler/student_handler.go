package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/veritest/veritest-backend/internal/middleware"
	"github.com/veritest/veritest-backend/internal/response"
	"github.com/veritest/veritest-backend/internal/service"
)

// StudentHandler handles the student portal: admission and result views.
type StudentHandler struct {
	admissionService *service.AdmissionService
	resultService    *service.ResultService
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(admissionService *service.AdmissionService, resultService *service.ResultService) *StudentHandler {
	return &StudentHandler{
		admissionService: admissionService,
		resultService:    resultService,
	}
}

// GetAdmission godoc
// GET /api/v1/student/admission
// Reports whether the student may start the active test. Granted responses
// include the sanitized paper so the client can render before opening the
// session stream.
func (h *StudentHandler) GetAdmission(c *gin.Context) {
	claims := middleware.GetClaims(c)

	decision, err := h.admissionService.RequestAdmission(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, decision)
}

// ListAttempts godoc
// GET /api/v1/student/attempts
// Returns the student's attempt history, newest first.
func (h *StudentHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)

	attempts, err := h.resultService.StudentHistory(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:id
// Returns one attempt. Students can only read their own.
func (h *StudentHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.resultService.StudentAttempt(c.Request.Context(), id, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotOwner):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/veritest/veritest-backend/internal/model"
	"github.com/veritest/veritest-backend/internal/repository"
	"github.com/veritest/veritest-backend/internal/response"
	"github.com/veritest/veritest-backend/internal/service"
	"github.com/veritest/veritest-backend/internal/validator"
)

// AdminHandler handles test scheduling, question management, and result views
// for administrators.
type AdminHandler struct {
	scheduleService *service.ScheduleService
	paperService    *service.PaperService
	resultService   *service.ResultService
	authService     *service.AuthService
	questions       *repository.QuestionRepository
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	scheduleService *service.ScheduleService,
	paperService *service.PaperService,
	resultService *service.ResultService,
	authService *service.AuthService,
	questions *repository.QuestionRepository,
) *AdminHandler {
	return &AdminHandler{
		scheduleService: scheduleService,
		paperService:    paperService,
		resultService:   resultService,
		authService:     authService,
		questions:       questions,
	}
}

// ScheduleTest godoc
// POST /api/v1/admin/tests
// Schedules a new active test. Rejected while another test is active.
func (h *AdminHandler) ScheduleTest(c *gin.Context) {
	var req model.ScheduleTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.scheduleService.Schedule(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, repository.ErrActiveTestExists) {
			response.Fail(c, http.StatusConflict, response.ErrActiveTestExists)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"test": test})
}

// ListTests godoc
// GET /api/v1/admin/tests
func (h *AdminHandler) ListTests(c *gin.Context) {
	tests, err := h.scheduleService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tests": tests})
}

// EndTest godoc
// POST /api/v1/admin/tests/:id/end
// Deactivates a test. Idempotent: ending an ended test succeeds.
func (h *AdminHandler) EndTest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.scheduleService.End(c.Request.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// DeleteTest godoc
// DELETE /api/v1/admin/tests/:id
// Removes an inactive test with its questions and attempts.
func (h *AdminHandler) DeleteTest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.scheduleService.Delete(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrTestStillActive):
			response.Fail(c, http.StatusConflict, response.ErrTestStillActive)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ReplaceQuestions godoc
// PUT /api/v1/admin/tests/:id/questions
// Atomically replaces the test's question set. Destroys prior attempts; the
// count of invalidated attempts is returned so the caller sees the damage.
func (h *AdminHandler) ReplaceQuestions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	invalidated, err := h.scheduleService.ReplaceQuestions(c.Request.Context(), id, &req)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"questions_count":      len(req.Questions),
		"attempts_invalidated": invalidated,
	})
}

// ListQuestions godoc
// GET /api/v1/admin/tests/:id/questions
// Returns the full question set including correct answers. Admin only.
func (h *AdminHandler) ListQuestions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	questions, err := h.questions.ListByTest(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// ListTestResults godoc
// GET /api/v1/admin/tests/:id/attempts
func (h *AdminHandler) ListTestResults(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	results, err := h.resultService.TestResults(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": results})
}

// Leaderboard godoc
// GET /api/v1/admin/tests/:id/leaderboard?limit=10
func (h *AdminHandler) Leaderboard(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	board, err := h.resultService.Leaderboard(c.Request.Context(), id, limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"leaderboard": board})
}

// ResetStudentSession godoc
// POST /api/v1/admin/students/:id/reset-session
// Clears a student's login session so they can log in from a new device.
func (h *AdminHandler) ResetStudentSession(c *gin.Context) {
	studentID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.authService.ResetStudentSession(c.Request.Context(), studentID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

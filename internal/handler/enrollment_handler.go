package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records/internal/middleware"
	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/service"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
	"github.com/noah-isme/academic-records/pkg/response"
)

type enrollmentEngine interface {
	Enroll(ctx context.Context, req service.EnrollRequest) (*models.EnrollmentDetail, error)
	Unenroll(ctx context.Context, id int64) (*models.Enrollment, error)
	Get(ctx context.Context, id int64) (*models.EnrollmentDetail, error)
	List(ctx context.Context) ([]models.EnrollmentDetail, error)
	ListByStudentAndPeriod(ctx context.Context, studentID, periodID int64) (*models.StudentPeriodEnrollments, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentEngine
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentEngine) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	enrollments, err := h.enrollments.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, map[string]interface{}{"total": len(enrollments)})
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// Create godoc
// @Summary Enroll student
// @Description Enrolls a student in a subject for an academic period and takes one seat of the subject quota.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, enrollment.ID, map[string]interface{}{
		"studentId":        enrollment.StudentID,
		"subjectId":        enrollment.SubjectID,
		"academicPeriodId": enrollment.AcademicPeriodID,
	})
	response.Created(c, enrollment)
}

// Delete godoc
// @Summary Unenroll student
// @Description Removes the enrollment and returns its seat to the subject quota.
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Unenroll(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, enrollment.ID, map[string]interface{}{
		"studentId": enrollment.StudentID,
		"subjectId": enrollment.SubjectID,
	})
	response.JSON(c, http.StatusOK, enrollment)
}

// StudentPeriod godoc
// @Summary List a student's enrollments for a period
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Param periodId path int true "Academic period ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/periods/{periodId}/enrollments [get]
func (h *EnrollmentHandler) StudentPeriod(c *gin.Context) {
	studentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	periodID, ok := pathID(c, "periodId")
	if !ok {
		return
	}
	result, err := h.enrollments.ListByStudentAndPeriod(c.Request.Context(), studentID, periodID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid "+name))
		return 0, false
	}
	return id, true
}

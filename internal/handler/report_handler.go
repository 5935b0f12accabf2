package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/service"
	"github.com/noah-isme/academic-records/pkg/response"
)

type reportGenerator interface {
	EnrollmentReport(ctx context.Context) (*models.EnrollmentReport, error)
	Export(ctx context.Context, format string) (*service.ReportFile, error)
}

// ReportHandler exposes the enrollment report.
type ReportHandler struct {
	reports reportGenerator
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports reportGenerator) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Enrollments godoc
// @Summary Enrollment report
// @Description Students with at least one enrollment, ordered by number of enrolled subjects.
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /reports/enrollments [get]
func (h *ReportHandler) Enrollments(c *gin.Context) {
	report, err := h.reports.EnrollmentReport(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// Export godoc
// @Summary Export enrollment report
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /reports/enrollments/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	file, err := h.reports.Export(c.Request.Context(), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

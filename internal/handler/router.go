package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records/internal/middleware"
	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/service"
)

// Routes bundles what RegisterRoutes mounts.
type Routes struct {
	Enrollments *EnrollmentHandler
	Reports     *ReportHandler
	Metrics     *MetricsHandler
	Tokens      middleware.TokenValidator
	Audit       middleware.AuditRecorder
	Observer    *service.MetricsService
}

// RegisterRoutes mounts the probes at the root and the API under prefix.
// Mutations and reports require ADMIN; reads also admit TEACHER.
func RegisterRoutes(r *gin.Engine, prefix string, routes Routes) {
	r.Use(middleware.Metrics(routes.Observer))

	r.GET("/health", routes.Metrics.Health)
	r.GET("/ready", routes.Metrics.Ready)
	r.GET("/metrics", routes.Metrics.Prometheus)

	api := r.Group(prefix, middleware.JWT(routes.Tokens))
	admin := middleware.RequireRoles(models.RoleAdmin)
	readers := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	enrollments := api.Group("/enrollments")
	enrollments.GET("", readers, routes.Enrollments.List)
	enrollments.GET("/:id", readers, routes.Enrollments.Get)
	enrollments.POST("", admin, middleware.Audit(routes.Audit, models.AuditActionEnroll, models.AuditResourceEnrollment), routes.Enrollments.Create)
	enrollments.DELETE("/:id", admin, middleware.Audit(routes.Audit, models.AuditActionUnenroll, models.AuditResourceEnrollment), routes.Enrollments.Delete)

	api.GET("/students/:id/periods/:periodId/enrollments", readers, routes.Enrollments.StudentPeriod)

	reports := api.Group("/reports", admin)
	reports.GET("/enrollments", routes.Reports.Enrollments)
	reports.GET("/enrollments/export", routes.Reports.Export)
}

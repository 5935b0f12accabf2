package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/pkg/database"
)

var supportTables = []string{"audit_logs", "system_logs"}

// SupportRepository appends to the support store. Rows are never updated or
// deleted.
type SupportRepository struct {
	db *sqlx.DB
}

// NewSupportRepository constructs the repository.
func NewSupportRepository(db *sqlx.DB) *SupportRepository {
	return &SupportRepository{db: db}
}

// AppendAuditLog inserts the row and fills ID and CreatedAt. A set CreatedAt
// is kept so rows delivered late still carry the time of the event.
func (r *SupportRepository) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	const query = `INSERT INTO audit_logs (user_id, action, resource, resource_id, details, ip_address, request_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
        RETURNING id, created_at`
	// jsonb takes text; a []byte argument would be sent as bytea
	details := string(entry.Details)
	if details == "" {
		details = "{}"
	}
	var createdAt interface{}
	if !entry.CreatedAt.IsZero() {
		createdAt = entry.CreatedAt
	}
	row := database.Ext(ctx, r.db).QueryRowxContext(ctx, query,
		entry.UserID, entry.Action, entry.Resource, entry.ResourceID, details, entry.IPAddress, entry.RequestID, createdAt)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// AppendSystemLog inserts the row and fills ID and CreatedAt.
func (r *SupportRepository) AppendSystemLog(ctx context.Context, entry *models.SystemLog) error {
	const query = `INSERT INTO system_logs (level, message, context) VALUES ($1, $2, $3) RETURNING id, created_at`
	row := database.Ext(ctx, r.db).QueryRowxContext(ctx, query, entry.Level, entry.Message, entry.Context)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("append system log: %w", err)
	}
	return nil
}

// ListUserRefs returns the actor of every audit log that names one.
// Anonymous rows carry no reference and are skipped.
func (r *SupportRepository) ListUserRefs(ctx context.Context) ([]UserRefRow, error) {
	const query = `SELECT 'audit_logs' AS source, id AS row_id, '' AS email, user_id FROM audit_logs
        WHERE user_id IS NOT NULL
        ORDER BY id`
	var refs []UserRefRow
	if err := sqlx.SelectContext(ctx, database.Ext(ctx, r.db), &refs, query); err != nil {
		return nil, fmt.Errorf("list support user refs: %w", err)
	}
	return refs, nil
}

// Counts returns the row count of every support table.
func (r *SupportRepository) Counts(ctx context.Context) (Counts, error) {
	return countTables(ctx, database.Ext(ctx, r.db), supportTables)
}

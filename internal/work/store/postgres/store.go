// Package postgres persists work items in PostgreSQL.
//
// Comments and history live in child tables loaded with explicit queries.
// History is append-only: updates insert only the entries added since the
// aggregate was loaded. Writes are guarded by the aggregate version column.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"casework/internal/work/models"
	"casework/pkg/domain"
	"casework/pkg/platform/sentinel"
	txcontext "casework/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const workItemColumns = `
	id, application_id, work_item_number, status, priority, risk_level,
	assigned_to, assigned_to_name, assigned_at, last_reviewed_by,
	requires_approval, approved_by, approved_at, approval_notes,
	rejection_reason, rejected_at, due_date, next_refresh_date,
	last_refreshed_at, refresh_count, version, created_at, updated_at`

func (s *Store) Create(ctx context.Context, item *models.WorkItem) error {
	q := s.q(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO work_items (`+workItemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23)
	`,
		uuid.UUID(item.ID),
		string(item.ApplicationID),
		item.WorkItemNumber,
		string(item.Status),
		string(item.Priority),
		string(item.RiskLevel),
		nullString(item.AssignedTo),
		nullString(item.AssignedToName),
		nullTime(item.AssignedAt),
		nullString(item.LastReviewedBy),
		item.RequiresApproval,
		nullString(item.ApprovedBy),
		nullTime(item.ApprovedAt),
		nullString(item.ApprovalNotes),
		nullString(item.RejectionReason),
		nullTime(item.RejectedAt),
		item.DueDate,
		nullTime(item.NextRefreshDate),
		nullTime(item.LastRefreshedAt),
		item.RefreshCount,
		item.Version,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert work item: %w", err)
	}
	return s.syncChildren(ctx, q, item, 0)
}

func (s *Store) Get(ctx context.Context, id domain.WorkItemID) (*models.WorkItem, error) {
	items, err := s.list(ctx, `WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return items[0], nil
}

func (s *Store) GetByApplication(ctx context.Context, applicationID domain.CaseID) (*models.WorkItem, error) {
	items, err := s.list(ctx, `WHERE application_id = $1`, string(applicationID))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return items[0], nil
}

// Update writes the aggregate guarded by the version it was loaded with and
// bumps the version on success. A stale version yields ErrVersionMismatch.
func (s *Store) Update(ctx context.Context, item *models.WorkItem) error {
	q := s.q(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE work_items SET
			status = $1, priority = $2, risk_level = $3,
			assigned_to = $4, assigned_to_name = $5, assigned_at = $6,
			last_reviewed_by = $7, requires_approval = $8,
			approved_by = $9, approved_at = $10, approval_notes = $11,
			rejection_reason = $12, rejected_at = $13, due_date = $14,
			next_refresh_date = $15, last_refreshed_at = $16, refresh_count = $17,
			version = version + 1, updated_at = $18
		WHERE id = $19 AND version = $20
	`,
		string(item.Status),
		string(item.Priority),
		string(item.RiskLevel),
		nullString(item.AssignedTo),
		nullString(item.AssignedToName),
		nullTime(item.AssignedAt),
		nullString(item.LastReviewedBy),
		item.RequiresApproval,
		nullString(item.ApprovedBy),
		nullTime(item.ApprovedAt),
		nullString(item.ApprovalNotes),
		nullString(item.RejectionReason),
		nullTime(item.RejectedAt),
		item.DueDate,
		nullTime(item.NextRefreshDate),
		nullTime(item.LastRefreshedAt),
		item.RefreshCount,
		item.UpdatedAt,
		uuid.UUID(item.ID),
		item.Version,
	)
	if err != nil {
		return fmt.Errorf("update work item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update work item: rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM work_items WHERE id = $1)`,
			uuid.UUID(item.ID),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check work item exists: %w", err)
		}
		if exists {
			return sentinel.ErrVersionMismatch
		}
		return sentinel.ErrNotFound
	}

	var persisted int
	err = q.QueryRowContext(ctx,
		`SELECT count(*) FROM work_item_history WHERE work_item_id = $1`,
		uuid.UUID(item.ID),
	).Scan(&persisted)
	if err != nil {
		return fmt.Errorf("count work item history: %w", err)
	}
	if err := s.syncChildren(ctx, q, item, persisted); err != nil {
		return err
	}
	item.Version++
	return nil
}

func (s *Store) List(ctx context.Context, filter models.ListFilter) ([]*models.WorkItem, error) {
	where := ""
	var args []any
	and := func(clause string) {
		if where == "" {
			where = "WHERE " + clause
			return
		}
		where += " AND " + clause
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		and("status = $" + strconv.Itoa(len(args)))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		and("assigned_to = $" + strconv.Itoa(len(args)))
	}
	if filter.OverdueOnly {
		args = append(args, filter.Now)
		and("status NOT IN ('completed', 'declined') AND due_date < $" + strconv.Itoa(len(args)))
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		where += " ORDER BY created_at LIMIT $" + strconv.Itoa(len(args))
	} else {
		where += " ORDER BY created_at"
	}
	return s.list(ctx, where, args...)
}

func (s *Store) ListDueForRefresh(ctx context.Context, now time.Time) ([]*models.WorkItem, error) {
	return s.list(ctx, `
		WHERE status = 'completed' AND next_refresh_date IS NOT NULL AND next_refresh_date <= $1
		ORDER BY next_refresh_date
	`, now)
}

func (s *Store) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := s.q(ctx).QueryRowContext(ctx, `SELECT nextval('work_item_number_seq')`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next work item sequence: %w", err)
	}
	return seq, nil
}

func (s *Store) list(ctx context.Context, where string, args ...any) ([]*models.WorkItem, error) {
	q := s.q(ctx)
	rows, err := q.QueryContext(ctx, `SELECT `+workItemColumns+` FROM work_items `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("load work items: %w", err)
	}
	defer rows.Close()

	var items []*models.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate work items: %w", err)
	}

	for _, w := range items {
		if err := s.loadChildren(ctx, q, w); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func scanWorkItem(rows *sql.Rows) (*models.WorkItem, error) {
	var (
		w               models.WorkItem
		id              uuid.UUID
		applicationID   string
		assignedTo      sql.NullString
		assignedToName  sql.NullString
		assignedAt      sql.NullTime
		lastReviewedBy  sql.NullString
		approvedBy      sql.NullString
		approvedAt      sql.NullTime
		approvalNotes   sql.NullString
		rejectionReason sql.NullString
		rejectedAt      sql.NullTime
		nextRefreshDate sql.NullTime
		lastRefreshedAt sql.NullTime
	)
	err := rows.Scan(
		&id, &applicationID, &w.WorkItemNumber, &w.Status, &w.Priority, &w.RiskLevel,
		&assignedTo, &assignedToName, &assignedAt, &lastReviewedBy,
		&w.RequiresApproval, &approvedBy, &approvedAt, &approvalNotes,
		&rejectionReason, &rejectedAt, &w.DueDate, &nextRefreshDate,
		&lastRefreshedAt, &w.RefreshCount, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan work item: %w", err)
	}
	w.ID = domain.WorkItemID(id)
	w.ApplicationID = domain.CaseID(applicationID)
	w.AssignedTo = assignedTo.String
	w.AssignedToName = assignedToName.String
	w.LastReviewedBy = lastReviewedBy.String
	w.ApprovedBy = approvedBy.String
	w.ApprovalNotes = approvalNotes.String
	w.RejectionReason = rejectionReason.String
	w.AssignedAt = timePtr(assignedAt)
	w.ApprovedAt = timePtr(approvedAt)
	w.RejectedAt = timePtr(rejectedAt)
	w.NextRefreshDate = timePtr(nextRefreshDate)
	w.LastRefreshedAt = timePtr(lastRefreshedAt)
	return &w, nil
}

func (s *Store) loadChildren(ctx context.Context, q querier, w *models.WorkItem) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, author_id, author_name, body, created_at
		FROM work_item_comments
		WHERE work_item_id = $1
		ORDER BY created_at, id
	`, uuid.UUID(w.ID))
	if err != nil {
		return fmt.Errorf("load work item comments: %w", err)
	}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan work item comment: %w", err)
		}
		w.Comments = append(w.Comments, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate work item comments: %w", err)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT action, performed_by, performed_at, status
		FROM work_item_history
		WHERE work_item_id = $1
		ORDER BY id
	`, uuid.UUID(w.ID))
	if err != nil {
		return fmt.Errorf("load work item history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h models.HistoryEntry
		if err := rows.Scan(&h.Action, &h.PerformedBy, &h.PerformedAt, &h.Status); err != nil {
			return fmt.Errorf("scan work item history: %w", err)
		}
		w.History = append(w.History, h)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate work item history: %w", err)
	}
	return nil
}

// syncChildren upserts comments by id and appends history entries past the
// persisted count. History rows are never rewritten.
func (s *Store) syncChildren(ctx context.Context, q querier, w *models.WorkItem, persistedHistory int) error {
	for _, c := range w.Comments {
		_, err := q.ExecContext(ctx, `
			INSERT INTO work_item_comments (id, work_item_id, author_id, author_name, body, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, c.ID, uuid.UUID(w.ID), c.AuthorID, c.AuthorName, c.Body, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert work item comment: %w", err)
		}
	}
	if persistedHistory > len(w.History) {
		return nil
	}
	for _, h := range w.History[persistedHistory:] {
		_, err := q.ExecContext(ctx, `
			INSERT INTO work_item_history (work_item_id, action, performed_by, performed_at, status)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.UUID(w.ID), h.Action, h.PerformedBy, h.PerformedAt, string(h.Status))
		if err != nil {
			return fmt.Errorf("insert work item history: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	cp := t.Time
	return &cp
}

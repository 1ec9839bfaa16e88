// Package postgres persists risk assessments in PostgreSQL.
//
// Factors live in a child table and are loaded with an explicit query, then
// synced on update by delete-and-reinsert inside the caller's transaction.
// Writes are guarded by the aggregate version column.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"casework/internal/risk/models"
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

func (s *Store) Create(ctx context.Context, a *models.RiskAssessment) error {
	q := s.q(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO risk_assessments (
			id, case_id, partner_id, status, risk_score, overall_risk_level,
			is_manual_override, override_justification, notes,
			completed_by, completed_at, rejected_by, rejected_at,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		uuid.UUID(a.ID),
		string(a.CaseID),
		string(a.PartnerID),
		string(a.Status),
		a.RiskScore,
		string(a.OverallRiskLevel),
		a.IsManualOverride,
		nullString(a.OverrideJustification),
		nullString(a.Notes),
		nullString(a.CompletedBy),
		nullTime(a.CompletedAt),
		nullString(a.RejectedBy),
		nullTime(a.RejectedAt),
		a.Version,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert risk assessment: %w", err)
	}
	return s.insertFactors(ctx, q, a.ID, a.Factors)
}

func (s *Store) Get(ctx context.Context, id domain.AssessmentID) (*models.RiskAssessment, error) {
	return s.getBy(ctx, `id = $1`, uuid.UUID(id))
}

func (s *Store) GetByCase(ctx context.Context, caseID domain.CaseID) (*models.RiskAssessment, error) {
	return s.getBy(ctx, `case_id = $1`, string(caseID))
}

// Update writes the aggregate guarded by the version it was loaded with and
// bumps the version on success. A stale version yields ErrVersionMismatch.
func (s *Store) Update(ctx context.Context, a *models.RiskAssessment) error {
	q := s.q(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE risk_assessments SET
			status = $1, risk_score = $2, overall_risk_level = $3,
			is_manual_override = $4, override_justification = $5, notes = $6,
			completed_by = $7, completed_at = $8, rejected_by = $9, rejected_at = $10,
			version = version + 1, updated_at = $11
		WHERE id = $12 AND version = $13
	`,
		string(a.Status),
		a.RiskScore,
		string(a.OverallRiskLevel),
		a.IsManualOverride,
		nullString(a.OverrideJustification),
		nullString(a.Notes),
		nullString(a.CompletedBy),
		nullTime(a.CompletedAt),
		nullString(a.RejectedBy),
		nullTime(a.RejectedAt),
		a.UpdatedAt,
		uuid.UUID(a.ID),
		a.Version,
	)
	if err != nil {
		return fmt.Errorf("update risk assessment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update risk assessment: rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM risk_assessments WHERE id = $1)`,
			uuid.UUID(a.ID),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check risk assessment exists: %w", err)
		}
		if exists {
			return sentinel.ErrVersionMismatch
		}
		return sentinel.ErrNotFound
	}

	// Factor lists are small; resync wholesale rather than diffing.
	if _, err := q.ExecContext(ctx,
		`DELETE FROM risk_factors WHERE assessment_id = $1`,
		uuid.UUID(a.ID),
	); err != nil {
		return fmt.Errorf("clear risk factors: %w", err)
	}
	if err := s.insertFactors(ctx, q, a.ID, a.Factors); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (s *Store) getBy(ctx context.Context, where string, arg any) (*models.RiskAssessment, error) {
	q := s.q(ctx)
	var (
		a             models.RiskAssessment
		id            uuid.UUID
		caseID        string
		partnerID     string
		justification sql.NullString
		notes         sql.NullString
		completedBy   sql.NullString
		completedAt   sql.NullTime
		rejectedBy    sql.NullString
		rejectedAt    sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, case_id, partner_id, status, risk_score, overall_risk_level,
			is_manual_override, override_justification, notes,
			completed_by, completed_at, rejected_by, rejected_at,
			version, created_at, updated_at
		FROM risk_assessments
		WHERE `+where,
		arg,
	).Scan(
		&id, &caseID, &partnerID, &a.Status, &a.RiskScore, &a.OverallRiskLevel,
		&a.IsManualOverride, &justification, &notes,
		&completedBy, &completedAt, &rejectedBy, &rejectedAt,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load risk assessment: %w", err)
	}
	a.ID = domain.AssessmentID(id)
	a.CaseID = domain.CaseID(caseID)
	a.PartnerID = domain.PartnerID(partnerID)
	a.OverrideJustification = justification.String
	a.Notes = notes.String
	a.CompletedBy = completedBy.String
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	a.RejectedBy = rejectedBy.String
	if rejectedAt.Valid {
		t := rejectedAt.Time
		a.RejectedAt = &t
	}

	factors, err := s.loadFactors(ctx, q, a.ID)
	if err != nil {
		return nil, err
	}
	a.Factors = factors
	return &a, nil
}

func (s *Store) loadFactors(ctx context.Context, q querier, id domain.AssessmentID) ([]models.RiskFactor, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, factor_type, level, score, description, source, created_at
		FROM risk_factors
		WHERE assessment_id = $1
		ORDER BY created_at, id
	`, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("load risk factors: %w", err)
	}
	defer rows.Close()

	var factors []models.RiskFactor
	for rows.Next() {
		var (
			f      models.RiskFactor
			source sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.Type, &f.Level, &f.Score, &f.Description, &source, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan risk factor: %w", err)
		}
		f.Source = source.String
		factors = append(factors, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk factors: %w", err)
	}
	return factors, nil
}

func (s *Store) insertFactors(ctx context.Context, q querier, id domain.AssessmentID, factors []models.RiskFactor) error {
	for _, f := range factors {
		_, err := q.ExecContext(ctx, `
			INSERT INTO risk_factors (id, assessment_id, factor_type, level, score, description, source, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			f.ID,
			uuid.UUID(id),
			string(f.Type),
			string(f.Level),
			f.Score,
			f.Description,
			nullString(f.Source),
			f.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert risk factor: %w", err)
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

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/service/cohort"
)

// CohortRepo implements cohort.Repository against PostgreSQL.
type CohortRepo struct{ db *sql.DB }

// NewCohortRepo creates a Postgres-backed cohort repository.
func NewCohortRepo(db *sql.DB) *CohortRepo { return &CohortRepo{db: db} }

// UpsertDefinitions writes each definition by name, leaving cached
// statistics untouched.
func (r *CohortRepo) UpsertDefinitions(ctx context.Context, defs []domain.Cohort) (int, error) {
	created := 0
	for _, d := range defs {
		thresholds, err := json.Marshal(d.Thresholds)
		if err != nil {
			return created, fmt.Errorf("marshal thresholds: %w", err)
		}
		var inserted bool
		err = r.db.QueryRowContext(ctx, `
			INSERT INTO cohorts (id, name, description, priority, thresholds)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (name) DO UPDATE SET
				description = EXCLUDED.description,
				priority    = EXCLUDED.priority,
				thresholds  = EXCLUDED.thresholds,
				updated_at  = NOW()
			RETURNING (xmax = 0)
		`, uuid.New().String(), d.Name, d.Description, d.Priority, thresholds).Scan(&inserted)
		if err != nil {
			return created, fmt.Errorf("upsert cohort %s: %w", d.Name, err)
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// Snapshots returns the most recent lead row of every hashed line.
func (r *CohortRepo) Snapshots(ctx context.Context) ([]cohort.LeadSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (hashed_line)
			id, hashed_line, dormant_score, estimated_value, contact_count,
			last_contact_at, created_at, expires_at
		FROM leads
		ORDER BY hashed_line, lead_day DESC`)
	if err != nil {
		return nil, fmt.Errorf("query lead snapshots: %w", err)
	}
	defer rows.Close()

	var out []cohort.LeadSnapshot
	for rows.Next() {
		var (
			s             cohort.LeadSnapshot
			estimated     sql.NullFloat64
			lastContactAt sql.NullTime
		)
		if err := rows.Scan(&s.LeadID, &s.HashedLine, &s.DormantScore, &estimated, &s.ContactCount,
			&lastContactAt, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan lead snapshot: %w", err)
		}
		s.EstimatedValue = nullFloat(estimated)
		s.LastContactAt = nullTime(lastContactAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplaceMemberships swaps the current membership set in one transaction.
func (r *CohortRepo) ReplaceMemberships(ctx context.Context, members []domain.CohortMember, stats []domain.Cohort, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE cohort_members SET removed_at = $1 WHERE removed_at IS NULL`, at); err != nil {
		return fmt.Errorf("remove memberships: %w", err)
	}

	if len(members) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO cohort_members
				(id, cohort_name, lead_id, hashed_line, recency_days, frequency,
				 monetary, dormant_score, assigned_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
		if err != nil {
			return fmt.Errorf("prepare insert member: %w", err)
		}
		defer stmt.Close()

		for _, m := range members {
			if _, err := stmt.ExecContext(ctx, m.ID, m.CohortName, m.LeadID, m.HashedLine,
				m.Snapshot.RecencyDays, m.Snapshot.Frequency, m.Snapshot.Monetary,
				m.Snapshot.DormantScore, m.AssignedAt); err != nil {
				return fmt.Errorf("insert member: %w", err)
			}
		}
	}

	for _, c := range stats {
		if _, err := tx.ExecContext(ctx, `
			UPDATE cohorts SET
				member_count        = $2,
				avg_dormant_score   = $3,
				avg_estimated_value = $4,
				last_refresh_at     = $5,
				updated_at          = $5
			WHERE name = $1
		`, c.Name, c.MemberCount, c.AvgDormantScore, c.AvgEstimatedValue, at); err != nil {
			return fmt.Errorf("update cohort stats %s: %w", c.Name, err)
		}
	}
	return tx.Commit()
}

// Members returns a page of current members and the total count.
func (r *CohortRepo) Members(ctx context.Context, name string, limit, offset int) ([]domain.CohortMember, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cohort_members WHERE cohort_name = $1 AND removed_at IS NULL
	`, name).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, cohort_name, lead_id, hashed_line, recency_days, frequency,
		       monetary, dormant_score, assigned_at
		FROM cohort_members
		WHERE cohort_name = $1 AND removed_at IS NULL
		ORDER BY dormant_score DESC, id
		LIMIT $2 OFFSET $3
	`, name, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var out []domain.CohortMember
	for rows.Next() {
		var m domain.CohortMember
		if err := rows.Scan(&m.ID, &m.CohortName, &m.LeadID, &m.HashedLine, &m.Snapshot.RecencyDays,
			&m.Snapshot.Frequency, &m.Snapshot.Monetary, &m.Snapshot.DormantScore, &m.AssignedAt); err != nil {
			return nil, 0, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// List returns cohort definitions ordered by precedence.
func (r *CohortRepo) List(ctx context.Context) ([]domain.Cohort, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, priority, thresholds, member_count,
		       avg_dormant_score, avg_estimated_value, last_refresh_at
		FROM cohorts
		ORDER BY priority`)
	if err != nil {
		return nil, fmt.Errorf("list cohorts: %w", err)
	}
	defer rows.Close()

	var out []domain.Cohort
	for rows.Next() {
		var (
			c          domain.Cohort
			thresholds []byte
			refreshed  sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Priority, &thresholds, &c.MemberCount,
			&c.AvgDormantScore, &c.AvgEstimatedValue, &refreshed); err != nil {
			return nil, fmt.Errorf("scan cohort: %w", err)
		}
		if len(thresholds) > 0 {
			if err := json.Unmarshal(thresholds, &c.Thresholds); err != nil {
				return nil, fmt.Errorf("decode thresholds: %w", err)
			}
		}
		c.LastRefreshAt = nullTime(refreshed)
		out = append(out, c)
	}
	return out, rows.Err()
}

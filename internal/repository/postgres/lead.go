package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/service/lead"
)

const leadDayLayout = "2006-01-02"

// leadColumns is the select list understood by scanLead.
const leadColumns = `
	l.id, l.hashed_line, l.lead_day, l.dormant_score, l.eligible, l.activation_window_days,
	l.next_action, l.exclusions, l.signals, l.estimated_value, l.contact_count,
	l.last_contact_at, l.created_at, l.updated_at, l.expires_at`

// LeadRepo implements lead.Repository against PostgreSQL.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

// Upsert relies on the (hashed_line, lead_day) unique constraint so that
// concurrent evaluations of one line cannot create two rows for a day.
// xmax is zero only on a freshly inserted tuple.
func (r *LeadRepo) Upsert(ctx context.Context, l *domain.Lead) (bool, error) {
	signals, err := json.Marshal(l.Signals)
	if err != nil {
		return false, fmt.Errorf("marshal signals: %w", err)
	}

	var (
		inserted      bool
		estimated     sql.NullFloat64
		lastContactAt sql.NullTime
	)
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO leads
			(id, hashed_line, lead_day, dormant_score, eligible, activation_window_days,
			 next_action, exclusions, signals, estimated_value, contact_count, last_contact_at,
			 created_at, updated_at, expires_at)
		SELECT $1, $2, $3::date, $4, $5, $6, $7, $8,
		       jsonb_set($9::jsonb, '{history,contact_count}', to_jsonb(COALESCE(prev.contact_count, 0))),
		       prev.estimated_value, COALESCE(prev.contact_count, 0), prev.last_contact_at,
		       $10, $10, $11
		FROM (SELECT 1) AS seed
		LEFT JOIN LATERAL (
			SELECT estimated_value, contact_count, last_contact_at
			FROM leads
			WHERE hashed_line = $2 AND lead_day < $3::date
			ORDER BY lead_day DESC
			LIMIT 1
		) prev ON TRUE
		ON CONFLICT (hashed_line, lead_day) DO UPDATE SET
			dormant_score          = EXCLUDED.dormant_score,
			eligible               = EXCLUDED.eligible,
			activation_window_days = EXCLUDED.activation_window_days,
			next_action            = EXCLUDED.next_action,
			exclusions             = EXCLUDED.exclusions,
			signals                = jsonb_set(EXCLUDED.signals, '{history,contact_count}', to_jsonb(leads.contact_count)),
			updated_at             = EXCLUDED.updated_at
		RETURNING id, created_at, expires_at, contact_count, last_contact_at, estimated_value, (xmax = 0)
	`, l.ID, l.HashedLine, l.LeadDay.Format(leadDayLayout), l.DormantScore, l.Eligible,
		l.ActivationWindowDays, l.NextAction, pq.Array(exclusionStrings(l.Exclusions)), signals,
		l.UpdatedAt, l.ExpiresAt,
	).Scan(&l.ID, &l.CreatedAt, &l.ExpiresAt, &l.ContactCount, &lastContactAt, &estimated, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert lead: %w", err)
	}
	l.Signals.History.ContactCount = l.ContactCount
	l.LastContactAt = nullTime(lastContactAt)
	l.EstimatedValue = nullFloat(estimated)
	return inserted, nil
}

func (r *LeadRepo) Get(ctx context.Context, id string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads l WHERE l.id = $1`, id)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, lead.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

func (r *LeadRepo) Latest(ctx context.Context, hashedLine string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads l
		WHERE l.hashed_line = $1
		ORDER BY l.lead_day DESC
		LIMIT 1`, hashedLine)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, lead.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest lead: %w", err)
	}
	return l, nil
}

func (r *LeadRepo) Query(ctx context.Context, f domain.LeadFilter) ([]domain.Lead, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(f.Actions) > 0 {
		actions := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			actions[i] = string(a)
		}
		add("l.next_action = ANY($%d)", pq.Array(actions))
	}
	if f.Cohort != "" {
		add(`EXISTS (SELECT 1 FROM cohort_members cm
			WHERE cm.lead_id = l.id AND cm.removed_at IS NULL AND cm.cohort_name = $%d)`, f.Cohort)
	}
	if f.CreatedAfter != nil {
		add("l.created_at >= $%d", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		add("l.created_at < $%d", *f.CreatedBefore)
	}
	if f.EligibleOnly {
		conds = append(conds, "l.eligible")
	}
	if f.MinScore > 0 {
		add("l.dormant_score >= $%d", f.MinScore)
	}
	if f.ActiveAt != nil {
		add("l.expires_at > $%d", *f.ActiveAt)
	}

	q := `SELECT ` + leadColumns + ` FROM leads l`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY l.dormant_score DESC, l.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return r.queryLeads(ctx, "query leads", q, args...)
}

// Stale returns only each line's latest lead so a line is refreshed once.
func (r *LeadRepo) Stale(ctx context.Context, actions []domain.NextAction, now time.Time, limit int) ([]domain.Lead, error) {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return r.queryLeads(ctx, "stale leads", `
		SELECT `+leadColumns+`
		FROM leads l
		WHERE l.next_action = ANY($1)
		  AND l.expires_at > $2
		  AND l.lead_day = (SELECT MAX(l2.lead_day) FROM leads l2 WHERE l2.hashed_line = l.hashed_line)
		ORDER BY l.updated_at ASC
		LIMIT $3`, pq.Array(names), now, limit)
}

// DeleteExpired deletes by primary key through a bounded subselect so each
// statement only locks the rows it removes.
func (r *LeadRepo) DeleteExpired(ctx context.Context, before time.Time, batch int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM leads
		WHERE id IN (
			SELECT id FROM leads
			WHERE expires_at < $1
			ORDER BY id
			LIMIT $2
		)`, before, batch)
	if err != nil {
		return 0, fmt.Errorf("delete expired leads: %w", err)
	}
	return res.RowsAffected()
}

func (r *LeadRepo) RecordContact(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET contact_count = contact_count + 1,
		    signals = jsonb_set(signals, '{history,contact_count}', to_jsonb(contact_count + 1)),
		    last_contact_at = GREATEST(COALESCE(last_contact_at, $2), $2)
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("record contact: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return lead.ErrNotFound
	}
	return nil
}

func (r *LeadRepo) SetEstimatedValue(ctx context.Context, id string, value float64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE leads SET estimated_value = $2 WHERE id = $1`, id, value)
	if err != nil {
		return fmt.Errorf("set estimated value: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return lead.ErrNotFound
	}
	return nil
}

func (r *LeadRepo) queryLeads(ctx context.Context, op, q string, args ...interface{}) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner) (*domain.Lead, error) {
	var (
		l             domain.Lead
		exclusions    []string
		signals       []byte
		estimated     sql.NullFloat64
		lastContactAt sql.NullTime
	)
	err := row.Scan(
		&l.ID, &l.HashedLine, &l.LeadDay, &l.DormantScore, &l.Eligible, &l.ActivationWindowDays,
		&l.NextAction, pq.Array(&exclusions), &signals, &estimated, &l.ContactCount,
		&lastContactAt, &l.CreatedAt, &l.UpdatedAt, &l.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	l.Exclusions = make([]domain.ExclusionReason, len(exclusions))
	for i, e := range exclusions {
		l.Exclusions[i] = domain.ExclusionReason(e)
	}
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &l.Signals); err != nil {
			return nil, fmt.Errorf("decode signals: %w", err)
		}
	}
	// The column is authoritative for rows written before the signals
	// snapshot carried the count.
	l.Signals.History.ContactCount = l.ContactCount
	l.EstimatedValue = nullFloat(estimated)
	l.LastContactAt = nullTime(lastContactAt)
	return &l, nil
}

func exclusionStrings(in []domain.ExclusionReason) []string {
	out := make([]string, len(in))
	for i, e := range in {
		out[i] = string(e)
	}
	return out
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

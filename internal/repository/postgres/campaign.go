package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/service/campaign"
)

const campaignColumns = `
	id, name, target_filter, template_id, channel, max_per_hour, batch_size, status,
	total_sent, total_delivered, total_clicked, total_converted,
	scheduled_at, started_at, completed_at, created_at, updated_at`

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	where := ""
	args := []interface{}{}
	if f.Status != "" {
		where = " WHERE status = $1"
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// Due returns scheduled campaigns whose send time has passed, oldest first.
func (r *CampaignRepo) Due(ctx context.Context, at time.Time, limit int) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+campaignColumns+` FROM campaigns
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at LIMIT $2`, at, limit)
	if err != nil {
		return nil, fmt.Errorf("due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	filter, err := json.Marshal(c.Filter)
	if err != nil {
		return fmt.Errorf("marshal filter: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, name, target_filter, template_id, channel, max_per_hour, batch_size,
			 status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, c.ID, c.Name, filter, c.TemplateID, c.Channel, c.MaxPerHour, c.BatchSize, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// Transition is a compare-and-set on status so two concurrent senders
// cannot both move a campaign to sending.
func (r *CampaignRepo) Transition(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET
			status       = $1,
			started_at   = CASE WHEN $1 = 'sending' THEN $2 ELSE started_at END,
			completed_at = CASE WHEN $1 IN ('completed', 'cancelled') THEN $2 ELSE completed_at END,
			updated_at   = $2
		WHERE id = $3 AND status = ANY($4)
	`, to, at, id, pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("transition campaign: %w", err)
	}
	return r.checkMoved(ctx, res, id)
}

func (r *CampaignRepo) Schedule(ctx context.Context, id string, when, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = 'scheduled', scheduled_at = $1, updated_at = $2
		WHERE id = $3 AND status IN ('draft', 'scheduled')
	`, when, at, id)
	if err != nil {
		return fmt.Errorf("schedule campaign: %w", err)
	}
	return r.checkMoved(ctx, res, id)
}

func (r *CampaignRepo) Complete(ctx context.Context, id string, totals campaign.Totals, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET
			status          = 'completed',
			total_sent      = $1,
			total_delivered = $2,
			started_at      = COALESCE(started_at, $3),
			completed_at    = $3,
			updated_at      = $3
		WHERE id = $4 AND status IN ('draft', 'scheduled', 'sending')
	`, totals.Sent, totals.Delivered, at, id)
	if err != nil {
		return fmt.Errorf("complete campaign: %w", err)
	}
	return r.checkMoved(ctx, res, id)
}

// checkMoved distinguishes a missing campaign from a status mismatch when
// a guarded update touched no rows.
func (r *CampaignRepo) checkMoved(ctx context.Context, res sql.Result, id string) error {
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return campaign.ErrInvalidTransition
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	var (
		c                                 domain.Campaign
		filter                            []byte
		scheduledAt, startedAt, completed sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.Name, &filter, &c.TemplateID, &c.Channel, &c.MaxPerHour, &c.BatchSize, &c.Status,
		&c.TotalSent, &c.TotalDelivered, &c.TotalClicked, &c.TotalConverted,
		&scheduledAt, &startedAt, &completed, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &c.Filter); err != nil {
			return nil, fmt.Errorf("decode filter: %w", err)
		}
	}
	c.ScheduledAt = nullTime(scheduledAt)
	c.StartedAt = nullTime(startedAt)
	c.CompletedAt = nullTime(completed)
	return &c, nil
}

func statusStrings(in []domain.CampaignStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// TemplateRepo implements campaign.TemplateRepository.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template store.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

func (r *TemplateRepo) GetTemplate(ctx context.Context, id string) (*domain.MessageTemplate, error) {
	var (
		t        domain.MessageTemplate
		variants []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, channel, subject, body, variants
		FROM message_templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Channel, &t.Subject, &t.Body, &variants)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &t.Variants); err != nil {
			return nil, fmt.Errorf("decode variants: %w", err)
		}
	}
	return &t, nil
}

func (r *TemplateRepo) CreateTemplate(ctx context.Context, t *domain.MessageTemplate) error {
	variants := t.Variants
	if variants == nil {
		variants = map[string]string{}
	}
	raw, err := json.Marshal(variants)
	if err != nil {
		return fmt.Errorf("marshal variants: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO message_templates (id, name, channel, subject, body, variants)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Name, t.Channel, t.Subject, t.Body, raw); err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// AttemptRepo implements campaign.AttemptRepository.
type AttemptRepo struct{ db *sql.DB }

// NewAttemptRepo creates a Postgres-backed contact attempt log.
func NewAttemptRepo(db *sql.DB) *AttemptRepo { return &AttemptRepo{db: db} }

func (r *AttemptRepo) Record(ctx context.Context, a *domain.ContactAttempt) error {
	var deliveredAt sql.NullTime
	if a.DeliveredAt != nil {
		deliveredAt = sql.NullTime{Time: *a.DeliveredAt, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO contact_attempts
			(id, campaign_id, lead_id, channel, variant, tracking_token, status,
			 provider_id, error, created_at, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.CampaignID, a.LeadID, a.Channel, a.Variant, a.TrackingToken, a.Status,
		nullString(a.ProviderID), nullString(a.Error), a.CreatedAt, deliveredAt); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// MarkClicked flips a sent or delivered attempt and bumps the campaign total
// in one statement, so a click is counted at most once and never for a
// failed attempt.
func (r *AttemptRepo) MarkClicked(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH clicked AS (
			UPDATE contact_attempts SET status = 'clicked'
			WHERE tracking_token = $1 AND status IN ('sent', 'delivered')
			RETURNING campaign_id
		)
		UPDATE campaigns SET total_clicked = total_clicked + 1, updated_at = $2
		FROM clicked WHERE campaigns.id = clicked.campaign_id
	`, token, at)
	if err != nil {
		return false, fmt.Errorf("mark clicked: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

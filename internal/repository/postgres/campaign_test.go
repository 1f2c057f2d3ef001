package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/service/campaign"
)

func campaignRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "target_filter", "template_id", "channel", "max_per_hour", "batch_size", "status",
		"total_sent", "total_delivered", "total_clicked", "total_converted",
		"scheduled_at", "started_at", "completed_at", "created_at", "updated_at",
	})
}

func TestCampaignRepo_Get(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	mock.ExpectQuery(`FROM campaigns WHERE id = \$1`).
		WithArgs("c-1").
		WillReturnRows(campaignRow().AddRow("c-1", "spring", []byte(`{"actions":["send_nudge"],"cohort":"dormant","eligible_only":true}`),
			"tpl-1", "sms", 100, 10, "draft", 0, 0, 0, 0, nil, nil, nil, testNow, testNow))

	c, err := repo.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelSMS, c.Channel)
	assert.Equal(t, domain.CampaignDraft, c.Status)
	assert.Equal(t, "dormant", c.Filter.Cohort)
	assert.True(t, c.Filter.EligibleOnly)
	assert.Equal(t, []domain.NextAction{domain.ActionSendNudge}, c.Filter.Actions)
	assert.Nil(t, c.StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_GetNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	mock.ExpectQuery(`FROM campaigns`).WithArgs("nope").WillReturnRows(campaignRow())

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCampaignRepo_ListByStatus(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM campaigns WHERE status = \$1`).
		WithArgs("completed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM campaigns WHERE status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("completed", 20, 0).
		WillReturnRows(campaignRow().AddRow("c-1", "spring", []byte(`{}`), "tpl-1", "email", 100, 10, "completed",
			90, 80, 5, 1, nil, testNow, testNow, testNow, testNow))

	out, total, err := repo.List(context.Background(), campaign.ListFilter{Status: "completed", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, 80, out[0].TotalDelivered)
	require.NotNil(t, out[0].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_Due(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	when := testNow.Add(-time.Minute)
	mock.ExpectQuery(`status = 'scheduled' AND scheduled_at <= \$1`).
		WithArgs(testNow, 10).
		WillReturnRows(campaignRow().AddRow("c-2", "june", []byte(`{}`),
			"tpl-1", "email", 500, 50, "scheduled", 0, 0, 0, 0, when, nil, nil, testNow, testNow))

	due, err := repo.Due(context.Background(), testNow, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "c-2", due[0].ID)
	require.NotNil(t, due[0].ScheduledAt)
	assert.True(t, due[0].ScheduledAt.Equal(when))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_Create(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	mock.ExpectExec(`INSERT INTO campaigns`).
		WithArgs("c-1", "spring", sqlmock.AnyArg(), "tpl-1", domain.ChannelPush, 50, 5, domain.CampaignDraft, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.Campaign{
		ID: "c-1", Name: "spring", TemplateID: "tpl-1", Channel: domain.ChannelPush,
		MaxPerHour: 50, BatchSize: 5, Status: domain.CampaignDraft, CreatedAt: testNow,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_Transition(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	mock.ExpectExec(`UPDATE campaigns SET .* WHERE id = \$3 AND status = ANY\(\$4\)`).
		WithArgs(domain.CampaignSending, testNow, "c-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Transition(context.Background(), "c-1",
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled}, domain.CampaignSending, testNow)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_TransitionRejected(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	mock.ExpectExec(`UPDATE campaigns SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Transition(context.Background(), "c-1",
		[]domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignCancelled, testNow)
	assert.ErrorIs(t, err, campaign.ErrInvalidTransition)

	mock.ExpectExec(`UPDATE campaigns SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("c-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err = repo.Transition(context.Background(), "c-2",
		[]domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignCancelled, testNow)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_Complete(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	mock.ExpectExec(`UPDATE campaigns SET\s+status\s+= 'completed'`).
		WithArgs(100, 91, testNow, "c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Complete(context.Background(), "c-1", campaign.Totals{Sent: 100, Delivered: 91}, testNow))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_Schedule(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	when := testNow.Add(24 * time.Hour)
	mock.ExpectExec(`UPDATE campaigns SET status = 'scheduled'`).
		WithArgs(when, testNow, "c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Schedule(context.Background(), "c-1", when, testNow))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepo_RoundTrip(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewTemplateRepo(db)

	mock.ExpectExec(`INSERT INTO message_templates`).
		WithArgs("t-1", "nudge", domain.ChannelSMS, "", "Hi", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.CreateTemplate(context.Background(),
		&domain.MessageTemplate{ID: "t-1", Name: "nudge", Channel: domain.ChannelSMS, Body: "Hi"}))

	mock.ExpectQuery(`FROM message_templates WHERE id = \$1`).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "channel", "subject", "body", "variants"}).
			AddRow("t-1", "nudge", "sms", "", "Hi", []byte(`{"b":"Hey"}`)))
	tpl, err := repo.GetTemplate(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "Hey"}, tpl.Variants)

	mock.ExpectQuery(`FROM message_templates`).WithArgs("t-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "channel", "subject", "body", "variants"}))
	_, err = repo.GetTemplate(context.Background(), "t-2")
	assert.ErrorIs(t, err, campaign.ErrTemplateNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepo_Record(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewAttemptRepo(db)

	mock.ExpectExec(`INSERT INTO contact_attempts`).
		WithArgs("a-1", "c-1", "l-1", domain.ChannelSMS, "control", "a-1.sig", domain.AttemptFailed,
			sqlmock.AnyArg(), sqlmock.AnyArg(), testNow, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Record(context.Background(), &domain.ContactAttempt{
		ID: "a-1", CampaignID: "c-1", LeadID: "l-1", Channel: domain.ChannelSMS, Variant: "control",
		TrackingToken: "a-1.sig", Status: domain.AttemptFailed, Error: "rejected", CreatedAt: testNow,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepo_MarkClicked(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewAttemptRepo(db)

	mock.ExpectExec(`WITH clicked AS \( UPDATE contact_attempts SET status = 'clicked' WHERE tracking_token = \$1 AND status IN \('sent', 'delivered'\)`).
		WithArgs("tok", testNow).WillReturnResult(sqlmock.NewResult(0, 1))
	first, err := repo.MarkClicked(context.Background(), "tok", testNow)
	require.NoError(t, err)
	assert.True(t, first)

	mock.ExpectExec(`WITH clicked AS`).WithArgs("tok", testNow).WillReturnResult(sqlmock.NewResult(0, 0))
	first, err = repo.MarkClicked(context.Background(), "tok", testNow)
	require.NoError(t, err)
	assert.False(t, first)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepo_MarkClickedIgnoresFailedAttempt(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// A failed attempt matches no row, so the campaign total is untouched.
	mock.ExpectExec(`status IN \('sent', 'delivered'\)`).
		WithArgs("failed-tok", testNow).WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := NewAttemptRepo(db).MarkClicked(context.Background(), "failed-tok", testNow)
	require.NoError(t, err)
	assert.False(t, first)
	assert.NoError(t, mock.ExpectationsWereMet())
}

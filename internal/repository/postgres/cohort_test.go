package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/service/cohort"
)

func TestCohortRepo_UpsertDefinitions(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCohortRepo(db)

	defs := cohort.Definitions()[:2]
	mock.ExpectQuery(`INSERT INTO cohorts .* ON CONFLICT \(name\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), domain.CohortChurned, sqlmock.AnyArg(), 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO cohorts`).
		WithArgs(sqlmock.AnyArg(), domain.CohortDormant, sqlmock.AnyArg(), 2, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(false))

	created, err := repo.UpsertDefinitions(context.Background(), defs)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCohortRepo_Snapshots(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCohortRepo(db)

	contacted := testNow.Add(-48 * time.Hour)
	mock.ExpectQuery(`SELECT DISTINCT ON \(hashed_line\)`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "hashed_line", "dormant_score", "estimated_value", "contact_count",
			"last_contact_at", "created_at", "expires_at",
		}).
			AddRow("l-1", "h1", 0.7, 180.5, 2, contacted, testNow, testNow.Add(time.Hour)).
			AddRow("l-2", "h2", 0.1, nil, 0, nil, testNow, testNow.Add(time.Hour)))

	snaps, err := repo.Snapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.NotNil(t, snaps[0].EstimatedValue)
	assert.Equal(t, 180.5, *snaps[0].EstimatedValue)
	assert.Equal(t, contacted, *snaps[0].LastContactAt)
	assert.Nil(t, snaps[1].EstimatedValue)
	assert.Nil(t, snaps[1].LastContactAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCohortRepo_ReplaceMemberships(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCohortRepo(db)

	members := []domain.CohortMember{{
		ID: "m-1", CohortName: domain.CohortDormant, LeadID: "l-1", HashedLine: "h1",
		Snapshot:   domain.RFM{RecencyDays: 70, Frequency: 1, Monetary: 90, DormantScore: 0.8},
		AssignedAt: testNow,
	}}
	stats := []domain.Cohort{{Name: domain.CohortDormant, MemberCount: 1, AvgDormantScore: 0.8, AvgEstimatedValue: 90}}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE cohort_members SET removed_at = \$1 WHERE removed_at IS NULL`).
		WithArgs(testNow).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectPrepare(`INSERT INTO cohort_members`)
	mock.ExpectExec(`INSERT INTO cohort_members`).
		WithArgs("m-1", domain.CohortDormant, "l-1", "h1", 70, 1, 90.0, 0.8, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE cohorts SET`).
		WithArgs(domain.CohortDormant, 1, 0.8, 90.0, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceMemberships(context.Background(), members, stats, testNow))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCohortRepo_ReplaceMembershipsRollsBack(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCohortRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE cohort_members`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(`INSERT INTO cohort_members`)
	mock.ExpectExec(`INSERT INTO cohort_members`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.ReplaceMemberships(context.Background(),
		[]domain.CohortMember{{ID: "m-1", CohortName: domain.CohortLowValue}}, nil, testNow)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCohortRepo_Members(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCohortRepo(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM cohort_members`).
		WithArgs(domain.CohortAtRisk).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`FROM cohort_members`).
		WithArgs(domain.CohortAtRisk, 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "cohort_name", "lead_id", "hashed_line", "recency_days", "frequency",
			"monetary", "dormant_score", "assigned_at",
		}).AddRow("m-3", domain.CohortAtRisk, "l-3", "h3", 40, 1, 120.0, 0.3, testNow))

	members, total, err := repo.Members(context.Background(), domain.CohortAtRisk, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, members, 1)
	assert.Equal(t, 40, members[0].Snapshot.RecencyDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCohortRepo_List(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCohortRepo(db)

	mock.ExpectQuery(`FROM cohorts\s+ORDER BY priority`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "priority", "thresholds", "member_count",
			"avg_dormant_score", "avg_estimated_value", "last_refresh_at",
		}).AddRow("c-1", domain.CohortDormant, "d", 2, []byte(`{"min_recency_days":61,"min_dormant_score":0.6}`),
			5, 0.7, 80.0, testNow))

	cohorts, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, cohorts, 1)
	require.NotNil(t, cohorts[0].Thresholds.MinRecencyDays)
	assert.Equal(t, 61, *cohorts[0].Thresholds.MinRecencyDays)
	assert.Equal(t, testNow, *cohorts[0].LastRefreshAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

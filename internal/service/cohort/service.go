package cohort

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/metrics"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
)

// RebuildResult summarizes one full rebuild.
type RebuildResult struct {
	CohortsCreated  int            `json:"cohorts_created"`
	MembersAssigned int            `json:"members_assigned"`
	Counts          map[string]int `json:"counts"`
	Duration        time.Duration  `json:"duration"`
}

// MembersPage is one page of a cohort's current members.
type MembersPage struct {
	Cohort  string                `json:"cohort"`
	Page    int                   `json:"page"`
	Limit   int                   `json:"limit"`
	Total   int                   `json:"total"`
	Members []domain.CohortMember `json:"members"`
}

// Classifier rebuilds cohort memberships.
type Classifier struct {
	repo    Repository
	metrics metrics.Recorder
	now     func() time.Time
}

// NewClassifier creates a classifier. A nil recorder disables metrics.
func NewClassifier(repo Repository, rec metrics.Recorder) *Classifier {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Classifier{repo: repo, metrics: rec, now: time.Now}
}

// Rebuild upserts the definitions, classifies every lead sequentially and
// replaces all memberships in one step.
func (c *Classifier) Rebuild(ctx context.Context) (*RebuildResult, error) {
	start := c.now()
	defs := Definitions()

	created, err := c.repo.UpsertDefinitions(ctx, defs)
	if err != nil {
		return nil, fmt.Errorf("upsert cohort definitions: %w", err)
	}

	snapshots, err := c.repo.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load lead snapshots: %w", err)
	}

	type agg struct {
		n            int
		score, value float64
	}
	totals := make(map[string]*agg, len(defs))
	for _, d := range defs {
		totals[d.Name] = &agg{}
	}

	members := make([]domain.CohortMember, 0, len(snapshots))
	for _, s := range snapshots {
		rfm := ComputeRFM(s, start)
		name := Classify(rfm, s.ExpiresAt, start)
		members = append(members, domain.CohortMember{
			ID:         uuid.New().String(),
			CohortName: name,
			LeadID:     s.LeadID,
			HashedLine: s.HashedLine,
			Snapshot:   rfm,
			AssignedAt: start,
		})
		a := totals[name]
		a.n++
		a.score += rfm.DormantScore
		a.value += rfm.Monetary
	}

	stats := make([]domain.Cohort, 0, len(defs))
	counts := make(map[string]int, len(defs))
	for _, d := range defs {
		a := totals[d.Name]
		d.MemberCount = a.n
		if a.n > 0 {
			d.AvgDormantScore = a.score / float64(a.n)
			d.AvgEstimatedValue = a.value / float64(a.n)
		}
		refreshed := start
		d.LastRefreshAt = &refreshed
		stats = append(stats, d)
		counts[d.Name] = a.n
	}

	if err := c.repo.ReplaceMemberships(ctx, members, stats, start); err != nil {
		return nil, fmt.Errorf("replace memberships: %w", err)
	}

	res := &RebuildResult{
		CohortsCreated:  created,
		MembersAssigned: len(members),
		Counts:          counts,
		Duration:        c.now().Sub(start),
	}
	c.metrics.CohortsRebuilt(res.MembersAssigned)
	logger.Info("cohorts rebuilt", "members", res.MembersAssigned, "created", created,
		"duration", res.Duration.String())
	return res, nil
}

// Members returns page (1-based) of a cohort's current members.
func (c *Classifier) Members(ctx context.Context, name string, page, limit int) (*MembersPage, error) {
	if !known(name) {
		return nil, ErrUnknownCohort
	}
	if page < 1 || limit < 1 || limit > 1000 {
		return nil, ErrInvalidPage
	}
	members, total, err := c.repo.Members(ctx, name, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("cohort members: %w", err)
	}
	return &MembersPage{Cohort: name, Page: page, Limit: limit, Total: total, Members: members}, nil
}

// List returns the cohorts with their cached statistics.
func (c *Classifier) List(ctx context.Context) ([]domain.Cohort, error) {
	return c.repo.List(ctx)
}

func known(name string) bool {
	for _, d := range Definitions() {
		if d.Name == name {
			return true
		}
	}
	return false
}

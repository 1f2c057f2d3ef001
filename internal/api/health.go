package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthStatus is the overall health of the service.
type HealthStatus struct {
	Status string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the health of a single dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded", "not_configured"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker pings PostgreSQL and Redis. Redis is optional: the lease
// falls back to advisory locks without it.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	startTime   time.Time
}

// NewHealthChecker creates a HealthChecker. Either dependency may be nil.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redisClient: redisClient, startTime: time.Now()}
}

// HandleHealth reports every check; the body carries the status.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	respondJSON(w, http.StatusOK, HealthStatus{
		Status: overallStatus(checks),
		Uptime: time.Since(hc.startTime).Round(time.Second).String(),
		Checks: checks,
	})
}

// HandleLiveness always answers 200 while the process runs.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness answers 503 when PostgreSQL is unreachable.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := overallStatus(checks)
	code := http.StatusOK
	if overall == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"ready":  code == http.StatusOK,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	checks := make(map[string]ComponentCheck, 2)
	if hc.db == nil {
		checks["database"] = ComponentCheck{Status: "down", Message: "not configured"}
	} else {
		checks["database"] = timedCheck(ctx, 3*time.Second, time.Second, hc.db.PingContext)
	}
	if hc.redisClient == nil {
		checks["redis"] = ComponentCheck{Status: "not_configured"}
	} else {
		checks["redis"] = timedCheck(ctx, 2*time.Second, 500*time.Millisecond, func(ctx context.Context) error {
			return hc.redisClient.Ping(ctx).Err()
		})
	}
	return checks
}

func timedCheck(ctx context.Context, timeout, slow time.Duration, ping func(context.Context) error) ComponentCheck {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > slow {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// overallStatus is unhealthy when the database is down and degraded when any
// other check is not up.
func overallStatus(checks map[string]ComponentCheck) string {
	if checks["database"].Status == "down" {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == "down" || c.Status == "degraded" {
			return "degraded"
		}
	}
	return "healthy"
}

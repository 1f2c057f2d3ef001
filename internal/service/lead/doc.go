// Package lead owns the per-line, per-day lead record: the idempotent
// upsert of scoring output, TTL expiry and the read projections used by
// dashboards and campaign targeting.
//
// Repository implementations live in repository/postgres/.
package lead

// Package cohort segments leads by recency, frequency and monetary value.
//
// Each rebuild assigns every lead still in the store to exactly one cohort,
// using a fixed precedence list. Prior memberships are soft-removed in the
// same transaction that inserts the new ones, so the history of assignments
// stays queryable.
package cohort

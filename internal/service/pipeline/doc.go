// Package pipeline is the synchronous path from a network signal to a stored
// lead decision: scoring, exclusion and the idempotent daily upsert.
package pipeline

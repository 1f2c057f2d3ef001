// Package domain holds the value types shared by scoring, the services, the
// repositories and the HTTP handlers: leads, network events, cohorts,
// campaigns and worker runs.
//
// The package imports nothing else from internal/. Types carry JSON and db
// tags and small pure helpers such as Valid and CanSend; anything that
// needs a context or a connection lives in a service. A line is always
// referenced by its salted hash; raw phone numbers never reach these types.
package domain

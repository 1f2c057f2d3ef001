// Package campaign implements campaign lifecycle management and dispatch.
//
// The service creates, schedules and cancels campaigns, and sends them:
// target leads are resolved from the campaign's filter and nudged in
// batches of batch_size with a pause between batches that keeps the hourly
// rate under max_per_hour. Sends inside a batch run in parallel. A failed
// send is recorded as a failed contact attempt and never aborts the
// campaign.
//
// Repository implementations live in repository/postgres/.
package campaign

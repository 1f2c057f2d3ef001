// Package detection turns unprocessed network events into lead decisions.
//
// Events are grouped by hashed line. Each group is folded into one
// canonical signal, scored, weighted by the age of its evidence and
// written through the lead service. The batch contact policy (prior
// contact limit, short cooldown, send threshold) is applied on top of the
// scoring engine's next action. Processed events are flagged so they are
// read once.
package detection

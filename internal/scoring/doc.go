// Package scoring turns a canonical network signal into a dormancy score,
// a set of exclusion reasons and the lead's next action.
//
// Evaluate is pure: it performs no I/O and reads the clock only through the
// now argument. All thresholds come from Config.
package scoring

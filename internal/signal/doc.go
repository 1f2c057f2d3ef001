// Package signal collects per-line network facts and normalizes them into
// the canonical record the scoring engine consumes.
//
// Lines are addressed by their salted hash everywhere in this package. A
// raw MSISDN only exists transiently inside Hasher.Hash and inside the live
// source, which resolves the number through a NumberLookup right before
// calling the operator API.
package signal

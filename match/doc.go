// Package match folds decoded scoring events into a live match state.
//
// Reduce is a pure function of (State, Event). Snapshot tags (sc, s, wg, wrd)
// overwrite what they carry, so applying the same statement twice leaves the
// state unchanged; point events never touch the totals. MatchLoaded starts a
// fresh state and keeps only the link status reported by the scoring system.
//
// Reducer wraps Reduce around an owned State for the single ingest goroutine.
// Every State is a plain value, so the snapshots it returns are independent
// copies that consumers may keep.
package match

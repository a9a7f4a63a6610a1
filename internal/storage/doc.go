// Package storage is the durable store behind every workflow.
//
// Each exported mutation is one atomic statement or one transaction.
// State transitions are conditional updates ("... WHERE status = 'pending'"),
// so callers learn from the affected-row count whether they won the race
// instead of taking locks above the store.
package storage

// Package fsm holds whitelist transition tables for workflow entities.
package fsm

import "fmt"

// Table maps (state, action) to the next state. Pairs missing from the
// table are rejected.
type Table[S ~string, A ~string] map[S]map[A]S

// Next returns the state reached by applying a in from.
func (t Table[S, A]) Next(from S, a A) (S, bool) {
	next, ok := t[from][a]
	return next, ok
}

// Validate reports a table whose targets are not declared as source or
// terminal states.
func (t Table[S, A]) Validate(terminal ...S) error {
	known := make(map[S]bool, len(t)+len(terminal))
	for s := range t {
		known[s] = true
	}
	for _, s := range terminal {
		known[s] = true
	}
	for from, acts := range t {
		for a, to := range acts {
			if !known[to] {
				return fmt.Errorf("fsm: %s --%s--> %s: unknown target state", from, a, to)
			}
		}
	}
	return nil
}

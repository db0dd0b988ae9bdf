// Package listeners implements the listener registry the scheduler facade
// fans notifications through: trigger listeners (with veto power over a
// firing), job listeners (lifecycle observers that can gate execution), and
// scheduler listeners (error/finalized/shutdown signals).
//
// The run shell never talks to listeners directly; it consumes boolean/error
// results through the scheduler facade. Fan-out order and veto semantics
// live here: listeners are notified in registration order, and the first
// trigger listener to veto wins (later ones are not asked).
package listeners

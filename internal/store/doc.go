// Package store persists the firing journal: one row per completed or vetoed
// firing, written after the trigger's completion instruction is known. The
// scheduler treats a failed append as a store outage and hands the firing to
// the engine's retry loops.
//
// Backed by modernc.org/sqlite (pure Go, no cgo) in WAL mode with a single
// writer connection.
package store

// Package jobs holds the job-type registry and the built-in jobs that ship
// with the daemon. Job details name a registered type; the Factory turns a
// fired bundle into a fresh job instance for that type, seeded with the
// detail's data map.
package jobs

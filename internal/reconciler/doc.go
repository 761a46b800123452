// Package reconciler decides when a job is done. Every chunk transcript
// written to the object store triggers a reconciliation pass: count the
// transcripts against the job's chunk total, and once all are present,
// merge them in chunk order into the final transcript and complete the
// job. Passes are idempotent and safe to run concurrently; the terminal
// status transition is won by exactly one pass.
package reconciler

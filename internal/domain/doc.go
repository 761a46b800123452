// Package domain defines the shared data model of the transcription pipeline:
// the job record mutated by all pipeline components, chunk and transcript types,
// the job status state machine, and the object key layout that every component
// must agree on bit-exactly.
package domain

// Package encoder turns a job's source media into a sequence of fixed
// duration WAV chunks in the object store. It resolves the source URL,
// probes the duration for progress estimation, then decodes the stream
// into raw PCM and uploads one chunk per full read. Only complete reads
// and the final short tail are uploaded; a failed decode never leaves a
// partial chunk behind.
package encoder

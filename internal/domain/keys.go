package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Object key layout shared by every pipeline component. The format is
// load-bearing: chunk indices are zero-padded to three digits so that
// storage-native lexicographic listing equals numeric chunk order.
//
//	audio/{jobID}/chunks/chunk_{index:03d}.wav
//	transcriptions/{jobID}/chunks/chunk_{index:03d}.json
//	transcriptions/{jobID}/transcription.json
//	transcriptions/{jobID}/transcription.txt
const (
	audioPrefix      = "audio/"
	transcriptPrefix = "transcriptions/"
	chunksDir        = "chunks/"
)

// ChunkKey returns the object key for an encoded audio chunk.
func ChunkKey(jobID string, index int) string {
	return fmt.Sprintf("%s%s/%schunk_%03d.wav", audioPrefix, jobID, chunksDir, index)
}

// ChunkTranscriptKey returns the object key for a per-chunk transcript.
func ChunkTranscriptKey(jobID string, index int) string {
	return fmt.Sprintf("%s%s/%schunk_%03d.json", transcriptPrefix, jobID, chunksDir, index)
}

// ChunkTranscriptPrefix returns the listing prefix covering all chunk
// transcripts of a job, excluding the final merged artifacts.
func ChunkTranscriptPrefix(jobID string) string {
	return transcriptPrefix + jobID + "/" + chunksDir
}

// FinalTranscriptJSONKey returns the object key of the merged JSON artifact.
func FinalTranscriptJSONKey(jobID string) string {
	return transcriptPrefix + jobID + "/transcription.json"
}

// FinalTranscriptTextKey returns the object key of the merged plain-text artifact.
func FinalTranscriptTextKey(jobID string) string {
	return transcriptPrefix + jobID + "/transcription.txt"
}

// IsChunkKey reports whether key names an encoded audio chunk.
func IsChunkKey(key string) bool {
	_, _, err := splitChunkKey(key, audioPrefix, ".wav")
	return err == nil
}

// IsChunkTranscriptKey reports whether key names a per-chunk transcript object.
func IsChunkTranscriptKey(key string) bool {
	_, _, err := splitChunkKey(key, transcriptPrefix, ".json")
	return err == nil
}

// JobIDFromChunkKey extracts the job identifier from an audio chunk key.
func JobIDFromChunkKey(key string) (string, error) {
	jobID, _, err := splitChunkKey(key, audioPrefix, ".wav")
	return jobID, err
}

// JobIDFromTranscriptKey extracts the job identifier from a chunk transcript key.
func JobIDFromTranscriptKey(key string) (string, error) {
	jobID, _, err := splitChunkKey(key, transcriptPrefix, ".json")
	return jobID, err
}

// ParseChunkIndex extracts the numeric chunk index from an audio chunk key.
// Malformed keys are an error: a chunk whose index cannot be recovered must be
// dropped rather than silently colliding with chunk 0's timestamps.
func ParseChunkIndex(key string) (int, error) {
	_, index, err := splitChunkKey(key, audioPrefix, ".wav")
	return index, err
}

// splitChunkKey validates a chunk-style key against the expected layout and
// returns its job id and chunk index.
func splitChunkKey(key, prefix, ext string) (string, int, error) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return "", 0, fmt.Errorf("key %q lacks prefix %q", key, prefix)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "chunks" {
		return "", 0, fmt.Errorf("key %q does not match chunk layout", key)
	}

	jobID := parts[0]
	if jobID == "" {
		return "", 0, fmt.Errorf("key %q has empty job id", key)
	}

	name := parts[2]
	name, ok = strings.CutSuffix(name, ext)
	if !ok {
		return "", 0, fmt.Errorf("key %q lacks suffix %q", key, ext)
	}

	digits, ok := strings.CutPrefix(name, "chunk_")
	if !ok || len(digits) < 3 {
		return "", 0, fmt.Errorf("key %q has malformed chunk name", key)
	}

	index, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, fmt.Errorf("key %q has non-numeric chunk index: %w", key, err)
	}
	if index < 0 {
		return "", 0, fmt.Errorf("key %q has negative chunk index", key)
	}

	return jobID, index, nil
}

package domain

import "time"

// Segment is one recognized span of speech. Start and End are chunk-local when
// produced by the recognition engine and job-global once shifted by the chunk's
// time offset.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ChunkTranscript is the per-chunk transcription result, persisted as one
// object keyed by (jobID, chunkIndex). It is immutable once written; redelivery
// of the same chunk overwrites it with identical content.
type ChunkTranscript struct {
	JobID      string    `json:"jobId"`
	ChunkIndex int       `json:"chunkIndex"`
	Text       string    `json:"text"`
	Segments   []Segment `json:"segments"`
	Language   string    `json:"language"`
	SourceKey  string    `json:"sourceKey"`
	Model      string    `json:"model,omitempty"`
}

// FinalTranscript is the merged result of all chunk transcripts for a job,
// written by the reconciler. The merge is a pure function of the chunk set so
// redundant reconciler runs produce byte-identical artifacts.
type FinalTranscript struct {
	JobID       string    `json:"jobId"`
	Text        string    `json:"text"`
	Language    string    `json:"language,omitempty"`
	ChunkCount  int       `json:"chunks"`
	CompletedAt time.Time `json:"completedAt"`
}

// Package transcriber turns uploaded WAV chunks into per-chunk transcript
// documents. The worker reacts to chunk object keys, sends the audio to a
// recognition engine, shifts segment timestamps into the job timeline, and
// writes the transcript JSON back to the object store. The HTTP client
// speaks the whisper-style multipart transcription API.
package transcriber

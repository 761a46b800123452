// Package audio handles the PCM chunk container format. It synthesizes
// self-contained WAV headers sized for exactly one chunk's payload and derives
// chunk sizing and effective durations from the fixed decode parameters.
package audio

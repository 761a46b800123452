// Package media wraps the external tools used to acquire audio: yt-dlp for
// resolving page URLs to direct media URLs, ffprobe for duration probing,
// and ffmpeg for decoding the source into a raw PCM stream. All process
// execution goes through small runner interfaces so tests can substitute
// fakes.
package media

// Package fileutil holds small file and display helpers shared by the relay,
// the export path and the CLI.
package fileutil

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirPermissions = 0o750
	replacement    = "_"
	maxNameLength  = 128
)

const (
	kibibyte = 1024
	mebibyte = kibibyte * 1024
	gibibyte = mebibyte * 1024

	secondsPerMinute = 60
	secondsPerHour   = 3600
)

// Sample files the provider accepts for cloning: audio plus the common video
// containers it extracts audio from.
var sampleExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".flac": {}, ".ogg": {}, ".m4a": {}, ".aac": {},
	".webm": {}, ".opus": {}, ".mp4": {}, ".mov": {},
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".flac": {}, ".ogg": {}, ".m4a": {}, ".aac": {}, ".opus": {},
}

var filenameReplacer = strings.NewReplacer(
	"<", replacement, ">", replacement, ":", replacement,
	"\"", replacement, "/", replacement, "\\", replacement,
	"|", replacement, "?", replacement, "*", replacement,
	"\x00", replacement, "\n", replacement, "\r", replacement,
)

// EnsureDir creates path and any missing parents.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// IsValidAudioFile reports whether name carries a playable audio extension.
func IsValidAudioFile(name string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]

	return ok
}

// IsValidSampleFile reports whether an upload can serve as a cloning sample.
// The content type wins when it names an audio or video media type; otherwise
// the extension decides.
func IsValidSampleFile(name, contentType string) bool {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil && (strings.HasPrefix(mediaType, "audio/") || strings.HasPrefix(mediaType, "video/")) {
			return true
		}
	}

	_, ok := sampleExtensions[strings.ToLower(filepath.Ext(name))]

	return ok
}

// SanitizeFilename replaces characters that are unsafe in file names and
// header values. An empty result becomes "_".
func SanitizeFilename(name string) string {
	cleaned := strings.TrimSpace(filenameReplacer.Replace(name))
	if len(cleaned) > maxNameLength {
		cleaned = cleaned[:maxNameLength]
	}

	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return replacement
	}

	return cleaned
}

// FormatDuration renders seconds as "4.2s", "3m 5.0s" or "1h 2m".
func FormatDuration(seconds float64) string {
	switch {
	case seconds < secondsPerMinute:
		return fmt.Sprintf("%.1fs", seconds)
	case seconds < secondsPerHour:
		minutes := int(seconds / secondsPerMinute)

		return fmt.Sprintf("%dm %.1fs", minutes, seconds-float64(minutes*secondsPerMinute))
	default:
		hours := int(seconds / secondsPerHour)
		minutes := int((seconds - float64(hours*secondsPerHour)) / secondsPerMinute)

		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
}

// FormatFileSize renders a byte count with a binary unit.
func FormatFileSize(size int64) string {
	switch {
	case size >= gibibyte:
		return fmt.Sprintf("%.1f GB", float64(size)/gibibyte)
	case size >= mebibyte:
		return fmt.Sprintf("%.1f MB", float64(size)/mebibyte)
	case size >= kibibyte:
		return fmt.Sprintf("%.1f KB", float64(size)/kibibyte)
	default:
		return fmt.Sprintf("%d B", size)
	}
}

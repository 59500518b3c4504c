package tts

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestFormatFilename tests download filenames: voice wire string plus
// an ISO 8601 timestamp with ':' and '.' replaced by '-'.
func TestFormatFilename(t *testing.T) {
	at := time.Date(2025, 1, 2, 15, 4, 5, 123000000, time.UTC)

	tests := []struct {
		name     string
		voice    string
		format   string
		expected string
	}{
		{
			name:     "single voice mp3",
			voice:    "af_bella",
			format:   "mp3",
			expected: "af_bella_2025-01-02T15-04-05-123Z.mp3",
		},
		{
			name:     "weighted mix wav",
			voice:    "af_bella(0.6)+am_adam(1.2)",
			format:   "wav",
			expected: "af_bella(0.6)+am_adam(1.2)_2025-01-02T15-04-05-123Z.wav",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := FormatFilename(tt.voice, at, tt.format); result != tt.expected {
				t.Errorf("FormatFilename() = %q, want %q", result, tt.expected)
			}
		})
	}
}

// TestFormatFilenameUTC tests that local times are rendered in UTC.
func TestFormatFilenameUTC(t *testing.T) {
	loc := time.FixedZone("TEST", 3*60*60)
	at := time.Date(2025, 6, 1, 3, 0, 0, 0, loc)

	got := FormatFilename("af_bella", at, "mp3")
	want := "af_bella_2025-06-01T00-00-00-000Z.mp3"
	if got != want {
		t.Errorf("FormatFilename() = %q, want %q", got, want)
	}
}

// TestArtifactContentType tests content-type defaulting by format.
func TestArtifactContentType(t *testing.T) {
	tests := []struct {
		format   string
		expected string
	}{
		{"mp3", "audio/mpeg"},
		{"wav", "audio/wav"},
		{"pcm", "audio/pcm"},
		{"opus", "audio/opus"},
		{"flac", "audio/flac"},
		{"bin", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			b := NewBuffer(1)
			b.Append([]byte{1, 2, 3})
			b.Seal()

			art, err := b.Artifact("", tt.format, "af_bella")
			if err != nil {
				t.Fatalf("Artifact error = %v", err)
			}
			if ct := art.ContentType(); ct != tt.expected {
				t.Errorf("ContentType() = %q, want %q", ct, tt.expected)
			}
		})
	}
}

// TestArtifactReportedContentType tests that a service-reported type
// wins over the format default.
func TestArtifactReportedContentType(t *testing.T) {
	b := NewBuffer(1)
	b.Append([]byte{1})
	b.Seal()

	art, err := b.Artifact("audio/mpeg; charset=binary", "mp3", "af_bella")
	if err != nil {
		t.Fatalf("Artifact error = %v", err)
	}
	if ct := art.ContentType(); ct != "audio/mpeg; charset=binary" {
		t.Errorf("ContentType() = %q, want the reported value", ct)
	}
}

// TestArtifactSave tests writing the artifact to disk.
func TestArtifactSave(t *testing.T) {
	b := NewBuffer(1)
	b.Append([]byte("audio bytes"))
	b.Seal()

	art, err := b.Artifact("audio/mpeg", "mp3", "af_bella")
	if err != nil {
		t.Fatalf("Artifact error = %v", err)
	}

	dir := filepath.Join(t.TempDir(), "downloads")
	path, err := art.Save(dir)
	if err != nil {
		t.Fatalf("Save error = %v", err)
	}
	if filepath.Base(path) != art.Filename() {
		t.Errorf("saved as %q, want filename %q", filepath.Base(path), art.Filename())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(data) != "audio bytes" {
		t.Errorf("saved contents = %q, want %q", data, "audio bytes")
	}
}

// TestArtifactMetadata tests the accessor surface.
func TestArtifactMetadata(t *testing.T) {
	b := NewBuffer(1)
	b.Append([]byte("xyz"))
	b.Seal()

	before := time.Now()
	art, err := b.Artifact("audio/mpeg", "mp3", "af_bella(0.6)+am_adam(1.2)")
	if err != nil {
		t.Fatalf("Artifact error = %v", err)
	}

	if art.Voice() != "af_bella(0.6)+am_adam(1.2)" {
		t.Errorf("Voice() = %q", art.Voice())
	}
	if art.Format() != "mp3" {
		t.Errorf("Format() = %q, want mp3", art.Format())
	}
	if art.Len() != 3 {
		t.Errorf("Len() = %d, want 3", art.Len())
	}
	if art.CreatedAt().Before(before.Add(-time.Second)) {
		t.Errorf("CreatedAt() = %v, want recent", art.CreatedAt())
	}
}

package tts

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Artifact is the complete audio of a finished generation, frozen at
// export time. It lives independently of the session buffer it came
// from: discarding the buffer does not affect an exported artifact.
type Artifact struct {
	data        []byte
	contentType string
	format      string
	voice       string
	created     time.Time
}

func newArtifact(data []byte, contentType, format, voice string) *Artifact {
	if contentType == "" {
		contentType = ContentTypeForFormat(format)
	}
	return &Artifact{
		data:        data,
		contentType: contentType,
		format:      format,
		voice:       voice,
		created:     time.Now(),
	}
}

// Bytes returns a copy of the audio payload.
func (a *Artifact) Bytes() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// Len returns the payload size in bytes.
func (a *Artifact) Len() int { return len(a.data) }

// ContentType returns the MIME type reported by the service, or one
// derived from the requested format when the service sent none.
func (a *Artifact) ContentType() string { return a.contentType }

// Format returns the audio format extension, e.g. "mp3".
func (a *Artifact) Format() string { return a.format }

// Voice returns the wire-encoded voice mix the audio was generated
// with.
func (a *Artifact) Voice() string { return a.voice }

// CreatedAt returns when the artifact was exported.
func (a *Artifact) CreatedAt() time.Time { return a.created }

// Filename returns the canonical download name for this artifact.
func (a *Artifact) Filename() string {
	return FormatFilename(a.voice, a.created, a.format)
}

// Save writes the artifact into dir under its canonical filename,
// creating the directory if needed, and returns the written path.
func (a *Artifact) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, a.Filename())
	if err := os.WriteFile(path, a.data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// FormatFilename builds the download filename for generated audio:
// the wire-encoded voice mix, an underscore, and a UTC ISO-8601
// timestamp with ':' and '.' replaced by '-' so it is safe on every
// filesystem, e.g. "af_bella_2026-08-24T12-34-56-789Z.mp3".
func FormatFilename(voice string, at time.Time, format string) string {
	ts := at.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	return voice + "_" + ts + "." + format
}

// ContentTypeForFormat maps a response format to its MIME type, for
// responses that arrive without a Content-Type header and for playing
// stored clips.
func ContentTypeForFormat(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/pcm"
	case "opus":
		return "audio/opus"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

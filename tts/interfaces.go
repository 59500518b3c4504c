package tts

import (
	"context"
	"io"
	"iter"
)

// SpeechRequest is everything a Synthesizer needs to produce audio
// for one session.
type SpeechRequest struct {
	Text   string
	Voice  string // wire-encoded voice mix
	Speed  float64
	Format string
}

// ByteStream is an open synthesis response: a lazy, finite,
// non-restartable sequence of audio chunks read off the network as
// they arrive. Iterating Chunks may block until the service delivers
// more data; a chunk error ends the stream. Close releases the
// underlying connection and is safe to call at any point.
type ByteStream interface {
	// ContentType returns the MIME type of the payload, or "" when
	// the service did not say.
	ContentType() string

	// ContentLength returns the total payload size in bytes, or -1
	// when the stream length is unknown.
	ContentLength() int64

	// Chunks yields payload slices in arrival order. Each yielded
	// slice is owned by the consumer. The sequence may be consumed
	// once.
	Chunks() iter.Seq2[[]byte, error]

	Close() error
}

// Synthesizer opens a streaming synthesis request against the remote
// service. A non-2xx response surfaces as a *ServiceError before any
// chunk is produced; cancellation of ctx fails any suspended read
// with the context's error.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (ByteStream, error)
}

// PlaybackSink plays live session audio. The host environment
// supplies the implementation; the core only drives it and tracks
// whether playback is active. Play hands the sink a reader over the
// session buffer that blocks at the live edge until more audio
// arrives, drains to EOF once the stream completes, and fails once
// the buffer is discarded.
type PlaybackSink interface {
	Play(src io.Reader, contentType string) error
	Pause() error
	Resume() error
	Stop() error
	Playing() bool

	// SetOnEnded registers the callback fired when playback reaches
	// the natural end of the audio.
	SetOnEnded(fn func())

	Close() error
}

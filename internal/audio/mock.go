package audio

import (
	"errors"
	"io"
	"sync"

	"github.com/Dherick07/dexterous/tts"
)

// Mock implements tts.PlaybackSink without touching an audio device.
// It records calls for assertions and lets tests drive the natural
// end of playback explicitly.
type Mock struct {
	mu          sync.Mutex
	playing     bool
	paused      bool
	closed      bool
	src         io.Reader
	contentType string
	onEnded     func()
	playErr     error

	plays   int
	pauses  int
	resumes int
	stops   int
}

var _ tts.PlaybackSink = (*Mock)(nil)

// NewMock returns a mock sink ready for use.
func NewMock() *Mock {
	return &Mock{}
}

// Play records the stream without reading it, so sources that block
// at the live edge stay safe to hand over.
func (m *Mock) Play(src io.Reader, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("player is closed")
	}
	if m.playErr != nil {
		return m.playErr
	}

	m.src = src
	m.contentType = contentType
	m.playing = true
	m.paused = false
	m.plays++
	return nil
}

// Pause pauses simulated playback.
func (m *Mock) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.playing {
		return errors.New("cannot pause: nothing is playing")
	}
	if m.paused {
		return errors.New("cannot pause: playback is already paused")
	}
	m.paused = true
	m.pauses++
	return nil
}

// Resume resumes simulated playback.
func (m *Mock) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.playing {
		return errors.New("cannot resume: nothing is playing")
	}
	if !m.paused {
		return errors.New("cannot resume: playback is not paused")
	}
	m.paused = false
	m.resumes++
	return nil
}

// Stop ends simulated playback. Stopping an idle mock is a no-op.
func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.playing = false
	m.paused = false
	m.src = nil
	m.stops++
	return nil
}

// Playing reports whether audio would be audible right now.
func (m *Mock) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing && !m.paused
}

// SetOnEnded registers the natural-end callback.
func (m *Mock) SetOnEnded(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnded = fn
}

// Close marks the mock closed; further Play calls fail.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.playing = false
	m.paused = false
	m.src = nil
	m.closed = true
	return nil
}

// FinishPlayback simulates the clip reaching its natural end, firing
// the onEnded callback. Does nothing unless playback is active.
func (m *Mock) FinishPlayback() {
	m.mu.Lock()
	if !m.playing {
		m.mu.Unlock()
		return
	}
	m.playing = false
	m.paused = false
	m.src = nil
	fn := m.onEnded
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// SetPlayError makes subsequent Play calls fail with err.
func (m *Mock) SetPlayError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

// Source returns the reader from the most recent Play call.
func (m *Mock) Source() io.Reader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src
}

// ContentType returns the content type from the most recent Play call.
func (m *Mock) ContentType() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contentType
}

// PlayCount returns how many times Play succeeded.
func (m *Mock) PlayCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plays
}

// PauseCount returns how many times Pause succeeded.
func (m *Mock) PauseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauses
}

// ResumeCount returns how many times Resume succeeded.
func (m *Mock) ResumeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumes
}

// StopCount returns how many times Stop was called.
func (m *Mock) StopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

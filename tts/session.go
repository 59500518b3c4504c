// Package tts implements the audio generation pipeline: a voice-mix
// selection model, a single-flight generation session that streams
// synthesized audio into an append-only playback buffer, and the event
// bus the UI layers subscribe to. Speech synthesis itself happens in a
// remote service reached through the Synthesizer seam.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// MaxTextLength is the longest input, in characters, one generation
// accepts.
const MaxTextLength = 750

// DefaultFormat is the audio format requested when none is configured.
const DefaultFormat = "mp3"

// Controller runs generation sessions against a Synthesizer. It
// enforces the at-most-one-active-session invariant, owns the event
// bus, and drives the optional playback sink. All methods are safe
// for concurrent use.
type Controller struct {
	synth       Synthesizer
	bus         *Bus
	sink        PlaybackSink
	format      string
	minPlayable int

	mu      sync.Mutex
	active  *Session
	playing bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithBus substitutes a shared event bus.
func WithBus(bus *Bus) ControllerOption {
	return func(c *Controller) { c.bus = bus }
}

// WithSink attaches a playback sink for live audio.
func WithSink(sink PlaybackSink) ControllerOption {
	return func(c *Controller) { c.sink = sink }
}

// WithFormat sets the audio format requested from the service.
func WithFormat(format string) ControllerOption {
	return func(c *Controller) {
		if format != "" {
			c.format = format
		}
	}
}

// WithMinPlayableBytes overrides the buffered-bytes threshold that
// gates the first playback start.
func WithMinPlayableBytes(n int) ControllerOption {
	return func(c *Controller) { c.minPlayable = n }
}

// NewController returns a controller generating through synth.
func NewController(synth Synthesizer, opts ...ControllerOption) *Controller {
	c := &Controller{
		synth:  synth,
		format: DefaultFormat,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = NewBus()
	}
	if c.sink != nil {
		c.sink.SetOnEnded(c.playbackEnded)
	}
	return c
}

// Bus returns the controller's event bus.
func (c *Controller) Bus() *Bus { return c.bus }

// Session is one complete generation attempt, from Start to a
// terminal state. Its cancellation token and buffer are exclusively
// its own; a later session can never touch them.
type Session struct {
	id      string
	voice   string
	format  string
	machine *Machine
	buffer  *Buffer
	cancel  context.CancelFunc
	done    chan struct{}
	c       *Controller

	mu          sync.Mutex
	loaded      int64
	total       int64
	contentType string
	artifact    *Artifact
	failure     error
	playBegun   bool
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// Voice returns the wire-encoded voice mix of this session.
func (s *Session) Voice() string { return s.voice }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.machine.Current() }

// Done is closed once the session has fully unwound into a terminal
// state and released its resources.
func (s *Session) Done() <-chan struct{} { return s.done }

// Progress returns bytes received so far and the expected total, with
// total 0 when the stream length is unknown.
func (s *Session) Progress() (loaded, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded, s.total
}

// ContentType returns the MIME type the service reported for this
// session's audio, or "" before the stream opened.
func (s *Session) ContentType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentType
}

// Artifact returns the downloadable audio once the session is
// Complete, nil before that.
func (s *Session) Artifact() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// Err returns the failure that terminated the session, or nil.
// Cancellation is not a failure and leaves Err nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Start begins a new generation session. It validates the input
// before any network activity, refuses to run concurrently with a
// non-terminal session, and returns as soon as the request goroutine
// is launched; progress arrives on the bus.
func (c *Controller) Start(ctx context.Context, text string, voices *Selection, speed float64) (*Session, error) {
	trimmed := strings.TrimSpace(text)
	if err := validateRequest(trimmed, voices); err != nil {
		return nil, err
	}

	c.mu.Lock()
	prev := c.active
	if prev != nil && !prev.State().Terminal() {
		id := prev.id
		c.mu.Unlock()
		return nil, &ConcurrencyError{ActiveID: id}
	}
	s := &Session{
		id:      uuid.NewString(),
		voice:   voices.WireString(),
		format:  c.format,
		machine: NewMachine(),
		buffer:  NewBuffer(c.minPlayable),
		done:    make(chan struct{}),
		c:       c,
	}
	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	c.active = s
	c.playing = false
	c.mu.Unlock()

	// The finished predecessor releases its memory now; any artifact
	// handed out earlier holds its own copy of the bytes.
	if prev != nil {
		prev.buffer.Discard()
		if c.sink != nil {
			if err := c.sink.Stop(); err != nil {
				log.Debug("stopping leftover playback", "error", err)
			}
		}
	}

	s.machine.To(StateRequesting)
	c.bus.Publish(Event{Type: EventRequestStarted, SessionID: s.id})
	log.Debug("generation started",
		"session", s.id,
		"voice", s.voice,
		"chars", utf8.RuneCountInString(trimmed),
		"speed", speed)

	go c.run(sctx, s, SpeechRequest{
		Text:   trimmed,
		Voice:  s.voice,
		Speed:  speed,
		Format: c.format,
	})
	return s, nil
}

func validateRequest(trimmed string, voices *Selection) error {
	if trimmed == "" {
		return &ValidationError{Reason: "text is empty"}
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxTextLength {
		return &ValidationError{Reason: fmt.Sprintf("text is %d characters, the limit is %d", n, MaxTextLength)}
	}
	if voices == nil || !voices.HasAny() {
		return &ValidationError{Reason: "no voices selected"}
	}
	return nil
}

// run consumes the synthesis stream into the session buffer. It is
// the only goroutine that advances the machine along the happy path;
// cancellation may beat it to a terminal state at any step, in which
// case run just unwinds.
func (c *Controller) run(ctx context.Context, s *Session, req SpeechRequest) {
	defer close(s.done)
	defer s.cancel()

	stream, err := c.synth.Synthesize(ctx, req)
	if err != nil {
		c.finishWithError(s, err)
		return
	}
	defer stream.Close()

	s.setStreamInfo(stream.ContentType(), stream.ContentLength())
	if !s.machine.To(StateStreaming) {
		return
	}

	for chunk, err := range stream.Chunks() {
		if s.State().Terminal() {
			return
		}
		if err != nil {
			c.finishWithError(s, err)
			return
		}
		if err := s.buffer.Append(chunk); err != nil {
			c.finishWithError(s, err)
			return
		}
		loaded, total := s.addLoaded(int64(len(chunk)))
		c.bus.Publish(Event{Type: EventProgress, SessionID: s.id, Loaded: loaded, Total: total})
		if s.buffer.Playable() {
			c.maybeStartPlayback(s)
		} else {
			c.bus.Publish(Event{
				Type:      EventBufferError,
				SessionID: s.id,
				Message:   fmt.Sprintf("buffering, %d bytes received", loaded),
			})
		}
	}

	if !s.machine.To(StateFinalizing) {
		return
	}
	s.buffer.Seal()
	loaded, total := s.Progress()
	c.bus.Publish(Event{Type: EventStreamComplete, SessionID: s.id, Loaded: loaded, Total: total})

	// A clip that ended below the playability threshold is complete
	// now, so playback can start on it.
	if s.buffer.Playable() {
		c.maybeStartPlayback(s)
	}

	art, err := s.buffer.Artifact(s.ContentType(), s.format, s.voice)
	if err != nil {
		c.finishWithError(s, err)
		return
	}
	if !s.machine.To(StateComplete) {
		return
	}
	s.setArtifact(art)
	c.bus.Publish(Event{Type: EventDownloadReady, SessionID: s.id, Artifact: art})
	log.Debug("generation complete", "session", s.id, "bytes", art.Len())
}

// finishWithError settles a failed or cancelled session. Exactly one
// terminal event is published no matter how many finishers race: the
// state machine's first successful terminal transition wins. An error
// caused by cancellation is re-expressed as the cancelled outcome,
// never as a failure.
func (c *Controller) finishWithError(s *Session, err error) {
	if isCancellation(err) || errors.Is(err, ErrDiscarded) || s.State() == StateCancelled {
		if s.machine.To(StateCancelled) {
			s.buffer.Discard()
			c.stopPlayback()
			c.bus.Publish(Event{Type: EventCancelled, SessionID: s.id})
			log.Debug("generation cancelled", "session", s.id)
		}
		return
	}
	if !s.machine.To(StateFailed) {
		return
	}
	s.setFailure(err)
	s.buffer.Discard()
	c.stopPlayback()
	c.bus.Publish(Event{Type: EventFailed, SessionID: s.id, Message: err.Error()})
	log.Error("generation failed", "session", s.id, "error", err)
}

// Cancel moves the session to Cancelled from any non-terminal state:
// it signals the cancellation token so any suspended network read
// fails immediately, discards the buffer, and stops playback. It
// reports false when the session was already terminal. Errors the
// cancellation knocks loose downstream are suppressed, not surfaced.
func (s *Session) Cancel() bool {
	if !s.machine.To(StateCancelled) {
		return false
	}
	s.cancel()
	s.buffer.Discard()
	s.c.stopPlayback()
	s.c.bus.Publish(Event{Type: EventCancelled, SessionID: s.id})
	log.Debug("generation cancelled", "session", s.id)
	return true
}

// Active returns the most recently started session, which may already
// be terminal. Nil before the first Start.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Cancel cancels the active session, reporting whether there was a
// non-terminal one to cancel.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return false
	}
	return s.Cancel()
}

// Close cancels any active session and releases the playback sink.
func (c *Controller) Close() error {
	c.Cancel()
	if c.sink != nil {
		return c.sink.Close()
	}
	return nil
}

// maybeStartPlayback hands the live buffer to the sink exactly once
// per session.
func (c *Controller) maybeStartPlayback(s *Session) {
	if c.sink == nil {
		return
	}
	s.mu.Lock()
	if s.playBegun {
		s.mu.Unlock()
		return
	}
	s.playBegun = true
	s.mu.Unlock()

	if err := c.sink.Play(s.buffer.Reader(), s.ContentType()); err != nil {
		log.Warn("playback unavailable", "session", s.id, "error", err)
		return
	}
	c.mu.Lock()
	c.playing = true
	c.mu.Unlock()
	c.bus.Publish(Event{Type: EventPlaybackStarted, SessionID: s.id})
}

// Pause pauses live playback. Pausing when nothing plays is a no-op.
func (c *Controller) Pause() error {
	if c.sink == nil {
		return nil
	}
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return nil
	}
	c.playing = false
	s := c.active
	c.mu.Unlock()

	if err := c.sink.Pause(); err != nil {
		return err
	}
	c.bus.Publish(Event{Type: EventPlaybackPaused, SessionID: sessionID(s)})
	return nil
}

// Resume resumes paused playback. Resuming when playback never
// started (or already plays) is a no-op.
func (c *Controller) Resume() error {
	if c.sink == nil {
		return nil
	}
	c.mu.Lock()
	s := c.active
	if c.playing || s == nil || !s.playbackBegun() {
		c.mu.Unlock()
		return nil
	}
	c.playing = true
	c.mu.Unlock()

	if err := c.sink.Resume(); err != nil {
		c.mu.Lock()
		c.playing = false
		c.mu.Unlock()
		return err
	}
	c.bus.Publish(Event{Type: EventPlaybackStarted, SessionID: sessionID(s)})
	return nil
}

// PlaybackActive reports whether session audio is currently playing.
func (c *Controller) PlaybackActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// stopPlayback silences the sink on session teardown. No transport
// event is published; the terminal session event already tells the UI
// everything stopped.
func (c *Controller) stopPlayback() {
	if c.sink == nil {
		return
	}
	c.mu.Lock()
	c.playing = false
	c.mu.Unlock()
	if err := c.sink.Stop(); err != nil {
		log.Debug("stopping playback", "error", err)
	}
}

// playbackEnded is the sink's natural end-of-audio callback.
func (c *Controller) playbackEnded() {
	c.mu.Lock()
	was := c.playing
	c.playing = false
	s := c.active
	c.mu.Unlock()
	if was {
		c.bus.Publish(Event{Type: EventPlaybackEnded, SessionID: sessionID(s)})
	}
}

func (s *Session) setStreamInfo(contentType string, contentLength int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contentType = contentType
	if contentLength > 0 {
		s.total = contentLength
	}
}

func (s *Session) addLoaded(n int64) (loaded, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded += n
	return s.loaded, s.total
}

func (s *Session) setArtifact(a *Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifact = a
}

func (s *Session) setFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

func (s *Session) playbackBegun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playBegun
}

func sessionID(s *Session) string {
	if s == nil {
		return ""
	}
	return s.id
}

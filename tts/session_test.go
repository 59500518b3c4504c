package tts_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dherick07/dexterous/tts"
)

// scriptStream replays a fixed chunk sequence, optionally failing
// after a given number of chunks instead of ending cleanly.
type scriptStream struct {
	contentType string
	length      int64
	chunks      [][]byte
	failAfter   int // -1 means clean end
	failWith    error

	mu     sync.Mutex
	closed bool
}

func (s *scriptStream) ContentType() string  { return s.contentType }
func (s *scriptStream) ContentLength() int64 { return s.length }

func (s *scriptStream) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for i, c := range s.chunks {
			if s.failAfter >= 0 && i == s.failAfter {
				yield(nil, s.failWith)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if s.failAfter >= len(s.chunks) && s.failAfter >= 0 {
			yield(nil, s.failWith)
		}
	}
}

func (s *scriptStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptStream) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// hangingStream yields its chunks and then suspends until the request
// context is cancelled, the way a network read blocks for more data.
type hangingStream struct {
	contentType string
	chunks      [][]byte
	ctx         context.Context

	mu     sync.Mutex
	closed bool
}

func (s *hangingStream) ContentType() string  { return s.contentType }
func (s *hangingStream) ContentLength() int64 { return -1 }

func (s *hangingStream) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, c := range s.chunks {
			if !yield(c, nil) {
				return
			}
		}
		<-s.ctx.Done()
		yield(nil, s.ctx.Err())
	}
}

func (s *hangingStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *hangingStream) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeSynth hands out a scripted stream and records what it was asked
// to synthesize.
type fakeSynth struct {
	mu      sync.Mutex
	calls   int
	lastReq tts.SpeechRequest
	stream  tts.ByteStream
	err     error
}

func (f *fakeSynth) Synthesize(ctx context.Context, req tts.SpeechRequest) (tts.ByteStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if hs, ok := f.stream.(*hangingStream); ok {
		hs.ctx = ctx
	}
	return f.stream, nil
}

func (f *fakeSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSynth) request() tts.SpeechRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// mockSink implements a playback sink for testing.
type mockSink struct {
	mu          sync.Mutex
	playing     bool
	playCount   int
	pauseCount  int
	resumeCount int
	stopCount   int
	closeCount  int
	lastType    string
	playErr     error
	onEnded     func()
}

var _ tts.PlaybackSink = (*mockSink)(nil)

func (m *mockSink) Play(src io.Reader, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playErr != nil {
		return m.playErr
	}
	m.playing = true
	m.playCount++
	m.lastType = contentType
	return nil
}

func (m *mockSink) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.pauseCount++
	return nil
}

func (m *mockSink) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = true
	m.resumeCount++
	return nil
}

func (m *mockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.stopCount++
	return nil
}

func (m *mockSink) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

func (m *mockSink) SetOnEnded(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnded = fn
}

func (m *mockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return nil
}

// finishPlayback simulates the audio reaching its natural end.
func (m *mockSink) finishPlayback() {
	m.mu.Lock()
	m.playing = false
	fn := m.onEnded
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (m *mockSink) counts() (play, pause, resume, stop int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playCount, m.pauseCount, m.resumeCount, m.stopCount
}

func testVoices(t *testing.T) *tts.Selection {
	t.Helper()
	s := tts.NewSelection([]string{"af_bella", "am_adam"})
	if !s.Add("af_bella") {
		t.Fatal("failed to select af_bella")
	}
	return s
}

// drainUntil collects events until one of the given type arrives.
func drainUntil(t *testing.T, sub *tts.Subscription, stop tts.EventType) []tts.Event {
	t.Helper()
	var events []tts.Event
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-sub.Events():
			events = append(events, e)
			if e.Type == stop {
				return events
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q, saw %v", stop, eventTypes(events))
		}
	}
}

// drainRemaining collects whatever is already queued without waiting.
func drainRemaining(sub *tts.Subscription) []tts.Event {
	var events []tts.Event
	for {
		select {
		case e := <-sub.Events():
			events = append(events, e)
		default:
			return events
		}
	}
}

func eventTypes(events []tts.Event) []tts.EventType {
	out := make([]tts.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func countType(events []tts.Event, typ tts.EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func waitDone(t *testing.T, s *tts.Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not reach a terminal state")
	}
}

// TestStartValidation tests that invalid input is rejected before any
// network activity.
func TestStartValidation(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		noVoices bool
		wantErr  bool
	}{
		{"empty text", "", false, true},
		{"whitespace only", "   \n\t  ", false, true},
		{"751 characters", strings.Repeat("a", 751), false, true},
		{"750 characters ok", strings.Repeat("a", 750), false, false},
		{"750 multibyte runes ok", strings.Repeat("é", 750), false, false},
		{"751 multibyte runes", strings.Repeat("é", 751), false, true},
		{"no voices selected", "hello", true, true},
		{"valid", "Hello world", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &fakeSynth{stream: &scriptStream{
				contentType: "audio/mpeg",
				chunks:      [][]byte{[]byte("audio")},
				failAfter:   -1,
			}}
			c := tts.NewController(synth)

			voices := testVoices(t)
			if tt.noVoices {
				voices = tts.NewSelection([]string{"af_bella"})
			}

			s, err := c.Start(context.Background(), tt.text, voices, 1.0)
			if tt.wantErr {
				var ve *tts.ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("Start error = %v, want ValidationError", err)
				}
				if synth.callCount() != 0 {
					t.Errorf("synthesizer called %d times before validation passed", synth.callCount())
				}
				return
			}
			if err != nil {
				t.Fatalf("Start error = %v", err)
			}
			waitDone(t, s)
		})
	}
}

// TestSessionHappyPath tests a three-chunk stream ending cleanly:
// exactly one streamComplete, then one downloadReady carrying an
// artifact equal to the concatenated chunks.
func TestSessionHappyPath(t *testing.T) {
	chunks := [][]byte{[]byte("aaaaa"), []byte("bbbbb"), []byte("ccccc")}
	stream := &scriptStream{
		contentType: "audio/mpeg",
		length:      15,
		chunks:      chunks,
		failAfter:   -1,
	}
	synth := &fakeSynth{stream: stream}
	c := tts.NewController(synth)
	sub := c.Bus().Subscribe()
	defer sub.Close()

	s, err := c.Start(context.Background(), "Hello world", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}

	events := drainUntil(t, sub, tts.EventDownloadReady)
	waitDone(t, s)

	if events[0].Type != tts.EventRequestStarted {
		t.Errorf("first event = %v, want requestStarted", events[0].Type)
	}
	if n := countType(events, tts.EventStreamComplete); n != 1 {
		t.Errorf("streamComplete count = %d, want 1", n)
	}
	if n := countType(events, tts.EventDownloadReady); n != 1 {
		t.Errorf("downloadReady count = %d, want 1", n)
	}
	if n := countType(events, tts.EventProgress); n != len(chunks) {
		t.Errorf("progress count = %d, want %d", n, len(chunks))
	}
	if n := countType(events, tts.EventFailed); n != 0 {
		t.Errorf("failed count = %d, want 0", n)
	}

	if s.State() != tts.StateComplete {
		t.Errorf("State() = %v, want StateComplete", s.State())
	}
	art := s.Artifact()
	if art == nil {
		t.Fatal("Artifact() = nil after completion")
	}
	if !bytes.Equal(art.Bytes(), []byte("aaaaabbbbbccccc")) {
		t.Errorf("artifact bytes = %q, want concatenated chunks", art.Bytes())
	}
	if art.Voice() != "af_bella" {
		t.Errorf("artifact voice = %q, want af_bella", art.Voice())
	}

	last := events[len(events)-1]
	if last.Artifact == nil || last.Artifact.Len() != 15 {
		t.Errorf("downloadReady artifact = %+v, want 15 bytes", last.Artifact)
	}
	if !stream.wasClosed() {
		t.Error("stream not closed after completion")
	}
}

// TestSessionProgressMonotonic tests that progress never decreases
// and carries the known total.
func TestSessionProgressMonotonic(t *testing.T) {
	stream := &scriptStream{
		contentType: "audio/mpeg",
		length:      12,
		chunks:      [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc")},
		failAfter:   -1,
	}
	c := tts.NewController(&fakeSynth{stream: stream})
	sub := c.Bus().Subscribe()
	defer sub.Close()

	s, err := c.Start(context.Background(), "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	events := drainUntil(t, sub, tts.EventDownloadReady)
	waitDone(t, s)

	var prev int64 = -1
	for _, e := range events {
		if e.Type != tts.EventProgress {
			continue
		}
		if e.Loaded < prev {
			t.Errorf("progress decreased: %d after %d", e.Loaded, prev)
		}
		prev = e.Loaded
		if e.Total != 12 {
			t.Errorf("progress total = %d, want 12", e.Total)
		}
		if e.Indeterminate() {
			t.Error("progress reported indeterminate with known total")
		}
	}
	if prev != 12 {
		t.Errorf("final progress = %d, want 12", prev)
	}
}

// TestSessionIndeterminateProgress tests streams with unknown length.
func TestSessionIndeterminateProgress(t *testing.T) {
	stream := &scriptStream{
		contentType: "audio/mpeg",
		length:      -1,
		chunks:      [][]byte{[]byte("audio")},
		failAfter:   -1,
	}
	c := tts.NewController(&fakeSynth{stream: stream})
	sub := c.Bus().Subscribe()
	defer sub.Close()

	s, err := c.Start(context.Background(), "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	events := drainUntil(t, sub, tts.EventDownloadReady)
	waitDone(t, s)

	for _, e := range events {
		if e.Type == tts.EventProgress && !e.Indeterminate() {
			t.Errorf("progress event %+v should be indeterminate", e)
		}
	}
}

// TestSessionTransportFailure tests a stream interrupted after one
// chunk: a failed event with the transport message, no downloadReady.
func TestSessionTransportFailure(t *testing.T) {
	stream := &scriptStream{
		contentType: "audio/mpeg",
		length:      100,
		chunks:      [][]byte{[]byte("chunk")},
		failAfter:   1,
		failWith:    &tts.TransportError{Op: "read stream", Err: io.ErrUnexpectedEOF},
	}
	c := tts.NewController(&fakeSynth{stream: stream})
	sub := c.Bus().Subscribe()
	defer sub.Close()

	s, err := c.Start(context.Background(), "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	events := drainUntil(t, sub, tts.EventFailed)
	waitDone(t, s)

	if s.State() != tts.StateFailed {
		t.Errorf("State() = %v, want StateFailed", s.State())
	}
	var te *tts.TransportError
	if !errors.As(s.Err(), &te) {
		t.Errorf("Err() = %v, want TransportError", s.Err())
	}

	failed := events[len(events)-1]
	if !strings.Contains(failed.Message, "transport error") {
		t.Errorf("failed message = %q, want transport error text", failed.Message)
	}
	if n := countType(events, tts.EventDownloadReady); n != 0 {
		t.Errorf("downloadReady count = %d, want 0 after failure", n)
	}
	if n := countType(events, tts.EventStreamComplete); n != 0 {
		t.Errorf("streamComplete count = %d, want 0 after failure", n)
	}
	if s.Artifact() != nil {
		t.Error("Artifact() != nil after failure")
	}
	if !stream.wasClosed() {
		t.Error("stream not closed after failure")
	}
}

// TestSessionServiceError tests a request the service refuses before
// any audio is produced.
func TestSessionServiceError(t *testing.T) {
	synth := &fakeSynth{err: &tts.ServiceError{StatusCode: 400, Message: "Input text is empty"}}
	c := tts.NewController(synth)
	sub := c.Bus().Subscribe()
	defer sub.Close()

	s, err := c.Start(context.Background(), "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	events := drainUntil(t, sub, tts.EventFailed)
	waitDone(t, s)

	if s.State() != tts.StateFailed {
		t.Errorf("State() = %v, want StateFailed", s.State())
	}
	failed := events[len(events)-1]
	if !strings.Contains(failed.Message, "Input text is empty") {
		t.Errorf("failed message = %q, want service message", failed.Message)
	}
}

// TestSessionCancel tests that cancelling mid-stream yields Cancelled
// and never Failed, even though the abort surfaces a context error
// from the suspended read.
func TestSessionCancel(t *testing.T) {
	stream := &hangingStream{
		contentType: "audio/mpeg",
		chunks:      [][]byte{[]byte("chunk")},
	}
	c := tts.NewController(&fakeSynth{stream: stream})
	sub := c.Bus().Subscribe()
	defer sub.Close()

	s, err := c.Start(context.Background(), "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}

	// Wait for the first chunk so the cancel lands mid-stream.
	drainUntil(t, sub, tts.EventProgress)

	if !s.Cancel() {
		t.Fatal("Cancel() = false, want true for a live session")
	}
	events := drainUntil(t, sub, tts.EventCancelled)
	waitDone(t, s)
	events = append(events, drainRemaining(sub)...)

	if s.State() != tts.StateCancelled {
		t.Errorf("State() = %v, want StateCancelled", s.State())
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v, want nil after cancellation", s.Err())
	}
	if n := countType(events, tts.EventFailed); n != 0 {
		t.Errorf("failed count = %d, want 0 after cancel", n)
	}
	if n := countType(events, tts.EventCancelled); n != 1 {
		t.Errorf("cancelled count = %d, want 1", n)
	}
	if s.Artifact() != nil {
		t.Error("Artifact() != nil after cancellation")
	}
	if !stream.wasClosed() {
		t.Error("stream not closed after cancellation")
	}

	// Cancelling a terminal session reports false and stays silent.
	if s.Cancel() {
		t.Error("Cancel() = true on a terminal session")
	}
}

// TestSessionCancelDuringRequest tests cancellation before the
// connection opens.
func TestSessionCancelDuringRequest(t *testing.T) {
	stream := &hangingStream{contentType: "audio/mpeg"}
	c := tts.NewController(&fakeSynth{stream: stream})
	sub := c.Bus().Subscribe()
	defer sub.Close()

	s, err := c.Start(context.Background(), "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	if !c.Cancel() {
		t.Fatal("Cancel() = false, want true")
	}
	drainUntil(t, sub, tts.EventCancelled)
	waitDone(t, s)

	if s.State() != tts.StateCancelled {
		t.Errorf("State() = %v, want StateCancelled", s.State())
	}
}

// TestSessionConcurrency tests the single-active-session invariant.
func TestSessionConcurrency(t *testing.T) {
	stream := &hangingStream{contentType: "audio/mpeg"}
	c := tts.NewController(&fakeSynth{stream: stream})

	first, err := c.Start(context.Background(), "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("first Start error = %v", err)
	}

	_, err = c.Start(context.Background(), "again", testVoices(t), 1.0)
	var ce *tts.ConcurrencyError
	if !errors.As(err, &ce) {
		t.Fatalf("second Start error = %v, want ConcurrencyError", err)
	}
	if ce.ActiveID != first.ID() {
		t.Errorf("ConcurrencyError.ActiveID = %q, want %q", ce.ActiveID, first.ID())
	}

	first.Cancel()
	waitDone(t, first)

	second, err := c.Start(context.Background(), "after cancel", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start after cancel error = %v", err)
	}
	if second.ID() == first.ID() {
		t.Error("second session reused the first session's identifier")
	}
	second.Cancel()
	waitDone(t, second)
}

// TestSessionSupersededTokenIsolation tests that a finished session's
// cancel token cannot disturb its successor.
func TestSessionSupersededTokenIsolation(t *testing.T) {
	finished := &scriptStream{contentType: "audio/mpeg", chunks: [][]byte{[]byte("a")}, failAfter: -1}
	synth := &fakeSynth{stream: finished}
	c := tts.NewController(synth)

	first, err := c.Start(context.Background(), "one", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	waitDone(t, first)

	synth.mu.Lock()
	synth.stream = &hangingStream{contentType: "audio/mpeg", chunks: [][]byte{[]byte("b")}}
	synth.mu.Unlock()

	second, err := c.Start(context.Background(), "two", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("second Start error = %v", err)
	}

	if first.Cancel() {
		t.Error("Cancel() on a superseded session = true, want false")
	}
	if second.State().Terminal() {
		t.Error("second session terminated by the first session's cancel")
	}
	second.Cancel()
	waitDone(t, second)
}

// TestSessionRequestContents tests what is actually sent: trimmed
// text, the wire-encoded mix, speed, and the configured format.
func TestSessionRequestContents(t *testing.T) {
	stream := &scriptStream{contentType: "audio/wav", chunks: [][]byte{[]byte("a")}, failAfter: -1}
	synth := &fakeSynth{stream: stream}
	c := tts.NewController(synth, tts.WithFormat("wav"))

	voices := tts.NewSelection([]string{"af_bella", "am_adam"})
	voices.AddWeight("af_bella", 0.6)
	voices.AddWeight("am_adam", 1.2)

	s, err := c.Start(context.Background(), "  Hello world  ", voices, 1.3)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	waitDone(t, s)

	req := synth.request()
	if req.Text != "Hello world" {
		t.Errorf("request text = %q, want trimmed %q", req.Text, "Hello world")
	}
	if req.Voice != "af_bella(0.6)+am_adam(1.2)" {
		t.Errorf("request voice = %q, want af_bella(0.6)+am_adam(1.2)", req.Voice)
	}
	if req.Speed != 1.3 {
		t.Errorf("request speed = %v, want 1.3", req.Speed)
	}
	if req.Format != "wav" {
		t.Errorf("request format = %q, want wav", req.Format)
	}
	if s.Voice() != "af_bella(0.6)+am_adam(1.2)" {
		t.Errorf("session voice = %q", s.Voice())
	}
}

// TestSessionPlayback tests the playback echoes: started once the
// buffer crosses the threshold, paused and resumed on demand, ended
// on the sink's natural-end callback.
func TestSessionPlayback(t *testing.T) {
	stream := &scriptStream{
		contentType: "audio/mpeg",
		length:      8,
		chunks:      [][]byte{[]byte("aaaa"), []byte("bbbb")},
		failAfter:   -1,
	}
	sink := &mockSink{}
	c := tts.NewController(&fakeSynth{stream: stream},
		tts.WithSink(sink),
		tts.WithMinPlayableBytes(4))
	sub := c.Bus().Subscribe()
	defer sub.Close()

	s, err := c.Start(context.Background(), "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	events := drainUntil(t, sub, tts.EventDownloadReady)
	waitDone(t, s)

	if n := countType(events, tts.EventPlaybackStarted); n != 1 {
		t.Errorf("playbackStarted count = %d, want 1", n)
	}
	play, _, _, _ := sink.counts()
	if play != 1 {
		t.Errorf("sink Play calls = %d, want 1", play)
	}
	if !c.PlaybackActive() {
		t.Error("PlaybackActive() = false while sink plays")
	}

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause error = %v", err)
	}
	if e := drainUntil(t, sub, tts.EventPlaybackPaused); countType(e, tts.EventPlaybackPaused) != 1 {
		t.Error("pause did not publish playbackPaused")
	}
	if c.PlaybackActive() {
		t.Error("PlaybackActive() = true after Pause")
	}

	if err := c.Resume(); err != nil {
		t.Fatalf("Resume error = %v", err)
	}
	drainUntil(t, sub, tts.EventPlaybackStarted)
	_, pause, resume, _ := sink.counts()
	if pause != 1 || resume != 1 {
		t.Errorf("sink pause/resume = %d/%d, want 1/1", pause, resume)
	}

	sink.finishPlayback()
	drainUntil(t, sub, tts.EventPlaybackEnded)
	if c.PlaybackActive() {
		t.Error("PlaybackActive() = true after natural end")
	}
}

// TestSessionPlaybackNotRestarted tests that later chunks extend the
// playable range without re-triggering Play.
func TestSessionPlaybackNotRestarted(t *testing.T) {
	stream := &scriptStream{
		contentType: "audio/mpeg",
		length:      16,
		chunks:      [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc"), []byte("dddd")},
		failAfter:   -1,
	}
	sink := &mockSink{}
	c := tts.NewController(&fakeSynth{stream: stream},
		tts.WithSink(sink),
		tts.WithMinPlayableBytes(2))
	sub := c.Bus().Subscribe()
	defer sub.Close()

	s, err := c.Start(context.Background(), "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	drainUntil(t, sub, tts.EventDownloadReady)
	waitDone(t, s)

	play, _, _, _ := sink.counts()
	if play != 1 {
		t.Errorf("sink Play calls = %d, want 1", play)
	}
}

// TestSessionCancelStopsPlayback tests that cancellation silences the
// sink.
func TestSessionCancelStopsPlayback(t *testing.T) {
	stream := &hangingStream{
		contentType: "audio/mpeg",
		chunks:      [][]byte{[]byte("aaaa")},
	}
	sink := &mockSink{}
	c := tts.NewController(&fakeSynth{stream: stream},
		tts.WithSink(sink),
		tts.WithMinPlayableBytes(2))
	sub := c.Bus().Subscribe()
	defer sub.Close()

	s, err := c.Start(context.Background(), "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	drainUntil(t, sub, tts.EventPlaybackStarted)

	s.Cancel()
	drainUntil(t, sub, tts.EventCancelled)
	waitDone(t, s)

	_, _, _, stop := sink.counts()
	if stop == 0 {
		t.Error("sink Stop not called on cancellation")
	}
	if c.PlaybackActive() {
		t.Error("PlaybackActive() = true after cancellation")
	}
}

// TestSessionShortClipPlaysAtSeal tests that a clip smaller than the
// threshold still plays once the stream ends.
func TestSessionShortClipPlaysAtSeal(t *testing.T) {
	stream := &scriptStream{
		contentType: "audio/mpeg",
		length:      3,
		chunks:      [][]byte{[]byte("abc")},
		failAfter:   -1,
	}
	sink := &mockSink{}
	c := tts.NewController(&fakeSynth{stream: stream},
		tts.WithSink(sink),
		tts.WithMinPlayableBytes(1<<20))
	sub := c.Bus().Subscribe()
	defer sub.Close()

	s, err := c.Start(context.Background(), "Hi", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	events := drainUntil(t, sub, tts.EventDownloadReady)
	waitDone(t, s)

	if n := countType(events, tts.EventPlaybackStarted); n != 1 {
		t.Errorf("playbackStarted count = %d, want 1", n)
	}
	if n := countType(events, tts.EventBufferError); n == 0 {
		t.Error("expected a buffering notice while below the threshold")
	}
}

// TestControllerClose tests teardown: the active session is cancelled
// and the sink released.
func TestControllerClose(t *testing.T) {
	stream := &hangingStream{contentType: "audio/mpeg"}
	sink := &mockSink{}
	c := tts.NewController(&fakeSynth{stream: stream}, tts.WithSink(sink))

	s, err := c.Start(context.Background(), "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	waitDone(t, s)

	if s.State() != tts.StateCancelled {
		t.Errorf("State() = %v, want StateCancelled after Close", s.State())
	}
	sink.mu.Lock()
	closed := sink.closeCount
	sink.mu.Unlock()
	if closed != 1 {
		t.Errorf("sink Close calls = %d, want 1", closed)
	}
}

// TestSessionParentContextCancel tests that cancelling the caller's
// context lands the session in Cancelled, not Failed.
func TestSessionParentContextCancel(t *testing.T) {
	stream := &hangingStream{contentType: "audio/mpeg", chunks: [][]byte{[]byte("x")}}
	c := tts.NewController(&fakeSynth{stream: stream})
	sub := c.Bus().Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s, err := c.Start(ctx, "Hello", testVoices(t), 1.0)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	drainUntil(t, sub, tts.EventProgress)

	cancel()
	drainUntil(t, sub, tts.EventCancelled)
	waitDone(t, s)

	if s.State() != tts.StateCancelled {
		t.Errorf("State() = %v, want StateCancelled", s.State())
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v, want nil", s.Err())
	}
}

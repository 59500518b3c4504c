package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/Dherick07/dexterous/tts"
)

// Config describes the audio device the player opens.
type Config struct {
	SampleRate int           // samples per second, e.g. 24000
	Channels   int           // 1 = mono, 2 = stereo
	BufferSize time.Duration // device buffer length, 0 for the oto default
}

// DefaultConfig returns the device configuration matching the speech
// service's output: 24 kHz samples on a stereo device.
func DefaultConfig() Config {
	return Config{
		SampleRate: 24000,
		Channels:   2,
	}
}

func validateConfig(config Config) error {
	if config.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	if config.BufferSize < 0 {
		return fmt.Errorf("buffer size must not be negative, got %s", config.BufferSize)
	}
	return nil
}

// Player is a tts.PlaybackSink backed by an oto audio device. The
// source reader handed to Play may block at the live edge of a
// download; the device simply stalls until more audio arrives.
type Player struct {
	context *oto.Context
	config  Config

	mu      sync.Mutex
	current *oto.Player
	src     io.Reader // decoded stream, kept alive while playing
	paused  bool
	closed  bool
	gen     int
	onEnded func()
}

var _ tts.PlaybackSink = (*Player)(nil)

// NewPlayer opens the audio device. Only one device can be open per
// process; callers share the returned player.
func NewPlayer(config Config) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid audio config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   config.BufferSize,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	return &Player{context: ctx, config: config}, nil
}

// Play decodes the stream and starts playing it, replacing any
// current playback.
func (p *Player) Play(src io.Reader, contentType string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("player is closed")
	}
	p.stopLocked()
	p.mu.Unlock()

	decoded, err := decodeStream(src, contentType, p.config.SampleRate, p.config.Channels)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("player is closed")
	}

	player := p.context.NewPlayer(decoded)
	player.Play()

	p.current = player
	p.src = decoded
	p.paused = false
	p.gen++
	go p.watch(p.gen, player)
	return nil
}

// watch polls the device until playback drains naturally, then fires
// the onEnded callback. Stop and Play bump gen to retire stale
// watchers.
func (p *Player) watch(gen int, player *oto.Player) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if p.closed || p.gen != gen {
			p.mu.Unlock()
			return
		}
		if p.paused {
			p.mu.Unlock()
			continue
		}
		if !player.IsPlaying() {
			player.Close()
			p.current = nil
			p.src = nil
			fn := p.onEnded
			p.mu.Unlock()
			if fn != nil {
				fn()
			}
			return
		}
		p.mu.Unlock()
	}
}

// Pause pauses the current playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return errors.New("cannot pause: nothing is playing")
	}
	if p.paused {
		return errors.New("cannot pause: playback is already paused")
	}
	p.current.Pause()
	p.paused = true
	return nil
}

// Resume resumes paused playback.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return errors.New("cannot resume: nothing is playing")
	}
	if !p.paused {
		return errors.New("cannot resume: playback is not paused")
	}
	p.current.Play()
	p.paused = false
	return nil
}

// Stop ends playback and releases the device player. Stopping an idle
// player is a no-op.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	if p.current != nil {
		p.current.Pause()
		p.current.Close()
		p.current = nil
	}
	p.src = nil
	p.paused = false
	p.gen++
}

// Playing reports whether audio is audibly playing right now.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && !p.paused
}

// SetOnEnded registers the callback fired when playback reaches the
// natural end of a clip.
func (p *Player) SetOnEnded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEnded = fn
}

// Close stops playback and drops the device. oto contexts have no
// Close in v3; releasing the reference is all that can be done.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.stopLocked()
	p.closed = true
	p.context = nil
	return nil
}

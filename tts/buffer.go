package tts

import (
	"io"
	"sync"
)

// DefaultMinPlayableBytes is how much audio must be buffered before
// playback of a still-streaming session first starts. Later appends
// simply extend the playable range.
const DefaultMinPlayableBytes = 32 * 1024

// Buffer accumulates the audio bytes of one generation session. Bytes
// are only ever appended, never reordered or truncated, until the
// buffer is discarded. Readers obtained from Reader observe a strictly
// growing prefix of the stream, which is what lets playback begin
// while the tail is still arriving.
type Buffer struct {
	mu        sync.Mutex
	cond      *sync.Cond
	data      []byte
	sealed    bool
	discarded bool
	minPlay   int
}

// NewBuffer returns an empty buffer. minPlayable gates the first
// playback start; values <= 0 select DefaultMinPlayableBytes.
func NewBuffer(minPlayable int) *Buffer {
	if minPlayable <= 0 {
		minPlayable = DefaultMinPlayableBytes
	}
	b := &Buffer{minPlay: minPlayable}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Append adds a chunk to the buffer and wakes any blocked readers.
func (b *Buffer) Append(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.discarded {
		return ErrDiscarded
	}
	if b.sealed {
		return ErrSealed
	}
	b.data = append(b.data, p...)
	b.cond.Broadcast()
	return nil
}

// Ready returns how many bytes have been appended so far.
func (b *Buffer) Ready() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.data))
}

// Playable reports whether enough audio exists to start playback:
// the minimum threshold is crossed, or the stream already ended with
// any data at all (a short clip is complete, not "still buffering").
func (b *Buffer) Playable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.discarded {
		return false
	}
	if len(b.data) >= b.minPlay {
		return true
	}
	return b.sealed && len(b.data) > 0
}

// Seal marks that no more data will arrive. Readers drain what is
// buffered and then see io.EOF. Sealing is required before the buffer
// can be exported as an artifact.
func (b *Buffer) Seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed || b.discarded {
		return
	}
	b.sealed = true
	b.cond.Broadcast()
}

// Sealed reports whether Seal has been called.
func (b *Buffer) Sealed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sealed
}

// Discard releases the buffered bytes and fails all current and
// future readers. Idempotent.
func (b *Buffer) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.discarded {
		return
	}
	b.discarded = true
	b.data = nil
	b.cond.Broadcast()
}

// Discarded reports whether Discard has been called.
func (b *Buffer) Discarded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discarded
}

// Artifact exports the sealed buffer as an immutable downloadable
// blob. It fails with ErrNotSealed while the stream is still open and
// ErrDiscarded after Discard. The artifact owns a private copy of the
// bytes, so discarding the buffer afterwards cannot touch it.
func (b *Buffer) Artifact(contentType, format, voice string) (*Artifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.discarded {
		return nil, ErrDiscarded
	}
	if !b.sealed {
		return nil, ErrNotSealed
	}
	data := make([]byte, len(b.data))
	copy(data, b.data)
	return newArtifact(data, contentType, format, voice), nil
}

// Reader returns a new independent reader over the buffer, starting
// at the beginning. Reads block until more data arrives; after Seal
// the remaining bytes drain and the reader returns io.EOF, and after
// Discard every read fails with ErrDiscarded.
func (b *Buffer) Reader() io.Reader {
	return &bufferReader{b: b}
}

type bufferReader struct {
	b   *Buffer
	off int
}

func (r *bufferReader) Read(p []byte) (int, error) {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if b.discarded {
			return 0, ErrDiscarded
		}
		if r.off < len(b.data) {
			n := copy(p, b.data[r.off:])
			r.off += n
			return n, nil
		}
		if b.sealed {
			return 0, io.EOF
		}
		b.cond.Wait()
	}
}

package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// decodeStream wraps a raw audio stream in a reader producing 16-bit
// little-endian PCM at the device's rate and channel count. The input
// reader may block; decoding happens incrementally as data arrives.
func decodeStream(src io.Reader, contentType string, sampleRate, channels int) (io.Reader, error) {
	switch normalizeContentType(contentType) {
	case "audio/mpeg", "audio/mp3", "application/octet-stream", "":
		// Servers that omit the content type almost always send mp3,
		// the default synthesis format.
		if channels != 2 {
			return nil, errors.New("mp3 playback needs a stereo device")
		}
		decoder, err := mp3.NewDecoder(src)
		if err != nil {
			return nil, fmt.Errorf("decode mp3 stream: %w", err)
		}
		if decoder.SampleRate() != sampleRate {
			return nil, fmt.Errorf("mp3 sample rate %d does not match device rate %d", decoder.SampleRate(), sampleRate)
		}
		return decoder, nil

	case "audio/wav", "audio/x-wav", "audio/wave":
		return newWAVStream(src, sampleRate, channels)

	case "audio/pcm", "audio/l16":
		// Raw synthesis output is mono.
		if channels == 2 {
			return newStereoUpmix(src), nil
		}
		return src, nil

	default:
		return nil, fmt.Errorf("unsupported audio content type %q", contentType)
	}
}

func normalizeContentType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// newWAVStream reads the RIFF header off src and returns a reader
// over the PCM samples, upmixing mono sources on a stereo device.
func newWAVStream(src io.Reader, sampleRate, deviceChannels int) (io.Reader, error) {
	var header [12]byte
	if _, err := io.ReadFull(src, header[:]); err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, errors.New("not a wav stream")
	}

	channels := 0
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(src, chunk[:]); err != nil {
			return nil, fmt.Errorf("read wav chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(src, body); err != nil {
				return nil, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			if len(body) < 8 {
				return nil, errors.New("wav fmt chunk too short")
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			if rate := int(binary.LittleEndian.Uint32(body[4:8])); rate != sampleRate {
				return nil, fmt.Errorf("wav sample rate %d does not match device rate %d", rate, sampleRate)
			}

		case "data":
			if channels == 0 {
				return nil, errors.New("wav data chunk before fmt chunk")
			}
			// Streamed wav headers carry a bogus data size, so play to
			// the end of the stream instead of trusting it.
			switch {
			case channels == deviceChannels:
				return src, nil
			case channels == 1 && deviceChannels == 2:
				return newStereoUpmix(src), nil
			default:
				return nil, fmt.Errorf("cannot play %d-channel wav on %d-channel device", channels, deviceChannels)
			}

		default:
			if _, err := io.CopyN(io.Discard, src, int64(size)); err != nil {
				return nil, fmt.Errorf("skip wav chunk %q: %w", id, err)
			}
		}
	}
}

// stereoUpmix duplicates each 16-bit mono sample into both stereo
// channels.
type stereoUpmix struct {
	src     io.Reader
	in      []byte
	doubled []byte
	out     []byte
	pending []byte // at most one carried byte from an odd-length read
	err     error
}

func newStereoUpmix(src io.Reader) *stereoUpmix {
	return &stereoUpmix{
		src:     src,
		in:      make([]byte, 2048),
		pending: make([]byte, 0, 1),
	}
}

func (r *stereoUpmix) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.fill()
	}
	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

func (r *stereoUpmix) fill() {
	copy(r.in, r.pending)
	n, err := r.src.Read(r.in[len(r.pending):])
	total := len(r.pending) + n
	r.pending = r.pending[:0]

	usable := total &^ 1
	if usable < total {
		// A sample split across reads; carry its first byte over.
		r.pending = append(r.pending, r.in[usable])
	}
	if usable > 0 {
		r.doubled = r.doubled[:0]
		for i := 0; i < usable; i += 2 {
			r.doubled = append(r.doubled, r.in[i], r.in[i+1], r.in[i], r.in[i+1])
		}
		r.out = r.doubled
	}
	if err != nil {
		r.err = err
	}
}

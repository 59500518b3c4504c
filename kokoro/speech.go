package kokoro

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/Dherick07/dexterous/tts"
)

const speechPath = "/v1/audio/speech"

// streamReadSize is how many bytes are asked of the network per read;
// yielded chunks are at most this large.
const streamReadSize = 32 * 1024

// speechPayload is the request body of the speech endpoint.
type speechPayload struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	Stream         bool    `json:"stream"`
}

var _ tts.Synthesizer = (*Client)(nil)

// Synthesize opens a streaming synthesis request and hands back the
// response as a byte stream. A refused request is reported as a
// tts.ServiceError before any audio is yielded; failures reaching the
// server are tts.TransportError.
func (c *Client) Synthesize(ctx context.Context, req tts.SpeechRequest) (tts.ByteStream, error) {
	payload := speechPayload{
		Model:          c.model,
		Input:          req.Text,
		Voice:          req.Voice,
		ResponseFormat: req.Format,
		Speed:          req.Speed,
		Stream:         true,
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, speechPath, payload)
	if err != nil {
		return nil, err
	}

	log.Debug("opening synthesis stream",
		"voice", req.Voice,
		"format", req.Format,
		"chars", len(req.Text))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, &tts.TransportError{Op: "open synthesis stream", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, parseError(resp)
	}
	return &Stream{resp: resp, ctx: ctx}, nil
}

// SynthesizeFile requests a complete, non-streamed clip and returns
// its bytes along with the reported content type.
func (c *Client) SynthesizeFile(ctx context.Context, req tts.SpeechRequest) ([]byte, string, error) {
	payload := speechPayload{
		Model:          c.model,
		Input:          req.Text,
		Voice:          req.Voice,
		ResponseFormat: req.Format,
		Speed:          req.Speed,
		Stream:         false,
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, speechPath, payload)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, "", cerr
		}
		return nil, "", &tts.TransportError{Op: "request synthesis", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", parseError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, "", cerr
		}
		return nil, "", &tts.TransportError{Op: "read synthesis response", Err: err}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Stream is one in-flight synthesis response: a finite, lazy, not
// restartable chunk sequence read straight off the network. Close it
// when done; dropping it mid-stream leaks the connection.
type Stream struct {
	resp *http.Response
	ctx  context.Context

	closeOnce sync.Once
	closeErr  error
}

var _ tts.ByteStream = (*Stream)(nil)

// ContentType returns the audio MIME type the server reported.
func (s *Stream) ContentType() string {
	return s.resp.Header.Get("Content-Type")
}

// ContentLength returns the total stream size, or -1 when the server
// streams with chunked encoding and cannot know it up front.
func (s *Stream) ContentLength() int64 {
	return s.resp.ContentLength
}

// Chunks yields audio as it arrives. Iteration ends cleanly at end of
// stream; a cancelled request yields the context's error and a broken
// connection a tts.TransportError. Each yielded slice is the
// consumer's to keep.
func (s *Stream) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		buf := make([]byte, streamReadSize)
		for {
			n, err := s.resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if cerr := s.ctx.Err(); cerr != nil {
					yield(nil, cerr)
					return
				}
				yield(nil, &tts.TransportError{Op: "read audio stream", Err: err})
				return
			}
		}
	}
}

// Close releases the underlying connection. Safe to call more than
// once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.resp.Body.Close()
	})
	return s.closeErr
}

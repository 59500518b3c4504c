// Package samples caches generated voice preview clips on disk so a
// voice can be auditioned without a round trip to the speech server.
package samples

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DefaultText is the line every preview clip speaks.
const DefaultText = "Hello Everyone, Welcome to Dexterous!"

// DefaultFormat is the audio format previews are generated in.
const DefaultFormat = "mp3"

// compressionThreshold is the minimum clip size worth attempting to
// compress.
const compressionThreshold = 1024

const compressedSuffix = ".zst"

// Store holds one preview clip per voice under a single directory.
// Clips that compress well are stored zstd-compressed; formats that
// are already dense, like mp3, stay as written. Safe for concurrent
// use.
type Store struct {
	dir    string
	format string

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithFormat sets the audio format clips are stored in.
func WithFormat(format string) Option {
	return func(s *Store) {
		if format != "" {
			s.format = format
		}
	}
}

// NewStore opens (creating if needed) a sample store rooted at dir.
func NewStore(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:    dir,
		format: DefaultFormat,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create samples directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	s.encoder = encoder
	s.decoder = decoder
	return s, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

// Format returns the audio format clips are stored in.
func (s *Store) Format() string { return s.format }

func (s *Store) plainPath(voice string) string {
	return filepath.Join(s.dir, voice+"."+s.format)
}

func (s *Store) compressedPath(voice string) string {
	return s.plainPath(voice) + compressedSuffix
}

func validVoice(voice string) error {
	if voice == "" || voice != filepath.Base(voice) {
		return fmt.Errorf("invalid voice name %q", voice)
	}
	return nil
}

// Has reports whether a non-empty clip exists for the voice.
func (s *Store) Has(voice string) bool {
	if validVoice(voice) != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, path := range []string{s.plainPath(voice), s.compressedPath(voice)} {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return true
		}
	}
	return false
}

// Put stores a clip for the voice, replacing any previous one, and
// returns the path written.
func (s *Store) Put(voice string, data []byte) (string, error) {
	if err := validVoice(voice); err != nil {
		return "", err
	}

	payload := data
	path := s.plainPath(voice)
	stale := s.compressedPath(voice)
	if len(data) >= compressionThreshold {
		if compressed := s.encoder.EncodeAll(data, make([]byte, 0, len(data))); len(compressed) < len(data) {
			payload = compressed
			path, stale = stale, path
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(path, payload); err != nil {
		return "", err
	}
	if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove stale sample: %w", err)
	}
	return path, nil
}

// Open returns the clip bytes for the voice, decompressing when
// needed.
func (s *Store) Open(voice string) ([]byte, error) {
	if err := validVoice(voice); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if data, err := os.ReadFile(s.plainPath(voice)); err == nil {
		return data, nil
	}
	data, err := os.ReadFile(s.compressedPath(voice))
	if err != nil {
		return nil, fmt.Errorf("no sample for voice %q", voice)
	}
	decompressed, err := s.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress sample for %q: %w", voice, err)
	}
	return decompressed, nil
}

// List returns the voices with stored clips, sorted.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read samples directory: %w", err)
	}

	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), compressedSuffix)
		suffix := "." + s.format
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		seen[strings.TrimSuffix(name, suffix)] = struct{}{}
	}

	voices := make([]string, 0, len(seen))
	for v := range seen {
		voices = append(voices, v)
	}
	sort.Strings(voices)
	return voices, nil
}

// Remove deletes the clip for a voice. Removing a voice with no clip
// is a no-op.
func (s *Store) Remove(voice string) error {
	if err := validVoice(voice); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, path := range []string{s.plainPath(voice), s.compressedPath(voice)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove sample: %w", err)
		}
	}
	return nil
}

// Clear deletes every stored clip.
func (s *Store) Clear() error {
	voices, err := s.List()
	if err != nil {
		return err
	}
	for _, v := range voices {
		if err := s.Remove(v); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the compression state. The store must not be used
// afterwards.
func (s *Store) Close() {
	s.encoder.Close()
	s.decoder.Close()
}

// writeFileAtomic writes through a temporary file and renames so a
// crash never leaves a half-written clip behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sample-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write sample: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close sample: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store sample: %w", err)
	}
	return nil
}

// Package audio plays synthesized speech through the system audio
// device using oto/v3. It decodes mp3, wav and raw pcm streams as they
// arrive, so playback can begin while the rest of the clip is still
// downloading.
package audio

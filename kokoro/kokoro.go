// Package kokoro is a small client for the Kokoro-FastAPI speech
// server: streaming and one-shot synthesis through the OpenAI-style
// /v1/audio/speech endpoint, and voice catalog listing. Service
// refusals and connection failures surface as the error types of the
// tts package, which is the only consumer-facing vocabulary this
// package speaks.
package kokoro

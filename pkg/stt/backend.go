// Package stt defines the interface the transcribe stage calls to turn a
// recorded audio file into text. Model internals (local inference, remote
// API clients) are out of scope for this module.
package stt

import "context"

// Backend transcribes the audio file at path to text. cfg is the transcribe
// stage's config map, passed through unchanged (keys such as provider,
// model, language, device, audio_format, history); backends ignore keys
// they don't understand.
//
// A non-nil error is treated as a backend failure by the transcribe stage,
// which logs it and yields no text rather than failing the run.
type Backend interface {
	Transcribe(ctx context.Context, path string, cfg map[string]any) (string, error)
}

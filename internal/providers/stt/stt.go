package stt

import "context"

// Provider transcribes a candidate voice message into text so it can be
// buffered like any other fragment.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language string) (text string, confidence float64, err error)
	Close() error
}

package storage

import (
	"context"
	"io"
)

// VoiceStore archives raw voice payloads and serves them back to the
// transcription worker.
type VoiceStore interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
	Fetch(ctx context.Context, objectName string) ([]byte, error)
}

package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
)

type GCSVoiceStore struct {
	client *gcs.Client
	bucket string
}

func NewGCSVoiceStore(ctx context.Context, bucket string) (*GCSVoiceStore, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSVoiceStore{client: c, bucket: bucket}, nil
}

func (s *GCSVoiceStore) Close() error { return s.client.Close() }

func (s *GCSVoiceStore) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	obj := s.client.Bucket(s.bucket).Object(objectName)

	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}

func (s *GCSVoiceStore) Fetch(ctx context.Context, objectName string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	const maxBytes = 10 << 20
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSStore keeps report files in a Google Cloud Storage bucket and
// serves them from the public storage.googleapis.com host.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Upload(ctx context.Context, obj Object) (*Uploaded, error) {
	name := obj.Folder + "/" + obj.Key

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.Metadata = map[string]string{"originalFilename": obj.Filename}
	if _, err := w.Write(obj.Data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("gcs write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gcs close %s: %w", name, err)
	}

	log.Printf("[storage] uploaded %s to gs://%s/%s", obj.Filename, s.bucket, name)
	return &Uploaded{
		URL:          s.publicURL(name),
		PublicID:     name,
		ResourceType: obj.ResourceType,
	}, nil
}

func (s *GCSStore) Delete(ctx context.Context, publicID, _ string) error {
	err := s.client.Bucket(s.bucket).Object(publicID).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", publicID, err)
	}
	return nil
}

func (s *GCSStore) KeyFromURL(rawURL string) (string, string, error) {
	prefix := s.publicURL("")
	if !strings.HasPrefix(rawURL, prefix) {
		return "", "", ErrUnrecognizedURL
	}
	name, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil || name == "" {
		return "", "", ErrUnrecognizedURL
	}
	return name, resourceTypeForFolder(filepathDir(name)), nil
}

func (s *GCSStore) publicURL(name string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, name)
}

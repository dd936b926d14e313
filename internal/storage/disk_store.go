package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes files under a local directory. It is meant for
// development where files are served by the API under BaseURL.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk store: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *DiskStore) Upload(_ context.Context, obj Object) (*Uploaded, error) {
	name := obj.Folder + "/" + obj.Key
	filePath := filepath.Join(s.dir, filepath.FromSlash(name))

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	if err := os.WriteFile(filePath, obj.Data, 0o644); err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	return &Uploaded{
		URL:          s.baseURL + "/" + name,
		PublicID:     name,
		ResourceType: obj.ResourceType,
	}, nil
}

func (s *DiskStore) Delete(_ context.Context, publicID, _ string) error {
	if strings.Contains(publicID, "..") {
		return ErrUnrecognizedURL
	}
	filePath := filepath.Join(s.dir, filepath.FromSlash(publicID))
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *DiskStore) KeyFromURL(rawURL string) (string, string, error) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", "", ErrUnrecognizedURL
	}
	name := strings.TrimPrefix(rawURL, prefix)
	if name == "" || strings.Contains(name, "..") {
		return "", "", ErrUnrecognizedURL
	}
	folder := filepathDir(name)
	return name, resourceTypeForFolder(folder), nil
}

func filepathDir(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i]
	}
	return ""
}

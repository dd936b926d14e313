package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

const (
	// ImageFolder holds report photos.
	ImageFolder = "trip-report"
	// TrackFolder holds GPX and KML track files.
	TrackFolder = "trip-report/gpx"

	ResourceImage = "image"
	ResourceRaw   = "raw"
)

var ErrUnrecognizedURL = errors.New("url does not belong to this file store")

// Object is a single file ready for upload.
type Object struct {
	Folder       string
	Key          string
	Filename     string
	ResourceType string
	ContentType  string
	DataURI      string
	Data         []byte
}

// PublicID is the object's provider-side identifier without extension
// for images and with extension for raw files.
func (o Object) PublicID() string {
	key := o.Key
	if o.ResourceType == ResourceImage {
		key = strings.TrimSuffix(key, path.Ext(key))
	}
	return path.Join(o.Folder, key)
}

// Uploaded describes a stored object.
type Uploaded struct {
	URL          string
	PublicID     string
	ResourceType string
}

// FileStore is an object store holding report files.
type FileStore interface {
	Upload(ctx context.Context, obj Object) (*Uploaded, error)
	Delete(ctx context.Context, publicID, resourceType string) error
	// KeyFromURL derives the identifiers Delete needs from a stored URL.
	KeyFromURL(url string) (publicID, resourceType string, err error)
}

// resourceTypeForFolder maps a folder to the resource type used on upload.
func resourceTypeForFolder(folder string) string {
	if folder == TrackFolder || strings.HasPrefix(folder, TrackFolder+"/") {
		return ResourceRaw
	}
	return ResourceImage
}

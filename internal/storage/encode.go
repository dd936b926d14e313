package storage

import (
	"encoding/base64"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var trackMIMETypes = []string{
	"application/gpx+xml",
	"application/vnd.google-earth.kml+xml",
	"application/vnd.google-earth.kmz",
}

// NewObject sniffs data, derives a fresh key that keeps the original
// extension and encodes the content as a data URI.
func NewObject(folder, filename string, data []byte) Object {
	mt := mimetype.Detect(data)

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = mt.Extension()
	}

	return Object{
		Folder:       folder,
		Key:          uuid.New().String() + ext,
		Filename:     filename,
		ResourceType: resourceTypeForFolder(folder),
		ContentType:  mt.String(),
		DataURI:      DataURI(mt.String(), data),
		Data:         data,
	}
}

// DataURI returns data as a base64 data URI.
func DataURI(contentType string, data []byte) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// IsImage reports whether data sniffs as an image.
func IsImage(data []byte) bool {
	return strings.HasPrefix(mimetype.Detect(data).String(), "image/")
}

// IsTrackFile reports whether data looks like a GPX or KML file.
func IsTrackFile(filename string, data []byte) bool {
	mt := mimetype.Detect(data)
	if mimetype.EqualsAny(mt.String(), trackMIMETypes...) {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".gpx" && ext != ".kml" {
		return false
	}
	return mt.Is("text/xml") || mt.Is("application/xml")
}

package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/schema"

	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/services"
)

const (
	imagesField    = "images"
	trackFileField = "gpxKmlFile"
)

var errRequestTooLarge = errors.New("request body too large")

var formDecoder = newFormDecoder()

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(false)
	return d
}

// parseReportSubmission reads a multipart report form. Unknown keys and
// values that do not convert are returned as a ValidationError.
func parseReportSubmission(w http.ResponseWriter, r *http.Request, maxBytes int64) (*models.ReportSubmission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, errRequestTooLarge
		}
		return nil, services.NewValidationError(map[string]string{"form": "Invalid form data"})
	}

	// Blank values are treated as absent so required checks see them.
	values := make(map[string][]string, len(r.MultipartForm.Value))
	for k, vs := range r.MultipartForm.Value {
		kept := make([]string, 0, len(vs))
		for _, v := range vs {
			if strings.TrimSpace(v) != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			values[k] = kept
		}
	}

	sub := &models.ReportSubmission{}
	if err := formDecoder.Decode(&sub.Form, values); err != nil {
		return nil, formDecodeError(err)
	}

	images, err := readFileParts(r.MultipartForm.File[imagesField])
	if err != nil {
		return nil, err
	}
	sub.Images = images

	tracks, err := readFileParts(r.MultipartForm.File[trackFileField])
	if err != nil {
		return nil, err
	}
	sub.TrackFileCount = len(tracks)
	if len(tracks) > 0 {
		sub.TrackFile = &tracks[0]
	}
	return sub, nil
}

func readFileParts(headers []*multipart.FileHeader) ([]models.UploadFile, error) {
	files := make([]models.UploadFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Size == 0 {
			continue
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		files = append(files, models.UploadFile{Filename: fh.Filename, Data: data})
	}
	return files, nil
}

func formDecodeError(err error) error {
	fields := make(map[string]string)
	var multi schema.MultiError
	if !errors.As(err, &multi) {
		fields["form"] = "Invalid form data"
		return services.NewValidationError(fields)
	}

	keys := make([]string, 0, len(multi))
	for k := range multi {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch e := multi[k].(type) {
		case schema.UnknownKeyError:
			fields[e.Key] = "Unknown field"
		case schema.ConversionError:
			fields[e.Key] = fmt.Sprintf("Invalid value for %s", e.Key)
		default:
			fields[k] = "Invalid value"
		}
	}
	return services.NewValidationError(fields)
}

package services

import (
	"context"
	"encoding/base64"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

type SafeSearchResult struct {
	Adult    string
	Violence string
	Racy     string
	Spoof    string
	Medical  string
}

func isUnsafeLikelyOrHigher(l string) bool {
	return l == "LIKELY" || l == "VERY_LIKELY"
}

func (r *SafeSearchResult) IsUnsafe() bool {
	return isUnsafeLikelyOrHigher(r.Adult) || isUnsafeLikelyOrHigher(r.Violence) || isUnsafeLikelyOrHigher(r.Racy)
}

// SafeSearchDetector runs SAFE_SEARCH_DETECTION on one image.
type SafeSearchDetector interface {
	Detect(ctx context.Context, img *vision.Image) (*SafeSearchResult, error)
}

// VisionDetector calls the Cloud Vision REST API.
type VisionDetector struct {
	svc *vision.Service
}

// NewVisionDetector uses Application Default Credentials.
func NewVisionDetector(ctx context.Context, opts ...option.ClientOption) (*VisionDetector, error) {
	opts = append([]option.ClientOption{option.WithScopes(vision.CloudPlatformScope)}, opts...)
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &VisionDetector{svc: svc}, nil
}

func (d *VisionDetector) Detect(ctx context.Context, img *vision.Image) (*SafeSearchResult, error) {
	call := d.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    img,
			Features: []*vision.Feature{{Type: "SAFE_SEARCH_DETECTION"}},
		}},
	})
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Responses) == 0 || resp.Responses[0].SafeSearchAnnotation == nil {
		return &SafeSearchResult{}, nil
	}

	ss := resp.Responses[0].SafeSearchAnnotation
	return &SafeSearchResult{
		Adult:    ss.Adult,
		Violence: ss.Violence,
		Racy:     ss.Racy,
		Spoof:    ss.Spoof,
		Medical:  ss.Medical,
	}, nil
}

// ImageFromBytes inlines image content in the request.
func ImageFromBytes(data []byte) *vision.Image {
	return &vision.Image{Content: base64.StdEncoding.EncodeToString(data)}
}

// ImageFromURL lets Vision fetch a publicly reachable image.
func ImageFromURL(url string) *vision.Image {
	return &vision.Image{Source: &vision.ImageSource{ImageUri: url}}
}

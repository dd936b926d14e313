package services

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/storage"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("schema"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		switch f.Kind() {
		case reflect.Float32, reflect.Float64:
			x := f.Float()
			return !math.IsNaN(x) && !math.IsInf(x, 0)
		}
		return true
	})
	_ = v.RegisterValidation("activity", func(fl validator.FieldLevel) bool {
		return models.IsActivityType(fl.Field().String())
	})
	return v
}

// normalizeForm trims text fields, removes duplicate activity types and
// fills in the placeholder body.
func normalizeForm(f *models.ReportForm) {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.Location.Country = strings.TrimSpace(f.Location.Country)
	f.Location.Region = strings.TrimSpace(f.Location.Region)
	f.Location.Area = strings.TrimSpace(f.Location.Area)
	f.Location.Objective = strings.TrimSpace(f.Location.Objective)
	f.StartDate = strings.TrimSpace(f.StartDate)
	f.EndDate = strings.TrimSpace(f.EndDate)
	f.MapURL = strings.TrimSpace(f.MapURL)

	if strings.TrimSpace(f.Body) == "" {
		f.Body = models.PlaceholderBody
	}

	seen := make(map[string]bool, len(f.ActivityTypes))
	types := make([]string, 0, len(f.ActivityTypes))
	for _, a := range f.ActivityTypes {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		types = append(types, a)
	}
	f.ActivityTypes = types
}

// ValidateSubmission checks a submission before anything is uploaded.
// retainedImages is the number of stored images the submission keeps.
func ValidateSubmission(sub *models.ReportSubmission, retainedImages int) error {
	normalizeForm(&sub.Form)

	fields := make(map[string]string)

	if err := validate.Struct(&sub.Form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			key := fieldKey(fe.Namespace())
			if _, exists := fields[key]; !exists {
				fields[key] = fieldMessage(fe)
			}
		}
	}

	if _, bad := fields["startDate"]; !bad {
		if _, bad := fields["endDate"]; !bad {
			start, _ := time.Parse(models.DateLayout, sub.Form.StartDate)
			end, _ := time.Parse(models.DateLayout, sub.Form.EndDate)
			if end.Before(start) {
				fields["endDate"] = "End date must be on or after the start date"
			}
		}
	}

	if n := retainedImages + len(sub.Images); n > models.MaxReportImages {
		fields["images"] = fmt.Sprintf("A report can have at most %d images", models.MaxReportImages)
	}
	for _, img := range sub.Images {
		if !storage.IsImage(img.Data) {
			fields["images"] = fmt.Sprintf("%s is not an image", img.Filename)
			break
		}
	}

	if sub.TrackFileCount > 1 {
		fields["gpxKmlFile"] = "Only one GPX or KML file can be attached"
	} else if sub.TrackFile != nil && !storage.IsTrackFile(sub.TrackFile.Filename, sub.TrackFile.Data) {
		fields["gpxKmlFile"] = "Track file must be a GPX or KML file"
	}

	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

// fieldKey turns "ReportForm.location.country" into "location.country"
// and "ReportForm.activityType[1]" into "activityType".
func fieldKey(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	if i := strings.Index(namespace, "["); i >= 0 {
		namespace = namespace[:i]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "min":
		return "Select at least one activity type"
	case "activity":
		return fmt.Sprintf("Unknown activity type %q", fe.Value())
	case "finite":
		return "Must be a number"
	case "gte":
		return "Must be zero or greater"
	case "datetime":
		return "Must be a date in YYYY-MM-DD format"
	case "url":
		return "Must be a valid URL"
	}
	return "Invalid value"
}

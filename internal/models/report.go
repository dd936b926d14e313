package models

import (
	"time"
)

// MaxReportImages is the most images a single report may reference.
const MaxReportImages = 5

// PlaceholderBody is stored when a report is submitted without body text.
const PlaceholderBody = "<p>No trip details were provided for this report.</p>"

// ActivityTypes lists the activity values a report may be tagged with.
var ActivityTypes = []string{
	"Hiking",
	"Backpacking",
	"Trail Running",
	"Mountaineering",
	"Rock Climbing",
	"Ice Climbing",
	"Ski Touring",
	"Snowshoeing",
	"Mountain Biking",
	"Canyoneering",
	"Packrafting",
	"Other",
}

// IsActivityType reports whether v is one of ActivityTypes.
func IsActivityType(v string) bool {
	for _, a := range ActivityTypes {
		if a == v {
			return true
		}
	}
	return false
}

// StoredFile references an object held by the file store.
type StoredFile struct {
	URL              string `json:"url" bson:"url"`
	OriginalFilename string `json:"originalFilename" bson:"original_filename"`
}

type Location struct {
	Country   string `json:"country" bson:"country"`
	Region    string `json:"region" bson:"region"`
	Area      string `json:"area,omitempty" bson:"area,omitempty"`
	Objective string `json:"objective" bson:"objective"`
}

type Report struct {
	ID            string       `json:"id" bson:"_id"`
	UserID        string       `json:"userId" bson:"user_id"`
	Title         string       `json:"title" bson:"title"`
	Description   string       `json:"description" bson:"description"`
	Body          string       `json:"body" bson:"body"`
	ActivityTypes []string     `json:"activityType" bson:"activity_types"`
	Location      Location     `json:"location" bson:"location"`
	Distance      float64      `json:"distance" bson:"distance"`
	ElevationGain float64      `json:"elevationGain" bson:"elevation_gain"`
	ElevationLoss float64      `json:"elevationLoss" bson:"elevation_loss"`
	Duration      float64      `json:"duration" bson:"duration"`
	StartDate     time.Time    `json:"startDate" bson:"start_date"`
	EndDate       time.Time    `json:"endDate" bson:"end_date"`
	Images        []StoredFile `json:"images,omitempty" bson:"images,omitempty"`
	TrackFile     *StoredFile  `json:"gpxKmlFile,omitempty" bson:"gpx_kml_file,omitempty"`
	MapURL        string       `json:"caltopoUrl,omitempty" bson:"caltopo_url,omitempty"`
	Featured      bool         `json:"featured" bson:"featured"`
	CreatedAt     time.Time    `json:"createdAt" bson:"created_at"`
	UpdatedAt     time.Time    `json:"updatedAt" bson:"updated_at"`
}

// ReportUpdate is a partial update keyed by stored field name. Fields in
// Unset are removed from the record rather than written as null.
type ReportUpdate struct {
	Set   map[string]interface{}
	Unset []string
}

// HasUnset reports whether field is scheduled for removal.
func (u ReportUpdate) HasUnset(field string) bool {
	for _, f := range u.Unset {
		if f == field {
			return true
		}
	}
	return false
}

// ReportQuery filters the public listing.
type ReportQuery struct {
	Search       string
	ActivityType string
	Country      string
	UserID       string
	Page         int
	Limit        int
}

type ReportPage struct {
	Reports    []Report `json:"reports"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	TotalPages int      `json:"totalPages"`
}

// SubmitReportResponse is returned after a report is created or updated.
type SubmitReportResponse struct {
	Report   *Report `json:"report"`
	Redirect string  `json:"redirect"`
}

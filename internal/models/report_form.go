package models

// DateLayout is the wire format of startDate and endDate.
const DateLayout = "2006-01-02"

type LocationForm struct {
	Country   string `schema:"country" validate:"required,max=100"`
	Region    string `schema:"region" validate:"required,max=100"`
	Area      string `schema:"area" validate:"max=100"`
	Objective string `schema:"objective" validate:"required,max=200"`
}

// ReportForm is the decoded multipart form for creating or editing a report.
type ReportForm struct {
	Title         string       `schema:"title" validate:"required,max=200"`
	Description   string       `schema:"description" validate:"required,max=2000"`
	Body          string       `schema:"body"`
	ActivityTypes []string     `schema:"activityType" validate:"min=1,dive,activity"`
	Location      LocationForm `schema:"location"`
	Distance      *float64     `schema:"distance" validate:"required,finite,gte=0"`
	ElevationGain *float64     `schema:"elevationGain" validate:"required,finite,gte=0"`
	ElevationLoss *float64     `schema:"elevationLoss" validate:"required,finite,gte=0"`
	Duration      *float64     `schema:"duration" validate:"required,finite,gte=0"`
	StartDate     string       `schema:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate       string       `schema:"endDate" validate:"required,datetime=2006-01-02"`
	MapURL        string       `schema:"caltopoUrl" validate:"omitempty,url,max=2048"`

	// Edit only.
	RemoveImages    []string `schema:"removeImages"`
	RemoveTrackFile bool     `schema:"removeGpxKmlFile"`
}

// UploadFile is one file part of a submission.
type UploadFile struct {
	Filename string
	Data     []byte
}

// ReportSubmission is a parsed create or edit request.
type ReportSubmission struct {
	Form      ReportForm
	Images    []UploadFile
	TrackFile *UploadFile

	// TrackFileCount is the number of non-empty track file parts received.
	TrackFileCount int
}

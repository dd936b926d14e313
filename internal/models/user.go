package models

import "time"

type UserStats struct {
	TotalReports       int     `json:"totalReports" bson:"total_reports"`
	TotalDistance      float64 `json:"totalDistance" bson:"total_distance"`
	TotalElevationGain float64 `json:"totalElevationGain" bson:"total_elevation_gain"`
	TotalElevationLoss float64 `json:"totalElevationLoss" bson:"total_elevation_loss"`
}

// User is keyed by the identity provider's user id.
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Email        string    `json:"email,omitempty" bson:"email"`
	DisplayName  string    `json:"displayName" bson:"display_name"`
	Bio          string    `json:"bio" bson:"bio"`
	ProfileImage string    `json:"profileImage,omitempty" bson:"profile_image,omitempty"`
	Stats        UserStats `json:"stats" bson:"stats"`
	Bookmarks    []string  `json:"bookmarks" bson:"bookmarks"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}

// PublicProfile is what other users see.
type PublicProfile struct {
	ID           string      `json:"id"`
	DisplayName  string      `json:"displayName"`
	Bio          string      `json:"bio"`
	ProfileImage string      `json:"profileImage,omitempty"`
	Stats        UserStats   `json:"stats"`
	Reports      *ReportPage `json:"reports"`
	MemberSince  time.Time   `json:"memberSince"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
}

func (r *UpdateProfileRequest) Validate() map[string]string {
	fields := make(map[string]string)

	if r.DisplayName != nil {
		if *r.DisplayName == "" {
			fields["displayName"] = "Display name cannot be empty"
		} else if len(*r.DisplayName) > 80 {
			fields["displayName"] = "Display name is too long"
		}
	}
	if r.Bio != nil && len(*r.Bio) > 1000 {
		fields["bio"] = "Bio is too long"
	}

	return fields
}

// IdentityUser is the subset of an identity provider user record we keep.
type IdentityUser struct {
	ID          string
	Email       string
	DisplayName string
	ImageURL    string
}

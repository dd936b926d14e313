package services

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tripreport/backend/internal/database"
	"github.com/tripreport/backend/internal/metrics"
	"github.com/tripreport/backend/internal/storage"
)

// AccountTimeout bounds a full account deletion.
const AccountTimeout = 30 * time.Second

type MongoAccountService struct {
	reports  *mongo.Collection
	users    *mongo.Collection
	messages *mongo.Collection
	files    storage.FileStore
	pages    PageInvalidator
}

func NewMongoAccountService(db *mongo.Database, files storage.FileStore, pages PageInvalidator) *MongoAccountService {
	return &MongoAccountService{
		reports:  db.Collection(database.ReportsCollection),
		users:    db.Collection(database.UsersCollection),
		messages: db.Collection(database.MessagesCollection),
		files:    files,
		pages:    pages,
	}
}

type DeleteAccountResult struct {
	ReportIDs    []string `json:"reportIds"`
	FilesDeleted int      `json:"filesDeleted"`
	FilesFailed  int      `json:"filesFailed"`
}

// DeleteAccount removes the user's reports, their files, messages sent or
// received by the user and the profile itself. File URLs are gathered
// before any document is removed.
func (s *MongoAccountService) DeleteAccount(ctx context.Context, userID string) (*DeleteAccountResult, error) {
	type reportFiles struct {
		ID     string `bson:"_id"`
		Images []struct {
			URL string `bson:"url"`
		} `bson:"images"`
		TrackFile *struct {
			URL string `bson:"url"`
		} `bson:"gpx_kml_file"`
	}

	cur, err := s.reports.Find(ctx, bson.M{"user_id": userID}, options.Find().SetProjection(bson.M{
		"_id":          1,
		"images.url":   1,
		"gpx_kml_file": 1,
	}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	reportIDs := make([]string, 0)
	urls := make([]string, 0)
	for cur.Next(ctx) {
		var d reportFiles
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		reportIDs = append(reportIDs, d.ID)
		for _, img := range d.Images {
			if img.URL != "" {
				urls = append(urls, img.URL)
			}
		}
		if d.TrackFile != nil && d.TrackFile.URL != "" {
			urls = append(urls, d.TrackFile.URL)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	// Bookmarks of other users first, so no one points at a missing report.
	if len(reportIDs) > 0 {
		if _, err := s.users.UpdateMany(ctx,
			bson.M{"bookmarks": bson.M{"$in": reportIDs}},
			bson.M{"$pull": bson.M{"bookmarks": bson.M{"$in": reportIDs}}},
		); err != nil {
			return nil, err
		}
	}
	if _, err := s.reports.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return nil, err
	}
	if _, err := s.messages.DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"sender_id": userID},
		bson.M{"recipient_id": userID},
	}}); err != nil {
		return nil, err
	}
	if _, err := s.users.DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
		return nil, err
	}

	res := &DeleteAccountResult{ReportIDs: reportIDs}
	for _, u := range urls {
		publicID, rt, err := s.files.KeyFromURL(u)
		if err == nil {
			err = s.files.Delete(ctx, publicID, rt)
		}
		if err != nil {
			res.FilesFailed++
			metrics.CleanupFailures.Inc()
			log.Printf("[account] file delete failed user=%s url=%s err=%v", userID, u, err)
			continue
		}
		res.FilesDeleted++
	}

	if s.pages != nil {
		paths := []string{"/users/" + userID, "/reports", "/reports/featured", "/"}
		for _, id := range reportIDs {
			paths = append(paths, "/reports/"+id)
		}
		if err := s.pages.Invalidate(ctx, paths...); err != nil {
			log.Printf("[account] page invalidation failed user=%s err=%v", userID, err)
		}
	}

	log.Printf("[account] deleted user=%s reports=%d files=%d failed=%d", userID, len(reportIDs), res.FilesDeleted, res.FilesFailed)
	return res, nil
}

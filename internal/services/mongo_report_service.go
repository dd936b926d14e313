package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/tripreport/backend/internal/database"
	"github.com/tripreport/backend/internal/models"
)

const (
	defaultPageSize = 12
	maxPageSize     = 50
	maxPage         = 10000
	dbTimeout       = 10 * time.Second
)

type MongoReportService struct {
	col *mongo.Collection
}

func NewMongoReportService(db *mongo.Database) *MongoReportService {
	return &MongoReportService{col: db.Collection(database.ReportsCollection)}
}

// EnsureIndexes creates the indexes listings rely on. Failures are not fatal.
func (s *MongoReportService) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "featured", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "activity_types", Value: 1}}},
		{Keys: bson.D{{Key: "location.country", Value: 1}}},
	})
	return err
}

func (s *MongoReportService) Insert(ctx context.Context, report *models.Report) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.col.InsertOne(ctx, report)
	return err
}

func (s *MongoReportService) GetByID(ctx context.Context, id string) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var report models.Report
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&report); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return &report, nil
}

func (s *MongoReportService) Update(ctx context.Context, userID, id string, upd models.ReportUpdate) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	update := bson.M{}
	if len(upd.Set) > 0 {
		update["$set"] = bson.M(upd.Set)
	}
	if len(upd.Unset) > 0 {
		unset := bson.M{}
		for _, field := range upd.Unset {
			unset[field] = ""
		}
		update["$unset"] = unset
	}

	res := s.col.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "user_id": userID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var updated models.Report
	if err := res.Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.missingOrForeign(ctx, id)
		}
		return nil, err
	}
	return &updated, nil
}

func (s *MongoReportService) Delete(ctx context.Context, userID, id string) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var deleted models.Report
	err := s.col.FindOneAndDelete(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&deleted)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.missingOrForeign(ctx, id)
		}
		return nil, err
	}
	return &deleted, nil
}

// missingOrForeign distinguishes not found from owned by someone else
// after an owner-filtered write matched nothing.
func (s *MongoReportService) missingOrForeign(ctx context.Context, id string) error {
	err := s.col.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrReportNotFound
	}
	if err != nil {
		return err
	}
	return ErrUnauthorized
}

func (s *MongoReportService) List(ctx context.Context, q models.ReportQuery) (*models.ReportPage, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	page, limit := normalizePage(q.Page, q.Limit)
	filter := buildReportFilter(q)

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	var (
		reports []models.Report
		total   int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cur, err := s.col.Find(gctx, filter, findOpts)
		if err != nil {
			return err
		}
		return cur.All(gctx, &reports)
	})
	g.Go(func() error {
		n, err := s.col.CountDocuments(gctx, filter)
		total = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if reports == nil {
		reports = []models.Report{}
	}
	pages := int((total + int64(limit) - 1) / int64(limit))
	return &models.ReportPage{
		Reports:    reports,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: pages,
	}, nil
}

func (s *MongoReportService) Featured(ctx context.Context, limit int) ([]models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cur, err := s.col.Find(ctx, bson.M{"featured": true},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	reports := []models.Report{}
	if err := cur.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// GetMany loads reports in the order of ids, skipping any that no longer exist.
func (s *MongoReportService) GetMany(ctx context.Context, ids []string) ([]models.Report, error) {
	if len(ids) == 0 {
		return []models.Report{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cur, err := s.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var found []models.Report
	if err := cur.All(ctx, &found); err != nil {
		return nil, err
	}

	byID := make(map[string]models.Report, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}
	out := make([]models.Report, 0, len(found))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

// buildReportFilter turns listing options into a query. Search is a
// case-insensitive substring match, not a text index.
func buildReportFilter(q models.ReportQuery) bson.M {
	filter := bson.M{}

	if search := strings.TrimSpace(q.Search); search != "" {
		rx := bson.M{"$regex": regexp.QuoteMeta(search), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"title": rx},
			bson.M{"description": rx},
			bson.M{"location.country": rx},
			bson.M{"location.region": rx},
			bson.M{"location.area": rx},
			bson.M{"location.objective": rx},
		}
	}
	if a := strings.TrimSpace(q.ActivityType); a != "" {
		filter["activity_types"] = a
	}
	if c := strings.TrimSpace(q.Country); c != "" {
		filter["location.country"] = bson.M{"$regex": "^" + regexp.QuoteMeta(c) + "$", "$options": "i"}
	}
	if q.UserID != "" {
		filter["user_id"] = q.UserID
	}
	return filter
}

// PullImage removes the image with url from the report.
func (s *MongoReportService) PullImage(ctx context.Context, reportID, url string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": reportID},
		bson.M{
			"$pull": bson.M{"images": bson.M{"url": url}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrReportNotFound
	}
	return nil
}

// UpdatedAfter lists reports with images whose (updated_at, _id) sorts
// after (since, afterID), oldest first.
func (s *MongoReportService) UpdatedAfter(ctx context.Context, since time.Time, afterID string, limit int) ([]models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cur, err := s.col.Find(ctx,
		bson.M{
			"images.0": bson.M{"$exists": true},
			"$or": bson.A{
				bson.M{"updated_at": bson.M{"$gt": since}},
				bson.M{"updated_at": since, "_id": bson.M{"$gt": afterID}},
			},
		},
		options.Find().
			SetSort(bson.D{{Key: "updated_at", Value: 1}, {Key: "_id", Value: 1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	reports := []models.Report{}
	if err := cur.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

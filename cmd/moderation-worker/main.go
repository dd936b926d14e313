package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tripreport/backend/internal/cache"
	"github.com/tripreport/backend/internal/config"
	"github.com/tripreport/backend/internal/database"
	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/services"
	"github.com/tripreport/backend/internal/storage"
)

const (
	sweepBatch    = 50
	firstLookback = 24 * time.Hour
)

// reportSource lists reports whose images changed after a checkpoint.
type reportSource interface {
	UpdatedAfter(ctx context.Context, since time.Time, afterID string, limit int) ([]models.Report, error)
}

type reviewer interface {
	ReviewReport(ctx context.Context, r *models.Report) (int, error)
}

// sweeper re-checks published images of reports changed since the last
// successful sweep. A Cloud Scheduler job POSTs /events to trigger it.
type sweeper struct {
	mu      sync.Mutex
	reports reportSource
	review  reviewer
	batch   int
	// checkpoint: last reviewed (updated_at, _id)
	since   time.Time
	sinceID string
}

type sweepResult struct {
	Reviewed int       `json:"reviewed"`
	Removed  int       `json:"removed"`
	Since    time.Time `json:"since"`
}

func (s *sweeper) sweep(ctx context.Context) (*sweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.batch
	if size <= 0 {
		size = sweepBatch
	}
	res := &sweepResult{Since: s.since}
	for {
		batch, err := s.reports.UpdatedAfter(ctx, s.since, s.sinceID, size)
		if err != nil {
			return res, err
		}
		for i := range batch {
			r := &batch[i]
			removed, err := s.review.ReviewReport(ctx, r)
			res.Removed += removed
			if err != nil {
				log.Printf("[worker] review failed report=%s err=%v", r.ID, err)
				return res, err
			}
			res.Reviewed++
			// Advance only past fully reviewed reports so a failure is retried.
			s.since, s.sinceID = r.UpdatedAt, r.ID
		}
		if len(batch) < size {
			return res, nil
		}
	}
}

func (s *sweeper) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		log.Printf("[worker] rejected non-POST method=%s", r.Method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, _ = io.Copy(io.Discard, r.Body)
	log.Printf("[worker] sweep triggered: Ce-Type=%s Ce-Source=%s", r.Header.Get("Ce-Type"), r.Header.Get("Ce-Source"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	res, err := s.sweep(ctx)
	if err != nil {
		// Non-2xx makes the scheduler retry.
		log.Printf("[worker] sweep failed after reviewed=%d removed=%d err=%v", res.Reviewed, res.Removed, err)
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	log.Printf("[worker] DONE reviewed=%d removed=%d", res.Reviewed, res.Removed)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	ctx := context.Background()

	client, db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("[worker] mongo connect failed: %v", err)
	}
	defer client.Disconnect(ctx)

	files, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("[worker] storage init failed: %v", err)
	}
	if c, ok := files.(io.Closer); ok {
		defer c.Close()
	}

	detector, err := services.NewVisionDetector(ctx)
	if err != nil {
		log.Fatalf("[worker] vision client init failed: %v", err)
	}

	reports := services.NewMongoReportService(db)
	s := &sweeper{
		reports: reports,
		review: &services.ModerationActions{
			Detector: detector,
			Reports:  reports,
			Files:    files,
			Flags:    services.NewMongoUserFlagService(db),
			Pages:    workerPages(ctx, cfg),
		},
		since: time.Now().UTC().Add(-firstLookback),
	}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	http.HandleFunc("/events", s.handleEvents)

	addr := os.Getenv("PORT")
	if addr == "" {
		addr = "8080"
	}
	log.Printf("moderation-worker listening on :%s", addr)
	log.Fatal(http.ListenAndServe(":"+addr, nil))
}

// workerPages shares the API's Redis page cache. Without Redis the API
// caches in process and its pages age out after PAGE_CACHE_TTL.
func workerPages(ctx context.Context, cfg *config.Config) services.PageInvalidator {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("[worker] invalid REDIS_URL, page invalidation disabled: %v", err)
		return nil
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[worker] redis unreachable, page invalidation disabled: %v", err)
		rdb.Close()
		return nil
	}
	return cache.NewRedisPageCache(rdb)
}

package services

import (
	"context"
	"fmt"
	"log"

	"github.com/tripreport/backend/internal/models"
)

// StrikeRecorder counts moderation strikes against a user.
type StrikeRecorder interface {
	AddStrike(ctx context.Context, userID, reason string) (*models.UserFlag, error)
}

// ModerationService screens report images with SafeSearch before they are
// uploaded and records a strike for every rejected image.
type ModerationService struct {
	detector SafeSearchDetector
	flags    StrikeRecorder
}

// NewModerationService builds the service. flags may be nil if strike
// tracking is not needed.
func NewModerationService(detector SafeSearchDetector, flags StrikeRecorder) *ModerationService {
	return &ModerationService{detector: detector, flags: flags}
}

func (m *ModerationService) CheckImage(ctx context.Context, userID string, img models.UploadFile) error {
	ss, err := m.detector.Detect(ctx, ImageFromBytes(img.Data))
	if err != nil {
		log.Printf("[moderation] SafeSearch error file=%s err=%v", img.Filename, err)
		return fmt.Errorf("moderation: safesearch: %w", err)
	}

	if !ss.IsUnsafe() {
		return nil
	}

	log.Printf("[moderation] image UNSAFE file=%s user=%s adult=%s violence=%s racy=%s",
		img.Filename, userID, ss.Adult, ss.Violence, ss.Racy)
	m.strike(ctx, userID, "upload:"+img.Filename)
	return ErrImageRejected
}

func (m *ModerationService) strike(ctx context.Context, userID, reason string) {
	if m.flags == nil || userID == "" {
		return
	}
	if _, err := m.flags.AddStrike(ctx, userID, reason); err != nil {
		log.Printf("[moderation] strike failed userID=%s err=%v", userID, err)
	}
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/nft-marketplace/client/internal/config"
	"github.com/nft-marketplace/client/internal/events"
	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
)

type ProgressAPI interface {
	InscriptionProgress(ctx context.Context, collectionID, userLayerID string) (*models.InscriptionProgress, error)
}

// ProgressService tracks server-side inscription of a collection by polling.
type ProgressService struct {
	api       ProgressAPI
	publisher events.Publisher
	log       *zap.Logger
	interval  time.Duration
}

func NewProgressService(progressAPI ProgressAPI, publisher events.Publisher, cfg *config.Config, log *zap.Logger) *ProgressService {
	interval := cfg.ProgressPollInterval
	if interval <= 0 {
		interval = 8 * time.Second
	}
	return &ProgressService{
		api:       progressAPI,
		publisher: publisher,
		log:       log,
		interval:  interval,
	}
}

func (s *ProgressService) Current(ctx context.Context, collectionID, userLayerID string) (models.InscriptionProgress, error) {
	p, err := s.api.InscriptionProgress(ctx, collectionID, userLayerID)
	if err != nil {
		return models.InscriptionProgress{}, fmt.Errorf("inscription progress: %w", err)
	}
	return *p, nil
}

// Watch polls until inscription finishes or ctx is done. fn, when set, sees
// every reading. A failed poll is logged and retried on the next tick.
func (s *ProgressService) Watch(ctx context.Context, collectionID, userLayerID string, fn func(models.InscriptionProgress)) (models.InscriptionProgress, error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last models.InscriptionProgress
	for {
		p, err := s.api.InscriptionProgress(ctx, collectionID, userLayerID)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			s.log.Warn("inscription progress poll failed", zap.String("collection_id", collectionID), zap.Error(err))
		} else {
			last = *p
			if fn != nil {
				fn(last)
			}
			s.publish(ctx, collectionID, last)
			if last.Finished() {
				s.log.Info("inscription finished", zap.String("collection_id", collectionID), zap.Int("total", last.Total))
				return last, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *ProgressService) publish(ctx context.Context, collectionID string, p models.InscriptionProgress) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.StreamClient, events.Event{
		Type: events.EventInscriptionProgress,
		Payload: map[string]any{
			"collectionId": collectionID,
			"done":         p.Done,
			"total":        p.Total,
		},
	})
	if err != nil {
		s.log.Debug("progress event not published", zap.Error(err))
	}
}

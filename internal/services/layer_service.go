package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type LayerAPI interface {
	ListLayers(ctx context.Context) ([]models.Layer, error)
	GetLayer(ctx context.Context, id string) (*models.Layer, error)
}

// LayerService caches the layer catalog fetched at startup.
type LayerService struct {
	api   LayerAPI
	log   *zap.Logger
	loads singleflight.Group

	mu     sync.RWMutex
	layers map[string]models.Layer
	order  []string
	loaded bool
}

func NewLayerService(layerAPI LayerAPI, log *zap.Logger) *LayerService {
	return &LayerService{
		api:    layerAPI,
		log:    log,
		layers: make(map[string]models.Layer),
	}
}

// Refresh replaces the cache with the API's current catalog.
func (s *LayerService) Refresh(ctx context.Context) ([]models.Layer, error) {
	v, err, _ := s.loads.Do("layers", func() (any, error) {
		layers, err := s.api.ListLayers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list layers: %w", err)
		}

		s.mu.Lock()
		s.layers = make(map[string]models.Layer, len(layers))
		s.order = s.order[:0]
		for _, l := range layers {
			s.layers[l.ID] = l
			s.order = append(s.order, l.ID)
		}
		s.loaded = true
		s.mu.Unlock()

		s.log.Info("layer catalog loaded", zap.Int("count", len(layers)))
		return layers, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Layer), nil
}

func (s *LayerService) List(ctx context.Context) ([]models.Layer, error) {
	s.mu.RLock()
	if s.loaded {
		out := make([]models.Layer, 0, len(s.order))
		for _, id := range s.order {
			out = append(out, s.layers[id])
		}
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()
	return s.Refresh(ctx)
}

// Layer resolves id from the cache, then from the API.
func (s *LayerService) Layer(ctx context.Context, id string) (models.Layer, error) {
	s.mu.RLock()
	l, ok := s.layers[id]
	s.mu.RUnlock()
	if ok {
		return l, nil
	}

	fetched, err := s.api.GetLayer(ctx, id)
	if errors.Is(err, api.ErrNotFound) {
		return models.Layer{}, fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	if err != nil {
		return models.Layer{}, fmt.Errorf("get layer %s: %w", id, err)
	}

	s.mu.Lock()
	if _, exists := s.layers[fetched.ID]; !exists {
		s.order = append(s.order, fetched.ID)
	}
	s.layers[fetched.ID] = *fetched
	s.mu.Unlock()
	return *fetched, nil
}

// FindByChainID returns the EVM layer owning chainID, if the catalog has one.
func (s *LayerService) FindByChainID(ctx context.Context, chainID int64) (models.Layer, bool) {
	if chainID == 0 {
		return models.Layer{}, false
	}
	layers, err := s.List(ctx)
	if err != nil {
		s.log.Warn("layer catalog unavailable", zap.Error(err))
		return models.Layer{}, false
	}
	for _, l := range layers {
		if l.Kind == models.LayerKindEVM && l.ChainID == chainID {
			return l, true
		}
	}
	return models.Layer{}, false
}

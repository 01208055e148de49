package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
)

var ErrNotAuthenticated = errors.New("session is not authenticated")

// CachedPrice is a display-only quote.
type CachedPrice struct {
	USD       float64   `json:"usd"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Store is the single owner of the persisted session. All mutation goes
// through its setters; readers get deep copies.
type Store struct {
	storage Storage
	log     *zap.Logger

	mu      sync.RWMutex
	session models.Session
	price   *CachedPrice
}

func NewStore(storage Storage, log *zap.Logger) *Store {
	return &Store{
		storage: storage,
		log:     log,
		session: emptySession(),
	}
}

func emptySession() models.Session {
	return models.Session{UserLayerCache: make(map[string]models.UserLayer)}
}

// Load hydrates the in-memory session from storage. A blob that fails to
// decode or that claims authentication without a user or token is dropped.
func (s *Store) Load(ctx context.Context) (models.Session, error) {
	sess := emptySession()

	blob, ok, err := s.storage.Get(ctx, KeyWalletSession)
	if err != nil {
		return models.Session{}, fmt.Errorf("load session: %w", err)
	}
	if ok && blob != "" {
		if err := json.Unmarshal([]byte(blob), &sess); err != nil {
			s.log.Warn("discarding unreadable session blob", zap.Error(err))
			sess = emptySession()
		}
		if sess.UserLayerCache == nil {
			sess.UserLayerCache = make(map[string]models.UserLayer)
		}
	}

	if sess.Tokens.AccessToken, _, err = s.storage.Get(ctx, KeyAccessToken); err != nil {
		return models.Session{}, fmt.Errorf("load access token: %w", err)
	}
	if sess.Tokens.RefreshToken, _, err = s.storage.Get(ctx, KeyRefreshToken); err != nil {
		return models.Session{}, fmt.Errorf("load refresh token: %w", err)
	}
	if id, ok, err := s.storage.Get(ctx, KeySelectedLayerID); err != nil {
		return models.Session{}, fmt.Errorf("load selected layer: %w", err)
	} else if ok {
		sess.SelectedLayerID = id
	}

	var price *CachedPrice
	if raw, ok, err := s.storage.Get(ctx, KeyBTCPrice); err == nil && ok {
		var p CachedPrice
		if json.Unmarshal([]byte(raw), &p) == nil {
			price = &p
		}
	}

	if !sess.Valid() {
		s.log.Warn("persisted session claims authentication without user or token, dropping it")
		selected := sess.SelectedLayerID
		sess = emptySession()
		sess.SelectedLayerID = selected
	}

	s.mu.Lock()
	s.session = sess
	s.price = price
	out := s.session.Clone()
	s.mu.Unlock()
	return out, nil
}

func (s *Store) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// SetAuthenticated records a successful login and selects its layer.
func (s *Store) SetAuthenticated(ctx context.Context, user models.User, layer models.Layer, ul models.UserLayer, tokens models.Tokens) error {
	if tokens.AccessToken == "" {
		return errors.New("login returned no access token")
	}
	s.mu.Lock()
	s.session.Authenticated = true
	s.session.User = &user
	s.session.Tokens = tokens
	s.session.UserLayerCache[layer.ID] = ul
	s.selectLocked(layer)
	snap := s.session.Clone()
	s.mu.Unlock()

	if err := s.persistTokens(ctx, tokens); err != nil {
		return err
	}
	return s.persist(ctx, snap)
}

// AddUserLayer caches a linked account. It never touches the user.
func (s *Store) AddUserLayer(ctx context.Context, ul models.UserLayer) error {
	s.mu.Lock()
	if !s.session.Authenticated {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	s.session.UserLayerCache[ul.LayerID] = ul
	snap := s.session.Clone()
	s.mu.Unlock()
	return s.persist(ctx, snap)
}

// SelectLayer makes layer current. The current user layer follows the cache
// and is nil when the layer has not been linked yet.
func (s *Store) SelectLayer(ctx context.Context, layer models.Layer) error {
	s.mu.Lock()
	s.selectLocked(layer)
	snap := s.session.Clone()
	s.mu.Unlock()
	return s.persist(ctx, snap)
}

func (s *Store) selectLocked(layer models.Layer) {
	l := layer
	s.session.CurrentLayer = &l
	s.session.SelectedLayerID = layer.ID
	if ul, ok := s.session.UserLayerCache[layer.ID]; ok {
		s.session.CurrentUserLayer = &ul
	} else {
		s.session.CurrentUserLayer = nil
	}
}

// SetSelectedLayerID stores the layer preference made before connecting.
func (s *Store) SetSelectedLayerID(ctx context.Context, layerID string) error {
	s.mu.Lock()
	s.session.SelectedLayerID = layerID
	s.mu.Unlock()
	return s.storage.Set(ctx, KeySelectedLayerID, layerID)
}

func (s *Store) CachedUserLayer(layerID string) (models.UserLayer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ul, ok := s.session.UserLayerCache[layerID]
	return ul, ok
}

func (s *Store) Tokens() models.Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Tokens
}

func (s *Store) SetTokens(ctx context.Context, tokens models.Tokens) error {
	s.mu.Lock()
	s.session.Tokens = tokens
	s.mu.Unlock()
	return s.persistTokens(ctx, tokens)
}

func (s *Store) SetCachedPrice(ctx context.Context, p CachedPrice) error {
	s.mu.Lock()
	s.price = &p
	s.mu.Unlock()

	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.storage.Set(ctx, KeyBTCPrice, string(b))
}

func (s *Store) CachedPrice() (CachedPrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.price == nil {
		return CachedPrice{}, false
	}
	return *s.price, true
}

// Clear is logout: user, tokens, current layer and the user layer cache go.
// The layer preference and the price quote are not credentials and survive.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	selected := s.session.SelectedLayerID
	s.session = emptySession()
	s.session.SelectedLayerID = selected
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyWalletSession); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Store) persistTokens(ctx context.Context, tokens models.Tokens) error {
	if err := s.storage.Set(ctx, KeyAccessToken, tokens.AccessToken); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if err := s.storage.Set(ctx, KeyRefreshToken, tokens.RefreshToken); err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, snap models.Session) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.storage.Set(ctx, KeyWalletSession, string(b)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if err := s.storage.Set(ctx, KeySelectedLayerID, snap.SelectedLayerID); err != nil {
		return fmt.Errorf("persist selected layer: %w", err)
	}
	if snap.CurrentLayer != nil {
		if err := s.storage.Set(ctx, KeySelectedLayer, snap.CurrentLayer.Key()); err != nil {
			return fmt.Errorf("persist selected layer: %w", err)
		}
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/auth"
	"github.com/nft-marketplace/client/internal/config"
	"github.com/nft-marketplace/client/internal/events"
	"github.com/nft-marketplace/client/internal/metrics"
	"github.com/nft-marketplace/client/internal/models"
	"github.com/nft-marketplace/client/internal/session"
	"github.com/nft-marketplace/client/internal/wallet"
	"go.uber.org/zap"
)

// AuthAPI is the part of the marketplace API the wallet session needs.
type AuthAPI interface {
	GenerateMessage(ctx context.Context, address string) (string, error)
	Login(ctx context.Context, req api.SignInRequest) (*api.LoginResponse, error)
	LinkAccount(ctx context.Context, req api.SignInRequest) (*api.LinkAccountResponse, error)
	LinkAccountToAnotherUser(ctx context.Context, req api.SignInRequest) (*api.LinkAccountResponse, error)
}

type WalletSource interface {
	Adapter(kind models.LayerKind) (wallet.Adapter, error)
}

type LayerResolver interface {
	Layer(ctx context.Context, id string) (models.Layer, error)
	FindByChainID(ctx context.Context, chainID int64) (models.Layer, bool)
}

// SessionService drives the wallet session: connect, chain confirmation,
// signing, login or link, layer switching, restoration and logout.
type SessionService struct {
	api       AuthAPI
	wallets   WalletSource
	layers    LayerResolver
	store     *session.Store
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
	now       func() time.Time

	// inFlight guards connect/switch/confirm sequences independently of state
	inFlight atomic.Bool
	// epoch changes on every logout; flows started in an older epoch are discarded
	epoch atomic.Uint64
	// commitMu orders flow writes against logout
	commitMu sync.Mutex

	mu          sync.RWMutex
	state       models.WalletState
	lastErr     error
	unsubscribe func()
}

func NewSessionService(
	authAPI AuthAPI,
	wallets WalletSource,
	layers LayerResolver,
	store *session.Store,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *SessionService {
	return &SessionService{
		api:       authAPI,
		wallets:   wallets,
		layers:    layers,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		state:     models.Disconnected{},
	}
}

func (s *SessionService) State() models.WalletState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError is the error of the most recent failed flow, cleared by the next success.
func (s *SessionService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *SessionService) Session() models.Session {
	return s.store.Snapshot()
}

// Connect connects the wallet matching the layer and authenticates it. An
// authenticated session always links the layer to the existing user; a
// layer that is already linked is switched to without signing.
func (s *SessionService) Connect(ctx context.Context, layerID string, isLinking bool) (models.Session, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return models.Session{}, ErrConnectionInProgress
	}
	defer s.inFlight.Store(false)

	epoch := s.epoch.Load()
	layer, err := s.layers.Layer(ctx, layerID)
	if err != nil {
		return models.Session{}, err
	}

	snap := s.store.Snapshot()
	if isLinking && !snap.Authenticated {
		return models.Session{}, fmt.Errorf("link %s: %w", layer.Name, ErrNotAuthenticated)
	}

	if snap.Authenticated {
		if snap.CurrentLayer != nil && snap.CurrentLayer.ID == layer.ID {
			return snap, nil
		}
		if _, ok := s.store.CachedUserLayer(layer.ID); ok {
			return s.switchLayer(ctx, epoch, snap, layer)
		}
	}

	flow := "login"
	if snap.Authenticated {
		flow = "link"
	}
	if err := s.store.SetSelectedLayerID(ctx, layer.ID); err != nil {
		s.log.Warn("selected layer not persisted", zap.String("layer", layer.Name), zap.Error(err))
	}

	pending := s.newPending(layer.ID, snap.Authenticated)
	if err := s.advance(epoch, models.Connecting{Pending: pending}); err != nil {
		return models.Session{}, err
	}

	out, err := s.connectAndSign(ctx, epoch, layer, pending)
	metrics.ObserveWalletFlow(flow, err)
	if err != nil {
		s.fail(ctx, epoch, err, recoverState(snap))
		return models.Session{}, err
	}
	return out, nil
}

// SwitchLayer makes layerID the active layer. A layer with a cached user
// layer only needs a wallet-level chain switch; any other layer goes through
// the full link sequence.
func (s *SessionService) SwitchLayer(ctx context.Context, layerID string) (models.Session, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return models.Session{}, ErrConnectionInProgress
	}
	defer s.inFlight.Store(false)

	epoch := s.epoch.Load()
	snap := s.store.Snapshot()
	if !snap.Authenticated {
		return models.Session{}, ErrNotAuthenticated
	}
	layer, err := s.layers.Layer(ctx, layerID)
	if err != nil {
		return models.Session{}, err
	}
	if snap.CurrentLayer != nil && snap.CurrentLayer.ID == layer.ID {
		return snap, nil
	}
	return s.switchLayer(ctx, epoch, snap, layer)
}

func (s *SessionService) switchLayer(ctx context.Context, epoch uint64, snap models.Session, layer models.Layer) (models.Session, error) {
	from := ""
	if snap.CurrentLayer != nil {
		from = snap.CurrentLayer.ID
	}
	if err := s.advance(epoch, models.SwitchingLayer{FromLayerID: from, ToLayerID: layer.ID}); err != nil {
		return models.Session{}, err
	}

	out, err := s.switchTo(ctx, epoch, layer)
	metrics.ObserveWalletFlow("switch", err)
	if err != nil {
		s.fail(ctx, epoch, err, recoverState(snap))
		return models.Session{}, err
	}
	return out, nil
}

func (s *SessionService) switchTo(ctx context.Context, epoch uint64, layer models.Layer) (models.Session, error) {
	cached, ok := s.store.CachedUserLayer(layer.ID)
	pending := s.newPending(layer.ID, true)
	if !ok {
		if err := s.advance(epoch, models.Connecting{Pending: pending}); err != nil {
			return models.Session{}, err
		}
		return s.connectAndSign(ctx, epoch, layer, pending)
	}

	adapter, err := s.wallets.Adapter(layer.Kind)
	if err != nil {
		return models.Session{}, err
	}
	address, err := activeAccount(ctx, adapter)
	if err != nil {
		return models.Session{}, err
	}
	if !sameAddress(address, cached.Address) {
		// the wallet moved to another account since the layer was linked
		s.log.Info("wallet account differs from linked account, linking again",
			zap.String("layer", layer.Name), zap.String("linked", cached.Address), zap.String("active", address))
		if err := s.advance(epoch, models.Connecting{Pending: pending}); err != nil {
			return models.Session{}, err
		}
		return s.connectAndSign(ctx, epoch, layer, pending)
	}

	if err := s.confirmChain(ctx, epoch, adapter, layer, pending, address); err != nil {
		return models.Session{}, err
	}

	if err := s.commit(epoch, func() error {
		return s.store.SelectLayer(ctx, layer)
	}); err != nil {
		return models.Session{}, err
	}
	return s.authenticated(ctx, epoch, adapter, layer, address)
}

// connectAndSign runs connect → chain-confirm → sign → login/link from the
// Connecting state.
func (s *SessionService) connectAndSign(ctx context.Context, epoch uint64, layer models.Layer, pending models.PendingConnection) (models.Session, error) {
	adapter, err := s.wallets.Adapter(layer.Kind)
	if err != nil {
		return models.Session{}, err
	}

	accounts, err := adapter.RequestAccounts(ctx)
	if err != nil {
		return models.Session{}, err
	}
	address := accounts[0]

	if err := s.confirmChain(ctx, epoch, adapter, layer, pending, address); err != nil {
		return models.Session{}, err
	}

	if err := s.advance(epoch, models.Signing{Pending: pending, Address: address}); err != nil {
		return models.Session{}, err
	}

	message, err := s.challenge(ctx, address)
	if err != nil {
		return models.Session{}, err
	}

	metrics.ObserveSignatureRequest(string(layer.Kind))
	signature, err := adapter.SignMessage(ctx, address, message)
	if err != nil {
		return models.Session{}, err
	}

	if s.cfg.VerifySignatures {
		ok, err := wallet.VerifySignature(layer, address, message, signature)
		if err != nil {
			return models.Session{}, fmt.Errorf("verify signature: %w", err)
		}
		if !ok {
			return models.Session{}, ErrSignatureMismatch
		}
	}

	pubkey, err := adapter.PublicKey(ctx)
	if err != nil {
		s.log.Warn("wallet public key unavailable", zap.String("layer", layer.Name), zap.Error(err))
	}

	req := api.SignInRequest{
		Address:       address,
		SignedMessage: signature,
		LayerID:       layer.ID,
		Pubkey:        pubkey,
	}

	if err := s.checkEpoch(epoch); err != nil {
		return models.Session{}, err
	}

	if pending.IsLinking {
		resp, err := s.api.LinkAccount(ctx, req)
		if err != nil {
			return models.Session{}, fmt.Errorf("link account: %w", err)
		}
		if resp.HasAlreadyBeenLinkedToAnotherUser {
			return models.Session{}, &LinkConflictError{Layer: layer, Request: req}
		}
		if err := s.commit(epoch, func() error {
			if err := s.store.AddUserLayer(ctx, resp.UserLayer); err != nil {
				return err
			}
			return s.store.SelectLayer(ctx, layer)
		}); err != nil {
			return models.Session{}, err
		}
	} else {
		resp, err := s.api.Login(ctx, req)
		if err != nil {
			return models.Session{}, fmt.Errorf("login: %w", err)
		}
		if err := s.commit(epoch, func() error {
			return s.store.SetAuthenticated(ctx, resp.User, layer, resp.UserLayer, resp.Auth)
		}); err != nil {
			return models.Session{}, err
		}
	}

	return s.authenticated(ctx, epoch, adapter, layer, address)
}

// ConfirmLinkToAnotherUser moves an address owned by another user to the
// current one, reusing the signature captured in the conflict.
func (s *SessionService) ConfirmLinkToAnotherUser(ctx context.Context, conflict *LinkConflictError) (models.Session, error) {
	if conflict == nil {
		return models.Session{}, errors.New("no link conflict to confirm")
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return models.Session{}, ErrConnectionInProgress
	}
	defer s.inFlight.Store(false)

	epoch := s.epoch.Load()
	snap := s.store.Snapshot()
	if !snap.Authenticated {
		return models.Session{}, ErrNotAuthenticated
	}

	adapter, err := s.wallets.Adapter(conflict.Layer.Kind)
	if err != nil {
		return models.Session{}, err
	}

	pending := s.newPending(conflict.Layer.ID, true)
	if err := s.advance(epoch, models.Connecting{Pending: pending}); err != nil {
		return models.Session{}, err
	}

	out, err := func() (models.Session, error) {
		if err := s.advance(epoch, models.Signing{Pending: pending, Address: conflict.Request.Address}); err != nil {
			return models.Session{}, err
		}
		resp, err := s.api.LinkAccountToAnotherUser(ctx, conflict.Request)
		if err != nil {
			return models.Session{}, fmt.Errorf("link account to another user: %w", err)
		}
		if err := s.commit(epoch, func() error {
			if err := s.store.AddUserLayer(ctx, resp.UserLayer); err != nil {
				return err
			}
			return s.store.SelectLayer(ctx, conflict.Layer)
		}); err != nil {
			return models.Session{}, err
		}
		return s.authenticated(ctx, epoch, adapter, conflict.Layer, conflict.Request.Address)
	}()
	metrics.ObserveWalletFlow("relink", err)
	if err != nil {
		s.fail(ctx, epoch, err, recoverState(snap))
		return models.Session{}, err
	}
	return out, nil
}

// Disconnect logs out: persisted credentials and the user layer cache are
// cleared and the wallet is asked to disconnect where it supports it.
func (s *SessionService) Disconnect(ctx context.Context) error {
	snap := s.store.Snapshot()
	s.stopWatching()

	if snap.CurrentLayer != nil {
		if adapter, err := s.wallets.Adapter(snap.CurrentLayer.Kind); err == nil {
			if err := adapter.Disconnect(ctx); err != nil {
				s.log.Warn("wallet disconnect failed", zap.String("layer", snap.CurrentLayer.Name), zap.Error(err))
			}
		}
	}

	return s.logout(ctx, "")
}

// ForceLogout clears the session without touching the wallet. It is the
// target of the API client's unauthorized hook and of external account changes.
func (s *SessionService) ForceLogout(ctx context.Context, reason string) {
	snap := s.store.Snapshot()
	if !snap.Authenticated && snap.Tokens.AccessToken == "" {
		return
	}
	s.stopWatching()
	if err := s.logout(ctx, reason); err != nil {
		s.log.Error("forced logout failed", zap.Error(err))
	}
}

func (s *SessionService) logout(ctx context.Context, reason string) error {
	s.commitMu.Lock()
	s.epoch.Add(1)
	err := s.store.Clear(ctx)
	s.commitMu.Unlock()

	s.mu.Lock()
	s.state = models.Disconnected{}
	s.lastErr = nil
	s.mu.Unlock()

	if reason != "" {
		s.log.Warn("session logged out", zap.String("reason", reason))
		s.publish(ctx, events.EventForcedLogout, map[string]any{"reason": reason})
	} else {
		s.log.Info("session logged out")
	}
	s.publishState(ctx)
	return err
}

// Restore reconciles the persisted session with the live wallet. It never
// asks for a signature: anything that does not match forces a logout.
func (s *SessionService) Restore(ctx context.Context) (models.Session, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return models.Session{}, ErrConnectionInProgress
	}
	defer s.inFlight.Store(false)

	if _, ok := s.State().(models.Authenticated); ok {
		return s.store.Snapshot(), nil
	}

	epoch := s.epoch.Load()
	var sess models.Session
	if err := s.commit(epoch, func() error {
		var err error
		sess, err = s.store.Load(ctx)
		return err
	}); err != nil {
		return models.Session{}, err
	}
	if !sess.Authenticated {
		return sess, nil
	}

	reason, adapter := s.verifyRestorable(ctx, sess)
	if reason != "" {
		if err := s.logout(ctx, reason); err != nil {
			return models.Session{}, err
		}
		return s.store.Snapshot(), nil
	}

	if _, err := s.authenticated(ctx, epoch, adapter, *sess.CurrentLayer, sess.CurrentUserLayer.Address); err != nil {
		return models.Session{}, err
	}
	s.log.Info("session restored",
		zap.String("layer", sess.CurrentLayer.Name),
		zap.String("address", sess.CurrentUserLayer.Address))
	return s.store.Snapshot(), nil
}

func (s *SessionService) verifyRestorable(ctx context.Context, sess models.Session) (string, wallet.Adapter) {
	if !auth.SessionRestorable(sess.Tokens.AccessToken, sess.Tokens.RefreshToken, s.now()) {
		return "persisted tokens expired", nil
	}
	if sess.CurrentLayer == nil || sess.CurrentUserLayer == nil {
		return "persisted session has no active layer", nil
	}

	adapter, err := s.wallets.Adapter(sess.CurrentLayer.Kind)
	if err != nil {
		return "wallet not available", nil
	}
	accounts, err := adapter.Accounts(ctx)
	if err != nil || len(accounts) == 0 {
		return "wallet is not connected", nil
	}
	if !sameAddress(accounts[0], sess.CurrentUserLayer.Address) {
		return "wallet account changed", nil
	}
	if sess.CurrentLayer.HasChainID() {
		chain, err := adapter.ChainID(ctx)
		if err != nil || chain != sess.CurrentLayer.ChainID {
			return "wallet chain changed", nil
		}
	}
	return "", adapter
}

// HandleAccountChange reacts to changes made in the wallet outside the app.
// Changes observed while a flow is running belong to that flow.
func (s *SessionService) HandleAccountChange(ctx context.Context, change wallet.AccountChange) {
	if s.inFlight.Load() {
		return
	}
	snap := s.store.Snapshot()
	if !snap.Authenticated || snap.CurrentLayer == nil {
		return
	}

	if change.ChainChanged {
		if snap.CurrentLayer.ChainID == change.ChainID {
			return
		}
		target, ok := s.layers.FindByChainID(ctx, change.ChainID)
		if !ok || target.ID == snap.CurrentLayer.ID {
			return
		}
		s.log.Info("wallet switched to a chain of another layer",
			zap.Int64("chain_id", change.ChainID), zap.String("layer", target.Name))
		s.publish(ctx, events.EventLayerSwitchSuggested, map[string]any{
			"layerId":   target.ID,
			"layerName": target.Name,
			"chainId":   change.ChainID,
			"linked":    hasKey(snap.UserLayerCache, target.ID),
		})
		return
	}

	if snap.CurrentUserLayer == nil {
		return
	}
	if len(change.Accounts) == 0 || !sameAddress(change.Accounts[0], snap.CurrentUserLayer.Address) {
		s.ForceLogout(ctx, "wallet account changed")
	}
}

func (s *SessionService) confirmChain(ctx context.Context, epoch uint64, adapter wallet.Adapter, layer models.Layer, pending models.PendingConnection, address string) error {
	if !layer.HasChainID() {
		return nil
	}
	current, err := adapter.ChainID(ctx)
	if err != nil {
		return err
	}
	if current == layer.ChainID {
		return nil
	}
	if err := s.advance(epoch, models.ChainConfirming{Pending: pending, Address: address, TargetChainID: layer.ChainID}); err != nil {
		return err
	}
	return adapter.SwitchChain(ctx, layer.ChainParams())
}

// challenge returns the server's sign-in message. When the server cannot
// produce one and fallback is allowed, a local address+timestamp message is
// signed instead; the server then cannot attest that message.
func (s *SessionService) challenge(ctx context.Context, address string) (string, error) {
	msg, err := s.api.GenerateMessage(ctx, address)
	if err == nil && msg != "" {
		return msg, nil
	}
	if err == nil {
		err = errors.New("empty message")
	}
	if !s.cfg.AllowFallbackSignMessage {
		return "", fmt.Errorf("generate sign-in message: %w", err)
	}
	s.log.Warn("sign-in message generation failed, using local fallback message",
		zap.String("address", address), zap.Error(err))
	return fmt.Sprintf("%s:%d", address, s.now().UnixMilli()), nil
}

func (s *SessionService) authenticated(ctx context.Context, epoch uint64, adapter wallet.Adapter, layer models.Layer, address string) (models.Session, error) {
	if err := s.advance(epoch, models.Authenticated{LayerID: layer.ID, Address: address}); err != nil {
		return models.Session{}, err
	}
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()

	s.watch(adapter)
	s.publishState(ctx)
	return s.store.Snapshot(), nil
}

// advance moves to next if the flow still belongs to the current epoch.
func (s *SessionService) advance(epoch uint64, next models.WalletState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch.Load() != epoch {
		return ErrFlowCancelled
	}
	state, err := models.NextWalletState(s.state, next)
	if err != nil {
		return err
	}
	s.state = state
	return nil
}

// commit runs the store writes of a flow. Logout takes the same lock, so the
// writes either land before the clear or are not made at all.
func (s *SessionService) commit(epoch uint64, write func() error) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if err := s.checkEpoch(epoch); err != nil {
		return err
	}
	return write()
}

func (s *SessionService) checkEpoch(epoch uint64) error {
	if s.epoch.Load() != epoch {
		return ErrFlowCancelled
	}
	return nil
}

// fail passes through the error state and settles on fallback.
func (s *SessionService) fail(ctx context.Context, epoch uint64, err error, fallback models.WalletState) {
	if errors.Is(err, ErrFlowCancelled) {
		s.log.Info("wallet flow discarded after logout")
		return
	}
	s.log.Warn("wallet flow failed", zap.String("phase", s.State().Phase()), zap.Error(err))

	s.mu.Lock()
	if s.epoch.Load() != epoch {
		s.mu.Unlock()
		return
	}
	s.lastErr = err
	if !models.IsStable(s.state) {
		failed, ferr := models.NextWalletState(s.state, models.Failed{Err: err, Recover: fallback})
		if ferr == nil {
			s.state, _ = models.NextWalletState(failed, fallback)
		} else {
			s.state = fallback
		}
	}
	s.mu.Unlock()

	s.publishState(ctx)
}

func (s *SessionService) watch(adapter wallet.Adapter) {
	s.stopWatching()
	unsubscribe := adapter.SubscribeAccountChange(func(change wallet.AccountChange) {
		s.HandleAccountChange(context.Background(), change)
	})
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

func (s *SessionService) stopWatching() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *SessionService) publishState(ctx context.Context) {
	state := s.State()
	payload := map[string]any{"phase": state.Phase()}
	if a, ok := state.(models.Authenticated); ok {
		payload["layerId"] = a.LayerID
		payload["address"] = a.Address
	}
	if err := s.LastError(); err != nil {
		payload["error"] = err.Error()
	}
	s.publish(ctx, events.EventSessionChanged, payload)
}

func (s *SessionService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.StreamClient, events.Event{Type: eventType, Payload: payload}); err != nil {
		s.log.Debug("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

func (s *SessionService) newPending(layerID string, linking bool) models.PendingConnection {
	return models.PendingConnection{
		ID:        uuid.NewString(),
		LayerID:   layerID,
		IsLinking: linking,
		StartedAt: s.now(),
	}
}

// recoverState is the stable state a failed flow returns to.
func recoverState(snap models.Session) models.WalletState {
	if snap.Authenticated && snap.CurrentLayer != nil && snap.CurrentUserLayer != nil {
		return models.Authenticated{LayerID: snap.CurrentLayer.ID, Address: snap.CurrentUserLayer.Address}
	}
	return models.Disconnected{}
}

func activeAccount(ctx context.Context, adapter wallet.Adapter) (string, error) {
	accounts, err := adapter.Accounts(ctx)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		// not connected for this kind yet; ask for access, not for a signature
		if accounts, err = adapter.RequestAccounts(ctx); err != nil {
			return "", err
		}
	}
	if len(accounts) == 0 {
		return "", wallet.ErrNoAccounts
	}
	return accounts[0], nil
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func hasKey(m map[string]models.UserLayer, k string) bool {
	_, ok := m[k]
	return ok
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/nft-marketplace/client/internal/config"
	"github.com/nft-marketplace/client/internal/session"
	"go.uber.org/zap"
)

const satsPerBTC = 100_000_000

// PriceService converts amounts to USD for display. Quotes are cached in the
// session store; a stale quote is served when the feed is down.
type PriceService struct {
	feedURL    string
	ttl        time.Duration
	store      *session.Store
	httpClient *http.Client
	exec       failsafe.Executor[float64]
	log        *zap.Logger
	now        func() time.Time
}

func NewPriceService(store *session.Store, cfg *config.Config, log *zap.Logger) *PriceService {
	ttl := cfg.PriceCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	retry := retrypolicy.NewBuilder[float64]().
		HandleIf(func(_ float64, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		WithBackoff(250*time.Millisecond, 2*time.Second).
		WithMaxRetries(2).
		Build()

	return &PriceService{
		feedURL:    cfg.PriceFeedURL,
		ttl:        ttl,
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		exec:       failsafe.With[float64](retry),
		log:        log,
		now:        time.Now,
	}
}

// BTCUSD returns the BTC price in USD.
func (s *PriceService) BTCUSD(ctx context.Context) (float64, error) {
	cached, ok := s.store.CachedPrice()
	if ok && s.now().Sub(cached.FetchedAt) < s.ttl {
		return cached.USD, nil
	}

	price, err := s.exec.WithContext(ctx).Get(func() (float64, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		if ok {
			s.log.Warn("price feed unavailable, serving stale quote",
				zap.Time("fetched_at", cached.FetchedAt), zap.Error(err))
			return cached.USD, nil
		}
		return 0, fmt.Errorf("price feed: %w", err)
	}

	if err := s.store.SetCachedPrice(ctx, session.CachedPrice{USD: price, FetchedAt: s.now()}); err != nil {
		s.log.Warn("price quote not cached", zap.Error(err))
	}
	return price, nil
}

// SatsToUSD converts an amount in satoshis.
func (s *PriceService) SatsToUSD(ctx context.Context, sats int64) (float64, error) {
	price, err := s.BTCUSD(ctx)
	if err != nil {
		return 0, err
	}
	return float64(sats) * price / satsPerBTC, nil
}

// fetch reads a {"<coin>": {"usd": <price>}} quote.
func (s *PriceService) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price feed returned %d", resp.StatusCode)
	}

	var quotes map[string]map[string]float64
	if err := json.Unmarshal(body, &quotes); err != nil {
		return 0, fmt.Errorf("decode price feed: %w", err)
	}
	coins := make([]string, 0, len(quotes))
	for coin := range quotes {
		coins = append(coins, coin)
	}
	sort.Strings(coins)
	for _, coin := range coins {
		if usd, ok := quotes[coin]["usd"]; ok && usd > 0 {
			return usd, nil
		}
	}
	return 0, errors.New("price feed has no usd quote")
}

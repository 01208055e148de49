package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/config"
	"github.com/nft-marketplace/client/internal/events"
	"github.com/nft-marketplace/client/internal/models"
	"github.com/nft-marketplace/client/internal/wallet"
	"go.uber.org/zap"
)

type OrderAPI interface {
	CreateOrder(ctx context.Context, req api.CreateOrderRequest) (*models.Order, error)
	CheckOrderPaid(ctx context.Context, orderID string) (bool, error)
	InvokeMint(ctx context.Context, orderID string) (*models.Order, error)
}

// ErrManualPayment means the connected wallet cannot send the payment and
// the user has to fund the order address themselves.
var ErrManualPayment = errors.New("wallet cannot send payments, pay the order address manually")

type OrderService struct {
	api       OrderAPI
	wallets   WalletSource
	publisher events.Publisher
	log       *zap.Logger
	interval  time.Duration
}

func NewOrderService(orderAPI OrderAPI, wallets WalletSource, publisher events.Publisher, cfg *config.Config, log *zap.Logger) *OrderService {
	interval := cfg.ProgressPollInterval
	if interval <= 0 {
		interval = 8 * time.Second
	}
	return &OrderService{
		api:       orderAPI,
		wallets:   wallets,
		publisher: publisher,
		log:       log,
		interval:  interval,
	}
}

func (s *OrderService) Create(ctx context.Context, collectionID, userLayerID string, feeRate float64) (*models.Order, error) {
	order, err := s.api.CreateOrder(ctx, api.CreateOrderRequest{
		CollectionID: collectionID,
		UserLayerID:  userLayerID,
		FeeRate:      feeRate,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("funding_address", order.FundingAddress),
		zap.Int64("funding_amount", order.FundingAmount))
	s.publish(ctx, map[string]any{
		"orderId":        order.ID,
		"status":         order.Status,
		"fundingAddress": order.FundingAddress,
		"fundingAmount":  order.FundingAmount,
	})
	return order, nil
}

// Pay sends the funding amount from the wallet of layer and returns the
// transaction id.
func (s *OrderService) Pay(ctx context.Context, layer models.Layer, order *models.Order) (string, error) {
	if order.FundingAddress == "" || order.FundingAmount <= 0 {
		return "", fmt.Errorf("order %s has no funding request", order.ID)
	}
	adapter, err := s.wallets.Adapter(layer.Kind)
	if err != nil {
		return "", err
	}
	txid, err := adapter.SendPayment(ctx, order.FundingAddress, order.FundingAmount)
	if errors.Is(err, wallet.ErrUnsupported) {
		s.log.Warn("wallet cannot pay, waiting for a manual payment",
			zap.String("order_id", order.ID),
			zap.String("funding_address", order.FundingAddress),
			zap.Int64("funding_amount", order.FundingAmount))
		return "", fmt.Errorf("%w: send %d to %s", ErrManualPayment, order.FundingAmount, order.FundingAddress)
	}
	if err != nil {
		return "", fmt.Errorf("pay order %s: %w", order.ID, err)
	}
	s.log.Info("order payment sent", zap.String("order_id", order.ID), zap.String("txid", txid))
	return txid, nil
}

// WaitPaid polls check-paid until the API reports the order funded.
// Errors from individual polls are logged and polling continues.
func (s *OrderService) WaitPaid(ctx context.Context, orderID string) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		paid, err := s.api.CheckOrderPaid(ctx, orderID)
		switch {
		case err != nil && ctx.Err() == nil:
			s.log.Warn("check-paid failed", zap.String("order_id", orderID), zap.Error(err))
		case paid:
			s.log.Info("order paid", zap.String("order_id", orderID))
			s.publishStatus(ctx, orderID, models.OrderStatusInProgress)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *OrderService) Mint(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.api.InvokeMint(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("invoke mint: %w", err)
	}
	s.publishStatus(ctx, orderID, order.Status)
	return order, nil
}

func (s *OrderService) publishStatus(ctx context.Context, orderID, status string) {
	s.publish(ctx, map[string]any{"orderId": orderID, "status": status})
}

func (s *OrderService) publish(ctx context.Context, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.StreamClient, events.Event{
		Type:    events.EventOrderStatusChanged,
		Payload: payload,
	})
	if err != nil {
		s.log.Debug("order event not published", zap.Error(err))
	}
}

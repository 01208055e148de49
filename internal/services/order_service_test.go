package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/config"
	"github.com/nft-marketplace/client/internal/events"
	"github.com/nft-marketplace/client/internal/models"
	"github.com/nft-marketplace/client/internal/wallet"
	"go.uber.org/zap"
)

// unpayableAdapter is a wallet that can sign but not send funds.
type unpayableAdapter struct {
	fakeAdapter
}

func (*unpayableAdapter) SendPayment(context.Context, string, int64) (string, error) {
	return "", wallet.ErrUnsupported
}

func newTestOrderService(orders *fakeOrderAPI, adapters ...wallet.Adapter) (*OrderService, *recordingPublisher) {
	pub := &recordingPublisher{}
	cfg := &config.Config{ProgressPollInterval: time.Millisecond}
	return NewOrderService(orders, wallet.NewRegistry(adapters...), pub, cfg, zap.NewNop()), pub
}

func TestOrderService_PayAndWait(t *testing.T) {
	ctx := context.Background()
	fake := &fakeOrderAPI{paidAfter: 1}
	btc := &fakeAdapter{kind: models.LayerKindUTXO, address: "tb1qalice"}
	svc, pub := newTestOrderService(fake, btc)

	order, err := svc.Create(ctx, "col-1", "ul-1", 2.5)
	if err != nil {
		t.Fatal(err)
	}
	if fake.created[0].FeeRate != 2.5 {
		t.Errorf("fee rate = %v", fake.created[0].FeeRate)
	}

	txid, err := svc.Pay(ctx, layerBTC, order)
	if err != nil || txid != "txid" {
		t.Fatalf("Pay = %q, %v", txid, err)
	}
	if err := svc.WaitPaid(ctx, order.ID); err != nil {
		t.Fatal(err)
	}
	if fake.checks != 2 {
		t.Errorf("checks = %d, want 2", fake.checks)
	}

	statuses := pub.ofType(events.EventOrderStatusChanged)
	if len(statuses) != 2 || statuses[1].Payload["status"] != models.OrderStatusInProgress {
		t.Errorf("status events = %+v", statuses)
	}
	if len(statuses) > 0 && statuses[0].Payload["fundingAddress"] != "tb1qfunding" {
		t.Errorf("created event lacks the funding address: %+v", statuses[0].Payload)
	}
}

func TestOrderService_ManualPaymentWhenWalletCannotPay(t *testing.T) {
	fake := &fakeOrderAPI{}
	svc, _ := newTestOrderService(fake, &unpayableAdapter{fakeAdapter: fakeAdapter{kind: models.LayerKindUTXO}})

	order, _ := fake.CreateOrder(context.Background(), api.CreateOrderRequest{CollectionID: "col-1", UserLayerID: "ul-1"})
	_, err := svc.Pay(context.Background(), layerBTC, order)
	if !errors.Is(err, ErrManualPayment) {
		t.Errorf("expected ErrManualPayment, got %v", err)
	}
}

func TestOrderService_PayWithoutWallet(t *testing.T) {
	fake := &fakeOrderAPI{}
	svc, _ := newTestOrderService(fake)

	order, _ := fake.CreateOrder(context.Background(), api.CreateOrderRequest{CollectionID: "col-1", UserLayerID: "ul-1"})
	if _, err := svc.Pay(context.Background(), layerBTC, order); !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Errorf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestOrderService_WaitPaidHonoursContext(t *testing.T) {
	fake := &fakeOrderAPI{paidAfter: 1 << 30}
	svc, _ := newTestOrderService(fake)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.WaitPaid(ctx, "order-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

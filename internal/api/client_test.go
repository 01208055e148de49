package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
)

type memTokens struct {
	mu     sync.Mutex
	tokens models.Tokens
}

func (m *memTokens) Tokens() models.Tokens {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

func (m *memTokens) SetTokens(_ context.Context, t models.Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = t
	return nil
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		writeData(w, []models.Layer{{ID: "l1", Name: "Bitcoin", Kind: models.LayerKindUTXO}})
	}))
	defer srv.Close()

	tokens := &memTokens{tokens: models.Tokens{AccessToken: "access-1"}}
	c := NewClient(srv.URL, tokens, zap.NewNop())

	layers, err := c.ListLayers(context.Background())
	if err != nil {
		t.Fatalf("ListLayers: %v", err)
	}
	if len(layers) != 1 || layers[0].ID != "l1" {
		t.Errorf("unexpected layers: %+v", layers)
	}
	if gotAuth != "Bearer access-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReqID == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestClient_RefreshesAndReplaysOnce(t *testing.T) {
	var refreshes, orders int32
	var bodies []string
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/users/refreshToken":
			atomic.AddInt32(&refreshes, 1)
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["refreshToken"] != "refresh-1" {
				writeError(w, http.StatusUnauthorized, "bad refresh token")
				return
			}
			writeData(w, models.Tokens{AccessToken: "access-2", RefreshToken: "refresh-2"})
		case "/api/v1/orders":
			atomic.AddInt32(&orders, 1)
			b, _ := io.ReadAll(r.Body)
			mu.Lock()
			bodies = append(bodies, string(b))
			mu.Unlock()
			if r.Header.Get("Authorization") != "Bearer access-2" {
				writeError(w, http.StatusUnauthorized, "expired")
				return
			}
			writeData(w, models.Order{ID: "o1"})
		}
	}))
	defer srv.Close()

	tokens := &memTokens{tokens: models.Tokens{AccessToken: "access-1", RefreshToken: "refresh-1"}}
	c := NewClient(srv.URL, tokens, zap.NewNop())

	order, err := c.CreateOrder(context.Background(), CreateOrderRequest{CollectionID: "c1", UserLayerID: "ul1"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "o1" {
		t.Errorf("order id = %q", order.ID)
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes)
	}
	if orders != 2 {
		t.Errorf("order requests = %d, want 2 (original + replay)", orders)
	}
	if len(bodies) == 2 && bodies[0] != bodies[1] {
		t.Errorf("replayed body differs: %q vs %q", bodies[0], bodies[1])
	}
	if got := tokens.Tokens(); got.AccessToken != "access-2" || got.RefreshToken != "refresh-2" {
		t.Errorf("tokens not persisted: %+v", got)
	}
}

func TestClient_RepeatedUnauthorizedForcesLogout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/users/refreshToken" {
			writeData(w, models.Tokens{AccessToken: "access-2"})
			return
		}
		atomic.AddInt32(&calls, 1)
		writeError(w, http.StatusUnauthorized, "nope")
	}))
	defer srv.Close()

	tokens := &memTokens{tokens: models.Tokens{AccessToken: "access-1", RefreshToken: "refresh-1"}}
	c := NewClient(srv.URL, tokens, zap.NewNop())

	var loggedOut int32
	c.OnUnauthorized(func(context.Context) { atomic.AddInt32(&loggedOut, 1) })

	_, err := c.CheckOrderPaid(context.Background(), "o1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if calls != 2 {
		t.Errorf("requests = %d, want exactly 2", calls)
	}
	if loggedOut != 1 {
		t.Errorf("logout hook called %d times, want 1", loggedOut)
	}
	if got := tokens.Tokens().RefreshToken; got != "refresh-1" {
		t.Errorf("refresh token should be kept when the server omits it, got %q", got)
	}
}

func TestClient_FailedRefreshForcesLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "expired")
	}))
	defer srv.Close()

	tokens := &memTokens{tokens: models.Tokens{AccessToken: "access-1", RefreshToken: "refresh-1"}}
	c := NewClient(srv.URL, tokens, zap.NewNop())

	var loggedOut bool
	c.OnUnauthorized(func(context.Context) { loggedOut = true })

	if _, err := c.ListLayers(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !loggedOut {
		t.Error("logout hook not called")
	}
}

func TestClient_ConcurrentUnauthorizedSharesRefresh(t *testing.T) {
	var refreshes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/users/refreshToken" {
			atomic.AddInt32(&refreshes, 1)
			writeData(w, models.Tokens{AccessToken: "access-2", RefreshToken: "refresh-2"})
			return
		}
		if r.Header.Get("Authorization") != "Bearer access-2" {
			writeError(w, http.StatusUnauthorized, "expired")
			return
		}
		writeData(w, models.InscriptionProgress{Done: 1, Total: 2})
	}))
	defer srv.Close()

	tokens := &memTokens{tokens: models.Tokens{AccessToken: "access-1", RefreshToken: "refresh-1"}}
	c := NewClient(srv.URL, tokens, zap.NewNop())

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.InscriptionProgress(context.Background(), "c1", "ul1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes)
	}
}

func TestClient_RetriesGetOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeError(w, http.StatusBadGateway, "upstream")
			return
		}
		writeData(w, models.Layer{ID: "l1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &memTokens{}, zap.NewNop(), WithGetRetries(1))
	layer, err := c.GetLayer(context.Background(), "l1")
	if err != nil {
		t.Fatalf("GetLayer: %v", err)
	}
	if layer.ID != "l1" || calls != 2 {
		t.Errorf("layer=%+v calls=%d", layer, calls)
	}
}

func TestClient_DoesNotRetryPost(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeError(w, http.StatusInternalServerError, "db down")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &memTokens{}, zap.NewNop(), WithGetRetries(3))
	_, err := c.GenerateMessage(context.Background(), "bc1qaddr")

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError || !strings.Contains(apiErr.Message, "db down") {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestClient_ExhaustedGetRetriesReturnStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "maintenance")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &memTokens{}, zap.NewNop(), WithGetRetries(0))
	_, err := c.ListLayers(context.Background())

	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 *Error, got %v", err)
	}
}

func TestClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "layer not found")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &memTokens{}, zap.NewNop())
	if _, err := c.GetLayer(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_MultipartTraitValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		files := r.MultipartForm.File["files"]
		values := r.MultipartForm.Value["value"]
		if r.FormValue("collectionId") != "c1" || len(files) != 2 || len(values) != 2 {
			writeError(w, http.StatusBadRequest, "bad form")
			return
		}
		out := make([]models.TraitValue, len(values))
		for i, v := range values {
			out[i] = models.TraitValue{ID: v + "-id", Value: v}
		}
		writeData(w, out)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &memTokens{}, zap.NewNop())
	got, err := c.CreateTraitValues(context.Background(), "c1", []TraitValueInput{
		{TraitTypeID: "tt1", Value: "Red", File: FilePart{Name: "Red.png", Data: []byte("png")}},
		{TraitTypeID: "tt1", Value: "Blue", File: FilePart{Name: "Blue.png", Data: []byte("png")}},
	})
	if err != nil {
		t.Fatalf("CreateTraitValues: %v", err)
	}
	if len(got) != 2 || got[1].ID != "Blue-id" {
		t.Errorf("unexpected values: %+v", got)
	}
}

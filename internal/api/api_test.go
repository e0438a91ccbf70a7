package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/sqkstwj/juzhondianping/internal/cache"
	"github.com/sqkstwj/juzhondianping/internal/cacheaside"
	"github.com/sqkstwj/juzhondianping/internal/domain"
	"github.com/sqkstwj/juzhondianping/internal/idgen"
	"github.com/sqkstwj/juzhondianping/internal/lock"
	"github.com/sqkstwj/juzhondianping/internal/repository"
	"github.com/sqkstwj/juzhondianping/internal/seckill"
	"github.com/sqkstwj/juzhondianping/internal/shop"
)

// createTestServer wires a full in-memory stack: sqlite repository,
// memory cache, mutex loader, and the shop and seckill services.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewMemoryCache(1000)
	locks := lock.New(c)

	pool := cacheaside.NewRebuildPool(2, 100)
	t.Cleanup(pool.Stop)

	loader := cacheaside.NewLoader(c, locks, pool, domain.LoaderConfig{
		Strategy:      domain.StrategyMutex,
		BaseTTL:       time.Minute,
		TTLJitter:     time.Second,
		NullTTL:       time.Second,
		NullTTLJitter: 100 * time.Millisecond,
		LockTTL:       10 * time.Second,
		RetryBackoff:  5 * time.Millisecond,
		MaxRetries:    20,
	})

	shops := shop.NewService(repo, c, loader)
	seckillSvc := seckill.NewService(repo, locks, idgen.NewGenerator(c), domain.SeckillConfig{
		UserLockTTL:          10 * time.Second,
		UserLockRetryBackoff: 5 * time.Millisecond,
		UserLockMaxRetries:   50,
	})

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	return NewServer(cfg, repo, c, shops, seckillSvc, "test-v1")
}

func doJSON(t *testing.T, server *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/health", nil, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/ready", nil, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestShopEndpoints(t *testing.T) {
	server := createTestServer(t)

	testShop := domain.Shop{
		ID:       1,
		Name:     "Tea House",
		TypeID:   2,
		Address:  "1 Long Street",
		AvgPrice: 60,
		Score:    4.5,
	}

	t.Run("CreateShop", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/shops", testShop, nil)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("CreateShopInvalidBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/shops", bytes.NewBufferString("not-json"))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("GetShop", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/shops/1", nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var got domain.Shop
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if got.Name != testShop.Name {
			t.Errorf("expected name %q, got %q", testShop.Name, got.Name)
		}
	})

	t.Run("GetShopNotFound", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/shops/999", nil, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("GetShopBadID", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/shops/abc", nil, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UpdateShop", func(t *testing.T) {
		updated := testShop
		updated.Name = "New Tea House"
		rr := doJSON(t, server, http.MethodPut, "/shops/1", updated, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		// Next read must see the new name
		rr = doJSON(t, server, http.MethodGet, "/shops/1", nil, nil)
		var got domain.Shop
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if got.Name != "New Tea House" {
			t.Errorf("expected updated name, got %q", got.Name)
		}
	})

	t.Run("WarmShop", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/shops/1/warm", map[string]int64{"ttlSeconds": 60}, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("WarmShopMissing", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/shops/999/warm", map[string]int64{"ttlSeconds": 60}, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("WarmShopBadTTL", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/shops/1/warm", map[string]int64{"ttlSeconds": 0}, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestSeckillEndpoint(t *testing.T) {
	server := createTestServer(t)

	now := time.Now().UTC()
	voucher := domain.SeckillVoucher{
		VoucherID: 10,
		Title:     "half price coffee",
		Stock:     2,
		BeginTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}

	rr := doJSON(t, server, http.MethodPost, "/vouchers", voucher, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("failed to seed voucher: %d: %s", rr.Code, rr.Body.String())
	}

	t.Run("GetVoucher", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/vouchers/10", nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var got domain.SeckillVoucher
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if got.Stock != 2 {
			t.Errorf("expected stock 2, got %d", got.Stock)
		}
	})

	t.Run("MissingUserID", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/vouchers/10/seckill", nil, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidUserID", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/vouchers/10/seckill", nil, map[string]string{
			"X-User-ID": "-3",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("SuccessfulPurchase", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/vouchers/10/seckill", nil, map[string]string{
			"X-User-ID": "100",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp SeckillResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.OrderID <= 0 {
			t.Errorf("expected positive order ID, got %d", resp.OrderID)
		}
	})

	t.Run("DuplicatePurchase", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/vouchers/10/seckill", nil, map[string]string{
			"X-User-ID": "100",
		})
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("SoldOut", func(t *testing.T) {
		// One unit left; the second buyer exhausts stock, the third
		// gets a conflict.
		rr := doJSON(t, server, http.MethodPost, "/vouchers/10/seckill", nil, map[string]string{
			"X-User-ID": "101",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodPost, "/vouchers/10/seckill", nil, map[string]string{
			"X-User-ID": "102",
		})
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("UnknownVoucher", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/vouchers/999/seckill", nil, map[string]string{
			"X-User-ID": strconv.Itoa(100),
		})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestSeckillWindowViaAPI(t *testing.T) {
	server := createTestServer(t)
	now := time.Now().UTC()

	future := domain.SeckillVoucher{
		VoucherID: 20,
		Title:     "tomorrow only",
		Stock:     5,
		BeginTime: now.Add(time.Hour),
		EndTime:   now.Add(2 * time.Hour),
	}
	if rr := doJSON(t, server, http.MethodPost, "/vouchers", future, nil); rr.Code != http.StatusCreated {
		t.Fatalf("failed to seed voucher: %d", rr.Code)
	}

	rr := doJSON(t, server, http.MethodPost, "/vouchers/20/seckill", nil, map[string]string{
		"X-User-ID": "100",
	})
	if rr.Code != http.StatusConflict {
		t.Errorf("expected status 409 for unstarted sale, got %d: %s", rr.Code, rr.Body.String())
	}
}

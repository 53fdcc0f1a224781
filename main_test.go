package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/coti-io/coti-explorer-api-sub000/cache"
	"github.com/coti-io/coti-explorer-api-sub000/index"
)

type fakeStore struct {
	lastTxReq  index.TransactionRequest
	lastLimReq index.LimitRequest
	nodeLoads  int
	txCount    int64
	nodes      []index.Node
}

func (f *fakeStore) QueryTransactions(tx_req index.TransactionRequest, lim_req index.LimitRequest, settings index.RequestSettings) ([]index.Transaction, error) {
	f.lastTxReq, f.lastLimReq = tx_req, lim_req
	return []index.Transaction{{Hash: "ab", Amount: "1"}}, nil
}

func (f *fakeStore) QueryTransactionByHash(hash index.HashType, settings index.RequestSettings) (*index.Transaction, error) {
	if hash != "ab" {
		return nil, index.RequestError{Code: 404, Message: "transaction not found"}
	}
	return &index.Transaction{Hash: hash}, nil
}

func (f *fakeStore) GetTransactionCount(ctx context.Context, address index.AddressHash) (int64, error) {
	return 5, nil
}

func (f *fakeStore) QueryAddressBalances(address index.AddressHash, settings index.RequestSettings) ([]index.AddressBalance, error) {
	return []index.AddressBalance{}, nil
}

func (f *fakeStore) QueryTokens(lim_req index.LimitRequest, settings index.RequestSettings) ([]index.Token, error) {
	return []index.Token{}, nil
}

func (f *fakeStore) QueryToken(hash index.HashType, settings index.RequestSettings) (*index.Token, error) {
	return &index.Token{Hash: hash, Symbol: "GCOTI"}, nil
}

func (f *fakeStore) QueryNodes(node_req index.NodeRequest, settings index.RequestSettings) ([]index.Node, error) {
	return slices.Clone(f.nodes), nil
}

func (f *fakeStore) QueryNode(hash index.HashType, settings index.RequestSettings) (*index.Node, error) {
	f.nodeLoads++
	return &index.Node{Hash: hash, Type: "FullNode", Status: "ACTIVE"}, nil
}

func (f *fakeStore) LatestConfirmationTimeSnapshot(ctx context.Context) (*index.ConfirmationTimeStats, error) {
	return nil, index.RequestError{Code: 404, Message: "confirmation time is not computed yet"}
}

func (f *fakeStore) LatestTreasurySnapshot(ctx context.Context) (*index.TreasuryTotals, error) {
	return &index.TreasuryTotals{TotalLocked: "10"}, nil
}

func (f *fakeStore) CountActiveWallets(ctx context.Context) (int64, error) {
	return 3, nil
}

func (f *fakeStore) CountTransactions(ctx context.Context) (int64, error) {
	return f.txCount, nil
}

func setupApp(t *testing.T) (*fiber.App, *fakeStore) {
	t.Helper()
	app, fake, _ := setupAppWithRedis(t)
	return app, fake
}

func setupAppWithRedis(t *testing.T) (*fiber.App, *fakeStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	fake := &fakeStore{txCount: 77}
	store = fake
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	caches = cache.NewManager(rdb)
	components = []healthComponent{redisComponent(rdb)}
	settings = Settings{Request: index.RequestSettings{Timeout: time.Second, DefaultLimit: 10, MaxLimit: 50}}
	log, _ = test.NewNullLogger()
	return newApp(), fake, mr
}

func get(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("request %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	var out map[string]any
	json.Unmarshal(body, &out)
	return resp.StatusCode, out
}

func TestGetTransactions(t *testing.T) {
	app, fake := setupApp(t)

	code, body := get(t, app, "/api/v1/transactions?limit=500&status=CONFIRMED&address=ABCD")
	if code != 200 {
		t.Fatalf("unexpected status %d: %v", code, body)
	}
	if *fake.lastLimReq.Limit != 50 {
		t.Errorf("limit must be clamped, got %d", *fake.lastLimReq.Limit)
	}
	if fake.lastTxReq.Address == nil || *fake.lastTxReq.Address != "abcd" {
		t.Errorf("address must be normalized, got %v", fake.lastTxReq.Address)
	}
	if _, ok := body["total"]; ok {
		t.Error("filtered listing must not carry the global total")
	}

	code, body = get(t, app, "/api/v1/transactions")
	if code != 200 || body["total"] != float64(77) {
		t.Errorf("unexpected response %d %v", code, body)
	}
	txs, _ := body["transactions"].([]any)
	if len(txs) != 1 || txs[0].(map[string]any)["status"] != "PENDING" {
		t.Errorf("unexpected transactions %v", txs)
	}
}

func TestValidationErrors(t *testing.T) {
	app, _ := setupApp(t)
	for _, path := range []string{
		"/api/v1/transactions?status=LOST",
		"/api/v1/transactions?limit=0",
		"/api/v1/transactions/not-hex",
		"/api/v1/addresses/zz/total",
	} {
		code, body := get(t, app, path)
		if code != 422 {
			t.Errorf("%s: expected 422, got %d", path, code)
		}
		if body["error"] == nil {
			t.Errorf("%s: expected error body, got %v", path, body)
		}
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	app, _ := setupApp(t)
	code, body := get(t, app, "/api/v1/transactions/ff")
	if code != 404 || body["error"] != "transaction not found" {
		t.Errorf("unexpected response %d %v", code, body)
	}
}

func TestGetAddressTotal(t *testing.T) {
	app, _ := setupApp(t)
	code, body := get(t, app, "/api/v1/addresses/0xAB/total")
	if code != 200 {
		t.Fatalf("unexpected status %d", code)
	}
	if body["addressHash"] != "ab" || body["totalTransactions"] != float64(5) {
		t.Errorf("unexpected body %v", body)
	}
}

func TestGetNodeReadsThroughCache(t *testing.T) {
	app, fake := setupApp(t)
	for range 2 {
		code, body := get(t, app, "/api/v1/nodes/aa")
		if code != 200 || body["nodeHash"] != "aa" {
			t.Fatalf("unexpected response %d %v", code, body)
		}
	}
	if fake.nodeLoads != 1 {
		t.Errorf("node loaded %d times, want 1", fake.nodeLoads)
	}
}

func TestStatistics(t *testing.T) {
	app, _ := setupApp(t)

	code, _ := get(t, app, "/api/v1/statistics/confirmation-time")
	if code != 404 {
		t.Errorf("missing snapshot must be 404, got %d", code)
	}
	caches.ConfirmationTime.Set(context.Background(), cache.LatestKey, index.ConfirmationTimeStats{AverageSeconds: 2.5, SampleSize: 4})
	code, body := get(t, app, "/api/v1/statistics/confirmation-time")
	if code != 200 || body["average"] != 2.5 {
		t.Errorf("cached value must be served, got %d %v", code, body)
	}

	code, body = get(t, app, "/api/v1/statistics/treasury-totals")
	if code != 200 || body["totalLocked"] != "10" {
		t.Errorf("unexpected treasury response %d %v", code, body)
	}
	code, body = get(t, app, "/api/v1/statistics/active-wallets")
	if code != 200 || body["count"] != float64(3) {
		t.Errorf("unexpected wallets response %d %v", code, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := setupApp(t)
	resp, err := app.Test(httptest.NewRequest("GET", "/healthcheck", nil))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("healthcheck failed: %v", err)
	}
	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("metrics failed: %v", err)
	}
}

type fakeUpstream struct {
	healthy atomic.Bool
}

func (u *fakeUpstream) IsHealthy() bool {
	return u.healthy.Load()
}

func TestHealthCheckComponents(t *testing.T) {
	app, _, mr := setupAppWithRedis(t)
	treasury := &fakeUpstream{}
	treasury.healthy.Store(true)
	components = append(components, upstreamComponent("treasury", treasury))

	code, body := get(t, app, "/healthcheck")
	if code != 200 || body["ok"] != true || body["degraded"] != nil {
		t.Fatalf("unexpected healthy response %d %v", code, body)
	}

	treasury.healthy.Store(false)
	code, body = get(t, app, "/healthcheck")
	comps, _ := body["components"].(map[string]any)
	status, _ := comps["treasury"].(map[string]any)
	if code != 200 || body["degraded"] != true || status["ok"] != false || status["error"] == nil {
		t.Errorf("failing upstream must degrade the response, got %d %v", code, body)
	}

	mr.Close()
	code, body = get(t, app, "/healthcheck")
	comps, _ = body["components"].(map[string]any)
	if redisStatus, _ := comps["redis"].(map[string]any); code != 503 || body["ok"] != false || redisStatus["ok"] != false {
		t.Errorf("redis outage must fail the healthcheck, got %d %v", code, body)
	}
}

func TestGetNodesPrefersFresherCache(t *testing.T) {
	app, fake := setupApp(t)
	stored := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fake.nodes = []index.Node{
		{Hash: "aa", Type: "FullNode", Status: "ACTIVE", UpdateTime: stored},
		{Hash: "bb", Type: "FullNode", Status: "ACTIVE", UpdateTime: stored},
	}
	uptime := 97.5
	ctx := context.Background()
	caches.Nodes.MSet(ctx, map[string]index.Node{
		"aa": {Hash: "aa", Type: "FullNode", Status: "INACTIVE", Uptime: &uptime, UpdateTime: stored.Add(time.Minute)},
		"bb": {Hash: "bb", Type: "FullNode", Status: "INACTIVE", UpdateTime: stored.Add(-time.Minute)},
	})

	code, body := get(t, app, "/api/v1/nodes")
	if code != 200 {
		t.Fatalf("unexpected status %d %v", code, body)
	}
	nodes, _ := body["nodes"].([]any)
	if len(nodes) != 2 {
		t.Fatalf("unexpected nodes %v", body)
	}
	aa, bb := nodes[0].(map[string]any), nodes[1].(map[string]any)
	if aa["status"] != "INACTIVE" || aa["uptime"] != 97.5 {
		t.Errorf("newer cached node must be served, got %v", aa)
	}
	if bb["status"] != "ACTIVE" {
		t.Errorf("older cached node must not replace the row, got %v", bb)
	}
}

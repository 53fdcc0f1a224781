package stats

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/coti-io/coti-explorer-api-sub000/cache"
	"github.com/coti-io/coti-explorer-api-sub000/index"
	"github.com/coti-io/coti-explorer-api-sub000/notify"
	"github.com/coti-io/coti-explorer-api-sub000/scheduler"
)

type fakeStore struct {
	mu          sync.Mutex
	ctStats     index.ConfirmationTimeStats
	ctSnapshots []index.ConfirmationTimeStats
	treasury    []index.TreasuryTotals
	nodes       []index.Node
	wallets     int64
	txCount     int64
	err         error
}

func (f *fakeStore) QueryConfirmationTimeStats(ctx context.Context, window time.Duration) (index.ConfirmationTimeStats, error) {
	return f.ctStats, f.err
}

func (f *fakeStore) InsertConfirmationTimeSnapshot(ctx context.Context, stats index.ConfirmationTimeStats) error {
	f.ctSnapshots = append(f.ctSnapshots, stats)
	return nil
}

func (f *fakeStore) InsertTreasurySnapshot(ctx context.Context, totals index.TreasuryTotals) error {
	f.treasury = append(f.treasury, totals)
	return nil
}

func (f *fakeStore) UpsertNodes(ctx context.Context, nodes []index.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = append(f.nodes, nodes...)
	return nil
}

func (f *fakeStore) CountActiveWallets(ctx context.Context) (int64, error) {
	return f.wallets, f.err
}

func (f *fakeStore) CountTransactions(ctx context.Context) (int64, error) {
	return f.txCount, f.err
}

type fakeNodes struct {
	nodes  []index.Node
	totals map[index.HashType]NodeTotals
}

func (f *fakeNodes) Nodes(ctx context.Context) ([]index.Node, error) {
	return append([]index.Node(nil), f.nodes...), nil
}

func (f *fakeNodes) NodeTotals(ctx context.Context, hash index.HashType) (NodeTotals, error) {
	t, ok := f.totals[hash]
	if !ok {
		return NodeTotals{}, errors.New("node manager timeout")
	}
	return t, nil
}

type fakeTreasury struct {
	totals index.TreasuryTotals
}

func (f *fakeTreasury) Totals(ctx context.Context) (index.TreasuryTotals, error) {
	return f.totals, nil
}

type emit struct {
	room, event string
	payload     any
}

type recordingRooms struct {
	mu    sync.Mutex
	emits []emit
}

func (r *recordingRooms) SendToRoom(ctx context.Context, room, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = append(r.emits, emit{room, event, payload})
	return nil
}

func (r *recordingRooms) Broadcast(ctx context.Context, event string, payload any) error {
	return r.SendToRoom(ctx, "*", event, payload)
}

func setup(t *testing.T, store *fakeStore, nodes NodeSource, treasury TreasurySource) (*Refresher, *recordingRooms, *cache.Manager) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	caches := cache.NewManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	logger, _ := test.NewNullLogger()
	rooms := &recordingRooms{}
	return NewRefresher(store, caches, notify.NewNotifier(rooms, logger), nodes, treasury, logger), rooms, caches
}

func TestConfirmationTime(t *testing.T) {
	store := &fakeStore{ctStats: index.ConfirmationTimeStats{AverageSeconds: 4.5, MinimumSeconds: 1, MaximumSeconds: 9, SampleSize: 10}}
	r, rooms, caches := setup(t, store, nil, nil)
	ctx := context.Background()

	if err := r.ConfirmationTime(ctx); err != nil {
		t.Fatal(err)
	}
	if len(store.ctSnapshots) != 1 || store.ctSnapshots[0].CreateTime.IsZero() {
		t.Errorf("snapshot not stored: %+v", store.ctSnapshots)
	}
	cached, err := caches.ConfirmationTime.Get(ctx, cache.LatestKey)
	if err != nil || cached.AverageSeconds != 4.5 {
		t.Errorf("unexpected cached value %+v, %v", cached, err)
	}
	if len(rooms.emits) != 1 || rooms.emits[0].room != "topic:confirmationTime" || rooms.emits[0].event != "confirmationTime" {
		t.Errorf("unexpected emits %+v", rooms.emits)
	}

	store.err = errors.New("connection refused")
	if err := r.ConfirmationTime(ctx); err == nil {
		t.Error("store failure must fail the task")
	}
	if len(rooms.emits) != 1 {
		t.Error("nothing must be pushed on failure")
	}
}

func TestTreasuryTotals(t *testing.T) {
	store := &fakeStore{}
	r, rooms, caches := setup(t, store, nil, &fakeTreasury{index.TreasuryTotals{TotalLocked: "100", TotalRewards: "5", TotalLeverage: "2"}})
	if err := r.TreasuryTotals(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.treasury) != 1 || store.treasury[0].TotalLocked != "100" {
		t.Errorf("unexpected snapshots %+v", store.treasury)
	}
	if got, _ := caches.TreasuryTotals.Get(context.Background(), cache.LatestKey); got.TotalRewards != "5" {
		t.Errorf("unexpected cached totals %+v", got)
	}
	if rooms.emits[0].room != "topic:treasuryTotals" {
		t.Errorf("unexpected room %s", rooms.emits[0].room)
	}
}

func TestNodeUptime(t *testing.T) {
	uptime, version := 97.5, "3.1.0"
	nodes := &fakeNodes{
		nodes: []index.Node{
			{Hash: "aa", Type: "FullNode", Status: "ACTIVE"},
			{Hash: "bb", Type: "FullNode", Status: "ACTIVE"},
		},
		totals: map[index.HashType]NodeTotals{
			"aa": {Uptime: &uptime, Version: &version},
		},
	}
	store := &fakeStore{}
	r, rooms, caches := setup(t, store, nodes, nil)
	ctx := context.Background()

	if err := r.NodeUptime(ctx); err != nil {
		t.Fatal(err)
	}
	if len(store.nodes) != 2 {
		t.Fatalf("expected 2 upserted nodes, got %d", len(store.nodes))
	}
	cached, err := caches.Nodes.MGet(ctx, "aa", "bb")
	if err != nil || len(cached) != 2 {
		t.Fatalf("unexpected cache state %v, %v", cached, err)
	}
	if cached["aa"].Uptime == nil || *cached["aa"].Uptime != 97.5 || cached["bb"].Uptime != nil {
		t.Errorf("unexpected cached nodes %+v", cached)
	}

	rooms.mu.Lock()
	defer rooms.mu.Unlock()
	if len(rooms.emits) != 3 {
		t.Fatalf("expected topic push and 2 node pushes, got %+v", rooms.emits)
	}
	if rooms.emits[0].room != "topic:nodeUpdates" || rooms.emits[1].event != "nodeUpdates/aa" || rooms.emits[1].room != "node:aa" {
		t.Errorf("unexpected emits %+v", rooms.emits)
	}

	nodes.totals = nil
	if err := r.NodeUptime(ctx); err == nil {
		t.Error("task must fail when no totals were fetched")
	}
}

func TestCounters(t *testing.T) {
	store := &fakeStore{wallets: 12, txCount: 3400}
	r, rooms, caches := setup(t, store, nil, nil)
	ctx := context.Background()

	if err := r.ActiveWallets(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.TransactionsTotal(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := caches.ActiveWallets.Get(ctx, cache.LatestKey); got.Count != 12 {
		t.Errorf("unexpected wallets %+v", got)
	}
	if len(rooms.emits) != 2 {
		t.Fatalf("unexpected emits %+v", rooms.emits)
	}
	if rooms.emits[0].room != "topic:activeWallets" {
		t.Errorf("unexpected room %s", rooms.emits[0].room)
	}
	if rooms.emits[1].room != "topic:transactions" || rooms.emits[1].event != "transactionsTotal" {
		t.Errorf("unexpected emit %+v", rooms.emits[1])
	}
	if snap, ok := rooms.emits[1].payload.(index.CountSnapshot); !ok || snap.Count != 3400 {
		t.Errorf("unexpected payload %+v", rooms.emits[1].payload)
	}
}

func TestRegisterTasks(t *testing.T) {
	r, _, _ := setup(t, &fakeStore{}, &fakeNodes{}, nil)
	reg := scheduler.NewRegistry()
	if err := r.RegisterSnapshotTasks(reg, time.Minute, 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterCounterTasks(reg, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, task := range reg.Tasks() {
		names = append(names, task.Name)
	}
	want := "confirmationTime,nodeUptime,activeWallets,transactionsTotal"
	if strings.Join(names, ",") != want {
		t.Errorf("registered %v, want %s", names, want)
	}
	if err := r.RegisterCounterTasks(reg, time.Second); !errors.Is(err, scheduler.ErrDuplicateTask) {
		t.Errorf("expected duplicate error, got %v", err)
	}
}

func serve(t *testing.T, handler fasthttp.RequestHandler) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go fasthttp.Serve(ln, handler)
	t.Cleanup(func() { ln.Close() })
	return &fasthttp.Client{Dial: func(addr string) (net.Conn, error) { return ln.Dial() }}
}

func TestNodeManagerClient(t *testing.T) {
	client := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		switch string(ctx.Path()) {
		case "/api/nodes":
			ctx.SetBodyString(`{"nodes":[{"nodeHash":"aa","nodeType":"FullNode","status":"ACTIVE"}]}`)
		case "/api/nodes/aa/totals":
			ctx.SetBodyString(`{"uptime":99.9,"version":"3.1.0","feePercentage":0.1}`)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	})
	c := NewNodeManagerClient("http://node-manager/api", client)
	ctx := context.Background()

	nodes, err := c.Nodes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Hash != "aa" || nodes[0].Type != "FullNode" {
		t.Errorf("unexpected nodes %+v", nodes)
	}
	totals, err := c.NodeTotals(ctx, "aa")
	if err != nil {
		t.Fatal(err)
	}
	if totals.Uptime == nil || *totals.Uptime != 99.9 || totals.FeeMinimum != nil {
		t.Errorf("unexpected totals %+v", totals)
	}
	if _, err := c.NodeTotals(ctx, "bb"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected status error, got %v", err)
	}
	if !c.IsHealthy() {
		t.Error("non-200 answers still mean the service is reachable")
	}
}

func TestTreasuryClient_Unavailable(t *testing.T) {
	client := &fasthttp.Client{Dial: func(addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}}
	c := NewTreasuryClient("http://treasury", client)
	if _, err := c.Totals(context.Background()); !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
	if c.IsHealthy() {
		t.Error("client must be marked unhealthy")
	}
}

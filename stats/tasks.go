// Package stats holds the periodic statistics tasks of the explorer.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/coti-io/coti-explorer-api-sub000/cache"
	"github.com/coti-io/coti-explorer-api-sub000/index"
	"github.com/coti-io/coti-explorer-api-sub000/notify"
	"github.com/coti-io/coti-explorer-api-sub000/scheduler"
)

const (
	TaskConfirmationTime  = "confirmationTime"
	TaskTreasuryTotals    = "treasuryTotals"
	TaskNodeUptime        = "nodeUptime"
	TaskActiveWallets     = "activeWallets"
	TaskTransactionsTotal = "transactionsTotal"
)

// ConfirmationWindow is the period the confirmation time is averaged over.
const ConfirmationWindow = 24 * time.Hour

type Store interface {
	QueryConfirmationTimeStats(ctx context.Context, window time.Duration) (index.ConfirmationTimeStats, error)
	InsertConfirmationTimeSnapshot(ctx context.Context, stats index.ConfirmationTimeStats) error
	InsertTreasurySnapshot(ctx context.Context, totals index.TreasuryTotals) error
	UpsertNodes(ctx context.Context, nodes []index.Node) error
	CountActiveWallets(ctx context.Context) (int64, error)
	CountTransactions(ctx context.Context) (int64, error)
}

type NodeSource interface {
	Nodes(ctx context.Context) ([]index.Node, error)
	NodeTotals(ctx context.Context, hash index.HashType) (NodeTotals, error)
}

type TreasurySource interface {
	Totals(ctx context.Context) (index.TreasuryTotals, error)
}

// Refresher computes statistics, stores them and pushes them to topic rooms.
// Node and treasury sources are optional; without them those tasks are not
// registered.
type Refresher struct {
	store    Store
	caches   *cache.Manager
	notifier *notify.Notifier
	nodes    NodeSource
	treasury TreasurySource
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewRefresher(store Store, caches *cache.Manager, notifier *notify.Notifier, nodes NodeSource, treasury TreasurySource, log logrus.FieldLogger) *Refresher {
	return &Refresher{
		store:    store,
		caches:   caches,
		notifier: notifier,
		nodes:    nodes,
		treasury: treasury,
		log:      log.WithField("component", "stats"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterSnapshotTasks registers the tasks run by the API service.
func (r *Refresher) RegisterSnapshotTasks(reg *scheduler.Registry, statsInterval, nodeInterval time.Duration) error {
	tasks := []scheduler.Task{
		{Name: TaskConfirmationTime, Interval: statsInterval, Run: r.ConfirmationTime, Immediate: true},
	}
	if r.treasury != nil {
		tasks = append(tasks, scheduler.Task{Name: TaskTreasuryTotals, Interval: statsInterval, Run: r.TreasuryTotals, Immediate: true})
	}
	if r.nodes != nil {
		tasks = append(tasks, scheduler.Task{Name: TaskNodeUptime, Interval: nodeInterval, Run: r.NodeUptime, Immediate: true})
	}
	return registerAll(reg, tasks)
}

// RegisterCounterTasks registers the tasks run by the gateway.
func (r *Refresher) RegisterCounterTasks(reg *scheduler.Registry, interval time.Duration) error {
	return registerAll(reg, []scheduler.Task{
		{Name: TaskActiveWallets, Interval: interval, Run: r.ActiveWallets},
		{Name: TaskTransactionsTotal, Interval: interval, Run: r.TransactionsTotal},
	})
}

func registerAll(reg *scheduler.Registry, tasks []scheduler.Task) error {
	for _, task := range tasks {
		if err := reg.Register(task); err != nil {
			return err
		}
	}
	return nil
}

// push sends to the topic room. Cache and push failures do not fail the
// task once the value is stored.
func (r *Refresher) push(ctx context.Context, topic string, payload any) {
	if err := r.notifier.SendToRoom(ctx, notify.TopicTarget(topic), topic, payload); err != nil {
		r.log.WithError(err).WithField("topic", topic).Warn("failed to push statistics")
	}
}

func (r *Refresher) cacheWarn(err error, topic string) {
	if err != nil {
		r.log.WithError(err).WithField("topic", topic).Warn("failed to cache statistics")
	}
}

func (r *Refresher) ConfirmationTime(ctx context.Context) error {
	stats, err := r.store.QueryConfirmationTimeStats(ctx, ConfirmationWindow)
	if err != nil {
		return fmt.Errorf("query confirmation time: %w", err)
	}
	stats.CreateTime = r.now()
	if err := r.store.InsertConfirmationTimeSnapshot(ctx, stats); err != nil {
		return fmt.Errorf("insert confirmation time: %w", err)
	}
	r.cacheWarn(r.caches.ConfirmationTime.Set(ctx, cache.LatestKey, stats), notify.TopicConfirmationTime)
	r.push(ctx, notify.TopicConfirmationTime, stats)
	return nil
}

func (r *Refresher) TreasuryTotals(ctx context.Context) error {
	totals, err := r.treasury.Totals(ctx)
	if err != nil {
		return fmt.Errorf("fetch treasury totals: %w", err)
	}
	totals.CreateTime = r.now()
	if err := r.store.InsertTreasurySnapshot(ctx, totals); err != nil {
		return fmt.Errorf("insert treasury totals: %w", err)
	}
	r.cacheWarn(r.caches.TreasuryTotals.Set(ctx, cache.LatestKey, totals), notify.TopicTreasuryTotals)
	r.push(ctx, notify.TopicTreasuryTotals, totals)
	return nil
}

// NodeUptime refreshes every node known to the node manager. Nodes whose
// totals cannot be fetched keep their previous totals.
func (r *Refresher) NodeUptime(ctx context.Context) error {
	nodes, err := r.nodes.Nodes(ctx)
	if err != nil {
		return fmt.Errorf("fetch nodes: %w", err)
	}
	if len(nodes) == 0 {
		return nil
	}

	now := r.now()
	var (
		mu     sync.Mutex
		failed int
	)
	var g errgroup.Group
	g.SetLimit(8)
	for i := range nodes {
		g.Go(func() error {
			node := &nodes[i]
			node.UpdateTime = now
			totals, err := r.nodes.NodeTotals(ctx, node.Hash)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				r.log.WithError(err).WithField("node", node.Hash).Debug("failed to fetch node totals")
				return nil
			}
			node.Version = totals.Version
			node.FeePercentage = totals.FeePercentage
			node.FeeMinimum = totals.FeeMinimum
			node.FeeMaximum = totals.FeeMaximum
			node.Uptime = totals.Uptime
			return nil
		})
	}
	g.Wait()
	if failed > 0 {
		r.log.WithFields(logrus.Fields{"nodes": len(nodes), "failed": failed}).Warn("node totals incomplete")
	}
	if failed == len(nodes) {
		return fmt.Errorf("no node totals fetched for %d nodes", len(nodes))
	}

	if err := r.store.UpsertNodes(ctx, nodes); err != nil {
		return fmt.Errorf("upsert nodes: %w", err)
	}
	byHash := make(map[string]index.Node, len(nodes))
	for _, n := range nodes {
		byHash[string(n.Hash)] = n
	}
	r.cacheWarn(r.caches.Nodes.MSet(ctx, byHash), notify.TopicNodeUpdates)

	r.push(ctx, notify.TopicNodeUpdates, index.NodesResponse{Nodes: nodes})
	for _, n := range nodes {
		target := notify.NodeTarget(n.Hash)
		event := notify.EventName(notify.TopicNodeUpdates, target.Key)
		if err := r.notifier.SendToRoom(ctx, target, event, n); err != nil {
			r.log.WithError(err).WithField("node", n.Hash).Warn("failed to push node update")
		}
	}
	return nil
}

func (r *Refresher) ActiveWallets(ctx context.Context) error {
	count, err := r.store.CountActiveWallets(ctx)
	if err != nil {
		return fmt.Errorf("count active wallets: %w", err)
	}
	snapshot := index.CountSnapshot{Count: count, CreateTime: r.now()}
	r.cacheWarn(r.caches.ActiveWallets.Set(ctx, cache.LatestKey, snapshot), notify.TopicActiveWallets)
	r.push(ctx, notify.TopicActiveWallets, snapshot)
	return nil
}

// TransactionsTotal goes to the general transactions room, next to the
// per-transaction broadcast.
func (r *Refresher) TransactionsTotal(ctx context.Context) error {
	count, err := r.store.CountTransactions(ctx)
	if err != nil {
		return fmt.Errorf("count transactions: %w", err)
	}
	snapshot := index.CountSnapshot{Count: count, CreateTime: r.now()}
	r.cacheWarn(r.caches.TransactionsTotal.Set(ctx, cache.LatestKey, snapshot), notify.TopicTransactionsTotal)
	target := notify.TopicTarget(notify.TopicTransactions)
	if err := r.notifier.SendToRoom(ctx, target, notify.TopicTransactionsTotal, snapshot); err != nil {
		r.log.WithError(err).WithField("topic", notify.TopicTransactionsTotal).Warn("failed to push statistics")
	}
	return nil
}

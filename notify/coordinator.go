package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coti-io/coti-explorer-api-sub000/feed"
	"github.com/coti-io/coti-explorer-api-sub000/index"
)

// TransactionStore is the part of the transaction store the live feed reads.
type TransactionStore interface {
	GetTransactionsByID(ctx context.Context, ids []int64) ([]index.Transaction, error)
	GetTransactionsCount(ctx context.Context, addresses []index.AddressHash) (map[index.AddressHash]int64, error)
}

// Coordinator drives the live transaction feed: it hydrates change batches,
// resolves their targets and hands them to the notifier.
type Coordinator struct {
	store          TransactionStore
	notifier       *Notifier
	nativeCurrency index.HashType
	log            logrus.FieldLogger
}

func NewCoordinator(store TransactionStore, notifier *Notifier, nativeCurrency index.HashType, log logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		store:          store,
		notifier:       notifier,
		nativeCurrency: nativeCurrency,
		log:            log.WithField("component", "live_feed"),
	}
}

// Run starts the source, consumes it until it stops and always closes it.
// It returns the start-up error, or the error that stopped the source.
func (c *Coordinator) Run(ctx context.Context, source feed.Source) error {
	if err := source.Start(ctx); err != nil {
		source.Close()
		return fmt.Errorf("start change feed: %w", err)
	}
	defer func() {
		if err := source.Close(); err != nil {
			c.log.WithError(err).Warn("failed to close change feed")
		}
	}()
	c.log.Info("live feed started")

	for ev := range source.Events() {
		c.HandleEvent(ctx, ev)
	}
	if err := source.Err(); err != nil {
		return fmt.Errorf("change feed stopped: %w", err)
	}
	return nil
}

// HandleEvent processes one batch. Store failures drop the batch.
func (c *Coordinator) HandleEvent(ctx context.Context, ev feed.ChangeEvent) {
	log := c.log.WithFields(logrus.Fields{"view": ev.View, "ids": len(ev.AddedIDs)})
	start := time.Now()

	txs, err := c.store.GetTransactionsByID(ctx, ev.AddedIDs)
	if err != nil {
		log.WithError(err).Error("failed to load transactions")
		return
	}
	if len(txs) == 0 {
		return
	}

	targets := ResolveTargets(txs, c.nativeCurrency)
	counts, err := c.store.GetTransactionsCount(ctx, targets.All.ToSlice())
	if err != nil {
		log.WithError(err).Warn("failed to load address totals, totals are skipped")
		counts = nil
	}
	counts = canonicalCounts(counts)

	c.notifier.NotifyBatch(ctx, targets, counts)
	log.WithFields(logrus.Fields{
		"transactions": len(txs),
		"addresses":    targets.All.Cardinality(),
		"elapsed":      time.Since(start),
	}).Debug("batch notified")
}

// canonicalCounts re-keys store counts by room key so they match resolved
// addresses whatever spelling the store returned.
func canonicalCounts(counts map[index.AddressHash]int64) map[index.AddressHash]int64 {
	if counts == nil {
		return nil
	}
	res := make(map[index.AddressHash]int64, len(counts))
	for addr, count := range counts {
		res[index.AddressHash(canonicalKey(string(addr)))] += count
	}
	return res
}

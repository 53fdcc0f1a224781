package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/coti-io/coti-explorer-api-sub000/index"
	"github.com/coti-io/coti-explorer-api-sub000/metrics"
)

// Rooms is the room pub/sub capability. Both calls return once the delivery
// attempt finished; nothing is confirmed by remote clients.
type Rooms interface {
	SendToRoom(ctx context.Context, room, event string, payload any) error
	Broadcast(ctx context.Context, event string, payload any) error
}

// Notifier fans live events out to rooms with at-most-once delivery.
type Notifier struct {
	rooms       Rooms
	log         logrus.FieldLogger
	parallelism int
}

func NewNotifier(rooms Rooms, log logrus.FieldLogger) *Notifier {
	return &Notifier{
		rooms:       rooms,
		log:         log.WithField("component", "notifier"),
		parallelism: 16,
	}
}

// SendToRoom emits one event and records it in metrics.
func (n *Notifier) SendToRoom(ctx context.Context, target Target, event string, payload any) error {
	topic := baseTopic(event)
	metrics.EmittedEvents.WithLabelValues(topic).Inc()
	if err := n.rooms.SendToRoom(ctx, target.Room(), event, payload); err != nil {
		metrics.EmitFailures.WithLabelValues(topic).Inc()
		return fmt.Errorf("emit %s to %s: %w", event, target.Room(), err)
	}
	return nil
}

func (n *Notifier) Broadcast(ctx context.Context, event string, payload any) error {
	topic := baseTopic(event)
	metrics.EmittedEvents.WithLabelValues(topic).Inc()
	if err := n.rooms.Broadcast(ctx, event, payload); err != nil {
		metrics.EmitFailures.WithLabelValues(topic).Inc()
		return fmt.Errorf("broadcast %s: %w", event, err)
	}
	return nil
}

// NotifyTransaction emits, for every address, the detail event followed by the
// total event, then the transaction detail, token events and the global
// broadcast. Independent targets are emitted concurrently and every emit is
// attempted. Addresses missing from counts get no total event; counts are
// keyed by canonical address.
func (n *Notifier) NotifyTransaction(ctx context.Context, targets TransactionTargets, counts map[index.AddressHash]int64) error {
	tx := targets.Transaction
	var (
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}

	var g errgroup.Group
	g.SetLimit(n.parallelism)
	for _, addr := range targets.Addresses.ToSlice() {
		g.Go(func() error {
			key := string(addr)
			collect(n.SendToRoom(ctx, AddressTarget(addr), EventName(TopicAddressTransactions, key), tx))
			if count, ok := counts[addr]; ok {
				total := index.AddressTotalResponse{AddressHash: addr, TotalTransactions: count}
				collect(n.SendToRoom(ctx, AddressTarget(addr), TotalEventName(TopicAddressTransactions, key), total))
			}
			return nil
		})
	}
	for _, token := range targets.Tokens.ToSlice() {
		g.Go(func() error {
			collect(n.SendToRoom(ctx, TokenTarget(token), EventName(TopicTokenTransactions, string(token)), tx))
			return nil
		})
	}
	g.Go(func() error {
		target := TransactionTarget(tx.Hash)
		collect(n.SendToRoom(ctx, target, EventName(TopicTransactionDetails, target.Key), tx))
		return nil
	})
	g.Go(func() error {
		collect(n.Broadcast(ctx, TopicTransactions, tx))
		return nil
	})
	// emits report through collect, Wait only joins them
	_ = g.Wait()
	return errors.Join(errs...)
}

// NotifyBatch notifies every transaction of a batch. Failures are logged here
// once per batch and never returned.
func (n *Notifier) NotifyBatch(ctx context.Context, targets Targets, counts map[index.AddressHash]int64) {
	var errs []error
	for _, tt := range targets.PerTransaction {
		if err := n.NotifyTransaction(ctx, tt, counts); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		n.log.WithError(errors.Join(errs...)).WithFields(logrus.Fields{
			"transactions":        len(targets.PerTransaction),
			"failed_transactions": len(errs),
		}).Error("live notification failed")
	}
}

func baseTopic(event string) string {
	if i := strings.IndexByte(event, '/'); i >= 0 {
		return event[:i]
	}
	return event
}

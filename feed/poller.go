package feed

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/coti-io/coti-explorer-api-sub000/metrics"
)

// IDQuerier runs the two row selectors of the polling feed.
type IDQuerier interface {
	QueryRecentTransactionIDs(ctx context.Context, window time.Duration, confirmed bool) ([]int64, error)
}

type PollerConfig struct {
	Interval         time.Duration
	Window           time.Duration
	HandshakeTimeout time.Duration
	BufferSize       int
}

func (c *PollerConfig) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = time.Second
	}
	if c.Window == 0 {
		c.Window = 5 * time.Minute
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = HandshakeTimeout
	}
	if c.BufferSize == 0 {
		c.BufferSize = 16
	}
}

// Poller diffs the NEW and CONFIRMED selectors between polls. Rows found by
// the first successful poll of a view are the baseline and are never reported.
type Poller struct {
	store  IDQuerier
	config PollerConfig
	log    logrus.FieldLogger
	events chan ChangeEvent

	// per-view state, touched only by the polling goroutine after Start
	known     map[View]mapset.Set[int64]
	baselined map[View]bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewPoller(store IDQuerier, config PollerConfig, log logrus.FieldLogger) *Poller {
	config.applyDefaults()
	return &Poller{
		store:     store,
		config:    config,
		log:       log.WithField("component", "poller"),
		events:    make(chan ChangeEvent, config.BufferSize),
		known:     map[View]mapset.Set[int64]{},
		baselined: map[View]bool{},
		done:      make(chan struct{}),
	}
}

func (p *Poller) Events() <-chan ChangeEvent {
	return p.events
}

// Err is always nil: poll failures are retried on the next tick.
func (p *Poller) Err() error {
	return nil
}

// Start takes the baseline of both views within HandshakeTimeout and then
// polls every Interval until ctx is done or Close is called.
func (p *Poller) Start(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, p.config.HandshakeTimeout)
	defer cancel()
	for _, view := range []View{ViewNew, ViewConfirmed} {
		if _, err := p.poll(hctx, view); err != nil {
			return handshakeError(hctx, err)
		}
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
	return nil
}

func (p *Poller) Close() error {
	p.closeOnce.Do(func() {
		if p.cancel == nil {
			close(p.events)
			close(p.done)
			return
		}
		p.cancel()
		<-p.done
	})
	return nil
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	defer close(p.events)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, view := range []View{ViewNew, ViewConfirmed} {
			added, err := p.poll(ctx, view)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.FeedPollErrors.WithLabelValues(string(view)).Inc()
				p.log.WithError(err).WithField("view", view).Error("poll failed")
				continue
			}
			if len(added) == 0 {
				continue
			}
			select {
			case p.events <- ChangeEvent{AddedIDs: added, View: view}:
				metrics.FeedBatches.WithLabelValues(string(view)).Inc()
			case <-ctx.Done():
				return
			}
		}
	}
}

// poll returns ids absent from the previous successful poll of the view.
func (p *Poller) poll(ctx context.Context, view View) ([]int64, error) {
	ids, err := p.store.QueryRecentTransactionIDs(ctx, p.config.Window, view == ViewConfirmed)
	if err != nil {
		return nil, err
	}
	current := mapset.NewThreadUnsafeSetWithSize[int64](len(ids))
	added := []int64{}
	prev := p.known[view]
	for _, id := range ids {
		if !current.Add(id) {
			continue
		}
		if prev == nil || !prev.Contains(id) {
			added = append(added, id)
		}
	}
	p.known[view] = current

	if !p.baselined[view] {
		p.baselined[view] = true
		p.log.WithFields(logrus.Fields{"view": view, "baseline": len(added)}).Info("feed baseline taken")
		return nil, nil
	}
	return added, nil
}

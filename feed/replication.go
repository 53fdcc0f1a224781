package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/coti-io/coti-explorer-api-sub000/metrics"
	"github.com/coti-io/coti-explorer-api-sub000/repl"
)

// RowStream is the replication reader consumed by ReplicationSource.
type RowStream interface {
	Open(ctx context.Context) error
	Stream(ctx context.Context) error
	Changes() <-chan repl.RowChange
	Close() error
}

// ReplicationSource groups row changes of the replication stream into
// ChangeEvents, flushed every FlushInterval. The stream starts at the current
// WAL position so there is no history to suppress.
type ReplicationSource struct {
	stream        RowStream
	flushInterval time.Duration
	log           logrus.FieldLogger
	events        chan ChangeEvent

	// confirmed remembers recently announced confirmations, for updates
	// that arrive without the old row
	confirmed    mapset.Set[int64]
	confirmedCap int

	mu        sync.Mutex
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewReplicationSource(stream RowStream, flushInterval time.Duration, log logrus.FieldLogger) *ReplicationSource {
	if flushInterval == 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &ReplicationSource{
		stream:        stream,
		flushInterval: flushInterval,
		log:           log.WithField("component", "replication_source"),
		events:        make(chan ChangeEvent, 16),
		confirmed:     mapset.NewThreadUnsafeSet[int64](),
		confirmedCap:  100000,
		done:          make(chan struct{}),
	}
}

func (s *ReplicationSource) Events() <-chan ChangeEvent {
	return s.events
}

func (s *ReplicationSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start opens the replication stream. The stream bounds its own handshake; the
// outer HandshakeTimeout is a backstop.
func (s *ReplicationSource) Start(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	err := s.stream.Open(hctx)
	cancel()
	if err != nil {
		return handshakeError(hctx, err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- s.stream.Stream(ctx)
	}()
	go s.run(ctx, streamDone)
	return nil
}

// Close stops the stream and releases the replication connection.
func (s *ReplicationSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancel == nil {
			close(s.events)
			close(s.done)
		} else {
			s.cancel()
			<-s.done
		}
		err = s.stream.Close()
	})
	return err
}

func (s *ReplicationSource) run(ctx context.Context, streamDone <-chan error) {
	defer close(s.done)
	defer close(s.events)

	var newIds, confirmedIds []int64
	pending := mapset.NewThreadUnsafeSet[int64]()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() bool {
		for _, ev := range []ChangeEvent{{AddedIDs: newIds, View: ViewNew}, {AddedIDs: confirmedIds, View: ViewConfirmed}} {
			if len(ev.AddedIDs) == 0 {
				continue
			}
			select {
			case s.events <- ev:
				metrics.FeedBatches.WithLabelValues(string(ev.View)).Inc()
			case <-ctx.Done():
				return false
			}
		}
		newIds, confirmedIds = nil, nil
		pending.Clear()
		return true
	}

	apply := func(change repl.RowChange) {
		if change.BecameConfirmed() {
			if s.markConfirmed(change.Id) {
				confirmedIds = append(confirmedIds, change.Id)
			}
		} else if !change.Confirmed && change.Operation == repl.Insert {
			if pending.Add(change.Id) {
				newIds = append(newIds, change.Id)
			}
		}
	}

	changes := s.stream.Changes()
	for {
		select {
		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			apply(change)
		case <-ticker.C:
			if !flush() {
				return
			}
		case err := <-streamDone:
			if changes != nil {
				for change := range changes {
					apply(change)
				}
			}
			flush()
			if err != nil && !errors.Is(err, context.Canceled) {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				s.log.WithError(err).Error("replication stream stopped")
			}
			return
		}
	}
}

// markConfirmed reports whether the id was not announced as confirmed yet.
func (s *ReplicationSource) markConfirmed(id int64) bool {
	if s.confirmed.Contains(id) {
		return false
	}
	if s.confirmed.Cardinality() >= s.confirmedCap {
		s.confirmed.Clear()
	}
	s.confirmed.Add(id)
	return true
}

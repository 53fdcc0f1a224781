// Package feed detects transactions that were created or confirmed since the
// last check and reports them as ChangeEvent batches.
package feed

import (
	"context"
	"errors"
	"time"
)

// View selects which transactions a ChangeEvent reports.
type View string

const (
	ViewNew       View = "NEW"
	ViewConfirmed View = "CONFIRMED"
)

// ChangeEvent is one diff batch. AddedIDs keeps the order rows were seen in.
type ChangeEvent struct {
	AddedIDs []int64
	View     View
}

// Confirmed reports whether the batch comes from the CONFIRMED view.
func (e ChangeEvent) Confirmed() bool {
	return e.View == ViewConfirmed
}

const HandshakeTimeout = 10 * time.Second

var ErrHandshakeTimeout = errors.New("change feed handshake timed out")

// Source is a single-consumer, non-restartable stream of ChangeEvents.
//
// Start performs the bounded handshake and returns its error. After that the
// Events channel yields batches until the source stops; Err then reports why.
// A nil Err means the context was cancelled or Close was called.
type Source interface {
	Start(ctx context.Context) error
	Events() <-chan ChangeEvent
	Err() error
	Close() error
}

func handshakeError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrHandshakeTimeout, err)
	}
	return err
}

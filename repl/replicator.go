package repl

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
)

// Replicator reads row changes of one table from a logical replication slot.
// It has a single consumer and owns its connection exclusively.
type Replicator struct {
	config  Config
	changes chan RowChange
	conn    *pgconn.PgConn
	decoder *decoder
	startAt pglogrepl.LSN
	lastMsg atomic.Int64
}

func NewReplicator(cfg Config) (*Replicator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.applyDefaults()

	return &Replicator{
		config:  cfg,
		changes: make(chan RowChange, cfg.EventBufferSize),
		decoder: newDecoder(cfg),
	}, nil
}

// Changes is closed when Stream returns.
func (r *Replicator) Changes() <-chan RowChange {
	return r.changes
}

func (r *Replicator) TimeSinceLastMsg() time.Duration {
	return time.Since(time.UnixMilli(r.lastMsg.Load()))
}

// Open connects and starts replication. The whole handshake is bounded by
// HandshakeTimeout.
func (r *Replicator) Open(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.HandshakeTimeout)
	defer cancel()

	conn, err := pgconn.Connect(ctx, r.config.ConnectionString)
	if err != nil {
		return fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	r.conn = conn

	if r.config.CreatePublication {
		if err := r.setupPublication(ctx); err != nil {
			return fmt.Errorf("setup publication: %w", err)
		}
	}
	if err := r.createReplicationSlot(ctx); err != nil {
		return fmt.Errorf("create replication slot: %w", err)
	}
	sysident, err := pglogrepl.IdentifySystem(ctx, r.conn)
	if err != nil {
		return fmt.Errorf("identify system: %w", err)
	}
	if err := r.startReplication(ctx, sysident.XLogPos); err != nil {
		return fmt.Errorf("start replication: %w", err)
	}
	r.startAt = sysident.XLogPos
	r.lastMsg.Store(time.Now().UnixMilli())
	return nil
}

// Stream blocks until ctx is cancelled or the stream fails. There is no
// reconnect: a returned error other than ctx.Err() ends this replicator.
func (r *Replicator) Stream(ctx context.Context) error {
	defer close(r.changes)
	if r.conn == nil {
		return fmt.Errorf("replicator is not open")
	}
	return r.receiveMessages(ctx, r.startAt)
}

func (r *Replicator) Close() error {
	if r.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return r.conn.Close(ctx)
	}
	return nil
}

func (r *Replicator) setupPublication(ctx context.Context) error {
	createSQL := fmt.Sprintf("CREATE PUBLICATION %s FOR TABLE %s WITH (publish = 'insert, update');",
		r.config.PublicationName, r.config.Table)
	result := r.conn.Exec(ctx, createSQL)
	if _, err := result.ReadAll(); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("create publication: %w", err)
	}
	return nil
}

func (r *Replicator) createReplicationSlot(ctx context.Context) error {
	_, err := pglogrepl.CreateReplicationSlot(ctx, r.conn, r.config.SlotName, "pgoutput",
		pglogrepl.CreateReplicationSlotOptions{Temporary: r.config.TemporarySlot})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}
	return nil
}

func (r *Replicator) startReplication(ctx context.Context, startPos pglogrepl.LSN) error {
	pluginArgs := []string{
		"proto_version '2'",
		fmt.Sprintf("publication_names '%s'", r.config.PublicationName),
	}
	return pglogrepl.StartReplication(ctx, r.conn, r.config.SlotName, startPos,
		pglogrepl.StartReplicationOptions{PluginArgs: pluginArgs})
}

func (r *Replicator) receiveMessages(ctx context.Context, startPos pglogrepl.LSN) error {
	clientXLogPos := startPos
	nextStandbyDeadline := time.Now().Add(r.config.StandbyMessageTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Now().After(nextStandbyDeadline) {
			err := pglogrepl.SendStandbyStatusUpdate(ctx, r.conn, pglogrepl.StandbyStatusUpdate{
				WALWritePosition: clientXLogPos,
			})
			if err != nil {
				return fmt.Errorf("send standby status: %w", err)
			}
			nextStandbyDeadline = time.Now().Add(r.config.StandbyMessageTimeout)
		}

		msgCtx, cancel := context.WithDeadline(ctx, nextStandbyDeadline)
		rawMsg, err := r.conn.ReceiveMessage(msgCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if pgconn.Timeout(err) {
				continue
			}
			return fmt.Errorf("receive message: %w", err)
		}

		if errMsg, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			return fmt.Errorf("postgres error: %s", errMsg.Message)
		}
		r.lastMsg.Store(time.Now().UnixMilli())

		msg, ok := rawMsg.(*pgproto3.CopyData)
		if !ok || len(msg.Data) == 0 {
			continue
		}

		switch msg.Data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
			if err != nil {
				return fmt.Errorf("parse keepalive: %w", err)
			}
			if pkm.ServerWALEnd > clientXLogPos {
				clientXLogPos = pkm.ServerWALEnd
			}
			if pkm.ReplyRequested {
				nextStandbyDeadline = time.Time{}
			}

		case pglogrepl.XLogDataByteID:
			xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
			if err != nil {
				return fmt.Errorf("parse xlog data: %w", err)
			}
			change, err := r.decoder.decode(xld.WALData)
			if err != nil {
				return fmt.Errorf("decode wal data: %w", err)
			}
			if change != nil {
				select {
				case r.changes <- *change:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if xld.WALStart > clientXLogPos {
				clientXLogPos = xld.WALStart
			}
		}
	}
}

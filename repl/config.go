package repl

import (
	"errors"
	"time"
)

// Config holds the configuration for the Replicator
type Config struct {
	// ConnectionString must include replication=database
	ConnectionString string

	SlotName        string
	PublicationName string

	// Table is the watched table in "schema.table" format
	Table string

	// IdColumn and ConfirmedColumn name the columns copied into RowChange.
	IdColumn        string
	ConfirmedColumn string

	// TemporarySlot drops the slot together with the connection
	TemporarySlot     bool
	CreatePublication bool

	// HandshakeTimeout bounds everything Open does before streaming starts
	HandshakeTimeout      time.Duration
	StandbyMessageTimeout time.Duration
	EventBufferSize       int
}

func (c *Config) Validate() error {
	if c.ConnectionString == "" {
		return errors.New("ConnectionString is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.SlotName == "" {
		c.SlotName = "explorer_feed_slot"
	}
	if c.PublicationName == "" {
		c.PublicationName = "explorer_feed_publication"
	}
	if c.Table == "" {
		c.Table = "public.transactions"
	}
	if c.IdColumn == "" {
		c.IdColumn = "id"
	}
	if c.ConfirmedColumn == "" {
		c.ConfirmedColumn = "transaction_consensus_update_time"
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.StandbyMessageTimeout == 0 {
		c.StandbyMessageTimeout = 10 * time.Second
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = 1024
	}
}

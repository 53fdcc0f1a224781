package streaming

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/coti-io/coti-explorer-api-sub000/index"
	"github.com/coti-io/coti-explorer-api-sub000/notify"
)

// RoomTransport mirrors room membership decided by the Registry.
type RoomTransport interface {
	Join(id, room string) error
	Leave(id, room string) error
}

// SubscriptionRequest is the payload of subscribe and unsubscribe. An absent
// or false field means no change for that room. GeneralTransactions only
// governs the transactionsTotal counter; every connection receives the
// per-transaction broadcast regardless of it.
type SubscriptionRequest struct {
	Address                 *string `json:"address,omitempty"`
	TransactionHash         *string `json:"transactionHash,omitempty"`
	NodeHash                *string `json:"nodeHash,omitempty"`
	TokenHash               *string `json:"tokenHash,omitempty"`
	NodeUpdates             bool    `json:"nodeUpdates,omitempty"`
	TreasuryTotals          bool    `json:"treasuryTotals,omitempty"`
	ActiveWallets           bool    `json:"activeWallets,omitempty"`
	ConfirmationTimeUpdates bool    `json:"confirmationTimeUpdates,omitempty"`
	GeneralTransactions     bool    `json:"generalTransactions,omitempty"`
}

// Normalize validates hash fields and lower-cases them in place.
func (r *SubscriptionRequest) Normalize() error {
	fields := []struct {
		name string
		val  *string
	}{
		{"address", r.Address},
		{"transactionHash", r.TransactionHash},
		{"nodeHash", r.NodeHash},
		{"tokenHash", r.TokenHash},
	}
	for _, f := range fields {
		if f.val == nil {
			continue
		}
		key, ok := index.NormalizeHash(*f.val)
		if !ok {
			return fmt.Errorf("invalid %s: %q", f.name, *f.val)
		}
		*f.val = key
	}
	if len(r.Targets()) == 0 {
		return errors.New("at least one subscription field is required")
	}
	return nil
}

// Targets lists the rooms named by the populated fields.
func (r SubscriptionRequest) Targets() []notify.Target {
	res := []notify.Target{}
	if r.Address != nil {
		res = append(res, notify.AddressTarget(index.AddressHash(*r.Address)))
	}
	if r.TransactionHash != nil {
		res = append(res, notify.TransactionTarget(index.HashType(*r.TransactionHash)))
	}
	if r.NodeHash != nil {
		res = append(res, notify.NodeTarget(index.HashType(*r.NodeHash)))
	}
	if r.TokenHash != nil {
		res = append(res, notify.TokenTarget(index.HashType(*r.TokenHash)))
	}
	topics := []struct {
		set   bool
		topic string
	}{
		{r.NodeUpdates, notify.TopicNodeUpdates},
		{r.TreasuryTotals, notify.TopicTreasuryTotals},
		{r.ActiveWallets, notify.TopicActiveWallets},
		{r.ConfirmationTimeUpdates, notify.TopicConfirmationTime},
		{r.GeneralTransactions, notify.TopicTransactions},
	}
	for _, t := range topics {
		if t.set {
			res = append(res, notify.TopicTarget(t.topic))
		}
	}
	return res
}

// Registry is the source of truth for the rooms each connection is in.
type Registry struct {
	transport RoomTransport
	log       logrus.FieldLogger
	mu        sync.Mutex
	conns     map[string]mapset.Set[string]
}

func NewRegistry(transport RoomTransport, log logrus.FieldLogger) *Registry {
	return &Registry{
		transport: transport,
		log:       log.WithField("component", "subscriptions"),
		conns:     make(map[string]mapset.Set[string]),
	}
}

// Connect joins the private room of the connection.
func (r *Registry) Connect(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	private := notify.ConnectionTarget(id).Room()
	if err := r.transport.Join(id, private); err != nil {
		return err
	}
	r.conns[id] = mapset.NewThreadUnsafeSet(private)
	r.log.WithFields(logrus.Fields{"connection": id, "room": private}).Info("connected")
	return nil
}

// Subscribe joins every room of req and returns those that were not joined yet.
func (r *Registry) Subscribe(id string, req SubscriptionRequest) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.conns[id]
	if !ok {
		return nil, ErrUnknownConnection
	}
	joined := []string{}
	var errs []error
	for _, target := range req.Targets() {
		room := target.Room()
		if rooms.Contains(room) {
			continue
		}
		if err := r.transport.Join(id, room); err != nil {
			errs = append(errs, fmt.Errorf("join %s: %w", room, err))
			continue
		}
		rooms.Add(room)
		joined = append(joined, room)
	}
	r.log.WithFields(logrus.Fields{"connection": id, "joined": joined, "rooms": rooms.Cardinality()}).Info("subscribed")
	return joined, errors.Join(errs...)
}

// Unsubscribe leaves every room of req and returns those that were left.
func (r *Registry) Unsubscribe(id string, req SubscriptionRequest) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.conns[id]
	if !ok {
		return nil, ErrUnknownConnection
	}
	left := []string{}
	var errs []error
	for _, target := range req.Targets() {
		room := target.Room()
		if !rooms.Contains(room) {
			continue
		}
		if err := r.transport.Leave(id, room); err != nil {
			errs = append(errs, fmt.Errorf("leave %s: %w", room, err))
			continue
		}
		rooms.Remove(room)
		left = append(left, room)
	}
	r.log.WithFields(logrus.Fields{"connection": id, "left": left, "rooms": rooms.Cardinality()}).Info("unsubscribed")
	return left, errors.Join(errs...)
}

// Disconnect forgets the connection. Transport rooms are released by the
// transport itself.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	r.log.WithFields(logrus.Fields{"connection": id, "rooms": rooms.Cardinality()}).Info("disconnected")
}

// Rooms returns the sorted rooms of the connection, nil when unknown.
func (r *Registry) Rooms(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.conns[id]
	if !ok {
		return nil
	}
	res := rooms.ToSlice()
	slices.Sort(res)
	return res
}

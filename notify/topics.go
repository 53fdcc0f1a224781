package notify

import (
	"github.com/coti-io/coti-explorer-api-sub000/index"
)

// Base topics of emitted event names.
const (
	TopicAddressTransactions = "addressTransactions"
	TopicTransactionDetails  = "transactionDetails"
	TopicTransactions        = "transactions"
	TopicTokenTransactions   = "tokenTransactions"
	TopicNodeUpdates         = "nodeUpdates"
	TopicTreasuryTotals      = "treasuryTotals"
	TopicActiveWallets       = "activeWallets"
	TopicConfirmationTime    = "confirmationTime"
	TopicTransactionsTotal   = "transactionsTotal"
)

// Kind is the namespace of a room key.
type Kind string

const (
	KindAddress     Kind = "address"
	KindTransaction Kind = "transaction"
	KindNode        Kind = "node"
	KindToken       Kind = "token"
	KindTopic       Kind = "topic"
	KindConnection  Kind = "connection"
)

// Target is a room that receives live events.
type Target struct {
	Kind Kind
	Key  string
}

// canonicalKey spells hex keys the way subscriptions do: lower-case without
// 0x. Keys that are not hex are kept as is.
func canonicalKey(key string) string {
	if res, ok := index.NormalizeHash(key); ok {
		return res
	}
	return key
}

func (t Target) Room() string {
	return string(t.Kind) + ":" + t.Key
}

func AddressTarget(addr index.AddressHash) Target {
	return Target{Kind: KindAddress, Key: canonicalKey(string(addr))}
}

func TransactionTarget(hash index.HashType) Target {
	return Target{Kind: KindTransaction, Key: canonicalKey(string(hash))}
}

func NodeTarget(hash index.HashType) Target {
	return Target{Kind: KindNode, Key: canonicalKey(string(hash))}
}

func TokenTarget(hash index.HashType) Target {
	return Target{Kind: KindToken, Key: canonicalKey(string(hash))}
}

func TopicTarget(topic string) Target {
	return Target{Kind: KindTopic, Key: topic}
}

func ConnectionTarget(id string) Target {
	return Target{Kind: KindConnection, Key: id}
}

// EventName formats {baseTopic}/{key}.
func EventName(base, key string) string {
	return base + "/" + key
}

// TotalEventName formats {baseTopic}/{key}/total.
func TotalEventName(base, key string) string {
	return base + "/" + key + "/total"
}

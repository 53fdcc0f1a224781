package notify

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/coti-io/coti-explorer-api-sub000/index"
)

// TransactionTargets holds the deduplicated recipients of one transaction.
type TransactionTargets struct {
	Transaction *index.Transaction
	Addresses   mapset.Set[index.AddressHash]
	// Tokens are currencies other than the native one
	Tokens mapset.Set[index.HashType]
}

// Targets lists every room the transaction is announced in, global topic included.
func (t TransactionTargets) Targets() []Target {
	res := make([]Target, 0, t.Addresses.Cardinality()+t.Tokens.Cardinality()+2)
	for _, addr := range t.Addresses.ToSlice() {
		res = append(res, AddressTarget(addr))
	}
	for _, token := range t.Tokens.ToSlice() {
		res = append(res, TokenTarget(token))
	}
	res = append(res, TransactionTarget(t.Transaction.Hash), TopicTarget(TopicTransactions))
	return res
}

type Targets struct {
	// All is the union of addresses over the batch
	All            mapset.Set[index.AddressHash]
	PerTransaction []TransactionTargets
}

// ResolveTargets computes notification targets of a hydrated batch. Legs of
// every type contribute their address; missing legs count as none. Legs
// without a currency or with nativeCurrency are not token transfers.
// Addresses and token hashes are canonical room keys.
func ResolveTargets(txs []index.Transaction, nativeCurrency index.HashType) Targets {
	res := Targets{
		All:            mapset.NewThreadUnsafeSet[index.AddressHash](),
		PerTransaction: make([]TransactionTargets, 0, len(txs)),
	}
	native := index.HashType(canonicalKey(string(nativeCurrency)))
	for i := range txs {
		tx := &txs[i]
		tt := TransactionTargets{
			Transaction: tx,
			Addresses:   mapset.NewThreadUnsafeSet[index.AddressHash](),
			Tokens:      mapset.NewThreadUnsafeSet[index.HashType](),
		}
		for _, leg := range tx.Legs {
			if leg.AddressHash != "" {
				tt.Addresses.Add(index.AddressHash(canonicalKey(string(leg.AddressHash))))
			}
			if leg.CurrencyHash == nil || *leg.CurrencyHash == "" {
				continue
			}
			if token := index.HashType(canonicalKey(string(*leg.CurrencyHash))); token != native {
				tt.Tokens.Add(token)
			}
		}
		res.All = res.All.Union(tt.Addresses)
		res.PerTransaction = append(res.PerTransaction, tt)
	}
	return res
}

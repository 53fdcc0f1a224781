package index

import (
	"encoding/json"
	"strings"
)

func (a AddressHash) MarshalJSON() ([]byte, error) {
	return []byte("\"" + strings.Trim(string(a), " ") + "\""), nil
}

type transactionAlias Transaction

// MarshalJSON adds the derived status field.
func (t Transaction) MarshalJSON() ([]byte, error) {
	legs := t.Legs
	if legs == nil {
		legs = []BaseTransaction{}
	}
	alias := transactionAlias(t)
	alias.Legs = legs
	return json.Marshal(struct {
		transactionAlias
		Status TransactionStatus `json:"status"`
	}{alias, t.Status()})
}

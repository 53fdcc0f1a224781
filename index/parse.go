package index

import (
	"github.com/jackc/pgx/v5"
)

const (
	transactionColumns = `T.id, T.hash, T.index, T.amount::text, T.type, T.attachment_time, ` +
		`T.transaction_consensus_update_time, T.create_time, T.update_time`
	baseTransactionColumns = `B.id, B.transaction_id, B.hash, B.idx, B.address_hash, B.amount::text, ` +
		`B.currency_hash, B.type, B.create_time`
	tokenColumns   = `C.hash, C.name, C.symbol, C.description, C.total_supply::text, C.scale, C.originator_hash, C.create_time`
	nodeColumns    = `N.hash, N.type, N.url, N.version, N.fee_percentage, N.fee_minimum, N.fee_maximum, N.uptime, N.status, N.update_time`
	balanceColumns = `A.address_hash, A.currency_hash, A.balance::text, A.update_time`
)

func ScanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.Id, &t.Hash, &t.Index, &t.Amount, &t.Type, &t.AttachmentTime,
		&t.ConsensusTime, &t.CreateTime, &t.UpdateTime)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func ScanBaseTransaction(row pgx.Row) (*BaseTransaction, error) {
	var b BaseTransaction
	err := row.Scan(&b.Id, &b.TransactionId, &b.Hash, &b.Index, &b.AddressHash, &b.Amount,
		&b.CurrencyHash, &b.Type, &b.CreateTime)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func ScanToken(row pgx.Row) (*Token, error) {
	var c Token
	err := row.Scan(&c.Hash, &c.Name, &c.Symbol, &c.Description, &c.TotalSupply, &c.Scale,
		&c.OriginatorHash, &c.CreateTime)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func ScanNode(row pgx.Row) (*Node, error) {
	var n Node
	err := row.Scan(&n.Hash, &n.Type, &n.Url, &n.Version, &n.FeePercentage, &n.FeeMinimum,
		&n.FeeMaximum, &n.Uptime, &n.Status, &n.UpdateTime)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func ScanAddressBalance(row pgx.Row) (*AddressBalance, error) {
	var a AddressBalance
	if err := row.Scan(&a.AddressHash, &a.CurrencyHash, &a.Balance, &a.UpdateTime); err != nil {
		return nil, err
	}
	return &a, nil
}

package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// query builders
func limitQuery(lim LimitRequest) string {
	query := ``
	if lim.Limit != nil {
		query += fmt.Sprintf(" limit %d", *lim.Limit)
	}
	if lim.Offset != nil {
		query += fmt.Sprintf(" offset %d", *lim.Offset)
	}
	return query
}

func buildTransactionsQuery(tx_req TransactionRequest, lim_req LimitRequest) (string, []any) {
	query := `select ` + transactionColumns + ` from transactions as T`
	filter_list := []string{}
	args := []any{}
	filter_query := ``
	orderby_query := ``
	limit_query := limitQuery(lim_req)

	if v := tx_req.Address; v != nil {
		args = append(args, string(*v))
		filter_list = append(filter_list, fmt.Sprintf(
			"T.id in (select B.transaction_id from base_transactions as B where B.address_hash = $%d)", len(args)))
	}
	if v := tx_req.Status; v != nil {
		if TransactionStatus(*v) == StatusConfirmed {
			filter_list = append(filter_list, "T.transaction_consensus_update_time is not null")
		} else {
			filter_list = append(filter_list, "T.transaction_consensus_update_time is null")
		}
	}
	if v := lim_req.Sort; v != nil {
		orderby_query = fmt.Sprintf(" order by T.attachment_time %s, T.id %s", *v, *v)
	}

	if len(filter_list) > 0 {
		filter_query = ` where ` + strings.Join(filter_list, " and ")
	}
	query += filter_query
	query += orderby_query
	query += limit_query
	return query, args
}

// recentTransactionIDsQuery selects ids of rows touched within the window.
func recentTransactionIDsQuery(confirmed bool) string {
	cond := "is null"
	if confirmed {
		cond = "is not null"
	}
	return `select T.id from transactions as T where T.update_time >= now() - ($1::bigint * interval '1 millisecond') ` +
		`and T.transaction_consensus_update_time ` + cond + ` order by T.id`
}

// query implementation functions
func queryTransactionsImpl(ctx context.Context, conn *pgxpool.Conn, query string, args ...any) ([]Transaction, error) {
	txs := []Transaction{}
	{
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			tx, err := ScanTransaction(rows)
			if err != nil {
				return nil, err
			}
			txs = append(txs, *tx)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	if err := loadLegs(ctx, conn, txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// loadLegs fills Legs of every transaction in place with one query.
func loadLegs(ctx context.Context, conn *pgxpool.Conn, txs []Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	ids := make([]int64, len(txs))
	pos := make(map[int64]int, len(txs))
	for i, t := range txs {
		ids[i] = t.Id
		pos[t.Id] = i
	}
	query := `select ` + baseTransactionColumns + ` from base_transactions as B ` +
		`where B.transaction_id = any($1) order by B.transaction_id, B.idx`
	rows, err := conn.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		leg, err := ScanBaseTransaction(rows)
		if err != nil {
			return err
		}
		if i, ok := pos[leg.TransactionId]; ok {
			txs[i].Legs = append(txs[i].Legs, *leg)
		}
	}
	return rows.Err()
}

// live feed methods

// GetTransactionsByID hydrates transactions with all legs, keeping the order of ids.
// Unknown ids are skipped.
func (db *DbClient) GetTransactionsByID(ctx context.Context, ids []int64) ([]Transaction, error) {
	if len(ids) == 0 {
		return []Transaction{}, nil
	}
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `select ` + transactionColumns + ` from transactions as T where T.id = any($1)`
	txs, err := queryTransactionsImpl(ctx, conn, query, ids)
	if err != nil {
		return nil, err
	}
	return orderByIds(txs, ids), nil
}

func orderByIds(txs []Transaction, ids []int64) []Transaction {
	byId := make(map[int64]Transaction, len(txs))
	for _, t := range txs {
		byId[t.Id] = t
	}
	res := make([]Transaction, 0, len(txs))
	for _, id := range ids {
		if t, ok := byId[id]; ok {
			res = append(res, t)
			delete(byId, id)
		}
	}
	return res
}

func (db *DbClient) GetTransactionCount(ctx context.Context, address AddressHash) (int64, error) {
	var count int64
	err := db.Pool.QueryRow(ctx,
		`select count(distinct B.transaction_id) from base_transactions as B where B.address_hash = $1`,
		string(address)).Scan(&count)
	return count, err
}

// canonicalAddressHash is the stored address spelled like NormalizeHash output.
const canonicalAddressHash = `lower(regexp_replace(B.address_hash, '^0x', '', 'i'))`

// GetTransactionsCount returns a count for every requested address, zero when it has none.
// Requested addresses are expected in NormalizeHash form and match stored
// addresses regardless of case or 0x prefix.
func (db *DbClient) GetTransactionsCount(ctx context.Context, addresses []AddressHash) (map[AddressHash]int64, error) {
	res := make(map[AddressHash]int64, len(addresses))
	if len(addresses) == 0 {
		return res, nil
	}
	addrs := make([]string, len(addresses))
	for i, a := range addresses {
		addrs[i] = string(a)
		res[a] = 0
	}
	rows, err := db.Pool.Query(ctx,
		`select `+canonicalAddressHash+`, count(distinct B.transaction_id) from base_transactions as B `+
			`where `+canonicalAddressHash+` = any($1) group by 1`, addrs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var addr string
		var count int64
		if err := rows.Scan(&addr, &count); err != nil {
			return nil, err
		}
		res[AddressHash(addr)] = count
	}
	return res, rows.Err()
}

// QueryRecentTransactionIDs is the change-detection selector: rows updated within
// window whose confirmation time is absent (confirmed=false) or present (confirmed=true).
func (db *DbClient) QueryRecentTransactionIDs(ctx context.Context, window time.Duration, confirmed bool) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, recentTransactionIDsQuery(confirmed), window.Milliseconds())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// REST methods
func (db *DbClient) QueryTransactions(tx_req TransactionRequest, lim_req LimitRequest, settings RequestSettings) ([]Transaction, error) {
	query, args := buildTransactionsQuery(tx_req, lim_req)

	ctx, cancel_ctx := context.WithTimeout(context.Background(), settings.Timeout)
	defer cancel_ctx()
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	return queryTransactionsImpl(ctx, conn, query, args...)
}

func (db *DbClient) QueryTransactionByHash(hash HashType, settings RequestSettings) (*Transaction, error) {
	ctx, cancel_ctx := context.WithTimeout(context.Background(), settings.Timeout)
	defer cancel_ctx()
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `select ` + transactionColumns + ` from transactions as T where T.hash = $1`
	txs, err := queryTransactionsImpl(ctx, conn, query, string(hash))
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, RequestError{Code: 404, Message: "transaction not found"}
	}
	return &txs[0], nil
}

func (db *DbClient) QueryAddressBalances(address AddressHash, settings RequestSettings) ([]AddressBalance, error) {
	ctx, cancel_ctx := context.WithTimeout(context.Background(), settings.Timeout)
	defer cancel_ctx()

	rows, err := db.Pool.Query(ctx, `select `+balanceColumns+` from address_balances as A `+
		`where A.address_hash = $1 order by A.currency_hash`, string(address))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []AddressBalance{}
	for rows.Next() {
		b, err := ScanAddressBalance(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *b)
	}
	return res, rows.Err()
}

func (db *DbClient) QueryTokens(lim_req LimitRequest, settings RequestSettings) ([]Token, error) {
	ctx, cancel_ctx := context.WithTimeout(context.Background(), settings.Timeout)
	defer cancel_ctx()

	query := `select ` + tokenColumns + ` from currencies as C`
	if lim_req.Sort != nil {
		query += fmt.Sprintf(" order by C.create_time %s", *lim_req.Sort)
	}
	query += limitQuery(lim_req)
	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []Token{}
	for rows.Next() {
		c, err := ScanToken(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *c)
	}
	return res, rows.Err()
}

func (db *DbClient) QueryToken(hash HashType, settings RequestSettings) (*Token, error) {
	ctx, cancel_ctx := context.WithTimeout(context.Background(), settings.Timeout)
	defer cancel_ctx()

	row := db.Pool.QueryRow(ctx, `select `+tokenColumns+` from currencies as C where C.hash = $1`, string(hash))
	token, err := ScanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, RequestError{Code: 404, Message: "token not found"}
	}
	return token, err
}

func (db *DbClient) QueryNodes(node_req NodeRequest, settings RequestSettings) ([]Node, error) {
	ctx, cancel_ctx := context.WithTimeout(context.Background(), settings.Timeout)
	defer cancel_ctx()

	query := `select ` + nodeColumns + ` from nodes as N`
	args := []any{}
	if v := node_req.NodeType; v != nil {
		args = append(args, *v)
		query += ` where N.type = $1`
	}
	query += ` order by N.hash`
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []Node{}
	for rows.Next() {
		n, err := ScanNode(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *n)
	}
	return res, rows.Err()
}

func (db *DbClient) QueryNode(hash HashType, settings RequestSettings) (*Node, error) {
	ctx, cancel_ctx := context.WithTimeout(context.Background(), settings.Timeout)
	defer cancel_ctx()

	node, err := ScanNode(db.Pool.QueryRow(ctx, `select `+nodeColumns+` from nodes as N where N.hash = $1`, string(hash)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, RequestError{Code: 404, Message: "node not found"}
	}
	return node, err
}

package index

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// QueryConfirmationTimeStats aggregates seconds between attachment and consensus
// for transactions confirmed within the window.
func (db *DbClient) QueryConfirmationTimeStats(ctx context.Context, window time.Duration) (ConfirmationTimeStats, error) {
	return db.QueryConfirmationTimeStatsAt(ctx, time.Now().UTC(), window)
}

// QueryConfirmationTimeStatsAt aggregates over transactions confirmed in (at - window, at].
func (db *DbClient) QueryConfirmationTimeStatsAt(ctx context.Context, at time.Time, window time.Duration) (ConfirmationTimeStats, error) {
	stats := ConfirmationTimeStats{CreateTime: at}
	err := db.Pool.QueryRow(ctx, confirmationTimeQuery, at.Add(-window), at).Scan(
		&stats.AverageSeconds, &stats.MinimumSeconds, &stats.MaximumSeconds, &stats.SampleSize)
	return stats, err
}

const confirmationTimeQuery = `select coalesce(avg(d), 0), coalesce(min(d), 0), coalesce(max(d), 0), count(*) from (` +
	`select extract(epoch from (T.transaction_consensus_update_time - T.attachment_time))::float8 as d ` +
	`from transactions as T where T.transaction_consensus_update_time > $1 ` +
	`and T.transaction_consensus_update_time <= $2 and T.attachment_time is not null) as S`

// FirstConfirmationTime returns the earliest consensus time, or nil for an empty table.
func (db *DbClient) FirstConfirmationTime(ctx context.Context) (*time.Time, error) {
	var res *time.Time
	err := db.Pool.QueryRow(ctx, `select min(T.transaction_consensus_update_time) from transactions as T`).Scan(&res)
	return res, err
}

func (db *DbClient) InsertConfirmationTimeSnapshot(ctx context.Context, stats ConfirmationTimeStats) error {
	_, err := db.Pool.Exec(ctx, `insert into confirmation_time_snapshots `+
		`(average, minimum, maximum, sample_size, create_time) values ($1, $2, $3, $4, $5)`,
		stats.AverageSeconds, stats.MinimumSeconds, stats.MaximumSeconds, stats.SampleSize, stats.CreateTime)
	return err
}

func (db *DbClient) LatestConfirmationTimeSnapshot(ctx context.Context) (*ConfirmationTimeStats, error) {
	var stats ConfirmationTimeStats
	err := db.Pool.QueryRow(ctx, `select average, minimum, maximum, sample_size, create_time `+
		`from confirmation_time_snapshots order by create_time desc limit 1`).Scan(
		&stats.AverageSeconds, &stats.MinimumSeconds, &stats.MaximumSeconds, &stats.SampleSize, &stats.CreateTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, RequestError{Code: 404, Message: "confirmation time is not computed yet"}
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (db *DbClient) InsertTreasurySnapshot(ctx context.Context, totals TreasuryTotals) error {
	_, err := db.Pool.Exec(ctx, `insert into treasury_snapshots `+
		`(total_locked, total_rewards, total_leverage, create_time) values ($1::numeric, $2::numeric, $3::numeric, $4)`,
		totals.TotalLocked, totals.TotalRewards, totals.TotalLeverage, totals.CreateTime)
	return err
}

func (db *DbClient) LatestTreasurySnapshot(ctx context.Context) (*TreasuryTotals, error) {
	var totals TreasuryTotals
	err := db.Pool.QueryRow(ctx, `select total_locked::text, total_rewards::text, total_leverage::text, create_time `+
		`from treasury_snapshots order by create_time desc limit 1`).Scan(
		&totals.TotalLocked, &totals.TotalRewards, &totals.TotalLeverage, &totals.CreateTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, RequestError{Code: 404, Message: "treasury totals are not computed yet"}
	}
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

// UpsertNodes writes node-manager data for every node in one transaction.
func (db *DbClient) UpsertNodes(ctx context.Context, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, n := range nodes {
		batch.Queue(`insert into nodes (hash, type, url, version, fee_percentage, fee_minimum, fee_maximum, uptime, status, update_time) `+
			`values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) on conflict (hash) do update set `+
			`type = excluded.type, url = excluded.url, version = excluded.version, `+
			`fee_percentage = excluded.fee_percentage, fee_minimum = excluded.fee_minimum, `+
			`fee_maximum = excluded.fee_maximum, uptime = excluded.uptime, status = excluded.status, `+
			`update_time = excluded.update_time`,
			string(n.Hash), n.Type, n.Url, n.Version, n.FeePercentage, n.FeeMinimum, n.FeeMaximum, n.Uptime, n.Status, n.UpdateTime)
	}
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (db *DbClient) CountActiveWallets(ctx context.Context) (int64, error) {
	var count int64
	err := db.Pool.QueryRow(ctx,
		`select count(distinct A.address_hash) from address_balances as A where A.balance > 0`).Scan(&count)
	return count, err
}

func (db *DbClient) CountTransactions(ctx context.Context) (int64, error) {
	var count int64
	err := db.Pool.QueryRow(ctx, `select count(*) from transactions`).Scan(&count)
	return count, err
}

package cache

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coti-io/coti-explorer-api-sub000/index"
)

// LatestKey is the key under which single-value statistics are stored.
const LatestKey = "latest"

// StatsTTL bounds how long a statistic survives when its task stops running.
const StatsTTL = 24 * time.Hour

// Manager holds the statistics caches shared by the API and the gateway.
type Manager struct {
	// confirmation time aggregate, key LatestKey
	ConfirmationTime *Cache[index.ConfirmationTimeStats]

	// treasury totals, key LatestKey
	TreasuryTotals *Cache[index.TreasuryTotals]

	ActiveWallets     *Cache[index.CountSnapshot]
	TransactionsTotal *Cache[index.CountSnapshot]

	// node hash -> node with node-manager data
	Nodes *Cache[index.Node]
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{
		ConfirmationTime: msgpackCache(Options[index.ConfirmationTimeStats]{
			Client: client, Prefix: "stats:ct", TTL: StatsTTL,
		}),
		TreasuryTotals: msgpackCache(Options[index.TreasuryTotals]{
			Client: client, Prefix: "stats:treasury", TTL: StatsTTL,
		}),
		ActiveWallets: msgpackCache(Options[index.CountSnapshot]{
			Client: client, Prefix: "stats:wallets", TTL: StatsTTL,
		}),
		TransactionsTotal: msgpackCache(Options[index.CountSnapshot]{
			Client: client, Prefix: "stats:txcount", TTL: StatsTTL,
		}),
		Nodes: msgpackCache(Options[index.Node]{
			Client: client, Prefix: "node", TTL: time.Hour,
		}),
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/coti-io/coti-explorer-api-sub000/cache"
	"github.com/coti-io/coti-explorer-api-sub000/config"
	_ "github.com/coti-io/coti-explorer-api-sub000/docs"
	"github.com/coti-io/coti-explorer-api-sub000/index"
	"github.com/coti-io/coti-explorer-api-sub000/notify"
	"github.com/coti-io/coti-explorer-api-sub000/scheduler"
	"github.com/coti-io/coti-explorer-api-sub000/stats"
	"github.com/coti-io/coti-explorer-api-sub000/streaming"
)

type Settings struct {
	PgDsn          string
	MaxConns       int
	MinConns       int
	RedisDsn       string
	BridgeChannel  string
	Bind           string
	InstanceName   string
	Prefork        bool
	Debug          bool
	LogLevel       string
	NodeManagerUrl string
	TreasuryUrl    string
	StatsInterval  time.Duration
	NodeInterval   time.Duration
	Request        index.RequestSettings
}

// Store is the part of index.DbClient served over REST.
type Store interface {
	QueryTransactions(tx_req index.TransactionRequest, lim_req index.LimitRequest, settings index.RequestSettings) ([]index.Transaction, error)
	QueryTransactionByHash(hash index.HashType, settings index.RequestSettings) (*index.Transaction, error)
	GetTransactionCount(ctx context.Context, address index.AddressHash) (int64, error)
	QueryAddressBalances(address index.AddressHash, settings index.RequestSettings) ([]index.AddressBalance, error)
	QueryTokens(lim_req index.LimitRequest, settings index.RequestSettings) ([]index.Token, error)
	QueryToken(hash index.HashType, settings index.RequestSettings) (*index.Token, error)
	QueryNodes(node_req index.NodeRequest, settings index.RequestSettings) ([]index.Node, error)
	QueryNode(hash index.HashType, settings index.RequestSettings) (*index.Node, error)
	LatestConfirmationTimeSnapshot(ctx context.Context) (*index.ConfirmationTimeStats, error)
	LatestTreasurySnapshot(ctx context.Context) (*index.TreasuryTotals, error)
	CountActiveWallets(ctx context.Context) (int64, error)
	CountTransactions(ctx context.Context) (int64, error)
}

var store Store
var caches *cache.Manager
var settings Settings
var log = logrus.New()

//	@title			COTI Explorer API
//	@version		1.0.0
//	@description	COTI Explorer API serves indexed transactions, balances, tokens, nodes and network statistics.

// @summary		Get transactions
// @description	Get latest transactions, optionally filtered by address and status.
// @id	api_v1_get_transactions
// @tags	transactions
// @Accept       json
// @Produce      json
// @success		200	{object}	index.TransactionsResponse
// @failure		422	{object}	index.RequestError
// @param address query string false "Address hash in hex."
// @param status query string false "Transaction status." Enums(PENDING, CONFIRMED)
// @param limit query int32 false "Limit number of queried rows." minimum(1) maximum(1000) default(100)
// @param offset query int32 false "Skip first N rows." minimum(0) default(0)
// @param sort query string false "Sort by attachment time." Enums(asc, desc) default(desc)
// @router			/api/v1/transactions [get]
func GetTransactions(c *fiber.Ctx) error {
	tx_req := index.TransactionRequest{}
	lim_req := index.LimitRequest{}
	if err := c.QueryParser(&tx_req); err != nil {
		return index.RequestError{Code: 422, Message: err.Error()}
	}
	if err := c.QueryParser(&lim_req); err != nil {
		return index.RequestError{Code: 422, Message: err.Error()}
	}
	if err := tx_req.Validate(); err != nil {
		return err
	}
	if err := lim_req.Normalize(settings.Request); err != nil {
		return err
	}

	txs, err := store.QueryTransactions(tx_req, lim_req, settings.Request)
	if err != nil {
		return err
	}
	resp := index.TransactionsResponse{Transactions: txs}
	if tx_req.Address == nil && tx_req.Status == nil {
		ctx, cancel := requestContext(c)
		defer cancel()
		total, err := caches.TransactionsTotal.GetOrLoad(ctx, cache.LatestKey, loadTransactionsTotal)
		if err == nil {
			resp.Total = &total.Count
		}
	}
	return c.JSON(resp)
}

// @summary		Get transaction
// @description	Get transaction by hash with its base transactions.
// @id	api_v1_get_transaction
// @tags	transactions
// @Produce      json
// @success		200	{object}	index.Transaction
// @failure		404	{object}	index.RequestError
// @failure		422	{object}	index.RequestError
// @param hash path string true "Transaction hash in hex."
// @router			/api/v1/transactions/{hash} [get]
func GetTransaction(c *fiber.Ctx) error {
	hash, err := hashParam(c, "hash")
	if err != nil {
		return err
	}
	tx, err := store.QueryTransactionByHash(index.HashType(hash), settings.Request)
	if err != nil {
		return err
	}
	return c.JSON(tx)
}

// @summary		Get address transactions
// @id	api_v1_get_address_transactions
// @tags	addresses
// @Produce      json
// @success		200	{object}	index.TransactionsResponse
// @failure		422	{object}	index.RequestError
// @param address path string true "Address hash in hex."
// @param limit query int32 false "Limit number of queried rows." minimum(1) maximum(1000) default(100)
// @param offset query int32 false "Skip first N rows." minimum(0) default(0)
// @router			/api/v1/addresses/{address}/transactions [get]
func GetAddressTransactions(c *fiber.Ctx) error {
	address, err := hashParam(c, "address")
	if err != nil {
		return err
	}
	lim_req := index.LimitRequest{}
	if err := c.QueryParser(&lim_req); err != nil {
		return index.RequestError{Code: 422, Message: err.Error()}
	}
	if err := lim_req.Normalize(settings.Request); err != nil {
		return err
	}
	addr := index.AddressHash(address)
	txs, err := store.QueryTransactions(index.TransactionRequest{Address: &addr}, lim_req, settings.Request)
	if err != nil {
		return err
	}
	return c.JSON(index.TransactionsResponse{Transactions: txs})
}

// @summary		Get address total
// @description	Get the number of transactions an address took part in.
// @id	api_v1_get_address_total
// @tags	addresses
// @Produce      json
// @success		200	{object}	index.AddressTotalResponse
// @failure		422	{object}	index.RequestError
// @param address path string true "Address hash in hex."
// @router			/api/v1/addresses/{address}/total [get]
func GetAddressTotal(c *fiber.Ctx) error {
	address, err := hashParam(c, "address")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	count, err := store.GetTransactionCount(ctx, index.AddressHash(address))
	if err != nil {
		return err
	}
	return c.JSON(index.AddressTotalResponse{AddressHash: index.AddressHash(address), TotalTransactions: count})
}

// @summary		Get address balances
// @id	api_v1_get_address_balances
// @tags	addresses
// @Produce      json
// @success		200	{object}	index.BalancesResponse
// @failure		422	{object}	index.RequestError
// @param address path string true "Address hash in hex."
// @router			/api/v1/addresses/{address}/balances [get]
func GetAddressBalances(c *fiber.Ctx) error {
	address, err := hashParam(c, "address")
	if err != nil {
		return err
	}
	balances, err := store.QueryAddressBalances(index.AddressHash(address), settings.Request)
	if err != nil {
		return err
	}
	return c.JSON(index.BalancesResponse{Balances: balances})
}

// @summary		Get tokens
// @id	api_v1_get_tokens
// @tags	tokens
// @Produce      json
// @success		200	{object}	index.TokensResponse
// @failure		422	{object}	index.RequestError
// @param limit query int32 false "Limit number of queried rows." minimum(1) maximum(1000) default(100)
// @param offset query int32 false "Skip first N rows." minimum(0) default(0)
// @param sort query string false "Sort by creation time." Enums(asc, desc) default(desc)
// @router			/api/v1/tokens [get]
func GetTokens(c *fiber.Ctx) error {
	lim_req := index.LimitRequest{}
	if err := c.QueryParser(&lim_req); err != nil {
		return index.RequestError{Code: 422, Message: err.Error()}
	}
	if err := lim_req.Normalize(settings.Request); err != nil {
		return err
	}
	tokens, err := store.QueryTokens(lim_req, settings.Request)
	if err != nil {
		return err
	}
	return c.JSON(index.TokensResponse{Tokens: tokens})
}

// @summary		Get token
// @id	api_v1_get_token
// @tags	tokens
// @Produce      json
// @success		200	{object}	index.Token
// @failure		404	{object}	index.RequestError
// @param hash path string true "Currency hash in hex."
// @router			/api/v1/tokens/{hash} [get]
func GetToken(c *fiber.Ctx) error {
	hash, err := hashParam(c, "hash")
	if err != nil {
		return err
	}
	token, err := store.QueryToken(index.HashType(hash), settings.Request)
	if err != nil {
		return err
	}
	return c.JSON(token)
}

// @summary		Get nodes
// @description	Get nodes. Rows are replaced by the cached node-manager copy when it is newer.
// @id	api_v1_get_nodes
// @tags	nodes
// @Produce      json
// @success		200	{object}	index.NodesResponse
// @param node_type query string false "Node type."
// @router			/api/v1/nodes [get]
func GetNodes(c *fiber.Ctx) error {
	node_req := index.NodeRequest{}
	if err := c.QueryParser(&node_req); err != nil {
		return index.RequestError{Code: 422, Message: err.Error()}
	}
	nodes, err := store.QueryNodes(node_req, settings.Request)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	hashes := make([]string, len(nodes))
	for i, n := range nodes {
		hashes[i] = string(n.Hash)
	}
	cached, err := caches.Nodes.MGet(ctx, hashes...)
	if err != nil {
		log.WithError(err).Warn("failed to read cached nodes")
	}
	for i, n := range nodes {
		if fresh, ok := cached[string(n.Hash)]; ok && !fresh.UpdateTime.Before(n.UpdateTime) {
			nodes[i] = fresh
		}
	}
	return c.JSON(index.NodesResponse{Nodes: nodes})
}

// @summary		Get node
// @description	Get node with the latest node-manager data.
// @id	api_v1_get_node
// @tags	nodes
// @Produce      json
// @success		200	{object}	index.Node
// @failure		404	{object}	index.RequestError
// @param hash path string true "Node hash in hex."
// @router			/api/v1/nodes/{hash} [get]
func GetNode(c *fiber.Ctx) error {
	hash, err := hashParam(c, "hash")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	node, err := caches.Nodes.GetOrLoad(ctx, hash, func(ctx context.Context) (index.Node, error) {
		n, err := store.QueryNode(index.HashType(hash), settings.Request)
		if err != nil {
			return index.Node{}, err
		}
		return *n, nil
	})
	if err != nil {
		return err
	}
	return c.JSON(node)
}

// @summary		Get confirmation time
// @description	Get average, minimum and maximum confirmation time over the last 24 hours.
// @id	api_v1_get_confirmation_time
// @tags	statistics
// @Produce      json
// @success		200	{object}	index.ConfirmationTimeStats
// @failure		404	{object}	index.RequestError
// @router			/api/v1/statistics/confirmation-time [get]
func GetConfirmationTime(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := caches.ConfirmationTime.GetOrLoad(ctx, cache.LatestKey, func(ctx context.Context) (index.ConfirmationTimeStats, error) {
		s, err := store.LatestConfirmationTimeSnapshot(ctx)
		if err != nil {
			return index.ConfirmationTimeStats{}, err
		}
		return *s, nil
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// @summary		Get treasury totals
// @id	api_v1_get_treasury_totals
// @tags	statistics
// @Produce      json
// @success		200	{object}	index.TreasuryTotals
// @failure		404	{object}	index.RequestError
// @router			/api/v1/statistics/treasury-totals [get]
func GetTreasuryTotals(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := caches.TreasuryTotals.GetOrLoad(ctx, cache.LatestKey, func(ctx context.Context) (index.TreasuryTotals, error) {
		t, err := store.LatestTreasurySnapshot(ctx)
		if err != nil {
			return index.TreasuryTotals{}, err
		}
		return *t, nil
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// @summary		Get active wallets
// @description	Get the number of addresses holding a positive balance.
// @id	api_v1_get_active_wallets
// @tags	statistics
// @Produce      json
// @success		200	{object}	index.CountSnapshot
// @router			/api/v1/statistics/active-wallets [get]
func GetActiveWallets(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := caches.ActiveWallets.GetOrLoad(ctx, cache.LatestKey, func(ctx context.Context) (index.CountSnapshot, error) {
		count, err := store.CountActiveWallets(ctx)
		return index.CountSnapshot{Count: count, CreateTime: time.Now().UTC()}, err
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func loadTransactionsTotal(ctx context.Context) (index.CountSnapshot, error) {
	count, err := store.CountTransactions(ctx)
	return index.CountSnapshot{Count: count, CreateTime: time.Now().UTC()}, err
}

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), settings.Request.Timeout)
}

func hashParam(c *fiber.Ctx, name string) (string, error) {
	value, ok := index.NormalizeHash(c.Params(name))
	if !ok {
		return "", index.RequestError{Code: 422, Message: fmt.Sprintf("invalid %s", name)}
	}
	return value, nil
}

func ErrorHandlerFunc(ctx *fiber.Ctx, err error) error {
	ip := ctx.IP()
	if ips := ctx.IPs(); len(ips) > 0 {
		ip = ips[0]
	}
	fields := logrus.Fields{"path": ctx.Path(), "ip": ip, "queries": ctx.Queries()}

	var req_err index.RequestError
	var fiber_err *fiber.Error
	switch {
	case errors.As(err, &req_err):
		if req_err.Code != 404 && req_err.Code != 409 {
			fields["code"] = req_err.Code
			log.WithFields(fields).Warn(strings.ReplaceAll(req_err.Message, "\n", "\\n"))
		}
		return ctx.Status(req_err.Code).JSON(req_err)
	case errors.As(err, &fiber_err):
		return ctx.Status(fiber_err.Code).JSON(index.RequestError{Code: fiber_err.Code, Message: fiber_err.Message})
	case errors.Is(err, context.DeadlineExceeded):
		log.WithFields(fields).WithError(err).Warn("request timed out")
		return ctx.Status(fiber.StatusGatewayTimeout).JSON(index.RequestError{Code: fiber.StatusGatewayTimeout, Message: "query timeout"})
	default:
		log.WithFields(fields).WithError(err).Error("request failed")
		resp := map[string]string{}
		resp["error"] = fmt.Sprintf("internal server error: %s", err.Error())
		return ctx.Status(fiber.StatusInternalServerError).JSON(resp)
	}
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "COTI Explorer API",
		Prefork:      settings.Prefork,
		ErrorHandler: ErrorHandlerFunc,
		ProxyHeader:  fiber.HeaderXForwardedFor,
	})

	// converters
	fiber.SetParserDecoder(fiber.ParserConfig{
		IgnoreUnknownKeys: true,
		ParserType: []fiber.ParserType{
			{Customtype: index.HashType(""), Converter: index.HashConverter},
			{Customtype: index.AddressHash(""), Converter: index.AddressHashConverter},
		},
		ZeroEmpty: true,
	})

	app.Use(fiberlog.New())
	app.Use("/api/v1/", func(c *fiber.Ctx) error {
		c.Accepts("application/json")
		start := time.Now()
		err := c.Next()
		c.Append("Server-timing", fmt.Sprintf("app;dur=%v", time.Since(start).String()))
		return err
	})
	if settings.Debug {
		app.Use(pprof.New())
	}

	app.Get("/healthcheck", HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")
	v1.Get("/transactions", GetTransactions)
	v1.Get("/transactions/:hash", GetTransaction)
	v1.Get("/addresses/:address/transactions", GetAddressTransactions)
	v1.Get("/addresses/:address/total", GetAddressTotal)
	v1.Get("/addresses/:address/balances", GetAddressBalances)
	v1.Get("/tokens", GetTokens)
	v1.Get("/tokens/:hash", GetToken)
	v1.Get("/nodes", GetNodes)
	v1.Get("/nodes/:hash", GetNode)
	v1.Get("/statistics/confirmation-time", GetConfirmationTime)
	v1.Get("/statistics/treasury-totals", GetTreasuryTotals)
	v1.Get("/statistics/active-wallets", GetActiveWallets)

	// swagger
	var swagger_config = swagger.Config{
		Title:           "COTI Explorer (" + settings.InstanceName + ") - Swagger UI",
		Layout:          "BaseLayout",
		DeepLinking:     true,
		TryItOutEnabled: true,
	}
	app.Get("/api/v1/*", swagger.New(swagger_config))
	return app
}

func main() {
	if err := config.LoadEnvFile(config.EnvFilePath()); err != nil {
		log.WithError(err).Fatal("failed to load env file")
	}
	var timeout_ms int
	flag.StringVar(&settings.PgDsn, "pg", config.String("EXPLORER_PG", "postgresql://localhost:5432"), "PostgreSQL connection string")
	flag.IntVar(&settings.MaxConns, "maxconns", config.Int("EXPLORER_MAXCONNS", 100), "PostgreSQL max connections")
	flag.IntVar(&settings.MinConns, "minconns", config.Int("EXPLORER_MINCONNS", 0), "PostgreSQL min connections")
	flag.StringVar(&settings.RedisDsn, "redis", config.String("EXPLORER_REDIS", "redis://localhost:6379"), "Redis connection string")
	flag.StringVar(&settings.BridgeChannel, "bridge-channel", config.String("EXPLORER_BRIDGE_CHANNEL", streaming.DefaultBridgeChannel), "Redis channel of the WebSocket gateway")
	flag.StringVar(&settings.Bind, "bind", config.String("EXPLORER_BIND", ":8000"), "Bind address")
	flag.StringVar(&settings.InstanceName, "name", config.String("EXPLORER_NAME", "Go"), "Instance name to show in Swagger UI")
	flag.BoolVar(&settings.Prefork, "prefork", config.Bool("EXPLORER_PREFORK", false), "Prefork workers")
	flag.BoolVar(&settings.Debug, "debug", config.Bool("EXPLORER_DEBUG", false), "Run service in debug mode")
	flag.StringVar(&settings.LogLevel, "log-level", config.String("EXPLORER_LOG_LEVEL", "info"), "Log level")
	flag.StringVar(&settings.NodeManagerUrl, "node-manager", config.String("EXPLORER_NODE_MANAGER", ""), "Node manager base URL, empty disables node updates")
	flag.StringVar(&settings.TreasuryUrl, "treasury", config.String("EXPLORER_TREASURY", ""), "Treasury base URL, empty disables treasury totals")
	flag.DurationVar(&settings.StatsInterval, "stats-interval", config.Duration("EXPLORER_STATS_INTERVAL", time.Minute), "Statistics refresh interval")
	flag.DurationVar(&settings.NodeInterval, "node-interval", config.Duration("EXPLORER_NODE_INTERVAL", 5*time.Minute), "Node refresh interval")
	flag.IntVar(&timeout_ms, "query-timeout", config.Int("EXPLORER_QUERY_TIMEOUT", 3000), "Query timeout in milliseconds")
	flag.IntVar(&settings.Request.DefaultLimit, "default-limit", config.Int("EXPLORER_DEFAULT_LIMIT", 100), "Default value for limit")
	flag.IntVar(&settings.Request.MaxLimit, "max-limit", config.Int("EXPLORER_MAX_LIMIT", 1000), "Maximum value for limit")
	flag.Parse()
	settings.Request.Timeout = time.Duration(timeout_ms) * time.Millisecond

	logger, err := config.NewLogger(settings.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("unknown log level, using info")
	}
	log = logger

	pool, err := index.NewDbClient(settings.PgDsn, settings.MaxConns, settings.MinConns)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to PostgreSQL")
	}
	defer pool.Close()
	store = pool

	redisOptions, err := redis.ParseURL(settings.RedisDsn)
	if err != nil {
		log.WithError(err).Fatal("failed to parse Redis DSN")
	}
	rdb := redis.NewClient(redisOptions)
	caches = cache.NewManager(rdb)
	components = []healthComponent{redisComponent(rdb)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// statistics tasks push through the gateway bridge
	var nodes stats.NodeSource
	if settings.NodeManagerUrl != "" {
		client := stats.NewNodeManagerClient(settings.NodeManagerUrl, nil)
		nodes = client
		components = append(components, upstreamComponent("node-manager", client))
	}
	var treasury stats.TreasurySource
	if settings.TreasuryUrl != "" {
		client := stats.NewTreasuryClient(settings.TreasuryUrl, nil)
		treasury = client
		components = append(components, upstreamComponent("treasury", client))
	}
	notifier := notify.NewNotifier(streaming.NewPublisher(rdb, settings.BridgeChannel), log)
	refresher := stats.NewRefresher(pool, caches, notifier, nodes, treasury, log)
	registry := scheduler.NewRegistry()
	if err := refresher.RegisterSnapshotTasks(registry, settings.StatsInterval, settings.NodeInterval); err != nil {
		log.WithError(err).Fatal("failed to register tasks")
	}
	sched := scheduler.New(registry, log)
	if !fiber.IsChild() {
		sched.StartCrons(ctx)
	}

	app := newApp()
	go func() {
		<-sigChan
		log.Info("received shutdown signal")
		cancel()
		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("failed to shut down server")
		}
	}()

	if err := app.Listen(settings.Bind); err != nil {
		log.WithError(err).Error("server stopped")
	}
	cancel()
	sched.Wait()
	log.Info("shutdown complete")
}
